// Package testing provides a conformance suite for store.IStore implementations.
//
// Usage:
//
//	func TestMyStore(t *testing.T) {
//	    storetesting.RunStoreTests(t, "mystore", func() store.IStore { return NewMyStore() })
//	}
package testing
