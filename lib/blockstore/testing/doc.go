// Package testing provides a standardised conformance suite for
// blockstore.BlockStore implementations.
//
// Example usage:
//
//	func TestMyStore(t *testing.T) {
//		blocktesting.RunBlockStoreTests(t, "MyStore", func(t *testing.T) blockstore.BlockStore {
//			return NewMyStore(t.TempDir())
//		})
//	}
package testing
