// Package blockstore defines the storage interface for the pages of a dTab
// B-tree.
//
// A BlockStore maps 64-bit block ids to byte slices of the tree's block size.
// It knows nothing about the page layout; the btree package interprets the
// data and the pagecache package caches it in memory.
//
// Key Components:
//
//   - BlockStore Interface: Get, Put, Sync, GetInfo and Close. Get reports a
//     missing block with ErrBlockNotFound.
//
//   - Implementation Identifiers: "mem", "pebble" and "bolt", selectable from
//     the command line.
//
// Related Packages:
//
// The engines/memstore package keeps blocks in a concurrent map and is used by
// tests and throwaway tables. The engines/pebblestore package stores blocks in
// a Pebble LSM and engines/boltstore in a single bbolt bucket. Open (in the
// engines package) selects one of them by name.
//
// The testing package (github.com/ValentinKolb/dTab/lib/blockstore/testing)
// provides RunBlockStoreTests, a conformance suite every backend runs.
package blockstore
