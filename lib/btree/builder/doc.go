// Package builder bulk-loads a dTab B-tree.
//
// Pairs are staged in an ordered in-memory set (google/btree) and written
// bottom-up in a single pass: value blocks and leaves in key order, then every
// internal level, then the superblock. Trees are never modified after they are
// built; a new build into a fresh store replaces a table's data.
//
// Values larger than Options.InlineThreshold are written into dedicated blocks
// of exactly BlockSize bytes and referenced from the leaf by their block ids.
package builder
