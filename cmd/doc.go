// Package cmd implements the command-line interface of dTab. It provides
// commands for running a server, bulk-loading tables and talking to running
// servers as a client.
//
// The package is organized into several subpackages:
//
//   - serve: starts a server with btree and leader shards
//   - build: bulk-loads a CSV file into a pebble or bolt block store
//   - scan: range gets and counts against a btree shard
//   - l2f: offline L2F calculation and the leader client commands
//   - util: shared flag handling and configuration (internal use)
//
// All flags can also be set as DTAB_<FLAG> environment variables or in a
// .env / .env.local file. See dtab -help for a list of all commands.
package cmd
