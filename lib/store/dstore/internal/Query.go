package internal

import "github.com/ValentinKolb/dTab/lib/store"

// QueryType defines the possible queries for the state machine.
type QueryType uint8

const (
	QueryTGet     QueryType = iota // Retrieve the record of a table.
	QueryTTables                   // List all known tables.
	QueryTGetInfo                  // Retrieve metadata about the register.
)

func (q QueryType) String() string {
	switch q {
	case QueryTGet:
		return "Get"
	case QueryTTables:
		return "Tables"
	case QueryTGetInfo:
		return "GetInfo"
	default:
		return "Unknown"
	}
}

// Query defines the structure for lookup requests (read-only) sent via SyncRead or StaleRead
type Query struct {
	Type  QueryType // The type of Query to perform.
	Table string    // The table for the Query (empty for some queries).
}

// QueryResult is the result of a QueryTGet operation.
// All other query results are primitive types or predefined structs ([]string, store.Info).
type QueryResult struct {
	Ok     bool
	Record store.Record
}
