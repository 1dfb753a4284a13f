package store

import (
	"fmt"

	"github.com/ValentinKolb/dTab/lib/table"
)

// --------------------------------------------------------------------------
// Interface Definition
// --------------------------------------------------------------------------

// Record is the durable state of one table as seen by the table leader.
// Epoch identifies the L2F: it is incremented by every successful swap and
// is 0 for a table whose L2F was never written. Config and the last report
// of every replica live next to the L2F so that every node of a replicated
// store reconciles from the same snapshot.
type Record struct {
	Table    string                            `json:"table" msgpack:"table"`
	Epoch    uint64                            `json:"epoch" msgpack:"epoch"`
	L2F      table.L2F                         `json:"l2f" msgpack:"l2f"`
	Branches table.BranchHistory               `json:"branches,omitempty" msgpack:"branches"`
	Config   *table.ShardConfig                `json:"config,omitempty" msgpack:"config"`
	States   map[table.ServerID]table.F2LState `json:"states,omitempty" msgpack:"states"`
	Versions map[table.ServerID]table.Version  `json:"versions,omitempty" msgpack:"versions"`
}

// HasL2F reports whether an L2F was ever written for the table.
func (r Record) HasL2F() bool { return r.Epoch > 0 }

// Info contains metadata about a store.
// It is not guaranteed that all fields are filled in or that the information is up-to-date!
type Info struct {
	Impl   string `json:"impl" msgpack:"impl"`
	Tables int    `json:"tables" msgpack:"tables"`
	Swaps  uint64 `json:"swaps" msgpack:"swaps"`
}

// IStore is the register the table leader keeps its L2F decisions in.
// All methods return a *Error (nil on success).
type IStore interface {
	// Get returns the record of a table. The boolean indicates whether the table is known.
	Get(table string) (rec Record, loaded bool, err error)
	// CompareAndSwap replaces the L2F of a table if its current epoch equals expectedEpoch
	// and merges newBranches into the branch history. On success the new record and true
	// are returned. If the epoch does not match, the current record and false are returned
	// and nothing changes. An expectedEpoch of 0 creates the table.
	CompareAndSwap(table string, expectedEpoch uint64, l2f table.L2F, newBranches table.BranchHistory) (rec Record, swapped bool, err error)
	// SetConfig replaces the shard configuration of a table and returns the new record.
	// It does not change the epoch.
	SetConfig(table string, config table.ShardConfig) (rec Record, err error)
	// Report stores the last state and version a replica reported for a table.
	// It does not change the epoch.
	Report(table string, server table.ServerID, state table.F2LState, version table.Version) error
	// Tables returns the names of all known tables in sorted order.
	Tables() (tables []string, err error)
	// GetInfo returns metadata about the store.
	GetInfo() (info Info, err error)
}

// --------------------------------------------------------------------------
// Custom Error Type
// --------------------------------------------------------------------------

// Error is a custom error type that wraps a return code (of type RetCode)
// and an error message.
type Error struct {
	Code RetCode // The return code
	Msg  string  // The error message.
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("StoreError (code %s): %s", e.Code, e.Msg)
}

// NewError creates a new store Error with the given code and message.
func NewError(code RetCode, msg string) *Error {
	return &Error{
		Code: code,
		Msg:  msg,
	}
}

// --------------------------------------------------------------------------
// Return Codes
// --------------------------------------------------------------------------

type RetCode uint64

const (
	RetCSuccess              RetCode = iota // 0: Command executed successfully.
	RetCInternalError                       // 1: Command failed due to an internal error.
	RetCUnsupportedOperation                // 2: Operation is not supported.
	RetCInvalidOperation                    // 3: Invalid operation.
)

func (c RetCode) String() string {
	switch c {
	case RetCSuccess:
		return "Success"
	case RetCInternalError:
		return "InternalError"
	case RetCUnsupportedOperation:
		return "UnsupportedOperation"
	case RetCInvalidOperation:
		return "InvalidOperation"
	default:
		return "Unknown"
	}
}
