package common

import (
	"encoding/json"
	"fmt"

	"github.com/ValentinKolb/dTab/lib/blockstore"
	"github.com/ValentinKolb/dTab/lib/btree"
	"github.com/ValentinKolb/dTab/lib/leader"
	"github.com/ValentinKolb/dTab/lib/pagecache"
	"github.com/ValentinKolb/dTab/lib/store"
	"github.com/ValentinKolb/dTab/lib/table"
)

// --------------------------------------------------------------------------
// Message Structure
// --------------------------------------------------------------------------

// Message represents a single message used for both requests and responses.
// Which fields are used depends on the type of message.
type Message struct {
	// Type of message
	MsgType MessageType `json:"msg_type" msgpack:"msg_type"`

	// Range fields
	Left  btree.Bound  `json:"left" msgpack:"left"`                       // Used for: RangeGet, Count
	Right btree.Bound  `json:"right" msgpack:"right"`                     // Used for: RangeGet, Count
	Limit int          `json:"limit,omitempty" msgpack:"limit,omitempty"` // Used for: RangeGet
	Pairs []btree.Pair `json:"pairs,omitempty" msgpack:"pairs,omitempty"` // Used for: RangeGet (response)
	Count int          `json:"count,omitempty" msgpack:"count,omitempty"` // Used for: Count (response)

	// Leader fields
	Table  string             `json:"table,omitempty" msgpack:"table,omitempty"`   // Used for: GetL2F, SetConfig, Reconcile
	Report *leader.Report     `json:"report,omitempty" msgpack:"report,omitempty"` // Used for: ReportF2L
	Config *table.ShardConfig `json:"config,omitempty" msgpack:"config,omitempty"` // Used for: SetConfig
	Record *store.Record      `json:"record,omitempty" msgpack:"record,omitempty"` // Used for: GetL2F, Reconcile (response)
	Tables []string           `json:"tables,omitempty" msgpack:"tables,omitempty"` // Used for: Tables (response)

	// Info fields
	Info *ShardInfo `json:"info,omitempty" msgpack:"info,omitempty"` // Used for: Info (response)

	// Response only fields
	Ok  bool   `json:"ok,omitempty" msgpack:"ok,omitempty"`   // Used for: GetL2F (found), Reconcile (changed)
	Err string `json:"err,omitempty" msgpack:"err,omitempty"` // Empty if no error, otherwise contains the error message
}

// ShardInfo describes a shard. Which fields are set depends on the shard type.
type ShardInfo struct {
	Type       string           `json:"type" msgpack:"type"`
	Cache      *pagecache.Stats `json:"cache,omitempty" msgpack:"cache,omitempty"`
	BlockStore *blockstore.Info `json:"block_store,omitempty" msgpack:"block_store,omitempty"`
	Store      *store.Info      `json:"store,omitempty" msgpack:"store,omitempty"`
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// --------------------------------------------------------------------------
// Message Factory Functions
// --------------------------------------------------------------------------

// NewRangeGetRequest creates a new RangeGet request
func NewRangeGetRequest(left, right btree.Bound, limit int) *Message {
	return &Message{
		MsgType: MsgTRangeGet,
		Left:    left,
		Right:   right,
		Limit:   limit,
	}
}

// NewRangeGetResponse creates a new RangeGet response
func NewRangeGetResponse(pairs []btree.Pair, err error) *Message {
	return &Message{
		MsgType: MsgTRangeGet,
		Pairs:   pairs,
		Err:     errString(err),
	}
}

// NewCountRequest creates a new Count request
func NewCountRequest(left, right btree.Bound) *Message {
	return &Message{
		MsgType: MsgTCount,
		Left:    left,
		Right:   right,
	}
}

// NewCountResponse creates a new Count response
func NewCountResponse(count int, err error) *Message {
	return &Message{
		MsgType: MsgTCount,
		Count:   count,
		Err:     errString(err),
	}
}

// NewGetL2FRequest creates a new GetL2F request
func NewGetL2FRequest(tbl string) *Message {
	return &Message{
		MsgType: MsgTGetL2F,
		Table:   tbl,
	}
}

// NewGetL2FResponse creates a new GetL2F response
func NewGetL2FResponse(rec store.Record, ok bool, err error) *Message {
	msg := &Message{
		MsgType: MsgTGetL2F,
		Ok:      ok,
		Err:     errString(err),
	}
	if ok {
		msg.Record = &rec
	}
	return msg
}

// NewReportF2LRequest creates a new ReportF2L request
func NewReportF2LRequest(r leader.Report) *Message {
	return &Message{
		MsgType: MsgTReportF2L,
		Report:  &r,
	}
}

// NewReportF2LResponse creates a new ReportF2L response
func NewReportF2LResponse(err error) *Message {
	return &Message{
		MsgType: MsgTReportF2L,
		Err:     errString(err),
	}
}

// NewSetConfigRequest creates a new SetConfig request
func NewSetConfigRequest(tbl string, config table.ShardConfig) *Message {
	return &Message{
		MsgType: MsgTSetConfig,
		Table:   tbl,
		Config:  &config,
	}
}

// NewSetConfigResponse creates a new SetConfig response
func NewSetConfigResponse(err error) *Message {
	return &Message{
		MsgType: MsgTSetConfig,
		Err:     errString(err),
	}
}

// NewReconcileRequest creates a new Reconcile request
func NewReconcileRequest(tbl string) *Message {
	return &Message{
		MsgType: MsgTReconcile,
		Table:   tbl,
	}
}

// NewReconcileResponse creates a new Reconcile response
func NewReconcileResponse(rec store.Record, changed bool, err error) *Message {
	msg := &Message{
		MsgType: MsgTReconcile,
		Ok:      changed,
		Err:     errString(err),
	}
	if rec.Table != "" {
		msg.Record = &rec
	}
	return msg
}

// NewTablesRequest creates a new Tables request
func NewTablesRequest() *Message {
	return &Message{MsgType: MsgTTables}
}

// NewTablesResponse creates a new Tables response
func NewTablesResponse(tables []string, err error) *Message {
	return &Message{
		MsgType: MsgTTables,
		Tables:  tables,
		Err:     errString(err),
	}
}

// NewInfoRequest creates a new Info request
func NewInfoRequest() *Message {
	return &Message{MsgType: MsgTInfo}
}

// NewInfoResponse creates a new Info response
func NewInfoResponse(info *ShardInfo, err error) *Message {
	return &Message{
		MsgType: MsgTInfo,
		Info:    info,
		Err:     errString(err),
	}
}

// NewErrorResponse creates a new Error response
func NewErrorResponse(err string) *Message {
	return &Message{
		MsgType: MsgTError,
		Err:     err,
	}
}

// --------------------------------------------------------------------------
// Message Type Definition
// --------------------------------------------------------------------------

// MessageType defines the type of message used in RPC communication.
type MessageType uint8

var messageTypeNames = map[MessageType]string{
	MsgTSuccess:   "success",
	MsgTError:     "error",
	MsgTInfo:      "info",
	MsgTRangeGet:  "rangeGet",
	MsgTCount:     "count",
	MsgTGetL2F:    "getL2F",
	MsgTReportF2L: "reportF2L",
	MsgTSetConfig: "setConfig",
	MsgTReconcile: "reconcile",
	MsgTTables:    "tables",
}

// String returns the string representation of a MessageType.
func (t MessageType) String() string {
	if name, ok := messageTypeNames[t]; ok {
		return name
	}
	return "unknown"
}

// MarshalJSON implements the json.Marshaller interface for MessageType.
// This allows MessageType to be serialized as a string in JSON.
func (t MessageType) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

// UnmarshalJSON implements the json.Unmarshaler interface for MessageType.
// This allows MessageType to be deserialized from a string in JSON.
func (t *MessageType) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	for mt, name := range messageTypeNames {
		if name == s {
			*t = mt
			return nil
		}
	}
	return fmt.Errorf("unknown message type: %s", s)
}

// --------------------------------------------------------------------------
// Message Type Constants
// --------------------------------------------------------------------------

const (
	// General message types

	MsgTUnknown MessageType = iota
	MsgTSuccess             // Indicates a successful operation
	MsgTError               // Indicates an error occurred
	MsgTInfo                // Describe a shard

	// Table shard operations

	MsgTRangeGet // Read a bounded key range
	MsgTCount    // Count the pairs of a bounded key range

	// Leader shard operations

	MsgTGetL2F    // Read the L2F record of a table
	MsgTReportF2L // Report the state of a replica
	MsgTSetConfig // Set the shard configuration of a table
	MsgTReconcile // Run one reconciliation round for a table
	MsgTTables    // List the tables known to the leader
)
