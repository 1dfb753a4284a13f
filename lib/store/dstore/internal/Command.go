package internal

import (
	"encoding/binary"
	"fmt"

	"github.com/ValentinKolb/dTab/lib/store"
	"github.com/ValentinKolb/dTab/lib/table"
	"github.com/cockroachdb/errors"
	"github.com/vmihailenco/msgpack/v5"
)

// CommandType defines the possible operations for the state machine.
type CommandType uint8

const (
	CommandTCompareAndSwap CommandType = iota // Replace the L2F of a table if the epoch matches.
	CommandTSetConfig                         // Replace the shard configuration of a table.
	CommandTReport                            // Store the state a replica reported for a table.
)

func (ct CommandType) String() string {
	switch ct {
	case CommandTCompareAndSwap:
		return "CompareAndSwap"
	case CommandTSetConfig:
		return "SetConfig"
	case CommandTReport:
		return "Report"
	default:
		return fmt.Sprintf("Unknown(%d)", ct)
	}
}

// headerSize is Type + ExpectedEpoch + TableLen.
const headerSize = 1 + 8 + 4

// Command represents a command to be executed by the state machine (a single entry in the raft log)
type Command struct {
	Type          CommandType
	Table         string
	ExpectedEpoch uint64
	L2F           table.L2F
	Branches      table.BranchHistory

	Config  *table.ShardConfig // SetConfig
	Server  table.ServerID     // Report
	State   table.F2LState     // Report
	Version table.Version      // Report
}

// payload is the msgpack encoded tail of a serialized command.
type payload struct {
	L2F      table.L2F           `msgpack:"l2f"`
	Branches table.BranchHistory `msgpack:"branches"`
	Config   *table.ShardConfig  `msgpack:"config,omitempty"`
	Server   table.ServerID      `msgpack:"server,omitempty"`
	State    table.F2LState      `msgpack:"state,omitempty"`
	Version  table.Version       `msgpack:"version"`
}

// Serialize serializes a command into a byte array with the format:
// 1 byte for operation type,
// 8 bytes for the expected epoch (big endian),
// 4 bytes for table name length (big endian),
// N bytes for the table name,
// M bytes msgpack payload (l2f, new branches, config or report).
func (command *Command) Serialize() ([]byte, error) {
	body, err := msgpack.Marshal(payload{
		L2F:      command.L2F.Normalize(),
		Branches: command.Branches,
		Config:   command.Config,
		Server:   command.Server,
		State:    command.State,
		Version:  command.Version,
	})
	if err != nil {
		return nil, errors.Wrap(err, "encode command payload")
	}

	result := make([]byte, headerSize+len(command.Table)+len(body))
	result[0] = byte(command.Type)
	binary.BigEndian.PutUint64(result[1:9], command.ExpectedEpoch)
	binary.BigEndian.PutUint32(result[9:13], uint32(len(command.Table)))
	copy(result[headerSize:], command.Table)
	copy(result[headerSize+len(command.Table):], body)
	return result, nil
}

// Deserialize extracts all Command fields from a byte array.
func (command *Command) Deserialize(data []byte) error {
	if len(data) < headerSize {
		return errors.New("data too short for command")
	}

	command.Type = CommandType(data[0])
	command.ExpectedEpoch = binary.BigEndian.Uint64(data[1:9])
	tableLen := int(binary.BigEndian.Uint32(data[9:13]))
	if len(data) < headerSize+tableLen {
		return errors.Newf("data too short for table name of length %d", tableLen)
	}
	command.Table = string(data[headerSize : headerSize+tableLen])

	var p payload
	if err := msgpack.Unmarshal(data[headerSize+tableLen:], &p); err != nil {
		return errors.Wrap(err, "decode command payload")
	}
	command.L2F = p.L2F
	command.Branches = p.Branches
	command.Config = p.Config
	command.Server = p.Server
	command.State = p.State
	command.Version = p.Version
	return nil
}

// CommandResult is the outcome of a command, carried in the Data field of
// the RAFT result.
type CommandResult struct {
	Record  store.Record `msgpack:"record"`
	Swapped bool         `msgpack:"swapped"`
}

// Encode encodes the result with msgpack.
func (r CommandResult) Encode() ([]byte, error) {
	return msgpack.Marshal(r)
}

// DecodeCommandResult decodes the Data field of a successful RAFT result.
func DecodeCommandResult(data []byte) (CommandResult, error) {
	var r CommandResult
	if err := msgpack.Unmarshal(data, &r); err != nil {
		return CommandResult{}, errors.Wrap(err, "decode command result")
	}
	return r, nil
}
