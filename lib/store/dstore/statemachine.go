package dstore

import (
	"fmt"
	"io"
	"time"

	"github.com/ValentinKolb/dTab/lib/store"
	"github.com/ValentinKolb/dTab/lib/store/dstore/internal"
	"github.com/cockroachdb/errors"
	sm "github.com/lni/dragonboat/v4/statemachine"
)

// --------------------------------------------------------------------------
// State Machine Implementation
// --------------------------------------------------------------------------

// L2FStateMachine is a state machine implementation for Dragonboat RAFT
type L2FStateMachine struct {
	replicaID uint64
	shardID   uint64
	register  *store.Register
}

// CreateStateMachineFactory returns a function that can be used by dragonboat to create a new state machine for a node host
func CreateStateMachineFactory() func(shardID uint64, replicaID uint64) sm.IConcurrentStateMachine {
	return func(shardID uint64, replicaID uint64) sm.IConcurrentStateMachine {
		return &L2FStateMachine{
			replicaID: replicaID,
			shardID:   shardID,
			register:  store.NewRegister(),
		}
	}
}

// Lookup handles read-only queries by mapping each Query operation to the corresponding Register method.
func (fsm *L2FStateMachine) Lookup(itf interface{}) (interface{}, error) {
	q, ok := itf.(internal.Query)
	if !ok {
		return nil, store.NewError(store.RetCInternalError, fmt.Sprintf("invalid Query type: %T", itf))
	}

	switch q.Type {
	case internal.QueryTGet:
		rec, ok := fsm.register.Get(q.Table)
		return internal.QueryResult{Ok: ok, Record: rec}, nil
	case internal.QueryTTables:
		return fsm.register.Tables(), nil
	case internal.QueryTGetInfo:
		return fsm.register.Info("dstore"), nil
	default:
		return nil, store.NewError(store.RetCInvalidOperation, fmt.Sprintf("unknown Query operation: %d", q.Type))
	}
}

// Update applies swap, config and report commands to the register.
// All write operations are serialized into []byte and are accessible via the entries struct
func (fsm *L2FStateMachine) Update(entries []sm.Entry) ([]sm.Entry, error) {
	if len(entries) == 0 {
		return entries, nil
	}

	start := time.Now()

	for idx, e := range entries {
		entries[idx].Result = fsm.apply(e.Cmd)
	}

	if elapsed := time.Since(start); elapsed > time.Millisecond {
		log.Infof("State machine took long to update. Batch updated %d entries, took %.2fms", len(entries), float64(elapsed)/float64(time.Millisecond))
	}
	return entries, nil
}

func (fsm *L2FStateMachine) apply(data []byte) sm.Result {
	if len(data) == 0 {
		return sm.Result{Value: uint64(store.RetCInvalidOperation), Data: []byte("empty command ignored")}
	}

	cmd := internal.Command{}
	if err := cmd.Deserialize(data); err != nil {
		return sm.Result{Value: uint64(store.RetCInternalError), Data: []byte(fmt.Sprintf("failed to deserialize command: %v", err))}
	}

	switch cmd.Type {
	case internal.CommandTCompareAndSwap:
		rec, swapped, err := fsm.register.CompareAndSwap(cmd.Table, cmd.ExpectedEpoch, cmd.L2F, cmd.Branches)
		if err != nil {
			return errorResult(err)
		}
		return successResult(internal.CommandResult{Record: rec, Swapped: swapped})
	case internal.CommandTSetConfig:
		if cmd.Config == nil {
			return sm.Result{Value: uint64(store.RetCInvalidOperation), Data: []byte("set config without a config")}
		}
		rec, err := fsm.register.SetConfig(cmd.Table, *cmd.Config)
		if err != nil {
			return errorResult(err)
		}
		return successResult(internal.CommandResult{Record: rec})
	case internal.CommandTReport:
		if err := fsm.register.Report(cmd.Table, cmd.Server, cmd.State, cmd.Version); err != nil {
			return errorResult(err)
		}
		return successResult(internal.CommandResult{})
	default:
		return sm.Result{
			Value: uint64(store.RetCInvalidOperation),
			Data:  []byte(fmt.Sprintf("unknown Command operation: %s", cmd.Type)),
		}
	}
}

func errorResult(err error) sm.Result {
	code := store.RetCInternalError
	var se *store.Error
	if errors.As(err, &se) {
		code = se.Code
	}
	return sm.Result{Value: uint64(code), Data: []byte(err.Error())}
}

func successResult(res internal.CommandResult) sm.Result {
	out, err := res.Encode()
	if err != nil {
		return sm.Result{Value: uint64(store.RetCInternalError), Data: []byte(err.Error())}
	}
	return sm.Result{Value: uint64(store.RetCSuccess), Data: out}
}

// PrepareSnapshot copies the register. Dragonboat calls it while no update
// is applied, so the copy matches the snapshot index.
func (fsm *L2FStateMachine) PrepareSnapshot() (interface{}, error) {
	return fsm.register.Snapshot(), nil
}

// SaveSnapshot writes the copy taken by PrepareSnapshot to the writer.
// Updates applied in the meantime are not part of it.
func (fsm *L2FStateMachine) SaveSnapshot(ctx interface{}, writer io.Writer, _ sm.ISnapshotFileCollection, _ <-chan struct{}) error {
	snap, ok := ctx.(*store.Snapshot)
	if !ok {
		return store.NewError(store.RetCInternalError, fmt.Sprintf("invalid snapshot context: %T", ctx))
	}
	return snap.WriteTo(writer)
}

// RecoverFromSnapshot replaces the register with the snapshot content.
func (fsm *L2FStateMachine) RecoverFromSnapshot(r io.Reader, _ []sm.SnapshotFile, _ <-chan struct{}) error {
	return fsm.register.Load(r)
}

// Close performs any necessary cleanup.
func (fsm *L2FStateMachine) Close() error {
	return nil
}
