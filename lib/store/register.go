package store

import (
	"io"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/ValentinKolb/dTab/lib/table"
	"github.com/cockroachdb/errors"
	"github.com/puzpuzpuz/xsync/v3"
	"github.com/vmihailenco/msgpack/v5"
)

// Register is the in-memory record set shared by the store implementations.
// Reads are lock free; swaps are serialized by a mutex so the epoch check
// and the write happen atomically.
type Register struct {
	mu      sync.Mutex
	records *xsync.MapOf[string, Record]
	swaps   atomic.Uint64
}

// NewRegister creates an empty register.
func NewRegister() *Register {
	return &Register{records: xsync.NewMapOf[string, Record]()}
}

// Get returns a copy of the record of tbl.
func (r *Register) Get(tbl string) (Record, bool) {
	rec, ok := r.records.Load(tbl)
	if !ok {
		return Record{}, false
	}
	return cloneRecord(rec), true
}

// CompareAndSwap implements the semantics of IStore.CompareAndSwap.
func (r *Register) CompareAndSwap(tbl string, expectedEpoch uint64, l2f table.L2F, newBranches table.BranchHistory) (Record, bool, error) {
	if tbl == "" {
		return Record{}, false, NewError(RetCInvalidOperation, "table name must not be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	cur, _ := r.records.Load(tbl)
	if cur.Epoch != expectedEpoch {
		return cloneRecord(cur), false, nil
	}

	next := cloneRecord(cur)
	next.Table = tbl
	next.Epoch = cur.Epoch + 1
	next.L2F = l2f.Normalize()
	for id, cert := range newBranches {
		next.Branches[id] = cert
	}
	r.records.Store(tbl, next)
	r.swaps.Add(1)
	return cloneRecord(next), true, nil
}

// SetConfig implements the semantics of IStore.SetConfig.
func (r *Register) SetConfig(tbl string, config table.ShardConfig) (Record, error) {
	if tbl == "" {
		return Record{}, NewError(RetCInvalidOperation, "table name must not be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	cur, _ := r.records.Load(tbl)
	next := cloneRecord(cur)
	next.Table = tbl
	cfg := config.Clone()
	cfg.Replicas = cfg.Replicas.Normalize()
	next.Config = &cfg
	r.records.Store(tbl, next)
	return cloneRecord(next), nil
}

// Report implements the semantics of IStore.Report.
func (r *Register) Report(tbl string, server table.ServerID, state table.F2LState, version table.Version) error {
	if tbl == "" || server == "" {
		return NewError(RetCInvalidOperation, "report needs a table and a server")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// records are copied on write since Get reads without the lock
	cur, _ := r.records.Load(tbl)
	next := cloneRecord(cur)
	next.Table = tbl
	next.States[server] = state
	next.Versions[server] = version
	r.records.Store(tbl, next)
	return nil
}

// Tables returns the sorted names of all known tables. A table is known once
// it has an L2F, a config or a report.
func (r *Register) Tables() []string {
	tables := make([]string, 0, r.records.Size())
	r.records.Range(func(name string, _ Record) bool {
		tables = append(tables, name)
		return true
	})
	sort.Strings(tables)
	return tables
}

// Info returns the register statistics for a store of type impl.
func (r *Register) Info(impl string) Info {
	return Info{
		Impl:   impl,
		Tables: r.records.Size(),
		Swaps:  r.swaps.Load(),
	}
}

// --------------------------------------------------------------------------
// Snapshots
// --------------------------------------------------------------------------

type snapshot struct {
	Swaps   uint64   `msgpack:"swaps"`
	Records []Record `msgpack:"records"`
}

// Snapshot is a point-in-time copy of a register. Writes to the register
// after Snapshot returned are not part of it.
type Snapshot struct {
	snap snapshot
}

// Snapshot copies all records, ordered by table name.
func (r *Register) Snapshot() *Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	snap := snapshot{Swaps: r.swaps.Load()}
	for _, name := range r.Tables() {
		rec, _ := r.records.Load(name)
		snap.Records = append(snap.Records, cloneRecord(rec))
	}
	return &Snapshot{snap: snap}
}

// WriteTo encodes the snapshot to w in the format Load reads.
func (s *Snapshot) WriteTo(w io.Writer) error {
	if err := msgpack.NewEncoder(w).Encode(&s.snap); err != nil {
		return errors.Wrap(err, "encode register snapshot")
	}
	return nil
}

// Save writes all records to w, ordered by table name.
func (r *Register) Save(w io.Writer) error {
	return r.Snapshot().WriteTo(w)
}

// Load replaces the content of the register with a snapshot written by Save.
func (r *Register) Load(rd io.Reader) error {
	var snap snapshot
	if err := msgpack.NewDecoder(rd).Decode(&snap); err != nil {
		return errors.Wrap(err, "decode register snapshot")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.records.Clear()
	for _, rec := range snap.Records {
		r.records.Store(rec.Table, cloneRecord(rec))
	}
	r.swaps.Store(snap.Swaps)
	return nil
}

func cloneRecord(rec Record) Record {
	out := Record{
		Table:    rec.Table,
		Epoch:    rec.Epoch,
		L2F:      rec.L2F.Clone(),
		Branches: rec.Branches.Clone(),
		States:   make(map[table.ServerID]table.F2LState, len(rec.States)),
		Versions: make(map[table.ServerID]table.Version, len(rec.Versions)),
	}
	if rec.Config != nil {
		cfg := rec.Config.Clone()
		out.Config = &cfg
	}
	for id, st := range rec.States {
		out.States[id] = st
	}
	for id, v := range rec.Versions {
		out.Versions[id] = v
	}
	return out
}
