package leader

import (
	"context"
	"sync"
	"time"

	"github.com/ValentinKolb/dTab/lib/store"
	"github.com/ValentinKolb/dTab/lib/table"
	"github.com/ValentinKolb/dTab/lib/util"
	vm "github.com/VictoriaMetrics/metrics"
	"github.com/cockroachdb/errors"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/puzpuzpuz/xsync/v3"
)

var (
	log = logger.GetLogger("leader")

	roundsTotal    = vm.GetOrCreateCounter("dtab_reconcile_rounds_total")
	conflictsTotal = vm.GetOrCreateCounter("dtab_reconcile_conflicts_total")
	reportsTotal   = vm.GetOrCreateCounter("dtab_reports_total")
)

var (
	// ErrStaleL2F is returned by ReconcileOnce when another writer changed
	// the L2F between read and swap. The next round recomputes.
	ErrStaleL2F = errors.New("l2f changed concurrently")
	// ErrNoConfig is returned when a table has no shard configuration.
	ErrNoConfig = errors.New("table has no shard configuration")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("leader is closed")
)

// DefaultInterval is the reconciliation period used when Options.Interval is zero.
const DefaultInterval = time.Second

// Report is the state a replica reports for one table.
type Report struct {
	Table   string         `json:"table" msgpack:"table"`
	Server  table.ServerID `json:"server" msgpack:"server"`
	State   table.F2LState `json:"state" msgpack:"state"`
	Version table.Version  `json:"version" msgpack:"version"`
}

// Options configure a Leader.
type Options struct {
	// Interval between two reconciliation rounds of Run.
	Interval time.Duration
	// MakeBranch mints branches for new primaries (nil: table.DeterministicBranchMaker).
	MakeBranch table.BranchMaker
	// IsLeader reports whether this node runs the periodic rounds of Run
	// (nil: always). Nodes sharing a replicated store set it so only one of
	// them reconciles on the ticker.
	IsLeader func() bool
}

// Leader drives the L2F of every configured table towards its shard
// configuration using the reports of the replicas. Config and reports are
// kept in the store, so all leaders sharing a store see the same input.
type Leader struct {
	store   store.IStore
	opts    Options
	locks   *xsync.MapOf[string, *sync.Mutex]
	reports *util.MPSCQueue[Report]

	closeOnce sync.Once
	stop      chan struct{}
}

// New creates a leader that keeps its decisions in s.
func New(s store.IStore, opts Options) *Leader {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	return &Leader{
		store:   s,
		opts:    opts,
		locks:   xsync.NewMapOf[string, *sync.Mutex](),
		reports: util.NewMPSCQueue[Report](),
		stop:    make(chan struct{}),
	}
}

// Store returns the register the leader writes to.
func (l *Leader) Store() store.IStore { return l.store }

// lock serializes the local rounds of one table.
func (l *Leader) lock(name string) *sync.Mutex {
	mu, _ := l.locks.LoadOrCompute(name, func() *sync.Mutex { return &sync.Mutex{} })
	return mu
}

// --------------------------------------------------------------------------
// Inputs
// --------------------------------------------------------------------------

// Report queues a replica report. It never blocks; the report is written to
// the store by Run.
func (l *Leader) Report(r Report) error {
	if r.Table == "" || r.Server == "" {
		return errors.New("report needs a table and a server")
	}
	if !l.reports.Push(r) {
		return ErrClosed
	}
	return nil
}

func (l *Leader) apply(r Report) error {
	if err := l.store.Report(r.Table, r.Server, r.State, r.Version); err != nil {
		return errors.Wrapf(err, "table %s: store report of %s", r.Table, r.Server)
	}
	reportsTotal.Inc()
	return nil
}

// SetConfig sets the desired replica placement of a table.
func (l *Leader) SetConfig(name string, config table.ShardConfig) error {
	if name == "" {
		return errors.New("table name must not be empty")
	}
	config.Replicas = config.Replicas.Normalize()
	if len(config.Replicas) == 0 {
		return errors.Newf("table %s: shard configuration needs at least one replica", name)
	}
	if config.PrimaryReplica != "" && !config.Replicas.Contains(config.PrimaryReplica) {
		return errors.Newf("table %s: primary replica %s is not a replica", name, config.PrimaryReplica)
	}

	if _, err := l.store.SetConfig(name, config); err != nil {
		return errors.Wrapf(err, "table %s: store config", name)
	}
	log.Infof("table %s: config set to replicas=%s primary=%q", name, config.Replicas, config.PrimaryReplica)
	return nil
}

// Tables returns the sorted names of all configured tables.
func (l *Leader) Tables() ([]string, error) {
	all, err := l.store.Tables()
	if err != nil {
		return nil, errors.Wrap(err, "list tables")
	}
	var names []string
	for _, name := range all {
		rec, ok, err := l.store.Get(name)
		if err != nil {
			return nil, errors.Wrapf(err, "table %s: read record", name)
		}
		if ok && rec.Config != nil {
			names = append(names, name)
		}
	}
	return names, nil
}

// --------------------------------------------------------------------------
// Reconciliation
// --------------------------------------------------------------------------

// ReconcileOnce runs one reconciliation round for a table. It returns the
// record after the round and whether the L2F changed. If another writer won
// the swap, the current record and ErrStaleL2F are returned.
func (l *Leader) ReconcileOnce(ctx context.Context, name string) (store.Record, bool, error) {
	if err := ctx.Err(); err != nil {
		return store.Record{}, false, err
	}

	mu := l.lock(name)
	mu.Lock()
	defer mu.Unlock()

	// config, reports and l2f come from one read of the record
	rec, _, err := l.store.Get(name)
	if err != nil {
		return store.Record{}, false, errors.Wrapf(err, "table %s: read record", name)
	}
	if rec.Config == nil {
		return store.Record{}, false, errors.Wrapf(ErrNoConfig, "table %s", name)
	}
	old := rec.L2F
	if !rec.HasL2F() {
		old = table.InitialL2F(*rec.Config)
	}

	in := table.Input{
		Region:     table.Region{Table: name},
		Old:        old,
		Config:     *rec.Config,
		States:     rec.States,
		Versions:   rec.Versions,
		History:    rec.Branches,
		MakeBranch: l.opts.MakeBranch,
	}
	next := table.CalculateL2F(in)
	roundsTotal.Inc()
	if rec.HasL2F() && next.Equal(old) {
		return rec, false, nil
	}

	// Swap against the epoch we read
	minted := MintedBranches(in, next)
	out, swapped, err := l.store.CompareAndSwap(name, rec.Epoch, next, minted)
	if err != nil {
		return store.Record{}, false, errors.Wrapf(err, "table %s: swap l2f", name)
	}
	if !swapped {
		conflictsTotal.Inc()
		log.Warningf("table %s: l2f epoch %d is stale (now %d), retrying next round", name, rec.Epoch, out.Epoch)
		return out, false, ErrStaleL2F
	}
	log.Infof("table %s: epoch %d -> %d: %s", name, rec.Epoch, out.Epoch, out.L2F)
	return out, true, nil
}

// MintedBranches returns the birth certificate of the branch next introduces,
// if any. The branch forks off the old branch at the position the new primary
// had reached on it.
func MintedBranches(in table.Input, next table.L2F) table.BranchHistory {
	if next.Branch == in.Old.Branch || next.Branch.IsNil() || next.Primary == nil {
		return nil
	}
	if _, known := in.History[next.Branch]; known {
		return nil
	}
	ts := in.History.Project(in.Versions[next.Primary.Server], in.Old.Branch)
	return table.BranchHistory{next.Branch: {
		Region:           in.Region,
		Origin:           table.Version{Branch: in.Old.Branch, Timestamp: ts},
		InitialTimestamp: ts,
	}}
}

func (l *Leader) reconcileAll(ctx context.Context) {
	if l.opts.IsLeader != nil && !l.opts.IsLeader() {
		return
	}
	names, err := l.Tables()
	if err != nil {
		log.Errorf("reconcile: %v", err)
		return
	}
	for _, name := range names {
		if _, _, err := l.ReconcileOnce(ctx, name); err != nil && !errors.Is(err, ErrStaleL2F) {
			log.Errorf("table %s: reconcile failed: %v", name, err)
		}
	}
}

// --------------------------------------------------------------------------
// Loop
// --------------------------------------------------------------------------

// Run applies reports as they arrive and reconciles every configured table
// once per interval. It returns when ctx is done or the leader is closed.
func (l *Leader) Run(ctx context.Context) error {
	ticker := time.NewTicker(l.opts.Interval)
	defer ticker.Stop()

	recv := l.reports.Recv()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.stop:
			return nil
		case r, ok := <-recv:
			if !ok {
				return nil
			}
			if err := l.apply(r); err != nil {
				log.Errorf("%v", err)
			}
		case <-ticker.C:
			l.reconcileAll(ctx)
		}
	}
}

// Close stops Run and rejects further reports. Reports Run did not take yet
// are dropped. It is safe to call Close more than once.
func (l *Leader) Close() error {
	l.closeOnce.Do(func() {
		close(l.stop)
		l.reports.Stop()
	})
	return nil
}
