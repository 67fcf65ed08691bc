package pool

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"os"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/mattn/go-isatty"

	"robosim/internal/codec"
	"robosim/internal/config"
	"robosim/internal/evo"
	"robosim/internal/filelock"
	"robosim/internal/model"
	"robosim/internal/nn"
	"robosim/internal/storage"
)

var ErrEmptyPool = errors.New("pool is empty")

// Evaluator scores a controller. Lower is better.
type Evaluator interface {
	Evaluate(ctx context.Context, net *nn.Network) (int, error)
}

type EvaluatorFunc func(ctx context.Context, net *nn.Network) (int, error)

func (f EvaluatorFunc) Evaluate(ctx context.Context, net *nn.Network) (int, error) {
	return f(ctx, net)
}

type Config struct {
	Layout           Layout
	MaxSize          int
	EliteSize        int
	MinDiversity     int
	CombineFrequency float64
	Mutations        int
	Amplitude        float64
	CombineMutations int
	CombineAmplitude float64
	Seed             int64

	Verbose     bool
	PoolVerbose bool
	PrintPool   bool
}

func ConfigFrom(c config.Config) Config {
	return Config{
		Layout:           LayoutFromConfig(c.Pool),
		MaxSize:          c.Pool.MaxSize,
		EliteSize:        c.Pool.EliteSize,
		MinDiversity:     c.Pool.MinDiversity,
		CombineFrequency: c.Pool.CombineFrequency,
		Mutations:        c.Pool.Mutations,
		Amplitude:        c.Pool.Amplitude,
		CombineMutations: c.Pool.CombineMutations,
		CombineAmplitude: c.Pool.CombineAmplitude,
		Seed:             c.Pool.Seed,
		Verbose:          c.Output.Verbose,
		PoolVerbose:      c.Output.PoolVerbose,
		PrintPool:        c.Output.PrintPool,
	}
}

// CycleReport describes what one Cycle did.
type CycleReport struct {
	Operation       model.Operation
	Parents         []int
	Performance     int
	Accepted        bool
	Rank            int
	Reloaded        bool
	Committed       bool
	Bottleneck      bool
	NewBest         bool
	PoolSize        int
	BestPerformance int
}

// Coordinator runs the optimize loop of one process against the shared pool.
type Coordinator struct {
	cfg   Config
	eval  Evaluator
	lock  *filelock.Mutex
	store storage.Store
	out   io.Writer
	color bool
	rng   *rand.Rand

	pool  *Pool
	stamp Stamp
	dirty bool

	stop    atomic.Bool
	runID   string
	summary model.RunSummary
	now     func() time.Time
}

// NewCoordinator wires a coordinator. store may be nil to skip history; out
// may be nil to discard progress output.
func NewCoordinator(cfg Config, eval Evaluator, lock *filelock.Mutex, store storage.Store, out io.Writer) (*Coordinator, error) {
	if eval == nil {
		return nil, errors.New("evaluator is required")
	}
	if lock == nil {
		return nil, errors.New("pool lock is required")
	}
	if cfg.MaxSize < 1 {
		return nil, fmt.Errorf("pool max size must be > 0: %d", cfg.MaxSize)
	}
	if cfg.EliteSize < 1 {
		return nil, fmt.Errorf("pool elite size must be > 0: %d", cfg.EliteSize)
	}
	if cfg.Layout.RankingFile == "" || cfg.Layout.NetworkBase == "" || cfg.Layout.BestFile == "" {
		return nil, errors.New("pool layout is incomplete")
	}
	if out == nil {
		out = io.Discard
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	c := &Coordinator{
		cfg:   cfg,
		eval:  eval,
		lock:  lock,
		store: store,
		out:   out,
		color: isTerminal(out),
		rng:   rand.New(rand.NewSource(seed)),
		runID: uuid.NewString(),
		now:   time.Now,
	}
	host, _ := os.Hostname()
	c.summary = model.RunSummary{
		VersionedRecord: storage.CurrentVersion(),
		RunID:           c.runID,
		Host:            host,
		PID:             os.Getpid(),
		StartedAt:       c.now().UTC(),
	}
	return c, nil
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

func (c *Coordinator) RunID() string {
	return c.runID
}

// Pool returns the in-memory mirror. It is only valid between cycles.
func (c *Coordinator) Pool() *Pool {
	return c.pool
}

// Stop asks Run to return before its next cycle. It is safe to call from any
// goroutine.
func (c *Coordinator) Stop() {
	c.stop.Store(true)
}

func (c *Coordinator) Stopped() bool {
	return c.stop.Load()
}

// Init loads the shared pool under a shared lock. An absent or empty pool is
// seeded from the seed network, which the first cycle then commits.
func (c *Coordinator) Init(ctx context.Context) error {
	if err := c.lock.LockShared(); err != nil {
		return fmt.Errorf("acquire shared pool lock: %w", err)
	}
	loaded, loadErr := LoadPool(c.cfg.Layout, c.cfg.MaxSize)
	stamp, statErr := StatRanking(c.cfg.Layout)
	if err := c.lock.UnlockShared(); err != nil {
		return fmt.Errorf("release shared pool lock: %w", err)
	}
	switch {
	case errors.Is(loadErr, ErrNoPool):
		loaded = New(c.cfg.MaxSize)
	case loadErr != nil:
		return loadErr
	}
	if statErr != nil {
		return statErr
	}
	c.pool = loaded
	c.stamp = stamp

	if c.pool.Len() > 0 {
		return nil
	}
	if c.cfg.Layout.SeedFile == "" {
		return fmt.Errorf("%w and no seed network is configured", ErrEmptyPool)
	}
	seed, err := codec.ReadFile(c.cfg.Layout.SeedFile)
	if err != nil {
		return fmt.Errorf("load seed network: %w", err)
	}
	perf, err := c.eval.Evaluate(ctx, seed)
	if err != nil {
		return fmt.Errorf("evaluate seed network: %w", err)
	}
	c.pool.Append(Entry{Network: seed, Performance: perf})
	c.dirty = true
	if c.cfg.Verbose {
		fmt.Fprintf(c.out, "seeded empty pool with %s (performance %d)\n", c.cfg.Layout.SeedFile, perf)
	}
	return c.record(ctx, CycleReport{
		Operation:       model.OperationSeed,
		Performance:     perf,
		Accepted:        true,
		Rank:            0,
		PoolSize:        c.pool.Len(),
		BestPerformance: perf,
	})
}

// Run repeats Cycle until Stop is called or ctx is done. Both are checked
// only between cycles, so an evaluation in flight always completes.
func (c *Coordinator) Run(ctx context.Context) error {
	for !c.stop.Load() {
		if ctx.Err() != nil {
			return nil
		}
		if _, err := c.Cycle(ctx); err != nil {
			if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
				return nil
			}
			return err
		}
	}
	return nil
}

// Cycle breeds one candidate outside the lock, scores it, and merges it into
// the shared pool under the upgradable lock.
func (c *Coordinator) Cycle(ctx context.Context) (CycleReport, error) {
	if c.pool == nil || c.pool.Len() == 0 {
		return CycleReport{}, ErrEmptyPool
	}
	report := CycleReport{Rank: -1}

	var (
		op     evo.Operator
		parent Entry
	)
	size := c.pool.Len()
	if c.rng.Float64() < c.cfg.CombineFrequency {
		first := c.rng.Intn(min(c.cfg.EliteSize, size))
		second := c.rng.Intn(size)
		report.Operation = model.OperationCombine
		report.Parents = []int{first, second}
		parent = c.pool.Entry(first)
		op = &evo.CombineWith{
			Other: c.pool.Entry(second).Network,
			Then:  &evo.MutateWeights{Rand: c.rng, Count: c.cfg.CombineMutations, Amplitude: c.cfg.CombineAmplitude},
		}
		if c.cfg.Verbose {
			fmt.Fprintf(c.out, "combining network %d with %d\n", first, second)
		}
	} else {
		idx := c.rng.Intn(size)
		report.Operation = model.OperationMutate
		report.Parents = []int{idx}
		parent = c.pool.Entry(idx)
		op = &evo.MutateWeights{Rand: c.rng, Count: c.cfg.Mutations, Amplitude: c.cfg.Amplitude}
		if c.cfg.Verbose {
			fmt.Fprintf(c.out, "mutating network %d\n", idx)
		}
	}

	candidate, err := op.Apply(ctx, parent.Network)
	if err != nil {
		return report, fmt.Errorf("%s: %w", op.Name(), err)
	}
	if c.cfg.Layout.CheckpointFile != "" {
		if err := codec.WriteFile(c.cfg.Layout.CheckpointFile, candidate); err != nil {
			return report, fmt.Errorf("write candidate checkpoint: %w", err)
		}
	}
	perf, err := c.eval.Evaluate(ctx, candidate)
	if err != nil {
		return report, fmt.Errorf("evaluate candidate: %w", err)
	}
	report.Performance = perf
	if c.cfg.Verbose {
		fmt.Fprintf(c.out, "candidate performance %d\n", perf)
	}

	if err := c.lock.LockUpgradable(); err != nil {
		return report, fmt.Errorf("acquire upgradable pool lock: %w", err)
	}
	if err := c.merge(&report, Entry{Network: candidate, Performance: perf}, parent); err != nil {
		return report, err
	}

	if best, ok := c.pool.Best(); ok {
		report.BestPerformance = best.Performance
	}
	report.PoolSize = c.pool.Len()
	// Insert and Replace only move an entry ahead of strictly worse ones.
	report.NewBest = report.Accepted && report.Rank == 0
	c.announce(report, parent.Performance)
	if c.cfg.PrintPool {
		c.PrintPool()
	}
	return report, c.record(ctx, report)
}

// merge runs with the upgradable lock held and releases it.
func (c *Coordinator) merge(report *CycleReport, candidate, parent Entry) error {
	stamp, err := StatRanking(c.cfg.Layout)
	if err != nil {
		return errors.Join(err, c.lock.UnlockUpgradable())
	}
	if !stamp.Equal(c.stamp) {
		if c.cfg.Verbose {
			fmt.Fprintln(c.out, "refreshing pool from disk")
		}
		reloaded, err := LoadPool(c.cfg.Layout, c.cfg.MaxSize)
		if err != nil {
			return errors.Join(err, c.lock.UnlockUpgradable())
		}
		c.pool = reloaded
		c.stamp = stamp
		c.dirty = false
		report.Reloaded = true
	}

	switch report.Operation {
	case model.OperationCombine:
		report.Rank, report.Accepted = c.pool.Insert(candidate)
	default:
		if candidate.Performance >= parent.Performance {
			break
		}
		idx := report.Parents[0]
		if report.Reloaded {
			idx = c.pool.Index(parent.Performance)
		}
		if idx >= 0 {
			report.Rank, report.Accepted = c.pool.Replace(idx, candidate)
		} else {
			// The parent was dropped by another process; keep the
			// improvement as a new entry instead of overwriting theirs.
			report.Rank, report.Accepted = c.pool.Append(candidate), true
		}
	}
	if report.Accepted && c.pool.Trim() && report.Rank >= c.pool.Len() {
		report.Accepted = false
	}
	if !report.Accepted {
		report.Rank = -1
	}

	if !c.dirty && !report.Accepted {
		return c.lock.UnlockUpgradable()
	}

	if err := c.lock.UpgradeToExclusive(); err != nil {
		return errors.Join(fmt.Errorf("upgrade pool lock: %w", err), c.lock.UnlockUpgradable())
	}
	report.Bottleneck = c.pool.Bottlenecked(c.cfg.MinDiversity)
	if report.Bottleneck {
		fmt.Fprintln(c.out, "low performance diversity, persisting bottleneck")
	}
	saveErr := SavePool(c.cfg.Layout, c.pool, report.Bottleneck)
	stamp, statErr := StatRanking(c.cfg.Layout)
	if err := errors.Join(saveErr, statErr, c.lock.Unlock()); err != nil {
		return fmt.Errorf("commit pool: %w", err)
	}
	c.stamp = stamp
	c.dirty = false
	report.Committed = true
	return nil
}

func (c *Coordinator) announce(report CycleReport, parentPerf int) {
	if report.NewBest {
		msg := fmt.Sprintf("new best network with performance %d", report.Performance)
		if c.color {
			msg = "\033[1;31m" + msg + "\033[0m"
		}
		fmt.Fprintln(c.out, msg)
		return
	}
	if !report.Accepted || !c.cfg.PoolVerbose {
		return
	}
	if report.Operation == model.OperationCombine {
		fmt.Fprintf(c.out, "pool network found at rank %d with performance %d\n", report.Rank, report.Performance)
		return
	}
	fmt.Fprintf(c.out, "pool network improved from %d to %d (rank %d)\n", parentPerf, report.Performance, report.Rank)
}

// PrintPool writes the current ranking, one performance per line.
func (c *Coordinator) PrintPool() {
	for _, perf := range c.pool.Performances() {
		fmt.Fprintln(c.out, perf)
	}
}

func (c *Coordinator) record(ctx context.Context, report CycleReport) error {
	c.summary.Cycles++
	c.summary.UpdatedAt = c.now().UTC()
	if report.Accepted {
		c.summary.Accepted++
	}
	if report.Reloaded {
		c.summary.Reloads++
	}
	if report.Bottleneck {
		c.summary.Bottlenecks++
	}
	c.summary.BestPerformance = report.BestPerformance
	if c.store == nil {
		return nil
	}

	record := model.CandidateRecord{
		VersionedRecord: storage.CurrentVersion(),
		ID:              uuid.NewString(),
		RunID:           c.runID,
		Operation:       report.Operation,
		ParentRanks:     append([]int(nil), report.Parents...),
		Performance:     report.Performance,
		Accepted:        report.Accepted,
		Rank:            report.Rank,
		Reloaded:        report.Reloaded,
		Bottleneck:      report.Bottleneck,
		PoolSize:        report.PoolSize,
		BestPerformance: report.BestPerformance,
		CreatedAt:       c.summary.UpdatedAt,
	}
	if err := c.store.SaveCandidate(ctx, record); err != nil {
		return fmt.Errorf("record candidate: %w", err)
	}
	if err := c.store.SaveRunSummary(ctx, c.summary); err != nil {
		return fmt.Errorf("record run summary: %w", err)
	}
	return nil
}
