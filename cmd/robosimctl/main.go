package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"

	"robosim/internal/arena"
	"robosim/internal/codec"
	"robosim/internal/config"
	"robosim/internal/evo"
	"robosim/internal/filelock"
	"robosim/internal/genesis"
	"robosim/internal/nn"
	"robosim/internal/pool"
	"robosim/internal/storage"
)

func main() {
	if err := run(context.Background(), os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return usageError("missing command")
	}

	switch args[0] {
	case "optimize":
		return runOptimize(ctx, args[1:])
	case "init":
		return runInit(ctx, args[1:])
	case "eval":
		return runEval(ctx, args[1:])
	case "compute":
		return runCompute(ctx, args[1:])
	case "mutate":
		return runMutate(ctx, args[1:])
	case "combine":
		return runCombine(ctx, args[1:])
	case "genesis":
		return runGenesis(ctx, args[1:])
	case "status":
		return runStatus(ctx, args[1:])
	case "history":
		return runHistory(ctx, args[1:])
	default:
		return usageError(fmt.Sprintf("unknown command: %s", args[0]))
	}
}

func runOptimize(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("optimize", flag.ContinueOnError)
	common := bindCommonFlags(fs)
	cycles := fs.Int("cycles", 0, "number of cycles to run (0 runs until interrupted)")
	maxPool := fs.Int("max-pool", 0, "maximum pool size (overrides config)")
	seed := fs.Int64("seed", 0, "rng seed for parent selection and mutation (overrides config)")
	workers := fs.Int("workers", 0, "concurrent trials per evaluation (overrides config)")
	poolVerbose := fs.Bool("pool-verbose", false, "print every accepted pool change")
	printPool := fs.Bool("print-pool", false, "print the ranking after every cycle")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *cycles < 0 {
		return errors.New("cycles must be >= 0")
	}
	cfg, set, err := common.load(fs)
	if err != nil {
		return err
	}
	if set["max-pool"] {
		cfg.Pool.MaxSize = *maxPool
	}
	if set["seed"] {
		cfg.Pool.Seed = *seed
	}
	if set["workers"] {
		cfg.Arena.Workers = *workers
	}
	if set["pool-verbose"] {
		cfg.Output.PoolVerbose = *poolVerbose
	}
	if set["print-pool"] {
		cfg.Output.PrintPool = *printPool
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	battery, err := arena.NewBattery(cfg.Arena)
	if err != nil {
		return err
	}
	lock, err := filelock.Open(cfg.Lock.Name, cfg.Lock.Dir)
	if err != nil {
		return err
	}
	defer func() {
		_ = lock.Close()
	}()
	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		_ = storage.CloseIfSupported(store)
	}()

	coord, err := pool.NewCoordinator(pool.ConfigFrom(cfg), battery, lock, store, os.Stdout)
	if err != nil {
		return err
	}
	if err := coord.Init(ctx); err != nil {
		return err
	}

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, os.Interrupt, syscall.SIGTERM)
	defer func() {
		signal.Stop(signals)
		close(signals)
	}()
	go func() {
		if _, ok := <-signals; ok {
			fmt.Println("stopping after the current cycle")
			coord.Stop()
		}
	}()

	if *cycles == 0 {
		if err := coord.Run(ctx); err != nil {
			return err
		}
	} else {
		for i := 0; i < *cycles && !coord.Stopped(); i++ {
			if _, err := coord.Cycle(ctx); err != nil {
				return err
			}
		}
	}

	summary := pool.Summarize(coord.Pool(), cfg.Pool.MinDiversity)
	fmt.Printf("optimize run_id=%s pool_size=%d best=%d worst=%d\n", coord.RunID(), summary.Size, summary.Best, summary.Worst)
	return nil
}

func runInit(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("init", flag.ContinueOnError)
	common := bindCommonFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	cfg, _, err := common.load(fs)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if cfg.Pool.Dir != "" {
		if err := os.MkdirAll(cfg.Pool.Dir, 0o755); err != nil {
			return err
		}
	}
	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		_ = storage.CloseIfSupported(store)
	}()

	fmt.Printf("initialized pool_dir=%s store=%s\n", cfg.Pool.Dir, cfg.Store.Kind)
	return nil
}

func runEval(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("eval", flag.ContinueOnError)
	common := bindCommonFlags(fs)
	workers := fs.Int("workers", 0, "concurrent trials (overrides config)")
	showTrials := fs.Bool("trials", false, "print the result of every trial")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("eval requires exactly one network file")
	}
	cfg, set, err := common.load(fs)
	if err != nil {
		return err
	}
	if set["workers"] {
		cfg.Arena.Workers = *workers
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	net, err := codec.ReadFile(fs.Arg(0))
	if err != nil {
		return err
	}
	battery, err := arena.NewBattery(cfg.Arena)
	if err != nil {
		return err
	}
	started := time.Now()
	res, err := battery.Run(ctx, net)
	if err != nil {
		return err
	}
	if *showTrials {
		for _, tr := range res.Trials {
			fmt.Printf("trial=%s steps=%d finished=%t\n", tr.Name, tr.Steps, tr.Finished)
		}
	}
	fmt.Printf("performance=%d trials=%d elapsed=%s\n", res.Total, len(res.Trials), time.Since(started).Round(time.Millisecond))
	return nil
}

func runCompute(_ context.Context, args []string) error {
	fs := flag.NewFlagSet("compute", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() < 1 {
		return errors.New("compute requires a network file followed by input values")
	}
	net, err := codec.ReadFile(fs.Arg(0))
	if err != nil {
		return err
	}
	inputs, err := parseFloats(fs.Args()[1:])
	if err != nil {
		return err
	}
	out, err := net.Compute(inputs)
	if err != nil {
		return err
	}
	parts := make([]string, len(out))
	for i, v := range out {
		parts[i] = fmt.Sprintf("%g", v)
	}
	fmt.Println(strings.Join(parts, " "))
	return nil
}

func runMutate(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("mutate", flag.ContinueOnError)
	count := fs.Int("count", 3, "number of weights to perturb")
	amplitude := fs.Float64("amplitude", 0.5, "maximum absolute perturbation")
	seed := fs.Int64("seed", 0, "rng seed (0 picks one from the clock)")
	outPath := fs.String("out", "", "output network file (stdout when empty)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("mutate requires exactly one network file")
	}
	if *count < 0 || *amplitude < 0 {
		return errors.New("count and amplitude must be >= 0")
	}
	parent, err := codec.ReadFile(fs.Arg(0))
	if err != nil {
		return err
	}
	op := &evo.MutateWeights{Rand: rand.New(rand.NewSource(seedOrClock(*seed))), Count: *count, Amplitude: *amplitude}
	child, err := op.Apply(ctx, parent)
	if err != nil {
		return err
	}
	return emitNetwork(*outPath, child)
}

func runCombine(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("combine", flag.ContinueOnError)
	outPath := fs.String("out", "", "output network file (stdout when empty)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 2 {
		return errors.New("combine requires exactly two network files")
	}
	a, err := codec.ReadFile(fs.Arg(0))
	if err != nil {
		return err
	}
	b, err := codec.ReadFile(fs.Arg(1))
	if err != nil {
		return err
	}
	child, err := (&evo.CombineWith{Other: b}).Apply(ctx, a)
	if err != nil {
		return err
	}
	return emitNetwork(*outPath, child)
}

func runGenesis(_ context.Context, args []string) error {
	fs := flag.NewFlagSet("genesis", flag.ContinueOnError)
	common := bindCommonFlags(fs)
	hidden := fs.String("hidden", "8", "comma separated hidden layer widths")
	scale := fs.Float64("scale", 1, "initial weights and baselines are drawn from [-scale, scale]")
	seed := fs.Int64("seed", 0, "rng seed (0 picks one from the clock)")
	outPath := fs.String("out", "", "output network file (defaults to the pool seed file)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	cfg, _, err := common.load(fs)
	if err != nil {
		return err
	}
	widths, err := parseInts(*hidden)
	if err != nil {
		return err
	}
	net, err := genesis.Controller(rand.New(rand.NewSource(seedOrClock(*seed))), widths, *scale)
	if err != nil {
		return err
	}

	path := *outPath
	if path == "" {
		path = cfg.Pool.Resolve(cfg.Pool.SeedFile)
		if cfg.Pool.Dir != "" {
			if err := os.MkdirAll(cfg.Pool.Dir, 0o755); err != nil {
				return err
			}
		}
	}
	return emitNetwork(path, net)
}

func runStatus(_ context.Context, args []string) error {
	fs := flag.NewFlagSet("status", flag.ContinueOnError)
	common := bindCommonFlags(fs)
	showRanking := fs.Bool("ranking", false, "print every performance in rank order")
	if err := fs.Parse(args); err != nil {
		return err
	}
	cfg, _, err := common.load(fs)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	layout := pool.LayoutFromConfig(cfg.Pool)

	lock, err := filelock.Open(cfg.Lock.Name, cfg.Lock.Dir)
	if err != nil {
		return err
	}
	defer func() {
		_ = lock.Close()
	}()
	if err := lock.LockShared(); err != nil {
		return err
	}
	p, loadErr := pool.LoadPool(layout, cfg.Pool.MaxSize)
	stamp, statErr := pool.StatRanking(layout)
	if err := lock.UnlockShared(); err != nil {
		return err
	}
	if errors.Is(loadErr, pool.ErrNoPool) {
		fmt.Printf("no pool at %s\n", layout.RankingFile)
		return nil
	}
	if err := errors.Join(loadErr, statErr); err != nil {
		return err
	}

	s := pool.Summarize(p, cfg.Pool.MinDiversity)
	fmt.Printf("pool=%s size=%d/%d best=%s worst=%s spread=%s mean=%.1f stddev=%.1f bottleneck=%t updated=%s\n",
		layout.RankingFile,
		s.Size,
		s.MaxSize,
		humanize.Comma(int64(s.Best)),
		humanize.Comma(int64(s.Worst)),
		humanize.Comma(int64(s.Spread)),
		s.Mean,
		s.StdDev,
		s.Bottlenecked,
		humanize.Time(stamp.ModTime),
	)
	if *showRanking {
		for i, perf := range p.Performances() {
			fmt.Printf("rank=%d performance=%d\n", i, perf)
		}
	}
	return nil
}

func runHistory(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("history", flag.ContinueOnError)
	common := bindCommonFlags(fs)
	runID := fs.String("run-id", "", "list the candidates of one run instead of the runs")
	limit := fs.Int("limit", 20, "max entries to list")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *limit <= 0 {
		return errors.New("limit must be > 0")
	}
	cfg, _, err := common.load(fs)
	if err != nil {
		return err
	}
	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		_ = storage.CloseIfSupported(store)
	}()

	if *runID != "" {
		records, err := store.ListCandidates(ctx, *runID, *limit)
		if err != nil {
			return err
		}
		if len(records) == 0 {
			fmt.Printf("no candidates for run %s\n", *runID)
			return nil
		}
		for _, r := range records {
			fmt.Printf("id=%s op=%s parents=%v performance=%d accepted=%t rank=%d reloaded=%t bottleneck=%t pool=%d best=%d at=%s\n",
				r.ID, r.Operation, r.ParentRanks, r.Performance, r.Accepted, r.Rank, r.Reloaded, r.Bottleneck,
				r.PoolSize, r.BestPerformance, humanize.Time(r.CreatedAt))
		}
		return nil
	}

	runs, err := store.ListRunSummaries(ctx)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Println("no runs found")
		return nil
	}
	if len(runs) > *limit {
		runs = runs[len(runs)-*limit:]
	}
	for _, r := range runs {
		fmt.Printf("run_id=%s host=%s pid=%d started=%s cycles=%s accepted=%s reloads=%d bottlenecks=%d best=%s updated=%s\n",
			r.RunID, r.Host, r.PID, humanize.Time(r.StartedAt),
			humanize.Comma(int64(r.Cycles)), humanize.Comma(int64(r.Accepted)),
			r.Reloads, r.Bottlenecks, humanize.Comma(int64(r.BestPerformance)), humanize.Time(r.UpdatedAt))
	}
	return nil
}

func openStore(ctx context.Context, cfg config.Config) (storage.Store, error) {
	store, err := storage.NewStore(cfg.Store.Kind, cfg.Store.Path)
	if err != nil {
		return nil, err
	}
	if err := store.Init(ctx); err != nil {
		_ = storage.CloseIfSupported(store)
		return nil, err
	}
	return store, nil
}

// emitNetwork writes net to path, or to stdout when path is empty.
func emitNetwork(path string, net *nn.Network) error {
	if path == "" {
		return codec.Write(os.Stdout, net)
	}
	if err := codec.WriteFile(path, net); err != nil {
		return err
	}
	fmt.Printf("wrote %s nodes=%d weights=%d\n", path, net.NumNodes(), net.NumWeights())
	return nil
}

func seedOrClock(seed int64) int64 {
	if seed != 0 {
		return seed
	}
	return time.Now().UnixNano()
}

func usageError(msg string) error {
	return fmt.Errorf("%s\nusage: robosimctl <optimize|init|eval|compute|mutate|combine|genesis|status|history> [flags]", msg)
}
