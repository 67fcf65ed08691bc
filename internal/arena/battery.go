package arena

import (
	"context"
	"errors"
	"fmt"

	"github.com/sourcegraph/conc/pool"

	"robosim/internal/config"
	"robosim/internal/nn"
)

// TrialResult is the outcome of one world in the battery.
type TrialResult struct {
	Name     string
	Steps    int
	Finished bool
}

// Result is the outcome of a full battery. Total is the cost: lower is better.
type Result struct {
	Total  int
	Trials []TrialResult
}

type trial struct {
	name  string
	setup func(w *World, net *nn.Network) error
}

// Battery scores a controller by the number of steps its robots need to reach
// their targets over a fixed set of worlds. It is deterministic for a given
// configuration and network.
type Battery struct {
	cfg     config.ArenaConfig
	layouts Layouts
	trials  []trial
}

// NewBattery validates cfg and loads the fixed layouts.
func NewBattery(cfg config.ArenaConfig) (*Battery, error) {
	if err := validateArena(cfg); err != nil {
		return nil, err
	}
	layouts, err := LoadLayouts(cfg.LayoutsDir)
	if err != nil {
		return nil, err
	}
	b := &Battery{cfg: cfg, layouts: layouts}
	b.trials = b.plan()
	return b, nil
}

func validateArena(cfg config.ArenaConfig) error {
	switch {
	case cfg.Width <= 0 || cfg.Height <= 0:
		return errors.New("arena width and height must be positive")
	case cfg.TicksPerSecond <= 0:
		return errors.New("arena ticks per second must be positive")
	case cfg.SensorViewAngle <= 0:
		return errors.New("arena sensor view angle must be positive")
	case cfg.StepLimit <= 0:
		return errors.New("arena step limit must be positive")
	case cfg.Workers <= 0:
		return errors.New("arena workers must be positive")
	case cfg.RandomTrials < 0 || cfg.ObstacleTrials < 0:
		return errors.New("arena trial counts must be non-negative")
	}
	return nil
}

// plan lists the trials in a fixed order: random worlds, the maze, then the
// obstacle fields alternating between layouts.
func (b *Battery) plan() []trial {
	var trials []trial
	for i := 0; i < b.cfg.RandomTrials; i++ {
		trials = append(trials, trial{
			name: fmt.Sprintf("random-%d", i+1),
			setup: func(w *World, net *nn.Network) error {
				for r := 0; r < b.cfg.RandomRobots; r++ {
					if _, err := w.AddController(net); err != nil && !errors.Is(err, ErrNoOpenLocation) {
						return err
					}
				}
				for o := 0; o < b.cfg.RandomObstacles; o++ {
					if _, err := w.AddObstacle(); err != nil && !errors.Is(err, ErrNoOpenLocation) {
						return err
					}
				}
				return nil
			},
		})
	}

	maze := b.layouts.Maze
	trials = append(trials, trial{
		name: maze.Name,
		setup: func(w *World, net *nn.Network) error {
			if err := w.Load(maze); err != nil {
				return err
			}
			_, err := w.AddControllerAt(net, *maze.Robot, *maze.Target, b.cfg.MazeTargetSpeed)
			return err
		},
	})

	for i := 0; i < b.cfg.ObstacleTrials && len(b.layouts.Obstacles) > 0; i++ {
		layout := b.layouts.Obstacles[i%len(b.layouts.Obstacles)]
		trials = append(trials, trial{
			name: fmt.Sprintf("%s-%d", layout.Name, i/len(b.layouts.Obstacles)+1),
			setup: func(w *World, net *nn.Network) error {
				if err := w.Load(layout); err != nil {
					return err
				}
				for r := 0; r < b.cfg.ObstacleRobots; r++ {
					if _, err := w.AddController(net); err != nil && !errors.Is(err, ErrNoOpenLocation) {
						return err
					}
				}
				return nil
			},
		})
	}
	return trials
}

// NumTrials is the number of worlds each evaluation runs.
func (b *Battery) NumTrials() int {
	return len(b.trials)
}

// Evaluate returns the total step count of the battery for net.
func (b *Battery) Evaluate(ctx context.Context, net *nn.Network) (int, error) {
	res, err := b.Run(ctx, net)
	if err != nil {
		return 0, err
	}
	return res.Total, nil
}

// Run executes every trial, fanning them out over the configured number of
// workers. Trial i always uses seed BatterySeed+i.
func (b *Battery) Run(ctx context.Context, net *nn.Network) (Result, error) {
	if err := CheckController(net); err != nil {
		return Result{}, err
	}
	results := make([]TrialResult, len(b.trials))
	errs := make([]error, len(b.trials))

	p := pool.New().WithMaxGoroutines(b.cfg.Workers)
	for i, tr := range b.trials {
		p.Go(func() {
			if err := ctx.Err(); err != nil {
				errs[i] = err
				return
			}
			w := NewWorld(b.cfg, b.cfg.BatterySeed+int64(i))
			if err := tr.setup(w, net); err != nil {
				errs[i] = fmt.Errorf("trial %s: %w", tr.name, err)
				return
			}
			steps, finished, err := runTrial(ctx, w, b.cfg.StepLimit)
			if err != nil {
				errs[i] = err
				return
			}
			results[i] = TrialResult{Name: tr.name, Steps: steps, Finished: finished}
		})
	}
	p.Wait()
	if err := errors.Join(errs...); err != nil {
		return Result{}, err
	}

	res := Result{Trials: results}
	for _, r := range results {
		res.Total += r.Steps
	}
	return res, nil
}

// runTrial steps w until every robot reached its target or limit steps ran.
func runTrial(ctx context.Context, w *World, limit int) (int, bool, error) {
	steps := 0
	for w.Pursuing() > 0 && steps < limit {
		if steps%256 == 0 {
			if err := ctx.Err(); err != nil {
				return steps, false, err
			}
		}
		w.StepWorld()
		steps++
	}
	return steps, w.Pursuing() == 0, nil
}
