// Package config holds the tunables shared by the optimizer, the arena and
// the command line tool.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Pool   PoolConfig   `yaml:"pool"`
	Lock   LockConfig   `yaml:"lock"`
	Arena  ArenaConfig  `yaml:"arena"`
	Store  StoreConfig  `yaml:"store"`
	Output OutputConfig `yaml:"output"`
}

// PoolConfig locates the shared pool and drives parent selection.
type PoolConfig struct {
	Dir              string  `yaml:"dir"`
	RankingFile      string  `yaml:"ranking_file"`
	NetworkBase      string  `yaml:"network_base"`
	BestFile         string  `yaml:"best_file"`
	CheckpointFile   string  `yaml:"checkpoint_file"`
	SeedFile         string  `yaml:"seed_file"`
	MaxSize          int     `yaml:"max_size"`
	EliteSize        int     `yaml:"elite_size"`
	MinDiversity     int     `yaml:"min_diversity"`
	CombineFrequency float64 `yaml:"combine_frequency"`
	Mutations        int     `yaml:"mutations"`
	Amplitude        float64 `yaml:"amplitude"`
	CombineMutations int     `yaml:"combine_mutations"`
	CombineAmplitude float64 `yaml:"combine_amplitude"`

	// Seed drives parent selection and mutation. Zero picks one from the clock.
	Seed int64 `yaml:"seed"`
}

type LockConfig struct {
	Name string `yaml:"name"`
	Dir  string `yaml:"dir"`
}

// ArenaConfig describes the simulated world used to score controllers.
type ArenaConfig struct {
	Width  float64 `yaml:"width"`
	Height float64 `yaml:"height"`

	RobotRadius       float64 `yaml:"robot_radius"`
	TargetRadius      float64 `yaml:"target_radius"`
	ObstacleMinRadius float64 `yaml:"obstacle_min_radius"`
	ObstacleMaxRadius float64 `yaml:"obstacle_max_radius"`
	RobotsHitable     bool    `yaml:"robots_hitable"`
	PlacementRetries  int     `yaml:"placement_retries"`

	RobotInitialSpeed float64 `yaml:"robot_initial_speed"`
	RobotMinSpeed     float64 `yaml:"robot_min_speed"`
	RobotMaxSpeed     float64 `yaml:"robot_max_speed"`
	TargetSpeed       float64 `yaml:"target_speed"`
	MazeTargetSpeed   float64 `yaml:"maze_target_speed"`
	SpeedScale        float64 `yaml:"speed_scale"`
	RotationScale     float64 `yaml:"rotation_scale"`
	MaxRotation       float64 `yaml:"max_rotation"`
	TicksPerSecond    float64 `yaml:"ticks_per_second"`

	ReorientAngle      float64 `yaml:"reorient_angle"`
	PostCollisionPause int     `yaml:"post_collision_pause"`

	SensorOffsetX     float64 `yaml:"sensor_offset_x"`
	SensorOffsetY     float64 `yaml:"sensor_offset_y"`
	SensorAngle       float64 `yaml:"sensor_angle"`
	SensorViewAngle   float64 `yaml:"sensor_view_angle"`
	SensorScale       float64 `yaml:"sensor_scale"`
	WallObstacleScale float64 `yaml:"wall_obstacle_scale"`
	TargetSensorScale float64 `yaml:"target_sensor_scale"`
	SensorNoise       float64 `yaml:"sensor_noise"`

	RandomTrials    int    `yaml:"random_trials"`
	RandomRobots    int    `yaml:"random_robots"`
	RandomObstacles int    `yaml:"random_obstacles"`
	ObstacleTrials  int    `yaml:"obstacle_trials"`
	ObstacleRobots  int    `yaml:"obstacle_robots"`
	StepLimit       int    `yaml:"step_limit"`
	Workers         int    `yaml:"workers"`
	BatterySeed     int64  `yaml:"battery_seed"`
	LayoutsDir      string `yaml:"layouts_dir"`
}

// StoreConfig selects the history backend. An empty kind means the build's
// default backend.
type StoreConfig struct {
	Kind string `yaml:"kind"`
	Path string `yaml:"path"`
}

type OutputConfig struct {
	Verbose     bool `yaml:"verbose"`
	PoolVerbose bool `yaml:"pool_verbose"`
	PrintPool   bool `yaml:"print_pool"`
}

func Default() Config {
	return Config{
		Pool: PoolConfig{
			Dir:              "pool",
			RankingFile:      "performance",
			NetworkBase:      "network",
			BestFile:         "best.net",
			CheckpointFile:   "candidate.net",
			SeedFile:         "seed.net",
			MaxSize:          20,
			EliteSize:        5,
			MinDiversity:     50,
			CombineFrequency: 0.3,
			Mutations:        3,
			Amplitude:        0.5,
			CombineMutations: 1,
			CombineAmplitude: 0.2,
		},
		Lock: LockConfig{
			Name: "robosim-pool",
		},
		Arena: ArenaConfig{
			Width:              800,
			Height:             600,
			RobotRadius:        15,
			TargetRadius:       10,
			ObstacleMinRadius:  15,
			ObstacleMaxRadius:  40,
			RobotsHitable:      true,
			PlacementRetries:   1000,
			RobotInitialSpeed:  30,
			RobotMinSpeed:      0,
			RobotMaxSpeed:      60,
			TargetSpeed:        10,
			MazeTargetSpeed:    0,
			SpeedScale:         60,
			RotationScale:      0.2,
			MaxRotation:        10,
			TicksPerSecond:     10,
			ReorientAngle:      45,
			PostCollisionPause: 3,
			SensorOffsetX:      7,
			SensorOffsetY:      12,
			SensorAngle:        40,
			SensorViewAngle:    90,
			SensorScale:        1000,
			WallObstacleScale:  1,
			TargetSensorScale:  5,
			RandomTrials:       5,
			RandomRobots:       3,
			RandomObstacles:    4,
			ObstacleTrials:     4,
			ObstacleRobots:     2,
			StepLimit:          2000,
			Workers:            4,
			BatterySeed:        123456,
		},
		Store: StoreConfig{
			Path: "robosim.db",
		},
	}
}

// Load reads a YAML (or JSON) file over Default. Unknown keys are rejected.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("decode config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

func (c Config) Validate() error {
	p := c.Pool
	switch {
	case p.RankingFile == "" || p.NetworkBase == "" || p.BestFile == "":
		return errors.New("pool ranking_file, network_base and best_file are required")
	case p.MaxSize < 1:
		return fmt.Errorf("pool max_size must be positive: %d", p.MaxSize)
	case p.EliteSize < 1:
		return fmt.Errorf("pool elite_size must be positive: %d", p.EliteSize)
	case p.MinDiversity < 0:
		return fmt.Errorf("pool min_diversity must not be negative: %d", p.MinDiversity)
	case p.CombineFrequency < 0 || p.CombineFrequency > 1:
		return fmt.Errorf("pool combine_frequency must be within [0,1]: %g", p.CombineFrequency)
	case p.Mutations < 0 || p.CombineMutations < 0:
		return errors.New("pool mutation counts must not be negative")
	case p.Amplitude < 0 || p.CombineAmplitude < 0:
		return errors.New("pool mutation amplitudes must not be negative")
	}
	if c.Lock.Name == "" {
		return errors.New("lock name is required")
	}

	a := c.Arena
	switch {
	case a.Width <= 0 || a.Height <= 0:
		return fmt.Errorf("arena size must be positive: %gx%g", a.Width, a.Height)
	case a.RobotRadius <= 0 || a.TargetRadius <= 0:
		return errors.New("arena robot_radius and target_radius must be positive")
	case a.ObstacleMinRadius <= 0 || a.ObstacleMaxRadius < a.ObstacleMinRadius:
		return fmt.Errorf("arena obstacle radius range is invalid: [%g,%g]", a.ObstacleMinRadius, a.ObstacleMaxRadius)
	case a.RobotMaxSpeed < a.RobotMinSpeed || a.RobotMinSpeed < 0:
		return fmt.Errorf("arena robot speed range is invalid: [%g,%g]", a.RobotMinSpeed, a.RobotMaxSpeed)
	case a.TicksPerSecond <= 0:
		return errors.New("arena ticks_per_second must be positive")
	case a.SensorViewAngle <= 0 || a.SensorViewAngle > 360:
		return fmt.Errorf("arena sensor_view_angle must be within (0,360]: %g", a.SensorViewAngle)
	case a.PlacementRetries < 1:
		return errors.New("arena placement_retries must be positive")
	case a.StepLimit < 1:
		return fmt.Errorf("arena step_limit must be positive: %d", a.StepLimit)
	case a.RandomTrials < 0 || a.ObstacleTrials < 0 || a.RandomRobots < 0 || a.ObstacleRobots < 0 || a.RandomObstacles < 0:
		return errors.New("arena trial counts must not be negative")
	case a.Workers < 1:
		return fmt.Errorf("arena workers must be positive: %d", a.Workers)
	case a.SensorNoise < 0:
		return errors.New("arena sensor_noise must not be negative")
	}

	switch c.Store.Kind {
	case "", "memory", "sqlite":
	default:
		return fmt.Errorf("unsupported store kind: %s", c.Store.Kind)
	}
	return nil
}

// Resolve joins a pool file name with the pool directory unless it is
// already absolute.
func (p PoolConfig) Resolve(name string) string {
	if name == "" || filepath.IsAbs(name) || p.Dir == "" {
		return name
	}
	return filepath.Join(p.Dir, name)
}
