package main

import (
	"flag"
	"fmt"
	"strconv"
	"strings"

	"robosim/internal/config"
	"robosim/internal/storage"
)

// commonFlags binds the flags shared by every command that reads the config.
type commonFlags struct {
	config  *string
	poolDir *string
	lockDir *string
	store   *string
	dbPath  *string
	verbose *bool
}

func bindCommonFlags(fs *flag.FlagSet) *commonFlags {
	return &commonFlags{
		config:  fs.String("config", "", "optional YAML config path"),
		poolDir: fs.String("pool-dir", "", "pool directory (overrides config)"),
		lockDir: fs.String("lock-dir", "", "directory holding the pool lock files (overrides config)"),
		store:   fs.String("store", storage.DefaultStoreKind(), "history store backend: memory|sqlite"),
		dbPath:  fs.String("db-path", "robosim.db", "sqlite database path"),
		verbose: fs.Bool("verbose", false, "print operator and refresh details"),
	}
}

// load reads the config file, if any, and applies every flag that was set
// explicitly on the command line.
func (f *commonFlags) load(fs *flag.FlagSet) (config.Config, map[string]bool, error) {
	cfg := config.Default()
	if *f.config != "" {
		loaded, err := config.Load(*f.config)
		if err != nil {
			return config.Config{}, nil, err
		}
		cfg = loaded
	}

	set := visited(fs)
	if set["pool-dir"] {
		cfg.Pool.Dir = *f.poolDir
	}
	if set["lock-dir"] {
		cfg.Lock.Dir = *f.lockDir
	}
	if set["store"] {
		cfg.Store.Kind = *f.store
	}
	if set["db-path"] {
		cfg.Store.Path = *f.dbPath
	}
	if set["verbose"] {
		cfg.Output.Verbose = *f.verbose
	}
	if cfg.Store.Kind == "" {
		cfg.Store.Kind = storage.DefaultStoreKind()
	}
	return cfg, set, nil
}

func visited(fs *flag.FlagSet) map[string]bool {
	set := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) {
		set[f.Name] = true
	})
	return set
}

// parseInts parses a comma separated list such as "8,4".
func parseInts(raw string) ([]int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	parts := strings.Split(raw, ",")
	out := make([]int, 0, len(parts))
	for _, part := range parts {
		v, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return nil, fmt.Errorf("invalid integer %q", part)
		}
		out = append(out, v)
	}
	return out, nil
}

func parseFloats(raw []string) ([]float64, error) {
	out := make([]float64, len(raw))
	for i, s := range raw {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid input value %q", s)
		}
		out[i] = v
	}
	return out, nil
}
