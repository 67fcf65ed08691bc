package pool

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"robosim/internal/codec"
)

var (
	// ErrCorruptState marks shared pool files that cannot be trusted.
	ErrCorruptState = errors.New("corrupt pool state")
	ErrNoPool       = errors.New("pool ranking file does not exist")
)

// LoadPool reads at most maxSize ranked entries from disk.
func LoadPool(layout Layout, maxSize int) (*Pool, error) {
	perfs, err := readRanking(layout.RankingFile, maxSize)
	if err != nil {
		return nil, err
	}
	p := New(maxSize)
	for i, perf := range perfs {
		net, err := codec.ReadFile(layout.NetworkFile(i))
		if err != nil {
			return nil, fmt.Errorf("%w: rank %d: %w", ErrCorruptState, i, err)
		}
		p.entries = append(p.entries, Entry{Network: net, Performance: perf})
	}
	return p, nil
}

func readRanking(path string, limit int) ([]int, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNoPool, path)
		}
		return nil, fmt.Errorf("%w: open ranking %s: %w", ErrCorruptState, path, err)
	}
	defer f.Close()

	var perfs []int
	scanner := bufio.NewScanner(f)
	scanner.Split(bufio.ScanWords)
	for len(perfs) < limit && scanner.Scan() {
		perf, err := strconv.Atoi(scanner.Text())
		if err != nil {
			return nil, fmt.Errorf("%w: ranking %s entry %d: %q is not an integer", ErrCorruptState, path, len(perfs), scanner.Text())
		}
		perfs = append(perfs, perf)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("%w: read ranking %s: %w", ErrCorruptState, path, err)
	}
	return perfs, nil
}

// SavePool writes every network file, then the ranking, then the best
// network. A bottlenecked save records only the best performance so other
// processes restart from a single entry on their next reload.
func SavePool(layout Layout, p *Pool, bottleneck bool) error {
	for _, path := range []string{layout.RankingFile, layout.NetworkBase, layout.BestFile} {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return err
		}
	}
	for i, e := range p.entries {
		if err := codec.WriteFile(layout.NetworkFile(i), e.Network); err != nil {
			return fmt.Errorf("write rank %d: %w", i, err)
		}
	}

	ranked := p.entries
	if bottleneck && len(ranked) > 1 {
		ranked = ranked[:1]
	}
	err := codec.WriteAtomic(layout.RankingFile, func(w io.Writer) error {
		bw := bufio.NewWriter(w)
		for _, e := range ranked {
			if _, err := bw.WriteString(strconv.Itoa(e.Performance) + "\n"); err != nil {
				return err
			}
		}
		return bw.Flush()
	})
	if err != nil {
		return fmt.Errorf("write ranking: %w", err)
	}

	if best, ok := p.Best(); ok {
		if err := codec.WriteFile(layout.BestFile, best.Network); err != nil {
			return fmt.Errorf("write best network: %w", err)
		}
	}
	return nil
}

// Stamp identifies one version of the ranking file. Every save replaces the
// file through a rename, so a change of identity is detected even when the
// modification time does not move.
type Stamp struct {
	Exists  bool
	ModTime time.Time
	Size    int64
	info    os.FileInfo
}

func StatRanking(layout Layout) (Stamp, error) {
	info, err := os.Stat(layout.RankingFile)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Stamp{}, nil
		}
		return Stamp{}, fmt.Errorf("stat ranking %s: %w", layout.RankingFile, err)
	}
	return Stamp{Exists: true, ModTime: info.ModTime(), Size: info.Size(), info: info}, nil
}

func (s Stamp) Equal(other Stamp) bool {
	if s.Exists != other.Exists {
		return false
	}
	if !s.Exists {
		return true
	}
	return s.ModTime.Equal(other.ModTime) && s.Size == other.Size && os.SameFile(s.info, other.info)
}
