//go:build unix

package main

import (
	"bufio"
	"context"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
)

func readRanking(t *testing.T, path string) []int {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open ranking: %v", err)
	}
	defer f.Close()
	var perfs []int
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		v, err := strconv.Atoi(strings.TrimSpace(scanner.Text()))
		if err != nil {
			t.Fatalf("ranking line %q: %v", scanner.Text(), err)
		}
		perfs = append(perfs, v)
	}
	return perfs
}

func TestOptimizeStatusHistory(t *testing.T) {
	dir := t.TempDir()
	cfgPath := writeTestConfig(t, dir)

	if _, err := captureStdout(func() error {
		return run(context.Background(), []string{"init", "--config", cfgPath})
	}); err != nil {
		t.Fatalf("init: %v", err)
	}
	if _, err := captureStdout(func() error {
		return run(context.Background(), []string{"genesis", "--config", cfgPath, "--seed", "4"})
	}); err != nil {
		t.Fatalf("genesis: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "pool", "seed.net")); err != nil {
		t.Fatalf("expected seed network in the pool dir: %v", err)
	}

	out, err := captureStdout(func() error {
		return run(context.Background(), []string{"optimize", "--config", cfgPath, "--cycles", "4"})
	})
	if err != nil {
		t.Fatalf("optimize: %v", err)
	}
	if !strings.Contains(out, "optimize run_id=") {
		t.Fatalf("unexpected optimize output: %q", out)
	}

	perfs := readRanking(t, filepath.Join(dir, "pool", "performance"))
	if len(perfs) == 0 || len(perfs) > 4 {
		t.Fatalf("unexpected ranking size %d", len(perfs))
	}
	for i := 1; i < len(perfs); i++ {
		if perfs[i] < perfs[i-1] {
			t.Fatalf("ranking not sorted: %v", perfs)
		}
	}
	for i := range perfs {
		if _, err := os.Stat(filepath.Join(dir, "pool", "network"+strconv.Itoa(i))); err != nil {
			t.Fatalf("missing network file for rank %d: %v", i, err)
		}
	}

	out, err = captureStdout(func() error {
		return run(context.Background(), []string{"status", "--config", cfgPath, "--ranking"})
	})
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if !strings.Contains(out, "size="+strconv.Itoa(len(perfs))+"/4") || !strings.Contains(out, "rank=0 performance="+strconv.Itoa(perfs[0])) {
		t.Fatalf("unexpected status output: %q", out)
	}

	out, err = captureStdout(func() error {
		return run(context.Background(), []string{"history", "--config", cfgPath})
	})
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if !strings.Contains(out, "no runs found") {
		t.Fatalf("memory store should not outlive the optimize run: %q", out)
	}
}

func TestStatusWithoutPool(t *testing.T) {
	dir := t.TempDir()
	cfgPath := writeTestConfig(t, dir)
	out, err := captureStdout(func() error {
		return run(context.Background(), []string{"status", "--config", cfgPath})
	})
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if !strings.Contains(out, "no pool at") {
		t.Fatalf("unexpected status output: %q", out)
	}
}

func TestOptimizeWithoutSeedFails(t *testing.T) {
	dir := t.TempDir()
	cfgPath := writeTestConfig(t, dir)
	_, err := captureStdout(func() error {
		return run(context.Background(), []string{"optimize", "--config", cfgPath, "--cycles", "1"})
	})
	if err == nil || !strings.Contains(err.Error(), "seed network") {
		t.Fatalf("expected seed network error, got %v", err)
	}
}
