package pool

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"testing"

	"robosim/internal/codec"
)

func testLayout(dir string) Layout {
	return Layout{
		RankingFile: filepath.Join(dir, "performance"),
		NetworkBase: filepath.Join(dir, "networks", "network"),
		BestFile:    filepath.Join(dir, "best.net"),
		SeedFile:    filepath.Join(dir, "seed.net"),
	}
}

func readRankingFile(t *testing.T, path string) []int {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read ranking: %v", err)
	}
	var perfs []int
	for _, field := range strings.Fields(string(data)) {
		perf, err := strconv.Atoi(field)
		if err != nil {
			t.Fatalf("ranking entry %q: %v", field, err)
		}
		perfs = append(perfs, perf)
	}
	return perfs
}

func TestSaveAndLoadPool(t *testing.T) {
	layout := testLayout(t.TempDir())
	src := buildPool(t, 5, 30, 10, 20)
	if err := SavePool(layout, src, false); err != nil {
		t.Fatalf("save: %v", err)
	}
	if got := readRankingFile(t, layout.RankingFile); !reflect.DeepEqual(got, []int{10, 20, 30}) {
		t.Fatalf("unexpected ranking file: %v", got)
	}
	best, err := codec.ReadFile(layout.BestFile)
	if err != nil {
		t.Fatalf("read best: %v", err)
	}
	if !best.Equal(src.Entry(0).Network) {
		t.Fatal("best file does not hold the top entry")
	}

	loaded, err := LoadPool(layout, 5)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !reflect.DeepEqual(loaded.Performances(), src.Performances()) {
		t.Fatalf("unexpected loaded ranking: %v", loaded.Performances())
	}
	for i := 0; i < loaded.Len(); i++ {
		if !loaded.Entry(i).Network.Equal(src.Entry(i).Network) {
			t.Fatalf("network %d differs after load", i)
		}
	}

	limited, err := LoadPool(layout, 2)
	if err != nil {
		t.Fatalf("load limited: %v", err)
	}
	if !reflect.DeepEqual(limited.Performances(), []int{10, 20}) {
		t.Fatalf("expected ranking cut at max size, got %v", limited.Performances())
	}
}

func TestSavePoolBottleneckKeepsOnlyBestRanking(t *testing.T) {
	layout := testLayout(t.TempDir())
	if err := SavePool(layout, buildPool(t, 3, 100, 101, 102), true); err != nil {
		t.Fatalf("save: %v", err)
	}
	if got := readRankingFile(t, layout.RankingFile); !reflect.DeepEqual(got, []int{100}) {
		t.Fatalf("expected only best performance, got %v", got)
	}
	for i := 0; i < 3; i++ {
		if _, err := os.Stat(layout.NetworkFile(i)); err != nil {
			t.Fatalf("network file %d missing: %v", i, err)
		}
	}
}

func TestLoadPoolErrors(t *testing.T) {
	layout := testLayout(t.TempDir())
	if _, err := LoadPool(layout, 3); !errors.Is(err, ErrNoPool) {
		t.Fatalf("expected missing pool, got %v", err)
	}

	if err := os.WriteFile(layout.RankingFile, []byte("12\nabc\n"), 0o644); err != nil {
		t.Fatalf("write ranking: %v", err)
	}
	if _, err := LoadPool(layout, 3); !errors.Is(err, ErrCorruptState) {
		t.Fatalf("expected corrupt state for bad ranking, got %v", err)
	}

	if err := os.WriteFile(layout.RankingFile, []byte("12\n"), 0o644); err != nil {
		t.Fatalf("write ranking: %v", err)
	}
	_, err := LoadPool(layout, 3)
	if !errors.Is(err, ErrCorruptState) {
		t.Fatalf("expected corrupt state for missing network, got %v", err)
	}
	var perr *codec.ParseError
	if !errors.As(err, &perr) || perr.File != layout.NetworkFile(0) {
		t.Fatalf("expected parse error naming the network file, got %v", err)
	}
}

func TestStampDetectsRewriteWithSameModTime(t *testing.T) {
	layout := testLayout(t.TempDir())
	none, err := StatRanking(layout)
	if err != nil {
		t.Fatalf("stat missing: %v", err)
	}
	if none.Exists || !none.Equal(Stamp{}) {
		t.Fatalf("unexpected stamp for missing file: %+v", none)
	}

	p := buildPool(t, 3, 1, 2)
	if err := SavePool(layout, p, false); err != nil {
		t.Fatalf("save: %v", err)
	}
	first, err := StatRanking(layout)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	again, _ := StatRanking(layout)
	if !first.Equal(again) {
		t.Fatal("expected unchanged file to keep its stamp")
	}
	if first.Equal(none) {
		t.Fatal("expected created file to change the stamp")
	}

	if err := SavePool(layout, p, false); err != nil {
		t.Fatalf("save again: %v", err)
	}
	if err := os.Chtimes(layout.RankingFile, first.ModTime, first.ModTime); err != nil {
		t.Fatalf("chtimes: %v", err)
	}
	second, err := StatRanking(layout)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if first.Equal(second) {
		t.Fatal("expected rewritten ranking to change the stamp")
	}
}
