package codec

import (
	"bytes"
	"errors"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"robosim/internal/nn"
)

func sampleNetwork(t *testing.T) *nn.Network {
	t.Helper()
	net, err := nn.NewNetwork([]int{0, 1}, []int{3, 4}, []*nn.Node{
		{ID: 0, IsInput: true},
		{ID: 1, IsInput: true},
		{ID: 2, Baseline: 0.1, Inputs: []nn.Link{{From: 0, Weight: 1.0 / 3}, {From: 1, Weight: -2.5e-7}}},
		{ID: 3, IsOutput: true, Inputs: []nn.Link{{From: 2, Weight: 4}}},
		{ID: 4, IsOutput: true, Baseline: -12.75, Inputs: []nn.Link{{From: 0, Weight: 1}, {From: 2, Weight: 0.5}}},
	})
	if err != nil {
		t.Fatalf("new network: %v", err)
	}
	return net
}

func TestWriteFormat(t *testing.T) {
	var buf bytes.Buffer
	if err := Write(&buf, sampleNetwork(t)); err != nil {
		t.Fatalf("write: %v", err)
	}

	want := strings.Join([]string{
		" input node 0",
		" input node 1",
		"       node 2 default 0.1 connected to 0:0.3333333333333333 1:-2.5e-07",
		"output node 3 connected to 2:4",
		"output node 4 default -12.75 connected to 0:1 2:0.5",
		"",
	}, "\n")
	if buf.String() != want {
		t.Fatalf("unexpected description:\n%s\nwant:\n%s", buf.String(), want)
	}
}

func TestRoundTripPreservesBehaviour(t *testing.T) {
	src := sampleNetwork(t)
	var buf bytes.Buffer
	if err := Write(&buf, src); err != nil {
		t.Fatalf("write: %v", err)
	}
	loaded, err := Read(&buf, "roundtrip")
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !loaded.Equal(src) {
		t.Fatal("expected identical network after round trip")
	}

	for _, in := range [][]float64{{0, 0}, {1, 2}, {-3.5, 8}} {
		a, _ := src.Compute(in)
		b, err := loaded.Compute(in)
		if err != nil {
			t.Fatalf("compute: %v", err)
		}
		for i := range a {
			if math.Abs(a[i]-b[i]) > 1e-12 {
				t.Fatalf("output mismatch for %v: %v vs %v", in, a, b)
			}
		}
	}
}

func TestReadToleratesCommentsBlankLinesAndSpacing(t *testing.T) {
	desc := `# controller for the 3-node scenario

 input node 0   # left
input node 1
output node 2 connected to 0: 1.0 1 :2    # trailing comment
`
	net, err := Read(strings.NewReader(desc), "inline")
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	out, err := net.Compute([]float64{3, 4})
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	if out[0] != 11 {
		t.Fatalf("unexpected output: %v", out)
	}
}

func TestReadDefaultOnlyAndExponents(t *testing.T) {
	desc := "input node 0\noutput node 1 default -1.5e2\n"
	net, err := Read(strings.NewReader(desc), "inline")
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if net.Node(1).Baseline != -150 {
		t.Fatalf("unexpected baseline: %f", net.Node(1).Baseline)
	}
}

func TestReadRejectsGrammarViolations(t *testing.T) {
	tests := []struct {
		name string
		desc string
		line int
		msg  string
	}{
		{
			name: "non-increasing-id",
			desc: "node 0\nnode 1\nnode 2\nnode 3\nnode 4\nnode 5\nnode 3\n",
			line: 7,
			msg:  "sequential",
		},
		{
			name: "not-starting-at-zero",
			desc: "input node 1\n",
			line: 1,
			msg:  "sequential",
		},
		{
			name: "undeclared-reference",
			desc: "input node 0\noutput node 1 connected to 2:1\n",
			line: 2,
			msg:  "undefined node id 2",
		},
		{
			name: "self-reference",
			desc: "input node 0\noutput node 1 connected to 1:1\n",
			line: 2,
			msg:  "undefined node id 1",
		},
		{
			name: "garbage",
			desc: "input node 0\nhello world\n",
			line: 2,
			msg:  "syntax error",
		},
		{
			name: "bad-weight",
			desc: "input node 0\nnode 1 connected to 0:abc\n",
			line: 2,
			msg:  "invalid weight",
		},
		{
			name: "dangling-connected",
			desc: "input node 0\nnode 1 connected to\n",
			line: 2,
			msg:  "without connections",
		},
		{
			name: "signed-node-id",
			desc: "input node +0\n",
			line: 1,
			msg:  "invalid node id",
		},
		{
			name: "signed-link-id",
			desc: "input node 0\noutput node 1 connected to +0:1\n",
			line: 2,
			msg:  "invalid id",
		},
		{
			name: "missing-default",
			desc: "node 0 default\n",
			line: 1,
			msg:  "missing default",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Read(strings.NewReader(tc.desc), "bad.net")
			if !errors.Is(err, ErrMalformed) {
				t.Fatalf("expected malformed error, got %v", err)
			}
			var perr *ParseError
			if !errors.As(err, &perr) {
				t.Fatalf("expected parse error, got %T", err)
			}
			if perr.File != "bad.net" || perr.Line != tc.line {
				t.Fatalf("unexpected location: %+v", perr)
			}
			if !strings.Contains(perr.Msg, tc.msg) {
				t.Fatalf("message %q does not mention %q", perr.Msg, tc.msg)
			}
		})
	}
}

func TestWriteFileAndReadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "best.net")
	src := sampleNetwork(t)
	if err := WriteFile(path, src); err != nil {
		t.Fatalf("write file: %v", err)
	}
	loaded, err := ReadFile(path)
	if err != nil {
		t.Fatalf("read file: %v", err)
	}
	if !loaded.Equal(src) {
		t.Fatal("expected identical network from file")
	}

	entries, err := os.ReadDir(filepath.Dir(path))
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected temp files to be cleaned up, found %d entries", len(entries))
	}
}

func TestReadFileMissing(t *testing.T) {
	_, err := ReadFile(filepath.Join(t.TempDir(), "missing.net"))
	var perr *ParseError
	if !errors.As(err, &perr) || perr.Line != 0 {
		t.Fatalf("expected parse error without line, got %v", err)
	}
}

func TestWriteAtomicReplacesOrKeeps(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "performance")
	if err := WriteAtomic(path, func(w io.Writer) error {
		_, err := io.WriteString(w, "10\n")
		return err
	}); err != nil {
		t.Fatalf("first write: %v", err)
	}
	before, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}

	failed := errors.New("disk full")
	if err := WriteAtomic(path, func(w io.Writer) error {
		_, _ = io.WriteString(w, "partial")
		return failed
	}); !errors.Is(err, failed) {
		t.Fatalf("expected write error, got %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil || string(data) != "10\n" {
		t.Fatalf("failed write changed the file: %q %v", data, err)
	}

	if err := WriteAtomic(path, func(w io.Writer) error {
		_, err := io.WriteString(w, "7\n10\n")
		return err
	}); err != nil {
		t.Fatalf("second write: %v", err)
	}
	after, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if os.SameFile(before, after) {
		t.Fatal("expected a committed write to replace the file")
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected pending files to be cleaned up, found %d entries", len(entries))
	}
}
