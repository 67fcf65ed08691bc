package nn

import (
	"errors"
	"math"
	"sync"
	"testing"
)

func threeNodeNetwork(t *testing.T) *Network {
	t.Helper()
	nodes := []*Node{
		{ID: 0, IsInput: true},
		{ID: 1, IsInput: true},
		{ID: 2, IsOutput: true, Inputs: []Link{{From: 0, Weight: 1.0}, {From: 1, Weight: 2.0}}},
	}
	net, err := NewNetwork([]int{0, 1}, []int{2}, nodes)
	if err != nil {
		t.Fatalf("new network: %v", err)
	}
	return net
}

func TestComputeThreeNodeScenario(t *testing.T) {
	net := threeNodeNetwork(t)

	out, err := net.Compute([]float64{3, 4})
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	if len(out) != 1 || math.Abs(out[0]-11.0) > 1e-9 {
		t.Fatalf("unexpected output: %v", out)
	}
}

func TestComputeArityMismatch(t *testing.T) {
	net := threeNodeNetwork(t)

	_, err := net.Compute([]float64{1})
	if !errors.Is(err, ErrArity) {
		t.Fatalf("expected arity error, got %v", err)
	}
	var arity *ArityError
	if !errors.As(err, &arity) || arity.Got != 1 || arity.Want != 2 {
		t.Fatalf("unexpected arity detail: %+v", arity)
	}
}

func TestComputeSharedSubgraphAndBaseline(t *testing.T) {
	// 0 -> 1 -> {2,3} -> 4; node 1 is shared by both branches.
	nodes := []*Node{
		{ID: 0, IsInput: true},
		{ID: 1, IsOutput: true, Baseline: 1, Inputs: []Link{{From: 0, Weight: 2}}},
		{ID: 2, Inputs: []Link{{From: 1, Weight: 0.5}}},
		{ID: 3, Baseline: -1, Inputs: []Link{{From: 1, Weight: 3}}},
		{ID: 4, IsOutput: true, Inputs: []Link{{From: 2, Weight: 1}, {From: 3, Weight: 1}}},
	}
	net, err := NewNetwork([]int{0}, []int{4, 1}, nodes)
	if err != nil {
		t.Fatalf("new network: %v", err)
	}

	out, err := net.Compute([]float64{2})
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	// node1 = 1 + 4 = 5; node2 = 2.5; node3 = -1 + 15 = 14; node4 = 16.5
	want := []float64{16.5, 5}
	for i := range want {
		if math.Abs(out[i]-want[i]) > 1e-9 {
			t.Fatalf("output %d: got=%f want=%f", i, out[i], want[i])
		}
	}
}

func TestComputeIsDeterministicAcrossCalls(t *testing.T) {
	net := threeNodeNetwork(t)

	first, err := net.Compute([]float64{0.25, -1.5})
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	if _, err := net.Compute([]float64{100, 200}); err != nil {
		t.Fatalf("compute: %v", err)
	}
	again, err := net.Compute([]float64{0.25, -1.5})
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	if first[0] != again[0] {
		t.Fatalf("memo leaked across calls: first=%f again=%f", first[0], again[0])
	}
}

func TestComputeConcurrentCallsOnOneNetwork(t *testing.T) {
	net := threeNodeNetwork(t)

	var wg sync.WaitGroup
	errs := make(chan error, 32)
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			x := float64(i)
			out, err := net.Compute([]float64{x, x})
			if err != nil {
				errs <- err
				return
			}
			if out[0] != 3*x {
				errs <- errors.New("unexpected concurrent output")
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatal(err)
	}
}

func TestInputOrderFollowsDeclaration(t *testing.T) {
	nodes := []*Node{
		{ID: 0, IsInput: true},
		{ID: 1, IsInput: true},
		{ID: 2, IsOutput: true, Inputs: []Link{{From: 0, Weight: 1}}},
	}
	net, err := NewNetwork([]int{1, 0}, []int{2}, nodes)
	if err != nil {
		t.Fatalf("new network: %v", err)
	}
	out, err := net.Compute([]float64{7, 9})
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	if out[0] != 9 {
		t.Fatalf("expected node 0 to read second input, got %f", out[0])
	}
}

func TestNewNetworkRejectsForwardLinks(t *testing.T) {
	tests := []struct {
		name    string
		inputs  []int
		outputs []int
		nodes   []*Node
	}{
		{
			name:  "forward-link",
			nodes: []*Node{{ID: 0, Inputs: []Link{{From: 1, Weight: 1}}}, {ID: 1}},
		},
		{
			name:  "self-link",
			nodes: []*Node{{ID: 0, Inputs: []Link{{From: 0, Weight: 1}}}},
		},
		{
			name:  "sparse-ids",
			nodes: []*Node{{ID: 0}, {ID: 2}},
		},
		{
			name:    "output-out-of-range",
			outputs: []int{3},
			nodes:   []*Node{{ID: 0}},
		},
		{
			name:   "input-not-flagged",
			inputs: []int{0},
			nodes:  []*Node{{ID: 0}},
		},
		{
			name:  "flagged-input-not-listed",
			nodes: []*Node{{ID: 0, IsInput: true}},
		},
		{
			name:    "output-not-flagged",
			inputs:  []int{0},
			outputs: []int{1},
			nodes:   []*Node{{ID: 0, IsInput: true}, {ID: 1, Inputs: []Link{{From: 0, Weight: 1}}}},
		},
		{
			name:   "flagged-output-not-listed",
			inputs: []int{0},
			nodes:  []*Node{{ID: 0, IsInput: true}, {ID: 1, IsOutput: true}},
		},
		{
			name:    "output-listed-twice",
			outputs: []int{0, 0},
			nodes:   []*Node{{ID: 0, IsOutput: true}},
		},
		{
			name:    "input-and-output",
			inputs:  []int{0},
			outputs: []int{0},
			nodes:   []*Node{{ID: 0, IsInput: true, IsOutput: true}},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewNetwork(tc.inputs, tc.outputs, tc.nodes)
			if !errors.Is(err, ErrInvalidGraph) {
				t.Fatalf("expected invalid graph, got %v", err)
			}
		})
	}
}

func TestCopySharesNodes(t *testing.T) {
	net := threeNodeNetwork(t)
	dup := net.Copy()

	if !dup.SharesNodes(net) {
		t.Fatal("expected copy to share node objects")
	}
	if !dup.Equal(net) {
		t.Fatal("expected copy to be equal")
	}
	if dup.NumWeights() != 2 {
		t.Fatalf("unexpected weight count: %d", dup.NumWeights())
	}
}
