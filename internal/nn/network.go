package nn

import (
	"errors"
	"fmt"
)

var (
	ErrArity        = errors.New("incorrect number of inputs to network")
	ErrInvalidGraph = errors.New("invalid network graph")
)

// ArityError reports a Compute call whose input vector does not match the
// number of declared network inputs.
type ArityError struct {
	Got  int
	Want int
}

func (e *ArityError) Error() string {
	return fmt.Sprintf("%s: got=%d want=%d", ErrArity, e.Got, e.Want)
}

func (e *ArityError) Is(target error) bool {
	return target == ErrArity
}

// Link is one weighted input of a node.
type Link struct {
	From   int
	Weight float64
}

// Node is an immutable computation unit. Nodes are shared by pointer between
// networks produced by Copy, so they must never be modified once built.
type Node struct {
	ID       int
	IsInput  bool
	IsOutput bool
	Baseline float64
	Inputs   []Link
}

// NumWeights returns the number of weighted inputs of the node.
func (n *Node) NumWeights() int {
	return len(n.Inputs)
}

// Network is a feed-forward graph whose nodes are ordered so that every link
// points to a strictly smaller id.
type Network struct {
	inputs     []int
	outputs    []int
	nodes      []*Node
	inputIndex map[int]int
}

func NewNetwork(inputs, outputs []int, nodes []*Node) (*Network, error) {
	for i, node := range nodes {
		if node == nil {
			return nil, fmt.Errorf("%w: node %d is nil", ErrInvalidGraph, i)
		}
		if node.ID != i {
			return nil, fmt.Errorf("%w: node at position %d has id %d", ErrInvalidGraph, i, node.ID)
		}
		for _, link := range node.Inputs {
			if link.From < 0 || link.From >= i {
				return nil, fmt.Errorf("%w: node %d links to node %d", ErrInvalidGraph, i, link.From)
			}
		}
	}

	inputIndex := make(map[int]int, len(inputs))
	for pos, id := range inputs {
		if id < 0 || id >= len(nodes) {
			return nil, fmt.Errorf("%w: input id %d out of range", ErrInvalidGraph, id)
		}
		if !nodes[id].IsInput {
			return nil, fmt.Errorf("%w: input id %d is not an input node", ErrInvalidGraph, id)
		}
		if _, dup := inputIndex[id]; dup {
			return nil, fmt.Errorf("%w: input id %d declared twice", ErrInvalidGraph, id)
		}
		inputIndex[id] = pos
	}
	for _, node := range nodes {
		if _, ok := inputIndex[node.ID]; node.IsInput && !ok {
			return nil, fmt.Errorf("%w: input node %d missing from input list", ErrInvalidGraph, node.ID)
		}
	}
	listed := make(map[int]bool, len(outputs))
	for _, id := range outputs {
		if id < 0 || id >= len(nodes) {
			return nil, fmt.Errorf("%w: output id %d out of range", ErrInvalidGraph, id)
		}
		if !nodes[id].IsOutput {
			return nil, fmt.Errorf("%w: output id %d is not an output node", ErrInvalidGraph, id)
		}
		if listed[id] {
			return nil, fmt.Errorf("%w: output id %d declared twice", ErrInvalidGraph, id)
		}
		listed[id] = true
	}
	for _, node := range nodes {
		if node.IsInput && node.IsOutput {
			return nil, fmt.Errorf("%w: node %d is flagged both input and output", ErrInvalidGraph, node.ID)
		}
		if node.IsOutput && !listed[node.ID] {
			return nil, fmt.Errorf("%w: output node %d missing from output list", ErrInvalidGraph, node.ID)
		}
	}

	return &Network{
		inputs:     append([]int(nil), inputs...),
		outputs:    append([]int(nil), outputs...),
		nodes:      append([]*Node(nil), nodes...),
		inputIndex: inputIndex,
	}, nil
}

// Copy returns a network that shares this network's nodes.
func (n *Network) Copy() *Network {
	return &Network{
		inputs:     n.inputs,
		outputs:    n.outputs,
		nodes:      n.nodes,
		inputIndex: n.inputIndex,
	}
}

func (n *Network) NumNodes() int {
	return len(n.nodes)
}

func (n *Network) Node(id int) *Node {
	return n.nodes[id]
}

func (n *Network) Nodes() []*Node {
	return append([]*Node(nil), n.nodes...)
}

func (n *Network) Inputs() []int {
	return append([]int(nil), n.inputs...)
}

func (n *Network) Outputs() []int {
	return append([]int(nil), n.outputs...)
}

// NumWeights returns the total number of links in the graph.
func (n *Network) NumWeights() int {
	total := 0
	for _, node := range n.nodes {
		total += len(node.Inputs)
	}
	return total
}

// SharesNodes reports whether both networks reference the same node objects.
func (n *Network) SharesNodes(other *Network) bool {
	if len(n.nodes) != len(other.nodes) || len(n.nodes) == 0 {
		return false
	}
	for i := range n.nodes {
		if n.nodes[i] != other.nodes[i] {
			return false
		}
	}
	return true
}

// Equal reports whether both networks have the same roles, wiring, baselines
// and weights.
func (n *Network) Equal(other *Network) bool {
	if other == nil || len(n.nodes) != len(other.nodes) {
		return false
	}
	if !equalInts(n.inputs, other.inputs) || !equalInts(n.outputs, other.outputs) {
		return false
	}
	for i, a := range n.nodes {
		b := other.nodes[i]
		if a.IsInput != b.IsInput || a.IsOutput != b.IsOutput || a.Baseline != b.Baseline {
			return false
		}
		if len(a.Inputs) != len(b.Inputs) {
			return false
		}
		for j := range a.Inputs {
			if a.Inputs[j] != b.Inputs[j] {
				return false
			}
		}
	}
	return true
}

func equalInts(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
