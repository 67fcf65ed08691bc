package evo

import (
	"context"
	"errors"
	"math/rand"

	"robosim/internal/nn"
)

var (
	ErrNoMutationChoice = errors.New("no mutation choice available")
	ErrRandomRequired   = errors.New("random source is required")
)

// Mutate rebuilds net as a fresh, independent graph and perturbs count
// weights by a uniform delta in [-amplitude, amplitude]. Each perturbation
// picks a uniformly random node; nodes without weighted inputs are redrawn
// without consuming the count.
func Mutate(rng *rand.Rand, net *nn.Network, count int, amplitude float64) (*nn.Network, error) {
	if rng == nil {
		return nil, ErrRandomRequired
	}
	nodes := cloneNodes(net, nil)
	if count > 0 && net.NumWeights() == 0 {
		return nil, ErrNoMutationChoice
	}

	for i := 0; i < count; {
		node := nodes[rng.Intn(len(nodes))]
		if len(node.Inputs) == 0 {
			continue
		}
		idx := rng.Intn(len(node.Inputs))
		node.Inputs[idx].Weight += (rng.Float64()*2 - 1) * amplitude
		i++
	}
	return nn.NewNetwork(net.Inputs(), net.Outputs(), nodes)
}

// MutateWeights is the Operator form of Mutate.
type MutateWeights struct {
	Rand      *rand.Rand
	Count     int
	Amplitude float64
}

func (o *MutateWeights) Name() string {
	return "mutate_weights"
}

func (o *MutateWeights) Apply(ctx context.Context, parent *nn.Network) (*nn.Network, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if o == nil {
		return nil, ErrRandomRequired
	}
	return Mutate(o.Rand, parent, o.Count, o.Amplitude)
}

// cloneNodes deep-copies every node of base. When donor is non-nil, the
// baseline and weights at index i come from donor.Node(i) instead.
func cloneNodes(base *nn.Network, donor func(i int) *nn.Node) []*nn.Node {
	nodes := make([]*nn.Node, base.NumNodes())
	for i := range nodes {
		shape := base.Node(i)
		values := shape
		if donor != nil {
			values = donor(i)
		}
		links := make([]nn.Link, len(shape.Inputs))
		for j, link := range shape.Inputs {
			links[j] = nn.Link{From: link.From, Weight: values.Inputs[j].Weight}
		}
		nodes[i] = &nn.Node{
			ID:       shape.ID,
			IsInput:  shape.IsInput,
			IsOutput: shape.IsOutput,
			Baseline: values.Baseline,
			Inputs:   links,
		}
	}
	return nodes
}
