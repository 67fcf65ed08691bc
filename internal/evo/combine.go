package evo

import (
	"context"
	"errors"
	"fmt"

	"robosim/internal/nn"
)

var ErrStructuralMismatch = errors.New("combined networks must have the same structure")

// StructuralMismatchError describes why two networks cannot be combined.
type StructuralMismatchError struct {
	Node   int
	Detail string
}

func (e *StructuralMismatchError) Error() string {
	if e.Node < 0 {
		return fmt.Sprintf("%s: %s", ErrStructuralMismatch, e.Detail)
	}
	return fmt.Sprintf("%s: node %d: %s", ErrStructuralMismatch, e.Node, e.Detail)
}

func (e *StructuralMismatchError) Is(target error) bool {
	return target == ErrStructuralMismatch
}

// Combine builds a fresh network whose first half of nodes (by id) carries
// a's baselines and weights and whose second half carries b's. The split is
// always at NumNodes()/2. Wiring and roles come from a.
func Combine(a, b *nn.Network) (*nn.Network, error) {
	if err := checkStructure(a, b); err != nil {
		return nil, err
	}

	mid := a.NumNodes() / 2
	nodes := cloneNodes(a, func(i int) *nn.Node {
		if i < mid {
			return a.Node(i)
		}
		return b.Node(i)
	})
	return nn.NewNetwork(a.Inputs(), a.Outputs(), nodes)
}

func checkStructure(a, b *nn.Network) error {
	if a.NumNodes() != b.NumNodes() {
		return &StructuralMismatchError{
			Node:   -1,
			Detail: fmt.Sprintf("node count %d vs %d", a.NumNodes(), b.NumNodes()),
		}
	}
	for i := 0; i < a.NumNodes(); i++ {
		na, nb := a.Node(i), b.Node(i)
		if len(na.Inputs) != len(nb.Inputs) {
			return &StructuralMismatchError{
				Node:   i,
				Detail: fmt.Sprintf("weight count %d vs %d", len(na.Inputs), len(nb.Inputs)),
			}
		}
		for j := range na.Inputs {
			if na.Inputs[j].From != nb.Inputs[j].From {
				return &StructuralMismatchError{
					Node:   i,
					Detail: fmt.Sprintf("input %d wired from %d vs %d", j, na.Inputs[j].From, nb.Inputs[j].From),
				}
			}
		}
	}
	return nil
}

// CombineWith is the Operator form of Combine, optionally followed by Then.
type CombineWith struct {
	Other *nn.Network
	Then  Operator
}

func (o *CombineWith) Name() string {
	if o != nil && o.Then != nil {
		return "combine+" + o.Then.Name()
	}
	return "combine"
}

func (o *CombineWith) Apply(ctx context.Context, parent *nn.Network) (*nn.Network, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if o == nil || o.Other == nil {
		return nil, errors.New("combine partner is required")
	}
	child, err := Combine(parent, o.Other)
	if err != nil {
		return nil, err
	}
	if o.Then == nil {
		return child, nil
	}
	return o.Then.Apply(ctx, child)
}
