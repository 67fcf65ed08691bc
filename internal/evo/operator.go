package evo

import (
	"context"

	"robosim/internal/nn"
)

// Operator produces a new network from a parent without modifying it.
type Operator interface {
	Name() string
	Apply(ctx context.Context, parent *nn.Network) (*nn.Network, error)
}
