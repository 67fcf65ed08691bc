// Package genesis builds the random controllers that seed an empty pool.
package genesis

import (
	"errors"
	"fmt"
	"math/rand"
	"time"

	"robosim/internal/nn"
)

// SensorInputs and WheelOutputs are the controller widths the arena drives.
const (
	SensorInputs = 6
	WheelOutputs = 2
)

var ErrInvalidShape = errors.New("invalid network shape")

// Layered builds a fully connected feed-forward network. Ids are assigned
// layer by layer: inputs first, then each hidden layer, then outputs. Every
// non-input node links to every node of the previous layer with a weight
// drawn from [-weightScale, weightScale]; baselines use the same range.
func Layered(rng *rand.Rand, inputs int, hidden []int, outputs int, weightScale float64) (*nn.Network, error) {
	if inputs <= 0 || outputs <= 0 {
		return nil, fmt.Errorf("%w: %d inputs, %d outputs", ErrInvalidShape, inputs, outputs)
	}
	for i, width := range hidden {
		if width <= 0 {
			return nil, fmt.Errorf("%w: hidden layer %d has width %d", ErrInvalidShape, i, width)
		}
	}
	if weightScale < 0 {
		return nil, fmt.Errorf("%w: negative weight scale %g", ErrInvalidShape, weightScale)
	}
	rng = ensureRNG(rng)

	var (
		nodes     []*nn.Node
		inputIDs  []int
		outputIDs []int
	)
	addLayer := func(width int, previous []int, input, output bool) []int {
		layer := make([]int, 0, width)
		for i := 0; i < width; i++ {
			node := &nn.Node{ID: len(nodes), IsInput: input, IsOutput: output}
			if !input {
				node.Baseline = centered(rng, weightScale)
				node.Inputs = make([]nn.Link, len(previous))
				for j, from := range previous {
					node.Inputs[j] = nn.Link{From: from, Weight: centered(rng, weightScale)}
				}
			}
			nodes = append(nodes, node)
			layer = append(layer, node.ID)
		}
		return layer
	}

	inputIDs = addLayer(inputs, nil, true, false)
	previous := inputIDs
	for _, width := range hidden {
		previous = addLayer(width, previous, false, false)
	}
	outputIDs = addLayer(outputs, previous, false, true)

	return nn.NewNetwork(inputIDs, outputIDs, nodes)
}

// Controller builds a layered network with the arena's sensor and wheel widths.
func Controller(rng *rand.Rand, hidden []int, weightScale float64) (*nn.Network, error) {
	return Layered(rng, SensorInputs, hidden, WheelOutputs, weightScale)
}

func ensureRNG(rng *rand.Rand) *rand.Rand {
	if rng != nil {
		return rng
	}
	return rand.New(rand.NewSource(time.Now().UnixNano()))
}

func centered(rng *rand.Rand, scale float64) float64 {
	return (rng.Float64()*2 - 1) * scale
}
