package nn

// scratch holds the per-call memo of one Compute invocation.
type scratch struct {
	value    []float64
	computed []bool
}

// Compute evaluates every declared output for the given input vector. Input
// values are matched to input nodes by declaration order. Each node is
// resolved at most once per call; the memo is local to the call so concurrent
// Compute calls on one network are safe.
func (n *Network) Compute(inputs []float64) ([]float64, error) {
	if len(inputs) != len(n.inputs) {
		return nil, &ArityError{Got: len(inputs), Want: len(n.inputs)}
	}

	s := scratch{
		value:    make([]float64, len(n.nodes)),
		computed: make([]bool, len(n.nodes)),
	}
	out := make([]float64, len(n.outputs))
	for i, id := range n.outputs {
		out[i] = n.resolve(&s, inputs, id)
	}
	return out, nil
}

func (n *Network) resolve(s *scratch, inputs []float64, id int) float64 {
	if s.computed[id] {
		return s.value[id]
	}

	node := n.nodes[id]
	var v float64
	if node.IsInput {
		v = inputs[n.inputIndex[id]]
	} else {
		v = node.Baseline
		for _, link := range node.Inputs {
			v += n.resolve(s, inputs, link.From) * link.Weight
		}
	}
	s.value[id] = v
	s.computed[id] = true
	return v
}
