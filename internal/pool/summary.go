package pool

import "gonum.org/v1/gonum/stat"

// Summary describes the performance distribution of a pool.
type Summary struct {
	Size         int
	MaxSize      int
	Best         int
	Worst        int
	Spread       int
	Mean         float64
	StdDev       float64
	Bottlenecked bool
}

func Summarize(p *Pool, minDiversity int) Summary {
	s := Summary{Size: p.Len(), MaxSize: p.MaxSize()}
	if p.Len() == 0 {
		return s
	}
	values := make([]float64, p.Len())
	for i, perf := range p.Performances() {
		values[i] = float64(perf)
	}
	s.Best = p.entries[0].Performance
	s.Worst = p.entries[len(p.entries)-1].Performance
	s.Spread = p.Spread()
	s.Bottlenecked = p.Bottlenecked(minDiversity)
	if len(values) < 2 {
		s.Mean = values[0]
		return s
	}
	s.Mean, s.StdDev = stat.MeanStdDev(values, nil)
	return s
}
