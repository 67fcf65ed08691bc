// Package pool keeps the ranked population of controllers that cooperating
// optimizer processes share through the filesystem.
package pool

import "robosim/internal/nn"

// Entry pairs a network with its cost. Lower performance is better.
type Entry struct {
	Network     *nn.Network
	Performance int
}

// Pool is a process-private, rank-sorted mirror of the shared population.
type Pool struct {
	maxSize int
	entries []Entry
}

func New(maxSize int) *Pool {
	return &Pool{maxSize: maxSize}
}

func (p *Pool) MaxSize() int {
	return p.maxSize
}

func (p *Pool) Len() int {
	return len(p.entries)
}

func (p *Pool) Entry(i int) Entry {
	return p.entries[i]
}

func (p *Pool) Entries() []Entry {
	return append([]Entry(nil), p.entries...)
}

func (p *Pool) Performances() []int {
	out := make([]int, len(p.entries))
	for i, e := range p.entries {
		out[i] = e.Performance
	}
	return out
}

func (p *Pool) Best() (Entry, bool) {
	if len(p.entries) == 0 {
		return Entry{}, false
	}
	return p.entries[0], true
}

func (p *Pool) Worst() (Entry, bool) {
	if len(p.entries) == 0 {
		return Entry{}, false
	}
	return p.entries[len(p.entries)-1], true
}

// Spread is worst minus best performance, zero for an empty pool.
func (p *Pool) Spread() int {
	if len(p.entries) == 0 {
		return 0
	}
	return p.entries[len(p.entries)-1].Performance - p.entries[0].Performance
}

func (p *Pool) Contains(performance int) bool {
	return p.Index(performance) >= 0
}

// Index returns the first rank holding performance, or -1.
func (p *Pool) Index(performance int) int {
	for i, e := range p.entries {
		if e.Performance == performance {
			return i
		}
	}
	return -1
}

// Insert adds a combination result unless an entry with the same performance
// already exists. It returns the rank the entry settled at.
func (p *Pool) Insert(e Entry) (int, bool) {
	if p.Contains(e.Performance) {
		return -1, false
	}
	return p.Append(e), true
}

// Replace swaps the entry at rank i for e when e is strictly better.
func (p *Pool) Replace(i int, e Entry) (int, bool) {
	if i < 0 || i >= len(p.entries) || e.Performance >= p.entries[i].Performance {
		return i, false
	}
	p.entries[i] = e
	return p.siftUp(i), true
}

// Append adds e unconditionally and returns its rank.
func (p *Pool) Append(e Entry) int {
	p.entries = append(p.entries, e)
	return p.siftUp(len(p.entries) - 1)
}

// Trim drops the single worst entry when the pool is over capacity.
func (p *Pool) Trim() bool {
	if len(p.entries) <= p.maxSize {
		return false
	}
	p.entries[len(p.entries)-1] = Entry{}
	p.entries = p.entries[:len(p.entries)-1]
	return true
}

// Bottlenecked reports a full pool whose spread collapsed below minDiversity.
func (p *Pool) Bottlenecked(minDiversity int) bool {
	return len(p.entries) == p.maxSize && p.Spread() < minDiversity
}

// siftUp walks the entry at i toward the front while it beats its neighbour.
// Only one entry changes per operation, so this keeps the pool sorted.
func (p *Pool) siftUp(i int) int {
	for ; i > 0 && p.entries[i].Performance < p.entries[i-1].Performance; i-- {
		p.entries[i], p.entries[i-1] = p.entries[i-1], p.entries[i]
	}
	return i
}
