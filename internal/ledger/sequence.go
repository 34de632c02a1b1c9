package ledger

import "sync/atomic"

// Sequence hands out strictly increasing ids starting at 1.
type Sequence struct {
	counter int64
}

// NewSequence creates a sequence whose first id is 1.
func NewSequence() *Sequence {
	return &Sequence{}
}

// Next returns the next id. Ids are never reused.
func (s *Sequence) Next() int64 {
	return atomic.AddInt64(&s.counter, 1)
}

// Last returns the most recently issued id, or 0.
func (s *Sequence) Last() int64 {
	return atomic.LoadInt64(&s.counter)
}
