// File: core/iterator.go
// Author: momentics <momentics@gmail.com>
//
// Iterator is the caller-facing view of the channels touched by the cycle
// just completed by Array.Enter. It is a one-shot forward walk over the
// transfer list built that cycle; Next advances it, Channel exposes the
// current entry for inspection (Events, Transfer, Terminated, Link).

package core

// Iterator walks the transfer list of a single Enter call; an entry may
// carry no events (for example, a stop with nothing moved).
type Iterator struct {
	cur   *Channel
	began bool
}

func newIterator(head *Channel) *Iterator {
	return &Iterator{cur: head}
}

// Next advances the iterator to the next channel, returning false once
// exhausted. Call Next before the first Channel access.
func (it *Iterator) Next() bool {
	if !it.began {
		it.began = true
		return it.cur != nil
	}
	if it.cur == nil {
		return false
	}
	it.cur = it.cur.xferNext
	return it.cur != nil
}

// Channel returns the channel at the iterator's current position. Valid
// only after a call to Next returned true.
func (it *Iterator) Channel() *Channel {
	return it.cur
}

// Len reports how many channels remain from the iterator's current position
// to the end of the transfer list (the current entry included), without
// consuming the iterator.
func (it *Iterator) Len() int {
	n := 0
	for c := it.cur; c != nil; c = c.xferNext {
		n++
	}
	return n
}
