// Scuttle - Modular Web Backend Dispatcher
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/scuttle

package jobqueue

import "time"

// entry is a job waiting in the queue.
type entry struct {
	job    Job
	runAt  time.Time
	repeat time.Duration
	seq    uint64
	index  int // position in the heap array
}

// before orders entries by due time, then by submission order.
func (e *entry) before(o *entry) bool {
	if e.runAt.Equal(o.runAt) {
		return e.seq < o.seq
	}
	return e.runAt.Before(o.runAt)
}

// delayHeap is a min-heap of entries ordered by due time. It is not safe
// for concurrent use; Queue guards it with its own mutex.
type delayHeap struct {
	items []*entry
}

func (h *delayHeap) Len() int { return len(h.items) }

func (h *delayHeap) push(e *entry) {
	e.index = len(h.items)
	h.items = append(h.items, e)
	h.bubbleUp(e.index)
}

// peek returns the earliest entry or nil.
func (h *delayHeap) peek() *entry {
	if len(h.items) == 0 {
		return nil
	}
	return h.items[0]
}

// pop removes and returns the earliest entry or nil.
func (h *delayHeap) pop() *entry {
	if len(h.items) == 0 {
		return nil
	}
	return h.removeAt(0)
}

// removeJob removes the earliest-due entry holding job, compared by identity.
func (h *delayHeap) removeJob(job Job) *entry {
	var found *entry
	for _, e := range h.items {
		if e.job == job && (found == nil || e.before(found)) {
			found = e
		}
	}
	if found == nil {
		return nil
	}
	return h.removeAt(found.index)
}

// drain empties the heap and returns its entries in due order.
func (h *delayHeap) drain() []*entry {
	out := make([]*entry, 0, len(h.items))
	for len(h.items) > 0 {
		out = append(out, h.removeAt(0))
	}
	return out
}

// sorted returns a due-ordered copy without modifying the heap.
func (h *delayHeap) sorted() []*entry {
	cp := delayHeap{items: make([]*entry, len(h.items))}
	for i, e := range h.items {
		c := *e
		c.index = i
		cp.items[i] = &c
	}
	return cp.drain()
}

func (h *delayHeap) removeAt(i int) *entry {
	n := len(h.items) - 1
	e := h.items[i]
	if i != n {
		h.items[i] = h.items[n]
		h.items[i].index = i
	}
	h.items[n] = nil
	h.items = h.items[:n]
	if i != n {
		if !h.bubbleUp(i) {
			h.bubbleDown(i)
		}
	}
	e.index = -1
	return e
}

func (h *delayHeap) bubbleUp(i int) bool {
	moved := false
	for i > 0 {
		parent := (i - 1) / 2
		if !h.items[i].before(h.items[parent]) {
			break
		}
		h.swap(i, parent)
		i = parent
		moved = true
	}
	return moved
}

func (h *delayHeap) bubbleDown(i int) {
	n := len(h.items)
	for {
		smallest := i
		left, right := 2*i+1, 2*i+2
		if left < n && h.items[left].before(h.items[smallest]) {
			smallest = left
		}
		if right < n && h.items[right].before(h.items[smallest]) {
			smallest = right
		}
		if smallest == i {
			return
		}
		h.swap(i, smallest)
		i = smallest
	}
}

func (h *delayHeap) swap(i, j int) {
	h.items[i], h.items[j] = h.items[j], h.items[i]
	h.items[i].index = i
	h.items[j].index = j
}
