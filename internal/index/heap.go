// GrepWise - Log Search, Alerting, and Real-Time Streaming
// Copyright 2026 GrepWise Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/grepwise/grepwise

package index

import (
	"container/heap"
	"sort"

	"github.com/grepwise/grepwise/internal/models"
)

// eventBefore is the global result order: effective timestamp descending,
// ties broken by id ascending. ULIDs sort lexicographically in creation
// order, so the tie-break is stable and roughly chronological.
func eventBefore(a, b *models.LogEvent) bool {
	at, bt := a.EffectiveTime(), b.EffectiveTime()
	if !at.Equal(bt) {
		return at.After(bt)
	}
	return a.ID < b.ID
}

// topKHeap keeps the best k events under eventBefore while merging
// per-partition result streams. It is a min-heap on the ordering, so the
// root is the current worst candidate and gets displaced first.
type topKHeap struct {
	k     int
	items []*models.LogEvent
}

func newTopKHeap(k int) *topKHeap {
	return &topKHeap{k: k}
}

func (h *topKHeap) Len() int { return len(h.items) }

func (h *topKHeap) Less(i, j int) bool {
	// Inverted: the worst-ranked event sits at the root.
	return eventBefore(h.items[j], h.items[i])
}

func (h *topKHeap) Swap(i, j int) { h.items[i], h.items[j] = h.items[j], h.items[i] }

func (h *topKHeap) Push(x any) { h.items = append(h.items, x.(*models.LogEvent)) }

func (h *topKHeap) Pop() any {
	n := len(h.items)
	it := h.items[n-1]
	h.items[n-1] = nil
	h.items = h.items[:n-1]
	return it
}

// Offer inserts an event, evicting the worst when the heap is over k.
func (h *topKHeap) Offer(ev *models.LogEvent) {
	if h.k > 0 && len(h.items) == h.k {
		// Reject events that rank at or below the current worst.
		if !eventBefore(ev, h.items[0]) {
			return
		}
		h.items[0] = ev
		heap.Fix(h, 0)
		return
	}
	heap.Push(h, ev)
}

// Sorted drains the heap into eventBefore order.
func (h *topKHeap) Sorted() []*models.LogEvent {
	out := make([]*models.LogEvent, len(h.items))
	copy(out, h.items)
	sort.Slice(out, func(i, j int) bool { return eventBefore(out[i], out[j]) })
	h.items = nil
	return out
}
