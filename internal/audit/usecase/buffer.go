package usecase

import (
	"sync"

	outboxDomain "github.com/allisson/auditpipe/internal/outbox/domain"
)

// ringBuffer is a bounded FIFO of outbox items that evicts its oldest entry
// when full. Newest events are favored over stale ones because recent
// governance events are assumed more actionable.
type ringBuffer struct {
	mu       sync.Mutex
	items    []*outboxDomain.OutboxItem
	head     int
	size     int
	capacity int
}

// newRingBuffer creates a ring buffer with the given capacity (minimum 1).
func newRingBuffer(capacity int) *ringBuffer {
	if capacity < 1 {
		capacity = 1
	}
	return &ringBuffer{
		items:    make([]*outboxDomain.OutboxItem, capacity),
		capacity: capacity,
	}
}

// Push appends an item, evicting and returning the oldest entry when the
// buffer is full. Returns nil when nothing was evicted.
func (b *ringBuffer) Push(item *outboxDomain.OutboxItem) *outboxDomain.OutboxItem {
	b.mu.Lock()
	defer b.mu.Unlock()

	var evicted *outboxDomain.OutboxItem
	if b.size == b.capacity {
		evicted = b.items[b.head]
		b.items[b.head] = nil
		b.head = (b.head + 1) % b.capacity
		b.size--
	}

	tail := (b.head + b.size) % b.capacity
	b.items[tail] = item
	b.size++
	return evicted
}

// PeekOldest returns the oldest item without removing it.
func (b *ringBuffer) PeekOldest() (*outboxDomain.OutboxItem, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.size == 0 {
		return nil, false
	}
	return b.items[b.head], true
}

// RemoveIfOldest removes the oldest item only if it is still the given one.
// Returns false when the head changed concurrently (e.g. evicted by a Push).
func (b *ringBuffer) RemoveIfOldest(item *outboxDomain.OutboxItem) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.size == 0 || b.items[b.head] != item {
		return false
	}
	b.items[b.head] = nil
	b.head = (b.head + 1) % b.capacity
	b.size--
	return true
}

// Len reports the number of buffered items.
func (b *ringBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.size
}
