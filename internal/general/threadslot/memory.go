package threadslot

import (
	"context"
	"sync"

	"guardline/internal/ports"
)

// MemorySlot is a bounded in-memory slot store sharing the ThreadSlot
// contract. It keeps offline/demo deployments working without Redis; when
// the bound is hit the oldest-written slot is evicted.
type MemorySlot struct {
	mu      sync.Mutex
	maxSize int
	blobs   map[string][]byte
	order   []string // insertion order for eviction
}

// NewMemorySlot creates an in-memory slot store holding at most maxSize
// bookings (0 means an unbounded store).
func NewMemorySlot(maxSize int) *MemorySlot {
	return &MemorySlot{
		maxSize: maxSize,
		blobs:   make(map[string][]byte),
	}
}

// Save overwrites the snapshot blob for a booking, evicting the oldest slot
// when the bound is exceeded.
func (s *MemorySlot) Save(_ context.Context, bookingID string, blob []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.blobs[bookingID]; !exists {
		s.order = append(s.order, bookingID)
		if s.maxSize > 0 && len(s.order) > s.maxSize {
			oldest := s.order[0]
			s.order = s.order[1:]
			delete(s.blobs, oldest)
		}
	}

	cp := make([]byte, len(blob))
	copy(cp, blob)
	s.blobs[bookingID] = cp
	return nil
}

// Load returns the snapshot blob, or ErrSlotEmpty when none exists.
func (s *MemorySlot) Load(_ context.Context, bookingID string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	blob, ok := s.blobs[bookingID]
	if !ok {
		return nil, ports.ErrSlotEmpty
	}
	cp := make([]byte, len(blob))
	copy(cp, blob)
	return cp, nil
}
