// Package storage maps logical slot identifiers to their backing image store
// and tracks the active in-memory image per slot.
package storage

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
)

// Sentinel errors
var (
	ErrSlotNotFound = errors.New("storage slot not found")
	ErrNotActive    = errors.New("no active image; SetActive must be called first")
)

// ImageStore is the persistence backend a slot pages its image in from.
type ImageStore interface {
	LoadImage(ctx context.Context, slot string) ([]byte, error)
}

// Locator resolves slot identifiers to slots. The slot set is fixed at
// construction; slots are never destroyed while the process runs.
type Locator struct {
	slots map[string]*Slot
}

func NewLocator(st ImageStore, slotIDs []string) *Locator {
	slots := make(map[string]*Slot, len(slotIDs))
	for _, id := range slotIDs {
		slots[id] = &Slot{id: id, store: st}
	}
	return &Locator{slots: slots}
}

// Find returns the slot for id, or ErrSlotNotFound. Unknown ids are a
// request-level error for callers, never a process fault.
func (l *Locator) Find(id string) (*Slot, error) {
	s, ok := l.slots[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrSlotNotFound, id)
	}
	return s, nil
}

// SlotIDs returns the configured slot identifiers in sorted order.
func (l *Locator) SlotIDs() []string {
	ids := make([]string, 0, len(l.slots))
	for id := range l.slots {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Slot is one logical storage region holding at most one active image at a
// time. SetActive pages the current persisted image into memory; ReadActive
// requires a prior SetActive. The mutex serializes same-slot activation
// against reads; unrelated slots never contend.
type Slot struct {
	id    string
	store ImageStore

	mu     sync.Mutex
	active []byte
}

func (s *Slot) ID() string {
	return s.id
}

// SetActive loads the slot's persisted image and makes it the active one.
// Repeated calls are safe; each call re-reads and re-validates the stored
// image, so an update applied between calls becomes visible.
func (s *Slot) SetActive(ctx context.Context) error {
	data, err := s.store.LoadImage(ctx, s.id)
	if err != nil {
		return fmt.Errorf("activating slot %s: %w", s.id, err)
	}
	s.mu.Lock()
	s.active = data
	s.mu.Unlock()
	return nil
}

// ReadActive returns the active image bytes. The returned slice is the
// paged-in copy and stays valid even if the slot is re-activated afterwards.
func (s *Slot) ReadActive() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active == nil {
		return nil, fmt.Errorf("slot %s: %w", s.id, ErrNotActive)
	}
	return s.active, nil
}
