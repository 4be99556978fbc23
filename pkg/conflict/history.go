package conflict

import (
	"context"
	"strings"
	"sync"
)

// HistoryStore is an append-only log of conflict resolutions, keyed by
// conflict path, shared between service instances so memoized user
// choices do not diverge.
type HistoryStore interface {
	// Record appends one resolution record.
	Record(ctx context.Context, rec Record) error
	// Find returns the most recent record for the user matching the
	// conflict id exactly or sharing a path prefix, or nil when none.
	Find(ctx context.Context, userID, conflictID, path string) (*Record, error)
}

// InMemoryHistory is a HistoryStore for tests and single-node use.
type InMemoryHistory struct {
	lock    sync.RWMutex
	records []Record
}

func NewInMemoryHistory() *InMemoryHistory {
	return &InMemoryHistory{}
}

func (h *InMemoryHistory) Record(_ context.Context, rec Record) error {
	h.lock.Lock()
	defer h.lock.Unlock()
	h.records = append(h.records, rec)
	return nil
}

func (h *InMemoryHistory) Find(_ context.Context, userID, conflictID, path string) (*Record, error) {
	h.lock.RLock()
	defer h.lock.RUnlock()
	for i := len(h.records) - 1; i >= 0; i-- {
		rec := h.records[i]
		if rec.UserID != userID {
			continue
		}
		if rec.ConflictID == conflictID || PathsRelated(rec.Path, path) {
			out := rec
			return &out, nil
		}
	}
	return nil, nil
}

// PathsRelated reports whether two conflict paths refer to the same
// field or one is a prefix segment of the other.
func PathsRelated(a, b string) bool {
	if a == b {
		return true
	}
	return strings.HasPrefix(a, b+".") || strings.HasPrefix(b, a+".")
}
