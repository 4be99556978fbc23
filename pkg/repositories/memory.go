package repositories

import (
	"context"
	"sync"

	"github.com/idleforge/idlesync/pkg/conflict"
	"github.com/idleforge/idlesync/pkg/integrity"
	"github.com/idleforge/idlesync/pkg/validator"
)

// InMemoryRepository is a Repository for tests and single-process use.
type InMemoryRepository struct {
	lock        sync.RWMutex
	snapshots   map[string]*integrity.Envelope
	resolutions []conflict.Record
	events      map[string][]validator.SecurityEvent
	counters    map[string]*SecurityCounters
}

func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		snapshots: make(map[string]*integrity.Envelope),
		events:    make(map[string][]validator.SecurityEvent),
		counters:  make(map[string]*SecurityCounters),
	}
}

func snapshotKey(userID, deviceID string) string {
	return userID + "/" + deviceID
}

func (r *InMemoryRepository) Close(ctx context.Context) error {
	return nil
}

func (r *InMemoryRepository) GetLatestSnapshot(ctx context.Context, userID, deviceID string) (*integrity.Envelope, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()
	env, ok := r.snapshots[snapshotKey(userID, deviceID)]
	if !ok {
		return nil, &ErrNotFound{}
	}
	out := *env
	return &out, nil
}

func (r *InMemoryRepository) SaveSnapshot(ctx context.Context, userID, deviceID string, env *integrity.Envelope, baseVersion int64) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	key := snapshotKey(userID, deviceID)
	current, ok := r.snapshots[key]
	if !ok {
		if baseVersion != 0 {
			return &ErrVersionConflict{Expected: baseVersion, Actual: 0}
		}
	} else if current.Version != baseVersion {
		return &ErrVersionConflict{Expected: baseVersion, Actual: current.Version}
	}
	stored := *env
	r.snapshots[key] = &stored
	return nil
}

func (r *InMemoryRepository) RecordResolution(ctx context.Context, rec conflict.Record) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.resolutions = append(r.resolutions, rec)
	return nil
}

func (r *InMemoryRepository) FindResolution(ctx context.Context, userID, conflictID, path string) (*conflict.Record, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()
	for i := len(r.resolutions) - 1; i >= 0; i-- {
		rec := r.resolutions[i]
		if rec.UserID != userID {
			continue
		}
		if rec.ConflictID == conflictID || conflict.PathsRelated(rec.Path, path) {
			out := rec
			return &out, nil
		}
	}
	return nil, nil
}

func (r *InMemoryRepository) SaveSecurityEvents(ctx context.Context, userID string, events []validator.SecurityEvent) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.events[userID] = append(r.events[userID], events...)
	return nil
}

func (r *InMemoryRepository) IncrementSecurityCounters(ctx context.Context, userID string, violations, suspicions int64) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	c, ok := r.counters[userID]
	if !ok {
		c = &SecurityCounters{UserID: userID}
		r.counters[userID] = c
	}
	c.Violations += violations
	c.Suspicions += suspicions
	return nil
}

func (r *InMemoryRepository) GetSecurityCounters(ctx context.Context, userID string) (*SecurityCounters, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()
	c, ok := r.counters[userID]
	if !ok {
		return nil, &ErrNotFound{}
	}
	out := *c
	return &out, nil
}
