package workers

import (
	"context"
	"time"

	"github.com/idleforge/idlesync/pkg/log"
	"github.com/idleforge/idlesync/pkg/queue"
	"github.com/idleforge/idlesync/pkg/repositories"
	"github.com/idleforge/idlesync/pkg/validator"
)

// SecurityEventBatch is one user's findings from a single push.
type SecurityEventBatch struct {
	UserID     string
	Violations []validator.SecurityEvent
	Suspicious []validator.SecurityEvent
}

type SecurityEventWorker struct {
	repository repositories.Repository
	eventQueue queue.Queue
	interval   time.Duration
}

type NewSecurityEventWorkerOptions struct {
	Repository repositories.Repository
	EventQueue queue.Queue
	Interval   time.Duration
}

// NewSecurityEventWorker creates a new SecurityEventWorker.
// The worker drains validator findings queued by the sync service and
// persists them, keeping the reconcile path itself call-and-return.
func NewSecurityEventWorker(opts NewSecurityEventWorkerOptions) *SecurityEventWorker {
	return &SecurityEventWorker{
		repository: opts.Repository,
		eventQueue: opts.EventQueue,
		interval:   opts.Interval,
	}
}

func (w *SecurityEventWorker) Start(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.drain(context.Background())
			return
		case <-ticker.C:
			w.drain(ctx)
		}
	}
}

func (w *SecurityEventWorker) drain(ctx context.Context) {
	pending, err := w.eventQueue.ReadAllMessages()
	if err != nil {
		log.Error("Failed to read security event queue: %v", err)
		return
	}
	for _, item := range pending {
		batch, ok := item.(*SecurityEventBatch)
		if !ok {
			log.Error("Unknown security event queue item: %T", item)
			continue
		}
		w.persist(ctx, batch)
	}
}

func (w *SecurityEventWorker) persist(ctx context.Context, batch *SecurityEventBatch) {
	events := append(append([]validator.SecurityEvent{}, batch.Violations...), batch.Suspicious...)
	if len(events) == 0 {
		return
	}
	if err := w.repository.SaveSecurityEvents(ctx, batch.UserID, events); err != nil {
		log.Error("Failed to save security events for user %s: %v", batch.UserID, err)
	}
	if err := w.repository.IncrementSecurityCounters(ctx, batch.UserID,
		int64(len(batch.Violations)), int64(len(batch.Suspicious))); err != nil {
		log.Error("Failed to increment security counters for user %s: %v", batch.UserID, err)
	}
}
