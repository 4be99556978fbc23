package sync

import (
	"context"
	"fmt"

	"github.com/idleforge/idlesync/pkg/conflict"
	"github.com/idleforge/idlesync/pkg/integrity"
	"github.com/idleforge/idlesync/pkg/log"
	"github.com/idleforge/idlesync/pkg/queue"
	"github.com/idleforge/idlesync/pkg/repositories"
	"github.com/idleforge/idlesync/pkg/snapshot"
	"github.com/idleforge/idlesync/pkg/validator"
	"github.com/idleforge/idlesync/pkg/workers"
)

// Service is the synchronization core. Each call is call-and-return:
// no mutable state is held across calls except the resolution history
// and security counters, both behind the repository.
type Service struct {
	resolver    *conflict.Resolver
	validator   *validator.Validator
	integrity   *integrity.Service
	repository  repositories.Repository
	keys        integrity.KeyProvider
	eventQueue  queue.Queue
	interactive bool
}

// NewServiceOptions contains options for creating a new Service.
type NewServiceOptions struct {
	Resolver   *conflict.Resolver
	Validator  *validator.Validator
	Integrity  *integrity.Service
	Repository repositories.Repository
	Keys       integrity.KeyProvider
	// EventQueue receives *workers.SecurityEventBatch items for async
	// persistence. Optional.
	EventQueue queue.Queue
	// Interactive controls whether conflicts no automatic strategy can
	// resolve are returned as pending prompts (true) or raised as
	// unresolvable (false).
	Interactive bool
}

func NewService(opts NewServiceOptions) *Service {
	return &Service{
		resolver:    opts.Resolver,
		validator:   opts.Validator,
		integrity:   opts.Integrity,
		repository:  opts.Repository,
		keys:        opts.Keys,
		eventQueue:  opts.EventQueue,
		interactive: opts.Interactive,
	}
}

// Reconcile merges a local (initiating device) and a remote snapshot.
// It returns either a merged candidate or the set of pending
// interactive conflicts blocking completion.
func (s *Service) Reconcile(ctx context.Context, userID string, local, remote *snapshot.Snapshot) (*ReconcileResult, error) {
	if local == nil && remote == nil {
		return nil, fmt.Errorf("both snapshots are nil")
	}
	if local == nil {
		return &ReconcileResult{Merged: remote.Clone()}, nil
	}
	if remote == nil {
		return &ReconcileResult{Merged: local.Clone()}, nil
	}

	conflicts := conflict.Detect(local, remote)
	if len(conflicts) == 0 {
		merged := local.Clone()
		if remote.Version > merged.Version {
			merged.Version = remote.Version
		}
		return &ReconcileResult{Merged: merged}, nil
	}

	resolutions, err := s.resolver.ResolveMultiple(ctx, userID, conflicts)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve conflicts: %v", err)
	}

	var pending []PendingConflict
	for i, res := range resolutions {
		if !res.Pending() {
			continue
		}
		if !s.interactive {
			return nil, &conflict.ErrUnresolvable{ConflictID: conflicts[i].ID, Path: conflicts[i].Path}
		}
		pending = append(pending, PendingConflict{
			Conflict: conflicts[i],
			Prompt:   s.resolver.UserPrompt(conflicts[i]),
		})
	}
	if len(pending) > 0 {
		log.Debug("Reconcile for user %s blocked on %d interactive conflicts", userID, len(pending))
		return &ReconcileResult{PendingConflicts: pending, Resolutions: resolutions}, nil
	}

	merged, err := merge(local, remote, conflicts, resolutions)
	if err != nil {
		return nil, err
	}
	return &ReconcileResult{Merged: merged, Resolutions: resolutions}, nil
}

// Push runs the full per-device-push flow: reconcile the pushed
// snapshot against the stored one, validate the merged candidate
// against the previously accepted state, then encrypt and persist it
// guarded by the version the push was based on.
func (s *Service) Push(ctx context.Context, identity Identity, pushed *snapshot.Snapshot, baseVersion, elapsedMs int64) (*PushResult, error) {
	if err := pushed.Validate(); err != nil {
		return nil, fmt.Errorf("malformed snapshot: %v", err)
	}

	userKey, err := s.keys.Key(ctx, identity.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to derive user key: %v", err)
	}

	previous, err := s.loadAccepted(ctx, identity, userKey)
	if err != nil {
		return nil, err
	}

	candidate := pushed
	var validation *validator.ValidationResult
	if previous != nil {
		result, err := s.Reconcile(ctx, identity.UserID, pushed, previous)
		if err != nil {
			return nil, err
		}
		if len(result.PendingConflicts) > 0 {
			return &PushResult{PendingConflicts: result.PendingConflicts}, nil
		}
		candidate = result.Merged

		validation = s.validator.Validate(previous, candidate, elapsedMs)
		s.enqueueEvents(identity.UserID, validation)
		if !validation.IsValid {
			log.Warn("Rejected push from user %s device %s with confidence %.2f",
				identity.UserID, identity.DeviceID, validation.ConfidenceScore)
			return &PushResult{Accepted: false, Validation: validation}, &ErrRejected{Result: validation}
		}
		candidate.Version = previous.Version + 1
		if candidate.Timestamp < previous.Timestamp {
			candidate.Timestamp = previous.Timestamp
		}
	}

	envelope, err := s.integrity.EncryptSnapshot(candidate, userKey)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt snapshot: %v", err)
	}
	if err := s.repository.SaveSnapshot(ctx, identity.UserID, identity.DeviceID, envelope, baseVersion); err != nil {
		return nil, err
	}

	return &PushResult{Accepted: true, Envelope: envelope, Validation: validation}, nil
}

// Latest returns the stored envelope for the identity's device.
func (s *Service) Latest(ctx context.Context, identity Identity) (*integrity.Envelope, error) {
	return s.repository.GetLatestSnapshot(ctx, identity.UserID, identity.DeviceID)
}

// ResumeConflict applies a user choice to one pending interactive
// conflict. Only that conflict is affected; the caller re-runs the
// push afterwards.
func (s *Service) ResumeConflict(ctx context.Context, identity Identity, c conflict.SyncConflict, choice string) (conflict.Resolution, error) {
	res, err := s.resolver.ApplyUserChoice(ctx, identity.UserID, c, choice)
	if err != nil {
		return conflict.Resolution{}, &conflict.ErrUnresolvable{ConflictID: c.ID, Path: c.Path}
	}
	return res, nil
}

// Validate exposes the anti-cheat pipeline directly.
func (s *Service) Validate(previous, current *snapshot.Snapshot, elapsedMs int64) *validator.ValidationResult {
	return s.validator.Validate(previous, current, elapsedMs)
}

// EncryptForStorage seals a snapshot for the identity's user.
func (s *Service) EncryptForStorage(ctx context.Context, identity Identity, snap *snapshot.Snapshot) (*integrity.Envelope, error) {
	userKey, err := s.keys.Key(ctx, identity.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to derive user key: %v", err)
	}
	return s.integrity.EncryptSnapshot(snap, userKey)
}

// DecryptFromStorage opens a stored envelope for the identity's user.
func (s *Service) DecryptFromStorage(ctx context.Context, identity Identity, env *integrity.Envelope) (*snapshot.Snapshot, error) {
	userKey, err := s.keys.Key(ctx, identity.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to derive user key: %v", err)
	}
	return s.integrity.DecryptSnapshot(env, userKey)
}

// loadAccepted returns the previously accepted snapshot for the
// identity, or nil on the first push of a user/device pair.
func (s *Service) loadAccepted(ctx context.Context, identity Identity, userKey string) (*snapshot.Snapshot, error) {
	env, err := s.repository.GetLatestSnapshot(ctx, identity.UserID, identity.DeviceID)
	if err != nil {
		if repositories.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load stored snapshot: %v", err)
	}
	snap, err := s.integrity.DecryptSnapshot(env, userKey)
	if err != nil {
		// A stored snapshot that fails its own trust path is corrupt;
		// fail closed rather than merging against it.
		return nil, err
	}
	return snap, nil
}

func (s *Service) enqueueEvents(userID string, result *validator.ValidationResult) {
	if s.eventQueue == nil {
		return
	}
	if len(result.Violations) == 0 && len(result.SuspiciousActivity) == 0 {
		return
	}
	batch := &workers.SecurityEventBatch{
		UserID:     userID,
		Violations: result.Violations,
		Suspicious: result.SuspiciousActivity,
	}
	if err := s.eventQueue.Enqueue(batch); err != nil {
		log.Error("Failed to enqueue security events for user %s: %v", userID, err)
	}
}
