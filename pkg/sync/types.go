package sync

import (
	"github.com/idleforge/idlesync/pkg/conflict"
	"github.com/idleforge/idlesync/pkg/integrity"
	"github.com/idleforge/idlesync/pkg/snapshot"
	"github.com/idleforge/idlesync/pkg/validator"
)

// Identity is the verified (user, session, device) triple supplied by
// the session authority. It is trusted as given and never re-derived
// here.
type Identity struct {
	UserID    string `json:"userId"`
	SessionID string `json:"sessionId"`
	DeviceID  string `json:"deviceId"`
}

// PendingConflict is an interactive conflict blocking a reconcile pass,
// together with the prompt to show the user. It is resumable later by
// conflict id without restarting the pass.
type PendingConflict struct {
	Conflict conflict.SyncConflict `json:"conflict"`
	Prompt   conflict.Prompt       `json:"prompt"`
}

// ReconcileResult is either a merged snapshot or the set of pending
// interactive conflicts blocking completion.
type ReconcileResult struct {
	Merged           *snapshot.Snapshot    `json:"merged,omitempty"`
	PendingConflicts []PendingConflict     `json:"pendingConflicts,omitempty"`
	Resolutions      []conflict.Resolution `json:"resolutions,omitempty"`
}

// PushResult reports the outcome of one device push.
type PushResult struct {
	Accepted         bool                        `json:"accepted"`
	Envelope         *integrity.Envelope         `json:"envelope,omitempty"`
	Validation       *validator.ValidationResult `json:"validation,omitempty"`
	PendingConflicts []PendingConflict           `json:"pendingConflicts,omitempty"`
}

// ErrRejected marks a push whose merged candidate failed validation.
// The caller must quarantine or discard the update, never persist it.
type ErrRejected struct {
	Result *validator.ValidationResult
}

func (e *ErrRejected) Error() string {
	return "push rejected by state validation"
}

// IsRejected reports whether err is an ErrRejected.
func IsRejected(err error) bool {
	_, ok := err.(*ErrRejected)
	return ok
}
