package conflict

import (
	"context"
	"fmt"
	"time"

	"github.com/idleforge/idlesync/pkg/log"
)

// Resolver resolves snapshot conflicts through an ordered table of
// (predicate, resolver) pairs. The first applicable strategy wins;
// conflicts no automatic strategy can handle are left to the user.
type Resolver struct {
	history         HistoryStore
	rememberChoices bool
	strategies      []strategy
}

// NewResolverOptions contains options for creating a new Resolver.
type NewResolverOptions struct {
	History HistoryStore
	// RememberChoices replays a user's prior resolution for the same
	// conflict path instead of re-prompting.
	RememberChoices bool
}

func NewResolver(opts NewResolverOptions) *Resolver {
	history := opts.History
	if history == nil {
		history = NewInMemoryHistory()
	}
	return &Resolver{
		history:         history,
		rememberChoices: opts.RememberChoices,
		strategies:      defaultStrategies(),
	}
}

// Resolve resolves a single conflict for a user. High-severity conflicts
// and conflicts no automatic strategy matches yield a pending
// user_required resolution.
func (r *Resolver) Resolve(ctx context.Context, userID string, c SyncConflict) (Resolution, error) {
	if r.rememberChoices {
		if rec, err := r.history.Find(ctx, userID, c.ID, c.Path); err != nil {
			return Resolution{}, fmt.Errorf("failed to look up resolution history: %v", err)
		} else if rec != nil {
			if res, ok := r.replay(ctx, userID, c, rec); ok {
				return res, nil
			}
		}
	}

	// UserDriven is the default whenever severity is high or nothing
	// automatic matched.
	if c.Severity >= SeverityHigh {
		return r.pending(c), nil
	}

	for _, s := range r.strategies {
		if !s.applies(c) {
			continue
		}
		res := s.resolve(c)
		if err := r.record(ctx, userID, c, res, ""); err != nil {
			return Resolution{}, err
		}
		log.Debug("Resolved %s via %s", Describe(c), res.Type)
		return res, nil
	}

	return r.pending(c), nil
}

// ResolveMultiple resolves a batch of conflicts. Conflicts are grouped
// by type for logging, but each is resolved independently: no
// resolution depends on another's outcome.
func (r *Resolver) ResolveMultiple(ctx context.Context, userID string, conflicts []SyncConflict) ([]Resolution, error) {
	groups := make(map[ConflictType]int)
	for _, c := range conflicts {
		groups[c.Type]++
	}
	for typ, n := range groups {
		log.Debug("Resolving %d %s conflicts for user %s", n, typ, userID)
	}

	resolutions := make([]Resolution, len(conflicts))
	for i, c := range conflicts {
		res, err := r.Resolve(ctx, userID, c)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve conflict %s: %v", c.ID, err)
		}
		resolutions[i] = res
	}
	return resolutions, nil
}

// UserPrompt describes an interactive conflict and the choices the user
// may make.
func (r *Resolver) UserPrompt(c SyncConflict) Prompt {
	return Prompt{
		Message: fmt.Sprintf("Your devices disagree about %s (local: %v, remote: %v). Which version should be kept?",
			c.Path, c.LocalValue, c.RemoteValue),
		Options: []string{"local", "remote", "merge"},
	}
}

// ApplyUserChoice resolves a pending conflict with an explicit user
// choice of "local", "remote", or "merge".
func (r *Resolver) ApplyUserChoice(ctx context.Context, userID string, c SyncConflict, choice string) (Resolution, error) {
	var value interface{}
	switch choice {
	case "local":
		value = c.LocalValue
	case "remote":
		value = c.RemoteValue
	case "merge":
		value = mergeValues(c.LocalValue, c.RemoteValue)
	default:
		return Resolution{}, fmt.Errorf("unknown user choice: %s", choice)
	}

	res := Resolution{
		Type:      StrategyUserDriven,
		Value:     value,
		Reason:    fmt.Sprintf("user chose %s", choice),
		Automatic: false,
	}
	if err := r.record(ctx, userID, c, res, choice); err != nil {
		return Resolution{}, err
	}
	return res, nil
}

// replay reapplies a previously recorded resolution to a new conflict
// at the same path. Returns false when the recorded strategy no longer
// applies to the conflict's values.
func (r *Resolver) replay(ctx context.Context, userID string, c SyncConflict, rec *Record) (Resolution, bool) {
	if rec.Strategy == StrategyUserDriven && rec.UserChoice != "" {
		res, err := r.ApplyUserChoice(ctx, userID, c, rec.UserChoice)
		if err != nil {
			log.Warn("Failed to replay user choice %q for %s: %v", rec.UserChoice, c.Path, err)
			return Resolution{}, false
		}
		res.Reason = fmt.Sprintf("replayed remembered choice %q", rec.UserChoice)
		res.Automatic = true
		return res, true
	}
	for _, s := range r.strategies {
		if s.name != rec.Strategy || !s.applies(c) {
			continue
		}
		res := s.resolve(c)
		res.Reason = "replayed remembered strategy: " + res.Reason
		if err := r.record(ctx, userID, c, res, ""); err != nil {
			log.Warn("Failed to record replayed resolution for %s: %v", c.Path, err)
			return Resolution{}, false
		}
		return res, true
	}
	return Resolution{}, false
}

func (r *Resolver) pending(c SyncConflict) Resolution {
	return Resolution{
		Type:      ResolutionUserRequired,
		Reason:    "no automatic strategy applies; user input required",
		Automatic: false,
	}
}

func (r *Resolver) record(ctx context.Context, userID string, c SyncConflict, res Resolution, choice string) error {
	rec := Record{
		ConflictID: c.ID,
		UserID:     userID,
		Path:       c.Path,
		Strategy:   res.Type,
		UserChoice: choice,
		Automatic:  res.Automatic,
		Timestamp:  time.Now().UnixMilli(),
	}
	if err := r.history.Record(ctx, rec); err != nil {
		return fmt.Errorf("failed to record resolution: %v", err)
	}
	return nil
}
