package conflict

// ConflictType classifies how two snapshots diverged at a path.
type ConflictType string

const (
	ConflictTypeValueMismatch          ConflictType = "VALUE_MISMATCH"
	ConflictTypeConcurrentModification ConflictType = "CONCURRENT_MODIFICATION"
	ConflictTypeStructuralChange       ConflictType = "STRUCTURAL_CHANGE"
)

// Severity classifies the risk of resolving a conflict automatically.
type Severity int

const (
	SeverityLow Severity = iota
	SeverityMedium
	SeverityHigh
)

func (s Severity) String() string {
	switch s {
	case SeverityLow:
		return "LOW"
	case SeverityMedium:
		return "MEDIUM"
	case SeverityHigh:
		return "HIGH"
	default:
		return "UNKNOWN"
	}
}

// SyncConflict is a detected divergence between a local and a remote
// snapshot for the same logical field.
type SyncConflict struct {
	ID              string       `json:"id"`
	Path            string       `json:"path"`
	Type            ConflictType `json:"type"`
	Severity        Severity     `json:"severity"`
	LocalValue      interface{}  `json:"localValue"`
	RemoteValue     interface{}  `json:"remoteValue"`
	LocalTimestamp  int64        `json:"localTimestamp"`
	RemoteTimestamp int64        `json:"remoteTimestamp"`
}

// Strategy tags carried on resolutions.
const (
	StrategyLastWriteWins = "last_write_wins"
	StrategyAdditiveMerge = "additive_merge"
	StrategyArrayMerge    = "array_merge"
	StrategySmartMerge    = "smart_merge"
	StrategyUserDriven    = "user_driven"

	// ResolutionUserRequired marks a resolution that is pending an
	// external user choice.
	ResolutionUserRequired = "user_required"
)

// Resolution is the outcome of resolving one conflict.
type Resolution struct {
	Type      string      `json:"type"`
	Value     interface{} `json:"value"`
	Reason    string      `json:"reason"`
	Automatic bool        `json:"automatic"`
}

// Pending reports whether the resolution is blocked on a user choice.
func (r Resolution) Pending() bool {
	return r.Type == ResolutionUserRequired
}

// Record is an append-only history entry for a resolved conflict, keyed
// by conflict path so prior user choices can be replayed.
type Record struct {
	ConflictID string `json:"conflictId"`
	UserID     string `json:"userId"`
	Path       string `json:"path"`
	Strategy   string `json:"strategy"`
	UserChoice string `json:"userChoice,omitempty"`
	Automatic  bool   `json:"automatic"`
	Timestamp  int64  `json:"timestamp"`
}

// Prompt describes an interactive conflict to a user.
type Prompt struct {
	Message string   `json:"message"`
	Options []string `json:"options"`
}

// ErrUnresolvable is returned when no automatic strategy applies to a
// conflict and no user choice is available. Callers must surface it
// rather than defaulting, which would risk unacknowledged data loss.
type ErrUnresolvable struct {
	ConflictID string
	Path       string
}

func (e *ErrUnresolvable) Error() string {
	return "unresolvable conflict " + e.ConflictID + " at " + e.Path
}

// IsUnresolvable reports whether err is an ErrUnresolvable.
func IsUnresolvable(err error) bool {
	_, ok := err.(*ErrUnresolvable)
	return ok
}
