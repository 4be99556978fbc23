package sync

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/idleforge/idlesync/pkg/catalog"
	"github.com/idleforge/idlesync/pkg/conflict"
	"github.com/idleforge/idlesync/pkg/integrity"
	"github.com/idleforge/idlesync/pkg/queue"
	"github.com/idleforge/idlesync/pkg/repositories"
	"github.com/idleforge/idlesync/pkg/snapshot"
	"github.com/idleforge/idlesync/pkg/validator"
	"github.com/idleforge/idlesync/pkg/workers"
)

func testCatalog() catalog.Catalog {
	return catalog.NewStaticCatalog(
		[]*catalog.BuildingDef{
			{
				ID:             "mine",
				Name:           "Copper Mine",
				Produces:       "copper",
				BaseProduction: decimal.NewFromInt(1),
				CostResource:   "copper",
				BaseCost:       decimal.NewFromInt(10),
				CostGrowth:     1.15,
			},
		},
		nil, nil,
	)
}

type testEnv struct {
	service    *Service
	repository *repositories.InMemoryRepository
	eventQueue *queue.InMemoryQueue
	identity   Identity
}

func newTestEnv(t *testing.T, interactive bool) *testEnv {
	t.Helper()
	repository := repositories.NewInMemoryRepository()
	eventQueue := queue.NewInMemoryQueue(100)
	keys, err := integrity.NewDerivedKeyProvider([]byte("test-root-secret"))
	require.NoError(t, err)

	service := NewService(NewServiceOptions{
		Resolver: conflict.NewResolver(conflict.NewResolverOptions{
			History:         repositories.History(repository),
			RememberChoices: true,
		}),
		Validator: validator.NewValidator(validator.NewValidatorOptions{
			Catalog: testCatalog(),
		}),
		Integrity:   integrity.NewService(integrity.NewServiceOptions{Iterations: 1000}),
		Repository:  repository,
		Keys:        keys,
		EventQueue:  eventQueue,
		Interactive: interactive,
	})
	return &testEnv{
		service:    service,
		repository: repository,
		eventQueue: eventQueue,
		identity:   Identity{UserID: "user-1", SessionID: "session-1", DeviceID: "device-1"},
	}
}

// playerState is a snapshot with a level-5 mine producing 5 copper/s.
func playerState(version, timestamp int64) *snapshot.Snapshot {
	s := snapshot.New()
	s.Version = version
	s.Timestamp = timestamp
	s.PlayTime = timestamp
	s.Resources["copper"] = decimal.NewFromInt(1000)
	s.LifetimeProduced["copper"] = decimal.NewFromInt(5000)
	s.Buildings["mine"] = snapshot.BuildingState{Level: 5, Multiplier: decimal.NewFromInt(1), Unlocked: true}
	return s
}

// progress advances a snapshot by elapsedMs of steady production.
func progress(s *snapshot.Snapshot, elapsedMs int64) *snapshot.Snapshot {
	next := s.Clone()
	gain := decimal.NewFromInt(5 * elapsedMs / 1000)
	next.Timestamp += elapsedMs
	next.PlayTime += elapsedMs
	next.Resources["copper"] = s.Resources["copper"].Add(gain)
	next.LifetimeProduced["copper"] = s.LifetimeProduced["copper"].Add(gain)
	return next
}

func TestPushFirstAndFollowUp(t *testing.T) {
	env := newTestEnv(t, true)
	ctx := context.Background()

	first := playerState(1, 1_000_000)
	result, err := env.service.Push(ctx, env.identity, first, 0, 0)
	require.NoError(t, err)
	assert.True(t, result.Accepted)
	require.NotNil(t, result.Envelope)
	assert.Equal(t, int64(1), result.Envelope.Version)
	// First pushes have no accepted predecessor to validate against.
	assert.Nil(t, result.Validation)

	stored, err := env.service.Latest(ctx, env.identity)
	require.NoError(t, err)
	assert.Equal(t, result.Envelope.Checksum, stored.Checksum)

	// A follow-up push of legitimately progressed state is accepted and
	// bumps the stored version.
	second := progress(first, 60_000)
	result, err = env.service.Push(ctx, env.identity, second, 1, 60_000)
	require.NoError(t, err)
	assert.True(t, result.Accepted)
	assert.Equal(t, int64(2), result.Envelope.Version)
	require.NotNil(t, result.Validation)
	assert.True(t, result.Validation.IsValid)

	// The stored envelope decrypts back to the accepted state.
	snap, err := env.service.DecryptFromStorage(ctx, env.identity, result.Envelope)
	require.NoError(t, err)
	assert.True(t, snap.Resources["copper"].Equal(second.Resources["copper"]))
}

func TestPushRejectsTamperedState(t *testing.T) {
	env := newTestEnv(t, true)
	ctx := context.Background()

	first := playerState(1, 1_000_000)
	_, err := env.service.Push(ctx, env.identity, first, 0, 0)
	require.NoError(t, err)

	tampered := progress(first, 60_000)
	tampered.Resources["copper"] = decimal.NewFromInt(1_000_000)
	tampered.LifetimeProduced["copper"] = decimal.NewFromInt(1_000_000)

	result, err := env.service.Push(ctx, env.identity, tampered, 1, 60_000)
	require.Error(t, err)
	assert.True(t, IsRejected(err))
	require.NotNil(t, result)
	assert.False(t, result.Accepted)
	require.NotNil(t, result.Validation)
	assert.False(t, result.Validation.IsValid)

	// The stored snapshot is untouched.
	stored, err := env.service.Latest(ctx, env.identity)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stored.Version)

	// The findings were queued for async persistence.
	assert.Greater(t, env.eventQueue.Size(), 0)
}

func TestPushStaleBaseVersion(t *testing.T) {
	env := newTestEnv(t, true)
	ctx := context.Background()

	first := playerState(1, 1_000_000)
	_, err := env.service.Push(ctx, env.identity, first, 0, 0)
	require.NoError(t, err)

	// A device that never saw the first write pushes with base 0.
	second := progress(first, 60_000)
	_, err = env.service.Push(ctx, env.identity, second, 0, 60_000)
	require.Error(t, err)
	assert.True(t, repositories.IsVersionConflict(err))
}

func TestPushMalformedSnapshot(t *testing.T) {
	env := newTestEnv(t, true)
	bad := playerState(1, 1_000_000)
	bad.Resources["copper"] = decimal.NewFromInt(-5)

	_, err := env.service.Push(context.Background(), env.identity, bad, 0, 0)
	assert.Error(t, err)
}

func TestPushPendingConflictAndResume(t *testing.T) {
	env := newTestEnv(t, true)
	ctx := context.Background()

	first := playerState(1, 1_000_000)
	first.PrestigeCurrency = decimal.NewFromInt(10)
	_, err := env.service.Push(ctx, env.identity, first, 0, 0)
	require.NoError(t, err)

	// The pushed state disagrees about prestige currency, which is never
	// auto-resolved.
	pushed := progress(first, 60_000)
	pushed.PrestigeCurrency = decimal.NewFromInt(40)

	result, err := env.service.Push(ctx, env.identity, pushed, 1, 60_000)
	require.NoError(t, err)
	assert.False(t, result.Accepted)
	require.Len(t, result.PendingConflicts, 1)
	pending := result.PendingConflicts[0]
	assert.Equal(t, "prestigeCurrency", pending.Conflict.Path)
	assert.Equal(t, []string{"local", "remote", "merge"}, pending.Prompt.Options)

	// The user keeps the stored (remote) side. The choice is recorded,
	// so the retried push resolves without prompting again.
	res, err := env.service.ResumeConflict(ctx, env.identity, pending.Conflict, "remote")
	require.NoError(t, err)
	assert.Equal(t, conflict.StrategyUserDriven, res.Type)

	retried, err := env.service.Push(ctx, env.identity, pushed, 1, 60_000)
	require.NoError(t, err)
	assert.True(t, retried.Accepted)

	snap, err := env.service.DecryptFromStorage(ctx, env.identity, retried.Envelope)
	require.NoError(t, err)
	assert.True(t, snap.PrestigeCurrency.Equal(decimal.NewFromInt(10)),
		"remote choice keeps the stored prestige currency")
}

func TestPushUnresolvableWhenNotInteractive(t *testing.T) {
	env := newTestEnv(t, false)
	ctx := context.Background()

	first := playerState(1, 1_000_000)
	first.PrestigeCurrency = decimal.NewFromInt(10)
	_, err := env.service.Push(ctx, env.identity, first, 0, 0)
	require.NoError(t, err)

	pushed := progress(first, 60_000)
	pushed.PrestigeCurrency = decimal.NewFromInt(40)

	_, err = env.service.Push(ctx, env.identity, pushed, 1, 60_000)
	require.Error(t, err)
	assert.True(t, conflict.IsUnresolvable(err))
}

func TestResumeConflictRejectsUnknownChoice(t *testing.T) {
	env := newTestEnv(t, true)
	c := conflict.SyncConflict{
		ID:          "c1",
		Path:        "prestigeCurrency",
		Severity:    conflict.SeverityHigh,
		LocalValue:  decimal.NewFromInt(1),
		RemoteValue: decimal.NewFromInt(2),
	}
	_, err := env.service.ResumeConflict(context.Background(), env.identity, c, "both")
	require.Error(t, err)
	assert.True(t, conflict.IsUnresolvable(err))
}

func TestReconcileNilSides(t *testing.T) {
	env := newTestEnv(t, true)
	ctx := context.Background()
	s := playerState(3, 1_000_000)

	result, err := env.service.Reconcile(ctx, "user-1", s, nil)
	require.NoError(t, err)
	assert.Equal(t, s.Version, result.Merged.Version)

	result, err = env.service.Reconcile(ctx, "user-1", nil, s)
	require.NoError(t, err)
	assert.Equal(t, s.Version, result.Merged.Version)

	_, err = env.service.Reconcile(ctx, "user-1", nil, nil)
	assert.Error(t, err)
}

func TestReconcileConcurrentAccrual(t *testing.T) {
	// Two devices accrue independently from a common base with the same
	// timestamp; the concurrent resource divergence is summed.
	env := newTestEnv(t, true)
	base := playerState(1, 1_000_000)

	local := base.Clone()
	local.Resources["copper"] = decimal.NewFromInt(1400)
	remote := base.Clone()
	remote.Resources["copper"] = decimal.NewFromInt(1600)

	result, err := env.service.Reconcile(context.Background(), "user-1", local, remote)
	require.NoError(t, err)
	require.NotNil(t, result.Merged)
	assert.True(t, result.Merged.Resources["copper"].Equal(decimal.NewFromInt(3000)),
		"got %s", result.Merged.Resources["copper"])
	assert.Greater(t, result.Merged.Version, base.Version)
}

func TestReconcileNewResourceType(t *testing.T) {
	// A resource type present on only one side resolves by recency: the
	// newer side keeps or drops the key, and the merge never errors.
	env := newTestEnv(t, true)
	base := playerState(1, 1_000_000)

	local := base.Clone()
	local.Timestamp = base.Timestamp + 60_000
	local.Resources["iron"] = decimal.NewFromInt(25)
	local.LifetimeProduced["iron"] = decimal.NewFromInt(25)

	result, err := env.service.Reconcile(context.Background(), "user-1", local, base)
	require.NoError(t, err)
	require.NotNil(t, result.Merged)
	assert.True(t, result.Merged.Resources["iron"].Equal(decimal.NewFromInt(25)))
	assert.True(t, result.Merged.Lifetime("iron").Equal(decimal.NewFromInt(25)))

	// The side missing the key being newer drops the key instead.
	older := base.Clone()
	older.Timestamp = base.Timestamp - 60_000
	older.Resources["iron"] = decimal.NewFromInt(25)
	older.LifetimeProduced["iron"] = decimal.NewFromInt(25)

	result, err = env.service.Reconcile(context.Background(), "user-1", older, base)
	require.NoError(t, err)
	require.NotNil(t, result.Merged)
	_, ok := result.Merged.Resources["iron"]
	assert.False(t, ok)
	_, ok = result.Merged.LifetimeProduced["iron"]
	assert.False(t, ok)
}

func TestReconcileAchievementUnion(t *testing.T) {
	env := newTestEnv(t, true)
	base := playerState(1, 1_000_000)

	local := base.Clone()
	local.Achievements = []string{"first_copper", "deep_shafts"}
	remote := base.Clone()
	remote.Achievements = []string{"first_copper", "copper_baron"}

	result, err := env.service.Reconcile(context.Background(), "user-1", local, remote)
	require.NoError(t, err)
	require.NotNil(t, result.Merged)
	assert.Equal(t, []string{"copper_baron", "deep_shafts", "first_copper"}, result.Merged.Achievements)
}

func TestReconcileBuildingLevels(t *testing.T) {
	// Concurrent building purchases merge per key, taking the higher
	// level rather than dropping one device's progress.
	env := newTestEnv(t, true)
	base := playerState(1, 1_000_000)

	local := base.Clone()
	local.Buildings["mine"] = snapshot.BuildingState{Level: 6, Multiplier: decimal.NewFromInt(1), Unlocked: true}
	remote := base.Clone()
	remote.Buildings["mine"] = snapshot.BuildingState{Level: 8, Multiplier: decimal.NewFromInt(1), Unlocked: true}

	result, err := env.service.Reconcile(context.Background(), "user-1", local, remote)
	require.NoError(t, err)
	require.NotNil(t, result.Merged)
	assert.Equal(t, int64(8), result.Merged.Buildings["mine"].Level)
	assert.True(t, result.Merged.Buildings["mine"].Unlocked)
}

func TestSecurityEventWorkerPersistsFindings(t *testing.T) {
	env := newTestEnv(t, true)
	ctx := context.Background()

	batch := &workers.SecurityEventBatch{
		UserID: "user-1",
		Violations: []validator.SecurityEvent{
			{ID: "e1", Type: validator.ViolationProductionOverflow, Severity: validator.SeverityHigh},
		},
		Suspicious: []validator.SecurityEvent{
			{ID: "e2", Type: validator.SuspicionPlaytimeMismatch, Severity: validator.SeverityMedium},
		},
	}
	require.NoError(t, env.eventQueue.Enqueue(batch))

	worker := workers.NewSecurityEventWorker(workers.NewSecurityEventWorkerOptions{
		Repository: env.repository,
		EventQueue: env.eventQueue,
		Interval:   time.Millisecond,
	})
	workerCtx, cancel := context.WithCancel(ctx)
	cancel()
	// A cancelled context still drains once before returning.
	worker.Start(workerCtx)

	counters, err := env.repository.GetSecurityCounters(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), counters.Violations)
	assert.Equal(t, int64(1), counters.Suspicions)
}
