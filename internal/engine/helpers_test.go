package engine_test

import (
	"anonchat/backend/internal/clock"
	"anonchat/backend/internal/config"
	"anonchat/backend/internal/engine"
	"anonchat/backend/internal/models"
	"anonchat/backend/internal/storage"
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

// recorder is a Notifier that keeps every notice per user.
type recorder struct {
	mu      sync.Mutex
	notices map[string][]models.Notice
	down    map[string]bool
}

func newRecorder() *recorder {
	return &recorder{notices: make(map[string][]models.Notice), down: make(map[string]bool)}
}

func (r *recorder) Notify(_ context.Context, userID string, n models.Notice) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.down[userID] {
		return errors.New("user unreachable")
	}
	r.notices[userID] = append(r.notices[userID], n)
	return nil
}

func (r *recorder) setDown(userID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.down[userID] = true
}

func (r *recorder) kinds(userID string) []models.NoticeKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.NoticeKind
	for _, n := range r.notices[userID] {
		out = append(out, n.Kind)
	}
	return out
}

func (r *recorder) of(userID string, kind models.NoticeKind) []models.Notice {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Notice
	for _, n := range r.notices[userID] {
		if n.Kind == kind {
			out = append(out, n)
		}
	}
	return out
}

func (r *recorder) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notices = make(map[string][]models.Notice)
}

// MockNames is a DisplayNames collaborator.
type MockNames struct {
	mock.Mock
}

func (m *MockNames) DisplayName(_ context.Context, userID string) (string, error) {
	args := m.Called(userID)
	return args.String(0), args.Error(1)
}

// flakyStore fails user saves while failing is set.
type flakyStore struct {
	*storage.MemoryStorage
	failing atomic.Bool
}

func (f *flakyStore) SaveUser(ctx context.Context, u *models.User) error {
	if f.failing.Load() {
		return errors.New("database is down")
	}
	return f.MemoryStorage.SaveUser(ctx, u)
}

type fixture struct {
	ctx    context.Context
	eng    *engine.Engine
	store  *flakyStore
	clk    *clock.FakeClock
	rec    *recorder
	names  *MockNames
	policy config.Policy
}

func newFixture(t *testing.T, tweak ...func(*config.Policy)) *fixture {
	t.Helper()
	policy := config.DefaultPolicy()
	for _, fn := range tweak {
		fn(&policy)
	}
	f := &fixture{
		ctx:    context.Background(),
		store:  &flakyStore{MemoryStorage: storage.NewMemoryStorage()},
		clk:    clock.Fake(t0),
		rec:    newRecorder(),
		names:  new(MockNames),
		policy: policy,
	}
	f.eng = engine.NewEngine(f.store, f.rec, f.names, f.clk, policy)
	t.Cleanup(func() {
		require.NoError(t, f.eng.Verify())
	})
	return f
}

// pair matches a and b and clears the recorded notices.
func (f *fixture) pair(t *testing.T, a, b string) string {
	t.Helper()
	res, err := f.eng.RequestSearch(f.ctx, a, nil)
	require.NoError(t, err)
	require.False(t, res.Matched)
	res, err = f.eng.RequestSearch(f.ctx, b, nil)
	require.NoError(t, err)
	require.True(t, res.Matched)
	require.Equal(t, a, res.PartnerID)
	f.rec.reset()
	return res.SessionID
}

// fund creates the user with the given balance and clears the notices.
func (f *fixture) fund(t *testing.T, userID string, amount int64) {
	t.Helper()
	_, _, err := f.eng.EnsureUser(f.ctx, userID, "")
	require.NoError(t, err)
	if amount > 0 {
		_, err = f.eng.AdminCreditBalance(f.ctx, userID, amount)
		require.NoError(t, err)
	}
	f.rec.reset()
}

func (f *fixture) profile(t *testing.T, userID string) models.User {
	t.Helper()
	u, err := f.eng.Profile(f.ctx, userID)
	require.NoError(t, err)
	return u
}
