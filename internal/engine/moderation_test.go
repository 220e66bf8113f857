package engine_test

import (
	"anonchat/backend/internal/engine"
	"anonchat/backend/internal/models"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordWarning_BanInChat(t *testing.T) {
	f := newFixture(t)
	id := f.pair(t, "A", "B")

	for want := 1; want <= f.policy.MaxWarnings; want++ {
		got, err := f.eng.ReportWarning(f.ctx, "A")
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	a := f.profile(t, "A")
	assert.True(t, a.IsBanned)
	assert.Equal(t, models.StatusIdle, a.Status)
	assert.Equal(t, models.StatusIdle, f.profile(t, "B").Status)
	assert.Equal(t, []models.NoticeKind{models.NoticeWarning, models.NoticeWarning, models.NoticeBanned}, f.rec.kinds("A"))
	assert.Equal(t, []models.NoticeKind{models.NoticeChatEndedPartnerBanned}, f.rec.kinds("B"))

	stored, ok := f.store.Session(id)
	require.True(t, ok)
	assert.Equal(t, string(models.EndByBan), stored.EndReason)
	assert.Equal(t, 0, f.clk.Pending())

	_, err := f.eng.RequestSearch(f.ctx, "A", nil)
	assert.ErrorIs(t, err, engine.ErrBanned)
}

func TestRecordWarning_IgnoredWhileBanned(t *testing.T) {
	f := newFixture(t)
	f.fund(t, "A", 0)
	require.NoError(t, f.eng.AdminBan(f.ctx, "A"))

	got, err := f.eng.RecordWarning(f.ctx, "A")

	require.NoError(t, err)
	assert.Equal(t, 0, got)
	assert.Equal(t, 0, f.profile(t, "A").WarningCount)
}

func TestBan_RemovesSearcherFromQueue(t *testing.T) {
	f := newFixture(t)
	_, err := f.eng.RequestSearch(f.ctx, "A", nil)
	require.NoError(t, err)

	require.NoError(t, f.eng.AdminBan(f.ctx, "A"))
	require.NoError(t, f.eng.AdminBan(f.ctx, "A"))

	assert.Equal(t, models.StatusIdle, f.profile(t, "A").Status)
	assert.Equal(t, 0, f.clk.Pending())
	assert.Len(t, f.rec.of("A", models.NoticeBanned), 1)

	// Nobody can be matched with a banned user.
	res, err := f.eng.RequestSearch(f.ctx, "B", nil)
	require.NoError(t, err)
	assert.False(t, res.Matched)
}

func TestAdminBan_UnknownUser(t *testing.T) {
	f := newFixture(t)

	assert.ErrorIs(t, f.eng.AdminBan(f.ctx, "ghost"), engine.ErrUnknownUser)
	assert.ErrorIs(t, f.eng.AdminUnban(f.ctx, "ghost"), engine.ErrUnknownUser)
}

func TestAdminUnban_ResetsWarnings(t *testing.T) {
	f := newFixture(t)
	f.pair(t, "A", "B")
	for i := 0; i < f.policy.MaxWarnings; i++ {
		_, err := f.eng.RecordWarning(f.ctx, "A")
		require.NoError(t, err)
	}

	require.NoError(t, f.eng.AdminUnban(f.ctx, "A"))

	a := f.profile(t, "A")
	assert.False(t, a.IsBanned)
	assert.Equal(t, 0, a.WarningCount)
	// The ended session stays ended.
	assert.Equal(t, models.StatusIdle, a.Status)
	assert.ErrorIs(t, f.eng.AdminUnban(f.ctx, "A"), engine.ErrNotBanned)

	got, err := f.eng.RecordWarning(f.ctx, "A")
	require.NoError(t, err)
	assert.Equal(t, 1, got)
}

func TestRequestUnban(t *testing.T) {
	f := newFixture(t)
	f.fund(t, "A", f.policy.UnbanCost-1)

	_, err := f.eng.RequestUnban(f.ctx, "A")
	assert.ErrorIs(t, err, engine.ErrNotBanned)

	require.NoError(t, f.eng.AdminBan(f.ctx, "A"))
	_, err = f.eng.RequestUnban(f.ctx, "A")
	var be *engine.BalanceError
	require.ErrorAs(t, err, &be)
	assert.Equal(t, f.policy.UnbanCost, be.Required)
	assert.Equal(t, f.policy.UnbanCost-1, be.Balance)
	a := f.profile(t, "A")
	assert.True(t, a.IsBanned)
	assert.Equal(t, f.policy.UnbanCost-1, a.Balance)

	_, err = f.eng.AdminCreditBalance(f.ctx, "A", 1)
	require.NoError(t, err)
	balance, err := f.eng.RequestUnban(f.ctx, "A")
	require.NoError(t, err)

	assert.Equal(t, int64(0), balance)
	a = f.profile(t, "A")
	assert.False(t, a.IsBanned)
	assert.Equal(t, 0, a.WarningCount)
	assert.Equal(t, int64(0), a.Balance)
}

func TestRequestUnban_StorageFailureIsAtomic(t *testing.T) {
	f := newFixture(t)
	f.fund(t, "A", f.policy.UnbanCost)
	require.NoError(t, f.eng.AdminBan(f.ctx, "A"))

	f.store.failing.Store(true)
	_, err := f.eng.RequestUnban(f.ctx, "A")
	f.store.failing.Store(false)

	require.Error(t, err)
	a := f.profile(t, "A")
	assert.True(t, a.IsBanned)
	assert.Equal(t, f.policy.UnbanCost, a.Balance)
	stored, err := f.store.LoadUser(f.ctx, "A")
	require.NoError(t, err)
	assert.True(t, stored.IsBanned)
	assert.Equal(t, f.policy.UnbanCost, stored.Balance)
}

func TestRequestUnban_ConcurrentOnlyOneSucceeds(t *testing.T) {
	f := newFixture(t)
	f.fund(t, "A", f.policy.UnbanCost)
	require.NoError(t, f.eng.AdminBan(f.ctx, "A"))

	var wg sync.WaitGroup
	results := make([]error, 2)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, results[i] = f.eng.RequestUnban(f.ctx, "A")
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range results {
		if err == nil {
			succeeded++
		} else {
			assert.ErrorIs(t, err, engine.ErrNotBanned)
		}
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, int64(0), f.profile(t, "A").Balance)
}
