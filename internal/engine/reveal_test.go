package engine_test

import (
	"anonchat/backend/internal/config"
	"anonchat/backend/internal/engine"
	"anonchat/backend/internal/models"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolve(t *testing.T) {
	tests := []struct {
		a, b engine.Decision
		want engine.Outcome
	}{
		{engine.Agreed, engine.Agreed, engine.OutcomeExchanged},
		{engine.Agreed, engine.Declined, engine.OutcomeDeclined},
		{engine.Declined, engine.Agreed, engine.OutcomeDeclined},
		{engine.Declined, engine.Declined, engine.OutcomeDeclined},
		{engine.Undecided, engine.Agreed, engine.OutcomePending},
		{engine.Declined, engine.Undecided, engine.OutcomePending},
		{engine.Undecided, engine.Undecided, engine.OutcomePending},
	}
	for _, tt := range tests {
		t.Run(tt.a.String()+"_"+tt.b.String(), func(t *testing.T) {
			got := engine.Resolve(map[string]engine.Decision{"a": tt.a, "b": tt.b})
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRevealRequest_Decide(t *testing.T) {
	r := engine.NewRevealRequest("a", "b")

	assert.ErrorIs(t, r.Decide("stranger", true), engine.ErrNoActiveRequest)
	require.NoError(t, r.Decide("a", true))
	assert.ErrorIs(t, r.Decide("a", false), engine.ErrAlreadyDecided)
	assert.Equal(t, engine.OutcomePending, r.Outcome())

	require.NoError(t, r.Decide("b", true))
	assert.Equal(t, engine.OutcomeExchanged, r.Outcome())
	assert.Equal(t, engine.Agreed, r.Decisions()["a"])
}

func TestReveal_BothAgreeExchangesNamesOnce(t *testing.T) {
	f := newFixture(t)
	f.pair(t, "A", "B")
	f.names.On("DisplayName", "A").Return("Alice", nil).Once()
	f.names.On("DisplayName", "B").Return("Bob", nil).Once()

	require.NoError(t, f.eng.RequestReveal(f.ctx, "A"))
	require.NoError(t, f.eng.RequestReveal(f.ctx, "B")) // already pending
	require.NoError(t, f.eng.DecideReveal(f.ctx, "A", true))
	assert.Empty(t, f.rec.of("A", models.NoticeRevealNames))
	require.NoError(t, f.eng.DecideReveal(f.ctx, "B", true))

	assert.Len(t, f.rec.of("A", models.NoticeRevealOffer), 1)
	namesA := f.rec.of("A", models.NoticeRevealNames)
	namesB := f.rec.of("B", models.NoticeRevealNames)
	require.Len(t, namesA, 1)
	require.Len(t, namesB, 1)
	assert.Equal(t, "Bob", namesA[0].Name)
	assert.Equal(t, "Alice", namesB[0].Name)
	f.names.AssertExpectations(t)

	// The chat continues and the request is gone.
	assert.Equal(t, models.StatusInChat, f.profile(t, "A").Status)
	assert.ErrorIs(t, f.eng.DecideReveal(f.ctx, "A", true), engine.ErrNoActiveRequest)
}

func TestReveal_AnyDeclineMeansNoNames(t *testing.T) {
	cases := []struct {
		name   string
		aAgree bool
		bAgree bool
	}{
		{"a declines", false, true},
		{"b declines", true, false},
		{"both decline", false, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			f.pair(t, "A", "B")

			require.NoError(t, f.eng.RequestReveal(f.ctx, "B"))
			require.NoError(t, f.eng.DecideReveal(f.ctx, "A", tc.aAgree))
			require.NoError(t, f.eng.DecideReveal(f.ctx, "B", tc.bAgree))

			for _, id := range []string{"A", "B"} {
				assert.Empty(t, f.rec.of(id, models.NoticeRevealNames))
				assert.Len(t, f.rec.of(id, models.NoticeRevealDeclined), 1)
				assert.Equal(t, models.StatusInChat, f.profile(t, id).Status)
			}
			f.names.AssertNotCalled(t, "DisplayName", "A")
		})
	}
}

func TestReveal_DisplayNameFailureFallsBack(t *testing.T) {
	f := newFixture(t)
	f.pair(t, "A", "B")
	f.names.On("DisplayName", "A").Return("", errors.New("chat not found"))
	f.names.On("DisplayName", "B").Return("Bob", nil)

	require.NoError(t, f.eng.RequestReveal(f.ctx, "A"))
	require.NoError(t, f.eng.DecideReveal(f.ctx, "A", true))
	require.NoError(t, f.eng.DecideReveal(f.ctx, "B", true))

	namesB := f.rec.of("B", models.NoticeRevealNames)
	require.Len(t, namesB, 1)
	assert.Equal(t, engine.UnknownName, namesB[0].Name)
}

func TestReveal_StoredNameCoversMissingLiveName(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.eng.RememberName(f.ctx, "A", "Ann"))
	require.NoError(t, f.eng.RememberName(f.ctx, "A", ""), "empty names are ignored")
	f.pair(t, "A", "B")
	f.names.On("DisplayName", "A").Return("", errors.New("client not connected"))
	f.names.On("DisplayName", "B").Return("Bob", nil)

	require.NoError(t, f.eng.RequestReveal(f.ctx, "A"))
	require.NoError(t, f.eng.DecideReveal(f.ctx, "A", true))
	require.NoError(t, f.eng.DecideReveal(f.ctx, "B", true))

	namesB := f.rec.of("B", models.NoticeRevealNames)
	require.Len(t, namesB, 1)
	assert.Equal(t, "Ann", namesB[0].Name)

	stored, err := f.store.LoadUser(f.ctx, "A")
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, "Ann", stored.DisplayName)
}

func TestReveal_LiveNameWinsOverStoredName(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.eng.RememberName(f.ctx, "A", "Old Ann"))
	f.pair(t, "A", "B")
	f.names.On("DisplayName", "A").Return("Ann (@ann)", nil)
	f.names.On("DisplayName", "B").Return("Bob", nil)

	require.NoError(t, f.eng.RequestReveal(f.ctx, "A"))
	require.NoError(t, f.eng.DecideReveal(f.ctx, "A", true))
	require.NoError(t, f.eng.DecideReveal(f.ctx, "B", true))

	namesB := f.rec.of("B", models.NoticeRevealNames)
	require.Len(t, namesB, 1)
	assert.Equal(t, "Ann (@ann)", namesB[0].Name)
}

func TestReveal_DecideErrors(t *testing.T) {
	f := newFixture(t)
	f.pair(t, "A", "B")

	assert.ErrorIs(t, f.eng.DecideReveal(f.ctx, "A", true), engine.ErrNoActiveRequest)
	assert.ErrorIs(t, f.eng.DecideReveal(f.ctx, "outsider", true), engine.ErrNoActiveRequest)
	assert.ErrorIs(t, f.eng.RequestReveal(f.ctx, "outsider"), engine.ErrNotInChat)

	require.NoError(t, f.eng.RequestReveal(f.ctx, "A"))
	require.NoError(t, f.eng.DecideReveal(f.ctx, "A", false))
	assert.ErrorIs(t, f.eng.DecideReveal(f.ctx, "A", true), engine.ErrAlreadyDecided)
	assert.Equal(t, engine.KindProtocol, engine.KindOf(engine.ErrAlreadyDecided))
}

func TestReveal_ChatDeadlineOffersThenWindowEndsSession(t *testing.T) {
	f := newFixture(t)
	f.pair(t, "A", "B")

	f.clk.Advance(f.policy.ChatDuration)

	assert.Equal(t, []models.NoticeKind{models.NoticeRevealOffer}, f.rec.kinds("A"))
	assert.Equal(t, []models.NoticeKind{models.NoticeRevealOffer}, f.rec.kinds("B"))
	assert.Equal(t, models.StatusInChat, f.profile(t, "A").Status)

	require.NoError(t, f.eng.DecideReveal(f.ctx, "A", true))
	f.clk.Advance(f.policy.RevealWindow)

	for _, id := range []string{"A", "B"} {
		assert.Equal(t, []models.NoticeKind{models.NoticeRevealOffer, models.NoticeChatEndedTimeout}, f.rec.kinds(id))
		assert.Equal(t, models.StatusIdle, f.profile(t, id).Status)
		assert.Empty(t, f.rec.of(id, models.NoticeRevealNames))
	}
	assert.Equal(t, 0, f.clk.Pending())
}

func TestReveal_DeclinedChatContinuesAndCanRetry(t *testing.T) {
	f := newFixture(t)
	f.pair(t, "A", "B")

	require.NoError(t, f.eng.RequestReveal(f.ctx, "A"))
	require.NoError(t, f.eng.DecideReveal(f.ctx, "A", false))
	require.NoError(t, f.eng.DecideReveal(f.ctx, "B", false))

	// The window timer is gone with the request.
	f.clk.Advance(f.policy.RevealWindow * 2)
	assert.Equal(t, models.StatusInChat, f.profile(t, "A").Status)

	require.NoError(t, f.eng.RequestReveal(f.ctx, "B"))
	assert.Len(t, f.rec.of("A", models.NoticeRevealOffer), 2)
}

func TestReveal_EndAfterRevealPolicy(t *testing.T) {
	f := newFixture(t, func(p *config.Policy) { p.EndAfterReveal = true })
	f.pair(t, "A", "B")
	f.names.On("DisplayName", "A").Return("Alice", nil)
	f.names.On("DisplayName", "B").Return("Bob", nil)

	require.NoError(t, f.eng.RequestReveal(f.ctx, "A"))
	require.NoError(t, f.eng.DecideReveal(f.ctx, "A", true))
	require.NoError(t, f.eng.DecideReveal(f.ctx, "B", true))

	assert.Equal(t, []models.NoticeKind{
		models.NoticeRevealOffer,
		models.NoticeRevealNames,
		models.NoticeChatEndedTimeout,
	}, f.rec.kinds("A"))
	assert.Equal(t, models.StatusIdle, f.profile(t, "B").Status)
	assert.Equal(t, 0, f.clk.Pending())
}

func TestReveal_EndChatDiscardsPendingRequest(t *testing.T) {
	f := newFixture(t)
	f.pair(t, "A", "B")

	require.NoError(t, f.eng.RequestReveal(f.ctx, "A"))
	require.NoError(t, f.eng.DecideReveal(f.ctx, "A", true))
	require.NoError(t, f.eng.EndChat(f.ctx, "B"))
	f.rec.reset()

	f.clk.Advance(f.policy.ChatDuration + f.policy.RevealWindow)

	assert.Empty(t, f.rec.kinds("A"))
	assert.Empty(t, f.rec.kinds("B"))
	assert.ErrorIs(t, f.eng.DecideReveal(f.ctx, "B", true), engine.ErrNoActiveRequest)
	f.names.AssertNotCalled(t, "DisplayName", "A")
}
