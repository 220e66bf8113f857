package engine

import (
	"anonchat/backend/internal/clock"
	"anonchat/backend/internal/metrics"
	"anonchat/backend/internal/models"
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// SearchResult tells the caller whether a partner was found right away or
// the user is now waiting in the queue.
type SearchResult struct {
	Matched   bool
	PartnerID string
	SessionID string
}

// RequestSearch pairs the user with the oldest compatible searcher or, if
// there is none, puts them in the queue until SearchTimeout elapses.
// Searching with the premium interest unlocks it once for PremiumCost.
func (e *Engine) RequestSearch(ctx context.Context, userID string, interests []string) (SearchResult, error) {
	var out outbox
	defer e.flush(ctx, &out)

	e.mu.Lock()
	defer e.mu.Unlock()

	u, err := e.user(ctx, userID)
	if err != nil {
		return SearchResult{}, err
	}
	if u.IsBanned {
		return SearchResult{}, ErrBanned
	}
	if e.queue.Contains(userID) {
		return SearchResult{}, ErrAlreadySearching
	}
	if u.Status == models.StatusInChat {
		if _, err := e.activeSession(ctx, u, &out); err == nil {
			return SearchResult{}, ErrAlreadyInSession
		}
		// The stale session reference was cleared; search from idle.
		u = e.users[userID]
	}

	interests = normalizeInterests(interests)
	next := u.Clone()
	next.Interests = interests

	var charged int64
	if containsPremium(interests) && !next.UnlockedPremium {
		if next.Balance < e.policy.PremiumCost {
			return SearchResult{}, &BalanceError{Required: e.policy.PremiumCost, Balance: next.Balance}
		}
		next.Balance -= e.policy.PremiumCost
		next.UnlockedPremium = true
		charged = e.policy.PremiumCost
	}

	for {
		cand, ok := e.queue.FindCandidate(userID, interests)
		if !ok {
			break
		}
		partner, known := e.users[cand.UserID]
		if !known || partner.Status != models.StatusSearching || partner.IsBanned {
			log.Error().Str("module", "engine").Str("user_id", cand.UserID).Msg("queued user is not searching, dropping entry")
			e.removeFromQueue(ctx, cand.UserID)
			continue
		}
		s, err := e.startSession(ctx, partner, next, &out)
		if err != nil {
			return SearchResult{}, err
		}
		if charged > 0 {
			out.add(userID, models.Notice{Kind: models.NoticeBalanceDebited, Amount: charged, Balance: next.Balance})
		}
		return SearchResult{Matched: true, PartnerID: partner.ID, SessionID: s.rec.ID}, nil
	}

	next.Status = models.StatusSearching
	next.SessionID = ""
	if err := e.commit(ctx, next); err != nil {
		return SearchResult{}, err
	}
	now := e.clock.Now()
	if err := e.queue.Enqueue(userID, interests, now); err != nil {
		return SearchResult{}, err
	}
	if err := e.store.SaveQueueEntry(ctx, models.QueueEntry{UserID: userID, Interests: interests, EnqueuedAt: now}); err != nil {
		log.Warn().Str("module", "engine").Str("user_id", userID).Err(err).Msg("failed to persist queue entry")
	}
	e.armSearchTimer(userID, e.policy.SearchTimeout)
	e.observe()

	if charged > 0 {
		out.add(userID, models.Notice{Kind: models.NoticeBalanceDebited, Amount: charged, Balance: next.Balance})
	}
	out.add(userID, models.Notice{Kind: models.NoticeSearchWaiting})
	return SearchResult{}, nil
}

// CancelSearch takes the user out of the queue.
func (e *Engine) CancelSearch(ctx context.Context, userID string) error {
	var out outbox
	defer e.flush(ctx, &out)

	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.queue.Contains(userID) {
		return ErrNotSearching
	}
	e.removeFromQueue(ctx, userID)
	e.releaseSearcher(ctx, userID)
	out.add(userID, models.Notice{Kind: models.NoticeSearchCancelled})
	return nil
}

func (e *Engine) armSearchTimer(userID string, d time.Duration) {
	var t *clock.Timer
	t = e.clock.AfterFunc(d, func() { e.onSearchTimeout(userID, t) })
	e.searchTimers[userID] = t
}

// onSearchTimeout expires a search unless the entry it was armed for is gone.
func (e *Engine) onSearchTimeout(userID string, t *clock.Timer) {
	ctx := context.Background()
	var out outbox
	defer e.flush(ctx, &out)

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.searchTimers[userID] != t {
		return
	}
	e.removeFromQueue(ctx, userID)
	e.releaseSearcher(ctx, userID)
	metrics.SearchTimeoutsTotal.Inc()
	out.add(userID, models.Notice{Kind: models.NoticeSearchTimeout})
}

// removeFromQueue drops the entry, its timer and its persisted copy. The
// user's status is left to the caller.
func (e *Engine) removeFromQueue(ctx context.Context, userID string) {
	if t, ok := e.searchTimers[userID]; ok {
		t.Stop()
		delete(e.searchTimers, userID)
	}
	if !e.queue.Dequeue(userID) {
		return
	}
	if err := e.store.DeleteQueueEntry(ctx, userID); err != nil {
		log.Warn().Str("module", "engine").Str("user_id", userID).Err(err).Msg("failed to delete persisted queue entry")
	}
	e.observe()
}

func (e *Engine) releaseSearcher(ctx context.Context, userID string) {
	u, ok := e.users[userID]
	if !ok || u.Status != models.StatusSearching {
		return
	}
	next := u.Clone()
	next.ResetToIdle()
	e.forceCommit(ctx, next)
}

// normalizeInterests trims labels, drops empties and duplicates, keeping order.
func normalizeInterests(in []string) []string {
	var out []string
	seen := make(map[string]struct{}, len(in))
	for _, s := range in {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
