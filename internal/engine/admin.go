package engine

import (
	"anonchat/backend/internal/models"
	"context"
	"sort"

	"github.com/rs/zerolog/log"
)

// AdminStats reads the current counters. It changes nothing.
func (e *Engine) AdminStats(ctx context.Context) (models.Stats, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	agg, err := e.store.UserStats(ctx)
	if err != nil {
		return models.Stats{}, err
	}
	inChat := 0
	for _, s := range e.sessions {
		for _, id := range s.participants() {
			if u, ok := e.users[id]; ok && u.Status == models.StatusInChat && u.SessionID == s.rec.ID {
				inChat++
			}
		}
	}
	return models.Stats{
		TotalUsers:     agg.TotalUsers,
		UsersInChat:    inChat,
		ActiveSessions: len(e.sessions),
		BannedUsers:    agg.BannedUsers,
		QueueDepth:     e.queue.Len(),
		TotalBalance:   agg.TotalBalance,
		TotalReferrals: agg.TotalReferrals,
	}, nil
}

// AdminTerminateAll ends every active session through the regular teardown
// and returns how many were ended.
func (e *Engine) AdminTerminateAll(ctx context.Context) int {
	var out outbox
	defer e.flush(ctx, &out)

	e.mu.Lock()
	defer e.mu.Unlock()

	ids := make([]string, 0, len(e.sessions))
	for id := range e.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		e.teardown(ctx, e.sessions[id], models.EndByAdmin, "", &out)
	}
	log.Info().Str("module", "engine").Int("count", len(ids)).Msg("all sessions terminated by admin")
	return len(ids)
}
