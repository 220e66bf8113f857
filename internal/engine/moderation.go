package engine

import (
	"anonchat/backend/internal/metrics"
	"anonchat/backend/internal/models"
	"context"

	"github.com/rs/zerolog/log"
)

// ReportWarning is the entry point for content checks done outside the
// engine. It behaves like RecordWarning.
func (e *Engine) ReportWarning(ctx context.Context, userID string) (int, error) {
	return e.RecordWarning(ctx, userID)
}

// RecordWarning adds a strike and returns the new count. Reaching
// MaxWarnings bans the user. Warnings against an already banned user are
// ignored until they are unbanned.
func (e *Engine) RecordWarning(ctx context.Context, userID string) (int, error) {
	var out outbox
	defer e.flush(ctx, &out)

	e.mu.Lock()
	defer e.mu.Unlock()

	u, err := e.user(ctx, userID)
	if err != nil {
		return 0, err
	}
	if u.IsBanned {
		return u.WarningCount, nil
	}

	next := u.Clone()
	next.WarningCount++
	banned := next.WarningCount >= e.policy.MaxWarnings
	if banned {
		next.IsBanned = true
	}
	if err := e.commit(ctx, next); err != nil {
		return u.WarningCount, err
	}
	metrics.WarningsTotal.Inc()

	if banned {
		metrics.BansTotal.WithLabelValues("auto").Inc()
		log.Warn().Str("module", "engine").Str("user_id", userID).Int("warnings", next.WarningCount).Msg("user banned after warnings")
		e.enforceBan(ctx, userID, &out)
		out.add(userID, models.Notice{Kind: models.NoticeBanned, Count: next.WarningCount, Limit: e.policy.MaxWarnings, Amount: e.policy.UnbanCost})
	} else {
		out.add(userID, models.Notice{Kind: models.NoticeWarning, Count: next.WarningCount, Limit: e.policy.MaxWarnings})
	}
	return next.WarningCount, nil
}

// enforceBan takes a freshly banned user out of the queue or their session.
// The partner is told the chat ended because of a ban.
func (e *Engine) enforceBan(ctx context.Context, userID string, out *outbox) {
	if e.queue.Contains(userID) {
		e.removeFromQueue(ctx, userID)
		e.releaseSearcher(ctx, userID)
	}
	u := e.users[userID]
	if u.Status != models.StatusInChat {
		return
	}
	if s, ok := e.sessions[u.SessionID]; ok {
		e.teardown(ctx, s, models.EndByBan, userID, out)
		return
	}
	next := u.Clone()
	next.ResetToIdle()
	e.forceCommit(ctx, next)
}

// AdminBan bans a user. Banning a banned user is a no-op.
func (e *Engine) AdminBan(ctx context.Context, userID string) error {
	var out outbox
	defer e.flush(ctx, &out)

	e.mu.Lock()
	defer e.mu.Unlock()

	u, err := e.existingUser(ctx, userID)
	if err != nil {
		return err
	}
	if u.IsBanned {
		return nil
	}
	next := u.Clone()
	next.IsBanned = true
	if err := e.commit(ctx, next); err != nil {
		return err
	}
	metrics.BansTotal.WithLabelValues("admin").Inc()
	log.Info().Str("module", "engine").Str("user_id", userID).Msg("user banned by admin")

	e.enforceBan(ctx, userID, &out)
	out.add(userID, models.Notice{Kind: models.NoticeBanned, Count: next.WarningCount, Limit: e.policy.MaxWarnings, Amount: e.policy.UnbanCost})
	return nil
}

// AdminUnban lifts a ban and clears the warning count. A session that was
// torn down by the ban stays ended.
func (e *Engine) AdminUnban(ctx context.Context, userID string) error {
	var out outbox
	defer e.flush(ctx, &out)

	e.mu.Lock()
	defer e.mu.Unlock()

	u, err := e.existingUser(ctx, userID)
	if err != nil {
		return err
	}
	if !u.IsBanned {
		return ErrNotBanned
	}
	next := u.Clone()
	next.IsBanned = false
	next.WarningCount = 0
	if err := e.commit(ctx, next); err != nil {
		return err
	}
	log.Info().Str("module", "engine").Str("user_id", userID).Msg("user unbanned by admin")
	out.add(userID, models.Notice{Kind: models.NoticeUnbanned, Balance: next.Balance})
	return nil
}

// RequestUnban lets a banned user buy their way out for UnbanCost. The
// debit and the unban are saved together or not at all.
func (e *Engine) RequestUnban(ctx context.Context, userID string) (int64, error) {
	var out outbox
	defer e.flush(ctx, &out)

	e.mu.Lock()
	defer e.mu.Unlock()

	u, err := e.user(ctx, userID)
	if err != nil {
		return 0, err
	}
	if !u.IsBanned {
		return u.Balance, ErrNotBanned
	}
	if u.Balance < e.policy.UnbanCost {
		return u.Balance, &BalanceError{Required: e.policy.UnbanCost, Balance: u.Balance}
	}
	next := u.Clone()
	next.Balance -= e.policy.UnbanCost
	next.IsBanned = false
	next.WarningCount = 0
	if err := e.commit(ctx, next); err != nil {
		return u.Balance, err
	}
	log.Info().Str("module", "engine").Str("user_id", userID).Int64("cost", e.policy.UnbanCost).Msg("user bought unban")
	out.add(userID, models.Notice{Kind: models.NoticeUnbanned, Amount: e.policy.UnbanCost, Balance: next.Balance})
	return next.Balance, nil
}
