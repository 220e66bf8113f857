package engine

import (
	"anonchat/backend/internal/clock"
	"anonchat/backend/internal/metrics"
	"anonchat/backend/internal/models"
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// session is the live state of an active ChatSession. Once terminated it is
// removed from the table and never reused; timer callbacks that still hold
// the pointer see terminated and do nothing.
type session struct {
	rec        models.ChatSession
	deadline   *clock.Timer
	reveal     *RevealRequest
	terminated bool
}

func (s *session) participants() [2]string {
	return [2]string{s.rec.UserAID, s.rec.UserBID}
}

func (s *session) stopTimers() {
	s.deadline.Stop()
	if s.reveal != nil {
		s.reveal.timer.Stop()
	}
}

// startSession pairs waiting (already queued) with caller (a pending clone
// of the searching user) and persists both. Nothing changes if storage fails.
func (e *Engine) startSession(ctx context.Context, waiting *models.User, caller *models.User, out *outbox) (*session, error) {
	now := e.clock.Now()
	rec := models.ChatSession{
		ID:           uuid.NewString(),
		UserAID:      waiting.ID,
		UserBID:      caller.ID,
		IsActive:     true,
		StartedAt:    now,
		ChatDeadline: now.Add(e.policy.ChatDuration),
	}
	if err := e.store.SaveSession(ctx, &rec); err != nil {
		return nil, fmt.Errorf("save session: %w", err)
	}

	a := waiting.Clone()
	a.Status = models.StatusInChat
	a.SessionID = rec.ID
	b := caller
	b.Status = models.StatusInChat
	b.SessionID = rec.ID

	if err := e.commitAll(ctx, a, b); err != nil {
		if cerr := e.store.CloseSession(ctx, rec.ID, models.EndByInvariant, now); cerr != nil {
			log.Error().Str("module", "engine").Str("session_id", rec.ID).Err(cerr).Msg("failed to close aborted session")
		}
		return nil, err
	}

	if entry, ok := e.queue.Get(waiting.ID); ok {
		metrics.MatchWait.Observe(now.Sub(entry.EnqueuedAt).Seconds())
	}
	e.removeFromQueue(ctx, waiting.ID)

	s := &session{rec: rec}
	e.sessions[rec.ID] = s
	e.armDeadline(s)

	metrics.MatchesTotal.Inc()
	e.observe()
	log.Info().Str("module", "engine").Str("session_id", rec.ID).Str("user_a", a.ID).Str("user_b", b.ID).Msg("session started")

	out.add(a.ID, models.Notice{Kind: models.NoticeMatched, SessionID: rec.ID})
	out.add(b.ID, models.Notice{Kind: models.NoticeMatched, SessionID: rec.ID})
	return s, nil
}

func (e *Engine) armDeadline(s *session) {
	d := s.rec.ChatDeadline.Sub(e.clock.Now())
	if d < 0 {
		d = 0
	}
	s.deadline = e.clock.AfterFunc(d, func() { e.onChatDeadline(s) })
}

// onChatDeadline offers the reveal once the chat duration is over. The chat
// itself keeps going.
func (e *Engine) onChatDeadline(s *session) {
	ctx := context.Background()
	var out outbox
	defer e.flush(ctx, &out)

	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.isCurrent(s) {
		return
	}
	if err := e.verifySession(s); err != nil {
		e.breakSession(ctx, s, err, &out)
		return
	}
	e.offerReveal(s, &out)
}

func (e *Engine) isCurrent(s *session) bool {
	return !s.terminated && e.sessions[s.rec.ID] == s
}

// verifySession checks that both participants are distinct and point back at s.
func (e *Engine) verifySession(s *session) error {
	if s.rec.UserAID == s.rec.UserBID {
		return fmt.Errorf("session %s pairs user %s with itself", s.rec.ID, s.rec.UserAID)
	}
	for _, id := range s.participants() {
		u, ok := e.users[id]
		if !ok {
			return fmt.Errorf("session %s participant %s is not loaded", s.rec.ID, id)
		}
		if u.Status != models.StatusInChat || u.SessionID != s.rec.ID {
			return fmt.Errorf("session %s participant %s points at %q (%s)", s.rec.ID, id, u.SessionID, u.Status)
		}
	}
	return nil
}

// breakSession terminates a session that failed verification. Other
// sessions are not affected.
func (e *Engine) breakSession(ctx context.Context, s *session, cause error, out *outbox) {
	log.Error().Str("module", "engine").Str("session_id", s.rec.ID).Err(cause).Msg("session invariant violated, terminating")
	e.teardown(ctx, s, models.EndByInvariant, "", out)
}

// activeSession returns the session the user is in. A user pointing at a
// session that is gone is reset; a broken session is terminated.
func (e *Engine) activeSession(ctx context.Context, u *models.User, out *outbox) (*session, error) {
	if u.Status != models.StatusInChat {
		return nil, ErrNotInChat
	}
	s, ok := e.sessions[u.SessionID]
	if !ok {
		log.Error().Str("module", "engine").Str("user_id", u.ID).Str("session_id", u.SessionID).Msg("user points at unknown session, resetting")
		next := u.Clone()
		next.ResetToIdle()
		e.forceCommit(ctx, next)
		return nil, ErrNotInChat
	}
	if err := e.verifySession(s); err != nil {
		e.breakSession(ctx, s, err, out)
		return nil, ErrNotInChat
	}
	return s, nil
}

// teardown is the only way a session ends. Timers are cancelled before any
// state changes and a pending reveal is discarded unresolved. Participants
// that still point at the session go back to idle and are told why.
// initiator is the user who ended the chat or got banned; it is empty for
// admin and timer driven endings.
func (e *Engine) teardown(ctx context.Context, s *session, reason models.EndReason, initiator string, out *outbox) {
	if s.terminated {
		return
	}
	s.stopTimers()
	s.terminated = true
	s.reveal = nil
	delete(e.sessions, s.rec.ID)

	var released []string
	for _, id := range s.participants() {
		u, ok := e.users[id]
		if !ok || u.SessionID != s.rec.ID {
			continue
		}
		next := u.Clone()
		next.ResetToIdle()
		e.forceCommit(ctx, next)
		released = append(released, id)
	}

	now := e.clock.Now()
	if err := e.store.CloseSession(ctx, s.rec.ID, reason, now); err != nil {
		log.Error().Str("module", "engine").Str("session_id", s.rec.ID).Err(err).Msg("failed to close session")
	}

	for _, id := range released {
		if kind, ok := endNotice(reason, id, initiator); ok {
			out.add(id, models.Notice{Kind: kind, SessionID: s.rec.ID})
		}
	}

	metrics.SessionsEndedTotal.WithLabelValues(string(reason)).Inc()
	e.observe()
	log.Info().Str("module", "engine").Str("session_id", s.rec.ID).Str("reason", string(reason)).Msg("session ended")
}

// endNotice picks what a participant is told when the session ends.
func endNotice(reason models.EndReason, userID, initiator string) (models.NoticeKind, bool) {
	switch reason {
	case models.EndByUser:
		if userID == initiator {
			return models.NoticeChatEndedSelf, true
		}
		return models.NoticeChatEndedPartner, true
	case models.EndByBan:
		if userID == initiator {
			// The banned user gets the ban notice instead.
			return "", false
		}
		return models.NoticeChatEndedPartnerBanned, true
	case models.EndByAdmin:
		return models.NoticeChatEndedAdmin, true
	case models.EndByRevealTimeout, models.EndAfterReveal:
		return models.NoticeChatEndedTimeout, true
	}
	return models.NoticeChatEndedError, true
}

// EndChat ends the user's current chat.
func (e *Engine) EndChat(ctx context.Context, userID string) error {
	var out outbox
	defer e.flush(ctx, &out)

	e.mu.Lock()
	defer e.mu.Unlock()

	u, err := e.user(ctx, userID)
	if err != nil {
		return err
	}
	s, err := e.activeSession(ctx, u, &out)
	if err != nil {
		return err
	}
	e.teardown(ctx, s, models.EndByUser, userID, &out)
	return nil
}

// Next ends the current chat, if any, and searches again with the user's
// last interests.
func (e *Engine) Next(ctx context.Context, userID string) (SearchResult, error) {
	if err := e.EndChat(ctx, userID); err != nil && !errors.Is(err, ErrNotInChat) {
		return SearchResult{}, err
	}
	u, err := e.Profile(ctx, userID)
	if err != nil {
		return SearchResult{}, err
	}
	return e.RequestSearch(ctx, userID, u.Interests)
}

// RelayMessage forwards content to the user's partner. Photos cost
// PhotoCost each; the debit is final even if delivery fails.
func (e *Engine) RelayMessage(ctx context.Context, userID string, content models.Content) error {
	var out outbox
	defer e.flush(ctx, &out)

	e.mu.Lock()
	defer e.mu.Unlock()

	u, err := e.user(ctx, userID)
	if err != nil {
		return err
	}
	s, err := e.activeSession(ctx, u, &out)
	if err != nil {
		return err
	}

	if content.Type == models.ContentPhoto && e.policy.PhotoCost > 0 {
		if u.Balance < e.policy.PhotoCost {
			return &BalanceError{Required: e.policy.PhotoCost, Balance: u.Balance}
		}
		next := u.Clone()
		next.Balance -= e.policy.PhotoCost
		if err := e.commit(ctx, next); err != nil {
			return err
		}
		out.add(userID, models.Notice{Kind: models.NoticeBalanceDebited, Amount: e.policy.PhotoCost, Balance: next.Balance})
	}

	c := content
	out.add(s.rec.PartnerOf(userID), models.Notice{Kind: models.NoticeRelay, SessionID: s.rec.ID, Content: &c})
	metrics.MessagesTotal.WithLabelValues("relayed").Inc()
	return nil
}

// CurrentPartner returns the user's partner and session.
func (e *Engine) CurrentPartner(ctx context.Context, userID string) (string, string, error) {
	var out outbox
	defer e.flush(ctx, &out)

	e.mu.Lock()
	defer e.mu.Unlock()

	u, err := e.user(ctx, userID)
	if err != nil {
		return "", "", err
	}
	s, err := e.activeSession(ctx, u, &out)
	if err != nil {
		return "", "", err
	}
	return s.rec.PartnerOf(userID), s.rec.ID, nil
}
