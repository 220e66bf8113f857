package engine

import (
	"anonchat/backend/internal/clock"
	"anonchat/backend/internal/metrics"
	"anonchat/backend/internal/models"
	"context"
	"errors"

	"github.com/rs/zerolog/log"
)

// Decision is one participant's answer to a reveal request.
type Decision int

const (
	Undecided Decision = iota
	Agreed
	Declined
)

func (d Decision) String() string {
	switch d {
	case Agreed:
		return "agreed"
	case Declined:
		return "declined"
	}
	return "undecided"
}

// Outcome is the result of resolving a reveal request.
type Outcome int

const (
	// OutcomePending: at least one participant has not answered yet.
	OutcomePending Outcome = iota
	// OutcomeExchanged: both agreed, names are delivered to each other.
	OutcomeExchanged
	// OutcomeDeclined: someone declined, nobody learns anything.
	OutcomeDeclined
)

func (o Outcome) String() string {
	switch o {
	case OutcomeExchanged:
		return "exchanged"
	case OutcomeDeclined:
		return "declined"
	}
	return "pending"
}

// Resolve maps the decisions of both participants to an outcome.
func Resolve(decisions map[string]Decision) Outcome {
	if len(decisions) != 2 {
		return OutcomePending
	}
	exchanged := true
	for _, d := range decisions {
		switch d {
		case Undecided:
			return OutcomePending
		case Declined:
			exchanged = false
		}
	}
	if exchanged {
		return OutcomeExchanged
	}
	return OutcomeDeclined
}

// RevealRequest is the pending consent exchange of one session.
type RevealRequest struct {
	decisions map[string]Decision
	timer     *clock.Timer // decision window
}

// NewRevealRequest starts a request with both participants undecided.
func NewRevealRequest(a, b string) *RevealRequest {
	return &RevealRequest{decisions: map[string]Decision{a: Undecided, b: Undecided}}
}

// Decide records userID's answer. A participant answers once.
func (r *RevealRequest) Decide(userID string, agree bool) error {
	d, ok := r.decisions[userID]
	if !ok {
		return ErrNoActiveRequest
	}
	if d != Undecided {
		return ErrAlreadyDecided
	}
	if agree {
		r.decisions[userID] = Agreed
	} else {
		r.decisions[userID] = Declined
	}
	return nil
}

// Decisions returns a copy of the answers so far.
func (r *RevealRequest) Decisions() map[string]Decision {
	out := make(map[string]Decision, len(r.decisions))
	for k, v := range r.decisions {
		out[k] = v
	}
	return out
}

func (r *RevealRequest) Outcome() Outcome { return Resolve(r.decisions) }

// RequestReveal opens a reveal request in the user's session. If one is
// already pending this is a no-op.
func (e *Engine) RequestReveal(ctx context.Context, userID string) error {
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
	e.offerReveal(s, &out)
	return nil
}

// offerReveal creates the request, arms the decision window and asks both
// participants.
func (e *Engine) offerReveal(s *session, out *outbox) {
	if s.reveal != nil {
		return
	}
	r := NewRevealRequest(s.rec.UserAID, s.rec.UserBID)
	r.timer = e.clock.AfterFunc(e.policy.RevealWindow, func() { e.onRevealWindow(s, r) })
	s.reveal = r

	for _, id := range s.participants() {
		out.add(id, models.Notice{Kind: models.NoticeRevealOffer, SessionID: s.rec.ID})
	}
	log.Debug().Str("module", "engine").Str("session_id", s.rec.ID).Msg("reveal offered")
}

// DecideReveal records the user's answer and resolves the request once both
// participants have answered.
func (e *Engine) DecideReveal(ctx context.Context, userID string, agree bool) error {
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
		if errors.Is(err, ErrNotInChat) {
			return ErrNoActiveRequest
		}
		return err
	}
	if s.reveal == nil {
		return ErrNoActiveRequest
	}
	if err := s.reveal.Decide(userID, agree); err != nil {
		return err
	}

	outcome := s.reveal.Outcome()
	if outcome == OutcomePending {
		return nil
	}
	e.resolveReveal(ctx, s, outcome, &out)
	return nil
}

// resolveReveal delivers the outcome, discards the request and, if the
// policy says so, ends the session.
func (e *Engine) resolveReveal(ctx context.Context, s *session, outcome Outcome, out *outbox) {
	s.reveal.timer.Stop()
	s.reveal = nil

	a, b := s.rec.UserAID, s.rec.UserBID
	switch outcome {
	case OutcomeExchanged:
		out.addName(a, b, e.storedName(b), models.Notice{Kind: models.NoticeRevealNames, SessionID: s.rec.ID})
		out.addName(b, a, e.storedName(a), models.Notice{Kind: models.NoticeRevealNames, SessionID: s.rec.ID})
	case OutcomeDeclined:
		out.add(a, models.Notice{Kind: models.NoticeRevealDeclined, SessionID: s.rec.ID})
		out.add(b, models.Notice{Kind: models.NoticeRevealDeclined, SessionID: s.rec.ID})
	}
	metrics.RevealOutcomesTotal.WithLabelValues(outcome.String()).Inc()
	log.Info().Str("module", "engine").Str("session_id", s.rec.ID).Str("outcome", outcome.String()).Msg("reveal resolved")

	if e.policy.EndAfterReveal {
		e.teardown(ctx, s, models.EndAfterReveal, "", out)
	}
}

// onRevealWindow ends a session whose reveal request is still unanswered
// when the decision window closes.
func (e *Engine) onRevealWindow(s *session, r *RevealRequest) {
	ctx := context.Background()
	var out outbox
	defer e.flush(ctx, &out)

	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.isCurrent(s) || s.reveal != r {
		return
	}
	if r.Outcome() != OutcomePending {
		return
	}
	e.teardown(ctx, s, models.EndByRevealTimeout, "", &out)
}
