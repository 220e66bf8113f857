// Package engine owns matchmaking and the chat session lifecycle: the search
// queue, pairing, session timers, the reveal protocol, moderation and the
// admin operations. Transports only send intents and render the notices the
// engine emits; they never touch user or session state directly.
package engine

import (
	"anonchat/backend/internal/clock"
	"anonchat/backend/internal/config"
	"anonchat/backend/internal/metrics"
	"anonchat/backend/internal/models"
	"anonchat/backend/internal/storage"
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/rs/zerolog/log"
)

// Notifier delivers a notice to a user over whatever transport owns them.
type Notifier interface {
	Notify(ctx context.Context, userID string, notice models.Notice) error
}

// DisplayNames resolves the name shown when a reveal succeeds.
type DisplayNames interface {
	DisplayName(ctx context.Context, userID string) (string, error)
}

// UnknownName is delivered when a display name cannot be resolved.
const UnknownName = "—"

// Engine is safe for concurrent use. A single mutex serializes every
// read-then-write of the queue, the session table and the user cache.
type Engine struct {
	mu sync.Mutex

	store    storage.Storage
	notifier Notifier
	names    DisplayNames
	clock    clock.Clock
	policy   config.Policy

	users        map[string]*models.User
	queue        *SearchQueue
	sessions     map[string]*session
	searchTimers map[string]*clock.Timer
}

// NewEngine creates an engine. A nil clock means real time.
func NewEngine(store storage.Storage, notifier Notifier, names DisplayNames, clk clock.Clock, policy config.Policy) *Engine {
	if clk == nil {
		clk = clock.Real()
	}
	return &Engine{
		store:        store,
		notifier:     notifier,
		names:        names,
		clock:        clk,
		policy:       policy,
		users:        make(map[string]*models.User),
		queue:        NewSearchQueue(),
		sessions:     make(map[string]*session),
		searchTimers: make(map[string]*clock.Timer),
	}
}

// Policy returns the policy the engine was built with.
func (e *Engine) Policy() config.Policy { return e.policy }

// delivery is a notice collected under the lock and sent after it is
// released. When nameOf is set the notice carries that user's display name.
type delivery struct {
	userID string
	notice models.Notice
	nameOf string
	// stored is the persisted name of nameOf, used when no live one is known.
	stored string
}

type outbox struct {
	items []delivery
}

func (o *outbox) add(userID string, n models.Notice) {
	o.items = append(o.items, delivery{userID: userID, notice: n})
}

func (o *outbox) addName(userID, nameOf, stored string, n models.Notice) {
	o.items = append(o.items, delivery{userID: userID, notice: n, nameOf: nameOf, stored: stored})
}

// flush sends the collected notices. It must run without e.mu held.
// Failures are logged and counted; the state change that produced the
// notice stands.
func (e *Engine) flush(ctx context.Context, o *outbox) {
	for _, d := range o.items {
		n := d.notice
		if d.nameOf != "" {
			n.Name = e.displayName(ctx, d.nameOf, d.stored)
		}
		if e.notifier == nil {
			continue
		}
		if err := e.notifier.Notify(ctx, d.userID, n); err != nil {
			metrics.DeliveryFailuresTotal.WithLabelValues(string(n.Kind)).Inc()
			log.Warn().Str("module", "engine").Str("user_id", d.userID).Str("notice", string(n.Kind)).Err(err).Msg("delivery failed")
		}
	}
}

// displayName prefers the live name from the transport and falls back to
// the persisted one.
func (e *Engine) displayName(ctx context.Context, userID, stored string) string {
	if e.names != nil {
		name, err := e.names.DisplayName(ctx, userID)
		if err == nil && name != "" {
			return name
		}
		if err != nil && stored == "" {
			log.Warn().Str("module", "engine").Str("user_id", userID).Err(err).Msg("display name lookup failed")
		}
	}
	if stored != "" {
		return stored
	}
	return UnknownName
}

// storedName must be called with e.mu held.
func (e *Engine) storedName(userID string) string {
	if u, ok := e.users[userID]; ok {
		return u.DisplayName
	}
	return ""
}

// user returns the cached record, loading or creating it on first contact.
// The result must not be mutated; use commit with a clone instead.
func (e *Engine) user(ctx context.Context, userID string) (*models.User, error) {
	if u, ok := e.users[userID]; ok {
		return u, nil
	}
	u, err := e.store.LoadUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if u == nil {
		u = &models.User{ID: userID, Status: models.StatusIdle}
		if err := e.store.SaveUser(ctx, u); err != nil {
			return nil, err
		}
		log.Info().Str("module", "engine").Str("user_id", userID).Msg("new user")
	}
	e.users[userID] = u
	return u, nil
}

// existingUser is user without lazy creation, for admin calls.
func (e *Engine) existingUser(ctx context.Context, userID string) (*models.User, error) {
	if u, ok := e.users[userID]; ok {
		return u, nil
	}
	u, err := e.store.LoadUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, ErrUnknownUser
	}
	e.users[userID] = u
	return u, nil
}

// commit persists next and only then makes it the cached state.
func (e *Engine) commit(ctx context.Context, next *models.User) error {
	if err := e.store.SaveUser(ctx, next); err != nil {
		return fmt.Errorf("save user %s: %w", next.ID, err)
	}
	e.users[next.ID] = next
	return nil
}

// commitAll persists several users as one step. If a save fails, users saved
// earlier in the call are written back to their previous state and the cache
// is left untouched.
func (e *Engine) commitAll(ctx context.Context, next ...*models.User) error {
	for i, n := range next {
		if err := e.store.SaveUser(ctx, n); err != nil {
			for _, done := range next[:i] {
				if prev, ok := e.users[done.ID]; ok {
					if rbErr := e.store.SaveUser(ctx, prev); rbErr != nil {
						log.Error().Str("module", "engine").Str("user_id", done.ID).Err(rbErr).Msg("rollback failed")
					}
				}
			}
			return fmt.Errorf("save user %s: %w", n.ID, err)
		}
	}
	for _, n := range next {
		e.users[n.ID] = n
	}
	return nil
}

// forceCommit is used on teardown paths that must complete even if storage
// is failing: the cache is updated regardless.
func (e *Engine) forceCommit(ctx context.Context, next *models.User) {
	if err := e.store.SaveUser(ctx, next); err != nil {
		log.Error().Str("module", "engine").Str("user_id", next.ID).Err(err).Msg("failed to persist user, continuing")
	}
	e.users[next.ID] = next
}

func (e *Engine) observe() {
	metrics.QueueDepth.Set(float64(e.queue.Len()))
	metrics.ActiveSessions.Set(float64(len(e.sessions)))
}

// EnsureUser registers a user on first contact. It reports whether the
// record was created by this call.
func (e *Engine) EnsureUser(ctx context.Context, userID, language string) (models.User, bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	_, known := e.users[userID]
	if !known {
		stored, err := e.store.LoadUser(ctx, userID)
		if err != nil {
			return models.User{}, false, err
		}
		if stored != nil {
			e.users[userID] = stored
			known = true
		}
	}
	u, err := e.user(ctx, userID)
	if err != nil {
		return models.User{}, false, err
	}
	if language != "" && u.Language == "" {
		next := u.Clone()
		next.Language = language
		if err := e.commit(ctx, next); err != nil {
			return models.User{}, false, err
		}
		u = next
	}
	return *u.Clone(), !known, nil
}

// RememberName stores the name a transport last saw for the user, so reveals
// work after a restart. Unchanged names are not written again.
func (e *Engine) RememberName(ctx context.Context, userID, name string) error {
	if name == "" {
		return nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	u, err := e.user(ctx, userID)
	if err != nil {
		return err
	}
	if u.DisplayName == name {
		return nil
	}
	next := u.Clone()
	next.DisplayName = name
	return e.commit(ctx, next)
}

// Profile returns a copy of the user's record.
func (e *Engine) Profile(ctx context.Context, userID string) (models.User, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	u, err := e.user(ctx, userID)
	if err != nil {
		return models.User{}, err
	}
	return *u.Clone(), nil
}

// Restore reloads active sessions and the persisted search queue after a
// restart and re-arms their timers. Pending reveal requests are not
// persisted and start over. Users left pointing at state that no longer
// exists are reset to idle.
func (e *Engine) Restore(ctx context.Context) error {
	var out outbox
	defer e.flush(ctx, &out)

	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.clock.Now()

	recs, err := e.store.LoadActiveSessions(ctx)
	if err != nil {
		return err
	}
	for _, rec := range recs {
		if err := e.restoreSession(ctx, rec); err != nil {
			log.Error().Str("module", "engine").Str("session_id", rec.ID).Err(err).Msg("dropping session on restore")
			if cerr := e.store.CloseSession(ctx, rec.ID, models.EndByInvariant, now); cerr != nil {
				log.Error().Str("module", "engine").Str("session_id", rec.ID).Err(cerr).Msg("failed to close session")
			}
			for _, id := range []string{rec.UserAID, rec.UserBID} {
				if u, ok := e.users[id]; ok && u.SessionID == rec.ID {
					next := u.Clone()
					next.ResetToIdle()
					e.forceCommit(ctx, next)
					out.add(id, models.Notice{Kind: models.NoticeChatEndedError, SessionID: rec.ID})
				}
			}
		}
	}

	entries, err := e.store.LoadQueue(ctx)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		u, err := e.user(ctx, entry.UserID)
		if err != nil {
			return err
		}
		if u.IsBanned || u.Status != models.StatusSearching || e.queue.Contains(u.ID) {
			if err := e.store.DeleteQueueEntry(ctx, entry.UserID); err != nil {
				log.Warn().Str("module", "engine").Str("user_id", entry.UserID).Err(err).Msg("failed to drop stale queue entry")
			}
			continue
		}
		if err := e.queue.Enqueue(u.ID, entry.Interests, entry.EnqueuedAt); err != nil {
			continue
		}
		remaining := entry.EnqueuedAt.Add(e.policy.SearchTimeout).Sub(now)
		if remaining < 0 {
			remaining = 0
		}
		e.armSearchTimer(u.ID, remaining)
	}

	// Users whose session or queue entry did not survive.
	for _, status := range []models.UserStatus{models.StatusInChat, models.StatusSearching} {
		stale, err := e.store.LoadUsersWithStatus(ctx, status)
		if err != nil {
			return err
		}
		for i := range stale {
			u := &stale[i]
			if cached, ok := e.users[u.ID]; ok {
				u = cached
			}
			if u.Status == models.StatusInChat {
				if _, ok := e.sessions[u.SessionID]; ok {
					continue
				}
			}
			if u.Status == models.StatusSearching && e.queue.Contains(u.ID) {
				continue
			}
			if u.Status == models.StatusIdle {
				continue
			}
			next := u.Clone()
			next.ResetToIdle()
			e.forceCommit(ctx, next)
		}
	}

	e.observe()
	log.Info().Str("module", "engine").Int("sessions", len(e.sessions)).Int("queue", e.queue.Len()).Msg("state restored")
	return nil
}

func (e *Engine) restoreSession(ctx context.Context, rec models.ChatSession) error {
	if rec.UserAID == rec.UserBID {
		return errors.New("participants are the same user")
	}
	for _, id := range []string{rec.UserAID, rec.UserBID} {
		u, err := e.user(ctx, id)
		if err != nil {
			return err
		}
		if u.Status != models.StatusInChat || u.SessionID != rec.ID {
			return fmt.Errorf("participant %s does not point back at the session", id)
		}
		if u.IsBanned {
			return fmt.Errorf("participant %s is banned", id)
		}
	}
	s := &session{rec: rec}
	e.sessions[rec.ID] = s
	e.armDeadline(s)
	return nil
}

// Close cancels every timer without changing state, so a later Restore can
// pick the sessions and searches up again.
func (e *Engine) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()

	for id, t := range e.searchTimers {
		t.Stop()
		delete(e.searchTimers, id)
	}
	for _, s := range e.sessions {
		s.stopTimers()
	}
}

// Verify checks the cross-structure invariants and returns every violation
// found. It is a read; nothing is repaired.
func (e *Engine) Verify() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	var errs []error
	seen := make(map[string]string)

	ids := make([]string, 0, len(e.sessions))
	for id := range e.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		s := e.sessions[id]
		if err := e.verifySession(s); err != nil {
			errs = append(errs, err)
		}
		for _, p := range s.participants() {
			if other, ok := seen[p]; ok {
				errs = append(errs, fmt.Errorf("user %s is in sessions %s and %s", p, other, id))
			}
			seen[p] = id
			if e.queue.Contains(p) {
				errs = append(errs, fmt.Errorf("user %s is queued while in session %s", p, id))
			}
		}
	}
	for _, entry := range e.queue.Entries() {
		u, ok := e.users[entry.UserID]
		if !ok || u.Status != models.StatusSearching {
			errs = append(errs, fmt.Errorf("queued user %s is not searching", entry.UserID))
		}
		if ok && u.IsBanned {
			errs = append(errs, fmt.Errorf("queued user %s is banned", entry.UserID))
		}
	}
	for id, u := range e.users {
		if u.Balance < 0 {
			errs = append(errs, fmt.Errorf("user %s has negative balance %d", id, u.Balance))
		}
		if u.Status == models.StatusInChat && seen[id] != u.SessionID {
			errs = append(errs, fmt.Errorf("user %s points at inactive session %s", id, u.SessionID))
		}
	}
	return errors.Join(errs...)
}
