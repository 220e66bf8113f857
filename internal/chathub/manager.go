package chathub

import (
	"anonchat/backend/internal/complaint"
	"anonchat/backend/internal/engine"
	"anonchat/backend/internal/localization"
	"anonchat/backend/internal/metrics"
	"anonchat/backend/internal/models"
	"anonchat/backend/internal/moderation"
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog/log"
)

// ErrNoClient is returned when no transport is connected for the user.
var ErrNoClient = errors.New("no client connected for user")

// ErrMessageBlocked is returned when the content filter drops a message.
var ErrMessageBlocked = errors.New("message blocked by content filter")

// ClientRestorer builds a client for a user that has no live connection,
// e.g. a Telegram chat after a restart. It returns ErrNoClient if the user
// cannot be reached.
type ClientRestorer func(userID string) (Client, error)

// Engine is the part of the pairing engine the transports drive.
type Engine interface {
	EnsureUser(ctx context.Context, userID, language string) (models.User, bool, error)
	Profile(ctx context.Context, userID string) (models.User, error)
	RequestSearch(ctx context.Context, userID string, interests []string) (engine.SearchResult, error)
	CancelSearch(ctx context.Context, userID string) error
	EndChat(ctx context.Context, userID string) error
	Next(ctx context.Context, userID string) (engine.SearchResult, error)
	RequestReveal(ctx context.Context, userID string) error
	DecideReveal(ctx context.Context, userID string, agree bool) error
	RelayMessage(ctx context.Context, userID string, content models.Content) error
	ReportWarning(ctx context.Context, userID string) (int, error)
	RequestUnban(ctx context.Context, userID string) (int64, error)
	ApplyReferral(ctx context.Context, userID, referrerID string) error
	RememberName(ctx context.Context, userID, name string) error
}

// ManagerService keeps the live clients and routes engine notices to them.
// It implements engine.Notifier and engine.DisplayNames.
type ManagerService struct {
	mu      sync.RWMutex
	Clients map[string]Client

	RegisterCh   chan Client
	UnregisterCh chan Client
	done         chan struct{}

	Engine     Engine
	Filter     *moderation.Filter
	Complaints *complaint.Service
	Localizer  *localization.Localizer

	ClientRestorer ClientRestorer
	// OnDisconnect runs after a client is unregistered.
	OnDisconnect func(userID string)
}

// NewManagerService creates a hub. Engine and Complaints are set once the
// engine exists, since the engine needs the hub as its notifier.
func NewManagerService(filter *moderation.Filter, localizer *localization.Localizer) *ManagerService {
	return &ManagerService{
		Clients:      make(map[string]Client),
		RegisterCh:   make(chan Client),
		UnregisterCh: make(chan Client),
		done:         make(chan struct{}),
		Filter:       filter,
		Localizer:    localizer,
	}
}

func (m *ManagerService) SetClientRestorer(restorer ClientRestorer) {
	m.ClientRestorer = restorer
}

// Run processes registrations until ctx is cancelled.
func (m *ManagerService) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			close(m.done)
			m.closeAll()
			return
		case c := <-m.RegisterCh:
			m.Register(c)
		case c := <-m.UnregisterCh:
			m.Unregister(c)
		}
	}
}

// Done is closed once Run has returned.
func (m *ManagerService) Done() <-chan struct{} { return m.done }

// Register adds a client, replacing and closing an older one for the same user.
func (m *ManagerService) Register(c Client) {
	m.mu.Lock()
	old, ok := m.Clients[c.GetUserID()]
	m.Clients[c.GetUserID()] = c
	m.mu.Unlock()

	if ok && old != c {
		old.Close()
	}
	log.Debug().Str("module", "hub").Str("user_id", c.GetUserID()).Msg("client registered")
}

// Unregister removes the client if it is still the current one for its user.
func (m *ManagerService) Unregister(c Client) {
	m.mu.Lock()
	current, ok := m.Clients[c.GetUserID()]
	removed := ok && current == c
	if removed {
		delete(m.Clients, c.GetUserID())
	}
	m.mu.Unlock()

	if !removed {
		return
	}
	c.Close()
	log.Debug().Str("module", "hub").Str("user_id", c.GetUserID()).Msg("client unregistered")
	if m.OnDisconnect != nil {
		m.OnDisconnect(c.GetUserID())
	}
}

func (m *ManagerService) closeAll() {
	m.mu.Lock()
	clients := m.Clients
	m.Clients = make(map[string]Client)
	m.mu.Unlock()
	for _, c := range clients {
		c.Close()
	}
}

// Lookup returns the registered client without trying to restore one.
func (m *ManagerService) Lookup(userID string) (Client, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.Clients[userID]
	return c, ok
}

// client returns the user's client, restoring one if possible.
func (m *ManagerService) client(userID string) (Client, error) {
	m.mu.RLock()
	c, ok := m.Clients[userID]
	m.mu.RUnlock()
	if ok {
		return c, nil
	}
	if m.ClientRestorer == nil {
		return nil, ErrNoClient
	}

	c, err := m.ClientRestorer(userID)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	if existing, ok := m.Clients[userID]; ok {
		c = existing
	} else {
		m.Clients[userID] = c
	}
	m.mu.Unlock()
	log.Debug().Str("module", "hub").Str("user_id", userID).Msg("restored client")
	return c, nil
}

// Notify delivers a notice to the user's transport.
func (m *ManagerService) Notify(ctx context.Context, userID string, notice models.Notice) error {
	c, err := m.client(userID)
	if err != nil {
		return err
	}
	return c.Deliver(ctx, notice)
}

// DisplayName asks the user's transport for the name to reveal.
func (m *ManagerService) DisplayName(ctx context.Context, userID string) (string, error) {
	c, err := m.client(userID)
	if err != nil {
		return "", err
	}
	return c.DisplayName(ctx)
}

// Relay runs the content filter on outgoing text and forwards the message.
// A blocked message is not relayed and costs the sender a warning.
func (m *ManagerService) Relay(ctx context.Context, userID string, content models.Content) error {
	text := content.Text
	if text == "" {
		text = content.Caption
	}
	if m.Filter != nil && text != "" {
		if res := m.Filter.Check(text); res.Blocked {
			metrics.MessagesTotal.WithLabelValues("blocked").Inc()
			log.Info().Str("module", "hub").Str("user_id", userID).Str("reason", res.Reason).Str("term", res.Term).Msg("message blocked")
			if _, err := m.Engine.ReportWarning(ctx, userID); err != nil {
				return err
			}
			return ErrMessageBlocked
		}
	}
	return m.Engine.RelayMessage(ctx, userID, content)
}

// Report files a complaint against the user's current partner.
func (m *ManagerService) Report(ctx context.Context, userID, complaintType, reason string) error {
	if m.Complaints == nil {
		return errors.New("complaints are not configured")
	}
	_, err := m.Complaints.HandleComplaint(ctx, userID, complaintType, reason)
	return err
}

// Disconnected ends whatever the user was doing when their only connection
// went away.
func (m *ManagerService) Disconnected(userID string) {
	ctx := context.Background()
	if err := m.Engine.CancelSearch(ctx, userID); err != nil && !errors.Is(err, engine.ErrNotSearching) {
		log.Warn().Str("module", "hub").Str("user_id", userID).Err(err).Msg("cancel search on disconnect")
	}
	if err := m.Engine.EndChat(ctx, userID); err != nil && !errors.Is(err, engine.ErrNotInChat) {
		log.Warn().Str("module", "hub").Str("user_id", userID).Err(err).Msg("end chat on disconnect")
	}
}
