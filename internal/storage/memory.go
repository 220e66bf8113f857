package storage

import (
	"anonchat/backend/internal/models"
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStorage keeps everything in process memory. It is used when no
// database is configured and in tests. Stored values are copies, so callers
// can't mutate them behind the store's back.
type MemoryStorage struct {
	mu         sync.RWMutex
	users      map[string]*models.User
	sessions   map[string]models.ChatSession
	queue      map[string]memQueueEntry
	complaints []models.Complaint
	seq        uint64
}

type memQueueEntry struct {
	entry models.QueueEntry
	seq   uint64
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		users:    make(map[string]*models.User),
		sessions: make(map[string]models.ChatSession),
		queue:    make(map[string]memQueueEntry),
	}
}

func (m *MemoryStorage) LoadUser(_ context.Context, userID string) (*models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[userID]
	if !ok {
		return nil, nil
	}
	return u.Clone(), nil
}

func (m *MemoryStorage) SaveUser(_ context.Context, user *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	user.UpdatedAt = now
	m.users[user.ID] = user.Clone()
	return nil
}

func (m *MemoryStorage) LoadUsersWithStatus(_ context.Context, status models.UserStatus) ([]models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var users []models.User
	for _, u := range m.users {
		if u.Status == status {
			users = append(users, *u.Clone())
		}
	}
	sort.Slice(users, func(i, j int) bool { return users[i].ID < users[j].ID })
	return users, nil
}

func (m *MemoryStorage) UserStats(_ context.Context) (models.UserAggregate, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var agg models.UserAggregate
	for _, u := range m.users {
		agg.TotalUsers++
		if u.IsBanned {
			agg.BannedUsers++
		}
		agg.TotalBalance += u.Balance
		agg.TotalReferrals += int64(u.ReferralCount)
	}
	return agg, nil
}

func (m *MemoryStorage) SaveSession(_ context.Context, session *models.ChatSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[session.ID] = *session
	return nil
}

func (m *MemoryStorage) CloseSession(_ context.Context, sessionID string, reason models.EndReason, endedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return nil
	}
	s.IsActive = false
	s.EndedAt = &endedAt
	s.EndReason = string(reason)
	m.sessions[sessionID] = s
	return nil
}

func (m *MemoryStorage) LoadActiveSessions(_ context.Context) ([]models.ChatSession, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var active []models.ChatSession
	for _, s := range m.sessions {
		if s.IsActive {
			active = append(active, s)
		}
	}
	sort.Slice(active, func(i, j int) bool { return active[i].StartedAt.Before(active[j].StartedAt) })
	return active, nil
}

// Session returns the stored record for id, active or not.
func (m *MemoryStorage) Session(id string) (models.ChatSession, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	return s, ok
}

func (m *MemoryStorage) SaveQueueEntry(_ context.Context, entry models.QueueEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	entry.Interests = append([]string(nil), entry.Interests...)
	m.queue[entry.UserID] = memQueueEntry{entry: entry, seq: m.seq}
	return nil
}

func (m *MemoryStorage) DeleteQueueEntry(_ context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.queue, userID)
	return nil
}

func (m *MemoryStorage) LoadQueue(_ context.Context) ([]models.QueueEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	items := make([]memQueueEntry, 0, len(m.queue))
	for _, q := range m.queue {
		items = append(items, q)
	}
	sort.Slice(items, func(i, j int) bool {
		if !items[i].entry.EnqueuedAt.Equal(items[j].entry.EnqueuedAt) {
			return items[i].entry.EnqueuedAt.Before(items[j].entry.EnqueuedAt)
		}
		return items[i].seq < items[j].seq
	})
	entries := make([]models.QueueEntry, len(items))
	for i, q := range items {
		entries[i] = q.entry
	}
	return entries, nil
}

func (m *MemoryStorage) SaveComplaint(_ context.Context, complaint *models.Complaint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if complaint.Status == "" {
		complaint.Status = "new"
	}
	if complaint.CreatedAt.IsZero() {
		complaint.CreatedAt = time.Now()
	}
	m.complaints = append(m.complaints, *complaint)
	return nil
}

// Complaints returns a copy of every saved complaint.
func (m *MemoryStorage) Complaints() []models.Complaint {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]models.Complaint(nil), m.complaints...)
}
