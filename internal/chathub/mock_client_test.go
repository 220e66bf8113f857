package chathub_test

import (
	"anonchat/backend/internal/engine"
	"anonchat/backend/internal/models"
	"context"
	"sync"

	"github.com/stretchr/testify/mock"
)

type MockClient struct {
	userID string
	name   string

	mu       sync.Mutex
	notices  []models.Notice
	closed   bool
	failWith error
}

func newMockClient(userID string) *MockClient {
	return &MockClient{userID: userID, name: "name-" + userID}
}

func (c *MockClient) GetUserID() string { return c.userID }

func (c *MockClient) Deliver(_ context.Context, n models.Notice) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failWith != nil {
		return c.failWith
	}
	c.notices = append(c.notices, n)
	return nil
}

func (c *MockClient) DisplayName(context.Context) (string, error) { return c.name, nil }

func (c *MockClient) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
}

func (c *MockClient) Notices() []models.Notice {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]models.Notice(nil), c.notices...)
}

func (c *MockClient) IsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// MockEngine is a testify mock of chathub.Engine.
type MockEngine struct {
	mock.Mock
}

func (m *MockEngine) EnsureUser(_ context.Context, userID, language string) (models.User, bool, error) {
	args := m.Called(userID, language)
	return args.Get(0).(models.User), args.Bool(1), args.Error(2)
}

func (m *MockEngine) Profile(_ context.Context, userID string) (models.User, error) {
	args := m.Called(userID)
	return args.Get(0).(models.User), args.Error(1)
}

func (m *MockEngine) RequestSearch(_ context.Context, userID string, interests []string) (engine.SearchResult, error) {
	args := m.Called(userID, interests)
	return args.Get(0).(engine.SearchResult), args.Error(1)
}

func (m *MockEngine) CancelSearch(_ context.Context, userID string) error {
	return m.Called(userID).Error(0)
}

func (m *MockEngine) EndChat(_ context.Context, userID string) error {
	return m.Called(userID).Error(0)
}

func (m *MockEngine) Next(_ context.Context, userID string) (engine.SearchResult, error) {
	args := m.Called(userID)
	return args.Get(0).(engine.SearchResult), args.Error(1)
}

func (m *MockEngine) RequestReveal(_ context.Context, userID string) error {
	return m.Called(userID).Error(0)
}

func (m *MockEngine) DecideReveal(_ context.Context, userID string, agree bool) error {
	return m.Called(userID, agree).Error(0)
}

func (m *MockEngine) RelayMessage(_ context.Context, userID string, content models.Content) error {
	return m.Called(userID, content).Error(0)
}

func (m *MockEngine) ReportWarning(_ context.Context, userID string) (int, error) {
	args := m.Called(userID)
	return args.Int(0), args.Error(1)
}

func (m *MockEngine) RequestUnban(_ context.Context, userID string) (int64, error) {
	args := m.Called(userID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockEngine) ApplyReferral(_ context.Context, userID, referrerID string) error {
	return m.Called(userID, referrerID).Error(0)
}

func (m *MockEngine) RememberName(_ context.Context, userID, name string) error {
	return m.Called(userID, name).Error(0)
}
