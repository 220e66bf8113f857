package storage

import (
	"anonchat/backend/internal/models"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

const (
	// Redis keys for the persisted search queue.
	keySearchQueue   = "search_queue"         // Sorted set, score = enqueue time (ms)
	keySearchEntries = "search_queue:entries" // Hash: user ID -> JSON interests
)

// Storage is the persistence boundary of the engine. The engine is the only
// writer; implementations must be safe for concurrent use.
type Storage interface {
	// LoadUser returns nil and no error when the user is unknown.
	LoadUser(ctx context.Context, userID string) (*models.User, error)
	SaveUser(ctx context.Context, user *models.User) error
	LoadUsersWithStatus(ctx context.Context, status models.UserStatus) ([]models.User, error)
	UserStats(ctx context.Context) (models.UserAggregate, error)

	SaveSession(ctx context.Context, session *models.ChatSession) error
	CloseSession(ctx context.Context, sessionID string, reason models.EndReason, endedAt time.Time) error
	LoadActiveSessions(ctx context.Context) ([]models.ChatSession, error)

	SaveQueueEntry(ctx context.Context, entry models.QueueEntry) error
	DeleteQueueEntry(ctx context.Context, userID string) error
	// LoadQueue returns the persisted entries oldest first.
	LoadQueue(ctx context.Context) ([]models.QueueEntry, error)

	SaveComplaint(ctx context.Context, complaint *models.Complaint) error
}

// Service keeps users, sessions and complaints in PostgreSQL and the search
// queue in Redis. Redis is optional: without it searches are not persisted.
type Service struct {
	DB    *gorm.DB
	Redis *redis.Client
}

// NewStorageService Constructor
func NewStorageService(db *gorm.DB, rdb *redis.Client) *Service {
	return &Service{
		DB:    db,
		Redis: rdb,
	}
}

// AutoMigrate creates or updates the tables the engine needs.
func (s *Service) AutoMigrate() error {
	return s.DB.AutoMigrate(
		&models.User{},
		&models.ChatSession{},
		&models.Complaint{},
	)
}

// LoadUser знаходить користувача за ID; nil, якщо його ще немає.
func (s *Service) LoadUser(ctx context.Context, userID string) (*models.User, error) {
	var user models.User
	err := s.DB.WithContext(ctx).Where("id = ?", userID).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load user %s: %w", userID, err)
	}
	return &user, nil
}

// SaveUser зберігає користувача в PostgreSQL
func (s *Service) SaveUser(ctx context.Context, user *models.User) error {
	if err := s.DB.WithContext(ctx).Save(user).Error; err != nil {
		return fmt.Errorf("save user %s: %w", user.ID, err)
	}
	return nil
}

func (s *Service) LoadUsersWithStatus(ctx context.Context, status models.UserStatus) ([]models.User, error) {
	var users []models.User
	if err := s.DB.WithContext(ctx).Where("status = ?", status).Find(&users).Error; err != nil {
		return nil, fmt.Errorf("load users with status %s: %w", status, err)
	}
	return users, nil
}

// UserStats рахує агрегати по таблиці users одним запитом.
func (s *Service) UserStats(ctx context.Context) (models.UserAggregate, error) {
	var agg models.UserAggregate
	err := s.DB.WithContext(ctx).Raw(`
		SELECT
			COUNT(*)                                AS total_users,
			COUNT(*) FILTER (WHERE is_banned)       AS banned_users,
			COALESCE(SUM(balance), 0)               AS total_balance,
			COALESCE(SUM(referral_count), 0)        AS total_referrals
		FROM users`).Scan(&agg).Error
	if err != nil {
		return models.UserAggregate{}, fmt.Errorf("user stats: %w", err)
	}
	return agg, nil
}

// SaveSession зберігає сесію в PostgreSQL
func (s *Service) SaveSession(ctx context.Context, session *models.ChatSession) error {
	if err := s.DB.WithContext(ctx).Save(session).Error; err != nil {
		return fmt.Errorf("save session %s: %w", session.ID, err)
	}
	return nil
}

// CloseSession закриває сесію, встановлюючи IsActive = false та EndedAt.
func (s *Service) CloseSession(ctx context.Context, sessionID string, reason models.EndReason, endedAt time.Time) error {
	err := s.DB.WithContext(ctx).Model(&models.ChatSession{}).
		Where("id = ?", sessionID).
		Updates(map[string]interface{}{
			"is_active":  false,
			"ended_at":   endedAt,
			"end_reason": string(reason),
		}).Error
	if err != nil {
		return fmt.Errorf("close session %s: %w", sessionID, err)
	}
	return nil
}

// LoadActiveSessions повертає всі сесії, які ще не були закриті.
func (s *Service) LoadActiveSessions(ctx context.Context) ([]models.ChatSession, error) {
	var sessions []models.ChatSession
	if err := s.DB.WithContext(ctx).Where("is_active = ?", true).Order("started_at asc").Find(&sessions).Error; err != nil {
		return nil, fmt.Errorf("load active sessions: %w", err)
	}
	return sessions, nil
}

// SaveQueueEntry додає користувача до черги пошуку в Redis
func (s *Service) SaveQueueEntry(ctx context.Context, entry models.QueueEntry) error {
	if s.Redis == nil {
		return nil
	}
	interests, err := json.Marshal(entry.Interests)
	if err != nil {
		return err
	}

	pipe := s.Redis.TxPipeline()
	pipe.ZAdd(ctx, keySearchQueue, redis.Z{Score: float64(entry.EnqueuedAt.UnixMilli()), Member: entry.UserID})
	pipe.HSet(ctx, keySearchEntries, entry.UserID, string(interests))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("save queue entry %s: %w", entry.UserID, err)
	}
	return nil
}

// DeleteQueueEntry видаляє користувача з черги пошуку в Redis
func (s *Service) DeleteQueueEntry(ctx context.Context, userID string) error {
	if s.Redis == nil {
		return nil
	}
	pipe := s.Redis.TxPipeline()
	pipe.ZRem(ctx, keySearchQueue, userID)
	pipe.HDel(ctx, keySearchEntries, userID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("delete queue entry %s: %w", userID, err)
	}
	return nil
}

// LoadQueue повертає всіх користувачів, які зараз шукають пару, у порядку черги.
func (s *Service) LoadQueue(ctx context.Context) ([]models.QueueEntry, error) {
	if s.Redis == nil {
		return nil, nil
	}
	members, err := s.Redis.ZRangeWithScores(ctx, keySearchQueue, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("load queue: %w", err)
	}

	entries := make([]models.QueueEntry, 0, len(members))
	for _, m := range members {
		userID, ok := m.Member.(string)
		if !ok {
			continue
		}
		entry := models.QueueEntry{
			UserID:     userID,
			EnqueuedAt: time.UnixMilli(int64(m.Score)),
		}
		raw, err := s.Redis.HGet(ctx, keySearchEntries, userID).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("load queue entry %s: %w", userID, err)
		}
		if raw != "" {
			if err := json.Unmarshal([]byte(raw), &entry.Interests); err != nil {
				log.Warn().Str("module", "storage").Str("user_id", userID).Err(err).Msg("corrupt queue entry, treating as 'any'")
			}
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func (s *Service) SaveComplaint(ctx context.Context, complaint *models.Complaint) error {
	if complaint.Status == "" {
		complaint.Status = "new"
	}

	if err := s.DB.WithContext(ctx).Create(complaint).Error; err != nil {
		log.Error().Str("module", "storage").Str("session_id", complaint.SessionID).Err(err).Msg("failed to save complaint")
		return err
	}
	return nil
}

var (
	_ Storage = (*Service)(nil)
	_ Storage = (*MemoryStorage)(nil)
)
