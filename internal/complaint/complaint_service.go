// Package complaint records reports one participant files against the other
// and turns serious ones into moderation warnings.
package complaint

import (
	"anonchat/backend/internal/analysis"
	"anonchat/backend/internal/models"
	"anonchat/backend/internal/storage"
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// ErrUnknownType is returned for a complaint type without a weight.
var ErrUnknownType = errors.New("unknown complaint type")

// Moderator is the part of the engine complaints need.
type Moderator interface {
	CurrentPartner(ctx context.Context, userID string) (partnerID, sessionID string, err error)
	ReportWarning(ctx context.Context, userID string) (int, error)
}

// Service handles the business logic for complaints.
type Service struct {
	Storage   storage.Storage
	Moderator Moderator
}

// NewService creates a new complaint service.
func NewService(s storage.Storage, m Moderator) *Service {
	return &Service{Storage: s, Moderator: m}
}

// HandleComplaint files a complaint from reporterID against their current
// partner. Critical complaints issue a warning to the partner.
func (s *Service) HandleComplaint(ctx context.Context, reporterID, complaintType, reason string) (*models.Complaint, error) {
	if analysis.GetWeight(complaintType) == 0 {
		return nil, ErrUnknownType
	}
	partnerID, sessionID, err := s.Moderator.CurrentPartner(ctx, reporterID)
	if err != nil {
		return nil, err
	}

	c := &models.Complaint{
		ComplaintID:    uuid.NewString(),
		ReporterID:     reporterID,
		ReportedUserID: partnerID,
		SessionID:      sessionID,
		ComplaintType:  complaintType,
		Reason:         reason,
		Status:         "new",
	}

	if analysis.IsCritical(complaintType) {
		count, err := s.Moderator.ReportWarning(ctx, partnerID)
		if err != nil {
			return nil, err
		}
		c.Status = "warned"
		log.Info().Str("module", "complaint").Str("user_id", partnerID).Int("warnings", count).Msg("complaint issued a warning")
	}

	if err := s.Storage.SaveComplaint(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}
