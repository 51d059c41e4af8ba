package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/medicore/opd-api/internal/model"
	"github.com/medicore/opd-api/internal/repository"
	"github.com/medicore/opd-api/pkg/logger"
)

type Service struct {
	repo   repository.AuditRepository
	logger *logger.Logger
}

func NewService(repo repository.AuditRepository, logger *logger.Logger) *Service {
	return &Service{repo: repo, logger: logger}
}

type LogOptions struct {
	Changes  interface{}
	Metadata interface{}
}

// Log writes an audit entry. Fire-and-forget: a sink failure is logged and
// swallowed so it can never fail the clinical operation that triggered it.
func (s *Service) Log(ctx context.Context, sess *model.SessionContext, action, entityType string, entityID uuid.UUID, opts *LogOptions) {
	var changes, metadata json.RawMessage

	if opts != nil {
		if opts.Changes != nil {
			changes, _ = json.Marshal(opts.Changes)
		}
		if opts.Metadata != nil {
			metadata, _ = json.Marshal(opts.Metadata)
		}
	}

	entry := &model.AuditLog{
		ID:         uuid.New(),
		TenantID:   sess.TenantID,
		UserID:     sess.UserID,
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		Changes:    changes,
		Metadata:   metadata,
		CreatedAt:  time.Now(),
	}

	if err := s.repo.Create(ctx, entry); err != nil {
		s.logger.Error(err, "failed to write audit log", "action", action, "entity_id", entityID.String())
	}
}
