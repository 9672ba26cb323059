package membership

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/bhadresh-123/phicore/internal/audit"
	"github.com/bhadresh-123/phicore/internal/model"
	"github.com/bhadresh-123/phicore/internal/repository"
)

// Service administers organization memberships: granting on invite
// acceptance, deactivating on offboarding. Every change is audited at the
// admin security level.
type Service struct {
	repo     repository.MembershipRepository
	lookup   *CachedLookup
	recorder *audit.Recorder
}

func NewService(repo repository.MembershipRepository, lookup *CachedLookup, recorder *audit.Recorder) *Service {
	return &Service{
		repo:     repo,
		lookup:   lookup,
		recorder: recorder,
	}
}

// Grant creates a membership. At most one active membership per
// organization may carry is_primary_owner; a second primary-owner grant is
// rejected before anything is written.
func (s *Service) Grant(ctx context.Context, grantedBy uuid.UUID, m *model.OrganizationMembership) error {
	if err := m.Validate(); err != nil {
		return fmt.Errorf("invalid membership: %w", err)
	}

	if existing, err := s.repo.FindByOrgAndUser(ctx, m.OrganizationID, m.UserID); err == nil && existing.IsActive {
		return fmt.Errorf("user already holds an active membership in this organization")
	} else if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("failed to check existing membership: %w", err)
	}

	if m.IsPrimaryOwner {
		if owner, err := s.repo.FindPrimaryOwner(ctx, m.OrganizationID); err == nil && owner != nil {
			return fmt.Errorf("organization already has a primary owner")
		} else if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("failed to check primary owner: %w", err)
		}
	}

	m.ID = uuid.New()
	m.CreatedAt = time.Now()
	m.UpdatedAt = m.CreatedAt
	m.IsActive = true

	if err := s.repo.Create(ctx, m); err != nil {
		return fmt.Errorf("failed to create membership: %w", err)
	}

	s.lookup.Invalidate(m.UserID)
	s.audit(ctx, grantedBy, m, model.AuditActionCreate)
	return nil
}

// Deactivate retires a membership in place. The row survives for the
// compliance record.
func (s *Service) Deactivate(ctx context.Context, deactivatedBy, orgID, userID uuid.UUID) error {
	m, err := s.repo.FindByOrgAndUser(ctx, orgID, userID)
	if err != nil {
		return fmt.Errorf("failed to find membership: %w", err)
	}
	if !m.IsActive {
		return nil
	}

	if err := s.repo.Deactivate(ctx, m.ID); err != nil {
		return fmt.Errorf("failed to deactivate membership: %w", err)
	}

	s.lookup.Invalidate(userID)
	s.audit(ctx, deactivatedBy, m, model.AuditActionUpdate)
	return nil
}

func (s *Service) audit(ctx context.Context, actorID uuid.UUID, m *model.OrganizationMembership, action model.AuditAction) {
	actor := actorID
	s.recorder.Record(ctx, &model.AuditLogEntry{
		ActorID:        &actor,
		OrganizationID: m.OrganizationID,
		Action:         action,
		SecurityLevel:  model.SecurityLevelAdmin,
		Success:        true,
		FieldsAccessed: model.StringList{},
	})
}
