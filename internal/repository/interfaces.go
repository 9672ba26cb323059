package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/bhadresh-123/phicore/internal/model"
)

// All repository interfaces in one file
type (
	// MembershipRepository stores organization memberships. Deactivate
	// flips is_active; there is no hard delete.
	MembershipRepository interface {
		Create(ctx context.Context, m *model.OrganizationMembership) error
		Update(ctx context.Context, m *model.OrganizationMembership) error
		FindByUser(ctx context.Context, userID uuid.UUID) ([]*model.OrganizationMembership, error)
		FindByOrgAndUser(ctx context.Context, orgID, userID uuid.UUID) (*model.OrganizationMembership, error)
		FindPrimaryOwner(ctx context.Context, orgID uuid.UUID) (*model.OrganizationMembership, error)
		Deactivate(ctx context.Context, id uuid.UUID) error
	}

	// ResourceRepository stores protected resources with their encrypted
	// field bags. SoftDelete marks the row; rows are never removed.
	ResourceRepository interface {
		Create(ctx context.Context, r *model.ProtectedResource) error
		Update(ctx context.Context, r *model.ProtectedResource) error
		FindByID(ctx context.Context, id uuid.UUID) (*model.ProtectedResource, error)
		SoftDelete(ctx context.Context, id, deletedBy uuid.UUID, at time.Time) error
		FindBySearchHash(ctx context.Context, rt model.ResourceType, field model.FieldName, hash string) ([]*model.ProtectedResource, error)
	}

	// AuditRepository is the append-only audit store. There is no update
	// and no pre-expiry delete; ExpungeExpired removes only rows whose
	// retention window has closed.
	AuditRepository interface {
		Append(ctx context.Context, entry *model.AuditLogEntry) error
		List(ctx context.Context, filters map[string]interface{}) ([]*model.AuditLogEntry, error)
		ExpungeExpired(ctx context.Context, now time.Time) (int64, error)
	}
)
