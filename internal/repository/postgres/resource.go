package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/bhadresh-123/phicore/internal/model"
	"github.com/bhadresh-123/phicore/internal/repository"
)

type resourceRepository struct {
	db *sqlx.DB
}

func NewResourceRepository(db *sqlx.DB) repository.ResourceRepository {
	return &resourceRepository{db: db}
}

func (r *resourceRepository) Create(ctx context.Context, res *model.ProtectedResource) error {
	query := `
        INSERT INTO protected_resources (
            id, organization_id, type, primary_staff_id, assigned_staff_ids,
            status, billing_amount, phi, created_at, updated_at
        ) VALUES (
            :id, :organization_id, :type, :primary_staff_id, :assigned_staff_ids,
            :status, :billing_amount, :phi, :created_at, :updated_at
        )
    `
	if _, err := r.db.NamedExecContext(ctx, query, res); err != nil {
		return fmt.Errorf("failed to create resource: %w", err)
	}
	return nil
}

func (r *resourceRepository) Update(ctx context.Context, res *model.ProtectedResource) error {
	query := `
        UPDATE protected_resources SET
            primary_staff_id = :primary_staff_id,
            assigned_staff_ids = :assigned_staff_ids,
            status = :status,
            billing_amount = :billing_amount,
            phi = :phi,
            updated_at = :updated_at
        WHERE id = :id AND deleted_at IS NULL
    `
	result, err := r.db.NamedExecContext(ctx, query, res)
	if err != nil {
		return fmt.Errorf("failed to update resource: %w", err)
	}
	if rows, err := result.RowsAffected(); err == nil && rows == 0 {
		return fmt.Errorf("resource %s not found or deleted", res.ID)
	}
	return nil
}

func (r *resourceRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.ProtectedResource, error) {
	query := `
        SELECT * FROM protected_resources
        WHERE id = $1 AND deleted_at IS NULL
    `
	var res model.ProtectedResource
	if err := r.db.GetContext(ctx, &res, query, id); err != nil {
		return nil, err
	}
	return &res, nil
}

func (r *resourceRepository) SoftDelete(ctx context.Context, id, deletedBy uuid.UUID, at time.Time) error {
	query := `
        UPDATE protected_resources
        SET deleted_at = $2, deleted_by = $3, updated_at = $2
        WHERE id = $1 AND deleted_at IS NULL
    `
	if _, err := r.db.ExecContext(ctx, query, id, at, deletedBy); err != nil {
		return fmt.Errorf("failed to soft-delete resource: %w", err)
	}
	return nil
}

// FindBySearchHash matches the deterministic hash stored inside the phi
// bag. Backed by an expression index per searchable field.
func (r *resourceRepository) FindBySearchHash(ctx context.Context, rt model.ResourceType, field model.FieldName, hash string) ([]*model.ProtectedResource, error) {
	query := `
        SELECT * FROM protected_resources
        WHERE type = $1
          AND phi -> $2 ->> 'sh' = $3
          AND deleted_at IS NULL
        ORDER BY created_at
    `
	var resources []*model.ProtectedResource
	if err := r.db.SelectContext(ctx, &resources, query, rt, string(field), hash); err != nil {
		return nil, fmt.Errorf("failed to search resources: %w", err)
	}
	return resources, nil
}
