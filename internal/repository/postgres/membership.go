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

type membershipRepository struct {
	db *sqlx.DB
}

func NewMembershipRepository(db *sqlx.DB) repository.MembershipRepository {
	return &membershipRepository{db: db}
}

func (r *membershipRepository) Create(ctx context.Context, m *model.OrganizationMembership) error {
	query := `
        INSERT INTO organization_memberships (
            id, organization_id, user_id, role,
            can_view_all_patients, can_view_all_calendars,
            can_view_selected_patients, can_view_selected_calendars,
            can_manage_billing, can_manage_staff, can_manage_settings, can_create_patients,
            is_active, is_primary_owner, created_at, updated_at
        ) VALUES (
            :id, :organization_id, :user_id, :role,
            :can_view_all_patients, :can_view_all_calendars,
            :can_view_selected_patients, :can_view_selected_calendars,
            :can_manage_billing, :can_manage_staff, :can_manage_settings, :can_create_patients,
            :is_active, :is_primary_owner, :created_at, :updated_at
        )
    `
	if _, err := r.db.NamedExecContext(ctx, query, m); err != nil {
		return fmt.Errorf("failed to create membership: %w", err)
	}
	return nil
}

func (r *membershipRepository) Update(ctx context.Context, m *model.OrganizationMembership) error {
	m.UpdatedAt = time.Now()
	query := `
        UPDATE organization_memberships SET
            role = :role,
            can_view_all_patients = :can_view_all_patients,
            can_view_all_calendars = :can_view_all_calendars,
            can_view_selected_patients = :can_view_selected_patients,
            can_view_selected_calendars = :can_view_selected_calendars,
            can_manage_billing = :can_manage_billing,
            can_manage_staff = :can_manage_staff,
            can_manage_settings = :can_manage_settings,
            can_create_patients = :can_create_patients,
            is_primary_owner = :is_primary_owner,
            updated_at = :updated_at
        WHERE id = :id
    `
	if _, err := r.db.NamedExecContext(ctx, query, m); err != nil {
		return fmt.Errorf("failed to update membership: %w", err)
	}
	return nil
}

func (r *membershipRepository) FindByUser(ctx context.Context, userID uuid.UUID) ([]*model.OrganizationMembership, error) {
	query := `
        SELECT * FROM organization_memberships
        WHERE user_id = $1
        ORDER BY created_at
    `
	var memberships []*model.OrganizationMembership
	if err := r.db.SelectContext(ctx, &memberships, query, userID); err != nil {
		return nil, fmt.Errorf("failed to list memberships: %w", err)
	}
	return memberships, nil
}

func (r *membershipRepository) FindByOrgAndUser(ctx context.Context, orgID, userID uuid.UUID) (*model.OrganizationMembership, error) {
	query := `
        SELECT * FROM organization_memberships
        WHERE organization_id = $1 AND user_id = $2
        ORDER BY created_at DESC
        LIMIT 1
    `
	var m model.OrganizationMembership
	if err := r.db.GetContext(ctx, &m, query, orgID, userID); err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *membershipRepository) FindPrimaryOwner(ctx context.Context, orgID uuid.UUID) (*model.OrganizationMembership, error) {
	query := `
        SELECT * FROM organization_memberships
        WHERE organization_id = $1 AND is_primary_owner = true AND is_active = true
    `
	var m model.OrganizationMembership
	if err := r.db.GetContext(ctx, &m, query, orgID); err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *membershipRepository) Deactivate(ctx context.Context, id uuid.UUID) error {
	query := `
        UPDATE organization_memberships
        SET is_active = false, updated_at = $2
        WHERE id = $1
    `
	if _, err := r.db.ExecContext(ctx, query, id, time.Now()); err != nil {
		return fmt.Errorf("failed to deactivate membership: %w", err)
	}
	return nil
}
