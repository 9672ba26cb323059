package model

import (
	"fmt"

	"github.com/google/uuid"
)

// Role is the closed set of roles a membership can carry. There is no
// catch-all: code switching on Role must handle every constant.
type Role string

const (
	RoleOwner      Role = "owner"
	RoleAdmin      Role = "admin"
	RoleTherapist  Role = "therapist"
	RoleContractor Role = "contractor"
)

// Valid reports whether r is one of the defined roles.
func (r Role) Valid() bool {
	switch r {
	case RoleOwner, RoleAdmin, RoleTherapist, RoleContractor:
		return true
	}
	return false
}

// OrganizationMembership binds one user to one tenant organization with a
// role and a set of capability flags. Memberships are deactivated on
// offboarding, never hard-deleted.
type OrganizationMembership struct {
	Base
	OrganizationID uuid.UUID `json:"organization_id" db:"organization_id"`
	UserID         uuid.UUID `json:"user_id" db:"user_id"`
	Role           Role      `json:"role" db:"role"`

	CanViewAllPatients       bool     `json:"can_view_all_patients" db:"can_view_all_patients"`
	CanViewAllCalendars      bool     `json:"can_view_all_calendars" db:"can_view_all_calendars"`
	CanViewSelectedPatients  UUIDList `json:"can_view_selected_patients" db:"can_view_selected_patients"`
	CanViewSelectedCalendars UUIDList `json:"can_view_selected_calendars" db:"can_view_selected_calendars"`
	CanManageBilling         bool     `json:"can_manage_billing" db:"can_manage_billing"`
	CanManageStaff           bool     `json:"can_manage_staff" db:"can_manage_staff"`
	CanManageSettings        bool     `json:"can_manage_settings" db:"can_manage_settings"`
	CanCreatePatients        bool     `json:"can_create_patients" db:"can_create_patients"`

	IsActive       bool `json:"is_active" db:"is_active"`
	IsPrimaryOwner bool `json:"is_primary_owner" db:"is_primary_owner"`
}

// Validate checks structural invariants that do not need repository state.
func (m *OrganizationMembership) Validate() error {
	if m.OrganizationID == uuid.Nil {
		return fmt.Errorf("organization ID is required")
	}
	if m.UserID == uuid.Nil {
		return fmt.Errorf("user ID is required")
	}
	if !m.Role.Valid() {
		return fmt.Errorf("invalid role %q", m.Role)
	}
	if m.IsPrimaryOwner && m.Role != RoleOwner {
		return fmt.Errorf("primary owner must hold the owner role")
	}
	return nil
}
