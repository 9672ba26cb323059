package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// ResourceType is the closed set of protected resource kinds.
type ResourceType string

const (
	ResourcePatient       ResourceType = "patient"
	ResourceClinician     ResourceType = "clinician"
	ResourceSession       ResourceType = "session"
	ResourceTreatmentPlan ResourceType = "treatment_plan"
)

// Valid reports whether rt is one of the defined resource types.
func (rt ResourceType) Valid() bool {
	switch rt {
	case ResourcePatient, ResourceClinician, ResourceSession, ResourceTreatmentPlan:
		return true
	}
	return false
}

// FieldName names one PHI field within a resource's protected field set.
type FieldName string

// PlaintextBag is a named bag of optional string fields. An absent key means
// the field was not supplied; an empty value is treated the same as absent.
type PlaintextBag map[FieldName]string

// EncryptedField is the stored form of one PHI field: base64 AES-GCM
// ciphertext plus, for searchable fields, a deterministic one-way hash.
type EncryptedField struct {
	Ciphertext string  `json:"ct"`
	SearchHash *string `json:"sh,omitempty"`
}

// EncryptedBag maps PHI field names to their stored form. Persisted as a
// single JSONB column; a field absent from the bag has no stored value at
// all, so "present but blank" is indistinguishable from "absent".
type EncryptedBag map[FieldName]EncryptedField

func (b EncryptedBag) Value() (driver.Value, error) {
	if b == nil {
		return "{}", nil
	}
	return json.Marshal(b)
}

func (b *EncryptedBag) Scan(src interface{}) error {
	if src == nil {
		*b = nil
		return nil
	}
	switch v := src.(type) {
	case []byte:
		return json.Unmarshal(v, b)
	case string:
		return json.Unmarshal([]byte(v), b)
	default:
		return fmt.Errorf("cannot scan %T into EncryptedBag", src)
	}
}

// ProtectedResource is a patient record, clinician personal-data record,
// clinical session or treatment plan. Plain fields travel as-is; PHI fields
// live only in the encrypted bag. Soft-deleted, never purged.
type ProtectedResource struct {
	Base
	OrganizationID   uuid.UUID    `json:"organization_id" db:"organization_id"`
	Type             ResourceType `json:"type" db:"type"`
	PrimaryStaffID   *uuid.UUID   `json:"primary_staff_id,omitempty" db:"primary_staff_id"`
	AssignedStaffIDs UUIDList     `json:"assigned_staff_ids" db:"assigned_staff_ids"`
	Status           string       `json:"status" db:"status"`
	BillingAmount    int64        `json:"billing_amount" db:"billing_amount"`

	// PHI holds every protected field in encrypted form, each with its
	// search hash where applicable. Ciphertext and hash live in the same
	// stored value so they can never be updated apart.
	PHI EncryptedBag `json:"-" db:"phi"`

	DeletedBy *uuid.UUID `json:"deleted_by,omitempty" db:"deleted_by"`
}

// AssignedTo reports whether userID is the primary assignee or among the
// additional assigned staff.
func (r *ProtectedResource) AssignedTo(userID uuid.UUID) bool {
	if r.PrimaryStaffID != nil && *r.PrimaryStaffID == userID {
		return true
	}
	return r.AssignedStaffIDs.Contains(userID)
}

// ResourceView is the decrypted, caller-facing shape of a protected
// resource. Fields holds plaintext PHI; DisplayAge is present only for
// resource types that carry a date of birth.
type ResourceView struct {
	ID               uuid.UUID    `json:"id"`
	OrganizationID   uuid.UUID    `json:"organization_id"`
	Type             ResourceType `json:"type"`
	PrimaryStaffID   *uuid.UUID   `json:"primary_staff_id,omitempty"`
	AssignedStaffIDs UUIDList     `json:"assigned_staff_ids,omitempty"`
	Status           string       `json:"status"`
	BillingAmount    int64        `json:"billing_amount"`
	Fields           PlaintextBag `json:"fields"`
	DisplayAge       string       `json:"display_age,omitempty"`
}
