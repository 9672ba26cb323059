package phi

import (
	"github.com/bhadresh-123/phicore/internal/model"
)

// FieldDescriptor describes one PHI field of a resource type. Hashed fields
// additionally store a deterministic search hash; Required fields must be
// present on create.
type FieldDescriptor struct {
	Name     model.FieldName
	Hashed   bool
	Required bool
}

// Searchable PHI field names, shared across resource types that carry them.
const (
	FieldFirstName model.FieldName = "first_name"
	FieldLastName  model.FieldName = "last_name"
	FieldEmail     model.FieldName = "email"
	FieldPhone     model.FieldName = "phone"
)

// FieldDateOfBirth feeds the Safe Harbor age derivation on read.
const FieldDateOfBirth model.FieldName = "date_of_birth"

// fieldTables is the static table mapping each resource type to its ordered
// PHI field set. Encryption dispatch iterates these descriptors; there is no
// runtime field-name construction anywhere.
var fieldTables = map[model.ResourceType][]FieldDescriptor{
	model.ResourcePatient: {
		{Name: FieldFirstName, Hashed: true, Required: true},
		{Name: FieldLastName, Hashed: true, Required: true},
		{Name: "preferred_name"},
		{Name: FieldEmail, Hashed: true},
		{Name: FieldPhone, Hashed: true},
		{Name: FieldDateOfBirth},
		{Name: "gender"},
		{Name: "pronouns"},
		{Name: "address_line1"},
		{Name: "address_line2"},
		{Name: "city"},
		{Name: "state"},
		{Name: "postal_code"},
		{Name: "emergency_contact_name"},
		{Name: "emergency_contact_phone"},
		{Name: "guardian_name"},
		{Name: "guardian_phone"},
		{Name: "insurance_provider"},
		{Name: "insurance_member_id"},
		{Name: "insurance_group_id"},
		{Name: "referral_source"},
		{Name: "primary_diagnosis_code"},
		{Name: "secondary_diagnosis_codes"},
		{Name: "medications"},
		{Name: "allergies"},
		{Name: "intake_notes"},
		{Name: "clinical_notes"},
		{Name: "treatment_goals"},
	},
	model.ResourceClinician: {
		{Name: FieldFirstName, Hashed: true, Required: true},
		{Name: FieldLastName, Hashed: true, Required: true},
		{Name: FieldEmail, Hashed: true},
		{Name: FieldPhone, Hashed: true},
		{Name: FieldDateOfBirth},
		{Name: "home_address"},
		{Name: "license_number"},
		{Name: "license_state"},
		{Name: "npi_number"},
		{Name: "ssn_last_four"},
		{Name: "banking_notes"},
		{Name: "emergency_contact_name"},
		{Name: "emergency_contact_phone"},
	},
	model.ResourceSession: {
		{Name: "session_notes"},
		{Name: "subjective"},
		{Name: "objective"},
		{Name: "assessment"},
		{Name: "plan"},
		{Name: "diagnosis_codes"},
		{Name: "interventions"},
		{Name: "risk_assessment"},
		{Name: "homework"},
	},
	model.ResourceTreatmentPlan: {
		{Name: "presenting_problem"},
		{Name: "diagnosis_codes"},
		{Name: "goals"},
		{Name: "objectives"},
		{Name: "interventions"},
		{Name: "progress_notes"},
		{Name: "discharge_criteria"},
	},
}

// Fields returns the ordered PHI field descriptors for a resource type.
// Unknown types return nil.
func Fields(rt model.ResourceType) []FieldDescriptor {
	return fieldTables[rt]
}

// Descriptor looks up one field's descriptor within a resource type.
func Descriptor(rt model.ResourceType, name model.FieldName) (FieldDescriptor, bool) {
	for _, d := range fieldTables[rt] {
		if d.Name == name {
			return d, true
		}
	}
	return FieldDescriptor{}, false
}
