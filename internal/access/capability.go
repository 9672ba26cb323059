package access

import "fmt"

// Capability is the closed set of atomic permissions the resolver checks.
type Capability int

const (
	CapabilityViewPHI Capability = iota
	CapabilityModifyPHI
	CapabilityManageStaff
	CapabilityCreateResource
	CapabilityViewCalendar
	CapabilityModifyCalendar
)

func (c Capability) String() string {
	switch c {
	case CapabilityViewPHI:
		return "ViewPHI"
	case CapabilityModifyPHI:
		return "ModifyPHI"
	case CapabilityManageStaff:
		return "ManageStaff"
	case CapabilityCreateResource:
		return "CreateResource"
	case CapabilityViewCalendar:
		return "ViewCalendar"
	case CapabilityModifyCalendar:
		return "ModifyCalendar"
	}
	return fmt.Sprintf("Capability(%d)", int(c))
}

// ReasonCode explains a denial. It is written to the audit trail and the
// operational log only, never returned to the caller.
type ReasonCode string

const (
	ReasonNoMembership           ReasonCode = "NO_MEMBERSHIP"
	ReasonInsufficientCapability ReasonCode = "INSUFFICIENT_CAPABILITY"
)

// Decision is the outcome of an authorization check.
type Decision struct {
	Allowed bool
	Reason  ReasonCode
}

func granted() Decision {
	return Decision{Allowed: true}
}

func denied(reason ReasonCode) Decision {
	return Decision{Allowed: false, Reason: reason}
}
