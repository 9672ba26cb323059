package access

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/bhadresh-123/phicore/internal/model"
)

// MembershipLookup supplies a caller's memberships. Implemented by the
// membership package; the resolver never owns membership state.
type MembershipLookup interface {
	FindByUser(ctx context.Context, userID uuid.UUID) ([]*model.OrganizationMembership, error)
}

// Resolver decides whether a caller holds a capability over a protected
// resource, from the caller's active memberships in the resource's owning
// organization. Stateless; safe for concurrent use.
type Resolver struct {
	lookup MembershipLookup
}

func NewResolver(lookup MembershipLookup) *Resolver {
	return &Resolver{lookup: lookup}
}

// capabilityRule maps one capability onto the membership flags that satisfy
// it. The switch is exhaustive over the Capability constants; adding a
// capability without extending it panics on first use rather than silently
// denying or allowing.
type capabilityRule struct {
	// assignmentGrants: being the resource's own assigned staff member is
	// rule 1 and wins before any flag is consulted.
	assignmentGrants bool
	blanket          func(*model.OrganizationMembership) bool
	selected         func(*model.OrganizationMembership) model.UUIDList
}

func ruleFor(c Capability) capabilityRule {
	switch c {
	case CapabilityViewPHI, CapabilityModifyPHI:
		return capabilityRule{
			assignmentGrants: true,
			blanket:          func(m *model.OrganizationMembership) bool { return m.CanViewAllPatients },
			selected:         func(m *model.OrganizationMembership) model.UUIDList { return m.CanViewSelectedPatients },
		}
	case CapabilityViewCalendar, CapabilityModifyCalendar:
		return capabilityRule{
			assignmentGrants: true,
			blanket:          func(m *model.OrganizationMembership) bool { return m.CanViewAllCalendars },
			selected:         func(m *model.OrganizationMembership) model.UUIDList { return m.CanViewSelectedCalendars },
		}
	case CapabilityManageStaff:
		return capabilityRule{
			blanket: func(m *model.OrganizationMembership) bool { return m.CanManageStaff },
		}
	case CapabilityCreateResource:
		return capabilityRule{
			blanket: func(m *model.OrganizationMembership) bool { return m.CanCreatePatients },
		}
	}
	panic(fmt.Sprintf("access: unhandled capability %v", c))
}

// Authorize evaluates the decision rules for callerID against the resource.
// First match wins per membership:
//  1. caller is the resource's own assigned staff member
//  2. membership carries the blanket flag for the capability
//  3. membership's explicit grant list contains the resource's primary assignee
//  4. otherwise deny
//
// A caller with no active membership in the resource's organization is a
// hard deny regardless of rights held elsewhere, evaluated before any PHI
// is touched.
func (r *Resolver) Authorize(ctx context.Context, callerID uuid.UUID, res *model.ProtectedResource, cap Capability) (Decision, error) {
	memberships, err := r.lookup.FindByUser(ctx, callerID)
	if err != nil {
		return Decision{}, fmt.Errorf("membership lookup: %w", err)
	}

	rule := ruleFor(cap)

	inOrg := false
	for _, m := range memberships {
		if !m.IsActive || m.OrganizationID != res.OrganizationID {
			continue
		}
		inOrg = true

		if rule.assignmentGrants && res.AssignedTo(callerID) {
			return granted(), nil
		}
		if rule.blanket != nil && rule.blanket(m) {
			return granted(), nil
		}
		if rule.selected != nil && res.PrimaryStaffID != nil {
			if rule.selected(m).Contains(*res.PrimaryStaffID) {
				return granted(), nil
			}
		}
	}

	if !inOrg {
		return denied(ReasonNoMembership), nil
	}
	return denied(ReasonInsufficientCapability), nil
}
