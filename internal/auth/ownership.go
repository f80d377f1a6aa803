// ABOUTME: Ownership checks restricting subjects to their own resources
// ABOUTME: Per-route policy: self-only vs any authenticated caller

package auth

import "fmt"

// OwnershipPolicy selects the ownership rule applied to an
// identity-scoped endpoint. Configured per route, not globally: user
// records are self-only while subscription lookups may be made by any
// authorized caller on another subject's behalf.
type OwnershipPolicy int

const (
	// PolicyAuthenticated allows any caller holding a valid session.
	PolicyAuthenticated OwnershipPolicy = iota
	// PolicySelfOnly additionally requires the requested resource to be
	// keyed by the session's own subject id.
	PolicySelfOnly
)

// AuthorizeSelfAccess enforces "subject may only access subject's own
// resource". Returns ErrForbidden when the ids differ.
func AuthorizeSelfAccess(requestedSubjectID, sessionSubjectID string) error {
	if requestedSubjectID != sessionSubjectID {
		return fmt.Errorf("%w: subject %q cannot access resource owned by %q",
			ErrForbidden, sessionSubjectID, requestedSubjectID)
	}
	return nil
}

// Authorize applies the policy for a resource keyed by requestedSubjectID.
func (p OwnershipPolicy) Authorize(requestedSubjectID, sessionSubjectID string) error {
	switch p {
	case PolicySelfOnly:
		return AuthorizeSelfAccess(requestedSubjectID, sessionSubjectID)
	default:
		return nil
	}
}
