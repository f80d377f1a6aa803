// ABOUTME: Unit tests for ownership checks
// ABOUTME: Self-access allow/deny and per-route policy behavior

package auth

import (
	"errors"
	"testing"
)

func TestAuthorizeSelfAccess(t *testing.T) {
	if err := AuthorizeSelfAccess("subj-a", "subj-a"); err != nil {
		t.Errorf("same subject should be allowed, got %v", err)
	}

	err := AuthorizeSelfAccess("subj-a", "subj-b")
	if !errors.Is(err, ErrForbidden) {
		t.Errorf("cross-subject access error = %v, want ErrForbidden", err)
	}
}

func TestOwnershipPolicy_Authorize(t *testing.T) {
	tests := []struct {
		name      string
		policy    OwnershipPolicy
		requested string
		session   string
		wantErr   bool
	}{
		{"self-only same subject", PolicySelfOnly, "u1", "u1", false},
		{"self-only different subject", PolicySelfOnly, "u1", "u2", true},
		{"authenticated same subject", PolicyAuthenticated, "u1", "u1", false},
		{"authenticated different subject", PolicyAuthenticated, "u1", "u2", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.policy.Authorize(tt.requested, tt.session)
			if tt.wantErr && !errors.Is(err, ErrForbidden) {
				t.Errorf("Authorize() error = %v, want ErrForbidden", err)
			}
			if !tt.wantErr && err != nil {
				t.Errorf("Authorize() error = %v, want nil", err)
			}
		})
	}
}
