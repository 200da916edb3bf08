package contexthelpers_test

import (
	"net/http/httptest"
	"testing"

	"github.com/myrjola/planfit/internal/contexthelpers"
)

func TestAuthenticateContext(t *testing.T) {
	tests := []struct {
		name      string
		userID    int
		isAdmin   bool
		anonymous bool
	}{
		{name: "anonymous", anonymous: true},
		{name: "user", userID: 3},
		{name: "admin", userID: 1, isAdmin: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", "/", nil)
			if !tt.anonymous {
				r = contexthelpers.AuthenticateContext(r, tt.userID, tt.isAdmin)
			}
			ctx := r.Context()
			if got := contexthelpers.IsAuthenticated(ctx); got == tt.anonymous {
				t.Errorf("IsAuthenticated() = %v, want %v", got, !tt.anonymous)
			}
			if got := contexthelpers.AuthenticatedUserID(ctx); got != tt.userID {
				t.Errorf("AuthenticatedUserID() = %d, want %d", got, tt.userID)
			}
			if got := contexthelpers.IsAdmin(ctx); got != tt.isAdmin {
				t.Errorf("IsAdmin() = %v, want %v", got, tt.isAdmin)
			}
		})
	}
}

func TestRequestValues(t *testing.T) {
	r := httptest.NewRequest("GET", "/days/2024-01-01", nil)
	r = contexthelpers.SetCurrentPath(r, "/days/2024-01-01")
	r = contexthelpers.SetCSPNonce(r, "nonce")
	r = contexthelpers.SetTraceID(r, "trace")
	ctx := r.Context()
	if got := contexthelpers.CurrentPath(ctx); got != "/days/2024-01-01" {
		t.Errorf("CurrentPath() = %q", got)
	}
	if got := contexthelpers.CSPNonce(ctx); got != "nonce" {
		t.Errorf("CSPNonce() = %q", got)
	}
	if got := contexthelpers.TraceID(ctx); got != "trace" {
		t.Errorf("TraceID() = %q", got)
	}
}
