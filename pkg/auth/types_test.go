package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRole_IsPrivileged(t *testing.T) {
	tests := []struct {
		role Role
		want bool
	}{
		{RoleAdmin, true},
		{RoleDoctor, true},
		{RoleUser, false},
		{RoleAuditor, false},
		{RoleCoordinator, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.role), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.role.IsPrivileged())
			assert.Equal(t, tt.want, Principal{ID: 1, Role: tt.role}.IsPrivileged())
		})
	}
}

func TestParseRole(t *testing.T) {
	r, err := ParseRole("coordinator")
	require.NoError(t, err)
	assert.Equal(t, RoleCoordinator, r)

	_, err = ParseRole("viewer")
	assert.Error(t, err)

	assert.False(t, Role("").Valid())
}

func TestPrincipal_Name(t *testing.T) {
	assert.Equal(t, "alice", Principal{ID: 3, Username: "alice"}.Name())
	assert.Equal(t, "user-3", Principal{ID: 3}.Name())
}

func TestAuthContext_HasRole(t *testing.T) {
	var nilCtx *AuthContext
	assert.False(t, nilCtx.HasRole(RoleAdmin))

	ac := &AuthContext{Principal: &Principal{ID: 1, Role: RoleDoctor}}
	assert.True(t, ac.HasRole(RoleAdmin, RoleDoctor))
	assert.False(t, ac.HasRole(RoleAdmin))
}
