package domain

import (
	"testing"

	authdomain "github.com/joblane/joblane/internal/auth/domain"
	"github.com/stretchr/testify/require"
)

func strptr(s string) *string { return &s }

func TestDeriveGlobalRole(t *testing.T) {
	require.Equal(t, authdomain.RoleRecruiter, DeriveGlobalRole(strptr(RoleAdmin)))
	require.Equal(t, authdomain.RoleRecruiter, DeriveGlobalRole(strptr(RoleRecruiter)))
	require.Equal(t, authdomain.RoleCandidate, DeriveGlobalRole(strptr(RoleEmployee)))
	require.Equal(t, authdomain.RoleCandidate, DeriveGlobalRole(nil))
}

func TestValidRole(t *testing.T) {
	for _, role := range []string{RoleAdmin, RoleRecruiter, RoleEmployee} {
		require.True(t, ValidRole(role), role)
	}
	require.False(t, ValidRole("owner"))
	require.False(t, ValidRole(""))
}
