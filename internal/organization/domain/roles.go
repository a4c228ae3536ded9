package domain

import authdomain "github.com/joblane/joblane/internal/auth/domain"

// Organization-scoped roles.
const (
	RoleAdmin     = "admin"
	RoleRecruiter = "recruiter"
	RoleEmployee  = "employee"
)

// ValidRole reports whether role is a known organization role.
func ValidRole(role string) bool {
	switch role {
	case RoleAdmin, RoleRecruiter, RoleEmployee:
		return true
	default:
		return false
	}
}

// DeriveGlobalRole maps a company role onto the global account role.
// Admins and recruiters act for the company, everyone else stays a candidate.
func DeriveGlobalRole(companyRole *string) string {
	if companyRole == nil {
		return authdomain.RoleCandidate
	}
	switch *companyRole {
	case RoleAdmin, RoleRecruiter:
		return authdomain.RoleRecruiter
	default:
		return authdomain.RoleCandidate
	}
}
