package domain

import "errors"

var (
	ErrInvalidRole      = errors.New("invalid_role")
	ErrInvalidStatus    = errors.New("invalid_status")
	ErrDuplicateRequest = errors.New("duplicate_join_request")
	ErrAlreadyMember    = errors.New("already_member")
	ErrRequestResolved  = errors.New("join_request_resolved")
	ErrSelfRemoval      = errors.New("self_removal_forbidden")
	ErrAdminRemoval     = errors.New("admin_removal_requires_admin")
	ErrAdminAssignment  = errors.New("admin_assignment_requires_admin")
	ErrNotMember        = errors.New("not_a_member")
)
