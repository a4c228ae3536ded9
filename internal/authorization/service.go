// Package authorization computes a caller's effective role for an
// organization and enforces role-based access on membership operations.
package authorization

import (
	"context"
	"errors"
)

type Service interface {
	// Authorize checks whether actor may perform action on object within
	// the given organization. The actor's role is re-resolved from storage
	// on every call.
	Authorize(ctx context.Context, actor string, orgID string, object string, action string) error

	// EffectiveRole resolves the caller's role for an organization: the
	// admins table first, then the role of an accepted join request.
	EffectiveRole(ctx context.Context, orgID string, userID string) (string, error)
}

var (
	ErrInvalidActor        = errors.New("invalid_actor")
	ErrInvalidOrganization = errors.New("invalid_organization")
	ErrInvalidObject       = errors.New("invalid_object")
	ErrInvalidAction       = errors.New("invalid_action")
	ErrForbidden           = errors.New("forbidden")
	ErrNotMember           = errors.New("not_a_member")
)
