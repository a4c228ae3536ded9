// Package domain contains persistence models for the organization aggregate.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// Join request lifecycle states. A request transitions exactly once from
// pending to accepted or rejected; a rejected request is never reused.
const (
	RequestPending  = "pending"
	RequestAccepted = "accepted"
	RequestRejected = "rejected"
)

// Join request origins.
const (
	OriginRequested = "requested"
	OriginInvited   = "invited"
)

// Organization represents a company on the platform.
type Organization struct {
	ID          snowflake.ID      `gorm:"primaryKey" json:"id"`
	Name        string            `gorm:"type:text;not null" json:"name"`
	Slug        string            `gorm:"type:text;not null;uniqueIndex:ux_organizations_slug" json:"slug"`
	Description string            `gorm:"type:text" json:"description"`
	Website     string            `gorm:"type:text" json:"website"`
	IsDefault   bool              `gorm:"column:is_default" json:"is_default"`
	Metadata    datatypes.JSONMap `gorm:"type:jsonb;not null;default:'{}'" json:"metadata"`
	CreatedAt   time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt   time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (Organization) TableName() string { return "organizations" }

// OrganizationAdmin marks a user as an administrator of an organization.
// Every admin row must have a matching member row with role admin.
type OrganizationAdmin struct {
	ID        snowflake.ID `gorm:"primaryKey" json:"id"`
	OrgID     snowflake.ID `gorm:"not null;index;uniqueIndex:ux_org_admin,priority:1" json:"org_id"`
	UserID    snowflake.ID `gorm:"not null;index;uniqueIndex:ux_org_admin,priority:2" json:"user_id"`
	CreatedAt time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

// TableName sets the database table name.
func (OrganizationAdmin) TableName() string { return "organization_admins" }

// OrganizationMember records a user's membership in an organization.
// Rows are derived from accepted join requests and carry the same role.
type OrganizationMember struct {
	ID        snowflake.ID `gorm:"primaryKey" json:"id"`
	OrgID     snowflake.ID `gorm:"not null;index;uniqueIndex:ux_org_user,priority:1" json:"org_id"`
	UserID    snowflake.ID `gorm:"not null;index;uniqueIndex:ux_org_user,priority:2" json:"user_id"`
	Role      string       `gorm:"type:text;not null" json:"role"`
	CreatedAt time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

// TableName sets the database table name.
func (OrganizationMember) TableName() string { return "organization_members" }

// JoinRequest tracks one user's attempt to affiliate with an organization,
// whether self-initiated or created by an invite.
type JoinRequest struct {
	ID          snowflake.ID  `gorm:"primaryKey" json:"id"`
	OrgID       snowflake.ID  `gorm:"not null;index" json:"org_id"`
	UserID      snowflake.ID  `gorm:"not null;index" json:"user_id"`
	Role        string        `gorm:"type:text;not null" json:"role"`
	Status      string        `gorm:"type:text;not null;index" json:"status"`
	Origin      string        `gorm:"type:text;not null" json:"origin"`
	InvitedBy   *snowflake.ID `gorm:"column:invited_by" json:"invited_by,omitempty"`
	RequestedAt time.Time     `gorm:"not null;default:CURRENT_TIMESTAMP" json:"requested_at"`
	ResolvedAt  *time.Time    `gorm:"column:resolved_at" json:"resolved_at,omitempty"`
	ResolvedBy  *snowflake.ID `gorm:"column:resolved_by" json:"resolved_by,omitempty"`
}

// TableName sets the database table name.
func (JoinRequest) TableName() string { return "organization_join_requests" }
