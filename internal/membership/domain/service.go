// Package domain defines the membership lifecycle contract.
package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/joblane/joblane/pkg/db/pagination"
)

// Membership status surfaced by role lookups.
const (
	StatusActive  = "active"
	StatusPending = "pending"
)

type Service interface {
	RequestToJoin(ctx context.Context, callerID, orgID snowflake.ID, role string) (*JoinRequestResponse, error)
	InviteUser(ctx context.Context, callerID snowflake.ID, callerRole string, orgID, targetUserID snowflake.ID, role string) (*JoinRequestResponse, error)
	RespondToInvite(ctx context.Context, callerID, orgID snowflake.ID, status string) (*JoinRequestResponse, error)
	HandleJoinRequest(ctx context.Context, callerID snowflake.ID, callerRole string, orgID, requestID snowflake.ID, status string) (*JoinRequestResponse, error)
	UpdateMemberRole(ctx context.Context, callerID snowflake.ID, callerRole string, orgID, targetUserID snowflake.ID, newRole string) error
	RemoveMember(ctx context.Context, callerID snowflake.ID, callerRole string, orgID, targetUserID snowflake.ID) error

	ListJoinRequests(ctx context.Context, orgID snowflake.ID, status string, page pagination.Pagination) (*ListJoinRequestsResponse, error)
	ListMembers(ctx context.Context, orgID snowflake.ID, page pagination.Pagination) (*ListMembersResponse, error)
	GetMyOrgRole(ctx context.Context, callerID, orgID snowflake.ID) (*MyRoleResponse, error)
	ListMyJoinRequests(ctx context.Context, callerID snowflake.ID) ([]MyJoinRequestResponse, error)
}

type JoinRequestResponse struct {
	ID          string     `json:"id"`
	OrgID       string     `json:"org_id"`
	UserID      string     `json:"user_id"`
	Role        string     `json:"role"`
	Status      string     `json:"status"`
	Origin      string     `json:"origin"`
	RequestedAt time.Time  `json:"requested_at"`
	ResolvedAt  *time.Time `json:"resolved_at,omitempty"`
}

type MemberResponse struct {
	UserID      string    `json:"user_id"`
	DisplayName string    `json:"display_name"`
	Email       string    `json:"email"`
	Role        string    `json:"role"`
	JoinedAt    time.Time `json:"joined_at"`
}

type ListMembersResponse struct {
	pagination.PageInfo
	Members []MemberResponse `json:"members"`
}

type ListJoinRequestsResponse struct {
	pagination.PageInfo
	Requests []JoinRequestResponse `json:"join_requests"`
}

type MyRoleResponse struct {
	OrgID  string `json:"org_id"`
	Role   string `json:"role"`
	Status string `json:"status"`
}

type MyJoinRequestResponse struct {
	ID          string     `json:"id"`
	OrgID       string     `json:"org_id"`
	OrgName     string     `json:"org_name"`
	Role        string     `json:"role"`
	Status      string     `json:"status"`
	Origin      string     `json:"origin"`
	RequestedAt time.Time  `json:"requested_at"`
	ResolvedAt  *time.Time `json:"resolved_at,omitempty"`
}
