package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	authdomain "github.com/joblane/joblane/internal/auth/domain"
	"github.com/joblane/joblane/pkg/db/pagination"
	"gorm.io/gorm"
)

type OrganizationListItem struct {
	ID        snowflake.ID
	Name      string
	Slug      string
	Role      string
	CreatedAt time.Time
}

type MemberListItem struct {
	UserID      snowflake.ID
	DisplayName string
	Email       string
	Role        string
	CreatedAt   time.Time
}

type UserJoinRequestItem struct {
	ID          snowflake.ID
	OrgID       snowflake.ID
	OrgName     string
	Role        string
	Status      string
	Origin      string
	RequestedAt time.Time
	ResolvedAt  *time.Time
}

type Repository interface {
	WithTx(tx *gorm.DB) Repository

	CreateOrganization(ctx context.Context, org Organization) error
	GetOrganization(ctx context.Context, id snowflake.ID) (*Organization, error)
	GetOrganizationBySlug(ctx context.Context, slug string) (*Organization, error)
	ListOrganizationsByUser(ctx context.Context, userID snowflake.ID) ([]OrganizationListItem, error)

	AddMember(ctx context.Context, member OrganizationMember) error
	GetMember(ctx context.Context, orgID, userID snowflake.ID) (*OrganizationMember, error)
	UpdateMemberRole(ctx context.Context, orgID, userID snowflake.ID, role string) error
	RemoveMember(ctx context.Context, orgID, userID snowflake.ID) error
	ListMembers(ctx context.Context, orgID snowflake.ID, page pagination.Pagination) ([]MemberListItem, *pagination.PageInfo, error)

	AddAdmin(ctx context.Context, admin OrganizationAdmin) error
	IsAdmin(ctx context.Context, orgID, userID snowflake.ID) (bool, error)
	RemoveAdmin(ctx context.Context, orgID, userID snowflake.ID) error

	CreateJoinRequest(ctx context.Context, req JoinRequest) error
	GetJoinRequest(ctx context.Context, orgID, requestID snowflake.ID) (*JoinRequest, error)
	FindJoinRequest(ctx context.Context, orgID, userID snowflake.ID, statuses ...string) (*JoinRequest, error)
	UpdateJoinRequest(ctx context.Context, req JoinRequest) error
	ResolvePendingJoinRequest(ctx context.Context, req JoinRequest) error
	DeleteJoinRequest(ctx context.Context, requestID snowflake.ID) error
	DeletePendingJoinRequest(ctx context.Context, requestID snowflake.ID) error
	ListJoinRequests(ctx context.Context, orgID snowflake.ID, status string, page pagination.Pagination) ([]JoinRequest, *pagination.PageInfo, error)
	ListJoinRequestsByUser(ctx context.Context, userID snowflake.ID) ([]UserJoinRequestItem, error)

	GetUser(ctx context.Context, userID snowflake.ID) (*authdomain.User, error)
	SetUserAffiliation(ctx context.Context, userID snowflake.ID, companyID *snowflake.ID, companyRole *string, globalRole string) error
}
