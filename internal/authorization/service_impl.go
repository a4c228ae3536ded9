package authorization

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	gormadapter "github.com/casbin/gorm-adapter/v3"
	auditdomain "github.com/joblane/joblane/internal/audit/domain"
	orgdomain "github.com/joblane/joblane/internal/organization/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

//go:embed model.conf
var modelText string

const (
	ObjectMembership   = "membership"
	ObjectOrganization = "organization"
	ObjectAuditLog     = "audit_log"
)

const (
	ActionMembershipInvite        = "membership.invite"
	ActionMembershipHandleRequest = "membership.handle_request"
	ActionMembershipUpdateRole    = "membership.update_role"
	ActionMembershipRemove        = "membership.remove"
	ActionMembershipListRequests  = "membership.list_requests"
	ActionMembershipListMembers   = "membership.list_members"

	ActionOrganizationView = "organization.view"

	ActionAuditLogView = "audit_log.view"
)

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	Enforcer *casbin.SyncedEnforcer
	AuditSvc auditdomain.Service `optional:"true"`
}

type ServiceImpl struct {
	db       *gorm.DB
	log      *zap.Logger
	enforcer *casbin.SyncedEnforcer
	auditSvc auditdomain.Service
}

func NewEnforcer(db *gorm.DB) (*casbin.SyncedEnforcer, error) {
	adapter, err := gormadapter.NewAdapterByDB(db)
	if err != nil {
		return nil, err
	}
	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return nil, err
	}
	enforcer, err := casbin.NewSyncedEnforcer(m, adapter)
	if err != nil {
		return nil, err
	}
	enforcer.EnableAutoSave(true)
	enforcer.EnableAutoBuildRoleLinks(true)
	if err := enforcer.LoadPolicy(); err != nil {
		return nil, err
	}
	if err := seedPolicies(enforcer); err != nil {
		return nil, err
	}
	enforcer.BuildRoleLinks()
	return enforcer, nil
}

func NewService(p Params) Service {
	return &ServiceImpl{
		db:       p.DB,
		log:      p.Log.Named("authorization.service"),
		enforcer: p.Enforcer,
		auditSvc: p.AuditSvc,
	}
}

func (s *ServiceImpl) Authorize(ctx context.Context, actor string, orgID string, object string, action string) error {
	actor = strings.TrimSpace(actor)
	if actor == "" {
		return ErrInvalidActor
	}
	orgID = strings.TrimSpace(orgID)
	if orgID == "" {
		return ErrInvalidOrganization
	}
	object = strings.TrimSpace(object)
	if object == "" {
		return ErrInvalidObject
	}
	action = strings.TrimSpace(action)
	if action == "" {
		return ErrInvalidAction
	}

	subject, roleName, actorType, actorID, err := s.resolveActor(ctx, actor, orgID)
	if err != nil {
		s.auditDenied(ctx, actorType, actorID, orgID, object, action)
		return err
	}

	domain := fmt.Sprintf("org:%s", orgID)
	if err := s.ensureGrouping(subject, roleName, domain); err != nil {
		return err
	}

	allowed, err := s.enforcer.Enforce(subject, domain, object, action)
	if err != nil {
		return err
	}
	if !allowed {
		s.auditDenied(ctx, actorType, actorID, orgID, object, action)
		return ErrForbidden
	}

	return nil
}

// EffectiveRole performs a fresh read each call so role changes take effect
// on the very next request.
func (s *ServiceImpl) EffectiveRole(ctx context.Context, orgID string, userID string) (string, error) {
	parsedOrgID, err := snowflake.ParseString(strings.TrimSpace(orgID))
	if err != nil || parsedOrgID == 0 {
		return "", ErrInvalidOrganization
	}
	parsedUserID, err := snowflake.ParseString(strings.TrimSpace(userID))
	if err != nil || parsedUserID == 0 {
		return "", ErrInvalidActor
	}
	return s.roleForUser(ctx, parsedOrgID, parsedUserID)
}

func (s *ServiceImpl) resolveActor(ctx context.Context, actor string, orgID string) (string, string, string, *string, error) {
	if actor == "system" {
		return actor, "role:system", "system", nil, nil
	}
	if strings.HasPrefix(actor, "user:") {
		userIDRaw := strings.TrimPrefix(actor, "user:")
		userID, err := snowflake.ParseString(userIDRaw)
		if err != nil || userID == 0 {
			return "", "", "", nil, ErrInvalidActor
		}
		userIDStr := userID.String()
		parsedOrgID, err := snowflake.ParseString(orgID)
		if err != nil || parsedOrgID == 0 {
			return actor, "", "user", &userIDStr, ErrInvalidOrganization
		}
		role, err := s.roleForUser(ctx, parsedOrgID, userID)
		if err != nil {
			return actor, "", "user", &userIDStr, err
		}
		roleName := fmt.Sprintf("role:%s", strings.ToLower(role))
		return actor, roleName, "user", &userIDStr, nil
	}
	return "", "", "", nil, ErrInvalidActor
}

// roleForUser resolves the caller's effective role from the organization's
// own records: an admins row wins, otherwise the accepted join request's
// role applies. A missing organization is reported as such, not as a
// membership denial.
func (s *ServiceImpl) roleForUser(ctx context.Context, orgID snowflake.ID, userID snowflake.ID) (string, error) {
	var orgCount int64
	err := s.db.WithContext(ctx).
		Model(&orgdomain.Organization{}).
		Where("id = ?", orgID).
		Count(&orgCount).Error
	if err != nil {
		return "", err
	}
	if orgCount == 0 {
		return "", orgdomain.ErrOrganizationNotFound
	}

	isAdmin, err := s.isAdmin(ctx, orgID, userID)
	if err != nil {
		return "", err
	}
	if isAdmin {
		return orgdomain.RoleAdmin, nil
	}

	var request orgdomain.JoinRequest
	err = s.db.WithContext(ctx).
		Where("org_id = ? AND user_id = ? AND status = ?", orgID, userID, orgdomain.RequestAccepted).
		Order("requested_at DESC, id DESC").
		First(&request).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", ErrNotMember
	}
	if err != nil {
		return "", err
	}

	role := strings.TrimSpace(request.Role)
	if role == "" {
		return "", ErrNotMember
	}
	return role, nil
}

func (s *ServiceImpl) isAdmin(ctx context.Context, orgID snowflake.ID, userID snowflake.ID) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).
		Model(&orgdomain.OrganizationAdmin{}).
		Where("org_id = ? AND user_id = ?", orgID, userID).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (s *ServiceImpl) ensureGrouping(subject string, roleName string, domain string) error {
	existing, err := s.enforcer.GetFilteredGroupingPolicy(0, subject, "", domain)
	if err != nil {
		return err
	}
	for _, rule := range existing {
		if len(rule) < 2 {
			continue
		}
		if rule[1] != roleName {
			params := make([]interface{}, 0, len(rule))
			for _, value := range rule {
				params = append(params, value)
			}
			_, _ = s.enforcer.RemoveGroupingPolicy(params...)
		}
	}

	has, err := s.enforcer.HasGroupingPolicy(subject, roleName, domain)
	if err != nil {
		return err
	}
	if has {
		return nil
	}
	_, err = s.enforcer.AddGroupingPolicy(subject, roleName, domain)
	return err
}

func (s *ServiceImpl) auditDenied(ctx context.Context, actorType string, actorID *string, orgID string, object string, action string) {
	if s.auditSvc == nil {
		return
	}
	parsedOrgID, err := snowflake.ParseString(orgID)
	if err != nil || parsedOrgID == 0 {
		return
	}
	targetID := "capability"
	_ = s.auditSvc.AuditLog(ctx, &parsedOrgID, actorType, actorID, "authorization.denied", "authorization", &targetID, map[string]any{
		"object": object,
		"action": action,
		"org_id": orgID,
	})
}

func seedPolicies(enforcer *casbin.SyncedEnforcer) error {
	policies := [][]string{
		// Admins manage the full membership lifecycle.
		{"role:admin", ObjectMembership, ActionMembershipInvite},
		{"role:admin", ObjectMembership, ActionMembershipHandleRequest},
		{"role:admin", ObjectMembership, ActionMembershipUpdateRole},
		{"role:admin", ObjectMembership, ActionMembershipRemove},
		{"role:admin", ObjectMembership, ActionMembershipListRequests},
		{"role:admin", ObjectMembership, ActionMembershipListMembers},
		{"role:admin", ObjectOrganization, ActionOrganizationView},
		{"role:admin", ObjectAuditLog, ActionAuditLogView},

		// Recruiters share membership management, minus what the lifecycle
		// service restricts to admins (admin assignment, admin removal).
		{"role:recruiter", ObjectMembership, ActionMembershipInvite},
		{"role:recruiter", ObjectMembership, ActionMembershipHandleRequest},
		{"role:recruiter", ObjectMembership, ActionMembershipUpdateRole},
		{"role:recruiter", ObjectMembership, ActionMembershipRemove},
		{"role:recruiter", ObjectMembership, ActionMembershipListRequests},
		{"role:recruiter", ObjectMembership, ActionMembershipListMembers},
		{"role:recruiter", ObjectOrganization, ActionOrganizationView},

		// Employees hold baseline membership with no management rights.
		{"role:employee", ObjectOrganization, ActionOrganizationView},

		// System principals bypass role resolution for internal jobs.
		{"role:system", ObjectMembership, ActionMembershipHandleRequest},
		{"role:system", ObjectMembership, ActionMembershipRemove},
		{"role:system", ObjectAuditLog, ActionAuditLogView},
	}

	for _, policy := range policies {
		has, err := enforcer.HasPolicy(policy[0], policy[1], policy[2])
		if err != nil {
			return err
		}
		if has {
			continue
		}
		if _, err := enforcer.AddPolicy(policy[0], policy[1], policy[2]); err != nil {
			return err
		}
	}
	return nil
}
