package service

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/joblane/joblane/internal/audit/domain"
	"github.com/joblane/joblane/internal/config"
	"github.com/joblane/joblane/internal/membership/domain"
	"github.com/joblane/joblane/internal/observability/metrics"
	orgdomain "github.com/joblane/joblane/internal/organization/domain"
	"github.com/joblane/joblane/internal/organization/event"
	"github.com/joblane/joblane/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	GenID     *snowflake.Node
	Repo      orgdomain.Repository
	Policy    *config.MembershipPolicyHolder
	Audit     auditdomain.Service  `optional:"true"`
	Metrics   *metrics.Metrics     `optional:"true"`
	Publisher event.EventPublisher `optional:"true"`
}

type service struct {
	db        *gorm.DB
	log       *zap.Logger
	genID     *snowflake.Node
	repo      orgdomain.Repository
	policy    *config.MembershipPolicyHolder
	audit     auditdomain.Service
	metrics   *metrics.Metrics
	publisher event.EventPublisher
}

func NewService(p Params) domain.Service {
	return &service{
		db:        p.DB,
		log:       p.Log.Named("membership.service"),
		genID:     p.GenID,
		repo:      p.Repo,
		policy:    p.Policy,
		audit:     p.Audit,
		metrics:   p.Metrics,
		publisher: p.Publisher,
	}
}

// RequestToJoin appends a pending join request for the caller. The pending
// check is repeated inside the transaction so concurrent requests and invites
// for the same pair resolve first-write-wins.
func (s *service) RequestToJoin(ctx context.Context, callerID, orgID snowflake.ID, role string) (*domain.JoinRequestResponse, error) {
	if !orgdomain.ValidRole(role) {
		return nil, domain.ErrInvalidRole
	}

	if _, err := s.repo.GetOrganization(ctx, orgID); err != nil {
		return nil, err
	}
	if _, err := s.repo.GetUser(ctx, callerID); err != nil {
		return nil, err
	}

	if err := s.ensureNoExistingAffiliation(ctx, s.repo, orgID, callerID); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	request := orgdomain.JoinRequest{
		ID:          s.genID.Generate(),
		OrgID:       orgID,
		UserID:      callerID,
		Role:        role,
		Status:      orgdomain.RequestPending,
		Origin:      orgdomain.OriginRequested,
		RequestedAt: now,
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if err := s.ensureNoExistingAffiliation(ctx, repo, orgID, callerID); err != nil {
			return err
		}
		return repo.CreateJoinRequest(ctx, request)
	})
	if err != nil {
		s.recordJoinRequest(ctx, orgdomain.OriginRequested, joinRequestOutcome(err))
		return nil, err
	}

	s.recordJoinRequest(ctx, orgdomain.OriginRequested, "created")
	s.writeAudit(ctx, orgID, callerID, auditdomain.ActionJoinRequested, "join_request", request.ID.String(), map[string]any{
		"role":   role,
		"origin": orgdomain.OriginRequested,
	})

	return joinRequestResponse(request), nil
}

// InviteUser creates a pending join request on behalf of the target user.
// Only admins may extend an admin invite.
func (s *service) InviteUser(ctx context.Context, callerID snowflake.ID, callerRole string, orgID, targetUserID snowflake.ID, role string) (*domain.JoinRequestResponse, error) {
	if !orgdomain.ValidRole(role) {
		return nil, domain.ErrInvalidRole
	}
	if role == orgdomain.RoleAdmin && callerRole != orgdomain.RoleAdmin {
		return nil, domain.ErrAdminAssignment
	}

	if _, err := s.repo.GetOrganization(ctx, orgID); err != nil {
		return nil, err
	}
	if _, err := s.repo.GetUser(ctx, targetUserID); err != nil {
		return nil, err
	}

	if err := s.ensureNoExistingAffiliation(ctx, s.repo, orgID, targetUserID); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	request := orgdomain.JoinRequest{
		ID:          s.genID.Generate(),
		OrgID:       orgID,
		UserID:      targetUserID,
		Role:        role,
		Status:      orgdomain.RequestPending,
		Origin:      orgdomain.OriginInvited,
		InvitedBy:   &callerID,
		RequestedAt: now,
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if err := s.ensureNoExistingAffiliation(ctx, repo, orgID, targetUserID); err != nil {
			return err
		}
		return repo.CreateJoinRequest(ctx, request)
	})
	if err != nil {
		s.recordJoinRequest(ctx, orgdomain.OriginInvited, joinRequestOutcome(err))
		return nil, err
	}

	s.recordJoinRequest(ctx, orgdomain.OriginInvited, "created")
	s.writeAudit(ctx, orgID, callerID, auditdomain.ActionUserInvited, "user", targetUserID.String(), map[string]any{
		"role":   role,
		"origin": orgdomain.OriginInvited,
	})

	return joinRequestResponse(request), nil
}

// RespondToInvite lets the invited user accept or reject their own pending
// invite. Self-initiated requests are resolved by admins, not here.
func (s *service) RespondToInvite(ctx context.Context, callerID, orgID snowflake.ID, status string) (*domain.JoinRequestResponse, error) {
	if status != orgdomain.RequestAccepted && status != orgdomain.RequestRejected {
		return nil, domain.ErrInvalidStatus
	}

	request, err := s.repo.FindJoinRequest(ctx, orgID, callerID, orgdomain.RequestPending)
	if err != nil {
		return nil, err
	}
	if request.Origin != orgdomain.OriginInvited {
		return nil, orgdomain.ErrRequestNotFound
	}

	return s.resolveRequest(ctx, request, status, callerID)
}

// HandleJoinRequest lets an organization admin accept or reject a pending
// self-initiated request (or a pending invite, which admins may revoke by
// rejecting it). Accepting an admin-role request requires an admin caller,
// the same rule InviteUser and UpdateMemberRole apply.
func (s *service) HandleJoinRequest(ctx context.Context, callerID snowflake.ID, callerRole string, orgID, requestID snowflake.ID, status string) (*domain.JoinRequestResponse, error) {
	if status != orgdomain.RequestAccepted && status != orgdomain.RequestRejected {
		return nil, domain.ErrInvalidStatus
	}

	request, err := s.repo.GetJoinRequest(ctx, orgID, requestID)
	if err != nil {
		return nil, err
	}
	if request.Status != orgdomain.RequestPending {
		return nil, domain.ErrRequestResolved
	}
	if status == orgdomain.RequestAccepted &&
		request.Role == orgdomain.RoleAdmin &&
		callerRole != orgdomain.RoleAdmin {
		return nil, domain.ErrAdminAssignment
	}

	return s.resolveRequest(ctx, request, status, callerID)
}

func (s *service) resolveRequest(ctx context.Context, request *orgdomain.JoinRequest, status string, resolverID snowflake.ID) (*domain.JoinRequestResponse, error) {
	now := time.Now().UTC()
	request.Status = status
	request.ResolvedAt = &now
	request.ResolvedBy = &resolverID

	purge := status == orgdomain.RequestRejected &&
		s.policy != nil &&
		s.policy.Get().RejectedRequestPolicy == config.RejectedRequestPurge

	// The pending check happens again through the status guard on the
	// write itself. Two concurrent resolvers can both read pending, but
	// only the first one's update matches a pending row.
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		if status == orgdomain.RequestRejected {
			if purge {
				return resolvedWhenStale(repo.DeletePendingJoinRequest(ctx, request.ID))
			}
			return resolvedWhenStale(repo.ResolvePendingJoinRequest(ctx, *request))
		}

		user, err := repo.GetUser(ctx, request.UserID)
		if err != nil {
			return err
		}
		if user.CompanyID != nil && *user.CompanyID != request.OrgID {
			return domain.ErrAlreadyMember
		}

		if err := resolvedWhenStale(repo.ResolvePendingJoinRequest(ctx, *request)); err != nil {
			return err
		}

		member := orgdomain.OrganizationMember{
			ID:        s.genID.Generate(),
			OrgID:     request.OrgID,
			UserID:    request.UserID,
			Role:      request.Role,
			CreatedAt: now,
		}
		if err := repo.AddMember(ctx, member); err != nil {
			return err
		}

		if request.Role == orgdomain.RoleAdmin {
			admin := orgdomain.OrganizationAdmin{
				ID:        s.genID.Generate(),
				OrgID:     request.OrgID,
				UserID:    request.UserID,
				CreatedAt: now,
			}
			if err := repo.AddAdmin(ctx, admin); err != nil {
				return err
			}
		}

		role := request.Role
		orgID := request.OrgID
		return repo.SetUserAffiliation(ctx, request.UserID, &orgID, &role, orgdomain.DeriveGlobalRole(&role))
	})
	if err != nil {
		return nil, err
	}

	action := auditdomain.ActionRequestRejected
	if status == orgdomain.RequestAccepted {
		action = auditdomain.ActionRequestAccepted
		s.recordMembershipChange(ctx, "accepted")
		s.emitMembershipEvent(ctx, event.MembershipAcceptedTopic, request.OrgID, request.UserID, request.Role)
	} else {
		s.recordMembershipChange(ctx, "rejected")
	}
	resolver := resolverID.String()
	s.writeAudit(ctx, request.OrgID, resolverID, action, "join_request", request.ID.String(), map[string]any{
		"role":        request.Role,
		"origin":      request.Origin,
		"status":      status,
		"resolved_by": resolver,
	})

	return joinRequestResponse(*request), nil
}

// UpdateMemberRole changes a member's role everywhere it is recorded: the
// accepted join request, the member row, the admins table and the user's
// cached affiliation.
func (s *service) UpdateMemberRole(ctx context.Context, callerID snowflake.ID, callerRole string, orgID, targetUserID snowflake.ID, newRole string) error {
	if !orgdomain.ValidRole(newRole) {
		return domain.ErrInvalidRole
	}
	if newRole == orgdomain.RoleAdmin && callerRole != orgdomain.RoleAdmin {
		return domain.ErrAdminAssignment
	}

	request, err := s.repo.FindJoinRequest(ctx, orgID, targetUserID, orgdomain.RequestAccepted)
	if err != nil {
		return err
	}

	wasAdmin := request.Role == orgdomain.RoleAdmin
	if wasAdmin && callerRole != orgdomain.RoleAdmin {
		return domain.ErrAdminAssignment
	}

	oldRole := request.Role
	request.Role = newRole

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		if err := repo.UpdateJoinRequest(ctx, *request); err != nil {
			return err
		}
		if err := repo.UpdateMemberRole(ctx, orgID, targetUserID, newRole); err != nil {
			return err
		}

		if newRole == orgdomain.RoleAdmin && !wasAdmin {
			admin := orgdomain.OrganizationAdmin{
				ID:        s.genID.Generate(),
				OrgID:     orgID,
				UserID:    targetUserID,
				CreatedAt: time.Now().UTC(),
			}
			if err := repo.AddAdmin(ctx, admin); err != nil {
				return err
			}
		}
		if wasAdmin && newRole != orgdomain.RoleAdmin {
			if err := repo.RemoveAdmin(ctx, orgID, targetUserID); err != nil {
				return err
			}
		}

		role := newRole
		org := orgID
		return repo.SetUserAffiliation(ctx, targetUserID, &org, &role, orgdomain.DeriveGlobalRole(&role))
	})
	if err != nil {
		return err
	}

	s.recordMembershipChange(ctx, "role_updated")
	s.writeAudit(ctx, orgID, callerID, auditdomain.ActionMemberRoleUpdate, "user", targetUserID.String(), map[string]any{
		"old_role": oldRole,
		"new_role": newRole,
	})
	return nil
}

// RemoveMember deletes the member's join request, member row and admin row,
// and clears the target's cached affiliation.
func (s *service) RemoveMember(ctx context.Context, callerID snowflake.ID, callerRole string, orgID, targetUserID snowflake.ID) error {
	if callerID == targetUserID {
		return domain.ErrSelfRemoval
	}

	request, err := s.repo.FindJoinRequest(ctx, orgID, targetUserID, orgdomain.RequestAccepted)
	if err != nil {
		return err
	}
	if request.Role == orgdomain.RoleAdmin && callerRole != orgdomain.RoleAdmin {
		return domain.ErrAdminRemoval
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		if err := repo.DeleteJoinRequest(ctx, request.ID); err != nil {
			return err
		}
		if err := repo.RemoveMember(ctx, orgID, targetUserID); err != nil {
			return err
		}
		if err := repo.RemoveAdmin(ctx, orgID, targetUserID); err != nil {
			return err
		}

		user, err := repo.GetUser(ctx, targetUserID)
		if err != nil {
			return err
		}
		if user.CompanyID != nil && *user.CompanyID == orgID {
			return repo.SetUserAffiliation(ctx, targetUserID, nil, nil, orgdomain.DeriveGlobalRole(nil))
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.recordMembershipChange(ctx, "removed")
	s.emitMembershipEvent(ctx, event.MembershipRemovedTopic, orgID, targetUserID, request.Role)
	s.writeAudit(ctx, orgID, callerID, auditdomain.ActionMemberRemoved, "user", targetUserID.String(), map[string]any{
		"role": request.Role,
	})
	return nil
}

func (s *service) ListJoinRequests(ctx context.Context, orgID snowflake.ID, status string, page pagination.Pagination) (*domain.ListJoinRequestsResponse, error) {
	switch status {
	case "", orgdomain.RequestPending, orgdomain.RequestAccepted, orgdomain.RequestRejected:
	default:
		return nil, domain.ErrInvalidStatus
	}

	if _, err := s.repo.GetOrganization(ctx, orgID); err != nil {
		return nil, err
	}

	items, info, err := s.repo.ListJoinRequests(ctx, orgID, status, page)
	if err != nil {
		return nil, err
	}

	resp := &domain.ListJoinRequestsResponse{
		Requests: make([]domain.JoinRequestResponse, 0, len(items)),
	}
	if info != nil {
		resp.PageInfo = *info
	}
	for _, item := range items {
		resp.Requests = append(resp.Requests, *joinRequestResponse(item))
	}
	return resp, nil
}

func (s *service) ListMembers(ctx context.Context, orgID snowflake.ID, page pagination.Pagination) (*domain.ListMembersResponse, error) {
	if _, err := s.repo.GetOrganization(ctx, orgID); err != nil {
		return nil, err
	}

	items, info, err := s.repo.ListMembers(ctx, orgID, page)
	if err != nil {
		return nil, err
	}

	resp := &domain.ListMembersResponse{
		Members: make([]domain.MemberResponse, 0, len(items)),
	}
	if info != nil {
		resp.PageInfo = *info
	}
	for _, item := range items {
		resp.Members = append(resp.Members, domain.MemberResponse{
			UserID:      item.UserID.String(),
			DisplayName: item.DisplayName,
			Email:       item.Email,
			Role:        item.Role,
			JoinedAt:    item.CreatedAt,
		})
	}
	return resp, nil
}

// GetMyOrgRole resolves the caller's standing from the organization's own
// records: the member row first, then any accepted-but-unsynced or pending
// join request.
func (s *service) GetMyOrgRole(ctx context.Context, callerID, orgID snowflake.ID) (*domain.MyRoleResponse, error) {
	if _, err := s.repo.GetOrganization(ctx, orgID); err != nil {
		return nil, err
	}

	if member, err := s.repo.GetMember(ctx, orgID, callerID); err == nil {
		return &domain.MyRoleResponse{
			OrgID:  orgID.String(),
			Role:   member.Role,
			Status: domain.StatusActive,
		}, nil
	} else if !errors.Is(err, orgdomain.ErrMemberNotFound) {
		return nil, err
	}

	request, err := s.repo.FindJoinRequest(ctx, orgID, callerID, orgdomain.RequestPending, orgdomain.RequestAccepted)
	if err != nil {
		if errors.Is(err, orgdomain.ErrRequestNotFound) {
			return nil, domain.ErrNotMember
		}
		return nil, err
	}

	status := domain.StatusPending
	if request.Status == orgdomain.RequestAccepted {
		status = domain.StatusActive
	}
	return &domain.MyRoleResponse{
		OrgID:  orgID.String(),
		Role:   request.Role,
		Status: status,
	}, nil
}

// ListMyJoinRequests reads the caller's requests straight from the
// organization store, so the user-facing view can never drift from it.
func (s *service) ListMyJoinRequests(ctx context.Context, callerID snowflake.ID) ([]domain.MyJoinRequestResponse, error) {
	items, err := s.repo.ListJoinRequestsByUser(ctx, callerID)
	if err != nil {
		return nil, err
	}

	resp := make([]domain.MyJoinRequestResponse, 0, len(items))
	for _, item := range items {
		resp = append(resp, domain.MyJoinRequestResponse{
			ID:          item.ID.String(),
			OrgID:       item.OrgID.String(),
			OrgName:     item.OrgName,
			Role:        item.Role,
			Status:      item.Status,
			Origin:      item.Origin,
			RequestedAt: item.RequestedAt,
			ResolvedAt:  item.ResolvedAt,
		})
	}
	return resp, nil
}

// ensureNoExistingAffiliation fails with Conflict when the user already is a
// member, an admin, or has a live join request for the organization.
func (s *service) ensureNoExistingAffiliation(ctx context.Context, repo orgdomain.Repository, orgID, userID snowflake.ID) error {
	isAdmin, err := repo.IsAdmin(ctx, orgID, userID)
	if err != nil {
		return err
	}
	if isAdmin {
		return domain.ErrAlreadyMember
	}

	if _, err := repo.GetMember(ctx, orgID, userID); err == nil {
		return domain.ErrAlreadyMember
	} else if !errors.Is(err, orgdomain.ErrMemberNotFound) {
		return err
	}

	if _, err := repo.FindJoinRequest(ctx, orgID, userID, orgdomain.RequestPending, orgdomain.RequestAccepted); err == nil {
		return domain.ErrDuplicateRequest
	} else if !errors.Is(err, orgdomain.ErrRequestNotFound) {
		return err
	}

	return nil
}

func (s *service) recordJoinRequest(ctx context.Context, origin, outcome string) {
	if s.metrics != nil {
		s.metrics.RecordJoinRequest(ctx, origin, outcome)
	}
}

func (s *service) recordMembershipChange(ctx context.Context, action string) {
	if s.metrics != nil {
		s.metrics.RecordMembershipChange(ctx, action)
	}
}

func (s *service) emitMembershipEvent(ctx context.Context, topic string, orgID, userID snowflake.ID, role string) {
	if s.publisher == nil {
		return
	}

	payload := map[string]string{
		"organization_id": orgID.String(),
		"user_id":         userID.String(),
		"role":            role,
	}
	data, err := json.Marshal(payload)
	if err != nil {
		s.log.Warn("failed to marshal membership event payload", zap.Error(err))
		return
	}
	if err := s.publisher.Publish(ctx, topic, data); err != nil {
		s.log.Warn("failed to publish membership event", zap.String("topic", topic), zap.Error(err))
	}
}

func (s *service) writeAudit(ctx context.Context, orgID, actorID snowflake.ID, action, targetType, targetID string, metadata map[string]any) {
	if s.audit == nil {
		return
	}

	actor := actorID.String()
	org := orgID
	if err := s.audit.AuditLog(ctx, &org, string(auditdomain.ActorTypeUser), &actor, action, targetType, &targetID, metadata); err != nil {
		s.log.Warn("failed to record membership audit log", zap.String("action", action), zap.Error(err))
	}
}

// joinRequestOutcome keeps the conflict label scoped to actual duplicate
// state; storage failures count as errors.
func joinRequestOutcome(err error) string {
	if errors.Is(err, domain.ErrDuplicateRequest) || errors.Is(err, domain.ErrAlreadyMember) {
		return "rejected_conflict"
	}
	return "error"
}

// resolvedWhenStale translates a missed pending-status write guard into the
// conflict the caller raced against.
func resolvedWhenStale(err error) error {
	if errors.Is(err, orgdomain.ErrRequestNotFound) {
		return domain.ErrRequestResolved
	}
	return err
}

func joinRequestResponse(request orgdomain.JoinRequest) *domain.JoinRequestResponse {
	return &domain.JoinRequestResponse{
		ID:          request.ID.String(),
		OrgID:       request.OrgID.String(),
		UserID:      request.UserID.String(),
		Role:        request.Role,
		Status:      request.Status,
		Origin:      request.Origin,
		RequestedAt: request.RequestedAt,
		ResolvedAt:  request.ResolvedAt,
	}
}
