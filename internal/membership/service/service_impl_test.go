package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	authdomain "github.com/joblane/joblane/internal/auth/domain"
	"github.com/joblane/joblane/internal/config"
	"github.com/joblane/joblane/internal/membership/domain"
	orgdomain "github.com/joblane/joblane/internal/organization/domain"
	orgrepository "github.com/joblane/joblane/internal/organization/repository"
	orgservice "github.com/joblane/joblane/internal/organization/service"
	"github.com/joblane/joblane/pkg/db"
	"github.com/joblane/joblane/pkg/db/pagination"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"
)

type fixture struct {
	db      *gorm.DB
	node    *snowflake.Node
	repo    orgdomain.Repository
	orgs    orgdomain.Service
	members domain.Service
	policy  *config.MembershipPolicyHolder
}

func newFixture(t *testing.T, policy config.MembershipPolicy) *fixture {
	t.Helper()

	conn, err := db.NewTest()
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(
		&authdomain.User{},
		&orgdomain.Organization{},
		&orgdomain.OrganizationAdmin{},
		&orgdomain.OrganizationMember{},
		&orgdomain.JoinRequest{},
	))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	repo := orgrepository.NewRepository(conn)
	holder := config.StaticMembershipPolicyHolder(policy)

	return &fixture{
		db:     conn,
		node:   node,
		repo:   repo,
		orgs:   orgservice.NewService(conn, repo, node, nil),
		policy: holder,
		members: NewService(Params{
			DB:     conn,
			Log:    zaptest.NewLogger(t),
			GenID:  node,
			Repo:   repo,
			Policy: holder,
		}),
	}
}

func (f *fixture) createUser(t *testing.T, email string) *authdomain.User {
	t.Helper()

	user := &authdomain.User{
		ID:          f.node.Generate(),
		ExternalID:  f.node.Generate().String(),
		Provider:    "local",
		DisplayName: email,
		Email:       email,
		Role:        authdomain.RoleCandidate,
	}
	require.NoError(t, f.db.Create(user).Error)
	return user
}

func (f *fixture) createOrg(t *testing.T, admin *authdomain.User, name string) snowflake.ID {
	t.Helper()

	resp, err := f.orgs.Create(context.Background(), admin.ID, orgdomain.CreateOrganizationRequest{Name: name})
	require.NoError(t, err)
	id, err := snowflake.ParseString(resp.ID)
	require.NoError(t, err)
	return id
}

func (f *fixture) reloadUser(t *testing.T, id snowflake.ID) *authdomain.User {
	t.Helper()

	var user authdomain.User
	require.NoError(t, f.db.First(&user, "id = ?", id).Error)
	return &user
}

func TestCreateOrganizationSeedsAdmin(t *testing.T) {
	f := newFixture(t, config.DefaultMembershipPolicy())
	founder := f.createUser(t, "founder@acme.test")
	orgID := f.createOrg(t, founder, "Acme")

	isAdmin, err := f.repo.IsAdmin(context.Background(), orgID, founder.ID)
	require.NoError(t, err)
	require.True(t, isAdmin)

	member, err := f.repo.GetMember(context.Background(), orgID, founder.ID)
	require.NoError(t, err)
	require.Equal(t, orgdomain.RoleAdmin, member.Role)

	request, err := f.repo.FindJoinRequest(context.Background(), orgID, founder.ID, orgdomain.RequestAccepted)
	require.NoError(t, err)
	require.Equal(t, orgdomain.RoleAdmin, request.Role)

	reloaded := f.reloadUser(t, founder.ID)
	require.NotNil(t, reloaded.CompanyID)
	require.Equal(t, orgID, *reloaded.CompanyID)
	require.Equal(t, authdomain.RoleRecruiter, reloaded.Role)
}

// Scenario: a user requests to join as recruiter, an admin accepts, and the
// user's membership, affiliation cache and global role all line up.
func TestRequestToJoinAcceptedAsRecruiter(t *testing.T) {
	f := newFixture(t, config.DefaultMembershipPolicy())
	founder := f.createUser(t, "founder@acme.test")
	orgID := f.createOrg(t, founder, "Acme")
	applicant := f.createUser(t, "x@candidate.test")

	ctx := context.Background()
	resp, err := f.members.RequestToJoin(ctx, applicant.ID, orgID, orgdomain.RoleRecruiter)
	require.NoError(t, err)
	require.Equal(t, orgdomain.RequestPending, resp.Status)
	require.Equal(t, orgdomain.OriginRequested, resp.Origin)

	requestID, err := snowflake.ParseString(resp.ID)
	require.NoError(t, err)
	accepted, err := f.members.HandleJoinRequest(ctx, founder.ID, orgdomain.RoleAdmin, orgID, requestID, orgdomain.RequestAccepted)
	require.NoError(t, err)
	require.Equal(t, orgdomain.RequestAccepted, accepted.Status)

	member, err := f.repo.GetMember(ctx, orgID, applicant.ID)
	require.NoError(t, err)
	require.Equal(t, orgdomain.RoleRecruiter, member.Role)

	reloaded := f.reloadUser(t, applicant.ID)
	require.NotNil(t, reloaded.CompanyRole)
	require.Equal(t, orgdomain.RoleRecruiter, *reloaded.CompanyRole)
	require.Equal(t, authdomain.RoleRecruiter, reloaded.Role)
}

// Scenario: an employee is promoted to admin by an existing admin; the admins
// table gains a row and the global role is recomputed.
func TestPromoteEmployeeToAdmin(t *testing.T) {
	f := newFixture(t, config.DefaultMembershipPolicy())
	founder := f.createUser(t, "founder@acme.test")
	orgID := f.createOrg(t, founder, "Acme")
	employee := f.createUser(t, "x@employee.test")

	ctx := context.Background()
	resp, err := f.members.RequestToJoin(ctx, employee.ID, orgID, orgdomain.RoleEmployee)
	require.NoError(t, err)
	requestID, err := snowflake.ParseString(resp.ID)
	require.NoError(t, err)
	_, err = f.members.HandleJoinRequest(ctx, founder.ID, orgdomain.RoleAdmin, orgID, requestID, orgdomain.RequestAccepted)
	require.NoError(t, err)

	reloaded := f.reloadUser(t, employee.ID)
	require.Equal(t, authdomain.RoleCandidate, reloaded.Role)

	require.NoError(t, f.members.UpdateMemberRole(ctx, founder.ID, orgdomain.RoleAdmin, orgID, employee.ID, orgdomain.RoleAdmin))

	isAdmin, err := f.repo.IsAdmin(ctx, orgID, employee.ID)
	require.NoError(t, err)
	require.True(t, isAdmin)

	member, err := f.repo.GetMember(ctx, orgID, employee.ID)
	require.NoError(t, err)
	require.Equal(t, orgdomain.RoleAdmin, member.Role)

	reloaded = f.reloadUser(t, employee.ID)
	require.Equal(t, authdomain.RoleRecruiter, reloaded.Role)
}

// Scenario: an admin removes an employee; every org-side record disappears
// and the employee's affiliation and global role are reset.
func TestRemoveEmployeeClearsAffiliation(t *testing.T) {
	f := newFixture(t, config.DefaultMembershipPolicy())
	founder := f.createUser(t, "founder@acme.test")
	orgID := f.createOrg(t, founder, "Acme")
	employee := f.createUser(t, "y@employee.test")

	ctx := context.Background()
	resp, err := f.members.RequestToJoin(ctx, employee.ID, orgID, orgdomain.RoleEmployee)
	require.NoError(t, err)
	requestID, err := snowflake.ParseString(resp.ID)
	require.NoError(t, err)
	_, err = f.members.HandleJoinRequest(ctx, founder.ID, orgdomain.RoleAdmin, orgID, requestID, orgdomain.RequestAccepted)
	require.NoError(t, err)

	require.NoError(t, f.members.RemoveMember(ctx, founder.ID, orgdomain.RoleAdmin, orgID, employee.ID))

	_, err = f.repo.GetMember(ctx, orgID, employee.ID)
	require.ErrorIs(t, err, orgdomain.ErrMemberNotFound)
	_, err = f.repo.FindJoinRequest(ctx, orgID, employee.ID)
	require.ErrorIs(t, err, orgdomain.ErrRequestNotFound)

	reloaded := f.reloadUser(t, employee.ID)
	require.Nil(t, reloaded.CompanyID)
	require.Nil(t, reloaded.CompanyRole)
	require.Equal(t, authdomain.RoleCandidate, reloaded.Role)
}

// Scenario: a second request while one is pending fails with a conflict and
// leaves exactly one pending request behind.
func TestDuplicateRequestConflict(t *testing.T) {
	f := newFixture(t, config.DefaultMembershipPolicy())
	founder := f.createUser(t, "founder@acme.test")
	orgID := f.createOrg(t, founder, "Acme")
	applicant := f.createUser(t, "dup@candidate.test")

	ctx := context.Background()
	_, err := f.members.RequestToJoin(ctx, applicant.ID, orgID, orgdomain.RoleEmployee)
	require.NoError(t, err)

	_, err = f.members.RequestToJoin(ctx, applicant.ID, orgID, orgdomain.RoleEmployee)
	require.ErrorIs(t, err, domain.ErrDuplicateRequest)

	var count int64
	require.NoError(t, f.db.Model(&orgdomain.JoinRequest{}).
		Where("org_id = ? AND user_id = ?", orgID, applicant.ID).
		Count(&count).Error)
	require.EqualValues(t, 1, count)
}

func TestInviteBlockedByPendingRequest(t *testing.T) {
	f := newFixture(t, config.DefaultMembershipPolicy())
	founder := f.createUser(t, "founder@acme.test")
	orgID := f.createOrg(t, founder, "Acme")
	target := f.createUser(t, "target@candidate.test")

	ctx := context.Background()
	_, err := f.members.RequestToJoin(ctx, target.ID, orgID, orgdomain.RoleEmployee)
	require.NoError(t, err)

	_, err = f.members.InviteUser(ctx, founder.ID, orgdomain.RoleAdmin, orgID, target.ID, orgdomain.RoleEmployee)
	require.ErrorIs(t, err, domain.ErrDuplicateRequest)
}

func TestRespondToInviteAccept(t *testing.T) {
	f := newFixture(t, config.DefaultMembershipPolicy())
	founder := f.createUser(t, "founder@acme.test")
	orgID := f.createOrg(t, founder, "Acme")
	target := f.createUser(t, "invitee@candidate.test")

	ctx := context.Background()
	invite, err := f.members.InviteUser(ctx, founder.ID, orgdomain.RoleAdmin, orgID, target.ID, orgdomain.RoleRecruiter)
	require.NoError(t, err)
	require.Equal(t, orgdomain.OriginInvited, invite.Origin)

	resp, err := f.members.RespondToInvite(ctx, target.ID, orgID, orgdomain.RequestAccepted)
	require.NoError(t, err)
	require.Equal(t, orgdomain.RequestAccepted, resp.Status)

	member, err := f.repo.GetMember(ctx, orgID, target.ID)
	require.NoError(t, err)
	require.Equal(t, orgdomain.RoleRecruiter, member.Role)
}

func TestRespondToInviteRequiresInviteOrigin(t *testing.T) {
	f := newFixture(t, config.DefaultMembershipPolicy())
	founder := f.createUser(t, "founder@acme.test")
	orgID := f.createOrg(t, founder, "Acme")
	applicant := f.createUser(t, "selfreq@candidate.test")

	ctx := context.Background()
	_, err := f.members.RequestToJoin(ctx, applicant.ID, orgID, orgdomain.RoleEmployee)
	require.NoError(t, err)

	_, err = f.members.RespondToInvite(ctx, applicant.ID, orgID, orgdomain.RequestAccepted)
	require.ErrorIs(t, err, orgdomain.ErrRequestNotFound)
}

func TestHandleResolvedRequestConflict(t *testing.T) {
	f := newFixture(t, config.DefaultMembershipPolicy())
	founder := f.createUser(t, "founder@acme.test")
	orgID := f.createOrg(t, founder, "Acme")
	applicant := f.createUser(t, "resolved@candidate.test")

	ctx := context.Background()
	resp, err := f.members.RequestToJoin(ctx, applicant.ID, orgID, orgdomain.RoleEmployee)
	require.NoError(t, err)
	requestID, err := snowflake.ParseString(resp.ID)
	require.NoError(t, err)

	_, err = f.members.HandleJoinRequest(ctx, founder.ID, orgdomain.RoleAdmin, orgID, requestID, orgdomain.RequestRejected)
	require.NoError(t, err)

	_, err = f.members.HandleJoinRequest(ctx, founder.ID, orgdomain.RoleAdmin, orgID, requestID, orgdomain.RequestAccepted)
	require.ErrorIs(t, err, domain.ErrRequestResolved)
}

// A rejected request is retained as history by default, and a brand-new
// pending request may supersede it.
func TestRejectedRequestRetainedAndSuperseded(t *testing.T) {
	f := newFixture(t, config.DefaultMembershipPolicy())
	founder := f.createUser(t, "founder@acme.test")
	orgID := f.createOrg(t, founder, "Acme")
	applicant := f.createUser(t, "retry@candidate.test")

	ctx := context.Background()
	first, err := f.members.RequestToJoin(ctx, applicant.ID, orgID, orgdomain.RoleEmployee)
	require.NoError(t, err)
	firstID, err := snowflake.ParseString(first.ID)
	require.NoError(t, err)
	_, err = f.members.HandleJoinRequest(ctx, founder.ID, orgdomain.RoleAdmin, orgID, firstID, orgdomain.RequestRejected)
	require.NoError(t, err)

	second, err := f.members.RequestToJoin(ctx, applicant.ID, orgID, orgdomain.RoleEmployee)
	require.NoError(t, err)
	require.NotEqual(t, first.ID, second.ID)

	var count int64
	require.NoError(t, f.db.Model(&orgdomain.JoinRequest{}).
		Where("org_id = ? AND user_id = ?", orgID, applicant.ID).
		Count(&count).Error)
	require.EqualValues(t, 2, count)
}

func TestRejectedRequestPurgedUnderPurgePolicy(t *testing.T) {
	f := newFixture(t, config.MembershipPolicy{RejectedRequestPolicy: config.RejectedRequestPurge})
	founder := f.createUser(t, "founder@acme.test")
	orgID := f.createOrg(t, founder, "Acme")
	applicant := f.createUser(t, "purged@candidate.test")

	ctx := context.Background()
	resp, err := f.members.RequestToJoin(ctx, applicant.ID, orgID, orgdomain.RoleEmployee)
	require.NoError(t, err)
	requestID, err := snowflake.ParseString(resp.ID)
	require.NoError(t, err)
	_, err = f.members.HandleJoinRequest(ctx, founder.ID, orgdomain.RoleAdmin, orgID, requestID, orgdomain.RequestRejected)
	require.NoError(t, err)

	var count int64
	require.NoError(t, f.db.Model(&orgdomain.JoinRequest{}).
		Where("org_id = ? AND user_id = ?", orgID, applicant.ID).
		Count(&count).Error)
	require.EqualValues(t, 0, count)
}

func TestPromotionToAdminRequiresAdminCaller(t *testing.T) {
	f := newFixture(t, config.DefaultMembershipPolicy())
	founder := f.createUser(t, "founder@acme.test")
	orgID := f.createOrg(t, founder, "Acme")
	recruiter := f.createUser(t, "recruiter@acme.test")
	employee := f.createUser(t, "worker@acme.test")

	ctx := context.Background()
	for _, u := range []struct {
		user *authdomain.User
		role string
	}{
		{recruiter, orgdomain.RoleRecruiter},
		{employee, orgdomain.RoleEmployee},
	} {
		resp, err := f.members.RequestToJoin(ctx, u.user.ID, orgID, u.role)
		require.NoError(t, err)
		requestID, err := snowflake.ParseString(resp.ID)
		require.NoError(t, err)
		_, err = f.members.HandleJoinRequest(ctx, founder.ID, orgdomain.RoleAdmin, orgID, requestID, orgdomain.RequestAccepted)
		require.NoError(t, err)
	}

	err := f.members.UpdateMemberRole(ctx, recruiter.ID, orgdomain.RoleRecruiter, orgID, employee.ID, orgdomain.RoleAdmin)
	require.ErrorIs(t, err, domain.ErrAdminAssignment)
}

func TestRemoveMemberGuards(t *testing.T) {
	f := newFixture(t, config.DefaultMembershipPolicy())
	founder := f.createUser(t, "founder@acme.test")
	orgID := f.createOrg(t, founder, "Acme")
	second := f.createUser(t, "second@acme.test")

	ctx := context.Background()
	invite, err := f.members.InviteUser(ctx, founder.ID, orgdomain.RoleAdmin, orgID, second.ID, orgdomain.RoleAdmin)
	require.NoError(t, err)
	require.Equal(t, orgdomain.RoleAdmin, invite.Role)
	_, err = f.members.RespondToInvite(ctx, second.ID, orgID, orgdomain.RequestAccepted)
	require.NoError(t, err)

	err = f.members.RemoveMember(ctx, founder.ID, orgdomain.RoleAdmin, orgID, founder.ID)
	require.ErrorIs(t, err, domain.ErrSelfRemoval)

	err = f.members.RemoveMember(ctx, second.ID, orgdomain.RoleRecruiter, orgID, founder.ID)
	require.ErrorIs(t, err, domain.ErrAdminRemoval)

	require.NoError(t, f.members.RemoveMember(ctx, second.ID, orgdomain.RoleAdmin, orgID, founder.ID))
}

func TestGetMyOrgRoleStates(t *testing.T) {
	f := newFixture(t, config.DefaultMembershipPolicy())
	founder := f.createUser(t, "founder@acme.test")
	orgID := f.createOrg(t, founder, "Acme")
	applicant := f.createUser(t, "pending@candidate.test")
	outsider := f.createUser(t, "outsider@candidate.test")

	ctx := context.Background()

	role, err := f.members.GetMyOrgRole(ctx, founder.ID, orgID)
	require.NoError(t, err)
	require.Equal(t, orgdomain.RoleAdmin, role.Role)
	require.Equal(t, domain.StatusActive, role.Status)

	_, err = f.members.RequestToJoin(ctx, applicant.ID, orgID, orgdomain.RoleEmployee)
	require.NoError(t, err)
	role, err = f.members.GetMyOrgRole(ctx, applicant.ID, orgID)
	require.NoError(t, err)
	require.Equal(t, domain.StatusPending, role.Status)
	require.Equal(t, orgdomain.RoleEmployee, role.Role)

	_, err = f.members.GetMyOrgRole(ctx, outsider.ID, orgID)
	require.ErrorIs(t, err, domain.ErrNotMember)
}

func TestListMembersPagination(t *testing.T) {
	f := newFixture(t, config.DefaultMembershipPolicy())
	founder := f.createUser(t, "founder@acme.test")
	orgID := f.createOrg(t, founder, "Acme")

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		user := f.createUser(t, string(rune('a'+i))+"@staff.test")
		resp, err := f.members.RequestToJoin(ctx, user.ID, orgID, orgdomain.RoleEmployee)
		require.NoError(t, err)
		requestID, err := snowflake.ParseString(resp.ID)
		require.NoError(t, err)
		_, err = f.members.HandleJoinRequest(ctx, founder.ID, orgdomain.RoleAdmin, orgID, requestID, orgdomain.RequestAccepted)
		require.NoError(t, err)
	}

	page1, err := f.members.ListMembers(ctx, orgID, pagination.Pagination{PageSize: 2})
	require.NoError(t, err)
	require.Len(t, page1.Members, 2)
	require.True(t, page1.HasMore)
	require.NotEmpty(t, page1.NextPageToken)

	page2, err := f.members.ListMembers(ctx, orgID, pagination.Pagination{PageSize: 2, PageToken: page1.NextPageToken})
	require.NoError(t, err)
	require.Len(t, page2.Members, 2)
	require.False(t, page2.HasMore)
}

func TestListMyJoinRequestsReadsAuthoritativeStore(t *testing.T) {
	f := newFixture(t, config.DefaultMembershipPolicy())
	founder := f.createUser(t, "founder@acme.test")
	orgA := f.createOrg(t, founder, "Acme")
	founderB := f.createUser(t, "founder@globex.test")
	orgB := f.createOrg(t, founderB, "Globex")
	applicant := f.createUser(t, "multi@candidate.test")

	ctx := context.Background()
	_, err := f.members.RequestToJoin(ctx, applicant.ID, orgA, orgdomain.RoleEmployee)
	require.NoError(t, err)
	_, err = f.members.RequestToJoin(ctx, applicant.ID, orgB, orgdomain.RoleRecruiter)
	require.NoError(t, err)

	items, err := f.members.ListMyJoinRequests(ctx, applicant.ID)
	require.NoError(t, err)
	require.Len(t, items, 2)
	names := map[string]bool{}
	for _, item := range items {
		names[item.OrgName] = true
		require.Equal(t, orgdomain.RequestPending, item.Status)
	}
	require.True(t, names["Acme"])
	require.True(t, names["Globex"])
}

// Accepting a self-requested admin role is gated the same way as assigning
// admin through invites and role updates: only an admin caller may do it.
func TestHandleAdminRequestRequiresAdminCaller(t *testing.T) {
	f := newFixture(t, config.DefaultMembershipPolicy())
	founder := f.createUser(t, "founder@acme.test")
	orgID := f.createOrg(t, founder, "Acme")
	recruiter := f.createUser(t, "recruiter@acme.test")
	applicant := f.createUser(t, "ambitious@candidate.test")

	ctx := context.Background()
	resp, err := f.members.RequestToJoin(ctx, recruiter.ID, orgID, orgdomain.RoleRecruiter)
	require.NoError(t, err)
	recruiterReqID, err := snowflake.ParseString(resp.ID)
	require.NoError(t, err)
	_, err = f.members.HandleJoinRequest(ctx, founder.ID, orgdomain.RoleAdmin, orgID, recruiterReqID, orgdomain.RequestAccepted)
	require.NoError(t, err)

	resp, err = f.members.RequestToJoin(ctx, applicant.ID, orgID, orgdomain.RoleAdmin)
	require.NoError(t, err)
	requestID, err := snowflake.ParseString(resp.ID)
	require.NoError(t, err)

	_, err = f.members.HandleJoinRequest(ctx, recruiter.ID, orgdomain.RoleRecruiter, orgID, requestID, orgdomain.RequestAccepted)
	require.ErrorIs(t, err, domain.ErrAdminAssignment)

	isAdmin, err := f.repo.IsAdmin(ctx, orgID, applicant.ID)
	require.NoError(t, err)
	require.False(t, isAdmin)

	_, err = f.repo.GetMember(ctx, orgID, applicant.ID)
	require.ErrorIs(t, err, orgdomain.ErrMemberNotFound)

	// An admin caller may accept the same request.
	_, err = f.members.HandleJoinRequest(ctx, founder.ID, orgdomain.RoleAdmin, orgID, requestID, orgdomain.RequestAccepted)
	require.NoError(t, err)
	isAdmin, err = f.repo.IsAdmin(ctx, orgID, applicant.ID)
	require.NoError(t, err)
	require.True(t, isAdmin)
}

// The terminal write carries its own pending-status guard, so a resolver
// holding a stale pending snapshot loses to whoever committed first.
func TestStaleResolverLosesToFirstWriter(t *testing.T) {
	f := newFixture(t, config.DefaultMembershipPolicy())
	founder := f.createUser(t, "founder@acme.test")
	orgID := f.createOrg(t, founder, "Acme")
	applicant := f.createUser(t, "raced@candidate.test")

	ctx := context.Background()
	resp, err := f.members.RequestToJoin(ctx, applicant.ID, orgID, orgdomain.RoleEmployee)
	require.NoError(t, err)
	requestID, err := snowflake.ParseString(resp.ID)
	require.NoError(t, err)

	// Snapshot the request while it is still pending, as a concurrent
	// resolver would outside the write transaction.
	stale, err := f.repo.GetJoinRequest(ctx, orgID, requestID)
	require.NoError(t, err)
	require.Equal(t, orgdomain.RequestPending, stale.Status)

	_, err = f.members.HandleJoinRequest(ctx, founder.ID, orgdomain.RoleAdmin, orgID, requestID, orgdomain.RequestAccepted)
	require.NoError(t, err)

	now := time.Now().UTC()
	stale.Status = orgdomain.RequestRejected
	stale.ResolvedAt = &now
	stale.ResolvedBy = &founder.ID
	err = f.repo.ResolvePendingJoinRequest(ctx, *stale)
	require.ErrorIs(t, err, orgdomain.ErrRequestNotFound)

	err = f.repo.DeletePendingJoinRequest(ctx, requestID)
	require.ErrorIs(t, err, orgdomain.ErrRequestNotFound)

	// The first writer's outcome is intact.
	final, err := f.repo.GetJoinRequest(ctx, orgID, requestID)
	require.NoError(t, err)
	require.Equal(t, orgdomain.RequestAccepted, final.Status)
	member, err := f.repo.GetMember(ctx, orgID, applicant.ID)
	require.NoError(t, err)
	require.Equal(t, orgdomain.RoleEmployee, member.Role)
}

func TestJoinRequestOutcomeLabels(t *testing.T) {
	require.Equal(t, "rejected_conflict", joinRequestOutcome(domain.ErrDuplicateRequest))
	require.Equal(t, "rejected_conflict", joinRequestOutcome(domain.ErrAlreadyMember))
	require.Equal(t, "error", joinRequestOutcome(gorm.ErrInvalidDB))
	require.Equal(t, "error", joinRequestOutcome(orgdomain.ErrOrganizationNotFound))
}
