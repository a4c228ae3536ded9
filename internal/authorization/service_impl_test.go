package authorization

import (
	"context"
	"fmt"
	"testing"

	"github.com/bwmarrin/snowflake"
	orgdomain "github.com/joblane/joblane/internal/organization/domain"
	"github.com/joblane/joblane/pkg/db"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"
)

type testFixture struct {
	db   *gorm.DB
	node *snowflake.Node
	svc  Service
}

func newTestFixture(t *testing.T) *testFixture {
	t.Helper()

	conn, err := db.NewTest()
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(
		&orgdomain.Organization{},
		&orgdomain.OrganizationAdmin{},
		&orgdomain.OrganizationMember{},
		&orgdomain.JoinRequest{},
	))

	enforcer, err := NewEnforcer(conn)
	require.NoError(t, err)

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	return &testFixture{
		db:   conn,
		node: node,
		svc: NewService(Params{
			DB:       conn,
			Log:      zaptest.NewLogger(t),
			Enforcer: enforcer,
		}),
	}
}

func (f *testFixture) createOrg(t *testing.T) snowflake.ID {
	t.Helper()
	orgID := f.node.Generate()
	require.NoError(t, f.db.Create(&orgdomain.Organization{
		ID:   orgID,
		Name: fmt.Sprintf("org-%s", orgID),
		Slug: fmt.Sprintf("org-%s", orgID),
	}).Error)
	return orgID
}

func (f *testFixture) addAcceptedRequest(t *testing.T, orgID, userID snowflake.ID, role string) {
	t.Helper()
	require.NoError(t, f.db.Create(&orgdomain.JoinRequest{
		ID:     f.node.Generate(),
		OrgID:  orgID,
		UserID: userID,
		Role:   role,
		Status: orgdomain.RequestAccepted,
		Origin: orgdomain.OriginRequested,
	}).Error)
}

func TestAuthorizeAdminFullAccess(t *testing.T) {
	f := newTestFixture(t)
	orgID := f.createOrg(t)
	userID := f.node.Generate()

	require.NoError(t, f.db.Create(&orgdomain.OrganizationAdmin{
		ID:     f.node.Generate(),
		OrgID:  orgID,
		UserID: userID,
	}).Error)

	ctx := context.Background()
	actor := fmt.Sprintf("user:%s", userID)
	for _, action := range []string{
		ActionMembershipInvite,
		ActionMembershipHandleRequest,
		ActionMembershipUpdateRole,
		ActionMembershipRemove,
		ActionMembershipListRequests,
		ActionMembershipListMembers,
	} {
		require.NoError(t, f.svc.Authorize(ctx, actor, orgID.String(), ObjectMembership, action), action)
	}
	require.NoError(t, f.svc.Authorize(ctx, actor, orgID.String(), ObjectAuditLog, ActionAuditLogView))
}

func TestAuthorizeEmployeeDeniedManagement(t *testing.T) {
	f := newTestFixture(t)
	orgID := f.createOrg(t)
	userID := f.node.Generate()
	f.addAcceptedRequest(t, orgID, userID, orgdomain.RoleEmployee)

	ctx := context.Background()
	actor := fmt.Sprintf("user:%s", userID)

	require.NoError(t, f.svc.Authorize(ctx, actor, orgID.String(), ObjectOrganization, ActionOrganizationView))
	err := f.svc.Authorize(ctx, actor, orgID.String(), ObjectMembership, ActionMembershipInvite)
	require.ErrorIs(t, err, ErrForbidden)
}

func TestAuthorizeNonMember(t *testing.T) {
	f := newTestFixture(t)
	orgID := f.createOrg(t)
	userID := f.node.Generate()

	err := f.svc.Authorize(context.Background(), fmt.Sprintf("user:%s", userID), orgID.String(), ObjectMembership, ActionMembershipListMembers)
	require.ErrorIs(t, err, ErrNotMember)
}

func TestEffectiveRolePrefersAdminsTable(t *testing.T) {
	f := newTestFixture(t)
	orgID := f.createOrg(t)
	userID := f.node.Generate()

	f.addAcceptedRequest(t, orgID, userID, orgdomain.RoleEmployee)
	require.NoError(t, f.db.Create(&orgdomain.OrganizationAdmin{
		ID:     f.node.Generate(),
		OrgID:  orgID,
		UserID: userID,
	}).Error)

	role, err := f.svc.EffectiveRole(context.Background(), orgID.String(), userID.String())
	require.NoError(t, err)
	require.Equal(t, orgdomain.RoleAdmin, role)
}

func TestEffectiveRoleFollowsRoleChange(t *testing.T) {
	f := newTestFixture(t)
	orgID := f.createOrg(t)
	userID := f.node.Generate()
	f.addAcceptedRequest(t, orgID, userID, orgdomain.RoleEmployee)

	ctx := context.Background()
	role, err := f.svc.EffectiveRole(ctx, orgID.String(), userID.String())
	require.NoError(t, err)
	require.Equal(t, orgdomain.RoleEmployee, role)

	require.NoError(t, f.db.Model(&orgdomain.JoinRequest{}).
		Where("org_id = ? AND user_id = ?", orgID, userID).
		Update("role", orgdomain.RoleRecruiter).Error)

	role, err = f.svc.EffectiveRole(ctx, orgID.String(), userID.String())
	require.NoError(t, err)
	require.Equal(t, orgdomain.RoleRecruiter, role)

	actor := fmt.Sprintf("user:%s", userID)
	require.NoError(t, f.svc.Authorize(ctx, actor, orgID.String(), ObjectMembership, ActionMembershipInvite))
}

func TestAuthorizeMissingOrganizationNotFound(t *testing.T) {
	f := newTestFixture(t)
	orgID := f.node.Generate()
	userID := f.node.Generate()

	ctx := context.Background()
	err := f.svc.Authorize(ctx, fmt.Sprintf("user:%s", userID), orgID.String(), ObjectMembership, ActionMembershipListMembers)
	require.ErrorIs(t, err, orgdomain.ErrOrganizationNotFound)

	_, err = f.svc.EffectiveRole(ctx, orgID.String(), userID.String())
	require.ErrorIs(t, err, orgdomain.ErrOrganizationNotFound)
}
