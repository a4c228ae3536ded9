package service

import (
	"context"
	"testing"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/joblane/joblane/internal/audit/domain"
	"github.com/joblane/joblane/internal/audit/repository"
	"github.com/joblane/joblane/internal/orgcontext"
	"github.com/joblane/joblane/pkg/db"
	"github.com/joblane/joblane/pkg/db/pagination"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"
)

func newTestService(t *testing.T) (auditdomain.Service, *gorm.DB) {
	t.Helper()

	conn, err := db.NewTest()
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(&auditdomain.AuditLog{}))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	svc := NewService(Params{
		DB:    conn,
		Log:   zaptest.NewLogger(t),
		GenID: node,
		Repo:  repository.Provide(),
	})
	return svc, conn
}

func TestAuditLogMasksSensitiveMetadata(t *testing.T) {
	svc, conn := newTestService(t)

	orgID := snowflake.ID(42)
	actorID := "7"
	err := svc.AuditLog(context.Background(), &orgID, string(auditdomain.ActorTypeUser), &actorID, auditdomain.ActionJoinRequested, "join_request", nil, map[string]any{
		"email": "candidate@example.com",
		"role":  "employee",
	})
	require.NoError(t, err)

	var entry auditdomain.AuditLog
	require.NoError(t, conn.First(&entry).Error)
	require.Equal(t, auditdomain.ActionJoinRequested, entry.Action)
	require.NotContains(t, entry.Metadata["email"], "candidate@example.com")
	require.Equal(t, "employee", entry.Metadata["role"])
}

func TestAuditLogRequiresAction(t *testing.T) {
	svc, _ := newTestService(t)

	err := svc.AuditLog(context.Background(), nil, "", nil, "  ", "user", nil, nil)
	require.ErrorIs(t, err, auditdomain.ErrInvalidAction)
}

func TestListScopedToOrgWithCursor(t *testing.T) {
	svc, _ := newTestService(t)

	orgA := snowflake.ID(1)
	orgB := snowflake.ID(2)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		require.NoError(t, svc.AuditLog(ctx, &orgA, string(auditdomain.ActorTypeSystem), nil, auditdomain.ActionRequestAccepted, "join_request", nil, nil))
	}
	require.NoError(t, svc.AuditLog(ctx, &orgB, string(auditdomain.ActorTypeSystem), nil, auditdomain.ActionRequestAccepted, "join_request", nil, nil))

	listCtx := orgcontext.WithOrgID(ctx, orgA)
	resp, err := svc.List(listCtx, auditdomain.ListAuditLogRequest{
		Pagination: pagination.Pagination{PageSize: 2},
	})
	require.NoError(t, err)
	require.Len(t, resp.AuditLogs, 2)
	require.True(t, resp.HasMore)
	require.NotEmpty(t, resp.NextPageToken)

	rest, err := svc.List(listCtx, auditdomain.ListAuditLogRequest{
		Pagination: pagination.Pagination{PageSize: 2, PageToken: resp.NextPageToken},
	})
	require.NoError(t, err)
	require.Len(t, rest.AuditLogs, 1)
	require.False(t, rest.HasMore)
}

func TestListWithoutOrgContextRejected(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.List(context.Background(), auditdomain.ListAuditLogRequest{})
	require.ErrorIs(t, err, auditdomain.ErrInvalidOrganization)
}
