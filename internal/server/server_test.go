package server

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	authdomain "github.com/joblane/joblane/internal/auth/domain"
	"github.com/joblane/joblane/internal/auth/session"
	"github.com/joblane/joblane/internal/config"
	membershipdomain "github.com/joblane/joblane/internal/membership/domain"
	"github.com/joblane/joblane/pkg/db/pagination"
	"github.com/stretchr/testify/require"
)

type fakeMembershipService struct {
	requestToJoinCalls int
	lastRole           string
	err                error
}

func (f *fakeMembershipService) RequestToJoin(ctx context.Context, callerID, orgID snowflake.ID, role string) (*membershipdomain.JoinRequestResponse, error) {
	f.requestToJoinCalls++
	f.lastRole = role
	if f.err != nil {
		return nil, f.err
	}
	return &membershipdomain.JoinRequestResponse{
		ID:     snowflake.ID(1).String(),
		OrgID:  orgID.String(),
		UserID: callerID.String(),
		Role:   role,
		Status: "pending",
		Origin: "requested",
	}, nil
}

func (f *fakeMembershipService) InviteUser(ctx context.Context, callerID snowflake.ID, callerRole string, orgID, targetUserID snowflake.ID, role string) (*membershipdomain.JoinRequestResponse, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &membershipdomain.JoinRequestResponse{OrgID: orgID.String(), UserID: targetUserID.String(), Role: role, Status: "pending", Origin: "invited"}, nil
}

func (f *fakeMembershipService) RespondToInvite(ctx context.Context, callerID, orgID snowflake.ID, status string) (*membershipdomain.JoinRequestResponse, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &membershipdomain.JoinRequestResponse{OrgID: orgID.String(), UserID: callerID.String(), Status: status}, nil
}

func (f *fakeMembershipService) HandleJoinRequest(ctx context.Context, callerID snowflake.ID, callerRole string, orgID, requestID snowflake.ID, status string) (*membershipdomain.JoinRequestResponse, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &membershipdomain.JoinRequestResponse{ID: requestID.String(), OrgID: orgID.String(), Status: status}, nil
}

func (f *fakeMembershipService) UpdateMemberRole(ctx context.Context, callerID snowflake.ID, callerRole string, orgID, targetUserID snowflake.ID, newRole string) error {
	return f.err
}

func (f *fakeMembershipService) RemoveMember(ctx context.Context, callerID snowflake.ID, callerRole string, orgID, targetUserID snowflake.ID) error {
	return f.err
}

func (f *fakeMembershipService) ListJoinRequests(ctx context.Context, orgID snowflake.ID, status string, page pagination.Pagination) (*membershipdomain.ListJoinRequestsResponse, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &membershipdomain.ListJoinRequestsResponse{}, nil
}

func (f *fakeMembershipService) ListMembers(ctx context.Context, orgID snowflake.ID, page pagination.Pagination) (*membershipdomain.ListMembersResponse, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &membershipdomain.ListMembersResponse{}, nil
}

func (f *fakeMembershipService) GetMyOrgRole(ctx context.Context, callerID, orgID snowflake.ID) (*membershipdomain.MyRoleResponse, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &membershipdomain.MyRoleResponse{OrgID: orgID.String(), Role: "employee", Status: "active"}, nil
}

func (f *fakeMembershipService) ListMyJoinRequests(ctx context.Context, callerID snowflake.ID) ([]membershipdomain.MyJoinRequestResponse, error) {
	return nil, f.err
}

type fakeAuthService struct {
	session *authdomain.Session
}

func (f *fakeAuthService) CreateUser(ctx context.Context, req authdomain.CreateUserRequest) (*authdomain.User, error) {
	return &authdomain.User{ID: snowflake.ID(200), Email: req.Email}, nil
}

func (f *fakeAuthService) Login(ctx context.Context, req authdomain.LoginRequest) (*authdomain.LoginResult, error) {
	return &authdomain.LoginResult{
		Session:  &authdomain.SessionView{Metadata: map[string]any{"user_id": "200"}},
		RawToken: "session-token",
	}, nil
}

func (f *fakeAuthService) Logout(ctx context.Context, rawToken string) error { return nil }

func (f *fakeAuthService) Authenticate(ctx context.Context, rawToken string) (*authdomain.Session, error) {
	if f.session == nil {
		return nil, authdomain.ErrInvalidSession
	}
	return f.session, nil
}

func (f *fakeAuthService) ChangePassword(ctx context.Context, userID string, newPassword string) error {
	return nil
}

func asUser(userID snowflake.ID) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(contextUserIDKey, userID.String())
		c.Next()
	}
}

func postJSON(t *testing.T, router *gin.Engine, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	return resp
}

func TestRequestToJoinCreated(t *testing.T) {
	gin.SetMode(gin.TestMode)

	svc := &fakeMembershipService{}
	srv := &Server{cfg: config.Config{}, membershipSvc: svc}

	router := gin.New()
	router.Use(ErrorHandlingMiddleware())
	router.POST("/api/organizations/:org_id/join-requests", asUser(7), srv.JoinRequestRateLimit(), srv.RequestToJoin)

	resp := postJSON(t, router, "/api/organizations/42/join-requests", `{"role":"recruiter"}`)

	require.Equal(t, http.StatusCreated, resp.Code)
	require.Equal(t, 1, svc.requestToJoinCalls)
	require.Equal(t, "recruiter", svc.lastRole)
}

func TestRequestToJoinDuplicateMapsToConflict(t *testing.T) {
	gin.SetMode(gin.TestMode)

	svc := &fakeMembershipService{err: membershipdomain.ErrDuplicateRequest}
	srv := &Server{cfg: config.Config{}, membershipSvc: svc}

	router := gin.New()
	router.Use(ErrorHandlingMiddleware())
	router.POST("/api/organizations/:org_id/join-requests", asUser(7), srv.RequestToJoin)

	resp := postJSON(t, router, "/api/organizations/42/join-requests", `{"role":"employee"}`)

	require.Equal(t, http.StatusConflict, resp.Code)
	require.Contains(t, resp.Body.String(), `"type":"conflict"`)
}

func TestHandleJoinRequestInvalidStatusMapsToValidation(t *testing.T) {
	gin.SetMode(gin.TestMode)

	svc := &fakeMembershipService{err: membershipdomain.ErrInvalidStatus}
	srv := &Server{cfg: config.Config{}, membershipSvc: svc}

	router := gin.New()
	router.Use(ErrorHandlingMiddleware())
	router.POST("/api/organizations/:org_id/join-requests/:request_id", asUser(7), srv.HandleJoinRequest)

	resp := postJSON(t, router, "/api/organizations/42/join-requests/9", `{"status":"maybe"}`)

	require.Equal(t, http.StatusBadRequest, resp.Code)
	require.Contains(t, resp.Body.String(), `"type":"validation_error"`)
}

func TestRemoveMemberSelfRemovalMapsToForbidden(t *testing.T) {
	gin.SetMode(gin.TestMode)

	svc := &fakeMembershipService{err: membershipdomain.ErrSelfRemoval}
	srv := &Server{cfg: config.Config{}, membershipSvc: svc}

	router := gin.New()
	router.Use(ErrorHandlingMiddleware())
	router.DELETE("/api/organizations/:org_id/members/:user_id", asUser(7), srv.RemoveMember)

	req := httptest.NewRequest(http.MethodDelete, "/api/organizations/42/members/7", nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	require.Equal(t, http.StatusForbidden, resp.Code)
	require.Contains(t, resp.Body.String(), `"type":"forbidden"`)
}

func TestGetMyOrgRoleNotMemberMapsToForbidden(t *testing.T) {
	gin.SetMode(gin.TestMode)

	svc := &fakeMembershipService{err: membershipdomain.ErrNotMember}
	srv := &Server{cfg: config.Config{}, membershipSvc: svc}

	router := gin.New()
	router.Use(ErrorHandlingMiddleware())
	router.GET("/api/organizations/:org_id/members/me", asUser(7), srv.GetMyOrgRole)

	req := httptest.NewRequest(http.MethodGet, "/api/organizations/42/members/me", nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	require.Equal(t, http.StatusForbidden, resp.Code)
}

func TestAuthRequiredWithoutSession(t *testing.T) {
	gin.SetMode(gin.TestMode)

	srv := &Server{
		cfg:      config.Config{},
		authsvc:  &fakeAuthService{},
		sessions: session.NewManager(config.Config{}),
	}

	router := gin.New()
	router.Use(ErrorHandlingMiddleware())
	router.GET("/api/user/join-requests", srv.AuthRequired(), srv.ListMyJoinRequests)

	req := httptest.NewRequest(http.MethodGet, "/api/user/join-requests", nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	require.Equal(t, http.StatusUnauthorized, resp.Code)
}

func TestAuthRequiredSetsUserFromSession(t *testing.T) {
	gin.SetMode(gin.TestMode)

	authsvc := &fakeAuthService{session: &authdomain.Session{ID: 1, UserID: 7}}
	membership := &fakeMembershipService{}
	srv := &Server{
		cfg:           config.Config{},
		authsvc:       authsvc,
		sessions:      session.NewManager(config.Config{}),
		membershipSvc: membership,
	}

	router := gin.New()
	router.Use(ErrorHandlingMiddleware())
	router.GET("/api/user/join-requests", srv.AuthRequired(), srv.ListMyJoinRequests)

	req := httptest.NewRequest(http.MethodGet, "/api/user/join-requests", nil)
	req.AddCookie(&http.Cookie{Name: session.DefaultCookieName, Value: "session-token"})
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	require.Equal(t, http.StatusOK, resp.Code)
}

func TestInvalidOrgIDRejected(t *testing.T) {
	gin.SetMode(gin.TestMode)

	srv := &Server{cfg: config.Config{}, membershipSvc: &fakeMembershipService{}}

	router := gin.New()
	router.Use(ErrorHandlingMiddleware())
	router.POST("/api/organizations/:org_id/join-requests", asUser(7), srv.RequestToJoin)

	resp := postJSON(t, router, "/api/organizations/not-a-snowflake/join-requests", `{"role":"employee"}`)

	require.Equal(t, http.StatusBadRequest, resp.Code)
}
