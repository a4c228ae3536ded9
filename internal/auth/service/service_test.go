package service

import (
	"context"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	authdomain "github.com/joblane/joblane/internal/auth/domain"
	"github.com/joblane/joblane/internal/auth/repository"
	"github.com/joblane/joblane/pkg/db"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newTestService(t *testing.T) authdomain.Service {
	t.Helper()

	dbConn, err := db.NewTest()
	require.NoError(t, err)
	require.NoError(t, dbConn.AutoMigrate(&authdomain.User{}, &authdomain.Session{}))

	repo, sessionRepo := repository.New(dbConn)
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	return New(zaptest.NewLogger(t), repo, sessionRepo, node)
}

func TestCreateUserDefaultsToCandidate(t *testing.T) {
	svc := newTestService(t)

	user, err := svc.CreateUser(context.Background(), authdomain.CreateUserRequest{
		Email:    "bob@example.com",
		Password: "strong-password",
	})
	require.NoError(t, err)
	require.Equal(t, "local", user.Provider)
	require.Equal(t, authdomain.RoleCandidate, user.Role)
	require.Nil(t, user.CompanyID)
	require.Nil(t, user.CompanyRole)
	require.NotEmpty(t, user.ExternalID)
	_, err = uuid.Parse(user.ExternalID)
	require.NoError(t, err)
}

func TestCreateUserDuplicateEmail(t *testing.T) {
	svc := newTestService(t)

	_, err := svc.CreateUser(context.Background(), authdomain.CreateUserRequest{
		Email:    "dup@example.com",
		Password: "strong-password",
	})
	require.NoError(t, err)

	_, err = svc.CreateUser(context.Background(), authdomain.CreateUserRequest{
		Email:    "dup@example.com",
		Password: "another-password",
	})
	require.ErrorIs(t, err, authdomain.ErrUserExists)
}

func TestLoginWrongPassword(t *testing.T) {
	svc := newTestService(t)

	_, err := svc.CreateUser(context.Background(), authdomain.CreateUserRequest{
		Email:    "alice@example.com",
		Password: "correct-password",
	})
	require.NoError(t, err)

	_, err = svc.Login(context.Background(), authdomain.LoginRequest{
		Email:    "alice@example.com",
		Password: "wrong-password",
	})
	require.ErrorIs(t, err, authdomain.ErrInvalidCredentials)
}

func TestAuthenticateRoundTrip(t *testing.T) {
	svc := newTestService(t)

	user, err := svc.CreateUser(context.Background(), authdomain.CreateUserRequest{
		Email:    "carol@example.com",
		Password: "correct-password",
	})
	require.NoError(t, err)

	result, err := svc.Login(context.Background(), authdomain.LoginRequest{
		Email:    "carol@example.com",
		Password: "correct-password",
	})
	require.NoError(t, err)
	require.NotEmpty(t, result.RawToken)

	session, err := svc.Authenticate(context.Background(), result.RawToken)
	require.NoError(t, err)
	require.Equal(t, user.ID, session.UserID)

	require.NoError(t, svc.Logout(context.Background(), result.RawToken))

	_, err = svc.Authenticate(context.Background(), result.RawToken)
	require.ErrorIs(t, err, authdomain.ErrSessionRevoked)
}
