package server

import (
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	auditdomain "github.com/joblane/joblane/internal/audit/domain"
	obscontext "github.com/joblane/joblane/internal/observability/context"
)

const (
	contextUserIDKey  = "user_id"
	contextOrgRoleKey = "org_role"
)

// AuthRequired authenticates the session cookie and stores the caller's
// user id on the request. Every membership route sits behind it.
func (s *Server) AuthRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := s.sessions.ReadToken(c)
		if !ok || strings.TrimSpace(token) == "" {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		session, err := s.authsvc.Authenticate(c.Request.Context(), token)
		if err != nil {
			AbortWithError(c, err)
			return
		}

		userID := session.UserID.String()
		c.Set(contextUserIDKey, userID)

		ctx := obscontext.WithActor(c.Request.Context(), string(auditdomain.ActorTypeUser), userID)
		c.Request = c.Request.WithContext(ctx)

		c.Next()
	}
}

func (s *Server) userIDFromSession(c *gin.Context) (snowflake.ID, bool) {
	value, ok := c.Get(contextUserIDKey)
	if !ok {
		return 0, false
	}
	raw, ok := value.(string)
	if !ok {
		return 0, false
	}
	userID, err := snowflake.ParseString(strings.TrimSpace(raw))
	if err != nil || userID == 0 {
		return 0, false
	}
	return userID, true
}
