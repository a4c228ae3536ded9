package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

type testCleanupRequest struct {
	Prefix string `json:"prefix"`
}

// TestCleanup removes fixture organizations and users created by end-to-end
// suites. Never registered in production.
func (s *Server) TestCleanup(c *gin.Context) {
	if s.cfg.Environment == "production" {
		AbortWithError(c, ErrNotFound)
		return
	}

	var req testCleanupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	prefix := strings.TrimSpace(req.Prefix)
	if prefix == "" {
		AbortWithError(c, newValidationError("prefix", "required", "prefix is required"))
		return
	}

	ctx := c.Request.Context()
	like := prefix + "%"

	var orgIDs []int64
	if err := s.db.WithContext(ctx).
		Table("organizations").
		Select("id").
		Where("name LIKE ?", like).
		Scan(&orgIDs).Error; err != nil {
		AbortWithError(c, err)
		return
	}

	if len(orgIDs) > 0 {
		for _, stmt := range []string{
			`DELETE FROM membership_audit_logs WHERE org_id IN ?`,
			`DELETE FROM organization_join_requests WHERE org_id IN ?`,
			`DELETE FROM organization_members WHERE org_id IN ?`,
			`DELETE FROM organization_admins WHERE org_id IN ?`,
			`DELETE FROM organizations WHERE id IN ?`,
		} {
			if err := s.db.WithContext(ctx).Exec(stmt, orgIDs).Error; err != nil {
				AbortWithError(c, err)
				return
			}
		}
	}

	var userIDs []int64
	if err := s.db.WithContext(ctx).
		Table("users").
		Select("id").
		Where("email LIKE ?", like).
		Scan(&userIDs).Error; err != nil {
		AbortWithError(c, err)
		return
	}

	if len(userIDs) > 0 {
		for _, stmt := range []string{
			`DELETE FROM sessions WHERE user_id IN ?`,
			`DELETE FROM organization_join_requests WHERE user_id IN ?`,
			`DELETE FROM organization_members WHERE user_id IN ?`,
			`DELETE FROM organization_admins WHERE user_id IN ?`,
			`DELETE FROM users WHERE id IN ?`,
		} {
			if err := s.db.WithContext(ctx).Exec(stmt, userIDs).Error; err != nil {
				AbortWithError(c, err)
				return
			}
		}
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
