package server

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/joblane/joblane/pkg/db/pagination"
)

type joinRequestBody struct {
	Role string `json:"role"`
}

type inviteMemberBody struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
}

type respondInviteBody struct {
	Status string `json:"status"`
}

type handleRequestBody struct {
	Status string `json:"status"`
}

type updateRoleBody struct {
	Role string `json:"role"`
}

// JoinRequestRateLimit throttles join-request creation per user. The
// limiter is optional; without redis every request passes.
func (s *Server) JoinRequestRateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !s.joinLimiter.Enabled() {
			c.Next()
			return
		}

		userID, ok := s.userIDFromSession(c)
		if !ok {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		result, err := s.joinLimiter.AllowUser(c.Request.Context(), userID.String())
		if err != nil {
			// Redis being down should not block membership flows.
			c.Next()
			return
		}
		if !result.Allowed {
			c.Header("Retry-After", strconv.Itoa(int(result.RetryAfter.Seconds())+1))
			AbortWithError(c, ErrTooManyRequests)
			return
		}

		c.Next()
	}
}

func (s *Server) RequestToJoin(c *gin.Context) {
	userID, ok := s.userIDFromSession(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	orgID, err := s.orgIDFromRequest(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var body joinRequestBody
	if err := c.ShouldBindJSON(&body); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.membershipSvc.RequestToJoin(c.Request.Context(), userID, orgID, strings.TrimSpace(body.Role))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, resp)
}

func (s *Server) InviteMember(c *gin.Context) {
	callerID, ok := s.userIDFromSession(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	orgID, err := s.orgIDFromRequest(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var body inviteMemberBody
	if err := c.ShouldBindJSON(&body); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	targetID, err := parseUserID(body.UserID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.membershipSvc.InviteUser(c.Request.Context(), callerID, orgRoleFromContext(c), orgID, targetID, strings.TrimSpace(body.Role))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, resp)
}

func (s *Server) RespondToInvite(c *gin.Context) {
	callerID, ok := s.userIDFromSession(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	orgID, err := s.orgIDFromRequest(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var body respondInviteBody
	if err := c.ShouldBindJSON(&body); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.membershipSvc.RespondToInvite(c.Request.Context(), callerID, orgID, strings.TrimSpace(body.Status))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (s *Server) HandleJoinRequest(c *gin.Context) {
	callerID, ok := s.userIDFromSession(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	orgID, err := s.orgIDFromRequest(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	requestID, err := snowflake.ParseString(strings.TrimSpace(c.Param("request_id")))
	if err != nil || requestID == 0 {
		AbortWithError(c, newValidationError("request_id", "invalid_request_id", "invalid join request id"))
		return
	}

	var body handleRequestBody
	if err := c.ShouldBindJSON(&body); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.membershipSvc.HandleJoinRequest(c.Request.Context(), callerID, orgRoleFromContext(c), orgID, requestID, strings.TrimSpace(body.Status))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (s *Server) UpdateMemberRole(c *gin.Context) {
	callerID, ok := s.userIDFromSession(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	orgID, err := s.orgIDFromRequest(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	targetID, err := parseUserID(c.Param("user_id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var body updateRoleBody
	if err := c.ShouldBindJSON(&body); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	if err := s.membershipSvc.UpdateMemberRole(c.Request.Context(), callerID, orgRoleFromContext(c), orgID, targetID, strings.TrimSpace(body.Role)); err != nil {
		AbortWithError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (s *Server) RemoveMember(c *gin.Context) {
	callerID, ok := s.userIDFromSession(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	orgID, err := s.orgIDFromRequest(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	targetID, err := parseUserID(c.Param("user_id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	if err := s.membershipSvc.RemoveMember(c.Request.Context(), callerID, orgRoleFromContext(c), orgID, targetID); err != nil {
		AbortWithError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (s *Server) ListJoinRequests(c *gin.Context) {
	orgID, err := s.orgIDFromRequest(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.membershipSvc.ListJoinRequests(c.Request.Context(), orgID, strings.TrimSpace(c.Query("status")), paginationFromQuery(c))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp.Requests, "page_info": resp.PageInfo})
}

func (s *Server) ListMembers(c *gin.Context) {
	orgID, err := s.orgIDFromRequest(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.membershipSvc.ListMembers(c.Request.Context(), orgID, paginationFromQuery(c))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp.Members, "page_info": resp.PageInfo})
}

func paginationFromQuery(c *gin.Context) pagination.Pagination {
	size, _ := strconv.Atoi(strings.TrimSpace(c.Query("page_size")))
	return pagination.Pagination{
		PageToken: strings.TrimSpace(c.Query("page_token")),
		PageSize:  size,
	}
}

func parseUserID(raw string) (snowflake.ID, error) {
	userID, err := snowflake.ParseString(strings.TrimSpace(raw))
	if err != nil || userID == 0 {
		return 0, newValidationError("user_id", "invalid_user", "invalid user id")
	}
	return userID, nil
}
