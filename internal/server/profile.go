package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// GetMyOrgRole reports the caller's standing in the organization: an active
// membership with its role, or a pending join request.
func (s *Server) GetMyOrgRole(c *gin.Context) {
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

	resp, err := s.membershipSvc.GetMyOrgRole(c.Request.Context(), userID, orgID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// ListMyJoinRequests lists the caller's join requests across organizations,
// read from the organization-side store rather than the user row.
func (s *Server) ListMyJoinRequests(c *gin.Context) {
	userID, ok := s.userIDFromSession(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	items, err := s.membershipSvc.ListMyJoinRequests(c.Request.Context(), userID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": items})
}
