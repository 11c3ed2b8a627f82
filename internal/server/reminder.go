package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	reminderdomain "github.com/strataops/ledgerline/internal/reminder/domain"
)

func (s *Server) UpsertReminder(c *gin.Context) {
	var req reminderdomain.UpsertRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	state, err := s.reminderSvc.Upsert(c.Request.Context(), &req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": reminderdomain.ToResponse(state)})
}

func (s *Server) GetReminder(c *gin.Context) {
	state, err := s.reminderSvc.Get(c.Request.Context(),
		c.Query("organization_id"),
		strings.TrimSpace(c.Param("entity_type")),
		strings.TrimSpace(c.Param("entity_id")),
	)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": reminderdomain.ToResponse(state)})
}

func (s *Server) DismissReminder(c *gin.Context) {
	state, err := s.reminderSvc.Dismiss(c.Request.Context(),
		c.Query("organization_id"),
		strings.TrimSpace(c.Param("entity_type")),
		strings.TrimSpace(c.Param("entity_id")),
	)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": reminderdomain.ToResponse(state)})
}

func (s *Server) DeclineReminder(c *gin.Context) {
	state, err := s.reminderSvc.Decline(c.Request.Context(),
		c.Query("organization_id"),
		strings.TrimSpace(c.Param("entity_type")),
		strings.TrimSpace(c.Param("entity_id")),
	)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": reminderdomain.ToResponse(state)})
}

func (s *Server) ResolveReminder(c *gin.Context) {
	state, err := s.reminderSvc.Resolve(c.Request.Context(),
		c.Query("organization_id"),
		strings.TrimSpace(c.Param("entity_type")),
		strings.TrimSpace(c.Param("entity_id")),
	)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": reminderdomain.ToResponse(state)})
}
