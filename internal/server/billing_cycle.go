package server

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	billingcycledomain "github.com/strataops/ledgerline/internal/billingcycle/domain"
)

func (s *Server) EnsureBillingCycle(c *gin.Context) {
	var req billingcycledomain.EnsureRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	cycle, err := s.cycleSvc.EnsureCycle(c.Request.Context(), &req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": billingcycledomain.ToResponse(cycle)})
}

func (s *Server) ListBillingCycles(c *gin.Context) {
	req := &billingcycledomain.ListRequest{
		OrganizationID: c.Query("organization_id"),
		Cursor:         c.Query("cursor"),
	}
	if v := strings.TrimSpace(c.Query("status")); v != "" {
		req.Status = billingcycledomain.BillingCycleStatus(strings.ToUpper(v))
	}
	if v := c.Query("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil {
			AbortWithError(c, newValidationError("limit", "invalid_limit", "invalid value"))
			return
		}
		req.Limit = limit
	}

	resp, err := s.cycleSvc.List(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetBillingCycle(c *gin.Context) {
	cycle, err := s.cycleSvc.Get(c.Request.Context(), c.Query("organization_id"), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": billingcycledomain.ToResponse(cycle)})
}

func (s *Server) CloseBillingCycle(c *gin.Context) {
	cycle, err := s.cycleSvc.CloseCycle(c.Request.Context(), c.Query("organization_id"), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": billingcycledomain.ToResponse(cycle)})
}
