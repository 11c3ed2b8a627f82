package server

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	invoicedomain "github.com/strataops/ledgerline/internal/invoice/domain"
)

func (s *Server) CreateDraftInvoice(c *gin.Context) {
	var req invoicedomain.CreateDraftRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	invoice, err := s.invoiceSvc.CreateDraft(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": invoice})
}

func (s *Server) ReplaceDraftLines(c *gin.Context) {
	var req invoicedomain.ReplaceLinesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	req.InvoiceID = strings.TrimSpace(c.Param("id"))

	invoice, err := s.invoiceSvc.ReplaceDraftLines(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": invoice})
}

func (s *Server) PublishInvoice(c *gin.Context) {
	invoice, err := s.invoiceSvc.Publish(c.Request.Context(), c.Query("organization_id"), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": invoice})
}

func (s *Server) VoidInvoice(c *gin.Context) {
	var body struct {
		Reason string `json:"reason"`
	}
	_ = c.ShouldBindJSON(&body)

	invoice, err := s.invoiceSvc.Void(c.Request.Context(), c.Query("organization_id"), strings.TrimSpace(c.Param("id")), body.Reason)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": invoice})
}

func (s *Server) GetInvoice(c *gin.Context) {
	invoice, err := s.invoiceSvc.Get(c.Request.Context(), c.Query("organization_id"), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": invoice})
}

func (s *Server) ListInvoices(c *gin.Context) {
	req := invoicedomain.ListRequest{
		OrganizationID: c.Query("organization_id"),
		Cursor:         c.Query("cursor"),
	}

	if v := strings.TrimSpace(c.Query("status")); v != "" {
		status := invoicedomain.InvoiceStatus(strings.ToUpper(v))
		req.Status = &status
	}
	if v := strings.TrimSpace(c.Query("billing_cycle_id")); v != "" {
		req.BillingCycleID = &v
	}
	if v := strings.TrimSpace(c.Query("resident_id")); v != "" {
		req.ResidentID = &v
	}
	if v := c.Query("due_from"); v != "" {
		ts, err := time.Parse(time.RFC3339, v)
		if err != nil {
			AbortWithError(c, newValidationError("due_from", "invalid_due_from", "invalid value"))
			return
		}
		req.DueFrom = &ts
	}
	if v := c.Query("due_to"); v != "" {
		ts, err := time.Parse(time.RFC3339, v)
		if err != nil {
			AbortWithError(c, newValidationError("due_to", "invalid_due_to", "invalid value"))
			return
		}
		req.DueTo = &ts
	}
	if v := c.Query("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil {
			AbortWithError(c, newValidationError("limit", "invalid_limit", "invalid value"))
			return
		}
		req.Limit = limit
	}

	resp, err := s.invoiceSvc.List(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}
