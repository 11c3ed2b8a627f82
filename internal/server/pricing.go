package server

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	pricingdomain "github.com/strataops/ledgerline/internal/pricing/domain"
)

func (s *Server) CreatePricing(c *gin.Context) {
	var req pricingdomain.CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.pricingSvc.Create(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ListPricings(c *gin.Context) {
	resp, err := s.pricingSvc.List(c.Request.Context(), c.Query("organization_id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetPricing(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))
	resp, err := s.pricingSvc.Get(c.Request.Context(), c.Query("organization_id"), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ReplacePricingTiers(c *gin.Context) {
	var req pricingdomain.ReplaceTiersRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	req.PricingID = strings.TrimSpace(c.Param("id"))

	resp, err := s.pricingSvc.ReplaceTiers(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) DeactivatePricing(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))
	if err := s.pricingSvc.Deactivate(c.Request.Context(), c.Query("organization_id"), id); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{"id": id, "active": false}})
}

// QuotePricing rates a quantity against a service code without creating
// an invoice.
func (s *Server) QuotePricing(c *gin.Context) {
	code := strings.TrimSpace(c.Query("code"))
	quantity, err := strconv.ParseFloat(c.DefaultQuery("quantity", "0"), 64)
	if err != nil {
		AbortWithError(c, newValidationError("quantity", "invalid_quantity", "invalid value"))
		return
	}

	var asOf time.Time
	if raw := strings.TrimSpace(c.Query("as_of")); raw != "" {
		asOf, err = time.Parse(time.RFC3339, raw)
		if err != nil {
			AbortWithError(c, newValidationError("as_of", "invalid_as_of", "invalid value"))
			return
		}
	}

	quote, err := s.pricingSvc.Price(c.Request.Context(), c.Query("organization_id"), code, quantity, asOf)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": quote})
}
