package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	paymentdomain "github.com/strataops/ledgerline/internal/payment/domain"
	"github.com/strataops/ledgerline/internal/payment/gateway"
)

func (s *Server) InitiateGatewayPayment(c *gin.Context) {
	var req paymentdomain.InitiateGatewayRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	req.ClientIP = c.ClientIP()

	intent, err := s.paymentSvc.InitiateGatewayPayment(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": intent})
}

// GatewayCallback answers with the gateway's acknowledgement codes so
// failed notifications are redelivered and settled ones are not.
func (s *Server) GatewayCallback(c *gin.Context) {
	result, err := s.paymentSvc.ReconcileCallback(c.Request.Context(), c.Request.URL.Query())
	switch {
	case err == nil:
		if result.Replayed {
			c.JSON(http.StatusOK, gin.H{"RspCode": "02", "Message": "Order already confirmed"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"RspCode": "00", "Message": "Confirm Success"})
	case errors.Is(err, gateway.ErrInvalidSignature):
		c.JSON(http.StatusOK, gin.H{"RspCode": "97", "Message": "Invalid signature"})
	case errors.Is(err, paymentdomain.ErrUnknownTxnRef):
		c.JSON(http.StatusOK, gin.H{"RspCode": "01", "Message": "Order not found"})
	default:
		c.JSON(http.StatusOK, gin.H{"RspCode": "99", "Message": "Unknown error"})
	}
}

func (s *Server) RecordManualPayment(c *gin.Context) {
	var req paymentdomain.ManualPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	payment, err := s.paymentSvc.RecordManualPayment(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": payment})
}

func (s *Server) GetPayment(c *gin.Context) {
	payment, err := s.paymentSvc.Get(c.Request.Context(), c.Query("organization_id"), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": payment})
}

func (s *Server) DownloadReceipt(c *gin.Context) {
	pdfBytes, err := s.paymentSvc.Receipt(c.Request.Context(), c.Query("organization_id"), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.Header("Content-Disposition", `attachment; filename="receipt.pdf"`)
	c.Data(http.StatusOK, "application/pdf", pdfBytes)
}
