// Package handlers contains the HTTP handlers for the settlement service.
package handlers

import (
	"context"
	"errors"
	"io"
	"log"
	"net/http"
	"net/url"

	"github.com/fitstack/fitstack-settlement/internal/adapters/momo"
	"github.com/fitstack/fitstack-settlement/internal/core/domain"
	"github.com/fitstack/fitstack-settlement/internal/core/ports"
	"github.com/fitstack/fitstack-settlement/internal/core/service"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// maxIPNBody bounds the webhook body read.
const maxIPNBody = 64 << 10

// Checkout initiates charges and reads payments.
type Checkout interface {
	CreateCharge(ctx context.Context, memberID, packageID uuid.UUID) (*domain.ChargeResult, error)
	GetPayment(ctx context.Context, id uuid.UUID) (*domain.Payment, error)
}

// Settler applies verified gateway callbacks.
type Settler interface {
	Settle(ctx context.Context, cb domain.GatewayCallback) (service.Outcome, error)
}

// FrontendURLs are the browser landing pages after the gateway redirect.
type FrontendURLs struct {
	SuccessURL string
	FailureURL string
}

// ErrorResponse is the body of every failed API call.
type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Code    string `json:"code"`
}

// PaymentHandler handles HTTP requests for payments.
type PaymentHandler struct {
	checkout Checkout
	settler  Settler
	verifier ports.CallbackVerifier
	frontend FrontendURLs
}

// NewPaymentHandler creates a new payment handler.
func NewPaymentHandler(checkout Checkout, settler Settler, verifier ports.CallbackVerifier, frontend FrontendURLs) *PaymentHandler {
	return &PaymentHandler{
		checkout: checkout,
		settler:  settler,
		verifier: verifier,
		frontend: frontend,
	}
}

// CheckoutRequest is the body of POST /api/v1/payments/checkout.
type CheckoutRequest struct {
	PackageID string `json:"package_id" binding:"required"`
}

// CreateCheckout handles POST /api/v1/payments/checkout
// Records a pending payment and returns the gateway pay URL.
func (h *PaymentHandler) CreateCheckout(c *gin.Context) {
	var req CheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, http.StatusBadRequest, "Invalid request: "+err.Error(), "VALIDATION_ERROR")
		return
	}

	packageID, err := uuid.Parse(req.PackageID)
	if err != nil {
		abort(c, http.StatusBadRequest, "package_id must be a UUID", "VALIDATION_ERROR")
		return
	}

	memberID, _ := memberFromContext(c)
	result, err := h.checkout.CreateCharge(c.Request.Context(), memberID, packageID)
	if err != nil {
		log.Printf("CreateCheckout error for member %s: %v", memberID, err)
		handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    result,
	})
}

// GetPayment handles GET /api/v1/payments/:id
func (h *PaymentHandler) GetPayment(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	payment, err := h.checkout.GetPayment(c.Request.Context(), id)
	if err != nil {
		handleServiceError(c, err)
		return
	}

	memberID, admin := memberFromContext(c)
	if !admin && payment.MemberID != memberID {
		// do not reveal other members' payments
		abort(c, http.StatusNotFound, "payment not found", "PAYMENT_NOT_FOUND")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    payment,
	})
}

// HandleIPN handles POST /api/v1/payments/momo/ipn
// Always answers 200 so the gateway does not retry; outcomes are logged.
func (h *PaymentHandler) HandleIPN(c *gin.Context) {
	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxIPNBody))
	if err != nil {
		log.Printf("IPN read error: %v", err)
		c.JSON(http.StatusOK, gin.H{"status": "received"})
		return
	}

	cb, err := momo.ParseCallback(body)
	if err != nil {
		// MoMo may send different formats, log and accept
		log.Printf("IPN parse error: %v", err)
		c.JSON(http.StatusOK, gin.H{"status": "received"})
		return
	}

	if !h.verifier.Verify(cb) {
		log.Printf("IPN signature validation failed for order %s", cb.OrderID)
		c.JSON(http.StatusOK, gin.H{"status": "ignored"})
		return
	}

	outcome, err := h.settler.Settle(c.Request.Context(), cb)
	if err != nil {
		log.Printf("IPN processing error for order %s (%s): %v", cb.OrderID, outcome, err)
		// Return 200 to prevent MoMo from retrying (we log the error)
		c.JSON(http.StatusOK, gin.H{"status": "processed_with_error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "processed"})
}

// HandleReturn handles GET /api/v1/payments/momo/return
// The browser lands here after paying. It carries no authority; settlement
// happens only through the IPN.
func (h *PaymentHandler) HandleReturn(c *gin.Context) {
	orderID := c.Query("orderId")
	target := h.frontend.FailureURL
	if c.Query("resultCode") == "0" {
		target = h.frontend.SuccessURL
	}

	u, err := url.Parse(target)
	if err != nil {
		log.Printf("Invalid frontend URL %q: %v", target, err)
		c.String(http.StatusInternalServerError, "redirect not configured")
		return
	}
	if orderID != "" {
		q := u.Query()
		q.Set("orderId", orderID)
		u.RawQuery = q.Encode()
	}

	c.Redirect(http.StatusFound, u.String())
}

// Health handles GET /health
func (h *PaymentHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": "fitstack-settlement",
		"version": "1.0.0",
	})
}

func uuidParam(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		abort(c, http.StatusBadRequest, name+" must be a UUID", "VALIDATION_ERROR")
		return uuid.Nil, false
	}
	return id, true
}

// handleServiceError maps domain errors to HTTP responses.
func handleServiceError(c *gin.Context, err error) {
	var svcErr *domain.ServiceError
	if errors.As(err, &svcErr) {
		statusCode := http.StatusInternalServerError

		switch {
		case errors.Is(svcErr.Err, domain.ErrInvalidRequest):
			statusCode = http.StatusBadRequest
		case errors.Is(svcErr.Err, domain.ErrMemberNotFound),
			errors.Is(svcErr.Err, domain.ErrPackageNotFound),
			errors.Is(svcErr.Err, domain.ErrPaymentNotFound),
			errors.Is(svcErr.Err, domain.ErrMembershipNotFound):
			statusCode = http.StatusNotFound
		case errors.Is(svcErr.Err, domain.ErrForbidden):
			statusCode = http.StatusForbidden
		case errors.Is(svcErr.Err, domain.ErrInvalidTransition),
			errors.Is(svcErr.Err, domain.ErrNoSessionsLeft):
			statusCode = http.StatusConflict
		case errors.Is(svcErr.Err, domain.ErrGatewayUnavailable),
			errors.Is(svcErr.Err, domain.ErrGatewayRejected):
			statusCode = http.StatusBadGateway
		case errors.Is(svcErr.Err, domain.ErrLockTimeout):
			statusCode = http.StatusServiceUnavailable
		}

		c.JSON(statusCode, ErrorResponse{
			Success: false,
			Error:   svcErr.Message,
			Code:    svcErr.Code,
		})
		return
	}

	// Generic error
	c.JSON(http.StatusInternalServerError, ErrorResponse{
		Success: false,
		Error:   "Internal server error",
		Code:    "INTERNAL_ERROR",
	})
}
