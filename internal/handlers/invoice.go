package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/finlab/backend/internal/fraud"
	"github.com/finlab/backend/internal/middleware"
)

// InvoiceValidator is the upstream the gateway proxy forwards to.
type InvoiceValidator interface {
	ValidateInvoice(ctx context.Context, req FraudCheckRequest) (*FraudCheckResponse, error)
}

// InvoiceAuditor records validation requests before they are forwarded.
type InvoiceAuditor interface {
	InvoiceValidation(username, invoiceNumber, ip, userAgent string, details map[string]interface{})
}

// InvoiceProxyHandler serves the gateway-side POST /api/v1/invoices/validate:
// it audits the attempt and forwards the request to the accounts service.
type InvoiceProxyHandler struct {
	upstream InvoiceValidator
	audit    InvoiceAuditor
	validate *validator.Validate
	logger   *slog.Logger
}

// NewInvoiceProxyHandler wires the gateway invoice endpoint.
func NewInvoiceProxyHandler(upstream InvoiceValidator, audit InvoiceAuditor, logger *slog.Logger) *InvoiceProxyHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &InvoiceProxyHandler{
		upstream: upstream,
		audit:    audit,
		validate: validator.New(),
		logger:   logger,
	}
}

// Validate handles the authenticated proxy path. The bearer middleware has
// already resolved the username into the request context.
func (h *InvoiceProxyHandler) Validate(w http.ResponseWriter, r *http.Request) {
	username, ok := middleware.UserFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Authentication required")
		return
	}

	var req FraudCheckRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if details := validateFraudRequest(h.validate, &req); details != nil {
		writeFieldErrors(w, "Validation failed", details)
		return
	}

	ip, ua := ClientIP(r), UserAgent(r)
	h.logger.Info("invoice validation request",
		"user", username, "invoice", req.InvoiceNumber, "iban", fraud.MaskIBAN(req.IBAN))

	h.audit.InvoiceValidation(username, req.InvoiceNumber, ip, ua, map[string]interface{}{
		"iban":     req.IBAN,
		"amount":   req.Amount.String(),
		"vendorId": req.VendorID,
	})

	resp, err := h.upstream.ValidateInvoice(r.Context(), req)
	if err != nil {
		h.logger.Error("accounts service call failed", "invoice", req.InvoiceNumber, "error", err)
		writeError(w, http.StatusBadGateway, "Fraud scoring service unavailable")
		return
	}

	h.logger.Info("invoice validation completed",
		"user", username, "invoice", req.InvoiceNumber,
		"decision", resp.Decision, "score", resp.FraudScore)
	writeJSON(w, http.StatusOK, resp)
}
