package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/finlab/backend/internal/fraud"
)

// FraudHandler serves the accounts-side POST /api/v1/invoices/validate.
// Caller authentication (X-API-KEY) happens in middleware.
type FraudHandler struct {
	engine   *fraud.Engine
	validate *validator.Validate
	logger   *slog.Logger
}

// NewFraudHandler wires the scoring endpoint.
func NewFraudHandler(engine *fraud.Engine, logger *slog.Logger) *FraudHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &FraudHandler{
		engine:   engine,
		validate: validator.New(),
		logger:   logger,
	}
}

// Validate binds the request, runs the scoring engine, and returns the
// decision.
func (h *FraudHandler) Validate(w http.ResponseWriter, r *http.Request) {
	var req FraudCheckRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if details := validateFraudRequest(h.validate, &req); details != nil {
		writeFieldErrors(w, "Validation failed", details)
		return
	}

	result := h.engine.Check(r.Context(), fraud.Request{
		IBAN:          req.IBAN,
		Amount:        req.Amount,
		VendorID:      req.VendorID,
		InvoiceNumber: req.InvoiceNumber,
	})

	writeJSON(w, http.StatusOK, FraudCheckResponse{
		Decision:    string(result.Decision),
		FraudScore:  result.FraudScore,
		RiskFactors: result.RiskFactors,
	})
}

// Health serves the unauthenticated liveness endpoints on both services.
func Health(service string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{
			"status":  "ok",
			"service": service,
		})
	}
}
