package handlers

import (
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

// FraudCheckRequest is the validate-invoice body, shared between the gateway
// proxy and the accounts endpoint. Amount accepts both JSON numbers and
// quoted decimal strings.
type FraudCheckRequest struct {
	IBAN          string          `json:"iban" validate:"required"`
	Amount        decimal.Decimal `json:"amount"`
	VendorID      int64           `json:"vendorId" validate:"required,gt=0"`
	InvoiceNumber string          `json:"invoiceNumber" validate:"required"`
}

// FraudCheckResponse mirrors the scoring engine outcome on the wire.
type FraudCheckResponse struct {
	Decision    string   `json:"decision"`
	FraudScore  int      `json:"fraudScore"`
	RiskFactors []string `json:"riskFactors"`
}

// LoginRequest is the login body.
type LoginRequest struct {
	Username string `json:"username" validate:"required,min=3"`
	Password string `json:"password" validate:"required"`
}

// RefreshRequest is the refresh body.
type RefreshRequest struct {
	RefreshToken string `json:"refreshToken" validate:"required"`
}

// LoginResponse is returned by login and refresh.
type LoginResponse struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	TokenType    string `json:"tokenType"`
	ExpiresIn    int64  `json:"expiresIn"`
}

// validateFraudRequest collects per-field errors. The amount positivity check
// runs outside the validator because decimal.Decimal is opaque to it.
func validateFraudRequest(v *validator.Validate, req *FraudCheckRequest) map[string]string {
	details := make(map[string]string)
	if err := v.Struct(req); err != nil {
		if errs, ok := err.(validator.ValidationErrors); ok {
			for _, fe := range errs {
				switch fe.Field() {
				case "IBAN":
					details["iban"] = "IBAN cannot be null or empty"
				case "VendorID":
					details["vendorId"] = "Vendor ID must be positive"
				case "InvoiceNumber":
					details["invoiceNumber"] = "Invoice number cannot be null or empty"
				}
			}
		}
	}
	if !req.Amount.IsPositive() {
		details["amount"] = "Amount must be positive"
	}
	if len(details) == 0 {
		return nil
	}
	return details
}

// validationMessages maps validator tags onto the login/refresh field errors.
func validationMessages(err error, fields map[string]string) map[string]string {
	details := make(map[string]string)
	if errs, ok := err.(validator.ValidationErrors); ok {
		for _, fe := range errs {
			name := fields[fe.Field()]
			if name == "" {
				continue
			}
			switch fe.Tag() {
			case "min":
				details[name] = name + " is too short"
			default:
				details[name] = name + " is required"
			}
		}
	}
	return details
}
