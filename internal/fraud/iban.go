package fraud

import (
	"context"
	"log/slog"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/finlab/backend/internal/kv"
)

const (
	countryCode    = "BG"
	ibanLength     = 22
	validModResult = 1

	ibanCacheKeyPrefix = "iban:valid:"
	ibanCacheTTL       = time.Hour
)

// ValidationResult is the outcome of an IBAN check. Reason is empty when
// Valid is true.
type ValidationResult struct {
	Valid  bool
	Reason string
}

func validIBAN() ValidationResult {
	return ValidationResult{Valid: true}
}

func invalidIBAN(reason string) ValidationResult {
	return ValidationResult{Valid: false, Reason: reason}
}

// IBANValidator validates Bulgarian IBANs: "BG" + 2 check digits + 18
// alphanumerics, ISO 7064 MOD 97-10 checksum. Checksum results are cached in
// the KV store; cache traffic is best-effort and never changes the outcome.
type IBANValidator struct {
	kv     kv.Store
	logger *slog.Logger
}

// NewIBANValidator wires the validator with its result cache.
func NewIBANValidator(kvStore kv.Store, logger *slog.Logger) *IBANValidator {
	if logger == nil {
		logger = slog.Default()
	}
	return &IBANValidator{kv: kvStore, logger: logger}
}

// Validate normalizes the input, applies the syntactic checks in order, and
// verifies the checksum. Only checksum outcomes hit the cache; syntactic
// failures are cheap enough to recompute.
func (v *IBANValidator) Validate(ctx context.Context, iban string) ValidationResult {
	normalized := NormalizeIBAN(iban)
	if normalized == "" {
		return invalidIBAN("IBAN cannot be null or empty")
	}

	if cached, ok := v.checkCache(ctx, normalized); ok {
		v.logger.Debug("IBAN cache hit", "iban", MaskIBAN(normalized))
		if cached {
			return validIBAN()
		}
		return invalidIBAN("Invalid IBAN checksum")
	}

	if !strings.HasPrefix(normalized, countryCode) {
		return invalidIBAN("IBAN must start with BG")
	}
	if len(normalized) != ibanLength {
		return invalidIBAN("Bulgarian IBAN must be exactly 22 characters, got " + strconv.Itoa(len(normalized)))
	}
	if !allDigits(normalized[2:4]) {
		return invalidIBAN("Check digits must be numeric")
	}
	if !allUpperAlnum(normalized[4:]) {
		return invalidIBAN("IBAN contains invalid characters")
	}

	valid := checksumValid(normalized)
	v.cacheResult(ctx, normalized, valid)

	if !valid {
		return invalidIBAN("Invalid IBAN checksum")
	}
	return validIBAN()
}

// NormalizeIBAN trims, uppercases, and strips all whitespace.
func NormalizeIBAN(iban string) string {
	var b strings.Builder
	b.Grow(len(iban))
	for _, r := range strings.ToUpper(strings.TrimSpace(iban)) {
		if unicode.IsSpace(r) {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// MaskIBAN keeps the first and last four characters for log lines.
func MaskIBAN(iban string) string {
	if len(iban) <= 8 {
		return "****"
	}
	return iban[:4] + "****" + iban[len(iban)-4:]
}

// checksumValid runs ISO 7064 MOD 97-10: move the first four characters to
// the end, substitute letters by ordinal+9, and fold the digit string mod 97.
func checksumValid(iban string) bool {
	rearranged := iban[4:] + iban[:4]

	var digits strings.Builder
	digits.Grow(len(rearranged) * 2)
	for i := 0; i < len(rearranged); i++ {
		c := rearranged[i]
		if c >= '0' && c <= '9' {
			digits.WriteByte(c)
		} else {
			digits.WriteString(strconv.Itoa(int(c-'A') + 10))
		}
	}

	return mod97(digits.String()) == validModResult
}

// mod97 folds the digit string in 7-digit chunks so no intermediate exceeds
// int64: remainder < 97, chunk < 10^7, so remainder*10^7 + chunk < 10^9.
func mod97(digits string) int {
	const chunkSize = 7
	remainder := int64(0)
	for i := 0; i < len(digits); i += chunkSize {
		end := i + chunkSize
		if end > len(digits) {
			end = len(digits)
		}
		chunk := digits[i:end]
		value, err := strconv.ParseInt(chunk, 10, 64)
		if err != nil {
			return -1
		}
		remainder = (remainder*pow10(len(chunk)) + value) % 97
	}
	return int(remainder)
}

func pow10(n int) int64 {
	p := int64(1)
	for i := 0; i < n; i++ {
		p *= 10
	}
	return p
}

func allDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return len(s) > 0
}

func allUpperAlnum(s string) bool {
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c < 'A' || c > 'Z') && (c < '0' || c > '9') {
			return false
		}
	}
	return len(s) > 0
}

func (v *IBANValidator) checkCache(ctx context.Context, iban string) (result, ok bool) {
	cached, err := v.kv.Get(ctx, ibanCacheKeyPrefix+iban)
	if err != nil {
		if err != kv.ErrNotFound {
			v.logger.Warn("IBAN cache read failed", "error", err)
		}
		return false, false
	}
	return cached == "true", true
}

func (v *IBANValidator) cacheResult(ctx context.Context, iban string, valid bool) {
	if err := v.kv.Set(ctx, ibanCacheKeyPrefix+iban, strconv.FormatBool(valid), ibanCacheTTL); err != nil {
		v.logger.Warn("IBAN cache write failed", "error", err)
	}
}
