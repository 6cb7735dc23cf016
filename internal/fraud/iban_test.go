package fraud

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finlab/backend/internal/kv"
)

const (
	validIBANPrimary   = "BG80BNBG96611020345678"
	validIBANSecondary = "BG18RZBB91550123456789"
	badChecksumIBAN    = "BG99INVALID00000000000"
)

func newTestValidator(store kv.Store) *IBANValidator {
	return NewIBANValidator(store, slog.Default())
}

func TestIBANValidatorAcceptsValidIBAN(t *testing.T) {
	v := newTestValidator(kv.NewMemoryStore())

	for _, iban := range []string{validIBANPrimary, validIBANSecondary} {
		result := v.Validate(context.Background(), iban)
		assert.True(t, result.Valid, "expected %s to be valid", iban)
		assert.Empty(t, result.Reason)
	}
}

func TestIBANValidatorNormalization(t *testing.T) {
	v := newTestValidator(kv.NewMemoryStore())

	result := v.Validate(context.Background(), "  bg80 bnbg 9661 1020 3456 78  ")
	assert.True(t, result.Valid)

	// Normalizing an already-normalized IBAN yields itself.
	assert.Equal(t, validIBANPrimary, NormalizeIBAN(validIBANPrimary))
	assert.Equal(t, validIBANPrimary, NormalizeIBAN(NormalizeIBAN("  bg80 bnbg 9661 1020 3456 78  ")))
}

func TestIBANValidatorSyntacticChecks(t *testing.T) {
	v := newTestValidator(kv.NewMemoryStore())
	ctx := context.Background()

	tests := []struct {
		name   string
		iban   string
		reason string
	}{
		{"empty", "", "IBAN cannot be null or empty"},
		{"whitespace only", "   ", "IBAN cannot be null or empty"},
		{"wrong country", "DE80BNBG96611020345678", "IBAN must start with BG"},
		{"too short", "BG80BNBG9661102034567", "Bulgarian IBAN must be exactly 22 characters, got 21"},
		{"too long", "BG80BNBG966110203456789", "Bulgarian IBAN must be exactly 22 characters, got 23"},
		{"alpha check digits", "BGAABNBG96611020345678", "Check digits must be numeric"},
		{"invalid characters", "BG80BNBG9661102034567-", "IBAN contains invalid characters"},
		{"bad checksum", badChecksumIBAN, "Invalid IBAN checksum"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := v.Validate(ctx, tt.iban)
			require.False(t, result.Valid)
			assert.Equal(t, tt.reason, result.Reason)
		})
	}
}

func TestIBANValidatorCachesChecksumResults(t *testing.T) {
	store := kv.NewMemoryStore()
	v := newTestValidator(store)
	ctx := context.Background()

	require.True(t, v.Validate(ctx, validIBANPrimary).Valid)

	cached, err := store.Get(ctx, ibanCacheKeyPrefix+validIBANPrimary)
	require.NoError(t, err)
	assert.Equal(t, "true", cached)

	// A poisoned cache entry short-circuits the checksum.
	require.NoError(t, store.Set(ctx, ibanCacheKeyPrefix+validIBANSecondary, "false", time.Hour))
	result := v.Validate(ctx, validIBANSecondary)
	assert.False(t, result.Valid)
	assert.Equal(t, "Invalid IBAN checksum", result.Reason)
}

func TestIBANValidatorSurvivesKVOutage(t *testing.T) {
	v := newTestValidator(failingKV{})
	ctx := context.Background()

	assert.True(t, v.Validate(ctx, validIBANPrimary).Valid)

	result := v.Validate(ctx, badChecksumIBAN)
	assert.False(t, result.Valid)
	assert.Equal(t, "Invalid IBAN checksum", result.Reason)
}

func TestMod97ChunkedReduction(t *testing.T) {
	// Digit strings far longer than any int64 must fold correctly.
	inputs := []string{
		"98",
		"9700000097",
		"123456789012345678901234567890123456789012345678901234567890",
		"999999999999999999999999999999999999999999999999",
	}
	for _, digits := range inputs {
		assert.Equal(t, expectedMod97(digits), mod97(digits), "mod97(%s)", digits)
	}
}

// expectedMod97 is the naive digit-by-digit reduction, used as the oracle.
func expectedMod97(digits string) int {
	r := 0
	for i := 0; i < len(digits); i++ {
		r = (r*10 + int(digits[i]-'0')) % 97
	}
	return r
}

// failingKV errors on every operation. Shared by the engine tests.
type failingKV struct{}

var errKVDown = errors.New("kv: connection refused")

func (failingKV) Get(context.Context, string) (string, error) { return "", errKVDown }
func (failingKV) Set(context.Context, string, string, time.Duration) error {
	return errKVDown
}
func (failingKV) SetNX(context.Context, string, string, time.Duration) (bool, error) {
	return false, errKVDown
}
func (failingKV) Del(context.Context, ...string) error          { return errKVDown }
func (failingKV) Exists(context.Context, string) (bool, error)  { return false, errKVDown }
func (failingKV) ZAdd(context.Context, string, string, float64) error {
	return errKVDown
}
func (failingKV) ZCount(context.Context, string, float64, float64) (int64, error) {
	return 0, errKVDown
}
func (failingKV) Expire(context.Context, string, time.Duration) error { return errKVDown }
