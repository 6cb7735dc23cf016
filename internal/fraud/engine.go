// Package fraud implements the invoice scoring engine: five independent
// rules fanned out per request, joined under a hard deadline, aggregated
// into a tiered ALLOW/REVIEW/BLOCK decision.
//
// Rules are fail-open: an infrastructure error inside one rule contributes
// the no-match value instead of failing the request. Auth is the opposite;
// see internal/auth.
package fraud

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/finlab/backend/internal/kv"
)

// Decision tiers. The mapping from score to tier is fixed: <=30 ALLOW,
// <=70 REVIEW, otherwise BLOCK.
type Decision string

const (
	DecisionAllow  Decision = "ALLOW"
	DecisionReview Decision = "REVIEW"
	DecisionBlock  Decision = "BLOCK"
)

const (
	allowThreshold  = 30
	reviewThreshold = 70

	pointsDuplicateInvoice   = 50
	pointsInvalidIBAN        = 50
	pointsRiskyIBAN          = 40
	pointsAmountManipulation = 30
	pointsVelocityAnomaly    = 15

	// ruleDeadline bounds the fan-out join. Rules that miss it contribute
	// no points; the engine under-scores rather than stalls.
	ruleDeadline = 150 * time.Millisecond

	duplicateWindow   = 24 * time.Hour
	riskyIBANCacheTTL = 4 * time.Hour
	velocityWindow    = 15 * time.Minute

	velocityThresholdIBAN   = 5
	velocityThresholdVendor = 10

	keyDuplicatePrefix      = "fraud:duplicate:"
	keyRiskyIBANPrefix      = "fraud:risky:iban:"
	keyVelocityIBANPrefix   = "fraud:velocity:iban:"
	keyVelocityVendorPrefix = "fraud:velocity:vendor:"
)

// suspiciousThresholds are round amounts fraudsters shave invoices under.
// An amount inside [T-thresholdMargin, T+1] triggers the manipulation rule.
var (
	suspiciousThresholds = []decimal.Decimal{
		decimal.NewFromInt(999),
		decimal.NewFromInt(1999),
		decimal.NewFromInt(4999),
		decimal.NewFromInt(9999),
		decimal.NewFromInt(14999),
		decimal.NewFromInt(19999),
		decimal.NewFromInt(49999),
	}
	thresholdMargin     = decimal.NewFromInt(50)
	thresholdUpperDelta = decimal.NewFromInt(1)
)

// Request is one invoice-payment check.
type Request struct {
	IBAN          string
	Amount        decimal.Decimal
	VendorID      int64
	InvoiceNumber string
}

// Response is the scoring outcome. RiskFactors follow the canonical rule
// order regardless of rule completion order.
type Response struct {
	Decision    Decision
	FraudScore  int
	RiskFactors []string
}

// IBANRegistry is the read-only risky-IBAN lookup behind the KV cache.
type IBANRegistry interface {
	IsRiskyIBAN(ctx context.Context, iban string) (bool, error)
}

// TransactionStore persists scored transactions and serves the durable
// velocity fallback.
type TransactionStore interface {
	SaveTransaction(ctx context.Context, txID, iban string, amount decimal.Decimal, vendorID int64,
		invoiceNumber string, score int, decision string, riskFactors []string) error
	CountByIBANSince(ctx context.Context, iban string, since time.Time) (int, error)
	CountByVendorSince(ctx context.Context, vendorID int64, since time.Time) (int, error)
}

// Engine executes the rule set. Safe for concurrent use; all per-request
// state stays on the stack or in the KV store.
type Engine struct {
	validator    *IBANValidator
	kv           kv.Store
	registry     IBANRegistry
	transactions TransactionStore
	metrics      *Metrics
	logger       *slog.Logger
	deadline     time.Duration
	now          func() time.Time
}

// NewEngine wires the scoring engine.
func NewEngine(
	validator *IBANValidator,
	kvStore kv.Store,
	registry IBANRegistry,
	transactions TransactionStore,
	metrics *Metrics,
	logger *slog.Logger,
) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		validator:    validator,
		kv:           kvStore,
		registry:     registry,
		transactions: transactions,
		metrics:      metrics,
		logger:       logger,
		deadline:     ruleDeadline,
		now:          time.Now,
	}
}

type ruleResult struct {
	triggered bool
	points    int
	message   string
}

var noMatch = ruleResult{}

var ruleNames = [5]string{
	"duplicate_invoice",
	"invalid_iban",
	"risky_iban",
	"amount_manipulation",
	"velocity_anomaly",
}

// Check scores one request. Velocity markers and the transaction record are
// written after the rule join; persistence failures never change the response.
func (e *Engine) Check(ctx context.Context, req Request) Response {
	start := e.now()
	e.logger.Info("fraud check started", "invoice", req.InvoiceNumber, "iban", MaskIBAN(req.IBAN))

	results := e.runRules(ctx, req)

	score := 0
	factors := make([]string, 0, len(results))
	for i, r := range results {
		if !r.triggered {
			continue
		}
		score += r.points
		factors = append(factors, r.message)
		e.metrics.RuleTriggers.WithLabelValues(ruleNames[i]).Inc()
	}
	if score > 100 {
		score = 100
	}
	decision := decide(score)

	e.recordVelocity(ctx, req)
	e.persist(ctx, req, score, decision, factors)

	elapsed := e.now().Sub(start)
	e.metrics.CheckDuration.WithLabelValues(string(decision)).Observe(elapsed.Seconds())
	e.metrics.Decisions.WithLabelValues(string(decision)).Inc()
	e.logger.Info("fraud check completed",
		"invoice", req.InvoiceNumber, "decision", decision, "score", score, "elapsed", elapsed)

	return Response{Decision: decision, FraudScore: score, RiskFactors: factors}
}

func decide(score int) Decision {
	switch {
	case score <= allowThreshold:
		return DecisionAllow
	case score <= reviewThreshold:
		return DecisionReview
	default:
		return DecisionBlock
	}
}

// runRules fans the five rules out and joins them with the hard deadline.
// Results travel through a channel, so a rule that finishes after the
// deadline cannot race the aggregation; its result is simply never read.
func (e *Engine) runRules(ctx context.Context, req Request) [5]ruleResult {
	rules := [5]func(context.Context, Request) ruleResult{
		e.checkDuplicateInvoice,
		e.checkIBANValid,
		e.checkRiskyIBAN,
		e.checkAmountManipulation,
		e.checkVelocityAnomaly,
	}

	rctx, cancel := context.WithTimeout(ctx, e.deadline)
	defer cancel()

	type indexed struct {
		idx int
		res ruleResult
	}
	out := make(chan indexed, len(rules))
	for i, rule := range rules {
		go func(idx int, fn func(context.Context, Request) ruleResult) {
			out <- indexed{idx: idx, res: fn(rctx, req)}
		}(i, rule)
	}

	var results [5]ruleResult
	var reported [5]bool
	for received := 0; received < len(rules); received++ {
		select {
		case r := <-out:
			results[r.idx] = r.res
			reported[r.idx] = true
		case <-rctx.Done():
			for i, ok := range reported {
				if !ok {
					e.metrics.RuleTimeouts.WithLabelValues(ruleNames[i]).Inc()
					e.logger.Warn("rule missed scoring deadline",
						"rule", ruleNames[i], "invoice", req.InvoiceNumber)
				}
			}
			return results
		}
	}
	return results
}

// checkDuplicateInvoice linearizes on the KV set-if-absent: exactly one
// request per 24 h window observes "first". A KV error means not-duplicate
// (false negatives beat false positives here).
func (e *Engine) checkDuplicateInvoice(ctx context.Context, req Request) ruleResult {
	wasSet, err := e.kv.SetNX(ctx, keyDuplicatePrefix+req.InvoiceNumber, "1", duplicateWindow)
	if err != nil {
		e.ruleError("duplicate_invoice", err)
		return noMatch
	}
	if !wasSet {
		e.logger.Warn("duplicate invoice detected", "invoice", req.InvoiceNumber)
		return ruleResult{true, pointsDuplicateInvoice, "Duplicate invoice detected within 24 hours"}
	}
	return noMatch
}

func (e *Engine) checkIBANValid(ctx context.Context, req Request) ruleResult {
	result := e.validator.Validate(ctx, req.IBAN)
	if !result.Valid {
		e.logger.Warn("invalid IBAN detected", "reason", result.Reason)
		return ruleResult{true, pointsInvalidIBAN, "Invalid IBAN: " + result.Reason}
	}
	return noMatch
}

// checkRiskyIBAN is cache-aside over the IBAN registry with a 4 h TTL.
func (e *Engine) checkRiskyIBAN(ctx context.Context, req Request) ruleResult {
	risky, err := e.isRiskyIBAN(ctx, req.IBAN)
	if err != nil {
		e.ruleError("risky_iban", err)
		return noMatch
	}
	if risky {
		e.logger.Warn("risky IBAN detected", "iban", MaskIBAN(req.IBAN))
		return ruleResult{true, pointsRiskyIBAN, "IBAN flagged as high-risk in database"}
	}
	return noMatch
}

func (e *Engine) isRiskyIBAN(ctx context.Context, iban string) (bool, error) {
	cacheKey := keyRiskyIBANPrefix + iban
	if cached, err := e.kv.Get(ctx, cacheKey); err == nil {
		return cached == "true", nil
	} else if err != kv.ErrNotFound {
		e.logger.Warn("risky IBAN cache read failed", "error", err)
	}

	risky, err := e.registry.IsRiskyIBAN(ctx, iban)
	if err != nil {
		return false, err
	}

	if err := e.kv.Set(ctx, cacheKey, strconv.FormatBool(risky), riskyIBANCacheTTL); err != nil {
		e.logger.Warn("risky IBAN cache write failed", "error", err)
	}
	return risky, nil
}

// checkAmountManipulation is pure decimal arithmetic; no I/O, no float64.
func (e *Engine) checkAmountManipulation(_ context.Context, req Request) ruleResult {
	for _, threshold := range suspiciousThresholds {
		lower := threshold.Sub(thresholdMargin)
		upper := threshold.Add(thresholdUpperDelta)
		if req.Amount.Cmp(lower) >= 0 && req.Amount.Cmp(upper) <= 0 {
			e.logger.Warn("amount manipulation detected", "amount", req.Amount, "threshold", threshold)
			return ruleResult{true, pointsAmountManipulation, "Amount suspiciously close to common threshold"}
		}
	}
	return noMatch
}

func (e *Engine) checkVelocityAnomaly(ctx context.Context, req Request) ruleResult {
	ibanCount := e.velocityCount(ctx, keyVelocityIBANPrefix+req.IBAN, func(since time.Time) (int, error) {
		return e.transactions.CountByIBANSince(ctx, req.IBAN, since)
	})
	if ibanCount >= velocityThresholdIBAN {
		e.logger.Warn("IBAN velocity threshold exceeded", "count", ibanCount, "iban", MaskIBAN(req.IBAN))
		return ruleResult{true, pointsVelocityAnomaly, "Unusual transaction velocity detected"}
	}

	vendorKey := keyVelocityVendorPrefix + strconv.FormatInt(req.VendorID, 10)
	vendorCount := e.velocityCount(ctx, vendorKey, func(since time.Time) (int, error) {
		return e.transactions.CountByVendorSince(ctx, req.VendorID, since)
	})
	if vendorCount >= velocityThresholdVendor {
		e.logger.Warn("vendor velocity threshold exceeded", "count", vendorCount, "vendor", req.VendorID)
		return ruleResult{true, pointsVelocityAnomaly, "Unusual transaction velocity detected"}
	}

	return noMatch
}

// velocityCount reads the windowed count from the KV sorted set and falls
// back to the durable count on any KV error. The two sources may drift
// slightly; availability wins over exactness here.
func (e *Engine) velocityCount(ctx context.Context, key string, durable func(time.Time) (int, error)) int {
	windowStart := float64(e.now().Add(-velocityWindow).UnixMilli())
	count, err := e.kv.ZCount(ctx, key, windowStart, math.MaxFloat64)
	if err == nil {
		return int(count)
	}

	e.logger.Warn("KV velocity read failed, falling back to durable count", "key", key, "error", err)
	n, derr := durable(e.now().Add(-velocityWindow))
	if derr != nil {
		e.ruleError("velocity_anomaly", fmt.Errorf("durable fallback: %w", derr))
		return 0
	}
	return n
}

// recordVelocity appends the invoice to both sliding windows. Runs after the
// rule join so late rules never observe this request's own marker.
func (e *Engine) recordVelocity(ctx context.Context, req Request) {
	score := float64(e.now().UnixMilli())

	ibanKey := keyVelocityIBANPrefix + req.IBAN
	vendorKey := keyVelocityVendorPrefix + strconv.FormatInt(req.VendorID, 10)
	for _, key := range []string{ibanKey, vendorKey} {
		if err := e.kv.ZAdd(ctx, key, req.InvoiceNumber, score); err != nil {
			e.logger.Error("velocity marker write failed", "key", key, "error", err)
			continue
		}
		if err := e.kv.Expire(ctx, key, velocityWindow); err != nil {
			e.logger.Error("velocity key expire failed", "key", key, "error", err)
		}
	}
}

func (e *Engine) persist(ctx context.Context, req Request, score int, decision Decision, factors []string) {
	txID := uuid.NewString()
	err := e.transactions.SaveTransaction(ctx, txID, req.IBAN, req.Amount, req.VendorID,
		req.InvoiceNumber, score, string(decision), factors)
	if err != nil {
		// The decision is already final; losing the row beats failing the caller.
		e.logger.Error("transaction persistence failed", "invoice", req.InvoiceNumber, "error", err)
	}
}

func (e *Engine) ruleError(rule string, err error) {
	e.metrics.RuleErrors.WithLabelValues(rule).Inc()
	e.logger.Error("rule failed, contributing no points", "rule", rule, "error", err)
}
