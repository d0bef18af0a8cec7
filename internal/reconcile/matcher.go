// Package reconcile links freshly imported bank transactions back to open
// installments. Incoming batches are deduplicated by fingerprint, candidate
// pairs are scored deterministically, and only high-confidence matches are
// applied; everything else is surfaced for manual confirmation.
package reconcile

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/cleared-dev/fluxo/internal/audit"
	"github.com/cleared-dev/fluxo/internal/ledger"
	"github.com/cleared-dev/fluxo/internal/model"
	"github.com/cleared-dev/fluxo/internal/store"
)

// Confidence buckets a match score. The wire values are the product's
// original pt-BR labels.
type Confidence string

const (
	ConfidenceHigh   Confidence = "alta"
	ConfidenceMedium Confidence = "media"
	ConfidenceLow    Confidence = "baixa"
)

// Config holds the matching thresholds. These are tunable operating
// parameters, not business rules.
type Config struct {
	// AmountTolerance is the absolute difference under which two amounts
	// count as equal.
	AmountTolerance decimal.Decimal
	// DateWindowDays is how far a transaction date may sit from the due date.
	DateWindowDays int
	// HighThreshold and LowThreshold cut the score into alta/media/baixa.
	HighThreshold float64
	LowThreshold  float64
}

// DefaultConfig returns the stock matching thresholds.
func DefaultConfig() Config {
	return Config{
		AmountTolerance: decimal.NewFromFloat(0.01),
		DateWindowDays:  30,
		HighThreshold:   0.8,
		LowThreshold:    0.5,
	}
}

// Score weights: amount equality dominates, date proximity refines, text
// similarity breaks near-ties.
const (
	amountWeight = 0.7
	dateWeight   = 0.2
	textWeight   = 0.1
)

// Match pairs a transaction with an installment.
type Match struct {
	Transaction  model.Transaction
	Installment  model.Installment
	Score        float64
	Confidence   Confidence
	DateDistance int // days between transaction date and due date
}

// ImportFailure reports one transaction that could not be persisted. The rest
// of the batch proceeds.
type ImportFailure struct {
	ExternalID string
	Message    string
}

// Report is the structured outcome of one reconciliation pass.
type Report struct {
	Imported    int
	Skipped     int
	Failed      []ImportFailure
	Applied     []Match
	Suggestions []Match
}

// Matcher runs reconciliation passes.
type Matcher struct {
	transactions store.TransactionStore
	ledger       *ledger.Service
	auditLog     *audit.Log
	cfg          Config
	log          *logrus.Logger
}

// NewMatcher creates a Matcher. auditLog may be nil.
func NewMatcher(transactions store.TransactionStore, ledgerSvc *ledger.Service, auditLog *audit.Log, cfg Config, log *logrus.Logger) *Matcher {
	return &Matcher{
		transactions: transactions,
		ledger:       ledgerSvc,
		auditLog:     auditLog,
		cfg:          cfg,
		log:          log,
	}
}

// Run deduplicates and persists a batch of freshly imported transactions,
// then matches the new credits against the user's open installments.
// High-confidence matches settle the installment; the rest come back as
// suggestions. Re-running over an already settled batch is a no-op.
func (m *Matcher) Run(txns []model.Transaction, userID, walletID string) (Report, error) {
	var report Report

	known, err := m.transactions.ExternalIDs(userID, walletID, model.SourceBankImport)
	if err != nil {
		return report, fmt.Errorf("listing known fingerprints: %w", err)
	}

	var fresh []model.Transaction
	for _, txn := range txns {
		if known[txn.ExternalID] {
			report.Skipped++
			continue
		}
		if err := m.transactions.CreateTransaction(&txn); err != nil {
			report.Failed = append(report.Failed, ImportFailure{
				ExternalID: txn.ExternalID,
				Message:    err.Error(),
			})
			m.log.WithField("fingerprint", txn.ExternalID).Warnf("persisting transaction failed: %v", err)
			continue
		}
		known[txn.ExternalID] = true
		report.Imported++
		fresh = append(fresh, txn)
	}

	open, err := m.ledger.ListOpen(userID, walletID)
	if err != nil {
		return report, fmt.Errorf("listing open installments: %w", err)
	}
	m.matchBatch(fresh, open, &report)

	m.log.WithFields(logrus.Fields{
		"wallet":      walletID,
		"imported":    report.Imported,
		"skipped":     report.Skipped,
		"failed":      len(report.Failed),
		"applied":     len(report.Applied),
		"suggestions": len(report.Suggestions),
	}).Info("reconciliation pass finished")
	return report, nil
}

// Rematch re-runs matching over already stored bank transactions in a date
// window, for transactions no installment has consumed yet. Nothing is
// imported; useful after tuning thresholds or adding installments late.
func (m *Matcher) Rematch(userID, walletID string, start, end time.Time) (Report, error) {
	var report Report

	txns, err := m.transactions.ListTransactions(userID, walletID, start, end)
	if err != nil {
		return report, fmt.Errorf("listing transactions: %w", err)
	}

	all, err := m.ledger.List(userID, walletID, "")
	if err != nil {
		return report, fmt.Errorf("listing installments: %w", err)
	}
	consumed := make(map[string]bool)
	for _, inst := range all {
		if inst.TransactionID != "" {
			consumed[inst.TransactionID] = true
		}
	}

	var unmatched []model.Transaction
	for _, txn := range txns {
		if txn.Source == model.SourceBankImport && !consumed[txn.ID] {
			unmatched = append(unmatched, txn)
		}
	}

	open, err := m.ledger.ListOpen(userID, walletID)
	if err != nil {
		return report, fmt.Errorf("listing open installments: %w", err)
	}
	m.matchBatch(unmatched, open, &report)

	m.log.WithFields(logrus.Fields{
		"wallet":      walletID,
		"applied":     len(report.Applied),
		"suggestions": len(report.Suggestions),
	}).Info("rematch pass finished")
	return report, nil
}

// matchBatch matches credit transactions against open installments, applying
// high-confidence winners and collecting the rest as suggestions.
func (m *Matcher) matchBatch(txns []model.Transaction, open []model.Installment, report *Report) {
	available := make(map[string]bool, len(open))
	for _, inst := range open {
		available[inst.ID] = true
	}

	for _, txn := range txns {
		if txn.Direction != model.DirectionCredit {
			continue
		}

		best, ok := m.bestCandidate(txn, open, available)
		if !ok {
			continue
		}

		if best.Confidence != ConfidenceHigh {
			report.Suggestions = append(report.Suggestions, best)
			continue
		}

		if _, err := m.ledger.UpdateStatus(best.Installment.ID, model.StatusPaid, txn.ID); err != nil {
			m.log.WithFields(logrus.Fields{
				"installment": best.Installment.ID,
				"transaction": txn.ID,
			}).Warnf("applying match failed: %v", err)
			continue
		}
		available[best.Installment.ID] = false
		report.Applied = append(report.Applied, best)

		if err := m.auditLog.Record(audit.Entry{
			Timestamp:     time.Now().UTC(),
			Action:        "match",
			Details:       fmt.Sprintf("%s score %.2f", best.Confidence, best.Score),
			InstallmentID: best.Installment.ID,
			TransactionID: txn.ID,
		}); err != nil {
			m.log.Warnf("audit log write failed: %v", err)
		}
	}
}

// bestCandidate scores a transaction against every available installment and
// returns the winner. Ties break by smallest date distance, then smallest
// amount distance.
func (m *Matcher) bestCandidate(txn model.Transaction, open []model.Installment, available map[string]bool) (Match, bool) {
	var candidates []Match
	for _, inst := range open {
		if !available[inst.ID] {
			continue
		}
		match, ok := m.score(txn, inst)
		if ok {
			candidates = append(candidates, match)
		}
	}
	if len(candidates) == 0 {
		return Match{}, false
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.DateDistance != b.DateDistance {
			return a.DateDistance < b.DateDistance
		}
		da := txn.Amount.Sub(a.Installment.Amount).Abs()
		db := txn.Amount.Sub(b.Installment.Amount).Abs()
		return da.LessThan(db)
	})
	return candidates[0], true
}

// score rates one (transaction, installment) pair, or rejects it when amount
// or date fall outside the configured bounds.
func (m *Matcher) score(txn model.Transaction, inst model.Installment) (Match, bool) {
	amountDiff := txn.Amount.Sub(inst.Amount).Abs()
	if amountDiff.GreaterThan(m.cfg.AmountTolerance) {
		return Match{}, false
	}

	dist := dateDistanceDays(txn.Date, inst.DueDate)
	if dist > m.cfg.DateWindowDays {
		return Match{}, false
	}

	dateScore := 1.0 - float64(dist)/float64(m.cfg.DateWindowDays)
	textScore := textSimilarity(txn.Description, inst.Description)

	score := amountWeight + dateWeight*dateScore + textWeight*textScore
	return Match{
		Transaction:  txn,
		Installment:  inst,
		Score:        score,
		Confidence:   m.bucket(score),
		DateDistance: dist,
	}, true
}

func (m *Matcher) bucket(score float64) Confidence {
	switch {
	case score >= m.cfg.HighThreshold:
		return ConfidenceHigh
	case score >= m.cfg.LowThreshold:
		return ConfidenceMedium
	default:
		return ConfidenceLow
	}
}

func dateDistanceDays(a, b time.Time) int {
	return int(math.Abs(a.Sub(b).Hours()) / 24)
}

// textSimilarity is the token overlap between two descriptions, in [0, 1].
func textSimilarity(a, b string) float64 {
	ta := tokens(a)
	tb := tokens(b)
	if len(ta) == 0 || len(tb) == 0 {
		return 0
	}

	set := make(map[string]bool, len(ta))
	for _, tok := range ta {
		set[tok] = true
	}
	common := 0
	for _, tok := range tb {
		if set[tok] {
			common++
			set[tok] = false
		}
	}

	min := len(ta)
	if len(tb) < min {
		min = len(tb)
	}
	return float64(common) / float64(min)
}

func tokens(s string) []string {
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9')
	})
	var out []string
	for _, f := range fields {
		if len(f) >= 3 { // drop noise words like "de", "da"
			out = append(out, f)
		}
	}
	return out
}
