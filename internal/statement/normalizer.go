// Package statement turns raw bank statement entries into canonical
// transactions. Balance-marker lines are filtered out, dates arrive as
// DDMMYYYY integers, and every emitted transaction carries a deterministic
// fingerprint so re-imports converge instead of duplicating.
package statement

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/cleared-dev/fluxo/internal/classify"
	"github.com/cleared-dev/fluxo/internal/id"
	"github.com/cleared-dev/fluxo/internal/model"
)

// balanceKeywords mark synthetic running-balance lines. Entries matching any
// of these never become transactions.
var balanceKeywords = []string{
	"saldo do dia",
	"saldo anterior",
	"s a l d o",
	"saldo disponivel",
	"saldo final",
	"saldo inicial",
	"saldo atual",
}

// ParseError describes a malformed statement entry. The entry is skipped and
// the batch continues.
type ParseError struct {
	Index   int    `json:"index"`
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
}

func (e ParseError) Error() string {
	return fmt.Sprintf("entry %d: %s: %s", e.Index, e.Field, e.Message)
}

// Result is the outcome of normalizing one statement batch.
type Result struct {
	Transactions []model.Transaction
	Dropped      int // balance markers filtered out
	Skipped      int // malformed entries
	Errors       []ParseError
}

// Normalizer converts raw statement entries into transactions.
type Normalizer struct {
	classifier *classify.Classifier
	log        *logrus.Logger
}

// NewNormalizer creates a Normalizer.
func NewNormalizer(classifier *classify.Classifier, log *logrus.Logger) *Normalizer {
	return &Normalizer{classifier: classifier, log: log}
}

// Normalize processes an ordered batch of raw entries for one account window
// and returns the transactions in input order. Balance markers are dropped,
// malformed entries are skipped and reported, and the batch never aborts.
func (n *Normalizer) Normalize(entries []model.RawStatementEntry, userID, walletID string) Result {
	var res Result

	for i, entry := range entries {
		if IsBalanceMarker(entry.TextoDescricaoHistorico) {
			res.Dropped++
			continue
		}

		txn, err := n.normalizeEntry(i, entry, userID, walletID)
		if err != nil {
			res.Skipped++
			var perr ParseError
			if !errors.As(err, &perr) {
				perr = ParseError{Index: i, Message: err.Error()}
			}
			res.Errors = append(res.Errors, perr)
			n.log.WithFields(logrus.Fields{
				"wallet": walletID,
				"entry":  i,
			}).Warnf("skipping statement entry: %v", err)
			continue
		}
		res.Transactions = append(res.Transactions, txn)
	}

	n.verifyBalances(entries, walletID)
	return res
}

func (n *Normalizer) normalizeEntry(index int, entry model.RawStatementEntry, userID, walletID string) (model.Transaction, error) {
	date, err := DecodeDate(entry.DataLancamento)
	if err != nil {
		return model.Transaction{}, ParseError{Index: index, Field: "dataLancamento", Message: err.Error()}
	}

	direction := resolveDirection(entry)
	amount := entry.ValorLancamento.Abs()
	if direction == model.DirectionDebit {
		amount = amount.Neg()
	}

	description := strings.TrimSpace(entry.TextoDescricaoHistorico)
	if extra := strings.TrimSpace(entry.TextoInformacaoComplementar); extra != "" {
		description = strings.TrimSpace(description + " " + extra)
	}

	return model.Transaction{
		ID:          id.New(),
		ExternalID:  id.StatementFingerprint(walletID, date, entry.NumeroDocumento, entry.NumeroLote),
		Date:        date,
		Amount:      amount,
		Direction:   direction,
		Category:    n.classifier.Classify(entry.CodigoHistorico, entry.TextoDescricaoHistorico),
		Description: description,
		Source:      model.SourceBankImport,
		WalletID:    walletID,
		UserID:      userID,
		CreatedAt:   time.Now().UTC(),
	}, nil
}

// IsBalanceMarker reports whether a description denotes a running-balance
// line rather than a real movement.
func IsBalanceMarker(description string) bool {
	desc := strings.ToLower(description)
	for _, kw := range balanceKeywords {
		if strings.Contains(desc, kw) {
			return true
		}
	}
	return false
}

// DecodeDate parses the feed's integer date. The format is DDMMYYYY; days
// 1-9 arrive without the leading zero, leaving 7 digits.
func DecodeDate(raw int) (time.Time, error) {
	if raw <= 0 {
		return time.Time{}, fmt.Errorf("invalid date %d", raw)
	}

	s := fmt.Sprintf("%d", raw)
	if len(s) == 7 {
		s = "0" + s
	}
	if len(s) != 8 {
		return time.Time{}, fmt.Errorf("date %d is not DDMMYYYY", raw)
	}

	date, err := time.Parse("02012006", s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing date %d: %w", raw, err)
	}
	return date, nil
}

// resolveDirection decides debit vs credit. Debit when the sign indicator is
// D, the lancamento-type indicator is D, or the description mentions debito.
func resolveDirection(entry model.RawStatementEntry) model.Direction {
	if strings.EqualFold(entry.IndicadorSinalLancamento, "D") {
		return model.DirectionDebit
	}
	if strings.EqualFold(entry.IndicadorTipoLancamento, "D") {
		return model.DirectionDebit
	}
	if strings.Contains(strings.ToLower(entry.TextoDescricaoHistorico), "debito") {
		return model.DirectionDebit
	}
	return model.DirectionCredit
}

// verifyBalances checks emitted movements against the feed's own balance
// markers. Mismatches are warnings only; the feed's balance lines are not
// authoritative enough to fail an import.
func (n *Normalizer) verifyBalances(entries []model.RawStatementEntry, walletID string) {
	running := decimal.Zero
	tracking := false

	for _, entry := range entries {
		desc := strings.ToLower(entry.TextoDescricaoHistorico)

		if strings.Contains(desc, "saldo anterior") {
			running = signedMarkerValue(entry)
			tracking = true
			continue
		}

		if IsBalanceMarker(entry.TextoDescricaoHistorico) {
			if !tracking {
				continue
			}
			reported := signedMarkerValue(entry)
			if !running.Equal(reported) {
				n.log.WithFields(logrus.Fields{
					"wallet":   walletID,
					"computed": running.StringFixed(2),
					"reported": reported.StringFixed(2),
				}).Warn("statement balance mismatch")
			}
			continue
		}

		if !tracking {
			continue
		}
		if _, err := DecodeDate(entry.DataLancamento); err != nil {
			continue
		}

		amount := entry.ValorLancamento.Abs()
		if resolveDirection(entry) == model.DirectionDebit {
			amount = amount.Neg()
		}
		running = running.Add(amount)
	}
}

// signedMarkerValue reads a balance marker's value, negative when the bank
// flags the balance itself as a debit position.
func signedMarkerValue(entry model.RawStatementEntry) decimal.Decimal {
	v := entry.ValorLancamento.Abs()
	if strings.EqualFold(entry.IndicadorSinalLancamento, "D") {
		return v.Neg()
	}
	return v
}
