package reconcile

import (
	"errors"
	"io"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cleared-dev/fluxo/internal/cache"
	"github.com/cleared-dev/fluxo/internal/forecast"
	"github.com/cleared-dev/fluxo/internal/ledger"
	"github.com/cleared-dev/fluxo/internal/model"
	"github.com/cleared-dev/fluxo/internal/store"
)

func date(y, m, d int) time.Time {
	return time.Date(y, time.Month(m), d, 0, 0, 0, 0, time.UTC)
}

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func newMatcher(t *testing.T) (*Matcher, *ledger.Service, *store.Memory) {
	t.Helper()
	log := logrus.New()
	log.SetOutput(io.Discard)

	mem := store.NewMemory()
	forecaster := forecast.NewForecaster(mem, cache.Nop{}, forecast.DefaultParams(), log)
	svc := ledger.NewService(mem, forecaster, nil, log)
	return NewMatcher(mem, svc, nil, DefaultConfig(), log), svc, mem
}

func overdueInstallment(t *testing.T, svc *ledger.Service, orderID string, amount string, due time.Time) *model.Installment {
	t.Helper()
	inst, err := svc.CreateInstallment(ledger.CreateInstallmentParams{
		OrderID:           orderID,
		Description:       "Cliente X",
		Amount:            dec(amount),
		InstallmentNumber: 1,
		TotalInstallments: 1,
		DueDate:           due,
		Status:            model.StatusOverdue,
		UserID:            "u",
		WalletID:          "w",
	})
	require.NoError(t, err)
	return inst
}

func creditTxn(extID, amount string, day time.Time) model.Transaction {
	return model.Transaction{
		ID:          "txn-" + extID,
		ExternalID:  extID,
		Date:        day,
		Amount:      dec(amount),
		Direction:   model.DirectionCredit,
		Category:    model.CategoryPix,
		Description: "recebimento pix",
		Source:      model.SourceBankImport,
		UserID:      "u",
		WalletID:    "w",
	}
}

func TestRun_HighConfidenceSettlesInstallment(t *testing.T) {
	m, svc, mem := newMatcher(t)
	inst := overdueInstallment(t, svc, "ord-1", "500.00", date(2025, 1, 1))

	report, err := m.Run([]model.Transaction{creditTxn("stmt_a", "500.00", date(2025, 1, 12))}, "u", "w")
	require.NoError(t, err)

	assert.Equal(t, 1, report.Imported)
	require.Len(t, report.Applied, 1)
	assert.Equal(t, ConfidenceHigh, report.Applied[0].Confidence)
	assert.Equal(t, 11, report.Applied[0].DateDistance)

	got, err := svc.Get(inst.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusPaid, got.Status)
	assert.Equal(t, "txn-stmt_a", got.TransactionID)

	// Settling removes the cash-flow prediction.
	_, err = mem.GetPredictionByInstallment(inst.ID)
	assert.True(t, errors.Is(err, store.ErrNotFound))
}

func TestRun_RerunIsNoOp(t *testing.T) {
	m, svc, _ := newMatcher(t)
	inst := overdueInstallment(t, svc, "ord-1", "500.00", date(2025, 1, 1))
	batch := []model.Transaction{creditTxn("stmt_a", "500.00", date(2025, 1, 12))}

	_, err := m.Run(batch, "u", "w")
	require.NoError(t, err)

	report, err := m.Run(batch, "u", "w")
	require.NoError(t, err)
	assert.Equal(t, 0, report.Imported)
	assert.Equal(t, 1, report.Skipped)
	assert.Empty(t, report.Applied)

	got, err := svc.Get(inst.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusPaid, got.Status)
}

func TestRun_AmountOutsideToleranceNotMatched(t *testing.T) {
	m, svc, _ := newMatcher(t)
	inst := overdueInstallment(t, svc, "ord-1", "500.00", date(2025, 1, 1))

	report, err := m.Run([]model.Transaction{creditTxn("stmt_a", "499.00", date(2025, 1, 2))}, "u", "w")
	require.NoError(t, err)

	assert.Equal(t, 1, report.Imported)
	assert.Empty(t, report.Applied)
	assert.Empty(t, report.Suggestions)

	got, err := svc.Get(inst.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusOverdue, got.Status)
}

func TestRun_DateOutsideWindowNotMatched(t *testing.T) {
	m, svc, _ := newMatcher(t)
	overdueInstallment(t, svc, "ord-1", "500.00", date(2025, 1, 1))

	report, err := m.Run([]model.Transaction{creditTxn("stmt_a", "500.00", date(2025, 3, 15))}, "u", "w")
	require.NoError(t, err)
	assert.Empty(t, report.Applied)
	assert.Empty(t, report.Suggestions)
}

func TestRun_MediumConfidenceBecomesSuggestion(t *testing.T) {
	m, svc, _ := newMatcher(t)
	inst := overdueInstallment(t, svc, "ord-1", "500.00", date(2025, 1, 1))

	// 28 days out: amount matches but date proximity barely contributes.
	report, err := m.Run([]model.Transaction{creditTxn("stmt_a", "500.00", date(2025, 1, 29))}, "u", "w")
	require.NoError(t, err)

	assert.Empty(t, report.Applied)
	require.Len(t, report.Suggestions, 1)
	assert.Equal(t, ConfidenceMedium, report.Suggestions[0].Confidence)
	assert.Equal(t, inst.ID, report.Suggestions[0].Installment.ID)

	got, err := svc.Get(inst.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusOverdue, got.Status)
}

func TestRun_TieBreaksOnClosestDueDate(t *testing.T) {
	m, svc, _ := newMatcher(t)
	far := overdueInstallment(t, svc, "ord-1", "500.00", date(2025, 1, 1))
	near := overdueInstallment(t, svc, "ord-2", "500.00", date(2025, 1, 10))

	report, err := m.Run([]model.Transaction{creditTxn("stmt_a", "500.00", date(2025, 1, 12))}, "u", "w")
	require.NoError(t, err)

	require.Len(t, report.Applied, 1)
	assert.Equal(t, near.ID, report.Applied[0].Installment.ID)

	gotNear, err := svc.Get(near.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusPaid, gotNear.Status)

	gotFar, err := svc.Get(far.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusOverdue, gotFar.Status)
}

func TestRun_DebitsAreIgnored(t *testing.T) {
	m, svc, _ := newMatcher(t)
	inst := overdueInstallment(t, svc, "ord-1", "500.00", date(2025, 1, 1))

	txn := creditTxn("stmt_a", "-500.00", date(2025, 1, 2))
	txn.Direction = model.DirectionDebit

	report, err := m.Run([]model.Transaction{txn}, "u", "w")
	require.NoError(t, err)
	assert.Equal(t, 1, report.Imported)
	assert.Empty(t, report.Applied)

	got, err := svc.Get(inst.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusOverdue, got.Status)
}

func TestRun_AppliedInstallmentNotReused(t *testing.T) {
	m, svc, _ := newMatcher(t)
	inst := overdueInstallment(t, svc, "ord-1", "500.00", date(2025, 1, 1))

	report, err := m.Run([]model.Transaction{
		creditTxn("stmt_a", "500.00", date(2025, 1, 2)),
		creditTxn("stmt_b", "500.00", date(2025, 1, 3)),
	}, "u", "w")
	require.NoError(t, err)

	require.Len(t, report.Applied, 1)
	assert.Equal(t, inst.ID, report.Applied[0].Installment.ID)
	assert.Equal(t, "txn-stmt_a", report.Applied[0].Transaction.ID)
}

// failingTxnStore rejects one specific fingerprint to exercise per-item
// failure handling.
type failingTxnStore struct {
	*store.Memory
	rejectExternalID string
}

func (f *failingTxnStore) CreateTransaction(txn *model.Transaction) error {
	if txn.ExternalID == f.rejectExternalID {
		return errors.New("storage unavailable")
	}
	return f.Memory.CreateTransaction(txn)
}

func TestRun_PersistFailureDoesNotAbortBatch(t *testing.T) {
	log := logrus.New()
	log.SetOutput(io.Discard)

	mem := store.NewMemory()
	forecaster := forecast.NewForecaster(mem, cache.Nop{}, forecast.DefaultParams(), log)
	svc := ledger.NewService(mem, forecaster, nil, log)
	txns := &failingTxnStore{Memory: mem, rejectExternalID: "stmt_bad"}
	m := NewMatcher(txns, svc, nil, DefaultConfig(), log)

	inst := overdueInstallment(t, svc, "ord-1", "500.00", date(2025, 1, 1))

	report, err := m.Run([]model.Transaction{
		creditTxn("stmt_bad", "120.00", date(2025, 1, 2)),
		creditTxn("stmt_ok", "500.00", date(2025, 1, 2)),
	}, "u", "w")
	require.NoError(t, err)

	assert.Equal(t, 1, report.Imported)
	require.Len(t, report.Failed, 1)
	assert.Equal(t, "stmt_bad", report.Failed[0].ExternalID)

	// The surviving transaction still went through matching.
	require.Len(t, report.Applied, 1)
	got, err := svc.Get(inst.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusPaid, got.Status)
}

func TestRematch_MatchesStoredTransactions(t *testing.T) {
	m, svc, mem := newMatcher(t)

	// Transaction landed before its installment existed.
	txn := creditTxn("stmt_a", "500.00", date(2025, 1, 12))
	require.NoError(t, mem.CreateTransaction(&txn))

	inst := overdueInstallment(t, svc, "ord-1", "500.00", date(2025, 1, 1))

	report, err := m.Rematch("u", "w", date(2025, 1, 1), date(2025, 1, 31))
	require.NoError(t, err)
	require.Len(t, report.Applied, 1)

	got, err := svc.Get(inst.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusPaid, got.Status)
	assert.Equal(t, txn.ID, got.TransactionID)

	// A second pass finds nothing left to match.
	report, err = m.Rematch("u", "w", date(2025, 1, 1), date(2025, 1, 31))
	require.NoError(t, err)
	assert.Empty(t, report.Applied)
	assert.Empty(t, report.Suggestions)
}

func TestBucket(t *testing.T) {
	m, _, _ := newMatcher(t)

	assert.Equal(t, ConfidenceHigh, m.bucket(0.9))
	assert.Equal(t, ConfidenceHigh, m.bucket(0.8))
	assert.Equal(t, ConfidenceMedium, m.bucket(0.7))
	assert.Equal(t, ConfidenceLow, m.bucket(0.4))
}

func TestTextSimilarity(t *testing.T) {
	assert.Equal(t, 1.0, textSimilarity("pagamento cliente", "Cliente Pagamento Ltda"))
	assert.Equal(t, 0.0, textSimilarity("tarifa bancaria", "venda loja centro"))
	assert.Equal(t, 0.0, textSimilarity("", "qualquer coisa"))
}
