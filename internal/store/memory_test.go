package store

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cleared-dev/fluxo/internal/model"
)

func date(y, m, d int) time.Time {
	return time.Date(y, time.Month(m), d, 0, 0, 0, 0, time.UTC)
}

func TestMemory_TransactionDuplicateFingerprint(t *testing.T) {
	m := NewMemory()

	txn := model.Transaction{
		ID: "t1", ExternalID: "fp1", UserID: "u", WalletID: "w",
		Source: model.SourceBankImport, Date: date(2025, 1, 10),
		Amount: decimal.NewFromInt(100),
	}
	require.NoError(t, m.CreateTransaction(&txn))

	dup := txn
	dup.ID = "t2"
	assert.Error(t, m.CreateTransaction(&dup))

	// Same fingerprint, different source: allowed.
	other := txn
	other.ID = "t3"
	other.Source = model.SourceManual
	assert.NoError(t, m.CreateTransaction(&other))
}

func TestMemory_ExternalIDs(t *testing.T) {
	m := NewMemory()
	require.NoError(t, m.CreateTransaction(&model.Transaction{
		ID: "t1", ExternalID: "fp1", UserID: "u", WalletID: "w", Source: model.SourceBankImport,
	}))
	require.NoError(t, m.CreateTransaction(&model.Transaction{
		ID: "t2", ExternalID: "fp2", UserID: "u", WalletID: "other", Source: model.SourceBankImport,
	}))

	ids, err := m.ExternalIDs("u", "w", model.SourceBankImport)
	require.NoError(t, err)
	assert.True(t, ids["fp1"])
	assert.False(t, ids["fp2"], "other wallet must not leak in")
}

func TestMemory_InstallmentLookupByExternalID(t *testing.T) {
	m := NewMemory()
	inst := model.Installment{
		ID: "i1", OrderID: "ord-1", ExternalID: "ord_ord-1_001",
		UserID: "u", WalletID: "w", Status: model.StatusPending,
		DueDate: date(2025, 2, 1),
	}
	require.NoError(t, m.CreateInstallment(&inst))

	got, err := m.GetInstallmentByExternalID("u", "w", "ord_ord-1_001")
	require.NoError(t, err)
	assert.Equal(t, "i1", got.ID)

	_, err = m.GetInstallmentByExternalID("u", "w", "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemory_ListOpenInstallments(t *testing.T) {
	m := NewMemory()
	for _, inst := range []model.Installment{
		{ID: "i1", UserID: "u", WalletID: "w", Status: model.StatusPending},
		{ID: "i2", UserID: "u", WalletID: "w", Status: model.StatusOverdue},
		{ID: "i3", UserID: "u", WalletID: "w", Status: model.StatusPaid},
		{ID: "i4", UserID: "u", WalletID: "w", Status: model.StatusCanceled},
	} {
		i := inst
		require.NoError(t, m.CreateInstallment(&i))
	}

	open, err := m.ListOpenInstallments("u", "w")
	require.NoError(t, err)
	assert.Len(t, open, 2)
}

func TestMemory_ListPendingDueBefore(t *testing.T) {
	m := NewMemory()
	for _, inst := range []model.Installment{
		{ID: "i1", UserID: "u", WalletID: "w", Status: model.StatusPending, DueDate: date(2025, 1, 1)},
		{ID: "i2", UserID: "u2", WalletID: "w", Status: model.StatusPending, DueDate: date(2025, 3, 1)},
		{ID: "i3", UserID: "u", WalletID: "w", Status: model.StatusOverdue, DueDate: date(2025, 1, 1)},
	} {
		i := inst
		require.NoError(t, m.CreateInstallment(&i))
	}

	due, err := m.ListPendingDueBefore(date(2025, 2, 1))
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, "i1", due[0].ID)
}

func TestMemory_PredictionUniquePerInstallment(t *testing.T) {
	m := NewMemory()
	require.NoError(t, m.CreatePrediction(&model.CashFlowPrediction{
		ID: "p1", InstallmentID: "i1", UserID: "u",
	}))
	assert.Error(t, m.CreatePrediction(&model.CashFlowPrediction{
		ID: "p2", InstallmentID: "i1", UserID: "u",
	}))
}

func TestMemory_DeletePredictionIdempotent(t *testing.T) {
	m := NewMemory()
	require.NoError(t, m.CreatePrediction(&model.CashFlowPrediction{
		ID: "p1", InstallmentID: "i1", UserID: "u",
	}))

	require.NoError(t, m.DeletePredictionByInstallment("i1"))
	require.NoError(t, m.DeletePredictionByInstallment("i1"), "second delete is a no-op")

	_, err := m.GetPredictionByInstallment("i1")
	assert.ErrorIs(t, err, ErrNotFound)
}

// The serve command shares one Memory between HTTP handlers and the sweep
// goroutine, so writes and reads must be safe to interleave. Run with -race.
func TestMemory_ConcurrentAccess(t *testing.T) {
	m := NewMemory()

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				txn := model.Transaction{
					ID:         fmt.Sprintf("t-%d-%d", g, i),
					ExternalID: fmt.Sprintf("fp-%d-%d", g, i),
					UserID:     "u", WalletID: "w",
					Source: model.SourceBankImport,
					Date:   date(2025, 1, 10),
				}
				require.NoError(t, m.CreateTransaction(&txn))

				inst := model.Installment{
					ID:     fmt.Sprintf("i-%d-%d", g, i),
					UserID: "u", WalletID: "w",
					Status:  model.StatusPending,
					DueDate: date(2025, 1, 1),
				}
				require.NoError(t, m.CreateInstallment(&inst))

				_, err := m.ListTransactions("u", "w", date(2025, 1, 1), date(2025, 1, 31))
				require.NoError(t, err)
				_, err = m.ListPendingDueBefore(date(2025, 2, 1))
				require.NoError(t, err)
				_, err = m.ExternalIDs("u", "w", model.SourceBankImport)
				require.NoError(t, err)
			}
		}(g)
	}
	wg.Wait()

	txns, err := m.ListTransactions("u", "w", date(2025, 1, 1), date(2025, 1, 31))
	require.NoError(t, err)
	assert.Len(t, txns, 8*50)
}

func TestMemory_ListPredictionsWindow(t *testing.T) {
	m := NewMemory()
	for _, p := range []model.CashFlowPrediction{
		{ID: "p1", UserID: "u", WalletID: "w", Date: date(2025, 1, 10), InstallmentID: "i1"},
		{ID: "p2", UserID: "u", WalletID: "w", Date: date(2025, 2, 10), InstallmentID: "i2"},
		{ID: "p3", UserID: "u", WalletID: "x", Date: date(2025, 1, 15), InstallmentID: "i3"},
	} {
		pred := p
		require.NoError(t, m.CreatePrediction(&pred))
	}

	// Wallet-scoped.
	preds, err := m.ListPredictions("u", "w", date(2025, 1, 1), date(2025, 1, 31))
	require.NoError(t, err)
	require.Len(t, preds, 1)
	assert.Equal(t, "p1", preds[0].ID)

	// All wallets, ordered by date.
	preds, err = m.ListPredictions("u", "", date(2025, 1, 1), date(2025, 3, 1))
	require.NoError(t, err)
	require.Len(t, preds, 3)
	assert.Equal(t, "p1", preds[0].ID)
	assert.Equal(t, "p3", preds[1].ID)
}
