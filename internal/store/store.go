// Package store defines persistence interfaces for the core records and
// ships two backends: an in-memory store used by tests and library embedders,
// and a Postgres store for the service deployment.
package store

import (
	"errors"
	"time"

	"github.com/cleared-dev/fluxo/internal/model"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("record not found")

// TransactionStore persists canonical transactions.
type TransactionStore interface {
	CreateTransaction(txn *model.Transaction) error
	// ExternalIDs returns the set of known fingerprints for one
	// (user, wallet, source) scope. Used for dedup on re-import.
	ExternalIDs(userID, walletID string, source model.TransactionSource) (map[string]bool, error)
	GetTransaction(id string) (*model.Transaction, error)
	ListTransactions(userID, walletID string, start, end time.Time) ([]model.Transaction, error)
}

// InstallmentStore persists installments. Installments are never deleted.
type InstallmentStore interface {
	CreateInstallment(inst *model.Installment) error
	GetInstallment(id string) (*model.Installment, error)
	// GetInstallmentByExternalID looks up by the stable orderId+number key.
	GetInstallmentByExternalID(userID, walletID, externalID string) (*model.Installment, error)
	UpdateInstallment(inst *model.Installment) error
	// ListOpenInstallments returns PENDING and OVERDUE installments for one
	// user/wallet.
	ListOpenInstallments(userID, walletID string) ([]model.Installment, error)
	// ListPendingDueBefore returns every PENDING installment, across all
	// users, whose due date is strictly before the cutoff.
	ListPendingDueBefore(cutoff time.Time) ([]model.Installment, error)
	ListInstallments(userID, walletID string, status model.InstallmentStatus) ([]model.Installment, error)
}

// PredictionStore persists cash-flow predictions.
type PredictionStore interface {
	CreatePrediction(p *model.CashFlowPrediction) error
	GetPredictionByInstallment(installmentID string) (*model.CashFlowPrediction, error)
	UpdatePrediction(p *model.CashFlowPrediction) error
	// DeletePredictionByInstallment removes the live prediction for an
	// installment. Deleting an absent prediction is a no-op.
	DeletePredictionByInstallment(installmentID string) error
	ListPredictions(userID, walletID string, start, end time.Time) ([]model.CashFlowPrediction, error)
}

// Store bundles the three record stores behind one value.
type Store interface {
	TransactionStore
	InstallmentStore
	PredictionStore
}
