package store

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/cleared-dev/fluxo/internal/model"
)

// Memory is an in-memory Store. It is the default backend for tests and for
// embedding the core as a library. Safe for concurrent use; the serve command
// shares one instance between HTTP handlers and the sweep goroutine.
type Memory struct {
	mu sync.RWMutex

	transactions map[string]model.Transaction
	installments map[string]model.Installment
	predictions  map[string]model.CashFlowPrediction // keyed by prediction ID

	txnOrder  []string
	instOrder []string
}

var _ Store = (*Memory)(nil)

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		transactions: make(map[string]model.Transaction),
		installments: make(map[string]model.Installment),
		predictions:  make(map[string]model.CashFlowPrediction),
	}
}

// CreateTransaction stores a transaction. The fingerprint must be unique per
// (user, wallet, source).
func (m *Memory) CreateTransaction(txn *model.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, existing := range m.transactions {
		if existing.UserID == txn.UserID &&
			existing.WalletID == txn.WalletID &&
			existing.Source == txn.Source &&
			existing.ExternalID == txn.ExternalID {
			return fmt.Errorf("transaction with externalId %s already exists", txn.ExternalID)
		}
	}
	m.transactions[txn.ID] = *txn
	m.txnOrder = append(m.txnOrder, txn.ID)
	return nil
}

func (m *Memory) ExternalIDs(userID, walletID string, source model.TransactionSource) (map[string]bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := make(map[string]bool)
	for _, txn := range m.transactions {
		if txn.UserID == userID && txn.WalletID == walletID && txn.Source == source {
			ids[txn.ExternalID] = true
		}
	}
	return ids, nil
}

func (m *Memory) GetTransaction(id string) (*model.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	txn, ok := m.transactions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &txn, nil
}

func (m *Memory) ListTransactions(userID, walletID string, start, end time.Time) ([]model.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []model.Transaction
	for _, tid := range m.txnOrder {
		txn := m.transactions[tid]
		if txn.UserID != userID || txn.WalletID != walletID {
			continue
		}
		if txn.Date.Before(start) || txn.Date.After(end) {
			continue
		}
		out = append(out, txn)
	}
	return out, nil
}

func (m *Memory) CreateInstallment(inst *model.Installment) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.installments[inst.ID]; exists {
		return fmt.Errorf("installment %s already exists", inst.ID)
	}
	m.installments[inst.ID] = *inst
	m.instOrder = append(m.instOrder, inst.ID)
	return nil
}

func (m *Memory) GetInstallment(id string) (*model.Installment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	inst, ok := m.installments[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &inst, nil
}

func (m *Memory) GetInstallmentByExternalID(userID, walletID, externalID string) (*model.Installment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, iid := range m.instOrder {
		inst := m.installments[iid]
		if inst.UserID == userID && inst.WalletID == walletID && inst.ExternalID == externalID {
			return &inst, nil
		}
	}
	return nil, ErrNotFound
}

func (m *Memory) UpdateInstallment(inst *model.Installment) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.installments[inst.ID]; !ok {
		return ErrNotFound
	}
	m.installments[inst.ID] = *inst
	return nil
}

func (m *Memory) ListOpenInstallments(userID, walletID string) ([]model.Installment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []model.Installment
	for _, iid := range m.instOrder {
		inst := m.installments[iid]
		if inst.UserID == userID && inst.WalletID == walletID && !inst.Status.Terminal() {
			out = append(out, inst)
		}
	}
	return out, nil
}

func (m *Memory) ListPendingDueBefore(cutoff time.Time) ([]model.Installment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []model.Installment
	for _, iid := range m.instOrder {
		inst := m.installments[iid]
		if inst.Status == model.StatusPending && inst.DueDate.Before(cutoff) {
			out = append(out, inst)
		}
	}
	return out, nil
}

func (m *Memory) ListInstallments(userID, walletID string, status model.InstallmentStatus) ([]model.Installment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []model.Installment
	for _, iid := range m.instOrder {
		inst := m.installments[iid]
		if inst.UserID != userID || inst.WalletID != walletID {
			continue
		}
		if status != "" && inst.Status != status {
			continue
		}
		out = append(out, inst)
	}
	return out, nil
}

// CreatePrediction stores a prediction, enforcing the one-live-prediction-per
// -installment invariant.
func (m *Memory) CreatePrediction(p *model.CashFlowPrediction) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if p.InstallmentID != "" {
		for _, existing := range m.predictions {
			if existing.InstallmentID == p.InstallmentID {
				return fmt.Errorf("prediction for installment %s already exists", p.InstallmentID)
			}
		}
	}
	m.predictions[p.ID] = *p
	return nil
}

func (m *Memory) GetPredictionByInstallment(installmentID string) (*model.CashFlowPrediction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, p := range m.predictions {
		if p.InstallmentID == installmentID {
			pred := p
			return &pred, nil
		}
	}
	return nil, ErrNotFound
}

func (m *Memory) UpdatePrediction(p *model.CashFlowPrediction) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.predictions[p.ID]; !ok {
		return ErrNotFound
	}
	m.predictions[p.ID] = *p
	return nil
}

func (m *Memory) DeletePredictionByInstallment(installmentID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for pid, p := range m.predictions {
		if p.InstallmentID == installmentID {
			delete(m.predictions, pid)
		}
	}
	return nil
}

func (m *Memory) ListPredictions(userID, walletID string, start, end time.Time) ([]model.CashFlowPrediction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []model.CashFlowPrediction
	for _, p := range m.predictions {
		if p.UserID != userID {
			continue
		}
		if walletID != "" && p.WalletID != walletID {
			continue
		}
		if p.Date.Before(start) || p.Date.After(end) {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}
