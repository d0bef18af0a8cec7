// Package ledger owns the installment lifecycle: creation, status
// transitions, sale imports and the overdue sweep. Every mutation goes
// through the transition table; terminal installments are frozen.
package ledger

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/cleared-dev/fluxo/internal/audit"
	"github.com/cleared-dev/fluxo/internal/forecast"
	"github.com/cleared-dev/fluxo/internal/id"
	"github.com/cleared-dev/fluxo/internal/model"
	"github.com/cleared-dev/fluxo/internal/store"
)

// IllegalTransitionError rejects a status change outside the legal table.
// The installment is left unchanged.
type IllegalTransitionError struct {
	InstallmentID string
	From          model.InstallmentStatus
	To            model.InstallmentStatus
}

func (e IllegalTransitionError) Error() string {
	return fmt.Sprintf("installment %s: illegal transition %s -> %s", e.InstallmentID, e.From, e.To)
}

// ValidationError rejects an item with missing required fields.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Service provides installment lifecycle operations.
type Service struct {
	installments store.InstallmentStore
	forecaster   *forecast.Forecaster
	auditLog     *audit.Log
	log          *logrus.Logger

	// Now is swappable for tests.
	Now func() time.Time
}

// NewService creates a ledger Service. auditLog may be nil to disable the
// audit trail.
func NewService(installments store.InstallmentStore, forecaster *forecast.Forecaster, auditLog *audit.Log, log *logrus.Logger) *Service {
	return &Service{
		installments: installments,
		forecaster:   forecaster,
		auditLog:     auditLog,
		log:          log,
		Now:          time.Now,
	}
}

// CreateInstallmentParams holds parameters for creating an installment.
type CreateInstallmentParams struct {
	OrderID           string
	Description       string
	Amount            decimal.Decimal
	InstallmentNumber int
	TotalInstallments int
	DueDate           time.Time
	PaymentMethod     string
	Status            model.InstallmentStatus // empty means PENDING
	UserID            string
	WalletID          string
}

// CreateInstallment inserts a new installment and, when it lands in a
// non-terminal state, asks the forecaster to create its prediction.
func (s *Service) CreateInstallment(params CreateInstallmentParams) (*model.Installment, error) {
	if params.OrderID == "" {
		return nil, ValidationError{Field: "orderId", Message: "required"}
	}
	if params.InstallmentNumber <= 0 {
		return nil, ValidationError{Field: "installmentNumber", Message: "must be positive"}
	}
	if !params.Amount.IsPositive() {
		return nil, ValidationError{Field: "amount", Message: "must be positive"}
	}
	if params.DueDate.IsZero() {
		return nil, ValidationError{Field: "dueDate", Message: "required"}
	}

	status := params.Status
	if status == "" {
		status = model.StatusPending
	}

	now := s.Now().UTC()
	inst := &model.Installment{
		ID:                id.New(),
		OrderID:           params.OrderID,
		Description:       params.Description,
		Amount:            params.Amount,
		InstallmentNumber: params.InstallmentNumber,
		TotalInstallments: params.TotalInstallments,
		DueDate:           params.DueDate,
		PaymentMethod:     params.PaymentMethod,
		Status:            status,
		ExternalID:        id.InstallmentKey(params.OrderID, params.InstallmentNumber),
		UserID:            params.UserID,
		WalletID:          params.WalletID,
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	if err := s.installments.CreateInstallment(inst); err != nil {
		return nil, fmt.Errorf("creating installment: %w", err)
	}

	if !status.Terminal() {
		if err := s.forecaster.EnsureForInstallment(inst); err != nil {
			return nil, err
		}
	}

	s.log.WithFields(logrus.Fields{
		"installment": inst.ID,
		"order":       inst.OrderID,
		"status":      inst.Status,
	}).Debug("installment created")
	return inst, nil
}

// UpdateStatus validates and applies a status transition. Reaching a terminal
// status deletes the prediction; entering OVERDUE recomputes its probability.
// transactionID, when non-empty, links the settling bank transaction.
func (s *Service) UpdateStatus(installmentID string, newStatus model.InstallmentStatus, transactionID string) (*model.Installment, error) {
	inst, err := s.installments.GetInstallment(installmentID)
	if err != nil {
		return nil, fmt.Errorf("loading installment %s: %w", installmentID, err)
	}
	return s.transition(inst, newStatus, transactionID)
}

// transition applies a validated status change to an already-loaded
// installment.
func (s *Service) transition(inst *model.Installment, newStatus model.InstallmentStatus, transactionID string) (*model.Installment, error) {
	if !inst.Status.CanTransition(newStatus) {
		return nil, IllegalTransitionError{InstallmentID: inst.ID, From: inst.Status, To: newStatus}
	}

	from := inst.Status
	inst.Status = newStatus
	if transactionID != "" {
		inst.TransactionID = transactionID
	}
	inst.UpdatedAt = s.Now().UTC()

	if err := s.installments.UpdateInstallment(inst); err != nil {
		return nil, fmt.Errorf("updating installment %s: %w", inst.ID, err)
	}

	if newStatus.Terminal() {
		if err := s.forecaster.DeleteForInstallment(inst.ID); err != nil {
			return nil, err
		}
	} else if newStatus == model.StatusOverdue {
		if err := s.forecaster.Recalculate(inst); err != nil {
			return nil, err
		}
	}

	if err := s.auditLog.Record(audit.Entry{
		Timestamp:     inst.UpdatedAt,
		Action:        "transition",
		Details:       fmt.Sprintf("%s -> %s", from, newStatus),
		InstallmentID: inst.ID,
		TransactionID: transactionID,
	}); err != nil {
		s.log.Warnf("audit log write failed: %v", err)
	}

	return inst, nil
}

// ImportError reports one failed item of a sale import.
type ImportError struct {
	OrderID string `json:"orderId"`
	Message string `json:"message"`
}

// ImportResult is the structured outcome of a sale import. One bad item never
// aborts the batch.
type ImportResult struct {
	Imported int           `json:"imported"`
	Updated  int           `json:"updated"`
	Skipped  int           `json:"skipped"`
	Errors   []ImportError `json:"errors"`
}

// ImportFromSale decomposes a sale's installment breakdown and upserts each
// slice by its stable (orderId, installmentNumber) key. Existing installments
// are reconciled when the external status changed; re-importing an identical
// sale is a no-op.
func (s *Service) ImportFromSale(sale model.Sale, userID, walletID string) ImportResult {
	var res ImportResult

	orderID := sale.ID
	if orderID == "" {
		orderID = sale.Code
	}
	if orderID == "" {
		res.Errors = append(res.Errors, ImportError{Message: "sale has no id"})
		return res
	}

	total := len(sale.Installments)
	for _, parcela := range sale.Installments {
		if err := s.upsertSaleInstallment(sale, parcela, orderID, total, userID, walletID, &res); err != nil {
			res.Errors = append(res.Errors, ImportError{OrderID: orderID, Message: err.Error()})
		}
	}

	s.log.WithFields(logrus.Fields{
		"order":    orderID,
		"imported": res.Imported,
		"updated":  res.Updated,
		"skipped":  res.Skipped,
		"errors":   len(res.Errors),
	}).Info("sale import finished")
	return res
}

func (s *Service) upsertSaleInstallment(sale model.Sale, parcela model.SaleInstallment, orderID string, total int, userID, walletID string, res *ImportResult) error {
	if parcela.Number <= 0 {
		return ValidationError{Field: "numero", Message: "must be positive"}
	}
	if !parcela.Amount.IsPositive() {
		return ValidationError{Field: "valor", Message: "must be positive"}
	}
	if parcela.DueDate.IsZero() {
		return ValidationError{Field: "data_vencimento", Message: "required"}
	}

	status := MapExternalStatus(parcela.RawStatus)
	key := id.InstallmentKey(orderID, parcela.Number)

	existing, err := s.installments.GetInstallmentByExternalID(userID, walletID, key)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("looking up installment %s: %w", key, err)
	}

	if existing == nil {
		_, err := s.CreateInstallment(CreateInstallmentParams{
			OrderID:           orderID,
			Description:       saleDescription(sale, parcela, total),
			Amount:            parcela.Amount,
			InstallmentNumber: parcela.Number,
			TotalInstallments: total,
			DueDate:           parcela.DueDate,
			PaymentMethod:     sale.PaymentMethod,
			Status:            status,
			UserID:            userID,
			WalletID:          walletID,
		})
		if err != nil {
			return err
		}
		res.Imported++
		return nil
	}

	if existing.Status == status {
		res.Skipped++
		return nil
	}

	if _, err := s.transition(existing, status, ""); err != nil {
		return err
	}
	res.Updated++
	return nil
}

func saleDescription(sale model.Sale, parcela model.SaleInstallment, total int) string {
	desc := sale.Customer
	if desc == "" {
		desc = "Venda " + sale.Code
	}
	return fmt.Sprintf("%s (%d/%d)", desc, parcela.Number, total)
}

// SweepOverdue transitions every PENDING installment past its due date to
// OVERDUE and returns how many changed. Item failures are logged and the
// sweep continues; an external scheduler invokes this at least daily.
func (s *Service) SweepOverdue(now time.Time) (int, error) {
	due, err := s.installments.ListPendingDueBefore(now)
	if err != nil {
		return 0, fmt.Errorf("listing pending installments: %w", err)
	}

	updated := 0
	for i := range due {
		inst := due[i]
		if _, err := s.transition(&inst, model.StatusOverdue, ""); err != nil {
			s.log.WithField("installment", inst.ID).Warnf("sweep failed: %v", err)
			continue
		}
		updated++
	}

	if updated > 0 {
		s.log.WithField("updated", updated).Info("overdue sweep finished")
	}
	return updated, nil
}

// Get returns an installment by id.
func (s *Service) Get(installmentID string) (*model.Installment, error) {
	return s.installments.GetInstallment(installmentID)
}

// ListOpen returns the PENDING and OVERDUE installments for one user/wallet.
func (s *Service) ListOpen(userID, walletID string) ([]model.Installment, error) {
	return s.installments.ListOpenInstallments(userID, walletID)
}

// List returns installments for one user/wallet, optionally filtered by
// status.
func (s *Service) List(userID, walletID string, status model.InstallmentStatus) ([]model.Installment, error) {
	return s.installments.ListInstallments(userID, walletID, status)
}
