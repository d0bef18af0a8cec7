// Package forecast maintains cash-flow predictions for open installments.
// The invariant: at most one live prediction per installment, probability in
// [floor, 1.0], deleted the moment the installment reaches a terminal state.
package forecast

import (
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/cleared-dev/fluxo/internal/cache"
	"github.com/cleared-dev/fluxo/internal/id"
	"github.com/cleared-dev/fluxo/internal/model"
	"github.com/cleared-dev/fluxo/internal/store"
)

// Params tune the lateness decay. The literal values come from the product;
// they are configuration, not re-derivable constants.
type Params struct {
	DecayPerDay      float64 // probability lost per day overdue
	ProbabilityFloor float64 // residual recovery chance, never undercut
}

// DefaultParams returns the stock decay parameters.
func DefaultParams() Params {
	return Params{DecayPerDay: 0.05, ProbabilityFloor: 0.1}
}

// Forecaster keeps predictions in step with installment state.
type Forecaster struct {
	predictions store.PredictionStore
	cache       cache.Cache
	params      Params
	log         *logrus.Logger

	// Now is swappable for tests.
	Now func() time.Time
}

// NewForecaster creates a Forecaster.
func NewForecaster(predictions store.PredictionStore, c cache.Cache, params Params, log *logrus.Logger) *Forecaster {
	return &Forecaster{
		predictions: predictions,
		cache:       c,
		params:      params,
		log:         log,
		Now:         time.Now,
	}
}

// Probability returns the realization probability for an installment in the
// given status. PENDING is certain; OVERDUE decays per day late but never
// below the floor.
func (f *Forecaster) Probability(status model.InstallmentStatus, dueDate, now time.Time) float64 {
	switch status {
	case model.StatusPending:
		return 1.0
	case model.StatusOverdue:
		days := daysOverdue(dueDate, now)
		p := 1.0 - f.params.DecayPerDay*float64(days)
		if p < f.params.ProbabilityFloor {
			return f.params.ProbabilityFloor
		}
		if p > 1.0 {
			return 1.0
		}
		return p
	default:
		return 0
	}
}

// EnsureForInstallment creates the prediction for a non-terminal installment,
// or refreshes the existing one. It never produces a second live prediction
// for the same installment.
func (f *Forecaster) EnsureForInstallment(inst *model.Installment) error {
	if inst.Status.Terminal() {
		return f.DeleteForInstallment(inst.ID)
	}

	now := f.Now().UTC()
	existing, err := f.predictions.GetPredictionByInstallment(inst.ID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("looking up prediction for installment %s: %w", inst.ID, err)
	}
	if existing != nil {
		return f.refresh(existing, inst, now)
	}

	pred := &model.CashFlowPrediction{
		ID:            id.New(),
		UserID:        inst.UserID,
		WalletID:      inst.WalletID,
		Amount:        inst.Amount,
		Type:          model.PredictionIncome,
		Date:          inst.DueDate,
		Description:   inst.Description,
		Category:      model.CategorySale,
		Source:        model.PredictionFromInstallment,
		Probability:   f.Probability(inst.Status, inst.DueDate, now),
		InstallmentID: inst.ID,
		Metadata: map[string]string{
			"order_id":    inst.OrderID,
			"installment": fmt.Sprintf("%d/%d", inst.InstallmentNumber, inst.TotalInstallments),
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := f.predictions.CreatePrediction(pred); err != nil {
		return fmt.Errorf("creating prediction for installment %s: %w", inst.ID, err)
	}
	f.invalidate(inst.UserID, inst.WalletID)
	return nil
}

// Recalculate refreshes the prediction of an installment after any mutation.
// Terminal installments get their prediction removed instead.
func (f *Forecaster) Recalculate(inst *model.Installment) error {
	if inst.Status.Terminal() {
		return f.DeleteForInstallment(inst.ID)
	}

	existing, err := f.predictions.GetPredictionByInstallment(inst.ID)
	if errors.Is(err, store.ErrNotFound) {
		return f.EnsureForInstallment(inst)
	}
	if err != nil {
		return fmt.Errorf("looking up prediction for installment %s: %w", inst.ID, err)
	}
	return f.refresh(existing, inst, f.Now().UTC())
}

func (f *Forecaster) refresh(pred *model.CashFlowPrediction, inst *model.Installment, now time.Time) error {
	pred.Amount = inst.Amount
	pred.Date = inst.DueDate
	pred.Probability = f.Probability(inst.Status, inst.DueDate, now)
	pred.UpdatedAt = now
	if err := f.predictions.UpdatePrediction(pred); err != nil {
		return fmt.Errorf("updating prediction for installment %s: %w", inst.ID, err)
	}
	f.invalidate(inst.UserID, inst.WalletID)
	return nil
}

// DeleteForInstallment removes the live prediction of an installment.
// Idempotent: deleting an absent prediction is a no-op.
func (f *Forecaster) DeleteForInstallment(installmentID string) error {
	existing, err := f.predictions.GetPredictionByInstallment(installmentID)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("looking up prediction for installment %s: %w", installmentID, err)
	}

	if err := f.predictions.DeletePredictionByInstallment(installmentID); err != nil {
		return fmt.Errorf("deleting prediction for installment %s: %w", installmentID, err)
	}
	f.invalidate(existing.UserID, existing.WalletID)
	return nil
}

// Generate returns predictions for a user inside a date window, optionally
// scoped to one wallet. This is a pure read: correctness depends on the
// maintenance invariant, not on recomputation here.
func (f *Forecaster) Generate(userID string, start, end time.Time, walletID string) ([]model.CashFlowPrediction, error) {
	key := f.windowKey(userID, walletID, start, end)
	if cached, ok := f.cache.Get(key); ok {
		if preds, ok := cached.([]model.CashFlowPrediction); ok {
			return preds, nil
		}
	}

	preds, err := f.predictions.ListPredictions(userID, walletID, start, end)
	if err != nil {
		return nil, fmt.Errorf("listing predictions: %w", err)
	}
	f.cache.Set(key, preds, 5*time.Minute)
	return preds, nil
}

// invalidate bumps the cache generation for one user/wallet, orphaning every
// cached window for that scope. The all-wallet scope is bumped as well since
// it spans the mutated wallet.
func (f *Forecaster) invalidate(userID, walletID string) {
	f.bumpGeneration(userID, walletID)
	if walletID != "" {
		f.bumpGeneration(userID, "")
	}
}

func (f *Forecaster) bumpGeneration(userID, walletID string) {
	genKey := "cashflow:gen:" + userID + ":" + walletID
	gen := 0
	if v, ok := f.cache.Get(genKey); ok {
		if n, ok := v.(int); ok {
			gen = n
		}
	}
	f.cache.Set(genKey, gen+1, 0)
}

func (f *Forecaster) windowKey(userID, walletID string, start, end time.Time) string {
	genKey := "cashflow:gen:" + userID + ":" + walletID
	gen := 0
	if v, ok := f.cache.Get(genKey); ok {
		if n, ok := v.(int); ok {
			gen = n
		}
	}
	return fmt.Sprintf("cashflow:%s:%s:%d:%s:%s",
		userID, walletID, gen, start.Format("20060102"), end.Format("20060102"))
}

// daysOverdue is whole days elapsed since the due date, floored, never
// negative.
func daysOverdue(dueDate, now time.Time) int {
	days := int(now.Sub(dueDate).Hours() / 24)
	if days < 0 {
		return 0
	}
	return days
}
