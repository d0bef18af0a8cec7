package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// PredictionType tells whether a prediction is money coming in or going out.
type PredictionType string

const (
	PredictionIncome  PredictionType = "INCOME"
	PredictionExpense PredictionType = "EXPENSE"
)

// PredictionSource identifies what produced a prediction.
type PredictionSource string

const (
	PredictionFromInstallment PredictionSource = "INSTALLMENT"
	PredictionFromRecurring   PredictionSource = "RECURRING"
	PredictionManual          PredictionSource = "MANUAL"
)

// CashFlowPrediction is a forecasted future cash movement carrying a
// realization probability in [0.1, 1.0]. At most one live prediction exists
// per installment.
type CashFlowPrediction struct {
	ID            string
	UserID        string
	WalletID      string
	Amount        decimal.Decimal
	Type          PredictionType
	Date          time.Time
	Description   string
	Category      Category
	Source        PredictionSource
	Probability   float64
	InstallmentID string // empty for non-installment predictions
	Metadata      map[string]string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}
