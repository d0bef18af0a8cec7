package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// InstallmentStatus represents the lifecycle state of an installment.
type InstallmentStatus string

const (
	StatusPending  InstallmentStatus = "PENDING"
	StatusOverdue  InstallmentStatus = "OVERDUE"
	StatusPaid     InstallmentStatus = "PAID"
	StatusCanceled InstallmentStatus = "CANCELED"
)

// Terminal reports whether the status is final. Terminal installments never
// transition again.
func (s InstallmentStatus) Terminal() bool {
	return s == StatusPaid || s == StatusCanceled
}

// legalTransitions is the full transition table. Anything absent is illegal.
var legalTransitions = map[InstallmentStatus][]InstallmentStatus{
	StatusPending: {StatusOverdue, StatusPaid, StatusCanceled},
	StatusOverdue: {StatusPaid, StatusCanceled},
}

// CanTransition reports whether from → to is a legal status change.
func (s InstallmentStatus) CanTransition(to InstallmentStatus) bool {
	for _, t := range legalTransitions[s] {
		if t == to {
			return true
		}
	}
	return false
}

// Installment is one scheduled receivable slice of a multi-part sale.
// Never deleted; mutated only via status transitions.
type Installment struct {
	ID                string
	OrderID           string
	Description       string
	Amount            decimal.Decimal
	InstallmentNumber int
	TotalInstallments int
	DueDate           time.Time
	PaymentMethod     string
	Status            InstallmentStatus
	ExternalID        string
	UserID            string
	WalletID          string
	TransactionID     string // set when a bank transaction settles it
	CreatedAt         time.Time
	UpdatedAt         time.Time
}
