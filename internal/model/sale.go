package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Sale is a read-only sales record from the external ERP, already reduced to
// a closed shape by the erp adapter.
type Sale struct {
	ID            string
	Code          string
	Date          time.Time
	TotalAmount   decimal.Decimal
	Customer      string
	Store         string
	PaymentMethod string
	Installments  []SaleInstallment
}

// SaleInstallment is one slice of a sale's installment breakdown as reported
// by the ERP. RawStatus is free text and must be mapped to the closed
// InstallmentStatus enum before touching the ledger.
type SaleInstallment struct {
	Number    int
	Amount    decimal.Decimal
	DueDate   time.Time
	RawStatus string
}
