package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Direction tells which side of the account a transaction moved.
type Direction string

const (
	DirectionCredit Direction = "credit"
	DirectionDebit  Direction = "debit"
)

// Category is the semantic classification of a transaction.
type Category string

const (
	CategoryPix          Category = "PIX"
	CategoryBankTransfer Category = "BANK_TRANSFER"
	CategoryDeposit      Category = "DEPOSIT"
	CategoryUtility      Category = "UTILITY"
	CategoryPayment      Category = "PAYMENT"
	CategorySale         Category = "SALE"
	CategoryOther        Category = "OTHER"
)

// TransactionSource identifies where a transaction came from.
type TransactionSource string

const (
	SourceBankImport TransactionSource = "BANK_IMPORT"
	SourceSaleImport TransactionSource = "SALE_IMPORT"
	SourceManual     TransactionSource = "MANUAL"
)

// Transaction is a canonical ledger movement. Immutable once created;
// corrections create a new transaction, never mutate in place.
type Transaction struct {
	ID          string
	ExternalID  string // deduplication fingerprint, unique per (user, wallet, source)
	Date        time.Time
	Amount      decimal.Decimal // credit > 0, debit < 0
	Direction   Direction
	Category    Category
	Description string
	Source      TransactionSource
	WalletID    string
	UserID      string
	CreatedAt   time.Time
}
