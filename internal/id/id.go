package id

import (
	"crypto/sha256"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// New returns a fresh random record ID.
func New() string {
	return uuid.NewString()
}

// StatementFingerprint derives the deduplication externalId for a bank
// statement entry. The same wallet, date, document and lot always produce the
// same id, which is what makes re-imports safe.
func StatementFingerprint(walletID string, date time.Time, document, lot int64) string {
	input := fmt.Sprintf("%s|%s|%d|%d", walletID, date.Format("20060102"), document, lot)
	sum := sha256.Sum256([]byte(input))
	return fmt.Sprintf("stmt_%x", sum[:8])
}

// InstallmentKey is the stable upsert key for an installment within a sale:
// "ord_<orderID>_003". Installments are never deleted, so this key is the
// identity used to reconcile re-imports.
func InstallmentKey(orderID string, number int) string {
	return fmt.Sprintf("ord_%s_%03d", sanitize(orderID), number)
}

// sanitize keeps upsert keys free of separator collisions.
func sanitize(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '-' || r == '_':
			return r
		default:
			return '-'
		}
	}, s)
}
