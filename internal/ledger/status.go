package ledger

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/cleared-dev/fluxo/internal/model"
)

// stripAccents removes diacritics so "atrasó"/"atraso" compare equal.
var stripAccents = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// MapExternalStatus folds the ERP's free-text installment status into the
// closed enum. This is the only place raw status strings are interpreted;
// the state machine never sees them.
func MapExternalStatus(raw string) model.InstallmentStatus {
	normalized, _, err := transform.String(stripAccents, strings.ToLower(strings.TrimSpace(raw)))
	if err != nil {
		normalized = strings.ToLower(raw)
	}

	switch {
	case strings.Contains(normalized, "pag"), strings.Contains(normalized, "liquidado"):
		return model.StatusPaid
	case strings.Contains(normalized, "atraso"), strings.Contains(normalized, "vencido"):
		return model.StatusOverdue
	case strings.Contains(normalized, "cancel"):
		return model.StatusCanceled
	default:
		return model.StatusPending
	}
}
