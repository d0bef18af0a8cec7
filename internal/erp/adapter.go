// Package erp converts loosely-shaped sale payloads from the external ERP
// into the closed model.Sale shape. The ERP has no stable schema: the same
// logical value shows up under different keys depending on the export, so
// each field is resolved through an ordered list of accepted names.
package erp

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/cleared-dev/fluxo/internal/model"
)

// FieldError reports a sale payload field that is missing or malformed.
type FieldError struct {
	Field   string
	Message string
}

func (e FieldError) Error() string {
	return fmt.Sprintf("field %q: %s", e.Field, e.Message)
}

// Accepted key names per logical value, in priority order.
var (
	idKeys       = []string{"id", "codigo_venda"}
	codeKeys     = []string{"codigo", "numero_venda", "code"}
	totalKeys    = []string{"valor_total", "total", "valor"}
	dateKeys     = []string{"data", "data_venda", "date"}
	customerKeys = []string{"cliente", "nome_cliente", "customer"}
	storeKeys    = []string{"loja", "filial", "store"}
	methodKeys   = []string{"forma_pagamento", "meio_pagamento", "payment_method"}
	parcelasKeys = []string{"parcelas", "installments"}

	numberKeys  = []string{"numero", "parcela", "number"}
	amountKeys  = []string{"valor", "valor_parcela", "amount"}
	dueDateKeys = []string{"data_vencimento", "vencimento", "due_date"}
	statusKeys  = []string{"status", "situacao"}
)

// Accepted date layouts, tried in order.
var dateLayouts = []string{"2006-01-02", "02/01/2006", time.RFC3339}

// ParseSale reduces one raw payload to a model.Sale. A payload needs an
// identifier (id or codigo), a date, a positive total, and at least one
// parcela; everything else is optional.
func ParseSale(payload map[string]any) (model.Sale, error) {
	var sale model.Sale

	sale.ID = stringField(payload, idKeys)
	sale.Code = stringField(payload, codeKeys)
	if sale.ID == "" && sale.Code == "" {
		return model.Sale{}, FieldError{Field: "id", Message: "missing sale identifier"}
	}

	total, ok := decimalField(payload, totalKeys)
	if !ok {
		return model.Sale{}, FieldError{Field: "valor_total", Message: "missing or unreadable"}
	}
	if !total.IsPositive() {
		return model.Sale{}, FieldError{Field: "valor_total", Message: "must be positive"}
	}
	sale.TotalAmount = total

	date, ok := dateField(payload, dateKeys)
	if !ok {
		return model.Sale{}, FieldError{Field: "data", Message: "missing or unreadable"}
	}
	sale.Date = date

	sale.Customer = stringField(payload, customerKeys)
	sale.Store = stringField(payload, storeKeys)
	sale.PaymentMethod = stringField(payload, methodKeys)

	raw, ok := sliceField(payload, parcelasKeys)
	if !ok || len(raw) == 0 {
		return model.Sale{}, FieldError{Field: "parcelas", Message: "missing or empty"}
	}

	for i, item := range raw {
		entry, ok := item.(map[string]any)
		if !ok {
			return model.Sale{}, FieldError{
				Field:   fmt.Sprintf("parcelas[%d]", i),
				Message: "not an object",
			}
		}
		parcela, err := parseInstallment(entry, i)
		if err != nil {
			return model.Sale{}, err
		}
		sale.Installments = append(sale.Installments, parcela)
	}

	return sale, nil
}

// ParseBatch decodes a JSON array of sale payloads, keeping per-item errors
// separate so one broken sale does not sink the batch.
func ParseBatch(data []byte) ([]model.Sale, []error) {
	var payloads []map[string]any
	if err := json.Unmarshal(data, &payloads); err != nil {
		return nil, []error{fmt.Errorf("decoding sale batch: %w", err)}
	}

	var sales []model.Sale
	var errs []error
	for i, payload := range payloads {
		sale, err := ParseSale(payload)
		if err != nil {
			errs = append(errs, fmt.Errorf("sale %d: %w", i, err))
			continue
		}
		sales = append(sales, sale)
	}
	return sales, errs
}

func parseInstallment(entry map[string]any, index int) (model.SaleInstallment, error) {
	prefix := fmt.Sprintf("parcelas[%d]", index)

	number, ok := intField(entry, numberKeys)
	if !ok || number <= 0 {
		return model.SaleInstallment{}, FieldError{
			Field:   prefix + ".numero",
			Message: "missing or not a positive integer",
		}
	}

	amount, ok := decimalField(entry, amountKeys)
	if !ok {
		return model.SaleInstallment{}, FieldError{
			Field:   prefix + ".valor",
			Message: "missing or unreadable",
		}
	}

	due, ok := dateField(entry, dueDateKeys)
	if !ok {
		return model.SaleInstallment{}, FieldError{
			Field:   prefix + ".data_vencimento",
			Message: "missing or unreadable",
		}
	}

	return model.SaleInstallment{
		Number:    number,
		Amount:    amount,
		DueDate:   due,
		RawStatus: stringField(entry, statusKeys),
	}, nil
}

// stringField returns the first non-empty value among keys. Numbers are
// stringified since the ERP sends ids both ways.
func stringField(m map[string]any, keys []string) string {
	for _, k := range keys {
		switch v := m[k].(type) {
		case string:
			if s := strings.TrimSpace(v); s != "" {
				return s
			}
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64)
		case json.Number:
			return v.String()
		}
	}
	return ""
}

func decimalField(m map[string]any, keys []string) (decimal.Decimal, bool) {
	for _, k := range keys {
		switch v := m[k].(type) {
		case float64:
			return decimal.NewFromFloat(v), true
		case string:
			// Brazilian exports use comma decimals.
			s := strings.ReplaceAll(strings.TrimSpace(v), ",", ".")
			if d, err := decimal.NewFromString(s); err == nil {
				return d, true
			}
		case json.Number:
			if d, err := decimal.NewFromString(v.String()); err == nil {
				return d, true
			}
		}
	}
	return decimal.Decimal{}, false
}

func intField(m map[string]any, keys []string) (int, bool) {
	for _, k := range keys {
		switch v := m[k].(type) {
		case float64:
			if v == float64(int(v)) {
				return int(v), true
			}
		case string:
			if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
				return n, true
			}
		case json.Number:
			if n, err := v.Int64(); err == nil {
				return int(n), true
			}
		}
	}
	return 0, false
}

func dateField(m map[string]any, keys []string) (time.Time, bool) {
	for _, k := range keys {
		s, ok := m[k].(string)
		if !ok {
			continue
		}
		s = strings.TrimSpace(s)
		for _, layout := range dateLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				return t, true
			}
		}
	}
	return time.Time{}, false
}

func sliceField(m map[string]any, keys []string) ([]any, bool) {
	for _, k := range keys {
		if v, ok := m[k].([]any); ok {
			return v, true
		}
	}
	return nil, false
}
