package model

import "github.com/shopspring/decimal"

// RawStatementEntry is one line item from the bank statement feed, in the
// producer's own field names. Ephemeral: consumed by the normalizer, never
// persisted.
type RawStatementEntry struct {
	DataLancamento              int             `json:"dataLancamento"` // DDMMYYYY, 7 or 8 digits
	ValorLancamento             decimal.Decimal `json:"valorLancamento"`
	IndicadorSinalLancamento    string          `json:"indicadorSinalLancamento"` // "C" or "D"
	IndicadorTipoLancamento     string          `json:"indicadorTipoLancamento"`
	CodigoHistorico             int             `json:"codigoHistorico"`
	TextoDescricaoHistorico     string          `json:"textoDescricaoHistorico"`
	TextoInformacaoComplementar string          `json:"textoInformacaoComplementar"`
	NumeroDocumento             int64           `json:"numeroDocumento"`
	NumeroLote                  int64           `json:"numeroLote"`
}
