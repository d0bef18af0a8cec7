// Package classify resolves the semantic category of a bank transaction from
// the statement's historic code and free-text description. Resolution is a
// pure function: exact code table first, then ordered keyword rules, then
// CategoryOther.
package classify

import (
	"strings"

	"github.com/cleared-dev/fluxo/internal/model"
)

// keywordRule maps a description substring to a category. Rules are checked
// in order; the first match wins.
type keywordRule struct {
	substring string
	category  model.Category
}

// Classifier holds the code table and keyword rules.
type Classifier struct {
	codes map[int]model.Category
	rules []keywordRule
}

// New returns a Classifier with the built-in code table and rules.
func New() *Classifier {
	return &Classifier{
		codes: defaultCodes(),
		rules: defaultRules(),
	}
}

// Classify resolves a category from a historic code and description.
// Deterministic, no side effects.
func (c *Classifier) Classify(historicCode int, description string) model.Category {
	if cat, ok := c.codes[historicCode]; ok {
		return cat
	}

	desc := strings.ToLower(description)
	for _, r := range c.rules {
		if strings.Contains(desc, r.substring) {
			return r.category
		}
	}
	return model.CategoryOther
}

// Known reports whether a historic code has an exact table entry.
func (c *Classifier) Known(historicCode int) bool {
	_, ok := c.codes[historicCode]
	return ok
}

// defaultCodes is the historic-code table used by the statement feed.
func defaultCodes() map[int]model.Category {
	return map[int]model.Category{
		110: model.CategoryDeposit,      // deposito em conta
		115: model.CategoryDeposit,      // deposito em dinheiro
		220: model.CategoryBankTransfer, // TED recebida
		221: model.CategoryBankTransfer, // TED enviada
		225: model.CategoryBankTransfer, // transferencia entre contas
		405: model.CategoryPix,          // pix recebido
		406: model.CategoryPix,          // pix enviado
		510: model.CategoryUtility,      // tarifa de pacote de servicos
		511: model.CategoryUtility,      // tarifa avulsa
		620: model.CategoryPayment,      // pagamento de boleto
		710: model.CategoryBankTransfer, // cobranca liquidada
	}
}

// defaultRules is the ordered keyword fallback for codes missing from the
// table. Order matters: "pix" must win over "transf" for pix transfers.
func defaultRules() []keywordRule {
	return []keywordRule{
		{"pix", model.CategoryPix},
		{"ted", model.CategoryBankTransfer},
		{"transf", model.CategoryBankTransfer},
		{"dep", model.CategoryDeposit},
		{"dinheiro", model.CategoryDeposit},
		{"tarifa", model.CategoryUtility},
		{"cobranca", model.CategoryBankTransfer},
	}
}
