package store

import (
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// The DDL must carry the same invariants Memory enforces in code: fingerprint
// uniqueness per (user, wallet, source) and one live prediction per
// installment.
func TestSchema_DeclaresUniquenessInvariants(t *testing.T) {
	require.NotEmpty(t, schemaSQL)

	fingerprint := regexp.MustCompile(
		`CREATE UNIQUE INDEX[^;]*fluxo\.transactions \(user_id, wallet_id, source, external_id\)`)
	assert.Regexp(t, fingerprint, schemaSQL)

	prediction := regexp.MustCompile(
		`CREATE UNIQUE INDEX[^;]*fluxo\.cash_flow_predictions \(installment_id\)\s+WHERE installment_id IS NOT NULL`)
	assert.Regexp(t, prediction, schemaSQL)

	upsertKey := regexp.MustCompile(
		`CREATE UNIQUE INDEX[^;]*fluxo\.installments \(user_id, wallet_id, external_id\)`)
	assert.Regexp(t, upsertKey, schemaSQL)
}

func TestSchema_CoversAllQueriedTables(t *testing.T) {
	for _, table := range []string{
		"fluxo.transactions",
		"fluxo.installments",
		"fluxo.cash_flow_predictions",
	} {
		assert.True(t, strings.Contains(schemaSQL, "CREATE TABLE IF NOT EXISTS "+table),
			"schema must create %s", table)
	}
}
