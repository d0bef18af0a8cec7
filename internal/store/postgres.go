package store

import (
	"database/sql"
	_ "embed"
	"encoding/json"
	"fmt"
	"time"

	// Postgres driver, registered for database/sql.
	_ "github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/cleared-dev/fluxo/internal/model"
)

// schemaSQL holds the DDL backing this store: the fluxo schema, its three
// tables, and the unique indexes enforcing fingerprint dedup and the
// one-live-prediction-per-installment invariant.
//
//go:embed schema.sql
var schemaSQL string

// Postgres is a Store backed by a Postgres database.
type Postgres struct {
	db *sql.DB
}

var _ Store = (*Postgres)(nil)

// NewPostgres wraps an open database handle.
func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

// EnsureSchema creates the fluxo schema, tables, and indexes if they do not
// exist. Idempotent; the serve and sweep commands run it at startup.
func (p *Postgres) EnsureSchema() error {
	if _, err := p.db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

func (p *Postgres) CreateTransaction(txn *model.Transaction) error {
	query := `
		INSERT INTO fluxo.transactions
			(id, external_id, date, amount, direction, category, description, source, wallet_id, user_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`
	_, err := p.db.Exec(query,
		txn.ID, txn.ExternalID, txn.Date, txn.Amount.StringFixed(2), txn.Direction,
		txn.Category, txn.Description, txn.Source, txn.WalletID, txn.UserID, txn.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create transaction: %w", err)
	}
	return nil
}

func (p *Postgres) ExternalIDs(userID, walletID string, source model.TransactionSource) (map[string]bool, error) {
	query := `
		SELECT external_id FROM fluxo.transactions
		WHERE user_id = $1 AND wallet_id = $2 AND source = $3`
	rows, err := p.db.Query(query, userID, walletID, source)
	if err != nil {
		return nil, fmt.Errorf("failed to list external ids: %w", err)
	}
	defer rows.Close()

	ids := make(map[string]bool)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan external id: %w", err)
		}
		ids[id] = true
	}
	return ids, rows.Err()
}

func (p *Postgres) GetTransaction(id string) (*model.Transaction, error) {
	query := `
		SELECT id, external_id, date, amount, direction, category, description, source, wallet_id, user_id, created_at
		FROM fluxo.transactions WHERE id = $1`
	txn, err := scanTransaction(p.db.QueryRow(query, id))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get transaction: %w", err)
	}
	return txn, nil
}

func (p *Postgres) ListTransactions(userID, walletID string, start, end time.Time) ([]model.Transaction, error) {
	query := `
		SELECT id, external_id, date, amount, direction, category, description, source, wallet_id, user_id, created_at
		FROM fluxo.transactions
		WHERE user_id = $1 AND wallet_id = $2 AND date BETWEEN $3 AND $4
		ORDER BY date, created_at`
	rows, err := p.db.Query(query, userID, walletID, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	defer rows.Close()

	var out []model.Transaction
	for rows.Next() {
		txn, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		out = append(out, *txn)
	}
	return out, rows.Err()
}

func (p *Postgres) CreateInstallment(inst *model.Installment) error {
	query := `
		INSERT INTO fluxo.installments
			(id, order_id, description, amount, installment_number, total_installments, due_date,
			 payment_method, status, external_id, user_id, wallet_id, transaction_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`
	_, err := p.db.Exec(query,
		inst.ID, inst.OrderID, inst.Description, inst.Amount.StringFixed(2),
		inst.InstallmentNumber, inst.TotalInstallments, inst.DueDate, inst.PaymentMethod,
		inst.Status, inst.ExternalID, inst.UserID, inst.WalletID,
		nullString(inst.TransactionID), inst.CreatedAt, inst.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create installment: %w", err)
	}
	return nil
}

func (p *Postgres) GetInstallment(id string) (*model.Installment, error) {
	inst, err := scanInstallment(p.db.QueryRow(installmentSelect+` WHERE id = $1`, id))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get installment: %w", err)
	}
	return inst, nil
}

func (p *Postgres) GetInstallmentByExternalID(userID, walletID, externalID string) (*model.Installment, error) {
	query := installmentSelect + ` WHERE user_id = $1 AND wallet_id = $2 AND external_id = $3`
	inst, err := scanInstallment(p.db.QueryRow(query, userID, walletID, externalID))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get installment by external id: %w", err)
	}
	return inst, nil
}

func (p *Postgres) UpdateInstallment(inst *model.Installment) error {
	query := `
		UPDATE fluxo.installments
		SET status = $2, transaction_id = $3, updated_at = $4
		WHERE id = $1`
	res, err := p.db.Exec(query, inst.ID, inst.Status, nullString(inst.TransactionID), inst.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to update installment: %w", err)
	}
	n, err := res.RowsAffected()
	if err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *Postgres) ListOpenInstallments(userID, walletID string) ([]model.Installment, error) {
	query := installmentSelect + `
		WHERE user_id = $1 AND wallet_id = $2 AND status IN ('PENDING', 'OVERDUE')
		ORDER BY due_date`
	return p.queryInstallments(query, userID, walletID)
}

func (p *Postgres) ListPendingDueBefore(cutoff time.Time) ([]model.Installment, error) {
	query := installmentSelect + ` WHERE status = 'PENDING' AND due_date < $1 ORDER BY due_date`
	return p.queryInstallments(query, cutoff)
}

func (p *Postgres) ListInstallments(userID, walletID string, status model.InstallmentStatus) ([]model.Installment, error) {
	if status == "" {
		query := installmentSelect + ` WHERE user_id = $1 AND wallet_id = $2 ORDER BY due_date`
		return p.queryInstallments(query, userID, walletID)
	}
	query := installmentSelect + ` WHERE user_id = $1 AND wallet_id = $2 AND status = $3 ORDER BY due_date`
	return p.queryInstallments(query, userID, walletID, status)
}

func (p *Postgres) queryInstallments(query string, args ...any) ([]model.Installment, error) {
	rows, err := p.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list installments: %w", err)
	}
	defer rows.Close()

	var out []model.Installment
	for rows.Next() {
		inst, err := scanInstallment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan installment: %w", err)
		}
		out = append(out, *inst)
	}
	return out, rows.Err()
}

func (p *Postgres) CreatePrediction(pred *model.CashFlowPrediction) error {
	metadata, err := json.Marshal(pred.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal prediction metadata: %w", err)
	}
	// The partial unique index on installment_id backs the one-live-prediction
	// invariant at the storage layer too.
	query := `
		INSERT INTO fluxo.cash_flow_predictions
			(id, user_id, wallet_id, amount, type, date, description, category, source,
			 probability, installment_id, metadata, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`
	_, err = p.db.Exec(query,
		pred.ID, pred.UserID, pred.WalletID, pred.Amount.StringFixed(2), pred.Type,
		pred.Date, pred.Description, pred.Category, pred.Source, pred.Probability,
		nullString(pred.InstallmentID), metadata, pred.CreatedAt, pred.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create prediction: %w", err)
	}
	return nil
}

func (p *Postgres) GetPredictionByInstallment(installmentID string) (*model.CashFlowPrediction, error) {
	query := predictionSelect + ` WHERE installment_id = $1`
	pred, err := scanPrediction(p.db.QueryRow(query, installmentID))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get prediction: %w", err)
	}
	return pred, nil
}

func (p *Postgres) UpdatePrediction(pred *model.CashFlowPrediction) error {
	query := `
		UPDATE fluxo.cash_flow_predictions
		SET amount = $2, date = $3, probability = $4, updated_at = $5
		WHERE id = $1`
	res, err := p.db.Exec(query, pred.ID, pred.Amount.StringFixed(2), pred.Date, pred.Probability, pred.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to update prediction: %w", err)
	}
	n, err := res.RowsAffected()
	if err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *Postgres) DeletePredictionByInstallment(installmentID string) error {
	_, err := p.db.Exec(`DELETE FROM fluxo.cash_flow_predictions WHERE installment_id = $1`, installmentID)
	if err != nil {
		return fmt.Errorf("failed to delete prediction: %w", err)
	}
	return nil
}

func (p *Postgres) ListPredictions(userID, walletID string, start, end time.Time) ([]model.CashFlowPrediction, error) {
	args := []any{userID, start, end}
	query := predictionSelect + ` WHERE user_id = $1 AND date BETWEEN $2 AND $3`
	if walletID != "" {
		query += ` AND wallet_id = $4`
		args = append(args, walletID)
	}
	query += ` ORDER BY date`

	rows, err := p.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list predictions: %w", err)
	}
	defer rows.Close()

	var out []model.CashFlowPrediction
	for rows.Next() {
		pred, err := scanPrediction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan prediction: %w", err)
		}
		out = append(out, *pred)
	}
	return out, rows.Err()
}

const installmentSelect = `
	SELECT id, order_id, description, amount, installment_number, total_installments, due_date,
	       payment_method, status, external_id, user_id, wallet_id, transaction_id, created_at, updated_at
	FROM fluxo.installments`

const predictionSelect = `
	SELECT id, user_id, wallet_id, amount, type, date, description, category, source,
	       probability, installment_id, metadata, created_at, updated_at
	FROM fluxo.cash_flow_predictions`

type scanner interface {
	Scan(dest ...any) error
}

func scanTransaction(row scanner) (*model.Transaction, error) {
	var txn model.Transaction
	var amount string
	err := row.Scan(&txn.ID, &txn.ExternalID, &txn.Date, &amount, &txn.Direction,
		&txn.Category, &txn.Description, &txn.Source, &txn.WalletID, &txn.UserID, &txn.CreatedAt)
	if err != nil {
		return nil, err
	}
	if txn.Amount, err = decimal.NewFromString(amount); err != nil {
		return nil, err
	}
	return &txn, nil
}

func scanInstallment(row scanner) (*model.Installment, error) {
	var inst model.Installment
	var amount string
	var txnID sql.NullString
	err := row.Scan(&inst.ID, &inst.OrderID, &inst.Description, &amount,
		&inst.InstallmentNumber, &inst.TotalInstallments, &inst.DueDate, &inst.PaymentMethod,
		&inst.Status, &inst.ExternalID, &inst.UserID, &inst.WalletID, &txnID,
		&inst.CreatedAt, &inst.UpdatedAt)
	if err != nil {
		return nil, err
	}
	inst.TransactionID = txnID.String
	if inst.Amount, err = decimal.NewFromString(amount); err != nil {
		return nil, err
	}
	return &inst, nil
}

func scanPrediction(row scanner) (*model.CashFlowPrediction, error) {
	var pred model.CashFlowPrediction
	var amount string
	var instID sql.NullString
	var metadata []byte
	err := row.Scan(&pred.ID, &pred.UserID, &pred.WalletID, &amount, &pred.Type,
		&pred.Date, &pred.Description, &pred.Category, &pred.Source, &pred.Probability,
		&instID, &metadata, &pred.CreatedAt, &pred.UpdatedAt)
	if err != nil {
		return nil, err
	}
	pred.InstallmentID = instID.String
	if pred.Amount, err = decimal.NewFromString(amount); err != nil {
		return nil, err
	}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &pred.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal prediction metadata: %w", err)
		}
	}
	return &pred, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
