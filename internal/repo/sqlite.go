package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/ledgerlens/fincorr/internal/models"
)

// ErrNotFound signals that a requested transaction does not exist.
var ErrNotFound = errors.New("not found")

const schema = `
CREATE TABLE IF NOT EXISTS transactions (
	id           TEXT PRIMARY KEY,
	timestamp_ns INTEGER NOT NULL,
	amount       REAL NOT NULL,
	type         TEXT NOT NULL,
	customer_id  TEXT NOT NULL,
	is_anomaly   INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_transactions_anomaly_key
	ON transactions (is_anomaly, customer_id, type, timestamp_ns);
`

// transactionRow is the storage shape; timestamps are kept as UTC unix nanoseconds so
// ordering never depends on driver time formatting.
type transactionRow struct {
	ID          string  `db:"id"`
	TimestampNS int64   `db:"timestamp_ns"`
	Amount      float64 `db:"amount"`
	Type        string  `db:"type"`
	CustomerID  string  `db:"customer_id"`
	IsAnomaly   bool    `db:"is_anomaly"`
}

func toRow(tx models.Transaction) transactionRow {
	return transactionRow{
		ID:          tx.ID,
		TimestampNS: tx.Timestamp.UTC().UnixNano(),
		Amount:      tx.Amount,
		Type:        tx.Type,
		CustomerID:  tx.CustomerID,
		IsAnomaly:   tx.IsAnomaly,
	}
}

func (r transactionRow) model() models.Transaction {
	return models.Transaction{
		ID:         r.ID,
		Timestamp:  time.Unix(0, r.TimestampNS).UTC(),
		Amount:     r.Amount,
		Type:       r.Type,
		CustomerID: r.CustomerID,
		IsAnomaly:  r.IsAnomaly,
	}
}

// TransactionStore persists transactions in SQLite.
type TransactionStore struct {
	db *sqlx.DB
}

// NewTransactionStore opens the SQLite database at dsn (":memory:" for tests) and
// creates the schema.
func NewTransactionStore(ctx context.Context, dsn string) (*TransactionStore, error) {
	if dsn == "" {
		return nil, fmt.Errorf("sqlite dsn is required")
	}
	db, err := sqlx.ConnectContext(ctx, "sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect sqlite: %w", err)
	}
	// SQLite allows one writer; a single connection also keeps ":memory:" databases shared.
	db.SetMaxOpenConns(1)

	store := &TransactionStore{db: db}
	if err := store.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Migrate creates the transactions table and its anomaly index.
func (s *TransactionStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

// Close closes the database handle.
func (s *TransactionStore) Close() error {
	return s.db.Close()
}

// InsertTransactions stores a batch atomically. Transactions without an ID receive a UUID;
// the assigned IDs are written back into txs.
func (s *TransactionStore) InsertTransactions(ctx context.Context, txs []models.Transaction) error {
	if len(txs) == 0 {
		return nil
	}

	dbtx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin insert: %w", err)
	}
	defer func() { _ = dbtx.Rollback() }()

	const query = `
		INSERT INTO transactions (id, timestamp_ns, amount, type, customer_id, is_anomaly)
		VALUES (:id, :timestamp_ns, :amount, :type, :customer_id, :is_anomaly)
	`
	for i := range txs {
		if txs[i].ID == "" {
			txs[i].ID = uuid.NewString()
		}
		if _, err := dbtx.NamedExecContext(ctx, query, toRow(txs[i])); err != nil {
			return fmt.Errorf("insert transaction %s: %w", txs[i].ID, err)
		}
	}
	if err := dbtx.Commit(); err != nil {
		return fmt.Errorf("commit insert: %w", err)
	}
	return nil
}

// ListAnomalies returns every flagged transaction ordered by (customer_id, type, timestamp),
// the order the correlator expects.
func (s *TransactionStore) ListAnomalies(ctx context.Context) ([]models.AnomalyRecord, error) {
	var rows []transactionRow
	const query = `
		SELECT id, timestamp_ns, amount, type, customer_id, is_anomaly
		FROM transactions
		WHERE is_anomaly = 1
		ORDER BY customer_id, type, timestamp_ns
	`
	if err := s.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("list anomalies: %w", err)
	}
	out := make([]models.AnomalyRecord, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.model().AnomalyRecord())
	}
	return out, nil
}

// ListTransactions returns the most recent transactions, newest first. A non-positive
// limit returns all of them.
func (s *TransactionStore) ListTransactions(ctx context.Context, limit int) ([]models.Transaction, error) {
	query := `
		SELECT id, timestamp_ns, amount, type, customer_id, is_anomaly
		FROM transactions
		ORDER BY timestamp_ns DESC, id
	`
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	var rows []transactionRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	out := make([]models.Transaction, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.model())
	}
	return out, nil
}

// GetTransaction fetches a transaction by ID.
func (s *TransactionStore) GetTransaction(ctx context.Context, id string) (models.Transaction, error) {
	var row transactionRow
	const query = `
		SELECT id, timestamp_ns, amount, type, customer_id, is_anomaly
		FROM transactions WHERE id = ?
	`
	err := s.db.GetContext(ctx, &row, query, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Transaction{}, fmt.Errorf("transaction %s: %w", id, ErrNotFound)
		}
		return models.Transaction{}, fmt.Errorf("get transaction: %w", err)
	}
	return row.model(), nil
}

// DashboardStats returns totals over all stored transactions.
func (s *TransactionStore) DashboardStats(ctx context.Context) (models.DashboardStats, error) {
	var stats models.DashboardStats
	const query = `
		SELECT COUNT(*) AS total, COALESCE(SUM(is_anomaly), 0) AS anomalies
		FROM transactions
	`
	if err := s.db.GetContext(ctx, &stats, query); err != nil {
		return models.DashboardStats{}, fmt.Errorf("dashboard stats: %w", err)
	}
	if stats.TotalTransactions > 0 {
		stats.AnomalyRate = float64(stats.TotalAnomalies) / float64(stats.TotalTransactions)
	}
	return stats, nil
}
