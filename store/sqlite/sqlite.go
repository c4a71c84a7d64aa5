/*
Package sqlite provides a SQLite-backed implementation of the storage interfaces.

PURPOSE:
  Implements ledger.ClientStore using SQLite. In production, the same
  patterns apply to PostgreSQL - only minor SQL dialect differences.

KEY TABLES:
  clients:                Mutable account records (balance is a cached projection)
  credit_transactions:    Immutable ledger of all balance changes
  daily_consumption_log:  Idempotency witnesses, one row per (client, date)

IDEMPOTENCY ENFORCEMENT:
  idx_unique_daily_consumption on (client_id, consumption_date) is the
  schema-level half of the idempotency contract. The application-level
  check-then-act in the processor is not atomic on its own; when two runs
  race, this index decides the winner and the loser's insert is mapped to
  ledger.ErrAlreadyProcessed.

LOST-UPDATE PROTECTION:
  Balance updates are conditioned on the previously read value:
    UPDATE clients SET current_balance = ? WHERE id = ? AND current_balance = ?
  Zero affected rows maps to ledger.ErrWriteConflict and the whole store
  transaction rolls back, so a concurrent credit can never be overwritten.

ATOMICITY:
  ApplyConsumption writes {log, transaction, balance} inside one database
  transaction; ApplyCredit writes {transaction, balance}. All or nothing,
  from the perspective of any subsequent reader.

AMOUNT STORAGE:
  Decimal amounts are stored as their canonical string form (TEXT), never
  as floats. Predicates that need numeric comparison CAST in SQL.

CONCURRENCY:
  Uses sync.RWMutex for thread-safety. In production with PostgreSQL,
  database-level concurrency control handles this instead.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging) for better concurrency:
  - Multiple readers don't block
  - Single writer at a time
  - Better crash recovery

USAGE:
  store, err := sqlite.New("./data/budgets.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

MIGRATION:
  Schema is auto-migrated on New(). For production, use a proper
  migration tool (golang-migrate, goose) with versioned migrations.

SEE ALSO:
  - ledger/store.go: Interface definitions and write contracts
  - ledger/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/warp/budget-engine/ledger"
)

// Store implements ledger.ClientStore using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Clients (balance is a cached projection of the transaction ledger)
	CREATE TABLE IF NOT EXISTS clients (
		id TEXT PRIMARY KEY,
		manager_id TEXT NOT NULL DEFAULT '',
		name TEXT NOT NULL,
		phone TEXT,
		payment_method TEXT NOT NULL DEFAULT 'pix',
		payment_frequency TEXT NOT NULL DEFAULT 'monthly',
		daily_budget TEXT NOT NULL DEFAULT '0',
		current_balance TEXT NOT NULL DEFAULT '0',
		alert_threshold TEXT NOT NULL DEFAULT '0',
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	-- Candidate selection for the daily processor
	CREATE INDEX IF NOT EXISTS idx_clients_active
		ON clients(is_active);

	-- Credit transactions (append-only ledger)
	CREATE TABLE IF NOT EXISTS credit_transactions (
		id TEXT PRIMARY KEY,
		client_id TEXT NOT NULL REFERENCES clients(id) ON DELETE CASCADE,
		transaction_type TEXT NOT NULL,
		amount TEXT NOT NULL,
		balance_after TEXT NOT NULL,
		description TEXT,
		transaction_date TEXT NOT NULL,
		created_at TEXT NOT NULL,
		created_by TEXT
	);

	-- Display order (hot path for the client detail view)
	CREATE INDEX IF NOT EXISTS idx_transactions_client_display
		ON credit_transactions(client_id, transaction_date DESC, created_at DESC);

	-- Daily consumption log (idempotency witnesses)
	CREATE TABLE IF NOT EXISTS daily_consumption_log (
		id TEXT PRIMARY KEY,
		client_id TEXT NOT NULL REFERENCES clients(id) ON DELETE CASCADE,
		consumption_date TEXT NOT NULL,
		amount TEXT NOT NULL,
		balance_before TEXT NOT NULL,
		balance_after TEXT NOT NULL,
		processed_at TEXT NOT NULL
	);

	-- CRITICAL: one debit per client per calendar day. This index is the
	-- schema half of the idempotency contract; racing processor runs are
	-- resolved here, not in application code.
	CREATE UNIQUE INDEX IF NOT EXISTS idx_unique_daily_consumption
		ON daily_consumption_log(client_id, consumption_date);

	CREATE INDEX IF NOT EXISTS idx_consumption_client_date
		ON daily_consumption_log(client_id, consumption_date DESC);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// CLIENT RECORDS
// =============================================================================

const clientColumns = `id, manager_id, name, phone, payment_method, payment_frequency,
	daily_budget, current_balance, alert_threshold, is_active, created_at, updated_at`

// GetClient returns a client by id.
func (s *Store) GetClient(ctx context.Context, id ledger.ClientID) (*ledger.Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx,
		`SELECT `+clientColumns+` FROM clients WHERE id = ?`, id)

	client, err := scanClient(row)
	if err == sql.ErrNoRows {
		return nil, ledger.ErrClientNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get client: %w", err)
	}
	return &client, nil
}

// SaveClient inserts or updates a client record. The balance and creation
// timestamp of an existing row are preserved: balance moves only through
// ApplyConsumption/ApplyCredit.
func (s *Store) SaveClient(ctx context.Context, c ledger.Client) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC().Format(time.RFC3339)
	query := `
		INSERT INTO clients
		(id, manager_id, name, phone, payment_method, payment_frequency,
		 daily_budget, current_balance, alert_threshold, is_active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			manager_id = excluded.manager_id,
			name = excluded.name,
			phone = excluded.phone,
			payment_method = excluded.payment_method,
			payment_frequency = excluded.payment_frequency,
			daily_budget = excluded.daily_budget,
			alert_threshold = excluded.alert_threshold,
			is_active = excluded.is_active,
			updated_at = excluded.updated_at
	`

	_, err := s.db.ExecContext(ctx, query,
		c.ID, c.ManagerID, c.Name, nullString(c.Phone),
		string(c.PaymentMethod), string(c.PaymentFrequency),
		c.DailyBudget.String(), c.CurrentBalance.String(), c.AlertThreshold.String(),
		c.IsActive, now, now,
	)
	if err != nil {
		return fmt.Errorf("failed to save client: %w", err)
	}
	return nil
}

// DeleteClient removes a client. Transactions and consumption logs cascade.
func (s *Store) DeleteClient(ctx context.Context, id ledger.ClientID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `DELETE FROM clients WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete client: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ledger.ErrClientNotFound
	}
	return nil
}

// ListClients returns all clients ordered by name.
func (s *Store) ListClients(ctx context.Context) ([]ledger.Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.queryClients(ctx,
		`SELECT `+clientColumns+` FROM clients ORDER BY name`)
}

// SelectActiveClientsWithPositiveBudget returns the daily processor's
// candidate set.
func (s *Store) SelectActiveClientsWithPositiveBudget(ctx context.Context) ([]ledger.Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.queryClients(ctx,
		`SELECT `+clientColumns+` FROM clients
		 WHERE is_active = TRUE AND CAST(daily_budget AS REAL) > 0
		 ORDER BY id`)
}

func (s *Store) queryClients(ctx context.Context, query string, args ...any) ([]ledger.Client, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query clients: %w", err)
	}
	defer rows.Close()

	var clients []ledger.Client
	for rows.Next() {
		c, err := scanClient(rows)
		if err != nil {
			return nil, err
		}
		clients = append(clients, c)
	}
	return clients, rows.Err()
}

// =============================================================================
// ATOMIC LEDGER WRITES
// =============================================================================

// ApplyConsumption persists one daily debit: consumption-log row,
// transaction row, and conditional balance update, all inside a single
// database transaction.
func (s *Store) ApplyConsumption(ctx context.Context, w ledger.ConsumptionWrite) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	// Log insert first: the unique index on (client_id, consumption_date)
	// is the idempotency backstop, so a racing run fails here before any
	// other effect exists.
	_, err = sqlTx.ExecContext(ctx, `
		INSERT INTO daily_consumption_log
		(id, client_id, consumption_date, amount, balance_before, balance_after, processed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		w.Log.ID, w.Log.ClientID, w.Log.ConsumptionDate.String(),
		w.Log.Amount.String(), w.Log.BalanceBefore.String(), w.Log.BalanceAfter.String(),
		w.Log.ProcessedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ledger.ErrAlreadyProcessed
		}
		return fmt.Errorf("failed to insert consumption log: %w", err)
	}

	if err := insertTransaction(ctx, sqlTx, w.Transaction); err != nil {
		return err
	}

	if err := updateBalance(ctx, sqlTx, w.ClientID, w.ExpectedBalance.String(), w.NewBalance.String()); err != nil {
		return err
	}

	return sqlTx.Commit()
}

// ApplyCredit persists one credit or adjustment: transaction row plus
// conditional balance update, inside a single database transaction.
func (s *Store) ApplyCredit(ctx context.Context, w ledger.CreditWrite) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := insertTransaction(ctx, sqlTx, w.Transaction); err != nil {
		return err
	}

	if err := updateBalance(ctx, sqlTx, w.ClientID, w.ExpectedBalance.String(), w.NewBalance.String()); err != nil {
		return err
	}

	return sqlTx.Commit()
}

func insertTransaction(ctx context.Context, sqlTx *sql.Tx, tx ledger.CreditTransaction) error {
	_, err := sqlTx.ExecContext(ctx, `
		INSERT INTO credit_transactions
		(id, client_id, transaction_type, amount, balance_after, description,
		 transaction_date, created_at, created_by)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		tx.ID, tx.ClientID, string(tx.Type),
		tx.Amount.String(), tx.BalanceAfter.String(), nullString(tx.Description),
		tx.TransactionDate.String(), tx.CreatedAt.UTC().Format(time.RFC3339),
		nullString(tx.CreatedBy),
	)
	if err != nil {
		return fmt.Errorf("failed to insert transaction: %w", err)
	}
	return nil
}

// updateBalance is the compare-and-swap half of the lost-update protection.
func updateBalance(ctx context.Context, sqlTx *sql.Tx, id ledger.ClientID, expected, next string) error {
	res, err := sqlTx.ExecContext(ctx, `
		UPDATE clients SET current_balance = ?, updated_at = ?
		WHERE id = ? AND current_balance = ?`,
		next, time.Now().UTC().Format(time.RFC3339), id, expected,
	)
	if err != nil {
		return fmt.Errorf("failed to update balance: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		// Either the client vanished or someone moved the balance since it
		// was read. Distinguish so callers can retry only the conflict case.
		var exists int
		if err := sqlTx.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM clients WHERE id = ?`, id).Scan(&exists); err != nil {
			return fmt.Errorf("failed to check client existence: %w", err)
		}
		if exists == 0 {
			return ledger.ErrClientNotFound
		}
		return ledger.ErrWriteConflict
	}
	return nil
}

// =============================================================================
// LEDGER READS
// =============================================================================

const transactionColumns = `id, client_id, transaction_type, amount, balance_after,
	description, transaction_date, created_at, created_by`

// GetConsumptionLog returns the log row for (client, date), or nil if that
// date has not been processed.
func (s *Store) GetConsumptionLog(ctx context.Context, id ledger.ClientID, date ledger.Date) (*ledger.DailyConsumptionLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `
		SELECT id, client_id, consumption_date, amount, balance_before, balance_after, processed_at
		FROM daily_consumption_log
		WHERE client_id = ? AND consumption_date = ?`,
		id, date.String())

	log, err := scanLog(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get consumption log: %w", err)
	}
	return &log, nil
}

// ConsumptionLogs returns a client's consumption history, newest first.
func (s *Store) ConsumptionLogs(ctx context.Context, id ledger.ClientID) ([]ledger.DailyConsumptionLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, client_id, consumption_date, amount, balance_before, balance_after, processed_at
		FROM daily_consumption_log
		WHERE client_id = ?
		ORDER BY consumption_date DESC`,
		id)
	if err != nil {
		return nil, fmt.Errorf("failed to query consumption logs: %w", err)
	}
	defer rows.Close()

	var logs []ledger.DailyConsumptionLog
	for rows.Next() {
		log, err := scanLog(rows)
		if err != nil {
			return nil, err
		}
		logs = append(logs, log)
	}
	return logs, rows.Err()
}

// Transactions returns a client's history in display order.
func (s *Store) Transactions(ctx context.Context, id ledger.ClientID) ([]ledger.CreditTransaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.queryTransactions(ctx, `
		SELECT `+transactionColumns+`
		FROM credit_transactions
		WHERE client_id = ?
		ORDER BY transaction_date DESC, created_at DESC, rowid DESC`,
		id)
}

// TransactionsInOrder returns a client's history in causal order. Insertion
// order is causal order, so rowid is the authoritative sort key.
func (s *Store) TransactionsInOrder(ctx context.Context, id ledger.ClientID) ([]ledger.CreditTransaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.queryTransactions(ctx, `
		SELECT `+transactionColumns+`
		FROM credit_transactions
		WHERE client_id = ?
		ORDER BY rowid ASC`,
		id)
}

func (s *Store) queryTransactions(ctx context.Context, query string, args ...any) ([]ledger.CreditTransaction, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer rows.Close()

	var txs []ledger.CreditTransaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		txs = append(txs, tx)
	}
	return txs, rows.Err()
}

// =============================================================================
// ROW SCANNING
// =============================================================================

type scanner interface {
	Scan(dest ...any) error
}

func scanClient(row scanner) (ledger.Client, error) {
	var (
		c                    ledger.Client
		phone                sql.NullString
		method, frequency    string
		budget, balance      string
		threshold            string
		createdAt, updatedAt string
	)

	err := row.Scan(
		&c.ID, &c.ManagerID, &c.Name, &phone, &method, &frequency,
		&budget, &balance, &threshold, &c.IsActive, &createdAt, &updatedAt,
	)
	if err != nil {
		return c, err
	}

	c.Phone = phone.String
	c.PaymentMethod = ledger.PaymentMethod(method)
	c.PaymentFrequency = ledger.PaymentFrequency(frequency)
	c.DailyBudget = ledger.MustParseDecimal(budget)
	c.CurrentBalance = ledger.MustParseDecimal(balance)
	c.AlertThreshold = ledger.MustParseDecimal(threshold)
	c.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	c.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return c, nil
}

func scanTransaction(row scanner) (ledger.CreditTransaction, error) {
	var (
		tx              ledger.CreditTransaction
		amount, after   string
		description     sql.NullString
		txDate          string
		createdAt       string
		createdBy       sql.NullString
	)

	err := row.Scan(
		&tx.ID, &tx.ClientID, &tx.Type, &amount, &after,
		&description, &txDate, &createdAt, &createdBy,
	)
	if err != nil {
		return tx, err
	}

	tx.Amount = ledger.MustParseDecimal(amount)
	tx.BalanceAfter = ledger.MustParseDecimal(after)
	tx.Description = description.String
	tx.TransactionDate, _ = ledger.ParseDate(txDate)
	tx.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	tx.CreatedBy = createdBy.String
	return tx, nil
}

func scanLog(row scanner) (ledger.DailyConsumptionLog, error) {
	var (
		log                    ledger.DailyConsumptionLog
		date                   string
		amount, before, after  string
		processedAt            string
	)

	err := row.Scan(
		&log.ID, &log.ClientID, &date, &amount, &before, &after, &processedAt,
	)
	if err != nil {
		return log, err
	}

	log.ConsumptionDate, _ = ledger.ParseDate(date)
	log.Amount = ledger.MustParseDecimal(amount)
	log.BalanceBefore = ledger.MustParseDecimal(before)
	log.BalanceAfter = ledger.MustParseDecimal(after)
	log.ProcessedAt, _ = time.Parse(time.RFC3339, processedAt)
	return log, nil
}

// =============================================================================
// HELPERS
// =============================================================================

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func isUniqueConstraintError(err error) bool {
	return err != nil && (strings.Contains(err.Error(), "UNIQUE constraint failed") ||
		strings.Contains(err.Error(), "duplicate key"))
}
