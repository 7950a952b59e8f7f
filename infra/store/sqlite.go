// Package store persists banks, card prefixes, installment pricing
// and transactions in SQLite, tuned for multi-process access.
package store

import (
	"database/sql"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/mewspay/vpos/bank"
	"github.com/mewspay/vpos/installment"
	"github.com/mewspay/vpos/transaction"
)

// SQLiteStore backs the bank directory, the installment engine and the
// transaction manager with one SQLite database.
type SQLiteStore struct {
	db   *sql.DB
	path string
	mu   sync.Mutex
}

// retryOperation executes a database operation with retry logic for SQLITE_BUSY errors
func (s *SQLiteStore) retryOperation(operation func() error, maxRetries int) error {
	var lastErr error

	for attempt := 0; attempt <= maxRetries; attempt++ {
		err := operation()
		if err == nil {
			return nil
		}

		if strings.Contains(err.Error(), "SQLITE_BUSY") || strings.Contains(err.Error(), "database is locked") {
			lastErr = err
			if attempt < maxRetries {
				// Exponential backoff: 10ms, 20ms, 40ms, 80ms
				backoff := time.Duration(10*(1<<attempt)) * time.Millisecond
				log.Printf("SQLite busy, retrying in %v (attempt %d/%d)", backoff, attempt+1, maxRetries+1)
				time.Sleep(backoff)
				continue
			}
		} else {
			return err
		}
	}

	return fmt.Errorf("operation failed after %d retries, last error: %w", maxRetries+1, lastErr)
}

// DB exposes the underlying handle for health checks.
func (s *SQLiteStore) DB() *sql.DB {
	return s.db
}

// NewSQLiteStore opens (or creates) the database at dbPath and
// initializes the schema. Use ":memory:" for tests.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	connStr := dbPath
	if dbPath != ":memory:" {
		dir := filepath.Dir(dbPath)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
		connStr = fmt.Sprintf("%s?_journal_mode=WAL&_synchronous=NORMAL&_cache_size=1000&_timeout=20000&_txlock=immediate", dbPath)
	}

	db, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if dbPath == ":memory:" {
		// A pool would hand each connection its own empty database.
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(0)
	}

	store := &SQLiteStore{db: db, path: dbPath}

	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	if dbPath != ":memory:" {
		if err := store.optimizeForMultiProcess(); err != nil {
			log.Printf("Warning: Failed to apply optimizations: %v", err)
		}
	}

	return store, nil
}

// initSchema creates the necessary tables
func (s *SQLiteStore) initSchema() error {
	query := `
	CREATE TABLE IF NOT EXISTS banks (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		code TEXT NOT NULL UNIQUE,
		name TEXT NOT NULL,
		gateway_kind TEXT NOT NULL,
		payment_model TEXT NOT NULL DEFAULT '3d_secure',
		merchant_id TEXT NOT NULL DEFAULT '',
		terminal_id TEXT NOT NULL DEFAULT '',
		client_id TEXT NOT NULL DEFAULT '',
		username TEXT NOT NULL DEFAULT '',
		password TEXT NOT NULL DEFAULT '',
		store_key TEXT NOT NULL DEFAULT '',
		posnet_id TEXT NOT NULL DEFAULT '',
		payment_api_url TEXT NOT NULL DEFAULT '',
		gateway_3d_url TEXT NOT NULL DEFAULT '',
		gateway_3d_host_url TEXT NOT NULL DEFAULT '',
		environment TEXT NOT NULL DEFAULT 'test',
		is_default INTEGER NOT NULL DEFAULT 0,
		active INTEGER NOT NULL DEFAULT 1,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS bins (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		prefix TEXT NOT NULL UNIQUE,
		bank_code TEXT NOT NULL,
		brand TEXT NOT NULL DEFAULT '',
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_bins_bank_code ON bins(bank_code);

	CREATE TABLE IF NOT EXISTS installment_plans (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		bank_code TEXT NOT NULL,
		count INTEGER NOT NULL,
		interest_rate REAL NOT NULL DEFAULT 0,
		campaign_rate REAL NOT NULL DEFAULT 0,
		campaign_active INTEGER NOT NULL DEFAULT 0,
		campaign_start DATETIME,
		campaign_end DATETIME,
		min_amount REAL NOT NULL DEFAULT 0,
		commission_rate REAL NOT NULL DEFAULT 0,
		active INTEGER NOT NULL DEFAULT 1,
		UNIQUE(bank_code, count)
	);

	CREATE TABLE IF NOT EXISTS category_restrictions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		bank_code TEXT NOT NULL,
		category TEXT NOT NULL,
		min_installment INTEGER NOT NULL DEFAULT 0,
		max_installment INTEGER NOT NULL DEFAULT 0,
		blocked_installments TEXT NOT NULL DEFAULT '',
		installment_allowed INTEGER NOT NULL DEFAULT 1,
		UNIQUE(bank_code, category)
	);

	CREATE TABLE IF NOT EXISTS transactions (
		id TEXT PRIMARY KEY,
		order_id TEXT NOT NULL,
		bank_code TEXT NOT NULL,
		gateway_kind TEXT NOT NULL,
		amount REAL NOT NULL,
		refunded_amount REAL NOT NULL DEFAULT 0,
		currency TEXT NOT NULL DEFAULT 'TRY',
		installment INTEGER NOT NULL DEFAULT 1,
		payment_model TEXT NOT NULL DEFAULT '',
		state TEXT NOT NULL,
		three_d_phase TEXT NOT NULL DEFAULT '',
		card_masked TEXT NOT NULL DEFAULT '',
		card_brand TEXT NOT NULL DEFAULT '',
		auth_code TEXT NOT NULL DEFAULT '',
		host_ref_num TEXT NOT NULL DEFAULT '',
		bank_txn_id TEXT NOT NULL DEFAULT '',
		error_code TEXT NOT NULL DEFAULT '',
		error_message TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_transactions_order_id ON transactions(order_id);
	CREATE INDEX IF NOT EXISTS idx_transactions_state ON transactions(state);

	CREATE TABLE IF NOT EXISTS refunds (
		id TEXT PRIMARY KEY,
		transaction_id TEXT NOT NULL,
		amount REAL NOT NULL,
		state TEXT NOT NULL DEFAULT 'success',
		host_ref_num TEXT NOT NULL DEFAULT '',
		error_message TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL,
		FOREIGN KEY(transaction_id) REFERENCES transactions(id)
	);

	CREATE INDEX IF NOT EXISTS idx_refunds_transaction_id ON refunds(transaction_id);
	`

	_, err := s.db.Exec(query)
	return err
}

// optimizeForMultiProcess applies SQLite optimizations for multi-process access
func (s *SQLiteStore) optimizeForMultiProcess() error {
	optimizations := []string{
		"PRAGMA journal_mode = WAL;",
		"PRAGMA synchronous = NORMAL;",
		"PRAGMA cache_size = 1000;",
		"PRAGMA busy_timeout = 30000;",
		"PRAGMA temp_store = memory;",
		"PRAGMA mmap_size = 268435456;",
		"PRAGMA optimize;",
	}

	for _, pragma := range optimizations {
		if _, err := s.db.Exec(pragma); err != nil {
			log.Printf("Warning: Failed to execute %s: %v", pragma, err)
		}
	}

	var journalMode string
	if err := s.db.QueryRow("PRAGMA journal_mode;").Scan(&journalMode); err != nil {
		return fmt.Errorf("failed to check journal mode: %w", err)
	}

	log.Printf("SQLite journal mode: %s", journalMode)
	return nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// --- bank directory ---

const bankColumns = `code, name, gateway_kind, payment_model, merchant_id, terminal_id,
	client_id, username, password, store_key, posnet_id,
	payment_api_url, gateway_3d_url, gateway_3d_host_url, environment, active`

func scanBank(row *sql.Row) (*bank.Profile, error) {
	var p bank.Profile
	err := row.Scan(&p.Code, &p.Name, &p.Kind, &p.PaymentModel, &p.MerchantID, &p.TerminalID,
		&p.ClientID, &p.Username, &p.Password, &p.StoreKey, &p.PosNetID,
		&p.PaymentAPIURL, &p.Gateway3DURL, &p.Gateway3DHostURL, &p.Environment, &p.Active)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// SaveBank inserts or updates a bank profile by code.
func (s *SQLiteStore) SaveBank(p *bank.Profile, isDefault bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.retryOperation(func() error {
		query := `
		INSERT INTO banks (code, name, gateway_kind, payment_model, merchant_id, terminal_id,
			client_id, username, password, store_key, posnet_id,
			payment_api_url, gateway_3d_url, gateway_3d_host_url, environment, is_default, active, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(code) DO UPDATE SET
			name = excluded.name,
			gateway_kind = excluded.gateway_kind,
			payment_model = excluded.payment_model,
			merchant_id = excluded.merchant_id,
			terminal_id = excluded.terminal_id,
			client_id = excluded.client_id,
			username = excluded.username,
			password = excluded.password,
			store_key = excluded.store_key,
			posnet_id = excluded.posnet_id,
			payment_api_url = excluded.payment_api_url,
			gateway_3d_url = excluded.gateway_3d_url,
			gateway_3d_host_url = excluded.gateway_3d_host_url,
			environment = excluded.environment,
			is_default = excluded.is_default,
			active = excluded.active,
			updated_at = CURRENT_TIMESTAMP
		`
		_, err := s.db.Exec(query, p.Code, p.Name, string(p.Kind), p.PaymentModel,
			p.MerchantID, p.TerminalID, p.ClientID, p.Username, p.Password, p.StoreKey, p.PosNetID,
			p.PaymentAPIURL, p.Gateway3DURL, p.Gateway3DHostURL, p.Environment, boolInt(isDefault), boolInt(p.Active))
		if err != nil {
			return fmt.Errorf("failed to save bank %s: %w", p.Code, err)
		}
		return nil
	}, 3)
}

// BankByCode loads an active bank profile by its code.
func (s *SQLiteStore) BankByCode(code string) (*bank.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	row := s.db.QueryRow(`SELECT `+bankColumns+` FROM banks WHERE code = ? AND active = 1`, code)
	p, err := scanBank(row)
	if err == sql.ErrNoRows {
		return nil, bank.NewNotFound("bank " + code)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load bank %s: %w", code, err)
	}
	return p, nil
}

// BankByPrefix resolves a card prefix to its bank profile.
func (s *SQLiteStore) BankByPrefix(prefix string) (*bank.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var bankCode string
	err := s.db.QueryRow(`SELECT bank_code FROM bins WHERE prefix = ?`, prefix).Scan(&bankCode)
	if err == sql.ErrNoRows {
		return nil, bank.NewNotFound("bin " + prefix)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to resolve bin %s: %w", prefix, err)
	}

	row := s.db.QueryRow(`SELECT `+bankColumns+` FROM banks WHERE code = ? AND active = 1`, bankCode)
	p, err := scanBank(row)
	if err == sql.ErrNoRows {
		return nil, bank.NewNotFound("bank " + bankCode)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load bank %s: %w", bankCode, err)
	}
	return p, nil
}

// DefaultBank returns the profile flagged as default.
func (s *SQLiteStore) DefaultBank() (*bank.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	row := s.db.QueryRow(`SELECT ` + bankColumns + ` FROM banks WHERE is_default = 1 AND active = 1 LIMIT 1`)
	p, err := scanBank(row)
	if err == sql.ErrNoRows {
		return nil, bank.NewNotFound("default bank")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load default bank: %w", err)
	}
	return p, nil
}

// IsDuplicate reports whether an error from a Create call is a
// uniqueness violation.
func IsDuplicate(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// CreateBin registers a new card prefix. The prefix is globally
// unique; creating one that already exists fails with a uniqueness
// violation rather than silently remapping it.
func (s *SQLiteStore) CreateBin(entry bank.BinEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.retryOperation(func() error {
		query := `INSERT INTO bins (prefix, bank_code, brand) VALUES (?, ?, ?)`
		if _, err := s.db.Exec(query, entry.Prefix, entry.BankCode, entry.Brand); err != nil {
			return fmt.Errorf("failed to create bin %s: %w", entry.Prefix, err)
		}
		return nil
	}, 3)
}

// SaveBin seeds or remaps a card prefix. Use CreateBin when a
// duplicate prefix must be rejected.
func (s *SQLiteStore) SaveBin(entry bank.BinEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.retryOperation(func() error {
		query := `
		INSERT INTO bins (prefix, bank_code, brand)
		VALUES (?, ?, ?)
		ON CONFLICT(prefix) DO UPDATE SET
			bank_code = excluded.bank_code,
			brand = excluded.brand
		`
		if _, err := s.db.Exec(query, entry.Prefix, entry.BankCode, entry.Brand); err != nil {
			return fmt.Errorf("failed to save bin %s: %w", entry.Prefix, err)
		}
		return nil
	}, 3)
}

// --- installment pricing ---

// CreatePlan registers a new installment pricing row. Only one row
// may exist per (bank, count); creating a duplicate fails with a
// uniqueness violation.
func (s *SQLiteStore) CreatePlan(p installment.Plan) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.retryOperation(func() error {
		query := `
		INSERT INTO installment_plans (bank_code, count, interest_rate, campaign_rate,
			campaign_active, campaign_start, campaign_end, min_amount, commission_rate, active)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`
		_, err := s.db.Exec(query, p.BankCode, p.Count, p.InterestRate, p.CampaignRate,
			boolInt(p.CampaignActive), p.CampaignStart, p.CampaignEnd, p.MinAmount, p.CommissionRate, boolInt(p.Active))
		if err != nil {
			return fmt.Errorf("failed to create plan %s/%d: %w", p.BankCode, p.Count, err)
		}
		return nil
	}, 3)
}

// SavePlan seeds or reprices an installment row. Use CreatePlan when a
// duplicate (bank, count) must be rejected.
func (s *SQLiteStore) SavePlan(p installment.Plan) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.retryOperation(func() error {
		query := `
		INSERT INTO installment_plans (bank_code, count, interest_rate, campaign_rate,
			campaign_active, campaign_start, campaign_end, min_amount, commission_rate, active)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(bank_code, count) DO UPDATE SET
			interest_rate = excluded.interest_rate,
			campaign_rate = excluded.campaign_rate,
			campaign_active = excluded.campaign_active,
			campaign_start = excluded.campaign_start,
			campaign_end = excluded.campaign_end,
			min_amount = excluded.min_amount,
			commission_rate = excluded.commission_rate,
			active = excluded.active
		`
		_, err := s.db.Exec(query, p.BankCode, p.Count, p.InterestRate, p.CampaignRate,
			boolInt(p.CampaignActive), p.CampaignStart, p.CampaignEnd, p.MinAmount, p.CommissionRate, boolInt(p.Active))
		if err != nil {
			return fmt.Errorf("failed to save plan %s/%d: %w", p.BankCode, p.Count, err)
		}
		return nil
	}, 3)
}

// PlansForBank lists the pricing rows for a bank, ascending by count.
func (s *SQLiteStore) PlansForBank(bankCode string) ([]installment.Plan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(`
		SELECT bank_code, count, interest_rate, campaign_rate, campaign_active,
			campaign_start, campaign_end, min_amount, commission_rate, active
		FROM installment_plans WHERE bank_code = ? ORDER BY count`, bankCode)
	if err != nil {
		return nil, fmt.Errorf("failed to query plans for %s: %w", bankCode, err)
	}
	defer rows.Close()

	var plans []installment.Plan
	for rows.Next() {
		var p installment.Plan
		var campaignActive, active int
		var start, end sql.NullTime
		if err := rows.Scan(&p.BankCode, &p.Count, &p.InterestRate, &p.CampaignRate,
			&campaignActive, &start, &end, &p.MinAmount, &p.CommissionRate, &active); err != nil {
			return nil, fmt.Errorf("failed to scan plan row: %w", err)
		}
		p.CampaignActive = campaignActive != 0
		p.Active = active != 0
		if start.Valid {
			t := start.Time
			p.CampaignStart = &t
		}
		if end.Valid {
			t := end.Time
			p.CampaignEnd = &t
		}
		plans = append(plans, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating plan rows: %w", err)
	}
	return plans, nil
}

// SaveRestriction inserts or updates a category restriction.
func (s *SQLiteStore) SaveRestriction(r installment.Restriction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.retryOperation(func() error {
		query := `
		INSERT INTO category_restrictions (bank_code, category, min_installment,
			max_installment, blocked_installments, installment_allowed)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(bank_code, category) DO UPDATE SET
			min_installment = excluded.min_installment,
			max_installment = excluded.max_installment,
			blocked_installments = excluded.blocked_installments,
			installment_allowed = excluded.installment_allowed
		`
		_, err := s.db.Exec(query, r.BankCode, r.Category, r.MinInstallment,
			r.MaxInstallment, r.BlockedInstallments, boolInt(r.InstallmentAllowed))
		if err != nil {
			return fmt.Errorf("failed to save restriction %s/%s: %w", r.BankCode, r.Category, err)
		}
		return nil
	}, 3)
}

// RestrictionFor loads the restriction for a (bank, category) pair.
func (s *SQLiteStore) RestrictionFor(bankCode, category string) (*installment.Restriction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var r installment.Restriction
	var allowed int
	err := s.db.QueryRow(`
		SELECT bank_code, category, min_installment, max_installment, blocked_installments, installment_allowed
		FROM category_restrictions WHERE bank_code = ? AND category = ?`, bankCode, category).
		Scan(&r.BankCode, &r.Category, &r.MinInstallment, &r.MaxInstallment, &r.BlockedInstallments, &allowed)
	if err == sql.ErrNoRows {
		return nil, bank.NewNotFound("restriction " + bankCode + "/" + category)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load restriction: %w", err)
	}
	r.InstallmentAllowed = allowed != 0
	return &r, nil
}

// --- transactions ---

// SaveTransaction inserts a new transaction row.
func (s *SQLiteStore) SaveTransaction(txn *transaction.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.retryOperation(func() error {
		query := `
		INSERT INTO transactions (id, order_id, bank_code, gateway_kind, amount, refunded_amount,
			currency, installment, payment_model, state, three_d_phase, card_masked, card_brand,
			auth_code, host_ref_num, bank_txn_id, error_code, error_message, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`
		_, err := s.db.Exec(query, txn.ID, txn.OrderID, txn.BankCode, txn.GatewayKind,
			txn.Amount, txn.RefundedAmount, txn.Currency, txn.Installment, txn.PaymentModel,
			string(txn.State), string(txn.ThreeDPhase), txn.CardMasked, txn.CardBrand,
			txn.AuthCode, txn.HostRefNum, txn.BankTxnID, txn.ErrorCode, txn.ErrorMessage,
			txn.CreatedAt, txn.UpdatedAt)
		if err != nil {
			return fmt.Errorf("failed to save transaction %s: %w", txn.ID, err)
		}
		return nil
	}, 3)
}

// UpdateTransaction persists the mutable fields of an existing row.
func (s *SQLiteStore) UpdateTransaction(txn *transaction.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.retryOperation(func() error {
		query := `
		UPDATE transactions SET
			refunded_amount = ?, state = ?, three_d_phase = ?,
			auth_code = ?, host_ref_num = ?, bank_txn_id = ?,
			error_code = ?, error_message = ?, updated_at = ?
		WHERE id = ?
		`
		result, err := s.db.Exec(query, txn.RefundedAmount, string(txn.State), string(txn.ThreeDPhase),
			txn.AuthCode, txn.HostRefNum, txn.BankTxnID, txn.ErrorCode, txn.ErrorMessage,
			txn.UpdatedAt, txn.ID)
		if err != nil {
			return fmt.Errorf("failed to update transaction %s: %w", txn.ID, err)
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get rows affected: %w", err)
		}
		if affected == 0 {
			return fmt.Errorf("transaction not found: %s", txn.ID)
		}
		return nil
	}, 3)
}

const txnColumns = `id, order_id, bank_code, gateway_kind, amount, refunded_amount,
	currency, installment, payment_model, state, three_d_phase, card_masked, card_brand,
	auth_code, host_ref_num, bank_txn_id, error_code, error_message, created_at, updated_at`

func scanTransaction(row *sql.Row) (*transaction.Transaction, error) {
	var txn transaction.Transaction
	var state, phase string
	err := row.Scan(&txn.ID, &txn.OrderID, &txn.BankCode, &txn.GatewayKind,
		&txn.Amount, &txn.RefundedAmount, &txn.Currency, &txn.Installment, &txn.PaymentModel,
		&state, &phase, &txn.CardMasked, &txn.CardBrand,
		&txn.AuthCode, &txn.HostRefNum, &txn.BankTxnID, &txn.ErrorCode, &txn.ErrorMessage,
		&txn.CreatedAt, &txn.UpdatedAt)
	if err != nil {
		return nil, err
	}
	txn.State = transaction.State(state)
	txn.ThreeDPhase = transaction.ThreeDPhase(phase)
	return &txn, nil
}

// GetTransaction loads a transaction by ID.
func (s *SQLiteStore) GetTransaction(id string) (*transaction.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	row := s.db.QueryRow(`SELECT `+txnColumns+` FROM transactions WHERE id = ?`, id)
	txn, err := scanTransaction(row)
	if err == sql.ErrNoRows {
		return nil, bank.NewNotFound("transaction " + id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load transaction %s: %w", id, err)
	}
	return txn, nil
}

// GetTransactionByOrderID loads the most recent transaction for an
// order.
func (s *SQLiteStore) GetTransactionByOrderID(orderID string) (*transaction.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	row := s.db.QueryRow(`SELECT `+txnColumns+` FROM transactions WHERE order_id = ? ORDER BY created_at DESC LIMIT 1`, orderID)
	txn, err := scanTransaction(row)
	if err == sql.ErrNoRows {
		return nil, bank.NewNotFound("transaction for order " + orderID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load transaction for order %s: %w", orderID, err)
	}
	return txn, nil
}

// SaveRefund inserts a refund leg.
func (s *SQLiteStore) SaveRefund(refund *transaction.Refund) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.retryOperation(func() error {
		query := `INSERT INTO refunds (id, transaction_id, amount, state, host_ref_num, error_message, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`
		if _, err := s.db.Exec(query, refund.ID, refund.TransactionID, refund.Amount,
			string(refund.State), refund.HostRefNum, refund.ErrorMessage, refund.CreatedAt); err != nil {
			return fmt.Errorf("failed to save refund %s: %w", refund.ID, err)
		}
		return nil
	}, 3)
}

// RefundsForTransaction lists the refund legs for a transaction,
// oldest first.
func (s *SQLiteStore) RefundsForTransaction(txnID string) ([]transaction.Refund, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(`
		SELECT id, transaction_id, amount, state, host_ref_num, error_message, created_at
		FROM refunds WHERE transaction_id = ? ORDER BY created_at`, txnID)
	if err != nil {
		return nil, fmt.Errorf("failed to query refunds for %s: %w", txnID, err)
	}
	defer rows.Close()

	var refunds []transaction.Refund
	for rows.Next() {
		var r transaction.Refund
		var state string
		if err := rows.Scan(&r.ID, &r.TransactionID, &r.Amount, &state, &r.HostRefNum, &r.ErrorMessage, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan refund row: %w", err)
		}
		r.State = transaction.RefundState(state)
		refunds = append(refunds, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating refund rows: %w", err)
	}
	return refunds, nil
}

// GetStats returns row counts for monitoring.
func (s *SQLiteStore) GetStats() (map[string]any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := make(map[string]any)
	counts := map[string]string{
		"banks":        "SELECT COUNT(*) FROM banks",
		"bins":         "SELECT COUNT(*) FROM bins",
		"plans":        "SELECT COUNT(*) FROM installment_plans",
		"transactions": "SELECT COUNT(*) FROM transactions",
		"refunds":      "SELECT COUNT(*) FROM refunds",
	}
	for key, query := range counts {
		var n int
		if err := s.db.QueryRow(query).Scan(&n); err != nil {
			return nil, fmt.Errorf("failed to count %s: %w", key, err)
		}
		stats[key] = n
	}
	stats["db_path"] = s.path
	return stats, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
