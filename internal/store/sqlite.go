package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/hubeiqiao/Literature-screening/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL
// mode. The busy timeout serializes concurrent ledger writers.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS billing_accounts (
	caller_id      TEXT PRIMARY KEY,
	balance_cents  INTEGER NOT NULL DEFAULT 0 CHECK (balance_cents >= 0),
	customer_id    TEXT,
	customer_email TEXT,
	updated_at     DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS billing_transactions (
	id                  TEXT PRIMARY KEY,
	caller_id           TEXT NOT NULL REFERENCES billing_accounts(caller_id),
	type                TEXT NOT NULL,
	amount_cents        INTEGER NOT NULL,
	balance_after_cents INTEGER NOT NULL,
	metadata            TEXT,
	created_at          DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS billing_webhook_events (
	event_id     TEXT PRIMARY KEY,
	type         TEXT NOT NULL,
	session_id   TEXT,
	caller_id    TEXT,
	amount_total INTEGER,
	currency     TEXT,
	processed_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS triage_runs (
	id         TEXT PRIMARY KEY,
	caller_id  TEXT NOT NULL,
	provider   TEXT NOT NULL,
	usage_mode TEXT NOT NULL,
	model      TEXT,
	record_key TEXT,
	decision   TEXT NOT NULL,
	warning    TEXT,
	usage      TEXT,
	cost       TEXT,
	created_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_billing_transactions_caller ON billing_transactions(caller_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_triage_runs_caller ON triage_runs(caller_id, created_at DESC);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) GetAccount(ctx context.Context, callerID string) (*model.LedgerAccount, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT caller_id, balance_cents, updated_at FROM billing_accounts WHERE caller_id = ?`,
		callerID,
	)
	var acct model.LedgerAccount
	err := row.Scan(&acct.CallerID, &acct.BalanceCents, &acct.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get account")
	}
	return &acct, nil
}

func (s *SQLiteStore) Credit(ctx context.Context, callerID string, creditCents int64, metadata map[string]any) (*model.CreditResult, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: begin credit")
	}
	defer tx.Rollback() //nolint:errcheck

	previous, err := readBalance(ctx, tx, callerID)
	if err != nil {
		return nil, err
	}
	newBalance := previous + creditCents
	now := time.Now().UTC()

	if err := writeBalance(ctx, tx, callerID, newBalance, now); err != nil {
		return nil, err
	}
	if creditCents > 0 {
		if err := appendTransaction(ctx, tx, callerID, model.TransactionTopUp, creditCents, newBalance, metadata, now); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, eris.Wrap(err, "sqlite: commit credit")
	}
	return &model.CreditResult{
		CreditedCents:        creditCents,
		PreviousBalanceCents: previous,
		NewBalanceCents:      newBalance,
	}, nil
}

func (s *SQLiteStore) Debit(ctx context.Context, callerID string, amountCents int64, metadata map[string]any) (*model.DebitResult, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: begin debit")
	}
	defer tx.Rollback() //nolint:errcheck

	previous, err := readBalance(ctx, tx, callerID)
	if err != nil {
		return nil, err
	}
	if previous < amountCents {
		return nil, &InsufficientCreditError{BalanceCents: previous, RequestedCents: amountCents}
	}

	newBalance := previous - amountCents
	now := time.Now().UTC()

	if err := writeBalance(ctx, tx, callerID, newBalance, now); err != nil {
		return nil, err
	}
	if err := appendTransaction(ctx, tx, callerID, model.TransactionDebit, amountCents, newBalance, metadata, now); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, eris.Wrap(err, "sqlite: commit debit")
	}
	return &model.DebitResult{
		PreviousBalanceCents: previous,
		NewBalanceCents:      newBalance,
	}, nil
}

func (s *SQLiteStore) MergeAccountProfile(ctx context.Context, callerID string, profile AccountProfile) error {
	if profile.CustomerID == "" && profile.CustomerEmail == "" {
		return nil
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO billing_accounts (caller_id, balance_cents, customer_id, customer_email, updated_at)
		 VALUES (?, 0, NULLIF(?, ''), NULLIF(?, ''), ?)
		 ON CONFLICT(caller_id) DO UPDATE SET
			customer_id    = COALESCE(NULLIF(excluded.customer_id, ''), billing_accounts.customer_id),
			customer_email = COALESCE(NULLIF(excluded.customer_email, ''), billing_accounts.customer_email),
			updated_at     = excluded.updated_at`,
		callerID, profile.CustomerID, profile.CustomerEmail, time.Now().UTC(),
	)
	return eris.Wrap(err, "sqlite: merge account profile")
}

func (s *SQLiteStore) ListTransactions(ctx context.Context, callerID string, limit int) ([]model.LedgerTransaction, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, type, amount_cents, balance_after_cents, metadata, created_at
		 FROM billing_transactions WHERE caller_id = ?
		 ORDER BY created_at DESC, id DESC LIMIT ?`,
		callerID, limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list transactions")
	}
	defer rows.Close()

	var txs []model.LedgerTransaction
	for rows.Next() {
		var t model.LedgerTransaction
		var metadataJSON sql.NullString
		if err := rows.Scan(&t.ID, &t.Type, &t.AmountCents, &t.BalanceAfterCents, &metadataJSON, &t.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan transaction")
		}
		if metadataJSON.Valid && metadataJSON.String != "" {
			if err := json.Unmarshal([]byte(metadataJSON.String), &t.Metadata); err != nil {
				return nil, eris.Wrap(err, "sqlite: unmarshal transaction metadata")
			}
		}
		txs = append(txs, t)
	}
	return txs, eris.Wrap(rows.Err(), "sqlite: list transactions iterate")
}

func (s *SQLiteStore) GetWebhookEvent(ctx context.Context, eventID string) (*model.WebhookEvent, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT event_id, type, session_id, caller_id, amount_total, currency, processed_at
		 FROM billing_webhook_events WHERE event_id = ?`,
		eventID,
	)
	var ev model.WebhookEvent
	err := row.Scan(&ev.EventID, &ev.Type, &ev.SessionID, &ev.CallerID, &ev.AmountTotal, &ev.Currency, &ev.ProcessedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get webhook event")
	}
	return &ev, nil
}

func (s *SQLiteStore) PutWebhookEvent(ctx context.Context, event model.WebhookEvent) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO billing_webhook_events (event_id, type, session_id, caller_id, amount_total, currency, processed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(event_id) DO NOTHING`,
		event.EventID, event.Type, event.SessionID, event.CallerID, event.AmountTotal, event.Currency, event.ProcessedAt,
	)
	return eris.Wrap(err, "sqlite: put webhook event")
}

func (s *SQLiteStore) InsertRun(ctx context.Context, run *model.TriageRun) error {
	if run.ID == "" {
		run.ID = uuid.New().String()
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}

	decisionJSON, err := json.Marshal(run.Decision)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal decision")
	}
	usageJSON, err := marshalNullable(run.Usage)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal usage")
	}
	costJSON, err := marshalNullable(run.Cost)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal cost")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO triage_runs (id, caller_id, provider, usage_mode, model, record_key, decision, warning, usage, cost, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.CallerID, run.Provider, run.UsageMode, run.Model, run.RecordKey,
		string(decisionJSON), run.Warning, usageJSON, costJSON, run.CreatedAt,
	)
	return eris.Wrap(err, "sqlite: insert run")
}

func (s *SQLiteStore) ListRuns(ctx context.Context, callerID string, limit int) ([]model.TriageRun, error) {
	if limit <= 0 {
		limit = 25
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, caller_id, provider, usage_mode, model, record_key, decision, warning, usage, cost, created_at
		 FROM triage_runs WHERE caller_id = ?
		 ORDER BY created_at DESC, id DESC LIMIT ?`,
		callerID, limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close()

	var runs []model.TriageRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: list runs iterate")
}

// helpers

func readBalance(ctx context.Context, tx *sql.Tx, callerID string) (int64, error) {
	var balance int64
	err := tx.QueryRowContext(ctx,
		`SELECT balance_cents FROM billing_accounts WHERE caller_id = ?`, callerID,
	).Scan(&balance)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: read balance")
	}
	return balance, nil
}

func writeBalance(ctx context.Context, tx *sql.Tx, callerID string, balance int64, now time.Time) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO billing_accounts (caller_id, balance_cents, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(caller_id) DO UPDATE SET balance_cents = excluded.balance_cents, updated_at = excluded.updated_at`,
		callerID, balance, now,
	)
	return eris.Wrap(err, "sqlite: write balance")
}

func appendTransaction(ctx context.Context, tx *sql.Tx, callerID string, txType model.TransactionType, amount, balanceAfter int64, metadata map[string]any, now time.Time) error {
	metadataJSON, err := marshalNullable(metadata)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal transaction metadata")
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO billing_transactions (id, caller_id, type, amount_cents, balance_after_cents, metadata, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		uuid.New().String(), callerID, string(txType), amount, balanceAfter, metadataJSON, now,
	)
	return eris.Wrap(err, "sqlite: append transaction")
}

// marshalNullable returns a JSON string for v, or nil for a nil value so
// the column stays NULL.
func marshalNullable(v any) (any, error) {
	switch val := v.(type) {
	case nil:
		return nil, nil
	case map[string]any:
		if len(val) == 0 {
			return nil, nil
		}
	case *model.TokenUsage:
		if val == nil {
			return nil, nil
		}
	case *model.CostSummary:
		if val == nil {
			return nil, nil
		}
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanRun(row scannable) (*model.TriageRun, error) {
	var run model.TriageRun
	var decisionJSON string
	var warning, usageJSON, costJSON, modelID, recordKey sql.NullString

	err := row.Scan(&run.ID, &run.CallerID, &run.Provider, &run.UsageMode, &modelID, &recordKey,
		&decisionJSON, &warning, &usageJSON, &costJSON, &run.CreatedAt)
	if err != nil {
		return nil, eris.Wrap(err, "store: scan run")
	}

	run.Model = modelID.String
	run.RecordKey = recordKey.String
	run.Warning = warning.String
	if err := json.Unmarshal([]byte(decisionJSON), &run.Decision); err != nil {
		return nil, eris.Wrap(err, "store: unmarshal decision")
	}
	if usageJSON.Valid && usageJSON.String != "" {
		run.Usage = &model.TokenUsage{}
		if err := json.Unmarshal([]byte(usageJSON.String), run.Usage); err != nil {
			return nil, eris.Wrap(err, "store: unmarshal usage")
		}
	}
	if costJSON.Valid && costJSON.String != "" {
		run.Cost = &model.CostSummary{}
		if err := json.Unmarshal([]byte(costJSON.String), run.Cost); err != nil {
			return nil, eris.Wrap(err, "store: unmarshal cost")
		}
	}
	return &run, nil
}
