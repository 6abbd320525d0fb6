package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/hubeiqiao/Literature-screening/internal/model"
)

// Pool abstracts the pgx pool operations the store uses, so tests can
// substitute pgxmock.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
	Ping(ctx context.Context) error
	Close()
}

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool Pool
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool}, nil
}

// NewPostgresWithPool wraps an existing pool (tests use pgxmock here).
func NewPostgresWithPool(pool Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS billing_accounts (
	caller_id      TEXT PRIMARY KEY,
	balance_cents  BIGINT NOT NULL DEFAULT 0 CHECK (balance_cents >= 0),
	customer_id    TEXT,
	customer_email TEXT,
	updated_at     TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS billing_transactions (
	id                  TEXT PRIMARY KEY,
	caller_id           TEXT NOT NULL REFERENCES billing_accounts(caller_id),
	type                TEXT NOT NULL,
	amount_cents        BIGINT NOT NULL,
	balance_after_cents BIGINT NOT NULL,
	metadata            JSONB,
	created_at          TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS billing_webhook_events (
	event_id     TEXT PRIMARY KEY,
	type         TEXT NOT NULL,
	session_id   TEXT,
	caller_id    TEXT,
	amount_total BIGINT,
	currency     TEXT,
	processed_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS triage_runs (
	id         TEXT PRIMARY KEY,
	caller_id  TEXT NOT NULL,
	provider   TEXT NOT NULL,
	usage_mode TEXT NOT NULL,
	model      TEXT,
	record_key TEXT,
	decision   JSONB NOT NULL,
	warning    TEXT,
	usage      JSONB,
	cost       JSONB,
	created_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_billing_transactions_caller ON billing_transactions(caller_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_triage_runs_caller ON triage_runs(caller_id, created_at DESC);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.pool.Ping(ctx), "postgres: ping")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) GetAccount(ctx context.Context, callerID string) (*model.LedgerAccount, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT caller_id, balance_cents, updated_at FROM billing_accounts WHERE caller_id = $1`,
		callerID,
	)
	var acct model.LedgerAccount
	err := row.Scan(&acct.CallerID, &acct.BalanceCents, &acct.UpdatedAt)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: get account")
	}
	return &acct, nil
}

func (s *PostgresStore) Credit(ctx context.Context, callerID string, creditCents int64, metadata map[string]any) (*model.CreditResult, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: begin credit")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	previous, err := pgReadBalanceForUpdate(ctx, tx, callerID)
	if err != nil {
		return nil, err
	}
	newBalance := previous + creditCents
	now := time.Now().UTC()

	if err := pgWriteBalance(ctx, tx, callerID, newBalance, now); err != nil {
		return nil, err
	}
	if creditCents > 0 {
		if err := pgAppendTransaction(ctx, tx, callerID, model.TransactionTopUp, creditCents, newBalance, metadata, now); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, eris.Wrap(err, "postgres: commit credit")
	}
	return &model.CreditResult{
		CreditedCents:        creditCents,
		PreviousBalanceCents: previous,
		NewBalanceCents:      newBalance,
	}, nil
}

func (s *PostgresStore) Debit(ctx context.Context, callerID string, amountCents int64, metadata map[string]any) (*model.DebitResult, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: begin debit")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	previous, err := pgReadBalanceForUpdate(ctx, tx, callerID)
	if err != nil {
		return nil, err
	}
	if previous < amountCents {
		return nil, &InsufficientCreditError{BalanceCents: previous, RequestedCents: amountCents}
	}

	newBalance := previous - amountCents
	now := time.Now().UTC()

	if err := pgWriteBalance(ctx, tx, callerID, newBalance, now); err != nil {
		return nil, err
	}
	if err := pgAppendTransaction(ctx, tx, callerID, model.TransactionDebit, amountCents, newBalance, metadata, now); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, eris.Wrap(err, "postgres: commit debit")
	}
	return &model.DebitResult{
		PreviousBalanceCents: previous,
		NewBalanceCents:      newBalance,
	}, nil
}

func (s *PostgresStore) MergeAccountProfile(ctx context.Context, callerID string, profile AccountProfile) error {
	if profile.CustomerID == "" && profile.CustomerEmail == "" {
		return nil
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO billing_accounts (caller_id, balance_cents, customer_id, customer_email, updated_at)
		 VALUES ($1, 0, NULLIF($2, ''), NULLIF($3, ''), $4)
		 ON CONFLICT (caller_id) DO UPDATE SET
			customer_id    = COALESCE(NULLIF(EXCLUDED.customer_id, ''), billing_accounts.customer_id),
			customer_email = COALESCE(NULLIF(EXCLUDED.customer_email, ''), billing_accounts.customer_email),
			updated_at     = EXCLUDED.updated_at`,
		callerID, profile.CustomerID, profile.CustomerEmail, time.Now().UTC(),
	)
	return eris.Wrap(err, "postgres: merge account profile")
}

func (s *PostgresStore) ListTransactions(ctx context.Context, callerID string, limit int) ([]model.LedgerTransaction, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, type, amount_cents, balance_after_cents, metadata, created_at
		 FROM billing_transactions WHERE caller_id = $1
		 ORDER BY created_at DESC, id DESC LIMIT $2`,
		callerID, limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list transactions")
	}
	defer rows.Close()

	var txs []model.LedgerTransaction
	for rows.Next() {
		var t model.LedgerTransaction
		var metadataJSON []byte
		if err := rows.Scan(&t.ID, &t.Type, &t.AmountCents, &t.BalanceAfterCents, &metadataJSON, &t.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan transaction")
		}
		if len(metadataJSON) > 0 {
			if err := json.Unmarshal(metadataJSON, &t.Metadata); err != nil {
				return nil, eris.Wrap(err, "postgres: unmarshal transaction metadata")
			}
		}
		txs = append(txs, t)
	}
	return txs, eris.Wrap(rows.Err(), "postgres: list transactions iterate")
}

func (s *PostgresStore) GetWebhookEvent(ctx context.Context, eventID string) (*model.WebhookEvent, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT event_id, type, session_id, caller_id, amount_total, currency, processed_at
		 FROM billing_webhook_events WHERE event_id = $1`,
		eventID,
	)
	var ev model.WebhookEvent
	err := row.Scan(&ev.EventID, &ev.Type, &ev.SessionID, &ev.CallerID, &ev.AmountTotal, &ev.Currency, &ev.ProcessedAt)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: get webhook event")
	}
	return &ev, nil
}

func (s *PostgresStore) PutWebhookEvent(ctx context.Context, event model.WebhookEvent) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO billing_webhook_events (event_id, type, session_id, caller_id, amount_total, currency, processed_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (event_id) DO NOTHING`,
		event.EventID, event.Type, event.SessionID, event.CallerID, event.AmountTotal, event.Currency, event.ProcessedAt,
	)
	return eris.Wrap(err, "postgres: put webhook event")
}

func (s *PostgresStore) InsertRun(ctx context.Context, run *model.TriageRun) error {
	if run.ID == "" {
		run.ID = uuid.New().String()
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}

	decisionJSON, err := json.Marshal(run.Decision)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal decision")
	}
	usageJSON, err := marshalNullable(run.Usage)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal usage")
	}
	costJSON, err := marshalNullable(run.Cost)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal cost")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO triage_runs (id, caller_id, provider, usage_mode, model, record_key, decision, warning, usage, cost, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		run.ID, run.CallerID, run.Provider, run.UsageMode, run.Model, run.RecordKey,
		string(decisionJSON), run.Warning, usageJSON, costJSON, run.CreatedAt,
	)
	return eris.Wrap(err, "postgres: insert run")
}

func (s *PostgresStore) ListRuns(ctx context.Context, callerID string, limit int) ([]model.TriageRun, error) {
	if limit <= 0 {
		limit = 25
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, caller_id, provider, usage_mode, model, record_key, decision, warning, usage, cost, created_at
		 FROM triage_runs WHERE caller_id = $1
		 ORDER BY created_at DESC, id DESC LIMIT $2`,
		callerID, limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
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
	return runs, eris.Wrap(rows.Err(), "postgres: list runs iterate")
}

// tx helpers

func pgReadBalanceForUpdate(ctx context.Context, tx pgx.Tx, callerID string) (int64, error) {
	var balance int64
	err := tx.QueryRow(ctx,
		`SELECT balance_cents FROM billing_accounts WHERE caller_id = $1 FOR UPDATE`, callerID,
	).Scan(&balance)
	if err == pgx.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, eris.Wrap(err, "postgres: read balance")
	}
	return balance, nil
}

func pgWriteBalance(ctx context.Context, tx pgx.Tx, callerID string, balance int64, now time.Time) error {
	_, err := tx.Exec(ctx,
		`INSERT INTO billing_accounts (caller_id, balance_cents, updated_at) VALUES ($1, $2, $3)
		 ON CONFLICT (caller_id) DO UPDATE SET balance_cents = EXCLUDED.balance_cents, updated_at = EXCLUDED.updated_at`,
		callerID, balance, now,
	)
	return eris.Wrap(err, "postgres: write balance")
}

func pgAppendTransaction(ctx context.Context, tx pgx.Tx, callerID string, txType model.TransactionType, amount, balanceAfter int64, metadata map[string]any, now time.Time) error {
	metadataJSON, err := marshalNullable(metadata)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal transaction metadata")
	}
	_, err = tx.Exec(ctx,
		`INSERT INTO billing_transactions (id, caller_id, type, amount_cents, balance_after_cents, metadata, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		uuid.New().String(), callerID, string(txType), amount, balanceAfter, metadataJSON, now,
	)
	return eris.Wrap(err, "postgres: append transaction")
}
