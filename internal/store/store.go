package store

import (
	"context"
	"fmt"

	"github.com/hubeiqiao/Literature-screening/internal/model"
)

// AccountProfile carries payment-provider identifiers observed on webhook
// events, merged into the caller's account as they appear.
type AccountProfile struct {
	CustomerID    string
	CustomerEmail string
}

// InsufficientCreditError is returned by Debit when the account balance
// cannot cover the requested amount. The failed debit leaves no side
// effects; the balance is untouched.
type InsufficientCreditError struct {
	BalanceCents   int64
	RequestedCents int64
}

func (e *InsufficientCreditError) Error() string {
	return fmt.Sprintf("insufficient credit: balance %d cents, requested %d cents", e.BalanceCents, e.RequestedCents)
}

// Store defines persistence for the triage service: the usage ledger, the
// webhook idempotency markers, and the run history. Credit and Debit are
// atomic read-modify-write operations; concurrent calls for the same
// caller are serialized by the backing database's transaction primitive,
// so two requests can never both pass the insufficiency check against the
// same balance.
type Store interface {
	// Ledger accounts. GetAccount returns nil when no account exists yet.
	GetAccount(ctx context.Context, callerID string) (*model.LedgerAccount, error)
	Credit(ctx context.Context, callerID string, creditCents int64, metadata map[string]any) (*model.CreditResult, error)
	Debit(ctx context.Context, callerID string, amountCents int64, metadata map[string]any) (*model.DebitResult, error)
	MergeAccountProfile(ctx context.Context, callerID string, profile AccountProfile) error
	ListTransactions(ctx context.Context, callerID string, limit int) ([]model.LedgerTransaction, error)

	// Webhook idempotency markers. GetWebhookEvent returns nil when the
	// event id has not been processed.
	GetWebhookEvent(ctx context.Context, eventID string) (*model.WebhookEvent, error)
	PutWebhookEvent(ctx context.Context, event model.WebhookEvent) error

	// Run history, newest first.
	InsertRun(ctx context.Context, run *model.TriageRun) error
	ListRuns(ctx context.Context, callerID string, limit int) ([]model.TriageRun, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
