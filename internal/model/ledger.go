package model

import "time"

// TransactionType distinguishes ledger entries.
type TransactionType string

const (
	TransactionTopUp TransactionType = "topup"
	TransactionDebit TransactionType = "debit"
)

// LedgerAccount is the per-caller prepaid balance. One account per caller,
// created lazily on the first credit or debit.
type LedgerAccount struct {
	CallerID     string    `json:"callerId"`
	BalanceCents int64     `json:"balanceCents"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// LedgerTransaction is one append-only entry in an account's audit log.
// Entries are never mutated or deleted.
type LedgerTransaction struct {
	ID                string          `json:"id"`
	Type              TransactionType `json:"type"`
	AmountCents       int64           `json:"amountCents"`
	BalanceAfterCents int64           `json:"balanceAfterCents"`
	CreatedAt         time.Time       `json:"createdAt"`
	Metadata          map[string]any  `json:"metadata,omitempty"`
}

// CreditResult reports the outcome of a top-up.
type CreditResult struct {
	CreditedCents        int64 `json:"creditedCents"`
	PreviousBalanceCents int64 `json:"previousBalanceCents"`
	NewBalanceCents      int64 `json:"newBalanceCents"`
}

// DebitResult reports the outcome of a committed debit.
type DebitResult struct {
	PreviousBalanceCents int64 `json:"previousBalanceCents"`
	NewBalanceCents      int64 `json:"newBalanceCents"`
}

// WebhookEvent is the idempotency marker for a processed payment event.
// Existence of a row with a given EventID means the event has been applied.
type WebhookEvent struct {
	EventID     string    `json:"eventId"`
	Type        string    `json:"type"`
	SessionID   string    `json:"sessionId"`
	CallerID    string    `json:"callerId"`
	AmountTotal int64     `json:"amountTotal"`
	Currency    string    `json:"currency"`
	ProcessedAt time.Time `json:"processedAt"`
}
