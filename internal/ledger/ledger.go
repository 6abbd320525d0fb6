// Package ledger implements the prepaid usage balance: credits from
// payment webhooks, debits from metered triage calls. Balance mutation is
// delegated to the store's atomic read-modify-write operations; this
// package owns the business rules around them.
package ledger

import (
	"context"
	"math"
	"time"

	"github.com/rotisserie/eris"

	"github.com/hubeiqiao/Literature-screening/internal/model"
	"github.com/hubeiqiao/Literature-screening/internal/store"
)

// CreditConversionRate converts charged cents into credited cents. Fixed:
// a 1000-cent charge yields 500 cents of credit.
const CreditConversionRate = 0.5

// Ledger wraps the store with conversion, metadata sanitization, and the
// global disable switch.
type Ledger struct {
	store   store.Store
	enabled bool
}

// New creates a Ledger. With enabled=false the ledger runs in its
// documented offline mode: Balance reports zero, Credit reports the
// nominal conversion against a zero previous balance, and Debit always
// succeeds against an effectively unlimited balance. Nothing is persisted
// in that mode.
func New(st store.Store, enabled bool) *Ledger {
	return &Ledger{store: st, enabled: enabled}
}

// Enabled reports whether the ledger persists balances.
func (l *Ledger) Enabled() bool {
	return l.enabled
}

// BalanceSnapshot is a point-in-time view of a caller's balance.
// UpdatedAt is nil when no account exists yet.
type BalanceSnapshot struct {
	BalanceCents int64      `json:"balanceCents"`
	UpdatedAt    *time.Time `json:"updatedAt"`
}

// Balance returns the caller's current balance, zero when no account
// exists or the ledger is disabled.
func (l *Ledger) Balance(ctx context.Context, callerID string) (BalanceSnapshot, error) {
	if !l.enabled {
		return BalanceSnapshot{}, nil
	}
	acct, err := l.store.GetAccount(ctx, callerID)
	if err != nil {
		return BalanceSnapshot{}, eris.Wrap(err, "ledger: balance")
	}
	if acct == nil {
		return BalanceSnapshot{}, nil
	}
	updatedAt := acct.UpdatedAt
	return BalanceSnapshot{BalanceCents: acct.BalanceCents, UpdatedAt: &updatedAt}, nil
}

// ConvertChargeCents applies the fixed conversion rate to a charge,
// flooring the result and never returning a negative amount.
func ConvertChargeCents(chargeCents int64) int64 {
	credited := int64(math.Floor(float64(chargeCents) * CreditConversionRate))
	if credited < 0 {
		return 0
	}
	return credited
}

// Credit converts a charge into credits and applies it atomically: read
// balance, write balance+credit, append a topup transaction (only when the
// credited amount is positive).
func (l *Ledger) Credit(ctx context.Context, callerID string, chargeCents int64, metadata map[string]any) (*model.CreditResult, error) {
	credited := ConvertChargeCents(chargeCents)
	if !l.enabled {
		return &model.CreditResult{
			CreditedCents:        credited,
			PreviousBalanceCents: 0,
			NewBalanceCents:      credited,
		}, nil
	}

	result, err := l.store.Credit(ctx, callerID, credited, SanitizeMetadata(metadata))
	if err != nil {
		return nil, eris.Wrap(err, "ledger: credit")
	}
	return result, nil
}

// Debit atomically subtracts amountCents from the caller's balance and
// appends a debit transaction. A non-positive amount is a no-op returning
// the current balance. When the balance cannot cover the amount the store
// returns *store.InsufficientCreditError and the balance is untouched.
func (l *Ledger) Debit(ctx context.Context, callerID string, amountCents int64, metadata map[string]any) (*model.DebitResult, error) {
	if !l.enabled {
		return &model.DebitResult{
			PreviousBalanceCents: math.MaxInt64,
			NewBalanceCents:      math.MaxInt64,
		}, nil
	}

	if amountCents <= 0 {
		snapshot, err := l.Balance(ctx, callerID)
		if err != nil {
			return nil, err
		}
		return &model.DebitResult{
			PreviousBalanceCents: snapshot.BalanceCents,
			NewBalanceCents:      snapshot.BalanceCents,
		}, nil
	}

	result, err := l.store.Debit(ctx, callerID, amountCents, SanitizeMetadata(metadata))
	if err != nil {
		// Insufficient credit passes through untouched so callers can
		// distinguish it from storage faults.
		var insufficient *store.InsufficientCreditError
		if eris.As(err, &insufficient) {
			return nil, err
		}
		return nil, eris.Wrap(err, "ledger: debit")
	}
	return result, nil
}

// History returns the caller's most recent ledger transactions, newest
// first.
func (l *Ledger) History(ctx context.Context, callerID string, limit int) ([]model.LedgerTransaction, error) {
	if !l.enabled {
		return nil, nil
	}
	txs, err := l.store.ListTransactions(ctx, callerID, limit)
	if err != nil {
		return nil, eris.Wrap(err, "ledger: history")
	}
	return txs, nil
}

// SanitizeMetadata keeps only scalar-or-null values so the audit log stays
// queryable and bounded. Object and array values are dropped.
func SanitizeMetadata(metadata map[string]any) map[string]any {
	if len(metadata) == 0 {
		return nil
	}
	out := make(map[string]any, len(metadata))
	for key, value := range metadata {
		switch value.(type) {
		case nil, string, bool,
			int, int32, int64, uint, uint32, uint64,
			float32, float64:
			out[key] = value
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
