package ledger

import (
	"context"
	"math"
	"path/filepath"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hubeiqiao/Literature-screening/internal/model"
	"github.com/hubeiqiao/Literature-screening/internal/store"
)

func newTestLedger(t *testing.T, enabled bool) *Ledger {
	t.Helper()
	s, err := store.NewSQLite(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	require.NoError(t, s.Migrate(context.Background()))
	return New(s, enabled)
}

func TestConvertChargeCents_FloorsHalf(t *testing.T) {
	assert.Equal(t, int64(500), ConvertChargeCents(1000))
	assert.Equal(t, int64(0), ConvertChargeCents(1))
	assert.Equal(t, int64(2), ConvertChargeCents(5))
	assert.Equal(t, int64(0), ConvertChargeCents(0))
	assert.Equal(t, int64(0), ConvertChargeCents(-100))
}

func TestLedger_Credit_ConvertsAndPersists(t *testing.T) {
	led := newTestLedger(t, true)
	ctx := context.Background()

	result, err := led.Credit(ctx, "caller-1", 1000, map[string]any{"eventId": "evt_1"})
	require.NoError(t, err)
	assert.Equal(t, int64(500), result.CreditedCents)
	assert.Equal(t, int64(0), result.PreviousBalanceCents)
	assert.Equal(t, int64(500), result.NewBalanceCents)

	snapshot, err := led.Balance(ctx, "caller-1")
	require.NoError(t, err)
	assert.Equal(t, int64(500), snapshot.BalanceCents)
	require.NotNil(t, snapshot.UpdatedAt)
}

func TestLedger_CreditThenDebit_Conserves(t *testing.T) {
	led := newTestLedger(t, true)
	ctx := context.Background()

	_, err := led.Credit(ctx, "caller-1", 2000, nil)
	require.NoError(t, err)

	result, err := led.Debit(ctx, "caller-1", 300, map[string]any{"runId": "run_1"})
	require.NoError(t, err)
	assert.Equal(t, int64(1000), result.PreviousBalanceCents)
	assert.Equal(t, int64(700), result.NewBalanceCents)

	history, err := led.History(ctx, "caller-1", 0)
	require.NoError(t, err)
	require.Len(t, history, 2)
	// Every entry's balance equals the previous balance plus-or-minus its
	// own amount; the newest entry matches the live balance.
	snapshot, err := led.Balance(ctx, "caller-1")
	require.NoError(t, err)
	assert.Equal(t, snapshot.BalanceCents, history[0].BalanceAfterCents)
}

func TestLedger_Debit_InsufficientIsTypedAndSideEffectFree(t *testing.T) {
	led := newTestLedger(t, true)
	ctx := context.Background()

	_, err := led.Credit(ctx, "caller-1", 1200, nil)
	require.NoError(t, err)

	_, err = led.Debit(ctx, "caller-1", 700, nil)
	require.Error(t, err)
	var insufficient *store.InsufficientCreditError
	require.True(t, eris.As(err, &insufficient))
	assert.Equal(t, int64(600), insufficient.BalanceCents)
	assert.Equal(t, int64(700), insufficient.RequestedCents)

	snapshot, err := led.Balance(ctx, "caller-1")
	require.NoError(t, err)
	assert.Equal(t, int64(600), snapshot.BalanceCents)

	history, err := led.History(ctx, "caller-1", 0)
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

func TestLedger_Debit_NonPositiveIsNoop(t *testing.T) {
	led := newTestLedger(t, true)
	ctx := context.Background()

	_, err := led.Credit(ctx, "caller-1", 1000, nil)
	require.NoError(t, err)

	result, err := led.Debit(ctx, "caller-1", 0, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(500), result.PreviousBalanceCents)
	assert.Equal(t, int64(500), result.NewBalanceCents)

	history, err := led.History(ctx, "caller-1", 0)
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

func TestLedger_Balance_UnknownCallerIsZero(t *testing.T) {
	led := newTestLedger(t, true)

	snapshot, err := led.Balance(context.Background(), "ghost")
	require.NoError(t, err)
	assert.Equal(t, int64(0), snapshot.BalanceCents)
	assert.Nil(t, snapshot.UpdatedAt)
}

func TestLedger_Disabled_NothingPersists(t *testing.T) {
	led := newTestLedger(t, false)
	ctx := context.Background()

	assert.False(t, led.Enabled())

	credit, err := led.Credit(ctx, "caller-1", 1000, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(500), credit.CreditedCents)
	assert.Equal(t, int64(500), credit.NewBalanceCents)

	debit, err := led.Debit(ctx, "caller-1", 999999, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(math.MaxInt64), debit.PreviousBalanceCents)
	assert.Equal(t, int64(math.MaxInt64), debit.NewBalanceCents)

	snapshot, err := led.Balance(ctx, "caller-1")
	require.NoError(t, err)
	assert.Equal(t, int64(0), snapshot.BalanceCents)

	history, err := led.History(ctx, "caller-1", 0)
	require.NoError(t, err)
	assert.Nil(t, history)
}

func TestSanitizeMetadata_DropsNonScalars(t *testing.T) {
	got := SanitizeMetadata(map[string]any{
		"eventId": "evt_1",
		"amount":  int64(1000),
		"paid":    true,
		"ratio":   0.5,
		"nested":  map[string]any{"drop": "me"},
		"list":    []string{"drop"},
		"blank":   nil,
	})
	require.NotNil(t, got)
	assert.Equal(t, "evt_1", got["eventId"])
	assert.Equal(t, int64(1000), got["amount"])
	assert.Equal(t, true, got["paid"])
	assert.Equal(t, 0.5, got["ratio"])
	assert.Contains(t, got, "blank")
	assert.NotContains(t, got, "nested")
	assert.NotContains(t, got, "list")
}

func TestSanitizeMetadata_EmptyBecomesNil(t *testing.T) {
	assert.Nil(t, SanitizeMetadata(nil))
	assert.Nil(t, SanitizeMetadata(map[string]any{}))
	assert.Nil(t, SanitizeMetadata(map[string]any{"only": []int{1}}))
}

func TestLedger_History_LimitPassedThrough(t *testing.T) {
	led := newTestLedger(t, true)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		_, err := led.Credit(ctx, "caller-1", 100, nil)
		require.NoError(t, err)
	}
	history, err := led.History(ctx, "caller-1", 2)
	require.NoError(t, err)
	assert.Len(t, history, 2)

	for _, tx := range history {
		assert.Equal(t, model.TransactionTopUp, tx.Type)
	}
}
