package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/hubeiqiao/Literature-screening/internal/ledger"
)

var ledgerCmd = &cobra.Command{
	Use:   "ledger",
	Short: "Inspect and adjust caller credit balances",
}

var ledgerBalanceCmd = &cobra.Command{
	Use:   "balance <caller-id>",
	Short: "Show a caller's current balance",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		led, closeFn, err := initLedger(cmd)
		if err != nil {
			return err
		}
		defer closeFn()

		snapshot, err := led.Balance(ctx, args[0])
		if err != nil {
			return err
		}

		fmt.Printf("Caller:  %s\n", args[0])
		fmt.Printf("Balance: %d cents\n", snapshot.BalanceCents)
		if snapshot.UpdatedAt != nil {
			fmt.Printf("Updated: %s\n", snapshot.UpdatedAt.Format("2006-01-02 15:04:05 MST"))
		}
		return nil
	},
}

var ledgerHistoryCmd = &cobra.Command{
	Use:   "history <caller-id>",
	Short: "Show a caller's recent transactions",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		led, closeFn, err := initLedger(cmd)
		if err != nil {
			return err
		}
		defer closeFn()

		limit, _ := cmd.Flags().GetInt("limit")
		transactions, err := led.History(ctx, args[0], limit)
		if err != nil {
			return err
		}
		if len(transactions) == 0 {
			fmt.Println("No transactions.")
			return nil
		}

		fmt.Printf("%-20s %-8s %10s %10s\n", "CREATED", "TYPE", "AMOUNT", "BALANCE")
		for _, tx := range transactions {
			fmt.Printf("%-20s %-8s %10d %10d\n",
				tx.CreatedAt.Format("2006-01-02 15:04:05"),
				tx.Type,
				tx.AmountCents,
				tx.BalanceAfterCents,
			)
		}
		return nil
	},
}

var ledgerCreditCmd = &cobra.Command{
	Use:   "credit <caller-id> <charge-cents>",
	Short: "Apply a manual top-up as if a payment of charge-cents completed",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		var chargeCents int64
		if _, err := fmt.Sscanf(args[1], "%d", &chargeCents); err != nil || chargeCents <= 0 {
			return eris.Errorf("ledger credit: charge-cents must be a positive integer (got %q)", args[1])
		}

		led, closeFn, err := initLedger(cmd)
		if err != nil {
			return err
		}
		defer closeFn()

		result, err := led.Credit(ctx, args[0], chargeCents, map[string]any{
			"source": "manual-credit",
		})
		if err != nil {
			return err
		}

		fmt.Printf("Credited: %d cents (from %d cent charge)\n", result.CreditedCents, chargeCents)
		fmt.Printf("Balance:  %d -> %d cents\n", result.PreviousBalanceCents, result.NewBalanceCents)
		return nil
	},
}

func initLedger(cmd *cobra.Command) (*ledger.Ledger, func(), error) {
	st, err := initStore(cmd.Context())
	if err != nil {
		return nil, nil, err
	}
	if err := st.Migrate(cmd.Context()); err != nil {
		st.Close()
		return nil, nil, eris.Wrap(err, "ledger: migrate store")
	}
	led := ledger.New(st, !cfg.Billing.LedgerDisabled)
	return led, func() { st.Close() }, nil
}

func init() {
	ledgerHistoryCmd.Flags().Int("limit", 50, "maximum transactions to show")

	ledgerCmd.AddCommand(ledgerBalanceCmd)
	ledgerCmd.AddCommand(ledgerHistoryCmd)
	ledgerCmd.AddCommand(ledgerCreditCmd)
	rootCmd.AddCommand(ledgerCmd)
}
