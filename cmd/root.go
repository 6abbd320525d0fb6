package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/hubeiqiao/Literature-screening/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "screening",
	Short: "Literature screening triage service",
	Long:  "Screens bibliographic records against inclusion/exclusion criteria: deterministic rule matching, optional model-assisted triage, and a prepaid credit ledger for managed calls.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
