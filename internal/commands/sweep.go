package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/cleared-dev/fluxo/internal/config"
)

func newSweepCommand() *cobra.Command {
	var cfgPath string

	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Mark past-due pending installments overdue and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgPath)
			if err != nil {
				return err
			}
			return runSweep(cfg)
		},
	}

	cmd.Flags().StringVar(&cfgPath, "config", "fluxo.yaml", "path to the configuration file")

	return cmd
}

func runSweep(cfg *config.Config) error {
	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	updated, err := a.ledger.SweepOverdue(time.Now().UTC())
	if err != nil {
		return err
	}
	fmt.Printf("Marked %d installment(s) overdue\n", updated)
	return nil
}
