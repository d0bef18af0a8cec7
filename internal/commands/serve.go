package commands

import (
	"fmt"
	"net/http"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"github.com/cleared-dev/fluxo/internal/config"
	"github.com/cleared-dev/fluxo/internal/server"
)

func newServeCommand() *cobra.Command {
	var cfgPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP service with the scheduled overdue sweep",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgPath)
			if err != nil {
				return err
			}
			return runServe(cfg)
		},
	}

	cmd.Flags().StringVar(&cfgPath, "config", "fluxo.yaml", "path to the configuration file")

	return cmd
}

func runServe(cfg *config.Config) error {
	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	if cfg.Sweep.Schedule != "" {
		c := cron.New()
		_, err := c.AddFunc(cfg.Sweep.Schedule, func() {
			if _, err := a.ledger.SweepOverdue(time.Now().UTC()); err != nil {
				a.log.Errorf("scheduled sweep failed: %v", err)
			}
		})
		if err != nil {
			return fmt.Errorf("registering sweep schedule %q: %w", cfg.Sweep.Schedule, err)
		}
		c.Start()
		defer c.Stop()
	}

	srv := server.New(a.normalizer, a.ledger, a.matcher, a.forecaster, a.log)
	httpSrv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      srv.Router(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	a.log.Infof("listening on %s", httpSrv.Addr)
	if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server failed: %w", err)
	}
	return nil
}
