package main

import (
	"context"
	"fmt"
	"log"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/devagent-ai/devagent/pkg/audit"
	"github.com/devagent-ai/devagent/pkg/budget"
	cachepkg "github.com/devagent-ai/devagent/pkg/cache/sqlite"
	"github.com/devagent-ai/devagent/pkg/media"
	"github.com/devagent-ai/devagent/pkg/router"
	"github.com/devagent-ai/devagent/pkg/server"
	"github.com/devagent-ai/devagent/pkg/tokens"
	"github.com/devagent-ai/devagent/pkg/tracker"
	"github.com/devagent-ai/devagent/pkg/workspace"
)

func newServeCmd() *cobra.Command {
	var (
		configPath string
		listen     string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the devagent HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			if listen != "" {
				cfg.Listen = listen
			}

			cat, err := buildCatalog(cfg)
			if err != nil {
				return err
			}
			adapters := buildProviders(cfg)
			ledger := tokens.NewLedger()

			root, err := cfg.ResolveWorkspaceRoot()
			if err != nil {
				return err
			}
			ws, err := workspace.New(root, cfg.Workspace.Exclude)
			if err != nil {
				return fmt.Errorf("init workspace: %w", err)
			}

			tr, err := tracker.New(cfg.DBPath)
			if err != nil {
				return fmt.Errorf("init tracker: %w", err)
			}
			defer func() { _ = tr.Close() }()

			deps := server.Deps{
				Router:    router.New(cat, adapters, ledger),
				Catalog:   cat,
				Ledger:    ledger,
				Workspace: ws,
				Media:     media.NewGenerator(adapters.OpenRouter),
				Tracker:   tr,
			}

			if cfg.Cache.Enabled {
				c, err := cachepkg.New(cfg.DBPath, cfg.Cache.TTL)
				if err != nil {
					return fmt.Errorf("init cache: %w", err)
				}
				defer func() { _ = c.Close() }()
				deps.Cache = c
			}

			if cfg.Budget.Enabled {
				deps.Enforcer = budget.New(cfg.Budget.Policies, tr)
			}

			if cfg.Audit.Enabled {
				a, err := audit.New(auditConfig(cfg))
				if err != nil {
					return fmt.Errorf("init audit: %w", err)
				}
				defer func() { _ = a.Close() }()
				deps.Auditor = a
			}

			srv := server.New(cfg, deps)

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			log.Printf("serving workspace %s", ws.Root())
			return srv.ListenAndServe(ctx)
		},
	}

	addConfigFlag(cmd, &configPath, false)
	cmd.Flags().StringVarP(&listen, "listen", "l", "", "listen address (overrides config)")
	return cmd
}
