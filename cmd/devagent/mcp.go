package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/devagent-ai/devagent/pkg/audit"
	"github.com/devagent-ai/devagent/pkg/budget"
	cachepkg "github.com/devagent-ai/devagent/pkg/cache/sqlite"
	"github.com/devagent-ai/devagent/pkg/mcp"
	"github.com/devagent-ai/devagent/pkg/router"
	"github.com/devagent-ai/devagent/pkg/tokens"
	"github.com/devagent-ai/devagent/pkg/tracker"
)

func newMCPCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Start devagent as an MCP server on stdio",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			cat, err := buildCatalog(cfg)
			if err != nil {
				return err
			}

			tr, err := tracker.New(cfg.DBPath)
			if err != nil {
				return fmt.Errorf("init tracker: %w", err)
			}
			defer func() { _ = tr.Close() }()

			deps := mcp.Deps{
				Tracker: tr,
				Catalog: cat,
				Router:  router.New(cat, buildProviders(cfg), tokens.NewLedger()),
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

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return mcp.New(deps, version).Run(ctx, os.Stdin, os.Stdout)
		},
	}

	addConfigFlag(cmd, &configPath, false)
	return cmd
}
