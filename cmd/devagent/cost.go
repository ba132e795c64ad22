package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/devagent-ai/devagent/pkg/models"
	"github.com/devagent-ai/devagent/pkg/tracker"
)

func newCostCmd() *cobra.Command {
	var (
		configPath string
		client     string
	)

	cmd := &cobra.Command{
		Use:   "cost",
		Short: "Show estimated costs by model from the catalog prices",
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
				return err
			}
			defer func() { _ = tr.Close() }()

			summaries, err := tr.Summary(context.Background(), client)
			if err != nil {
				return err
			}
			fmt.Print(formatCostTable(tracker.CostReport(summaries, cat)))
			return nil
		},
	}

	addConfigFlag(cmd, &configPath, false)
	cmd.Flags().StringVar(&client, "client", "", "filter by client address")
	return cmd
}

func formatCostTable(reports []models.CostReport) string {
	if len(reports) == 0 {
		return "No cost data found.\n"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%-40s %-12s %-6s %8s %12s %10s\n",
		"MODEL", "PROVIDER", "TIER", "REQUESTS", "TOKENS", "EST. COST")
	b.WriteString(strings.Repeat("-", 93) + "\n")

	var totalCost float64
	for _, r := range reports {
		fmt.Fprintf(&b, "%-40s %-12s %-6s %8d %12d $%9.4f\n",
			r.Model, r.Provider, defaultStr(string(r.Tier), "-"),
			r.RequestCount, r.TotalTokens, r.EstimatedCost)
		totalCost += r.EstimatedCost
	}
	b.WriteString(strings.Repeat("-", 93) + "\n")
	fmt.Fprintf(&b, "%81s $%9.4f\n", "TOTAL:", totalCost)
	return b.String()
}

func defaultStr(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
