package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/devagent-ai/devagent/pkg/catalog"
	"github.com/devagent-ai/devagent/pkg/models"
	"github.com/devagent-ai/devagent/pkg/tokens"
)

func newModelsCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "models",
		Short: "List the model catalog in fallback order",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			cat, err := buildCatalog(cfg)
			if err != nil {
				return err
			}

			def := cat.Default().ID
			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tPROVIDER\tTIER\tMAX TOKENS\tCOST/1K\t")
			for _, m := range cat.FallbackChain() {
				mark := ""
				if m.ID == def {
					mark = "(default)"
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%s\n",
					m.ID, m.Provider, m.Tier, m.MaxTokens, costLabel(m), mark)
			}
			return w.Flush()
		},
	}

	addConfigFlag(cmd, &configPath, false)
	return cmd
}

func costLabel(m models.Model) string {
	if m.Free || m.CostPer1kTokens == 0 {
		return "free"
	}
	return fmt.Sprintf("$%.4f", m.CostPer1kTokens)
}

func newEstimateCmd() *cobra.Command {
	var (
		configPath string
		maxTokens  int
		tier       string
	)

	cmd := &cobra.Command{
		Use:   "estimate [text]",
		Short: "Estimate prompt tokens and check them against the request limit",
		Long:  "Estimate reads the prompt from the arguments, or from stdin when none are given.",
		RunE: func(cmd *cobra.Command, args []string) error {
			text := strings.Join(args, " ")
			if len(args) == 0 {
				data, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return fmt.Errorf("read stdin: %w", err)
				}
				text = string(data)
			}

			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			cat, err := buildCatalog(cfg)
			if err != nil {
				return err
			}

			forced := models.Tier(tier)
			if forced != "" && !forced.Valid() {
				return fmt.Errorf("invalid --tier %q", tier)
			}

			req := models.Request{
				Messages:  []models.Message{{Role: models.RoleUser, Content: text}},
				MaxTokens: maxTokens,
			}
			v := tokens.Check(req)
			prompt := tokens.PromptTokens(req.Messages)
			fmt.Fprint(cmd.OutOrStdout(), formatEstimate(prompt, v, cat, forced))
			return nil
		},
	}

	addConfigFlag(cmd, &configPath, false)
	cmd.Flags().IntVar(&maxTokens, "max-tokens", 0, "requested completion tokens")
	cmd.Flags().StringVar(&tier, "tier", "", "force a tier (free, mid, high)")
	return cmd
}

func formatEstimate(prompt int, v models.SafetyVerdict, cat *catalog.Catalog, tier models.Tier) string {
	var b strings.Builder
	m := cat.Select(prompt, tier)
	fmt.Fprintf(&b, "Prompt tokens:   %d\n", prompt)
	fmt.Fprintf(&b, "Safe:            %t\n", v.Safe)
	fmt.Fprintf(&b, "Max completion:  %d\n", v.RecommendedMaxTokens)
	fmt.Fprintf(&b, "Selected model:  %s (%s, %s)\n", m.ID, m.Provider, m.Tier)
	if v.Warning != "" {
		fmt.Fprintf(&b, "Warning:         %s\n", v.Warning)
	}
	return b.String()
}
