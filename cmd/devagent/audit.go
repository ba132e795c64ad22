package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/devagent-ai/devagent/pkg/audit"
	"github.com/devagent-ai/devagent/pkg/models"
)

func newAuditCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Query and manage the chat audit log",
	}

	cmd.AddCommand(
		newAuditSearchCmd(),
		newAuditShowCmd(),
		newAuditStatsCmd(),
		newAuditCleanupCmd(),
	)
	return cmd
}

func newAuditSearchCmd() *cobra.Command {
	var (
		configPath   string
		model        string
		providerName string
		since        string
		clientPrefix string
		session      string
		failed       bool
		limit        int
	)

	cmd := &cobra.Command{
		Use:   "search",
		Short: "Search audit log entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			l, cleanup, err := openAuditLogger(configPath)
			if err != nil {
				return err
			}
			defer cleanup()

			opts := models.AuditQueryOpts{
				Model:        model,
				Provider:     models.ProviderName(providerName),
				ClientPrefix: clientPrefix,
				SessionID:    session,
				FailedOnly:   failed,
				Limit:        limit,
			}
			if since != "" {
				t, err := time.Parse("2006-01-02", since)
				if err != nil {
					return fmt.Errorf("invalid --since date (use YYYY-MM-DD): %w", err)
				}
				opts.Since = t
			}

			entries, err := l.Query(context.Background(), opts)
			if err != nil {
				return err
			}
			fmt.Print(formatAuditEntries(entries))
			return nil
		},
	}

	addConfigFlag(cmd, &configPath, false)
	cmd.Flags().StringVar(&model, "model", "", "filter by model")
	cmd.Flags().StringVar(&providerName, "provider", "", "filter by provider")
	cmd.Flags().StringVar(&since, "since", "", "start date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&clientPrefix, "client-prefix", "", "filter by client hash prefix")
	cmd.Flags().StringVar(&session, "session", "", "filter by session ID")
	cmd.Flags().BoolVar(&failed, "failed", false, "only failed requests")
	cmd.Flags().IntVar(&limit, "limit", 50, "max entries to return")
	return cmd
}

func newAuditShowCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "show <request-id>",
		Short: "Show a single audit entry by request ID",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			l, cleanup, err := openAuditLogger(configPath)
			if err != nil {
				return err
			}
			defer cleanup()

			entries, err := l.Query(context.Background(), models.AuditQueryOpts{
				RequestID: args[0],
				Limit:     1,
			})
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				fmt.Println("No entry found for that request ID.")
				return nil
			}
			fmt.Print(formatAuditEntry(entries[0]))
			return nil
		},
	}

	addConfigFlag(cmd, &configPath, false)
	return cmd
}

func newAuditStatsCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show audit entry counts by model and day",
		RunE: func(cmd *cobra.Command, args []string) error {
			l, cleanup, err := openAuditLogger(configPath)
			if err != nil {
				return err
			}
			defer cleanup()

			stats, err := l.Stats(context.Background())
			if err != nil {
				return err
			}
			fmt.Print(formatAuditStats(stats))
			return nil
		},
	}

	addConfigFlag(cmd, &configPath, false)
	return cmd
}

func newAuditCleanupCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Delete audit entries older than the retention period",
		RunE: func(cmd *cobra.Command, args []string) error {
			l, cleanup, err := openAuditLogger(configPath)
			if err != nil {
				return err
			}
			defer cleanup()

			deleted, err := l.Cleanup(context.Background())
			if err != nil {
				return err
			}
			fmt.Printf("Deleted %d audit entries.\n", deleted)
			return nil
		},
	}

	addConfigFlag(cmd, &configPath, false)
	return cmd
}

func openAuditLogger(configPath string) (*audit.Logger, func(), error) {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return nil, nil, err
	}

	l, err := audit.New(auditConfig(cfg))
	if err != nil {
		return nil, nil, fmt.Errorf("open audit db: %w", err)
	}
	return l, func() { _ = l.Close() }, nil
}

func formatAuditEntry(e models.AuditEntry) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Request ID:    %s\n", e.RequestID)
	fmt.Fprintf(&b, "Model:         %s\n", defaultStr(e.Model, "-"))
	fmt.Fprintf(&b, "Provider:      %s\n", defaultStr(string(e.Provider), "-"))
	fmt.Fprintf(&b, "Client:        %s...\n", e.ClientPrefix)
	fmt.Fprintf(&b, "Session:       %s\n", e.SessionID)
	fmt.Fprintf(&b, "Status:        %d\n", e.StatusCode)
	if e.Error != "" {
		fmt.Fprintf(&b, "Error:         %s\n", e.Error)
	}
	fmt.Fprintf(&b, "Latency:       %dms\n", e.LatencyMs)
	fmt.Fprintf(&b, "Tokens:        %d prompt / %d completion / %d total\n",
		e.PromptTokens, e.CompletionTokens, e.TotalTokens)
	fmt.Fprintf(&b, "Time:          %s\n", e.CreatedAt.Format(time.RFC3339))
	if e.RequestBody != "" {
		fmt.Fprintf(&b, "\n--- Request Body ---\n%s\n", e.RequestBody)
	}
	if e.ResponseBody != "" {
		fmt.Fprintf(&b, "\n--- Response Body ---\n%s\n", e.ResponseBody)
	}
	return b.String()
}

func formatAuditEntries(entries []models.AuditEntry) string {
	if len(entries) == 0 {
		return "No audit entries found.\n"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%-36s %-32s %-11s %6s %8s %8s %-19s\n",
		"REQUEST ID", "MODEL", "PROVIDER", "STATUS", "LATENCY", "TOKENS", "TIME")
	b.WriteString(strings.Repeat("-", 126) + "\n")
	for _, e := range entries {
		fmt.Fprintf(&b, "%-36s %-32s %-11s %6d %6dms %8d %-19s\n",
			e.RequestID, defaultStr(e.Model, "-"), defaultStr(string(e.Provider), "-"), e.StatusCode,
			e.LatencyMs, e.TotalTokens,
			e.CreatedAt.Format("2006-01-02 15:04:05"))
	}
	return b.String()
}

func formatAuditStats(stats []models.AuditStat) string {
	if len(stats) == 0 {
		return "No audit stats found.\n"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%-32s %-12s %8s %8s\n", "MODEL", "DAY", "COUNT", "FAILED")
	b.WriteString(strings.Repeat("-", 63) + "\n")
	for _, s := range stats {
		fmt.Fprintf(&b, "%-32s %-12s %8d %8d\n", defaultStr(s.Model, "-"), s.Day, s.Count, s.Failures)
	}
	return b.String()
}
