package mcp

import (
	"fmt"
	"strings"

	"github.com/devagent-ai/devagent/pkg/models"
)

const timeLayout = "2006-01-02 15:04:05"

// formatSummary formats usage summaries as a text table.
func formatSummary(rows []models.UsageSummary) string {
	if len(rows) == 0 {
		return "No usage data found."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%-16s %-11s %-40s %8s %10s %10s %10s %9s\n",
		"Client", "Provider", "Model", "Requests", "Prompt", "Completion", "Total", "Truncated")
	b.WriteString(strings.Repeat("-", 121) + "\n")
	for _, r := range rows {
		fmt.Fprintf(&b, "%-16s %-11s %-40s %8d %10d %10d %10d %9d\n",
			r.Client, r.Provider, r.Model, r.RequestCount, r.TotalPrompt, r.TotalCompletion, r.TotalTokens, r.Truncated)
	}
	return b.String()
}

// formatSessions formats sessions as a text table.
func formatSessions(sessions []models.Session) string {
	if len(sessions) == 0 {
		return "No sessions found."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%-32s %-16s %-20s %-20s %8s %10s\n",
		"Session ID", "Client", "Started", "Last Activity", "Requests", "Tokens")
	b.WriteString(strings.Repeat("-", 111) + "\n")
	for _, s := range sessions {
		fmt.Fprintf(&b, "%-32s %-16s %-20s %-20s %8d %10d\n",
			s.ID, s.Client,
			s.StartedAt.Format(timeLayout),
			s.LastActivity.Format(timeLayout),
			s.RequestCount, s.TotalTokens)
	}
	return b.String()
}

// formatSessionRequests formats session requests as a text table.
func formatSessionRequests(reqs []models.SessionRequest) string {
	if len(reqs) == 0 {
		return "No requests found for this session."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%4s  %-20s %-32s %10s %10s %10s %10s\n",
		"Seq", "Time", "Model", "Prompt", "Completion", "Total", "Ctx Growth")
	b.WriteString(strings.Repeat("-", 104) + "\n")
	for _, r := range reqs {
		fmt.Fprintf(&b, "%4d  %-20s %-32s %10d %10d %10d %+10d\n",
			r.Seq,
			r.CreatedAt.Format(timeLayout),
			r.Model,
			r.PromptTokens, r.CompletionTokens, r.TotalTokens, r.ContextGrowth)
	}
	return b.String()
}

// formatBudgetStatus formats budget statuses as a text table.
func formatBudgetStatus(statuses []models.BudgetStatus) string {
	if len(statuses) == 0 {
		return "No budget policies found."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%-16s %-11s %-8s %12s %12s %12s %6s\n",
		"Client", "Provider", "Period", "Max Tokens", "Used", "Remaining", "Usage%")
	b.WriteString(strings.Repeat("-", 84) + "\n")
	for _, s := range statuses {
		provider := string(s.Policy.Provider)
		if provider == "" {
			provider = "*"
		}
		pct := float64(0)
		if s.Policy.MaxTokens > 0 {
			pct = float64(s.Used) / float64(s.Policy.MaxTokens) * 100
		}
		fmt.Fprintf(&b, "%-16s %-11s %-8s %12d %12d %12d %5.1f%%\n",
			s.Policy.Client, provider, s.Policy.Period, s.Policy.MaxTokens, s.Used, s.Remaining, pct)
	}
	return b.String()
}

// formatCacheStats formats cache stats as text.
func formatCacheStats(stats models.CacheStats) string {
	return fmt.Sprintf("Cache Statistics\n"+
		"  Entries:  %d (%d expired)\n"+
		"  Hits:     %d\n"+
		"  Misses:   %d\n"+
		"  Hit Rate: %.1f%%\n",
		stats.Entries, stats.Expired, stats.Hits, stats.Misses, stats.HitRate())
}

// formatCostReport formats per-model cost rows with a grand total.
func formatCostReport(rows []models.CostReport) string {
	if len(rows) == 0 {
		return "No usage data found."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%-40s %-11s %-5s %8s %12s %10s %10s\n",
		"Model", "Provider", "Tier", "Requests", "Tokens", "$/1k", "Est. Cost")
	b.WriteString(strings.Repeat("-", 102) + "\n")
	var total float64
	for _, r := range rows {
		tier := string(r.Tier)
		if tier == "" {
			tier = "-"
		}
		fmt.Fprintf(&b, "%-40s %-11s %-5s %8d %12d %10.4f %10.4f\n",
			r.Model, r.Provider, tier, r.RequestCount, r.TotalTokens, r.CostPer1kTokens, r.EstimatedCost)
		total += r.EstimatedCost
	}
	fmt.Fprintf(&b, "\nTotal estimated cost: $%.4f\n", total)
	return b.String()
}

// formatAuditEntries formats audit entries as a text table.
func formatAuditEntries(entries []models.AuditEntry) string {
	if len(entries) == 0 {
		return "No audit entries found."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%-36s %-20s %-8s %-32s %6s %8s %8s\n",
		"Request ID", "Time", "Client", "Model", "Status", "Tokens", "Latency")
	b.WriteString(strings.Repeat("-", 124) + "\n")
	for _, e := range entries {
		fmt.Fprintf(&b, "%-36s %-20s %-8s %-32s %6d %8d %6dms\n",
			e.RequestID, e.CreatedAt.Format(timeLayout), e.ClientPrefix,
			e.Model, e.StatusCode, e.TotalTokens, e.LatencyMs)
		if e.Error != "" {
			fmt.Fprintf(&b, "    error: %s\n", e.Error)
		}
	}
	return b.String()
}

// formatModels formats catalog entries in fallback order.
func formatModels(list []models.Model) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%-40s %-11s %-5s %10s %10s\n", "Model", "Provider", "Tier", "Max Tokens", "$/1k")
	b.WriteString(strings.Repeat("-", 80) + "\n")
	for _, m := range list {
		fmt.Fprintf(&b, "%-40s %-11s %-5s %10d %10.4f\n", m.ID, m.Provider, m.Tier, m.MaxTokens, m.CostPer1kTokens)
	}
	return b.String()
}

// formatVerdict formats a token safety verdict.
func formatVerdict(promptTokens int, v models.SafetyVerdict) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Prompt tokens:          %d\n", promptTokens)
	fmt.Fprintf(&b, "Safe:                   %t\n", v.Safe)
	fmt.Fprintf(&b, "Recommended max_tokens: %d\n", v.RecommendedMaxTokens)
	if v.Warning != "" {
		fmt.Fprintf(&b, "Warning:                %s\n", v.Warning)
	}
	return b.String()
}

// formatChat formats a routed chat response.
func formatChat(resp models.Response) string {
	var b strings.Builder
	b.WriteString(resp.Content)
	fmt.Fprintf(&b, "\n\n[%s/%s, %d tokens", resp.Provider, resp.Model, resp.Usage.TotalTokens)
	if resp.Truncated {
		b.WriteString(", truncated")
	}
	b.WriteString("]")
	return b.String()
}
