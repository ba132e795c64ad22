package main

import (
	"fmt"
	"log"
	"net/http"
	"os"

	"github.com/spf13/cobra"

	"github.com/devagent-ai/devagent/pkg/catalog"
	"github.com/devagent-ai/devagent/pkg/config"
	"github.com/devagent-ai/devagent/pkg/models"
	"github.com/devagent-ai/devagent/pkg/provider"
)

var version = "dev"

func main() {
	root := &cobra.Command{
		Use:     "devagent",
		Short:   "devagent: LLM routing backend for the AI dev agent",
		Version: version,
	}

	root.AddCommand(
		newServeCmd(),
		newModelsCmd(),
		newEstimateCmd(),
		newStatsCmd(),
		newCostCmd(),
		newBudgetCmd(),
		newCacheCmd(),
		newAuditCmd(),
		newMCPCmd(),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig returns the defaults when no path is given.
func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.Default(), nil
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func addConfigFlag(cmd *cobra.Command, target *string, persistent bool) {
	flags := cmd.Flags()
	if persistent {
		flags = cmd.PersistentFlags()
	}
	flags.StringVarP(target, "config", "c", "", "path to devagent config file")
}

// buildCatalog uses the configured models, or the built-in catalog when none are set.
func buildCatalog(cfg *config.Config) (*catalog.Catalog, error) {
	if len(cfg.Models) == 0 {
		return catalog.Default(), nil
	}
	c, err := catalog.New(cfg.Models)
	if err != nil {
		return nil, fmt.Errorf("build catalog: %w", err)
	}
	return c, nil
}

// buildProviders resolves credentials from the environment and creates the
// vendor adapters.
func buildProviders(cfg *config.Config) provider.Set {
	creds := provider.ResolveCredentials(os.Getenv)
	for _, p := range models.Providers {
		if creds.For(p) == "" {
			log.Printf("provider %s: no credential (%s)", p, provider.EnvVar(p))
		}
	}
	return provider.NewSet(creds, provider.Options{
		GroqBaseURL:        cfg.Providers.Groq.BaseURL,
		OpenRouterBaseURL:  cfg.Providers.OpenRouter.BaseURL,
		HuggingFaceBaseURL: cfg.Providers.HuggingFace.BaseURL,
		AppURL:             cfg.AppURL,
		HTTPClient:         &http.Client{Timeout: cfg.HTTPTimeout},
	})
}

// auditConfig fills the audit database path from the main database when unset.
func auditConfig(cfg *config.Config) models.AuditConfig {
	ac := cfg.Audit
	if ac.DBPath == "" {
		ac.DBPath = cfg.DBPath
	}
	return ac
}
