package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/ent0n29/hojokin/internal/config"
	"github.com/ent0n29/hojokin/internal/observability"
	"github.com/ent0n29/hojokin/internal/subsidy"
	"github.com/ent0n29/hojokin/internal/tool"
)

var version = "dev"

var debug bool

var rootCmd = &cobra.Command{
	Use:     "hojokin",
	Short:   "補助金検索チャットサービス",
	Long:    `hojokin serves a subsidy-search chat agent backed by the J-Grants API and a hosted memory service.`,
	Version: version,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
	rootCmd.AddCommand(serveCmd, searchCmd, mcpCmd)
}

func newSubsidyTools(cfg config.Config, metrics *observability.Metrics) (*subsidy.Client, *tool.Registry, error) {
	client := subsidy.NewClient(subsidy.Config{
		BaseURL:   cfg.JGrantsBaseURL,
		Timeout:   cfg.JGrantsTimeout,
		RateLimit: cfg.JGrantsRateLimit,
		RateBurst: cfg.JGrantsRateBurst,
		Metrics:   metrics,
	})
	reg, err := tool.NewRegistry(subsidy.Tools(client)...)
	if err != nil {
		return nil, nil, err
	}
	return client, reg, nil
}
