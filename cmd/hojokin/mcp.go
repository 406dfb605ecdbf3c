package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/ent0n29/hojokin/internal/config"
	"github.com/ent0n29/hojokin/internal/logging"
	"github.com/ent0n29/hojokin/internal/toolserver"
)

var mcpCmd = &cobra.Command{
	Use:          "mcp",
	Short:        "Serve the J-Grants tools over MCP on stdio",
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadTools()
		if err != nil {
			return err
		}
		// stdout carries the protocol; logs go to stderr.
		ctx, flushLog := logging.NewContext(cmd.Context(), cfg.Debug || debug)
		defer flushLog()

		_, tools, err := newSubsidyTools(cfg, nil)
		if err != nil {
			return err
		}
		s, err := toolserver.New("hojokin", version, tools)
		if err != nil {
			return err
		}
		logging.FromCtx(ctx).Info().Int("tools", len(tools.Definitions())).Msg("mcp server ready on stdio")
		return toolserver.ServeStdio(ctx, s, os.Stdin, os.Stdout)
	},
}
