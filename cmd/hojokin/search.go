package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ent0n29/hojokin/internal/config"
	"github.com/ent0n29/hojokin/internal/logging"
	"github.com/ent0n29/hojokin/internal/subsidy"
)

var searchOpts struct {
	all      bool
	industry string
	area     string
	asJSON   bool
	detail   string
}

var searchCmd = &cobra.Command{
	Use:          "search [keyword]",
	Short:        "Search subsidies on J-Grants",
	SilenceUsage: true,
	Args:         cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadTools()
		if err != nil {
			return err
		}
		ctx, flushLog := logging.NewContext(cmd.Context(), cfg.Debug || debug)
		defer flushLog()

		client, _, err := newSubsidyTools(cfg, nil)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if searchOpts.detail != "" {
			d, err := client.GetSubsidyDetail(ctx, searchOpts.detail)
			if err != nil {
				return err
			}
			return writeJSON(out, d)
		}

		q := subsidy.SearchQuery{Query: subsidy.DefaultKeyword, OnlyActive: !searchOpts.all, Industry: searchOpts.industry, Area: searchOpts.area}
		if len(args) == 1 && strings.TrimSpace(args[0]) != "" {
			q.Query = strings.TrimSpace(args[0])
		}
		res, err := client.Search(ctx, q)
		if err != nil {
			return err
		}
		if searchOpts.asJSON {
			return writeJSON(out, res)
		}

		tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tTITLE\tEND\tAREA")
		for _, s := range res.Subsidies {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", s.ID, s.Title, s.AcceptanceEndDatetime, s.TargetAreaSearch)
		}
		if err := tw.Flush(); err != nil {
			return err
		}
		fmt.Fprintf(out, "%d件の補助金が見つかりました\n", res.TotalCount)
		return nil
	},
}

func init() {
	f := searchCmd.Flags()
	f.BoolVar(&searchOpts.all, "all", false, "include subsidies outside their acceptance period")
	f.StringVar(&searchOpts.industry, "industry", "", "industry filter")
	f.StringVar(&searchOpts.area, "area", "", "target area filter")
	f.BoolVar(&searchOpts.asJSON, "json", false, "print JSON")
	f.StringVar(&searchOpts.detail, "detail", "", "print the detail of one subsidy id")
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
