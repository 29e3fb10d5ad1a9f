package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/talgya/firedrill/internal/config"
)

var (
	runsDB    string
	runsLimit int
	runsShow  string
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List stored drill reports",
	Long: `List stored drill reports, newest first.

Examples:
  firedrill runs                       # last 20 runs
  firedrill runs --limit 5
  firedrill runs --show <run id>       # one run with its removal log`,
	RunE: listRuns,
}

func init() {
	runsCmd.Flags().StringVar(&runsDB, "db", "", "SQLite run store path (defaults to the config's db_path)")
	runsCmd.Flags().IntVar(&runsLimit, "limit", 20, "number of runs to list")
	runsCmd.Flags().StringVar(&runsShow, "show", "", "print one run and its events")
}

func listRuns(cmd *cobra.Command, args []string) error {
	path := runsDB
	if path == "" {
		cfg, err := config.Load(configPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		path = cfg.Run.DBPath
	}
	db, err := openStore(path)
	if err != nil {
		return err
	}
	defer db.Close()

	out := cmd.OutOrStdout()
	if runsShow != "" {
		run, err := db.GetRun(runsShow)
		if err != nil {
			return err
		}
		events, err := db.RunEvents(run.ID)
		if err != nil {
			return fmt.Errorf("load events: %w", err)
		}
		fmt.Fprintf(out, "Run %s, seed %d, %s\n", run.ID, run.Seed, humanize.Time(run.StartedAt))
		tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "AT\tAGENT\tREASON")
		for _, e := range events {
			fmt.Fprintf(tw, "%.1fs\t%d\t%s\n", e.AtSec, e.AgentID, e.Reason)
		}
		return tw.Flush()
	}

	runs, err := db.RecentRuns(runsLimit)
	if err != nil {
		return fmt.Errorf("list runs: %w", err)
	}
	if len(runs) == 0 {
		fmt.Fprintln(out, "No runs stored.")
		return nil
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTARTED\tSEED\tSIM TIME\tSPAWNED\tEVACUATED\tDEATHS\tPANIC")
	for _, r := range runs {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%.0fs\t%s\t%s\t%s\t%.2f\n",
			r.ID[:8], humanize.Time(r.StartedAt), r.Seed, r.DurationSec,
			humanize.Comma(int64(r.Spawned)), humanize.Comma(int64(r.Evacuated)),
			humanize.Comma(int64(r.FireDeaths)), r.PanicMean)
	}
	return tw.Flush()
}
