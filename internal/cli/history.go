package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/inferload/inferload/internal/output"
	"github.com/inferload/inferload/internal/performance/report"
)

func newHistoryCmd(a *app) *cobra.Command {
	var (
		dbPath string
		limit  int
		format string
	)

	openStore := func() (*report.HistoryStore, error) {
		path := a.v.GetString("history-db")
		if path == "" {
			p, err := report.DefaultHistoryPath()
			if err != nil {
				return nil, err
			}
			path = p
		}
		return report.OpenHistory(expandHome(path))
	}

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List saved runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			entries, err := store.List(limit)
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				fmt.Fprintln(a.stdout, "No runs recorded in", store.Path())
				return nil
			}

			tw := tabwriter.NewWriter(a.stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "RUN ID\tSTARTED\tNAME\tSTAGES\tREQS\tERR%\tP95\tRESULT")
			for _, e := range entries {
				status := "pass"
				if !e.Passed {
					status = "fail"
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%.2f\t%s\t%s\n",
					e.RunID,
					e.StartTime.Local().Format("2006-01-02 15:04:05"),
					e.Name,
					e.Timeline,
					output.FormatNumber(e.Requests),
					e.ErrorRate*100,
					output.FormatLatency(e.P95),
					status)
			}
			return tw.Flush()
		},
	}

	show := &cobra.Command{
		Use:   "show <run-id>",
		Short: "Render a saved run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := report.ParseFormat(format)
			if err != nil {
				return err
			}
			render, err := report.RendererFor(f)
			if err != nil {
				return err
			}

			store, err := openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			result, err := store.Get(args[0])
			if err != nil {
				return err
			}
			return render(a.stdout, result)
		},
	}
	show.Flags().StringVarP(&format, "format", "f", string(report.FormatConsole), "Output format: console, json, yaml or html")

	cmd.PersistentFlags().StringVar(&dbPath, "db", "", "History database (default ~/.inferload/history.db)")
	_ = a.v.BindPFlag("history-db", cmd.PersistentFlags().Lookup("db"))
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum runs to list (0 = all)")
	cmd.AddCommand(show)
	return cmd
}
