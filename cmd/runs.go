package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/plansight/enroll-cli/internal/model"
	"github.com/plansight/enroll-cli/internal/store"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Inspect pipeline run history",
	Long:  "Commands for listing runs and viewing their audit artifacts.",
}

// -- runs list --

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List pipeline runs",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		status, _ := cmd.Flags().GetString("status")
		pipelineName, _ := cmd.Flags().GetString("pipeline")
		limit, _ := cmd.Flags().GetInt("limit")

		runs, err := st.ListRuns(ctx, store.RunFilter{
			Status:   model.RunStatus(status),
			Pipeline: pipelineName,
			Limit:    limit,
		})
		if err != nil {
			return eris.Wrap(err, "runs list")
		}

		if len(runs) == 0 {
			fmt.Fprintln(os.Stderr, "No runs found.")
			return nil
		}

		formatRunsList(os.Stdout, runs)
		return nil
	},
}

// -- runs show --

var runsShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Show full details of a run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		run, err := st.GetRun(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "runs show")
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(run)
	},
}

// -- runs summary --

var runsSummaryCmd = &cobra.Command{
	Use:   "summary <run-id>",
	Short: "Print a run's persisted lineage summary",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		summary, err := st.GetRunSummary(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "runs summary")
		}
		_, err = os.Stdout.Write(append(summary, '\n'))
		return err
	},
}

// -- runs files --

var runsFilesCmd = &cobra.Command{
	Use:   "files <run-id>",
	Short: "List the source files a run registered",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		files, err := st.GetSourceFiles(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "runs files")
		}
		formatSourceFiles(os.Stdout, files)
		return nil
	},
}

func formatRunsList(w io.Writer, runs []model.PipelineRun) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tPIPELINE\tSTATUS\tSTARTED\tFILES\tROWS\tERROR")
	for _, r := range runs {
		id := r.RunID
		if len(id) > 8 {
			id = id[:8]
		}
		errMsg := r.Error
		if len(errMsg) > 40 {
			errMsg = errMsg[:37] + "..."
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%d\t%s\n",
			id, r.PipelineName, r.Status,
			r.StartedAt.Format("2006-01-02 15:04"),
			r.InputFileCount, r.OutputRowCount, errMsg)
	}
	_ = tw.Flush()
}

func formatSourceFiles(w io.Writer, files []model.SourceFile) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "FILE ID\tTYPE\tPERIOD\tSIZE\tHASH\tURI")
	for _, f := range files {
		period := fmt.Sprintf("%d", f.Year)
		if f.Month != nil {
			period = fmt.Sprintf("%d-%02d", f.Year, *f.Month)
		}
		hash := f.ContentHash
		if len(hash) > 8 {
			hash = hash[:8]
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\t%s\n",
			f.FileID, f.FileType, period, f.SizeBytes, hash, f.URI)
	}
	_ = tw.Flush()
}

func init() {
	runsListCmd.Flags().String("status", "", "filter by status (running, success, failed)")
	runsListCmd.Flags().String("pipeline", "", "filter by pipeline name")
	runsListCmd.Flags().Int("limit", 20, "maximum runs to list")

	runsCmd.AddCommand(runsListCmd)
	runsCmd.AddCommand(runsShowCmd)
	runsCmd.AddCommand(runsSummaryCmd)
	runsCmd.AddCommand(runsFilesCmd)
	rootCmd.AddCommand(runsCmd)
}
