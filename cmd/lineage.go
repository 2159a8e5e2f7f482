package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/plansight/enroll-cli/internal/audit"
	"github.com/plansight/enroll-cli/internal/query"
)

var lineageCmd = &cobra.Command{
	Use:   "lineage",
	Short: "Trace warehouse data back to its source files",
}

// -- lineage query --

var lineageQueryCmd = &cobra.Command{
	Use:   "query <audit-id>",
	Short: "Trace a past audited query to the files behind its tables",
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

		// The tracer only reads the audit tables, no serving DB needed.
		engine := query.NewEngine(nil, st)
		lineage, found, err := engine.TraceQueryLineage(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "lineage query")
		}
		if !found {
			return eris.Errorf("no query audit with id %s", args[0])
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(lineage)
	},
}

// -- lineage record --

var lineageKeys []string

var lineageRecordCmd = &cobra.Command{
	Use:   "record <run-id> <table>",
	Short: "Trace a table built by a run to its transformation chain",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		runID, table := args[0], args[1]

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		files, err := st.GetSourceFiles(ctx, runID)
		if err != nil {
			return eris.Wrap(err, "lineage record")
		}
		transforms, err := st.GetTransformations(ctx, runID)
		if err != nil {
			return eris.Wrap(err, "lineage record")
		}

		recordKey := make(map[string]any, len(lineageKeys))
		for _, kv := range lineageKeys {
			k, v, ok := strings.Cut(kv, "=")
			if !ok {
				return eris.Errorf("invalid --key %q, want field=value", kv)
			}
			recordKey[k] = v
		}

		lineage, found := audit.Trace(files, transforms, table, recordKey)
		if !found {
			return eris.Errorf("run %s wrote nothing to %s", runID, table)
		}

		fmt.Fprintf(os.Stderr, "%d transformations, %d source files\n",
			len(lineage.Transformations), len(lineage.SourceFiles))
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(lineage)
	},
}

func init() {
	lineageRecordCmd.Flags().StringArrayVar(&lineageKeys, "key", nil, "record key field=value, repeatable")
	lineageCmd.AddCommand(lineageQueryCmd)
	lineageCmd.AddCommand(lineageRecordCmd)
	rootCmd.AddCommand(lineageCmd)
}
