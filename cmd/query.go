package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/plansight/enroll-cli/internal/query"
	"github.com/plansight/enroll-cli/internal/store"
)

var (
	queryUser    string
	queryContext string
	queryJSON    bool
)

var queryCmd = &cobra.Command{
	Use:   "query <sql>",
	Short: "Run an audited read query against the warehouse",
	Long:  "Executes a SELECT against the serving database and records who ran what, when, and which tables it touched. The printed audit id feeds `lineage query`.",
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

		sq, ok := st.(*store.SQLiteStore)
		if !ok {
			return eris.New("query command serves the sqlite driver; point psql at the postgres warehouse directly")
		}

		engine := query.NewEngine(sq.DB(), st)
		res, err := engine.QueryWithAudit(ctx, args[0], queryUser, queryContext)
		if err != nil {
			return eris.Wrap(err, "query")
		}

		if queryJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(res)
		}

		fmt.Fprintf(os.Stderr, "audit id: %s (%d rows)\n", res.AuditID, res.RowCount)
		formatResult(os.Stdout, res)
		return nil
	},
}

func formatResult(w io.Writer, res *query.Result) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for i, col := range res.Columns {
		if i > 0 {
			fmt.Fprint(tw, "\t")
		}
		fmt.Fprint(tw, col)
	}
	fmt.Fprintln(tw)
	for _, row := range res.Rows {
		for i, cell := range row {
			if i > 0 {
				fmt.Fprint(tw, "\t")
			}
			fmt.Fprint(tw, cell)
		}
		fmt.Fprintln(tw)
	}
	_ = tw.Flush()
}

func init() {
	queryCmd.Flags().StringVar(&queryUser, "user", "", "user id recorded in the query audit")
	queryCmd.Flags().StringVar(&queryContext, "context", "", "free-form purpose recorded in the query audit")
	queryCmd.Flags().BoolVar(&queryJSON, "json", false, "print the full result as JSON")
	rootCmd.AddCommand(queryCmd)
}
