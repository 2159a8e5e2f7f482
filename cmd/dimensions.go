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
)

// -- entity show --

var entityCmd = &cobra.Command{
	Use:   "entity <entity-id>",
	Short: "Show a resolved plan entity and its identity chain",
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

		ent, err := st.GetEntity(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "entity")
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(ent)
	},
}

// -- orgs list --

var orgsCmd = &cobra.Command{
	Use:   "orgs",
	Short: "List canonical parent organizations",
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

		identities, err := st.ListParentOrgs(ctx)
		if err != nil {
			return eris.Wrap(err, "orgs list")
		}
		if len(identities) == 0 {
			fmt.Fprintln(os.Stderr, "No parent organizations; run a build first.")
			return nil
		}

		asJSON, _ := cmd.Flags().GetBool("json")
		if asJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(identities)
		}
		formatParentOrgs(os.Stdout, identities)
		return nil
	},
}

func formatParentOrgs(w io.Writer, identities []model.ParentOrgIdentity) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ORG ID\tCANONICAL NAME\tCONTRACTS\tNAMES SEEN\tYEARS")
	for _, id := range identities {
		years := ""
		if id.FirstYear != 0 {
			years = fmt.Sprintf("%d-%d", id.FirstYear, id.LastYear)
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%s\n",
			id.ParentOrgID, id.CanonicalName, id.ContractCount, len(id.NameVariations), years)
	}
	_ = tw.Flush()
}

func init() {
	orgsCmd.Flags().Bool("json", false, "print as JSON")
	rootCmd.AddCommand(entityCmd)
	rootCmd.AddCommand(orgsCmd)
}
