package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/teamresolve/internal/quarantine"
)

var quarantineCmd = &cobra.Command{
	Use:   "quarantine",
	Short: "Inspect and clear quarantined records",
}

// -- quarantine list --

var quarantineListCmd = &cobra.Command{
	Use:   "list",
	Short: "List quarantined records",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		env, err := initEnv(ctx, cfg)
		if err != nil {
			return err
		}
		defer env.Close()

		reason, _ := cmd.Flags().GetString("reason")
		batchID, _ := cmd.Flags().GetString("batch-id")
		limit, _ := cmd.Flags().GetInt("limit")

		f := quarantine.Filter{BatchID: batchID, Limit: limit}
		if reason != "" {
			if f.Reason, err = quarantine.ParseReason(reason); err != nil {
				return err
			}
		}
		records, err := env.Quarantine.List(ctx, f)
		if err != nil {
			return eris.Wrap(err, "quarantine list")
		}
		if len(records) == 0 {
			fmt.Fprintln(os.Stderr, "No records found.")
			return nil
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tBATCH\tREASON\tDETAIL\tCREATED")
		for _, r := range records {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", r.ID, r.BatchID, r.Reason, r.Detail, r.CreatedAt.Format(time.DateTime))
		}
		return w.Flush()
	},
}

// -- quarantine counts --

var quarantineCountsCmd = &cobra.Command{
	Use:   "counts",
	Short: "Count quarantined records per reason, most common first",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		env, err := initEnv(ctx, cfg)
		if err != nil {
			return err
		}
		defer env.Close()

		batchID, _ := cmd.Flags().GetString("batch-id")
		c, err := env.Quarantine.Counts(ctx, batchID)
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "REASON\tRECORDS")
		for _, rc := range c.Ranked {
			fmt.Fprintf(w, "%s\t%d\n", rc.Reason, rc.Count)
		}
		fmt.Fprintf(w, "total\t%d\n", c.Total)
		return w.Flush()
	},
}

// -- quarantine delete --

var quarantineDeleteCmd = &cobra.Command{
	Use:   "delete <id>...",
	Short: "Delete quarantined records once handled",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		env, err := initEnv(ctx, cfg)
		if err != nil {
			return err
		}
		defer env.Close()

		for _, id := range args {
			if err := env.Quarantine.Delete(ctx, id); err != nil {
				return err
			}
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Deleted %d record(s).\n", len(args))
		return nil
	},
}

func init() {
	quarantineListCmd.Flags().String("reason", "", "filter by reason code")
	quarantineListCmd.Flags().String("batch-id", "", "filter by batch id")
	quarantineListCmd.Flags().Int("limit", 100, "maximum records to list")
	quarantineCountsCmd.Flags().String("batch-id", "", "count one batch only")

	quarantineCmd.AddCommand(quarantineListCmd, quarantineCountsCmd, quarantineDeleteCmd)
	rootCmd.AddCommand(quarantineCmd)
}
