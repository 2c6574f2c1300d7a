package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/teamresolve/internal/model"
	"github.com/sells-group/teamresolve/internal/normalize"
	"github.com/sells-group/teamresolve/internal/review"
)

var reviewCmd = &cobra.Command{
	Use:   "review",
	Short: "Adjudicate ambiguous team matches",
}

// -- review list --

var reviewListCmd = &cobra.Command{
	Use:   "list",
	Short: "List review queue entries",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		env, err := initEnv(ctx, cfg)
		if err != nil {
			return err
		}
		defer env.Close()

		status, _ := cmd.Flags().GetString("status")
		provider, _ := cmd.Flags().GetString("provider")
		batchID, _ := cmd.Flags().GetString("batch-id")
		limit, _ := cmd.Flags().GetInt("limit")

		entries, err := env.Review.List(ctx, model.ReviewFilter{
			Status:   model.ReviewStatus(status),
			Provider: provider,
			BatchID:  batchID,
			Limit:    limit,
		})
		if err != nil {
			return eris.Wrap(err, "review list")
		}
		if len(entries) == 0 {
			fmt.Fprintln(os.Stderr, "No entries found.")
			return nil
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tPROVIDER\tKEY\tTEAM\tTOP\tSCORE\tCATEGORY")
		for i := range entries {
			e := &entries[i]
			top := "-"
			if c := e.Top(); c != nil {
				top = c.TeamName
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%.3f\t%s\n",
				e.ID, e.Provider, e.AliasKey, e.Record.TeamName, top, e.TopScore, env.Review.Categorize(e))
		}
		return w.Flush()
	},
}

// -- review show --

var reviewShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show one entry with its ranked candidates",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		env, err := initEnv(ctx, cfg)
		if err != nil {
			return err
		}
		defer env.Close()

		e, err := env.Review.Get(ctx, args[0])
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), e)
	},
}

// -- review approve --

var reviewApproveCmd = &cobra.Command{
	Use:   "approve <id>",
	Short: "Map the entry to a master team, existing or new",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		env, err := initEnv(ctx, cfg)
		if err != nil {
			return err
		}
		defer env.Close()

		masterID, _ := cmd.Flags().GetString("master-id")
		newTeam, _ := cmd.Flags().GetBool("new-team")
		actor, _ := cmd.Flags().GetString("actor")
		note, _ := cmd.Flags().GetString("note")

		dec := review.Decision{MasterID: masterID, Resolver: actor, Note: note}
		if newTeam {
			e, err := env.Review.Get(ctx, args[0])
			if err != nil {
				return err
			}
			dec.MasterID = ""
			dec.NewTeam = teamFromRecord(env.Matcher.Normalizer(), e.Record)
		}

		e, err := env.Review.Approve(ctx, args[0], dec)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), e)
	},
}

// teamFromRecord proposes a master team built from the entry's own record.
func teamFromRecord(n *normalize.Normalizer, rec model.ProviderTeamRecord) *model.MasterTeam {
	d := n.Normalize(rec.TeamName, rec.ClubName)
	g, _ := model.ParseGender(rec.Gender)
	return &model.MasterTeam{
		TeamName: rec.TeamName,
		ClubName: rec.ClubName,
		ClubKey:  d.ClubKey(),
		Age:      d.AgeString(),
		Gender:   g,
		Region:   rec.State,
	}
}

// -- review reject --

var reviewRejectCmd = &cobra.Command{
	Use:   "reject <id>",
	Short: "Reject the entry and quarantine its record",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		env, err := initEnv(ctx, cfg)
		if err != nil {
			return err
		}
		defer env.Close()

		actor, _ := cmd.Flags().GetString("actor")
		note, _ := cmd.Flags().GetString("note")
		e, err := env.Review.Reject(ctx, args[0], actor, note)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), e)
	},
}

// -- review bulk-approve --

var reviewBulkCmd = &cobra.Command{
	Use:   "bulk-approve",
	Short: "Approve every pending entry in a category to its top candidate",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		env, err := initEnv(ctx, cfg)
		if err != nil {
			return err
		}
		defer env.Close()

		category, _ := cmd.Flags().GetString("category")
		actor, _ := cmd.Flags().GetString("actor")
		c, err := review.ParseCategory(category)
		if err != nil {
			return err
		}
		res, err := env.Review.BulkApprove(ctx, c, actor)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), res)
	},
}

// -- review counts --

var reviewCountsCmd = &cobra.Command{
	Use:   "counts",
	Short: "Count pending entries per category",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		env, err := initEnv(ctx, cfg)
		if err != nil {
			return err
		}
		defer env.Close()

		counts, err := env.Review.CategoryCounts(ctx)
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "CATEGORY\tPENDING")
		for _, c := range []review.Category{review.CategorySafe, review.CategoryNeedsReview, review.CategoryRisky} {
			fmt.Fprintf(w, "%s\t%d\n", c, counts[c])
		}
		return w.Flush()
	},
}

func init() {
	reviewListCmd.Flags().String("status", "pending", "entry status: pending, approved or rejected")
	reviewListCmd.Flags().String("provider", "", "filter by provider code")
	reviewListCmd.Flags().String("batch-id", "", "filter by batch id")
	reviewListCmd.Flags().Int("limit", 50, "maximum entries to list")

	reviewApproveCmd.Flags().String("master-id", "", "master team to map the entry to")
	reviewApproveCmd.Flags().Bool("new-team", false, "create a new master team from the entry's record")
	reviewApproveCmd.MarkFlagsMutuallyExclusive("master-id", "new-team")
	reviewApproveCmd.MarkFlagsOneRequired("master-id", "new-team")

	for _, c := range []*cobra.Command{reviewApproveCmd, reviewRejectCmd, reviewBulkCmd} {
		c.Flags().String("actor", os.Getenv("USER"), "operator recorded as the resolver")
	}
	for _, c := range []*cobra.Command{reviewApproveCmd, reviewRejectCmd} {
		c.Flags().String("note", "", "resolution note")
	}
	reviewBulkCmd.Flags().String("category", "safe", "category to approve: safe or needs_review")

	reviewCmd.AddCommand(reviewListCmd, reviewShowCmd, reviewApproveCmd, reviewRejectCmd, reviewBulkCmd, reviewCountsCmd)
	rootCmd.AddCommand(reviewCmd)
}
