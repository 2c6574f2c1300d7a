package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/teamresolve/internal/merge"
	"github.com/sells-group/teamresolve/internal/model"
	"github.com/sells-group/teamresolve/internal/store"
)

var mergeCmd = &cobra.Command{
	Use:   "merge",
	Short: "Propose, execute and revert master team merges",
}

// -- merge propose --

var mergeProposeCmd = &cobra.Command{
	Use:   "propose <deprecated-id> <canonical-id>",
	Short: "Propose folding one master team into another",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		env, err := initEnv(ctx, cfg)
		if err != nil {
			return err
		}
		defer env.Close()

		actor, _ := cmd.Flags().GetString("actor")
		justification, _ := cmd.Flags().GetString("justification")
		auto, _ := cmd.Flags().GetBool("auto")

		var m *model.MergeRecord
		if auto {
			m, err = env.Merges.Suggest(ctx, args[0], args[1], actor)
		} else {
			m, err = env.Merges.Propose(ctx, merge.Proposal{
				DeprecatedID:  args[0],
				CanonicalID:   args[1],
				Justification: justification,
				Actor:         actor,
			})
		}
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), m)
	},
}

// -- merge preview --

var mergePreviewCmd = &cobra.Command{
	Use:   "preview <team-id>",
	Short: "Count the aliases and games a merge would move",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		env, err := initEnv(ctx, cfg)
		if err != nil {
			return err
		}
		defer env.Close()

		p, err := env.Merges.Preview(ctx, args[0])
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), p)
	},
}

// -- merge execute / revert --

var mergeExecuteCmd = &cobra.Command{
	Use:   "execute <merge-id>",
	Short: "Execute a proposed merge",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		env, err := initEnv(ctx, cfg)
		if err != nil {
			return err
		}
		defer env.Close()

		actor, _ := cmd.Flags().GetString("actor")
		a, err := env.Merges.Execute(ctx, args[0], actor)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), a)
	},
}

var mergeRevertCmd = &cobra.Command{
	Use:   "revert <merge-id>",
	Short: "Revert an executed merge",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		env, err := initEnv(ctx, cfg)
		if err != nil {
			return err
		}
		defer env.Close()

		actor, _ := cmd.Flags().GetString("actor")
		a, err := env.Merges.Revert(ctx, args[0], actor)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), a)
	},
}

// -- merge list --

var mergeListCmd = &cobra.Command{
	Use:   "list",
	Short: "List merges",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		env, err := initEnv(ctx, cfg)
		if err != nil {
			return err
		}
		defer env.Close()

		status, _ := cmd.Flags().GetString("status")
		teamID, _ := cmd.Flags().GetString("team-id")
		limit, _ := cmd.Flags().GetInt("limit")

		merges, err := env.Merges.List(ctx, store.MergeFilter{Status: model.MergeStatus(status), TeamID: teamID, Limit: limit})
		if err != nil {
			return eris.Wrap(err, "merge list")
		}
		if len(merges) == 0 {
			fmt.Fprintln(os.Stderr, "No merges found.")
			return nil
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tSTATUS\tDEPRECATED\tCANONICAL\tPROPOSED BY\tPROPOSED AT")
		for _, m := range merges {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
				m.ID, m.Status, m.DeprecatedID, m.CanonicalID, m.ProposedBy, m.ProposedAt.Format(time.DateTime))
		}
		return w.Flush()
	},
}

func init() {
	for _, c := range []*cobra.Command{mergeProposeCmd, mergeExecuteCmd, mergeRevertCmd} {
		c.Flags().String("actor", os.Getenv("USER"), "operator recorded on the merge")
	}
	mergeProposeCmd.Flags().String("justification", "", "reason for a merge across gender or distant ages")
	mergeProposeCmd.Flags().Bool("auto", false, "pick the canonical team automatically")
	mergeListCmd.Flags().String("status", "", "filter by status: proposed, executed or reverted")
	mergeListCmd.Flags().String("team-id", "", "filter by either team")
	mergeListCmd.Flags().Int("limit", 50, "maximum merges to list")

	mergeCmd.AddCommand(mergeProposeCmd, mergePreviewCmd, mergeExecuteCmd, mergeRevertCmd, mergeListCmd)
	rootCmd.AddCommand(mergeCmd)
}
