package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/teamresolve/internal/correction"
	"github.com/sells-group/teamresolve/internal/model"
	"github.com/sells-group/teamresolve/internal/store"
)

var correctionCmd = &cobra.Command{
	Use:   "correction",
	Short: "Propose and apply audited game corrections",
}

// -- correction propose --

var correctionProposeCmd = &cobra.Command{
	Use:   "propose <game-uid>",
	Short: "Propose new values for a game",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		env, err := initEnv(ctx, cfg)
		if err != nil {
			return err
		}
		defer env.Close()

		fields, err := correctedFields(cmd)
		if err != nil {
			return err
		}
		actor, _ := cmd.Flags().GetString("actor")
		reason, _ := cmd.Flags().GetString("reason")
		c, err := env.Corrections.Propose(ctx, correction.Proposal{
			GameUID:    args[0],
			Corrected:  fields,
			ProposedBy: actor,
			Reason:     reason,
		})
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), c)
	},
}

// correctedFields collects only the flags the operator set.
func correctedFields(cmd *cobra.Command) (model.GameFields, error) {
	var f model.GameFields
	fl := cmd.Flags()
	if fl.Changed("home-score") {
		v, _ := fl.GetInt("home-score")
		f.HomeScore = &v
	}
	if fl.Changed("away-score") {
		v, _ := fl.GetInt("away-score")
		f.AwayScore = &v
	}
	if fl.Changed("date") {
		v, _ := fl.GetString("date")
		f.GameDate = &v
	}
	if fl.Changed("home-team") {
		v, _ := fl.GetString("home-team")
		f.HomeTeamID = &v
	}
	if fl.Changed("away-team") {
		v, _ := fl.GetString("away-team")
		f.AwayTeamID = &v
	}
	if f.Empty() {
		return f, eris.New("at least one of --home-score, --away-score, --date, --home-team, --away-team is required")
	}
	return f, nil
}

// -- correction apply / reject / revert --

func correctionTransitionCmd(use, short string, fn func(l *correction.Ledger) func(ctx context.Context, id, actor string) (*model.GameCorrection, error)) *cobra.Command {
	c := &cobra.Command{
		Use:   use + " <correction-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			env, err := initEnv(ctx, cfg)
			if err != nil {
				return err
			}
			defer env.Close()

			actor, _ := cmd.Flags().GetString("actor")
			out, err := fn(env.Corrections)(ctx, args[0], actor)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), out)
		},
	}
	c.Flags().String("actor", os.Getenv("USER"), "operator recorded on the correction")
	return c
}

var (
	correctionApplyCmd = correctionTransitionCmd("apply", "Approve and apply a pending correction",
		func(l *correction.Ledger) func(context.Context, string, string) (*model.GameCorrection, error) { return l.Apply })
	correctionRejectCmd = correctionTransitionCmd("reject", "Reject a pending correction",
		func(l *correction.Ledger) func(context.Context, string, string) (*model.GameCorrection, error) { return l.Reject })
	correctionRevertCmd = correctionTransitionCmd("revert", "Restore the values an applied correction replaced",
		func(l *correction.Ledger) func(context.Context, string, string) (*model.GameCorrection, error) { return l.Revert })
)

// -- correction list --

var correctionListCmd = &cobra.Command{
	Use:   "list",
	Short: "List corrections",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		env, err := initEnv(ctx, cfg)
		if err != nil {
			return err
		}
		defer env.Close()

		gameUID, _ := cmd.Flags().GetString("game-uid")
		status, _ := cmd.Flags().GetString("status")
		limit, _ := cmd.Flags().GetInt("limit")

		list, err := env.Corrections.List(ctx, store.CorrectionFilter{
			GameUID: gameUID, Status: model.CorrectionStatus(status), Limit: limit,
		})
		if err != nil {
			return eris.Wrap(err, "correction list")
		}
		if len(list) == 0 {
			fmt.Fprintln(os.Stderr, "No corrections found.")
			return nil
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tGAME\tTYPE\tSTATUS\tPROPOSED BY\tAPPROVED BY")
		for _, c := range list {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n", c.ID, c.GameUID, c.Type, c.Status, c.ProposedBy, c.ApprovedBy)
		}
		return w.Flush()
	},
}

func init() {
	f := correctionProposeCmd.Flags()
	f.Int("home-score", 0, "corrected home score")
	f.Int("away-score", 0, "corrected away score")
	f.String("date", "", "corrected game date (YYYY-MM-DD)")
	f.String("home-team", "", "corrected home master team id")
	f.String("away-team", "", "corrected away master team id")
	f.String("reason", "", "why the game is being corrected")
	f.String("actor", os.Getenv("USER"), "operator proposing the correction")

	correctionListCmd.Flags().String("game-uid", "", "filter by game")
	correctionListCmd.Flags().String("status", "", "filter by status: pending, approved, rejected or reverted")
	correctionListCmd.Flags().Int("limit", 50, "maximum corrections to list")

	correctionCmd.AddCommand(correctionProposeCmd, correctionApplyCmd, correctionRejectCmd, correctionRevertCmd, correctionListCmd)
	rootCmd.AddCommand(correctionCmd)
}
