package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/teamresolve/internal/feed"
	"github.com/sells-group/teamresolve/internal/importer"
	"github.com/sells-group/teamresolve/internal/matcher"
	"github.com/sells-group/teamresolve/internal/model"
)

var importCmd = &cobra.Command{
	Use:   "import <file|url>",
	Short: "Import a provider game feed",
	Long:  "Reads a CSV, JSON or XLSX export (local or over HTTP), resolves each team side and imports, holds or quarantines every row.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		provider, _ := cmd.Flags().GetString("provider")
		formatFlag, _ := cmd.Flags().GetString("format")
		sheet, _ := cmd.Flags().GetString("sheet")
		batchID, _ := cmd.Flags().GetString("batch-id")
		asJSON, _ := cmd.Flags().GetBool("json")

		var format feed.Format
		if formatFlag != "" {
			f, err := feed.ParseFormat(formatFlag)
			if err != nil {
				return err
			}
			format = f
		}

		rows, err := readFeed(ctx, args[0], format, feed.Options{Provider: provider, Sheet: sheet})
		if err != nil {
			return err
		}

		env, err := initEnv(ctx, cfg)
		if err != nil {
			return err
		}
		defer env.Close()

		rep, err := env.Importer.Run(ctx, importer.Batch{ID: batchID, Rows: rows})
		if err != nil {
			return eris.Wrap(err, "import")
		}
		if !rep.Accounted() {
			zap.L().Error("import report does not account for every row",
				zap.String("batch_id", rep.BatchID),
				zap.Int("rows", rep.Rows),
			)
		}

		if asJSON {
			return printJSON(cmd.OutOrStdout(), rep)
		}
		printReport(cmd.OutOrStdout(), rep)
		return nil
	},
}

// readFeed reads a local file or downloads arg first when it is a URL.
func readFeed(ctx context.Context, arg string, format feed.Format, opts feed.Options) ([]model.FeedRow, error) {
	path := arg
	if feed.IsURL(arg) {
		dir, err := os.MkdirTemp("", "teamresolve-feed-*")
		if err != nil {
			return nil, eris.Wrap(err, "create download dir")
		}
		defer os.RemoveAll(dir) //nolint:errcheck

		d := feed.NewDownloader(feed.HTTPOptions{})
		path, err = d.Download(ctx, arg, dir)
		if err != nil {
			return nil, err
		}
		opts.Source = arg
	} else {
		opts.Source = filepath.Base(arg)
	}
	return feed.ReadFile(ctx, path, format, opts)
}

func printReport(w io.Writer, rep importer.Report) {
	fmt.Fprintf(w, "Batch %s: %d rows in %s\n\n", rep.BatchID, rep.Rows, rep.Elapsed.Round(time.Millisecond))

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "OUTCOME\tROWS")
	fmt.Fprintf(tw, "imported\t%d\n", rep.Imported)
	fmt.Fprintf(tw, "already_imported\t%d\n", rep.AlreadyImported)
	fmt.Fprintf(tw, "held\t%d\n", rep.Held)
	fmt.Fprintf(tw, "quarantined\t%d\n", rep.Quarantined)
	tw.Flush() //nolint:errcheck

	if len(rep.ByReason) > 0 {
		fmt.Fprintln(w)
		tw = tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "REASON\tROWS")
		for _, r := range model.QuarantineReasons {
			if n := rep.ByReason[r]; n > 0 {
				fmt.Fprintf(tw, "%s\t%d\n", r, n)
			}
		}
		tw.Flush() //nolint:errcheck
	}

	if len(rep.Sides) > 0 {
		fmt.Fprintln(w)
		paths := make([]string, 0, len(rep.Sides))
		for p := range rep.Sides {
			paths = append(paths, string(p))
		}
		sort.Strings(paths)
		tw = tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "PATH\tSIDES")
		for _, p := range paths {
			fmt.Fprintf(tw, "%s\t%d\n", p, rep.Sides[matcher.Path(p)])
		}
		tw.Flush() //nolint:errcheck
	}
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return eris.Wrap(enc.Encode(v), "encode output")
}

func init() {
	importCmd.Flags().String("provider", "", "provider code for rows without a provider column")
	importCmd.Flags().String("format", "", "feed format: csv, json or xlsx (default from extension)")
	importCmd.Flags().String("sheet", "", "xlsx sheet name (default first sheet)")
	importCmd.Flags().String("batch-id", "", "batch id (default generated)")
	importCmd.Flags().Bool("json", false, "print the report as JSON")
	rootCmd.AddCommand(importCmd)
}
