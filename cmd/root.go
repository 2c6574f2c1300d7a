package main

import (
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/teamresolve/internal/config"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

var (
	cfg         *config.Config
	logLevelArg string
)

var rootCmd = &cobra.Command{
	Use:     "teamresolve",
	Short:   "Resolve provider team identities to master teams",
	Long:    "Imports provider game feeds, maps every team side to a master team and runs the review, merge, correction and quarantine workflows over the result.",
	Version: version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load()
		if err != nil {
			return eris.Wrap(err, "load config")
		}
		if logLevelArg != "" {
			loaded.Log.Level = logLevelArg
		}
		cfg = loaded

		if err := config.InitLogger(cfg.Log); err != nil {
			return eris.Wrap(err, "init logger")
		}
		zap.L().Debug("config loaded",
			zap.String("store_driver", cfg.Store.Driver),
			zap.Int("providers", len(cfg.Providers)),
		)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevelArg, "log-level", "", "override log.level (debug, info, warn, error)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
