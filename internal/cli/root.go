// Package cli provides the command-line interface for Pinpoint.
package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/nainya/pinpoint/internal/config"
	"github.com/nainya/pinpoint/internal/logger"
)

// Version information (set at build time).
var (
	Version   = "0.1.0"
	BuildDate = "unknown"
	GitCommit = "unknown"
)

// appKey is used to store the app in the command context.
type appKey struct{}

// NewRootCmd creates and returns the root command.
func NewRootCmd() *cobra.Command {
	var cfgFile string

	rootCmd := &cobra.Command{
		Use:   "pinpoint",
		Short: "Pinpoint - geographic dataset builder",
		Long: `Pinpoint builds geographic quiz datasets from Wikidata.

Pick an item type and constraints, preview what the query service returns,
and save the result as a JSON data file next to a small dataset index that
the web front end reads.`,
		Version: Version,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			// Skip config loading for help and completion commands
			if cmd.Name() == "help" || cmd.Name() == "completion" || cmd.Name() == "__complete" || cmd.Name() == "version" {
				return nil
			}

			cfg, used, err := config.Load(cfgFile, cmd.Flags())
			if err != nil {
				return err
			}

			logger.InitGlobalLogger(logger.Config{
				Level:      cfg.Log.Level,
				Pretty:     cfg.Log.Pretty,
				Output:     cmd.ErrOrStderr(),
				WithCaller: cfg.Log.Caller,
			})
			log := logger.GetGlobalLogger()
			if used != "" {
				log.Debug("Loaded config file").Str("file", used).Send()
			}

			cmd.SetContext(context.WithValue(cmd.Context(), appKey{}, newApp(cfg, log)))
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.SetVersionTemplate(`{{.Name}} {{.Version}}
`)

	// Global persistent flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./pinpoint.yaml)")
	rootCmd.PersistentFlags().String("store", config.DefaultStorePath, "Path to the dataset store document")
	rootCmd.PersistentFlags().String("data-dir", config.DefaultDataDir, "Directory holding dataset data files")
	rootCmd.PersistentFlags().String("log-level", config.DefaultLogLevel, "Log level (debug|info|warn|error)")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Verbose output (debug logging)")

	rootCmd.AddCommand(NewVersionCommand(Version))
	rootCmd.AddCommand(NewServeCommand())
	rootCmd.AddCommand(NewSearchCommand())
	rootCmd.AddCommand(NewQueryCommand())
	rootCmd.AddCommand(NewPreviewCommand())
	rootCmd.AddCommand(NewSaveCommand())
	rootCmd.AddCommand(NewListCommand())
	rootCmd.AddCommand(NewDeleteCommand())

	return rootCmd
}

// Execute runs the root command.
func Execute(ctx context.Context) error {
	rootCmd := NewRootCmd()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return err
	}
	return nil
}

// getApp retrieves the app from the command context.
func getApp(cmd *cobra.Command) (*app, error) {
	if a, ok := cmd.Context().Value(appKey{}).(*app); ok {
		return a, nil
	}
	return nil, fmt.Errorf("configuration not loaded")
}
