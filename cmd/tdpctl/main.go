package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"codeberg.org/mutker/tdpctl/internal/config"
	"codeberg.org/mutker/tdpctl/internal/errors"
	"codeberg.org/mutker/tdpctl/internal/logger"
	"codeberg.org/mutker/tdpctl/internal/profile"
	"codeberg.org/mutker/tdpctl/internal/tdp"
)

var version = "dev"

// Exit codes of the command surface. Scripts and the refresh-rate
// coordinator depend on these staying stable.
const (
	exitOK               = 0
	exitFailure          = 1 // includes unknown profile names
	exitActuationFailure = 2
	exitPermissionDenied = 3
)

var (
	cfgFile  string
	logLevel string

	cfg *config.Config
)

func main() {
	cmd := NewRootCommand()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitCode(err))
	}
}

func NewRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "tdpctl",
		Short:         "tdpctl manages CPU TDP profiles and switches them on power source changes",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			cfg, err = config.Load(
				config.WithConfigFile(cfgFile),
				config.WithFlags(cmd.Flags()),
			)
			if err != nil {
				return err
			}

			logger.Init(cfg.LogLevel, logger.IsService())

			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to the configuration file")
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warning, error)")

	cmd.AddCommand(
		NewSetCommand(),
		NewStatusCommand(),
		NewListCommand(),
		NewAutoCommand(),
		NewDaemonCommand(),
		NewVersionCommand(),
	)

	return cmd
}

func NewVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version",
		Run: func(cmd *cobra.Command, _ []string) {
			cmd.Println(version)
		},
	}
}

func loadCatalog() (*profile.Catalog, error) {
	return profile.Load(cfg.Profiles)
}

func exitCode(err error) int {
	switch errors.CodeOf(err) {
	case tdp.ErrPermissionDenied:
		return exitPermissionDenied
	case tdp.ErrApplyFailed, tdp.ErrApplyTimeout, tdp.ErrCommandNotFound:
		return exitActuationFailure
	default:
		return exitFailure
	}
}
