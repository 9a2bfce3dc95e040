package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/notargets/amrsync/config"
	"github.com/notargets/amrsync/utils"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		utils.Logger().WithError(err).Error("amrsync failed")
		os.Exit(1)
	}
}

// app carries the state shared by the subcommands
type app struct {
	configPath string
	logLevel   string
	cfg        config.Config
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:   "amrsync",
		Short: "Exercise AMR data transfer schedules on a configured box layout",
		Long: `amrsync builds a patch hierarchy from a YAML layout and runs the
connector width, refine and boundary node sum machinery on it.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(a.configPath)
			if err != nil {
				return err
			}
			if a.logLevel != "" {
				cfg.LogLevel = a.logLevel
			}
			if err = utils.SetLogLevel(cfg.LogLevel); err != nil {
				return err
			}
			a.cfg = cfg
			return nil
		},
	}
	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", "", "YAML layout file (defaults when empty)")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "override the configured log level")

	root.AddCommand(newWidthsCmd(a), newRefineCmd(a), newSumCmd(a))
	return root
}
