package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Ramsey-B/willow/config"
)

func newRootCmd() *cobra.Command {
	var envFile string

	cmd := &cobra.Command{
		Use:           "willow",
		Short:         "Offline survey package import and reconciliation",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before the environment")

	load := func() (*config.Config, error) {
		return config.Load(envFile)
	}
	cmd.AddCommand(newServeCmd(load))
	cmd.AddCommand(newMigrateCmd(load))
	cmd.AddCommand(newInspectCmd(load))
	return cmd
}

func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}
