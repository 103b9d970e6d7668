package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create the database tables for the configured SQL driver",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		// newApp migrates SQL stores as part of opening them.
		a, err := newApp(cmd.Context(), cfg, cmd.ErrOrStderr())
		if err != nil {
			return err
		}
		defer a.Close()

		if a.sql == nil {
			fmt.Fprintln(cmd.OutOrStdout(), WarningStyle.Render("Nothing to migrate for the memory driver"))
			return nil
		}
		fmt.Fprintln(cmd.OutOrStdout(), SuccessStyle.Render("Schema is up to date ("+cfg.Storage.Driver+")"))
		return nil
	},
}
