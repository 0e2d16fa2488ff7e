package main

import (
	"github.com/spf13/cobra"

	"pdfchat/internal/bootstrap"
)

// app is built before the subcommand runs and closed by main.
var app *bootstrap.App

var rootCmd = &cobra.Command{
	Use:           "pdfchatctl",
	Short:         "Operate the pdfchat document index",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		var err error
		app, err = bootstrap.New(cmd.Context(), bootstrap.WithoutWorkers())
		return err
	},
}
