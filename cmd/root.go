/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "reclutas",
	Short: "Recruiting pipeline backend",
	Long: `reclutas manages candidates, interview scheduling and backend user accounts.

	reclutas server          start the HTTP API
	reclutas migrate up      apply database migrations
	reclutas worker          consume interview events and send notifications
	reclutas admin ...       administer backend user accounts
`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}
