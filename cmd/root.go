package cmd

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "visitreport",
	Short: "Visitreport generates site-visit PDF reports from Revizto issues",
	Long: `Visitreport is a CLI tool that builds site-visit inspection reports.
It fetches the observations, instructions and deficiencies of a Revizto
project, together with their comments and workflow statuses, and renders
them as a PDF report with a cover page and one card per open issue.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.AddCommand(reportCmd)
	rootCmd.AddCommand(projectsCmd)
	rootCmd.AddCommand(statusesCmd)
	rootCmd.AddCommand(serveCmd)
}
