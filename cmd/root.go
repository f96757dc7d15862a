// Package cmd wires the CLI commands.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "twitter-bookmark-manager",
	Short: "Sync and browse your Twitter/X bookmarks locally",
	Long: `twitter-bookmark-manager pulls your bookmarked posts from the X
private GraphQL API into a local database and serves a JSON API for
browsing, categorizing, and marking them read.

Credentials are supplied via environment variables:
  TWITTER_BEARER_TOKEN, TWITTER_CSRF_TOKEN, TWITTER_COOKIES
Optional: TWITTER_GRAPHQL_QUERY_ID, DATABASE_URL, LISTEN_ADDR.`,
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
