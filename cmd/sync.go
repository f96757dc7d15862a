package cmd

import (
	"context"
	"os"

	"github.com/Srivathz/twitter-bookmark-manager/internal/config"
	"github.com/Srivathz/twitter-bookmark-manager/internal/database"
	"github.com/Srivathz/twitter-bookmark-manager/internal/logger"
	"github.com/Srivathz/twitter-bookmark-manager/internal/syncer"
	"github.com/Srivathz/twitter-bookmark-manager/internal/twitter"
	"github.com/spf13/cobra"
)

var maxPages int

func init() {
	syncCmd.Flags().IntVar(&maxPages, "max-pages", 0, "Stop after this many pages (0 = unlimited)")
	rootCmd.AddCommand(syncCmd)
}

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Run one bookmark sync and exit",
	Run: func(cmd *cobra.Command, args []string) {
		settings := config.Load()
		if err := settings.ValidateCredentials(); err != nil {
			logger.Fatalf("config: %v", err)
		}

		db, err := database.Open(settings.DatabaseURL)
		if err != nil {
			logger.Fatalf("database: %v", err)
		}
		defer db.Close()

		client := twitter.NewClient(settings, twitter.ClientOptions{})
		summary, err := syncer.New(db, client, syncer.Options{}).Run(context.Background(), maxPages)
		if err != nil {
			logger.Errorf("sync failed: %v", err)
			os.Exit(1)
		}
		logger.Infof("sync %s: %d pages, %d fetched, %d new, %d updated, %d skipped",
			summary.Status, summary.PagesFetched, summary.TotalFetched,
			summary.NewBookmarks, summary.UpdatedBookmarks, summary.SkippedRecords)
	},
}
