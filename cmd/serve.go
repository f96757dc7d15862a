package cmd

import (
	"github.com/Srivathz/twitter-bookmark-manager/internal/config"
	"github.com/Srivathz/twitter-bookmark-manager/internal/database"
	"github.com/Srivathz/twitter-bookmark-manager/internal/logger"
	"github.com/Srivathz/twitter-bookmark-manager/internal/server"
	"github.com/Srivathz/twitter-bookmark-manager/internal/syncer"
	"github.com/Srivathz/twitter-bookmark-manager/internal/twitter"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the bookmark API server",
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
		sync := syncer.New(db, client, syncer.Options{})

		srv := server.New(db, sync)
		if err := srv.Start(settings.ListenAddr); err != nil {
			logger.Fatalf("server: %v", err)
		}
	},
}
