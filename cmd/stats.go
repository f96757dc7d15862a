package cmd

import (
	"encoding/json"
	"os"

	"github.com/Srivathz/twitter-bookmark-manager/internal/config"
	"github.com/Srivathz/twitter-bookmark-manager/internal/database"
	"github.com/Srivathz/twitter-bookmark-manager/internal/logger"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(statsCmd)
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print archive statistics",
	Run: func(cmd *cobra.Command, args []string) {
		settings := config.Load()

		db, err := database.Open(settings.DatabaseURL)
		if err != nil {
			logger.Fatalf("database: %v", err)
		}
		defer db.Close()

		stats, err := db.GetStats()
		if err != nil {
			logger.Fatalf("stats: %v", err)
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(stats); err != nil {
			logger.Fatalf("encode: %v", err)
		}
	},
}
