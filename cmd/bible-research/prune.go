package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mrwolf/bible-research/internal/db"
	"github.com/mrwolf/bible-research/internal/output"
	"github.com/mrwolf/bible-research/internal/scheduler"
)

var pruneDays int

var pruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete research history older than the retention window",
	Long: `Delete research and word study history older than the retention window.
This runs the same job the server schedules daily at 03:00.

Examples:
  bible-research prune
  bible-research prune --days 30`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		days := cfg.HistoryRetentionDays
		if cmd.Flags().Changed("days") {
			days = pruneDays
		}
		if days <= 0 {
			return fmt.Errorf("retention is disabled; pass --days to prune")
		}

		database, err := db.Open(cfg.DBPath)
		if err != nil {
			return err
		}
		defer database.Close()

		sched, err := scheduler.New(database, nil, scheduler.Config{
			Timezone:      cfg.Timezone,
			RetentionDays: days,
		})
		if err != nil {
			return err
		}
		defer sched.Stop()

		n, err := sched.PruneHistory()
		if err != nil {
			return err
		}
		return output.Print(map[string]any{"pruned": n, "retention_days": days})
	},
}

func init() {
	pruneCmd.Flags().IntVar(&pruneDays, "days", 0, "retention in days (default: history_retention_days from config)")
}
