package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/dccollins/pet-chip-reader/internal/cli"
	"github.com/dccollins/pet-chip-reader/internal/config"
	"github.com/dccollins/pet-chip-reader/internal/ledger"
	"github.com/dccollins/pet-chip-reader/internal/storage"
)

func statsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show encounter history for a chip",
		RunE:  runStats,
	}

	cmd.Flags().String("tag", "", "15-digit chip ID to report on")
	_ = cmd.MarkFlagRequired("tag")

	return cmd
}

func runStats(cmd *cobra.Command, _ []string) error {
	tagID, _ := cmd.Flags().GetString("tag")
	ctx := cmd.Context()

	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}

	db, err := storage.Open(cfg.Storage.DBPath)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	if err := db.Migrate(ctx); err != nil {
		return err
	}

	led := ledger.New(db, cfg.Pipeline.Retention)
	stats, err := led.Stats(ctx, tagID, time.Now(), cfg.Pipeline.RecentWindow)
	if err != nil {
		return fmt.Errorf("failed to load encounter stats: %w", err)
	}

	delivered, failed, err := db.DeliveryOutcomeCounts(ctx, tagID)
	if err != nil {
		return fmt.Errorf("failed to load delivery outcomes: %w", err)
	}

	var b strings.Builder
	row := func(label string, value any) {
		fmt.Fprintf(&b, "%s%v\n", cli.LabelStyle.Render(label), value)
	}
	row("Chip", tagID)
	row("Recent visits", fmt.Sprintf("%d in the last %s", stats.RecentCount, cfg.Pipeline.RecentWindow))
	row("Total visits", fmt.Sprintf("%d in the last %s", stats.TotalCount, cfg.Pipeline.Retention))
	row("Deliveries", fmt.Sprintf("%d sent, %d dead-lettered", delivered, failed))

	fmt.Println(cli.RenderBox(cli.PawIcon+" Encounter history", strings.TrimRight(b.String(), "\n")))
	return nil
}
