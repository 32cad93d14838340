package main

import (
	"fmt"
	"os"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/dccollins/pet-chip-reader/internal/cli"
	"github.com/dccollins/pet-chip-reader/internal/config"
	"github.com/dccollins/pet-chip-reader/internal/model"
	"github.com/dccollins/pet-chip-reader/internal/storage"
)

func queueCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect or flush the pending delivery queue",
		Long: `Show deliveries waiting for retry, including dead-lettered items that
exhausted their attempt budget. With --process, attempt every pending
item immediately instead of waiting for the daemon's retry schedule.`,
		RunE: runQueue,
	}

	cmd.Flags().Bool("process", false, "Attempt all pending deliveries now")

	return cmd
}

func runQueue(cmd *cobra.Command, _ []string) error {
	process, _ := cmd.Flags().GetBool("process")

	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}

	db, err := storage.Open(cfg.Storage.DBPath)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	if err := db.Migrate(cmd.Context()); err != nil {
		return err
	}

	pipeline, err := buildPipeline(cmd, cfg, db)
	if err != nil {
		return err
	}

	pending := pipeline.Pending()
	dead := pipeline.DeadLetters()

	if len(pending) == 0 && len(dead) == 0 {
		fmt.Println(cli.FormatSuccess("Delivery queue is empty"))
		return nil
	}

	fmt.Println(cli.FormatTitle("Delivery queue"))
	for _, item := range pending {
		fmt.Printf("  %s %s\n", cli.SubtleStyle.Render(item.ID[:8]), describeItem(item))
	}
	for _, item := range dead {
		fmt.Printf("  %s %s\n", cli.SubtleStyle.Render(item.ID[:8]),
			cli.FormatError(describeItem(item)))
	}

	if !process {
		return nil
	}

	bar := progressbar.NewOptions(len(pending),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionShowCount(),
		progressbar.OptionSetWidth(40),
		progressbar.OptionSetDescription("Delivering..."),
	)

	var failed int
	pipeline.ForceProcessQueue(cmd.Context(), func(item model.DeliveryItem, ok bool) {
		_ = bar.Add(1)
		if !ok {
			failed++
		}
	})
	_ = bar.Finish()
	fmt.Println()

	if failed > 0 {
		fmt.Println(cli.FormatWarning(fmt.Sprintf("%d deliveries still pending", failed)))
		return nil
	}
	fmt.Println(cli.FormatSuccess("All pending deliveries completed"))
	return nil
}

func describeItem(item model.DeliveryItem) string {
	age := time.Since(item.CreatedAt).Round(time.Second)
	return fmt.Sprintf("%s for chip %s → %s (attempt %d, queued %s ago)",
		item.Kind, item.TagID, item.Destination, item.Attempts, age)
}
