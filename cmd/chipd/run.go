package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/dccollins/pet-chip-reader/internal/a04"
	"github.com/dccollins/pet-chip-reader/internal/capture"
	"github.com/dccollins/pet-chip-reader/internal/config"
	"github.com/dccollins/pet-chip-reader/internal/delivery"
	"github.com/dccollins/pet-chip-reader/internal/engine"
	"github.com/dccollins/pet-chip-reader/internal/ledger"
	"github.com/dccollins/pet-chip-reader/internal/model"
	"github.com/dccollins/pet-chip-reader/internal/notify"
	"github.com/dccollins/pet-chip-reader/internal/reader"
	"github.com/dccollins/pet-chip-reader/internal/selector"
	"github.com/dccollins/pet-chip-reader/internal/service"
	"github.com/dccollins/pet-chip-reader/internal/storage"
	"github.com/dccollins/pet-chip-reader/internal/upload"
	"github.com/dccollins/pet-chip-reader/internal/vision"
)

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Start the reader daemon",
		Long: `Poll the chip reader continuously and process detections until
interrupted. This is the command the systemd unit runs.`,
		RunE: runDaemon,
	}
}

func runDaemon(cmd *cobra.Command, _ []string) error {
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
		return fmt.Errorf("failed to migrate database: %w", err)
	}

	pipeline, err := buildPipeline(cmd, cfg, db)
	if err != nil {
		return err
	}

	var classifier service.Classifier
	if cfg.Vision.APIKey != "" {
		classifier, err = vision.NewOpenAIClient(vision.Config{
			APIKey:  cfg.Vision.APIKey,
			Model:   cfg.Vision.Model,
			Timeout: cfg.Vision.Timeout,
		})
		if err != nil {
			return fmt.Errorf("failed to build vision client: %w", err)
		}
	} else {
		slog.Warn("No vision API key configured, photo selection falls back to first capture")
	}

	camera, err := capture.NewCommandCapture(cfg.Capture.Command, cfg.Capture.PhotoDir,
		cfg.Capture.Args, cfg.Capture.Timeout, slog.Default())
	if err != nil {
		return fmt.Errorf("failed to set up capture: %w", err)
	}

	port, err := reader.OpenPort(cfg.Serial.Device, cfg.Serial.Baud)
	if err != nil {
		return err
	}
	poller := reader.NewPoller(port, a04.BuildPollCommand(cfg.Serial.Address, cfg.Serial.Format), cfg.Serial.ReadTimeout)
	defer func() { _ = poller.Close() }()

	orch := engine.New(engine.Config{
		PollInterval: cfg.Serial.PollInterval,
		ErrorBackoff: cfg.Serial.ErrorBackoff,
		DedupeWindow: cfg.Pipeline.DedupeWindow,
		BatchDelay:   cfg.Pipeline.BatchDelay,
		MaxPerBatch:  cfg.Pipeline.MaxPerBatch,
		RecentWindow: cfg.Pipeline.RecentWindow,
		DrainOnStop:  cfg.Pipeline.DrainOnStop,
		NotifyTo:     cfg.Notify.To,
		LostTags:     cfg.LostTags,
	}, engine.Deps{
		Poller:   poller,
		Capture:  camera,
		Ledger:   ledger.New(db, cfg.Pipeline.Retention),
		Selector: selector.New(classifier, cfg.Vision.GoodEnough, slog.Default()),
		Pipeline: pipeline,
		Logger:   slog.Default(),
	})

	slog.Info("Starting chipd",
		"device", cfg.Serial.Device,
		"baud", cfg.Serial.Baud,
		"db", cfg.Storage.DBPath)

	return orch.Run(ctx)
}

// buildPipeline assembles the delivery pipeline with whichever
// transports are configured. A missing transport leaves its items
// queued rather than failing startup, so the daemon still records
// encounters when, say, Drive credentials are absent.
func buildPipeline(cmd *cobra.Command, cfg *config.Config, db *storage.DB) (*delivery.Pipeline, error) {
	transports := make(map[model.DeliveryKind]service.Transport)

	if _, err := os.Stat(cfg.Upload.CredentialsFile); err == nil {
		uploader, err := upload.NewDriveUploader(cmd.Context(), upload.Config{
			CredentialsFile: cfg.Upload.CredentialsFile,
			TokenFile:       cfg.Upload.TokenFile,
			Folder:          cfg.Upload.Folder,
			Timeout:         cfg.Upload.Timeout,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to build Drive uploader: %w", err)
		}
		transports[model.KindUpload] = uploader
	} else {
		slog.Warn("Drive credentials not found, uploads will queue",
			"credentials_file", cfg.Upload.CredentialsFile)
	}

	if cfg.Notify.From != "" && len(cfg.Notify.To) > 0 {
		notifier, err := notify.NewSMTPNotifier(notify.SMTPConfig{
			Host: cfg.Notify.Host,
			Port: cfg.Notify.Port,
			User: cfg.Notify.Username,
			Pass: cfg.Notify.Password,
			From: cfg.Notify.From,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to build SMTP notifier: %w", err)
		}
		transports[model.KindNotification] = notifier
	} else {
		slog.Warn("SMTP sender or recipients not configured, notifications will queue")
	}

	return delivery.New(delivery.Config{
		BackupDir: cfg.Pipeline.BackupDir,
		Retry: service.RetryOptions{
			MaxAttempts:  cfg.Pipeline.RetryMaxAttempts,
			InitialDelay: cfg.Pipeline.RetryInitialDelay,
			MaxDelay:     cfg.Pipeline.RetryMaxDelay,
			Multiplier:   cfg.Pipeline.RetryMultiplier,
		},
		PollInterval: cfg.Pipeline.RetryPollInterval,
	}, transports, db, slog.Default())
}
