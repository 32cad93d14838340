package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"

	"github.com/dccollins/pet-chip-reader/internal/common"
)

// Config is the fully resolved daemon configuration. Every field has a
// default registered in SetDefaults, so a missing config file yields a
// runnable setup aside from the secrets.
type Config struct {
	Serial   SerialConfig
	Pipeline PipelineConfig
	Storage  StorageConfig
	Vision   VisionConfig
	Notify   NotifyConfig
	Upload   UploadConfig
	Capture  CaptureConfig
	LostTags []string
}

// SerialConfig describes the reader link and poll cadence.
type SerialConfig struct {
	Device       string
	Baud         int
	Address      string
	Format       string
	PollInterval time.Duration
	ReadTimeout  time.Duration
	ErrorBackoff time.Duration
}

// PipelineConfig covers the event pipeline stages between a decoded tag
// and an outbound notification.
type PipelineConfig struct {
	DedupeWindow time.Duration
	BatchDelay   time.Duration
	MaxPerBatch  int
	RecentWindow time.Duration
	Retention    time.Duration
	BackupDir    string
	DrainOnStop  bool

	RetryMaxAttempts  int
	RetryInitialDelay time.Duration
	RetryMaxDelay     time.Duration
	RetryMultiplier   float64
	RetryPollInterval time.Duration
}

// StorageConfig locates the encounter database.
type StorageConfig struct {
	DBPath string
}

// VisionConfig configures the photo classifier.
type VisionConfig struct {
	APIKey     string
	Model      string
	Timeout    time.Duration
	GoodEnough int
}

// NotifyConfig configures the SMS-over-SMTP notifier.
type NotifyConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	To       []string
}

// UploadConfig configures the Drive artifact uploader.
type UploadConfig struct {
	CredentialsFile string
	TokenFile       string
	Folder          string
	Timeout         time.Duration
}

// CaptureConfig configures the external still-capture command.
type CaptureConfig struct {
	Command  string
	Args     []string
	PhotoDir string
	Timeout  time.Duration
}

// SetDefaults registers every tunable with its default value so partial
// config files only need to name what they change.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("serial.device", "/dev/ttyUSB0")
	v.SetDefault("serial.baud", 9600)
	v.SetDefault("serial.address", "01")
	v.SetDefault("serial.format", "D")
	v.SetDefault("serial.poll_interval", "500ms")
	v.SetDefault("serial.read_timeout", "1s")
	v.SetDefault("serial.error_backoff", "5s")

	v.SetDefault("pipeline.dedupe_window", "2s")
	v.SetDefault("pipeline.batch_delay", "60s")
	v.SetDefault("pipeline.max_per_batch", 5)
	v.SetDefault("pipeline.recent_window", "30m")
	v.SetDefault("pipeline.retention", "168h")
	v.SetDefault("pipeline.backup_dir", "~/.local/share/chipd/backup")
	v.SetDefault("pipeline.drain_on_stop", true)
	v.SetDefault("pipeline.retry.max_attempts", 5)
	v.SetDefault("pipeline.retry.initial_delay", "30s")
	v.SetDefault("pipeline.retry.max_delay", "10m")
	v.SetDefault("pipeline.retry.multiplier", 2.0)
	v.SetDefault("pipeline.retry.poll_interval", "30s")

	v.SetDefault("storage.db_path", "~/.local/share/chipd/chipd.db")

	v.SetDefault("vision.model", "gpt-4o-mini")
	v.SetDefault("vision.timeout", "30s")
	v.SetDefault("vision.good_enough", 15)

	v.SetDefault("notify.host", "smtp.gmail.com")
	v.SetDefault("notify.port", 587)

	v.SetDefault("upload.credentials_file", "~/.config/chipd/credentials.json")
	v.SetDefault("upload.token_file", "~/.config/chipd/token.json")
	v.SetDefault("upload.folder", "")
	v.SetDefault("upload.timeout", "2m")

	v.SetDefault("capture.command", "libcamera-still")
	v.SetDefault("capture.args", []string{"-n", "-t", "500"})
	v.SetDefault("capture.photo_dir", "~/.local/share/chipd/photos")
	v.SetDefault("capture.timeout", "10s")
}

// Load resolves the configuration from an initialized viper instance.
func Load(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		Serial: SerialConfig{
			Device:       ExpandPath(v.GetString("serial.device")),
			Baud:         v.GetInt("serial.baud"),
			Address:      v.GetString("serial.address"),
			Format:       v.GetString("serial.format"),
			PollInterval: v.GetDuration("serial.poll_interval"),
			ReadTimeout:  v.GetDuration("serial.read_timeout"),
			ErrorBackoff: v.GetDuration("serial.error_backoff"),
		},
		Pipeline: PipelineConfig{
			DedupeWindow:      v.GetDuration("pipeline.dedupe_window"),
			BatchDelay:        v.GetDuration("pipeline.batch_delay"),
			MaxPerBatch:       v.GetInt("pipeline.max_per_batch"),
			RecentWindow:      v.GetDuration("pipeline.recent_window"),
			Retention:         v.GetDuration("pipeline.retention"),
			BackupDir:         ExpandPath(v.GetString("pipeline.backup_dir")),
			DrainOnStop:       v.GetBool("pipeline.drain_on_stop"),
			RetryMaxAttempts:  v.GetInt("pipeline.retry.max_attempts"),
			RetryInitialDelay: v.GetDuration("pipeline.retry.initial_delay"),
			RetryMaxDelay:     v.GetDuration("pipeline.retry.max_delay"),
			RetryMultiplier:   v.GetFloat64("pipeline.retry.multiplier"),
			RetryPollInterval: v.GetDuration("pipeline.retry.poll_interval"),
		},
		Storage: StorageConfig{
			DBPath: ExpandPath(v.GetString("storage.db_path")),
		},
		Vision: VisionConfig{
			APIKey:     v.GetString("vision.api_key"),
			Model:      v.GetString("vision.model"),
			Timeout:    v.GetDuration("vision.timeout"),
			GoodEnough: v.GetInt("vision.good_enough"),
		},
		Notify: NotifyConfig{
			Host:     v.GetString("notify.host"),
			Port:     v.GetInt("notify.port"),
			Username: v.GetString("notify.username"),
			Password: v.GetString("notify.password"),
			From:     v.GetString("notify.from"),
			To:       v.GetStringSlice("notify.to"),
		},
		Upload: UploadConfig{
			CredentialsFile: ExpandPath(v.GetString("upload.credentials_file")),
			TokenFile:       ExpandPath(v.GetString("upload.token_file")),
			Folder:          v.GetString("upload.folder"),
			Timeout:         v.GetDuration("upload.timeout"),
		},
		Capture: CaptureConfig{
			Command:  v.GetString("capture.command"),
			Args:     v.GetStringSlice("capture.args"),
			PhotoDir: ExpandPath(v.GetString("capture.photo_dir")),
			Timeout:  v.GetDuration("capture.timeout"),
		},
		LostTags: v.GetStringSlice("lost_tags"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations that would break pipeline invariants.
func (c *Config) Validate() error {
	if c.Serial.Baud <= 0 {
		return fmt.Errorf("%w: serial baud must be positive, got %d", common.ErrInvalidConfig, c.Serial.Baud)
	}
	if len(c.Serial.Address) != 2 {
		return fmt.Errorf("%w: serial address must be two characters, got %q", common.ErrInvalidConfig, c.Serial.Address)
	}
	if c.Serial.PollInterval <= 0 {
		return fmt.Errorf("%w: serial poll interval must be positive", common.ErrInvalidConfig)
	}
	if c.Serial.ReadTimeout <= 0 {
		return fmt.Errorf("%w: serial read timeout must be positive", common.ErrInvalidConfig)
	}
	if c.Pipeline.DedupeWindow <= 0 {
		return fmt.Errorf("%w: dedupe window must be positive", common.ErrInvalidConfig)
	}
	if c.Pipeline.BatchDelay <= 0 {
		return fmt.Errorf("%w: batch delay must be positive", common.ErrInvalidConfig)
	}
	if c.Pipeline.MaxPerBatch < 1 {
		return fmt.Errorf("%w: max per batch must be at least 1, got %d", common.ErrInvalidConfig, c.Pipeline.MaxPerBatch)
	}
	if c.Pipeline.RecentWindow <= 0 {
		return fmt.Errorf("%w: recent window must be positive", common.ErrInvalidConfig)
	}
	if c.Pipeline.Retention < c.Pipeline.RecentWindow {
		return fmt.Errorf("%w: retention %s is shorter than recent window %s",
			common.ErrInvalidConfig, c.Pipeline.Retention, c.Pipeline.RecentWindow)
	}
	if c.Pipeline.RetryMaxAttempts < 1 {
		return fmt.Errorf("%w: retry max attempts must be at least 1", common.ErrInvalidConfig)
	}
	if c.Pipeline.RetryMultiplier < 1 {
		return fmt.Errorf("%w: retry multiplier must be at least 1, got %g", common.ErrInvalidConfig, c.Pipeline.RetryMultiplier)
	}
	return nil
}
