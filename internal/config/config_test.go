package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dccollins/pet-chip-reader/internal/common"
)

func newViper() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	return v
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(newViper())
	require.NoError(t, err)

	assert.Equal(t, "/dev/ttyUSB0", cfg.Serial.Device)
	assert.Equal(t, 9600, cfg.Serial.Baud)
	assert.Equal(t, "01", cfg.Serial.Address)
	assert.Equal(t, "D", cfg.Serial.Format)
	assert.Equal(t, 500*time.Millisecond, cfg.Serial.PollInterval)
	assert.Equal(t, time.Second, cfg.Serial.ReadTimeout)
	assert.Equal(t, 5*time.Second, cfg.Serial.ErrorBackoff)

	assert.Equal(t, 2*time.Second, cfg.Pipeline.DedupeWindow)
	assert.Equal(t, time.Minute, cfg.Pipeline.BatchDelay)
	assert.Equal(t, 5, cfg.Pipeline.MaxPerBatch)
	assert.Equal(t, 30*time.Minute, cfg.Pipeline.RecentWindow)
	assert.Equal(t, 7*24*time.Hour, cfg.Pipeline.Retention)
	assert.True(t, cfg.Pipeline.DrainOnStop)
	assert.Equal(t, 5, cfg.Pipeline.RetryMaxAttempts)
	assert.Equal(t, 30*time.Second, cfg.Pipeline.RetryInitialDelay)
	assert.Equal(t, 10*time.Minute, cfg.Pipeline.RetryMaxDelay)
	assert.Equal(t, 2.0, cfg.Pipeline.RetryMultiplier)

	assert.Equal(t, "gpt-4o-mini", cfg.Vision.Model)
	assert.Equal(t, 30*time.Second, cfg.Vision.Timeout)
	assert.Equal(t, 15, cfg.Vision.GoodEnough)

	assert.Equal(t, "smtp.gmail.com", cfg.Notify.Host)
	assert.Equal(t, 587, cfg.Notify.Port)

	assert.Equal(t, "libcamera-still", cfg.Capture.Command)
	assert.Equal(t, []string{"-n", "-t", "500"}, cfg.Capture.Args)
}

func TestLoadOverrides(t *testing.T) {
	v := newViper()
	v.Set("serial.device", "/dev/ttyAMA0")
	v.Set("serial.address", "02")
	v.Set("pipeline.batch_delay", "90s")
	v.Set("lost_tags", []string{"900215001234567"})

	cfg, err := Load(v)
	require.NoError(t, err)
	assert.Equal(t, "/dev/ttyAMA0", cfg.Serial.Device)
	assert.Equal(t, "02", cfg.Serial.Address)
	assert.Equal(t, 90*time.Second, cfg.Pipeline.BatchDelay)
	assert.Equal(t, []string{"900215001234567"}, cfg.LostTags)
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name string
		set  func(v *viper.Viper)
	}{
		{"zero baud", func(v *viper.Viper) { v.Set("serial.baud", 0) }},
		{"long address", func(v *viper.Viper) { v.Set("serial.address", "001") }},
		{"zero poll interval", func(v *viper.Viper) { v.Set("serial.poll_interval", "0s") }},
		{"zero read timeout", func(v *viper.Viper) { v.Set("serial.read_timeout", "0s") }},
		{"zero dedupe window", func(v *viper.Viper) { v.Set("pipeline.dedupe_window", "0s") }},
		{"zero batch delay", func(v *viper.Viper) { v.Set("pipeline.batch_delay", "0s") }},
		{"zero max per batch", func(v *viper.Viper) { v.Set("pipeline.max_per_batch", 0) }},
		{"retention below recent window", func(v *viper.Viper) { v.Set("pipeline.retention", "10m") }},
		{"zero retry attempts", func(v *viper.Viper) { v.Set("pipeline.retry.max_attempts", 0) }},
		{"sub-unit multiplier", func(v *viper.Viper) { v.Set("pipeline.retry.multiplier", 0.5) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := newViper()
			tt.set(v)
			_, err := Load(v)
			require.Error(t, err)
			assert.ErrorIs(t, err, common.ErrInvalidConfig)
		})
	}
}

func TestExpandPathTilde(t *testing.T) {
	t.Setenv("HOME", "/home/collins")
	assert.Equal(t, "/home/collins/.config/chipd", ExpandPath("~/.config/chipd"))
	assert.Equal(t, "/home/collins", ExpandPath("~"))
	assert.Equal(t, "", ExpandPath(""))
	assert.Equal(t, "/tmp/photos", ExpandPath("/tmp/photos"))
}
