package config

import (
	"encoding/json"
	"os"
	"time"

	"github.com/ksolodov/fieldreporter/internal/flagx"
	"github.com/ksolodov/fieldreporter/internal/timex"
)

// JsonConfig is the DTO for JSON unmarshalling. Durations accept either
// strings like "15s" or integer nanoseconds via timex.Duration.
type JsonConfig struct {
	ServerURL           string         `json:"server_url"`
	DatabasePath        string         `json:"database_path"`
	MediaDir            string         `json:"media_dir"`
	DeviceName          string         `json:"device_name"`
	OnlineCheckInterval timex.Duration `json:"online_check_interval"`
	DrainInterval       timex.Duration `json:"drain_interval"`
	ChunkSize           int64          `json:"chunk_size"`
	ChunkTimeout        timex.Duration `json:"chunk_timeout"`
	RetryBaseDelay      timex.Duration `json:"retry_base_delay"`
	RetryMaxDelay       timex.Duration `json:"retry_max_delay"`
	MaxRetries          int            `json:"max_retries"`
}

// parseJson overlays cfg with values from the file named by -c/-config.
// Only fields present in the JSON override; zero values are skipped so
// a partial file works.
func parseJson(cfg *Config) {
	jsonConfigFile := flagx.JSONConfigFlags()
	if jsonConfigFile == "" {
		return
	}

	data, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}

	var jc JsonConfig
	if err := json.Unmarshal(data, &jc); err != nil {
		panic(err)
	}

	if jc.ServerURL != "" {
		cfg.ServerURL = jc.ServerURL
	}
	if jc.DatabasePath != "" {
		cfg.DatabasePath = jc.DatabasePath
	}
	if jc.MediaDir != "" {
		cfg.MediaDir = jc.MediaDir
	}
	if jc.DeviceName != "" {
		cfg.DeviceName = jc.DeviceName
	}
	if jc.OnlineCheckInterval.Duration != 0 {
		cfg.OnlineCheckInterval = time.Duration(jc.OnlineCheckInterval.Duration)
	}
	if jc.DrainInterval.Duration != 0 {
		cfg.DrainInterval = time.Duration(jc.DrainInterval.Duration)
	}
	if jc.ChunkSize != 0 {
		cfg.ChunkSize = jc.ChunkSize
	}
	if jc.ChunkTimeout.Duration != 0 {
		cfg.ChunkTimeout = time.Duration(jc.ChunkTimeout.Duration)
	}
	if jc.RetryBaseDelay.Duration != 0 {
		cfg.RetryBaseDelay = time.Duration(jc.RetryBaseDelay.Duration)
	}
	if jc.RetryMaxDelay.Duration != 0 {
		cfg.RetryMaxDelay = time.Duration(jc.RetryMaxDelay.Duration)
	}
	if jc.MaxRetries != 0 {
		cfg.MaxRetries = jc.MaxRetries
	}
}
