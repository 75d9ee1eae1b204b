package config

import (
	"encoding/json"
	"os"

	"github.com/ksolodov/fieldreporter/internal/flagx"
	"github.com/ksolodov/fieldreporter/internal/timex"
)

// JsonConfig is the DTO for JSON unmarshalling.
type JsonConfig struct {
	EndpointAddr          string         `json:"endpoint_addr"`
	DatabaseDSN           string         `json:"database_dsn"`
	SecretKey             string         `json:"secret_key"`
	TokenValidityDuration timex.Duration `json:"token_validity_duration"`
	ChunkStagingDir       string         `json:"chunk_staging_dir"`
	S3RootUser            string         `json:"s3_root_user"`
	S3RootPassword        string         `json:"s3_root_password"`
	S3Bucket              string         `json:"s3_bucket"`
	S3Region              string         `json:"s3_region"`
	S3BaseEndpoint        string         `json:"s3_base_endpoint"`
}

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

	if jc.EndpointAddr != "" {
		cfg.EndpointAddr = jc.EndpointAddr
	}
	if jc.DatabaseDSN != "" {
		cfg.DatabaseDSN = jc.DatabaseDSN
	}
	if jc.SecretKey != "" {
		cfg.SecretKey = jc.SecretKey
	}
	if jc.TokenValidityDuration.Duration != 0 {
		cfg.TokenValidityDuration = jc.TokenValidityDuration.Duration
	}
	if jc.ChunkStagingDir != "" {
		cfg.ChunkStagingDir = jc.ChunkStagingDir
	}
	if jc.S3RootUser != "" {
		cfg.S3RootUser = jc.S3RootUser
	}
	if jc.S3RootPassword != "" {
		cfg.S3RootPassword = jc.S3RootPassword
	}
	if jc.S3Bucket != "" {
		cfg.S3Bucket = jc.S3Bucket
	}
	if jc.S3Region != "" {
		cfg.S3Region = jc.S3Region
	}
	if jc.S3BaseEndpoint != "" {
		cfg.S3BaseEndpoint = jc.S3BaseEndpoint
	}
}
