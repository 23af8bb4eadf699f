package config

import (
	"encoding/json"
	"os"
	"time"

	"github.com/binlift/binlift/internal/flagx"
	"github.com/binlift/binlift/internal/timex"
)

// JsonConfig is a DTO used exclusively for JSON unmarshalling.
// It relies on timex.Duration so JSON can specify intervals either as
// strings like "3s" or as integer nanoseconds. After parsing, values
// are copied into the runtime Config (which uses time.Duration).
type JsonConfig struct {
	OwnerID           string         `json:"owner_id"`
	LocalDatabaseDSN  string         `json:"local_database_dsn"`
	RemoteDatabaseDSN string         `json:"remote_database_dsn"`
	ProbeURL          string         `json:"probe_url"`
	ProbeInterval     timex.Duration `json:"probe_interval"`
	S3AccessKey       string         `json:"s3_access_key"`
	S3SecretKey       string         `json:"s3_secret_key"`
	S3Bucket          string         `json:"s3_bucket"`
	S3Region          string         `json:"s3_region"`
	S3BaseEndpoint    string         `json:"s3_base_endpoint"`
	AttachmentFolder  string         `json:"attachment_folder"`
	UploadMaxRetries  uint64         `json:"upload_max_retries"`
	RetentionWindow   timex.Duration `json:"retention_window"`
	LockoutThreshold  int            `json:"lockout_threshold"`
	LockoutBase       timex.Duration `json:"lockout_base"`
	LockoutMax        timex.Duration `json:"lockout_max"`
}

// parseJson overlays Config with values loaded from a JSON file.
//
// Lookup order for the JSON file path:
//  1. Command-line flags (-c or -config) via flagx.JsonConfigFlags().
//  2. If empty, no JSON is loaded and the function returns.
//
// Only fields present in the file override the config; zero values from
// absent keys are skipped so the overlay never erases a default.
// Panics on read or unmarshal errors (caller should recover if desired).
func parseJson(cfg *Config) {
	jsonConfigFile := flagx.JsonConfigFlags()
	if jsonConfigFile == "" {
		return
	}

	var jc JsonConfig

	data, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}
	if err := json.Unmarshal(data, &jc); err != nil {
		panic(err)
	}

	applyJson(cfg, &jc)
}

func applyJson(cfg *Config, jc *JsonConfig) {
	if jc.OwnerID != "" {
		cfg.OwnerID = jc.OwnerID
	}
	if jc.LocalDatabaseDSN != "" {
		cfg.LocalDatabaseDSN = jc.LocalDatabaseDSN
	}
	if jc.RemoteDatabaseDSN != "" {
		cfg.RemoteDatabaseDSN = jc.RemoteDatabaseDSN
	}
	if jc.ProbeURL != "" {
		cfg.ProbeURL = jc.ProbeURL
	}
	if jc.ProbeInterval.Duration != 0 {
		cfg.ProbeInterval = time.Duration(jc.ProbeInterval.Duration)
	}
	if jc.S3AccessKey != "" {
		cfg.S3AccessKey = jc.S3AccessKey
	}
	if jc.S3SecretKey != "" {
		cfg.S3SecretKey = jc.S3SecretKey
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
	if jc.AttachmentFolder != "" {
		cfg.AttachmentFolder = jc.AttachmentFolder
	}
	if jc.UploadMaxRetries != 0 {
		cfg.UploadMaxRetries = jc.UploadMaxRetries
	}
	if jc.RetentionWindow.Duration != 0 {
		cfg.RetentionWindow = time.Duration(jc.RetentionWindow.Duration)
	}
	if jc.LockoutThreshold != 0 {
		cfg.LockoutThreshold = jc.LockoutThreshold
	}
	if jc.LockoutBase.Duration != 0 {
		cfg.LockoutBase = time.Duration(jc.LockoutBase.Duration)
	}
	if jc.LockoutMax.Duration != 0 {
		cfg.LockoutMax = time.Duration(jc.LockoutMax.Duration)
	}
}
