package config

import (
	"os"
	"strconv"
	"time"
)

// parseEnv overlays Config with values from BINLIFT_-prefixed environment
// variables. Unset variables leave the current value untouched. Durations
// use time.ParseDuration syntax ("3s", "72h"); malformed values panic, the
// same contract as the JSON loader.
//
// Recognized variables:
//
//	BINLIFT_OWNER_ID            BINLIFT_LOCAL_DSN        BINLIFT_REMOTE_DSN
//	BINLIFT_PROBE_URL           BINLIFT_PROBE_INTERVAL
//	BINLIFT_S3_ACCESS_KEY       BINLIFT_S3_SECRET_KEY    BINLIFT_S3_BUCKET
//	BINLIFT_S3_REGION           BINLIFT_S3_ENDPOINT
//	BINLIFT_ATTACHMENT_FOLDER   BINLIFT_UPLOAD_MAX_RETRIES
//	BINLIFT_RETENTION_WINDOW
func parseEnv(cfg *Config) {
	envString("BINLIFT_OWNER_ID", &cfg.OwnerID)
	envString("BINLIFT_LOCAL_DSN", &cfg.LocalDatabaseDSN)
	envString("BINLIFT_REMOTE_DSN", &cfg.RemoteDatabaseDSN)
	envString("BINLIFT_PROBE_URL", &cfg.ProbeURL)
	envDuration("BINLIFT_PROBE_INTERVAL", &cfg.ProbeInterval)
	envString("BINLIFT_S3_ACCESS_KEY", &cfg.S3AccessKey)
	envString("BINLIFT_S3_SECRET_KEY", &cfg.S3SecretKey)
	envString("BINLIFT_S3_BUCKET", &cfg.S3Bucket)
	envString("BINLIFT_S3_REGION", &cfg.S3Region)
	envString("BINLIFT_S3_ENDPOINT", &cfg.S3BaseEndpoint)
	envString("BINLIFT_ATTACHMENT_FOLDER", &cfg.AttachmentFolder)
	envUint("BINLIFT_UPLOAD_MAX_RETRIES", &cfg.UploadMaxRetries)
	envDuration("BINLIFT_RETENTION_WINDOW", &cfg.RetentionWindow)
}

func envString(name string, dst *string) {
	if v, ok := os.LookupEnv(name); ok {
		*dst = v
	}
}

func envDuration(name string, dst *time.Duration) {
	v, ok := os.LookupEnv(name)
	if !ok {
		return
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		panic(err)
	}
	*dst = d
}

func envUint(name string, dst *uint64) {
	v, ok := os.LookupEnv(name)
	if !ok {
		return
	}
	n, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		panic(err)
	}
	*dst = n
}
