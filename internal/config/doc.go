// Package config loads runtime configuration for the binlift sync agent.
//
// Sources & precedence
//
//  1. Built-in defaults (see (*Config).LoadDefaults).
//  2. Optional JSON file (see parseJson) selected via flags: -c or -config.
//  3. Environment variables with the BINLIFT_ prefix (see parseEnv).
//  4. Command-line flags (see parseFlags), which override earlier values.
//
// # JSON schema
//
// The JSON loader uses timex.Duration for intervals, so values can be either
// strings like "3s" or integer nanoseconds:
//
//	{
//	  "owner_id": "h1",
//	  "remote_database_dsn": "postgres://...",
//	  "probe_interval": "3s",
//	  "retention_window": "72h"
//	}
//
// Primary API
//
//   - type Config                     — all agent settings in one struct
//   - func LoadConfig() *Config       — defaults, then JSON, env, flags
//   - func (*Config) LoadDefaults()   — sets development defaults
//   - func (*Config) LockoutPolicy()  — lockout knobs as a store policy
package config
