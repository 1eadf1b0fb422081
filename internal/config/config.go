// Package config loads the dashfold configuration: an optional HCL file
// with environment variable overrides on top.
package config

import (
	"fmt"
	"os"

	"github.com/caarlos0/env/v11"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
)

// DefaultFile is the config file looked up in the working directory when no
// explicit path is given.
const DefaultFile = "dashfold.hcl"

// Config is the full configuration surface of the definition store and the
// deployment watcher.
type Config struct {
	// StorePath is the directory holding the versioned definition store.
	StorePath string `hcl:"store_path,optional" env:"DASHFOLD_STORE_PATH"`
	// Directory is the deployment drop-folder. Blank disables watching.
	Directory string `hcl:"deploy_dir,optional" env:"DASHFOLD_DEPLOY_DIR"`
	// PollingMs is the watcher interval in milliseconds. Zero still runs the
	// one-shot pass on start but disables background polling.
	PollingMs int `hcl:"polling_ms,optional" env:"DASHFOLD_POLLING_MS"`
	// MaxCSVLength caps attached CSV files, in bytes.
	MaxCSVLength int64 `hcl:"max_csv_length,optional" env:"DASHFOLD_MAX_CSV_LENGTH"`
	// AuditDB is the sqlite file recording lifecycle events.
	AuditDB string `hcl:"audit_db,optional" env:"DASHFOLD_AUDIT_DB"`
	// Debug enables debug-level logging.
	Debug bool `hcl:"debug,optional" env:"DASHFOLD_DEBUG"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		StorePath:    "datasets",
		PollingMs:    3000,
		MaxCSVLength: 1048576,
		AuditDB:      "dashfold-audit.db",
	}
}

// Load builds the effective configuration: defaults, then the HCL file at
// path (or DefaultFile if present when path is blank), then environment
// overrides.
func Load(path string) (Config, error) {
	cfg := Default()

	if path == "" {
		if _, err := os.Stat(DefaultFile); err == nil {
			path = DefaultFile
		}
	}
	if path != "" {
		parser := hclparse.NewParser()
		file, diags := parser.ParseHCLFile(path)
		if diags.HasErrors() {
			return cfg, fmt.Errorf("parse config %s: %w", path, diags)
		}
		if diags := gohcl.DecodeBody(file.Body, nil, &cfg); diags.HasErrors() {
			return cfg, fmt.Errorf("decode config %s: %w", path, diags)
		}
	}

	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}
