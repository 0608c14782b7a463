package main

import (
	"path/filepath"
	"strings"

	"github.com/adrg/xdg"
	"go-simpler.org/env"

	"relaypool.dev/internal/chk"
)

// Config holds poolctl's environment-loaded settings, following the same
// go-simpler.org/env + adrg/xdg layout the rest of this codebase's config
// uses: every field has a sensible default, and directory fields fall back
// to the platform's XDG locations when left unset.
type Config struct {
	AppName  string   `env:"POOLCTL_APP_NAME" default:"poolctl"`
	DataDir  string   `env:"POOLCTL_DATA_DIR" usage:"storage location for the local event store"`
	LogLevel string   `env:"POOLCTL_LOG_LEVEL" default:"info" usage:"trace debug info warn error fatal"`
	Relays   []string `env:"POOLCTL_RELAYS" usage:"default relay set used when --relays is omitted (comma separated)"`
}

// LoadConfig loads Config from the environment, filling in XDG-relative
// defaults for any directory left unset.
func LoadConfig() (*Config, error) {
	cfg := &Config{}
	if err := env.Load(cfg, &env.Options{SliceSep: ","}); chk.T(err) {
		return nil, err
	}
	if cfg.DataDir == "" || strings.Contains(cfg.DataDir, "~") {
		cfg.DataDir = filepath.Join(xdg.DataHome, cfg.AppName)
	}
	return cfg, nil
}
