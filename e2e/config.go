package e2e

import (
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	// SYNC_ADDR is the host:port of a running sync server. Leaving it
	// empty skips the whole suite.
	SyncAddr string `envconfig:"SYNC_ADDR"`
	// SYNC_AUTH_SECRET must match the server's AUTH_SECRET so the suite
	// can mint its own credentials.
	AuthSecret string `envconfig:"SYNC_AUTH_SECRET" default:"e2e-secret"`
	// E2E_DEBUG_JSON dumps every frame sent and received
	DebugJSON bool `envconfig:"E2E_DEBUG_JSON" default:"false"`
	// E2E_COLOURS enables colorized output for better log readability
	Colours bool `envconfig:"E2E_COLOURS" default:"true"`
}

func LoadConfig() (Config, error) {
	var cfg Config
	err := envconfig.Process("", &cfg)
	return cfg, err
}
