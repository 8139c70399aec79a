// Package config holds runtime settings for the development store server.
// Sources are applied in order: defaults, then a JSON file (if given), then
// command-line flags, with later sources overriding earlier ones.
package config

// Config holds runtime settings for chatsyncd.
//
// Fields:
//   - Addr: host:port the websocket store server listens on.
//   - LogLevel: slog level name (debug, info, warn, error).
type Config struct {
	Addr     string
	LogLevel string
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.Addr = "127.0.0.1:8080"
	c.LogLevel = "info"
}

// LoadConfig constructs a Config, applies defaults, then overlays values
// from JSON (if present) and command-line flags (if present).
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg)
	parseFlags(cfg)
	return cfg
}
