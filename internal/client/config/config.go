package config

import "time"

// Config holds runtime settings for the IOU Keeper CLI.
//
// Units: RequestTimeout is a time.Duration; RateLimit is requests per second,
// 0 disables throttling.
type Config struct {
	IdentityURL          string
	Realm                string
	ClientID             string
	EngineURL            string
	PageSize             int
	RequestTimeout       time.Duration
	ReconcileConcurrency int
	RateLimit            float64
	CachePath            string
	MetricsAddr          string
	LogLevel             string
}

// LoadDefaults populates c with defaults matching a local development stack.
func (c *Config) LoadDefaults() {
	c.IdentityURL = "http://localhost:11000"
	c.Realm = "projectvc-realm"
	c.ClientID = "engine-client"
	c.EngineURL = "http://localhost:12000/npl/objects/iou"
	c.PageSize = 100
	c.RequestTimeout = 10 * time.Second
	c.ReconcileConcurrency = 8
	c.RateLimit = 0
	c.CachePath = "ioukeeper.db"
	c.MetricsAddr = ""
	c.LogLevel = "info"
}

// LoadConfig constructs a Config, applies defaults, then overlays values from
// JSON (if present) and command-line flags (if present). Later sources take
// precedence over earlier ones.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg)
	parseFlags(cfg)
	return cfg
}
