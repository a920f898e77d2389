package config

import (
	"encoding/json"
	"os"

	"github.com/dmitrijs2005/ioukeeper/internal/flagx"
	"github.com/dmitrijs2005/ioukeeper/internal/timex"
)

// JsonConfig is a DTO used exclusively for JSON unmarshalling. Pointer fields
// tell an absent key from an explicit zero.
type JsonConfig struct {
	IdentityURL          *string         `json:"identity_url"`
	Realm                *string         `json:"realm"`
	ClientID             *string         `json:"client_id"`
	EngineURL            *string         `json:"engine_url"`
	PageSize             *int            `json:"page_size"`
	RequestTimeout       *timex.Duration `json:"request_timeout"`
	ReconcileConcurrency *int            `json:"reconcile_concurrency"`
	RateLimit            *float64        `json:"rate_limit"`
	CachePath            *string         `json:"cache_path"`
	MetricsAddr          *string         `json:"metrics_addr"`
	LogLevel             *string         `json:"log_level"`
}

// parseJson overlays Config with values loaded from the JSON file named by
// -c or -config. Without either flag it does nothing. Panics on read or
// unmarshal errors.
func parseJson(cfg *Config) {
	jsonConfigFile := flagx.ConfigPath(os.Args[1:])
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

	jc.apply(cfg)
}

func (jc *JsonConfig) apply(cfg *Config) {
	set(&cfg.IdentityURL, jc.IdentityURL)
	set(&cfg.Realm, jc.Realm)
	set(&cfg.ClientID, jc.ClientID)
	set(&cfg.EngineURL, jc.EngineURL)
	set(&cfg.PageSize, jc.PageSize)
	set(&cfg.ReconcileConcurrency, jc.ReconcileConcurrency)
	set(&cfg.RateLimit, jc.RateLimit)
	set(&cfg.CachePath, jc.CachePath)
	set(&cfg.MetricsAddr, jc.MetricsAddr)
	set(&cfg.LogLevel, jc.LogLevel)
	if jc.RequestTimeout != nil {
		cfg.RequestTimeout = jc.RequestTimeout.Duration
	}
}

func set[T any](dst *T, src *T) {
	if src != nil {
		*dst = *src
	}
}
