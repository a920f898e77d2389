// Package config loads runtime configuration for the IOU Keeper CLI.
//
// Sources & precedence
//
//  1. Built-in defaults (see (*Config).LoadDefaults).
//  2. Optional JSON file (see parseJson) selected via flags: -c or -config.
//  3. Command-line flags (see parseFlags), which override earlier values.
//
// Supported flags
//
//	-i string   identity provider base url
//	-r string   identity realm
//	-k string   OAuth client id
//	-e string   engine base url, e.g. http://localhost:12000/npl/objects/iou
//	-p int      page size of the record listing
//	-t int      request timeout (seconds)
//	-n int      concurrent amount-owed lookups per refresh
//	-q float    engine requests per second, 0 for no limit
//	-d string   local cache database path
//	-m string   address for the Prometheus /metrics endpoint, empty to disable
//	-l string   log level: debug, info, warn or error
//
// # JSON schema
//
// Durations use timex.Duration, so values can be either strings like "10s"
// or integer nanoseconds. Keys that are absent keep their earlier value:
//
//	{
//	  "identity_url": "http://localhost:11000",
//	  "realm": "projectvc-realm",
//	  "client_id": "engine-client",
//	  "engine_url": "http://localhost:12000/npl/objects/iou",
//	  "page_size": 100,
//	  "request_timeout": "10s",
//	  "reconcile_concurrency": 8,
//	  "rate_limit": 0,
//	  "cache_path": "ioukeeper.db",
//	  "metrics_addr": ":9100",
//	  "log_level": "info"
//	}
//
// Note: This package does not read environment variables directly; use the
// JSON file or flags to configure values.
package config
