package config

import (
	"flag"
	"os"
	"time"

	"github.com/dmitrijs2005/ioukeeper/internal/flagx"
)

var knownFlags = []string{"-i", "-r", "-k", "-e", "-p", "-t", "-n", "-q", "-d", "-m", "-l"}

// parseFlags populates Config fields from command-line flags. os.Args is
// filtered with flagx.FilterArgs first so that flags owned by other loaders,
// such as -c, do not interfere.
func parseFlags(cfg *Config) {
	args := flagx.FilterArgs(os.Args[1:], knownFlags)

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&cfg.IdentityURL, "i", cfg.IdentityURL, "identity provider base url")
	fs.StringVar(&cfg.Realm, "r", cfg.Realm, "identity realm")
	fs.StringVar(&cfg.ClientID, "k", cfg.ClientID, "OAuth client id")
	fs.StringVar(&cfg.EngineURL, "e", cfg.EngineURL, "engine base url")
	fs.IntVar(&cfg.PageSize, "p", cfg.PageSize, "record listing page size")
	requestTimeout := fs.Int("t", int(cfg.RequestTimeout.Seconds()), "request timeout (in seconds)")
	fs.IntVar(&cfg.ReconcileConcurrency, "n", cfg.ReconcileConcurrency, "concurrent amount-owed lookups")
	fs.Float64Var(&cfg.RateLimit, "q", cfg.RateLimit, "engine requests per second (0 = unlimited)")
	fs.StringVar(&cfg.CachePath, "d", cfg.CachePath, "local cache database path")
	fs.StringVar(&cfg.MetricsAddr, "m", cfg.MetricsAddr, "metrics listen address (empty = off)")
	fs.StringVar(&cfg.LogLevel, "l", cfg.LogLevel, "log level")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	cfg.RequestTimeout = time.Duration(*requestTimeout) * time.Second
}
