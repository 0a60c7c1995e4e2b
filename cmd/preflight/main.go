// Command preflight loads the same configuration as the API and reports what
// it would run with, exiting non-zero when the API would refuse to start.
package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/joho/godotenv"
	"go.uber.org/multierr"

	"github.com/hamed0406/sitewatch/internal/config"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintln(os.Stderr, "✖ .env:", err)
		os.Exit(1)
	}
	cfg, err := config.Load()
	if err != nil {
		errs := multierr.Errors(err)
		if inner := errors.Unwrap(err); inner != nil {
			errs = multierr.Errors(inner)
		}
		for _, e := range errs {
			fmt.Fprintln(os.Stderr, "✖", e)
		}
		os.Exit(1)
	}
	if !report(os.Stdout, os.Stderr, cfg) {
		os.Exit(1)
	}
}

// report prints the effective settings and warnings. It returns false when a
// setting makes the deployment unusable.
func report(out, errOut io.Writer, cfg config.Config) bool {
	ok := func(format string, a ...any) { fmt.Fprintf(out, "✔ "+format+"\n", a...) }
	warn := func(format string, a ...any) { fmt.Fprintf(errOut, "⚠ "+format+"\n", a...) }
	fail := func(format string, a ...any) { fmt.Fprintf(errOut, "✖ "+format+"\n", a...) }
	passed := true

	ok("listen on %s", cfg.Addr)
	switch {
	case cfg.DatabaseURL != "":
		ok("store: postgres")
	case cfg.SQLitePath != "":
		ok("store: sqlite at %s", cfg.SQLitePath)
	default:
		warn("no DATABASE_URL or SQLITE_PATH: history lives in memory and is lost on restart")
	}

	if cfg.CheckInterval == 0 {
		warn("CHECK_INTERVAL_MS=0: periodic checks disabled, on-demand only")
	} else {
		ok("checks every %s, %d at a time, timeout %s", cfg.CheckInterval, cfg.MaxConcurrentChecks, cfg.HTTPTimeout)
	}
	if cfg.HistoryLimit == 0 {
		warn("HISTORY_LIMIT=0: history grows without bound")
	} else {
		ok("keeping %s checks per site", humanize.Comma(int64(cfg.HistoryLimit)))
	}

	if len(cfg.AdminAPIKeys) == 0 {
		warn("ADMIN_API_KEYS is empty: admin routes are open")
	}
	if len(cfg.PublicAPIKeys) == 0 && len(cfg.AdminAPIKeys) == 0 {
		warn("no API keys configured: read routes are open")
	}
	for _, k := range append(append([]string{}, cfg.PublicAPIKeys...), cfg.AdminAPIKeys...) {
		if strings.ContainsAny(k, " \t") {
			fail("an API key contains whitespace; use key1,key2")
			passed = false
			break
		}
	}

	if len(cfg.AllowedOrigins) == 0 {
		warn("ALLOWED_ORIGINS empty: any origin may call the API and open websockets")
	} else {
		ok("allowed origins: %s", strings.Join(cfg.AllowedOrigins, ","))
	}

	if cfg.SlackWebhookURL == "" {
		warn("SLACK_WEBHOOK_URL empty: down/recovery alerts disabled")
	} else {
		ok("slack alerts on, cooldown %s", cfg.AlertCooldown)
	}

	if passed {
		ok("preflight passed")
	}
	return passed
}
