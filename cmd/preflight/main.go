// cmd/preflight/main.go
package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"
	_ "time/tzdata"

	"github.com/jackc/pgx/v5"

	"github.com/hamed0406/storemonitor/internal/config"
	"github.com/hamed0406/storemonitor/internal/ingest"
	"github.com/hamed0406/storemonitor/internal/logging"
)

type level int

const (
	levelOK level = iota
	levelWarn
	levelFail
)

type finding struct {
	level level
	msg   string
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "✖", err)
		os.Exit(1)
	}
	if !report(os.Stdout, os.Stderr, check(cfg)) {
		os.Exit(1)
	}
}

// report prints findings and returns false when any of them failed.
func report(stdout, stderr io.Writer, fs []finding) bool {
	passed := true
	for _, f := range fs {
		switch f.level {
		case levelOK:
			fmt.Fprintln(stdout, "✔", f.msg)
		case levelWarn:
			fmt.Fprintln(stderr, "⚠", f.msg)
		case levelFail:
			fmt.Fprintln(stderr, "✖", f.msg)
			passed = false
		}
	}
	if passed {
		fmt.Fprintln(stdout, "✔", "preflight passed")
	}
	return passed
}

func check(cfg config.Config) []finding {
	var fs []finding
	ok := func(msg string) { fs = append(fs, finding{levelOK, msg}) }
	warn := func(msg string) { fs = append(fs, finding{levelWarn, msg}) }
	fail := func(msg string) { fs = append(fs, finding{levelFail, msg}) }

	switch {
	case len(cfg.AdminAPIKeys) == 0 && len(cfg.PublicAPIKeys) == 0:
		warn("no API keys configured; every route is open (dev mode).")
	case len(cfg.AdminAPIKeys) == 0:
		fail("ADMIN_API_KEYS is empty (ingest and trigger_report will 401).")
	case len(cfg.PublicAPIKeys) == 0:
		warn("PUBLIC_API_KEYS is empty; only admin keys can read reports.")
	default:
		ok(fmt.Sprintf("API keys: %d public, %d admin", len(cfg.PublicAPIKeys), len(cfg.AdminAPIKeys)))
	}

	ok("ADDR=" + cfg.Addr)

	if cfg.DatabaseURL == "" {
		warn("DATABASE_URL empty; API will use the in-memory store and lose data on restart.")
	} else if _, err := pgx.ParseConfig(cfg.DatabaseURL); err != nil {
		fail("DATABASE_URL is not a valid connection string: " + err.Error())
	} else {
		ok("DATABASE_URL present")
	}

	if len(cfg.AllowedOrigins) == 0 {
		warn("ALLOWED_ORIGINS empty; CORS allows every origin.")
	} else {
		ok(fmt.Sprintf("ALLOWED_ORIGINS=%v", cfg.AllowedOrigins))
	}

	if _, err := time.LoadLocation(cfg.DefaultTimezone); err != nil {
		fail("DEFAULT_TIMEZONE " + cfg.DefaultTimezone + " is not a known IANA zone.")
	} else {
		ok("DEFAULT_TIMEZONE=" + cfg.DefaultTimezone)
	}

	if cfg.DataDir != "" {
		missing := 0
		for _, name := range []string{ingest.StatusFile, ingest.HoursFile, ingest.TimezonesFile} {
			if _, err := os.Stat(filepath.Join(cfg.DataDir, name)); err != nil {
				missing++
				warn("DATA_DIR has no " + name + " (ingest without a path will 404).")
			}
		}
		if st, err := os.Stat(cfg.DataDir); err != nil || !st.IsDir() {
			fail("DATA_DIR " + cfg.DataDir + " is not a directory.")
		} else if missing == 0 {
			ok("DATA_DIR=" + cfg.DataDir)
		}
	}

	if _, err := logging.NewLogger(logging.Options{Dir: cfg.LogDir, Level: cfg.LogLevel}); err != nil {
		fail("logging: " + err.Error())
	} else {
		ok("LOG_DIR=" + cfg.LogDir)
	}

	if cfg.SlackWebhookURL == "" && cfg.AlertPollInterval > 0 {
		warn("SLACK_WEBHOOK_URL empty; alerts go to the log only.")
	}
	return fs
}
