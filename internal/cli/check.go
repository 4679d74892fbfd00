package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"keyrelay/internal/llm"
	"keyrelay/internal/scheduler"
)

// CheckOptions holds options for the check command.
type CheckOptions struct {
	ConfigSource
	Fix bool // if true, write default config when missing
}

// ledgerProbeTimeout bounds the connection check for remote ledgers.
var ledgerProbeTimeout = 5 * time.Second

// RunCheck validates the config, the key pool and the ledger, optionally
// writing a default config. Returns exit code.
func RunCheck(opts CheckOptions, stdout, stderr io.Writer) int {
	note := func(section, message string) {
		fmt.Fprintf(stdout, "  [%s] %s\n", section, message)
	}
	failed := false
	cfgPath := opts.ConfigPath()

	// 1. Config
	cfg, found, err := opts.Load()
	if err != nil {
		note("Config", err.Error())
		return 1
	}
	if found {
		note("Config", fmt.Sprintf("Loaded %s.", cfgPath))
	} else {
		note("Config", fmt.Sprintf("No config at %s, using defaults.", cfgPath))
		if opts.Fix {
			if writeErr := configWriteDefault(cfgPath); writeErr != nil {
				fmt.Fprintf(stderr, "  failed to write default config: %v\n", writeErr)
				return 1
			}
			note("Config", fmt.Sprintf("Wrote default config to %s.", cfgPath))
		} else {
			note("Config", "Run with --fix to create a default keyrelay.json.")
		}
	}

	// 2. Keys
	keys, err := llm.ResolveKeys(&cfg.Pool, secretLookup(stdout))
	if err != nil {
		note("Keys", err.Error())
		failed = true
	} else {
		masked := make([]string, len(keys))
		for i, k := range keys {
			masked[i] = llm.MaskKey(k)
		}
		note("Keys", fmt.Sprintf("%d key(s): %s", len(keys), strings.Join(masked, ", ")))
		if len(keys) == 1 {
			note("Keys", "Only one key configured: a single auth failure will exhaust the pool.")
		}
	}
	if _, err := llm.NewClientFactory(&cfg.Pool); err != nil {
		note("Provider", err.Error())
		failed = true
	} else {
		note("Provider", fmt.Sprintf("provider=%s model=%s base=%s", providerName(cfg.Pool.Provider), cfg.Pool.Model, cfg.Pool.BaseURL))
	}

	// 3. Gateway
	note("Gateway", fmt.Sprintf("port=%d auth=%s rateLimit=%s", cfg.Gateway.Port, authMode(cfg.Gateway.Auth.AuthToken), rateLimitDesc(cfg.Gateway.RateLimit.RPS, cfg.Gateway.RateLimit.Burst)))
	if cfg.Gateway.Auth.AuthToken == "" {
		note("Gateway", "Auth is disabled. Set gateway.auth.authToken or KEYRELAY_AUTH_TOKEN before exposing the gateway.")
	}

	// 4. Ledger
	switch cfg.Ledger.Driver {
	case "", "memory":
		note("Ledger", "memory (events are lost on restart)")
	default:
		ctx, cancel := context.WithTimeout(context.Background(), ledgerProbeTimeout)
		l, err := openLedger(ctx, cfg.Ledger)
		cancel()
		if err != nil {
			note("Ledger", err.Error())
			failed = true
		} else {
			_ = l.Close()
			note("Ledger", fmt.Sprintf("%s reachable.", cfg.Ledger.Driver))
		}
	}

	// 5. Status reports
	if spec := cfg.StatusSchedule; spec == "" {
		note("Schedule", "Status reports disabled.")
	} else if err := scheduler.ParseSpec(spec); err != nil {
		note("Schedule", fmt.Sprintf("statusSchedule %q: %v", spec, err))
		failed = true
	} else {
		note("Schedule", fmt.Sprintf("Status reports %s.", spec))
	}

	if failed {
		fmt.Fprintln(stdout, "  Check failed.")
		return 1
	}
	fmt.Fprintln(stdout, "  Check complete.")
	return 0
}

func providerName(p string) string {
	if p == "" {
		return "openai"
	}
	return p
}

func authMode(token string) string {
	if token == "" {
		return "none"
	}
	return "token"
}

func rateLimitDesc(rps float64, burst int) string {
	if rps <= 0 {
		return "off"
	}
	return fmt.Sprintf("%grps/burst %d", rps, burst)
}

// isMissing reports whether err means the config file does not exist.
func isMissing(err error) bool {
	return errors.Is(err, os.ErrNotExist)
}
