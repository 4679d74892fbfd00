package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"keyrelay/internal/domain"
	"keyrelay/internal/llm"
	"keyrelay/internal/relay"
)

// StatusOptions holds options for the status command.
type StatusOptions struct {
	ConfigSource
	Addr  string // gateway base URL; empty: http://127.0.0.1:<gateway.port>
	Local bool   // skip the gateway and describe the configured keys
	JSON  bool
}

// RunStatus prints the pool status with masked keys. It asks the running
// gateway first, so quarantined keys show up, and falls back to the configured
// keys when no gateway answers. Exit code is 1 on error or when no key is usable.
func RunStatus(ctx context.Context, opts StatusOptions, stdout, stderr io.Writer) int {
	cfg, _, err := opts.Load()
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	var st llm.PoolStatus
	source := "local"
	if !opts.Local {
		addr := opts.Addr
		if addr == "" {
			addr = fmt.Sprintf("http://127.0.0.1:%d", cfg.Gateway.Port)
		}
		st, err = fetchStatus(ctx, addr, cfg.Gateway.Auth.AuthToken)
		if err == nil {
			source = addr
		} else {
			fmt.Fprintf(stderr, "  gateway not reachable (%v); showing configured keys\n", err)
		}
	}
	if source == "local" {
		r, err := buildRelay(cfg, secretLookup(stderr), relay.Options{Logger: NewLogger(domain.InfraConfig{LogLevel: "error"}, stderr)})
		if err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return 1
		}
		st = r.Pool.Status()
		_ = r.Close()
	}

	if opts.JSON {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(st)
	} else {
		printStatus(stdout, st, source)
	}
	if st.Health == domain.HealthUnavailable {
		return 1
	}
	return 0
}

func fetchStatus(ctx context.Context, addr, token string) (llm.PoolStatus, error) {
	var st llm.PoolStatus
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(addr, "/")+"/v1/status", nil)
	if err != nil {
		return st, err
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := statusClient.Do(req)
	if err != nil {
		return st, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return st, fmt.Errorf("gateway status: %s", resp.Status)
	}
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		return st, fmt.Errorf("gateway status decode: %w", err)
	}
	return st, nil
}

func printStatus(w io.Writer, st llm.PoolStatus, source string) {
	fmt.Fprintf(w, "pool: %s (%d/%d keys available, source %s)\n", st.Health, st.Available, st.Total, source)
	for _, k := range st.Keys {
		state := "ok"
		if k.Bad {
			state = "quarantined"
		}
		fmt.Fprintf(w, "  [%d] %s  %s\n", k.Index, k.Masked, state)
	}
}
