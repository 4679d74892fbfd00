package cli

import (
	"errors"
	"fmt"
	"io"
	"os"

	"keyrelay/internal/config"
	"keyrelay/internal/domain"
	"keyrelay/internal/llm"
	"keyrelay/internal/secrets"
)

// ConfigSource locates the config file and the environment overrides for one command.
type ConfigSource struct {
	Path   string              // empty: KEYRELAY_CONFIG, then config.DefaultPath
	Getenv func(string) string // nil: os.Getenv
}

func (s ConfigSource) getenv() func(string) string {
	if s.Getenv != nil {
		return s.Getenv
	}
	return os.Getenv
}

// Env returns the value of the environment variable name as the source sees it.
func (s ConfigSource) Env(name string) string {
	return s.getenv()(name)
}

// ConfigPath returns the file the source reads.
func (s ConfigSource) ConfigPath() string {
	if s.Path != "" {
		return s.Path
	}
	return config.Path(s.getenv())
}

// Load returns the effective config: the file overlaid on defaults, then the
// environment overrides. A missing file is not an error; found reports
// whether one was read.
func (s ConfigSource) Load() (cfg *domain.Config, found bool, err error) {
	cfg, err = configLoad(s.ConfigPath())
	switch {
	case err == nil:
		found = true
	case errors.Is(err, os.ErrNotExist):
		cfg = config.Default()
	default:
		return nil, false, err
	}
	config.ApplyEnv(cfg, s.getenv())
	return cfg, found, nil
}

// secretLookup opens the default secrets store. A store that cannot be opened
// is reported on w and treated as empty, so keys from the environment still work.
func secretLookup(w io.Writer) llm.SecretGetter {
	store, err := openSecrets()
	if err != nil {
		fmt.Fprintf(w, "  secrets store unavailable: %v\n", err)
		return nil
	}
	return secrets.Lookup(store)
}

// ApplyEnv applies the source's environment overrides to cfg, for configs
// loaded outside Load (e.g. by the config watcher).
func (s ConfigSource) ApplyEnv(cfg *domain.Config) {
	config.ApplyEnv(cfg, s.getenv())
}
