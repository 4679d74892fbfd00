package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"keyrelay/internal/domain"
	"keyrelay/internal/llm"
)

// DefaultPath is the config file used when KEYRELAY_CONFIG is unset.
const DefaultPath = "keyrelay.json"

// marshalIndent, writeFile and readFile back WriteDefault, Save and Load; tests may replace them to force errors.
var (
	marshalIndent = json.MarshalIndent
	writeFile     = os.WriteFile
	readFile      = os.ReadFile
)

// Path returns the config path from getenv("KEYRELAY_CONFIG"), or DefaultPath.
func Path(getenv func(string) string) string {
	if getenv != nil {
		if p := strings.TrimSpace(getenv("KEYRELAY_CONFIG")); p != "" {
			return p
		}
	}
	return DefaultPath
}

// Default returns the configuration used for any field a config file leaves out.
func Default() *domain.Config {
	return &domain.Config{
		Pool: domain.PoolConfig{
			Provider:       "openai",
			SecretName:     llm.DefaultSecretName,
			BaseURL:        llm.DefaultBaseURL,
			Model:          llm.DefaultModel,
			TimeoutSeconds: 60,
		},
		Gateway: domain.GatewayConfig{Port: 8080},
		Retry: domain.RetryConfig{
			MaxRetries:     3,
			InitialBackoff: 500,
			MaxBackoff:     30000,
			Multiplier:     2,
		},
		Ledger:         domain.LedgerConfig{Driver: "memory", MaxLen: 1000},
		Infra:          domain.InfraConfig{LogFormat: "text", LogLevel: "info"},
		StatusSchedule: "@every 5m",
	}
}

// WriteDefault writes Default() to path, as YAML when path ends in .yaml or .yml.
// Parent directories are not created.
func WriteDefault(path string) error {
	data, err := encode(path, Default())
	if err != nil {
		return err
	}
	return writeFile(path, data, 0644)
}

// Load reads path, validates it against the config schema and overlays it on
// Default(). Fields absent from the file keep their default values.
func Load(path string) (*domain.Config, error) {
	data, err := readFile(path)
	if err != nil {
		return nil, fmt.Errorf("config load: %w", err)
	}
	if isYAML(path) {
		if data, err = yamlToJSON(data); err != nil {
			return nil, fmt.Errorf("config parse: %w", err)
		}
	}
	if err := Validate(data); err != nil {
		return nil, err
	}
	c := Default()
	if err := json.Unmarshal(data, c); err != nil {
		return nil, fmt.Errorf("config parse: %w", err)
	}
	normalize(c)
	return c, nil
}

// Save writes cfg to path, creating the parent directory if needed.
func Save(path string, cfg *domain.Config) error {
	if cfg == nil {
		return fmt.Errorf("config save: nil config")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("config save mkdir: %w", err)
	}
	data, err := encode(path, cfg)
	if err != nil {
		return fmt.Errorf("config save marshal: %w", err)
	}
	if err := writeFile(path, data, 0644); err != nil {
		return fmt.Errorf("config save write: %w", err)
	}
	return nil
}

func isYAML(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}

// encode renders cfg for path. YAML goes through the JSON form so both
// formats share the json tag names.
func encode(path string, cfg *domain.Config) ([]byte, error) {
	data, err := marshalIndent(cfg, "", "  ")
	if err != nil {
		return nil, err
	}
	if !isYAML(path) {
		return data, nil
	}
	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	return yaml.Marshal(doc)
}

func yamlToJSON(data []byte) ([]byte, error) {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	if doc == nil {
		doc = map[string]any{}
	}
	return json.Marshal(doc)
}

func normalize(c *domain.Config) {
	c.Pool.BaseURL = strings.TrimRight(strings.TrimSpace(c.Pool.BaseURL), "/")
	c.Pool.Model = strings.TrimSpace(c.Pool.Model)
}

// ReadDocument returns the raw config document at path as a generic map, for
// dotted-path edits. YAML files are converted to their JSON form.
func ReadDocument(path string) (map[string]any, error) {
	data, err := readFile(path)
	if err != nil {
		return nil, fmt.Errorf("config load: %w", err)
	}
	if isYAML(path) {
		if data, err = yamlToJSON(data); err != nil {
			return nil, fmt.Errorf("config parse: %w", err)
		}
	}
	doc := map[string]any{}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("config parse: %w", err)
	}
	return doc, nil
}

// WriteDocument validates doc against the schema and writes it to path in the
// format implied by the extension. Nothing is written when validation fails.
func WriteDocument(path string, doc map[string]any) error {
	data, err := marshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("config save marshal: %w", err)
	}
	if err := Validate(data); err != nil {
		return err
	}
	if isYAML(path) {
		if data, err = yaml.Marshal(doc); err != nil {
			return fmt.Errorf("config save marshal: %w", err)
		}
	}
	if err := writeFile(path, data, 0644); err != nil {
		return fmt.Errorf("config save write: %w", err)
	}
	return nil
}
