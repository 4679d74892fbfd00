package config

import "testing"

func envMap(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func TestApplyEnv_WhenVarsSet_ShouldOverrideConfig(t *testing.T) {
	cfg := Default()
	cfg.Pool.APIKeys = "from-file"
	ApplyEnv(cfg, envMap(map[string]string{
		EnvAPIKeys:   "sk-1, sk-2",
		EnvBaseURL:   "https://proxy.example/v1//",
		EnvModel:     "gpt-4o-mini",
		EnvAuthToken: "secret-token",
	}))
	if cfg.Pool.APIKeys != "sk-1, sk-2" {
		t.Errorf("apiKeys = %q", cfg.Pool.APIKeys)
	}
	if cfg.Pool.BaseURL != "https://proxy.example/v1" {
		t.Errorf("baseUrl = %q, want trailing slashes stripped", cfg.Pool.BaseURL)
	}
	if cfg.Pool.Model != "gpt-4o-mini" {
		t.Errorf("model = %q", cfg.Pool.Model)
	}
	if cfg.Gateway.Auth.AuthToken != "secret-token" {
		t.Errorf("authToken = %q", cfg.Gateway.Auth.AuthToken)
	}
}

func TestApplyEnv_WhenVarsEmpty_ShouldKeepFileValues(t *testing.T) {
	cfg := Default()
	cfg.Pool.APIKeys = "from-file"
	ApplyEnv(cfg, envMap(map[string]string{EnvAPIKeys: "   "}))
	if cfg.Pool.APIKeys != "from-file" {
		t.Errorf("apiKeys = %q, want from-file", cfg.Pool.APIKeys)
	}
	if cfg.Pool.BaseURL != Default().Pool.BaseURL {
		t.Errorf("baseUrl changed to %q", cfg.Pool.BaseURL)
	}
}

func TestApplyEnv_WhenNilArgs_ShouldNotPanic(t *testing.T) {
	ApplyEnv(nil, envMap(nil))
	ApplyEnv(Default(), nil)
}
