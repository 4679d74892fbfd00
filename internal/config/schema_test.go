package config

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestSchema_ShouldDescribeConfigProperties(t *testing.T) {
	s := Schema()
	var doc map[string]any
	if err := json.Unmarshal([]byte(s), &doc); err != nil {
		t.Fatalf("schema is not JSON: %v", err)
	}
	props, ok := doc["properties"].(map[string]any)
	if !ok {
		t.Fatalf("schema has no properties: %s", s)
	}
	for _, name := range []string{"pool", "gateway", "retry", "ledger", "infra"} {
		if _, ok := props[name]; !ok {
			t.Errorf("schema missing property %q", name)
		}
	}
	if !strings.Contains(s, `"openai"`) || !strings.Contains(s, `"local"`) {
		t.Error("expected provider enum in schema")
	}
}

func TestValidate_WhenDocumentIsEmptyObject_ShouldPass(t *testing.T) {
	if err := Validate([]byte(`{}`)); err != nil {
		t.Errorf("expected empty document to validate, got %v", err)
	}
}

func TestValidate_WhenDocumentIsNotJSON_ShouldReturnParseError(t *testing.T) {
	err := Validate([]byte(`not json`))
	if err == nil || !strings.Contains(err.Error(), "config parse") {
		t.Errorf("expected parse error, got %v", err)
	}
}

func TestValidate_WhenNegativeRetry_ShouldFail(t *testing.T) {
	if err := Validate([]byte(`{"retry": {"maxRetries": -1}}`)); err == nil {
		t.Error("expected negative maxRetries to fail validation")
	}
}
