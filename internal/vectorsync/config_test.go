package vectorsync

import (
	"errors"
	"testing"
)

func TestApplyDefaultsFillsLayout(t *testing.T) {
	var cfg Config
	cfg.ApplyDefaults()
	if cfg.CombinedIndexPath != DefaultCombinedIndexPath || cfg.PolicyDir != DefaultPolicyDir {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.MaxRetries != DefaultMaxRetries || cfg.RetryBaseDelay != DefaultBaseDelay {
		t.Fatalf("unexpected retry defaults: %+v", cfg)
	}

	cfg = Config{PolicyDir: "custom", MaxRetries: 7}
	cfg.ApplyDefaults()
	if cfg.PolicyDir != "custom" || cfg.MaxRetries != 7 {
		t.Fatalf("expected explicit values preserved, got %+v", cfg)
	}
}

func TestValidateRequiresStoreIDOutsideDryRun(t *testing.T) {
	cfg := Config{}
	if err := cfg.Validate(); !errors.Is(err, ErrMissingConfig) {
		t.Fatalf("expected missing config error, got %v", err)
	}
	cfg.DryRun = true
	if err := cfg.Validate(); err != nil {
		t.Fatalf("dry run must not require store id, got %v", err)
	}
	cfg = Config{VectorStoreID: "vs_1"}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected valid config, got %v", err)
	}
}

func TestResolveVectorStoreIDPrecedence(t *testing.T) {
	env := map[string]string{
		"TEST_VECTOR_STORE_ID": "vs_test",
		"VECTOR_STORE_ID":      "vs_prod",
	}
	getenv := func(name string) string { return env[name] }

	id, source := ResolveVectorStoreID("vs_explicit", getenv)
	if id != "vs_explicit" || source != "arg" {
		t.Fatalf("expected explicit id to win, got %s/%s", id, source)
	}
	id, source = ResolveVectorStoreID("", getenv)
	if id != "vs_test" || source != "test-env" {
		t.Fatalf("expected test env to beat prod env, got %s/%s", id, source)
	}
	delete(env, "TEST_VECTOR_STORE_ID")
	id, source = ResolveVectorStoreID("", getenv)
	if id != "vs_prod" || source != "prod-env" {
		t.Fatalf("expected prod env fallback, got %s/%s", id, source)
	}
	id, source = ResolveVectorStoreID("", func(string) string { return "" })
	if id != "" || source != "" {
		t.Fatalf("expected empty resolution, got %s/%s", id, source)
	}
}

func TestResolveAPIKeyPrefersViteName(t *testing.T) {
	env := map[string]string{
		"VITE_OPENAI_API_KEY": "sk-vite",
		"OPENAI_API_KEY":      "sk-plain",
	}
	getenv := func(name string) string { return env[name] }
	if got := ResolveAPIKey(getenv); got != "sk-vite" {
		t.Fatalf("expected VITE key preferred, got %s", got)
	}
	delete(env, "VITE_OPENAI_API_KEY")
	if got := ResolveAPIKey(getenv); got != "sk-plain" {
		t.Fatalf("expected fallback key, got %s", got)
	}
}
