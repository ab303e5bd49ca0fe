package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

type mockLoader struct {
	config map[string]any
	err    error
}

func (m *mockLoader) Load() (map[string]any, error) {
	return m.config, m.err
}

func writeTemp(t *testing.T, dir, pattern, content string) string {
	t.Helper()
	f, err := os.CreateTemp(dir, pattern)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.Remove(f.Name()) })
	if _, err := f.WriteString(content); err != nil {
		t.Fatal(err)
	}
	_ = f.Close()
	return f.Name()
}

func TestYamlConfigLoader_Load(t *testing.T) {
	path := writeTemp(t, t.TempDir(), "eventbus*.yaml", `
eventbus:
  driver: redis
  subscriber_app_name: billing
  connection_retry_count: 3
  strip_suffix: true
`)

	values, err := NewYamlConfigLoader("missing.yaml", path).Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	cfg := NewMapConfig(values)
	if cfg.GetString("eventbus.driver") != "redis" {
		t.Errorf("unexpected driver %q", cfg.GetString("eventbus.driver"))
	}
	if cfg.GetInt("eventbus.connection_retry_count") != 3 {
		t.Errorf("unexpected retry count %d", cfg.GetInt("eventbus.connection_retry_count"))
	}
	if !cfg.GetBool("eventbus.strip_suffix") {
		t.Error("expected strip_suffix")
	}
}

func TestYamlConfigLoader_Errors(t *testing.T) {
	if _, err := NewYamlConfigLoader("nonexistent.yaml").Load(); !errors.Is(err, ErrNoConfigSource) {
		t.Errorf("expected ErrNoConfigSource, got %v", err)
	}

	path := writeTemp(t, t.TempDir(), "broken*.yaml", "eventbus: [driver")
	if _, err := NewYamlConfigLoader(path).Load(); !errors.Is(err, ErrParseYAML) {
		t.Errorf("expected ErrParseYAML, got %v", err)
	}
}

func TestJSONConfigLoader_Load(t *testing.T) {
	path := writeTemp(t, ".", "eventbus*.json", `{"eventbus":{"driver":"sql","max_concurrent_dispatch":4}}`)

	values, err := NewJSONConfigLoader(filepath.Base(path)).Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	cfg := NewMapConfig(values)
	if cfg.GetString("eventbus.driver") != "sql" {
		t.Errorf("unexpected driver %q", cfg.GetString("eventbus.driver"))
	}
	if cfg.GetInt("eventbus.max_concurrent_dispatch") != 4 {
		t.Errorf("unexpected concurrency %d", cfg.GetInt("eventbus.max_concurrent_dispatch"))
	}
}

func TestJSONConfigLoader_Errors(t *testing.T) {
	outside := writeTemp(t, t.TempDir(), "outside*.json", `{"a":1}`)
	if _, err := NewJSONConfigLoader(outside).Load(); !errors.Is(err, ErrNoConfigSource) {
		t.Errorf("files outside the working directory must be ignored, got %v", err)
	}

	broken := writeTemp(t, ".", "broken*.json", `{"a":`)
	if _, err := NewJSONConfigLoader(filepath.Base(broken)).Load(); !errors.Is(err, ErrParseJSON) {
		t.Errorf("expected ErrParseJSON, got %v", err)
	}
}

func TestEnvConfigLoader_Load(t *testing.T) {
	t.Setenv("EBTEST_EVENTBUS__DRIVER", "redis")
	t.Setenv("EBTEST_EVENTBUS__CONNECTION_RETRY_COUNT", "9")
	t.Setenv("EBTEST_EVENTBUS__STRIP_PREFIX", "true")
	t.Setenv("OTHER_EVENTBUS__DRIVER", "sql")

	values, err := NewEnvConfigLoader("EBTEST_").Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	cfg := NewMapConfig(values)
	if cfg.GetString("eventbus.driver") != "redis" {
		t.Errorf("unexpected driver %q", cfg.GetString("eventbus.driver"))
	}
	if cfg.Get("eventbus.connection_retry_count") != 9 {
		t.Errorf("expected typed int, got %#v", cfg.Get("eventbus.connection_retry_count"))
	}
	if cfg.Get("eventbus.strip_prefix") != true {
		t.Errorf("expected typed bool, got %#v", cfg.Get("eventbus.strip_prefix"))
	}

	bare, _ := NewEnvConfigLoader("EBTEST").Load()
	if NewMapConfig(bare).GetString("eventbus.driver") != "redis" {
		t.Error("prefix without trailing underscore must match the same variables")
	}
}

func TestChainLoader_Load_MergesInOrder(t *testing.T) {
	base := &mockLoader{config: map[string]any{
		"eventbus": map[string]any{"driver": "memory", "subscriber_app_name": "orders"},
	}}
	override := &mockLoader{config: map[string]any{
		"eventbus": map[string]any{"driver": "redis"},
		"logger":   map[string]any{"level": "debug"},
	}}
	failing := &mockLoader{err: errors.New("unreadable")}

	values, err := NewChainLoader(base, failing, override).Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	cfg := NewMapConfig(values)
	if cfg.GetString("eventbus.driver") != "redis" {
		t.Errorf("later loader should win, got %q", cfg.GetString("eventbus.driver"))
	}
	if cfg.GetString("eventbus.subscriber_app_name") != "orders" {
		t.Error("nested maps should be merged, not replaced")
	}
	if cfg.GetString("logger.level") != "debug" {
		t.Error("expected logger section from override")
	}
}

func TestChainLoader_Load_AllFail(t *testing.T) {
	cause := errors.New("unreadable")
	_, err := NewChainLoader(&mockLoader{err: cause}, &mockLoader{config: map[string]any{}}).Load()

	if !errors.Is(err, ErrNoConfigSource) {
		t.Errorf("expected ErrNoConfigSource, got %v", err)
	}
	if !errors.Is(err, cause) {
		t.Errorf("expected last loader error as cause, got %v", err)
	}
}

func TestTemplatedLoader_Load(t *testing.T) {
	t.Setenv("EBTEST_REDIS_HOST", "cache.internal")

	inner := &mockLoader{config: map[string]any{
		"eventbus": map[string]any{
			"drivers": map[string]any{
				"redis": map[string]any{
					"address":  "{{.EBTEST_REDIS_HOST}}:6379",
					"password": `{{ default "secret" (env "EBTEST_UNSET_PASSWORD") }}`,
				},
			},
			"subscriber_app_name": `{{ upper "orders" }}`,
			"tags":                []any{"{{ lower \"A\" }}", 1},
		},
	}}

	values, err := NewTemplatedLoader(inner).Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	cfg := NewMapConfig(values)
	if got := cfg.GetString("eventbus.drivers.redis.address"); got != "cache.internal:6379" {
		t.Errorf("unexpected address %q", got)
	}
	if got := cfg.GetString("eventbus.drivers.redis.password"); got != "secret" {
		t.Errorf("unexpected password %q", got)
	}
	if got := cfg.GetString("eventbus.subscriber_app_name"); got != "ORDERS" {
		t.Errorf("unexpected app name %q", got)
	}
	if got := cfg.GetStringSlice("eventbus.tags"); len(got) != 2 || got[0] != "a" {
		t.Errorf("unexpected tags %v", got)
	}
}

func TestLoad(t *testing.T) {
	path := writeTemp(t, t.TempDir(), "eventbus*.yaml", "eventbus:\n  driver: memory\n  subscriber_app_name: shop\n")
	t.Setenv("EBLOAD_EVENTBUS__DRIVER", "redis")

	cfg, err := Load("EBLOAD_", path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.GetString("eventbus.driver") != "redis" {
		t.Errorf("environment should override file, got %q", cfg.GetString("eventbus.driver"))
	}
	if cfg.GetString("eventbus.subscriber_app_name") != "shop" {
		t.Errorf("unexpected app name %q", cfg.GetString("eventbus.subscriber_app_name"))
	}
}
