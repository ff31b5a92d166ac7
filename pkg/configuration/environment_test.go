package configuration

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadEnv_FallsBackToGoModRoot(t *testing.T) {
	tmp := t.TempDir()

	requireWriteFile(t, filepath.Join(tmp, "go.mod"), "module example.com/test\n\ngo 1.22\n")
	requireWriteFile(t, filepath.Join(tmp, ".env.local"), "BOTHUB_TEST_ENV_LOAD=ok\n")

	sub := filepath.Join(tmp, "modules", "bot")
	requireMkdirAll(t, sub)

	origWd, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	t.Cleanup(func() { _ = os.Chdir(origWd) })
	if err := os.Chdir(sub); err != nil {
		t.Fatalf("chdir: %v", err)
	}

	_ = os.Unsetenv("BOTHUB_TEST_ENV_LOAD")

	n, err := LoadEnv([]string{".env", ".env.local"})
	if err != nil {
		t.Fatalf("LoadEnv: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 env file loaded, got %d", n)
	}
	if got := os.Getenv("BOTHUB_TEST_ENV_LOAD"); got != "ok" {
		t.Fatalf("expected env var loaded from repo root, got %q", got)
	}
}

func TestConfiguration_Validate(t *testing.T) {
	t.Parallel()

	valid := func() *Configuration {
		return &Configuration{
			Database:   DatabaseOptions{Driver: "postgres"},
			RateLimit:  RateLimitOptions{GlobalRPS: 10, Storage: "memory"},
			Generation: GenerationOptions{Timeout: time.Second},
		}
	}

	if err := valid().validate(); err != nil {
		t.Fatalf("expected valid configuration, got %v", err)
	}

	cases := map[string]func(c *Configuration){
		"unknown driver":       func(c *Configuration) { c.Database.Driver = "mysql" },
		"negative rps":         func(c *Configuration) { c.RateLimit.GlobalRPS = -1 },
		"redis without url":    func(c *Configuration) { c.RateLimit.Storage = "redis" },
		"non-positive timeout": func(c *Configuration) { c.Generation.Timeout = 0 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			c := valid()
			mutate(c)
			if err := c.validate(); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
}

func TestConfiguration_Origins(t *testing.T) {
	t.Parallel()

	c := &Configuration{AllowedOrigins: "http://a.test, http://b.test"}
	got := c.Origins()
	if len(got) != 2 || got[0] != "http://a.test" || got[1] != "http://b.test" {
		t.Fatalf("unexpected origins: %v", got)
	}
}

func requireWriteFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func requireMkdirAll(t *testing.T, path string) {
	t.Helper()
	if err := os.MkdirAll(path, 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", path, err)
	}
}
