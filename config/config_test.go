package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Port != 8080 || cfg.Storage.Backend != BackendMemory || !cfg.Storage.Compress {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
	if cfg.BodyLimit != 10<<20 {
		t.Errorf("BodyLimit = %d", cfg.BodyLimit)
	}
	if cfg.Addr() != ":8080" {
		t.Errorf("Addr = %s", cfg.Addr())
	}
}

func TestLoadConfigFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	yaml := `
port: 9090
log:
  level: debug
storage:
  backend: badger
  path: /tmp/fragments
s3:
  bucket: from-file
`
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("FRAGMENTS_STORAGE_COMPRESS", "false")
	t.Setenv("FRAGMENTS_LOG_FORMAT", "text")

	cfg, err := LoadConfig(dir)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Port != 9090 || cfg.Log.Level != "debug" || cfg.Log.Format != "text" {
		t.Errorf("cfg = %+v", cfg)
	}
	if cfg.Storage.Backend != BackendBadger || cfg.Storage.Path != "/tmp/fragments" || cfg.Storage.Compress {
		t.Errorf("storage = %+v", cfg.Storage)
	}
	if cfg.S3.Bucket != "from-file" {
		t.Errorf("bucket = %q", cfg.S3.Bucket)
	}
}

func TestLoadConfigRejectsBadFile(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("port: [oops"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadConfig(dir); err == nil {
		t.Errorf("malformed yaml accepted")
	}
}

func TestValidate(t *testing.T) {
	base := func() AppConfig {
		return AppConfig{Port: 8080, BodyLimit: 1, Storage: StorageConf{Backend: BackendMemory}}
	}
	tests := []struct {
		name   string
		mutate func(*AppConfig)
		want   string
	}{
		{"ok", func(*AppConfig) {}, ""},
		{"unknown backend", func(c *AppConfig) { c.Storage.Backend = "floppy" }, "unknown storage.backend"},
		{"cloud without dsn", func(c *AppConfig) {
			c.Storage.Backend = BackendCloud
			c.S3 = S3{Endpoint: "localhost:9000", Bucket: "b"}
		}, "postgres.dsn"},
		{"cloud without bucket", func(c *AppConfig) {
			c.Storage.Backend = BackendCloud
			c.Postgres.DSN = "postgres://x"
		}, "s3.endpoint"},
		{"bad port", func(c *AppConfig) { c.Port = 0 }, "port"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := base()
			tt.mutate(&c)
			err := c.Validate()
			if tt.want == "" {
				if err != nil {
					t.Fatalf("Validate = %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Validate = %v, want mention of %q", err, tt.want)
			}
		})
	}
}
