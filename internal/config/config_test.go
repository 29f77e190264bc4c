package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Addr != ":8080" {
		t.Errorf("addr = %q, want :8080", cfg.Server.Addr)
	}
	if cfg.Terminal.Shell != "/bin/bash" {
		t.Errorf("shell = %q, want /bin/bash", cfg.Terminal.Shell)
	}
	if cfg.Terminal.CommandTimeout != 30*time.Second {
		t.Errorf("command timeout = %v, want 30s", cfg.Terminal.CommandTimeout)
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "workroom.yaml")
	content := `
server:
  addr: ":9000"
database:
  path: /tmp/wr.db
terminal:
  shell: /bin/sh
  command_timeout: 5s
channel:
  inbound_bytes_per_sec: 65536
logging:
  level: debug
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Addr != ":9000" {
		t.Errorf("addr = %q, want :9000", cfg.Server.Addr)
	}
	if cfg.Database.Path != "/tmp/wr.db" {
		t.Errorf("db path = %q", cfg.Database.Path)
	}
	if cfg.Terminal.Shell != "/bin/sh" || cfg.Terminal.CommandTimeout != 5*time.Second {
		t.Errorf("terminal = %+v", cfg.Terminal)
	}
	if cfg.Channel.InboundBytesPerSec != 65536 {
		t.Errorf("inbound rate = %d, want 65536", cfg.Channel.InboundBytesPerSec)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("log level = %q, want debug", cfg.Logging.Level)
	}
}

func TestMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Addr != ":8080" {
		t.Errorf("addr = %q, want default", cfg.Server.Addr)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("WORKROOM_ADDR", ":7777")
	t.Setenv("WORKROOM_DB", "/tmp/env.db")
	t.Setenv("WORKROOM_LOG_LEVEL", "warn")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Addr != ":7777" {
		t.Errorf("addr = %q, want :7777", cfg.Server.Addr)
	}
	if cfg.Database.Path != "/tmp/env.db" {
		t.Errorf("db = %q, want /tmp/env.db", cfg.Database.Path)
	}
	if cfg.Logging.Level != "warn" {
		t.Errorf("level = %q, want warn", cfg.Logging.Level)
	}
}
