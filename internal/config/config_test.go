package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")

	yaml := `
oracle:
  ws_url: "wss://oracle.example/ws"
  api_url: "https://oracle.example"
  token: "secret"
channel:
  handshake_timeout: 2s
  reconnect_delay: 1s
poll:
  interval: 500ms
  max_duration: 1m
`
	if err := os.WriteFile(cfgPath, []byte(yaml), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(cfgPath)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Oracle.WSURL != "wss://oracle.example/ws" {
		t.Errorf("Oracle.WSURL = %q, want %q", cfg.Oracle.WSURL, "wss://oracle.example/ws")
	}
	if cfg.Oracle.Token != "secret" {
		t.Errorf("Oracle.Token = %q, want %q", cfg.Oracle.Token, "secret")
	}
	if cfg.Channel.HandshakeTimeout != 2*time.Second {
		t.Errorf("Channel.HandshakeTimeout = %v, want 2s", cfg.Channel.HandshakeTimeout)
	}
	if cfg.Poll.Interval != 500*time.Millisecond {
		t.Errorf("Poll.Interval = %v, want 500ms", cfg.Poll.Interval)
	}
	if cfg.Poll.MaxDuration != time.Minute {
		t.Errorf("Poll.MaxDuration = %v, want 1m", cfg.Poll.MaxDuration)
	}

	// Defaults should still be applied for unspecified fields.
	if cfg.Channel.PingInterval == 0 {
		t.Error("Channel.PingInterval should have default, got 0")
	}
	if cfg.Result.RetryDelay == 0 {
		t.Error("Result.RetryDelay should have default, got 0")
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Fatal("Load() on missing file should return error")
	}
}

func TestLoadOrDefaultMissingFile(t *testing.T) {
	cfg, err := LoadOrDefault("/nonexistent/path/config.yaml")
	if err != nil {
		t.Fatalf("LoadOrDefault() error: %v", err)
	}

	if cfg.Channel.ReconnectDelay != 3*time.Second {
		t.Errorf("Channel.ReconnectDelay = %v, want default 3s", cfg.Channel.ReconnectDelay)
	}
	if cfg.Poll.MaxDuration != 5*time.Minute {
		t.Errorf("Poll.MaxDuration = %v, want default 5m", cfg.Poll.MaxDuration)
	}
}

func TestLoadInvalidYAML(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "bad.yaml")
	if err := os.WriteFile(cfgPath, []byte(":::not valid yaml"), 0644); err != nil {
		t.Fatal(err)
	}

	_, err := Load(cfgPath)
	if err == nil {
		t.Fatal("Load() with invalid YAML should return error")
	}
}
