package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"nearby/internal/config"
)

func TestDefault(t *testing.T) {
	cfg := config.Default()
	if cfg.ServiceID == "" {
		t.Error("expected a non-empty default service id")
	}
	if cfg.Strategy != "P2P_CLUSTER" {
		t.Errorf("expected default strategy P2P_CLUSTER, got %q", cfg.Strategy)
	}
	if len(cfg.AllowedMediums) == 0 {
		t.Error("expected at least one allowed medium by default")
	}
	if !cfg.AutoUpgradeBandwidth {
		t.Error("expected bandwidth auto-upgrade enabled by default")
	}
	if cfg.KeepAliveIntervalMS <= 0 || cfg.KeepAliveTimeoutMS <= cfg.KeepAliveIntervalMS {
		t.Errorf("expected a valid keep-alive interval < timeout, got %+v", cfg)
	}
}

func TestSaveAndLoad(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)

	cfg := config.Config{
		ServiceID:            "example.chat",
		EndpointName:         "desk",
		Strategy:             "P2P_STAR",
		AllowedMediums:       []string{"WIFI_LAN"},
		AutoUpgradeBandwidth: false,
		LowPower:             true,
		KeepAliveIntervalMS:  1000,
		KeepAliveTimeoutMS:   5000,
		KnownEndpointsDBPath: "/tmp/endpoints.db",
	}

	if err := config.Save(cfg); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded := config.Load()
	if loaded.ServiceID != cfg.ServiceID {
		t.Errorf("service id: want %q got %q", cfg.ServiceID, loaded.ServiceID)
	}
	if loaded.Strategy != cfg.Strategy {
		t.Errorf("strategy: want %q got %q", cfg.Strategy, loaded.Strategy)
	}
	if len(loaded.AllowedMediums) != 1 || loaded.AllowedMediums[0] != "WIFI_LAN" {
		t.Errorf("allowed mediums: unexpected value %+v", loaded.AllowedMediums)
	}
	if loaded.AutoUpgradeBandwidth {
		t.Error("expected bandwidth auto-upgrade disabled after load")
	}
	if loaded.KnownEndpointsDBPath != cfg.KnownEndpointsDBPath {
		t.Errorf("db path: want %q got %q", cfg.KnownEndpointsDBPath, loaded.KnownEndpointsDBPath)
	}
}

func TestLoadMissingFile(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	cfg := config.Load()
	if cfg.ServiceID == "" {
		t.Error("expected non-empty service id from defaults")
	}
}

func TestLoadCorruptFile(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)

	path := filepath.Join(dir, "nearbyd", "config.json")
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("not json {{{"), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg := config.Load()
	if cfg.Strategy != "P2P_CLUSTER" {
		t.Errorf("expected default strategy on corrupt file, got %q", cfg.Strategy)
	}
}

func TestSaveCreatesDirectory(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)

	if err := config.Save(config.Default()); err != nil {
		t.Fatalf("Save: %v", err)
	}

	path := filepath.Join(dir, "nearbyd", "config.json")
	if _, err := os.Stat(path); err != nil {
		t.Errorf("config file not created: %v", err)
	}
}
