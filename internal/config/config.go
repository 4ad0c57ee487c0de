// Package config manages persistent node preferences for nearbyd.
// Settings are stored as JSON at os.UserConfigDir()/nearbyd/config.json.
package config

import (
	"encoding/json"
	"os"
	"path/filepath"
)

// Config holds all persistent node preferences: which service id to
// advertise/discover under, the connection strategy and medium set, and
// the keep-alive tunables handed to every accepted connection by
// default.
type Config struct {
	ServiceID            string   `json:"service_id"`
	EndpointName         string   `json:"endpoint_name"`
	Strategy             string   `json:"strategy"` // P2P_CLUSTER, P2P_STAR, or P2P_POINT_TO_POINT
	AllowedMediums       []string `json:"allowed_mediums"`
	AutoUpgradeBandwidth bool     `json:"auto_upgrade_bandwidth"`
	LowPower             bool     `json:"low_power"`
	KeepAliveIntervalMS  int      `json:"keep_alive_interval_ms"`
	KeepAliveTimeoutMS   int      `json:"keep_alive_timeout_ms"`
	KnownEndpointsDBPath string   `json:"known_endpoints_db_path"`
}

// Default returns a Config populated with sensible defaults.
func Default() Config {
	return Config{
		ServiceID:            "nearby.default",
		Strategy:             "P2P_CLUSTER",
		AllowedMediums:       []string{"BLE", "BLUETOOTH", "WEB_RTC", "WIFI_LAN"},
		AutoUpgradeBandwidth: true,
		KeepAliveIntervalMS:  5000,
		KeepAliveTimeoutMS:   30000,
		KnownEndpointsDBPath: "",
	}
}

// Path returns the absolute path to the config file.
func Path() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "nearbyd", "config.json"), nil
}

// Load reads the config file and returns it. If the file is missing or
// unreadable, the default config is returned — never an error.
func Load() Config {
	path, err := Path()
	if err != nil {
		return Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Default()
	}
	cfg := Default()
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Default()
	}
	return cfg
}

// Save writes cfg to disk, creating the directory if needed.
func Save(cfg Config) error {
	path, err := Path()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return err
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}
