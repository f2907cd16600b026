package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad_ValidConfig(t *testing.T) {
	// Create a temporary config file
	content := `
lab:
  id: "test-lab"
database:
  path: "/tmp/test.db"
  wal_mode: true
  busy_timeout: 5
mqtt:
  broker:
    host: "localhost"
    port: 1883
    client_id: "test-client"
  qos: 1
gantry:
  address: "192.168.7.2:23"
  command_timeout: 10
`
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Lab.ID != "test-lab" {
		t.Errorf("Lab.ID = %q, want %q", cfg.Lab.ID, "test-lab")
	}

	if cfg.Database.Path != "/tmp/test.db" {
		t.Errorf("Database.Path = %q, want %q", cfg.Database.Path, "/tmp/test.db")
	}

	if cfg.MQTT.Broker.Host != "localhost" {
		t.Errorf("MQTT.Broker.Host = %q, want %q", cfg.MQTT.Broker.Host, "localhost")
	}

	if cfg.Gantry.Address != "192.168.7.2:23" {
		t.Errorf("Gantry.Address = %q, want %q", cfg.Gantry.Address, "192.168.7.2:23")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Error("Load() expected error for missing file, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte("invalid: [yaml: content"), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	_, err := Load(configPath)
	if err == nil {
		t.Error("Load() expected error for invalid YAML, got nil")
	}
}

func TestLoad_ValidationFailure(t *testing.T) {
	content := `
lab:
  id: ""
database:
  path: "/tmp/test.db"
`
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	_, err := Load(configPath)
	if err == nil {
		t.Error("Load() expected validation error for empty lab.id, got nil")
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		config  *Config
		wantErr bool
	}{
		{
			name: "valid config",
			config: &Config{
				Lab:      LabConfig{ID: "lab-001"},
				Database: DatabaseConfig{Path: "/data/labmill.db"},
				MQTT:     MQTTConfig{QoS: 1},
				Gantry:   GantryConfig{Address: "localhost:23", CommandTimeout: 10},
			},
			wantErr: false,
		},
		{
			name: "missing lab ID",
			config: &Config{
				Lab:      LabConfig{ID: ""},
				Database: DatabaseConfig{Path: "/data/labmill.db"},
				Gantry:   GantryConfig{Address: "localhost:23", CommandTimeout: 10},
			},
			wantErr: true,
		},
		{
			name: "missing database path",
			config: &Config{
				Lab:      LabConfig{ID: "lab-001"},
				Database: DatabaseConfig{Path: ""},
				Gantry:   GantryConfig{Address: "localhost:23", CommandTimeout: 10},
			},
			wantErr: true,
		},
		{
			name: "invalid QoS",
			config: &Config{
				Lab:      LabConfig{ID: "lab-001"},
				Database: DatabaseConfig{Path: "/data/labmill.db"},
				MQTT:     MQTTConfig{QoS: 3},
				Gantry:   GantryConfig{Address: "localhost:23", CommandTimeout: 10},
			},
			wantErr: true,
		},
		{
			name: "missing gantry address without simulate",
			config: &Config{
				Lab:      LabConfig{ID: "lab-001"},
				Database: DatabaseConfig{Path: "/data/labmill.db"},
				MQTT:     MQTTConfig{QoS: 1},
				Gantry:   GantryConfig{Address: "", CommandTimeout: 10},
			},
			wantErr: true,
		},
		{
			name: "missing gantry address with simulate",
			config: &Config{
				Lab:      LabConfig{ID: "lab-001"},
				Database: DatabaseConfig{Path: "/data/labmill.db"},
				MQTT:     MQTTConfig{QoS: 1},
				Gantry:   GantryConfig{Address: "", CommandTimeout: 10, Simulate: true},
			},
			wantErr: false,
		},
		{
			name: "zero command timeout",
			config: &Config{
				Lab:      LabConfig{ID: "lab-001"},
				Database: DatabaseConfig{Path: "/data/labmill.db"},
				MQTT:     MQTTConfig{QoS: 1},
				Gantry:   GantryConfig{Address: "localhost:23", CommandTimeout: 0},
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	cfg := defaultConfig()

	// Set environment variables
	t.Setenv("LABMILL_DATABASE_PATH", "/custom/path.db")
	t.Setenv("LABMILL_MQTT_HOST", "mqtt.example.com")
	t.Setenv("LABMILL_MQTT_USERNAME", "testuser")
	t.Setenv("LABMILL_MQTT_PASSWORD", "testpass")
	t.Setenv("LABMILL_INFLUXDB_TOKEN", "secret-token")
	t.Setenv("LABMILL_GANTRY_ADDRESS", "10.0.0.5:23")

	applyEnvOverrides(cfg)

	if cfg.Database.Path != "/custom/path.db" {
		t.Errorf("Database.Path = %q, want %q", cfg.Database.Path, "/custom/path.db")
	}

	if cfg.MQTT.Broker.Host != "mqtt.example.com" {
		t.Errorf("MQTT.Broker.Host = %q, want %q", cfg.MQTT.Broker.Host, "mqtt.example.com")
	}

	if cfg.MQTT.Auth.Username != "testuser" {
		t.Errorf("MQTT.Auth.Username = %q, want %q", cfg.MQTT.Auth.Username, "testuser")
	}

	if cfg.MQTT.Auth.Password != "testpass" {
		t.Errorf("MQTT.Auth.Password = %q, want %q", cfg.MQTT.Auth.Password, "testpass")
	}

	if cfg.InfluxDB.Token != "secret-token" {
		t.Errorf("InfluxDB.Token = %q, want %q", cfg.InfluxDB.Token, "secret-token")
	}

	if cfg.Gantry.Address != "10.0.0.5:23" {
		t.Errorf("Gantry.Address = %q, want %q", cfg.Gantry.Address, "10.0.0.5:23")
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := defaultConfig()

	if cfg.Lab.ID == "" {
		t.Error("defaultConfig should have non-empty Lab.ID")
	}

	if cfg.Database.Path == "" {
		t.Error("defaultConfig should have non-empty Database.Path")
	}

	if cfg.MQTT.Broker.Port != 1883 {
		t.Errorf("defaultConfig MQTT.Broker.Port = %d, want 1883", cfg.MQTT.Broker.Port)
	}

	if cfg.Gantry.CommandTimeout != 10 {
		t.Errorf("defaultConfig Gantry.CommandTimeout = %d, want 10", cfg.Gantry.CommandTimeout)
	}
}
