package ssh

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeTestKey(t *testing.T) string {
	t.Helper()
	// Validate only checks the key file exists; parsing happens at
	// connection time.
	keyPath := filepath.Join(t.TempDir(), "id_ed25519")
	if err := os.WriteFile(keyPath, []byte("test-key-material"), 0600); err != nil {
		t.Fatalf("Failed to write key: %v", err)
	}
	return keyPath
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig("bastion.internal", "deploy")

	if cfg.Host != "bastion.internal" {
		t.Errorf("Host = %q, want bastion.internal", cfg.Host)
	}
	if cfg.Port != 22 {
		t.Errorf("Port = %d, want 22", cfg.Port)
	}
	if cfg.AuthMethod != AuthMethodKey {
		t.Errorf("AuthMethod = %q, want key", cfg.AuthMethod)
	}
	if !cfg.StrictHostKeyChecking {
		t.Error("StrictHostKeyChecking should default to true")
	}
	if cfg.Address() != "bastion.internal:22" {
		t.Errorf("Address = %q", cfg.Address())
	}
}

func TestConfigValidate(t *testing.T) {
	keyPath := writeTestKey(t)

	valid := func() *Config {
		return &Config{
			Host:              "host.example.com",
			Port:              22,
			User:              "deploy",
			AuthMethod:        AuthMethodKey,
			PrivateKeyPath:    keyPath,
			ConnectionTimeout: 10 * time.Second,
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{
			name:   "valid key config",
			mutate: func(c *Config) {},
		},
		{
			name:    "missing host",
			mutate:  func(c *Config) { c.Host = "" },
			wantErr: true,
		},
		{
			name:    "invalid port",
			mutate:  func(c *Config) { c.Port = 70000 },
			wantErr: true,
		},
		{
			name:    "missing user",
			mutate:  func(c *Config) { c.User = "" },
			wantErr: true,
		},
		{
			name: "password auth without password",
			mutate: func(c *Config) {
				c.AuthMethod = AuthMethodPassword
				c.Password = ""
			},
			wantErr: true,
		},
		{
			name: "password auth with password",
			mutate: func(c *Config) {
				c.AuthMethod = AuthMethodPassword
				c.Password = "hunter2"
			},
		},
		{
			name:    "unsupported auth method",
			mutate:  func(c *Config) { c.AuthMethod = "agent" },
			wantErr: true,
		},
		{
			name:    "missing key file",
			mutate:  func(c *Config) { c.PrivateKeyPath = "/no/such/key" },
			wantErr: true,
		},
		{
			name:    "zero connection timeout",
			mutate:  func(c *Config) { c.ConnectionTimeout = 0 },
			wantErr: true,
		},
		{
			name:    "proxy without user",
			mutate:  func(c *Config) { c.ProxyHost = "jump.example.com"; c.ProxyPort = 22 },
			wantErr: true,
		},
		{
			name: "proxy with user",
			mutate: func(c *Config) {
				c.ProxyHost = "jump.example.com"
				c.ProxyPort = 22
				c.ProxyUser = "deploy"
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestParseTarget(t *testing.T) {
	tests := []struct {
		name     string
		target   string
		wantUser string
		wantHost string
		wantPath string
		wantErr  bool
	}{
		{
			name:     "valid target",
			target:   "deploy@infra.example.com:/srv/terraform/envs/dev",
			wantUser: "deploy",
			wantHost: "infra.example.com",
			wantPath: "/srv/terraform/envs/dev",
		},
		{
			name:    "missing user",
			target:  "infra.example.com:/srv/terraform",
			wantErr: true,
		},
		{
			name:    "missing path",
			target:  "deploy@infra.example.com",
			wantErr: true,
		},
		{
			name:    "relative path",
			target:  "deploy@infra.example.com:terraform/envs/dev",
			wantErr: true,
		},
		{
			name:    "empty path",
			target:  "deploy@infra.example.com:",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, remotePath, err := ParseTarget(tt.target)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseTarget() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if cfg.User != tt.wantUser {
				t.Errorf("User = %q, want %q", cfg.User, tt.wantUser)
			}
			if cfg.Host != tt.wantHost {
				t.Errorf("Host = %q, want %q", cfg.Host, tt.wantHost)
			}
			if remotePath != tt.wantPath {
				t.Errorf("Path = %q, want %q", remotePath, tt.wantPath)
			}
		})
	}
}

func TestSSHClient_NotConnected(t *testing.T) {
	cfg := DefaultConfig("host.example.com", "deploy")
	cfg.AuthMethod = AuthMethodPassword
	cfg.Password = "hunter2"

	client, err := NewSSHClient(cfg)
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}

	if client.IsConnected() {
		t.Error("New client should not be connected")
	}

	if err := client.HealthCheck(context.Background()); err == nil {
		t.Error("HealthCheck should fail when not connected")
	}

	if _, err := client.FetchDirectory(context.Background(), "/srv/terraform"); err == nil {
		t.Error("FetchDirectory should fail when not connected")
	}

	// Disconnect on a never-connected client is a no-op.
	if err := client.Disconnect(); err != nil {
		t.Errorf("Disconnect on unconnected client: %v", err)
	}
}

func TestConfigFile(t *testing.T) {
	tests := []struct {
		name string
		want bool
	}{
		{"main.tf", true},
		{"variables.tf", true},
		{"README.md", false},
		{"terraform.tfstate", false},
		{".hidden.tf", false},
		{"main.tf.bak", false},
	}

	for _, tt := range tests {
		if got := configFile(tt.name); got != tt.want {
			t.Errorf("configFile(%q) = %v, want %v", tt.name, got, tt.want)
		}
	}
}
