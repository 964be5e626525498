package telemetry

import (
	"testing"
)

func TestDefaultConfigValidates(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
}

func TestCIConfig(t *testing.T) {
	cfg := CIConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("CI config should validate: %v", err)
	}
	if cfg.Logging.Format != "json" {
		t.Errorf("expected json logs for CI, got %q", cfg.Logging.Format)
	}
	if cfg.Tracing.Enabled || cfg.Metrics.Enabled {
		t.Error("CI config should not enable tracing or metrics")
	}
}

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{
			name:   "valid default",
			mutate: func(c *Config) {},
		},
		{
			name:    "missing service name",
			mutate:  func(c *Config) { c.ServiceName = "" },
			wantErr: true,
		},
		{
			name:    "bad log level",
			mutate:  func(c *Config) { c.Logging.Level = "verbose" },
			wantErr: true,
		},
		{
			name:    "bad log format",
			mutate:  func(c *Config) { c.Logging.Format = "xml" },
			wantErr: true,
		},
		{
			name: "bad exporter when tracing enabled",
			mutate: func(c *Config) {
				c.Tracing.Enabled = true
				c.Tracing.Exporter = "jaeger"
			},
			wantErr: true,
		},
		{
			name:    "sampling rate out of range",
			mutate:  func(c *Config) { c.Tracing.SamplingRate = 1.5 },
			wantErr: true,
		},
		{
			name: "metrics enabled without address",
			mutate: func(c *Config) {
				c.Metrics.Enabled = true
				c.Metrics.ListenAddress = ""
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestDisabledMetricsAreNoOps(t *testing.T) {
	m, err := NewMetrics(MetricsConfig{Enabled: false})
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}

	// None of these should panic with metrics disabled.
	m.RecordRunStarted()
	m.RecordRunCompleted("pass", 0)
	m.RecordRuleEvaluation("s3/versioning", "pass", 0)
	m.RecordFindings("error", 2)
	m.RecordDocumentsLoaded(4, 1)
	m.RecordExternalCall("validate", "ok", 0)
}
