package config

import "testing"

func TestNewConfigDefaults(t *testing.T) {
	cfg := NewConfig("in.mkv", "out.mkv")

	if cfg.CRF != DefaultCRF {
		t.Errorf("CRF = %v", cfg.CRF)
	}
	if cfg.QPRange != DefaultQPRange || cfg.MetricMode != DefaultMetricMode {
		t.Errorf("TQ defaults = %q %q", cfg.QPRange, cfg.MetricMode)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults invalid: %v", err)
	}
}

func TestValidateRejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"no input", func(c *Config) { c.Input = "" }},
		{"no output", func(c *Config) { c.Output = "" }},
		{"crf high", func(c *Config) { c.CRF = 71 }},
		{"crf negative", func(c *Config) { c.CRF = -1 }},
		{"negative workers", func(c *Config) { c.Workers = -2 }},
	}

	for _, tt := range tests {
		cfg := NewConfig("in.mkv", "out.mkv")
		tt.mutate(cfg)
		if err := cfg.Validate(); err == nil {
			t.Errorf("%s: expected error", tt.name)
		}
	}
}

func TestWorkersForCores(t *testing.T) {
	tests := []struct {
		cores    int
		expected int
	}{
		{64, 8},
		{32, 8},
		{24, 6},
		{16, 4},
		{12, 3},
		{8, 2},
		{4, 1},
		{1, 1},
	}

	for _, tt := range tests {
		if got := workersForCores(tt.cores); got != tt.expected {
			t.Errorf("workersForCores(%d) = %d, want %d", tt.cores, got, tt.expected)
		}
	}
}

func TestAutoWorkersAtLeastOne(t *testing.T) {
	// Even an absurd per-chunk footprint must leave one worker.
	if got := AutoWorkers(1 << 62); got != 1 {
		t.Errorf("AutoWorkers = %d, want 1", got)
	}
}
