package tq

import (
	"fmt"
	"strconv"
	"strings"
)

// Config holds target quality configuration.
type Config struct {
	// TargetLo and TargetHi define the acceptable metric score band.
	TargetLo float64
	TargetHi float64

	// CRFLo and CRFHi define the allowed CRF search range.
	CRFLo float64
	CRFHi float64

	// MetricMode specifies how to aggregate frame scores ("mean" or "pN").
	MetricMode string
}

// DefaultConfig returns a Config with the default CRF range.
func DefaultConfig() *Config {
	return &Config{
		CRFLo:      8.0,
		CRFHi:      48.0,
		MetricMode: "mean",
	}
}

// NewState builds the search state for one chunk from the configuration.
func (c *Config) NewState() *State {
	return NewState(c.TargetLo, c.TargetHi, c.CRFLo, c.CRFHi)
}

func parseRange(s, what, example string) (lo, hi float64, err error) {
	parts := strings.Split(s, "-")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid %s format %q, expected 'min-max' (e.g., %q)", what, s, example)
	}

	lo, err = strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid %s min %q: %w", what, parts[0], err)
	}
	hi, err = strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid %s max %q: %w", what, parts[1], err)
	}
	if lo >= hi {
		return 0, 0, fmt.Errorf("%s min (%v) must be less than max (%v)", what, lo, hi)
	}
	return lo, hi, nil
}

// ParseTargetRange parses a target quality band string (e.g., "74-76").
func ParseTargetRange(s string) (*Config, error) {
	cfg := DefaultConfig()

	lo, hi, err := parseRange(s, "target quality", "74-76")
	if err != nil {
		return nil, err
	}
	cfg.TargetLo = lo
	cfg.TargetHi = hi
	return cfg, nil
}

// ParseCRFRange parses a CRF search range string (e.g., "8-48") into cfg.
func (c *Config) ParseCRFRange(s string) error {
	lo, hi, err := parseRange(s, "CRF range", "8-48")
	if err != nil {
		return err
	}
	if lo < CRFFloor || hi > CRFCeil {
		return fmt.Errorf("CRF range %q outside [%g, %g]", s, CRFFloor, CRFCeil)
	}
	c.CRFLo = lo
	c.CRFHi = hi
	return nil
}

// ParseMetricMode validates a metric aggregation mode: "mean" or "pN" for
// the mean of the worst N percent of frames.
func (c *Config) ParseMetricMode(s string) error {
	if s == "mean" {
		c.MetricMode = s
		return nil
	}
	if strings.HasPrefix(s, "p") {
		if n, err := strconv.Atoi(s[1:]); err == nil && n >= 1 && n <= 100 {
			c.MetricMode = s
			return nil
		}
	}
	return fmt.Errorf("invalid metric mode %q, expected 'mean' or 'pN' (e.g., 'p15')", s)
}

// WorstPercent returns the pN percentile from the mode, or 0 for mean.
func (c *Config) WorstPercent() int {
	if strings.HasPrefix(c.MetricMode, "p") {
		if n, err := strconv.Atoi(c.MetricMode[1:]); err == nil {
			return n
		}
	}
	return 0
}
