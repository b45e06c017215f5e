package tq

import "testing"

func TestParseTargetRange(t *testing.T) {
	cfg, err := ParseTargetRange("74-76")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.TargetLo != 74 || cfg.TargetHi != 76 {
		t.Errorf("band = [%v, %v]", cfg.TargetLo, cfg.TargetHi)
	}
	if cfg.CRFLo != 8 || cfg.CRFHi != 48 {
		t.Errorf("default CRF range = [%v, %v]", cfg.CRFLo, cfg.CRFHi)
	}
}

func TestParseTargetRangeInvalid(t *testing.T) {
	for _, s := range []string{"", "74", "76-74", "74-74", "a-b"} {
		if _, err := ParseTargetRange(s); err == nil {
			t.Errorf("ParseTargetRange(%q) succeeded", s)
		}
	}
}

func TestParseCRFRange(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.ParseCRFRange("12.25-44.75"); err != nil {
		t.Fatal(err)
	}
	if cfg.CRFLo != 12.25 || cfg.CRFHi != 44.75 {
		t.Errorf("CRF range = [%v, %v]", cfg.CRFLo, cfg.CRFHi)
	}

	for _, s := range []string{"48-8", "-5-20", "0-80"} {
		if err := cfg.ParseCRFRange(s); err == nil {
			t.Errorf("ParseCRFRange(%q) succeeded", s)
		}
	}
}

func TestParseMetricMode(t *testing.T) {
	cfg := DefaultConfig()

	for _, s := range []string{"mean", "p15", "p1", "p100"} {
		if err := cfg.ParseMetricMode(s); err != nil {
			t.Errorf("ParseMetricMode(%q) failed: %v", s, err)
		}
	}
	for _, s := range []string{"", "px", "p0", "p101", "median"} {
		if err := cfg.ParseMetricMode(s); err == nil {
			t.Errorf("ParseMetricMode(%q) succeeded", s)
		}
	}

	_ = cfg.ParseMetricMode("p15")
	if cfg.WorstPercent() != 15 {
		t.Errorf("WorstPercent = %d, want 15", cfg.WorstPercent())
	}
	_ = cfg.ParseMetricMode("mean")
	if cfg.WorstPercent() != 0 {
		t.Errorf("WorstPercent = %d, want 0", cfg.WorstPercent())
	}
}

func TestNewStateFromConfig(t *testing.T) {
	cfg, err := ParseTargetRange("74-76")
	if err != nil {
		t.Fatal(err)
	}

	s := cfg.NewState()
	if s.Lo != 8 || s.Hi != 48 {
		t.Errorf("state interval = [%v, %v]", s.Lo, s.Hi)
	}
	if s.Target() != 75 {
		t.Errorf("target = %v, want 75", s.Target())
	}
}
