package tuning

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad_RtsimYAML(t *testing.T) {
	cfg, err := Load("../../../configs/rtsim.yaml")
	if err != nil {
		t.Fatalf("load rtsim.yaml: %v", err)
	}
	if cfg.TickRateHz != 30 || cfg.SimulatedTickSkip != 10 || cfg.Seed != 1337 {
		t.Fatalf("cfg=%+v", cfg)
	}
	if cfg.Feed.Stream != "rtsim:events" || cfg.Feed.ReportRadius != 64 {
		t.Fatalf("feed=%+v", cfg.Feed)
	}
}

func TestLoad_EmptyPathIsDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg != Defaults() {
		t.Fatalf("cfg=%+v", cfg)
	}
}

func TestLoad_NormalizesZeroes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rtsim.yaml")
	if err := os.WriteFile(path, []byte("tick_rate_hz: 0\nworld:\n  size: 100\ndialogue:\n  retain_secs: 0\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.TickRateHz != 30 || cfg.Dialogue.RetainSecs != 60 || cfg.World.Size != 100 {
		t.Fatalf("cfg=%+v", cfg)
	}
}

func TestValidate_Rejects(t *testing.T) {
	cases := map[string]func(*Tuning){
		"tick rate":  func(c *Tuning) { c.TickRateHz = 5000 },
		"workers":    func(c *Tuning) { c.Workers = -1 },
		"world size": func(c *Tuning) { c.World.Size = 0 },
		"counts":     func(c *Tuning) { c.World.Birds = -2 },
	}
	for name, mut := range cases {
		cfg := Defaults()
		mut(&cfg)
		if err := cfg.Validate(); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}

func TestLoad_BadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rtsim.yaml")
	if err := os.WriteFile(path, []byte("tick_rate_hz: [\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatalf("expected parse error")
	}
}
