package tuning

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

type Tuning struct {
	TickRateHz         int    `yaml:"tick_rate_hz"`
	SimulatedTickSkip  int    `yaml:"simulated_tick_skip"`
	Workers            int    `yaml:"workers"`
	SnapshotEveryTicks int    `yaml:"snapshot_every_ticks"`
	Seed               uint64 `yaml:"seed"`
	// DayCycleFactor is how much faster time of day runs than simulated time.
	DayCycleFactor float64 `yaml:"day_cycle_factor"`

	World    WorldParams    `yaml:"world"`
	Dialogue DialogueParams `yaml:"dialogue"`
	Buff     BuffParams     `yaml:"buff"`
	Feed     FeedParams     `yaml:"feed"`
}

type WorldParams struct {
	Size        float64 `yaml:"size"`
	Sites       int     `yaml:"sites"`
	NpcsPerSite int     `yaml:"npcs_per_site"`
	Monsters    int     `yaml:"monsters"`
	Birds       int     `yaml:"birds"`
}

type DialogueParams struct {
	RetainSecs          float64 `yaml:"retain_secs"`
	QuestionTimeoutSecs float64 `yaml:"question_timeout_secs"`
}

type BuffParams struct {
	Workers int `yaml:"workers"`
}

type FeedParams struct {
	RedisAddr    string  `yaml:"redis_addr"`
	Stream       string  `yaml:"stream"`
	StartID      string  `yaml:"start_id"`
	ReportRadius float64 `yaml:"report_radius"`
}

func Defaults() Tuning {
	return Tuning{
		TickRateHz:         30,
		SimulatedTickSkip:  10,
		SnapshotEveryTicks: 3000,
		Seed:               1,
		DayCycleFactor:     24,
		World: WorldParams{
			Size:        4096,
			Sites:       6,
			NpcsPerSite: 8,
			Monsters:    4,
			Birds:       2,
		},
		Dialogue: DialogueParams{RetainSecs: 60, QuestionTimeoutSecs: 60},
		Feed:     FeedParams{Stream: "rtsim:events", StartID: "$", ReportRadius: 64},
	}
}

// Load reads path over the defaults. An empty path returns the defaults.
func Load(path string) (Tuning, error) {
	t := Defaults()
	if strings.TrimSpace(path) == "" {
		t.Normalize()
		return t, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("rtsim.yaml: %w", err)
	}
	t.Normalize()
	if err := t.Validate(); err != nil {
		return t, fmt.Errorf("rtsim.yaml: %w", err)
	}
	return t, nil
}

// Normalize fills zero values that have an obvious default.
func (t *Tuning) Normalize() {
	d := Defaults()
	if t.TickRateHz <= 0 {
		t.TickRateHz = d.TickRateHz
	}
	if t.SimulatedTickSkip <= 0 {
		t.SimulatedTickSkip = d.SimulatedTickSkip
	}
	if t.DayCycleFactor <= 0 {
		t.DayCycleFactor = d.DayCycleFactor
	}
	if t.Dialogue.RetainSecs <= 0 {
		t.Dialogue.RetainSecs = d.Dialogue.RetainSecs
	}
	if t.Dialogue.QuestionTimeoutSecs <= 0 {
		t.Dialogue.QuestionTimeoutSecs = d.Dialogue.QuestionTimeoutSecs
	}
	if strings.TrimSpace(t.Feed.Stream) == "" {
		t.Feed.Stream = d.Feed.Stream
	}
	if t.Feed.StartID == "" {
		t.Feed.StartID = d.Feed.StartID
	}
	if t.Feed.ReportRadius <= 0 {
		t.Feed.ReportRadius = d.Feed.ReportRadius
	}
}

func (t Tuning) Validate() error {
	if t.TickRateHz > 1000 {
		return fmt.Errorf("tick_rate_hz must be <= 1000")
	}
	if t.Workers < 0 || t.Buff.Workers < 0 {
		return fmt.Errorf("workers must be >= 0")
	}
	if t.SnapshotEveryTicks < 0 {
		return fmt.Errorf("snapshot_every_ticks must be >= 0")
	}
	if t.World.Size <= 0 {
		return fmt.Errorf("world.size must be > 0")
	}
	if t.World.Sites < 0 || t.World.NpcsPerSite < 0 || t.World.Monsters < 0 || t.World.Birds < 0 {
		return fmt.Errorf("world counts must be >= 0")
	}
	if t.Dialogue.QuestionTimeoutSecs > t.Dialogue.RetainSecs*10 {
		return fmt.Errorf("dialogue.question_timeout_secs is unreasonably larger than retain_secs")
	}
	return nil
}

// TickDt is the simulated seconds one tick advances.
func (t Tuning) TickDt() float64 { return 1 / float64(t.TickRateHz) }
