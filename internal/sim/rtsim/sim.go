// Package rtsim runs the NPC simulation: it owns the registry, polls brains,
// embodies simulated NPCs, resolves buffs and talks to connected characters.
package rtsim

import (
	"io"
	"log"
	"sync"
	"sync/atomic"

	"rtsim.ai/internal/persistence/snapshot"
	"rtsim.ai/internal/protocol"
	"rtsim.ai/internal/sim/buff"
	"rtsim.ai/internal/sim/catalogs"
	"rtsim.ai/internal/sim/mathx"
	"rtsim.ai/internal/sim/rtsim/ai"
	"rtsim.ai/internal/sim/rtsim/data"
	"rtsim.ai/internal/sim/rtsim/feed"
	"rtsim.ai/internal/sim/rtsim/npcai"
	"rtsim.ai/internal/sim/tuning"
	"rtsim.ai/internal/sim/world"
)

const (
	defaultHearingRadius = 24
	defaultLoadRadius    = 96
	defaultInteractRange = 16
)

type Config struct {
	ID     string
	Tuning tuning.Tuning
	// Speech renders localised content for characters. Nil sends keys as-is.
	Speech *catalogs.SpeechCatalog

	// HearingRadius is how far undirected speech carries.
	HearingRadius float64
	// LoadRadius is how close a character must be for an NPC to be loaded.
	LoadRadius float64
	// InteractRange bounds INTERACT requests.
	InteractRange float64
}

func (c *Config) normalize() {
	c.Tuning.Normalize()
	if c.HearingRadius <= 0 {
		c.HearingRadius = defaultHearingRadius
	}
	if c.LoadRadius <= 0 {
		c.LoadRadius = defaultLoadRadius
	}
	if c.InteractRange <= 0 {
		c.InteractRange = defaultInteractRange
	}
}

type JoinRequest struct {
	SessionID string
	Character data.CharacterID
	Name      string
	Pos       mathx.Vec3
	Out       chan []byte
	Resp      chan JoinResponse
}

// JoinResponse carries either a welcome or a protocol error code.
type JoinResponse struct {
	Welcome protocol.WelcomeMsg
	ErrCode string
	ErrMsg  string
}

// ClientEnvelope is one validated client message. Which fields are set
// depends on Type.
type ClientEnvelope struct {
	SessionID string
	Character data.CharacterID
	Type      string
	Npc       data.NpcID
	Dialogue  data.DialogueID
	Tag       uint32
	Response  uint16
	Pos       mathx.Vec3
}

type TickLogger interface {
	WriteTick(entry TickLogEntry) error
}

type SpeechRecord struct {
	Npc    uint64 `json:"npc"`
	Target string `json:"target,omitempty"`
	Key    string `json:"key,omitempty"`
	Text   string `json:"text"`
}

type DialogueRecord struct {
	Npc    uint64 `json:"npc"`
	Target string `json:"target"`
	ID     uint64 `json:"id"`
	Kind   string `json:"kind"`
	Text   string `json:"text,omitempty"`
}

type ReportRecord struct {
	ID     uint64  `json:"id"`
	Kind   string  `json:"kind"`
	Actor  string  `json:"actor"`
	Killer string  `json:"killer,omitempty"`
	AtTOD  float64 `json:"at_tod"`
}

type TickLogEntry struct {
	Tick        uint64           `json:"tick"`
	Time        float64          `json:"time"`
	TimeOfDay   float64          `json:"time_of_day"`
	Polled      int              `json:"polled"`
	Loaded      int              `json:"loaded"`
	Simulated   int              `json:"simulated"`
	SimulatedDt float64          `json:"simulated_dt"`
	Joins       []uint64         `json:"joins,omitempty"`
	Leaves      []uint64         `json:"leaves,omitempty"`
	Speech      []SpeechRecord   `json:"speech,omitempty"`
	Dialogue    []DialogueRecord `json:"dialogue,omitempty"`
	Reports     []ReportRecord   `json:"reports,omitempty"`
	Attacks     int              `json:"attacks,omitempty"`
	BuffEvents  int              `json:"buff_events"`
	Deaths      []uint64         `json:"deaths,omitempty"`
}

type teeTickLogger []TickLogger

func (t teeTickLogger) WriteTick(e TickLogEntry) error {
	var first error
	for _, l := range t {
		if err := l.WriteTick(e); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// TeeTickLogger writes every entry to each logger and returns the first error.
func TeeTickLogger(ls ...TickLogger) TickLogger { return teeTickLogger(ls) }

// TickStats is the per-tick summary handed to the metrics sink.
type TickStats struct {
	Tick       uint64
	Npcs       int
	Clients    int
	Polled     int
	Loaded     int
	Simulated  int
	Delivered  int
	Panics     int
	BuffEvents int
	Deaths     int
	StepMS     float64
}

type MetricsSink interface {
	RecordTick(s TickStats)
}

type client struct {
	id      data.CharacterID
	session string
	name    string
	out     chan []byte
	// questions holds the open questions sent to this character, so that
	// responses can carry the chosen option.
	questions map[data.DialogueID]data.Dialogue
}

// Sim is single-threaded: all state is touched only by the loop goroutine,
// or by StepOnce callers when the loop is not running.
type Sim struct {
	cfg    Config
	logger *log.Logger

	data   *data.Data
	world  world.Query
	sched  *npcai.Scheduler
	buffs  *buff.Engine
	source feed.Source

	ents       map[data.NpcID]*buff.Entity
	nextAttack map[data.NpcID]float64
	clients    map[data.CharacterID]*client

	join  chan JoinRequest
	leave chan string
	inbox chan ClientEnvelope
	stop  chan struct{}

	stopOnce sync.Once

	tick  atomic.Uint64
	stats atomic.Value

	tickLogger   TickLogger
	snapshotSink chan<- snapshot.SnapshotV1
	metrics      MetricsSink
}

// New wraps d. src may be nil when no external event feed is configured.
func New(cfg Config, d *data.Data, w world.Query, src feed.Source, logger *log.Logger) *Sim {
	cfg.normalize()
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	if src == nil {
		src = feed.NewMemorySource()
	}
	t := cfg.Tuning
	s := &Sim{
		cfg:    cfg,
		logger: logger,
		data:   d,
		world:  w,
		sched: npcai.New(npcai.Config{
			TickSkip: t.SimulatedTickSkip,
			Workers:  t.Workers,
			Settings: ai.Settings{
				QuestionTimeout: t.Dialogue.QuestionTimeoutSecs,
				DialogueRetain:  t.Dialogue.RetainSecs,
			},
		}, w, logger),
		buffs:      buff.NewEngine(buff.Config{Workers: t.Buff.Workers}, logger),
		source:     src,
		ents:       map[data.NpcID]*buff.Entity{},
		nextAttack: map[data.NpcID]float64{},
		clients:    map[data.CharacterID]*client{},
		join:       make(chan JoinRequest, 64),
		leave:      make(chan string, 64),
		inbox:      make(chan ClientEnvelope, 1024),
		stop:       make(chan struct{}),
	}
	s.tick.Store(d.Tick)
	s.stats.Store(TickStats{Tick: d.Tick})
	d.Sites.RebuildNearby(s.siteSize)
	d.RebuildGrid()
	return s
}

func (s *Sim) siteSize(site *data.Site) int {
	if site.WorldSite == nil {
		return 0
	}
	info, ok := s.world.WorldSite(*site.WorldSite)
	if !ok {
		return 0
	}
	return len(info.Plots)
}

func (s *Sim) SetTickLogger(l TickLogger)                    { s.tickLogger = l }
func (s *Sim) SetSnapshotSink(ch chan<- snapshot.SnapshotV1) { s.snapshotSink = ch }
func (s *Sim) SetMetrics(m MetricsSink)                      { s.metrics = m }

func (s *Sim) Join() chan<- JoinRequest     { return s.join }
func (s *Sim) Leave() chan<- string         { return s.leave }
func (s *Sim) Inbox() chan<- ClientEnvelope { return s.inbox }

func (s *Sim) ID() string          { return s.cfg.ID }
func (s *Sim) TickRateHz() int     { return s.cfg.Tuning.TickRateHz }
func (s *Sim) CurrentTick() uint64 { return s.tick.Load() }

// Stats returns the summary of the last completed tick. Safe from any goroutine.
func (s *Sim) Stats() TickStats { return s.stats.Load().(TickStats) }

// Data exposes the registry. Only use it while the loop is not running.
func (s *Sim) Data() *data.Data { return s.data }

// Scheduler exposes the brain scheduler, for backtraces in tools and tests.
func (s *Sim) Scheduler() *npcai.Scheduler { return s.sched }

// ExportSnapshot copies the durable state. Call it from the loop goroutine
// or after Run returned.
func (s *Sim) ExportSnapshot() snapshot.SnapshotV1 {
	snap := s.data.ExportSnapshot(s.cfg.ID)
	snap.Seed = s.cfg.Tuning.Seed
	snap.TickRate = s.cfg.Tuning.TickRateHz
	snap.WorldSize = s.cfg.Tuning.World.Size
	return snap
}

func sendLatest(ch chan []byte, b []byte) {
	select {
	case ch <- b:
		return
	default:
	}
	// Drop one.
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- b:
	default:
	}
}
