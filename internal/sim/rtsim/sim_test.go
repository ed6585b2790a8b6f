package rtsim

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"rtsim.ai/internal/persistence/snapshot"
	"rtsim.ai/internal/protocol"
	"rtsim.ai/internal/sim/buff"
	"rtsim.ai/internal/sim/catalogs"
	"rtsim.ai/internal/sim/mathx"
	"rtsim.ai/internal/sim/rtsim/data"
	"rtsim.ai/internal/sim/rtsim/feed"
	"rtsim.ai/internal/sim/tuning"
	"rtsim.ai/internal/sim/world"
)

// flatWorld is a dry plain at altitude zero.
type flatWorld struct {
	sites map[world.SiteID]world.SiteInfo
}

func (w flatWorld) AltAt(p mathx.Vec2) (float64, bool) {
	return 0, p.X >= 0 && p.Y >= 0 && p.X < 1000 && p.Y < 1000
}
func (w flatWorld) WaterLevel() float64                       { return -10 }
func (w flatWorld) ChunkResources(mathx.Vec2) world.Resources { return world.Resources{} }
func (w flatWorld) IsRaining(mathx.Vec2, float64) bool        { return false }

func (w flatWorld) WorldSite(id world.SiteID) (world.SiteInfo, bool) {
	s, ok := w.sites[id]
	return s, ok
}

func (w flatWorld) WorldSites() []world.SiteInfo {
	out := make([]world.SiteInfo, 0, len(w.sites))
	for id := world.SiteID(1); int(id) <= len(w.sites); id++ {
		out = append(out, w.sites[id])
	}
	return out
}

func (w flatWorld) PlotTiles(id world.SiteID, kinds ...world.PlotKind) []mathx.Vec2 {
	var out []mathx.Vec2
	for _, p := range w.sites[id].Plots {
		for _, k := range kinds {
			if p.Kind == k {
				out = append(out, p.Door)
			}
		}
	}
	return out
}

func (w flatWorld) FindPath(_, to mathx.Vec3) ([]mathx.Vec3, bool) {
	return []mathx.Vec3{to}, true
}

func testWorld() flatWorld {
	center := mathx.V2(100, 100)
	plot := func(k world.PlotKind, off mathx.Vec2) world.Plot {
		door := center.Add(off)
		return world.Plot{Kind: k, Door: door, Tiles: []mathx.Vec2{door}}
	}
	return flatWorld{sites: map[world.SiteID]world.SiteInfo{
		1: {ID: 1, Kind: world.SiteTown, Name: "Testholm", Center: center, Radius: 64, Plots: []world.Plot{
			plot(world.PlotPlaza, mathx.V2(0, 0)),
			plot(world.PlotTavern, mathx.V2(20, 0)),
			plot(world.PlotHouse, mathx.V2(0, 20)),
		}},
		2: {ID: 2, Kind: world.SiteHarbour, Name: "Portby", Center: mathx.V2(600, 600), Radius: 64, Plots: []world.Plot{
			{Kind: world.PlotPlaza, Door: mathx.V2(600, 600)},
			{Kind: world.PlotDock, Door: mathx.V2(700, 600)},
		}},
	}}
}

func testTuning() tuning.Tuning {
	t := tuning.Defaults()
	t.Workers = 2
	t.Buff.Workers = 2
	t.SnapshotEveryTicks = 0
	t.World.Size = 1000
	return t
}

func newTestSim(t *testing.T, src feed.Source) (*Sim, *data.Data, data.SiteID) {
	t.Helper()
	cats, err := catalogs.Load("../../../configs", "")
	if err != nil {
		t.Fatalf("catalogs: %v", err)
	}
	w := testWorld()
	d := data.New()
	d.TimeOfDay = 12 * 3600
	wid := world.SiteID(1)
	home := d.Sites.Create(data.Site{WPos: mathx.V2(100, 100), Name: "Testholm", WorldSite: &wid})
	s := New(Config{ID: "test", Tuning: testTuning(), Speech: &cats.Speech}, d, w, src, nil)
	return s, d, home
}

func villager(d *data.Data, home data.SiteID, kind data.ProfessionKind, pos mathx.Vec3) data.NpcID {
	n := data.NewNpc(uint32(len(d.Npcs)+3), pos, data.BodyHumanoid, data.Civilised(&data.Profession{Kind: kind})).
		WithHome(home).
		WithPersonality(data.DefaultPersonality())
	return d.CreateNpc(n)
}

func join(t *testing.T, s *Sim, char data.CharacterID, session string, pos mathx.Vec3) (chan []byte, JoinResponse) {
	t.Helper()
	out := make(chan []byte, 256)
	resp := make(chan JoinResponse, 1)
	s.StepOnce(context.Background(), []JoinRequest{{SessionID: session, Character: char, Pos: pos, Out: out, Resp: resp}}, nil, nil)
	return out, <-resp
}

type wire struct {
	Type     string               `json:"type"`
	Code     string               `json:"code"`
	FromNpc  uint64               `json:"from_npc"`
	Text     string               `json:"text"`
	Dialogue protocol.DialogueObs `json:"dialogue"`
}

func drain(t *testing.T, out chan []byte) []wire {
	t.Helper()
	var msgs []wire
	for {
		select {
		case b := <-out:
			var m wire
			if err := json.Unmarshal(b, &m); err != nil {
				t.Fatalf("decode %s: %v", b, err)
			}
			msgs = append(msgs, m)
		default:
			return msgs
		}
	}
}

// stepUntil steps until pred matches a message or the tick budget runs out.
func stepUntil(t *testing.T, s *Sim, out chan []byte, ticks int, pred func(wire) bool) wire {
	t.Helper()
	for i := 0; i < ticks; i++ {
		s.StepOnce(context.Background(), nil, nil, nil)
		for _, m := range drain(t, out) {
			if pred(m) {
				return m
			}
		}
	}
	t.Fatalf("no matching message within %d ticks", ticks)
	return wire{}
}

func TestSim_JoinWelcomesAndRejectsSecondSession(t *testing.T) {
	s, d, _ := newTestSim(t, nil)

	_, resp := join(t, s, 9, "s1", mathx.V3(10, 10, 0))
	if resp.ErrCode != "" {
		t.Fatalf("join: %s %s", resp.ErrCode, resp.ErrMsg)
	}
	w := resp.Welcome
	if w.SessionID != "s1" || w.WorldID != "test" || w.CharacterID != 9 || w.TickRateHz != 30 || len(w.SpeechDigest) != 64 {
		t.Fatalf("welcome=%+v", w)
	}
	if _, ok := d.Characters[9]; !ok {
		t.Fatalf("character not registered")
	}

	if _, resp := join(t, s, 9, "s2", mathx.Vec3{}); resp.ErrCode != protocol.ErrAlreadyTaken {
		t.Fatalf("second session: %+v", resp)
	}

	// A stale leave does not drop the live session.
	s.StepOnce(context.Background(), nil, []string{"s2"}, nil)
	if _, ok := d.Characters[9]; !ok {
		t.Fatalf("stale leave removed character")
	}
	entry := s.StepOnce(context.Background(), nil, []string{"s1"}, nil)
	if _, ok := d.Characters[9]; ok || len(entry.Leaves) != 1 || entry.Leaves[0] != 9 {
		t.Fatalf("leave: chars=%v entry=%+v", d.Characters, entry)
	}
}

func TestSim_InteractOpensDialogueAndResponseIsAnswered(t *testing.T) {
	s, d, home := newTestSim(t, nil)
	npc := villager(d, home, data.Farmer, mathx.V3(100, 100, 0))
	out, _ := join(t, s, 9, "s1", mathx.V3(102, 100, 0))

	s.StepOnce(context.Background(), nil, nil, []ClientEnvelope{{SessionID: "s1", Character: 9, Type: protocol.TypeInteract, Npc: npc}})
	var start, question wire
	for i := 0; i < 30 && question.Type == ""; i++ {
		for _, m := range drain(t, out) {
			if m.Type != protocol.TypeDialogue || m.FromNpc != uint64(npc) {
				continue
			}
			switch m.Dialogue.Kind {
			case "start":
				start = m
			case "question":
				question = m
			}
		}
		if question.Type == "" {
			s.StepOnce(context.Background(), nil, nil, nil)
		}
	}
	if start.Type == "" || question.Type == "" {
		t.Fatalf("no dialogue: start=%+v question=%+v", start, question)
	}
	if question.Dialogue.ID != start.Dialogue.ID || len(question.Dialogue.Responses) < 5 {
		t.Fatalf("question=%+v", question.Dialogue)
	}
	if question.Dialogue.Text == "" || question.Dialogue.Text == "npc-question-general" {
		t.Fatalf("question not rendered: %q", question.Dialogue.Text)
	}

	// Option 1 asks the NPC about itself.
	s.StepOnce(context.Background(), nil, nil, []ClientEnvelope{{
		SessionID: "s1", Character: 9, Type: protocol.TypeResponse, Npc: npc,
		Dialogue: data.DialogueID(question.Dialogue.ID), Tag: question.Dialogue.Tag, Response: 1,
	}})
	stepUntil(t, s, out, 30, func(m wire) bool {
		return m.Type == protocol.TypeDialogue && m.Dialogue.Kind == "statement" && m.Dialogue.ID == question.Dialogue.ID
	})

	// Answering the same question twice is stale.
	s.StepOnce(context.Background(), nil, nil, []ClientEnvelope{{
		SessionID: "s1", Character: 9, Type: protocol.TypeResponse, Npc: npc,
		Dialogue: data.DialogueID(question.Dialogue.ID), Tag: question.Dialogue.Tag, Response: 1,
	}})
	stepUntil(t, s, out, 1, func(m wire) bool { return m.Type == protocol.TypeError && m.Code == protocol.ErrStale })
}

func TestSim_ClientErrors(t *testing.T) {
	s, d, home := newTestSim(t, nil)
	far := villager(d, home, data.Farmer, mathx.V3(500, 500, 0))
	out, _ := join(t, s, 9, "s1", mathx.V3(100, 100, 0))

	cases := []struct {
		env  ClientEnvelope
		code string
	}{
		{ClientEnvelope{Type: protocol.TypeInteract, Npc: 999}, protocol.ErrInvalidTarget},
		{ClientEnvelope{Type: protocol.TypeInteract, Npc: far}, protocol.ErrInvalidTarget},
		{ClientEnvelope{Type: protocol.TypeResponse, Npc: far, Dialogue: 4, Tag: 1}, protocol.ErrStale},
	}
	for _, c := range cases {
		c.env.SessionID = "s1"
		c.env.Character = 9
		s.StepOnce(context.Background(), nil, nil, []ClientEnvelope{c.env})
		msgs := drain(t, out)
		if len(msgs) == 0 || msgs[0].Type != protocol.TypeError || msgs[0].Code != c.code {
			t.Fatalf("%+v: msgs=%+v", c.env, msgs)
		}
	}

	// Messages from an unknown session are dropped without a reply.
	s.StepOnce(context.Background(), nil, nil, []ClientEnvelope{{SessionID: "other", Character: 9, Type: protocol.TypeInteract, Npc: 999}})
	if msgs := drain(t, out); len(msgs) != 0 {
		t.Fatalf("msgs=%+v", msgs)
	}

	s.StepOnce(context.Background(), nil, nil, []ClientEnvelope{{SessionID: "s1", Character: 9, Type: protocol.TypeMove, Pos: mathx.V3(499, 500, 0)}})
	if got := d.Characters[9].WPos; got != mathx.V3(499, 500, 0) {
		t.Fatalf("move: %+v", got)
	}
}

func TestSim_AttackKillsAndReports(t *testing.T) {
	s, d, home := newTestSim(t, nil)
	att := villager(d, home, data.Guard, mathx.V3(100, 100, 0))
	vic := villager(d, home, data.Farmer, mathx.V3(102, 100, 0))
	witness := villager(d, home, data.Chef, mathx.V3(110, 100, 0))
	d.Npcs[vic].HealthFraction = 0.05
	d.Time = 10
	d.RebuildGrid()
	s.syncEntities()

	var st combatStage
	if !s.stageAttack(&st, att, data.NpcActor(vic)) {
		t.Fatalf("attack rejected")
	}
	if s.stageAttack(&st, att, data.NpcActor(vic)) {
		t.Fatalf("cooldown ignored")
	}
	if s.stageAttack(&st, att, data.NpcActor(att)) || s.stageAttack(&st, vic, data.CharacterActor(1)) {
		t.Fatalf("self or character attack accepted")
	}

	res := s.resolveBuffs(context.Background(), 1, st)
	if len(res.deaths) != 1 || res.deaths[0] != vic || !d.Npcs[vic].IsDead() {
		t.Fatalf("res=%+v", res)
	}
	if len(res.reports) != 1 || res.reports[0].Kind != "death" || res.reports[0].Killer != data.NpcActor(att).String() {
		t.Fatalf("reports=%+v", res.reports)
	}
	items := d.Npcs[witness].Inbox.Items()
	if len(items) != 1 || items[0].Kind != data.InputReport {
		t.Fatalf("witness inbox=%+v", items)
	}
	if d.Npcs[vic].Inbox.Len() != 0 {
		t.Fatalf("the dead were told")
	}
}

func TestSim_AttackLeavesBleeding(t *testing.T) {
	s, d, home := newTestSim(t, nil)
	att := villager(d, home, data.Pirate, mathx.V3(100, 100, 0))
	vic := villager(d, home, data.Farmer, mathx.V3(101, 100, 0))
	d.RebuildGrid()
	s.syncEntities()

	var st combatStage
	s.stageAttack(&st, att, data.NpcActor(vic))
	s.resolveBuffs(context.Background(), 1, st)
	if got := d.Npcs[vic].HealthFraction; got < 0.899 || got > 0.901 {
		t.Fatalf("health=%v", got)
	}
	if !s.ents[vic].Buffs.Contains(buff.Bleeding) {
		t.Fatalf("no bleeding")
	}
}

func TestSim_GuardAuraDetachesOutOfRange(t *testing.T) {
	s, d, home := newTestSim(t, nil)
	villager(d, home, data.Guard, mathx.V3(100, 100, 0))
	farmer := villager(d, home, data.Farmer, mathx.V3(105, 100, 0))
	d.RebuildGrid()
	s.syncEntities()

	s.resolveBuffs(context.Background(), refreshEveryTicks, combatStage{})
	e := s.ents[farmer]
	keys := e.Buffs.Keys(buff.ProtectingWard)
	if len(keys) != 1 {
		t.Fatalf("ward keys=%v", keys)
	}
	b, _ := e.Buffs.Get(keys[0])
	if !b.HasCategory(buff.FromActiveAura) {
		t.Fatalf("ward not tied to the aura: %+v", b.Categories)
	}

	d.Npcs[farmer].WPos = mathx.V3(300, 100, 0)
	d.RebuildGrid()
	s.syncEntities()
	s.resolveBuffs(context.Background(), refreshEveryTicks+1, combatStage{})
	b, ok := e.Buffs.Get(keys[0])
	if !ok || b.HasCategory(buff.FromActiveAura) {
		t.Fatalf("ward after leaving: ok=%v %+v", ok, b)
	}
}

func TestSim_FeedEventsBecomeReports(t *testing.T) {
	src := feed.NewMemorySource()
	s, d, home := newTestSim(t, src)
	npc := villager(d, home, data.Farmer, mathx.V3(100, 100, 0))
	src.Push(feed.Event{Kind: feed.KindDeath, Victim: "char:3", Killer: "char:4", Pos: [3]float64{105, 100, 0}})

	entry := s.StepOnce(context.Background(), nil, nil, nil)
	if len(entry.Reports) != 1 || entry.Reports[0].Actor != "char:3" || entry.Reports[0].Killer != "char:4" {
		t.Fatalf("reports=%+v", entry.Reports)
	}
	if _, ok := d.Reports.Get(data.ReportID(entry.Reports[0].ID)); !ok {
		t.Fatalf("report not stored")
	}
	// The farmer is simulated, so it learns of the report on its next poll.
	for i := 0; i < 20; i++ {
		if _, known := d.Npcs[npc].KnownReports[data.ReportID(entry.Reports[0].ID)]; known {
			return
		}
		s.StepOnce(context.Background(), nil, nil, nil)
	}
	t.Fatalf("report never read")
}

type tickRecorder struct{ entries []TickLogEntry }

func (r *tickRecorder) WriteTick(e TickLogEntry) error {
	r.entries = append(r.entries, e)
	return nil
}

type statsRecorder struct{ ticks []TickStats }

func (r *statsRecorder) RecordTick(s TickStats) { r.ticks = append(r.ticks, s) }

func TestSim_StepLogsSnapshotsAndRecords(t *testing.T) {
	s, d, home := newTestSim(t, nil)
	villager(d, home, data.Farmer, mathx.V3(100, 100, 0))
	s.cfg.Tuning.SnapshotEveryTicks = 5

	logA, logB := &tickRecorder{}, &tickRecorder{}
	stats := &statsRecorder{}
	sink := make(chan snapshot.SnapshotV1, 4)
	s.SetTickLogger(TeeTickLogger(logA, logB))
	s.SetMetrics(stats)
	s.SetSnapshotSink(sink)

	for i := 0; i < 10; i++ {
		s.StepOnce(context.Background(), nil, nil, nil)
	}
	if len(logA.entries) != 10 || len(logB.entries) != 10 || logA.entries[9].Tick != 10 {
		t.Fatalf("entries a=%d b=%d", len(logA.entries), len(logB.entries))
	}
	if len(stats.ticks) != 10 || s.Stats().Tick != 10 || s.CurrentTick() != 10 || s.Stats().Npcs != 1 {
		t.Fatalf("stats=%+v", s.Stats())
	}
	if len(sink) != 2 {
		t.Fatalf("snapshots=%d", len(sink))
	}
	snap := <-sink
	if snap.Header.Tick != 5 || snap.Header.WorldID != "test" || snap.TickRate != 30 || len(snap.Npcs) != 1 {
		t.Fatalf("snap header=%+v npcs=%d", snap.Header, len(snap.Npcs))
	}
	wantTime := 10 * s.cfg.Tuning.TickDt()
	if d.Time < wantTime-1e-9 || d.Time > wantTime+1e-9 {
		t.Fatalf("time=%v want %v", d.Time, wantTime)
	}
}

func TestSim_ResumeContinuesTicks(t *testing.T) {
	s, d, home := newTestSim(t, nil)
	villager(d, home, data.Farmer, mathx.V3(100, 100, 0))
	for i := 0; i < 4; i++ {
		s.StepOnce(context.Background(), nil, nil, nil)
	}
	restored, err := data.ImportSnapshot(s.ExportSnapshot())
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	s2 := New(Config{ID: "test", Tuning: testTuning()}, restored, testWorld(), nil, nil)
	if entry := s2.StepOnce(context.Background(), nil, nil, nil); entry.Tick != 5 {
		t.Fatalf("resumed at tick %d", entry.Tick)
	}
}

func TestSim_RunServesJoinsUntilStopped(t *testing.T) {
	s, _, _ := newTestSim(t, nil)
	done := make(chan error, 1)
	go func() { done <- s.Run(context.Background()) }()

	resp := make(chan JoinResponse, 1)
	s.Join() <- JoinRequest{SessionID: "s1", Character: 3, Out: make(chan []byte, 8), Resp: resp}
	select {
	case r := <-resp:
		if r.ErrCode != "" || r.Welcome.CharacterID != 3 {
			t.Fatalf("resp=%+v", r)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("join not served")
	}

	s.Stop()
	s.Stop()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("run did not stop")
	}
}
