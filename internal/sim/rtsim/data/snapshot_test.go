package data

import (
	"path/filepath"
	"testing"

	"rtsim.ai/internal/persistence/snapshot"
	"rtsim.ai/internal/sim/mathx"
)

func populated(t *testing.T) *Data {
	t.Helper()
	d := New()
	home := d.Sites.Create(Site{Name: "Ashford", WPos: mathx.V2(100, 100)})
	d.Sites.Create(Site{Name: "Brinemouth", WPos: mathx.V2(900, 400)})

	merchant := d.CreateNpc(NewNpc(11, mathx.V3(101, 99, 12), BodyHumanoid, Civilised(&Profession{Kind: Merchant})).WithHome(home))
	adv := d.CreateNpc(NewNpc(12, mathx.V3(110, 90, 13), BodyHumanoid, Civilised(&Profession{Kind: Adventurer, Level: 3})).WithFaction(7))
	horse := d.CreateNpc(NewNpc(13, mathx.V3(110, 90, 13), BodyQuadrupedMedium, Role{Kind: RoleWild}))

	victim := NpcActor(adv)
	killer := CharacterActor(4)
	rep := d.Reports.Create(DeathReport(victim, &killer, 50))
	d.Reports.Create(TheftReport(CharacterActor(4), &home, "plant:wheat", 60))

	m := d.Npcs[merchant]
	m.Sentiments.ChangeBy(CharacterActor(4), -0.5, SentimentEnemy)
	m.Sentiments.ChangeBy(NpcActor(adv), 0.3, SentimentAlly)
	m.KnownReports[rep] = struct{}{}
	d.Npcs[adv].Hiring = &Hiring{By: CharacterActor(4), Expires: 900}
	d.Npcs[adv].Personality = Personality{Openness: 200, Conscientiousness: 10, Extraversion: 127, Agreeableness: 90, Neuroticism: 30}

	if _, err := d.Mount(horse, NpcActor(adv), true); err != nil {
		t.Fatalf("mount: %v", err)
	}
	d.Tick = 300
	d.Time = 10
	d.TimeOfDay = 240
	return d
}

func TestSnapshot_ExportImportRoundTrip(t *testing.T) {
	d := populated(t)
	snap := d.ExportSnapshot("w1")
	if snap.Header.Tick != 300 || len(snap.Npcs) != 3 || len(snap.Sites) != 2 || len(snap.Reports) != 2 || len(snap.Links) != 1 {
		t.Fatalf("snapshot=%+v", snap.Header)
	}

	path := filepath.Join(t.TempDir(), "s.snap.zst")
	if err := snapshot.WriteSnapshot(path, snap); err != nil {
		t.Fatalf("write: %v", err)
	}
	read, err := snapshot.ReadSnapshot(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	got, err := ImportSnapshot(read)
	if err != nil {
		t.Fatalf("import: %v", err)
	}

	if snapshot.Digest(got.ExportSnapshot("w1")) != snapshot.Digest(snap) {
		t.Fatalf("re-exported snapshot differs")
	}
	if got.Tick != 300 || got.TimeOfDay != 240 {
		t.Fatalf("clock tick=%d tod=%v", got.Tick, got.TimeOfDay)
	}
	adv := got.Npcs[2]
	if adv.Hiring == nil || adv.Hiring.By != CharacterActor(4) || adv.Hiring.Expires != 900 {
		t.Fatalf("hiring=%+v", adv.Hiring)
	}
	if p, ok := adv.Profession(); !ok || p.Kind != Adventurer || p.Level != 3 {
		t.Fatalf("profession=%+v", p)
	}
	if adv.Personality.Openness != 200 || adv.Faction == nil || *adv.Faction != 7 {
		t.Fatalf("adv=%+v", adv)
	}
	link, ok := got.Links.GetMountLink(NpcActor(2))
	if !ok || link.Mount != 3 || !link.IsSteering {
		t.Fatalf("link=%+v ok=%v", link, ok)
	}
	m := got.Npcs[1]
	if _, ok := m.KnownReports[1]; !ok || !m.Sentiments.Of(CharacterActor(4)).Is(SentimentNegative) {
		t.Fatalf("merchant memory lost: %+v", m)
	}
	if site, _ := got.Sites.Get(1); len(site.Population) != 1 {
		t.Fatalf("population not rebuilt")
	}
	if rep, _ := got.Reports.Get(1); rep.Killer == nil || *rep.Killer != CharacterActor(4) {
		t.Fatalf("report=%+v", rep)
	}
}

func TestSnapshot_ImportKeepsIDsMonotonic(t *testing.T) {
	d := populated(t)
	snap := d.ExportSnapshot("w1")
	snap.Counters = snapshot.CountersV1{}
	got, err := ImportSnapshot(snap)
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if id := got.CreateNpc(NewNpc(1, mathx.Vec3{}, BodyHumanoid, Civilised(nil))); id != 4 {
		t.Fatalf("new npc id=%d want 4", id)
	}
	if id := got.Reports.Create(DeathReport(NpcActor(1), nil, 0)); id != 3 {
		t.Fatalf("new report id=%d want 3", id)
	}
}

func TestSnapshot_ImportTransientDefaults(t *testing.T) {
	d := populated(t)
	d.Npcs[1].Mode = Loaded
	d.Npcs[1].Inbox.Push(ReportInput(1))
	got, err := ImportSnapshot(d.ExportSnapshot("w1"))
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	n := got.Npcs[1]
	if n.Mode != Simulated || n.Inbox.Len() != 0 || len(n.Controller.Actions) != 0 {
		t.Fatalf("transient state survived: %+v", n)
	}
}

func TestSnapshot_ImportRejectsBadVersion(t *testing.T) {
	snap := New().ExportSnapshot("w")
	snap.Header.Version = 9
	if _, err := ImportSnapshot(snap); err == nil {
		t.Fatalf("expected version error")
	}
}
