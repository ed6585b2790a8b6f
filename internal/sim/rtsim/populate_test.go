package rtsim

import (
	"testing"

	"rtsim.ai/internal/sim/rtsim/data"
	"rtsim.ai/internal/sim/tuning"
)

func TestSpawner_PopulateTownHarbourAndWild(t *testing.T) {
	w := testWorld()
	d := data.New()
	p := tuning.WorldParams{Size: 1000, NpcsPerSite: 10, Monsters: 3, Birds: 2}
	NewSpawner(7, w).Populate(d, w, p)

	if got := len(d.Sites.IDs()); got != 2 {
		t.Fatalf("sites=%d", got)
	}
	// Two sites of townsfolk, a boat and its captain, then the wild.
	if got, want := len(d.Npcs), 2*10+2+3+2; got != want {
		t.Fatalf("npcs=%d want %d", got, want)
	}

	counts := map[data.Body]int{}
	guards := 0
	for _, n := range d.Npcs {
		counts[n.Body]++
		if p, ok := n.Profession(); ok && p.Kind == data.Guard {
			guards++
			if n.Home == nil {
				t.Fatalf("guard %d has no home", n.UID)
			}
		}
	}
	if counts[data.BodySailBoat] != 1 || counts[data.BodyQuadrupedMedium] != 3 || counts[data.BodyBirdLarge] != 2 {
		t.Fatalf("bodies=%v", counts)
	}
	if guards != 2 {
		t.Fatalf("guards=%d", guards)
	}

	var boat data.NpcID
	for id, n := range d.Npcs {
		if n.Body == data.BodySailBoat {
			boat = id
		}
	}
	link, ok := d.Links.GetSteererLink(boat)
	if !ok {
		t.Fatalf("boat has no steerer")
	}
	cid, ok := link.Rider.NpcID()
	if !ok {
		t.Fatalf("steerer is not an npc: %v", link.Rider)
	}
	if p, ok := d.Npcs[cid].Profession(); !ok || p.Kind != data.Captain {
		t.Fatalf("steerer profession=%+v", p)
	}
}

func TestSpawner_Deterministic(t *testing.T) {
	w := testWorld()
	p := tuning.WorldParams{Size: 1000, NpcsPerSite: 6, Monsters: 2, Birds: 2}
	a, b := data.New(), data.New()
	NewSpawner(42, w).Populate(a, w, p)
	NewSpawner(42, w).Populate(b, w, p)

	ids := a.NpcIDs()
	if len(ids) != len(b.NpcIDs()) {
		t.Fatalf("counts differ")
	}
	for _, id := range ids {
		na, nb := a.Npcs[id], b.Npcs[id]
		if na.Seed != nb.Seed || na.WPos != nb.WPos || na.Body != nb.Body {
			t.Fatalf("npc %d differs: %+v vs %+v", id, na.WPos, nb.WPos)
		}
	}
}
