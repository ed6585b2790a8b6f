package world

import (
	"testing"

	"rtsim.ai/internal/sim/mathx"
)

func TestProcedural_Deterministic(t *testing.T) {
	cfg := ProceduralConfig{Seed: 11, Size: 2048, Sites: 6}
	a, b := NewProcedural(cfg), NewProcedural(cfg)

	for _, pos := range []mathx.Vec2{mathx.V2(10, 10), mathx.V2(700, 1300), mathx.V2(2000, 5)} {
		ha, _ := a.AltAt(pos)
		hb, _ := b.AltAt(pos)
		if ha != hb {
			t.Fatalf("alt at %v: %v vs %v", pos, ha, hb)
		}
	}
	sa, sb := a.WorldSites(), b.WorldSites()
	if len(sa) != len(sb) {
		t.Fatalf("sites: %d vs %d", len(sa), len(sb))
	}
	for i := range sa {
		if sa[i].Center != sb[i].Center || sa[i].Name != sb[i].Name || sa[i].Kind != sb[i].Kind {
			t.Fatalf("site %d differs: %+v vs %+v", i, sa[i], sb[i])
		}
	}
}

func TestProcedural_Bounds(t *testing.T) {
	p := NewProcedural(ProceduralConfig{Seed: 3, Size: 512})
	if _, ok := p.AltAt(mathx.V2(-1, 5)); ok {
		t.Fatalf("expected out of bounds")
	}
	if _, ok := p.AltAt(mathx.V2(512, 5)); ok {
		t.Fatalf("expected out of bounds at the far edge")
	}
	h, ok := p.AltAt(mathx.V2(100, 100))
	if !ok || h < 0 || h > p.Config().MaxAlt {
		t.Fatalf("alt=%v ok=%v", h, ok)
	}
	if r := p.ChunkResources(mathx.V2(-5, -5)); r != (Resources{}) {
		t.Fatalf("resources out of bounds=%+v", r)
	}
	if _, ok := p.FindPath(mathx.V3(1, 1, 0), mathx.V3(900, 1, 0)); ok {
		t.Fatalf("path leaving the world should fail")
	}
}

func TestProcedural_SitesAreDryAndHavePlots(t *testing.T) {
	p := NewProcedural(ProceduralConfig{Seed: 5, Size: 4096, Sites: 8})
	sites := p.WorldSites()
	if len(sites) == 0 || len(sites) > 8 {
		t.Fatalf("sites=%d", len(sites))
	}
	for _, s := range sites {
		alt, ok := p.AltAt(s.Center)
		if !ok || alt < p.WaterLevel() {
			t.Fatalf("site %s center underwater: alt=%v", s.Name, alt)
		}
		got, ok := p.WorldSite(s.ID)
		if !ok || got.Name != s.Name {
			t.Fatalf("lookup %d: %+v ok=%v", s.ID, got, ok)
		}
		plaza := p.PlotTiles(s.ID, PlotPlaza)
		if len(plaza) != 1 || plaza[0] != s.Center {
			t.Fatalf("site %s plaza=%v", s.Name, plaza)
		}
		houses := p.PlotTiles(s.ID, PlotHouse)
		want := 6
		if s.Kind == SiteCamp {
			want = 3
		}
		if len(houses) != want {
			t.Fatalf("site %s (%v) houses=%d want %d", s.Name, s.Kind, len(houses), want)
		}
		path, ok := p.FindPath(s.Center.WithZ(alt), s.Center.WithZ(alt))
		if !ok || len(path) != 1 {
			t.Fatalf("trivial path at %s: %v ok=%v", s.Name, path, ok)
		}
	}
	if _, ok := p.WorldSite(SiteID(999)); ok {
		t.Fatalf("unknown site found")
	}
}

func TestProcedural_MutatingSitesCopyIsSafe(t *testing.T) {
	p := NewProcedural(ProceduralConfig{Seed: 9, Size: 2048, Sites: 3})
	sites := p.WorldSites()
	if len(sites) == 0 {
		t.Skip("no dry land for this seed")
	}
	sites[0].Name = "changed"
	if p.WorldSites()[0].Name == "changed" {
		t.Fatalf("WorldSites exposed internal slice")
	}
}
