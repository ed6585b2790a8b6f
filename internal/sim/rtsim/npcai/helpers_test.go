package npcai

import (
	"math/rand/v2"

	"rtsim.ai/internal/sim/mathx"
	"rtsim.ai/internal/sim/rtsim/ai"
	"rtsim.ai/internal/sim/rtsim/data"
	"rtsim.ai/internal/sim/world"
)

// flatWorld is a dry plain at altitude zero where every point is reachable
// in a straight line.
type flatWorld struct {
	sites map[world.SiteID]world.SiteInfo
	rain  bool
}

func (w flatWorld) AltAt(mathx.Vec2) (float64, bool)          { return 0, true }
func (w flatWorld) WaterLevel() float64                       { return -10 }
func (w flatWorld) ChunkResources(mathx.Vec2) world.Resources { return world.Resources{} }
func (w flatWorld) IsRaining(mathx.Vec2, float64) bool        { return w.rain }

func (w flatWorld) WorldSite(id world.SiteID) (world.SiteInfo, bool) {
	s, ok := w.sites[id]
	return s, ok
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

// testTown registers a world site with a plaza, a tavern and a house, and
// the matching rtsim site.
func testTown(d *data.Data, w flatWorld, center mathx.Vec2) data.SiteID {
	wid := world.SiteID(len(w.sites) + 1)
	w.sites[wid] = world.SiteInfo{
		ID: wid, Kind: world.SiteTown, Name: "Testholm", Center: center, Radius: 64,
		Plots: []world.Plot{
			{Kind: world.PlotPlaza, Door: center, Tiles: []mathx.Vec2{center}},
			{Kind: world.PlotTavern, Door: center.Add(mathx.V2(20, 0)), Tiles: []mathx.Vec2{center.Add(mathx.V2(20, 0))}},
			{Kind: world.PlotHouse, Door: center.Add(mathx.V2(0, 20)), Tiles: []mathx.Vec2{center.Add(mathx.V2(0, 20))}},
		},
	}
	return d.Sites.Create(data.Site{WPos: center, Name: "Testholm", WorldSite: &wid})
}

func newFlatWorld() flatWorld {
	return flatWorld{sites: map[world.SiteID]world.SiteInfo{}}
}

func newCtx(d *data.Data, w world.Query, id data.NpcID) *ai.Ctx {
	n, _ := d.Npc(id)
	return &ai.Ctx{
		NpcID:        id,
		Npc:          n,
		Data:         d,
		World:        w,
		Controller:   &data.Controller{},
		Inbox:        &data.Inbox{},
		Sentiments:   &data.Sentiments{},
		KnownReports: map[data.ReportID]struct{}{},
		Dialogue:     &ai.DialogueQueue{},
		Rng:          rand.New(rand.NewPCG(1, 2)),
		Dt:           1,
		Settings:     ai.DefaultSettings(),
	}
}

func step(ctx *ai.Ctx) {
	ctx.Time += ctx.Dt
	ctx.TimeOfDay += ctx.Dt
}

func actionsOf(c *data.Controller, kind data.NpcActionKind) []data.NpcAction {
	var out []data.NpcAction
	for _, a := range c.Actions {
		if a.Kind == kind {
			out = append(out, a)
		}
	}
	return out
}

func wildCritter(d *data.Data, seed uint32, mode data.SimulationMode) data.NpcID {
	n := data.NewNpc(seed, mathx.V3(10, 10, 0), data.BodyQuadrupedSmall, data.Role{Kind: data.RoleWild})
	n.Mode = mode
	return d.CreateNpc(n)
}
