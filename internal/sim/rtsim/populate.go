package rtsim

import (
	"math"
	"math/rand/v2"

	"rtsim.ai/internal/sim/mathx"
	"rtsim.ai/internal/sim/rtsim/data"
	"rtsim.ai/internal/sim/tuning"
	"rtsim.ai/internal/sim/world"
)

// SiteLister enumerates world sites. world.Procedural implements it.
type SiteLister interface {
	WorldSites() []world.SiteInfo
}

var townProfessions = []data.ProfessionKind{
	data.Farmer, data.Merchant, data.Guard, data.Farmer, data.Blacksmith,
	data.Chef, data.Hunter, data.Herbalist, data.Alchemist, data.Adventurer,
}

// Spawner creates the initial population of an empty registry. It is
// deterministic in its seed.
type Spawner struct {
	rng   *rand.Rand
	world world.Query
}

func NewSpawner(seed uint64, w world.Query) *Spawner {
	return &Spawner{
		rng:   rand.New(rand.NewPCG(seed, mathx.HashU64(seed, 0x706f70))),
		world: w,
	}
}

// Populate adds one rtsim site per world site with its townsfolk, a
// captained boat for every harbour, then monsters and birds in the wild.
func (sp *Spawner) Populate(d *data.Data, sites SiteLister, p tuning.WorldParams) {
	for _, ws := range sites.WorldSites() {
		sp.spawnSite(d, ws, p.NpcsPerSite)
	}
	for i := 0; i < p.Monsters; i++ {
		pos, ok := sp.landPos(p.Size)
		if !ok {
			continue
		}
		n := data.NewNpc(sp.rng.Uint32(), pos, data.BodyQuadrupedMedium, data.Role{Kind: data.RoleMonster}).
			WithPersonality(data.RandomEvilPersonality(sp.rng))
		d.CreateNpc(n)
	}
	for i := 0; i < p.Birds; i++ {
		pos, ok := sp.landPos(p.Size)
		if !ok {
			continue
		}
		d.CreateNpc(data.NewNpc(sp.rng.Uint32(), pos, data.BodyBirdLarge, data.Role{Kind: data.RoleWild}))
	}
	d.RebuildGrid()
}

func (sp *Spawner) spawnSite(d *data.Data, ws world.SiteInfo, count int) {
	wsID := ws.ID
	site := data.Site{WPos: ws.Center, Name: ws.Name, WorldSite: &wsID}
	var faction *data.FactionID
	if ws.Kind == world.SiteCamp {
		f := data.FactionID(ws.ID)
		faction = &f
		site.Faction = faction
	}
	id := d.Sites.Create(site)

	for i := 0; i < count; i++ {
		pos := sp.ground(sp.around(ws.Center, ws.Radius/2))
		var n *data.Npc
		if ws.Kind == world.SiteCamp {
			prof := &data.Profession{Kind: data.Pirate, Leader: i == 0}
			if i%4 == 3 {
				prof = &data.Profession{Kind: data.Cultist}
			}
			n = data.NewNpc(sp.rng.Uint32(), pos, data.BodyHumanoid, data.Civilised(prof)).
				WithPersonality(data.RandomEvilPersonality(sp.rng))
		} else {
			kind := townProfessions[i%len(townProfessions)]
			prof := &data.Profession{Kind: kind}
			if kind == data.Adventurer {
				prof.Level = uint32(1 + sp.rng.IntN(5))
			}
			n = data.NewNpc(sp.rng.Uint32(), pos, data.BodyHumanoid, data.Civilised(prof)).
				WithPersonality(data.RandomPersonality(sp.rng))
		}
		n.WithHome(id)
		if faction != nil {
			n.WithFaction(*faction)
		}
		d.CreateNpc(n)
	}

	if ws.Kind == world.SiteHarbour {
		sp.spawnBoat(d, ws, id)
	}
}

// spawnBoat moors a sail boat at the harbour dock with its captain aboard.
func (sp *Spawner) spawnBoat(d *data.Data, ws world.SiteInfo, home data.SiteID) {
	docks := sp.world.PlotTiles(ws.ID, world.PlotDock)
	if len(docks) == 0 {
		return
	}
	pos := docks[0].WithZ(sp.world.WaterLevel())
	boat := d.CreateNpc(data.NewNpc(sp.rng.Uint32(), pos, data.BodySailBoat, data.Role{Kind: data.RoleVehicle}))
	captain := data.NewNpc(sp.rng.Uint32(), pos, data.BodyHumanoid, data.Civilised(&data.Profession{Kind: data.Captain})).
		WithHome(home).
		WithPersonality(data.RandomGoodPersonality(sp.rng))
	cid := d.CreateNpc(captain)
	// Both were just created alive, so mounting cannot fail.
	_, _ = d.Mount(boat, data.NpcActor(cid), true)
}

func (sp *Spawner) around(c mathx.Vec2, r float64) mathx.Vec2 {
	a := sp.rng.Float64() * 2 * math.Pi
	dist := math.Sqrt(sp.rng.Float64()) * r
	return c.Add(mathx.V2(math.Cos(a), math.Sin(a)).Scale(dist))
}

func (sp *Spawner) ground(xy mathx.Vec2) mathx.Vec3 {
	alt, ok := sp.world.AltAt(xy)
	if !ok {
		alt = sp.world.WaterLevel()
	}
	return xy.WithZ(alt)
}

// landPos picks a random dry spot in a world of the given size.
func (sp *Spawner) landPos(size float64) (mathx.Vec3, bool) {
	for attempt := 0; attempt < 32; attempt++ {
		xy := mathx.V2(sp.rng.Float64()*size, sp.rng.Float64()*size)
		alt, ok := sp.world.AltAt(xy)
		if ok && alt >= sp.world.WaterLevel() {
			return xy.WithZ(alt), true
		}
	}
	return mathx.Vec3{}, false
}
