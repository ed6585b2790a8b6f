package world

import (
	"fmt"
	"math"

	opensimplex "github.com/ojrac/opensimplex-go"

	"rtsim.ai/internal/sim/mathx"
)

type ProceduralConfig struct {
	Seed       int64
	Size       float64 // world extent in blocks along both axes
	Sites      int
	WaterLevel float64
	MaxAlt     float64
}

func (c *ProceduralConfig) applyDefaults() {
	if c.Size <= 0 {
		c.Size = 4096
	}
	if c.Sites <= 0 {
		c.Sites = 8
	}
	if c.MaxAlt <= 0 {
		c.MaxAlt = 400
	}
	if c.WaterLevel <= 0 {
		c.WaterLevel = c.MaxAlt * 0.3
	}
}

// Procedural is an in-memory world backed by layered simplex noise. It is
// immutable after construction and safe for concurrent readers.
type Procedural struct {
	cfg ProceduralConfig

	altNoise   opensimplex.Noise
	treeNoise  opensimplex.Noise
	rainNoise  opensimplex.Noise
	vegeNoise  opensimplex.Noise
	sites      []SiteInfo
	siteByID   map[SiteID]int
	pathStride float64
}

func NewProcedural(cfg ProceduralConfig) *Procedural {
	cfg.applyDefaults()
	p := &Procedural{
		cfg:        cfg,
		altNoise:   opensimplex.NewNormalized(cfg.Seed),
		treeNoise:  opensimplex.NewNormalized(cfg.Seed + 1),
		rainNoise:  opensimplex.NewNormalized(cfg.Seed + 2),
		vegeNoise:  opensimplex.NewNormalized(cfg.Seed + 3),
		siteByID:   map[SiteID]int{},
		pathStride: 24,
	}
	p.placeSites()
	return p
}

func (p *Procedural) Config() ProceduralConfig { return p.cfg }

func (p *Procedural) inBounds(pos mathx.Vec2) bool {
	return pos.X >= 0 && pos.Y >= 0 && pos.X < p.cfg.Size && pos.Y < p.cfg.Size
}

func (p *Procedural) AltAt(pos mathx.Vec2) (float64, bool) {
	if !p.inBounds(pos) {
		return 0, false
	}
	h := octaveNoise(p.altNoise, pos.X, pos.Y, 4, 1.0/1024, 0.5)
	return h * p.cfg.MaxAlt, true
}

func (p *Procedural) WaterLevel() float64 { return p.cfg.WaterLevel }

func (p *Procedural) ChunkResources(pos mathx.Vec2) Resources {
	alt, ok := p.AltAt(pos)
	if !ok {
		return Resources{}
	}
	if alt < p.cfg.WaterLevel {
		return Resources{Water: true}
	}
	return Resources{
		Trees:      octaveNoise(p.treeNoise, pos.X, pos.Y, 3, 1.0/256, 0.5),
		Vegetation: octaveNoise(p.vegeNoise, pos.X, pos.Y, 2, 1.0/128, 0.5),
	}
}

func (p *Procedural) IsRaining(pos mathx.Vec2, time float64) bool {
	return p.rainNoise.Eval3(pos.X/2048, pos.Y/2048, time/900) > 0.68
}

func (p *Procedural) WorldSite(id SiteID) (SiteInfo, bool) {
	i, ok := p.siteByID[id]
	if !ok {
		return SiteInfo{}, false
	}
	return p.sites[i], true
}

func (p *Procedural) WorldSites() []SiteInfo {
	out := make([]SiteInfo, len(p.sites))
	copy(out, p.sites)
	return out
}

func (p *Procedural) PlotTiles(id SiteID, kinds ...PlotKind) []mathx.Vec2 {
	site, ok := p.WorldSite(id)
	if !ok {
		return nil
	}
	var out []mathx.Vec2
	for _, plot := range site.Plots {
		for _, k := range kinds {
			if plot.Kind == k {
				out = append(out, plot.Door)
				break
			}
		}
	}
	return out
}

// FindPath walks a straight line in fixed strides, snapping each waypoint to
// the terrain. Any waypoint outside the world or below water makes the target
// unreachable.
func (p *Procedural) FindPath(from, to mathx.Vec3) ([]mathx.Vec3, bool) {
	if !p.inBounds(from.XY()) || !p.inBounds(to.XY()) {
		return nil, false
	}
	d := to.XY().Sub(from.XY())
	dist := d.Len()
	steps := int(math.Ceil(dist / p.pathStride))
	if steps < 1 {
		steps = 1
	}
	out := make([]mathx.Vec3, 0, steps)
	for i := 1; i <= steps; i++ {
		t := float64(i) / float64(steps)
		xy := from.XY().Add(d.Scale(t))
		alt, ok := p.AltAt(xy)
		if !ok || alt < p.cfg.WaterLevel {
			return nil, false
		}
		out = append(out, xy.WithZ(alt))
	}
	return out, true
}

func (p *Procedural) placeSites() {
	margin := p.cfg.Size * 0.05
	span := p.cfg.Size - 2*margin
	minSpacing := p.cfg.Size / (math.Sqrt(float64(p.cfg.Sites)) * 2)
	for i := 0; i < p.cfg.Sites; i++ {
		for attempt := 0; attempt < 64; attempt++ {
			h := mathx.Hash2(p.cfg.Seed, i, attempt)
			center := mathx.V2(
				margin+mathx.Unit(h)*span,
				margin+mathx.Unit(mathx.HashU64(h, 1))*span,
			)
			alt, ok := p.AltAt(center)
			if !ok || alt < p.cfg.WaterLevel+4 {
				continue
			}
			if p.tooClose(center, minSpacing) {
				continue
			}
			id := SiteID(len(p.sites) + 1)
			site := p.layoutSite(id, i, center, h)
			p.siteByID[id] = len(p.sites)
			p.sites = append(p.sites, site)
			break
		}
	}
}

func (p *Procedural) tooClose(c mathx.Vec2, spacing float64) bool {
	for _, s := range p.sites {
		if s.Center.DistSq(c) < spacing*spacing {
			return true
		}
	}
	return false
}

func (p *Procedural) waterDirection(c mathx.Vec2, radius float64) (mathx.Vec2, bool) {
	for i := 0; i < 8; i++ {
		a := float64(i) * math.Pi / 4
		dir := mathx.V2(math.Cos(a), math.Sin(a))
		alt, ok := p.AltAt(c.Add(dir.Scale(radius)))
		if ok && alt < p.cfg.WaterLevel {
			return dir, true
		}
	}
	return mathx.Vec2{}, false
}

func (p *Procedural) layoutSite(id SiteID, idx int, center mathx.Vec2, h uint64) SiteInfo {
	site := SiteInfo{ID: id, Kind: SiteTown, Name: siteName(h), Center: center, Radius: 96}
	waterDir, coastal := p.waterDirection(center, 160)
	switch {
	case coastal:
		site.Kind = SiteHarbour
	case idx%5 == 4:
		site.Kind = SiteCamp
		site.Radius = 48
	}

	ring := func(kind PlotKind, n int, r float64, phase float64) {
		for j := 0; j < n; j++ {
			a := phase + float64(j)*2*math.Pi/float64(n)
			door := center.Add(mathx.V2(math.Cos(a), math.Sin(a)).Scale(r))
			site.Plots = append(site.Plots, Plot{Kind: kind, Door: door, Tiles: plotTiles(door)})
		}
	}

	site.Plots = append(site.Plots, Plot{Kind: PlotPlaza, Door: center, Tiles: plotTiles(center)})
	if site.Kind == SiteCamp {
		ring(PlotHouse, 3, 20, 0)
		ring(PlotTavern, 1, 12, math.Pi)
		ring(PlotHideout, 1, 16, math.Pi/2)
		return site
	}
	ring(PlotTavern, 1, 24, 0)
	ring(PlotWorkshop, 1, 24, math.Pi)
	ring(PlotHouse, 6, 48, math.Pi/6)
	ring(PlotField, 2, 80, math.Pi/2)
	if idx%3 == 0 {
		ring(PlotArena, 1, 64, -math.Pi/2)
	}
	if coastal {
		door := center.Add(waterDir.Scale(120))
		site.Plots = append(site.Plots, Plot{Kind: PlotDock, Door: door, Tiles: plotTiles(door)})
	}
	return site
}

func plotTiles(door mathx.Vec2) []mathx.Vec2 {
	return []mathx.Vec2{
		door,
		door.Add(mathx.V2(4, 0)),
		door.Add(mathx.V2(0, 4)),
		door.Add(mathx.V2(4, 4)),
	}
}

var (
	namePrefixes = []string{"Ash", "Bel", "Cor", "Dun", "Eld", "Fen", "Gal", "Hol", "Ira", "Kel", "Mor", "Sol"}
	nameSuffixes = []string{"ford", "holm", "mere", "wick", "stead", "gate", "haven", "by"}
)

func siteName(h uint64) string {
	return fmt.Sprintf("%s%s", namePrefixes[h%uint64(len(namePrefixes))], nameSuffixes[(h>>8)%uint64(len(nameSuffixes))])
}

// octaveNoise layers normalized noise; the result stays in [0, 1].
func octaveNoise(noise opensimplex.Noise, x, y float64, octaves int, frequency, persistence float64) float64 {
	total := 0.0
	amplitude := 1.0
	maxVal := 0.0
	for i := 0; i < octaves; i++ {
		total += noise.Eval2(x*frequency, y*frequency) * amplitude
		maxVal += amplitude
		amplitude *= persistence
		frequency *= 2
	}
	return total / maxVal
}
