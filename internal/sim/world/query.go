package world

import "rtsim.ai/internal/sim/mathx"

// SiteID identifies a generated world site (town, camp, dock...).
type SiteID uint64

type SiteKind uint8

const (
	SiteTown SiteKind = iota + 1
	SiteCamp
	SiteHarbour
)

func (k SiteKind) String() string {
	switch k {
	case SiteTown:
		return "town"
	case SiteCamp:
		return "camp"
	case SiteHarbour:
		return "harbour"
	default:
		return "unknown"
	}
}

type PlotKind uint8

const (
	PlotHouse PlotKind = iota + 1
	PlotTavern
	PlotWorkshop
	PlotDock
	PlotArena
	PlotField
	PlotPlaza
	PlotHideout
)

func (k PlotKind) String() string {
	switch k {
	case PlotHouse:
		return "house"
	case PlotTavern:
		return "tavern"
	case PlotWorkshop:
		return "workshop"
	case PlotDock:
		return "dock"
	case PlotArena:
		return "arena"
	case PlotField:
		return "field"
	case PlotPlaza:
		return "plaza"
	case PlotHideout:
		return "hideout"
	default:
		return "unknown"
	}
}

// Plot is a building lot. Door is where NPCs enter it; Tiles are spots
// inside it, in a fixed order per kind (for taverns: door, stage, chairs, bar).
type Plot struct {
	Kind  PlotKind
	Door  mathx.Vec2
	Tiles []mathx.Vec2
}

type SiteInfo struct {
	ID     SiteID
	Kind   SiteKind
	Name   string
	Center mathx.Vec2
	Radius float64
	Plots  []Plot
}

// Resources is the per-chunk density of gatherable material, each in [0, 1].
type Resources struct {
	Trees      float64
	Vegetation float64
	Water      bool
}

// Terrain answers height and surface questions. Positions outside the world
// report ok=false.
type Terrain interface {
	AltAt(pos mathx.Vec2) (alt float64, ok bool)
	WaterLevel() float64
	ChunkResources(pos mathx.Vec2) Resources
	IsRaining(pos mathx.Vec2, time float64) bool
}

// Sites resolves world sites. Unknown ids return ok=false.
type Sites interface {
	WorldSite(id SiteID) (SiteInfo, bool)
	// PlotTiles returns the door positions of every plot of the given kinds,
	// in plot declaration order.
	PlotTiles(id SiteID, kinds ...PlotKind) []mathx.Vec2
}

// Pather finds walkable routes. An unreachable target returns ok=false.
type Pather interface {
	FindPath(from, to mathx.Vec3) (waypoints []mathx.Vec3, ok bool)
}

// Query is the read-only world surface the AI core consumes. Implementations
// must be safe for concurrent readers.
type Query interface {
	Terrain
	Sites
	Pather
}
