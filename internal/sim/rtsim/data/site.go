package data

import (
	"sort"

	"rtsim.ai/internal/sim/mathx"
	"rtsim.ai/internal/sim/world"
)

// Site is the rtsim view of a settlement.
type Site struct {
	ID        SiteID
	WPos      mathx.Vec2
	Name      string
	WorldSite *world.SiteID
	Faction   *FactionID

	// NearbySitesBySize lists other sites, largest first. Rebuilt on load.
	NearbySitesBySize []SiteID
	// Population counts NPCs whose home is this site. Rebuilt every tick.
	Population map[NpcID]struct{}
}

type Sites struct {
	NextID  SiteID
	Entries map[SiteID]*Site
}

func NewSites() Sites {
	return Sites{NextID: 1, Entries: map[SiteID]*Site{}}
}

func (s *Sites) Create(site Site) SiteID {
	if s.Entries == nil {
		s.Entries = map[SiteID]*Site{}
	}
	if s.NextID == 0 {
		s.NextID = 1
	}
	id := s.NextID
	s.NextID++
	site.ID = id
	if site.Population == nil {
		site.Population = map[NpcID]struct{}{}
	}
	s.Entries[id] = &site
	return id
}

func (s *Sites) Get(id SiteID) (*Site, bool) {
	site, ok := s.Entries[id]
	return site, ok
}

// IDs returns all site ids in ascending order.
func (s *Sites) IDs() []SiteID {
	out := make([]SiteID, 0, len(s.Entries))
	for id := range s.Entries {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Nearest returns the closest site within radius of wpos.
func (s *Sites) Nearest(wpos mathx.Vec2, radius float64) (SiteID, bool) {
	best, bestD := SiteID(0), radius*radius
	found := false
	for _, id := range s.IDs() {
		d := s.Entries[id].WPos.DistSq(wpos)
		if d <= bestD {
			best, bestD, found = id, d, true
		}
	}
	return best, found
}

// RebuildNearby recomputes NearbySitesBySize using the world plot count as
// size and distance as tie-breaker.
func (s *Sites) RebuildNearby(size func(*Site) int) {
	ids := s.IDs()
	for _, id := range ids {
		site := s.Entries[id]
		others := make([]SiteID, 0, len(ids)-1)
		for _, o := range ids {
			if o != id {
				others = append(others, o)
			}
		}
		sort.SliceStable(others, func(i, j int) bool {
			a, b := s.Entries[others[i]], s.Entries[others[j]]
			sa, sb := size(a), size(b)
			if sa != sb {
				return sa > sb
			}
			return a.WPos.DistSq(site.WPos) < b.WPos.DistSq(site.WPos)
		})
		site.NearbySitesBySize = others
	}
}
