package data

import (
	"math"
	"sort"

	"rtsim.ai/internal/sim/mathx"
)

// CellSize is the edge of a spatial grid cell.
const CellSize = 32

// DayLength is the length of a day in time-of-day seconds.
const DayLength = 24 * 60 * 60

type cell struct{ x, y int }

func cellOf(p mathx.Vec2) cell {
	return cell{int(math.Floor(p.X / CellSize)), int(math.Floor(p.Y / CellSize))}
}

// Character is a player-controlled actor as seen by rtsim.
type Character struct {
	ID   CharacterID
	WPos mathx.Vec3
}

// Data is the rtsim registry: NPCs, sites, reports, mount links and clocks.
type Data struct {
	NextUID NpcID
	Npcs    map[NpcID]*Npc
	Sites   Sites
	Reports Reports
	Links   *NpcLinks

	Characters map[CharacterID]Character

	// Time is simulated seconds since world start; TimeOfDay runs faster and
	// drives day/night.
	Time      float64
	TimeOfDay float64
	Tick      uint64

	npcGrid  map[cell][]NpcID
	charGrid map[cell][]CharacterID
}

func New() *Data {
	return &Data{
		NextUID:    1,
		Npcs:       map[NpcID]*Npc{},
		Sites:      NewSites(),
		Reports:    NewReports(),
		Links:      NewNpcLinks(),
		Characters: map[CharacterID]Character{},
		npcGrid:    map[cell][]NpcID{},
		charGrid:   map[cell][]CharacterID{},
	}
}

// CreateNpc assigns the next uid and stores the NPC.
func (d *Data) CreateNpc(n *Npc) NpcID {
	if d.NextUID == 0 {
		d.NextUID = 1
	}
	id := d.NextUID
	d.NextUID++
	n.UID = id
	if n.KnownReports == nil {
		n.KnownReports = map[ReportID]struct{}{}
	}
	if n.Sentiments.Toward == nil {
		n.Sentiments = NewSentiments()
	}
	d.Npcs[id] = n
	c := cellOf(n.WPos.XY())
	d.npcGrid[c] = append(d.npcGrid[c], id)
	return id
}

// RemoveNpc deletes the NPC and every mount link it takes part in.
func (d *Data) RemoveNpc(id NpcID) bool {
	n, ok := d.Npcs[id]
	if !ok {
		return false
	}
	delete(d.Npcs, id)
	d.Links.RemoveMount(id)
	d.Links.Dismount(NpcActor(id))
	if n.Home != nil {
		if site, ok := d.Sites.Get(*n.Home); ok {
			delete(site.Population, id)
		}
	}
	c := cellOf(n.WPos.XY())
	ids := d.npcGrid[c]
	for i, other := range ids {
		if other == id {
			d.npcGrid[c] = append(ids[:i], ids[i+1:]...)
			break
		}
	}
	return true
}

func (d *Data) Npc(id NpcID) (*Npc, bool) {
	n, ok := d.Npcs[id]
	return n, ok
}

// NpcIDs returns every NPC id in ascending order.
func (d *Data) NpcIDs() []NpcID {
	out := make([]NpcID, 0, len(d.Npcs))
	for id := range d.Npcs {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (d *Data) alive(id NpcID) bool {
	n, ok := d.Npcs[id]
	return ok && !n.IsDead()
}

// ActorExists reports whether the actor is a living NPC or a present character.
func (d *Data) ActorExists(a Actor) bool {
	switch a.Kind {
	case ActorNpc:
		return d.alive(a.Npc)
	case ActorCharacter:
		_, ok := d.Characters[a.Character]
		return ok
	}
	return false
}

// ActorPos returns the world position of a living actor.
func (d *Data) ActorPos(a Actor) (mathx.Vec3, bool) {
	switch a.Kind {
	case ActorNpc:
		if n, ok := d.Npcs[a.Npc]; ok && !n.IsDead() {
			return n.WPos, true
		}
	case ActorCharacter:
		if c, ok := d.Characters[a.Character]; ok {
			return c.WPos, true
		}
	}
	return mathx.Vec3{}, false
}

// Mount links rider to mount after validating every invariant.
func (d *Data) Mount(mount NpcID, rider Actor, steering bool) (MountLinkID, error) {
	return d.Links.AddMounting(mount, rider, steering, d.alive)
}

func (d *Data) SetCharacter(c Character) { d.Characters[c.ID] = c }

func (d *Data) RemoveCharacter(id CharacterID) {
	delete(d.Characters, id)
	d.Links.Dismount(CharacterActor(id))
}

// RebuildGrid reindexes NPC and character positions and site populations.
// Call it once per tick before any parallel reader runs.
func (d *Data) RebuildGrid() {
	clear(d.npcGrid)
	clear(d.charGrid)
	for _, site := range d.Sites.Entries {
		clear(site.Population)
	}
	for _, id := range d.NpcIDs() {
		n := d.Npcs[id]
		c := cellOf(n.WPos.XY())
		d.npcGrid[c] = append(d.npcGrid[c], id)
		if n.Home != nil {
			if site, ok := d.Sites.Get(*n.Home); ok && !n.IsDead() {
				if site.Population == nil {
					site.Population = map[NpcID]struct{}{}
				}
				site.Population[id] = struct{}{}
			}
		}
	}
	ids := make([]CharacterID, 0, len(d.Characters))
	for id := range d.Characters {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		c := cellOf(d.Characters[id].WPos.XY())
		d.charGrid[c] = append(d.charGrid[c], id)
	}
}

// Nearby returns living actors strictly within radius of wpos, excluding
// self. Results are deterministic for a given grid.
func (d *Data) Nearby(self *NpcID, wpos mathx.Vec3, radius float64) []Actor {
	var out []Actor
	rSq := radius * radius
	c := cellOf(wpos.XY())
	span := max(int(math.Ceil(radius/CellSize)), 1)
	for dx := -span; dx <= span; dx++ {
		for dy := -span; dy <= span; dy++ {
			k := cell{c.x + dx, c.y + dy}
			for _, id := range d.npcGrid[k] {
				if self != nil && *self == id {
					continue
				}
				n, ok := d.Npcs[id]
				if !ok || n.IsDead() || n.WPos.DistSq(wpos) >= rSq {
					continue
				}
				out = append(out, NpcActor(id))
			}
			for _, id := range d.charGrid[k] {
				ch, ok := d.Characters[id]
				if ok && ch.WPos.DistSq(wpos) < rSq {
					out = append(out, CharacterActor(id))
				}
			}
		}
	}
	return out
}

// IsDark reports whether it is night at the current time of day.
func (d *Data) IsDark() bool { return DayPeriodAt(d.TimeOfDay).IsDark() }
