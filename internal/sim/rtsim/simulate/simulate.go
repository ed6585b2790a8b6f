// Package simulate embodies rtsim NPCs between brain polls: it moves them
// toward their controller's goal, applies home and hiring changes, and ages
// their opinions.
package simulate

import (
	"math"

	"rtsim.ai/internal/sim/mathx"
	"rtsim.ai/internal/sim/rtsim/data"
	"rtsim.ai/internal/sim/world"
)

// SiteRadius is how close to a site's centre an NPC must be to count as
// being in it.
const SiteRadius = 64

// cleanupEvery is the tick interval between sentiment and report cleanups.
const cleanupEvery = 600

type Input struct {
	Tick uint64
	Time float64
	Dt   float64
	// Speed scales an NPC's movement, e.g. from buffs. Nil means 1.
	Speed func(data.NpcID) float64
}

type Result struct {
	Moved        int
	Arrived      int
	HomeChanges  int
	HiringsEnded int
	ReportsGone  int
}

// Run advances every living NPC by one tick in id order.
func Run(d *data.Data, t world.Terrain, in Input) Result {
	var res Result
	for _, id := range d.NpcIDs() {
		n := d.Npcs[id]
		if n.IsDead() {
			continue
		}
		applyHome(d, n, &res)
		applyHiring(n, in.Time, &res)

		if _, riding := d.Links.GetMountLink(data.NpcActor(id)); !riding {
			speed := 1.0
			if in.Speed != nil {
				speed = in.Speed(id)
			}
			switch move(n, t, in.Dt*speed) {
			case stepMoved:
				res.Moved++
			case stepArrived:
				res.Moved++
				res.Arrived++
			}
		}

		n.Sentiments.Decay(in.Dt)
		if in.Tick%cleanupEvery == 0 {
			n.Cleanup(&d.Reports)
		}
	}
	carryRiders(d)
	for _, id := range d.NpcIDs() {
		n := d.Npcs[id]
		if site, ok := d.Sites.Nearest(n.WPos.XY(), SiteRadius); ok {
			n.CurrentSite = &site
		} else {
			n.CurrentSite = nil
		}
	}
	if in.Tick%cleanupEvery == 0 {
		res.ReportsGone = d.Reports.Cleanup(d.TimeOfDay)
	}
	return res
}

func applyHome(d *data.Data, n *data.Npc, res *Result) {
	site, changed := n.Controller.TakeNewHome()
	if !changed {
		return
	}
	if n.Home != nil {
		if old, ok := d.Sites.Get(*n.Home); ok {
			delete(old.Population, n.UID)
		}
	}
	n.Home = site
	if site != nil {
		if s, ok := d.Sites.Get(*site); ok {
			if s.Population == nil {
				s.Population = map[data.NpcID]struct{}{}
			}
			s.Population[n.UID] = struct{}{}
		}
	}
	res.HomeChanges++
}

func applyHiring(n *data.Npc, now float64, res *Result) {
	if h, changed := n.Controller.TakeHiring(); changed {
		if h == nil && n.Hiring != nil {
			res.HiringsEnded++
		}
		n.Hiring = h
	}
	if n.Hiring != nil && n.Hiring.Expires <= now {
		n.Hiring = nil
		res.HiringsEnded++
	}
}

type step uint8

const (
	stepNone step = iota
	stepMoved
	stepArrived
)

// move walks n straight toward its goto target. Walkers stick to the
// terrain surface; flyers keep the requested height above it.
func move(n *data.Npc, t world.Terrain, dt float64) step {
	a := n.Controller.Activity
	if a == nil || dt <= 0 {
		return stepNone
	}
	if a.Kind != data.ActGoto && a.Kind != data.ActGotoFlying {
		return stepNone
	}
	speed := a.Speed
	if speed <= 0 {
		speed = 1
	}
	maxStep := n.Body.MaxSpeed() * min(speed, 1) * dt

	flying := a.Kind == data.ActGotoFlying
	from, to := n.WPos.XY(), a.WPos.XY()
	delta := to.Sub(from)
	dist := delta.Len()
	next := to
	arrived := dist <= maxStep
	if !arrived {
		dir, _ := delta.Normalized()
		next = from.Add(dir.Scale(maxStep))
		n.Dir = dir
	}

	z := n.WPos.Z
	if alt, ok := t.AltAt(next); ok {
		switch {
		case flying && a.Height != nil:
			z = alt + *a.Height
		case flying:
			z = math.Max(a.WPos.Z, alt)
		case n.Body.IsShip():
			z = math.Max(alt, t.WaterLevel())
		default:
			z = alt
		}
	} else if flying {
		z = a.WPos.Z
	} else {
		return stepNone
	}
	n.WPos = next.WithZ(z)
	if arrived {
		return stepArrived
	}
	return stepMoved
}

// carryRiders moves every rider onto its mount.
func carryRiders(d *data.Data) {
	for _, link := range d.Links.Links() {
		mount, ok := d.Npcs[link.Mount]
		if !ok {
			continue
		}
		if id, ok := link.Rider.NpcID(); ok {
			if r, ok := d.Npcs[id]; ok {
				r.WPos = mount.WPos.Add(mathx.V3(0, 0, 1))
				r.Dir = mount.Dir
			}
		}
	}
}
