// Package npcai is the behaviour library and scheduler that drive rtsim NPCs.
package npcai

import (
	"fmt"

	"rtsim.ai/internal/sim/mathx"
	"rtsim.ai/internal/sim/rtsim/ai"
	"rtsim.ai/internal/sim/rtsim/data"
	"rtsim.ai/internal/sim/world"
)

// DefaultState is the per-brain local state shared by the top-level
// behaviours.
type DefaultState struct {
	SocializeTimer ai.EveryRange
	MoveHomeTimer  ai.ChanceEvery
}

func NewDefaultState() DefaultState {
	return DefaultState{
		SocializeTimer: ai.NewEveryRange(15, 30),
		MoveHomeTimer:  ai.Chance(0.5, ai.NewEveryRange(400, 2000)),
	}
}

// Brain is one NPC's root action plus its state.
type Brain struct {
	action ai.Action[DefaultState, unit]
	state  DefaultState
}

// NewBrain builds the root behaviour: think forever.
func NewBrain() *Brain {
	return &Brain{
		action: ai.Repeat(think),
		state:  NewDefaultState(),
	}
}

// Tick polls the root action once. It never completes.
func (b *Brain) Tick(ctx *ai.Ctx) {
	b.action.Tick(ctx, &b.state)
}

// Backtrace lists the labels of the branch the brain is in.
func (b *Brain) Backtrace() []string { return ai.Backtrace(b.action) }

// think picks the behaviour for the NPC's body and role. Actions queued by
// other NPCs interrupt whatever it is doing.
func think() ai.Action[DefaultState, unit] {
	body := ai.Now(func(ctx *ai.Ctx, _ *DefaultState) ai.Action[DefaultState, unit] {
		switch ctx.Npc.Body {
		case data.BodyHumanoid:
			return humanoid()
		case data.BodyBirdLarge:
			return birdLarge()
		}
		switch ctx.Npc.Role.Kind {
		case data.RoleCivilised:
			return ai.MapState(socializeTimer, socialize())
		case data.RoleMonster:
			return monster()
		default:
			return ai.Idle[DefaultState]()
		}
	})
	return ai.InterruptWith(body, func(ctx *ai.Ctx, _ *DefaultState) ai.Action[DefaultState, unit] {
		if ctx.Dialogue == nil {
			return nil
		}
		in, ok := ctx.Dialogue.Pop()
		if !ok {
			return nil
		}
		return ai.WithState[DefaultState](unit{}, in.Action)
	})
}

func humanoid() ai.Action[DefaultState, unit] {
	return ai.Choose(func(ctx *ai.Ctx, _ *DefaultState) ai.Priority[DefaultState, unit] {
		self := data.NpcActor(ctx.NpcID)
		if link, riding := ctx.Data.Links.GetMountLink(self); riding {
			if !link.IsSteering {
				return ai.Important(ai.MapState(socializeTimer, socialize()))
			}
			vehicle, ok := ctx.Data.Npc(link.Mount)
			if !ok {
				return ai.Casual(ai.Finish[DefaultState]())
			}
			switch vehicle.Body {
			case data.BodyAirBalloon, data.BodyAirship:
				return ai.Important(pilot[DefaultState](vehicle.Body))
			case data.BodySailBoat:
				return ai.Important(captain[DefaultState]())
			default:
				return ai.Casual(ai.Idle[DefaultState]())
			}
		}
		if h := ctx.Npc.Hiring; h != nil && ctx.Data.ActorExists(h.By) {
			return ai.Important(ai.InterruptWith(hired[DefaultState](h.By), reactToEvents[DefaultState]))
		}

		var action ai.Action[DefaultState, unit]
		prof, hasProf := ctx.Profession()
		switch {
		case hasProf && (prof.Kind == data.Adventurer || prof.Kind == data.Merchant):
			action = adventure()
		case hasProf && prof.Kind == data.Pirate:
			action = pirate(prof.Leader)
		case ctx.Npc.Home != nil:
			action = villager(*ctx.Npc.Home)
		default:
			action = ai.Idle[DefaultState]()
		}
		return ai.Casual(ai.InterruptWith(action, reactToEvents[DefaultState]))
	})
}

// wanderState is the heading of a wandering creature.
type wanderState struct {
	bearing mathx.Vec2
}

func (w *wanderState) turn(ctx *ai.Ctx) {
	b := w.bearing.Add(mathx.V2(rangeF(ctx.Rng, -0.1, 0.1), rangeF(ctx.Rng, -0.1, 0.1)))
	w.bearing, _ = b.Normalized()
}

// deepWater reports whether pos is off the map or well below sea level.
func deepWater(q world.Query, pos mathx.Vec2, depth float64) bool {
	alt, ok := q.AltAt(pos)
	return !ok || alt-q.WaterLevel() < -depth
}

// monster roams on foot in a slowly drifting direction, turning back at
// deep water.
func monster() ai.Action[DefaultState, unit] {
	const bearingDist = 24
	step := func() ai.Action[wanderState, unit] {
		return ai.Now(func(ctx *ai.Ctx, w *wanderState) ai.Action[wanderState, unit] {
			w.turn(ctx)
			here := ctx.Npc.WPos.XY()
			pos := here.Add(w.bearing.Scale(bearingDist))
			if ctx.World != nil && deepWater(ctx.World, pos, 10) {
				w.bearing = w.bearing.Scale(-1)
				pos = here.Add(w.bearing.Scale(bearingDist))
			}
			bearing := w.bearing
			strayed := ai.Pred(func(ctx *ai.Ctx) bool {
				return ctx.Npc.WPos.XY().DistSq(pos) > (bearingDist+5)*(bearingDist+5)
			})
			return ai.Debugf(ai.Discard(ai.StopIf(goto2D[wanderState](pos, 0.7, 8), strayed)),
				func() string { return fmt.Sprintf("moving with a bearing of %.2f,%.2f", bearing.X, bearing.Y) })
		})
	}
	return ai.WithState[DefaultState](wanderState{}, ai.Repeat(step))
}

// birdLarge circles its home, now and then picking a camp to fly to.
func birdLarge() ai.Action[DefaultState, unit] {
	const bearingDist = 15
	step := func() ai.Action[wanderState, unit] {
		return ai.Now(func(ctx *ai.Ctx, w *wanderState) ai.Action[wanderState, unit] {
			w.turn(ctx)
			here := ctx.Npc.WPos.XY()
			pos := here.Add(w.bearing.Scale(bearingDist))
			if ctx.World == nil {
				return ai.Idle[wanderState]()
			}
			if deepWater(ctx.World, pos, 120) {
				w.bearing = w.bearing.Scale(-1)
				pos = here.Add(w.bearing.Scale(bearingDist))
			}
			heightFactor := rangeF(ctx.Rng, 0.4, 0.9)
			if ctx.World.ChunkResources(here).Trees > 0.1 {
				heightFactor = 2
			}

			dest := pos
			if home := ctx.Npc.Home; home != nil {
				if sameSite(home, ctx.Npc.CurrentSite) {
					var camps []data.SiteID
					for _, id := range ctx.Data.Sites.IDs() {
						if id == *home {
							continue
						}
						if ws, ok := worldSiteOf(ctx, id); ok && ws.Kind == world.SiteCamp {
							camps = append(camps, id)
						}
					}
					if next, ok := pick(ctx.Rng, camps); ok {
						ctx.Controller.SetNewHome(&next)
					}
				} else if site, ok := ctx.Data.Sites.Get(*home); ok {
					dest = site.WPos
				}
			}

			bearing := w.bearing
			offCourse := ai.Pred(func(ctx *ai.Ctx) bool {
				return ctx.Npc.WPos.XY().DistSq(pos) > (bearingDist+5)*(bearingDist+5) ||
					dest.DistSq(pos) > dest.DistSq(here)
			})
			fly := ai.StopIf(ai.StopIf(gotoFlying[wanderState](pos, 0.2, bearingDist, flyingHeight(ctx.Npc.Body)*heightFactor), offCourse), ai.Timeout(10))
			return ai.Debugf(ai.Discard(fly),
				func() string { return fmt.Sprintf("moving with a bearing of %.2f,%.2f", bearing.X, bearing.Y) })
		})
	}
	return ai.WithState[DefaultState](wanderState{}, ai.Repeat(step))
}
