package npcai

import (
	"fmt"
	"math"

	"rtsim.ai/internal/sim/mathx"
	"rtsim.ai/internal/sim/rtsim/ai"
	"rtsim.ai/internal/sim/rtsim/data"
	"rtsim.ai/internal/sim/world"
)

const (
	raidRange      = 10000
	raidMinCrew    = 3
	raidInviteDist = 6
)

// raidRecruit reports whether n is a pirate at home that could be invited
// on a raid.
func raidRecruit(n *data.Npc, home data.SiteID, faction data.FactionID) bool {
	if n.IsDead() || !sameSite(n.CurrentSite, &home) || n.Faction == nil || *n.Faction != faction || n.Hiring != nil {
		return false
	}
	p, ok := n.Profession()
	return ok && p.Kind == data.Pirate && !p.Leader
}

func recruits(ctx *ai.Ctx, home data.SiteID, faction data.FactionID) []data.NpcID {
	site, ok := ctx.Data.Sites.Get(home)
	if !ok {
		return nil
	}
	var out []data.NpcID
	for _, id := range ctx.Data.NpcIDs() {
		if _, in := site.Population[id]; !in {
			continue
		}
		if n, _ := ctx.Data.Npc(id); raidRecruit(n, home, faction) {
			out = append(out, id)
		}
	}
	return out
}

func hiredBy(ctx *ai.Ctx, site data.SiteID, leader data.Actor) []data.NpcID {
	s, ok := ctx.Data.Sites.Get(site)
	if !ok {
		return nil
	}
	var out []data.NpcID
	for _, id := range ctx.Data.NpcIDs() {
		if _, in := s.Population[id]; !in {
			continue
		}
		if n, _ := ctx.Data.Npc(id); !n.IsDead() && n.Hiring != nil && n.Hiring.By == leader {
			out = append(out, id)
		}
	}
	return out
}

// inviteToRaid walks up to one idle pirate and asks them along. The
// invitee answers from its own brain and becomes hired until the raid ends.
func inviteToRaid(home, target data.SiteID, faction data.FactionID) ai.Action[DefaultState, unit] {
	return ai.Now(func(ctx *ai.Ctx, _ *DefaultState) ai.Action[DefaultState, unit] {
		id, ok := pick(ctx.Rng, recruits(ctx, home, faction))
		if !ok {
			return ai.Idle[DefaultState]()
		}
		tgt := data.NpcActor(id)
		near := ai.Pred(func(ctx *ai.Ctx) bool {
			pos, ok := ctx.Data.ActorPos(tgt)
			return !ok || ctx.Npc.WPos.DistSq(pos) < raidInviteDist*raidInviteDist
		})
		return ai.Debug(ai.Then(
			ai.StopIf(followActor[DefaultState](tgt, 5), near),
			ai.Just(func(ctx *ai.Ctx, _ *DefaultState) {
				leader := data.NpcActor(ctx.NpcID)
				name, _ := siteName(ctx, &target)
				ctx.SayTo(id, data.LocalizedWith("npc-speech-pirate_raid", map[string]string{"site": name}),
					ai.Then(ai.IdleFor[unit](2), ai.Just(func(ctx *ai.Ctx, _ *unit) {
						ctx.Controller.Say(leader, data.Localized("npc-response-accept_hire"))
						ctx.Controller.SetNewlyHired(leader, math.Inf(1))
					})))
			}),
		), "inviting raid participant")
	})
}

// crewReady gets more likely to fire the more pirates have joined.
func crewReady(home data.SiteID, faction data.FactionID) ai.Predicate {
	return ai.Pred(func(ctx *ai.Ctx) bool {
		if _, ok := ctx.Data.Sites.Get(home); !ok {
			return true
		}
		hired := len(hiredBy(ctx, home, data.NpcActor(ctx.NpcID)))
		unhired := len(recruits(ctx, home, faction))
		if unhired == 0 {
			return true
		}
		rate := 0.0
		if hired > raidMinCrew {
			rate = float64(hired-raidMinCrew) / 1200
		}
		return ctx.Chance(rate / float64(unhired))
	})
}

func raid(home, target data.SiteID, faction data.FactionID) ai.Action[DefaultState, unit] {
	return ai.Now(func(ctx *ai.Ctx, _ *DefaultState) ai.Action[DefaultState, unit] {
		raiding := rangeF(ctx.Rng, 60, 120)
		return ai.Seq(
			ai.Debug(ai.Discard(ai.StopIf(ai.Repeat(func() ai.Action[DefaultState, unit] {
				return inviteToRaid(home, target, faction)
			}), crewReady(home, faction))), "preparing for raid"),
			ai.Debug(travelToSite[DefaultState](target, 0.8), "travel to raid site"),
			ai.Debug(ai.Discard(ai.StopIf(villager(target), ai.Timeout(raiding))), "raiding"),
			ai.Debug(travelToSite[DefaultState](home, 0.6), "traveling home from raid"),
			ai.Just(func(ctx *ai.Ctx, _ *DefaultState) {
				if ctx.Npc.Home == nil {
					return
				}
				for _, id := range hiredBy(ctx, *ctx.Npc.Home, data.NpcActor(ctx.NpcID)) {
					ctx.SendAction(id, ai.Just(func(ctx *ai.Ctx, _ *unit) { ctx.Controller.EndHiring() }))
				}
			}),
		)
	})
}

// raidTarget decides whether a pirate leader sets out on a raid now and
// where to.
func raidTarget(ctx *ai.Ctx) (home, target data.SiteID, faction data.FactionID, ok bool) {
	n := ctx.Npc
	if n.Home == nil || !sameSite(n.Home, n.CurrentSite) || n.Faction == nil {
		return 0, 0, 0, false
	}
	site, found := ctx.Data.Sites.Get(*n.Home)
	if !found || !ctx.Chance(1.0/3600) {
		return 0, 0, 0, false
	}
	var near []data.SiteID
	for _, id := range site.NearbySitesBySize {
		if s, ok := ctx.Data.Sites.Get(id); ok && s.WPos.DistSq(n.WPos.XY()) < raidRange*raidRange {
			near = append(near, id)
		}
	}
	target, ok = pick(ctx.Rng, near)
	if !ok || len(recruits(ctx, *n.Home, *n.Faction)) <= raidMinCrew {
		return 0, 0, 0, false
	}
	return *n.Home, target, *n.Faction, true
}

func pirate(leader bool) ai.Action[DefaultState, unit] {
	return ai.Choose(func(ctx *ai.Ctx, _ *DefaultState) ai.Priority[DefaultState, unit] {
		if leader {
			if home, target, faction, ok := raidTarget(ctx); ok {
				return ai.Important(raid(home, target, faction))
			}
		}
		if h := ctx.Npc.Hiring; h != nil {
			by := h.By
			return ai.Important(ai.Discard(ai.StopIf(followActor[DefaultState](by, 5), ai.Pred(func(ctx *ai.Ctx) bool {
				return ctx.Npc.Hiring == nil || ctx.Npc.Hiring.By != by
			}))))
		}
		if home := ctx.Npc.Home; home != nil {
			site := *home
			wait := rangeF(ctx.Rng, 30, 90)
			return ai.Casual(ai.Then(
				ai.Now(func(ctx *ai.Ctx, _ *DefaultState) ai.Action[DefaultState, unit] {
					p, ok := pick(ctx.Rng, plotsOf(ctx, site, world.PlotHideout))
					if !ok {
						ctx.Controller.SetNewHome(nil)
						return ai.Finish[DefaultState]()
					}
					spot, _ := pick(ctx.Rng, p.Tiles)
					return ai.Debug(travelToPoint[DefaultState](spot, 0.5), "walk to pirate hideout")
				}),
				ai.Debug(socializeFor(wait), "wait at pirate hideout"),
			))
		}
		return ai.Important(ai.Just(func(ctx *ai.Ctx, _ *DefaultState) {
			cands := sitesByDistance(ctx, ctx.Npc.WPos.XY(), func(id data.SiteID, _ *data.Site) bool {
				return hasPlot(ctx, id, world.PlotHideout)
			})
			if len(cands) > 0 {
				ctx.Controller.SetNewHome(&cands[0])
			}
		}))
	})
}

// adventure travels to a nearby town with a workshop and lives there a
// while. Merchants stay longer.
func adventure() ai.Action[DefaultState, unit] {
	return ai.Debug(ai.Choose(func(ctx *ai.Ctx, _ *DefaultState) ai.Priority[DefaultState, unit] {
		cands := sitesByDistance(ctx, ctx.Npc.WPos.XY(), func(id data.SiteID, _ *data.Site) bool {
			return hasPlot(ctx, id, world.PlotWorkshop) &&
				!sameSite(&id, ctx.Npc.CurrentSite) &&
				ctx.Rng.Float64() < 0.25
		})
		if len(cands) == 0 {
			return ai.Casual(ai.Finish[DefaultState]())
		}
		tgt := cands[0]
		stay := 60 * 3.0
		if isProfession(ctx.Npc, data.Merchant) {
			stay = 60 * 15
		}
		name, _ := siteName(ctx, &tgt)
		return ai.Important(ai.Seq(
			ai.Just(func(ctx *ai.Ctx, _ *DefaultState) {
				ctx.Controller.Say(data.Actor{}, data.LocalizedWith("npc-speech-moving_on", map[string]string{"site": name}))
			}),
			travelToSite[DefaultState](tgt, 0.6),
			ai.Discard(ai.StopIf(ai.Repeat(func() ai.Action[DefaultState, unit] { return villager(tgt) }), ai.Timeout(stay))),
		))
	}), "adventure")
}

// endHiringWith tells a former employer that the contract is over.
func endHiringWith[S any](tgt data.Actor, key string) ai.Action[S, unit] {
	return ai.Then(gotoActor[S](tgt, 2), doDialogue(tgt, func(s data.DialogueSession) ai.Action[S, unit] {
		return sayStatement[S](s, data.Localized(key))
	}))
}

// hired follows the employer until the contract ends. Expiry and falling
// out with the employer both end it early, with a farewell if the employer
// is still around.
func hired[S any](tgt data.Actor) ai.Action[S, unit] {
	follow := ai.Debugf(ai.Discard(ai.StopIf(followActor[S](tgt, 5), ai.Pred(func(ctx *ai.Ctx) bool {
		return ctx.Npc.Hiring == nil || ctx.Npc.Hiring.By != tgt
	}))), func() string { return "hired by " + tgt.String() })

	return ai.InterruptWith(follow, func(ctx *ai.Ctx, _ *S) ai.Action[S, unit] {
		h := ctx.Npc.Hiring
		if h == nil {
			return nil
		}
		if ctx.Time > h.Expires {
			ctx.Controller.EndHiring()
			if ctx.Data.ActorExists(h.By) {
				return endHiringWith[S](h.By, "npc-dialogue-hire_expired")
			}
		}
		if ctx.Sentiments.Of(h.By).Is(data.SentimentRival) {
			ctx.Controller.EndHiring()
			if ctx.Data.ActorExists(h.By) {
				return endHiringWith[S](h.By, "npc-dialogue-hire_cancelled_unhappy")
			}
		}
		return nil
	})
}

func flyingHeight(b data.Body) float64 {
	switch b {
	case data.BodyAirBalloon:
		return 60
	case data.BodyAirship:
		return 90
	case data.BodyBirdLarge:
		return 40
	}
	return 30
}

// pilot flies the steered craft between airship docks of other towns.
func pilot[S any](ship data.Body) ai.Action[S, unit] {
	return ai.Repeat(func() ai.Action[S, unit] {
		return ai.Now(func(ctx *ai.Ctx, _ *S) ai.Action[S, unit] {
			var docks []mathx.Vec2
			for _, id := range ctx.Data.Sites.IDs() {
				if sameSite(&id, ctx.Npc.CurrentSite) {
					continue
				}
				docks = append(docks, plotDoors(ctx, id, world.PlotDock)...)
			}
			station, ok := pick(ctx.Rng, docks)
			if !ok {
				return ai.Finish[S]()
			}
			return ai.Debugf(ai.Then(
				gotoFlying[S](station, 1, 50, flyingHeight(ship)),
				gotoFlying[S](station, 1, 10, 30),
			), func() string { return fmt.Sprintf("flying to dock %.0f,%.0f", station.X, station.Y) })
		})
	})
}

var neighbours = [8][2]int{{-1, -1}, {0, -1}, {1, -1}, {-1, 0}, {1, 0}, {-1, 1}, {0, 1}, {1, 1}}

// captain sails at random along neighbouring water cells.
func captain[S any]() ai.Action[S, unit] {
	return ai.Repeat(func() ai.Action[S, unit] {
		return ai.Now(func(ctx *ai.Ctx, _ *S) ai.Action[S, unit] {
			if ctx.World == nil {
				return ai.Idle[S]()
			}
			cx := mathx.FloorDiv(int(ctx.Npc.WPos.X), data.CellSize)
			cy := mathx.FloorDiv(int(ctx.Npc.WPos.Y), data.CellSize)
			var water []mathx.Vec2
			for _, n := range neighbours {
				c := mathx.V2(
					float64((cx+n[0])*data.CellSize+data.CellSize/2),
					float64((cy+n[1])*data.CellSize+data.CellSize/2),
				)
				if ctx.World.ChunkResources(c).Water {
					water = append(water, c)
				}
			}
			next, ok := pick(ctx.Rng, water)
			if !ok {
				return ai.Idle[S]()
			}
			return gotoPos[S](next.WithZ(ctx.World.WaterLevel()), 0.7, 5)
		})
	})
}
