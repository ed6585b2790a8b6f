package npcai

import (
	"fmt"

	"rtsim.ai/internal/sim/mathx"
	"rtsim.ai/internal/sim/rtsim/ai"
	"rtsim.ai/internal/sim/rtsim/data"
	"rtsim.ai/internal/sim/world"
)

const (
	// crowdedRatio is the residents-per-house ratio above which villagers
	// consider moving away.
	crowdedRatio = 1.5
	forestScan   = 24
)

func socializeTimer(s *DefaultState) *ai.EveryRange { return &s.SocializeTimer }

// socializeFor hangs around socialising for d seconds.
func socializeFor(d float64) ai.Action[DefaultState, unit] {
	return ai.Discard(ai.StopIf(ai.MapState(socializeTimer, ai.Repeat(socialize)), ai.Timeout(d)))
}

func gatherIngredients[S any](d float64) ai.Action[S, unit] {
	return ai.Debug(holdFor[S](d, func(ctx *ai.Ctx) {
		ctx.Controller.DoGather(data.ResFruit, data.ResMushroom, data.ResPlant)
	}), "gather ingredients")
}

func huntAnimals[S any](d float64) ai.Action[S, unit] {
	return ai.Debug(holdFor[S](d, func(ctx *ai.Ctx) { ctx.Controller.DoHuntAnimals() }), "hunt animals")
}

// spiral returns cell offsets walking outward from the origin, ring by ring.
func spiral(n int) [][2]int {
	out := make([][2]int, 0, n)
	out = append(out, [2]int{0, 0})
	for r := 1; len(out) < n; r++ {
		x, y := r, -r+1
		for ; y <= r && len(out) < n; y++ {
			out = append(out, [2]int{x, y})
		}
		for x, y = r-1, r; x >= -r && len(out) < n; x-- {
			out = append(out, [2]int{x, y})
		}
		for x, y = -r, r-1; y >= -r && len(out) < n; y-- {
			out = append(out, [2]int{x, y})
		}
		for x, y = -r+1, -r; x <= r && len(out) < n; x++ {
			out = append(out, [2]int{x, y})
		}
	}
	return out
}

// findForest looks for a dense forest cell in a band around the NPC.
func findForest(ctx *ai.Ctx) (mathx.Vec2, bool) {
	if ctx.World == nil {
		return mathx.Vec2{}, false
	}
	skip := 1 + ctx.Rng.IntN(64)
	cx := mathx.FloorDiv(int(ctx.Npc.WPos.X), data.CellSize)
	cy := mathx.FloorDiv(int(ctx.Npc.WPos.Y), data.CellSize)
	for _, off := range spiral(skip + forestScan)[skip:] {
		center := mathx.V2(
			float64((cx+off[0])*data.CellSize+data.CellSize/2),
			float64((cy+off[1])*data.CellSize+data.CellSize/2),
		)
		if r := ctx.World.ChunkResources(center); r.Trees > 0.75 && r.Vegetation > 0.5 {
			return center, true
		}
	}
	return mathx.Vec2{}, false
}

func randomPlotDoor(ctx *ai.Ctx, site data.SiteID, kind world.PlotKind) (mathx.Vec2, bool) {
	p, ok := pick(ctx.Rng, plotsOf(ctx, site, kind))
	return p.Door, ok
}

func findFarm(ctx *ai.Ctx, site data.SiteID) (mathx.Vec2, bool) {
	return randomPlotDoor(ctx, site, world.PlotField)
}

func choosePlaza(ctx *ai.Ctx, site data.SiteID) (mathx.Vec2, bool) {
	p, ok := pick(ctx.Rng, plotsOf(ctx, site, world.PlotPlaza))
	if !ok {
		return mathx.Vec2{}, false
	}
	if t, ok := pick(ctx.Rng, p.Tiles); ok {
		return t, true
	}
	return p.Door, true
}

func popRatio(ctx *ai.Ctx, id data.SiteID) (float64, bool) {
	site, ok := ctx.Data.Sites.Get(id)
	if !ok {
		return 0, false
	}
	houses := len(plotsOf(ctx, id, world.PlotHouse))
	if houses == 0 {
		return 0, false
	}
	return float64(len(site.Population)) / float64(houses), true
}

// considerMoving proposes a less crowded site when home is overcrowded.
func considerMoving(ctx *ai.Ctx, st *DefaultState) (data.SiteID, bool) {
	if !st.MoveHomeTimer.Should(ctx) {
		return 0, false
	}
	home := ctx.Npc.Home
	if home == nil || !sameSite(home, ctx.Npc.CurrentSite) {
		return 0, false
	}
	homeRatio, ok := popRatio(ctx, *home)
	if !ok || homeRatio <= crowdedRatio {
		return 0, false
	}
	cands := sitesByDistance(ctx, ctx.Npc.WPos.XY(), func(id data.SiteID, _ *data.Site) bool {
		if id == *home {
			return false
		}
		r, ok := popRatio(ctx, id)
		return ok && r < homeRatio
	})
	if len(cands) == 0 {
		return 0, false
	}
	return cands[0], true
}

// shelter walks to a house in site, waits there until done reports true and
// then says goodbye.
func shelter(site data.SiteID, enter, leave, label string, done ai.Predicate) ai.Action[DefaultState, unit] {
	return ai.Debug(ai.Now(func(ctx *ai.Ctx, _ *DefaultState) ai.Action[DefaultState, unit] {
		house, ok := randomPlotDoor(ctx, site, world.PlotHouse)
		if !ok {
			return ai.Finish[DefaultState]()
		}
		stay := ai.Seq(
			sayAloud[DefaultState](enter),
			ai.Debug(travelToPoint[DefaultState](house, 0.65), "walk to house"),
			ai.Debug(ai.MapState(socializeTimer, ai.Repeat(socialize)), "wait in house"),
		)
		return ai.Then(ai.StopIf(stay, done), sayAloud[DefaultState](leave))
	}), label)
}

func arena(plot world.Plot) ai.Action[DefaultState, unit] {
	return ai.Now(func(ctx *ai.Ctx, _ *DefaultState) ai.Action[DefaultState, unit] {
		const standDist, standWidth, standLength = 16, 4, 8
		wait := rangeF(ctx.Rng, 100, 300)
		c := plot.Door
		w := float64(ctx.Rng.IntN(standWidth))
		l := rangeF(ctx.Rng, -standLength, standLength)
		var seat mathx.Vec2
		switch ctx.Rng.IntN(4) {
		case 0:
			seat = mathx.V2(c.X-standDist+w, c.Y+l)
		case 1:
			seat = mathx.V2(c.X+standDist-w, c.Y+l)
		case 2:
			seat = mathx.V2(c.X+l, c.Y-standDist+w)
		default:
			seat = mathx.V2(c.X+l, c.Y+standDist-w)
		}
		var look *mathx.Vec2
		if d, ok := c.Sub(seat).Normalized(); ok {
			look = &d
		}
		watch := func() ai.Action[DefaultState, unit] {
			return ai.Choose(func(ctx *ai.Ctx, _ *DefaultState) ai.Priority[DefaultState, unit] {
				switch {
				case ctx.Rng.Float64() < 0.3:
					return ai.Casual(holdFor[DefaultState](5, func(ctx *ai.Ctx) { ctx.Controller.DoCheer(look) }))
				case ctx.Rng.Float64() < 0.15:
					return ai.Casual(holdFor[DefaultState](5, func(ctx *ai.Ctx) { ctx.Controller.DoDance(look) }))
				default:
					return ai.Casual(holdFor[DefaultState](15, func(ctx *ai.Ctx) { ctx.Controller.DoSit(look, nil) }))
				}
			})
		}
		return ai.Seq(
			sayAloud[DefaultState]("npc-speech-arena"),
			ai.Debug(goto2D[DefaultState](seat, 0.6, 1), "go to arena"),
			ai.Discard(ai.StopIf(ai.Repeat(watch), ai.Timeout(wait))),
		)
	})
}

type tavernState struct {
	last  int
	timer ai.EveryRange
}

func tavernTimer(s *tavernState) *ai.EveryRange { return &s.timer }

func tileOr(p world.Plot, i int) mathx.Vec2 {
	if i < len(p.Tiles) {
		return p.Tiles[i]
	}
	return p.Door
}

// tavern moves between the stage, a chair of the NPC's own and the bar,
// never doing the same thing twice in a row.
func tavern(plot world.Plot) ai.Action[DefaultState, unit] {
	return ai.Debug(ai.Now(func(ctx *ai.Ctx, _ *DefaultState) ai.Action[DefaultState, unit] {
		wait := rangeF(ctx.Rng, 100, 300)
		stage, chair, bar := tileOr(plot, 1), tileOr(plot, 2), tileOr(plot, 3)
		visit := func() ai.Action[tavernState, unit] {
			return ai.Choose(func(ctx *ai.Ctx, st *tavernState) ai.Priority[tavernState, unit] {
				var opts []int
				for i := 0; i < 3; i++ {
					if i != st.last {
						opts = append(opts, i)
					}
				}
				choice, _ := pick(ctx.Rng, opts)
				st.last = choice
				switch choice {
				case 0:
					spot := stage.Add(mathx.V2(rangeF(ctx.Rng, 0, 4), rangeF(ctx.Rng, 0, 4)))
					return ai.Casual(ai.Debug(ai.Then(
						goto2D[tavernState](spot, walkingSpeed, 1),
						danceFor[tavernState](rangeF(ctx.Rng, 20, 30)),
					), "dancing on the stage"))
				case 1:
					d := rangeF(ctx.Rng, 30, 60)
					return ai.Casual(ai.Debugf(ai.Then(
						goto2D[tavernState](chair, walkingSpeed, 1),
						ai.Now(func(ctx *ai.Ctx, _ *tavernState) ai.Action[tavernState, unit] {
							seat := ctx.Npc.WPos
							return holdFor[tavernState](d, func(ctx *ai.Ctx) { ctx.Controller.DoSit(nil, &seat) })
						}),
					), func() string { return fmt.Sprintf("sitting in a chair at %.0f %.0f", chair.X, chair.Y) }))
				default:
					return ai.Casual(ai.Debug(ai.Then(
						goto2D[tavernState](bar, walkingSpeed, 1),
						ai.Discard(ai.StopIf(ai.MapState(tavernTimer, ai.Repeat(socialize)), ai.Timeout(rangeF(ctx.Rng, 10, 25)))),
					), "at the bar"))
				}
			})
		}
		inside := ai.WithState[DefaultState](
			tavernState{last: -1, timer: ai.NewEveryRange(5, 10)},
			ai.Discard(ai.StopIf(ai.Repeat(visit), ai.Timeout(wait))),
		)
		return ai.Then(travelToPoint[DefaultState](plot.Door.Add(mathx.V2(0.5, 0.5)), 0.8), inside)
	}), "at the tavern")
}

// funActivities lists the leisure options the visited site offers.
func funActivities(ctx *ai.Ctx, site data.SiteID) []ai.Action[DefaultState, unit] {
	var out []ai.Action[DefaultState, unit]
	if arenas := plotsOf(ctx, site, world.PlotArena); len(arenas) > 0 {
		out = append(out, arena(arenas[0]))
	}
	if t, ok := pick(ctx.Rng, plotsOf(ctx, site, world.PlotTavern)); ok {
		out = append(out, tavern(t))
	}
	return out
}

func profession(ctx *ai.Ctx, site data.SiteID) (ai.Action[DefaultState, unit], bool) {
	prof, ok := ctx.Profession()
	if !ok {
		return nil, false
	}
	switch {
	case prof.Kind == data.Herbalist && ctx.Rng.Float64() < 0.8:
		forest, ok := findForest(ctx)
		if !ok {
			return nil, false
		}
		return ai.Then(
			ai.Debug(travelToPoint[DefaultState](forest, 0.5), "walk to forest"),
			gatherIngredients[DefaultState](rangeF(ctx.Rng, 10, 30)),
		), true
	case prof.Kind == data.Farmer && ctx.Rng.Float64() < 0.8:
		farm, ok := findFarm(ctx, site)
		if !ok {
			return nil, false
		}
		return ai.Then(
			ai.Debug(travelToPoint[DefaultState](farm, 0.5), "walk to farm"),
			gatherIngredients[DefaultState](rangeF(ctx.Rng, 30, 120)),
		), true
	case prof.Kind == data.Hunter && ctx.Rng.Float64() < 0.8:
		forest, ok := findForest(ctx)
		if !ok {
			return nil, false
		}
		return ai.Seq(
			sayAloud[DefaultState]("npc-speech-start_hunting"),
			ai.Debug(travelToPoint[DefaultState](forest, 0.75), "walk to forest"),
			huntAnimals[DefaultState](rangeF(ctx.Rng, 30, 60)),
		), true
	case prof.Kind == data.Guard && ctx.Rng.Float64() < 0.7:
		plaza, ok := choosePlaza(ctx, site)
		if !ok {
			return nil, false
		}
		return ai.InterruptWith(ai.Debug(travelToPoint[DefaultState](plaza, 0.4), "patrol"),
			func(ctx *ai.Ctx, _ *DefaultState) ai.Action[DefaultState, unit] {
				if ctx.Rng.Float64() < 0.0003 {
					return sayAloud[DefaultState]("npc-speech-guard_thought")
				}
				return nil
			}), true
	case prof.Kind == data.Merchant && ctx.Rng.Float64() < 0.8:
		sell := func() ai.Action[DefaultState, unit] {
			return ai.Then(ai.Just(func(ctx *ai.Ctx, _ *DefaultState) {
				if ctx.Rng.Float64() < 0.3 {
					if other, ok := pick(ctx.Rng, ctx.Data.Nearby(&ctx.NpcID, ctx.Npc.WPos, 8)); ok {
						ctx.Controller.Say(other, data.Localized("npc-speech-merchant_sell_directed"))
						return
					}
				}
				ctx.Controller.Say(data.Actor{}, data.Localized("npc-speech-merchant_sell_undirected"))
			}), ai.IdleFor[DefaultState](8))
		}
		return ai.Debug(ai.Discard(ai.StopIf(ai.Repeat(sell), ai.Timeout(60))), "sell wares"), true
	case prof.Kind == data.Chef && ctx.Rng.Float64() < 0.8:
		t, ok := pick(ctx.Rng, plotsOf(ctx, site, world.PlotTavern))
		if !ok {
			return nil, false
		}
		bar := tileOr(t, 3)
		var face *mathx.Vec2
		if d, ok := t.Door.Sub(bar).Normalized(); ok {
			face = &d
		}
		return ai.Debug(ai.Seq(
			travelToPoint[DefaultState](t.Door, 0.5),
			goto2D[DefaultState](bar.Add(mathx.V2(0.5, 0.5)), walkingSpeed, 2),
			holdFor[DefaultState](60, func(ctx *ai.Ctx) { ctx.Controller.DoDance(face) }),
		), "cook food"), true
	}
	return nil, false
}

// villager is the everyday routine of a settled NPC visiting site: sleep
// when it is dark, shelter from rain, have fun on evenings and rest days,
// work a profession, or stroll between plazas.
func villager(site data.SiteID) ai.Action[DefaultState, unit] {
	return ai.Debugf(ai.Choose(func(ctx *ai.Ctx, st *DefaultState) ai.Priority[DefaultState, unit] {
		if dest, ok := considerMoving(ctx, st); ok {
			name, hasName := siteName(ctx, &dest)
			return ai.Important(ai.Seq(
				ai.Just(func(ctx *ai.Ctx, _ *DefaultState) {
					if hasName {
						ctx.Controller.Say(data.Actor{}, data.LocalizedWith("npc-speech-migrating", map[string]string{"site": name}))
					}
				}),
				travelToSite[DefaultState](dest, 0.5),
				ai.Just(func(ctx *ai.Ctx, _ *DefaultState) { ctx.Controller.SetNewHome(&dest) }),
			))
		}

		period := data.DayPeriodAt(ctx.TimeOfDay)
		freeTime := data.Day(ctx.TimeOfDay)%6 == 0 || period == data.Evening
		guard := isProfession(ctx.Npc, data.Guard)
		raining := ctx.World != nil && ctx.World.IsRaining(ctx.Npc.WPos.XY(), ctx.Time)

		switch {
		case period.IsDark() && !guard:
			return ai.Important(shelter(site, "npc-speech-night_time", "npc-speech-day_time", "find somewhere to sleep",
				ai.Pred(func(ctx *ai.Ctx) bool { return data.DayPeriodAt(ctx.TimeOfDay).IsLight() })))
		case raining && !guard:
			return ai.Important(shelter(site, "npc-speech-seeking_shelter_rain", "npc-speech-rain_stopped", "find somewhere to wait (rain)",
				ai.Pred(func(ctx *ai.Ctx) bool { return !ctx.World.IsRaining(ctx.Npc.WPos.XY(), ctx.Time) })))
		case !guard && !isProfession(ctx.Npc, data.Chef) && (freeTime || ctx.Rng.Float64() < 0.05):
			if fun, ok := pick(ctx.Rng, funActivities(ctx, site)); ok {
				return ai.Casual(fun)
			}
		default:
			if work, ok := profession(ctx, site); ok {
				return ai.Casual(work)
			}
		}

		wait := rangeF(ctx.Rng, 30, 90)
		return ai.Casual(ai.Then(
			ai.Now(func(ctx *ai.Ctx, _ *DefaultState) ai.Action[DefaultState, unit] {
				if plaza, ok := choosePlaza(ctx, site); ok {
					return ai.Debug(travelToPoint[DefaultState](plaza, 0.5), "walk to plaza")
				}
				return ai.Finish[DefaultState]()
			}),
			ai.Debug(socializeFor(wait), "wait at plaza"),
		))
	}), func() string { return fmt.Sprintf("villager at site %d", site) })
}
