package npcai

import (
	"math"
	"math/rand/v2"
	"sort"

	"rtsim.ai/internal/sim/mathx"
	"rtsim.ai/internal/sim/rtsim/ai"
	"rtsim.ai/internal/sim/rtsim/data"
	"rtsim.ai/internal/sim/world"
)

const walkingSpeed = 0.35

type unit = ai.Unit

func pick[T any](rng *rand.Rand, xs []T) (T, bool) {
	if len(xs) == 0 {
		var zero T
		return zero, false
	}
	return xs[rng.IntN(len(xs))], true
}

func rangeF(rng *rand.Rand, lo, hi float64) float64 {
	return lo + rng.Float64()*(hi-lo)
}

func siteName(ctx *ai.Ctx, id *data.SiteID) (string, bool) {
	if id == nil {
		return "", false
	}
	site, ok := ctx.Data.Sites.Get(*id)
	if !ok || site.Name == "" {
		return "", false
	}
	return site.Name, true
}

func worldSiteOf(ctx *ai.Ctx, id data.SiteID) (world.SiteInfo, bool) {
	site, ok := ctx.Data.Sites.Get(id)
	if !ok || site.WorldSite == nil || ctx.World == nil {
		return world.SiteInfo{}, false
	}
	return ctx.World.WorldSite(*site.WorldSite)
}

// plotDoors returns door positions of the site's plots of the given kinds.
func plotDoors(ctx *ai.Ctx, id data.SiteID, kinds ...world.PlotKind) []mathx.Vec2 {
	site, ok := ctx.Data.Sites.Get(id)
	if !ok || site.WorldSite == nil || ctx.World == nil {
		return nil
	}
	return ctx.World.PlotTiles(*site.WorldSite, kinds...)
}

func plotsOf(ctx *ai.Ctx, id data.SiteID, kind world.PlotKind) []world.Plot {
	ws, ok := worldSiteOf(ctx, id)
	if !ok {
		return nil
	}
	var out []world.Plot
	for _, p := range ws.Plots {
		if p.Kind == kind {
			out = append(out, p)
		}
	}
	return out
}

func hasPlot(ctx *ai.Ctx, id data.SiteID, kind world.PlotKind) bool {
	return len(plotsOf(ctx, id, kind)) > 0
}

var compass = [8]string{"east", "north_east", "north", "north_west", "west", "south_west", "south", "south_east"}

// directionKey names the compass direction of delta as a speech key.
func directionKey(delta mathx.Vec2) string {
	if delta.IsZero() {
		return "npc-speech-dir_here"
	}
	a := math.Atan2(delta.Y, delta.X)
	i := int(math.Round(a/(math.Pi/4))+8) % 8
	return "npc-speech-dir_" + compass[i]
}

// distanceKey buckets a distance in blocks into a speech key.
func distanceKey(d float64) string {
	switch {
	case d < 150:
		return "npc-speech-dist_quite_near"
	case d < 500:
		return "npc-speech-dist_near"
	case d < 1500:
		return "npc-speech-dist_ahead"
	case d < 3000:
		return "npc-speech-dist_far"
	default:
		return "npc-speech-dist_very_far"
	}
}

func tellSiteContent(ctx *ai.Ctx, id data.SiteID) (data.Content, bool) {
	site, ok := ctx.Data.Sites.Get(id)
	if !ok {
		return data.Content{}, false
	}
	name, ok := siteName(ctx, &id)
	if !ok {
		return data.Content{}, false
	}
	delta := site.WPos.Sub(ctx.Npc.WPos.XY())
	return data.LocalizedWith("npc-speech-tell_site", map[string]string{
		"site": name,
		"dir":  directionKey(delta),
		"dist": distanceKey(delta.Len()),
	}), true
}

// nearbyNpcs filters Nearby down to NPC ids, in grid order.
func nearbyNpcs(ctx *ai.Ctx, radius float64) []data.NpcID {
	var out []data.NpcID
	for _, a := range ctx.Data.Nearby(&ctx.NpcID, ctx.Npc.WPos, radius) {
		if id, ok := a.NpcID(); ok {
			out = append(out, id)
		}
	}
	return out
}

// sitesByDistance returns site ids ordered by distance from pos.
func sitesByDistance(ctx *ai.Ctx, pos mathx.Vec2, keep func(data.SiteID, *data.Site) bool) []data.SiteID {
	ids := ctx.Data.Sites.IDs()
	out := ids[:0]
	for _, id := range ids {
		s, _ := ctx.Data.Sites.Get(id)
		if keep(id, s) {
			out = append(out, id)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, _ := ctx.Data.Sites.Get(out[i])
		b, _ := ctx.Data.Sites.Get(out[j])
		return a.WPos.DistSq(pos) < b.WPos.DistSq(pos)
	})
	return out
}

func sameSite(a, b *data.SiteID) bool {
	return a != nil && b != nil && *a == *b
}

func isProfession(n *data.Npc, kinds ...data.ProfessionKind) bool {
	k, ok := n.Role.ProfessionKind()
	if !ok {
		return false
	}
	for _, want := range kinds {
		if k == want {
			return true
		}
	}
	return false
}

// holdFor repeats a one-tick intent for d seconds.
func holdFor[S any](d float64, f func(ctx *ai.Ctx)) ai.Action[S, unit] {
	return ai.Discard(ai.StopIf(ai.Repeat(func() ai.Action[S, unit] {
		return ai.Just(func(ctx *ai.Ctx, _ *S) { f(ctx) })
	}), ai.Timeout(d)))
}

func sayAloud[S any](key string) ai.Action[S, unit] {
	return ai.Just(func(ctx *ai.Ctx, _ *S) { ctx.Controller.Say(data.Actor{}, data.Localized(key)) })
}
