package npcai

import (
	"fmt"

	"rtsim.ai/internal/sim/mathx"
	"rtsim.ai/internal/sim/rtsim/ai"
	"rtsim.ai/internal/sim/rtsim/data"
)

// waypointDist is how close a traveller must get to an intermediate waypoint.
const waypointDist = 4

// gotoPos walks straight toward wpos until within goalDist.
func gotoPos[S any](wpos mathx.Vec3, speed, goalDist float64) ai.Action[S, unit] {
	return ai.Debugf(ai.Func(func(ctx *ai.Ctx, _ *S) (unit, bool) {
		if ctx.Npc.WPos.DistSq(wpos) < goalDist*goalDist {
			return unit{}, true
		}
		ctx.Controller.DoGoto(wpos, speed)
		return unit{}, false
	}), func() string { return fmt.Sprintf("goto %.0f,%.0f,%.0f", wpos.X, wpos.Y, wpos.Z) })
}

// goto2D walks toward a horizontal position on the terrain surface. Targets
// off the map finish immediately.
func goto2D[S any](wpos mathx.Vec2, speed, goalDist float64) ai.Action[S, unit] {
	return ai.Now(func(ctx *ai.Ctx, _ *S) ai.Action[S, unit] {
		alt, ok := ctx.World.AltAt(wpos)
		if !ok {
			return ai.Finish[S]()
		}
		target := wpos.WithZ(alt)
		return ai.Func(func(ctx *ai.Ctx, _ *S) (unit, bool) {
			if ctx.Npc.WPos.XY().DistSq(wpos) < goalDist*goalDist {
				return unit{}, true
			}
			ctx.Controller.DoGoto(target, speed)
			return unit{}, false
		})
	})
}

// gotoFlying flies toward wpos keeping height blocks above the terrain.
func gotoFlying[S any](wpos mathx.Vec2, speed, goalDist, height float64) ai.Action[S, unit] {
	return ai.Debugf(ai.Func(func(ctx *ai.Ctx, _ *S) (unit, bool) {
		if ctx.Npc.WPos.XY().DistSq(wpos) < goalDist*goalDist {
			return unit{}, true
		}
		alt, ok := ctx.World.AltAt(wpos)
		if !ok {
			return unit{}, true
		}
		h := height
		ctx.Controller.DoGotoFlying(wpos.WithZ(alt+height), speed, &h, nil)
		return unit{}, false
	}), func() string { return fmt.Sprintf("fly to %.0f,%.0f", wpos.X, wpos.Y) })
}

// travelToPoint paths to a surface position and follows the waypoints. An
// unreachable target finishes immediately.
func travelToPoint[S any](wpos mathx.Vec2, speed float64) ai.Action[S, unit] {
	return ai.Now(func(ctx *ai.Ctx, _ *S) ai.Action[S, unit] {
		alt, ok := ctx.World.AltAt(wpos)
		if !ok {
			return ai.Finish[S]()
		}
		path, ok := ctx.World.FindPath(ctx.Npc.WPos, wpos.WithZ(alt))
		if !ok || len(path) == 0 {
			return ai.Finish[S]()
		}
		steps := make([]ai.Action[S, unit], 0, len(path))
		for i, wp := range path {
			d := float64(waypointDist)
			if i == len(path)-1 {
				d = 2
			}
			steps = append(steps, gotoPos[S](wp, speed, d))
		}
		return ai.Seq(steps...)
	})
}

func travelToSite[S any](site data.SiteID, speed float64) ai.Action[S, unit] {
	return ai.Debugf(ai.Now(func(ctx *ai.Ctx, _ *S) ai.Action[S, unit] {
		s, ok := ctx.Data.Sites.Get(site)
		if !ok {
			return ai.Finish[S]()
		}
		return travelToPoint[S](s.WPos, speed)
	}), func() string { return fmt.Sprintf("travel to site %d", site) })
}

// gotoActor walks up to tgt. It finishes once close, or if tgt is gone.
func gotoActor[S any](tgt data.Actor, goalDist float64) ai.Action[S, unit] {
	return ai.Func(func(ctx *ai.Ctx, _ *S) (unit, bool) {
		pos, ok := ctx.Data.ActorPos(tgt)
		if !ok || ctx.Npc.WPos.DistSq(pos) < goalDist*goalDist {
			return unit{}, true
		}
		ctx.Controller.DoGoto(pos, 1)
		return unit{}, false
	})
}

// followActor stays within distance of tgt for as long as it exists.
func followActor[S any](tgt data.Actor, distance float64) ai.Action[S, unit] {
	return ai.Debugf(ai.Func(func(ctx *ai.Ctx, _ *S) (unit, bool) {
		pos, ok := ctx.Data.ActorPos(tgt)
		if !ok {
			return unit{}, true
		}
		if ctx.Npc.WPos.DistSq(pos) > distance*distance {
			ctx.Controller.DoGoto(pos, 1)
		} else {
			ctx.Controller.DoIdle()
		}
		return unit{}, false
	}), func() string { return "following " + tgt.String() })
}
