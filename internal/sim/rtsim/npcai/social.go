package npcai

import (
	"rtsim.ai/internal/sim/rtsim/ai"
	"rtsim.ai/internal/sim/rtsim/data"
)

// enemyScanRadius is how far a loaded NPC looks for actors it hates.
const enemyScanRadius = 24

// talkTo answers someone who started talking to us.
func talkTo[S any](tgt data.Actor) ai.Action[S, unit] {
	return ai.Now(func(ctx *ai.Ctx, _ *S) ai.Action[S, unit] {
		switch {
		case ctx.Sentiments.Of(tgt).Is(data.SentimentEnemy):
			return ai.Just(func(ctx *ai.Ctx, _ *S) {
				ctx.Controller.Say(tgt, data.Localized("npc-speech-reject_rival"))
			})
		case tgt.Kind == data.ActorCharacter:
			return doDialogue(tgt, func(s data.DialogueSession) ai.Action[S, unit] {
				return generalDialogue[S](tgt, s)
			})
		default:
			return smalltalkTo[S](tgt)
		}
	})
}

// nearestMonster scans every NPC; monsters are rare enough for that to be fine.
func nearestMonster(ctx *ai.Ctx) (*data.Npc, bool) {
	var best *data.Npc
	bestD := 0.0
	here := ctx.Npc.WPos.XY()
	for _, id := range ctx.Data.NpcIDs() {
		n, _ := ctx.Data.Npc(id)
		if n.Role.Kind != data.RoleMonster || n.IsDead() {
			continue
		}
		d := n.WPos.XY().DistSq(here)
		if best == nil || d < bestD {
			best, bestD = n, d
		}
	}
	return best, best != nil
}

func smalltalkComment(ctx *ai.Ctx) data.Content {
	rng := ctx.Rng
	if rng.Float64() < 0.3 && ctx.Npc.CurrentSite != nil {
		if site, ok := ctx.Data.Sites.Get(*ctx.Npc.CurrentSite); ok {
			if mention, ok := pick(rng, site.NearbySitesBySize); ok {
				if c, ok := tellSiteContent(ctx, mention); ok {
					return c
				}
			}
		}
	}
	if rng.Float64() < 0.3 {
		if name, ok := siteName(ctx, ctx.Npc.CurrentSite); ok {
			return data.LocalizedWith("npc-speech-site", map[string]string{"site": name})
		}
	}
	if rng.Float64() < 0.3 {
		if m, ok := nearestMonster(ctx); ok {
			delta := m.WPos.XY().Sub(ctx.Npc.WPos.XY())
			return data.LocalizedWith("npc-speech-tell_monster", map[string]string{
				"body": "npc-speech-body_" + m.Body.String(),
				"dir":  directionKey(delta),
				"dist": distanceKey(delta.Len()),
			})
		}
	}
	if rng.Float64() < 0.6 && data.DayPeriodAt(ctx.TimeOfDay).IsDark() {
		return data.Localized("npc-speech-night")
	}
	if rng.Float64() < 0.3 && isProfession(ctx.Npc, data.Pirate) {
		return data.Localized("npc-speech-pirate")
	}
	return ctx.Npc.Personality.GenericComment(rng)
}

// smalltalkTo makes a passing remark to tgt. Conversations between NPCs are
// sometimes cut off so two chatty neighbours do not talk forever.
func smalltalkTo[S any](tgt data.Actor) ai.Action[S, unit] {
	return ai.Now(func(ctx *ai.Ctx, _ *S) ai.Action[S, unit] {
		if tgt.Kind == data.ActorNpc && ctx.Rng.Float64() < 0.2 {
			return ai.Idle[S]()
		}
		comment := smalltalkComment(ctx)
		wait := 1.5
		if tgt.Kind == data.ActorCharacter {
			wait = 0
		}
		return ai.Then(ai.IdleFor[S](wait), ai.Just(func(ctx *ai.Ctx, _ *S) {
			ctx.Controller.Say(tgt, comment)
		}))
	})
}

func danceFor[S any](d float64) ai.Action[S, unit] {
	return ai.Debug(holdFor[S](d, func(ctx *ai.Ctx) { ctx.Controller.DoDance(nil) }), "dancing")
}

// socialize occasionally dances or chats with a neighbour. Most of it is
// skipped while the NPC is only simulated.
func socialize() ai.Action[ai.EveryRange, unit] {
	return ai.Now(func(ctx *ai.Ctx, timer *ai.EveryRange) ai.Action[ai.EveryRange, unit] {
		if ctx.Npc.Mode == data.Loaded && timer.Should(ctx) && !ctx.Npc.Personality.Is(data.Introverted) {
			if ctx.Rng.Float64() < 0.15 {
				return danceFor[ai.EveryRange](6)
			}
			if other, ok := pick(ctx.Rng, ctx.Data.Nearby(&ctx.NpcID, ctx.Npc.WPos, 8)); ok {
				return ai.Then(smalltalkTo[ai.EveryRange](other), ai.IdleFor[ai.EveryRange](4))
			}
		}
		return ai.Idle[ai.EveryRange]()
	})
}

func isOutlaw(r data.Role) bool {
	k, ok := r.ProfessionKind()
	return ok && (k == data.Pirate || k == data.Cultist)
}

// canDamage reports whether an NPC with role a could fight one with role b.
func canDamage(a, b data.Role) bool {
	if a.Kind == data.RoleVehicle || b.Kind == data.RoleVehicle {
		return false
	}
	switch a.Kind {
	case data.RoleCivilised:
		if b.Kind != data.RoleCivilised {
			return true
		}
		return isOutlaw(a) != isOutlaw(b)
	case data.RoleWild:
		return b.Kind != data.RoleWild
	case data.RoleMonster:
		return b.Kind != data.RoleMonster
	}
	return false
}

// isInherentEnemy covers victims the NPC would never mourn.
func isInherentEnemy(self, victim data.Role) bool {
	if self.Kind != data.RoleCivilised {
		return false
	}
	switch victim.Kind {
	case data.RoleMonster:
		return true
	case data.RoleCivilised:
		return isOutlaw(self) != isOutlaw(victim)
	}
	return false
}

func sayTo[S any](tgt data.Actor, key string) ai.Action[S, unit] {
	return ai.Just(func(ctx *ai.Ctx, _ *S) { ctx.Controller.Say(tgt, data.Localized(key)) })
}

// witnessDeath updates sentiments for a death report and picks what to say
// to the killer, if anyone.
func witnessDeath(ctx *ai.Ctx, rep data.Report) (data.Actor, string) {
	if rep.Killer == nil {
		return data.Actor{}, "npc-speech-witness_death"
	}
	killer := *rep.Killer

	canDamageKiller := true
	if id, ok := killer.NpcID(); ok {
		k, found := ctx.Data.Npc(id)
		canDamageKiller = found && canDamage(ctx.Npc.Role, k.Role)
	}
	inherentEnemy := false
	if id, ok := rep.Actor.NpcID(); ok {
		if v, found := ctx.Data.Npc(id); found {
			inherentEnemy = isInherentEnemy(ctx.Npc.Role, v.Role)
		}
	}
	victimEnemy := inherentEnemy || ctx.Sentiments.Of(rep.Actor).Is(data.SentimentEnemy)

	if canDamageKiller {
		change := float32(-0.75)
		if victimEnemy {
			change = 0.25
		}
		ctx.Sentiments.ChangeBy(killer, change, data.SentimentVillain)
	}
	if rep.Actor.Kind == data.ActorCharacter {
		ctx.Sentiments.LimitBelow(rep.Actor, data.SentimentEnemy)
	}
	if victimEnemy {
		return killer, "npc-speech-witness_enemy_murder"
	}
	return killer, "npc-speech-witness_murder"
}

// checkInbox consumes reports and interactions. Dialogue inputs stay queued
// for the conversation that is waiting on them.
func checkInbox[S any](ctx *ai.Ctx) ai.Action[S, unit] {
	var action ai.Action[S, unit]
	ctx.Inbox.Retain(func(in data.Input) bool {
		switch in.Kind {
		case data.InputDialogue:
			return true
		case data.InputInteraction:
			action = talkTo[S](in.From)
			return false
		case data.InputReport:
		default:
			return false
		}

		if _, known := ctx.KnownReports[in.Report]; known {
			return false
		}
		rep, ok := ctx.Data.Reports.Get(in.Report)
		if !ok {
			return false
		}
		fresh := ctx.TimeOfDay-rep.AtTOD < data.ReportResponseTime

		switch rep.Kind {
		case data.ReportDeath:
			if ctx.Npc.Role.Kind != data.RoleCivilised {
				return false
			}
			tgt, phrase := witnessDeath(ctx, rep)
			ctx.KnownReports[in.Report] = struct{}{}
			if fresh {
				action = sayTo[S](tgt, phrase)
			}
		case data.ReportTheft:
			if rep.Site == nil || !sameSite(rep.Site, ctx.Npc.Home) {
				return false
			}
			ctx.Sentiments.ChangeBy(rep.Thief, -0.2, data.SentimentEnemy)
			ctx.KnownReports[in.Report] = struct{}{}
			phrase := "npc-speech-witness_theft"
			if isProfession(ctx.Npc, data.Farmer) && data.SpriteCategory(rep.Sprite) == "plant" {
				phrase = "npc-speech-witness_theft_owned"
			}
			if fresh {
				action = sayTo[S](rep.Thief, phrase)
			}
		}
		return false
	})
	return action
}

// checkForEnemies attacks the first nearby actor we consider an enemy. Only
// loaded NPCs can fight, so simulated ones skip the scan.
func checkForEnemies[S any](ctx *ai.Ctx) ai.Action[S, unit] {
	if ctx.Npc.Mode != data.Loaded {
		return nil
	}
	for _, a := range ctx.Data.Nearby(&ctx.NpcID, ctx.Npc.WPos, enemyScanRadius) {
		if ctx.Sentiments.Of(a).Is(data.SentimentEnemy) {
			enemy := a
			return ai.Just(func(ctx *ai.Ctx, _ *S) { ctx.Controller.Attack(enemy) })
		}
	}
	return nil
}

// joinDance lets a loaded NPC occasionally join a neighbour who is dancing.
func joinDance[S any](ctx *ai.Ctx) ai.Action[S, unit] {
	if ctx.Npc.Mode != data.Loaded || ctx.Npc.Personality.Is(data.Introverted) || !ctx.Chance(0.01) {
		return nil
	}
	for _, id := range nearbyNpcs(ctx, 8) {
		if n, ok := ctx.Data.Npc(id); ok && n.Activity == data.ActDance {
			return danceFor[S](6)
		}
	}
	return nil
}

// reactToEvents is the interrupt producer shared by most brains.
func reactToEvents[S any](ctx *ai.Ctx, _ *S) ai.Action[S, unit] {
	if a := checkInbox[S](ctx); a != nil {
		return a
	}
	if a := checkForEnemies[S](ctx); a != nil {
		return a
	}
	return joinDance[S](ctx)
}
