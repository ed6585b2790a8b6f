package npcai

import (
	"rtsim.ai/internal/sim/rtsim/ai"
	"rtsim.ai/internal/sim/rtsim/data"
	"rtsim.ai/internal/sim/world"
)

// statementPause is how long an NPC keeps facing its partner after a
// statement, so the other side can read it.
const statementPause = 1.5

// permHire seeds the per-NPC decision whether to accept hire requests.
const permHire = 38792

// option pairs a response a partner may give with what the NPC does next.
type option[S any] struct {
	Response data.Response
	Then     ai.Action[S, unit]
}

func opt[S any](msg data.Content, then ai.Action[S, unit]) option[S] {
	return option[S]{Response: data.Response{Msg: msg}, Then: then}
}

func talkFor[S any](tgt data.Actor, d float64) ai.Action[S, unit] {
	return holdFor[S](d, func(ctx *ai.Ctx) { ctx.Controller.DoTalk(tgt) })
}

func sayStatement[S any](s data.DialogueSession, msg data.Content) ai.Action[S, unit] {
	return ai.Then(
		ai.Just(func(ctx *ai.Ctx, _ *S) { ctx.Controller.DialogueStatement(s, msg) }),
		talkFor[S](s.Target, statementPause),
	)
}

func isResponse(s data.DialogueSession, tag uint32) func(data.Input) bool {
	return func(in data.Input) bool {
		return in.Kind == data.InputDialogue &&
			in.From == s.Target &&
			in.Dialogue.ID == s.ID &&
			in.Dialogue.Kind == data.DialogueResponse &&
			in.Dialogue.Tag == tag
	}
}

// askQuestion sends a tagged question and waits for the matching response,
// then runs the chosen option. No answer within the question timeout, or an
// unknown response id, ends the exchange.
func askQuestion[S any](s data.DialogueSession, msg data.Content, options []option[S]) ai.Action[S, unit] {
	return ai.Debug(ai.Now(func(ctx *ai.Ctx, _ *S) ai.Action[S, unit] {
		tag := ctx.Rng.Uint32()
		opts := make([]data.ResponseOption, len(options))
		for i, o := range options {
			opts[i] = data.ResponseOption{ID: uint16(i), Response: o.Response}
		}
		ctx.Controller.DialogueQuestion(s, tag, msg, opts)

		wait := ai.Func(func(ctx *ai.Ctx, _ *S) (uint16, bool) {
			ctx.Controller.DoTalk(s.Target)
			in, ok := ctx.Inbox.Take(isResponse(s, tag))
			if !ok {
				return 0, false
			}
			return in.Dialogue.ResponseID, true
		})
		return ai.AndThen(ai.StopIf(wait, ai.Timeout(ctx.Settings.QuestionTimeout)), func(r ai.Option[uint16]) ai.Action[S, unit] {
			if !r.Ok || int(r.Value) >= len(options) {
				return ai.Finish[S]()
			}
			return options[r.Value].Then
		})
	}), "asking question")
}

// doDialogue opens a session with tgt, runs body and closes the session.
// An end message from tgt cuts the body short.
func doDialogue[S any](tgt data.Actor, body func(data.DialogueSession) ai.Action[S, unit]) ai.Action[S, unit] {
	return ai.Now(func(ctx *ai.Ctx, _ *S) ai.Action[S, unit] {
		s := ctx.Controller.DialogueStart(tgt, ctx.NewDialogueID())
		ended := ai.Pred(func(ctx *ai.Ctx) bool {
			_, ok := ctx.Inbox.Take(func(in data.Input) bool {
				return in.Kind == data.InputDialogue && in.Dialogue.ID == s.ID && in.Dialogue.Kind == data.DialogueEnd
			})
			return ok
		})
		return ai.Then(ai.StopIf(body(s), ended), ai.Just(func(ctx *ai.Ctx, _ *S) {
			ctx.Controller.DoIdle()
			ctx.Controller.DialogueEnd(s)
		}))
	})
}

// generalDialogue is the menu an NPC offers a character who talks to it.
func generalDialogue[S any](tgt data.Actor, s data.DialogueSession) ai.Action[S, unit] {
	return ai.Now(func(ctx *ai.Ctx, _ *S) ai.Action[S, unit] {
		prof, _ := ctx.Profession()
		canBeHired := prof.Kind == data.Adventurer
		hiredByTgt := ctx.Npc.Hiring != nil && ctx.Npc.Hiring.By == tgt

		options := []option[S]{
			opt(data.Localized("dialogue-question-site"), aboutSite[S](s)),
			opt(data.Localized("dialogue-question-self"), aboutSelf[S](s)),
			opt(data.Localized("dialogue-question-sentiment"), sentimentsQuestion[S](tgt, s)),
		}
		if hiredByTgt {
			options = append(options, opt(data.Localized("dialogue-cancel_hire"), ai.Then(
				sayStatement[S](s, data.Localized("npc-dialogue-hire_cancelled")),
				ai.Just(func(ctx *ai.Ctx, _ *S) { ctx.Controller.EndHiring() }),
			)))
		} else if canBeHired {
			options = append(options, opt(data.Localized("dialogue-question-hire"), hire[S](tgt, s)))
		}
		options = append(options,
			opt(data.Localized("dialogue-question-directions"), directions[S](s)),
			opt(data.Localized("dialogue-play_game"), games[S](s)),
		)
		return askQuestion(s, data.Localized("npc-question-general"), options)
	})
}

func aboutSite[S any](s data.DialogueSession) ai.Action[S, unit] {
	return ai.Now(func(ctx *ai.Ctx, _ *S) ai.Action[S, unit] {
		name, ok := siteName(ctx, ctx.Npc.CurrentSite)
		if !ok {
			return sayStatement[S](s, data.Localized("npc-info-unknown"))
		}
		steps := []ai.Action[S, unit]{
			sayStatement[S](s, data.LocalizedWith("npc-info-current_site", map[string]string{"site": name})),
		}
		if site, ok := ctx.Data.Sites.Get(*ctx.Npc.CurrentSite); ok {
			for _, mention := range site.NearbySitesBySize {
				if ctx.Rng.IntN(2) == 0 {
					continue
				}
				if c, ok := tellSiteContent(ctx, mention); ok {
					steps = append(steps, sayStatement[S](s, c))
				}
			}
		}
		return ai.Seq(steps...)
	})
}

var roleInfoKeys = map[data.ProfessionKind]string{
	data.Farmer:     "npc-info-role_farmer",
	data.Hunter:     "npc-info-role_hunter",
	data.Merchant:   "npc-info-role_merchant",
	data.Guard:      "npc-info-role_guard",
	data.Adventurer: "npc-info-role_adventurer",
	data.Blacksmith: "npc-info-role_blacksmith",
	data.Chef:       "npc-info-role_chef",
	data.Alchemist:  "npc-info-role_alchemist",
	data.Pirate:     "npc-info-role_pirate",
	data.Cultist:    "npc-info-role_cultist",
	data.Herbalist:  "npc-info-role_herbalist",
	data.Captain:    "npc-info-role_captain",
}

func aboutSelf[S any](s data.DialogueSession) ai.Action[S, unit] {
	return ai.Now(func(ctx *ai.Ctx, _ *S) ai.Action[S, unit] {
		name := data.LocalizedWith("npc-info-self_name", map[string]string{"name": ctx.Npc.Name()})
		job := data.Localized("npc-info-role_none")
		if k, ok := ctx.Npc.Role.ProfessionKind(); ok {
			job = data.LocalizedWith("npc-info-role", map[string]string{"role": roleInfoKeys[k]})
		}
		home := data.Localized("npc-info-self_homeless")
		if n, ok := siteName(ctx, ctx.Npc.Home); ok {
			home = data.LocalizedWith("npc-info-self_home", map[string]string{"site": n})
		}
		return ai.Seq(sayStatement[S](s, name), sayStatement[S](s, job), sayStatement[S](s, home))
	})
}

func sentimentsQuestion[S any](tgt data.Actor, s data.DialogueSession) ai.Action[S, unit] {
	return askQuestion(s, data.Plain("..."), []option[S]{
		opt(data.Localized("dialogue-me"), ai.Now(func(ctx *ai.Ctx, _ *S) ai.Action[S, unit] {
			v := ctx.Sentiments.Of(tgt)
			switch {
			case v.Is(data.SentimentAlly):
				return sayStatement[S](s, data.Localized("npc-response-like_you"))
			case v.Is(data.SentimentRival):
				return sayStatement[S](s, data.Localized("npc-response-dislike_you"))
			default:
				return sayStatement[S](s, data.Localized("npc-response-ambivalent_you"))
			}
		})),
	})
}

type hireOption struct {
	days      float64
	basePrice uint32
	attr      string
}

var hireOptions = []hireOption{
	{days: 1, basePrice: 60, attr: "day"},
	{days: 7, basePrice: 300, attr: "week"},
}

func hire[S any](tgt data.Actor, s data.DialogueSession) ai.Action[S, unit] {
	return ai.Now(func(ctx *ai.Ctx, _ *S) ai.Action[S, unit] {
		if ctx.Npc.Hiring != nil || ctx.Npc.Rng(permHire).IntN(2) != 0 {
			return sayStatement[S](s, data.Localized("npc-response-decline_hire"))
		}
		prof, _ := ctx.Profession()
		priceMul := uint64(1) << min(prof.Level, 31)
		options := []option[S]{
			opt(data.Localized("dialogue-cancel_interaction"), sayStatement[S](s, data.Localized("npc-response-no_problem"))),
		}
		for _, h := range hireOptions {
			days := h.days
			price := priceMul * uint64(h.basePrice)
			if price > uint64(^uint32(0)) {
				price = uint64(^uint32(0))
			}
			options = append(options, option[S]{
				Response: data.Response{
					Msg:       data.LocalizedWith("dialogue-buy_hire_days", map[string]string{"period": h.attr}),
					GivenItem: &data.ItemStack{Item: "coins", Amount: uint32(price)},
				},
				Then: ai.Then(
					sayStatement[S](s, data.Localized("npc-response-accept_hire")),
					ai.Just(func(ctx *ai.Ctx, _ *S) {
						ctx.Controller.SetNewlyHired(tgt, data.AddDays(ctx.Time, days))
					}),
				),
			})
		}
		return askQuestion(s, data.Localized("npc-response-hire_time"), options)
	})
}

type directionTarget struct {
	msg  string
	kind world.PlotKind
	name string
}

var directionTargets = []directionTarget{
	{"dialogue-direction-tavern", world.PlotTavern, "hud-map-tavern"},
	{"dialogue-direction-plaza", world.PlotPlaza, "hud-map-plaza"},
	{"dialogue-direction-workshop", world.PlotWorkshop, "hud-map-workshop"},
	{"dialogue-direction-airship_dock", world.PlotDock, "hud-map-airship_dock"},
}

func directions[S any](s data.DialogueSession) ai.Action[S, unit] {
	return ai.Now(func(ctx *ai.Ctx, _ *S) ai.Action[S, unit] {
		var options []option[S]
		if cur := ctx.Npc.CurrentSite; cur != nil {
			site := *cur
			for _, dt := range directionTargets {
				dt := dt
				options = append(options, opt(data.Localized(dt.msg), ai.Now(func(ctx *ai.Ctx, _ *S) ai.Action[S, unit] {
					doors := plotDoors(ctx, site, dt.kind)
					if len(doors) == 0 {
						return sayStatement[S](s, data.Localized("npc-response-doesnt_exist"))
					}
					here := ctx.Npc.WPos.XY()
					best := doors[0]
					for _, d := range doors[1:] {
						if d.DistSq(here) < best.DistSq(here) {
							best = d
						}
					}
					ctx.Controller.DialogueMarker(s, best, data.Localized(dt.name))
					return sayStatement[S](s, data.Localized("npc-response-directions"))
				})))
			}
		}
		return askQuestion(s, data.Localized("npc-question-directions"), options)
	})
}

type hand uint8

const (
	rock hand = iota
	paper
	scissors
)

var handKeys = [3]string{"dialogue-game-rock", "dialogue-game-paper", "dialogue-game-scissors"}

func (h hand) beats(o hand) bool { return (h+3-o)%3 == 1 }

func rockPaperScissors[S any](s data.DialogueSession) ai.Action[S, unit] {
	return ai.Now(func(ctx *ai.Ctx, _ *S) ai.Action[S, unit] {
		ours := hand(ctx.Rng.IntN(3))
		options := make([]option[S], 0, 3)
		for _, theirs := range []hand{rock, paper, scissors} {
			result := "dialogue-game-lose"
			switch {
			case ours == theirs:
				result = "dialogue-game-draw"
			case ours.beats(theirs):
				result = "dialogue-game-win"
			}
			options = append(options, opt(data.Localized(handKeys[theirs]), ai.Then(
				sayStatement[S](s, data.Localized(handKeys[ours])),
				sayStatement[S](s, data.Localized(result)),
			)))
		}
		return askQuestion(s, data.Localized("dialogue-game-rock_paper_scissors"), options)
	})
}

func games[S any](s data.DialogueSession) ai.Action[S, unit] {
	return askQuestion(s, data.Localized("dialogue-game-what_game"), []option[S]{
		opt(data.Localized("dialogue-game-rock_paper_scissors"), rockPaperScissors[S](s)),
	})
}
