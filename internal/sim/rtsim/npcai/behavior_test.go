package npcai

import (
	"slices"
	"testing"

	"rtsim.ai/internal/sim/mathx"
	"rtsim.ai/internal/sim/rtsim/ai"
	"rtsim.ai/internal/sim/rtsim/data"
)

func newVillager(d *data.Data, home data.SiteID, kind data.ProfessionKind, pos mathx.Vec3) data.NpcID {
	n := data.NewNpc(11, pos, data.BodyHumanoid, data.Civilised(&data.Profession{Kind: kind})).WithHome(home)
	return d.CreateNpc(n)
}

func questionTag(t *testing.T, c *data.Controller) uint32 {
	t.Helper()
	for _, a := range actionsOf(c, data.ActionDialogue) {
		if a.Dialogue.Kind == data.DialogueQuestion {
			return a.Dialogue.Tag
		}
	}
	t.Fatalf("no question asked: %+v", c.Actions)
	return 0
}

func TestAskQuestion_RunsChosenOption(t *testing.T) {
	d := data.New()
	w := newFlatWorld()
	id := newVillager(d, testTown(d, w, mathx.V2(0, 0)), data.Farmer, mathx.V3(0, 0, 0))
	ctx := newCtx(d, w, id)

	s := data.DialogueSession{Target: data.CharacterActor(7), ID: 42}
	var chosen []string
	choose := func(name string) ai.Action[unit, unit] {
		return ai.Just(func(*ai.Ctx, *unit) { chosen = append(chosen, name) })
	}
	a := askQuestion(s, data.Plain("which?"), []option[unit]{
		opt(data.Plain("a"), choose("a")),
		opt(data.Plain("b"), choose("b")),
	})

	var st unit
	if _, done := a.Tick(ctx, &st); done {
		t.Fatalf("question finished before an answer")
	}
	tag := questionTag(t, ctx.Controller)
	if bt := ai.Backtrace(a); !slices.Contains(bt, "asking question") {
		t.Fatalf("backtrace=%v", bt)
	}

	// Answers to other conversations are ignored.
	ctx.Inbox.Push(data.DialogueInput(s.Target, data.Dialogue{ID: 41, Kind: data.DialogueResponse, Tag: tag, ResponseID: 0}, 0))
	step(ctx)
	if _, done := a.Tick(ctx, &st); done {
		t.Fatalf("finished on a response from another session")
	}

	ctx.Inbox.Push(data.DialogueInput(s.Target, data.Dialogue{ID: 42, Kind: data.DialogueResponse, Tag: tag, ResponseID: 1}, 0))
	step(ctx)
	if _, done := a.Tick(ctx, &st); !done {
		t.Fatalf("expected completion after the answer")
	}
	if !slices.Equal(chosen, []string{"b"}) {
		t.Fatalf("chosen=%v", chosen)
	}
	if ctx.Inbox.Len() != 1 {
		t.Fatalf("foreign response should stay queued, inbox=%d", ctx.Inbox.Len())
	}
}

func TestAskQuestion_TimesOut(t *testing.T) {
	d := data.New()
	w := newFlatWorld()
	id := newVillager(d, testTown(d, w, mathx.V2(0, 0)), data.Farmer, mathx.V3(0, 0, 0))
	ctx := newCtx(d, w, id)
	ctx.Settings.QuestionTimeout = 3

	ran := false
	a := askQuestion(data.DialogueSession{Target: data.CharacterActor(7), ID: 1}, data.Plain("?"), []option[unit]{
		opt(data.Plain("yes"), ai.Just(func(*ai.Ctx, *unit) { ran = true })),
	})
	var st unit
	for i := 0; i < 3; i++ {
		if _, done := a.Tick(ctx, &st); done {
			t.Fatalf("finished early at t=%v", ctx.Time)
		}
		if ctx.Controller.Activity == nil || ctx.Controller.Activity.Kind != data.ActTalk {
			t.Fatalf("should face the partner while waiting, activity=%+v", ctx.Controller.Activity)
		}
		step(ctx)
	}
	if _, done := a.Tick(ctx, &st); !done {
		t.Fatalf("expected timeout at t=%v", ctx.Time)
	}
	if ran {
		t.Fatalf("option ran without an answer")
	}
}

func TestAskQuestion_UnknownResponseFinishes(t *testing.T) {
	d := data.New()
	w := newFlatWorld()
	id := newVillager(d, testTown(d, w, mathx.V2(0, 0)), data.Farmer, mathx.V3(0, 0, 0))
	ctx := newCtx(d, w, id)

	s := data.DialogueSession{Target: data.CharacterActor(7), ID: 9}
	ran := false
	a := askQuestion(s, data.Plain("?"), []option[unit]{
		opt(data.Plain("only"), ai.Just(func(*ai.Ctx, *unit) { ran = true })),
	})
	var st unit
	a.Tick(ctx, &st)
	tag := questionTag(t, ctx.Controller)
	ctx.Inbox.Push(data.DialogueInput(s.Target, data.Dialogue{ID: 9, Kind: data.DialogueResponse, Tag: tag, ResponseID: 5}, 0))
	if _, done := a.Tick(ctx, &st); !done || ran {
		t.Fatalf("done=%v ran=%v", done, ran)
	}
}

func TestCheckInbox_DeathReportTurnsWitnessAgainstKiller(t *testing.T) {
	d := data.New()
	w := newFlatWorld()
	home := testTown(d, w, mathx.V2(0, 0))
	id := newVillager(d, home, data.Farmer, mathx.V3(0, 0, 0))
	victim := newVillager(d, home, data.Hunter, mathx.V3(4, 0, 0))
	ctx := newCtx(d, w, id)
	ctx.TimeOfDay = 10 * 3600

	killer := data.CharacterActor(9)
	rep := d.Reports.Create(data.DeathReport(data.NpcActor(victim), &killer, ctx.TimeOfDay-10))
	ctx.Inbox.Push(data.ReportInput(rep))

	a := checkInbox[unit](ctx)
	if a == nil {
		t.Fatalf("expected a reaction to a fresh murder")
	}
	if got := ctx.Sentiments.Of(killer).Value(); got != -0.75 {
		t.Fatalf("sentiment toward killer=%v", got)
	}
	if _, ok := ctx.KnownReports[rep]; !ok {
		t.Fatalf("report not remembered")
	}
	if ctx.Inbox.Len() != 0 {
		t.Fatalf("report still queued")
	}

	var st unit
	if _, done := a.Tick(ctx, &st); !done {
		t.Fatalf("say should complete in one tick")
	}
	says := actionsOf(ctx.Controller, data.ActionSay)
	if len(says) != 1 || says[0].Target != killer || says[0].Content.Text != "npc-speech-witness_murder" {
		t.Fatalf("says=%+v", says)
	}

	// The same report again is ignored.
	ctx.Inbox.Push(data.ReportInput(rep))
	if a := checkInbox[unit](ctx); a != nil {
		t.Fatalf("known report produced a reaction")
	}
	if got := ctx.Sentiments.Of(killer).Value(); got != -0.75 {
		t.Fatalf("known report changed sentiment: %v", got)
	}
}

func TestCheckInbox_StaleReportIsRememberedSilently(t *testing.T) {
	d := data.New()
	w := newFlatWorld()
	home := testTown(d, w, mathx.V2(0, 0))
	id := newVillager(d, home, data.Farmer, mathx.V3(0, 0, 0))
	ctx := newCtx(d, w, id)
	ctx.TimeOfDay = 10 * 3600

	rep := d.Reports.Create(data.DeathReport(data.CharacterActor(2), nil, ctx.TimeOfDay-data.ReportResponseTime-1))
	ctx.Inbox.Push(data.ReportInput(rep))
	if a := checkInbox[unit](ctx); a != nil {
		t.Fatalf("stale report should not be commented on")
	}
	if _, ok := ctx.KnownReports[rep]; !ok {
		t.Fatalf("stale report not remembered")
	}
}

func TestCheckInbox_FarmerSeesCropTheftAtHome(t *testing.T) {
	d := data.New()
	w := newFlatWorld()
	home := testTown(d, w, mathx.V2(0, 0))
	id := newVillager(d, home, data.Farmer, mathx.V3(0, 0, 0))
	ctx := newCtx(d, w, id)

	thief := data.CharacterActor(3)
	rep := d.Reports.Create(data.TheftReport(thief, &home, "plant:wheat", 0))
	elsewhere := data.SiteID(999)
	other := d.Reports.Create(data.TheftReport(thief, &elsewhere, "plant:wheat", 0))
	ctx.Inbox.Push(data.ReportInput(other))
	ctx.Inbox.Push(data.ReportInput(rep))

	a := checkInbox[unit](ctx)
	if a == nil {
		t.Fatalf("expected a reaction")
	}
	if got := ctx.Sentiments.Of(thief).Value(); got != -0.2 {
		t.Fatalf("sentiment toward thief=%v", got)
	}
	if _, ok := ctx.KnownReports[other]; ok {
		t.Fatalf("theft at another site should not be remembered")
	}
	var st unit
	a.Tick(ctx, &st)
	says := actionsOf(ctx.Controller, data.ActionSay)
	if len(says) != 1 || says[0].Content.Text != "npc-speech-witness_theft_owned" {
		t.Fatalf("says=%+v", says)
	}
}

func TestCheckInbox_InteractionStartsDialogueAndKeepsTurns(t *testing.T) {
	d := data.New()
	w := newFlatWorld()
	home := testTown(d, w, mathx.V2(0, 0))
	id := newVillager(d, home, data.Farmer, mathx.V3(0, 0, 0))
	ctx := newCtx(d, w, id)

	player := data.CharacterActor(1)
	ctx.Inbox.Push(data.DialogueInput(player, data.Dialogue{ID: 5, Kind: data.DialogueStatement}, 0))
	ctx.Inbox.Push(data.InteractionInput(player))

	a := checkInbox[unit](ctx)
	if a == nil {
		t.Fatalf("interaction ignored")
	}
	if ctx.Inbox.Len() != 1 || ctx.Inbox.Items()[0].Kind != data.InputDialogue {
		t.Fatalf("dialogue input not retained: %+v", ctx.Inbox.Items())
	}

	var st unit
	if _, done := a.Tick(ctx, &st); done {
		t.Fatalf("dialogue should wait for an answer")
	}
	turns := actionsOf(ctx.Controller, data.ActionDialogue)
	if len(turns) != 2 || turns[0].Dialogue.Kind != data.DialogueStart || turns[1].Dialogue.Kind != data.DialogueQuestion {
		t.Fatalf("turns=%+v", turns)
	}
	if turns[0].Dialogue.ID != turns[1].Dialogue.ID || turns[0].Target != player {
		t.Fatalf("question outside the session: %+v", turns)
	}
	if n := len(turns[1].Dialogue.Responses); n < 5 {
		t.Fatalf("general menu has %d options", n)
	}

	// The player walking away ends the session with an end turn.
	ctx.Inbox.Push(data.DialogueInput(player, data.Dialogue{ID: turns[0].Dialogue.ID, Kind: data.DialogueEnd}, 0))
	step(ctx)
	if _, done := a.Tick(ctx, &st); !done {
		t.Fatalf("dialogue did not end")
	}
	turns = actionsOf(ctx.Controller, data.ActionDialogue)
	if last := turns[len(turns)-1]; last.Dialogue.Kind != data.DialogueEnd {
		t.Fatalf("last turn=%+v", last)
	}
}

func TestTalkTo_RejectsEnemy(t *testing.T) {
	d := data.New()
	w := newFlatWorld()
	id := newVillager(d, testTown(d, w, mathx.V2(0, 0)), data.Farmer, mathx.V3(0, 0, 0))
	ctx := newCtx(d, w, id)

	foe := data.CharacterActor(4)
	ctx.Sentiments.ChangeBy(foe, -0.7, -1)
	a := talkTo[unit](foe)
	var st unit
	if _, done := a.Tick(ctx, &st); !done {
		t.Fatalf("rejection should be immediate")
	}
	says := actionsOf(ctx.Controller, data.ActionSay)
	if len(says) != 1 || says[0].Content.Text != "npc-speech-reject_rival" {
		t.Fatalf("says=%+v", says)
	}
	if len(actionsOf(ctx.Controller, data.ActionDialogue)) != 0 {
		t.Fatalf("opened a dialogue with an enemy")
	}
}

func TestCheckForEnemies_OnlyWhenLoaded(t *testing.T) {
	d := data.New()
	w := newFlatWorld()
	id := newVillager(d, testTown(d, w, mathx.V2(0, 0)), data.Guard, mathx.V3(0, 0, 0))
	foe := data.CharacterActor(4)
	d.SetCharacter(data.Character{ID: 4, WPos: mathx.V3(3, 0, 0)})
	d.RebuildGrid()

	ctx := newCtx(d, w, id)
	ctx.Sentiments.ChangeBy(foe, -0.7, -1)
	if a := checkForEnemies[unit](ctx); a != nil {
		t.Fatalf("simulated NPC should not fight")
	}

	ctx.Npc.Mode = data.Loaded
	a := checkForEnemies[unit](ctx)
	if a == nil {
		t.Fatalf("loaded NPC ignored an enemy")
	}
	var st unit
	a.Tick(ctx, &st)
	attacks := actionsOf(ctx.Controller, data.ActionAttack)
	if len(attacks) != 1 || attacks[0].Target != foe {
		t.Fatalf("attacks=%+v", attacks)
	}
}

func TestHired_ExpiryEndsContract(t *testing.T) {
	d := data.New()
	w := newFlatWorld()
	id := newVillager(d, testTown(d, w, mathx.V2(0, 0)), data.Adventurer, mathx.V3(0, 0, 0))
	boss := data.CharacterActor(5)
	d.SetCharacter(data.Character{ID: 5, WPos: mathx.V3(50, 0, 0)})

	n, _ := d.Npc(id)
	n.Hiring = &data.Hiring{By: boss, Expires: 10}
	ctx := newCtx(d, w, id)

	a := hired[unit](boss)
	var st unit
	a.Tick(ctx, &st)
	if _, changed := ctx.Controller.TakeHiring(); changed {
		t.Fatalf("contract ended before expiry")
	}
	if bt := ai.Backtrace(a); !slices.Contains(bt, "hired by "+boss.String()) {
		t.Fatalf("backtrace=%v", bt)
	}

	ctx.Time = 20
	if _, done := a.Tick(ctx, &st); done {
		t.Fatalf("farewell should take time")
	}
	h, changed := ctx.Controller.TakeHiring()
	if !changed || h != nil {
		t.Fatalf("hiring change=%v %+v", changed, h)
	}
	if bt := ai.Backtrace(a); len(bt) == 0 || bt[0] != "interrupted" {
		t.Fatalf("backtrace=%v", bt)
	}
	if act := ctx.Controller.Activity; act == nil || act.Kind != data.ActGoto {
		t.Fatalf("should walk to the employer, activity=%+v", act)
	}
}

func TestBrain_VillagerSeeksShelterAtNight(t *testing.T) {
	d := data.New()
	w := newFlatWorld()
	home := testTown(d, w, mathx.V2(0, 0))
	id := newVillager(d, home, data.Farmer, mathx.V3(100, 100, 0))
	ctx := newCtx(d, w, id)
	ctx.TimeOfDay = 2 * 3600

	b := NewBrain()
	b.Tick(ctx)

	bt := b.Backtrace()
	for _, want := range []string{"villager at site 1", "important", "find somewhere to sleep", "walk to house"} {
		if !slices.Contains(bt, want) {
			t.Fatalf("backtrace=%v, missing %q", bt, want)
		}
	}
	if act := ctx.Controller.Activity; act == nil || act.Kind != data.ActGoto || act.WPos.XY() != mathx.V2(0, 20) {
		t.Fatalf("activity=%+v", act)
	}
	says := actionsOf(ctx.Controller, data.ActionSay)
	if len(says) != 1 || !says[0].Target.IsZero() || says[0].Content.Text != "npc-speech-night_time" {
		t.Fatalf("says=%+v", says)
	}
}

func TestBrain_QueuedActionInterrupts(t *testing.T) {
	d := data.New()
	w := newFlatWorld()
	home := testTown(d, w, mathx.V2(0, 0))
	id := newVillager(d, home, data.Farmer, mathx.V3(100, 100, 0))
	ctx := newCtx(d, w, id)
	ctx.TimeOfDay = 2 * 3600

	b := NewBrain()
	b.Tick(ctx)

	ran := 0
	ctx.Dialogue.Push(ai.Incoming{From: 2, Action: ai.Just(func(*ai.Ctx, *ai.Unit) { ran++ })})
	step(ctx)
	b.Tick(ctx)
	if ran != 1 || ctx.Dialogue.Len() != 0 {
		t.Fatalf("ran=%d queued=%d", ran, ctx.Dialogue.Len())
	}
	// The sleep routine resumes where it was.
	step(ctx)
	b.Tick(ctx)
	if bt := b.Backtrace(); !slices.Contains(bt, "walk to house") {
		t.Fatalf("backtrace=%v", bt)
	}
}

func TestBrain_MonsterWanders(t *testing.T) {
	d := data.New()
	w := newFlatWorld()
	n := data.NewNpc(3, mathx.V3(0, 0, 0), data.BodyQuadrupedMedium, data.Role{Kind: data.RoleMonster})
	id := d.CreateNpc(n)
	ctx := newCtx(d, w, id)

	b := NewBrain()
	b.Tick(ctx)
	if act := ctx.Controller.Activity; act == nil || act.Kind != data.ActGoto {
		t.Fatalf("activity=%+v", act)
	}
	if bt := b.Backtrace(); len(bt) == 0 {
		t.Fatalf("empty backtrace")
	}
}
