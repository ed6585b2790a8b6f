package ai

import (
	"math/rand/v2"

	"rtsim.ai/internal/sim/rtsim/data"
	"rtsim.ai/internal/sim/world"
)

// Settings are policy knobs shared by every brain.
type Settings struct {
	// QuestionTimeout bounds how long an NPC waits for an answer.
	QuestionTimeout float64
	// DialogueRetain is how long unconsumed dialogue inputs stay queued.
	DialogueRetain float64
}

func DefaultSettings() Settings {
	return Settings{QuestionTimeout: 60, DialogueRetain: 60}
}

// Incoming is an action another NPC asked this NPC to perform.
type Incoming struct {
	From   data.NpcID
	Action Action[Unit, Unit]
}

// DialogueQueue holds actions queued by other NPCs, oldest first.
type DialogueQueue struct {
	items []Incoming
}

func (q *DialogueQueue) Push(in Incoming) { q.items = append(q.items, in) }

func (q *DialogueQueue) Len() int { return len(q.items) }

func (q *DialogueQueue) Pop() (Incoming, bool) {
	if len(q.items) == 0 {
		return Incoming{}, false
	}
	in := q.items[0]
	q.items[0] = Incoming{}
	q.items = q.items[1:]
	return in, true
}

// Outgoing is an action staged for another NPC during a poll.
type Outgoing struct {
	Target data.NpcID
	Action Action[Unit, Unit]
}

// Ctx is everything one NPC's brain sees during a poll.
//
// Npc and Data are shared with every other brain polled in the same tick and
// must only be read. The NPC's own mutable parts (controller, inbox,
// sentiments, known reports, dialogue queue) are detached and handed over
// through the pointer fields instead.
type Ctx struct {
	NpcID data.NpcID
	Npc   *data.Npc
	Data  *data.Data
	World world.Query

	Controller   *data.Controller
	Inbox        *data.Inbox
	Sentiments   *data.Sentiments
	KnownReports map[data.ReportID]struct{}
	Dialogue     *DialogueQueue

	Rng       *rand.Rand
	Time      float64
	TimeOfDay float64
	Dt        float64
	Tick      uint64
	Settings  Settings

	outbox []Outgoing
}

// Chance succeeds with probability rate*dt, so rates are per second
// regardless of how often the NPC is polled.
func (c *Ctx) Chance(rate float64) bool {
	p := rate * c.Dt
	if p >= 1 {
		return true
	}
	return c.Rng.Float64() < p
}

// SendAction stages an action for another NPC. It is delivered after every
// brain of the tick has been polled.
func (c *Ctx) SendAction(target data.NpcID, a Action[Unit, Unit]) {
	c.outbox = append(c.outbox, Outgoing{Target: target, Action: a})
}

// SayTo speaks to another NPC and queues the action it should respond with.
func (c *Ctx) SayTo(target data.NpcID, msg data.Content, response Action[Unit, Unit]) {
	c.Controller.Say(data.NpcActor(target), msg)
	c.SendAction(target, response)
}

// TakeOutbox drains the staged actions.
func (c *Ctx) TakeOutbox() []Outgoing {
	out := c.outbox
	c.outbox = nil
	return out
}

// NewDialogueID draws a conversation id from the poll's generator.
func (c *Ctx) NewDialogueID() data.DialogueID {
	return data.DialogueID(c.Rng.Uint64())
}

// Profession of the polled NPC, if it has one.
func (c *Ctx) Profession() (data.Profession, bool) { return c.Npc.Profession() }
