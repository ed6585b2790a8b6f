package data

import "rtsim.ai/internal/sim/mathx"

type ChunkResource uint8

const (
	ResGrass ChunkResource = iota + 1
	ResFlower
	ResFruit
	ResVegetable
	ResMushroom
	ResLoot
	ResPlant
	ResStone
	ResWood
	ResGem
	ResOre
)

type ActivityKind uint8

const (
	ActGoto ActivityKind = iota + 1
	ActGotoFlying
	ActGather
	ActHuntAnimals
	ActDance
	ActCheer
	ActSit
	ActTalk
)

func (k ActivityKind) String() string {
	switch k {
	case ActGoto:
		return "goto"
	case ActGotoFlying:
		return "goto_flying"
	case ActGather:
		return "gather"
	case ActHuntAnimals:
		return "hunt_animals"
	case ActDance:
		return "dance"
	case ActCheer:
		return "cheer"
	case ActSit:
		return "sit"
	case ActTalk:
		return "talk"
	}
	return "idle"
}

// Activity is the continuous thing an NPC is doing this tick. Only the
// fields relevant to Kind are set.
type Activity struct {
	Kind      ActivityKind
	WPos      mathx.Vec3
	Speed     float64
	Height    *float64
	Dir       *mathx.Vec2
	Resources []ChunkResource
	Target    Actor
}

type NpcActionKind uint8

const (
	ActionSay NpcActionKind = iota + 1
	ActionAttack
	ActionDialogue
)

// NpcAction is a discrete one-shot output: speech, an attack, or a dialogue turn.
type NpcAction struct {
	Kind     NpcActionKind
	Target   Actor // zero for undirected speech
	Content  Content
	Dialogue Dialogue
}

// DialogueSession is an ongoing conversation with another actor.
type DialogueSession struct {
	Target Actor
	ID     DialogueID
}

type homeChange struct{ site *SiteID }

type hiringChange struct{ hiring *Hiring }

// Controller is the per-tick, write-only intent of an NPC. The AI writes it;
// embodiment and persistence consume it.
type Controller struct {
	Activity *Activity
	Actions  []NpcAction
	LookDir  *mathx.Vec2

	newHome *homeChange
	hiring  *hiringChange
}

// Reset clears the continuous intent before a brain tick. Queued actions and
// pending side-channel changes survive until they are drained.
func (c *Controller) Reset() {
	c.Activity = nil
	c.LookDir = nil
}

func (c *Controller) DoIdle() { c.Activity = nil }

func (c *Controller) DoTalk(tgt Actor) { c.Activity = &Activity{Kind: ActTalk, Target: tgt} }

func (c *Controller) DoGoto(wpos mathx.Vec3, speed float64) {
	c.Activity = &Activity{Kind: ActGoto, WPos: wpos, Speed: speed}
}

func (c *Controller) DoGotoFlying(wpos mathx.Vec3, speed float64, height *float64, dir *mathx.Vec2) {
	c.Activity = &Activity{Kind: ActGotoFlying, WPos: wpos, Speed: speed, Height: height, Dir: dir}
}

func (c *Controller) DoGather(res ...ChunkResource) {
	c.Activity = &Activity{Kind: ActGather, Resources: res}
}

func (c *Controller) DoHuntAnimals() { c.Activity = &Activity{Kind: ActHuntAnimals} }

func (c *Controller) DoDance(dir *mathx.Vec2) { c.Activity = &Activity{Kind: ActDance, Dir: dir} }

func (c *Controller) DoCheer(dir *mathx.Vec2) { c.Activity = &Activity{Kind: ActCheer, Dir: dir} }

func (c *Controller) DoSit(dir *mathx.Vec2, pos *mathx.Vec3) {
	a := &Activity{Kind: ActSit, Dir: dir}
	if pos != nil {
		a.WPos = *pos
	}
	c.Activity = a
}

func (c *Controller) Say(target Actor, content Content) {
	c.Actions = append(c.Actions, NpcAction{Kind: ActionSay, Target: target, Content: content})
}

func (c *Controller) Attack(target Actor) {
	c.Actions = append(c.Actions, NpcAction{Kind: ActionAttack, Target: target})
}

func (c *Controller) SetNewHome(site *SiteID) { c.newHome = &homeChange{site: site} }

func (c *Controller) SetNewlyHired(by Actor, expires float64) {
	c.hiring = &hiringChange{hiring: &Hiring{By: by, Expires: expires}}
}

func (c *Controller) EndHiring() { c.hiring = &hiringChange{} }

// TakeNewHome returns and clears a pending home change.
func (c *Controller) TakeNewHome() (site *SiteID, changed bool) {
	if c.newHome == nil {
		return nil, false
	}
	site = c.newHome.site
	c.newHome = nil
	return site, true
}

// TakeHiring returns and clears a pending hiring change. A nil hiring with
// changed=true ends the current contract.
func (c *Controller) TakeHiring() (h *Hiring, changed bool) {
	if c.hiring == nil {
		return nil, false
	}
	h = c.hiring.hiring
	c.hiring = nil
	return h, true
}

// TakeActions drains the queued one-shot actions.
func (c *Controller) TakeActions() []NpcAction {
	out := c.Actions
	c.Actions = nil
	return out
}

func (c *Controller) dialogue(s DialogueSession, d Dialogue) {
	d.ID = s.ID
	c.Actions = append(c.Actions, NpcAction{Kind: ActionDialogue, Target: s.Target, Dialogue: d})
}

func (c *Controller) DialogueStart(target Actor, id DialogueID) DialogueSession {
	s := DialogueSession{Target: target, ID: id}
	c.dialogue(s, Dialogue{Kind: DialogueStart})
	return s
}

func (c *Controller) DialogueEnd(s DialogueSession) {
	c.dialogue(s, Dialogue{Kind: DialogueEnd})
}

func (c *Controller) DialogueStatement(s DialogueSession, msg Content) {
	c.dialogue(s, Dialogue{Kind: DialogueStatement, Msg: msg})
}

// DialogueQuestion asks a question tagged with tag; answers carry the same tag.
func (c *Controller) DialogueQuestion(s DialogueSession, tag uint32, msg Content, responses []ResponseOption) {
	c.dialogue(s, Dialogue{Kind: DialogueQuestion, Tag: tag, Msg: msg, Responses: responses})
}

func (c *Controller) DialogueResponse(s DialogueSession, tag uint32, opt ResponseOption) {
	c.dialogue(s, Dialogue{Kind: DialogueResponse, Tag: tag, Response: opt.Response, ResponseID: opt.ID})
}

func (c *Controller) DialogueMarker(s DialogueSession, wpos mathx.Vec2, name Content) {
	c.dialogue(s, Dialogue{Kind: DialogueMarker, MarkerPos: wpos, Msg: name})
}
