package rtsim

import (
	"context"

	"rtsim.ai/internal/sim/buff"
	"rtsim.ai/internal/sim/rtsim/data"
	"rtsim.ai/internal/sim/rtsim/feed"
)

const (
	attackRange    = 8
	attackCooldown = 1.0
	attackDamage   = 10

	// Guards shield civilised NPCs around them.
	guardAura       buff.AuraKey = 1
	guardAuraRadius              = 16

	// Conditional buffs are refreshed this often while their condition holds.
	refreshEveryTicks = 30
)

// combatStage collects the cross-entity effects of NPC actions. They are
// applied after buff resolution, in emission order.
type combatStage struct {
	health  []buff.HealthChange
	changes []buff.Change
}

type combatResult struct {
	events  int
	panics  int
	deaths  []data.NpcID
	reports []ReportRecord
}

func entityID(id data.NpcID) buff.EntityID { return buff.EntityID(id) }

func baseHealth(b data.Body) float32 {
	switch b {
	case data.BodyQuadrupedSmall:
		return 60
	case data.BodyQuadrupedMedium:
		return 120
	case data.BodyBirdMedium:
		return 40
	case data.BodyBirdLarge:
		return 150
	case data.BodyAirBalloon, data.BodyAirship, data.BodySailBoat:
		return 500
	}
	return 100
}

func armorOf(n *data.Npc) float32 {
	p, ok := n.Profession()
	if !ok {
		return 0
	}
	switch p.Kind {
	case data.Guard:
		return 0.3
	case data.Adventurer:
		return min(0.1*float32(p.Level), 0.5)
	case data.Pirate:
		return 0.15
	}
	return 0
}

func newEntity(n *data.Npc) *buff.Entity {
	hp := baseHealth(n.Body)
	body := buff.Body(n.Body.String())
	return &buff.Entity{
		ID:     entityID(n.UID),
		Pos:    n.WPos,
		Body:   body,
		Health: buff.Health{Current: n.HealthFraction * hp, Max: hp, BaseMax: hp, Dead: n.IsDead()},
		Energy: buff.Energy{Current: 100, Max: 100},
		Armor:  armorOf(n),
		Buffs:  buff.NewBuffs(),
		Stats:  buff.NewStats(body),
	}
}

func isGuard(n *data.Npc) bool {
	p, ok := n.Profession()
	return ok && p.Kind == data.Guard
}

// syncEntities mirrors NPC positions and surroundings into the buff
// entities, creating and dropping entities as NPCs come and go.
func (s *Sim) syncEntities() {
	for id := range s.ents {
		if _, ok := s.data.Npcs[id]; !ok {
			delete(s.ents, id)
			delete(s.nextAttack, id)
		}
	}
	water := s.world.WaterLevel()
	for id, n := range s.data.Npcs {
		e := s.ents[id]
		if e == nil {
			e = newEntity(n)
			s.ents[id] = e
		}
		e.Pos = n.WPos
		e.Health.Dead = n.IsDead()
		e.Contact = nil
		if !n.Body.CanFly() && !n.Body.IsShip() && n.WPos.Z < water-1 {
			e.Contact = &buff.Contact{Fluid: buff.Water}
		}
		e.Auras = nil
		if isGuard(n) && !n.IsDead() {
			e.Auras = map[buff.AuraKey]buff.Aura{guardAura: {Radius: guardAuraRadius}}
		}
	}
}

// entities lists the buff entities in NPC id order.
func (s *Sim) entities() []*buff.Entity {
	ids := s.data.NpcIDs()
	out := make([]*buff.Entity, 0, len(ids))
	for _, id := range ids {
		if e := s.ents[id]; e != nil {
			out = append(out, e)
		}
	}
	return out
}

func (s *Sim) moveSpeed(id data.NpcID) float64 {
	e := s.ents[id]
	if e == nil || e.Stats == nil {
		return 1
	}
	return float64(max(e.Stats.MoveSpeed, 0))
}

// stageAttack turns an NPC attack into damage and bleeding on the target.
// Attacks on characters are left to the character's own server.
func (s *Sim) stageAttack(st *combatStage, from data.NpcID, target data.Actor) bool {
	tid, ok := target.NpcID()
	if !ok || tid == from {
		return false
	}
	attacker, ok := s.data.Npc(from)
	if !ok || attacker.IsDead() {
		return false
	}
	victim, ok := s.data.Npc(tid)
	if !ok || victim.IsDead() {
		return false
	}
	if attacker.WPos.DistSq(victim.WPos) > attackRange*attackRange {
		return false
	}
	now := s.data.Time
	if now < s.nextAttack[from] {
		return false
	}
	s.nextAttack[from] = now + attackCooldown

	att, vic := s.ents[from], s.ents[tid]
	dmg := float32(attackDamage) * att.Stats.AttackDamage * (1 - vic.Stats.DamageReductionWith(vic.Armor))
	by := entityID(from)
	st.health = append(st.health, buff.HealthChange{
		Entity: entityID(tid),
		Amount: -dmg,
		By:     &by,
		Time:   now,
	})
	b := buff.New(buff.Bleeding, buff.NewData(1, buff.Secs(4)), nil, buff.ByCharacter(by), now, vic.Stats)
	st.changes = append(st.changes, buff.Change{Entity: entityID(tid), Op: buff.OpAdd, Buff: &b})
	return true
}

// stageConditional refreshes the aura and link buffs whose source still
// holds. The engine detaches them once it no longer does.
func (s *Sim) stageConditional(st *combatStage, tick uint64) {
	if tick%refreshEveryTicks != 0 {
		return
	}
	now := s.data.Time
	for _, id := range s.data.NpcIDs() {
		g := s.data.Npcs[id]
		if !isGuard(g) || g.IsDead() {
			continue
		}
		src := entityID(id)
		for _, a := range s.data.Nearby(&id, g.WPos, guardAuraRadius) {
			nid, ok := a.NpcID()
			if !ok {
				continue
			}
			n := s.data.Npcs[nid]
			if n.Role.Kind != data.RoleCivilised || isGuard(n) {
				continue
			}
			b := buff.New(buff.ProtectingWard, buff.NewData(0.2, buff.Secs(5)),
				[]buff.Category{buff.AuraCat(src, guardAura)}, buff.ByCharacter(src), now, s.ents[nid].Stats)
			st.changes = append(st.changes, buff.Change{Entity: entityID(nid), Op: buff.OpAdd, Buff: &b})
		}
	}
	for _, link := range s.data.Links.Links() {
		rider, ok := link.Rider.NpcID()
		if !ok || s.ents[rider] == nil {
			continue
		}
		b := buff.New(buff.Resilience, buff.NewData(0.5, buff.Secs(5)),
			[]buff.Category{buff.LinkCat(buff.LinkID(link.ID))}, buff.World, now, s.ents[rider].Stats)
		st.changes = append(st.changes, buff.Change{Entity: entityID(rider), Op: buff.OpAdd, Buff: &b})
	}
}

func (s *Sim) linkAlive(id buff.LinkID) bool {
	_, ok := s.data.Links.Get(data.MountLinkID(id))
	return ok
}

// resolveBuffs runs the buff engine, then applies every health, energy and
// body change in order and turns fatal damage into deaths.
func (s *Sim) resolveBuffs(ctx context.Context, tick uint64, st combatStage) combatResult {
	var out combatResult
	s.stageConditional(&st, tick)
	ents := s.entities()
	now := s.data.Time
	res, err := s.buffs.Tick(ctx, ents, buff.TickInput{
		Tick:      tick,
		Time:      now,
		Dt:        s.cfg.Tuning.TickDt(),
		Seed:      s.cfg.Tuning.Seed,
		LinkAlive: s.linkAlive,
	})
	if err != nil {
		s.logger.Printf("tick %d: buffs: %v", tick, err)
	}
	out.panics = res.Panics
	out.events = res.Events.Len()

	health := append(st.health, res.Health...)
	for _, hc := range health {
		id := data.NpcID(hc.Entity)
		e, n := s.ents[id], s.data.Npcs[id]
		if e == nil || n == nil || e.Health.Dead {
			continue
		}
		e.Health.Current = min(max(e.Health.Current+hc.Amount, 0), e.Health.Max)
		if e.Health.Current > 0 {
			continue
		}
		var killer *data.Actor
		if hc.By != nil && *hc.By != hc.Entity {
			k := data.NpcActor(data.NpcID(*hc.By))
			killer = &k
		}
		out.deaths = append(out.deaths, id)
		out.reports = append(out.reports, s.kill(id, killer))
	}
	for _, ec := range res.Energy {
		if e := s.ents[data.NpcID(ec.Entity)]; e != nil {
			e.Energy.Current = min(max(e.Energy.Current+ec.Amount, 0), e.Energy.Max)
		}
	}
	for _, bc := range res.Body {
		if e := s.ents[data.NpcID(bc.Entity)]; e != nil {
			e.Body = bc.Body
		}
	}

	changes := append(st.changes, res.Changes...)
	buff.Apply(ents, changes, now)

	for _, e := range ents {
		if e.Health.Dead {
			continue
		}
		if e.Stats != nil {
			e.Health.Max = max(e.Stats.MaxHealth.Apply(e.Health.BaseMax), 1)
			e.Health.Current = min(e.Health.Current, e.Health.Max)
		}
		if n := s.data.Npcs[data.NpcID(e.ID)]; n != nil {
			n.HealthFraction = e.Health.Fraction()
		}
	}
	return out
}

// kill marks the NPC dead, breaks its mount links and tells the NPCs
// around it.
func (s *Sim) kill(id data.NpcID, killer *data.Actor) ReportRecord {
	n := s.data.Npcs[id]
	e := s.ents[id]
	e.Health.Current = 0
	e.Health.Dead = true
	e.Buffs = buff.NewBuffs()
	n.HealthFraction = 0

	self := data.NpcActor(id)
	s.data.Links.RemoveMount(id)
	s.data.Links.Dismount(self)

	rid, _ := feed.Announce(s.data, data.DeathReport(self, killer, s.data.TimeOfDay), n.WPos, s.cfg.Tuning.Feed.ReportRadius)
	s.logger.Printf("npc %d (%s) died", id, n.Name())
	return reportRecord(s.data, rid)
}
