package rtsim

import (
	"context"
	"time"

	"rtsim.ai/internal/sim/rtsim/data"
	"rtsim.ai/internal/sim/rtsim/feed"
	"rtsim.ai/internal/sim/rtsim/npcai"
	"rtsim.ai/internal/sim/rtsim/simulate"
)

func (s *Sim) Run(ctx context.Context) error {
	interval := time.Second / time.Duration(s.cfg.Tuning.TickRateHz)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var pendingJoins []JoinRequest
	var pendingLeaves []string
	var pendingMsgs []ClientEnvelope

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.stop:
			return nil
		case req := <-s.join:
			pendingJoins = append(pendingJoins, req)
		case id := <-s.leave:
			pendingLeaves = append(pendingLeaves, id)
		case env := <-s.inbox:
			pendingMsgs = append(pendingMsgs, env)
		case <-ticker.C:
			s.stepInternal(ctx, pendingJoins, pendingLeaves, pendingMsgs)
			pendingJoins = pendingJoins[:0]
			pendingLeaves = pendingLeaves[:0]
			pendingMsgs = pendingMsgs[:0]
		}
	}
}

// Stop ends Run. It is safe to call more than once.
func (s *Sim) Stop() {
	s.stopOnce.Do(func() { close(s.stop) })
}

// StepOnce advances the simulation by one tick with the same ordering as
// Run. It is meant for replays and tests.
func (s *Sim) StepOnce(ctx context.Context, joins []JoinRequest, leaves []string, msgs []ClientEnvelope) TickLogEntry {
	return s.stepInternal(ctx, joins, leaves, msgs)
}

func (s *Sim) stepInternal(ctx context.Context, joins []JoinRequest, leaves []string, msgs []ClientEnvelope) TickLogEntry {
	stepStart := time.Now()
	d := s.data
	t := s.cfg.Tuning
	dt := t.TickDt()
	nowTick := s.tick.Load() + 1

	d.Tick = nowTick
	d.Time += dt
	d.TimeOfDay += dt * t.DayCycleFactor

	entry := TickLogEntry{Tick: nowTick, Time: d.Time, TimeOfDay: d.TimeOfDay}

	// Sessions change at the tick boundary, leaves first.
	for _, id := range leaves {
		if c, ok := s.handleLeave(id); ok {
			entry.Leaves = append(entry.Leaves, uint64(c))
		}
	}
	for _, req := range joins {
		resp := s.handleJoin(req)
		if req.Resp != nil {
			req.Resp <- resp
		}
		if resp.ErrCode == "" {
			entry.Joins = append(entry.Joins, uint64(req.Character))
		}
	}
	d.RebuildGrid()
	for _, env := range msgs {
		s.handleClientMsg(env)
	}

	events, err := s.source.Poll(ctx)
	if err != nil {
		s.logger.Printf("feed poll: %v", err)
	}
	if len(events) > 0 {
		ing := feed.Ingest(d, events, t.Feed.ReportRadius)
		for _, id := range ing.Reports {
			entry.Reports = append(entry.Reports, reportRecord(d, id))
		}
		if ing.Rejected > 0 {
			s.logger.Printf("feed: rejected %d events", ing.Rejected)
		}
	}

	s.updateModes()
	res, err := s.sched.Tick(ctx, d, npcai.TickInput{Tick: nowTick, Dt: dt, Time: d.Time, TimeOfDay: d.TimeOfDay})
	if err != nil {
		s.logger.Printf("tick %d: scheduler: %v", nowTick, err)
	}
	entry.Polled = res.Polled
	entry.Loaded = res.Loaded
	entry.Simulated = res.Simulated
	entry.SimulatedDt = res.SimulatedDt

	s.syncEntities()
	var staged combatStage
	for _, em := range res.Emitted {
		switch em.Action.Kind {
		case data.ActionSay:
			entry.Speech = append(entry.Speech, s.routeSay(nowTick, em.From, em.Action))
		case data.ActionDialogue:
			entry.Dialogue = append(entry.Dialogue, s.routeDialogue(nowTick, em.From, em.Action))
		case data.ActionAttack:
			if s.stageAttack(&staged, em.From, em.Action.Target) {
				entry.Attacks++
			}
		}
	}

	simulate.Run(d, s.world, simulate.Input{Tick: nowTick, Time: d.Time, Dt: dt, Speed: s.moveSpeed})

	combat := s.resolveBuffs(ctx, nowTick, staged)
	entry.BuffEvents = combat.events
	for _, id := range combat.deaths {
		entry.Deaths = append(entry.Deaths, uint64(id))
	}
	entry.Reports = append(entry.Reports, combat.reports...)

	if s.tickLogger != nil {
		if err := s.tickLogger.WriteTick(entry); err != nil {
			s.logger.Printf("tick %d: log: %v", nowTick, err)
		}
	}

	// Snapshot every N ticks, starting after tick 0.
	if s.snapshotSink != nil && t.SnapshotEveryTicks > 0 && nowTick%uint64(t.SnapshotEveryTicks) == 0 {
		select {
		case s.snapshotSink <- s.ExportSnapshot():
		default:
			// Drop snapshot if sink is backed up.
		}
	}

	s.tick.Store(nowTick)
	st := TickStats{
		Tick:       nowTick,
		Npcs:       len(d.Npcs),
		Clients:    len(s.clients),
		Polled:     res.Polled,
		Loaded:     res.Loaded,
		Simulated:  res.Simulated,
		Delivered:  res.Delivered,
		Panics:     res.Panics + combat.panics,
		BuffEvents: combat.events,
		Deaths:     len(combat.deaths),
		StepMS:     float64(time.Since(stepStart).Microseconds()) / 1000.0,
	}
	s.stats.Store(st)
	if s.metrics != nil {
		s.metrics.RecordTick(st)
	}
	return entry
}

// updateModes loads NPCs near a connected character and simulates the rest.
func (s *Sim) updateModes() {
	rSq := s.cfg.LoadRadius * s.cfg.LoadRadius
	for _, n := range s.data.Npcs {
		n.Mode = data.Simulated
		for _, c := range s.data.Characters {
			if n.WPos.DistSq(c.WPos) < rSq {
				n.Mode = data.Loaded
				break
			}
		}
	}
}

func reportRecord(d *data.Data, id data.ReportID) ReportRecord {
	rep, _ := d.Reports.Get(id)
	r := ReportRecord{ID: uint64(id), Kind: rep.Kind.String(), AtTOD: rep.AtTOD}
	switch rep.Kind {
	case data.ReportDeath:
		r.Actor = rep.Actor.String()
		if rep.Killer != nil {
			r.Killer = rep.Killer.String()
		}
	case data.ReportTheft:
		r.Actor = rep.Thief.String()
	}
	return r
}
