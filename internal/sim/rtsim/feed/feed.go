// Package feed brings world events (deaths, thefts) into rtsim as reports
// and tells nearby NPCs about them.
package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"rtsim.ai/internal/sim/mathx"
	"rtsim.ai/internal/sim/rtsim/data"
)

const (
	KindDeath = "death"
	KindTheft = "theft"
)

// Event is one externally observed world event. Actors use the
// "npc:<id>" / "char:<id>" form.
type Event struct {
	ID     string     `json:"-"`
	Kind   string     `json:"kind"`
	Victim string     `json:"victim,omitempty"`
	Killer string     `json:"killer,omitempty"`
	Thief  string     `json:"thief,omitempty"`
	Site   *uint64    `json:"site,omitempty"`
	Sprite string     `json:"sprite,omitempty"`
	Pos    [3]float64 `json:"pos"`
}

func (e Event) WPos() mathx.Vec3 { return mathx.V3(e.Pos[0], e.Pos[1], e.Pos[2]) }

// Report converts the event into an rtsim report stamped at tod.
func (e Event) Report(tod float64) (data.Report, error) {
	switch e.Kind {
	case KindDeath:
		victim, err := data.ParseActor(e.Victim)
		if err != nil {
			return data.Report{}, fmt.Errorf("victim: %w", err)
		}
		var killer *data.Actor
		if e.Killer != "" {
			k, err := data.ParseActor(e.Killer)
			if err != nil {
				return data.Report{}, fmt.Errorf("killer: %w", err)
			}
			killer = &k
		}
		return data.DeathReport(victim, killer, tod), nil
	case KindTheft:
		thief, err := data.ParseActor(e.Thief)
		if err != nil {
			return data.Report{}, fmt.Errorf("thief: %w", err)
		}
		var site *data.SiteID
		if e.Site != nil {
			s := data.SiteID(*e.Site)
			site = &s
		}
		return data.TheftReport(thief, site, e.Sprite, tod), nil
	}
	return data.Report{}, fmt.Errorf("unknown event kind %q", e.Kind)
}

func DecodeEvent(b []byte) (Event, error) {
	var e Event
	if err := json.Unmarshal(b, &e); err != nil {
		return Event{}, err
	}
	return e, nil
}

// Source yields events not returned before. Poll must not block.
type Source interface {
	Poll(ctx context.Context) ([]Event, error)
}

// MemorySource is a Source fed in-process, by tests and by the server's own
// buff deaths.
type MemorySource struct {
	mu     sync.Mutex
	events []Event
	next   uint64
}

func NewMemorySource() *MemorySource { return &MemorySource{} }

func (m *MemorySource) Push(e Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.next++
	if e.ID == "" {
		e.ID = fmt.Sprintf("mem-%d", m.next)
	}
	m.events = append(m.events, e)
}

func (m *MemorySource) Poll(context.Context) ([]Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := m.events
	m.events = nil
	return out, nil
}

type IngestResult struct {
	Reports   []data.ReportID
	Delivered int
	Rejected  int
}

// Ingest records each event as a report and pushes it into the inbox of
// every living NPC within radius. The spatial grid of d must be current.
func Ingest(d *data.Data, events []Event, radius float64) IngestResult {
	var res IngestResult
	for _, e := range events {
		rep, err := e.Report(d.TimeOfDay)
		if err != nil {
			res.Rejected++
			continue
		}
		id, n := Announce(d, rep, e.WPos(), radius)
		res.Reports = append(res.Reports, id)
		res.Delivered += n
	}
	return res
}

// Announce records rep and tells the NPCs within radius of wpos about it.
// It returns the new report id and how many inboxes it reached.
func Announce(d *data.Data, rep data.Report, wpos mathx.Vec3, radius float64) (data.ReportID, int) {
	id := d.Reports.Create(rep)
	delivered := 0
	for _, a := range d.Nearby(nil, wpos, radius) {
		nid, ok := a.NpcID()
		if !ok {
			continue
		}
		if n, ok := d.Npc(nid); ok && !n.IsDead() {
			n.Inbox.Push(data.ReportInput(id))
			delivered++
		}
	}
	return id, delivered
}
