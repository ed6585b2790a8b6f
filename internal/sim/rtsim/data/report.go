package data

import "strings"

// ReportResponseTime is how long after an event NPCs still comment on it,
// in time-of-day seconds.
const ReportResponseTime = 60 * 5

// ReportLifetime is how long a report is remembered before cleanup.
const ReportLifetime = 60 * 60 * 24 * 3

type ReportKind uint8

const (
	ReportDeath ReportKind = iota + 1
	ReportTheft
)

func (k ReportKind) String() string {
	switch k {
	case ReportDeath:
		return "death"
	case ReportTheft:
		return "theft"
	}
	return "unknown"
}

// Report is a world event NPCs can learn about. Death uses Actor and
// Killer; theft uses Thief, Site and Sprite.
type Report struct {
	Kind   ReportKind
	Actor  Actor
	Killer *Actor
	Thief  Actor
	Site   *SiteID
	Sprite string
	AtTOD  float64
}

func DeathReport(victim Actor, killer *Actor, atTOD float64) Report {
	return Report{Kind: ReportDeath, Actor: victim, Killer: killer, AtTOD: atTOD}
}

func TheftReport(thief Actor, site *SiteID, sprite string, atTOD float64) Report {
	return Report{Kind: ReportTheft, Thief: thief, Site: site, Sprite: sprite, AtTOD: atTOD}
}

// Reports is the append-only event feed, keyed by monotonically allocated ids.
type Reports struct {
	NextID  ReportID
	Entries map[ReportID]Report
}

func NewReports() Reports {
	return Reports{NextID: 1, Entries: map[ReportID]Report{}}
}

func (r *Reports) Create(rep Report) ReportID {
	if r.Entries == nil {
		r.Entries = map[ReportID]Report{}
	}
	if r.NextID == 0 {
		r.NextID = 1
	}
	id := r.NextID
	r.NextID++
	r.Entries[id] = rep
	return id
}

func (r *Reports) Get(id ReportID) (Report, bool) {
	rep, ok := r.Entries[id]
	return rep, ok
}

func (r *Reports) Contains(id ReportID) bool {
	_, ok := r.Entries[id]
	return ok
}

// Cleanup forgets reports older than ReportLifetime and returns how many
// were dropped.
func (r *Reports) Cleanup(nowTOD float64) int {
	n := 0
	for id, rep := range r.Entries {
		if nowTOD-rep.AtTOD > ReportLifetime {
			delete(r.Entries, id)
			n++
		}
	}
	return n
}

// SpriteCategory is the part of a sprite name before the first colon,
// e.g. "plant" for "plant:wheat_green".
func SpriteCategory(sprite string) string {
	if i := strings.IndexByte(sprite, ':'); i >= 0 {
		return sprite[:i]
	}
	return ""
}
