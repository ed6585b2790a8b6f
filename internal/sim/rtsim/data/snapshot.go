package data

import (
	"fmt"
	"sort"

	"rtsim.ai/internal/persistence/snapshot"
	"rtsim.ai/internal/sim/mathx"
	"rtsim.ai/internal/sim/world"
)

// ExportSnapshot copies the durable state into a snapshot. It must be called
// from the tick goroutine.
func (d *Data) ExportSnapshot(worldID string) snapshot.SnapshotV1 {
	s := snapshot.SnapshotV1{
		Header:    snapshot.Header{Version: snapshot.Version, WorldID: worldID, Tick: d.Tick},
		Time:      d.Time,
		TimeOfDay: d.TimeOfDay,
		Counters: snapshot.CountersV1{
			NextNpc:    uint64(d.NextUID),
			NextSite:   uint64(d.Sites.NextID),
			NextReport: uint64(d.Reports.NextID),
		},
	}

	for _, id := range d.NpcIDs() {
		s.Npcs = append(s.Npcs, exportNpc(d.Npcs[id]))
	}
	for _, id := range d.Sites.IDs() {
		site := d.Sites.Entries[id]
		s.Sites = append(s.Sites, snapshot.SiteV1{
			ID:        uint64(id),
			Pos:       [2]float64{site.WPos.X, site.WPos.Y},
			Name:      site.Name,
			WorldSite: (*uint64)(site.WorldSite),
			Faction:   (*uint64)(site.Faction),
		})
	}

	reportIDs := make([]ReportID, 0, len(d.Reports.Entries))
	for id := range d.Reports.Entries {
		reportIDs = append(reportIDs, id)
	}
	sort.Slice(reportIDs, func(i, j int) bool { return reportIDs[i] < reportIDs[j] })
	for _, id := range reportIDs {
		rep := d.Reports.Entries[id]
		rv := snapshot.ReportV1{
			ID:     uint64(id),
			Kind:   uint8(rep.Kind),
			Site:   (*uint64)(rep.Site),
			Sprite: rep.Sprite,
			AtTOD:  rep.AtTOD,
		}
		if !rep.Actor.IsZero() {
			rv.Actor = rep.Actor.String()
		}
		if rep.Killer != nil {
			rv.Killer = rep.Killer.String()
		}
		if !rep.Thief.IsZero() {
			rv.Thief = rep.Thief.String()
		}
		s.Reports = append(s.Reports, rv)
	}

	for _, link := range d.Links.Links() {
		s.Links = append(s.Links, snapshot.LinkV1{
			ID:       uint64(link.ID),
			Mount:    uint64(link.Mount),
			Rider:    link.Rider.String(),
			Steering: link.IsSteering,
		})
	}
	return s
}

func exportNpc(n *Npc) snapshot.NpcV1 {
	v := snapshot.NpcV1{
		ID:             uint64(n.UID),
		Seed:           n.Seed,
		Pos:            [3]float64{n.WPos.X, n.WPos.Y, n.WPos.Z},
		Dir:            [2]float64{n.Dir.X, n.Dir.Y},
		Body:           uint8(n.Body),
		Role:           snapshot.RoleV1{Kind: uint8(n.Role.Kind)},
		Home:           (*uint64)(n.Home),
		Faction:        (*uint64)(n.Faction),
		HealthFraction: n.HealthFraction,
		Personality: [5]uint8{
			n.Personality.Openness,
			n.Personality.Conscientiousness,
			n.Personality.Extraversion,
			n.Personality.Agreeableness,
			n.Personality.Neuroticism,
		},
	}
	if p := n.Role.Profession; p != nil {
		v.Role.Profession = &snapshot.ProfessionV1{Kind: uint8(p.Kind), Level: p.Level, Leader: p.Leader}
	}
	for a, s := range n.Sentiments.Toward {
		v.Sentiments = append(v.Sentiments, snapshot.SentimentV1{Actor: a.String(), Value: float32(s)})
	}
	sort.Slice(v.Sentiments, func(i, j int) bool { return v.Sentiments[i].Actor < v.Sentiments[j].Actor })
	for id := range n.KnownReports {
		v.KnownReports = append(v.KnownReports, uint64(id))
	}
	sort.Slice(v.KnownReports, func(i, j int) bool { return v.KnownReports[i] < v.KnownReports[j] })
	if n.Hiring != nil {
		v.Hiring = &snapshot.HiringV1{By: n.Hiring.By.String(), Expires: n.Hiring.Expires}
	}
	return v
}

// ImportSnapshot rebuilds a registry from a snapshot. Transient NPC state
// starts from defaults and the spatial grid is rebuilt.
func ImportSnapshot(s snapshot.SnapshotV1) (*Data, error) {
	if s.Header.Version != snapshot.Version {
		return nil, fmt.Errorf("unsupported snapshot version: %d", s.Header.Version)
	}
	d := New()
	d.Tick = s.Header.Tick
	d.Time = s.Time
	d.TimeOfDay = s.TimeOfDay

	for _, sv := range s.Sites {
		id := SiteID(sv.ID)
		d.Sites.Entries[id] = &Site{
			ID:         id,
			WPos:       mathx.V2(sv.Pos[0], sv.Pos[1]),
			Name:       sv.Name,
			WorldSite:  (*world.SiteID)(sv.WorldSite),
			Faction:    (*FactionID)(sv.Faction),
			Population: map[NpcID]struct{}{},
		}
	}

	for _, rv := range s.Reports {
		rep := Report{Kind: ReportKind(rv.Kind), Site: (*SiteID)(rv.Site), Sprite: rv.Sprite, AtTOD: rv.AtTOD}
		var err error
		if rv.Actor != "" {
			if rep.Actor, err = ParseActor(rv.Actor); err != nil {
				return nil, fmt.Errorf("report %d: %w", rv.ID, err)
			}
		}
		if rv.Killer != "" {
			k, err := ParseActor(rv.Killer)
			if err != nil {
				return nil, fmt.Errorf("report %d: %w", rv.ID, err)
			}
			rep.Killer = &k
		}
		if rv.Thief != "" {
			if rep.Thief, err = ParseActor(rv.Thief); err != nil {
				return nil, fmt.Errorf("report %d: %w", rv.ID, err)
			}
		}
		d.Reports.Entries[ReportID(rv.ID)] = rep
	}

	for _, nv := range s.Npcs {
		n, err := importNpc(nv)
		if err != nil {
			return nil, err
		}
		d.Npcs[n.UID] = n
	}

	links := make([]NpcLink, 0, len(s.Links))
	for _, lv := range s.Links {
		rider, err := ParseActor(lv.Rider)
		if err != nil {
			return nil, fmt.Errorf("link %d: %w", lv.ID, err)
		}
		links = append(links, NpcLink{ID: MountLinkID(lv.ID), Mount: NpcID(lv.Mount), Rider: rider, IsSteering: lv.Steering})
	}
	d.Links = RestoreNpcLinks(links, d.alive)

	d.NextUID = NpcID(s.Counters.NextNpc)
	d.Sites.NextID = SiteID(s.Counters.NextSite)
	d.Reports.NextID = ReportID(s.Counters.NextReport)
	// Counters from older writers may lag the stored ids.
	for id := range d.Npcs {
		if id >= d.NextUID {
			d.NextUID = id + 1
		}
	}
	for id := range d.Sites.Entries {
		if id >= d.Sites.NextID {
			d.Sites.NextID = id + 1
		}
	}
	for id := range d.Reports.Entries {
		if id >= d.Reports.NextID {
			d.Reports.NextID = id + 1
		}
	}

	d.RebuildGrid()
	return d, nil
}

func importNpc(v snapshot.NpcV1) (*Npc, error) {
	role := Role{Kind: RoleKind(v.Role.Kind)}
	if p := v.Role.Profession; p != nil {
		role.Profession = &Profession{Kind: ProfessionKind(p.Kind), Level: p.Level, Leader: p.Leader}
	}
	n := NewNpc(v.Seed, mathx.V3(v.Pos[0], v.Pos[1], v.Pos[2]), Body(v.Body), role)
	n.UID = NpcID(v.ID)
	n.Dir = mathx.V2(v.Dir[0], v.Dir[1])
	n.Home = (*SiteID)(v.Home)
	n.Faction = (*FactionID)(v.Faction)
	n.HealthFraction = v.HealthFraction
	n.Personality = Personality{
		Openness:          v.Personality[0],
		Conscientiousness: v.Personality[1],
		Extraversion:      v.Personality[2],
		Agreeableness:     v.Personality[3],
		Neuroticism:       v.Personality[4],
	}
	for _, sv := range v.Sentiments {
		a, err := ParseActor(sv.Actor)
		if err != nil {
			return nil, fmt.Errorf("npc %d sentiment: %w", v.ID, err)
		}
		n.Sentiments.Toward[a] = Sentiment(sv.Value)
	}
	for _, id := range v.KnownReports {
		n.KnownReports[ReportID(id)] = struct{}{}
	}
	if v.Hiring != nil {
		by, err := ParseActor(v.Hiring.By)
		if err != nil {
			return nil, fmt.Errorf("npc %d hiring: %w", v.ID, err)
		}
		n.Hiring = &Hiring{By: by, Expires: v.Hiring.Expires}
	}
	return n, nil
}
