package indexdb

import (
	"encoding/json"
	"time"

	"github.com/jmoiron/sqlx"

	"rtsim.ai/internal/sim/rtsim"
)

const (
	commitEvery   = 2000
	commitMaxWait = 2 * time.Second
)

func (s *SQLiteIndex) loop() {
	var (
		tx         *sqlx.Tx
		opCount    int
		lastCommit = time.Now()
	)

	begin := func() {
		if tx != nil {
			return
		}
		txx, err := s.db.Beginx()
		if err != nil {
			s.writeErrors.Add(1)
			time.Sleep(50 * time.Millisecond)
			return
		}
		tx = txx
		opCount = 0
		lastCommit = time.Now()
	}
	commit := func() {
		if tx == nil {
			return
		}
		if err := tx.Commit(); err != nil {
			s.writeErrors.Add(1)
		}
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}

	for r := range s.ch {
		if r.kind == reqSync {
			commit()
			close(r.done)
			continue
		}
		begin()
		if tx == nil {
			continue
		}
		var err error
		switch r.kind {
		case reqTick:
			var n int
			n, err = insertTick(tx, r.tick)
			opCount += n
		case reqSnapshot:
			_, err = tx.NamedExec(`INSERT OR REPLACE INTO snapshots(tick,path,seed,npcs,sites,reports,links)
				VALUES(:tick,:path,:seed,:npcs,:sites,:reports,:links)`, r.snapshot)
			opCount++
		}
		if err != nil {
			// One bad row must not poison the rest of the batch.
			s.writeErrors.Add(1)
			_ = tx.Rollback()
			tx = nil
			continue
		}
		if opCount >= commitEvery || time.Since(lastCommit) >= commitMaxWait {
			commit()
		}
	}
	commit()
}

func insertTick(tx *sqlx.Tx, e rtsim.TickLogEntry) (int, error) {
	raw, err := json.Marshal(e)
	if err != nil {
		return 0, err
	}
	row := TickRow{
		Tick:       e.Tick,
		Time:       e.Time,
		Polled:     e.Polled,
		Loaded:     e.Loaded,
		Simulated:  e.Simulated,
		Joins:      len(e.Joins),
		Leaves:     len(e.Leaves),
		Speech:     len(e.Speech),
		Dialogue:   len(e.Dialogue),
		Attacks:    e.Attacks,
		BuffEvents: e.BuffEvents,
		Deaths:     len(e.Deaths),
		RawJSON:    string(raw),
	}
	if _, err := tx.NamedExec(`INSERT OR REPLACE INTO ticks(tick,time,polled,loaded,simulated,joins,leaves,speech,dialogue,attacks,buff_events,deaths,raw_json)
		VALUES(:tick,:time,:polled,:loaded,:simulated,:joins,:leaves,:speech,:dialogue,:attacks,:buff_events,:deaths,:raw_json)`, row); err != nil {
		return 0, err
	}
	n := 1
	for i, sp := range e.Speech {
		if _, err := tx.NamedExec(`INSERT OR REPLACE INTO speech(tick,seq,npc,target,key,text) VALUES(:tick,:seq,:npc,:target,:key,:text)`,
			SpeechRow{Tick: e.Tick, Seq: i, Npc: sp.Npc, Target: sp.Target, Key: sp.Key, Text: sp.Text}); err != nil {
			return n, err
		}
		n++
	}
	for _, rep := range e.Reports {
		if _, err := tx.NamedExec(`INSERT OR REPLACE INTO reports(id,tick,kind,actor,killer,at_tod) VALUES(:id,:tick,:kind,:actor,:killer,:at_tod)`,
			ReportRow{ID: rep.ID, Tick: e.Tick, Kind: rep.Kind, Actor: rep.Actor, Killer: rep.Killer, AtTOD: rep.AtTOD}); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}
