// Package indexdb keeps a queryable SQLite index of a world's tick log,
// speech, reports and snapshots. The JSONL logs remain the source of truth;
// the index may drop rows when its writer falls behind.
package indexdb

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"rtsim.ai/internal/persistence/snapshot"
	"rtsim.ai/internal/sim/catalogs"
	"rtsim.ai/internal/sim/rtsim"
	"rtsim.ai/internal/sim/tuning"
)

const schemaVersion = "1"

type SQLiteIndex struct {
	db *sqlx.DB

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	closed atomic.Bool

	dropTick     atomic.Uint64
	dropSnapshot atomic.Uint64
	writeErrors  atomic.Uint64
}

type reqKind int

const (
	reqTick reqKind = iota + 1
	reqSnapshot
	// reqSync is answered once everything queued before it is committed.
	reqSync
)

type req struct {
	kind reqKind

	tick     rtsim.TickLogEntry
	snapshot SnapshotRow
	done     chan struct{}
}

type TickRow struct {
	Tick       uint64  `db:"tick"`
	Time       float64 `db:"time"`
	Polled     int     `db:"polled"`
	Loaded     int     `db:"loaded"`
	Simulated  int     `db:"simulated"`
	Joins      int     `db:"joins"`
	Leaves     int     `db:"leaves"`
	Speech     int     `db:"speech"`
	Dialogue   int     `db:"dialogue"`
	Attacks    int     `db:"attacks"`
	BuffEvents int     `db:"buff_events"`
	Deaths     int     `db:"deaths"`
	RawJSON    string  `db:"raw_json"`
}

type SpeechRow struct {
	Tick   uint64 `db:"tick"`
	Seq    int    `db:"seq"`
	Npc    uint64 `db:"npc"`
	Target string `db:"target"`
	Key    string `db:"key"`
	Text   string `db:"text"`
}

type ReportRow struct {
	ID     uint64  `db:"id"`
	Tick   uint64  `db:"tick"`
	Kind   string  `db:"kind"`
	Actor  string  `db:"actor"`
	Killer string  `db:"killer"`
	AtTOD  float64 `db:"at_tod"`
}

type SnapshotRow struct {
	Tick    uint64 `db:"tick"`
	Path    string `db:"path"`
	Seed    uint64 `db:"seed"`
	Npcs    int    `db:"npcs"`
	Sites   int    `db:"sites"`
	Reports int    `db:"reports"`
	Links   int    `db:"links"`
}

func OpenSQLite(path string) (*SQLiteIndex, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sqlx.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &SQLiteIndex{
		db: db,
		ch: make(chan req, 16384),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initPragmas(db *sqlx.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sqlx.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);
	CREATE TABLE IF NOT EXISTS catalogs (
		name TEXT PRIMARY KEY,
		digest TEXT NOT NULL,
		json TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);
	CREATE TABLE IF NOT EXISTS ticks (
		tick INTEGER PRIMARY KEY,
		time REAL NOT NULL,
		polled INTEGER NOT NULL,
		loaded INTEGER NOT NULL,
		simulated INTEGER NOT NULL,
		joins INTEGER NOT NULL,
		leaves INTEGER NOT NULL,
		speech INTEGER NOT NULL,
		dialogue INTEGER NOT NULL,
		attacks INTEGER NOT NULL,
		buff_events INTEGER NOT NULL,
		deaths INTEGER NOT NULL,
		raw_json TEXT NOT NULL
	);
	CREATE TABLE IF NOT EXISTS speech (
		tick INTEGER NOT NULL,
		seq INTEGER NOT NULL,
		npc INTEGER NOT NULL,
		target TEXT NOT NULL,
		key TEXT NOT NULL,
		text TEXT NOT NULL,
		PRIMARY KEY (tick, seq)
	);
	CREATE INDEX IF NOT EXISTS idx_speech_npc_tick ON speech(npc, tick);
	CREATE TABLE IF NOT EXISTS reports (
		id INTEGER PRIMARY KEY,
		tick INTEGER NOT NULL,
		kind TEXT NOT NULL,
		actor TEXT NOT NULL,
		killer TEXT NOT NULL,
		at_tod REAL NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_reports_actor ON reports(actor, tick);
	CREATE TABLE IF NOT EXISTS snapshots (
		tick INTEGER PRIMARY KEY,
		path TEXT NOT NULL,
		seed INTEGER NOT NULL,
		npcs INTEGER NOT NULL,
		sites INTEGER NOT NULL,
		reports INTEGER NOT NULL,
		links INTEGER NOT NULL
	);`
	_, err := db.Exec(schema)
	return err
}

func (s *SQLiteIndex) Close() error {
	var err error
	s.once.Do(func() {
		s.closed.Store(true)
		close(s.ch)
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

// WriteTick queues the entry. It never blocks the sim.
func (s *SQLiteIndex) WriteTick(entry rtsim.TickLogEntry) error {
	if s == nil || s.closed.Load() {
		return nil
	}
	select {
	case s.ch <- req{kind: reqTick, tick: entry}:
	default:
		s.dropTick.Add(1)
	}
	return nil
}

func (s *SQLiteIndex) RecordSnapshot(path string, snap snapshot.SnapshotV1) {
	if s == nil || s.closed.Load() {
		return
	}
	r := SnapshotRow{
		Tick:    snap.Header.Tick,
		Path:    path,
		Seed:    snap.Seed,
		Npcs:    len(snap.Npcs),
		Sites:   len(snap.Sites),
		Reports: len(snap.Reports),
		Links:   len(snap.Links),
	}
	select {
	case s.ch <- req{kind: reqSnapshot, snapshot: r}:
	default:
		s.dropSnapshot.Add(1)
	}
}

// Sync waits until every row queued so far is committed.
func (s *SQLiteIndex) Sync(ctx context.Context) error {
	if s == nil || s.closed.Load() {
		return nil
	}
	done := make(chan struct{})
	select {
	case s.ch <- req{kind: reqSync, done: done}:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

type Stats struct {
	QueueDepth        int
	QueueCapacity     int
	DropTickTotal     uint64
	DropSnapshotTotal uint64
	WriteErrorTotal   uint64
}

func (s *SQLiteIndex) Stats() Stats {
	return Stats{
		QueueDepth:        len(s.ch),
		QueueCapacity:     cap(s.ch),
		DropTickTotal:     s.dropTick.Load(),
		DropSnapshotTotal: s.dropSnapshot.Load(),
		WriteErrorTotal:   s.writeErrors.Load(),
	}
}

// UpsertCatalogs records the speech catalog and the tuning in effect.
func (s *SQLiteIndex) UpsertCatalogs(cats *catalogs.Catalogs, tune tuning.Tuning) error {
	if s == nil {
		return nil
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)

	type row struct {
		Name      string `db:"name"`
		Digest    string `db:"digest"`
		JSON      string `db:"json"`
		UpdatedAt string `db:"updated_at"`
	}
	var rows []row
	if cats != nil {
		if b, err := json.Marshal(cats.Speech.Entries); err == nil {
			rows = append(rows, row{Name: "speech_" + cats.Speech.Lang, Digest: cats.Speech.Digest, JSON: string(b), UpdatedAt: now})
		}
	}
	b, err := json.Marshal(tune)
	if err != nil {
		return err
	}
	sum := sha256.Sum256(b)
	rows = append(rows, row{Name: "tuning", Digest: hex.EncodeToString(sum[:]), JSON: string(b), UpdatedAt: now})

	tx, err := s.db.Beginx()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`INSERT OR REPLACE INTO meta(key,value) VALUES('schema_version',?)`, schemaVersion); err != nil {
		return err
	}
	for _, r := range rows {
		if _, err := tx.NamedExec(`INSERT OR REPLACE INTO catalogs(name,digest,json,updated_at) VALUES(:name,:digest,:json,:updated_at)`, r); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// CatalogDigest returns the stored digest of a catalog row.
func (s *SQLiteIndex) CatalogDigest(name string) (string, error) {
	var digest string
	err := s.db.Get(&digest, `SELECT digest FROM catalogs WHERE name = ?`, name)
	return digest, err
}

// Ticks returns the tick rows in [from, to].
func (s *SQLiteIndex) Ticks(from, to uint64) ([]TickRow, error) {
	var rows []TickRow
	err := s.db.Select(&rows, `SELECT * FROM ticks WHERE tick BETWEEN ? AND ? ORDER BY tick`, int64(from), int64(to))
	return rows, err
}

// Speech returns what npc said, newest first.
func (s *SQLiteIndex) Speech(npc uint64, limit int) ([]SpeechRow, error) {
	var rows []SpeechRow
	err := s.db.Select(&rows, `SELECT * FROM speech WHERE npc = ? ORDER BY tick DESC, seq DESC LIMIT ?`, int64(npc), limit)
	return rows, err
}

// Reports returns the reports about actor, oldest first. An empty actor
// returns all of them.
func (s *SQLiteIndex) Reports(actor string) ([]ReportRow, error) {
	var rows []ReportRow
	var err error
	if actor == "" {
		err = s.db.Select(&rows, `SELECT * FROM reports ORDER BY id`)
	} else {
		err = s.db.Select(&rows, `SELECT * FROM reports WHERE actor = ? ORDER BY id`, actor)
	}
	return rows, err
}

// LatestSnapshot returns the newest recorded snapshot.
func (s *SQLiteIndex) LatestSnapshot() (SnapshotRow, error) {
	var r SnapshotRow
	err := s.db.Get(&r, `SELECT * FROM snapshots ORDER BY tick DESC LIMIT 1`)
	return r, err
}
