package snapshot

import (
	"bufio"
	"crypto/sha256"
	"encoding/gob"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"
)

const Version = 1

type Header struct {
	Version int    `json:"version"`
	WorldID string `json:"world_id"`
	Tick    uint64 `json:"tick"`
}

// SnapshotV1 is the durable rtsim state. Controllers, inboxes, brains and
// dialogue queues are not stored; they are rebuilt from defaults on load.
type SnapshotV1 struct {
	Header Header `json:"header"`

	Seed      uint64  `json:"seed"`
	TickRate  int     `json:"tick_rate_hz"`
	WorldSize float64 `json:"world_size"`

	Time      float64 `json:"time"`
	TimeOfDay float64 `json:"time_of_day"`

	Npcs    []NpcV1    `json:"npcs"`
	Sites   []SiteV1   `json:"sites"`
	Reports []ReportV1 `json:"reports"`
	Links   []LinkV1   `json:"links,omitempty"`

	Counters CountersV1 `json:"counters"`
}

type CountersV1 struct {
	NextNpc    uint64 `json:"next_npc"`
	NextSite   uint64 `json:"next_site"`
	NextReport uint64 `json:"next_report"`
}

type NpcV1 struct {
	ID             uint64        `json:"id"`
	Seed           uint32        `json:"seed"`
	Pos            [3]float64    `json:"pos"`
	Dir            [2]float64    `json:"dir"`
	Body           uint8         `json:"body"`
	Role           RoleV1        `json:"role"`
	Home           *uint64       `json:"home,omitempty"`
	Faction        *uint64       `json:"faction,omitempty"`
	HealthFraction float32       `json:"health_fraction"`
	Personality    [5]uint8      `json:"personality"`
	Sentiments     []SentimentV1 `json:"sentiments,omitempty"`
	KnownReports   []uint64      `json:"known_reports,omitempty"`
	Hiring         *HiringV1     `json:"hiring,omitempty"`
}

type RoleV1 struct {
	Kind       uint8         `json:"kind"`
	Profession *ProfessionV1 `json:"profession,omitempty"`
}

type ProfessionV1 struct {
	Kind   uint8  `json:"kind"`
	Level  uint32 `json:"level,omitempty"`
	Leader bool   `json:"leader,omitempty"`
}

type SentimentV1 struct {
	Actor string  `json:"actor"`
	Value float32 `json:"value"`
}

type HiringV1 struct {
	By      string  `json:"by"`
	Expires float64 `json:"expires"`
}

type SiteV1 struct {
	ID        uint64     `json:"id"`
	Pos       [2]float64 `json:"pos"`
	Name      string     `json:"name"`
	WorldSite *uint64    `json:"world_site,omitempty"`
	Faction   *uint64    `json:"faction,omitempty"`
}

type ReportV1 struct {
	ID     uint64  `json:"id"`
	Kind   uint8   `json:"kind"`
	Actor  string  `json:"actor,omitempty"`
	Killer string  `json:"killer,omitempty"`
	Thief  string  `json:"thief,omitempty"`
	Site   *uint64 `json:"site,omitempty"`
	Sprite string  `json:"sprite,omitempty"`
	AtTOD  float64 `json:"at_tod"`
}

type LinkV1 struct {
	ID       uint64 `json:"id"`
	Mount    uint64 `json:"mount"`
	Rider    string `json:"rider"`
	Steering bool   `json:"steering,omitempty"`
}

// Digest is a stable hash of the snapshot contents. Every collection in
// SnapshotV1 is an ordered slice, so equal states hash equally.
func Digest(snap SnapshotV1) string {
	b, _ := json.Marshal(&snap)
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

func WriteSnapshot(path string, snap SnapshotV1) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return err
	}

	bw := bufio.NewWriterSize(enc, 256*1024)
	hb, _ := json.Marshal(snap.Header)
	if _, err := bw.Write(hb); err != nil {
		_ = enc.Close()
		return err
	}
	if err := bw.WriteByte('\n'); err != nil {
		_ = enc.Close()
		return err
	}
	if err := gob.NewEncoder(bw).Encode(&snap); err != nil {
		_ = enc.Close()
		return fmt.Errorf("gob encode: %w", err)
	}
	if err := bw.Flush(); err != nil {
		_ = enc.Close()
		return err
	}
	return enc.Close()
}

// ReadHeader decodes only the JSON header line.
func ReadHeader(path string) (Header, error) {
	var h Header
	f, err := os.Open(path)
	if err != nil {
		return h, err
	}
	defer f.Close()
	dec, err := zstd.NewReader(f)
	if err != nil {
		return h, err
	}
	defer dec.Close()
	line, err := bufio.NewReader(dec).ReadBytes('\n')
	if err != nil {
		return h, fmt.Errorf("read header: %w", err)
	}
	if err := json.Unmarshal(line, &h); err != nil {
		return h, fmt.Errorf("decode header: %w", err)
	}
	return h, nil
}

func ReadSnapshot(path string) (SnapshotV1, error) {
	var snap SnapshotV1
	f, err := os.Open(path)
	if err != nil {
		return snap, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return snap, err
	}
	defer dec.Close()

	br := bufio.NewReaderSize(dec, 256*1024)

	// The header is repeated inside the gob body.
	if _, err := br.ReadBytes('\n'); err != nil {
		return snap, fmt.Errorf("read header: %w", err)
	}
	if err := gob.NewDecoder(br).Decode(&snap); err != nil {
		return snap, fmt.Errorf("gob decode: %w", err)
	}
	if snap.Header.Version != Version {
		return snap, fmt.Errorf("unsupported snapshot version: %d", snap.Header.Version)
	}
	return snap, nil
}

// Path is where the snapshot for tick lives under worldDir.
func Path(worldDir string, tick uint64) string {
	return filepath.Join(worldDir, "snapshots", fmt.Sprintf("%d.snap.zst", tick))
}
