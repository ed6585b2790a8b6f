package data

import (
	"math/rand/v2"
	"strings"

	"rtsim.ai/internal/sim/mathx"
)

type SimulationMode uint8

const (
	// Simulated NPCs have no physical presence and are polled on the tick-skip cadence.
	Simulated SimulationMode = iota
	// Loaded NPCs are embodied and polled every tick.
	Loaded
)

func (m SimulationMode) String() string {
	if m == Loaded {
		return "loaded"
	}
	return "simulated"
}

type Body uint8

const (
	BodyHumanoid Body = iota + 1
	BodyQuadrupedSmall
	BodyQuadrupedMedium
	BodyBirdMedium
	BodyBirdLarge
	BodyAirBalloon
	BodyAirship
	BodySailBoat
)

var bodyNames = map[Body]string{
	BodyHumanoid:        "humanoid",
	BodyQuadrupedSmall:  "quadruped_small",
	BodyQuadrupedMedium: "quadruped_medium",
	BodyBirdMedium:      "bird_medium",
	BodyBirdLarge:       "bird_large",
	BodyAirBalloon:      "air_balloon",
	BodyAirship:         "airship",
	BodySailBoat:        "sail_boat",
}

func (b Body) String() string {
	if s, ok := bodyNames[b]; ok {
		return s
	}
	return "unknown"
}

func (b Body) CanFly() bool {
	switch b {
	case BodyBirdMedium, BodyBirdLarge, BodyAirBalloon, BodyAirship:
		return true
	}
	return false
}

func (b Body) IsShip() bool {
	return b == BodyAirBalloon || b == BodyAirship || b == BodySailBoat
}

// MaxSpeed is the approximate ground (or air) speed in blocks per second
// used when the NPC is simulated.
func (b Body) MaxSpeed() float64 {
	switch b {
	case BodyHumanoid:
		return 6
	case BodyQuadrupedSmall:
		return 8
	case BodyQuadrupedMedium:
		return 10
	case BodyBirdMedium:
		return 12
	case BodyBirdLarge:
		return 18
	case BodyAirBalloon:
		return 8
	case BodyAirship:
		return 16
	case BodySailBoat:
		return 10
	}
	return 5
}

type RoleKind uint8

const (
	RoleCivilised RoleKind = iota + 1
	RoleWild
	RoleMonster
	RoleVehicle
)

type ProfessionKind uint8

const (
	Farmer ProfessionKind = iota + 1
	Hunter
	Merchant
	Guard
	Adventurer
	Blacksmith
	Chef
	Alchemist
	Pirate
	Cultist
	Herbalist
	Captain
)

var professionNames = map[ProfessionKind]string{
	Farmer: "farmer", Hunter: "hunter", Merchant: "merchant", Guard: "guard",
	Adventurer: "adventurer", Blacksmith: "blacksmith", Chef: "chef", Alchemist: "alchemist",
	Pirate: "pirate", Cultist: "cultist", Herbalist: "herbalist", Captain: "captain",
}

func (k ProfessionKind) String() string { return professionNames[k] }

type Profession struct {
	Kind   ProfessionKind
	Level  uint32 // adventurers only
	Leader bool   // pirates only
}

type Role struct {
	Kind       RoleKind
	Profession *Profession // civilised only; nil for the unemployed
}

func Civilised(p *Profession) Role { return Role{Kind: RoleCivilised, Profession: p} }

func (r Role) ProfessionKind() (ProfessionKind, bool) {
	if r.Kind != RoleCivilised || r.Profession == nil {
		return 0, false
	}
	return r.Profession.Kind, true
}

func (r Role) String() string {
	switch r.Kind {
	case RoleCivilised:
		if r.Profession != nil {
			return "civilised:" + r.Profession.Kind.String()
		}
		return "civilised"
	case RoleWild:
		return "wild"
	case RoleMonster:
		return "monster"
	case RoleVehicle:
		return "vehicle"
	}
	return "unknown"
}

type Hiring struct {
	By      Actor
	Expires float64 // simulated time
}

// Npc is one simulated character. Fields above the transient marker are
// durable across save/reload.
type Npc struct {
	UID            NpcID
	Seed           uint32
	WPos           mathx.Vec3
	Dir            mathx.Vec2
	Body           Body
	Role           Role
	Home           *SiteID
	Faction        *FactionID
	HealthFraction float32
	Personality    Personality
	Sentiments     Sentiments
	KnownReports   map[ReportID]struct{}
	Hiring         *Hiring

	// transient
	Mode        SimulationMode
	CurrentSite *SiteID
	// Activity is what the NPC did on its last poll, visible to others.
	Activity   ActivityKind
	Controller Controller
	Inbox      Inbox
}

func NewNpc(seed uint32, wpos mathx.Vec3, body Body, role Role) *Npc {
	return &Npc{
		Seed:           seed,
		WPos:           wpos,
		Dir:            mathx.V2(0, 1),
		Body:           body,
		Role:           role,
		HealthFraction: 1,
		Sentiments:     NewSentiments(),
		KnownReports:   map[ReportID]struct{}{},
	}
}

func (n *Npc) WithHome(site SiteID) *Npc {
	n.Home = &site
	return n
}

func (n *Npc) WithFaction(f FactionID) *Npc {
	n.Faction = &f
	return n
}

func (n *Npc) WithPersonality(p Personality) *Npc {
	n.Personality = p
	return n
}

func (n *Npc) IsDead() bool { return n.HealthFraction <= 0 }

// IsHiredBy reports whether the NPC currently works for the actor.
func (n *Npc) IsHiredBy(a Actor, now float64) bool {
	return n.Hiring != nil && n.Hiring.By == a && n.Hiring.Expires > now
}

func (n *Npc) Profession() (Profession, bool) {
	if n.Role.Kind != RoleCivilised || n.Role.Profession == nil {
		return Profession{}, false
	}
	return *n.Role.Profession, true
}

// Rng is a deterministic generator for one purpose (perm) of this NPC.
func (n *Npc) Rng(perm uint32) *rand.Rand {
	s := uint64(n.Seed + perm)
	return rand.New(rand.NewPCG(s, mathx.HashU64(s, 0x6e7063)))
}

const permName = 17

var (
	nameStarts = []string{"al", "bor", "cal", "dra", "el", "fen", "gar", "hal", "is", "jor", "ka", "lor", "mar", "nor", "or", "per", "quin", "ros", "sel", "tor", "ul", "vor", "wen", "yr"}
	nameMids   = []string{"a", "e", "i", "o", "u", "ae", "ia", "ou"}
	nameEnds   = []string{"n", "th", "ric", "mir", "las", "dor", "wyn", "ra", "ka", "gard", "sa", "lin"}
)

// Name is derived from the seed, so it is stable without being stored.
func (n *Npc) Name() string {
	rng := n.Rng(permName)
	var b strings.Builder
	b.WriteString(nameStarts[rng.IntN(len(nameStarts))])
	if rng.IntN(2) == 0 {
		b.WriteString(nameMids[rng.IntN(len(nameMids))])
	}
	b.WriteString(nameEnds[rng.IntN(len(nameEnds))])
	s := b.String()
	return strings.ToUpper(s[:1]) + s[1:]
}

// Cleanup trims sentiments and forgets reports that no longer exist.
func (n *Npc) Cleanup(reports *Reports) {
	n.Sentiments.Cleanup(NpcMaxSentiments)
	for id := range n.KnownReports {
		if !reports.Contains(id) {
			delete(n.KnownReports, id)
		}
	}
}
