package buff

import "math/rand/v2"

type Sprite uint8

const (
	NoSprite Sprite = iota
	EnsnaringVines
	EnsnaringWeb
	SeaUrchin
	IronSpike
	HotSurface
	IceSpike
	FireBlock
)

type Fluid uint8

const (
	NoFluid Fluid = iota
	Water
	Lava
)

// Contact is what an entity touches this tick.
type Contact struct {
	Ground   Sprite
	Fluid    Fluid
	Touching []EntityID
}

type envBuff struct {
	kind     Kind
	strength float32
	duration float64
	cats     []CategoryKind
}

var groundBuffs = map[Sprite][]envBuff{
	EnsnaringVines: {{kind: Ensnared, strength: 0.5, duration: 0.1}},
	EnsnaringWeb:   {{kind: Ensnared, strength: 1, duration: 1}},
	SeaUrchin:      {{kind: Bleeding, strength: 1, duration: 6}},
	IronSpike:      {{kind: Bleeding, strength: 1, duration: 4}},
	HotSurface:     {{kind: Burning, strength: 10, duration: 0.1}},
	IceSpike:       {{kind: Bleeding, strength: 15, duration: 0.1}, {kind: Frozen, strength: 0.2, duration: 3}},
	FireBlock:      {{kind: Burning, strength: 20, duration: 10}},
}

var lavaBurn = envBuff{kind: Burning, strength: 20, duration: 10, cats: []CategoryKind{Natural}}

func (e envBuff) build(now float64, dest *Stats) Buff {
	cats := make([]Category, len(e.cats))
	for i, c := range e.cats {
		cats[i] = Cat(c)
	}
	return New(e.kind, NewData(e.strength, Secs(e.duration)), cats, World, now, dest)
}

// applyEnvironment refreshes buffs from what the entity stands in or on.
// It writes only to the entity's own buffs, so the resolution pass sees the
// result in the same tick.
func applyEnvironment(e *Entity, now float64) {
	c := e.Contact
	if c == nil {
		return
	}
	for _, eb := range groundBuffs[c.Ground] {
		e.Buffs.Add(eb.build(now, e.Stats), now)
	}
	switch {
	case c.Fluid == Lava:
		e.Buffs.Add(lavaBurn.build(now, e.Stats), now)
	case c.Fluid == Water && e.Buffs.Contains(Burning):
		e.Buffs.RemoveKind(Burning)
	}
}

// ignite stages burning for whatever a burning entity touches. The chance
// scales with the burn strength; each spread burns a little shorter so fire
// cannot pass back and forth forever.
func ignite(e *Entity, dt float64, now float64, rng *rand.Rand, out *outbox) {
	if e.Contact == nil || len(e.Contact.Touching) == 0 {
		return
	}
	keys := e.Buffs.Keys(Burning)
	if len(keys) == 0 {
		return
	}
	burning, _ := e.Buffs.Get(keys[0])
	var duration *float64
	if burning.Data.Duration != nil {
		duration = Secs(*burning.Data.Duration * 0.9)
		if *duration < 1 {
			return
		}
	}
	p := min(max(dt*float64(burning.Data.Strength)/5, 0), 1)
	for _, target := range e.Contact.Touching {
		if target == e.ID || rng.Float64() >= p {
			continue
		}
		b := New(Burning, NewData(burning.Data.Strength, duration), []Category{Cat(Natural)}, World, now, nil)
		out.changes = append(out.changes, Change{Entity: target, Op: OpAdd, Buff: &b})
	}
}
