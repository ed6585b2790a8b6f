package buff

import "slices"

// EntityID identifies anything that can carry buffs.
type EntityID uint64

// Body is an appearance tag, e.g. "humanoid" or "frog".
type Body string

type AuraKey uint32

// LinkID refers to a relation between entities that a buff can depend on,
// such as a mount link.
type LinkID uint64

// Data is the numeric payload of a buff. Duration and Delay are seconds;
// a nil Duration lasts until removed.
type Data struct {
	Strength float32
	Duration *float64
	Delay    *float64
	// Body is the target body of a polymorph.
	Body Body
}

func NewData(strength float32, duration *float64) Data {
	return Data{Strength: strength, Duration: duration}
}

// Secs is a convenience for optional durations.
func Secs(s float64) *float64 { return &s }

func (d Data) WithDelay(s float64) Data {
	d.Delay = &s
	return d
}

func (d Data) equal(o Data) bool {
	return d.Strength == o.Strength && d.Body == o.Body &&
		optEqual(d.Duration, o.Duration) && optEqual(d.Delay, o.Delay)
}

func optEqual(a, b *float64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

type CategoryKind uint8

const (
	Natural CategoryKind = iota + 1
	Physical
	Magical
	Divine
	PersistOnDeath
	// FromActiveAura buffs last only while the holder stays inside the
	// source's aura.
	FromActiveAura
	// FromLink buffs last only while the link holds.
	FromLink
)

// Category tags a buff for conditional removal. Source and Aura are set for
// FromActiveAura, Link for FromLink.
type Category struct {
	Kind   CategoryKind
	Source EntityID
	Aura   AuraKey
	Link   LinkID
}

func Cat(k CategoryKind) Category { return Category{Kind: k} }

func AuraCat(source EntityID, aura AuraKey) Category {
	return Category{Kind: FromActiveAura, Source: source, Aura: aura}
}

func LinkCat(link LinkID) Category { return Category{Kind: FromLink, Link: link} }

func (c Category) conditional() bool { return c.Kind == FromActiveAura || c.Kind == FromLink }

type SourceKind uint8

const (
	SourceWorld SourceKind = iota + 1
	SourceCharacter
	SourceItem
	SourceUnknown
)

// Source attributes a buff. By is set for SourceCharacter.
type Source struct {
	Kind SourceKind
	By   EntityID
}

var World = Source{Kind: SourceWorld}

func ByCharacter(id EntityID) Source { return Source{Kind: SourceCharacter, By: id} }

// Buff is one active timed effect on an entity.
type Buff struct {
	Kind       Kind
	Data       Data
	Categories []Category
	Source     Source
	Effects    []Effect
	// StartTime is when the effect begins, after any delay.
	StartTime float64
	// EndTime is nil for buffs without a duration.
	EndTime *float64
}

// New builds a buff added at now. dest, if not nil, is the receiver's
// current stats: item effect reduction weakens potions on arrival.
func New(kind Kind, d Data, cats []Category, src Source, now float64, dest *Stats) Buff {
	if dest != nil && (kind == Potion || kind == Saturation) {
		d.Strength *= dest.ItemEffectReduction
	}
	start := now
	if d.Delay != nil {
		start += *d.Delay
	}
	b := Buff{
		Kind:       kind,
		Data:       d,
		Categories: slices.Clone(cats),
		Source:     src,
		Effects:    kind.Effects(d),
		StartTime:  start,
	}
	if d.Duration != nil {
		end := start + *d.Duration
		b.EndTime = &end
	}
	return b
}

func (b *Buff) HasCategory(k CategoryKind) bool {
	return slices.ContainsFunc(b.Categories, func(c Category) bool { return c.Kind == k })
}

// Expired reports whether the buff ended before now.
func (b *Buff) Expired(now float64) bool { return b.EndTime != nil && *b.EndTime < now }

// detach drops the categories that tie the buff to a source, keeping its
// effect and timing.
func (b *Buff) detach() {
	b.Categories = slices.DeleteFunc(b.Categories, Category.conditional)
}

// sameAs reports whether o would be a refresh of b.
func (b *Buff) sameAs(o *Buff) bool {
	return b.Kind == o.Kind && b.Source == o.Source && b.Data.equal(o.Data) && slices.Equal(b.Categories, o.Categories)
}
