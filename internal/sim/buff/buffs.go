package buff

import (
	"slices"
	"sort"
)

type Key uint64

type kindEntry struct {
	keys  []Key
	start float64
}

// Buffs is the set of buffs on one entity, indexed by kind. Keys of a kind
// are kept strongest first.
type Buffs struct {
	next  Key
	byKey map[Key]*Buff
	kinds map[Kind]*kindEntry
}

func NewBuffs() *Buffs {
	return &Buffs{next: 1, byKey: map[Key]*Buff{}, kinds: map[Kind]*kindEntry{}}
}

func (b *Buffs) Len() int { return len(b.byKey) }

func (b *Buffs) Get(k Key) (*Buff, bool) {
	buff, ok := b.byKey[k]
	return buff, ok
}

func (b *Buffs) Contains(kind Kind) bool { return b.kinds[kind] != nil }

// Keys returns the keys of one kind, strongest first.
func (b *Buffs) Keys(kind Kind) []Key {
	if e := b.kinds[kind]; e != nil {
		return slices.Clone(e.keys)
	}
	return nil
}

// KindStart is when the kind first became active on the entity.
func (b *Buffs) KindStart(kind Kind) (float64, bool) {
	if e := b.kinds[kind]; e != nil {
		return e.start, true
	}
	return 0, false
}

// Kinds lists the active kinds in enum order.
func (b *Buffs) Kinds() []Kind {
	out := make([]Kind, 0, len(b.kinds))
	for k := range b.kinds {
		out = append(out, k)
	}
	slices.Sort(out)
	return out
}

// AllKeys lists every key in insertion order.
func (b *Buffs) AllKeys() []Key {
	out := make([]Key, 0, len(b.byKey))
	for k := range b.byKey {
		out = append(out, k)
	}
	slices.Sort(out)
	return out
}

// Add inserts buff at now. An identical buff already present is refreshed
// to the new end time instead of being duplicated.
func (b *Buffs) Add(buff Buff, now float64) Key {
	if e := b.kinds[buff.Kind]; e != nil {
		for _, k := range e.keys {
			old := b.byKey[k]
			if old.sameAs(&buff) {
				old.EndTime = buff.EndTime
				return k
			}
		}
	}

	k := b.next
	b.next++
	for i := range buff.Effects {
		if buff.Effects[i].Kind == HealthChangeOverTime {
			buff.Effects[i].Instance = uint64(k)
		}
	}
	stored := buff
	b.byKey[k] = &stored

	e := b.kinds[buff.Kind]
	if e == nil {
		e = &kindEntry{start: now}
		b.kinds[buff.Kind] = e
	}
	e.keys = append(e.keys, k)
	sort.SliceStable(e.keys, func(i, j int) bool {
		return b.byKey[e.keys[i]].Data.Strength > b.byKey[e.keys[j]].Data.Strength
	})
	return k
}

// Remove drops the given keys; unknown keys are ignored.
func (b *Buffs) Remove(keys ...Key) int {
	n := 0
	for _, k := range keys {
		buff, ok := b.byKey[k]
		if !ok {
			continue
		}
		delete(b.byKey, k)
		n++
		e := b.kinds[buff.Kind]
		e.keys = slices.DeleteFunc(e.keys, func(x Key) bool { return x == k })
		if len(e.keys) == 0 {
			delete(b.kinds, buff.Kind)
		}
	}
	return n
}

func (b *Buffs) RemoveKind(kind Kind) int {
	e := b.kinds[kind]
	if e == nil {
		return 0
	}
	return b.Remove(slices.Clone(e.keys)...)
}

// RemoveByCategory drops buffs that have every category in allOf, at least
// one in anyOf (when it is non-empty) and none of those in noneOf.
func (b *Buffs) RemoveByCategory(allOf, anyOf, noneOf []CategoryKind) int {
	var drop []Key
	for _, k := range b.AllKeys() {
		buff := b.byKey[k]
		match := true
		for _, c := range allOf {
			match = match && buff.HasCategory(c)
		}
		if len(anyOf) > 0 {
			match = match && slices.ContainsFunc(anyOf, buff.HasCategory)
		}
		match = match && !slices.ContainsFunc(noneOf, buff.HasCategory)
		if match {
			drop = append(drop, k)
		}
	}
	return b.Remove(drop...)
}
