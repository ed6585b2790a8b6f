package data

import (
	"fmt"
	"strconv"
	"strings"
)

type NpcID uint64
type SiteID uint64
type ReportID uint64
type FactionID uint64
type CharacterID uint64
type DialogueID uint64

func (id NpcID) String() string { return fmt.Sprintf("npc:%d", uint64(id)) }

type ActorKind uint8

const (
	ActorNpc ActorKind = iota + 1
	ActorCharacter
)

// Actor is anything an NPC can hold an opinion about or talk to. It is
// comparable and usable as a map key.
type Actor struct {
	Kind      ActorKind
	Npc       NpcID
	Character CharacterID
}

func NpcActor(id NpcID) Actor { return Actor{Kind: ActorNpc, Npc: id} }

func CharacterActor(id CharacterID) Actor { return Actor{Kind: ActorCharacter, Character: id} }

func (a Actor) NpcID() (NpcID, bool) {
	if a.Kind != ActorNpc {
		return 0, false
	}
	return a.Npc, true
}

func (a Actor) CharacterID() (CharacterID, bool) {
	if a.Kind != ActorCharacter {
		return 0, false
	}
	return a.Character, true
}

func (a Actor) IsZero() bool { return a.Kind == 0 }

func (a Actor) String() string {
	switch a.Kind {
	case ActorNpc:
		return fmt.Sprintf("npc:%d", uint64(a.Npc))
	case ActorCharacter:
		return fmt.Sprintf("char:%d", uint64(a.Character))
	default:
		return "none"
	}
}

// ParseActor is the inverse of String.
func ParseActor(s string) (Actor, error) {
	kind, num, ok := strings.Cut(s, ":")
	if !ok {
		return Actor{}, fmt.Errorf("bad actor %q", s)
	}
	id, err := strconv.ParseUint(num, 10, 64)
	if err != nil {
		return Actor{}, fmt.Errorf("bad actor %q: %w", s, err)
	}
	switch kind {
	case "npc":
		return NpcActor(NpcID(id)), nil
	case "char":
		return CharacterActor(CharacterID(id)), nil
	}
	return Actor{}, fmt.Errorf("bad actor kind %q", kind)
}
