package buff

import "fmt"

// HealthChange asks the health system to apply Amount. Negative amounts
// are damage.
type HealthChange struct {
	Entity   EntityID
	Amount   float32
	Cause    Kind
	By       *EntityID
	Time     float64
	Precise  bool
	Instance uint64
}

type EnergyChange struct {
	Entity EntityID
	Amount float32
}

type ComboChange struct {
	Entity EntityID
	Amount int32
}

type BodyChangeEvent struct {
	Entity EntityID
	Body   Body
}

type ChangeOp uint8

const (
	OpAdd ChangeOp = iota + 1
	OpRemoveKeys
	OpRemoveKind
	OpRemoveByCategory
)

func (op ChangeOp) String() string {
	switch op {
	case OpAdd:
		return "add"
	case OpRemoveKeys:
		return "remove_keys"
	case OpRemoveKind:
		return "remove_kind"
	case OpRemoveByCategory:
		return "remove_by_category"
	}
	return "unknown"
}

// Change is a request to edit an entity's buffs. Which fields are used
// depends on Op.
type Change struct {
	Entity EntityID
	Op     ChangeOp
	Buff   *Buff
	Keys   []Key
	Kind   Kind

	AllOf, AnyOf, NoneOf []CategoryKind
}

func (c Change) String() string {
	switch c.Op {
	case OpAdd:
		return fmt.Sprintf("%d:add:%s", c.Entity, c.Buff.Kind)
	case OpRemoveKeys:
		return fmt.Sprintf("%d:remove:%v", c.Entity, c.Keys)
	case OpRemoveKind:
		return fmt.Sprintf("%d:remove_kind:%s", c.Entity, c.Kind)
	}
	return fmt.Sprintf("%d:%s", c.Entity, c.Op)
}

// Apply performs the change on buffs at now and returns how many buffs it
// added or removed.
func (c Change) Apply(buffs *Buffs, now float64) int {
	switch c.Op {
	case OpAdd:
		if c.Buff == nil {
			return 0
		}
		buffs.Add(*c.Buff, now)
		return 1
	case OpRemoveKeys:
		return buffs.Remove(c.Keys...)
	case OpRemoveKind:
		return buffs.RemoveKind(c.Kind)
	case OpRemoveByCategory:
		return buffs.RemoveByCategory(c.AllOf, c.AnyOf, c.NoneOf)
	}
	return 0
}

// Events is everything one resolution pass produced, in entity order.
type Events struct {
	Health  []HealthChange
	Energy  []EnergyChange
	Combo   []ComboChange
	Body    []BodyChangeEvent
	Changes []Change
}

func (ev *Events) Len() int {
	return len(ev.Health) + len(ev.Energy) + len(ev.Combo) + len(ev.Body) + len(ev.Changes)
}

func (ev *Events) merge(o *outbox) {
	ev.Health = append(ev.Health, o.health...)
	ev.Energy = append(ev.Energy, o.energy...)
	ev.Combo = append(ev.Combo, o.combo...)
	ev.Body = append(ev.Body, o.body...)
	ev.Changes = append(ev.Changes, o.changes...)
}

// outbox collects one entity's events during the parallel phase.
type outbox struct {
	health  []HealthChange
	energy  []EnergyChange
	combo   []ComboChange
	body    []BodyChangeEvent
	changes []Change
}
