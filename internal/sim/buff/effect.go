package buff

type ModifierKind uint8

const (
	Additive ModifierKind = iota + 1
	Multiplicative
)

type EffectKind uint8

const (
	HealthChangeOverTime EffectKind = iota + 1
	EnergyChangeOverTime
	ComboChangeOverTime
	MaxHealthModifier
	MaxEnergyModifier
	MaxHealthChangeOverTime
	DamageReduction
	MovementSpeed
	AttackSpeed
	RecoverySpeed
	GroundFriction
	SwimSpeed
	AttackDamage
	PoiseReduction
	PoiseDamageFromLostHealth
	PrecisionOverride
	PrecisionVulnerabilityOverride
	HealReduction
	BodyChange
	BuffImmunity
	CrowdControlResistance
	ItemEffectReduction
	MitigationsPenetration
	EnergyReward
	DisableAuxiliaryAbilities
	AttackEffect
	DamagedEffect
	DeathEffect
)

// Effect is one thing a buff does. Only the fields relevant to Kind are
// set:
//
//	*ChangeOverTime:         Rate, Modifier, TickDur (Instance for health)
//	MaxHealthChangeOverTime: Rate, Modifier, TargetFraction
//	Max*Modifier:            Value, Modifier
//	BodyChange:              Body
//	BuffImmunity:            Immune
//	*Effect:                 Name
//	everything else:         Value
type Effect struct {
	Kind           EffectKind
	Rate           float32
	Modifier       ModifierKind
	TickDur        float64
	Instance       uint64
	TargetFraction float32
	Value          float32
	Body           Body
	Immune         Kind
	Name           string
}

// IsOverTime reports whether the effect emits amounts on a tick cadence.
func (e Effect) IsOverTime() bool {
	switch e.Kind {
	case HealthChangeOverTime, EnergyChangeOverTime, ComboChangeOverTime:
		return true
	}
	return false
}
