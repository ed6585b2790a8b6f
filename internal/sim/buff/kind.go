// Package buff holds timed status effects and the per-tick engine that
// resolves them into stat modifiers and change events.
package buff

type Kind uint8

const (
	Regeneration Kind = iota + 1
	Saturation
	Potion
	Agility
	Fortitude
	EnergyRegen
	ComboGeneration
	Hastened
	Resilience
	IncreaseMaxHealth
	IncreaseMaxEnergy
	Invulnerability
	ProtectingWard
	Frenzied
	Sunderer
	Bloodfeast
	Defiance
	Fortified
	Polymorphed
	Burning
	Bleeding
	Cursed
	Poisoned
	Crippled
	Frozen
	Wet
	Ensnared
	Parried
	PotionSickness
	Heatstroke
	Staggered
)

type kindInfo struct {
	name       string
	beneficial bool
	stacks     bool
	// affectsSubsequent kinds change how other kinds resolve, so they are
	// applied first.
	affectsSubsequent bool
}

var kinds = map[Kind]kindInfo{
	Regeneration:      {name: "regeneration", beneficial: true},
	Saturation:        {name: "saturation", beneficial: true, stacks: true},
	Potion:            {name: "potion", beneficial: true, stacks: true},
	Agility:           {name: "agility", beneficial: true},
	Fortitude:         {name: "fortitude", beneficial: true},
	EnergyRegen:       {name: "energy_regen", beneficial: true},
	ComboGeneration:   {name: "combo_generation", beneficial: true},
	Hastened:          {name: "hastened", beneficial: true},
	Resilience:        {name: "resilience", beneficial: true},
	IncreaseMaxHealth: {name: "increase_max_health", beneficial: true},
	IncreaseMaxEnergy: {name: "increase_max_energy", beneficial: true},
	Invulnerability:   {name: "invulnerability", beneficial: true},
	ProtectingWard:    {name: "protecting_ward", beneficial: true},
	Frenzied:          {name: "frenzied", beneficial: true},
	Sunderer:          {name: "sunderer", beneficial: true},
	Bloodfeast:        {name: "bloodfeast", beneficial: true},
	Defiance:          {name: "defiance", beneficial: true},
	Fortified:         {name: "fortified", beneficial: true},
	Polymorphed:       {name: "polymorphed"},
	Burning:           {name: "burning"},
	Bleeding:          {name: "bleeding"},
	Cursed:            {name: "cursed", affectsSubsequent: true},
	Poisoned:          {name: "poisoned"},
	Crippled:          {name: "crippled"},
	Frozen:            {name: "frozen"},
	Wet:               {name: "wet"},
	Ensnared:          {name: "ensnared"},
	Parried:           {name: "parried"},
	PotionSickness:    {name: "potion_sickness", stacks: true, affectsSubsequent: true},
	Heatstroke:        {name: "heatstroke"},
	Staggered:         {name: "staggered"},
}

func (k Kind) String() string {
	if i, ok := kinds[k]; ok {
		return i.name
	}
	return "unknown"
}

// IsBuff reports whether the kind is beneficial. Complete damage immunity
// strips everything that is not.
func (k Kind) IsBuff() bool { return kinds[k].beneficial }

// Stacks reports whether every instance of the kind applies, rather than
// only the strongest.
func (k Kind) Stacks() bool { return kinds[k].stacks }

func (k Kind) AffectsSubsequent() bool { return kinds[k].affectsSubsequent }

// ParseKind is the inverse of String.
func ParseKind(s string) (Kind, bool) {
	for k, i := range kinds {
		if i.name == s {
			return k, true
		}
	}
	return 0, false
}

const (
	defaultTick = 0.5
	burnTick    = 0.25
)

// Effects derives the effect list of a kind from its data.
func (k Kind) Effects(d Data) []Effect {
	s := d.Strength
	switch k {
	case Regeneration, Saturation, Potion:
		return []Effect{healthOverTime(s, Additive, defaultTick)}
	case Agility:
		return []Effect{{Kind: MovementSpeed, Value: 1 + s}, {Kind: PoiseReduction, Value: -s}}
	case Fortitude:
		return []Effect{{Kind: PoiseReduction, Value: s}, {Kind: PoiseDamageFromLostHealth, Value: s}}
	case EnergyRegen:
		return []Effect{{Kind: EnergyChangeOverTime, Rate: s, Modifier: Additive, TickDur: defaultTick}}
	case ComboGeneration:
		return []Effect{{Kind: ComboChangeOverTime, Rate: s, TickDur: defaultTick}, {Kind: EnergyReward, Value: 1 + s}}
	case Hastened:
		return []Effect{{Kind: MovementSpeed, Value: 1 + s}, {Kind: AttackSpeed, Value: 1 + s}}
	case Resilience:
		return []Effect{{Kind: CrowdControlResistance, Value: s}, {Kind: BuffImmunity, Immune: Staggered}}
	case IncreaseMaxHealth:
		return []Effect{{Kind: MaxHealthModifier, Value: s, Modifier: Additive}}
	case IncreaseMaxEnergy:
		return []Effect{{Kind: MaxEnergyModifier, Value: s, Modifier: Additive}}
	case Invulnerability:
		return []Effect{{Kind: DamageReduction, Value: 1}}
	case ProtectingWard:
		return []Effect{{Kind: DamageReduction, Value: s}}
	case Frenzied:
		return []Effect{{Kind: AttackSpeed, Value: 1 + s}, {Kind: MovementSpeed, Value: 1 + s/2}, {Kind: DamageReduction, Value: -s / 2}}
	case Sunderer:
		return []Effect{{Kind: MitigationsPenetration, Value: s}, {Kind: AttackDamage, Value: 1 + s/2}}
	case Bloodfeast:
		return []Effect{{Kind: AttackEffect, Name: "lifesteal"}}
	case Defiance:
		return []Effect{{Kind: DamageReduction, Value: s}, {Kind: DamagedEffect, Name: "combo_on_damage"}}
	case Fortified:
		return []Effect{{Kind: MaxHealthModifier, Value: 1 + s, Modifier: Multiplicative}, {Kind: PoiseReduction, Value: s}}
	case Polymorphed:
		return []Effect{{Kind: BodyChange, Body: d.Body}, {Kind: DisableAuxiliaryAbilities}}
	case Burning:
		return []Effect{healthOverTime(-s, Additive, burnTick)}
	case Bleeding:
		return []Effect{healthOverTime(-s, Additive, defaultTick)}
	case Cursed:
		return []Effect{
			{Kind: MaxHealthChangeOverTime, Rate: -1, Modifier: Additive, TargetFraction: 1 - s},
			healthOverTime(-1, Additive, defaultTick),
			{Kind: HealReduction, Value: s},
			{Kind: DeathEffect, Name: "curse_spread"},
		}
	case Poisoned:
		return []Effect{{Kind: EnergyChangeOverTime, Rate: -s, Modifier: Additive, TickDur: defaultTick}}
	case Crippled:
		return []Effect{{Kind: MovementSpeed, Value: 1 - 0.9*min(s, 1)}, healthOverTime(-s, Additive, defaultTick)}
	case Frozen:
		return []Effect{{Kind: MovementSpeed, Value: 1 - min(s, 1)}, {Kind: AttackSpeed, Value: 1 - min(s, 1)}}
	case Wet:
		return []Effect{{Kind: GroundFriction, Value: 1 - min(s, 1)}, {Kind: SwimSpeed, Value: 1 + s}}
	case Ensnared:
		return []Effect{{Kind: MovementSpeed, Value: 1 - min(s, 1)}}
	case Parried:
		return []Effect{{Kind: RecoverySpeed, Value: max(1-s, 0)}, {Kind: PrecisionVulnerabilityOverride, Value: 1}}
	case PotionSickness:
		return []Effect{{Kind: ItemEffectReduction, Value: min(s, 1)}}
	case Heatstroke:
		return []Effect{{Kind: EnergyChangeOverTime, Rate: -s, Modifier: Additive, TickDur: defaultTick}, {Kind: MovementSpeed, Value: 1 - min(s, 1)/2}}
	case Staggered:
		return []Effect{{Kind: PoiseReduction, Value: -s}, {Kind: PrecisionOverride, Value: 0.5}}
	}
	return nil
}

func healthOverTime(rate float32, m ModifierKind, tick float64) Effect {
	return Effect{Kind: HealthChangeOverTime, Rate: rate, Modifier: m, TickDur: tick}
}
