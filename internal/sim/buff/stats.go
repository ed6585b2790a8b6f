package buff

// Modifier combines a flat bonus with a multiplier.
type Modifier struct {
	Add  float32
	Mult float32
}

func (m Modifier) Apply(base float32) float32 { return (base + m.Add) * m.Mult }

// Split keeps the strongest positive contribution and sums the negative
// ones.
type Split struct {
	Pos float32
	Neg float32
}

func (s *Split) add(v float32) {
	if v > 0 {
		s.Pos = max(s.Pos, v)
	} else {
		s.Neg += v
	}
}

func (s Split) Value() float32 { return s.Pos + s.Neg }

// Stats is the transient modifier aggregate of an entity. It is rebuilt
// from scratch every tick by the engine.
type Stats struct {
	MaxHealth       Modifier
	MaxEnergy       Modifier
	DamageReduction Split
	PoiseReduction  Split

	MoveSpeed     float32
	AttackSpeed   float32
	RecoverySpeed float32
	Friction      float32
	SwimSpeed     float32
	AttackDamage  float32
	PoiseDamage   float32
	EnergyReward  float32

	HealReduction          float32
	CrowdControlResistance float32
	ItemEffectReduction    float32
	MitigationsPenetration float32

	PrecisionOverride              *float32
	PrecisionVulnerabilityOverride *float32

	DisableAuxiliaryAbilities bool

	OnAttack  []string
	OnDamaged []string
	OnDeath   []string

	OriginalBody Body
}

func NewStats(body Body) *Stats {
	s := &Stats{OriginalBody: body}
	s.Reset()
	return s
}

// Reset returns every modifier to neutral. The original body is kept; the
// effect name lists start fresh so slices handed out earlier stay intact.
func (s *Stats) Reset() {
	*s = Stats{
		MaxHealth:           Modifier{Mult: 1},
		MaxEnergy:           Modifier{Mult: 1},
		MoveSpeed:           1,
		AttackSpeed:         1,
		RecoverySpeed:       1,
		Friction:            1,
		SwimSpeed:           1,
		AttackDamage:        1,
		PoiseDamage:         1,
		EnergyReward:        1,
		ItemEffectReduction: 1,
		OriginalBody:        s.OriginalBody,
	}
}

// DamageReductionWith combines armour with the buff-granted reduction.
// 1 means complete immunity.
func (s *Stats) DamageReductionWith(armor float32) float32 {
	dr := min(s.DamageReduction.Value(), 1)
	return 1 - (1-armor)*(1-dr)
}
