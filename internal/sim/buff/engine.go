package buff

import (
	"context"
	"io"
	"log"
	"math"
	"math/rand/v2"
	"runtime"
	"runtime/debug"
	"sort"

	"golang.org/x/sync/errgroup"

	"rtsim.ai/internal/sim/mathx"
)

// epsilon32 is the float32 machine epsilon.
const epsilon32 = 1.1920929e-07

type Health struct {
	Current float32
	Max     float32
	// BaseMax is the maximum before modifiers.
	BaseMax float32
	Dead    bool
}

func (h Health) Fraction() float32 {
	if h.Max <= 0 {
		return 0
	}
	return h.Current / h.Max
}

type Energy struct {
	Current float32
	Max     float32
}

type Aura struct {
	Radius float64
}

// Entity is the engine's view of one buff holder. Buffs and Stats belong to
// the entity and are written only by the worker resolving it; everything
// else is read-only during a pass.
type Entity struct {
	ID      EntityID
	Pos     mathx.Vec3
	Body    Body
	Health  Health
	Energy  Energy
	Armor   float32
	Buffs   *Buffs
	Stats   *Stats
	Contact *Contact
	Auras   map[AuraKey]Aura
}

type Config struct {
	// Workers bounds the resolution goroutines; 0 means GOMAXPROCS.
	Workers int
}

type TickInput struct {
	Tick uint64
	Time float64
	Dt   float64
	Seed uint64
	// LinkAlive reports whether a link still holds. Nil treats every link
	// as alive.
	LinkAlive func(LinkID) bool
}

type Result struct {
	Events
	Entities int
	Expired  int
	Detached int
	Panics   int
}

// Engine resolves buffs once per tick.
type Engine struct {
	cfg    Config
	logger *log.Logger
}

func NewEngine(cfg Config, logger *log.Logger) *Engine {
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.GOMAXPROCS(0)
	}
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Engine{cfg: cfg, logger: logger}
}

type job struct {
	e        *Entity
	out      outbox
	expired  int
	detached int
	panicked bool
}

// Tick resolves every entity that has buffs. Entities are processed in
// parallel; each writes only its own buffs and stats, and everything aimed
// elsewhere comes back as events in entity order.
func (eng *Engine) Tick(ctx context.Context, entities []*Entity, in TickInput) (Result, error) {
	index := make(map[EntityID]*Entity, len(entities))
	jobs := make([]*job, 0, len(entities))
	for _, e := range entities {
		index[e.ID] = e
		if e.Buffs != nil {
			if e.Stats == nil {
				e.Stats = NewStats(e.Body)
			}
			jobs = append(jobs, &job{e: e})
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(eng.cfg.Workers)
	chunk := max((len(jobs)+eng.cfg.Workers-1)/eng.cfg.Workers, 1)
	for start := 0; start < len(jobs); start += chunk {
		part := jobs[start:min(start+chunk, len(jobs))]
		g.Go(func() error {
			for _, j := range part {
				if err := gctx.Err(); err != nil {
					return err
				}
				eng.run(j, index, in)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Result{}, err
	}

	res := Result{Entities: len(jobs)}
	for _, j := range jobs {
		if j.panicked {
			res.Panics++
			continue
		}
		res.Expired += j.expired
		res.Detached += j.detached
		res.merge(&j.out)
	}
	return res, nil
}

func (eng *Engine) run(j *job, index map[EntityID]*Entity, in TickInput) {
	defer func() {
		if r := recover(); r != nil {
			eng.logger.Printf("entity %d: buff panic: %v\n%s", j.e.ID, r, debug.Stack())
			j.panicked = true
			j.out = outbox{}
		}
	}()
	rng := rand.New(rand.NewPCG(in.Seed^uint64(j.e.ID), in.Tick))
	r := resolver{e: j.e, index: index, in: in, out: &j.out}
	r.resolve(rng)
	j.expired, j.detached = r.expired, r.detached
}

type resolver struct {
	e     *Entity
	index map[EntityID]*Entity
	in    TickInput
	out   *outbox

	bodyOverride *Body
	expired      int
	detached     int
}

func (r *resolver) resolve(rng *rand.Rand) {
	e, now := r.e, r.in.Time
	applyEnvironment(e, now)
	ignite(e, r.in.Dt, now, rng, r.out)

	expiring := map[Key]bool{}
	var expired []Key
	markExpired := func(k Key) {
		if !expiring[k] {
			expiring[k] = true
			expired = append(expired, k)
		}
	}
	for _, k := range e.Buffs.AllKeys() {
		b, _ := e.Buffs.Get(k)
		if !r.sourceHolds(b) {
			b.detach()
			r.detached++
		}
		if b.Expired(now) {
			markExpired(k)
		}
	}

	immune := math.Abs(float64(e.Stats.DamageReductionWith(e.Armor)-1)) < epsilon32
	if immune {
		for _, k := range e.Buffs.AllKeys() {
			if b, _ := e.Buffs.Get(k); !b.Kind.IsBuff() {
				markExpired(k)
			}
		}
	}

	e.Stats.Reset()

	kinds := e.Buffs.Kinds()
	sort.SliceStable(kinds, func(i, j int) bool {
		return kinds[i].AffectsSubsequent() && !kinds[j].AffectsSubsequent()
	})
	for _, kind := range kinds {
		if immune && !kind.IsBuff() {
			continue
		}
		keys := e.Buffs.Keys(kind)
		if !kind.Stacks() {
			keys = keys[:1]
		}
		for _, k := range keys {
			b, _ := e.Buffs.Get(k)
			if b.StartTime > now {
				continue
			}
			for _, eff := range b.Effects {
				r.execute(eff, b, expiring[k])
			}
		}
	}

	body := e.Stats.OriginalBody
	if r.bodyOverride != nil {
		body = *r.bodyOverride
	}
	if body != e.Body {
		r.out.body = append(r.out.body, BodyChangeEvent{Entity: e.ID, Body: body})
	}

	if len(expired) > 0 {
		r.expired = len(expired)
		r.out.changes = append(r.out.changes, Change{Entity: e.ID, Op: OpRemoveKeys, Keys: expired})
	}
	if e.Health.Dead {
		r.out.changes = append(r.out.changes, Change{Entity: e.ID, Op: OpRemoveByCategory, NoneOf: []CategoryKind{PersistOnDeath}})
	}
}

// sourceHolds checks the conditional categories of b. Range checks compare
// squared distances.
func (r *resolver) sourceHolds(b *Buff) bool {
	for _, c := range b.Categories {
		switch c.Kind {
		case FromActiveAura:
			src, ok := r.index[c.Source]
			if !ok {
				return false
			}
			aura, ok := src.Auras[c.Aura]
			if !ok {
				return false
			}
			if r.e.Pos.DistSq(src.Pos) > aura.Radius*aura.Radius {
				return false
			}
		case FromLink:
			if r.in.LinkAlive != nil && !r.in.LinkAlive(c.Link) {
				return false
			}
		}
	}
	return true
}

// numTicks is how many effect ticks elapsed within this frame. Whole ticks
// are counted by flooring elapsed time before and after the frame; when the
// buff expires this frame, the partial tick up to its end is added so the
// tail of the effect is not lost.
func numTicks(now, dt, start float64, end *float64, tick float64, expiring bool) (float64, bool) {
	if tick <= 0 {
		return 0, false
	}
	eff := now
	if expiring && end != nil && *end < now {
		eff = *end
	}
	passed := eff - start
	prevPassed := max(now-dt-start, 0)
	if passed < prevPassed {
		return 0, false
	}
	whole := math.Floor(passed/tick) - math.Floor(prevPassed/tick)
	if expiring {
		n := whole + math.Mod(passed, tick)/tick
		return n, n > 0
	}
	if whole >= 1 {
		return whole, true
	}
	return 0, false
}

func (r *resolver) execute(eff Effect, b *Buff, expiring bool) {
	e, s, now := r.e, r.e.Stats, r.in.Time
	switch eff.Kind {
	case HealthChangeOverTime:
		n, ok := numTicks(now, r.in.Dt, b.StartTime, b.EndTime, eff.TickDur, expiring)
		if !ok {
			return
		}
		amount := eff.Rate * float32(n) * float32(eff.TickDur)
		if eff.Modifier == Multiplicative {
			amount *= e.Health.Max
		}
		if amount > 0 {
			amount *= 1 - s.HealReduction
		}
		var by *EntityID
		if amount != 0 && b.Source.Kind == SourceCharacter {
			id := b.Source.By
			by = &id
		}
		r.out.health = append(r.out.health, HealthChange{
			Entity: e.ID, Amount: amount, Cause: b.Kind, By: by, Time: now, Instance: eff.Instance,
		})
	case EnergyChangeOverTime:
		n, ok := numTicks(now, r.in.Dt, b.StartTime, b.EndTime, eff.TickDur, expiring)
		if !ok {
			return
		}
		amount := eff.Rate * float32(n) * float32(eff.TickDur)
		if eff.Modifier == Multiplicative {
			amount *= e.Energy.Max
		}
		r.out.energy = append(r.out.energy, EnergyChange{Entity: e.ID, Amount: amount})
	case ComboChangeOverTime:
		n, ok := numTicks(now, r.in.Dt, b.StartTime, b.EndTime, eff.TickDur, expiring)
		if !ok {
			return
		}
		r.out.combo = append(r.out.combo, ComboChange{Entity: e.ID, Amount: int32(eff.Rate * float32(n) * float32(eff.TickDur))})
	case MaxHealthModifier:
		applyModifier(&s.MaxHealth, eff)
	case MaxEnergyModifier:
		applyModifier(&s.MaxEnergy, eff)
	case MaxHealthChangeOverTime:
		s.MaxHealth.Mult *= r.maxHealthFraction(eff, b.Kind)
	case DamageReduction:
		s.DamageReduction.add(eff.Value)
	case PoiseReduction:
		s.PoiseReduction.add(eff.Value)
	case MovementSpeed:
		s.MoveSpeed *= eff.Value
	case AttackSpeed:
		s.AttackSpeed *= eff.Value
	case RecoverySpeed:
		s.RecoverySpeed *= eff.Value
	case GroundFriction:
		s.Friction *= eff.Value
	case SwimSpeed:
		s.SwimSpeed *= eff.Value
	case AttackDamage:
		s.AttackDamage *= eff.Value
	case EnergyReward:
		s.EnergyReward *= eff.Value
	case PoiseDamageFromLostHealth:
		s.PoiseDamage *= 1 + (1-e.Health.Fraction())*eff.Value
	case PrecisionOverride:
		v := eff.Value
		if s.PrecisionOverride != nil {
			v = min(v, *s.PrecisionOverride)
		}
		s.PrecisionOverride = &v
	case PrecisionVulnerabilityOverride:
		v := eff.Value
		if s.PrecisionVulnerabilityOverride != nil {
			v = max(v, *s.PrecisionVulnerabilityOverride)
		}
		s.PrecisionVulnerabilityOverride = &v
	case HealReduction:
		s.HealReduction = 1 - (1-s.HealReduction)*(1-eff.Value)
	case MitigationsPenetration:
		s.MitigationsPenetration = 1 - (1-s.MitigationsPenetration)*(1-eff.Value)
	case ItemEffectReduction:
		s.ItemEffectReduction *= 1 - eff.Value
	case CrowdControlResistance:
		s.CrowdControlResistance += eff.Value
	case DisableAuxiliaryAbilities:
		s.DisableAuxiliaryAbilities = true
	case BodyChange:
		// Keep an override that already matches the current body so two
		// polymorphs do not flicker between each other.
		if r.bodyOverride == nil || *r.bodyOverride != e.Body {
			body := eff.Body
			r.bodyOverride = &body
		}
	case BuffImmunity:
		if e.Buffs.Contains(eff.Immune) {
			r.out.changes = append(r.out.changes, Change{Entity: e.ID, Op: OpRemoveKind, Kind: eff.Immune})
		}
	case AttackEffect:
		s.OnAttack = append(s.OnAttack, eff.Name)
	case DamagedEffect:
		s.OnDamaged = append(s.OnDamaged, eff.Name)
	case DeathEffect:
		s.OnDeath = append(s.OnDeath, eff.Name)
	}
}

func applyModifier(m *Modifier, eff Effect) {
	if eff.Modifier == Multiplicative {
		m.Mult *= eff.Value
	} else {
		m.Add += eff.Value
	}
}

// maxHealthFraction walks the maximum health toward TargetFraction at Rate
// per second since the kind became active.
func (r *resolver) maxHealthFraction(eff Effect, kind Kind) float32 {
	start, ok := r.e.Buffs.KindStart(kind)
	if !ok {
		return 1
	}
	potential := float32(r.in.Time-start) * eff.Rate
	fraction := float32(1)
	if eff.Modifier == Multiplicative {
		fraction += potential
	} else if r.e.Health.BaseMax > 0 {
		fraction += potential / r.e.Health.BaseMax
	}
	progress := float32(1)
	if d := 1 - eff.TargetFraction; d > epsilon32 || d < -epsilon32 {
		progress = (1 - fraction) / d
	}
	if progress > 1 {
		return eff.TargetFraction
	}
	return fraction
}

// Apply performs staged buff changes on the matching entities in order and
// returns how many buffs were added or removed. Changes for unknown
// entities are dropped.
func Apply(entities []*Entity, changes []Change, now float64) int {
	index := make(map[EntityID]*Entity, len(entities))
	for _, e := range entities {
		index[e.ID] = e
	}
	n := 0
	for _, c := range changes {
		e, ok := index[c.Entity]
		if !ok {
			continue
		}
		if e.Buffs == nil {
			e.Buffs = NewBuffs()
		}
		n += c.Apply(e.Buffs, now)
	}
	return n
}
