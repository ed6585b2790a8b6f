package ai

// Predicate is a possibly stateful condition checked against the context.
type Predicate interface {
	Should(ctx *Ctx) bool
}

// Pred adapts a stateless function.
type Pred func(ctx *Ctx) bool

func (p Pred) Should(ctx *Ctx) bool { return p(ctx) }

// TimeoutPred becomes true once Duration seconds of simulated time have
// passed since it was first checked.
type TimeoutPred struct {
	Duration float64
	Start    float64
	Started  bool
}

func Timeout(d float64) *TimeoutPred { return &TimeoutPred{Duration: d} }

func (t *TimeoutPred) Should(ctx *Ctx) bool {
	if !t.Started {
		t.Start, t.Started = ctx.Time, true
	}
	return ctx.Time-t.Start >= t.Duration
}

// EveryRange fires once per interval, each interval drawn uniformly from
// [Min, Max) seconds. The first check only arms it.
type EveryRange struct {
	Min, Max float64
	Next     float64
	Armed    bool
}

func NewEveryRange(lo, hi float64) EveryRange { return EveryRange{Min: lo, Max: hi} }

func (e *EveryRange) interval(ctx *Ctx) float64 {
	if e.Max <= e.Min {
		return e.Min
	}
	return e.Min + ctx.Rng.Float64()*(e.Max-e.Min)
}

func (e *EveryRange) Should(ctx *Ctx) bool {
	if !e.Armed {
		e.Next, e.Armed = ctx.Time+e.interval(ctx), true
		return false
	}
	if ctx.Time < e.Next {
		return false
	}
	e.Next = ctx.Time + e.interval(ctx)
	return true
}

// ChanceEvery rate-limits a probabilistic trigger: Every must fire and then
// the roll must succeed with probability P.
type ChanceEvery struct {
	P     float64
	Every EveryRange
}

func Chance(p float64, every EveryRange) ChanceEvery { return ChanceEvery{P: p, Every: every} }

func (c *ChanceEvery) Should(ctx *Ctx) bool {
	return c.Every.Should(ctx) && ctx.Rng.Float64() < c.P
}
