// Package ai is the cooperative action engine that drives NPC brains.
//
// An Action is polled once per scheduling pass with the NPC's context and a
// pointer to its local state. It either reports that it is still running or
// that it finished with a result. Long-running behaviour is built by
// composing actions with the combinators in this package; every combinator
// is an explicit state machine so a brain can be detached, polled on any
// worker and reattached between ticks.
package ai

// Unit is the result of actions that produce nothing.
type Unit = struct{}

// Action is a resumable unit of behaviour over local state S with result R.
//
// Tick advances the action by one poll. When done is false the action must be
// polled again on a later tick with the same state; once done is true it must
// not be polled again.
type Action[S, R any] interface {
	Tick(ctx *Ctx, s *S) (r R, done bool)
	// Backtrace appends debug labels of the currently active branch.
	Backtrace(bt *[]string)
}

// Option is the result of an action that may be cut short.
type Option[R any] struct {
	Value R
	Ok    bool
}

func Some[R any](v R) Option[R] { return Option[R]{Value: v, Ok: true} }

// Backtrace returns the labels of the active branch, outermost first.
func Backtrace[S, R any](a Action[S, R]) []string {
	var bt []string
	if a != nil {
		a.Backtrace(&bt)
	}
	return bt
}

type funcAction[S, R any] struct {
	f func(*Ctx, *S) (R, bool)
}

// Func is the primitive action: f is called every tick until it reports done.
func Func[S, R any](f func(ctx *Ctx, s *S) (R, bool)) Action[S, R] {
	return &funcAction[S, R]{f: f}
}

func (a *funcAction[S, R]) Tick(ctx *Ctx, s *S) (R, bool) { return a.f(ctx, s) }
func (a *funcAction[S, R]) Backtrace(*[]string)           {}

// Do runs f once and completes with its result.
func Do[S, R any](f func(ctx *Ctx, s *S) R) Action[S, R] {
	return Func(func(ctx *Ctx, s *S) (R, bool) { return f(ctx, s), true })
}

// Just runs f once and completes.
func Just[S any](f func(ctx *Ctx, s *S)) Action[S, Unit] {
	return Func(func(ctx *Ctx, s *S) (Unit, bool) {
		f(ctx, s)
		return Unit{}, true
	})
}

// Finish completes immediately without doing anything.
func Finish[S any]() Action[S, Unit] {
	return Func(func(*Ctx, *S) (Unit, bool) { return Unit{}, true })
}

// Idle clears the NPC's activity for one tick.
func Idle[S any]() Action[S, Unit] {
	return Debug(Just(func(ctx *Ctx, _ *S) { ctx.Controller.DoIdle() }), "idle")
}

// IdleFor stays idle for d seconds of simulated time.
func IdleFor[S any](d float64) Action[S, Unit] {
	return Discard(StopIf(Repeat(Idle[S]), Timeout(d)))
}

type nowAction[S, R any] struct {
	make func(*Ctx, *S) Action[S, R]
	a    Action[S, R]
}

// Now builds the action to run lazily, on its first tick, and polls it in
// the same tick.
func Now[S, R any](f func(ctx *Ctx, s *S) Action[S, R]) Action[S, R] {
	return &nowAction[S, R]{make: f}
}

func (n *nowAction[S, R]) Tick(ctx *Ctx, s *S) (R, bool) {
	if n.a == nil {
		n.a = n.make(ctx, s)
		if n.a == nil {
			var zero R
			return zero, true
		}
	}
	return n.a.Tick(ctx, s)
}

func (n *nowAction[S, R]) Backtrace(bt *[]string) {
	if n.a != nil {
		n.a.Backtrace(bt)
	}
}
