package ai

type thenAction[S, A, B any] struct {
	first  Action[S, A]
	next   func(A) Action[S, B]
	second Action[S, B]
}

// Then runs a to completion and then b. When a finishes, b is polled within
// the same tick.
func Then[S, A, B any](a Action[S, A], b Action[S, B]) Action[S, B] {
	return &thenAction[S, A, B]{first: a, next: func(A) Action[S, B] { return b }}
}

// AndThen is Then with the second action built from the first one's result.
func AndThen[S, A, B any](a Action[S, A], next func(A) Action[S, B]) Action[S, B] {
	return &thenAction[S, A, B]{first: a, next: next}
}

func (t *thenAction[S, A, B]) Tick(ctx *Ctx, s *S) (B, bool) {
	if t.second == nil {
		out, done := t.first.Tick(ctx, s)
		if !done {
			var zero B
			return zero, false
		}
		t.first = nil
		t.second = t.next(out)
		if t.second == nil {
			var zero B
			return zero, true
		}
	}
	return t.second.Tick(ctx, s)
}

func (t *thenAction[S, A, B]) Backtrace(bt *[]string) {
	if t.second != nil {
		t.second.Backtrace(bt)
	} else if t.first != nil {
		t.first.Backtrace(bt)
	}
}

type seqAction[S any] struct {
	steps []Action[S, Unit]
	i     int
}

// Seq runs each action in order, moving on within the same tick.
func Seq[S any](steps ...Action[S, Unit]) Action[S, Unit] {
	return &seqAction[S]{steps: steps}
}

func (q *seqAction[S]) Tick(ctx *Ctx, s *S) (Unit, bool) {
	for q.i < len(q.steps) {
		if _, done := q.steps[q.i].Tick(ctx, s); !done {
			return Unit{}, false
		}
		q.steps[q.i] = nil
		q.i++
	}
	return Unit{}, true
}

func (q *seqAction[S]) Backtrace(bt *[]string) {
	if q.i < len(q.steps) {
		q.steps[q.i].Backtrace(bt)
	}
}

type repeatAction[S, R any] struct {
	factory func() Action[S, R]
	cur     Action[S, R]
}

// Repeat runs a fresh action from factory whenever the previous one
// finishes. It never completes; wrap it in StopIf to end it. At most one
// inner action finishes per tick.
func Repeat[S, R any](factory func() Action[S, R]) Action[S, Unit] {
	return &repeatAction[S, R]{factory: factory}
}

func (r *repeatAction[S, R]) Tick(ctx *Ctx, s *S) (Unit, bool) {
	if r.cur == nil {
		r.cur = r.factory()
	}
	if _, done := r.cur.Tick(ctx, s); done {
		r.cur = nil
	}
	return Unit{}, false
}

func (r *repeatAction[S, R]) Backtrace(bt *[]string) {
	if r.cur != nil {
		r.cur.Backtrace(bt)
	}
}

type stopIfAction[S, R any] struct {
	inner Action[S, R]
	pred  Predicate
}

// StopIf checks pred before every poll of a and completes with an empty
// Option as soon as it holds, without polling a again.
func StopIf[S, R any](a Action[S, R], pred Predicate) Action[S, Option[R]] {
	return &stopIfAction[S, R]{inner: a, pred: pred}
}

func (a *stopIfAction[S, R]) Tick(ctx *Ctx, s *S) (Option[R], bool) {
	if a.pred.Should(ctx) {
		a.inner = nil
		return Option[R]{}, true
	}
	r, done := a.inner.Tick(ctx, s)
	if done {
		return Some(r), true
	}
	return Option[R]{}, false
}

func (a *stopIfAction[S, R]) Backtrace(bt *[]string) {
	if a.inner != nil {
		a.inner.Backtrace(bt)
	}
}

type interruptAction[S, R any] struct {
	inner    Action[S, R]
	producer func(*Ctx, *S) Action[S, Unit]
	alt      Action[S, Unit]
}

// InterruptWith consults producer before every poll. An alternative it
// returns replaces any running alternative and is polled in the same tick.
// While an alternative runs, a is left untouched; once the alternative
// finishes, a resumes where it stopped within that same poll.
func InterruptWith[S, R any](a Action[S, R], producer func(ctx *Ctx, s *S) Action[S, Unit]) Action[S, R] {
	return &interruptAction[S, R]{inner: a, producer: producer}
}

func (a *interruptAction[S, R]) Tick(ctx *Ctx, s *S) (R, bool) {
	if next := a.producer(ctx, s); next != nil {
		a.alt = next
	}
	if a.alt != nil {
		if _, done := a.alt.Tick(ctx, s); !done {
			var zero R
			return zero, false
		}
		a.alt = nil
	}
	return a.inner.Tick(ctx, s)
}

func (a *interruptAction[S, R]) Backtrace(bt *[]string) {
	if a.alt != nil {
		*bt = append(*bt, "interrupted")
		a.alt.Backtrace(bt)
		return
	}
	a.inner.Backtrace(bt)
}

// Priority tags a candidate action for Choose.
type Priority[S, R any] struct {
	Important bool
	Action    Action[S, R]
}

func Important[S, R any](a Action[S, R]) Priority[S, R] {
	return Priority[S, R]{Important: true, Action: a}
}

func Casual[S, R any](a Action[S, R]) Priority[S, R] {
	return Priority[S, R]{Action: a}
}

type chooseAction[S, R any] struct {
	sel       func(*Ctx, *S) Priority[S, R]
	chosen    Action[S, R]
	important bool
}

// Choose evaluates sel once, on the first poll, and runs the selected
// action to completion. A selection with no action completes immediately.
func Choose[S, R any](sel func(ctx *Ctx, s *S) Priority[S, R]) Action[S, R] {
	return &chooseAction[S, R]{sel: sel}
}

func (c *chooseAction[S, R]) Tick(ctx *Ctx, s *S) (R, bool) {
	if c.chosen == nil {
		p := c.sel(ctx, s)
		if p.Action == nil {
			var zero R
			return zero, true
		}
		c.chosen, c.important = p.Action, p.Important
	}
	return c.chosen.Tick(ctx, s)
}

func (c *chooseAction[S, R]) Backtrace(bt *[]string) {
	if c.chosen == nil {
		return
	}
	if c.important {
		*bt = append(*bt, "important")
	}
	c.chosen.Backtrace(bt)
}

// Candidate proposes an action for ChooseFrom; ok=false means it does not
// apply right now.
type Candidate[S, R any] func(ctx *Ctx, s *S) (p Priority[S, R], ok bool)

// ChooseFrom evaluates every candidate in declaration order and picks the
// first important one, or else the first casual one.
func ChooseFrom[S, R any](cands ...Candidate[S, R]) Action[S, R] {
	return Choose(func(ctx *Ctx, s *S) Priority[S, R] {
		var casual *Priority[S, R]
		for _, c := range cands {
			p, ok := c(ctx, s)
			if !ok || p.Action == nil {
				continue
			}
			if p.Important {
				return p
			}
			if casual == nil {
				casual = &p
			}
		}
		if casual != nil {
			return *casual
		}
		return Priority[S, R]{}
	})
}

type mapStateAction[S, T, R any] struct {
	project func(*S) *T
	inner   Action[T, R]
}

// MapState runs a against the part of S selected by project.
func MapState[S, T, R any](project func(*S) *T, a Action[T, R]) Action[S, R] {
	return &mapStateAction[S, T, R]{project: project, inner: a}
}

func (m *mapStateAction[S, T, R]) Tick(ctx *Ctx, s *S) (R, bool) {
	return m.inner.Tick(ctx, m.project(s))
}

func (m *mapStateAction[S, T, R]) Backtrace(bt *[]string) { m.inner.Backtrace(bt) }

type withStateAction[S, T, R any] struct {
	state T
	inner Action[T, R]
}

// WithState gives a its own local state, initialised to init and kept for
// the lifetime of the returned action.
func WithState[S, T, R any](init T, a Action[T, R]) Action[S, R] {
	return &withStateAction[S, T, R]{state: init, inner: a}
}

func (w *withStateAction[S, T, R]) Tick(ctx *Ctx, _ *S) (R, bool) {
	return w.inner.Tick(ctx, &w.state)
}

func (w *withStateAction[S, T, R]) Backtrace(bt *[]string) { w.inner.Backtrace(bt) }

// State exposes the owned state, mainly for inspection in tests and debug
// tooling.
func (w *withStateAction[S, T, R]) State() *T { return &w.state }

type mapAction[S, A, B any] struct {
	inner Action[S, A]
	f     func(A, *S) B
}

// Map transforms the result of a.
func Map[S, A, B any](a Action[S, A], f func(r A, s *S) B) Action[S, B] {
	return &mapAction[S, A, B]{inner: a, f: f}
}

func (m *mapAction[S, A, B]) Tick(ctx *Ctx, s *S) (B, bool) {
	r, done := m.inner.Tick(ctx, s)
	if !done {
		var zero B
		return zero, false
	}
	return m.f(r, s), true
}

func (m *mapAction[S, A, B]) Backtrace(bt *[]string) { m.inner.Backtrace(bt) }

// Discard drops the result of a.
func Discard[S, R any](a Action[S, R]) Action[S, Unit] {
	return Map(a, func(R, *S) Unit { return Unit{} })
}

type debugAction[S, R any] struct {
	inner Action[S, R]
	label func() string
}

// Debug labels a for backtraces. It has no effect on behaviour.
func Debug[S, R any](a Action[S, R], label string) Action[S, R] {
	return &debugAction[S, R]{inner: a, label: func() string { return label }}
}

// Debugf is Debug with a lazily built label.
func Debugf[S, R any](a Action[S, R], label func() string) Action[S, R] {
	return &debugAction[S, R]{inner: a, label: label}
}

func (d *debugAction[S, R]) Tick(ctx *Ctx, s *S) (R, bool) { return d.inner.Tick(ctx, s) }

func (d *debugAction[S, R]) Backtrace(bt *[]string) {
	*bt = append(*bt, d.label())
	d.inner.Backtrace(bt)
}
