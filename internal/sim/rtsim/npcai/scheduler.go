package npcai

import (
	"context"
	"fmt"
	"io"
	"log"
	"math/rand/v2"
	"runtime"
	"runtime/debug"

	"golang.org/x/sync/errgroup"

	"rtsim.ai/internal/sim/rtsim/ai"
	"rtsim.ai/internal/sim/rtsim/data"
	"rtsim.ai/internal/sim/world"
)

// SimulatedTickSkip is how many ticks pass between polls of a simulated NPC.
const SimulatedTickSkip = 10

// defaultTickDt seeds the dt window so the first simulated polls see a
// plausible elapsed time.
const defaultTickDt = 1.0 / 30

type Config struct {
	TickSkip int
	// Workers bounds the poll goroutines; 0 means GOMAXPROCS.
	Workers  int
	Settings ai.Settings
}

func (c *Config) normalize() {
	if c.TickSkip <= 0 {
		c.TickSkip = SimulatedTickSkip
	}
	if c.Workers <= 0 {
		c.Workers = runtime.GOMAXPROCS(0)
	}
	if c.Settings == (ai.Settings{}) {
		c.Settings = ai.DefaultSettings()
	}
}

type TickInput struct {
	Tick      uint64
	Dt        float64
	Time      float64
	TimeOfDay float64
}

// Emitted is an NPC action that leaves the simulation: speech and attacks,
// and dialogue aimed at characters.
type Emitted struct {
	From   data.NpcID
	Action data.NpcAction
}

type TickResult struct {
	Polled      int
	Loaded      int
	Simulated   int
	SimulatedDt float64
	// Delivered counts actions handed to other NPCs' dialogue queues and
	// dialogue turns pushed into their inboxes.
	Delivered int
	Panics    int
	Emitted   []Emitted
}

// Scheduler polls NPC brains once per tick. Brains and dialogue queues live
// here rather than on the NPC so the data model stays plain.
type Scheduler struct {
	cfg    Config
	world  world.Query
	logger *log.Logger

	window []float64
	head   int

	brains map[data.NpcID]*Brain
	queues map[data.NpcID]*ai.DialogueQueue
}

func New(cfg Config, w world.Query, logger *log.Logger) *Scheduler {
	cfg.normalize()
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	window := make([]float64, cfg.TickSkip)
	for i := range window {
		window[i] = defaultTickDt
	}
	return &Scheduler{
		cfg:    cfg,
		world:  w,
		logger: logger,
		window: window,
		brains: map[data.NpcID]*Brain{},
		queues: map[data.NpcID]*ai.DialogueQueue{},
	}
}

func (s *Scheduler) Config() Config { return s.cfg }

// push records dt, evicting the oldest entry, and returns the window sum.
func (s *Scheduler) push(dt float64) float64 {
	s.window[s.head] = dt
	s.head = (s.head + 1) % len(s.window)
	sum := 0.0
	for _, v := range s.window {
		sum += v
	}
	return sum
}

// Eligible reports whether n is polled on the given tick.
func (s *Scheduler) Eligible(n *data.Npc, tick uint64) bool {
	if n.IsDead() || n.Role.Kind == data.RoleVehicle {
		return false
	}
	return n.Mode == data.Loaded || (uint64(n.Seed)+tick)%uint64(s.cfg.TickSkip) == 0
}

// Queue returns the NPC's pending cross-NPC actions, creating it if needed.
func (s *Scheduler) Queue(id data.NpcID) *ai.DialogueQueue {
	q := s.queues[id]
	if q == nil {
		q = &ai.DialogueQueue{}
		s.queues[id] = q
	}
	return q
}

// Backtrace describes what the NPC's brain is doing, for debugging.
func (s *Scheduler) Backtrace(id data.NpcID) []string {
	if b := s.brains[id]; b != nil {
		return b.Backtrace()
	}
	return nil
}

type pollJob struct {
	id  data.NpcID
	npc *data.Npc
	ctx ai.Ctx

	controller   data.Controller
	inbox        data.Inbox
	sentiments   data.Sentiments
	knownReports map[data.ReportID]struct{}

	brain    *Brain
	panicked bool
	outbox   []ai.Outgoing
}

// Tick runs one scheduling pass over d. The NPC registry is read-only while
// brains run in parallel; everything aimed at another NPC is applied
// afterwards in id order.
func (s *Scheduler) Tick(ctx context.Context, d *data.Data, in TickInput) (TickResult, error) {
	simDt := s.push(in.Dt)
	res := TickResult{SimulatedDt: simDt}
	s.prune(d)
	d.RebuildGrid()

	ids := d.NpcIDs()
	jobs := make([]*pollJob, 0, len(ids))
	for _, id := range ids {
		n := d.Npcs[id]
		if !s.Eligible(n, in.Tick) {
			continue
		}
		dt := simDt
		if n.Mode == data.Loaded {
			dt = in.Dt
			res.Loaded++
		} else {
			res.Simulated++
		}
		jobs = append(jobs, s.detach(id, n, d, in, dt))
	}
	res.Polled = len(jobs)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Workers)
	chunk := (len(jobs) + s.cfg.Workers - 1) / max(s.cfg.Workers, 1)
	for start := 0; start < len(jobs); start += chunk {
		part := jobs[start:min(start+chunk, len(jobs))]
		g.Go(func() error {
			for _, j := range part {
				if err := gctx.Err(); err != nil {
					return err
				}
				s.poll(j)
			}
			return nil
		})
	}
	waitErr := g.Wait()

	for _, j := range jobs {
		if j.panicked {
			res.Panics++
		}
		s.reattach(j, in)
	}
	if waitErr != nil {
		return res, waitErr
	}
	s.deliver(d, jobs, in, &res)
	return res, nil
}

func (s *Scheduler) detach(id data.NpcID, n *data.Npc, d *data.Data, in TickInput, dt float64) *pollJob {
	j := &pollJob{id: id, npc: n}
	j.controller, n.Controller = n.Controller, data.Controller{}
	j.inbox, n.Inbox = n.Inbox, data.Inbox{}
	j.sentiments, n.Sentiments = n.Sentiments, data.Sentiments{}
	j.knownReports, n.KnownReports = n.KnownReports, nil
	if j.knownReports == nil {
		j.knownReports = map[data.ReportID]struct{}{}
	}
	j.brain = s.brains[id]
	if j.brain == nil {
		j.brain = NewBrain()
	}
	j.ctx = ai.Ctx{
		NpcID:        id,
		Npc:          n,
		Data:         d,
		World:        s.world,
		Controller:   &j.controller,
		Inbox:        &j.inbox,
		Sentiments:   &j.sentiments,
		KnownReports: j.knownReports,
		Dialogue:     s.Queue(id),
		Rng:          rand.New(rand.NewPCG(uint64(n.Seed), in.Tick)),
		Time:         in.Time,
		TimeOfDay:    in.TimeOfDay,
		Dt:           dt,
		Tick:         in.Tick,
		Settings:     s.cfg.Settings,
	}
	return j
}

// poll runs one brain tick. A panicking brain is logged and replaced; its
// staged outputs for the tick are dropped.
func (s *Scheduler) poll(j *pollJob) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Printf("npc %d: brain panic: %v\n%s", j.id, r, debug.Stack())
			j.panicked = true
			j.brain = NewBrain()
			j.controller.Reset()
			j.ctx.TakeOutbox()
		}
	}()
	j.controller.Reset()
	j.brain.Tick(&j.ctx)
	j.outbox = j.ctx.TakeOutbox()
}

func (s *Scheduler) reattach(j *pollJob, in TickInput) {
	n := j.npc
	n.Controller = j.controller
	n.Sentiments = j.sentiments
	n.KnownReports = j.knownReports
	n.Inbox = j.inbox
	n.Inbox.Retain(func(i data.Input) bool {
		return i.Kind == data.InputDialogue && in.Time-i.ReceivedAt < s.cfg.Settings.DialogueRetain
	})
	n.Activity = 0
	if a := n.Controller.Activity; a != nil {
		n.Activity = a.Kind
	}
	s.brains[j.id] = j.brain
}

func (s *Scheduler) deliver(d *data.Data, jobs []*pollJob, in TickInput, res *TickResult) {
	for _, j := range jobs {
		for _, out := range j.outbox {
			if t, ok := d.Npc(out.Target); !ok || t.IsDead() {
				continue
			}
			s.Queue(out.Target).Push(ai.Incoming{From: j.id, Action: out.Action})
			res.Delivered++
		}
		from := data.NpcActor(j.id)
		for _, act := range j.npc.Controller.TakeActions() {
			if act.Kind == data.ActionDialogue {
				if tid, ok := act.Target.NpcID(); ok {
					if t, ok := d.Npc(tid); ok {
						t.Inbox.Push(data.DialogueInput(from, act.Dialogue, in.Time))
						res.Delivered++
					}
					continue
				}
			}
			res.Emitted = append(res.Emitted, Emitted{From: j.id, Action: act})
		}
	}
}

// prune drops brains and queues of NPCs that no longer exist.
func (s *Scheduler) prune(d *data.Data) {
	for id := range s.brains {
		if _, ok := d.Npcs[id]; !ok {
			delete(s.brains, id)
		}
	}
	for id := range s.queues {
		if _, ok := d.Npcs[id]; !ok {
			delete(s.queues, id)
		}
	}
}

func (r TickResult) String() string {
	return fmt.Sprintf("polled=%d loaded=%d simulated=%d dt=%.3f delivered=%d panics=%d emitted=%d",
		r.Polled, r.Loaded, r.Simulated, r.SimulatedDt, r.Delivered, r.Panics, len(r.Emitted))
}
