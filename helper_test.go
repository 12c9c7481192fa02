package pairtopology

import (
	"io"
	"log"
	"strconv"
	"sync"
	"testing"
	"time"
)

type fakeExecutor struct {
	mu         sync.Mutex
	executed   []Goal
	running    []Goal
	cancelled  []Goal
	maxRunning int
	report     ReportFunc
}

func (f *fakeExecutor) Execute(goal Goal, report ReportFunc) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.executed = append(f.executed, goal)
	f.running = append(f.running, goal)
	if f.maxRunning < len(f.running) {
		f.maxRunning = len(f.running)
	}
	f.report = report
}

func (f *fakeExecutor) Cancel(goal Goal) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.cancelled = append(f.cancelled, goal)
}

func (f *fakeExecutor) current() (Goal, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if len(f.running) == 0 {
		return Goal{}, false
	}
	return f.running[0], true
}

// finish reports the oldest running goal.
func (f *fakeExecutor) finish(result Result) (Goal, bool) {
	f.mu.Lock()
	if len(f.running) == 0 {
		f.mu.Unlock()
		return Goal{}, false
	}
	goal := f.running[0]
	f.running = f.running[1:]
	report := f.report
	f.mu.Unlock()

	report(goal.ID, result)
	return goal, true
}

func (f *fakeExecutor) countKind(kind GoalKind) int {
	f.mu.Lock()
	defer f.mu.Unlock()

	n := 0
	for _, g := range f.executed {
		if g.Kind == kind {
			n += 1
		}
	}
	return n
}

type fakeTimer struct {
	at      time.Duration
	f       func()
	stopped bool
	fired   bool
}

type fakeClock struct {
	mu     sync.Mutex
	now    time.Duration
	timers []*fakeTimer
}

func (k *fakeClock) AfterFunc(d time.Duration, f func()) func() bool {
	k.mu.Lock()
	defer k.mu.Unlock()

	t := &fakeTimer{at: k.now + d, f: f}
	k.timers = append(k.timers, t)
	return func() bool {
		k.mu.Lock()
		defer k.mu.Unlock()

		if t.stopped || t.fired {
			return false
		}
		t.stopped = true
		return true
	}
}

func (k *fakeClock) pending() int {
	k.mu.Lock()
	defer k.mu.Unlock()

	n := 0
	for _, t := range k.timers {
		if t.stopped != true && t.fired != true {
			n += 1
		}
	}
	return n
}

// advance moves the clock and fires due timers in deadline order.
func (k *fakeClock) advance(d time.Duration) {
	k.mu.Lock()
	k.now += d
	k.mu.Unlock()

	for {
		k.mu.Lock()
		var next *fakeTimer
		for _, t := range k.timers {
			if t.stopped || t.fired || k.now < t.at {
				continue
			}
			if next == nil || t.at < next.at {
				next = t
			}
		}
		if next == nil {
			k.mu.Unlock()
			return
		}
		next.fired = true
		k.mu.Unlock()

		next.f()
	}
}

type fakeSignaller struct {
	sent         []PeerCommand
	disconnected int
	err          error
}

func (s *fakeSignaller) SendPeerCommand(cmd PeerCommand) error {
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, cmd)
	return nil
}

func (s *fakeSignaller) DisconnectPeer() error {
	s.disconnected += 1
	return nil
}

type fakeElection struct {
	findRole  int
	cancelled int
	active    bool
}

func (e *fakeElection) FindRole(time.Duration) {
	e.findRole += 1
	e.active = true
}

func (e *fakeElection) CancelFindRole() {
	e.cancelled += 1
	e.active = false
}

func (e *fakeElection) IsFindRoleActive() bool {
	return e.active
}

type fakeDecision struct {
	c        *Controller
	started  int
	stopped  int
	external int
}

func (d *fakeDecision) Start() {
	d.started += 1
}

func (d *fakeDecision) Stop() {
	d.stopped += 1
}

func (d *fakeDecision) ExternalHandoverRequest() {
	d.external += 1
	d.c.HandoverRequest(HandoverReasonExternal)
}

type memoryStore struct {
	role  PreservedRole
	valid bool
	saved []PreservedRole
	loads int
}

func (m *memoryStore) Load() (PreservedRole, bool, error) {
	m.loads += 1
	return m.role, m.valid, nil
}

func (m *memoryStore) Save(role PreservedRole) error {
	m.role = role
	m.valid = true
	m.saved = append(m.saved, role)
	return nil
}

func (m *memoryStore) Invalidate() error {
	m.valid = false
	return nil
}

type harness struct {
	c           *Controller
	exec        *fakeExecutor
	clock       *fakeClock
	signaller   *fakeSignaller
	election    *fakeElection
	decision    *fakeDecision
	notes       []Notification
	transitions [][2]State
	fatals      []error
}

func newHarness(t *testing.T, funcs ...OptFunc) *harness {
	t.Helper()

	h := &harness{
		exec:      new(fakeExecutor),
		clock:     new(fakeClock),
		signaller: new(fakeSignaller),
		election:  new(fakeElection),
		decision:  new(fakeDecision),
	}
	seq := 0
	opts := []OptFunc{
		WithLogger(log.New(io.Discard, "", 0)),
		WithAfterFunc(h.clock.AfterFunc),
		WithULIDGeneratorFunc(func() string {
			seq += 1
			return "goal" + strconv.Itoa(seq)
		}),
		WithObserveFunc(func(_ *Controller, n Notification) {
			h.notes = append(h.notes, n)
		}),
		WithTransitionFunc(func(from, to State) {
			h.transitions = append(h.transitions, [2]State{from, to})
		}),
		WithFatalFunc(func(err error) {
			h.fatals = append(h.fatals, err)
		}),
		WithPeerSignaller(h.signaller),
		WithElectionService(h.election),
		WithDecisionSource(h.decision),
	}
	c, err := newController(h.exec, append(opts, funcs...))
	if err != nil {
		t.Fatalf("newController: %+v", err)
	}
	h.c = c
	h.decision.c = c
	return h
}

func (h *harness) drain() {
	h.c.drain()
}

func (h *harness) finish(t *testing.T, kind GoalKind, result Result) {
	t.Helper()

	goal, ok := h.exec.finish(result)
	if ok != true {
		t.Fatalf("no running goal, want %s (state=%s)", kind, h.c.state)
	}
	if goal.Kind != kind {
		t.Fatalf("running goal %s, want %s (state=%s)", goal.Kind, kind, h.c.state)
	}
	h.drain()
}

func (h *harness) advance(d time.Duration) {
	h.clock.advance(d)
	h.drain()
}

func (h *harness) expectState(t *testing.T, want State) {
	t.Helper()

	if h.c.State() != want {
		t.Fatalf("state=%s want %s (target=%s role=%s)", h.c.State(), want, h.c.target, h.c.role)
	}
}

func (h *harness) expectNoFatal(t *testing.T) {
	t.Helper()

	if len(h.fatals) != 0 {
		t.Fatalf("fatal: %+v", h.fatals)
	}
}

func (h *harness) count(typ NotificationType) int {
	n := 0
	for _, note := range h.notes {
		if note.Type == typ {
			n += 1
		}
	}
	return n
}

func (h *harness) last(typ NotificationType) (Notification, bool) {
	for i := len(h.notes) - 1; 0 <= i; i -= 1 {
		if h.notes[i].Type == typ {
			return h.notes[i], true
		}
	}
	return Notification{}, false
}

func (h *harness) entered(s State) int {
	n := 0
	for _, tr := range h.transitions {
		if tr[1] == s {
			n += 1
		}
	}
	return n
}

func (h *harness) toIdle(t *testing.T) {
	t.Helper()

	h.c.Start()
	h.drain()
	h.expectState(t, StateBecomeIdle)
	h.finish(t, GoalNoRoleIdle, ResultSuccess)
	h.expectState(t, StateIdle)
}

func (h *harness) toPrimaryWithPeer(t *testing.T) {
	t.Helper()

	h.toIdle(t)
	h.c.Join()
	h.drain()
	h.expectState(t, StateFindRole)
	h.c.ElectionResult(ElectionPrimary)
	h.drain()
	h.finish(t, GoalFindRole, ResultSuccess)
	h.expectState(t, StateBecomePrimaryWithPeer)
	h.finish(t, GoalBecomePrimary, ResultSuccess)
	h.expectState(t, StatePrimaryConnectableForSecondary)
	h.c.PeerLinkConnected()
	h.drain()
	h.finish(t, GoalPrimaryConnectablePeer, ResultSuccess)
	h.expectState(t, StatePrimaryConnectPeerProfiles)
	h.finish(t, GoalPrimaryConnectPeerProfiles, ResultSuccess)
	h.expectState(t, StatePrimaryWithPeer)
}

func (h *harness) toSecondary(t *testing.T) {
	t.Helper()

	h.toIdle(t)
	h.c.Join()
	h.drain()
	h.expectState(t, StateFindRole)
	h.c.ElectionResult(ElectionSecondary)
	h.drain()
	h.finish(t, GoalFindRole, ResultSuccess)
	h.expectState(t, StateBecomeSecondary)
	h.finish(t, GoalBecomeSecondary, ResultSuccess)
	h.expectState(t, StateSecondaryConnectingToPrimary)
	h.c.PeerLinkConnected()
	h.drain()
	h.finish(t, GoalSecondaryConnectPeer, ResultSuccess)
	h.expectState(t, StateSecondary)
}
