package pairtopology

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
)

var (
	ErrNoExecutor = errors.New("no goal executor")
)

// Controller drives the role of one node of a two node topology. Every
// public operation enqueues an event, a single loop goroutine handles them
// in arrival order.
type Controller struct {
	opt    *controllerOpt
	mu     *sync.RWMutex
	wg     *sync.WaitGroup
	cancel context.CancelFunc
	queue  *eventQueue
	goals  *goalDispatcher
	timers *timers
	snap   snapshot

	// owned by the event loop
	state                  State
	target                 State
	role                   ElectedRole
	reason                 HandoverReason
	pending                appEvent
	status                 topologyStatus
	stopRequested          bool
	peerPaired             bool
	forceRelinquish        bool
	errorForcedNoRole      bool
	handoverFailed         bool
	staticHandoverRequired bool
	keepAlive              bool
	roleSwapSupported      bool
	roleElectedByFindRole  bool
	initialIdleSent        bool
	leaveRemaining         time.Duration
	hint                   preservedHint
}

func (c *Controller) Start() {
	c.queue.push(&event{typ: eventStart})
}

func (c *Controller) Stop() {
	c.queue.push(&event{typ: eventStop})
}

func (c *Controller) Kick() {
	c.queue.pushKick()
}

func (c *Controller) Join() {
	c.queue.push(&event{typ: eventJoin})
}

// Leave takes the node out of the topology. forceReset relinquishes a
// primary role too.
func (c *Controller) Leave(forceReset bool) {
	c.queue.push(&event{typ: eventLeave, force: forceReset})
}

func (c *Controller) SwapRole() {
	c.queue.push(&event{typ: eventSwapRole})
}

func (c *Controller) SwapRoleAndLeave() {
	c.queue.push(&event{typ: eventSwapRoleAndLeave})
}

func (c *Controller) EnableRoleSwap() {
	c.queue.push(&event{typ: eventEnableRoleSwap})
}

func (c *Controller) DisableRoleSwap() {
	c.queue.push(&event{typ: eventDisableRoleSwap})
}

func (c *Controller) ElectionResult(outcome ElectionOutcome) {
	c.queue.push(&event{typ: eventElectionResult, outcome: outcome})
}

func (c *Controller) PeerLinkConnected() {
	c.queue.push(&event{typ: eventPeerLinkConnected})
}

func (c *Controller) PeerLinkDisconnected(reason LinkLossReason) {
	c.queue.push(&event{typ: eventPeerLinkDisconnected, linkLoss: reason})
}

func (c *Controller) HandoverRequest(reason HandoverReason) {
	c.queue.push(&event{typ: eventHandoverRequest, reason: reason})
}

func (c *Controller) HandoverCancel() {
	c.queue.push(&event{typ: eventHandoverCancel})
}

func (c *Controller) PeerCommandReceived(cmd PeerCommand) {
	c.queue.push(&event{typ: eventPeerCommand, cmd: cmd})
}

func (c *Controller) PeerCommandConfirmed(cmd PeerCommand, err error) {
	c.queue.push(&event{typ: eventPeerCommandConfirmed, cmd: cmd, err: err})
}

// RequestStaticHandover asks a primary with an attached peer to hand its
// role over without a dynamic handover.
func (c *Controller) RequestStaticHandover() {
	c.queue.push(&event{typ: eventStaticHandoverRequest})
}

// GoalComplete is the ReportFunc handed to the Executor.
func (c *Controller) GoalComplete(id GoalID, result Result) {
	c.queue.push(&event{typ: eventGoalComplete, goalID: id, result: result})
}

func (c *Controller) fireTimer(kind timerKind, gen uint64) {
	c.queue.push(&event{typ: eventTimer, timer: kind, gen: gen})
}

func (c *Controller) Shutdown() {
	if c.cancel != nil {
		c.cancel()
	}
	c.wg.Wait()
	c.timers.cancelAll()
}

func newController(exec Executor, funcs []OptFunc) (*Controller, error) {
	if exec == nil {
		return nil, errors.WithStack(ErrNoExecutor)
	}

	opt := newControllerOpt(funcs)
	c := &Controller{
		opt:               opt,
		mu:                new(sync.RWMutex),
		wg:                new(sync.WaitGroup),
		queue:             newEventQueue(),
		state:             StateStopped,
		target:            StateStopped,
		role:              ElectedRoleNone,
		reason:            HandoverReasonNone,
		pending:           appEventNone,
		peerPaired:        opt.peerPaired,
		roleSwapSupported: opt.behaviour.SupportRoleSwap,
		leaveRemaining:    DefaultLeaveStableDeadline,
	}
	c.goals = newGoalDispatcher(exec, c.GoalComplete, opt.ulidGeneratorFunc)
	c.timers = newTimers(opt.afterFunc, c.fireTimer)
	c.publish()
	return c, nil
}

// Create builds a stopped controller and starts its event loop.
func Create(parent context.Context, exec Executor, funcs ...OptFunc) (*Controller, error) {
	c, err := newController(exec, funcs)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	ctx, cancel := context.WithCancel(parent)
	c.cancel = cancel
	c.wg.Add(1)
	go c.runLoop(ctx)
	return c, nil
}
