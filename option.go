package pairtopology

import (
	"log"
	"os"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/pkg/errors"
)

const (
	DefaultStopCommandTimeout              = 5 * time.Second
	DefaultPeerFindRoleTimeout             = 2 * time.Second
	DefaultPrimaryWaitForSecondary         = 3 * time.Second
	DefaultSecondaryWaitForPrimary         = 3 * time.Second
	DefaultPostIdleStaticHandoverTimeout   = 5 * time.Second
	DefaultPostIdleSecondaryWaitForPrimary = 2 * time.Second
	DefaultMaxHandoverWindow               = 10 * time.Second
	DefaultResetDeviceTimeout              = 0 * time.Second // disabled
	DefaultHandoverRetryInterval           = 200 * time.Millisecond

	DefaultLeaveRetryInterval  = 100 * time.Millisecond
	DefaultLeaveStableDeadline = 1500 * time.Millisecond
)

type DeviceType uint8

const (
	DeviceTypeEarbud DeviceType = iota
	DeviceTypeStandalone
)

func (d DeviceType) String() string {
	switch d {
	case DeviceTypeEarbud:
		return "paired"
	case DeviceTypeStandalone:
		return "standalone"
	}
	return "unknown device type"
}

// Timeouts holds the product behaviour timings. A zero duration disables the
// timer where noted.
type Timeouts struct {
	StopCommand                     time.Duration // 0 disables the stop guard
	PeerFindRole                    time.Duration
	PrimaryWaitForSecondary         time.Duration
	SecondaryWaitForPrimary         time.Duration
	PostIdleStaticHandover          time.Duration
	PostIdleSecondaryWaitForPrimary time.Duration
	MaxHandoverWindow               time.Duration
	ResetDevice                     time.Duration // 0 disables the idle watchdog
	HandoverRetry                   time.Duration
}

func DefaultTimeouts() Timeouts {
	return Timeouts{
		StopCommand:                     DefaultStopCommandTimeout,
		PeerFindRole:                    DefaultPeerFindRoleTimeout,
		PrimaryWaitForSecondary:         DefaultPrimaryWaitForSecondary,
		SecondaryWaitForPrimary:         DefaultSecondaryWaitForPrimary,
		PostIdleStaticHandover:          DefaultPostIdleStaticHandoverTimeout,
		PostIdleSecondaryWaitForPrimary: DefaultPostIdleSecondaryWaitForPrimary,
		MaxHandoverWindow:               DefaultMaxHandoverWindow,
		ResetDevice:                     DefaultResetDeviceTimeout,
		HandoverRetry:                   DefaultHandoverRetryInterval,
	}
}

type AuthoriseRoleSwapFunc func(reason HandoverReason) bool

type Behaviour struct {
	DeviceType        DeviceType
	SupportRoleSwap   bool
	Timeouts          Timeouts
	AuthoriseRoleSwap AuthoriseRoleSwapFunc
}

func DefaultBehaviour() Behaviour {
	return Behaviour{
		DeviceType:        DeviceTypeEarbud,
		SupportRoleSwap:   true,
		Timeouts:          DefaultTimeouts(),
		AuthoriseRoleSwap: DefaultAuthoriseRoleSwapFunc,
	}
}

type (
	ObserveFunc       func(*Controller, Notification)
	TransitionFunc    func(from, to State)
	FatalFunc         func(error)
	WatchdogFunc      func()
	ULIDGeneratorFunc func() string
)

func DefaultObserveFunc(c *Controller, n Notification) {
	// nop
}

func DefaultTransitionFunc(from, to State) {
	// nop
}

func DefaultFatalFunc(err error) {
	panic(errors.WithStack(err))
}

func DefaultWatchdogFunc() {
	// nop
}

func DefaultULIDGeneratorFunc() string {
	return ulid.Make().String()
}

func DefaultAuthoriseRoleSwapFunc(reason HandoverReason) bool {
	return true
}

type OptFunc func(*controllerOpt)

type controllerOpt struct {
	behaviour         Behaviour
	observeFunc       ObserveFunc
	transitionFunc    TransitionFunc
	fatalFunc         FatalFunc
	watchdogFunc      WatchdogFunc
	ulidGeneratorFunc ULIDGeneratorFunc
	afterFunc         AfterFunc
	logger            *log.Logger
	peerPaired        bool
	preserved         PreservedRoleStore
	election          ElectionService
	signaller         PeerSignaller
	decision          DecisionSource
}

func WithObserveFunc(f ObserveFunc) OptFunc {
	return func(o *controllerOpt) {
		o.observeFunc = f
	}
}

func WithTransitionFunc(f TransitionFunc) OptFunc {
	return func(o *controllerOpt) {
		o.transitionFunc = f
	}
}

// WithFatalFunc replaces the handler for broken controller invariants.
// The default panics.
func WithFatalFunc(f FatalFunc) OptFunc {
	return func(o *controllerOpt) {
		o.fatalFunc = f
	}
}

func WithWatchdogFunc(f WatchdogFunc) OptFunc {
	return func(o *controllerOpt) {
		o.watchdogFunc = f
	}
}

func WithULIDGeneratorFunc(f ULIDGeneratorFunc) OptFunc {
	return func(o *controllerOpt) {
		o.ulidGeneratorFunc = f
	}
}

func WithAfterFunc(f AfterFunc) OptFunc {
	return func(o *controllerOpt) {
		o.afterFunc = f
	}
}

func WithLogger(logger *log.Logger) OptFunc {
	return func(o *controllerOpt) {
		o.logger = logger
	}
}

func WithBehaviour(b Behaviour) OptFunc {
	return func(o *controllerOpt) {
		o.behaviour = b
	}
}

func WithTimeouts(t Timeouts) OptFunc {
	return func(o *controllerOpt) {
		o.behaviour.Timeouts = t
	}
}

func WithRoleSwapSupport(enable bool) OptFunc {
	return func(o *controllerOpt) {
		o.behaviour.SupportRoleSwap = enable
	}
}

func WithAuthoriseRoleSwapFunc(f AuthoriseRoleSwapFunc) OptFunc {
	return func(o *controllerOpt) {
		o.behaviour.AuthoriseRoleSwap = f
	}
}

func WithDeviceType(t DeviceType) OptFunc {
	return func(o *controllerOpt) {
		o.behaviour.DeviceType = t
	}
}

// WithPeerPaired skips the pairing goal when the peer is already known.
func WithPeerPaired(paired bool) OptFunc {
	return func(o *controllerOpt) {
		o.peerPaired = paired
	}
}

// WithPreservedRoleStore enables selecting the last known role without an
// election.
func WithPreservedRoleStore(s PreservedRoleStore) OptFunc {
	return func(o *controllerOpt) {
		o.preserved = s
	}
}

func WithElectionService(s ElectionService) OptFunc {
	return func(o *controllerOpt) {
		o.election = s
	}
}

func WithPeerSignaller(s PeerSignaller) OptFunc {
	return func(o *controllerOpt) {
		o.signaller = s
	}
}

func WithDecisionSource(s DecisionSource) OptFunc {
	return func(o *controllerOpt) {
		o.decision = s
	}
}

func newControllerOpt(opts []OptFunc) *controllerOpt {
	opt := &controllerOpt{
		behaviour:         DefaultBehaviour(),
		observeFunc:       DefaultObserveFunc,
		transitionFunc:    DefaultTransitionFunc,
		fatalFunc:         DefaultFatalFunc,
		watchdogFunc:      DefaultWatchdogFunc,
		ulidGeneratorFunc: DefaultULIDGeneratorFunc,
		afterFunc:         DefaultAfterFunc,
		peerPaired:        true,
		election:          nopElectionService{},
		signaller:         nopPeerSignaller{},
		decision:          nopDecisionSource{},
	}
	for _, f := range opts {
		f(opt)
	}
	if opt.behaviour.AuthoriseRoleSwap == nil {
		opt.behaviour.AuthoriseRoleSwap = DefaultAuthoriseRoleSwapFunc
	}
	if opt.logger == nil {
		opt.logger = log.New(os.Stderr, "topology ", log.Ldate|log.Ltime|log.Lshortfile)
	}
	return opt
}
