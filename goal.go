package pairtopology

import (
	"fmt"
	"time"

	"github.com/emirpasic/gods/lists/doublylinkedlist"
	"github.com/pkg/errors"
)

var (
	ErrUnknownGoal = errors.New("unknown goal")
	ErrGoalBlocked = errors.New("goal blocked")
)

type GoalKind uint8

const (
	GoalNone GoalKind = iota
	GoalPairPeer
	GoalNoRoleIdle
	GoalFindRole
	GoalBecomeStandalonePrimary
	GoalBecomePrimary
	GoalPrimaryConnectablePeer
	GoalPrimaryConnectPeerProfiles
	GoalHandoverPrepare
	GoalHandover
	GoalHandoverUndoPrepare
	GoalBecomeSecondary
	GoalSecondaryConnectPeer
)

func (k GoalKind) String() string {
	switch k {
	case GoalNone:
		return "none"
	case GoalPairPeer:
		return "pair_peer"
	case GoalNoRoleIdle:
		return "no_role_idle"
	case GoalFindRole:
		return "find_role"
	case GoalBecomeStandalonePrimary:
		return "become_standalone_primary"
	case GoalBecomePrimary:
		return "become_primary"
	case GoalPrimaryConnectablePeer:
		return "primary_connectable_peer"
	case GoalPrimaryConnectPeerProfiles:
		return "primary_connect_peer_profiles"
	case GoalHandoverPrepare:
		return "handover_prepare"
	case GoalHandover:
		return "handover"
	case GoalHandoverUndoPrepare:
		return "handover_undo_prepare"
	case GoalBecomeSecondary:
		return "become_secondary"
	case GoalSecondaryConnectPeer:
		return "secondary_connect_peer"
	}
	return "unknown goal"
}

type Result uint8

const (
	ResultSuccess Result = iota + 1
	ResultFailure
	ResultTimeout
)

func (r Result) String() string {
	switch r {
	case ResultSuccess:
		return "success"
	case ResultFailure:
		return "failure"
	case ResultTimeout:
		return "timeout"
	}
	return "unknown result"
}

type GoalID string

// Goal is one unit of work handed to the Executor. Timeout is zero when the
// executor's own procedures bound the work.
type Goal struct {
	ID      GoalID
	Kind    GoalKind
	State   State
	Role    ElectedRole
	Timeout time.Duration
}

func (g Goal) String() string {
	return fmt.Sprintf("goal<%s id=%s state=%s>", g.Kind, g.ID, g.State)
}

type ReportFunc func(id GoalID, result Result)

// Executor runs goals outside the controller. Execute must not block and
// must call report exactly once per goal, including cancelled ones.
type Executor interface {
	Execute(goal Goal, report ReportFunc)
	Cancel(goal Goal)
}

func goalForState(s State) (GoalKind, bool) {
	switch s {
	case StatePeerPairing:
		return GoalPairPeer, true
	case StateBecomeIdle:
		return GoalNoRoleIdle, true
	case StateFindRole:
		return GoalFindRole, true
	case StateBecomeStandalonePrimary:
		return GoalBecomeStandalonePrimary, true
	case StateBecomePrimaryWithPeer, StateBecomePrimaryFromSecondary:
		return GoalBecomePrimary, true
	case StatePrimaryConnectableForSecondary:
		return GoalPrimaryConnectablePeer, true
	case StatePrimaryConnectPeerProfiles:
		return GoalPrimaryConnectPeerProfiles, true
	case StateHandoverPrepare:
		return GoalHandoverPrepare, true
	case StateHandover:
		return GoalHandover, true
	case StateHandoverUndoPrepare:
		return GoalHandoverUndoPrepare, true
	case StateBecomeSecondary:
		return GoalBecomeSecondary, true
	case StateSecondaryConnectingToPrimary:
		return GoalSecondaryConnectPeer, true
	}
	return GoalNone, false
}

type goalRule struct {
	cancels []GoalKind
	blocks  []GoalKind
}

var goalRules = map[GoalKind]goalRule{
	GoalNoRoleIdle: {
		cancels: []GoalKind{GoalPrimaryConnectablePeer, GoalFindRole},
	},
	GoalBecomeStandalonePrimary: {
		cancels: []GoalKind{GoalPrimaryConnectablePeer},
	},
	GoalHandoverPrepare: {
		blocks: []GoalKind{GoalHandoverUndoPrepare},
	},
	GoalHandover: {
		blocks: []GoalKind{GoalHandoverUndoPrepare},
	},
}

func containsKind(kinds []GoalKind, k GoalKind) bool {
	for _, v := range kinds {
		if v == k {
			return true
		}
	}
	return false
}

func goalCancels(requested, other GoalKind) bool {
	return containsKind(goalRules[requested].cancels, other)
}

func goalBlockedBy(requested, other GoalKind) bool {
	if requested == other {
		return true
	}
	return containsKind(goalRules[requested].blocks, other)
}

type activeGoal struct {
	goal      Goal
	cancelled bool
}

// goalDispatcher keeps at most one goal outstanding on the Executor.
// It is only touched from the controller's event loop.
type goalDispatcher struct {
	exec   Executor
	report ReportFunc
	newID  ULIDGeneratorFunc
	active *activeGoal
	queue  *doublylinkedlist.List
}

func (d *goalDispatcher) queued() []Goal {
	goals := make([]Goal, 0, d.queue.Size())
	for _, v := range d.queue.Values() {
		goals = append(goals, v.(Goal))
	}
	return goals
}

func (d *goalDispatcher) blocked(kind GoalKind) bool {
	if d.active != nil && d.active.cancelled != true && goalBlockedBy(kind, d.active.goal.Kind) {
		return true
	}
	for _, g := range d.queued() {
		if goalBlockedBy(kind, g.Kind) {
			return true
		}
	}
	return false
}

// request dispatches a goal, queueing it behind the active one.
// A goal that cancels the active goal waits for its confirmation.
func (d *goalDispatcher) request(kind GoalKind, state State, role ElectedRole, timeout time.Duration) (Goal, error) {
	goal := Goal{
		ID:      GoalID(d.newID()),
		Kind:    kind,
		State:   state,
		Role:    role,
		Timeout: timeout,
	}

	for i := d.queue.Size() - 1; 0 <= i; i -= 1 {
		v, _ := d.queue.Get(i)
		if goalCancels(kind, v.(Goal).Kind) {
			d.queue.Remove(i)
		}
	}

	if d.blocked(kind) {
		return Goal{}, errors.Wrapf(ErrGoalBlocked, "%s", goal)
	}

	if d.active == nil {
		d.dispatch(goal)
		return goal, nil
	}

	if d.active.cancelled != true && goalCancels(kind, d.active.goal.Kind) {
		d.active.cancelled = true
		d.exec.Cancel(d.active.goal)
	}
	d.queue.Add(goal)
	return goal, nil
}

func (d *goalDispatcher) dispatch(goal Goal) {
	d.active = &activeGoal{goal: goal}
	d.exec.Execute(goal, d.report)
}

// resolve clears the active goal matching id. The returned flag reports
// whether it had been cancelled, in which case the result is only a
// confirmation.
func (d *goalDispatcher) resolve(id GoalID) (Goal, bool, error) {
	if d.active == nil || d.active.goal.ID != id {
		return Goal{}, false, errors.Wrapf(ErrUnknownGoal, "id=%s", id)
	}
	a := d.active
	d.active = nil
	return a.goal, a.cancelled, nil
}

// next dispatches the head of the queue when nothing is outstanding.
func (d *goalDispatcher) next() (Goal, bool) {
	if d.active != nil {
		return Goal{}, false
	}
	v, ok := d.queue.Get(0)
	if ok != true {
		return Goal{}, false
	}
	d.queue.Remove(0)
	goal := v.(Goal)
	d.dispatch(goal)
	return goal, true
}

func newGoalDispatcher(exec Executor, report ReportFunc, newID ULIDGeneratorFunc) *goalDispatcher {
	return &goalDispatcher{
		exec:   exec,
		report: report,
		newID:  newID,
		active: nil,
		queue:  doublylinkedlist.New(),
	}
}
