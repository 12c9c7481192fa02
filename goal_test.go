package pairtopology

import (
	"strconv"
	"testing"
	"time"

	"github.com/pkg/errors"
)

func newTestDispatcher() (*goalDispatcher, *fakeExecutor) {
	exec := new(fakeExecutor)
	seq := 0
	d := newGoalDispatcher(exec, func(GoalID, Result) {}, func() string {
		seq += 1
		return "g" + strconv.Itoa(seq)
	})
	return d, exec
}

func TestGoalDispatcher(t *testing.T) {
	t.Run("one active goal", func(tt *testing.T) {
		d, exec := newTestDispatcher()

		g1, err := d.request(GoalBecomePrimary, StateBecomePrimaryWithPeer, ElectedRolePrimaryWithPeer, 0)
		if err != nil {
			tt.Fatalf("%+v", err)
		}
		if _, err := d.request(GoalBecomeSecondary, StateBecomeSecondary, ElectedRoleSecondary, 0); err != nil {
			tt.Fatalf("%+v", err)
		}
		if len(exec.executed) != 1 {
			tt.Errorf("executed=%d", len(exec.executed))
		}
		if d.queue.Size() != 1 {
			tt.Errorf("queued=%d", d.queue.Size())
		}

		goal, cancelled, err := d.resolve(g1.ID)
		if err != nil {
			tt.Fatalf("%+v", err)
		}
		if cancelled || goal.Kind != GoalBecomePrimary {
			tt.Errorf("resolved %s cancelled=%v", goal, cancelled)
		}
		next, ok := d.next()
		if ok != true || next.Kind != GoalBecomeSecondary {
			tt.Errorf("next=%s ok=%v", next, ok)
		}
		if exec.maxRunning != 1 {
			tt.Errorf("max running=%d", exec.maxRunning)
		}
	})
	t.Run("duplicate is blocked", func(tt *testing.T) {
		d, _ := newTestDispatcher()

		if _, err := d.request(GoalHandover, StateHandover, ElectedRolePrimaryWithPeer, 0); err != nil {
			tt.Fatalf("%+v", err)
		}
		if _, err := d.request(GoalHandover, StateHandover, ElectedRolePrimaryWithPeer, 0); errors.Is(err, ErrGoalBlocked) != true {
			tt.Errorf("duplicate accepted: %v", err)
		}
	})
	t.Run("cancel before complete", func(tt *testing.T) {
		d, exec := newTestDispatcher()

		connectable, _ := d.request(GoalPrimaryConnectablePeer, StatePrimaryConnectableForSecondary, ElectedRolePrimaryWithPeer, time.Second)
		idle, err := d.request(GoalNoRoleIdle, StateBecomeIdle, ElectedRoleNone, 0)
		if err != nil {
			tt.Fatalf("%+v", err)
		}
		if len(exec.cancelled) != 1 || exec.cancelled[0].ID != connectable.ID {
			tt.Fatalf("cancelled=%v", exec.cancelled)
		}
		if len(exec.executed) != 1 {
			tt.Errorf("idle goal dispatched before confirmation")
		}

		_, cancelled, err := d.resolve(connectable.ID)
		if err != nil {
			tt.Fatalf("%+v", err)
		}
		if cancelled != true {
			tt.Errorf("completion of a cancelled goal is a confirmation")
		}
		next, ok := d.next()
		if ok != true || next.ID != idle.ID {
			tt.Errorf("next=%s", next)
		}
	})
	t.Run("cancelled queued goals are dropped", func(tt *testing.T) {
		d, _ := newTestDispatcher()

		d.request(GoalBecomePrimary, StateBecomePrimaryWithPeer, ElectedRolePrimaryWithPeer, 0)
		d.request(GoalFindRole, StateFindRole, ElectedRoleNone, time.Second)
		if _, err := d.request(GoalNoRoleIdle, StateBecomeIdle, ElectedRoleNone, 0); err != nil {
			tt.Fatalf("%+v", err)
		}
		for _, g := range d.queued() {
			if g.Kind == GoalFindRole {
				tt.Errorf("find role still queued")
			}
		}
	})
	t.Run("unknown id", func(tt *testing.T) {
		d, _ := newTestDispatcher()

		if _, _, err := d.resolve("nope"); errors.Is(err, ErrUnknownGoal) != true {
			tt.Errorf("err=%v", err)
		}
		g, _ := d.request(GoalPairPeer, StatePeerPairing, ElectedRoleNone, 0)
		if _, _, err := d.resolve(g.ID + "x"); errors.Is(err, ErrUnknownGoal) != true {
			tt.Errorf("err=%v", err)
		}
		if _, _, err := d.resolve(g.ID); err != nil {
			tt.Errorf("%+v", err)
		}
		if _, _, err := d.resolve(g.ID); errors.Is(err, ErrUnknownGoal) != true {
			tt.Errorf("resolved twice: %v", err)
		}
	})
}

func TestGoalForState(t *testing.T) {
	for _, s := range allStates() {
		kind, ok := goalForState(s)
		if ok != true {
			continue
		}
		if kind == GoalNone || kind.String() == "unknown goal" {
			t.Errorf("%s: %s", s, kind)
		}
	}
	if kind, _ := goalForState(StateBecomePrimaryFromSecondary); kind != GoalBecomePrimary {
		t.Errorf("become primary from secondary: %s", kind)
	}
	if _, ok := goalForState(StatePrimaryWithPeer); ok {
		t.Errorf("steady primary has no goal")
	}
}
