package pairtopology

import (
	"context"
	"io"
	"log"
	"sync"
	"testing"
	"time"
)

type noteRecorder struct {
	mu    sync.Mutex
	notes []Notification
}

func (r *noteRecorder) observe(_ *Controller, n Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.notes = append(r.notes, n)
}

func (r *noteRecorder) has(typ NotificationType) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, n := range r.notes {
		if n.Type == typ {
			return true
		}
	}
	return false
}

func waitFor(t *testing.T, msg string, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timeout: %s", msg)
}

func TestCreate(t *testing.T) {
	t.Run("standalone election", func(tt *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		var c *Controller
		exec := NewProcedureExecutor(ctx, Scripts{
			GoalFindRole: {
				func(context.Context, Goal) error {
					c.ElectionResult(ElectionNoPeer)
					return nil
				},
			},
		}, log.New(io.Discard, "", 0))
		defer exec.Close()

		rec := new(noteRecorder)
		created, err := Create(ctx, exec,
			WithLogger(log.New(io.Discard, "", 0)),
			WithObserveFunc(rec.observe),
		)
		if err != nil {
			tt.Fatalf("%+v", err)
		}
		c = created
		defer c.Shutdown()

		c.Start()
		waitFor(tt, "initial idle", func() bool { return rec.has(InitialIdleCompleted) })
		if c.State() != StateIdle {
			tt.Errorf("state=%s", c.State())
		}

		c.Join()
		waitFor(tt, "standalone primary", func() bool { return c.State() == StateStandalonePrimary })
		if c.IsRolePrimary() != true || c.IsRoleStandalonePrimary() != true {
			tt.Errorf("role=%s elected=%s", c.Role(), c.ElectedRole())
		}
		if c.IsJoined() != true {
			tt.Errorf("not joined")
		}

		c.Stop()
		waitFor(tt, "stopped", func() bool { return c.State() == StateStopped })
		if rec.has(StopCompleted) != true {
			tt.Errorf("no stop completed")
		}
	})
	t.Run("no executor", func(tt *testing.T) {
		if _, err := Create(context.Background(), nil); err == nil {
			tt.Errorf("created without executor")
		}
	})
}
