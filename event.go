package pairtopology

import (
	"context"
	"fmt"
	"sync"

	"github.com/emirpasic/gods/lists/doublylinkedlist"
)

type eventType uint8

const (
	eventKick eventType = iota + 1
	eventStart
	eventStop
	eventJoin
	eventLeave
	eventSwapRole
	eventSwapRoleAndLeave
	eventEnableRoleSwap
	eventDisableRoleSwap
	eventElectionResult
	eventPeerLinkConnected
	eventPeerLinkDisconnected
	eventHandoverRequest
	eventHandoverCancel
	eventPeerCommand
	eventPeerCommandConfirmed
	eventStaticHandoverRequest
	eventGoalComplete
	eventTimer
)

func (t eventType) String() string {
	switch t {
	case eventKick:
		return "kick"
	case eventStart:
		return "start"
	case eventStop:
		return "stop"
	case eventJoin:
		return "join"
	case eventLeave:
		return "leave"
	case eventSwapRole:
		return "swap_role"
	case eventSwapRoleAndLeave:
		return "swap_role_and_leave"
	case eventEnableRoleSwap:
		return "enable_role_swap"
	case eventDisableRoleSwap:
		return "disable_role_swap"
	case eventElectionResult:
		return "election_result"
	case eventPeerLinkConnected:
		return "peer_link_connected"
	case eventPeerLinkDisconnected:
		return "peer_link_disconnected"
	case eventHandoverRequest:
		return "handover_request"
	case eventHandoverCancel:
		return "handover_cancel"
	case eventPeerCommand:
		return "peer_command"
	case eventPeerCommandConfirmed:
		return "peer_command_confirmed"
	case eventStaticHandoverRequest:
		return "static_handover_request"
	case eventGoalComplete:
		return "goal_complete"
	case eventTimer:
		return "timer"
	}
	return "unknown event"
}

type event struct {
	typ      eventType
	force    bool
	outcome  ElectionOutcome
	linkLoss LinkLossReason
	reason   HandoverReason
	cmd      PeerCommand
	err      error
	goalID   GoalID
	result   Result
	timer    timerKind
	gen      uint64
}

func (e *event) String() string {
	switch e.typ {
	case eventGoalComplete:
		return fmt.Sprintf("evt<%s id=%s result=%s>", e.typ, e.goalID, e.result)
	case eventTimer:
		return fmt.Sprintf("evt<%s %s gen=%d>", e.typ, e.timer, e.gen)
	case eventPeerCommand, eventPeerCommandConfirmed:
		return fmt.Sprintf("evt<%s %s>", e.typ, e.cmd)
	}
	return fmt.Sprintf("evt<%s>", e.typ)
}

// eventQueue is the FIFO every controller input goes through. At most one
// kick is pending at any time.
type eventQueue struct {
	mu     *sync.Mutex
	list   *doublylinkedlist.List
	notify chan struct{}
}

func (q *eventQueue) push(e *event) {
	q.mu.Lock()
	q.list.Add(e)
	q.mu.Unlock()

	q.signal()
}

func (q *eventQueue) pushKick() {
	q.mu.Lock()
	q.removeKickLocked()
	q.list.Add(&event{typ: eventKick})
	q.mu.Unlock()

	q.signal()
}

func (q *eventQueue) removeKick() {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.removeKickLocked()
}

func (q *eventQueue) removeKickLocked() {
	for i := q.list.Size() - 1; 0 <= i; i -= 1 {
		v, _ := q.list.Get(i)
		if v.(*event).typ == eventKick {
			q.list.Remove(i)
		}
	}
}

func (q *eventQueue) pop() (*event, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	v, ok := q.list.Get(0)
	if ok != true {
		return nil, false
	}
	q.list.Remove(0)
	return v.(*event), true
}

func (q *eventQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	return q.list.Size()
}

func (q *eventQueue) signal() {
	select {
	case q.notify <- struct{}{}:
		// ok
	default:
		// already signalled
	}
}

func newEventQueue() *eventQueue {
	return &eventQueue{
		mu:     new(sync.Mutex),
		list:   doublylinkedlist.New(),
		notify: make(chan struct{}, 1),
	}
}

func (c *Controller) runLoop(ctx context.Context) {
	defer c.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return

		case <-c.queue.notify:
			c.drain()
		}
	}
}

// drain handles queued events in arrival order until the queue is empty.
func (c *Controller) drain() {
	for {
		evt, ok := c.queue.pop()
		if ok != true {
			return
		}
		c.handleEvent(evt)
		c.publish()
	}
}
