package pairtopology

import (
	"fmt"
)

type NotificationType uint8

const (
	StartCompleted NotificationType = iota + 1
	StopCompleted
	InitialIdleCompleted
	RoleChangeCompleted
	JoinRequestCompleted
	LeaveRequestCompleted
)

func (t NotificationType) String() string {
	switch t {
	case StartCompleted:
		return "start_completed"
	case StopCompleted:
		return "stop_completed"
	case InitialIdleCompleted:
		return "initial_idle_completed"
	case RoleChangeCompleted:
		return "role_change_completed"
	case JoinRequestCompleted:
		return "join_request_completed"
	case LeaveRequestCompleted:
		return "leave_request_completed"
	}
	return "unknown notification"
}

type Status uint8

const (
	StatusSuccess Status = iota
	StatusFail
)

func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusFail:
		return "fail"
	}
	return "unknown status"
}

// Notification is delivered to the ObserveFunc from the controller's event
// loop. Role and ErrorForcedNoRole are set for RoleChangeCompleted only.
type Notification struct {
	Type              NotificationType
	Status            Status
	Role              Role
	ErrorForcedNoRole bool
}

func (n Notification) String() string {
	if n.Type == RoleChangeCompleted {
		return fmt.Sprintf("%s<role=%s forced=%v>", n.Type, n.Role, n.ErrorForcedNoRole)
	}
	return fmt.Sprintf("%s<%s>", n.Type, n.Status)
}

func (c *Controller) notify(n Notification) {
	c.opt.logger.Printf("info: notify %s", n)
	c.opt.observeFunc(c, n)
}
