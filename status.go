package pairtopology

import (
	"fmt"
)

// topologyStatus is the join bookkeeping shared with the peer.
type topologyStatus struct {
	selfJoined       bool
	peerJoined       bool
	peerConnected    bool
	pendingJoinSend  bool
	pendingLeaveSend bool
}

func (s topologyStatus) String() string {
	return fmt.Sprintf(
		"status<joined=%v peer_joined=%v connected=%v pending_join=%v pending_leave=%v>",
		s.selfJoined, s.peerJoined, s.peerConnected, s.pendingJoinSend, s.pendingLeaveSend,
	)
}

// snapshot is what accessors observe. It is replaced after every event.
type snapshot struct {
	state             State
	target            State
	role              ElectedRole
	status            topologyStatus
	roleSwapSupported bool
	keepAlive         bool
}

func (c *Controller) publish() {
	s := snapshot{
		state:             c.state,
		target:            c.target,
		role:              c.role,
		status:            c.status,
		roleSwapSupported: c.roleSwapSupported,
		keepAlive:         c.keepAlive,
	}

	c.mu.Lock()
	c.snap = s
	c.mu.Unlock()
}

func (c *Controller) view() snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.snap
}

func (c *Controller) State() State {
	return c.view().state
}

func (c *Controller) TargetState() State {
	return c.view().target
}

func (c *Controller) ElectedRole() ElectedRole {
	return c.view().role
}

// Role is the application facing role derived from the current state.
func (c *Controller) Role() Role {
	return RoleFromState(c.view().state)
}

func (c *Controller) IsRolePrimary() bool {
	return c.Role() == RolePrimary
}

func (c *Controller) IsRoleSecondary() bool {
	return c.Role() == RoleSecondary
}

func (c *Controller) IsRoleStandalonePrimary() bool {
	return c.view().role == ElectedRoleStandalonePrimary
}

func (c *Controller) IsRolePrimaryConnectedToPeer() bool {
	s := c.view()
	return s.role == ElectedRolePrimaryWithPeer && requiresDecisionSource(s.state)
}

func (c *Controller) IsJoined() bool {
	return c.view().status.selfJoined
}

func (c *Controller) IsPeerJoined() bool {
	return c.view().status.peerJoined
}

func (c *Controller) IsRoleSwapSupported() bool {
	return c.view().roleSwapSupported
}

// KeepAliveForStaticHandover reports whether a preserved primary is still
// inside its post-idle static handover window.
func (c *Controller) KeepAliveForStaticHandover() bool {
	return c.view().keepAlive
}
