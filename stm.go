package pairtopology

import (
	"time"

	"github.com/pkg/errors"
)

func (c *Controller) handleEvent(evt *event) {
	if evt.typ != eventKick {
		c.opt.logger.Printf("debug: %s state=%s role=%s", evt, c.state, c.role)
	}

	switch evt.typ {
	case eventKick:
		c.kick()
	case eventStart:
		c.handleStart()
	case eventStop:
		c.handleStop()
	case eventJoin:
		c.handleJoin()
	case eventLeave:
		c.handleLeave(evt.force)
	case eventSwapRole:
		c.swapRole(appEventNone)
	case eventSwapRoleAndLeave:
		c.swapRole(appEventSwapRoleAndDisconnect)
	case eventEnableRoleSwap:
		c.roleSwapSupported = true
		c.kick()
	case eventDisableRoleSwap:
		c.roleSwapSupported = false
		c.kick()
	case eventElectionResult:
		c.handleElectionResult(evt.outcome)
	case eventPeerLinkConnected:
		c.status.peerConnected = true
		c.sendPendingJoin()
		c.kick()
	case eventPeerLinkDisconnected:
		c.handlePeerLinkDisconnected(evt.linkLoss)
	case eventHandoverRequest:
		if c.roleSwapSupported {
			c.reason = evt.reason
			c.kick()
		}
	case eventHandoverCancel:
		c.reason = HandoverReasonNone
		c.kick()
	case eventPeerCommand:
		c.handlePeerCommand(evt.cmd)
	case eventPeerCommandConfirmed:
		c.handlePeerCommandConfirmed(evt.cmd, evt.err)
	case eventStaticHandoverRequest:
		c.staticHandoverRequired = true
		c.kick()
	case eventGoalComplete:
		c.handleGoalComplete(evt.goalID, evt.result)
	case eventTimer:
		c.handleTimer(evt.timer, evt.gen)
	}
}

func (c *Controller) fatal(err error) {
	c.opt.logger.Printf("error: %+v", err)
	c.opt.fatalFunc(err)
}

func (c *Controller) facts() RuleFacts {
	f := RuleFacts{
		StopRequested:          c.stopRequested,
		PeerPaired:             c.peerPaired,
		JoinPending:            c.pending == appEventJoinRequest,
		Inactive:               c.status.selfJoined != true && (c.role == ElectedRoleSecondary || c.forceRelinquish),
		HandoverRequested:      c.reason != HandoverReasonNone,
		StaticHandoverRequired: c.staticHandoverRequired && c.status.peerConnected && c.status.selfJoined,
	}
	if c.role == ElectedRoleNone && f.JoinPending {
		f.PreservedRoleAvailable = c.preservedRoleAvailable()
	}
	if c.role == ElectedRolePrimaryWithPeer && f.HandoverRequested {
		// asked every time, the answer depends on what the peer is doing now
		f.HandoverAuthorised = c.opt.behaviour.AuthoriseRoleSwap(c.reason)
	}
	return f
}

// kick re-evaluates the target state and takes one step toward it. It does
// nothing outside of steady states.
func (c *Controller) kick() {
	if c.state.IsSteady() != true {
		return
	}
	c.queue.removeKick()

	c.resetSatisfiedJoin()
	c.target = EvaluateTargetState(c.role, c.facts())
	if requiresReelection(c.target) {
		c.relinquish()
	}

	if c.target != c.state {
		next, err := NextState(c.state, c.target)
		if err != nil {
			c.fatal(errors.WithStack(err))
			return
		}
		c.setState(next)
	}

	if c.initialIdleSent != true && c.state == StateIdle && c.role == ElectedRoleNone {
		c.initialIdleSent = true
		c.notify(Notification{Type: InitialIdleCompleted, Status: StatusSuccess})
	}
}

// resetSatisfiedJoin drops a join request once a role has been assigned and
// no handover is pending. A swap-and-disconnect request is kept until it is
// serviced.
func (c *Controller) resetSatisfiedJoin() {
	if c.pending != appEventJoinRequest {
		return
	}
	if c.reason == HandoverReasonNone && c.role != ElectedRoleNone {
		c.pending = appEventNone
	}
}

func (c *Controller) relinquish() {
	c.reason = HandoverReasonNone
	c.pending = appEventNone
	c.forceRelinquish = false
	c.staticHandoverRequired = false
	c.setRole(ElectedRoleNone)
}

func (c *Controller) setRole(role ElectedRole) {
	if c.role != role {
		c.opt.logger.Printf("info: elected role %s -> %s", c.role, role)
	}
	c.role = role

	if role != ElectedRolePrimaryWithPeer && role != ElectedRoleSecondary {
		c.cancelStaticHandoverWindow()
	}
}

func (c *Controller) cancelStaticHandoverWindow() {
	if c.timers.cancel(timerStaticHandover) {
		c.opt.logger.Printf("info: static handover window cancelled")
		c.keepAlive = false
	}
}

func (c *Controller) setState(next State) {
	prev := c.state
	if prev == next {
		return
	}
	if stateEnd <= next {
		c.fatal(errors.Errorf("invalid state: %d", next))
		return
	}

	c.opt.logger.Printf("info: state %s -> %s target=%s", prev, next, c.target)

	c.exitState(prev)
	c.manageDecisionSource(prev, next)
	c.state = next
	c.opt.transitionFunc(prev, next)
	c.enterState(next)

	prevRole, nextRole := RoleFromState(prev), RoleFromState(next)
	if prevRole != nextRole {
		c.notify(Notification{
			Type:              RoleChangeCompleted,
			Status:            StatusSuccess,
			Role:              nextRole,
			ErrorForcedNoRole: c.errorForcedNoRole,
		})
		c.errorForcedNoRole = false
	}

	if next.IsSteady() {
		c.queue.pushKick()
	}
}

func (c *Controller) exitState(s State) {
	switch s {
	case StateIdle:
		if 0 < c.opt.behaviour.Timeouts.ResetDevice {
			c.timers.cancel(timerIdleReset)
		}
	case StateHandoverRetry:
		c.timers.cancel(timerHandoverRetry)
	case StateStaticHandover:
		c.cancelStaticHandoverWindow()
		c.staticHandoverRequired = false
	}
}

func (c *Controller) enterState(s State) {
	if kind, ok := goalForState(s); ok {
		c.requestGoal(kind, s)
	}

	timeouts := c.opt.behaviour.Timeouts
	switch s {
	case StateStopped:
		c.timers.cancel(timerStop)
	case StateStarted:
		c.notify(Notification{Type: StartCompleted, Status: StatusSuccess})
	case StateIdle:
		c.handoverFailed = false
		if 0 < timeouts.ResetDevice {
			c.timers.arm(timerIdleReset, timeouts.ResetDevice)
		}
	case StateSelectPreservedRole:
		c.enterSelectPreservedRole()
	case StateStandalonePrimary:
		c.keepFindingRole()
	case StateHandoverPrepared:
		c.handoverFailed = false
		c.timers.arm(timerHandoverWindow, timeouts.MaxHandoverWindow)
	case StateHandoverRetry:
		c.timers.arm(timerHandoverRetry, timeouts.HandoverRetry)
	case StateHandoverUndoPrepare:
		c.timers.cancel(timerHandoverWindow)
	case StateStaticHandover:
		c.opt.logger.Printf("info: send static handover request to secondary")
		if err := c.opt.signaller.SendPeerCommand(PeerCommandStaticHandoverRequest); err != nil {
			c.opt.logger.Printf("warn: %s: %+v", PeerCommandStaticHandoverRequest, err)
		}
	}
}

func (c *Controller) enterSelectPreservedRole() {
	role, ok := c.consumePreservedRole()
	if ok != true {
		c.opt.logger.Printf("warn: preserved role vanished")
		return
	}

	switch role {
	case PreservedRolePrimary:
		c.setRole(ElectedRolePrimaryWithPeer)

		// the peer may still be closing its session, stay reachable for a while
		timeout := c.opt.behaviour.Timeouts.PostIdleStaticHandover
		c.timers.arm(timerStaticHandover, timeout)
		c.keepAlive = true
	case PreservedRoleSecondary:
		c.roleElectedByFindRole = false
		c.setRole(ElectedRoleSecondary)
	default:
		c.opt.logger.Printf("warn: preserved role %s ignored", role)
	}
}

func (c *Controller) manageDecisionSource(prev, next State) {
	prevRequires, nextRequires := requiresDecisionSource(prev), requiresDecisionSource(next)
	switch {
	case prevRequires && nextRequires != true:
		c.reason = HandoverReasonNone
		c.opt.decision.Stop()
	case nextRequires && prevRequires != true:
		c.reason = HandoverReasonNone
		c.opt.decision.Start()
		c.cancelStaticHandoverWindow()
	}
}

func (c *Controller) requestGoal(kind GoalKind, s State) {
	if _, err := c.goals.request(kind, s, c.role, c.goalTimeout(kind)); err != nil {
		c.opt.logger.Printf("warn: request %s: %+v", kind, err)
	}
}

func (c *Controller) goalTimeout(kind GoalKind) time.Duration {
	timeouts := c.opt.behaviour.Timeouts
	switch kind {
	case GoalFindRole:
		return timeouts.PeerFindRole
	case GoalPrimaryConnectablePeer:
		return timeouts.PrimaryWaitForSecondary
	case GoalSecondaryConnectPeer:
		if c.roleElectedByFindRole {
			return timeouts.SecondaryWaitForPrimary
		}
		return timeouts.PostIdleSecondaryWaitForPrimary
	}
	return 0
}

func (c *Controller) handleGoalComplete(id GoalID, result Result) {
	goal, cancelled, err := c.goals.resolve(id)
	if err != nil {
		c.fatal(errors.WithStack(err))
		return
	}
	defer c.dispatchQueuedGoal()

	if cancelled {
		c.opt.logger.Printf("info: %s cancel confirmed (%s)", goal, result)
		return
	}
	if goal.State != c.state {
		c.fatal(errors.Wrapf(ErrUnexpectedCompletion, "%s completed in state=%s", goal, c.state))
		return
	}

	r, err := routeCompletion(c.state, completion{
		result:             result,
		role:               c.role,
		handoverWindowOpen: c.timers.pending(timerHandoverWindow),
	})
	if err != nil {
		c.fatal(errors.WithStack(err))
		return
	}
	c.opt.logger.Printf("debug: %s %s -> %s", goal, result, r)

	c.applyRouted(goal, r)
	c.setState(r.next)
}

func (c *Controller) dispatchQueuedGoal() {
	if goal, ok := c.goals.next(); ok {
		c.opt.logger.Printf("debug: dispatch queued %s", goal)
	}
}

func (c *Controller) applyRouted(goal Goal, r routed) {
	if r.peerPaired {
		c.peerPaired = true
	}

	if r.relinquish {
		if r.forcedNoRole {
			c.errorForcedNoRole = true
		}
		c.relinquish()
	} else {
		c.setRole(r.role)
	}

	if r.handoverDone {
		c.timers.cancel(timerHandoverWindow)
		if c.pending == appEventSwapRoleAndDisconnect {
			c.opt.logger.Printf("info: role swapped, leave and disconnect")
			c.handleLeave(false)
			if err := c.opt.signaller.DisconnectPeer(); err != nil {
				c.opt.logger.Printf("warn: disconnect peer: %+v", err)
			}
			c.pending = appEventNone
		}
	}
	if r.handoverFailed {
		c.handoverFailed = true
		c.reason = HandoverReasonNone
		if c.pending == appEventSwapRoleAndDisconnect {
			c.pending = appEventNone
		}
	}

	if goal.Kind == GoalBecomeStandalonePrimary {
		if c.status.selfJoined != true || c.opt.behaviour.DeviceType == DeviceTypeStandalone {
			c.opt.election.CancelFindRole()
		}
	}
}

func (c *Controller) handleTimer(kind timerKind, gen uint64) {
	if c.timers.expire(kind, gen) != true {
		c.opt.logger.Printf("debug: stale timer %s gen=%d", kind, gen)
		return
	}

	switch kind {
	case timerStop:
		c.notify(Notification{Type: StopCompleted, Status: StatusFail})
	case timerHandoverWindow:
		c.opt.logger.Printf("info: handover window closed")
	case timerHandoverRetry:
		if c.state != StateHandoverRetry {
			c.fatal(errors.Errorf("handover retry fired in state=%s", c.state))
			return
		}
		c.setState(StateHandover)
	case timerLeaveRetry:
		c.executeLeaveActions()
	case timerStaticHandover:
		c.opt.logger.Printf("info: static handover window expired")
		c.keepAlive = false
	case timerIdleReset:
		c.opt.logger.Printf("warn: idle for %s, reset", c.opt.behaviour.Timeouts.ResetDevice)
		c.opt.watchdogFunc()
	}
}

func (c *Controller) handleStart() {
	if c.state != StateStopped {
		c.notify(Notification{Type: StartCompleted, Status: StatusFail})
		return
	}
	c.stopRequested = false
	c.setState(StateStarting)
}

func (c *Controller) handleStop() {
	c.notify(Notification{Type: StopCompleted, Status: StatusSuccess})

	timeout := c.opt.behaviour.Timeouts.StopCommand
	if 0 < timeout && c.state != StateStopped {
		c.timers.arm(timerStop, timeout)
	}
	c.stopRequested = true
	c.queue.pushKick()
}

func (c *Controller) handleElectionResult(outcome ElectionOutcome) {
	if c.role != ElectedRoleNone && c.role != ElectedRoleStandalonePrimary && c.state != StateFindRole {
		c.opt.logger.Printf("warn: ignore election %s as %s", outcome, c.role)
		return
	}

	switch outcome {
	case ElectionNoPeer, ElectionActingPrimary:
		c.setRole(ElectedRoleStandalonePrimary)
		if c.state == StateStandalonePrimary {
			c.keepFindingRole()
		}
	case ElectionPrimary:
		c.savePreservedRole(PreservedRolePrimary)
		c.setRole(ElectedRolePrimaryWithPeer)
	case ElectionSecondary:
		c.savePreservedRole(PreservedRoleSecondary)
		c.roleElectedByFindRole = true
		c.setRole(ElectedRoleSecondary)
	default:
		c.opt.logger.Printf("warn: unknown election outcome %d", outcome)
		return
	}
	c.kick()
}

// keepFindingRole keeps the election running while a joined standalone
// primary waits for a late peer.
func (c *Controller) keepFindingRole() {
	if c.role != ElectedRoleStandalonePrimary || c.status.selfJoined != true {
		return
	}
	if c.opt.behaviour.DeviceType == DeviceTypeStandalone || c.opt.election.IsFindRoleActive() {
		return
	}
	c.opt.election.FindRole(c.opt.behaviour.Timeouts.PeerFindRole)
}

func (c *Controller) handlePeerLinkDisconnected(reason LinkLossReason) {
	c.status.peerConnected = false
	c.staticHandoverRequired = false

	switch c.role {
	case ElectedRolePrimaryWithPeer:
		switch {
		case c.state == StateStaticHandover || reason == LinkLossStaticHandover:
			// the secondary dropped the link to complete the static handover
			c.staticHandoverToSecondary()
		case c.status.selfJoined:
			c.setRole(ElectedRoleStandalonePrimary)
			c.kick()
		default:
			// leave was processed just before the link loss
			c.relinquish()
			c.kick()
		}
	case ElectedRoleSecondary:
		if c.status.selfJoined {
			// primary left without a handover
			c.setRole(ElectedRoleStandalonePrimary)
			c.kick()
		}
	}

	if c.status.pendingLeaveSend {
		c.status.pendingLeaveSend = false
		c.executeLeaveActions()
	}
}

func (c *Controller) staticHandoverToSecondary() {
	c.savePreservedRole(PreservedRoleSecondary)
	c.setRole(ElectedRoleSecondary)
	if c.state.IsSteady() {
		c.setState(StateBecomeIdle)
	}
}

func (c *Controller) handlePeerCommand(cmd PeerCommand) {
	c.opt.logger.Printf("info: peer %s", cmd)

	switch cmd {
	case PeerCommandJoined:
		c.status.peerJoined = true
		c.kick()
	case PeerCommandLeft:
		c.status.peerJoined = false
		c.kick()
	case PeerCommandStaticHandoverRequest:
		if c.role != ElectedRoleSecondary {
			c.opt.logger.Printf("warn: ignore %s as %s", cmd, c.role)
			return
		}
		c.savePreservedRole(PreservedRolePrimary)
		c.setRole(ElectedRolePrimaryWithPeer)
		c.kick()
	case PeerCommandHandoverToPrimary:
		if c.state != StateSecondary {
			c.opt.logger.Printf("warn: ignore %s in state=%s", cmd, c.state)
			return
		}
		c.setRole(ElectedRolePrimaryWithPeer)
		c.target = EvaluateTargetState(c.role, c.facts())
		c.setState(StateBecomePrimaryFromSecondary)
	}
}

func (c *Controller) handlePeerCommandConfirmed(cmd PeerCommand, err error) {
	if err != nil {
		c.opt.logger.Printf("warn: %s not confirmed: %+v", cmd, err)
	}

	switch cmd {
	case PeerCommandJoined:
		if err == nil {
			c.status.pendingJoinSend = false
		}
	case PeerCommandLeft:
		if c.status.pendingLeaveSend {
			c.status.pendingLeaveSend = false
			c.executeLeaveActions()
		}
	}
}

func (c *Controller) handleJoin() {
	c.status.selfJoined = true

	switch {
	case c.role == ElectedRoleNone:
		c.pending = appEventJoinRequest
		c.queue.pushKick()
	case c.role == ElectedRoleStandalonePrimary && c.opt.election.IsFindRoleActive() != true:
		// a standalone primary that left blocks the peer until it finds its role again
		c.opt.election.FindRole(c.opt.behaviour.Timeouts.PeerFindRole)
	}

	c.status.pendingLeaveSend = false
	if c.opt.behaviour.DeviceType != DeviceTypeStandalone {
		c.status.pendingJoinSend = true
		c.sendPendingJoin()
	}
	c.notify(Notification{Type: JoinRequestCompleted, Status: StatusSuccess})
}

func (c *Controller) sendPendingJoin() {
	if c.status.pendingJoinSend != true || c.status.peerConnected != true {
		return
	}
	if err := c.opt.signaller.SendPeerCommand(PeerCommandJoined); err != nil {
		c.opt.logger.Printf("warn: %s: %+v", PeerCommandJoined, err)
	}
}

func (c *Controller) handleLeave(forceReset bool) {
	c.status.selfJoined = false
	c.status.pendingJoinSend = false
	c.staticHandoverRequired = false
	if forceReset {
		c.forceRelinquish = true
	}

	if c.status.peerConnected {
		if err := c.opt.signaller.SendPeerCommand(PeerCommandLeft); err != nil {
			c.opt.logger.Printf("warn: %s: %+v", PeerCommandLeft, err)
		} else {
			// leave actions run once the peer confirmed
			c.status.pendingLeaveSend = true
			return
		}
	}
	c.executeLeaveActions()
}

func (c *Controller) stableToLeave() bool {
	unstable := c.state.IsSteady() != true || c.state == StatePrimaryConnectableForSecondary
	if unstable && 0 < c.leaveRemaining {
		c.leaveRemaining -= DefaultLeaveRetryInterval
		c.opt.logger.Printf("warn: delay leave in state=%s, remaining %s", c.state, c.leaveRemaining)
		return false
	}
	c.leaveRemaining = DefaultLeaveStableDeadline
	return true
}

func (c *Controller) executeLeaveActions() {
	if c.stableToLeave() != true {
		c.timers.arm(timerLeaveRetry, DefaultLeaveRetryInterval)
		return
	}

	c.pending = appEventNone
	if RoleFromState(c.state) == RolePrimary {
		c.leaveAsPrimary()
	}
	c.queue.pushKick()
	c.notify(Notification{Type: LeaveRequestCompleted, Status: StatusSuccess})
}

func (c *Controller) leaveAsPrimary() {
	if c.role != ElectedRolePrimaryWithPeer {
		// block peer attempts until the node joins again
		c.opt.election.CancelFindRole()
		return
	}
	if c.status.peerJoined != true {
		c.opt.logger.Printf("info: peer left as well, keep role")
		return
	}
	c.opt.logger.Printf("info: swap roles before leave")
	c.swapRole(appEventSwapRoleAndDisconnect)
}

func (c *Controller) swapRole(evt appEvent) {
	if c.role != ElectedRolePrimaryWithPeer || requiresDecisionSource(c.state) != true {
		c.opt.logger.Printf("warn: swap role ignored as %s in state=%s", c.role, c.state)
		return
	}
	if c.roleSwapSupported != true {
		c.opt.logger.Printf("warn: swap role not supported")
		return
	}
	c.pending = evt
	c.opt.decision.ExternalHandoverRequest()
}
