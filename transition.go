package pairtopology

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	ErrUnmappedTransition   = errors.New("unmapped transition")
	ErrUnexpectedCompletion = errors.New("unexpected goal completion")
)

// NextState returns the first hop from a steady current state toward target.
//
// Only steady to transient (or steady to steady) hops live here. Hops out of
// a transient state depend on the goal result and are decided by
// routeCompletion.
func NextState(current, target State) (State, error) {
	switch current {
	case StateStarting:
		switch target {
		case StatePeerPairing:
			return StatePeerPairing, nil
		default:
			return StateStarted, nil
		}

	case StateStarted:
		return StateBecomeIdle, nil

	case StateIdle:
		switch target {
		case StateStopped:
			return StateStopped, nil
		case StatePeerPairing:
			return StatePeerPairing, nil
		case StateFindRole:
			return StateFindRole, nil
		case StateSelectPreservedRole:
			return StateSelectPreservedRole, nil
		case StateSecondary:
			return StateBecomeSecondary, nil
		case StateStandalonePrimary:
			return StateBecomeStandalonePrimary, nil
		case StatePrimaryWithPeer, StateStaticHandover:
			return StateBecomePrimaryWithPeer, nil
		}

	case StateSelectPreservedRole:
		switch target {
		case StateSecondary:
			return StateBecomeSecondary, nil
		case StatePrimaryWithPeer, StateStaticHandover:
			return StateBecomePrimaryWithPeer, nil
		case StateStandalonePrimary:
			return StateBecomeStandalonePrimary, nil
		default:
			return StateBecomeIdle, nil
		}

	case StateStandalonePrimary:
		switch target {
		case StatePrimaryWithPeer, StateStaticHandover:
			return StateBecomePrimaryWithPeer, nil
		default:
			return StateBecomeIdle, nil
		}

	case StatePrimaryConnectableForSecondary:
		switch target {
		case StatePrimaryWithPeer, StateStaticHandover:
			// remain until the secondary connects
			return StatePrimaryConnectableForSecondary, nil
		case StateStandalonePrimary:
			return StateBecomeStandalonePrimary, nil
		default:
			return StateBecomeIdle, nil
		}

	case StatePrimaryWithPeer:
		switch target {
		case StateSecondary:
			return StateHandoverPrepare, nil
		case StateStandalonePrimary:
			return StateBecomeStandalonePrimary, nil
		case StateStaticHandover:
			return StateStaticHandover, nil
		default:
			return StateBecomeIdle, nil
		}

	case StateHandoverPrepared:
		switch target {
		case StateSecondary:
			return StateHandover, nil
		default:
			return StateHandoverUndoPrepare, nil
		}

	case StateHandoverRetry:
		switch target {
		case StateSecondary:
			// remain until the retry timer expires
			return StateHandoverRetry, nil
		default:
			return StateHandoverUndoPrepare, nil
		}

	case StateStaticHandover:
		return StateBecomeIdle, nil

	case StateSecondary:
		switch target {
		case StateStandalonePrimary:
			return StateBecomeStandalonePrimary, nil
		default:
			return StateBecomeIdle, nil
		}
	}
	return current, errors.Wrapf(ErrUnmappedTransition, "current=%s target=%s", current, target)
}

type completion struct {
	result             Result
	role               ElectedRole
	handoverWindowOpen bool
}

type routed struct {
	next           State
	role           ElectedRole
	relinquish     bool
	forcedNoRole   bool
	handoverFailed bool
	handoverDone   bool
	peerPaired     bool
}

func (r routed) String() string {
	return fmt.Sprintf("next=%s role=%s relinquish=%v forced=%v handover_failed=%v handover_done=%v",
		r.next, r.role, r.relinquish, r.forcedNoRole, r.handoverFailed, r.handoverDone)
}

// routeCompletion decides the state after a goal spawned by state completes.
// Failures are turned into a safer role rather than retried blindly.
func routeCompletion(state State, c completion) (routed, error) {
	r := routed{next: state, role: c.role}
	ok := c.result == ResultSuccess

	switch state {
	case StatePeerPairing:
		if ok {
			r.next = StateStarted
			r.peerPaired = true
		} else {
			r.next = StateStarting
		}

	case StateBecomeIdle:
		r.next = StateIdle

	case StateFindRole:
		// an election outcome that arrived before the goal ended wins
		switch c.role {
		case ElectedRoleStandalonePrimary:
			r.next = StateBecomeStandalonePrimary
		case ElectedRolePrimaryWithPeer:
			r.next = StateBecomePrimaryWithPeer
		case ElectedRoleSecondary:
			r.next = StateBecomeSecondary
		default:
			if c.result == ResultTimeout {
				// nobody answered, serve alone
				r.role = ElectedRoleStandalonePrimary
				r.next = StateBecomeStandalonePrimary
				break
			}
			r.relinquish = true
			r.next = StateBecomeIdle
		}

	case StateBecomeStandalonePrimary:
		// an election outcome accepted meanwhile is kept, the next kick moves on
		r.next = StateStandalonePrimary

	case StateBecomePrimaryWithPeer:
		if ok && c.role == ElectedRolePrimaryWithPeer {
			r.next = StatePrimaryConnectableForSecondary
		} else {
			r.role = ElectedRoleStandalonePrimary
			r.next = StateBecomeStandalonePrimary
		}

	case StateBecomePrimaryFromSecondary:
		if ok {
			r.next = StatePrimaryWithPeer
		} else {
			// revert to the last stable state
			r.role = ElectedRoleSecondary
			r.next = StateSecondary
		}

	case StatePrimaryConnectableForSecondary:
		if ok && c.role == ElectedRolePrimaryWithPeer {
			r.next = StatePrimaryConnectPeerProfiles
		} else {
			r.role = ElectedRoleStandalonePrimary
			r.next = StateBecomeStandalonePrimary
		}

	case StatePrimaryConnectPeerProfiles:
		if ok && c.role == ElectedRolePrimaryWithPeer {
			r.next = StatePrimaryWithPeer
		} else {
			r.role = ElectedRoleStandalonePrimary
			r.next = StateBecomeStandalonePrimary
		}

	case StateHandoverPrepare:
		if ok {
			r.next = StateHandoverPrepared
		} else {
			r.handoverFailed = true
			r.next = StateHandoverUndoPrepare
		}

	case StateHandover:
		switch c.result {
		case ResultSuccess:
			r.role = ElectedRoleSecondary
			r.next = StateSecondary
			r.handoverDone = true
		case ResultTimeout:
			if c.handoverWindowOpen {
				r.next = StateHandoverRetry
				break
			}
			r.handoverFailed = true
			r.next = StateHandoverUndoPrepare
		default:
			r.handoverFailed = true
			r.next = StateHandoverUndoPrepare
		}

	case StateHandoverUndoPrepare:
		r.next = StatePrimaryWithPeer

	case StateBecomeSecondary, StateSecondaryConnectingToPrimary:
		switch {
		case c.role == ElectedRoleStandalonePrimary:
			// peer was lost while becoming secondary
			r.next = StateBecomeStandalonePrimary
		case ok && c.role == ElectedRoleSecondary && state == StateBecomeSecondary:
			r.next = StateSecondaryConnectingToPrimary
		case ok && c.role == ElectedRoleSecondary:
			r.next = StateSecondary
		default:
			r.relinquish = true
			r.forcedNoRole = true
			r.role = ElectedRoleNone
			r.next = StateBecomeIdle
		}

	default:
		return r, errors.Wrapf(ErrUnexpectedCompletion, "state=%s result=%s", state, c.result)
	}
	return r, nil
}
