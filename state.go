package pairtopology

type State uint8

const (
	StateStopped State = iota
	StateStarting
	StatePeerPairing
	StateStarted
	StateBecomeIdle
	StateIdle
	StateFindRole
	StateSelectPreservedRole
	StateBecomeStandalonePrimary
	StateStandalonePrimary
	StateBecomePrimaryWithPeer
	StateBecomePrimaryFromSecondary
	StatePrimaryConnectableForSecondary
	StatePrimaryConnectPeerProfiles
	StatePrimaryWithPeer
	StateHandoverPrepare
	StateHandoverPrepared
	StateHandover
	StateHandoverRetry
	StateHandoverUndoPrepare
	StateStaticHandover
	StateBecomeSecondary
	StateSecondaryConnectingToPrimary
	StateSecondary

	stateEnd
)

func (s State) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StateStarting:
		return "starting"
	case StatePeerPairing:
		return "peer_pairing"
	case StateStarted:
		return "started"
	case StateBecomeIdle:
		return "become_idle"
	case StateIdle:
		return "idle"
	case StateFindRole:
		return "find_role"
	case StateSelectPreservedRole:
		return "select_preserved_role"
	case StateBecomeStandalonePrimary:
		return "become_standalone_primary"
	case StateStandalonePrimary:
		return "standalone_primary"
	case StateBecomePrimaryWithPeer:
		return "become_primary_with_peer"
	case StateBecomePrimaryFromSecondary:
		return "become_primary_from_secondary"
	case StatePrimaryConnectableForSecondary:
		return "primary_connectable_for_secondary"
	case StatePrimaryConnectPeerProfiles:
		return "primary_connect_peer_profiles"
	case StatePrimaryWithPeer:
		return "primary_with_peer"
	case StateHandoverPrepare:
		return "handover_prepare"
	case StateHandoverPrepared:
		return "handover_prepared"
	case StateHandover:
		return "handover"
	case StateHandoverRetry:
		return "handover_retry"
	case StateHandoverUndoPrepare:
		return "handover_undo_prepare"
	case StateStaticHandover:
		return "static_handover"
	case StateBecomeSecondary:
		return "become_secondary"
	case StateSecondaryConnectingToPrimary:
		return "secondary_connecting_to_primary"
	case StateSecondary:
		return "secondary"
	}
	return "unknown state"
}

// IsSteady reports whether transition evaluation is permitted in s.
// Stopped is neither steady nor transient: only Start leaves it.
func (s State) IsSteady() bool {
	switch s {
	case StateStarting,
		StateStarted,
		StateIdle,
		StateSelectPreservedRole,
		StateStandalonePrimary,
		StatePrimaryConnectableForSecondary,
		StatePrimaryWithPeer,
		StateHandoverPrepared,
		StateHandoverRetry,
		StateStaticHandover,
		StateSecondary:
		return true
	}
	return false
}

// IsTransient reports whether s is waiting on exactly one goal.
func (s State) IsTransient() bool {
	return s != StateStopped && s < stateEnd && s.IsSteady() != true
}

// RoleFromState classifies s into the role visible to applications.
func RoleFromState(s State) Role {
	switch s {
	case StateBecomeStandalonePrimary,
		StateStandalonePrimary,
		StateBecomePrimaryWithPeer,
		StateBecomePrimaryFromSecondary,
		StatePrimaryConnectableForSecondary,
		StatePrimaryConnectPeerProfiles,
		StatePrimaryWithPeer,
		StateHandoverPrepare,
		StateHandoverPrepared,
		StateHandover,
		StateHandoverRetry,
		StateHandoverUndoPrepare,
		StateStaticHandover:
		return RolePrimary
	case StateBecomeSecondary,
		StateSecondaryConnectingToPrimary,
		StateSecondary:
		return RoleSecondary
	}
	return RoleNone
}

// the handover decision source only runs while a peer is attached as primary
func requiresDecisionSource(s State) bool {
	switch s {
	case StatePrimaryWithPeer,
		StateHandoverPrepare,
		StateHandoverPrepared,
		StateHandover,
		StateHandoverRetry,
		StateHandoverUndoPrepare:
		return true
	}
	return false
}

func allStates() []State {
	states := make([]State, 0, int(stateEnd))
	for s := StateStopped; s < stateEnd; s += 1 {
		states = append(states, s)
	}
	return states
}
