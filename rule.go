package pairtopology

// RuleFacts is the small fact set the target state is derived from.
type RuleFacts struct {
	StopRequested          bool
	PeerPaired             bool
	JoinPending            bool
	PreservedRoleAvailable bool
	Inactive               bool
	HandoverRequested      bool
	HandoverAuthorised     bool
	StaticHandoverRequired bool
}

// EvaluateTargetState computes the desired state, first match wins.
// Handover authorisation is checked before inactivity so that an in-flight
// handover decision is not pre-empted by a concurrent idle decision.
func EvaluateTargetState(role ElectedRole, f RuleFacts) State {
	if f.StopRequested {
		return StateStopped
	}

	switch role {
	case ElectedRoleNone:
		if f.PeerPaired != true {
			return StatePeerPairing
		}
		if f.JoinPending {
			if f.PreservedRoleAvailable {
				return StateSelectPreservedRole
			}
			return StateFindRole
		}
		return StateIdle

	case ElectedRoleStandalonePrimary:
		if f.Inactive {
			return StateIdle
		}
		return StateStandalonePrimary

	case ElectedRolePrimaryWithPeer:
		if f.HandoverRequested && f.HandoverAuthorised {
			return StateSecondary
		}
		if f.StaticHandoverRequired {
			return StateStaticHandover
		}
		if f.Inactive {
			return StateIdle
		}
		return StatePrimaryWithPeer

	case ElectedRoleSecondary:
		if f.Inactive {
			return StateIdle
		}
		return StateSecondary
	}
	return StateIdle
}

// requiresReelection reports whether reaching target needs the elected role
// to be relinquished first.
func requiresReelection(target State) bool {
	return target == StateIdle || target == StateStopped
}
