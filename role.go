package pairtopology

// ElectedRole is assigned by election or handover outcomes and relinquished
// whenever a new election is required.
type ElectedRole uint8

const (
	ElectedRoleNone ElectedRole = iota
	ElectedRoleStandalonePrimary
	ElectedRolePrimaryWithPeer
	ElectedRoleSecondary
)

func (r ElectedRole) String() string {
	switch r {
	case ElectedRoleNone:
		return "none"
	case ElectedRoleStandalonePrimary:
		return "standalone_primary"
	case ElectedRolePrimaryWithPeer:
		return "primary_with_peer"
	case ElectedRoleSecondary:
		return "secondary"
	}
	return "unknown role"
}

func (r ElectedRole) isPrimary() bool {
	return r == ElectedRoleStandalonePrimary || r == ElectedRolePrimaryWithPeer
}

// Role is the coarse role reported to applications.
type Role uint8

const (
	RoleNone Role = iota
	RolePrimary
	RoleSecondary
)

func (r Role) String() string {
	switch r {
	case RoleNone:
		return "none"
	case RolePrimary:
		return "primary"
	case RoleSecondary:
		return "secondary"
	}
	return "unknown role"
}

// ElectionOutcome is reported by the election service.
type ElectionOutcome uint8

const (
	ElectionNoPeer ElectionOutcome = iota + 1
	ElectionActingPrimary
	ElectionPrimary
	ElectionSecondary
)

func (o ElectionOutcome) String() string {
	switch o {
	case ElectionNoPeer:
		return "no_peer"
	case ElectionActingPrimary:
		return "acting_primary"
	case ElectionPrimary:
		return "primary"
	case ElectionSecondary:
		return "secondary"
	}
	return "unknown outcome"
}

// PreservedRole is the last known role kept across restarts.
type PreservedRole uint8

const (
	PreservedRoleNone PreservedRole = iota
	PreservedRolePrimary
	PreservedRoleSecondary
)

func (p PreservedRole) String() string {
	switch p {
	case PreservedRoleNone:
		return "none"
	case PreservedRolePrimary:
		return "primary"
	case PreservedRoleSecondary:
		return "secondary"
	}
	return "unknown preserved role"
}

// HandoverReason is opaque to the controller and only handed to the
// authorisation predicate. HandoverReasonNone means no handover is pending.
type HandoverReason uint8

const (
	HandoverReasonNone HandoverReason = iota
	HandoverReasonExternal
)

func (r HandoverReason) String() string {
	switch r {
	case HandoverReasonNone:
		return "none"
	case HandoverReasonExternal:
		return "external"
	}
	return "reason<opaque>"
}

type LinkLossReason uint8

const (
	LinkLossNormal LinkLossReason = iota
	LinkLossStaticHandover
)

func (r LinkLossReason) String() string {
	switch r {
	case LinkLossNormal:
		return "normal"
	case LinkLossStaticHandover:
		return "static_handover"
	}
	return "unknown link loss"
}

type appEvent uint8

const (
	appEventNone appEvent = iota
	appEventJoinRequest
	appEventSwapRoleAndDisconnect
)

func (e appEvent) String() string {
	switch e {
	case appEventNone:
		return "none"
	case appEventJoinRequest:
		return "join_request"
	case appEventSwapRoleAndDisconnect:
		return "swap_role_and_disconnect"
	}
	return "unknown app event"
}
