package pairtopology

import (
	"time"
)

type PeerCommand uint8

const (
	PeerCommandJoined PeerCommand = iota + 1
	PeerCommandLeft
	PeerCommandStaticHandoverRequest
	PeerCommandHandoverToPrimary
)

func (c PeerCommand) String() string {
	switch c {
	case PeerCommandJoined:
		return "cmd<Joined>"
	case PeerCommandLeft:
		return "cmd<Left>"
	case PeerCommandStaticHandoverRequest:
		return "cmd<StaticHandoverRequest>"
	case PeerCommandHandoverToPrimary:
		return "cmd<HandoverToPrimary>"
	}
	return "unknown command"
}

// PeerSignaller carries topology commands to the peer. A successful send is
// confirmed later through Controller.PeerCommandConfirmed.
type PeerSignaller interface {
	SendPeerCommand(cmd PeerCommand) error
	DisconnectPeer() error
}

// ElectionService finds the role of this node relative to its peer and
// reports through Controller.ElectionResult.
type ElectionService interface {
	FindRole(timeout time.Duration)
	CancelFindRole()
	IsFindRoleActive() bool
}

// DecisionSource decides when a handover is desirable and reports through
// Controller.HandoverRequest. It only runs while a peer is attached as
// primary.
type DecisionSource interface {
	Start()
	Stop()
	ExternalHandoverRequest()
}

type nopPeerSignaller struct{}

func (nopPeerSignaller) SendPeerCommand(PeerCommand) error { return nil }
func (nopPeerSignaller) DisconnectPeer() error             { return nil }

type nopElectionService struct{}

func (nopElectionService) FindRole(time.Duration) {}
func (nopElectionService) CancelFindRole()        {}
func (nopElectionService) IsFindRoleActive() bool { return false }

type nopDecisionSource struct{}

func (nopDecisionSource) Start()                   {}
func (nopDecisionSource) Stop()                    {}
func (nopDecisionSource) ExternalHandoverRequest() {}
