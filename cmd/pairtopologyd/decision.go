package main

import (
	pairtopology "github.com/octu0/pair-topology"
	"go.uber.org/atomic"
	"go.uber.org/zap"
)

var (
	_ pairtopology.DecisionSource = (*externalDecision)(nil)
)

// externalDecision hands over only when asked to, through SwapRole or a
// swap before leaving. It is active while the node is primary with a peer.
type externalDecision struct {
	ctrl    *pairtopology.Controller
	running *atomic.Bool
	logger  *zap.Logger
}

func (d *externalDecision) Start() {
	d.running.Store(true)
}

func (d *externalDecision) Stop() {
	d.running.Store(false)
}

func (d *externalDecision) ExternalHandoverRequest() {
	if d.running.Load() != true {
		d.logger.Warn("handover request while not primary")
		return
	}
	d.ctrl.HandoverRequest(pairtopology.HandoverReasonExternal)
}

func newExternalDecision(logger *zap.Logger) *externalDecision {
	return &externalDecision{
		running: atomic.NewBool(false),
		logger:  logger,
	}
}
