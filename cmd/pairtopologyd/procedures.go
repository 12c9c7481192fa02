package main

import (
	"context"
	"sync"
	"time"

	retry "github.com/avast/retry-go/v4"
	pairtopology "github.com/octu0/pair-topology"
	"github.com/octu0/pair-topology/peer"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

const (
	connectRetryInterval = 500 * time.Millisecond
)

var (
	_ pairtopology.ElectionService = (*procedures)(nil)
)

// procedures runs the goals of the controller on top of the peer link.
type procedures struct {
	ctx    context.Context
	link   *peer.Link
	join   string
	logger *zap.Logger
	ctrl   *pairtopology.Controller

	mu         *sync.Mutex
	dialCancel context.CancelFunc
}

func (p *procedures) scripts() pairtopology.Scripts {
	return pairtopology.Scripts{
		pairtopology.GoalPairPeer:                   {p.logGoal, p.connectPeer},
		pairtopology.GoalNoRoleIdle:                 {p.logGoal},
		pairtopology.GoalFindRole:                   {p.logGoal, p.findRole},
		pairtopology.GoalBecomeStandalonePrimary:    {p.logGoal},
		pairtopology.GoalBecomePrimary:              {p.logGoal},
		pairtopology.GoalPrimaryConnectablePeer:     {p.logGoal, p.waitPeer},
		pairtopology.GoalPrimaryConnectPeerProfiles: {p.logGoal, p.requirePeer},
		pairtopology.GoalHandoverPrepare:            {p.logGoal, p.requirePeer},
		pairtopology.GoalHandover:                   {p.logGoal, p.requirePeer, p.handover},
		pairtopology.GoalHandoverUndoPrepare:        {p.logGoal},
		pairtopology.GoalBecomeSecondary:            {p.logGoal},
		pairtopology.GoalSecondaryConnectPeer:       {p.logGoal, p.connectPeer, p.waitPeer},
	}
}

func (p *procedures) logGoal(ctx context.Context, goal pairtopology.Goal) error {
	p.logger.Info("goal",
		zap.Stringer("kind", goal.Kind),
		zap.String("id", string(goal.ID)),
		zap.Stringer("state", goal.State),
		zap.Stringer("role", goal.Role),
	)
	return nil
}

// dial joins the configured peer address until ctx ends. Without one the
// peer is expected to dial us.
func (p *procedures) dial(ctx context.Context) error {
	if p.join == "" || p.link.Connected() {
		return nil
	}

	err := retry.Do(func() error {
		return p.link.Connect(p.join)
	},
		retry.Context(ctx),
		retry.Attempts(0),
		retry.Delay(connectRetryInterval),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			p.logger.Warn("connect retry", zap.String("addr", p.join), zap.Uint("attempt", n), zap.Error(err))
		}),
	)
	if err != nil {
		return errors.WithStack(err)
	}
	return nil
}

// connectPeer brings the peer link up, including a peer that was dropped by
// an earlier static handover.
func (p *procedures) connectPeer(ctx context.Context, goal pairtopology.Goal) error {
	if err := p.dial(ctx); err != nil {
		return errors.WithStack(err)
	}
	p.link.Reconnect()
	return nil
}

func (p *procedures) waitPeer(ctx context.Context, goal pairtopology.Goal) error {
	for p.link.Connected() != true {
		select {
		case <-ctx.Done():
			return errors.WithStack(ctx.Err())
		case <-time.After(connectRetryInterval):
			// continue
		}
	}
	return nil
}

func (p *procedures) requirePeer(ctx context.Context, goal pairtopology.Goal) error {
	if p.link.Connected() != true {
		return errors.Wrapf(peer.ErrNoPeer, "%s", goal)
	}
	return nil
}

// handover passes the primary role to the peer before this node reports
// itself secondary.
func (p *procedures) handover(ctx context.Context, goal pairtopology.Goal) error {
	if err := p.link.SendPeerCommandSync(pairtopology.PeerCommandHandoverToPrimary); err != nil {
		return errors.WithStack(err)
	}
	return nil
}

// findRole reports the election outcome itself. An expired goal ends with
// no peer, a cancelled one reports nothing.
func (p *procedures) findRole(ctx context.Context, goal pairtopology.Goal) error {
	go func() {
		if err := p.dial(ctx); err != nil {
			p.logger.Debug("dial during election", zap.Error(err))
		}
	}()

	outcome, err := p.link.Elect(ctx)
	if errors.Is(err, context.Canceled) {
		return errors.WithStack(err)
	}
	p.ctrl.ElectionResult(outcome)
	return nil
}

// FindRole keeps dialing the configured peer while the link searches in the
// background, so that a standalone primary finds a peer that starts late.
func (p *procedures) FindRole(timeout time.Duration) {
	ctx, cancel := context.WithTimeout(p.ctx, timeout)

	p.mu.Lock()
	p.dialCancel()
	p.dialCancel = cancel
	p.mu.Unlock()

	go func() {
		defer cancel()
		if err := p.dial(ctx); err != nil {
			p.logger.Debug("dial during background election", zap.Error(err))
		}
	}()
	p.link.FindRole(timeout)
}

func (p *procedures) CancelFindRole() {
	p.mu.Lock()
	p.dialCancel()
	p.dialCancel = nopCancel
	p.mu.Unlock()

	p.link.CancelFindRole()
}

func (p *procedures) IsFindRoleActive() bool {
	return p.link.IsFindRoleActive()
}

func nopCancel() {}

func newProcedures(ctx context.Context, link *peer.Link, join string, logger *zap.Logger) *procedures {
	return &procedures{
		ctx:        ctx,
		link:       link,
		join:       join,
		logger:     logger,
		mu:         new(sync.Mutex),
		dialCancel: nopCancel,
	}
}
