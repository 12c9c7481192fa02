package main

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	pairtopology "github.com/octu0/pair-topology"
	"github.com/octu0/pair-topology/internal/config"
	"github.com/octu0/pair-topology/peer"
)

const (
	settleTimeout = 15 * time.Second
	settleTick    = 50 * time.Millisecond
)

func testConfig(name, join string) *config.Config {
	return &config.Config{
		Node: config.NodeConfig{
			Name:     name,
			BindAddr: "127.0.0.1",
			BindPort: 0,
			Join:     join,
			Paired:   true,
		},
		Behaviour: config.BehaviourConfig{
			DeviceType:      pairtopology.DeviceTypeEarbud.String(),
			SupportRoleSwap: true,
		},
		Timeouts: config.TimeoutsConfig{
			StopCommand:                     2 * time.Second,
			PeerFindRole:                    time.Second,
			PrimaryWaitForSecondary:         3 * time.Second,
			SecondaryWaitForPrimary:         3 * time.Second,
			PostIdleStaticHandover:          2 * time.Second,
			PostIdleSecondaryWaitForPrimary: 2 * time.Second,
			MaxHandoverWindow:               5 * time.Second,
			HandoverRetry:                   200 * time.Millisecond,
		},
	}
}

func startTestNode(t *testing.T, ctx context.Context, name, join, ulid string) *node {
	t.Helper()

	n, err := startNode(ctx, testConfig(name, join), zap.NewNop(),
		peer.WithULIDGeneratorFunc(func() string { return ulid }),
	)
	require.NoError(t, err)
	return n
}

func settled(n *node, role pairtopology.ElectedRole, state pairtopology.State) func() bool {
	return func() bool {
		return n.ctrl.ElectedRole() == role && n.ctrl.State() == state
	}
}

func TestNodePair(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a := startTestNode(t, ctx, "pair-a", "", "01H0000000000000000000000A")
	defer a.Close()

	require.Eventually(t, settled(a, pairtopology.ElectedRoleStandalonePrimary, pairtopology.StateStandalonePrimary), settleTimeout, settleTick, "a")

	// b starts after a gave up its first search
	b := startTestNode(t, ctx, "pair-b", a.link.Address(), "01H0000000000000000000000B")
	defer b.Close()

	t.Run("late peer becomes secondary", func(tt *testing.T) {
		require.Eventually(tt, settled(a, pairtopology.ElectedRolePrimaryWithPeer, pairtopology.StatePrimaryWithPeer), settleTimeout, settleTick, "a")
		require.Eventually(tt, settled(b, pairtopology.ElectedRoleSecondary, pairtopology.StateSecondary), settleTimeout, settleTick, "b")

		assert.False(tt, a.ctrl.IsRoleSecondary())
		assert.False(tt, b.ctrl.IsRolePrimary())
	})
	t.Run("static handover", func(tt *testing.T) {
		a.ctrl.RequestStaticHandover()

		require.Eventually(tt, settled(b, pairtopology.ElectedRolePrimaryWithPeer, pairtopology.StatePrimaryWithPeer), settleTimeout, settleTick, "b")
		// the old primary takes the link back as secondary
		require.Eventually(tt, settled(a, pairtopology.ElectedRoleSecondary, pairtopology.StateSecondary), settleTimeout, settleTick, "a")

		assert.True(tt, a.link.Connected())
		assert.True(tt, b.link.Connected())
	})
	t.Run("swap role", func(tt *testing.T) {
		b.ctrl.SwapRole()

		require.Eventually(tt, settled(a, pairtopology.ElectedRolePrimaryWithPeer, pairtopology.StatePrimaryWithPeer), settleTimeout, settleTick, "a")
		require.Eventually(tt, settled(b, pairtopology.ElectedRoleSecondary, pairtopology.StateSecondary), settleTimeout, settleTick, "b")
	})
	t.Run("one primary", func(tt *testing.T) {
		primaries := 0
		for _, n := range []*node{a, b} {
			if n.ctrl.IsRolePrimary() {
				primaries += 1
			}
		}
		assert.Equal(tt, 1, primaries)
	})
}

func TestExternalDecision(t *testing.T) {
	d := newExternalDecision(zap.NewNop())

	// no controller is needed while stopped
	d.ExternalHandoverRequest()
	assert.False(t, d.running.Load())

	d.Start()
	assert.True(t, d.running.Load())
	d.Stop()
	assert.False(t, d.running.Load())
}
