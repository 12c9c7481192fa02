package main

import (
	"context"
	"testing"

	pairtopology "github.com/octu0/pair-topology"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestScriptsCoverGoals(t *testing.T) {
	p := newProcedures(context.Background(), nil, "", zap.NewNop())
	scripts := p.scripts()

	kinds := []pairtopology.GoalKind{
		pairtopology.GoalPairPeer,
		pairtopology.GoalNoRoleIdle,
		pairtopology.GoalFindRole,
		pairtopology.GoalBecomeStandalonePrimary,
		pairtopology.GoalBecomePrimary,
		pairtopology.GoalPrimaryConnectablePeer,
		pairtopology.GoalPrimaryConnectPeerProfiles,
		pairtopology.GoalHandoverPrepare,
		pairtopology.GoalHandover,
		pairtopology.GoalHandoverUndoPrepare,
		pairtopology.GoalBecomeSecondary,
		pairtopology.GoalSecondaryConnectPeer,
	}
	for _, k := range kinds {
		assert.NotEmpty(t, scripts[k], "%s", k)
	}

	// the handover ends by telling the secondary to take over
	handover := scripts[pairtopology.GoalHandover]
	assert.Len(t, handover, 3)
}

func TestOpenStore(t *testing.T) {
	t.Run("memory", func(tt *testing.T) {
		s, err := openStore("", zap.NewNop())
		require.NoError(tt, err)
		defer s.Close()

		require.NoError(tt, s.Save(pairtopology.PreservedRolePrimary))
		role, ok, err := s.Load()
		require.NoError(tt, err)
		assert.True(tt, ok)
		assert.Equal(tt, pairtopology.PreservedRolePrimary, role)
	})
	t.Run("pebble", func(tt *testing.T) {
		s, err := openStore(tt.TempDir(), zap.NewNop())
		require.NoError(tt, err)
		defer s.Close()

		role, ok, err := s.Load()
		require.NoError(tt, err)
		assert.False(tt, ok)
		assert.Equal(tt, pairtopology.PreservedRoleNone, role)
	})
}
