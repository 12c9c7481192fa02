// Package preserved stores the last elected role of a node so that a
// restarted node can resume it without a new election.
package preserved

import (
	"sync"

	pairtopology "github.com/octu0/pair-topology"
)

var (
	_ pairtopology.PreservedRoleStore = (*Memory)(nil)
)

// Memory keeps the role for the lifetime of the process.
type Memory struct {
	mu    *sync.Mutex
	role  pairtopology.PreservedRole
	valid bool
}

func (m *Memory) Load() (pairtopology.PreservedRole, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.valid != true {
		return pairtopology.PreservedRoleNone, false, nil
	}
	return m.role, true, nil
}

func (m *Memory) Save(role pairtopology.PreservedRole) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.role = role
	m.valid = role != pairtopology.PreservedRoleNone
	return nil
}

func (m *Memory) Invalidate() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.valid = false
	return nil
}

func NewMemory() *Memory {
	return &Memory{
		mu:    new(sync.Mutex),
		role:  pairtopology.PreservedRoleNone,
		valid: false,
	}
}
