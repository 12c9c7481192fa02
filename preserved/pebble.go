package preserved

import (
	"github.com/cockroachdb/pebble"
	pairtopology "github.com/octu0/pair-topology"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

var (
	_ pairtopology.PreservedRoleStore = (*Pebble)(nil)
)

var (
	ErrCorruptRole = errors.New("corrupt preserved role")
)

var (
	roleKey = []byte("preserved-role")
)

// Pebble persists the role in a local pebble database. Every write is synced.
type Pebble struct {
	db     *pebble.DB
	path   string
	logger *zap.Logger
}

func (p *Pebble) Load() (pairtopology.PreservedRole, bool, error) {
	data, closer, err := p.db.Get(roleKey)
	if errors.Is(err, pebble.ErrNotFound) {
		return pairtopology.PreservedRoleNone, false, nil
	}
	if err != nil {
		return pairtopology.PreservedRoleNone, false, errors.Wrapf(err, "pebble get %s", roleKey)
	}
	defer closer.Close()

	if len(data) != 1 {
		return pairtopology.PreservedRoleNone, false, errors.Wrapf(ErrCorruptRole, "len=%d", len(data))
	}
	role := pairtopology.PreservedRole(data[0])
	switch role {
	case pairtopology.PreservedRolePrimary, pairtopology.PreservedRoleSecondary:
		return role, true, nil
	}
	return pairtopology.PreservedRoleNone, false, errors.Wrapf(ErrCorruptRole, "value=%d", data[0])
}

func (p *Pebble) Save(role pairtopology.PreservedRole) error {
	if role == pairtopology.PreservedRoleNone {
		return p.Invalidate()
	}
	if err := p.db.Set(roleKey, []byte{byte(role)}, pebble.Sync); err != nil {
		return errors.Wrapf(err, "pebble set %s", role)
	}
	p.logger.Debug("preserved role saved", zap.Stringer("role", role))
	return nil
}

func (p *Pebble) Invalidate() error {
	if err := p.db.Delete(roleKey, pebble.Sync); err != nil {
		return errors.Wrap(err, "pebble delete")
	}
	return nil
}

func (p *Pebble) Close() error {
	if err := p.db.Close(); err != nil {
		return errors.WithStack(err)
	}
	return nil
}

// OpenPebble opens (or creates) the database at path.
func OpenPebble(path string, logger *zap.Logger) (*Pebble, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	db, err := pebble.Open(path, &pebble.Options{
		Logger: &pebbleLogger{logger},
	})
	if err != nil {
		return nil, errors.Wrapf(err, "pebble open %s", path)
	}
	logger.Info("preserved role store opened", zap.String("path", path))
	return &Pebble{db, path, logger}, nil
}

// pebbleLogger adapts zap.Logger to pebble.Logger.
type pebbleLogger struct {
	z *zap.Logger
}

func (l *pebbleLogger) Infof(format string, args ...any) {
	l.z.Sugar().Infof(format, args...)
}

func (l *pebbleLogger) Errorf(format string, args ...any) {
	l.z.Sugar().Errorf(format, args...)
}

func (l *pebbleLogger) Fatalf(format string, args ...any) {
	l.z.Sugar().Fatalf(format, args...)
}
