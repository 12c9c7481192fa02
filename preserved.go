package pairtopology

// PreservedRoleStore keeps the last elected role across restarts. Load
// reports false when nothing valid is stored.
type PreservedRoleStore interface {
	Load() (PreservedRole, bool, error)
	Save(role PreservedRole) error
	Invalidate() error
}

// preservedHint caches the store content so that kicks do not hit the disk.
type preservedHint struct {
	loaded bool
	role   PreservedRole
	valid  bool
}

func (c *Controller) loadPreservedRole() (PreservedRole, bool) {
	if c.hint.loaded {
		return c.hint.role, c.hint.valid
	}
	role, ok, err := c.opt.preserved.Load()
	if err != nil {
		c.opt.logger.Printf("warn: preserved role load: %+v", err)
		return PreservedRoleNone, false
	}
	c.hint = preservedHint{loaded: true, role: role, valid: ok}
	return role, ok
}

func (c *Controller) preservedRoleAvailable() bool {
	if c.opt.preserved == nil {
		return false
	}
	_, ok := c.loadPreservedRole()
	return ok
}

func (c *Controller) savePreservedRole(role PreservedRole) {
	if c.opt.preserved == nil {
		return
	}
	if err := c.opt.preserved.Save(role); err != nil {
		c.opt.logger.Printf("warn: preserved role save(%s): %+v", role, err)
		c.hint = preservedHint{}
		return
	}
	c.hint = preservedHint{loaded: true, role: role, valid: role != PreservedRoleNone}
}

// consumePreservedRole reads the hint and invalidates it so that it is used
// at most once.
func (c *Controller) consumePreservedRole() (PreservedRole, bool) {
	if c.opt.preserved == nil {
		return PreservedRoleNone, false
	}
	role, ok := c.loadPreservedRole()
	if err := c.opt.preserved.Invalidate(); err != nil {
		c.opt.logger.Printf("warn: preserved role invalidate: %+v", err)
	}
	c.hint = preservedHint{loaded: true}
	return role, ok
}
