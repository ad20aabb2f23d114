package session

// Operation is a kind of change a peer asks to make to the shared board.
type Operation int

const (
	OpDraw Operation = iota // stroke, shape, image
	OpClear
	OpUndo
	OpRedo
	OpActionState
	OpPage
	OpBackground
)

func (o Operation) String() string {
	switch o {
	case OpDraw:
		return "draw"
	case OpClear:
		return "clear"
	case OpUndo:
		return "undo"
	case OpRedo:
		return "redo"
	case OpActionState:
		return "action-state"
	case OpPage:
		return "page"
	case OpBackground:
		return "background"
	}
	return "unknown"
}

// Policy decides whether an author may apply an operation.
type Policy struct {
	ctx   *Context
	local func() string
}

// NewPolicy builds the policy for a session. local returns this peer's
// own author id.
func NewPolicy(ctx *Context, local func() string) *Policy {
	if local == nil {
		local = func() string { return "" }
	}
	return &Policy{ctx: ctx, local: local}
}

// CanApply is the single permission check for history mutations.
//
// On the host, its own author may do anything. Guests need canDraw, except
// that undo and redo in All mode follow the global guest lock, and the
// background belongs to the host. On a guest, local changes need a live
// connection and no remote lock; whatever the host sends is applied.
// Without a session everything local is allowed.
func (p *Policy) CanApply(authorID string, op Operation) bool {
	c := p.ctx
	local := authorID == "" || authorID == p.local()

	c.mu.RLock()
	defer c.mu.RUnlock()

	switch c.role {
	case Host:
		if local {
			return true
		}
		g, ok := c.guests[authorID]
		switch op {
		case OpBackground:
			return false
		case OpUndo, OpRedo:
			if c.mode == All {
				return !c.guestLock
			}
		}
		return ok && g.CanDraw
	case Guest:
		if !local {
			return true
		}
		if op == OpBackground {
			return false
		}
		return c.phase == Connected && !c.remoteLock
	}
	return true
}
