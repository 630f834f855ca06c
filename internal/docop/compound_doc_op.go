package docop

import "github.com/tabletquery/docop/pkg/logger"

// CompoundDocOp is reserved for grouping multiple ops under one
// lifecycle (for example a write followed by a read of the same row in
// one round trip). Only construction and teardown are defined here; a
// real composition policy — how Execute/Fetch fan out across the member
// ops, how a failure in one member affects the others — is left to a
// future core revision.
type CompoundDocOp struct {
	members []interface {
		AbortAndWait()
	}
}

// NewCompoundDocOp constructs an empty compound op.
func NewCompoundDocOp(_ logger.Logger) *CompoundDocOp {
	return &CompoundDocOp{}
}

// Add registers a member op with the compound. It does not yet
// participate in Execute/Fetch — only teardown is wired.
func (c *CompoundDocOp) Add(op interface{ AbortAndWait() }) {
	c.members = append(c.members, op)
}

// Close aborts every member op, releasing any in-flight requests. This
// is the only lifecycle behavior CompoundDocOp defines today.
func (c *CompoundDocOp) Close() {
	for _, m := range c.members {
		m.AbortAndWait()
	}
}
