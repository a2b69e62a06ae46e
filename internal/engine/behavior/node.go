// Package behavior implements the routine's decision trees.
//
// A tree is built once through a Builder and then evaluated every tick against
// a fresh world.Snapshot. Node kinds are closed: Action, Decorator, Sequence
// and PrioritySelector.
package behavior

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/cory-johannsen/totembot/internal/engine/world"
)

// Status is the result of evaluating a node. The zero value is Failed.
type Status int

const (
	Failed Status = iota
	Succeeded
	Running
)

// String returns the lower-case status name.
func (s Status) String() string {
	switch s {
	case Failed:
		return "failed"
	case Succeeded:
		return "succeeded"
	case Running:
		return "running"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Node is one unit of a behavior tree.
type Node interface {
	// Evaluate runs the node against s. It never panics.
	Evaluate(s *world.Snapshot) Status
	// Name identifies the node in logs.
	Name() string
	sealed()
}

// Guard is a pure predicate over a snapshot.
type Guard func(s *world.Snapshot) bool

// Action performs exactly one dispatch.
type Action struct {
	name   string
	fn     func(s *world.Snapshot) Status
	logger *zap.Logger
}

func (a *Action) Name() string { return a.name }
func (a *Action) sealed()      {}

// Evaluate runs the action; a panic is logged and reported as Failed.
func (a *Action) Evaluate(s *world.Snapshot) (st Status) {
	if a == nil || a.fn == nil {
		return Failed
	}
	defer recoverInto(a.logger, a.name, &st)
	return a.fn(s)
}

// Decorator gates a single child behind a Guard.
type Decorator struct {
	name   string
	guard  Guard
	child  Node
	logger *zap.Logger
}

func (d *Decorator) Name() string { return d.name }
func (d *Decorator) sealed()      {}

// Evaluate returns Failed without touching the child when the guard is false
// (or panics); otherwise it returns the child's result.
func (d *Decorator) Evaluate(s *world.Snapshot) Status {
	if d == nil || d.guard == nil || !d.pass(s) {
		return Failed
	}
	return evaluate(d.child, s)
}

func (d *Decorator) pass(s *world.Snapshot) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Warn("behavior: guard panicked",
				zap.String("node", d.name),
				zap.Any("recover", r),
			)
			ok = false
		}
	}()
	return d.guard(s)
}

// Sequence succeeds only if every child succeeds, in order.
type Sequence struct {
	name     string
	children []Node
}

func (q *Sequence) Name() string { return q.name }
func (q *Sequence) sealed()      {}

// Evaluate stops at the first child that does not succeed and returns its status.
func (q *Sequence) Evaluate(s *world.Snapshot) Status {
	if q == nil {
		return Failed
	}
	for _, c := range q.children {
		if st := evaluate(c, s); st != Succeeded {
			return st
		}
	}
	return Succeeded
}

// PrioritySelector tries children in declaration order.
type PrioritySelector struct {
	name     string
	children []Node
}

func (p *PrioritySelector) Name() string { return p.name }
func (p *PrioritySelector) sealed()      {}

// Evaluate returns the first non-Failed child result. Later children are not
// evaluated. Failed only when every child failed (or there are none).
func (p *PrioritySelector) Evaluate(s *world.Snapshot) Status {
	if p == nil {
		return Failed
	}
	for _, c := range p.children {
		if st := evaluate(c, s); st != Failed {
			return st
		}
	}
	return Failed
}

// Append adds children at the lowest priority. It must only be called while
// the tree is being built, before the first Evaluate.
func (p *PrioritySelector) Append(children ...Node) {
	p.children = append(p.children, children...)
}

// Len returns the number of children, nil placeholders included.
func (p *PrioritySelector) Len() int {
	return len(p.children)
}

// evaluate treats a nil node as an always-Failed leaf.
func evaluate(n Node, s *world.Snapshot) Status {
	if n == nil {
		return Failed
	}
	return n.Evaluate(s)
}

func recoverInto(logger *zap.Logger, name string, st *Status) {
	if r := recover(); r != nil {
		logger.Warn("behavior: action panicked",
			zap.String("node", name),
			zap.Any("recover", r),
		)
		*st = Failed
	}
}
