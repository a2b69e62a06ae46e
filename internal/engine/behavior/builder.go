package behavior

import (
	"go.uber.org/zap"

	"github.com/cory-johannsen/totembot/internal/engine/world"
)

// Builder constructs nodes that share a logger for recovered panics.
type Builder struct {
	logger *zap.Logger
}

// NewBuilder returns a Builder.
//
// Precondition: logger must not be nil.
func NewBuilder(logger *zap.Logger) *Builder {
	if logger == nil {
		panic("behavior.NewBuilder: logger must not be nil")
	}
	return &Builder{logger: logger}
}

// Action wraps a dispatch: a nil error is Succeeded, any error is Failed.
func (b *Builder) Action(name string, dispatch func(s *world.Snapshot) error) *Action {
	return &Action{
		name: name,
		fn: func(s *world.Snapshot) Status {
			if err := dispatch(s); err != nil {
				b.logger.Debug("behavior: action failed",
					zap.String("node", name),
					zap.Error(err),
				)
				return Failed
			}
			return Succeeded
		},
		logger: b.logger,
	}
}

// Leaf wraps a function that reports its own status.
func (b *Builder) Leaf(name string, fn func(s *world.Snapshot) Status) *Action {
	return &Action{name: name, fn: fn, logger: b.logger}
}

// Decorator guards child with guard.
func (b *Builder) Decorator(name string, guard Guard, child Node) *Decorator {
	return &Decorator{name: name, guard: guard, child: child, logger: b.logger}
}

// Sequence builds an all-must-succeed node.
func (b *Builder) Sequence(name string, children ...Node) *Sequence {
	return &Sequence{name: name, children: children}
}

// Priority builds a first-non-Failed-wins selector. Nil children are kept as
// always-Failed placeholders.
func (b *Builder) Priority(name string, children ...Node) *PrioritySelector {
	return &PrioritySelector{name: name, children: children}
}

// All combines guards with short-circuit AND.
func All(guards ...Guard) Guard {
	return func(s *world.Snapshot) bool {
		for _, g := range guards {
			if !g(s) {
				return false
			}
		}
		return true
	}
}
