package curse

import (
	"errors"
	"fmt"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"go.uber.org/zap"

	"github.com/cory-johannsen/totembot/internal/engine/behavior"
	"github.com/cory-johannsen/totembot/internal/engine/cast"
	"github.com/cory-johannsen/totembot/internal/engine/predicate"
	"github.com/cory-johannsen/totembot/internal/engine/target"
	"github.com/cory-johannsen/totembot/internal/engine/world"
)

// ScriptKey is the scripting VM curse hooks are loaded into.
const ScriptKey = "curses"

// Default eligibility: a rare or unique target, or one with at least
// DefaultClusterCount other hostiles strictly within DefaultClusterRadius.
const (
	DefaultClusterRadius = 20.0
	DefaultClusterCount  = 3
)

// HookCaller runs Lua eligibility hooks.
type HookCaller interface {
	// HasHook reports whether hook is a function in the key VM.
	HasHook(key, hook string) bool
	// CallPredicate calls hook with a facts table; any script failure is false.
	CallPredicate(key, hook string, facts map[string]any) bool
}

// Eligibility tunes the default rule.
type Eligibility struct {
	ClusterRadius float64
	ClusterCount  int
}

func (e Eligibility) withDefaults() Eligibility {
	if e.ClusterRadius <= 0 {
		e.ClusterRadius = DefaultClusterRadius
	}
	if e.ClusterCount <= 0 {
		e.ClusterCount = DefaultClusterCount
	}
	return e
}

// Registration is a compiled catalog entry. Immutable once built.
type Registration struct {
	Entry  Entry
	Target target.Func
	// eligible is the entry's override or the default rule; it does not
	// include the target validity or missing-aura checks.
	eligible behavior.Guard
}

// Guard returns the full gate for this curse: a valid target, eligibility,
// and the debuff absent or, with RefreshBelow set, about to expire.
func (r Registration) Guard() behavior.Guard {
	return behavior.All(
		predicate.Curseable(r.Target),
		r.eligible,
		predicate.TargetNeedsAura(r.Target, r.Entry.Aura, r.Entry.RefreshBelow),
	)
}

// Compiler turns catalog entries into Registrations.
type Compiler struct {
	elig   Eligibility
	hooks  HookCaller
	logger *zap.Logger
}

// NewCompiler builds a Compiler. hooks may be nil when no entry uses a hook.
//
// Precondition: logger must not be nil.
func NewCompiler(elig Eligibility, hooks HookCaller, logger *zap.Logger) *Compiler {
	if logger == nil {
		panic("curse.NewCompiler: logger must not be nil")
	}
	return &Compiler{elig: elig.withDefaults(), hooks: hooks, logger: logger}
}

// Compile builds one Registration.
//
// Postcondition: returns an error if the condition does not compile to a
// bool, the selector is unknown, or the hook is missing.
func (c *Compiler) Compile(e Entry) (Registration, error) {
	tgt, err := target.ByName(e.Target)
	if err != nil {
		return Registration{}, fmt.Errorf("curse %q: %w", e.Spell, err)
	}
	var overrides []behavior.Guard
	if e.Condition != "" {
		prog, err := expr.Compile(e.Condition, expr.Env(Env{}), expr.AsBool())
		if err != nil {
			return Registration{}, fmt.Errorf("curse %q: compile condition: %w", e.Spell, err)
		}
		overrides = append(overrides, c.conditionGuard(e.Spell, prog, tgt))
	}
	if e.Hook != "" {
		if c.hooks == nil || !c.hooks.HasHook(ScriptKey, e.Hook) {
			return Registration{}, fmt.Errorf("curse %q: hook %q is not defined", e.Spell, e.Hook)
		}
		overrides = append(overrides, c.hookGuard(e.Hook, tgt))
	}
	eligible := c.defaultGuard(tgt)
	if len(overrides) > 0 {
		eligible = behavior.All(overrides...)
	}
	return Registration{Entry: e, Target: tgt, eligible: eligible}, nil
}

// CompileAll compiles every catalog entry in order and reports all failures.
func (c *Compiler) CompileAll(cat *Catalog) ([]Registration, error) {
	regs := make([]Registration, 0, len(cat.Entries))
	var errs []error
	for _, e := range cat.Entries {
		r, err := c.Compile(e)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		regs = append(regs, r)
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return regs, nil
}

func (c *Compiler) defaultGuard(tgt target.Func) behavior.Guard {
	return predicate.Any(
		predicate.HighValue(tgt),
		predicate.MobsNear(tgt, c.elig.ClusterRadius, c.elig.ClusterCount),
	)
}

func (c *Compiler) conditionGuard(spell string, prog *vm.Program, tgt target.Func) behavior.Guard {
	return func(s *world.Snapshot) bool {
		t := tgt(s)
		if t == nil {
			return false
		}
		out, err := expr.Run(prog, newEnv(s, t))
		if err != nil {
			c.logger.Warn("curse: condition error",
				zap.String("spell", spell),
				zap.Error(err),
			)
			return false
		}
		ok, _ := out.(bool)
		return ok
	}
}

func (c *Compiler) hookGuard(hook string, tgt target.Func) behavior.Guard {
	return func(s *world.Snapshot) bool {
		t := tgt(s)
		if t == nil {
			return false
		}
		return c.hooks.CallPredicate(ScriptKey, hook, newEnv(s, t).facts(c.elig.ClusterRadius))
	}
}

// Register appends one guarded cast per usable registration to buff, in
// order, and returns how many were added.
//
// A registration whose spell the agent does not know, or whose spell is a
// deployable, is dropped without a node.
//
// Precondition: must be called while the tree is being built.
func Register(
	b *behavior.Builder,
	buff *behavior.PrioritySelector,
	regs []Registration,
	spells world.SpellBook,
	exec world.Executor,
	logger *zap.Logger,
) int {
	added := 0
	for _, r := range regs {
		info, ok := spells.Spell(r.Entry.Spell)
		if !ok || info.Deployable {
			logger.Debug("curse: registration dropped",
				zap.String("spell", r.Entry.Spell),
				zap.Bool("known", ok),
				zap.Bool("deployable", info.Deployable),
			)
			continue
		}
		buff.Append(cast.Guarded(b, r.Entry.Spell, r.Guard(), r.Target, exec))
		added++
	}
	return added
}
