// Package scripting runs the sandboxed Lua hooks content authors use to
// refine curse eligibility. It knows nothing about the engine; hooks receive
// plain fact tables and return a value.
package scripting

import (
	"context"
	"sync/atomic"

	lua "github.com/yuin/gopher-lua"
)

// DefaultInstructionLimit is the opcode budget for one script load or one hook
// call when no override is configured.
const DefaultInstructionLimit = 100_000

// opcodeBudget is a context that cancels itself once Done has been polled
// more times than its budget allows. GopherLua's mainLoopWithContext polls
// Done once per opcode.
type opcodeBudget struct {
	context.Context
	cancel context.CancelFunc
	left   atomic.Int64
}

func (b *opcodeBudget) Done() <-chan struct{} {
	if b.left.Add(-1) <= 0 {
		b.cancel()
	}
	return b.Context.Done()
}

// Precondition: limit > 0.
func newOpcodeBudget(limit int) *opcodeBudget {
	ctx, cancel := context.WithCancel(context.Background())
	b := &opcodeBudget{Context: ctx, cancel: cancel}
	b.left.Store(int64(limit))
	return b
}

// strippedGlobals are removed from every sandbox after the base library loads.
var strippedGlobals = []string{"dofile", "loadfile", "load", "collectgarbage", "require"}

// budget installs a fresh instruction budget on L and returns its release
// function. Every load and every hook call runs under its own budget, so a
// long-lived VM never exhausts a lifetime allowance.
func budget(L *lua.LState, limit int) func() {
	if limit <= 0 {
		limit = DefaultInstructionLimit
	}
	b := newOpcodeBudget(limit)
	L.SetContext(b)
	return func() {
		L.RemoveContext()
		b.cancel()
	}
}

// NewSandboxedState creates a GopherLua LState with:
//   - Only safe stdlib loaded: base, table, string, math
//   - strippedGlobals removed
//   - An instruction budget of instLimit opcodes, active until release is called
//
// Precondition: instLimit >= 0; 0 uses DefaultInstructionLimit.
// Postcondition: The caller owns the LState and must call release and then
// L.Close() when done.
func NewSandboxedState(instLimit int) (L *lua.LState, release func()) {
	L = lua.NewState(lua.Options{SkipOpenLibs: true})

	lua.OpenBase(L)
	lua.OpenTable(L)
	lua.OpenString(L)
	lua.OpenMath(L)

	for _, name := range strippedGlobals {
		L.SetGlobal(name, lua.LNil)
	}

	return L, budget(L, instLimit)
}
