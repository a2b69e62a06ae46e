package scripting_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	lua "github.com/yuin/gopher-lua"
	"pgregory.net/rapid"

	"github.com/cory-johannsen/totembot/internal/scripting"
)

func newState(t testing.TB, limit int) *lua.LState {
	t.Helper()
	L, release := scripting.NewSandboxedState(limit)
	require.NotNil(t, L)
	t.Cleanup(func() {
		release()
		L.Close()
	})
	return L
}

func TestNewSandboxedState_StripsUnsafeGlobals(t *testing.T) {
	L := newState(t, 0)
	for _, name := range []string{"os", "io", "debug", "dofile", "loadfile", "load", "collectgarbage", "require"} {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, lua.LNil, L.GetGlobal(name))
		})
	}
}

func TestNewSandboxedState_SafeLibsAvailable(t *testing.T) {
	L := newState(t, 0)
	err := L.DoString(`
		local x = math.sqrt(4)
		assert(x == 2.0, "math.sqrt failed")
		local s = string.lower("WITHERED")
		assert(s == "withered", "string.lower failed")
	`)
	assert.NoError(t, err)
}

func TestNewSandboxedState_InstructionLimitExceeded(t *testing.T) {
	L := newState(t, 10)
	assert.Error(t, L.DoString(`while true do end`), "expected instruction limit error")
}

func TestNewSandboxedState_BudgetAllowsBoundedWork(t *testing.T) {
	L := newState(t, 5_000)
	require.NoError(t, L.DoString(`
		local n = 0
		for i = 1, 50 do n = n + i end
		total = n
	`))
	assert.Equal(t, lua.LNumber(1275), L.GetGlobal("total"))
}

func TestProperty_InstructionLimitAlwaysErrors(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		limit := rapid.IntRange(1, 50).Draw(rt, "limit")
		L, release := scripting.NewSandboxedState(limit)
		defer L.Close()
		defer release()
		if err := L.DoString(`while true do end`); err == nil {
			rt.Fatalf("expected error with limit=%d but got nil", limit)
		}
	})
}
