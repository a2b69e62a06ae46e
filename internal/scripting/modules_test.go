package scripting_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"
	"pgregory.net/rapid"

	"github.com/cory-johannsen/totembot/internal/scripting"
)

func TestEngineLog_WritesToLogger(t *testing.T) {
	mgr, logs := newTestManager(t)
	require.NoError(t, mgr.Load("curses", writeTempLua(t, "log.lua", `
		function noisy(facts)
			engine.log("hello from lua " .. facts.name)
			return true
		end
	`), 0))
	require.True(t, mgr.CallPredicate("curses", "noisy", map[string]any{"name": "Zombie"}))
	entries := logs.FilterMessage("scripting: log").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "hello from lua Zombie", entries[0].ContextMap()["msg"])
	assert.Equal(t, "curses", entries[0].ContextMap()["key"])
}

func TestToTable_ConvertsScalars(t *testing.T) {
	L := lua.NewState()
	defer L.Close()
	tbl := scripting.ToTable(L, map[string]any{
		"rarity": "rare",
		"alive":  true,
		"id":     int64(42),
		"health": 0.5,
		"other":  zap.DebugLevel,
	})
	assert.Equal(t, lua.LString("rare"), tbl.RawGetString("rarity"))
	assert.Equal(t, lua.LTrue, tbl.RawGetString("alive"))
	assert.Equal(t, lua.LNumber(42), tbl.RawGetString("id"))
	assert.Equal(t, lua.LNumber(0.5), tbl.RawGetString("health"))
	assert.Equal(t, lua.LString("debug"), tbl.RawGetString("other"))
}

func TestProperty_ToTable_NumbersRoundTrip(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		n := rapid.IntRange(-1_000_000, 1_000_000).Draw(rt, "n")
		L := lua.NewState()
		defer L.Close()
		tbl := scripting.ToTable(L, map[string]any{"n": n})
		if got := tbl.RawGetString("n"); got != lua.LNumber(n) {
			rt.Fatalf("ToTable(%d) stored %v", n, got)
		}
	})
}
