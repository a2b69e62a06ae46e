package routine_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/cory-johannsen/totembot/internal/engine/behavior"
	"github.com/cory-johannsen/totembot/internal/engine/curse"
	"github.com/cory-johannsen/totembot/internal/engine/enginetest"
	"github.com/cory-johannsen/totembot/internal/engine/routine"
	"github.com/cory-johannsen/totembot/internal/engine/world"
)

var targetPos = world.Point{X: 30, Y: 0}

type fixture struct {
	clock *enginetest.Clock
	book  enginetest.SpellBook
	sight *enginetest.Sight
	exec  *enginetest.Executor
	logs  *observer.ObservedLogs
	r     *routine.Routine
}

// newFixture knows every combat spell; the totem is already deployed next to
// the target so placement stays quiet unless a test changes that.
func newFixture(t testing.TB, cfg routine.Config, curses ...curse.Registration) *fixture {
	t.Helper()
	core, logs := observer.New(zap.DebugLevel)
	f := &fixture{
		clock: enginetest.NewClock(),
		book:  enginetest.SpellBook{},
		sight: enginetest.NewSight(),
		exec:  &enginetest.Executor{},
		logs:  logs,
	}
	f.book.Learn(world.SpellInfo{
		Name:       "Flame Totem",
		CastTime:   time.Second,
		Deployable: true,
		Stats:      map[string]int{world.StatTotemsAllowed: 1},
		Deployed:   []world.Deployment{{ID: 100, Position: targetPos, Spell: "Flame Totem"}},
	})
	for _, sp := range []string{"Cold Snap", "Wither", "Default Attack"} {
		f.book.Learn(world.SpellInfo{Name: sp})
	}
	f.r = routine.New(cfg, f.book, f.exec, curses, f.clock.Now, zap.New(core))
	require.NoError(t, f.r.Initialize())
	return f
}

func (f *fixture) snapshot(targets ...world.Candidate) *world.Snapshot {
	return &world.Snapshot{
		Self:    world.Agent{HealthRatio: 1, ManaRatio: 1},
		Targets: targets,
		Sight:   f.sight,
		Spells:  f.book,
	}
}

func mob(id int64, x int) world.Candidate {
	return world.Candidate{ID: id, Position: world.Point{X: x}, Alive: true}
}

func TestCombat_FallbackWhenNothingElseApplies(t *testing.T) {
	f := newFixture(t, routine.Config{})
	s := f.snapshot(mob(1, 30))
	s.Targets[0].Auras = world.AuraSet{{InternalName: "withered"}}
	assert.Equal(t, behavior.Succeeded, f.r.EvaluateCombat(s))
	assert.Equal(t, enginetest.Command{Kind: "cast", Spell: "Default Attack", Target: 1}, f.exec.Last())
}

func TestCombat_RangedDebuffWithinRange(t *testing.T) {
	f := newFixture(t, routine.Config{})
	f.r.EvaluateCombat(f.snapshot(mob(1, 30)))
	assert.Equal(t, "Wither", f.exec.Last().Spell)

	// Beyond debuff range but inside engagement range.
	f.exec.Reset()
	f.book["Flame Totem"] = withDeployment(f.book["Flame Totem"], world.Point{X: 45})
	f.r.EvaluateCombat(f.snapshot(mob(1, 45)))
	assert.Equal(t, "Default Attack", f.exec.Last().Spell)
}

func withDeployment(info world.SpellInfo, at world.Point) world.SpellInfo {
	info.Deployed = []world.Deployment{{ID: 100, Position: at, Spell: info.Name}}
	return info
}

func TestCombat_TrapOnCluster(t *testing.T) {
	f := newFixture(t, routine.Config{})
	f.r.EvaluateCombat(f.snapshot(mob(1, 30), mob(2, 31), mob(3, 35), mob(4, 40)))
	assert.Equal(t, enginetest.Command{Kind: "cast_at", Spell: "Cold Snap", At: targetPos}, f.exec.Last())
}

func TestCombat_TotemBeforeTrap(t *testing.T) {
	f := newFixture(t, routine.Config{})
	f.book["Flame Totem"] = withDeployment(f.book["Flame Totem"], world.Point{X: 0})
	f.r.EvaluateCombat(f.snapshot(mob(1, 30), mob(2, 31), mob(3, 35), mob(4, 40)))
	assert.Equal(t, enginetest.Command{Kind: "cast_at", Spell: "Flame Totem", At: targetPos}, f.exec.Last())
	assert.Equal(t, 1, f.logs.FilterMessage("casting totem").Len())

	// Inside the cast window the trap gets its turn.
	f.clock.Advance(100 * time.Millisecond)
	f.r.EvaluateCombat(f.snapshot(mob(1, 30), mob(2, 31), mob(3, 35), mob(4, 40)))
	assert.Equal(t, "Cold Snap", f.exec.Last().Spell)
}

func TestCombat_MoveToRange(t *testing.T) {
	f := newFixture(t, routine.Config{})
	f.r.EvaluateCombat(f.snapshot(mob(1, 60)))
	assert.Equal(t, enginetest.Command{Kind: "move", At: world.Point{X: 60}, Reason: "range"}, f.exec.Last())
}

func TestCombat_MoveToLineOfSightUsesEngagementStyle(t *testing.T) {
	f := newFixture(t, routine.Config{})
	f.sight.BlockedMelee[targetPos] = true
	f.r.EvaluateCombat(f.snapshot(mob(1, 30)))
	assert.Equal(t, enginetest.Command{Kind: "move", At: targetPos, Reason: "line of sight"}, f.exec.Last())

	ranged := newFixture(t, routine.Config{Engagement: world.LOSRanged})
	ranged.sight.BlockedMelee[targetPos] = true
	ranged.r.EvaluateCombat(ranged.snapshot(mob(1, 30)))
	assert.Equal(t, "Wither", ranged.exec.Last().Spell, "ranged style ignores melee obstructions")
}

// Health 0.65 with one instant life flask: the flask is used before anything
// else and the mana flask does not fire in the same pass.
func TestCombat_FlaskFirst(t *testing.T) {
	f := newFixture(t, routine.Config{})
	s := f.snapshot(mob(1, 60))
	s.Self.HealthRatio = 0.65
	s.Self.ManaRatio = 0.5
	s.Self.Flasks = []world.Flask{
		{Slot: 1, HealthRecover: 1000, Instant: true, CanUse: true},
		{Slot: 2, ManaRecover: 500, Duration: 4 * time.Second, CanUse: true},
	}
	assert.Equal(t, behavior.Succeeded, f.r.EvaluateCombat(s))
	require.Len(t, f.exec.Commands, 1)
	assert.Equal(t, enginetest.Command{Kind: "use_flask", Flask: 1}, f.exec.Last())

	f.r.EvaluateCombat(s)
	assert.Equal(t, "move", f.exec.Last().Kind, "flask cooldown hands the pass to the next branch")
}

func TestCombat_NoTargetOnlyFlasks(t *testing.T) {
	f := newFixture(t, routine.Config{})
	assert.Equal(t, behavior.Failed, f.r.EvaluateCombat(f.snapshot()))
	assert.Empty(t, f.exec.Commands)
}

func TestCombat_DeclinedCastFallsThrough(t *testing.T) {
	f := newFixture(t, routine.Config{})
	f.book["Wither"] = world.SpellInfo{Name: "Wither", CanCast: false}
	f.r.EvaluateCombat(f.snapshot(mob(1, 30)))
	assert.Equal(t, "Default Attack", f.exec.Last().Spell)
}

// panickyBook blows up when the totem spell is looked up.
type panickyBook struct{ enginetest.SpellBook }

func (p panickyBook) Spell(name string) (world.SpellInfo, bool) {
	if name == "Flame Totem" {
		panic("corrupt spell table")
	}
	return p.SpellBook.Spell(name)
}

func TestCombat_PanickingBranchDoesNotStopThePass(t *testing.T) {
	f := newFixture(t, routine.Config{})
	s := f.snapshot(mob(1, 30))
	s.Spells = panickyBook{f.book}
	assert.Equal(t, behavior.Succeeded, f.r.EvaluateCombat(s))
	assert.Equal(t, "Wither", f.exec.Last().Spell)
	assert.Equal(t, 1, f.logs.FilterMessage("behavior: guard panicked").Len())
}

func TestBuff_RegistersKnownCurses(t *testing.T) {
	comp := curse.NewCompiler(curse.Eligibility{}, nil, zap.NewNop())
	regs, err := comp.CompileAll(&curse.Catalog{Entries: []curse.Entry{
		{Spell: "Enfeeble", Aura: "enfeeble"},
		{Spell: "Temporal Chains", Aura: "temporal_chains"},
	}})
	require.NoError(t, err)

	core, logs := observer.New(zap.DebugLevel)
	book := enginetest.SpellBook{}
	book.Learn(world.SpellInfo{Name: "Enfeeble"})
	exec := &enginetest.Executor{}
	r := routine.New(routine.Config{}, book, exec, regs, enginetest.NewClock().Now, zap.New(core))
	require.NoError(t, r.Initialize())

	init := logs.FilterMessage("routine initialized").All()
	require.Len(t, init, 1)
	assert.EqualValues(t, 1, init[0].ContextMap()["curses"])
	assert.EqualValues(t, 1, init[0].ContextMap()["curses_dropped"])

	boss := mob(1, 10)
	boss.Rarity = world.RarityUnique
	s := &world.Snapshot{Targets: []world.Candidate{boss}, Sight: enginetest.NewSight(), Spells: book}
	assert.Equal(t, behavior.Succeeded, r.EvaluateBuff(s))
	assert.Equal(t, enginetest.Command{Kind: "cast", Spell: "Enfeeble", Target: 1}, exec.Last())
}

func TestLifecycle(t *testing.T) {
	book := enginetest.SpellBook{}
	book.Learn(world.SpellInfo{Name: "Default Attack"})
	exec := &enginetest.Executor{}
	r := routine.New(routine.Config{}, book, exec, nil, enginetest.NewClock().Now, zap.NewNop())
	s := &world.Snapshot{Targets: []world.Candidate{mob(1, 10)}, Sight: enginetest.NewSight(), Spells: book}

	assert.Equal(t, behavior.Failed, r.EvaluateCombat(s), "before Initialize")
	require.NoError(t, r.Initialize())
	assert.ErrorIs(t, r.Initialize(), routine.ErrInitialized)
	assert.Equal(t, behavior.Failed, r.EvaluateBuff(s), "empty buff tree")
	assert.Equal(t, behavior.Succeeded, r.EvaluateCombat(s))

	r.Dispose()
	assert.Equal(t, behavior.Failed, r.EvaluateCombat(s))
	assert.ErrorIs(t, r.Initialize(), routine.ErrDisposed)
	r.Dispose()
}

func TestParseEngagement(t *testing.T) {
	k, err := routine.ParseEngagement("Ranged")
	require.NoError(t, err)
	assert.Equal(t, world.LOSRanged, k)
	k, err = routine.ParseEngagement("")
	require.NoError(t, err)
	assert.Equal(t, world.LOSMelee, k)
	_, err = routine.ParseEngagement("psychic")
	assert.Error(t, err)
}

func TestConfig_Defaults(t *testing.T) {
	r := routine.New(routine.Config{}, enginetest.SpellBook{}, &enginetest.Executor{}, nil, time.Now, zap.NewNop())
	cfg := r.Config()
	assert.Equal(t, routine.DefaultMaxRange, cfg.MaxRange)
	assert.Equal(t, routine.DefaultTrapSpell, cfg.TrapSpell)
	assert.Equal(t, routine.DefaultDebuffAura, cfg.DebuffAura)
	assert.Equal(t, routine.DefaultFallbackSpell, cfg.FallbackSpell)
}
