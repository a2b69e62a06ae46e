package main

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/cory-johannsen/totembot/internal/config"
	"github.com/cory-johannsen/totembot/internal/driver"
	"github.com/cory-johannsen/totembot/internal/engine/curse"
	"github.com/cory-johannsen/totembot/internal/engine/flask"
	"github.com/cory-johannsen/totembot/internal/engine/routine"
	"github.com/cory-johannsen/totembot/internal/engine/totem"
	"github.com/cory-johannsen/totembot/internal/engine/world"
	"github.com/cory-johannsen/totembot/internal/scripting"
)

// routineConfig maps the routine config section onto the engine's settings.
func routineConfig(c config.RoutineConfig) (routine.Config, error) {
	engagement, err := routine.ParseEngagement(c.Engagement)
	if err != nil {
		return routine.Config{}, err
	}
	return routine.Config{
		Totem: totem.Config{
			Spell:                c.TotemSpell,
			MinEffectiveDistance: c.TotemMinDistance,
			SafetyMargin:         c.TotemSafetyMargin,
		},
		Flask: flask.Config{
			Cooldown:      c.FlaskCooldown,
			LifeThreshold: c.LifeThreshold,
			ManaThreshold: c.ManaThreshold,
		},
		Curse: curse.Eligibility{
			ClusterRadius: c.CurseRadius,
			ClusterCount:  c.CurseCount,
		},
		Engagement:    engagement,
		MaxRange:      c.MaxRange,
		TrapSpell:     c.TrapSpell,
		TrapRadius:    c.TrapRadius,
		TrapCount:     c.TrapCount,
		DebuffSpell:   c.DebuffSpell,
		DebuffAura:    c.DebuffAura,
		DebuffRange:   c.DebuffRange,
		FallbackSpell: c.FallbackSpell,
	}, nil
}

// loadCurses reads the catalog and compiles it. mgr may be nil when
// scripting is disabled; catalog entries naming a hook then fail to compile.
func loadCurses(c config.ContentConfig, elig curse.Eligibility, mgr *scripting.Manager, logger *zap.Logger) ([]curse.Registration, error) {
	cat, err := curse.LoadCatalog(c.CurseDir)
	if err != nil {
		return nil, fmt.Errorf("loading curse catalog: %w", err)
	}
	var hooks curse.HookCaller
	if mgr != nil {
		hooks = mgr
	}
	regs, err := curse.NewCompiler(elig, hooks, logger).CompileAll(cat)
	if err != nil {
		return nil, fmt.Errorf("compiling curse catalog: %w", err)
	}
	return regs, nil
}

// loadScripts loads the curse hooks and the shared hooks. It returns nil
// when neither dir is configured.
func loadScripts(c config.ContentConfig, logger *zap.Logger) (*scripting.Manager, error) {
	if c.ScriptDir == "" && c.SharedScriptDir == "" {
		return nil, nil
	}
	mgr := scripting.NewManager(logger)
	if c.SharedScriptDir != "" {
		if err := mgr.LoadGlobal(c.SharedScriptDir, c.InstructionLimit); err != nil {
			mgr.Close()
			return nil, fmt.Errorf("loading shared scripts: %w", err)
		}
	}
	if c.ScriptDir != "" {
		if err := mgr.Load(curse.ScriptKey, c.ScriptDir, c.InstructionLimit); err != nil {
			mgr.Close()
			return nil, fmt.Errorf("loading curse scripts: %w", err)
		}
	}
	return mgr, nil
}

// routineFactory builds and initializes the routine against the spell book
// of the first snapshot.
func routineFactory(cfg routine.Config, exec world.Executor, curses []curse.Registration, logger *zap.Logger) driver.Factory {
	return func(first *world.Snapshot) (driver.Evaluator, error) {
		if first.Spells == nil {
			return nil, fmt.Errorf("first snapshot has no spell book")
		}
		r := routine.New(cfg, first.Spells, exec, curses, time.Now, logger)
		if err := r.Initialize(); err != nil {
			return nil, err
		}
		return r, nil
	}
}
