package behavior_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	"pgregory.net/rapid"

	"github.com/cory-johannsen/totembot/internal/engine/behavior"
	"github.com/cory-johannsen/totembot/internal/engine/world"
)

func newBuilder(t testing.TB) (*behavior.Builder, *observer.ObservedLogs) {
	t.Helper()
	core, logs := observer.New(zap.DebugLevel)
	return behavior.NewBuilder(zap.New(core)), logs
}

// counting returns a leaf that reports st and counts its evaluations.
func counting(b *behavior.Builder, name string, st behavior.Status, calls *int) behavior.Node {
	return b.Leaf(name, func(*world.Snapshot) behavior.Status {
		*calls++
		return st
	})
}

func TestPrioritySelector_ReturnsFirstNonFailedAndStops(t *testing.T) {
	b, _ := newBuilder(t)
	var c1, c2, c3 int
	sel := b.Priority("root",
		counting(b, "a", behavior.Failed, &c1),
		counting(b, "b", behavior.Succeeded, &c2),
		counting(b, "c", behavior.Succeeded, &c3),
	)
	assert.Equal(t, behavior.Succeeded, sel.Evaluate(&world.Snapshot{}))
	assert.Equal(t, 1, c1)
	assert.Equal(t, 1, c2)
	assert.Equal(t, 0, c3, "children after the winner must not be evaluated")
}

func TestPrioritySelector_RunningShortCircuits(t *testing.T) {
	b, _ := newBuilder(t)
	var c1, c2 int
	sel := b.Priority("root",
		counting(b, "a", behavior.Running, &c1),
		counting(b, "b", behavior.Succeeded, &c2),
	)
	assert.Equal(t, behavior.Running, sel.Evaluate(&world.Snapshot{}))
	assert.Equal(t, 0, c2)
}

func TestPrioritySelector_AllFailedOrEmpty(t *testing.T) {
	b, _ := newBuilder(t)
	var c int
	assert.Equal(t, behavior.Failed, b.Priority("empty").Evaluate(&world.Snapshot{}))
	sel := b.Priority("root", nil, counting(b, "a", behavior.Failed, &c), nil)
	assert.Equal(t, behavior.Failed, sel.Evaluate(&world.Snapshot{}))
	assert.Equal(t, 1, c)
	assert.Equal(t, 3, sel.Len())
}

func TestPrioritySelector_AppendAddsLowestPriority(t *testing.T) {
	b, _ := newBuilder(t)
	var first, appended int
	sel := b.Priority("buff", counting(b, "a", behavior.Failed, &first))
	sel.Append(counting(b, "curse", behavior.Succeeded, &appended))
	assert.Equal(t, behavior.Succeeded, sel.Evaluate(&world.Snapshot{}))
	assert.Equal(t, 1, first)
	assert.Equal(t, 1, appended)
}

func TestDecorator_GuardFalseSkipsChild(t *testing.T) {
	b, _ := newBuilder(t)
	var c int
	d := b.Decorator("gate", func(*world.Snapshot) bool { return false }, counting(b, "child", behavior.Succeeded, &c))
	assert.Equal(t, behavior.Failed, d.Evaluate(&world.Snapshot{}))
	assert.Equal(t, 0, c)
}

func TestDecorator_GuardTrueDelegates(t *testing.T) {
	b, _ := newBuilder(t)
	var c int
	d := b.Decorator("gate", func(*world.Snapshot) bool { return true }, counting(b, "child", behavior.Running, &c))
	assert.Equal(t, behavior.Running, d.Evaluate(&world.Snapshot{}))
	assert.Equal(t, 1, c)
}

func TestDecorator_GuardPanicDegradesToFailed(t *testing.T) {
	b, logs := newBuilder(t)
	var c int
	d := b.Decorator("gate", func(s *world.Snapshot) bool {
		return s.MainTarget().Alive // nil target dereference
	}, counting(b, "child", behavior.Succeeded, &c))
	assert.Equal(t, behavior.Failed, d.Evaluate(&world.Snapshot{}))
	assert.Equal(t, 0, c)
	assert.Equal(t, 1, logs.FilterMessage("behavior: guard panicked").Len())
}

func TestAction_ErrorIsFailed(t *testing.T) {
	b, _ := newBuilder(t)
	ok := b.Action("ok", func(*world.Snapshot) error { return nil })
	bad := b.Action("bad", func(*world.Snapshot) error { return world.ErrDeclined })
	assert.Equal(t, behavior.Succeeded, ok.Evaluate(&world.Snapshot{}))
	assert.Equal(t, behavior.Failed, bad.Evaluate(&world.Snapshot{}))
}

func TestAction_PanicLetsFallbackRun(t *testing.T) {
	b, logs := newBuilder(t)
	var fallback int
	sel := b.Priority("combat",
		b.Action("explodes", func(*world.Snapshot) error { panic("boom") }),
		counting(b, "fallback", behavior.Succeeded, &fallback),
	)
	assert.Equal(t, behavior.Succeeded, sel.Evaluate(&world.Snapshot{}))
	assert.Equal(t, 1, fallback)
	assert.Equal(t, 1, logs.FilterMessage("behavior: action panicked").Len())
}

func TestSequence_StopsAtFirstFailure(t *testing.T) {
	b, _ := newBuilder(t)
	var c1, c2, c3 int
	seq := b.Sequence("seq",
		counting(b, "a", behavior.Succeeded, &c1),
		counting(b, "b", behavior.Failed, &c2),
		counting(b, "c", behavior.Succeeded, &c3),
	)
	assert.Equal(t, behavior.Failed, seq.Evaluate(&world.Snapshot{}))
	assert.Equal(t, []int{1, 1, 0}, []int{c1, c2, c3})
}

func TestSequence_AllSucceed(t *testing.T) {
	b, _ := newBuilder(t)
	var c1, c2 int
	seq := b.Sequence("seq",
		counting(b, "a", behavior.Succeeded, &c1),
		counting(b, "b", behavior.Succeeded, &c2),
	)
	assert.Equal(t, behavior.Succeeded, seq.Evaluate(&world.Snapshot{}))
	assert.Equal(t, behavior.Succeeded, b.Sequence("empty").Evaluate(&world.Snapshot{}))
}

func TestSequence_NilChildFails(t *testing.T) {
	b, _ := newBuilder(t)
	var c int
	seq := b.Sequence("seq", nil, counting(b, "a", behavior.Succeeded, &c))
	assert.Equal(t, behavior.Failed, seq.Evaluate(&world.Snapshot{}))
	assert.Equal(t, 0, c)
}

func TestAll_ShortCircuits(t *testing.T) {
	calls := 0
	g := behavior.All(
		func(*world.Snapshot) bool { calls++; return false },
		func(*world.Snapshot) bool { calls++; return true },
	)
	assert.False(t, g(&world.Snapshot{}))
	assert.Equal(t, 1, calls)
	assert.True(t, behavior.All()(&world.Snapshot{}))
}

func TestStatus_String(t *testing.T) {
	assert.Equal(t, "failed", behavior.Failed.String())
	assert.Equal(t, "succeeded", behavior.Succeeded.String())
	assert.Equal(t, "running", behavior.Running.String())
	assert.Equal(t, "status(9)", behavior.Status(9).String())
}

func TestProperty_PrioritySelector_FirstNonFailedWins(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		b := behavior.NewBuilder(zap.NewNop())
		results := rapid.SliceOfN(rapid.SampledFrom([]behavior.Status{
			behavior.Failed, behavior.Succeeded, behavior.Running,
		}), 0, 8).Draw(rt, "results")

		calls := make([]int, len(results))
		children := make([]behavior.Node, len(results))
		for i, st := range results {
			i, st := i, st
			children[i] = b.Leaf(fmt.Sprintf("c%d", i), func(*world.Snapshot) behavior.Status {
				calls[i]++
				return st
			})
		}
		got := b.Priority("root", children...).Evaluate(&world.Snapshot{})

		winner := -1
		for i, st := range results {
			if st != behavior.Failed {
				winner = i
				break
			}
		}
		if winner < 0 {
			if got != behavior.Failed {
				rt.Fatalf("all children failed, got %s", got)
			}
			return
		}
		if got != results[winner] {
			rt.Fatalf("got %s, want %s from child %d", got, results[winner], winner)
		}
		for i := winner + 1; i < len(calls); i++ {
			if calls[i] != 0 {
				rt.Fatalf("child %d evaluated after winner %d", i, winner)
			}
		}
	})
}

func TestProperty_Decorator_ChildEvaluatedIffGuard(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		b := behavior.NewBuilder(zap.NewNop())
		pass := rapid.Bool().Draw(rt, "guard")
		var calls int
		d := b.Decorator("gate", func(*world.Snapshot) bool { return pass },
			b.Action("child", func(*world.Snapshot) error { calls++; return errors.New("declined") }))
		got := d.Evaluate(&world.Snapshot{})
		if pass != (calls == 1) {
			rt.Fatalf("guard=%v but child calls=%d", pass, calls)
		}
		if got != behavior.Failed {
			rt.Fatalf("expected Failed (guard false or child declined), got %s", got)
		}
	})
}
