package bridge

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/cory-johannsen/totembot/internal/engine/world"
)

// Executor returns the world.Executor that sends commands to the connected
// client. Dispatches are declined when no client is connected, when the
// dispatch rate is exhausted, or when the write fails.
func (s *Server) Executor() world.Executor {
	return executor{s}
}

type executor struct {
	s *Server
}

func (e executor) Cast(spell string, target int64) error {
	return e.s.dispatch(Command{Type: TypeCommand, Kind: "cast", Spell: spell, Target: target})
}

func (e executor) CastAt(spell string, at world.Point) error {
	return e.s.dispatch(Command{Type: TypeCommand, Kind: "cast_at", Spell: spell, At: &at})
}

func (e executor) MoveTo(at world.Point, reason string) error {
	return e.s.dispatch(Command{Type: TypeCommand, Kind: "move", At: &at, Reason: reason})
}

func (e executor) UseFlask(f world.Flask) error {
	slot := f.Slot
	return e.s.dispatch(Command{Type: TypeCommand, Kind: "use_flask", Flask: &slot})
}

func (s *Server) dispatch(cmd Command) error {
	s.mu.Lock()
	sess := s.active
	s.mu.Unlock()
	if sess == nil {
		s.declined.Add(1)
		return fmt.Errorf("%w: no client connected", world.ErrDeclined)
	}
	if !s.limiter.Allow() {
		s.declined.Add(1)
		return fmt.Errorf("%w: dispatch rate exceeded", world.ErrDeclined)
	}
	if err := s.write(sess, cmd); err != nil {
		s.declined.Add(1)
		s.logger.Warn("bridge: command write failed", zap.String("kind", cmd.Kind), zap.Error(err))
		return fmt.Errorf("%w: %v", world.ErrDeclined, err)
	}
	s.commands.Add(1)
	return nil
}
