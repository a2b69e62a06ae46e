// Package main runs the totembot host: it accepts the game client over a
// websocket, drives the combat routine on a ticker and serves status.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/cory-johannsen/totembot/internal/bridge"
	"github.com/cory-johannsen/totembot/internal/config"
	"github.com/cory-johannsen/totembot/internal/driver"
	"github.com/cory-johannsen/totembot/internal/engine/world"
	"github.com/cory-johannsen/totembot/internal/journal"
	"github.com/cory-johannsen/totembot/internal/observability"
	"github.com/cory-johannsen/totembot/internal/server"
	"github.com/cory-johannsen/totembot/internal/status"
	"github.com/cory-johannsen/totembot/internal/storage/postgres"
)

type sinkFunc func(s *world.Snapshot) uint64

func (f sinkFunc) Offer(s *world.Snapshot) uint64 { return f(s) }

func main() {
	start := time.Now()

	configPath := flag.String("config", "configs/dev.yaml", "path to configuration file")
	flag.Parse()

	ctx := context.Background()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	leveled, err := observability.NewLeveledLogger(cfg.Logging)
	if err != nil {
		log.Fatalf("initializing logger: %v", err)
	}
	logger := leveled.Logger
	defer logger.Sync()

	logger.Info("starting totembot",
		zap.String("bridge_addr", cfg.Bridge.Addr()),
		zap.String("status_addr", cfg.Status.HTTPAddr()),
	)

	rcfg, err := routineConfig(cfg.Routine)
	if err != nil {
		logger.Fatal("routine config", zap.Error(err))
	}

	scripts, err := loadScripts(cfg.Content, logger)
	if err != nil {
		logger.Fatal("loading scripts", zap.Error(err))
	}
	if scripts != nil {
		defer scripts.Close()
	}

	curseStart := time.Now()
	curses, err := loadCurses(cfg.Content, rcfg.Curse, scripts, logger)
	if err != nil {
		logger.Fatal("loading curses", zap.Error(err))
	}
	logger.Info("curse catalog loaded",
		zap.Int("curses", len(curses)),
		zap.Bool("scripting", scripts != nil),
		zap.Duration("elapsed", time.Since(curseStart)),
	)

	// The bridge needs the ticker as its sink and the ticker needs the
	// bridge's executor, so the sink is bound after both exist.
	var ticker *driver.Ticker
	br := bridge.NewServer(bridge.Config{
		Addr:          cfg.Bridge.Addr(),
		Path:          cfg.Bridge.Path,
		WriteTimeout:  cfg.Bridge.WriteTimeout,
		DispatchRate:  cfg.Bridge.DispatchRate,
		DispatchBurst: cfg.Bridge.DispatchBurst,
	}, sinkFunc(func(s *world.Snapshot) uint64 { return ticker.Offer(s) }), logger)

	recorder := driver.NewRecorder(br.Executor())
	ticker = driver.New(cfg.Bridge.TickInterval, routineFactory(rcfg, recorder, curses, logger), recorder, logger)

	st := status.New(status.Config{
		HTTPAddr:     cfg.Status.HTTPAddr(),
		GRPCAddr:     cfg.Status.GRPCAddr(),
		LevelHandler: leveled.Level,
	}, func() bool {
		return br.Status().Connected && ticker.Stats().Ready
	}, logger)
	st.Register("bridge", func() any { return br.Status() })
	st.Register("driver", func() any { return ticker.Stats() })

	// Services stop in reverse order of registration; the journal is registered first.
	lifecycle := server.NewLifecycle(logger)

	if cfg.Journal.Enabled {
		pool, err := postgres.NewPool(ctx, cfg.Journal.Database)
		if err != nil {
			logger.Fatal("connecting to database", zap.Error(err))
		}
		defer pool.Close()
		repo := postgres.NewJournalRepository(pool.DB())

		host, _ := os.Hostname()
		session, err := repo.StartSession(ctx, host)
		if err != nil {
			logger.Fatal("starting journal session", zap.Error(err))
		}
		defer func() {
			endCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := repo.EndSession(endCtx, session.ID); err != nil {
				logger.Warn("ending journal session", zap.Error(err))
			}
		}()

		writer := journal.NewWriter(repo, session.ID, cfg.Journal.Buffer, logger)
		ticker.OnPass(writer.Record)
		lifecycle.Add("journal", writer)
		st.Register("journal", func() any { return writer.Stats() })
		st.Register("database", func() any { return pool.Report(ctx, 500*time.Millisecond) })
		logger.Info("decision journal enabled",
			zap.String("session", session.ID.String()),
			zap.String("db_host", cfg.Journal.Database.Host),
		)
	}

	lifecycle.Add("bridge", br)
	lifecycle.Add("ticker", ticker)
	lifecycle.Add("status", st)

	logger.Info("totembot initialized",
		zap.Duration("startup", time.Since(start)),
		zap.Int("services", lifecycle.Len()),
	)

	if err := lifecycle.Run(ctx); err != nil {
		logger.Fatal("server error", zap.Error(err))
	}
}
