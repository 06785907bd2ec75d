// Package main provides the damage simulator binary: it loads damagable
// templates, Lua modifier scripts and scenarios, plays every scenario in its
// own arena and prints a report per scenario.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/cory-johannsen/damagable/internal/config"
	"github.com/cory-johannsen/damagable/internal/game/arena"
	"github.com/cory-johannsen/damagable/internal/game/condition"
	"github.com/cory-johannsen/damagable/internal/game/dice"
	"github.com/cory-johannsen/damagable/internal/game/scenario"
	"github.com/cory-johannsen/damagable/internal/game/template"
	"github.com/cory-johannsen/damagable/internal/journal"
	"github.com/cory-johannsen/damagable/internal/observability"
	"github.com/cory-johannsen/damagable/internal/scripting"
	"github.com/cory-johannsen/damagable/internal/server"
	"github.com/cory-johannsen/damagable/internal/storage/postgres"
)

func main() {
	start := time.Now()

	configPath := flag.String("config", "configs/dev.yaml", "path to configuration file")
	scenariosDir := flag.String("scenarios", "content/scenarios", "path to scenario YAML files directory")
	only := flag.String("only", "", "run only the scenario with this name")
	flag.Parse()

	ctx := context.Background()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	logger, err := observability.NewLogger("damagesim", cfg.Logging)
	if err != nil {
		log.Fatalf("initializing logger: %v", err)
	}
	defer logger.Sync()

	// Scenarios roll from their own streams; this one serves engine.dice in scripts.
	scriptRoller := dice.NewRoller(dice.NewStreamSource(cfg.Simulation.Seed, "scripts"), logger)

	tmpls, err := template.LoadTemplates(cfg.Simulation.TemplatesDir)
	if err != nil {
		logger.Fatal("loading damagable templates", zap.Error(err))
	}
	registry, err := template.NewRegistry(tmpls)
	if err != nil {
		logger.Fatal("indexing damagable templates", zap.Error(err))
	}
	logger.Info("loaded damagable templates", zap.Int("count", registry.Len()))

	var scripts *scripting.Manager
	if cfg.Simulation.ScriptsDir != "" {
		scripts = scripting.NewManager(scriptRoller, logger, cfg.Simulation.InstructionLimit)
		defer scripts.Close()
		names, err := scripts.LoadDir(cfg.Simulation.ScriptsDir)
		if err != nil {
			logger.Fatal("loading lua scripts", zap.Error(err))
		}
		logger.Info("loaded lua scripts", zap.Strings("scripts", names))
	} else {
		logger.Info("scripting disabled")
	}

	var conditions *condition.Registry
	if cfg.Simulation.ConditionsDir != "" {
		conditions, err = condition.LoadDirectory(cfg.Simulation.ConditionsDir)
		if err != nil {
			logger.Fatal("loading conditions", zap.Error(err))
		}
		logger.Info("loaded conditions", zap.Int("count", len(conditions.All())))
	}

	scenarios, err := scenario.LoadScenarios(*scenariosDir)
	if err != nil {
		logger.Fatal("loading scenarios", zap.Error(err))
	}
	scenarios = filter(scenarios, *only)
	if len(scenarios) == 0 {
		logger.Fatal("no scenarios to run", zap.String("dir", *scenariosDir), zap.String("only", *only))
	}

	sink, closeSink := openJournal(ctx, cfg, logger)

	runner := &simulation{
		cfg:        cfg,
		registry:   registry,
		scripts:    scripts,
		conditions: conditions,
		sink:       sink,
		logger:     logger,
		scenarios:  scenarios,
	}
	journalDone := make(chan struct{})

	lifecycle := server.NewLifecycle(logger)
	lifecycle.Add("journal", &server.FuncService{
		StartFn: func() error {
			<-journalDone
			return nil
		},
		StopFn: func() {
			closeSink()
			close(journalDone)
		},
	})
	simCtx, cancelSim := context.WithCancel(ctx)
	lifecycle.Add("simulation", &server.FuncService{
		StartFn: func() error { return runner.run(simCtx) },
		StopFn:  cancelSim,
	})

	logger.Info("simulator initialized",
		zap.Int("scenarios", len(scenarios)),
		zap.Int("parallelism", cfg.Simulation.Parallelism),
		zap.String("journal", cfg.Journal.Sink),
		zap.Duration("startup", time.Since(start)),
	)

	if err := lifecycle.Run(ctx); err != nil {
		logger.Error("simulation failed", zap.Error(err))
		_ = logger.Sync()
		os.Exit(1)
	}
	runner.print(os.Stdout)
}

func filter(scenarios []*scenario.Scenario, only string) []*scenario.Scenario {
	if only == "" {
		return scenarios
	}
	for _, sc := range scenarios {
		if sc.Name == only {
			return []*scenario.Scenario{sc}
		}
	}
	return nil
}

// openJournal builds the configured sink and a function flushing and
// releasing it.
func openJournal(ctx context.Context, cfg config.Config, logger *zap.Logger) (journal.Sink, func()) {
	switch cfg.Journal.Sink {
	case config.SinkNone:
		return journal.Nop{}, func() {}
	case config.SinkLog:
		return journal.NewLogSink(logger.Named("journal")), func() {}
	}

	dbStart := time.Now()
	pool, err := postgres.NewPool(ctx, cfg.Database, "damagesim")
	if err != nil {
		logger.Fatal("connecting to database", zap.Error(err))
	}
	logger.Info("database connected",
		zap.String("host", cfg.Database.Host),
		zap.Duration("elapsed", time.Since(dbStart)),
	)
	repo := postgres.NewEventRepository(pool.DB(), cfg.Journal.BatchSize)
	return repo, func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := repo.Flush(flushCtx); err != nil {
			logger.Error("flushing journal", zap.Error(err), zap.Int("pending", repo.Pending()))
		}
		st := pool.Stats()
		logger.Info("journal closed",
			zap.Int64("acquires", st.Acquires),
			zap.Duration("acquire_wait", st.AcquireWait),
			zap.Int64("empty_acquires", st.EmptyAcquire),
			zap.Int32("conns", st.Total),
		)
		pool.Close()
	}
}

type simulation struct {
	cfg        config.Config
	registry   *template.Registry
	scripts    *scripting.Manager
	conditions *condition.Registry
	sink       journal.Sink
	logger     *zap.Logger
	scenarios  []*scenario.Scenario

	reports []scenario.Report
}

// run plays every scenario in its own arena, at most Parallelism at a time. Each
// scenario rolls from a stream named after it, so a seeded run is reproducible
// whatever the scheduling.
func (s *simulation) run(ctx context.Context) error {
	reports := make([]scenario.Report, len(s.scenarios))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Simulation.Parallelism)
	for i, sc := range s.scenarios {
		g.Go(func() error {
			run := uuid.NewString()
			a, err := arena.New(arena.Options{
				Run:           run,
				Templates:     s.registry,
				Scripts:       s.scripts,
				Conditions:    s.conditions,
				Sink:          s.sink,
				UIRoot:        s.cfg.Simulation.UIRoot,
				FlashDuration: s.cfg.Simulation.FlashDuration,
				Logger:        s.logger,
			})
			if err != nil {
				return fmt.Errorf("creating arena for %q: %w", sc.Name, err)
			}
			defer a.Close()
			// arena.New tags its own logger; scenario.Run adds the scenario name.
			logger := observability.ForRun(s.logger, run)
			roller := dice.NewRoller(dice.NewStreamSource(s.cfg.Simulation.Seed, sc.Name), logger)
			rep, err := scenario.Run(gctx, a, sc, roller, logger)
			reports[i] = rep
			return err
		})
	}
	err := g.Wait()
	s.reports = reports
	return err
}

func (s *simulation) print(w io.Writer) {
	for _, r := range s.reports {
		fmt.Fprint(w, r.Summary())
	}
}
