package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/praetorlabs/praetor/internal/anomaly"
	"github.com/praetorlabs/praetor/internal/baseline"
	"github.com/praetorlabs/praetor/internal/config"
	"github.com/praetorlabs/praetor/internal/correlation"
	"github.com/praetorlabs/praetor/internal/deception"
	"github.com/praetorlabs/praetor/internal/defense"
	"github.com/praetorlabs/praetor/internal/handlers"
	"github.com/praetorlabs/praetor/internal/ledger"
	"github.com/praetorlabs/praetor/internal/logger"
	"github.com/praetorlabs/praetor/internal/metrics"
	"github.com/praetorlabs/praetor/internal/middleware"
	"github.com/praetorlabs/praetor/internal/persistence"
	"github.com/praetorlabs/praetor/internal/playbook"
	"github.com/praetorlabs/praetor/internal/risk"
	"github.com/praetorlabs/praetor/internal/telemetry"
	"github.com/praetorlabs/praetor/internal/threatintel"
)

const shutdownTimeout = 5 * time.Second

// Builder wires Praetor application dependencies.
type Builder struct {
	cfg            *config.Config
	version        string
	logger         logger.Logger
	fiberApp       *fiber.App
	engine         persistence.Engine
	tracerProvider *telemetry.TracerProvider

	baselines  *baseline.Store
	events     *anomaly.EventStore
	scorer     *anomaly.Scorer
	intel      *threatintel.Store
	defenses   *defense.Store
	aggregator *risk.Aggregator
	incidents  *correlation.IncidentStore
	playbooks  *playbook.Store
	responder  *playbook.Engine
	correlator *correlation.Engine
	forensics  *ledger.Ledger
	traps      *deception.Service

	closers []func()
}

// NewBuilder creates a new application builder.
func NewBuilder(cfg *config.Config, version string) *Builder {
	return &Builder{cfg: cfg, version: version}
}

// Build assembles the Praetor application components.
func (b *Builder) Build(ctx context.Context) (*App, error) {
	b.initLogger()
	b.recordStartupMetrics()
	b.initFiber()
	b.initTracing(ctx)

	if err := b.initPersistence(); err != nil {
		b.cleanupOnError()
		return nil, err
	}

	b.initServices()
	b.initMiddleware()

	if err := b.bootstrapPlaybooks(); err != nil {
		b.cleanupOnError()
		return nil, err
	}

	b.initHandlers()

	return &App{
		cfg:        b.cfg,
		logger:     b.logger,
		fiberApp:   b.fiberApp,
		correlator: b.correlator,
		closers:    b.closers,
	}, nil
}

func (b *Builder) initLogger() {
	b.logger = logger.NewFromConfig(b.cfg.Log.Level, b.cfg.Log.Format)
	logger.SetDefault(b.logger)
}

func (b *Builder) recordStartupMetrics() {
	metrics.BuildInfo.WithLabelValues(b.version, runtime.Version()).Set(1)

	b.logger.Info("Starting Praetor",
		logger.String("version", b.version),
		logger.String("address", b.cfg.Address()),
		logger.String("log_level", b.cfg.Log.Level),
		logger.String("persistence_type", b.cfg.Persistence.Type),
	)
}

func (b *Builder) initFiber() {
	b.fiberApp = fiber.New()
}

func (b *Builder) initTracing(ctx context.Context) {
	tracingCfg := telemetry.TracingConfig{
		Enabled:        b.cfg.Tracing.Enabled,
		Endpoint:       b.cfg.Tracing.Endpoint,
		ServiceName:    b.cfg.Tracing.ServiceName,
		ServiceVersion: b.cfg.Tracing.ServiceVersion,
		Environment:    b.cfg.Tracing.Environment,
		SamplingRatio:  b.cfg.Tracing.SamplingRatio,
		InsecureConn:   b.cfg.Tracing.InsecureConn,
	}

	provider, err := telemetry.InitTracing(ctx, tracingCfg)
	if err != nil {
		b.logger.Error("Failed to initialize tracing", logger.Error(err))
		return
	}

	if b.cfg.Tracing.Enabled {
		b.logger.Info("OpenTelemetry tracing initialized",
			logger.String("endpoint", b.cfg.Tracing.Endpoint),
			logger.String("service_name", b.cfg.Tracing.ServiceName),
		)

		b.addCloser(func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := provider.Shutdown(shutdownCtx); err != nil {
				b.logger.Error("Failed to shutdown tracer provider", logger.Error(err))
			}
		})
	}

	b.tracerProvider = provider
}

func (b *Builder) initPersistence() error {
	engine, err := persistence.NewEngine(persistence.Config{
		Type:       b.cfg.Persistence.Type,
		DataDir:    b.cfg.Persistence.DataDir,
		SyncWrites: b.cfg.Persistence.SyncWrites,
	}, b.logger)
	if err != nil {
		return fmt.Errorf("failed to initialize persistence engine: %w", err)
	}

	b.engine = engine

	b.addCloser(func() {
		if err := engine.Close(); err != nil {
			b.logger.Error("Failed to close persistence engine", logger.Error(err))
		}
	})

	return nil
}

func (b *Builder) initServices() {
	b.baselines = baseline.NewStore(baseline.Config{
		WindowSize: b.cfg.Baseline.WindowSize,
		IPSetSize:  b.cfg.Baseline.IPSetSize,
	}, b.engine, b.logger)

	b.events = anomaly.NewEventStore(b.engine, b.logger)
	b.scorer = anomaly.NewScorer(anomaly.Config{
		MinSamples: b.cfg.Baseline.MinSamples,
	}, b.baselines, b.events, anomaly.NewZScoreDetector(), b.logger)

	b.intel = threatintel.NewStore(b.engine, b.logger)
	b.defenses = defense.NewStore(b.engine, b.logger)
	b.aggregator = risk.NewAggregator(risk.Config{
		MFAThreshold:   b.cfg.Risk.MFAThreshold,
		BlockThreshold: b.cfg.Risk.BlockThreshold,
	}, b.intel, b.logger)

	b.forensics = ledger.New(b.engine, b.logger)

	b.playbooks = playbook.NewStore(b.engine, b.logger)
	b.responder = playbook.NewEngine(b.playbooks, b.defenses, b.logger)

	b.incidents = correlation.NewIncidentStore(b.engine, b.logger)
	b.correlator = correlation.NewEngine(correlation.Config{
		Window:      b.cfg.Correlation.Window,
		MinSeverity: b.cfg.Correlation.MinSeverity,
	}, b.events, b.incidents, b.responder, b.logger)

	b.traps = deception.NewService(b.engine, b.incidents, b.defenses, b.forensics, b.logger)
}

func (b *Builder) initMiddleware() {
	b.fiberApp.Use(middleware.Tracing(b.cfg.Tracing.ServiceName))
	b.fiberApp.Use(middleware.RequestLogging(b.logger))
	b.fiberApp.Use(middleware.MetricsMiddleware())
	b.fiberApp.Use(middleware.DefenseGate(b.defenses))
}

func (b *Builder) bootstrapPlaybooks() error {
	if b.cfg.Playbook.BootstrapDir == "" {
		return nil
	}

	created, err := playbook.Bootstrap(b.cfg.Playbook.BootstrapDir, b.playbooks, b.logger)
	if err != nil {
		return fmt.Errorf("playbook bootstrap failed: %w", err)
	}
	if created > 0 {
		b.logger.Info("Bootstrapped playbooks",
			logger.String("dir", b.cfg.Playbook.BootstrapDir),
			logger.Int("count", created))
	}
	return nil
}

func (b *Builder) initHandlers() {
	behaviorHandler := handlers.NewBehaviorHandler(b.baselines, b.scorer)
	riskHandler := handlers.NewRiskHandler(b.scorer, b.aggregator)
	incidentHandler := handlers.NewIncidentHandler(b.correlator, b.incidents)
	playbookHandler := handlers.NewPlaybookHandler(b.playbooks)
	evidenceHandler := handlers.NewEvidenceHandler(b.forensics)
	defenseHandler := handlers.NewDefenseHandler(b.defenses, b.intel, b.traps)
	healthHandler := handlers.NewHealthHandler(b.engine, b.version)

	b.fiberApp.Post("/observations", behaviorHandler.Ingest)
	b.fiberApp.Post("/score", behaviorHandler.Score)
	b.fiberApp.Post("/risk", riskHandler.Assess)

	b.fiberApp.Post("/correlate/:org", incidentHandler.Correlate)
	b.fiberApp.Get("/incidents/:org", incidentHandler.List)
	b.fiberApp.Get("/incidents/:org/:id", incidentHandler.Get)
	b.fiberApp.Patch("/incidents/:org/:id/status", incidentHandler.Transition)

	b.fiberApp.Post("/playbooks/:org", playbookHandler.Create)
	b.fiberApp.Get("/playbooks/:org", playbookHandler.List)
	b.fiberApp.Patch("/playbooks/:org/:id/active", playbookHandler.SetActive)
	b.fiberApp.Get("/playbooks/:org/executions", playbookHandler.Executions)

	b.fiberApp.Post("/evidence/:org", evidenceHandler.Append)
	b.fiberApp.Get("/evidence/:org/verify", evidenceHandler.Verify)
	b.fiberApp.Get("/evidence/timeline/:incident", evidenceHandler.Timeline)

	b.fiberApp.Post("/intel", defenseHandler.IngestIndicators)
	b.fiberApp.Get("/blocked/:org", defenseHandler.ListBlocked)
	b.fiberApp.Post("/traps/:org", defenseHandler.CreateTrap)
	b.fiberApp.Get("/traps/:org", defenseHandler.ListTraps)
	b.fiberApp.Post("/traps/trigger/:token", defenseHandler.TriggerTrap)

	b.fiberApp.Get("/health", healthHandler.Check)
	b.fiberApp.Get("/health/live", healthHandler.Liveness)
	b.fiberApp.Get("/health/ready", healthHandler.Readiness)

	b.fiberApp.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))
}

func (b *Builder) addCloser(closer func()) {
	b.closers = append(b.closers, closer)
}

func (b *Builder) cleanupOnError() {
	for i := len(b.closers) - 1; i >= 0; i-- {
		b.closers[i]()
	}
}

// App represents a configured Praetor application ready to run.
type App struct {
	cfg            *config.Config
	logger         logger.Logger
	fiberApp       *fiber.App
	correlator     *correlation.Engine
	closers        []func()
	backgroundStop []func()
}

// Run starts the Praetor application and handles graceful shutdown.
func (a *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	a.startBackgroundTasks()

	serverErr := make(chan error, 1)

	go func() {
		serverErr <- a.fiberApp.Listen(a.cfg.Address())
	}()

	select {
	case err := <-serverErr:
		if err != nil {
			a.logger.Error("Failed to start server", logger.Error(err))
			a.stopBackgroundTasks()
			a.runClosers()
			return err
		}
		return nil
	case <-ctx.Done():
	}

	a.logger.Info("Shutting down server...")

	a.stopBackgroundTasks()

	if err := a.fiberApp.Shutdown(); err != nil {
		a.logger.Error("Server forced to shutdown", logger.Error(err))
	}

	a.runClosers()

	if err := <-serverErr; err != nil {
		return err
	}

	a.logger.Info("Server exited gracefully")
	return nil
}

func (a *App) startBackgroundTasks() {
	if a.cfg.Correlation.SweepEnabled && len(a.cfg.Correlation.Orgs) > 0 {
		stop := a.startCorrelationSweep()
		a.backgroundStop = append(a.backgroundStop, stop)
	}
}

func (a *App) stopBackgroundTasks() {
	for i := len(a.backgroundStop) - 1; i >= 0; i-- {
		a.backgroundStop[i]()
	}
	a.backgroundStop = nil
}

// startCorrelationSweep runs periodic correlation passes over every
// registered org. One org failing never stops the sweep.
func (a *App) startCorrelationSweep() func() {
	stop := make(chan struct{})

	go func() {
		ticker := time.NewTicker(a.cfg.Correlation.SweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				for _, org := range a.cfg.Correlation.Orgs {
					result, err := a.correlator.Run(org, correlation.TriggerSweep)
					if err != nil {
						a.logger.Error("Correlation sweep failed",
							logger.String("org", org),
							logger.Error(err))
						continue
					}
					if result.IncidentsCreated > 0 || result.IncidentsUpdated > 0 {
						a.logger.Info("Correlation sweep produced incidents",
							logger.String("org", org),
							logger.Int("created", result.IncidentsCreated),
							logger.Int("updated", result.IncidentsUpdated))
					}
				}
			case <-stop:
				return
			}
		}
	}()

	return func() { close(stop) }
}

func (a *App) runClosers() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}
