// -----------------------------------------------------------------------
// Application wiring - builds the service graph from configuration and
// owns startup/shutdown ordering.
// -----------------------------------------------------------------------

package app

import (
	"context"
	"fmt"
	"time"

	"github.com/campscout/pipeline/internal/alerts"
	"github.com/campscout/pipeline/internal/common"
	"github.com/campscout/pipeline/internal/health"
	"github.com/campscout/pipeline/internal/interfaces"
	"github.com/campscout/pipeline/internal/services/aggregator"
	"github.com/campscout/pipeline/internal/services/codegen"
	"github.com/campscout/pipeline/internal/services/devflow"
	"github.com/campscout/pipeline/internal/services/events"
	"github.com/campscout/pipeline/internal/services/jobs"
	"github.com/campscout/pipeline/internal/services/registry"
	"github.com/campscout/pipeline/internal/services/scheduler"
	"github.com/campscout/pipeline/internal/services/scraper"
	"github.com/campscout/pipeline/internal/storage/badger"
	"github.com/ternarybob/arbor"
)

// App holds all application components and dependencies.
type App struct {
	Config *common.Config
	Logger arbor.ILogger

	StorageManager interfaces.StorageManager
	EventService   interfaces.EventService

	RegistryService   *registry.Service
	JobService        *jobs.Service
	DevflowService    *devflow.Service
	SchedulerService  *scheduler.Service
	AggregatorService *aggregator.Service
	AlertService      *alerts.Service
}

// New builds the application graph. Storage first, then the event bus, then
// the services in dependency order.
func New(config *common.Config, logger arbor.ILogger) (*App, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	storageManager, err := badger.NewManager(logger, &config.Storage.Badger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	eventService := events.NewService(logger)

	engine := health.NewEngine(health.Config{
		RegenerationThreshold: 3,
		RegenAlertThreshold:   5,
		NotFoundDisableRun:    5,
		RateLimitDelayHours:   config.Jobs.RateLimitDelayHours,
		BackoffCapHours:       config.Jobs.BackoffCapHours,
	})

	alertService := alerts.NewService(storageManager.AlertStorage(), eventService, logger)

	probeTimeout, err := time.ParseDuration(config.Runner.RequestTimeout)
	if err != nil {
		return nil, fmt.Errorf("invalid runner.request_timeout: %w", err)
	}
	runner := scraper.NewExecRunner(scraper.Config{
		Interpreter:  config.Runner.Interpreter,
		UserAgent:    config.Runner.UserAgent,
		ProbeTimeout: probeTimeout,
	}, logger)

	runTimeout, err := time.ParseDuration(config.Jobs.RunTimeout)
	if err != nil {
		return nil, fmt.Errorf("invalid jobs.run_timeout: %w", err)
	}
	jobService := jobs.NewService(storageManager, engine, alertService, eventService, runner, jobs.Options{
		JitterMax:  time.Duration(config.Jobs.DispatchJitterMaxMs) * time.Millisecond,
		RunTimeout: runTimeout,
	}, logger)

	registryService := registry.NewService(storageManager.SourceStorage(), config.Jobs.DefaultFrequencyHours, logger)

	var generator interfaces.CodeGenerator
	if config.Claude.APIKey != "" {
		claudeGen, err := codegen.NewClaudeGenerator(&config.Claude, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize code generator: %w", err)
		}
		generator = claudeGen
	} else {
		logger.Warn().Msg("No Anthropic API key configured; scraper development workflow is unavailable")
	}

	generateTimeout, err := time.ParseDuration(config.Devflow.GenerateTimeout)
	if err != nil {
		return nil, fmt.Errorf("invalid devflow.generate_timeout: %w", err)
	}
	devflowService := devflow.NewService(storageManager, generator, runner, jobService, devflow.Options{
		MaxTestRetries:  config.Devflow.MaxTestRetries,
		SampleLimit:     config.Devflow.SampleLimit,
		GenerateTimeout: generateTimeout,
	}, logger)

	schedulerService := scheduler.NewService(storageManager.SourceStorage(), jobService,
		config.Scheduler.DispatchRate, config.Scheduler.DispatchBurst, logger)

	aggregatorService := aggregator.NewService(storageManager, logger)
	if err := aggregatorService.Subscribe(eventService); err != nil {
		return nil, fmt.Errorf("failed to subscribe aggregator: %w", err)
	}

	return &App{
		Config:            config,
		Logger:            logger,
		StorageManager:    storageManager,
		EventService:      eventService,
		RegistryService:   registryService,
		JobService:        jobService,
		DevflowService:    devflowService,
		SchedulerService:  schedulerService,
		AggregatorService: aggregatorService,
		AlertService:      alertService,
	}, nil
}

// Start loads seed sources and begins the scheduler loop.
func (a *App) Start(ctx context.Context) error {
	if err := badger.LoadSourcesFromFiles(ctx, a.StorageManager.SourceStorage(),
		a.Config.Sources.SeedDir, a.Config.Jobs.DefaultFrequencyHours, a.Logger); err != nil {
		a.Logger.Warn().Err(err).Msg("Failed to load source seeds")
	}

	if a.Config.Scheduler.Enabled {
		if err := a.SchedulerService.Start(a.Config.Scheduler.ScanSchedule); err != nil {
			return fmt.Errorf("failed to start scheduler: %w", err)
		}
	} else {
		a.Logger.Info().Msg("Scheduler disabled by configuration")
	}

	return nil
}

// Close shuts components down in reverse dependency order.
func (a *App) Close() {
	if a.SchedulerService != nil {
		a.SchedulerService.Stop()
	}
	if a.EventService != nil {
		if err := a.EventService.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Event service close failed")
		}
	}
	if a.StorageManager != nil {
		if err := a.StorageManager.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Storage close failed")
		}
	}
}
