// -----------------------------------------------------------------------
// Application - wires storage, services, and handlers in dependency order
// -----------------------------------------------------------------------

package app

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/scrutor/internal/common"
	"github.com/ternarybob/scrutor/internal/handlers"
	"github.com/ternarybob/scrutor/internal/interfaces"
	"github.com/ternarybob/scrutor/internal/logs"
	"github.com/ternarybob/scrutor/internal/pipeline"
	"github.com/ternarybob/scrutor/internal/queue"
	"github.com/ternarybob/scrutor/internal/services/agents"
	"github.com/ternarybob/scrutor/internal/services/events"
	"github.com/ternarybob/scrutor/internal/services/extract"
	"github.com/ternarybob/scrutor/internal/services/fetch"
	"github.com/ternarybob/scrutor/internal/services/github"
	"github.com/ternarybob/scrutor/internal/services/llm"
	"github.com/ternarybob/scrutor/internal/services/mailroom"
	"github.com/ternarybob/scrutor/internal/services/report"
	"github.com/ternarybob/scrutor/internal/services/scheduler"
	"github.com/ternarybob/scrutor/internal/status"
	"github.com/ternarybob/scrutor/internal/storage"
)

// staleSweepInterval is how often the stale-job sweep runs. The idle
// threshold itself comes from queue.stale_job_minutes.
const staleSweepInterval = time.Minute

// App holds all application components and dependencies
type App struct {
	Config    *common.Config
	Logger    arbor.ILogger
	ctx       context.Context
	cancelCtx context.CancelFunc

	StorageManager interfaces.StorageManager

	// Event bus and log forwarding
	EventService interfaces.EventService
	LogConsumer  *logs.Consumer

	// Document analysis services
	Providers      *llm.ProviderFactory
	ExtractService *extract.Service
	ReportService  *report.Service
	AgentService   interfaces.AgentService
	Executor       interfaces.PipelineExecutor

	// Job execution and streaming
	QueueManager *queue.Manager
	Broadcaster  *status.Broadcaster

	// Document intake services
	FetchService    *fetch.Service
	GitHubService   *github.Service
	MailroomService *mailroom.Service

	SchedulerService interfaces.SchedulerService

	// HTTP handlers
	APIHandler      *handlers.APIHandler
	WSHandler       *handlers.WebSocketHandler
	StreamHandler   *handlers.StreamHandler
	JobHandler      *handlers.JobHandler
	DocumentHandler *handlers.DocumentHandler
	PipelineHandler *handlers.PipelineHandler
	StatusHandler   *handlers.StatusHandler
}

// New initializes the application with all dependencies
func New(cfg *common.Config, logger arbor.ILogger) (*App, error) {
	app := &App{
		Config: cfg,
		Logger: logger,
	}
	app.ctx, app.cancelCtx = context.WithCancel(context.Background())

	if err := app.initDatabase(); err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	app.EventService = events.NewService(app.Logger)
	if err := events.SubscribeLoggerToAllEvents(app.EventService, app.Logger); err != nil {
		app.Logger.Warn().Err(err).Msg("Failed to subscribe logger to events")
	}

	// The broadcaster must exist before the log consumer: forwarded server
	// logs are delivered to stream clients as system_message events
	app.Broadcaster = status.NewBroadcaster(&cfg.Status, app.Logger)

	// Job-scoped stream connections also watch their job's document for
	// external changes made outside the pipeline
	jobStore := app.StorageManager.JobStorage()
	app.Broadcaster.AttachDocumentBridge(
		app.StorageManager.Persistence(),
		func(ctx context.Context, jobID string) (string, string, bool) {
			job, err := jobStore.GetJob(ctx, jobID)
			if err != nil || job.DocumentID == "" {
				return "", "", false
			}
			return "documents", job.DocumentID, true
		},
	)

	logConsumer := logs.NewConsumer(
		app.StorageManager.JobLogStorage(),
		app.Broadcaster,
		app.Logger,
		cfg.Status.MinLevel,
	)
	if err := logConsumer.Start(); err != nil {
		return nil, fmt.Errorf("failed to start log consumer: %w", err)
	}
	app.LogConsumer = logConsumer

	// Derived loggers carrying a correlation ID batch into this channel;
	// the consumer persists them as job logs and forwards them to streams
	app.Logger.SetChannel("context", logConsumer.GetChannel())

	if err := app.initServices(); err != nil {
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	if err := app.initHandlers(); err != nil {
		return nil, fmt.Errorf("failed to initialize handlers: %w", err)
	}

	app.startStaleJobSweep()

	logger.Info().
		Bool("scheduler_enabled", cfg.Scheduler.Enabled).
		Msg("Application initialization complete")

	return app, nil
}

// initDatabase initializes the storage layer (Badger) and loads pipeline
// definitions from disk
func (a *App) initDatabase() error {
	storageManager, err := storage.NewStorageManager(a.Logger, a.Config)
	if err != nil {
		return fmt.Errorf("failed to create storage manager: %w", err)
	}
	a.StorageManager = storageManager

	a.Logger.Debug().
		Str("storage", "badger").
		Str("path", a.Config.Storage.Badger.Path).
		Msg("Storage layer initialized")

	// Pipeline definitions shipped as files seed the pipeline store on
	// startup; definitions edited through the API take precedence
	if loader, ok := storageManager.(interface {
		LoadPipelinesFromFiles(ctx context.Context, dirPath string) error
	}); ok {
		if err := loader.LoadPipelinesFromFiles(context.Background(), a.Config.Pipelines.DefinitionsDir); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to load pipeline definitions from files")
		}
	}

	return nil
}

// initServices initializes all business services in dependency order:
// LLM providers feed agents, agents feed the pipeline executor, the
// executor feeds the queue manager, and the intake services feed the queue.
func (a *App) initServices() error {
	var err error

	a.Providers = llm.NewProviderFactory(
		&a.Config.Gemini,
		&a.Config.Claude,
		&a.Config.LLM,
		a.StorageManager.KVStorage(),
		a.Logger,
	)

	a.ExtractService = extract.NewService(&a.Config.Extraction, a.Logger)
	a.ReportService = report.NewService(a.Logger)

	agentSvc, err := agents.NewService(
		a.Config,
		a.Providers,
		a.ExtractService,
		a.ReportService,
		a.StorageManager,
		a.Logger,
	)
	if err != nil {
		return fmt.Errorf("failed to initialize agent service: %w", err)
	}
	a.AgentService = agentSvc

	a.Executor = pipeline.NewExecutor(a.AgentService, a.Logger)

	a.QueueManager, err = queue.NewManager(
		a.StorageManager,
		a.Executor,
		a.AgentService,
		a.Broadcaster,
		a.EventService,
		a.Config,
		a.Logger,
	)
	if err != nil {
		return fmt.Errorf("failed to initialize queue manager: %w", err)
	}
	a.QueueManager.Start()
	a.Logger.Debug().Msg("Queue manager initialized")

	a.FetchService, err = fetch.NewService(&a.Config.Fetcher, a.ExtractService, a.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize fetch service: %w", err)
	}

	a.GitHubService = github.NewService(
		&a.Config.GitHub,
		a.StorageManager.DocumentStorage(),
		a.Logger,
	)

	a.MailroomService, err = mailroom.NewService(
		&a.Config.Mail,
		a.ExtractService,
		a.StorageManager.DocumentStorage(),
		a.QueueManager,
		a.Logger,
	)
	if err != nil {
		return fmt.Errorf("failed to initialize mailroom service: %w", err)
	}
	a.MailroomService.Start()

	a.SchedulerService = scheduler.NewService(
		a.StorageManager.PipelineStorage(),
		a.StorageManager.DocumentStorage(),
		a.QueueManager,
		a.Logger,
	)
	if a.Config.Scheduler.Enabled {
		if err := a.SchedulerService.Start(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to start scheduler service")
		} else {
			a.Logger.Debug().Msg("Scheduler service started")
		}
	}

	return nil
}

// initHandlers initializes all HTTP handlers
func (a *App) initHandlers() error {
	a.APIHandler = handlers.NewAPIHandler(a.EventService)
	a.WSHandler = handlers.NewWebSocketHandler(a.Broadcaster, a.Logger)
	a.StreamHandler = handlers.NewStreamHandler(a.Broadcaster, a.Logger)

	a.JobHandler = handlers.NewJobHandler(
		a.QueueManager,
		a.StorageManager.JobLogStorage(),
		a.Logger,
	)

	a.DocumentHandler = handlers.NewDocumentHandler(
		a.StorageManager.DocumentStorage(),
		a.ExtractService,
		a.FetchService,
		a.GitHubService,
		a.Config.Extraction.MaxUploadBytes,
		a.Logger,
	)

	a.PipelineHandler = handlers.NewPipelineHandler(
		a.StorageManager.PipelineStorage(),
		a.SchedulerService,
		a.Logger,
	)

	a.StatusHandler = handlers.NewStatusHandler(
		a.QueueManager,
		a.StorageManager.DocumentStorage(),
		a.Broadcaster,
		a.SchedulerService,
		a.Logger,
	)

	return nil
}

// startStaleJobSweep periodically fails processing jobs orphaned by a
// crash mid-run
func (a *App) startStaleJobSweep() {
	common.SafeGo(a.Logger, "app.staleJobSweep", func() {
		ticker := time.NewTicker(staleSweepInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				a.QueueManager.FailStaleJobs(a.ctx)
			case <-a.ctx.Done():
				return
			}
		}
	})
}

// Close closes all application resources in reverse dependency order
func (a *App) Close() error {
	if a.cancelCtx != nil {
		a.cancelCtx()
	}

	if a.SchedulerService != nil && a.SchedulerService.IsRunning() {
		if err := a.SchedulerService.Stop(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to stop scheduler service")
		}
	}

	if a.MailroomService != nil {
		a.MailroomService.Stop()
	}

	if a.QueueManager != nil {
		a.QueueManager.Stop()
	}

	if a.AgentService != nil {
		if err := a.AgentService.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to close agent service")
		}
	}

	if a.Providers != nil {
		if err := a.Providers.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to close LLM providers")
		}
	}

	if a.LogConsumer != nil {
		if err := a.LogConsumer.Stop(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to stop log consumer")
		}
	}

	if a.Broadcaster != nil {
		if err := a.Broadcaster.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to close status broadcaster")
		}
	}

	if a.EventService != nil {
		if err := a.EventService.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to close event service")
		}
	}

	if a.StorageManager != nil {
		if err := a.StorageManager.Close(); err != nil {
			return fmt.Errorf("failed to close storage: %w", err)
		}
		a.Logger.Info().Msg("Storage closed")
	}

	return nil
}
