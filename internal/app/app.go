package app

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"taskAssistant/internal/calendar"
	"taskAssistant/internal/calsync"
	"taskAssistant/internal/config"
	"taskAssistant/internal/handlers"
	"taskAssistant/internal/logger"
	"taskAssistant/internal/middleware"
	"taskAssistant/internal/repository/sqlite"
	"taskAssistant/internal/scheduler"
	"taskAssistant/internal/service"
	"taskAssistant/internal/vault"
	"taskAssistant/internal/worker"

	"github.com/go-chi/chi/v5"
)

type App struct {
	config *config.Config
	server *http.Server
	router *chi.Mux

	store *sqlite.Store
	sched *scheduler.Scheduler
	sync  *calsync.Orchestrator

	shutdowns []func() // функции для graceful shutdown
}

func New(cfg *config.Config) *App {
	return &App{
		config:    cfg,
		shutdowns: make([]func(), 0),
	}
}

func (a *App) Init(ctx context.Context) error {
	if err := logger.Init(a.config.Logging.Development); err != nil {
		return fmt.Errorf("инициализация логгера: %w", err)
	}
	a.shutdowns = append(a.shutdowns, func() {
		logger.Info("Завершение работы логгирования...")
		logger.Sync()
	})

	store, err := sqlite.New(a.config.Database.Path, a.config.Database.BusyTimeout)
	if err != nil {
		return fmt.Errorf("открытие хранилища: %w", err)
	}
	a.store = store
	a.shutdowns = append(a.shutdowns, func() { store.Close() })

	tokenVault, err := vault.New(store.DB(), os.Getenv("VAULT_ENCRYPTION_KEY"))
	if err != nil {
		return fmt.Errorf("инициализация хранилища токенов: %w", err)
	}

	cal := calendar.New(store, tokenVault, calendar.Config{
		CalendarID:   a.config.Google.CalendarID,
		Location:     a.config.Location(),
		ClientID:     os.Getenv("GOOGLE_CLIENT_ID"),
		ClientSecret: os.Getenv("GOOGLE_CLIENT_SECRET"),
		Scopes:       a.config.Google.Scopes,
		WindowDays:   a.config.Google.SyncWindowDays,
	})

	jobStore, err := scheduler.NewJobStore(store.DB())
	if err != nil {
		return fmt.Errorf("инициализация таблицы джоб: %w", err)
	}
	a.sched = scheduler.New(jobStore, a.config.Location(), a.config.Scheduler.PoolSize)

	jobs := scheduler.NewJobs(a.sched, store, nil, scheduler.LogNotifier{}, nil, a.config)
	a.sync = calsync.New(cal, store, jobs, a.config.Scheduler.PoolSize, a.config.ReminderLead())
	jobs.BindSyncer(a.sync)
	a.shutdowns = append(a.shutdowns, func() { a.sync.Close() })

	if err := jobs.Register(ctx); err != nil {
		return fmt.Errorf("постановка системных джоб: %w", err)
	}
	a.sched.Start()
	a.shutdowns = append(a.shutdowns, func() { a.sched.Stop() })

	workerCtx, cancel := context.WithCancel(context.Background())
	reminderWorker := worker.NewReminderWorker(store, jobs,
		a.config.OwnerUserID, a.config.ReminderLead(), nil, nil)
	go reminderWorker.Start(workerCtx)
	a.shutdowns = append(a.shutdowns, cancel)

	taskService := service.NewTaskService(store, a.sync)
	noteService := service.NewNoteService(store)

	taskHandler := handlers.NewTaskHandler(&taskService, a.config.OwnerUserID, a.config.Location())
	noteHandler := handlers.NewNoteHandler(&noteService, a.config.OwnerUserID)
	syncHandler := handlers.NewSyncHandler(a.sync, cal, store, a.config.OwnerUserID)

	a.router = a.buildRouter(&taskHandler, &noteHandler, &syncHandler)
	a.server = &http.Server{
		Addr:              a.config.GetServerAddr(),
		Handler:           a.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("Приложение инициализировано")
	return nil
}

func (a *App) buildRouter(taskHandler *handlers.TaskHandler, noteHandler *handlers.NoteHandler, syncHandler *handlers.SyncHandler) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Logging)
	r.Use(middleware.RateLimit(100))

	r.Route("/api", func(r chi.Router) {
		r.Route("/tasks", func(r chi.Router) {
			r.Get("/", taskHandler.GetTasks)   // GET /api/tasks
			r.Post("/", taskHandler.PostTask)  // POST /api/tasks
			r.Get("/agenda", taskHandler.GetAgenda)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", taskHandler.GetTaskByID)       // GET /api/tasks/{id}
				r.Put("/", taskHandler.UpdateTaskByID)    // PUT /api/tasks/{id}
				r.Delete("/", taskHandler.DeleteTaskByID) // DELETE /api/tasks/{id}

				r.Post("/complete", taskHandler.CompleteTaskByID) // POST /api/tasks/{id}/complete
			})
		})

		r.Route("/notes", func(r chi.Router) {
			r.Get("/", noteHandler.GetNotes)  // GET /api/notes
			r.Post("/", noteHandler.PostNote) // POST /api/notes
			r.Get("/search", noteHandler.SearchNotes)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", noteHandler.GetNoteByID)
				r.Delete("/", noteHandler.DeleteNoteByID)
			})
		})

		r.Route("/sync", func(r chi.Router) {
			r.Get("/status", syncHandler.GetStatus)      // GET /api/sync/status
			r.Post("/pull", syncHandler.PostPull)        // POST /api/sync/pull
			r.Post("/backfill", syncHandler.PostBackfill) // POST /api/sync/backfill
		})
	})

	r.Get("/health", syncHandler.HealthCheck)
	return r
}

// Run блокирует до остановки сервера
func (a *App) Run() error {
	logger.Info("Server started")
	if err := a.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http-сервер: %w", err)
	}
	return nil
}

// Shutdown гасит сервер и компоненты в обратном порядке инициализации
func (a *App) Shutdown(ctx context.Context) {
	if a.server != nil {
		if err := a.server.Shutdown(ctx); err != nil {
			logger.Warn("Ошибка остановки http-сервера")
		}
	}
	for i := len(a.shutdowns) - 1; i >= 0; i-- {
		a.shutdowns[i]()
	}
}
