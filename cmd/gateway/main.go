package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/mizutanik/kakeibo/internal/api/handlers"
	"github.com/mizutanik/kakeibo/internal/api/middleware"
	"github.com/mizutanik/kakeibo/internal/archive"
	"github.com/mizutanik/kakeibo/internal/chat"
	"github.com/mizutanik/kakeibo/internal/config"
	"github.com/mizutanik/kakeibo/internal/extract"
	"github.com/mizutanik/kakeibo/internal/logger"
	"github.com/mizutanik/kakeibo/internal/presets"
	"github.com/mizutanik/kakeibo/internal/recordstore"
	bqstore "github.com/mizutanik/kakeibo/internal/recordstore/bigquery"
	pgstore "github.com/mizutanik/kakeibo/internal/recordstore/postgres"
	"github.com/mizutanik/kakeibo/internal/session"
	"github.com/mizutanik/kakeibo/internal/tasks"
)

func main() {
	log := logger.New()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	ctx := context.Background()

	// Record store
	var store recordstore.Store
	switch cfg.Store {
	case "bigquery":
		store, err = bqstore.NewStore(ctx, cfg.GCPProject, cfg.BQDataset)
	case "postgres":
		store, err = pgstore.NewStore(ctx, pgstore.Config{
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			Database: cfg.Postgres.Database,
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
			SSLMode:  cfg.Postgres.SSLMode,
		}, log)
	}
	if err != nil {
		log.Fatal().Err(err).Str("store", cfg.Store).Msg("Failed to open record store")
	}
	defer store.Close()

	// Settings cache used by the session resolver
	cache, err := session.OpenCache(cfg.SettingsCache)
	if err != nil {
		log.Warn().Err(err).Str("path", cfg.SettingsCache).Msg("Settings cache unavailable, continuing without it")
		cache = nil
	}

	resolver := session.NewResolver([]byte(cfg.SessionSecret), cache, store, cfg.AuthRevokeURL)
	client := extract.NewClient(cfg.BackendURL, log)

	// Preview archive is optional; without a bucket the task manager
	// falls back to in-memory preview references.
	var previews tasks.PreviewStore
	if cfg.PreviewBucket != "" {
		arc, err := archive.New(ctx, cfg.PreviewBucket)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to open preview archive")
		}
		defer arc.Close()
		previews = arc
	} else {
		log.Warn().Msg("No preview bucket configured, previews stay in memory")
	}

	manager := tasks.NewManager(client, client, previews, log)
	presetSvc := presets.NewService(store, log)
	chatSvc := chat.NewService(client, store, log)

	tasksHandler := handlers.NewTasksHandler(manager, log)
	csvHandler := handlers.NewCSVHandler(client, presetSvc, log)
	presetsHandler := handlers.NewPresetsHandler(presetSvc, csvHandler, log)
	settingsHandler := handlers.NewSettingsHandler(store, cache, log)
	chatHandler := handlers.NewChatHandler(chatSvc, log)
	authHandler := handlers.NewAuthHandler(resolver, log)

	mux := http.NewServeMux()

	mux.HandleFunc("/api/tasks", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			tasksHandler.List(w, r)
		case http.MethodPost:
			tasksHandler.Upload(w, r)
		default:
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	mux.HandleFunc("/api/tasks/analyze", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			tasksHandler.Analyze(w, r)
		} else {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	mux.HandleFunc("/api/tasks/", func(w http.ResponseWriter, r *http.Request) {
		rest := strings.TrimPrefix(r.URL.Path, "/api/tasks/")
		taskID, action, _ := strings.Cut(rest, "/")
		if taskID == "" {
			middleware.WriteError(w, http.StatusBadRequest, "Task ID is required")
			return
		}
		switch {
		case r.Method == http.MethodDelete && action == "":
			tasksHandler.Delete(w, r, taskID)
		case r.Method == http.MethodPost && action == "edit":
			tasksHandler.StartEdit(w, r, taskID)
		default:
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	mux.HandleFunc("/api/review", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			tasksHandler.Current(w, r)
		} else {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	mux.HandleFunc("/api/review/save", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			tasksHandler.Save(w, r)
		} else {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	mux.HandleFunc("/api/review/skip", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			tasksHandler.Skip(w, r)
		} else {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	mux.HandleFunc("/api/csv/file", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			csvHandler.Upload(w, r)
		} else {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	mux.HandleFunc("/api/csv/analyze", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			csvHandler.Analyze(w, r)
		} else {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	mux.HandleFunc("/api/csv/rows", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			csvHandler.Rows(w, r)
		} else {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	mux.HandleFunc("/api/csv/rows/", func(w http.ResponseWriter, r *http.Request) {
		indexStr := strings.TrimPrefix(r.URL.Path, "/api/csv/rows/")
		index, err := strconv.Atoi(indexStr)
		if err != nil {
			middleware.WriteError(w, http.StatusBadRequest, "Row index must be a number")
			return
		}
		switch r.Method {
		case http.MethodPut:
			csvHandler.UpdateRow(w, r, index)
		case http.MethodDelete:
			csvHandler.DeleteRow(w, r, index)
		default:
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	mux.HandleFunc("/api/csv/save", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			csvHandler.Save(w, r)
		case http.MethodGet:
			csvHandler.SaveStatus(w, r)
		default:
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	mux.HandleFunc("/api/presets", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			presetsHandler.List(w, r)
		case http.MethodPost:
			presetsHandler.Create(w, r)
		default:
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	mux.HandleFunc("/api/presets/", func(w http.ResponseWriter, r *http.Request) {
		presetID := strings.TrimPrefix(r.URL.Path, "/api/presets/")
		if presetID == "" {
			middleware.WriteError(w, http.StatusBadRequest, "Preset ID is required")
			return
		}
		switch r.Method {
		case http.MethodPut:
			presetsHandler.Rename(w, r, presetID)
		case http.MethodDelete:
			presetsHandler.Delete(w, r, presetID)
		default:
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	mux.HandleFunc("/api/settings", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			settingsHandler.Get(w, r)
		case http.MethodPut:
			settingsHandler.Put(w, r)
		default:
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	mux.HandleFunc("/api/chat", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			chatHandler.History(w, r)
		case http.MethodPost:
			chatHandler.Ask(w, r)
		default:
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	mux.HandleFunc("/api/logout", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			authHandler.Logout(w, r)
		} else {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	// Health check endpoint stays outside Auth
	health := http.NewServeMux()
	health.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		middleware.WriteJSON(w, http.StatusOK, map[string]string{
			"status": "healthy",
			"time":   time.Now().Format(time.RFC3339),
		})
	})
	health.Handle("/", middleware.Auth(resolver, log)(mux))

	// Apply middleware
	handler := middleware.Recovery(log)(
		middleware.Logger(log)(
			middleware.RequestID(
				middleware.CORS(health),
			),
		),
	)

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.Info().Str("port", cfg.Port).Str("store", cfg.Store).Msg("Starting gateway")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down gateway...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	// Let in-flight receipt analyses finish before the process exits.
	manager.Wait()

	log.Info().Msg("Gateway exited")
}
