package civic

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	config "github.com/citywatch/backend/config/civic"
	dispatchClient "github.com/citywatch/backend/gateways/civic/clients/dispatch"
	evaluationClient "github.com/citywatch/backend/gateways/civic/clients/evaluation"
	geocodeClient "github.com/citywatch/backend/gateways/civic/clients/geocode"
	transcriptionClient "github.com/citywatch/backend/gateways/civic/clients/transcription"
	"github.com/citywatch/backend/gateways/civic/handler"
	"github.com/citywatch/backend/pkg/gen"
	"github.com/citywatch/backend/pkg/json"
	"github.com/citywatch/backend/services/report/storage"
	"github.com/citywatch/backend/services/report/usecase"
)

type Server struct {
	cfg     *config.Config
	log     *slog.Logger
	handler *handler.Handler
}

func New(cfg *config.Config, log *slog.Logger) (*Server, error) {
	log.Info("creating civic gateway")
	log.Debug("server config",
		slog.Int("port", cfg.Port),
		slog.Duration("draft_ttl", cfg.DraftTTL),
		slog.String("geocode_url", cfg.Geocode.Url),
		slog.String("transcription_url", cfg.Transcription.Url),
		slog.String("evaluation_url", cfg.Evaluation.Url))

	geocoder := geocodeClient.New(&cfg.Geocode, log)
	transcriber := transcriptionClient.New(&cfg.Transcription, log)
	evaluator := evaluationClient.New(&cfg.Evaluation, log)
	dispatcher := dispatchClient.New(&cfg.Dispatch, log)

	store := storage.New(cfg.DraftTTL, gen.UUID())
	uc := usecase.New(store, geocoder, evaluator, dispatcher, transcriber, gen.UUID(), log)
	h := handler.New(uc, cfg, log)

	log.Info("civic gateway created successfully")
	return &Server{
		cfg:     cfg,
		log:     log,
		handler: h,
	}, nil
}

func (s *Server) Start(ctx context.Context) error {
	router := chi.NewRouter()
	router.Use(middleware.Logger)
	router.Use(middleware.URLFormat)
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	router.Route("/api/v1", func(apiRouter chi.Router) {
		apiRouter.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			json.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		})
		apiRouter.Group(func(protected chi.Router) {
			protected.Use(s.handler.SessionGate)
			s.handler.RegisterRoutes(protected)
		})
	})

	addr := fmt.Sprintf(":%d", s.cfg.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	serverErrors := make(chan error, 1)
	go func() {
		s.log.Info("civic gateway started", slog.String("address", srv.Addr))
		err := srv.ListenAndServe()
		if err != nil {
			s.log.Error("ListenAndServe error", slog.String("error", err.Error()))
		}
		serverErrors <- err
	}()

	select {
	case err := <-serverErrors:
		return fmt.Errorf("server error: %w", err)
	case sig := <-shutdown:
		s.log.Info("start shutdown", slog.String("signal", sig.String()))
		return s.stop(srv)
	case <-ctx.Done():
		s.log.Info("closing server due to context cancellation")
		return s.stop(srv)
	}
}

func (s *Server) stop(srv *http.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		s.log.Error("graceful shutdown failed", slog.String("error", err.Error()))
		srv.Close()
		return fmt.Errorf("failed to gracefully shutdown server: %w", err)
	}
	s.log.Info("server stopped cleanly")
	return nil
}
