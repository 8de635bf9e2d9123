package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"shopbot/internal/bot"
	"shopbot/internal/logger"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
)

const shutdownTimeout = 10 * time.Second

// Pinger проверяет доступность хранилища для /healthz.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server представляет HTTP-сервер.
type Server struct {
	port    string
	router  *chi.Mux
	handler bot.Handler
	pinger  Pinger
}

// NewServer создает и настраивает новый экземпляр сервера.
func NewServer(port string, handler bot.Handler, pinger Pinger) *Server {
	server := &Server{
		port:    port,
		handler: handler,
		pinger:  pinger,
	}
	server.router = server.setupRouter()
	return server
}

// Run запускает HTTP-сервер и останавливает его при отмене ctx.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%s", s.port),
		Handler:           otelhttp.NewHandler(s.router, "shopbot-http"),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.L.Info("HTTP-сервер запущен", zap.String("addr", srv.Addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		logger.L.Info("HTTP-сервер останавливается")
		return srv.Shutdown(shutdownCtx)
	}
}

// setupRouter настраивает маршрутизацию.
func (s *Server) setupRouter() *chi.Mux {
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(requestLogger)
	router.Use(middleware.Recoverer)

	eventHandler := NewEventHandler(s.handler)
	router.Post("/api/events", eventHandler.Post)
	router.Get("/healthz", NewHealthHandler(s.pinger).Get)
	router.Handle("/metrics", promhttp.Handler())

	return router
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		logger.L.Debug("HTTP-запрос",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())))
	})
}
