// Пакет server — HTTP-сервер Personal Cloud с TLS и graceful shutdown.
package server

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/afero"

	"github.com/maurocosentino/personalcloud/internal/api/handlers"
	"github.com/maurocosentino/personalcloud/internal/api/middleware"
	"github.com/maurocosentino/personalcloud/internal/config"
)

// Deps — зависимости HTTP-сервера: обработчики, верификатор токенов
// и файловая система публичного хранилища.
type Deps struct {
	Files    *handlers.FilesHandler
	Auth     *handlers.AuthHandler
	Health   *handlers.HealthHandler
	System   *handlers.SystemHandler
	Docs     *handlers.DocsHandler
	Verifier *middleware.Verifier
	// StorageFS и StorageRoot — для статической отдачи под PublicPrefix
	StorageFS   afero.Fs
	StorageRoot string
}

// Server — HTTP-сервер Personal Cloud.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
	cfg        *config.Config
}

// New создаёт HTTP-сервер с настроенными routes и middleware.
func New(cfg *config.Config, logger *slog.Logger, deps Deps) *Server {
	router := chi.NewRouter()

	// Middleware
	router.Use(middleware.RequestLogger(logger))
	router.Use(middleware.MetricsMiddleware(cfg.PublicPrefix))

	// Публичные endpoints
	router.Get("/health/live", deps.Health.HealthLive)
	router.Get("/health/ready", deps.Health.HealthReady)
	router.Handle("/metrics", promhttp.Handler())
	router.Post("/api/auth/login", deps.Auth.Login)
	router.Get("/api/docs/openapi.json", deps.Docs.OpenAPIJSON)

	// Статическая отдача содержимого хранилища под PublicPrefix.
	// Прямые ссылки из листинга, без аутентификации, как в оригинале.
	httpFs := afero.NewHttpFs(deps.StorageFS)
	fileServer := http.FileServer(httpFs.Dir(deps.StorageRoot))
	router.Handle(cfg.PublicPrefix+"/*", http.StripPrefix(cfg.PublicPrefix, fileServer))

	// Защищённые endpoints
	router.Group(func(r chi.Router) {
		r.Use(deps.Verifier.Middleware())

		r.Post("/api/files/upload", deps.Files.UploadFile)
		r.Post("/api/files/create-folder", deps.Files.CreateFolder)
		r.Get("/api/files/folders", deps.Files.ListFolders)
		r.Get("/api/files/list-folder", deps.Files.ListFolderFiles)
		r.Get("/api/files/list-root", deps.Files.ListRootFiles)
		r.Get("/api/files/list-all", deps.Files.ListAllFiles)
		r.Get("/api/files/download-zip", deps.Files.DownloadZip)
		r.Delete("/api/files/delete-file", deps.Files.DeleteFile)
		r.Delete("/api/files/delete-folder", deps.Files.DeleteFolder)

		r.Get("/api/system/info", deps.System.GetSystemInfo)
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// Настройка TLS
	if cfg.TLSCert != "" && cfg.TLSKey != "" {
		srv.TLSConfig = &tls.Config{
			MinVersion: tls.VersionTLS12,
		}
	}

	return &Server{
		httpServer: srv,
		logger:     logger,
		cfg:        cfg,
	}
}

// Handler возвращает корневой http.Handler сервера.
// Используется в интеграционных тестах с httptest.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Run запускает сервер и ожидает сигнала завершения (SIGINT, SIGTERM).
// При получении сигнала выполняется graceful shutdown с настроенным таймаутом.
func (s *Server) Run() error {
	errCh := make(chan error, 1)

	go func() {
		s.logger.Info("HTTP-сервер запущен",
			slog.String("addr", s.httpServer.Addr),
			slog.Bool("tls", s.cfg.TLSCert != ""),
		)

		var err error
		if s.cfg.TLSCert != "" && s.cfg.TLSKey != "" {
			err = s.httpServer.ListenAndServeTLS(s.cfg.TLSCert, s.cfg.TLSKey)
		} else {
			err = s.httpServer.ListenAndServe()
		}

		if err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	// Ожидание сигнала завершения
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		s.logger.Info("Получен сигнал завершения", slog.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("ошибка HTTP-сервера: %w", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	s.logger.Info("Выполняется graceful shutdown...")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("ошибка при graceful shutdown: %w", err)
	}

	s.logger.Info("HTTP-сервер остановлен")
	return nil
}
