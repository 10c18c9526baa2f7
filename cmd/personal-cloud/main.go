// Точка входа Personal Cloud — сервиса персонального файлового хранилища.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/afero"

	"github.com/maurocosentino/personalcloud/internal/api/docs"
	"github.com/maurocosentino/personalcloud/internal/api/handlers"
	"github.com/maurocosentino/personalcloud/internal/api/middleware"
	"github.com/maurocosentino/personalcloud/internal/config"
	"github.com/maurocosentino/personalcloud/internal/server"
	"github.com/maurocosentino/personalcloud/internal/service"
	"github.com/maurocosentino/personalcloud/internal/storage/filestore"
	"github.com/maurocosentino/personalcloud/internal/storage/meta"
)

func main() {
	// .env опционален, переменные окружения имеют приоритет
	_ = godotenv.Load()

	// Загрузка конфигурации из переменных окружения
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Ошибка конфигурации: %v\n", err)
		os.Exit(1)
	}

	// Настройка логгера
	logger := config.SetupLogger(cfg)
	logger.Info("Personal Cloud запускается",
		slog.String("version", config.Version),
		slog.Int("port", cfg.Port),
		slog.String("storage_dir", cfg.StorageDir),
		slog.String("public_prefix", cfg.PublicPrefix),
	)

	// --- Инициализация компонентов ---

	// 1. Файловое хранилище
	fsys := afero.NewOsFs()
	store, err := filestore.New(fsys, cfg.StorageDir)
	if err != nil {
		logger.Error("Ошибка инициализации хранилища", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 2. Извлечение метаданных
	extractor := meta.NewExtractor(fsys, cfg.PublicPrefix)

	// 3. Сервисы
	listingSvc := service.NewListingService(store, extractor, logger)

	archiveSvc, err := service.NewArchiveService(store, cfg.ScratchDir, logger)
	if err != nil {
		logger.Error("Ошибка инициализации сервиса архивов", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 4. Фоновая уборка временных архивов
	ctx := context.Background()
	janitor := service.NewJanitorService(fsys, cfg.ScratchDir, cfg.ZipTTL, cfg.JanitorInterval, logger)
	janitor.Start(ctx)
	defer janitor.Stop()

	// 5. Верификатор токенов: внешний IdP через JWKS либо локальный HS256
	var verifier *middleware.Verifier
	if cfg.JWKSURL != "" {
		verifier, err = middleware.NewJWKSVerifier(cfg.JWKSURL, cfg.JWTIssuer, cfg.JWTAudience,
			cfg.JWKSRefreshInterval, cfg.JWTLeeway, logger)
		if err != nil {
			logger.Error("Ошибка инициализации JWKS", slog.String("error", err.Error()))
			os.Exit(1)
		}
		logger.Info("Аутентификация через внешний IdP", slog.String("jwks_url", cfg.JWKSURL))
	} else {
		verifier = middleware.NewStaticVerifier([]byte(cfg.JWTSecret), cfg.JWTIssuer, cfg.JWTAudience,
			cfg.JWTLeeway, logger)
		logger.Info("Аутентификация через локальный HS256")
	}

	// 6. OpenAPI документ
	apiDoc, err := docs.Load()
	if err != nil {
		logger.Error("Ошибка загрузки OpenAPI документа", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 7. HTTP handlers
	deps := server.Deps{
		Files:       handlers.NewFilesHandler(store, listingSvc, archiveSvc, cfg.MaxUploadSize, logger),
		Auth:        handlers.NewAuthHandler(cfg, logger),
		Health:      handlers.NewHealthHandler(fsys, cfg.StorageDir, cfg.ScratchDir),
		System:      handlers.NewSystemHandler(cfg, store, getDiskUsage, logger),
		Docs:        handlers.NewDocsHandler(apiDoc),
		Verifier:    verifier,
		StorageFS:   fsys,
		StorageRoot: cfg.StorageDir,
	}

	// 8. HTTP-сервер
	srv := server.New(cfg, logger, deps)
	if err := srv.Run(); err != nil {
		logger.Error("Ошибка сервера", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
