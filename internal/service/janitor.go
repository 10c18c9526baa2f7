// janitor.go — фоновая уборка scratch-директории архивов.
//
// Основной владелец scratch-файла — HTTP-слой: он удаляет архив сразу
// после отправки ответа. Janitor подчищает сирот (процесс упал между
// сборкой и выдачей, клиент оборвал соединение) старше заданного TTL.
//
// Запускается как горутина с периодическим тикером (PC_JANITOR_INTERVAL).
package service

import (
	"context"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/spf13/afero"
)

// Prometheus метрики janitor
var (
	// janitorRunsTotal — количество запусков уборки.
	janitorRunsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pc_janitor_runs_total",
		Help: "Общее количество запусков уборки scratch-директории",
	})

	// janitorArchivesDeletedTotal — количество удалённых архивов-сирот.
	janitorArchivesDeletedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pc_janitor_archives_deleted_total",
		Help: "Общее количество временных архивов, удалённых уборкой",
	})
)

// JanitorResult — результат одного запуска уборки.
type JanitorResult struct {
	// DeletedCount — количество удалённых архивов
	DeletedCount int
	// Errors — количество ошибок при удалении
	Errors int
	// Duration — длительность выполнения
	Duration time.Duration
}

// JanitorService — фоновая уборка устаревших временных архивов.
type JanitorService struct {
	fs         afero.Fs
	scratchDir string
	// maxAge — возраст, после которого архив считается сиротой
	maxAge   time.Duration
	interval time.Duration
	logger   *slog.Logger

	mu     sync.Mutex // защита от параллельного запуска RunOnce
	cancel context.CancelFunc
}

// NewJanitorService создаёт сервис уборки scratch-директории.
func NewJanitorService(fsys afero.Fs, scratchDir string, maxAge, interval time.Duration, logger *slog.Logger) *JanitorService {
	return &JanitorService{
		fs:         fsys,
		scratchDir: scratchDir,
		maxAge:     maxAge,
		interval:   interval,
		logger:     logger.With(slog.String("component", "janitor")),
	}
}

// Start запускает фоновую горутину уборки с периодическим тикером.
// Вызывается один раз при старте приложения.
func (j *JanitorService) Start(ctx context.Context) {
	jCtx, cancel := context.WithCancel(ctx)
	j.cancel = cancel

	go j.run(jCtx)

	j.logger.Info("Janitor запущен",
		slog.String("scratch_dir", j.scratchDir),
		slog.String("interval", j.interval.String()),
		slog.String("max_age", j.maxAge.String()),
	)
}

// Stop останавливает фоновый процесс уборки.
func (j *JanitorService) Stop() {
	if j.cancel != nil {
		j.cancel()
	}
	j.logger.Info("Janitor остановлен")
}

// run — основной цикл фоновой горутины.
func (j *JanitorService) run(ctx context.Context) {
	// Первый запуск — сразу после старта: подобрать сирот прошлой жизни
	j.RunOnce()

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			j.RunOnce()
		}
	}
}

// RunOnce выполняет один проход уборки: удаляет архивы с префиксом
// Archivos_ старше maxAge. Чужие файлы scratch-директории не трогает.
func (j *JanitorService) RunOnce() JanitorResult {
	j.mu.Lock()
	defer j.mu.Unlock()

	start := time.Now()
	janitorRunsTotal.Inc()

	var result JanitorResult

	entries, err := afero.ReadDir(j.fs, j.scratchDir)
	if err != nil {
		j.logger.Error("Ошибка чтения scratch-директории",
			slog.String("dir", j.scratchDir),
			slog.String("error", err.Error()),
		)
		result.Errors++
		result.Duration = time.Since(start)
		return result
	}

	cutoff := time.Now().Add(-j.maxAge)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if !strings.HasPrefix(name, archivePrefix) || !strings.HasSuffix(name, ".zip") {
			continue
		}
		if entry.ModTime().After(cutoff) {
			continue
		}

		if err := j.fs.Remove(filepath.Join(j.scratchDir, name)); err != nil {
			j.logger.Warn("Не удалось удалить архив-сироту",
				slog.String("name", name),
				slog.String("error", err.Error()),
			)
			result.Errors++
			continue
		}
		janitorArchivesDeletedTotal.Inc()
		result.DeletedCount++
	}

	result.Duration = time.Since(start)
	if result.DeletedCount > 0 {
		j.logger.Info("Уборка scratch-директории завершена",
			slog.Int("deleted", result.DeletedCount),
			slog.Int("errors", result.Errors),
			slog.String("duration", result.Duration.String()),
		)
	}
	return result
}
