// health.go — обработчики health endpoints для Kubernetes probes.
package handlers

import (
	"net/http"
	"path/filepath"
	"time"

	"github.com/spf13/afero"

	"github.com/maurocosentino/personalcloud/internal/config"
)

// statusFail — строковая константа для статуса "fail" в health checks.
const statusFail = "fail"

// HealthHandler реализует health endpoints: /health/live, /health/ready.
type HealthHandler struct {
	version string
	fs      afero.Fs
	// storageDir — корень хранилища (проверка записи)
	storageDir string
	// scratchDir — директория временных архивов (проверка записи)
	scratchDir string
}

// NewHealthHandler создаёт обработчик health endpoints.
func NewHealthHandler(fsys afero.Fs, storageDir, scratchDir string) *HealthHandler {
	return &HealthHandler{
		version:    config.Version,
		fs:         fsys,
		storageDir: storageDir,
		scratchDir: scratchDir,
	}
}

// HealthLive обрабатывает GET /health/live.
// Возвращает 200, если процесс жив. Зависимости не проверяет.
func (h *HealthHandler) HealthLive(w http.ResponseWriter, _ *http.Request) {
	resp := map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"version":   h.version,
		"service":   "personal-cloud",
	}

	writeJSON(w, http.StatusOK, resp)
}

// HealthReady обрабатывает GET /health/ready.
// Проверяет доступность на запись корня хранилища и scratch-директории.
func (h *HealthHandler) HealthReady(w http.ResponseWriter, _ *http.Request) {
	overallStatus := "ok"
	httpStatus := http.StatusOK

	storageCheck := h.checkWritable(h.storageDir)
	if storageCheck["status"] != "ok" {
		overallStatus = statusFail
		httpStatus = http.StatusServiceUnavailable
	}

	scratchCheck := h.checkWritable(h.scratchDir)
	if scratchCheck["status"] != "ok" {
		// Без scratch недоступен только download-zip
		if overallStatus != statusFail {
			overallStatus = "degraded"
		}
	}

	resp := map[string]any{
		"status":    overallStatus,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"version":   h.version,
		"service":   "personal-cloud",
		"checks": map[string]any{
			"storage": storageCheck,
			"scratch": scratchCheck,
		},
	}

	writeJSON(w, httpStatus, resp)
}

// checkWritable проверяет доступность директории на запись.
func (h *HealthHandler) checkWritable(dir string) map[string]any {
	testFile := filepath.Join(dir, ".health_check")
	if err := afero.WriteFile(h.fs, testFile, []byte("ok"), 0o600); err != nil {
		return map[string]any{
			"status":  statusFail,
			"message": "Директория недоступна для записи: " + err.Error(),
		}
	}
	_ = h.fs.Remove(testFile)

	return map[string]any{
		"status": "ok",
	}
}
