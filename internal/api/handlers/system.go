// system.go — обработчик GET /api/system/info (информация о хранилище).
package handlers

import (
	stderrors "errors"
	"io/fs"
	"log/slog"
	"net/http"
	"os"

	"github.com/spf13/afero"

	"github.com/maurocosentino/personalcloud/internal/api/errors"
	"github.com/maurocosentino/personalcloud/internal/api/middleware"
	"github.com/maurocosentino/personalcloud/internal/config"
	"github.com/maurocosentino/personalcloud/internal/storage/filestore"
)

// DiskUsage — сведения о дисковом пространстве тома хранилища.
type DiskUsage struct {
	TotalBytes     int64 `json:"total_bytes"`
	UsedBytes      int64 `json:"used_bytes"`
	AvailableBytes int64 `json:"available_bytes"`
}

// DiskUsageFunc возвращает сведения о дисковом пространстве по пути.
// Платформозависимая реализация передаётся из main; nil отключает проверку.
type DiskUsageFunc func(path string) (DiskUsage, error)

// SystemHandler — обработчик системных endpoints.
type SystemHandler struct {
	cfg       *config.Config
	store     *filestore.Store
	diskUsage DiskUsageFunc
	logger    *slog.Logger
}

// NewSystemHandler создаёт обработчик системных endpoints.
func NewSystemHandler(cfg *config.Config, store *filestore.Store, diskUsage DiskUsageFunc, logger *slog.Logger) *SystemHandler {
	return &SystemHandler{
		cfg:       cfg,
		store:     store,
		diskUsage: diskUsage,
		logger:    logger,
	}
}

// systemInfo — ответ GET /api/system/info.
type systemInfo struct {
	Service      string     `json:"service"`
	Version      string     `json:"version"`
	StorageDir   string     `json:"storage_dir"`
	PublicPrefix string     `json:"public_prefix"`
	Folders      int        `json:"folders"`
	Files        int        `json:"files"`
	UsedBytes    int64      `json:"used_bytes"`
	Disk         *DiskUsage `json:"disk,omitempty"`
}

// GetSystemInfo обрабатывает GET /api/system/info.
// Обходит хранилище и возвращает количество папок, файлов и занятый объём.
func (h *SystemHandler) GetSystemInfo(w http.ResponseWriter, _ *http.Request) {
	info := systemInfo{
		Service:      "personal-cloud",
		Version:      config.Version,
		StorageDir:   h.cfg.StorageDir,
		PublicPrefix: h.cfg.PublicPrefix,
	}

	err := afero.Walk(h.store.Fs(), h.store.Root(), func(path string, fi os.FileInfo, err error) error {
		if err != nil {
			// Исчезнувшие во время обхода файлы пропускаем
			return nil
		}
		if fi.IsDir() {
			if path != h.store.Root() {
				info.Folders++
			}
			return nil
		}
		info.Files++
		info.UsedBytes += fi.Size()
		return nil
	})
	if err != nil && !stderrors.Is(err, fs.ErrNotExist) {
		h.logger.Error("ошибка обхода хранилища", slog.String("error", err.Error()))
		errors.InternalError(w, "No se pudo inspeccionar el almacenamiento.")
		return
	}

	middleware.StorageBytes.Set(float64(info.UsedBytes))

	if h.diskUsage != nil {
		du, duErr := h.diskUsage(h.store.Root())
		if duErr != nil {
			h.logger.Warn("не удалось получить данные о диске", slog.String("error", duErr.Error()))
		} else {
			info.Disk = &du
		}
	}

	writeJSON(w, http.StatusOK, info)
}
