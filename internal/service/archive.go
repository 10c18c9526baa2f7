// archive.go — сборка ZIP-архива папки для выдачи одним запросом.
package service

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/spf13/afero"

	apierrors "github.com/maurocosentino/personalcloud/internal/api/errors"
	"github.com/maurocosentino/personalcloud/internal/storage/filestore"
)

// archivePrefix — префикс имён архивов в scratch-директории.
// Исторический формат оригинального API.
const archivePrefix = "Archivos_"

// Archive — handle на временный ZIP-файл одной выдачи.
// После отправки ответа вызывающая сторона обязана вызвать Remove.
type Archive struct {
	// Path — абсолютный путь scratch-файла
	Path string
	// DownloadName — предлагаемое имя файла для скачивания
	DownloadName string

	fs afero.Fs
}

// Open открывает архив для чтения. Вызывающий код закрывает файл.
func (a *Archive) Open() (afero.File, error) {
	return a.fs.Open(a.Path)
}

// Remove удаляет scratch-файл архива. Повторный вызов безопасен.
func (a *Archive) Remove() error {
	err := a.fs.Remove(a.Path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("ошибка удаления архива %s: %w", a.Path, err)
	}
	return nil
}

// ArchiveError — ошибка сборки архива с HTTP-кодом.
type ArchiveError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *ArchiveError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// ArchiveService — сборка ZIP-снимков папок в scratch-директории
// (всегда вне корня хранилища). Каждый вызов создаёт независимый
// архив с уникальным именем: параллельные запросы одной папки не
// пересекаются. Изоляции от конкурентных мутаций исходной папки нет.
type ArchiveService struct {
	store *filestore.Store
	// scratchDir — директория временных архивов
	scratchDir string
	logger     *slog.Logger
}

// NewArchiveService создаёт сервис архивов и гарантирует
// существование scratch-директории.
func NewArchiveService(store *filestore.Store, scratchDir string, logger *slog.Logger) (*ArchiveService, error) {
	if err := store.Fs().MkdirAll(scratchDir, 0o750); err != nil {
		return nil, fmt.Errorf("не удалось создать scratch-директорию %s: %w", scratchDir, err)
	}

	return &ArchiveService{
		store:      store,
		scratchDir: scratchDir,
		logger:     logger.With(slog.String("component", "archive_service")),
	}, nil
}

// ScratchDir возвращает директорию временных архивов.
func (s *ArchiveService) ScratchDir() string {
	return s.scratchDir
}

// BuildZip собирает ZIP текущего содержимого папки (один уровень,
// только файлы). Возвращает handle с путём scratch-файла и именем
// для скачивания Archivos_<folder>.zip.
func (s *ArchiveService) BuildZip(folder string) (*Archive, *ArchiveError) {
	dir, err := s.store.Resolver().Resolve(folder)
	if err != nil {
		return nil, &ArchiveError{400, apierrors.CodeInvalidPath, "Debe indicar una carpeta válida."}
	}

	exists, err := afero.DirExists(s.store.Fs(), dir)
	if err != nil {
		s.logger.Error("Ошибка проверки папки",
			slog.String("folder", folder),
			slog.String("error", err.Error()),
		)
		return nil, &ArchiveError{500, apierrors.CodeInternalError, "Error interno del servidor"}
	}
	if !exists {
		return nil, &ArchiveError{404, apierrors.CodeNotFound, "Carpeta no encontrada"}
	}

	zipPath := filepath.Join(s.scratchDir,
		fmt.Sprintf("%s%s_%s.zip", archivePrefix, folder, uuid.New().String()))

	if err := s.writeZip(dir, zipPath); err != nil {
		_ = s.store.Fs().Remove(zipPath)
		s.logger.Error("Ошибка сборки архива",
			slog.String("folder", folder),
			slog.String("error", err.Error()),
		)
		return nil, &ArchiveError{500, apierrors.CodeInternalError, "Error al generar el archivo zip"}
	}

	s.logger.Debug("Архив собран",
		slog.String("folder", folder),
		slog.String("path", zipPath),
	)

	return &Archive{
		Path:         zipPath,
		DownloadName: fmt.Sprintf("%s%s.zip", archivePrefix, folder),
		fs:           s.store.Fs(),
	}, nil
}

// writeZip записывает все файлы директории (без рекурсии) в ZIP.
func (s *ArchiveService) writeZip(dir, zipPath string) error {
	fsys := s.store.Fs()

	entries, err := afero.ReadDir(fsys, dir)
	if err != nil {
		return fmt.Errorf("ошибка чтения папки: %w", err)
	}

	out, err := fsys.Create(zipPath)
	if err != nil {
		return fmt.Errorf("ошибка создания архива: %w", err)
	}
	defer out.Close()

	zw := zip.NewWriter(out)

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		if err := s.addFile(zw, filepath.Join(dir, entry.Name()), entry); err != nil {
			zw.Close()
			return err
		}
	}

	if err := zw.Close(); err != nil {
		return fmt.Errorf("ошибка финализации архива: %w", err)
	}
	return out.Sync()
}

// addFile добавляет один файл в архив. Исчезнувший между ReadDir и
// Open файл пропускается — гонка с удалением принимается, не охраняется.
func (s *ArchiveService) addFile(zw *zip.Writer, fullPath string, info os.FileInfo) error {
	f, err := s.store.Fs().Open(fullPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("ошибка открытия %s: %w", fullPath, err)
	}
	defer f.Close()

	header, err := zip.FileInfoHeader(info)
	if err != nil {
		return fmt.Errorf("ошибка заголовка %s: %w", fullPath, err)
	}
	header.Name = info.Name()
	header.Method = zip.Deflate

	w, err := zw.CreateHeader(header)
	if err != nil {
		return fmt.Errorf("ошибка записи заголовка %s: %w", fullPath, err)
	}

	if _, err := io.Copy(w, f); err != nil {
		return fmt.Errorf("ошибка записи %s в архив: %w", fullPath, err)
	}
	return nil
}
