// files.go — HTTP handlers файловых операций Personal Cloud.
// Upload, create-folder, folders, list-*, download-zip, delete-*.
package handlers

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"github.com/maurocosentino/personalcloud/internal/api/errors"
	"github.com/maurocosentino/personalcloud/internal/api/middleware"
	"github.com/maurocosentino/personalcloud/internal/domain/model"
	"github.com/maurocosentino/personalcloud/internal/service"
	"github.com/maurocosentino/personalcloud/internal/storage/filestore"
	"github.com/maurocosentino/personalcloud/internal/storage/paths"
)

// FilesHandler — обработчик файловых endpoints.
type FilesHandler struct {
	store      *filestore.Store
	listingSvc *service.ListingService
	archiveSvc *service.ArchiveService
	maxUpload  int64
	logger     *slog.Logger
}

// NewFilesHandler создаёт обработчик файловых endpoints.
func NewFilesHandler(
	store *filestore.Store,
	listingSvc *service.ListingService,
	archiveSvc *service.ArchiveService,
	maxUpload int64,
	logger *slog.Logger,
) *FilesHandler {
	return &FilesHandler{
		store:      store,
		listingSvc: listingSvc,
		archiveSvc: archiveSvc,
		maxUpload:  maxUpload,
		logger:     logger,
	}
}

// mensajeResponse — ответ мутирующих операций.
type mensajeResponse struct {
	Mensaje string `json:"mensaje"`
	Nombre  string `json:"nombre,omitempty"`
	Carpeta string `json:"carpeta,omitempty"`
	URL     string `json:"url,omitempty"`
}

// UploadFile обрабатывает POST /api/files/upload.
// Multipart form: file (обязательно), folder (опционально).
// Папка назначения создаётся автоматически, если её нет.
func (h *FilesHandler) UploadFile(w http.ResponseWriter, r *http.Request) {
	subject := middleware.SubjectFromContext(r.Context())

	// Лимит на тело запроса: файл плюс запас на заголовки multipart
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload+(1<<20))

	if err := r.ParseMultipartForm(32 << 20); err != nil { // 32 MB buffer
		errors.InvalidUpload(w, "No se pudo procesar el formulario multipart.")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		errors.InvalidUpload(w, "Debe enviar un archivo en el campo 'file'.")
		return
	}
	defer file.Close()

	if header.Filename == "" {
		errors.InvalidUpload(w, "El archivo no tiene nombre.")
		return
	}
	if header.Size == 0 {
		errors.InvalidUpload(w, "El archivo está vacío.")
		return
	}
	if header.Size > h.maxUpload {
		errors.InvalidUpload(w, fmt.Sprintf("El archivo supera el tamaño máximo permitido (%d bytes).", h.maxUpload))
		return
	}

	// Обрамляющие пробелы в имени папки — не отдельная папка
	folder := strings.TrimSpace(r.FormValue("folder"))

	written, err := h.store.Save(folder, header.Filename, file)
	if err != nil {
		middleware.OperationsTotal.WithLabelValues("upload", "error").Inc()
		if stderrors.Is(err, paths.ErrInvalidPath) {
			errors.InvalidPath(w, "Nombre de archivo o carpeta inválido.")
			return
		}
		h.logger.Error("ошибка сохранения файла",
			slog.String("filename", header.Filename),
			slog.String("folder", folder),
			slog.String("error", err.Error()))
		errors.InternalError(w, "No se pudo guardar el archivo.")
		return
	}

	// Сниффинг реального типа содержимого — только для лога,
	// клиентский контракт определяет тип по расширению
	detected := h.sniffContentType(folder, header.Filename)

	h.logger.Info("файл загружен",
		slog.String("filename", header.Filename),
		slog.String("folder", folderOrRoot(folder)),
		slog.Int64("size", written),
		slog.String("detected_type", detected),
		slog.String("subject", subject))
	middleware.OperationsTotal.WithLabelValues("upload", "success").Inc()

	carpeta := folder
	if carpeta == "" {
		carpeta = model.RootFolderLabel
	}
	writeJSON(w, http.StatusCreated, mensajeResponse{
		Mensaje: "Archivo subido correctamente.",
		Nombre:  header.Filename,
		Carpeta: carpeta,
	})
}

// CreateFolder обрабатывает POST /api/files/create-folder?name=.
func (h *FilesHandler) CreateFolder(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("name")

	err := h.store.CreateFolder(name)
	switch {
	case stderrors.Is(err, paths.ErrInvalidPath):
		errors.InvalidPath(w, "Nombre de carpeta inválido.")
		return
	case stderrors.Is(err, filestore.ErrConflict):
		errors.Conflict(w, "La carpeta ya existe.")
		return
	case err != nil:
		h.logger.Error("ошибка создания папки",
			slog.String("folder", name),
			slog.String("error", err.Error()))
		errors.InternalError(w, "No se pudo crear la carpeta.")
		return
	}

	h.logger.Info("папка создана", slog.String("folder", name))
	middleware.OperationsTotal.WithLabelValues("create_folder", "success").Inc()

	writeJSON(w, http.StatusCreated, mensajeResponse{
		Mensaje: "Carpeta creada correctamente.",
		Carpeta: name,
	})
}

// ListFolders обрабатывает GET /api/files/folders.
// Возвращает отсортированный список имён папок первого уровня.
func (h *FilesHandler) ListFolders(w http.ResponseWriter, _ *http.Request) {
	folders, err := h.store.Folders()
	if err != nil {
		h.logger.Error("ошибка перечисления папок", slog.String("error", err.Error()))
		errors.InternalError(w, "No se pudieron listar las carpetas.")
		return
	}

	writeJSON(w, http.StatusOK, folders)
}

// ListFolderFiles обрабатывает GET /api/files/list-folder.
// Параметр folder обязателен.
func (h *FilesHandler) ListFolderFiles(w http.ResponseWriter, r *http.Request) {
	params, ok := h.listParamsFromQuery(w, r)
	if !ok {
		return
	}
	params.Scope = service.ScopeFolder
	params.Folder = r.URL.Query().Get("folder")
	if params.Folder == "" {
		errors.InvalidPath(w, "Debe indicar una carpeta.")
		return
	}

	h.serveListing(w, params)
}

// ListRootFiles обрабатывает GET /api/files/list-root.
func (h *FilesHandler) ListRootFiles(w http.ResponseWriter, r *http.Request) {
	params, ok := h.listParamsFromQuery(w, r)
	if !ok {
		return
	}
	params.Scope = service.ScopeRoot

	h.serveListing(w, params)
}

// ListAllFiles обрабатывает GET /api/files/list-all.
// Корень плюс все папки первого уровня.
func (h *FilesHandler) ListAllFiles(w http.ResponseWriter, r *http.Request) {
	params, ok := h.listParamsFromQuery(w, r)
	if !ok {
		return
	}
	params.Scope = service.ScopeAll

	h.serveListing(w, params)
}

// DownloadZip обрабатывает GET /api/files/download-zip?folder=.
// Архив собирается во временной директории и удаляется после отдачи.
func (h *FilesHandler) DownloadZip(w http.ResponseWriter, r *http.Request) {
	folder := r.URL.Query().Get("folder")
	if folder == "" {
		errors.InvalidPath(w, "Debe indicar una carpeta.")
		return
	}

	archive, aErr := h.archiveSvc.BuildZip(folder)
	if aErr != nil {
		middleware.OperationsTotal.WithLabelValues("download_zip", "error").Inc()
		errors.WriteError(w, aErr.StatusCode, aErr.Code, aErr.Message)
		return
	}
	defer func() {
		if err := archive.Remove(); err != nil {
			h.logger.Warn("не удалось удалить временный архив",
				slog.String("path", archive.Path),
				slog.String("error", err.Error()))
		}
	}()

	f, err := archive.Open()
	if err != nil {
		h.logger.Error("ошибка открытия архива", slog.String("path", archive.Path), slog.String("error", err.Error()))
		errors.InternalError(w, "No se pudo leer el archivo ZIP.")
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		errors.InternalError(w, "No se pudo leer el archivo ZIP.")
		return
	}

	middleware.OperationsTotal.WithLabelValues("download_zip", "success").Inc()

	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", archive.DownloadName))
	http.ServeContent(w, r, archive.DownloadName, info.ModTime(), f)
}

// DeleteFile обрабатывает DELETE /api/files/delete-file?nombre=&carpeta=.
// Пустая carpeta, "." и "null" означают корень хранилища.
func (h *FilesHandler) DeleteFile(w http.ResponseWriter, r *http.Request) {
	nombre := r.URL.Query().Get("nombre")
	if nombre == "" {
		errors.InvalidParameters(w, "Debe indicar el nombre del archivo.")
		return
	}

	carpeta := r.URL.Query().Get("carpeta")
	if carpeta == "." || carpeta == "null" {
		carpeta = ""
	}

	err := h.store.DeleteFile(carpeta, nombre)
	switch {
	case stderrors.Is(err, paths.ErrInvalidPath):
		errors.InvalidPath(w, "Nombre de archivo o carpeta inválido.")
		return
	case stderrors.Is(err, filestore.ErrNotFound):
		errors.NotFound(w, "Archivo no encontrado.")
		return
	case err != nil:
		h.logger.Error("ошибка удаления файла",
			slog.String("filename", nombre),
			slog.String("folder", carpeta),
			slog.String("error", err.Error()))
		errors.InternalError(w, "No se pudo eliminar el archivo.")
		return
	}

	h.logger.Info("файл удалён",
		slog.String("filename", nombre),
		slog.String("folder", folderOrRoot(carpeta)))
	middleware.OperationsTotal.WithLabelValues("delete_file", "success").Inc()

	writeJSON(w, http.StatusOK, mensajeResponse{Mensaje: "Archivo eliminado correctamente."})
}

// DeleteFolder обрабатывает DELETE /api/files/delete-folder?folder=.
// Удаляет папку рекурсивно вместе с содержимым.
func (h *FilesHandler) DeleteFolder(w http.ResponseWriter, r *http.Request) {
	folder := r.URL.Query().Get("folder")
	if folder == "" {
		errors.InvalidPath(w, "Debe indicar una carpeta.")
		return
	}

	err := h.store.DeleteFolder(folder)
	switch {
	case stderrors.Is(err, paths.ErrInvalidPath):
		errors.InvalidPath(w, "Nombre de carpeta inválido.")
		return
	case stderrors.Is(err, filestore.ErrNotFound):
		errors.NotFound(w, "Carpeta no encontrada.")
		return
	case err != nil:
		h.logger.Error("ошибка удаления папки",
			slog.String("folder", folder),
			slog.String("error", err.Error()))
		errors.InternalError(w, "No se pudo eliminar la carpeta.")
		return
	}

	h.logger.Info("папка удалена", slog.String("folder", folder))
	middleware.OperationsTotal.WithLabelValues("delete_folder", "success").Inc()

	writeJSON(w, http.StatusOK, mensajeResponse{Mensaje: "Carpeta eliminada correctamente."})
}

// listParamsFromQuery разбирает общие query-параметры листинга.
// При ошибке пишет ответ и возвращает ok=false.
func (h *FilesHandler) listParamsFromQuery(w http.ResponseWriter, r *http.Request) (service.ListParams, bool) {
	q := r.URL.Query()
	params := service.ListParams{
		Mime:    q.Get("mime"),
		Ext:     q.Get("ext"),
		SortBy:  q.Get("sort"),
		Order:   q.Get("order"),
		Page:    1,
		BaseURL: requestBaseURL(r),
	}

	if raw := q.Get("page"); raw != "" {
		page, err := strconv.Atoi(raw)
		if err != nil {
			errors.InvalidParameters(w, fmt.Sprintf("El parámetro page no es un número: %q", raw))
			return params, false
		}
		params.Page = page
	}

	if raw := q.Get("pageSize"); raw != "" {
		pageSize, err := strconv.Atoi(raw)
		if err != nil {
			errors.InvalidParameters(w, fmt.Sprintf("El parámetro pageSize no es un número: %q", raw))
			return params, false
		}
		params.PageSize = pageSize
	}

	return params, true
}

// serveListing выполняет листинг и пишет ответ.
func (h *FilesHandler) serveListing(w http.ResponseWriter, params service.ListParams) {
	result, lErr := h.listingSvc.List(params)
	if lErr != nil {
		errors.WriteError(w, lErr.StatusCode, lErr.Code, lErr.Message)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// sniffContentType определяет тип сохранённого файла по содержимому.
func (h *FilesHandler) sniffContentType(folder, filename string) string {
	segments := []string{filename}
	if folder != "" {
		segments = []string{folder, filename}
	}

	fullPath, err := h.store.Resolver().Resolve(segments...)
	if err != nil {
		return ""
	}

	f, err := h.store.Fs().Open(fullPath)
	if err != nil {
		return ""
	}
	defer f.Close()

	mt, err := mimetype.DetectReader(f)
	if err != nil {
		return ""
	}
	return mt.String()
}

// folderOrRoot возвращает метку папки для логов.
func folderOrRoot(folder string) string {
	if folder == "" {
		return model.RootFolderLabel
	}
	return folder
}

// requestBaseURL восстанавливает scheme://host запроса для публичных URL.
func requestBaseURL(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		scheme = proto
	}
	return scheme + "://" + r.Host
}

// writeJSON — вспомогательная функция записи JSON-ответа.
func writeJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(data)
}
