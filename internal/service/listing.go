// Пакет service — бизнес-логика Personal Cloud API.
// listing.go — движок листинга: перечисление файлов области,
// фильтры MIME/расширения, сортировка, пагинация.
package service

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/afero"

	apierrors "github.com/maurocosentino/personalcloud/internal/api/errors"
	"github.com/maurocosentino/personalcloud/internal/domain/model"
	"github.com/maurocosentino/personalcloud/internal/storage/filestore"
	"github.com/maurocosentino/personalcloud/internal/storage/meta"
)

// MaxPageSize — верхняя граница размера страницы.
const MaxPageSize = 1000

// Scope — область перечисления файлов.
type Scope int

const (
	// ScopeRoot — только файлы непосредственно в корне хранилища
	ScopeRoot Scope = iota
	// ScopeFolder — файлы одной именованной папки
	ScopeFolder
	// ScopeAll — корень плюс все папки первого уровня
	ScopeAll
)

// Ключи сортировки листинга.
const (
	SortByName = "name"
	SortBySize = "size"
	SortByDate = "date"
)

// ListParams — параметры запроса листинга.
type ListParams struct {
	// Scope — область перечисления
	Scope Scope
	// Folder — имя папки (только для ScopeFolder)
	Folder string
	// Mime — точный MIME-фильтр, без учёта регистра (опционально)
	Mime string
	// Ext — фильтр расширения, с точкой или без (опционально)
	Ext string
	// SortBy — ключ сортировки: name, size, date. Пустой — порядок ФС.
	SortBy string
	// Order — направление: asc (по умолчанию) или desc
	Order string
	// Page — номер страницы, с 1
	Page int
	// PageSize — размер страницы; 0 — все записи без пагинации
	PageSize int
	// BaseURL — scheme://host запроса для публичных URL записей
	BaseURL string
}

// ListError — ошибка листинга с HTTP-кодом.
type ListError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *ListError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// ListingService — движок листинга файлов. Состояния между запросами
// не хранит: каждый вызов перечисляет файловую систему заново.
type ListingService struct {
	store     *filestore.Store
	extractor *meta.Extractor
	logger    *slog.Logger
}

// NewListingService создаёт движок листинга.
func NewListingService(store *filestore.Store, extractor *meta.Extractor, logger *slog.Logger) *ListingService {
	return &ListingService{
		store:     store,
		extractor: extractor,
		logger:    logger.With(slog.String("component", "listing_service")),
	}
}

// List выполняет листинг: область → фильтры → сортировка → пагинация.
//
// Порядок:
//  1. Валидация параметров до обращения к ФС
//  2. Резолвинг области (папки, которой нет — NotFound)
//  3. Перечисление с извлечением метаданных, исчезнувшие файлы пропускаются
//  4. Фильтры MIME и расширения (конъюнкция)
//  5. Сортировка, если запрошена
//  6. Пагинация: totalPaginas = ceil(total/pageSize), страница за
//     пределами — пустой список, не ошибка
func (s *ListingService) List(params ListParams) (*model.ListingResult, *ListError) {
	if lErr := validateListParams(params); lErr != nil {
		return nil, lErr
	}

	records, lErr := s.enumerate(params)
	if lErr != nil {
		return nil, lErr
	}

	records = applyFilters(records, params.Mime, params.Ext)
	applySort(records, params.SortBy, params.Order)

	return paginate(records, params.Page, params.PageSize), nil
}

// validateListParams проверяет параметры пагинации и сортировки.
func validateListParams(params ListParams) *ListError {
	if params.Page < 1 {
		return &ListError{400, apierrors.CodeInvalidParameters,
			fmt.Sprintf("El parámetro page debe ser >= 1, recibido %d", params.Page)}
	}
	if params.PageSize < 0 || params.PageSize > MaxPageSize {
		return &ListError{400, apierrors.CodeInvalidParameters,
			fmt.Sprintf("El parámetro pageSize debe estar entre 0 y %d, recibido %d", MaxPageSize, params.PageSize)}
	}

	switch params.SortBy {
	case "", SortByName, SortBySize, SortByDate:
	default:
		return &ListError{400, apierrors.CodeInvalidParameters,
			fmt.Sprintf("Clave de ordenación inválida: %q", params.SortBy)}
	}

	switch params.Order {
	case "", "asc", "desc":
	default:
		return &ListError{400, apierrors.CodeInvalidParameters,
			fmt.Sprintf("Dirección de ordenación inválida: %q", params.Order)}
	}

	return nil
}

// enumerate перечисляет файлы области и извлекает записи.
func (s *ListingService) enumerate(params ListParams) ([]model.FileRecord, *ListError) {
	switch params.Scope {
	case ScopeRoot:
		records, err := s.collectDir(s.store.Root(), "", params.BaseURL)
		if err != nil {
			return nil, err
		}
		// Корневой листинг помечается исторической меткой "(raíz)".
		for i := range records {
			records[i].Carpeta = model.RootFolderLabel
		}
		return records, nil

	case ScopeFolder:
		dir, err := s.store.Resolver().Resolve(params.Folder)
		if err != nil {
			return nil, &ListError{400, apierrors.CodeInvalidPath,
				"Debe indicar una carpeta válida."}
		}
		exists, exErr := afero.DirExists(s.store.Fs(), dir)
		if exErr != nil {
			s.logger.Error("Ошибка проверки папки",
				slog.String("folder", params.Folder),
				slog.String("error", exErr.Error()),
			)
			return nil, &ListError{500, apierrors.CodeInternalError, "Error interno del servidor"}
		}
		if !exists {
			return nil, &ListError{404, apierrors.CodeNotFound, "Carpeta no encontrada"}
		}
		return s.collectDir(dir, params.Folder, params.BaseURL)

	case ScopeAll:
		// Файлы корня без метки папки, затем каждая папка первого уровня.
		records, lErr := s.collectDir(s.store.Root(), "", params.BaseURL)
		if lErr != nil {
			return nil, lErr
		}

		folders, err := s.store.Folders()
		if err != nil {
			s.logger.Error("Ошибка перечисления папок", slog.String("error", err.Error()))
			return nil, &ListError{500, apierrors.CodeInternalError, "Error interno del servidor"}
		}
		for _, folder := range folders {
			dir := filepath.Join(s.store.Root(), folder)
			folderRecords, lErr := s.collectDir(dir, folder, params.BaseURL)
			if lErr != nil {
				return nil, lErr
			}
			records = append(records, folderRecords...)
		}
		return records, nil

	default:
		return nil, &ListError{400, apierrors.CodeInvalidParameters,
			fmt.Sprintf("Ámbito de listado desconocido: %d", params.Scope)}
	}
}

// collectDir собирает записи файлов одной директории.
// Поддиректории пропускаются (модель не имеет вложенности глубже
// одного уровня); исчезнувшие между ReadDir и Stat файлы — тоже.
func (s *ListingService) collectDir(dir, folderLabel, baseURL string) ([]model.FileRecord, *ListError) {
	entries, err := afero.ReadDir(s.store.Fs(), dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			// Папка исчезла между резолвингом и чтением
			return nil, &ListError{404, apierrors.CodeNotFound, "Carpeta no encontrada"}
		}
		s.logger.Error("Ошибка чтения директории",
			slog.String("dir", dir),
			slog.String("error", err.Error()),
		)
		return nil, &ListError{500, apierrors.CodeInternalError, "Error interno del servidor"}
	}

	records := make([]model.FileRecord, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		rec, exErr := s.extractor.Extract(filepath.Join(dir, entry.Name()), folderLabel, baseURL)
		if exErr != nil {
			if errors.Is(exErr, fs.ErrNotExist) {
				continue
			}
			s.logger.Warn("Файл пропущен при листинге",
				slog.String("name", entry.Name()),
				slog.String("error", exErr.Error()),
			)
			continue
		}
		records = append(records, *rec)
	}
	return records, nil
}

// applyFilters применяет MIME-фильтр, затем фильтр расширения.
// Оба опциональны и конъюнктивны, сравнение без учёта регистра.
func applyFilters(records []model.FileRecord, mimeFilter, extFilter string) []model.FileRecord {
	if mimeFilter == "" && extFilter == "" {
		return records
	}

	ext := normalizeExt(extFilter)

	filtered := records[:0]
	for _, rec := range records {
		if mimeFilter != "" && !strings.EqualFold(rec.TipoMime, mimeFilter) {
			continue
		}
		if ext != "" && strings.ToLower(filepath.Ext(rec.Nombre)) != ext {
			continue
		}
		filtered = append(filtered, rec)
	}
	return filtered
}

// normalizeExt приводит фильтр расширения к виду ".ext" в нижнем регистре.
func normalizeExt(ext string) string {
	if ext == "" {
		return ""
	}
	ext = strings.ToLower(strings.TrimSpace(ext))
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return ext
}

// applySort сортирует записи по ключу. Пустой ключ оставляет порядок
// перечисления (стабильный в рамках одного вызова).
func applySort(records []model.FileRecord, sortBy, order string) {
	if sortBy == "" {
		return
	}

	var less func(a, b model.FileRecord) bool
	switch sortBy {
	case SortByName:
		less = func(a, b model.FileRecord) bool { return a.Nombre < b.Nombre }
	case SortBySize:
		less = func(a, b model.FileRecord) bool { return a.Tamano < b.Tamano }
	case SortByDate:
		less = func(a, b model.FileRecord) bool { return a.FechaSubida.Before(b.FechaSubida) }
	default:
		return
	}

	if order == "desc" {
		asc := less
		less = func(a, b model.FileRecord) bool { return asc(b, a) }
	}

	sort.SliceStable(records, func(i, j int) bool { return less(records[i], records[j]) })
}

// paginate вычисляет итоговый конверт листинга.
// pageSize == 0 — все записи, totalPaginas = 1.
func paginate(records []model.FileRecord, page, pageSize int) *model.ListingResult {
	total := len(records)

	if pageSize == 0 {
		return &model.ListingResult{
			PaginaActual:  page,
			TotalPaginas:  1,
			TotalArchivos: total,
			Archivos:      records,
		}
	}

	totalPages := (total + pageSize - 1) / pageSize
	if totalPages < 1 {
		totalPages = 1
	}

	start := (page - 1) * pageSize
	end := start + pageSize
	if start > total {
		start = total
	}
	if end > total {
		end = total
	}

	items := records[start:end]
	if items == nil {
		items = []model.FileRecord{}
	}

	return &model.ListingResult{
		PaginaActual:  page,
		TotalPaginas:  totalPages,
		TotalArchivos: total,
		Archivos:      items,
	}
}
