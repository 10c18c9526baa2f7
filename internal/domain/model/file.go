// Пакет model — доменные модели Personal Cloud API.
// FileRecord — производное представление файла в хранилище,
// вычисляется при каждом чтении и нигде не персистится.
package model

import (
	"time"
)

// RootFolderLabel — метка корня хранилища в API-ответах.
// Исторический формат оригинального API (испанский).
const RootFolderLabel = "(raíz)"

// FileRecord — метаданные одного файла в хранилище.
// Имена JSON-полей соответствуют контракту оригинального API.
type FileRecord struct {
	// Nombre — имя файла на диске
	Nombre string `json:"nombre"`

	// Tamano — размер файла в байтах
	Tamano int64 `json:"tamaño"`

	// FechaSubida — время загрузки файла (mtime файла на диске)
	FechaSubida time.Time `json:"fechaSubida"`

	// TipoMime — MIME-тип, определённый по расширению файла
	TipoMime string `json:"tipoMime"`

	// Carpeta — имя содержащей папки. Пустая строка означает корень
	// хранилища; в ответах list-all корневые файлы идут без поля,
	// в list-root подставляется RootFolderLabel.
	Carpeta string `json:"carpeta,omitempty"`

	// URL — публичный адрес файла: scheme://host + префикс
	// монтирования + относительный путь (всегда прямые слэши)
	URL string `json:"url"`
}

// ListingResult — результат листинга файлов с пагинацией.
// Вычисляется заново на каждый запрос, не кэшируется.
type ListingResult struct {
	// PaginaActual — номер текущей страницы (с 1)
	PaginaActual int `json:"paginaActual"`

	// TotalPaginas — количество страниц. При pageSize=0 всегда 1.
	TotalPaginas int `json:"totalPaginas"`

	// TotalArchivos — количество файлов после фильтров, до пагинации
	TotalArchivos int `json:"totalArchivos"`

	// Archivos — записи текущей страницы в порядке сортировки
	Archivos []FileRecord `json:"archivos"`
}
