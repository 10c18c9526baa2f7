// Пакет meta — извлечение метаданных файла: размер, время загрузки,
// MIME-тип по расширению, публичный URL. Без побочных эффектов.
package meta

import (
	"fmt"
	"net/url"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"

	"github.com/maurocosentino/personalcloud/internal/domain/model"
)

// OctetStream — MIME-тип по умолчанию для неизвестных расширений.
const OctetStream = "application/octet-stream"

// mimeByExt — статическая таблица расширение → MIME-тип.
// Ключи в нижнем регистре, с ведущей точкой.
var mimeByExt = map[string]string{
	".7z":   "application/x-7z-compressed",
	".avi":  "video/x-msvideo",
	".bmp":  "image/bmp",
	".css":  "text/css",
	".csv":  "text/csv",
	".doc":  "application/msword",
	".docx": "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	".epub": "application/epub+zip",
	".gif":  "image/gif",
	".gz":   "application/gzip",
	".htm":  "text/html",
	".html": "text/html",
	".ico":  "image/vnd.microsoft.icon",
	".jpeg": "image/jpeg",
	".jpg":  "image/jpeg",
	".js":   "text/javascript",
	".json": "application/json",
	".md":   "text/markdown",
	".mkv":  "video/x-matroska",
	".mp3":  "audio/mpeg",
	".mp4":  "video/mp4",
	".odt":  "application/vnd.oasis.opendocument.text",
	".ogg":  "audio/ogg",
	".pdf":  "application/pdf",
	".png":  "image/png",
	".ppt":  "application/vnd.ms-powerpoint",
	".pptx": "application/vnd.openxmlformats-officedocument.presentationml.presentation",
	".rar":  "application/vnd.rar",
	".svg":  "image/svg+xml",
	".tar":  "application/x-tar",
	".txt":  "text/plain",
	".wav":  "audio/wav",
	".webm": "video/webm",
	".webp": "image/webp",
	".xls":  "application/vnd.ms-excel",
	".xlsx": "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	".xml":  "application/xml",
	".zip":  "application/zip",
}

// TypeByExtension возвращает MIME-тип по расширению имени файла.
// Регистр расширения не учитывается. Неизвестное расширение —
// application/octet-stream.
func TypeByExtension(name string) string {
	ext := strings.ToLower(filepath.Ext(name))
	if mime, ok := mimeByExt[ext]; ok {
		return mime
	}
	return OctetStream
}

// Extractor строит FileRecord из записи файловой системы.
type Extractor struct {
	fs afero.Fs
	// publicPrefix — префикс публичного монтирования хранилища (/Archivos)
	publicPrefix string
}

// NewExtractor создаёт Extractor поверх файловой системы хранилища.
func NewExtractor(fsys afero.Fs, publicPrefix string) *Extractor {
	return &Extractor{
		fs:           fsys,
		publicPrefix: strings.TrimSuffix(publicPrefix, "/"),
	}
}

// Extract читает метаданные файла по абсолютному пути.
// folderLabel — имя содержащей папки, пустая строка для корня.
// baseURL — scheme://host запроса для построения публичного URL.
//
// Если файл исчез между перечислением и чтением (гонка с удалением),
// возвращается ошибка с fs.ErrNotExist внутри — при массовом листинге
// такая запись пропускается, это не фатальная ошибка.
func (e *Extractor) Extract(fullPath, folderLabel, baseURL string) (*model.FileRecord, error) {
	info, err := e.fs.Stat(fullPath)
	if err != nil {
		return nil, fmt.Errorf("файл %s недоступен: %w", fullPath, err)
	}

	name := info.Name()
	return &model.FileRecord{
		Nombre:      name,
		Tamano:      info.Size(),
		FechaSubida: info.ModTime(),
		TipoMime:    TypeByExtension(name),
		Carpeta:     folderLabel,
		URL:         e.publicURL(baseURL, folderLabel, name),
	}, nil
}

// publicURL собирает адрес файла из scheme://host, префикса
// монтирования и относительного пути. Всегда прямые слэши,
// сегменты экранируются.
func (e *Extractor) publicURL(baseURL, folderLabel, name string) string {
	var b strings.Builder
	b.WriteString(strings.TrimSuffix(baseURL, "/"))
	b.WriteString(e.publicPrefix)
	if folderLabel != "" {
		b.WriteString("/")
		b.WriteString(url.PathEscape(folderLabel))
	}
	b.WriteString("/")
	b.WriteString(url.PathEscape(name))
	return b.String()
}
