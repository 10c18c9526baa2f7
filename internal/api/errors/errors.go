// Пакет errors — конструкторы стандартных ошибок Personal Cloud API.
// Единый формат: {"error": {"code": "...", "message": "..."}}.
// Все HTTP-ответы с ошибками должны использовать WriteError.
// Тексты сообщений для клиента — на испанском (контракт оригинального API).
package errors //nolint:revive // конфликт имени со stdlib допустим внутри internal/api

import (
	"encoding/json"
	"net/http"
)

// Машиночитаемые коды ошибок API.
const (
	// CodeInvalidPath — имя папки/файла не прошло валидацию
	CodeInvalidPath = "INVALID_PATH"
	// CodeInvalidParameters — некорректные параметры пагинации/сортировки
	CodeInvalidParameters = "INVALID_PARAMETERS"
	// CodeInvalidUpload — отсутствует или пустое тело загрузки
	CodeInvalidUpload = "INVALID_UPLOAD"
	// CodeNotFound — файл или папка не существует
	CodeNotFound = "NOT_FOUND"
	// CodeConflict — папка с таким именем уже существует
	CodeConflict = "CONFLICT"
	// CodeUnauthorized — отсутствует или невалиден токен
	CodeUnauthorized = "UNAUTHORIZED"
	// CodeInternalError — неожиданная ошибка файловой системы
	CodeInternalError = "INTERNAL_ERROR"
)

// errorBody — структура тела ответа ошибки.
type errorBody struct {
	Error errorDetail `json:"error"`
}

// errorDetail — детали ошибки.
type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// WriteError записывает ответ ошибки в стандартном формате.
// statusCode — HTTP статус-код, code — машиночитаемый код, message — описание.
func WriteError(w http.ResponseWriter, statusCode int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(errorBody{
		Error: errorDetail{
			Code:    code,
			Message: message,
		},
	})
}

// --- Конструкторы для типичных ошибок ---

// InvalidPath — 400 имя содержит traversal или недопустимые символы.
func InvalidPath(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusBadRequest, CodeInvalidPath, message)
}

// InvalidParameters — 400 некорректные параметры запроса.
func InvalidParameters(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusBadRequest, CodeInvalidParameters, message)
}

// InvalidUpload — 400 отсутствует или пустой файл в запросе.
func InvalidUpload(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusBadRequest, CodeInvalidUpload, message)
}

// NotFound — 404 ресурс не найден.
func NotFound(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusNotFound, CodeNotFound, message)
}

// Conflict — 409 папка уже существует.
func Conflict(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusConflict, CodeConflict, message)
}

// Unauthorized — 401 требуется аутентификация.
func Unauthorized(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusUnauthorized, CodeUnauthorized, message)
}

// InternalError — 500 внутренняя ошибка.
func InternalError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusInternalServerError, CodeInternalError, message)
}
