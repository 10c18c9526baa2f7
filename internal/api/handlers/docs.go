// docs.go — обработчик GET /api/docs/openapi.json.
package handlers

import (
	"net/http"

	"github.com/getkin/kin-openapi/openapi3"

	"github.com/maurocosentino/personalcloud/internal/api/errors"
)

// DocsHandler отдаёт OpenAPI документ API.
type DocsHandler struct {
	doc *openapi3.T
}

// NewDocsHandler создаёт обработчик документации.
func NewDocsHandler(doc *openapi3.T) *DocsHandler {
	return &DocsHandler{doc: doc}
}

// OpenAPIJSON обрабатывает GET /api/docs/openapi.json.
func (h *DocsHandler) OpenAPIJSON(w http.ResponseWriter, _ *http.Request) {
	data, err := h.doc.MarshalJSON()
	if err != nil {
		errors.InternalError(w, "No se pudo serializar el documento OpenAPI.")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
