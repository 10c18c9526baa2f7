package handlers

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/spf13/afero"

	"github.com/maurocosentino/personalcloud/internal/domain/model"
	"github.com/maurocosentino/personalcloud/internal/service"
	"github.com/maurocosentino/personalcloud/internal/storage/filestore"
	"github.com/maurocosentino/personalcloud/internal/storage/meta"
)

const (
	testRoot    = "/srv/archivos"
	testScratch = "/tmp/pc-scratch"
	testMaxSize = 10 << 20
)

// newTestFilesHandler создаёт обработчик поверх MemMapFs.
func newTestFilesHandler(t *testing.T) (*FilesHandler, *filestore.Store) {
	t.Helper()

	fsys := afero.NewMemMapFs()
	logger := slog.New(slog.DiscardHandler)

	store, err := filestore.New(fsys, testRoot)
	if err != nil {
		t.Fatalf("filestore.New вернул ошибку: %v", err)
	}

	extractor := meta.NewExtractor(fsys, "/Archivos")
	listingSvc := service.NewListingService(store, extractor, logger)

	archiveSvc, err := service.NewArchiveService(store, testScratch, logger)
	if err != nil {
		t.Fatalf("NewArchiveService вернул ошибку: %v", err)
	}

	return NewFilesHandler(store, listingSvc, archiveSvc, testMaxSize, logger), store
}

// multipartBody собирает multipart-тело с файлом и опциональной папкой.
func multipartBody(t *testing.T, filename, content, folder string) (*bytes.Buffer, string) {
	t.Helper()

	buf := &bytes.Buffer{}
	mw := multipart.NewWriter(buf)

	fw, err := mw.CreateFormFile("file", filename)
	if err != nil {
		t.Fatalf("CreateFormFile вернул ошибку: %v", err)
	}
	if _, err := io.WriteString(fw, content); err != nil {
		t.Fatalf("запись содержимого: %v", err)
	}

	if folder != "" {
		if err := mw.WriteField("folder", folder); err != nil {
			t.Fatalf("WriteField вернул ошибку: %v", err)
		}
	}

	if err := mw.Close(); err != nil {
		t.Fatalf("закрытие multipart writer: %v", err)
	}

	return buf, mw.FormDataContentType()
}

// decodeError извлекает code из envelope {"error":{"code","message"}}.
func decodeError(t *testing.T, body *bytes.Buffer) string {
	t.Helper()

	var resp struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.NewDecoder(body).Decode(&resp); err != nil {
		t.Fatalf("разбор error envelope: %v", err)
	}
	return resp.Error.Code
}

func TestUploadFile_ToFolder(t *testing.T) {
	h, store := newTestFilesHandler(t)

	body, contentType := multipartBody(t, "report.pdf", "contenido", "work")
	req := httptest.NewRequest(http.MethodPost, "/api/files/upload", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()

	h.UploadFile(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("статус = %d, ожидалось 201, тело: %s", rec.Code, rec.Body.String())
	}

	var resp mensajeResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("разбор ответа: %v", err)
	}
	if resp.Nombre != "report.pdf" {
		t.Errorf("nombre = %q, ожидалось report.pdf", resp.Nombre)
	}
	if resp.Carpeta != "work" {
		t.Errorf("carpeta = %q, ожидалось work", resp.Carpeta)
	}

	// Папка создана автоматически, файл лежит на месте
	data, err := afero.ReadFile(store.Fs(), testRoot+"/work/report.pdf")
	if err != nil {
		t.Fatalf("файл не сохранён: %v", err)
	}
	if string(data) != "contenido" {
		t.Errorf("содержимое = %q", data)
	}
}

func TestUploadFile_ToRoot(t *testing.T) {
	h, _ := newTestFilesHandler(t)

	body, contentType := multipartBody(t, "nota.txt", "hola", "")
	req := httptest.NewRequest(http.MethodPost, "/api/files/upload", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()

	h.UploadFile(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("статус = %d, ожидалось 201", rec.Code)
	}

	var resp mensajeResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("разбор ответа: %v", err)
	}
	if resp.Carpeta != model.RootFolderLabel {
		t.Errorf("carpeta = %q, ожидалось %q", resp.Carpeta, model.RootFolderLabel)
	}
}

func TestUploadFile_TrimsFolder(t *testing.T) {
	// " work " не должен создавать отдельную папку с пробелами
	h, store := newTestFilesHandler(t)

	body, contentType := multipartBody(t, "a.txt", "x", " work ")
	req := httptest.NewRequest(http.MethodPost, "/api/files/upload", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()

	h.UploadFile(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("статус = %d, ожидалось 201, тело: %s", rec.Code, rec.Body.String())
	}

	var resp mensajeResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("разбор ответа: %v", err)
	}
	if resp.Carpeta != "work" {
		t.Errorf("carpeta = %q, ожидалось work", resp.Carpeta)
	}

	exists, err := afero.Exists(store.Fs(), testRoot+"/work/a.txt")
	if err != nil {
		t.Fatalf("Exists вернул ошибку: %v", err)
	}
	if !exists {
		t.Error("файл не попал в папку work")
	}

	padded, err := afero.DirExists(store.Fs(), testRoot+"/ work ")
	if err != nil {
		t.Fatalf("DirExists вернул ошибку: %v", err)
	}
	if padded {
		t.Error("создана папка с обрамляющими пробелами")
	}
}

func TestUploadFile_Rejections(t *testing.T) {
	h, _ := newTestFilesHandler(t)

	tests := []struct {
		name     string
		filename string
		content  string
		folder   string
		wantCode string
	}{
		{"пустой файл", "vacio.txt", "", "", "INVALID_UPLOAD"},
		{"traversal в папке", "a.txt", "x", "..", "INVALID_PATH"},
		{"разделитель в папке", "a.txt", "x", "a/b", "INVALID_PATH"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body, contentType := multipartBody(t, tt.filename, tt.content, tt.folder)
			req := httptest.NewRequest(http.MethodPost, "/api/files/upload", body)
			req.Header.Set("Content-Type", contentType)
			rec := httptest.NewRecorder()

			h.UploadFile(rec, req)

			if rec.Code != http.StatusBadRequest {
				t.Fatalf("статус = %d, ожидалось 400", rec.Code)
			}
			if code := decodeError(t, rec.Body); code != tt.wantCode {
				t.Errorf("code = %q, ожидалось %q", code, tt.wantCode)
			}
		})
	}
}

func TestUploadFile_MissingFile(t *testing.T) {
	h, _ := newTestFilesHandler(t)

	buf := &bytes.Buffer{}
	mw := multipart.NewWriter(buf)
	_ = mw.WriteField("folder", "work")
	_ = mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/files/upload", buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()

	h.UploadFile(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("статус = %d, ожидалось 400", rec.Code)
	}
	if code := decodeError(t, rec.Body); code != "INVALID_UPLOAD" {
		t.Errorf("code = %q, ожидалось INVALID_UPLOAD", code)
	}
}

func TestCreateFolder(t *testing.T) {
	h, _ := newTestFilesHandler(t)

	req := httptest.NewRequest(http.MethodPost, "/api/files/create-folder?name=fotos", nil)
	rec := httptest.NewRecorder()
	h.CreateFolder(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("статус = %d, ожидалось 201", rec.Code)
	}

	// Повтор — конфликт
	rec = httptest.NewRecorder()
	h.CreateFolder(rec, httptest.NewRequest(http.MethodPost, "/api/files/create-folder?name=fotos", nil))
	if rec.Code != http.StatusConflict {
		t.Fatalf("повторный статус = %d, ожидалось 409", rec.Code)
	}
	if code := decodeError(t, rec.Body); code != "CONFLICT" {
		t.Errorf("code = %q, ожидалось CONFLICT", code)
	}

	// Недопустимое имя
	rec = httptest.NewRecorder()
	h.CreateFolder(rec, httptest.NewRequest(http.MethodPost, "/api/files/create-folder?name=..", nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("статус для '..' = %d, ожидалось 400", rec.Code)
	}
}

func TestListFolders(t *testing.T) {
	h, store := newTestFilesHandler(t)

	for _, name := range []string{"beta", "alfa"} {
		if err := store.CreateFolder(name); err != nil {
			t.Fatalf("CreateFolder(%q): %v", name, err)
		}
	}

	rec := httptest.NewRecorder()
	h.ListFolders(rec, httptest.NewRequest(http.MethodGet, "/api/files/folders", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("статус = %d, ожидалось 200", rec.Code)
	}

	var folders []string
	if err := json.NewDecoder(rec.Body).Decode(&folders); err != nil {
		t.Fatalf("разбор ответа: %v", err)
	}
	if len(folders) != 2 || folders[0] != "alfa" || folders[1] != "beta" {
		t.Errorf("folders = %v, ожидалось [alfa beta]", folders)
	}
}

func TestListFolderFiles(t *testing.T) {
	h, store := newTestFilesHandler(t)

	if _, err := store.Save("work", "report.pdf", strings.NewReader("datos")); err != nil {
		t.Fatalf("Save вернул ошибку: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/files/list-folder?folder=work", nil)
	rec := httptest.NewRecorder()
	h.ListFolderFiles(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("статус = %d, ожидалось 200, тело: %s", rec.Code, rec.Body.String())
	}

	var result model.ListingResult
	if err := json.NewDecoder(rec.Body).Decode(&result); err != nil {
		t.Fatalf("разбор ответа: %v", err)
	}
	if result.TotalArchivos != 1 {
		t.Fatalf("totalArchivos = %d, ожидалось 1", result.TotalArchivos)
	}
	rec0 := result.Archivos[0]
	if rec0.Nombre != "report.pdf" {
		t.Errorf("nombre = %q", rec0.Nombre)
	}
	if rec0.TipoMime != "application/pdf" {
		t.Errorf("tipoMime = %q, ожидалось application/pdf", rec0.TipoMime)
	}
	if rec0.Carpeta != "work" {
		t.Errorf("carpeta = %q, ожидалось work", rec0.Carpeta)
	}
}

func TestListFolderFiles_Errors(t *testing.T) {
	h, _ := newTestFilesHandler(t)

	tests := []struct {
		name       string
		target     string
		wantStatus int
		wantCode   string
	}{
		{"без папки", "/api/files/list-folder", http.StatusBadRequest, "INVALID_PATH"},
		{"несуществующая папка", "/api/files/list-folder?folder=nada", http.StatusNotFound, "NOT_FOUND"},
		{"нечисловой page", "/api/files/list-folder?folder=x&page=dos", http.StatusBadRequest, "INVALID_PARAMETERS"},
		{"нечисловой pageSize", "/api/files/list-folder?folder=x&pageSize=muchos", http.StatusBadRequest, "INVALID_PARAMETERS"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			h.ListFolderFiles(rec, httptest.NewRequest(http.MethodGet, tt.target, nil))

			if rec.Code != tt.wantStatus {
				t.Fatalf("статус = %d, ожидалось %d", rec.Code, tt.wantStatus)
			}
			if code := decodeError(t, rec.Body); code != tt.wantCode {
				t.Errorf("code = %q, ожидалось %q", code, tt.wantCode)
			}
		})
	}
}

func TestListRootFiles_Label(t *testing.T) {
	h, store := newTestFilesHandler(t)

	if _, err := store.Save("", "raiz.txt", strings.NewReader("r")); err != nil {
		t.Fatalf("Save вернул ошибку: %v", err)
	}

	rec := httptest.NewRecorder()
	h.ListRootFiles(rec, httptest.NewRequest(http.MethodGet, "/api/files/list-root", nil))

	var result model.ListingResult
	if err := json.NewDecoder(rec.Body).Decode(&result); err != nil {
		t.Fatalf("разбор ответа: %v", err)
	}
	if len(result.Archivos) != 1 {
		t.Fatalf("archivos = %d, ожидался 1", len(result.Archivos))
	}
	if result.Archivos[0].Carpeta != model.RootFolderLabel {
		t.Errorf("carpeta = %q, ожидалось %q", result.Archivos[0].Carpeta, model.RootFolderLabel)
	}
}

func TestDownloadZip(t *testing.T) {
	h, store := newTestFilesHandler(t)

	if _, err := store.Save("fotos", "a.txt", strings.NewReader("aa")); err != nil {
		t.Fatalf("Save вернул ошибку: %v", err)
	}
	if _, err := store.Save("fotos", "b.txt", strings.NewReader("bb")); err != nil {
		t.Fatalf("Save вернул ошибку: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/files/download-zip?folder=fotos", nil)
	rec := httptest.NewRecorder()
	h.DownloadZip(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("статус = %d, ожидалось 200, тело: %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/zip" {
		t.Errorf("Content-Type = %q, ожидалось application/zip", ct)
	}
	if cd := rec.Header().Get("Content-Disposition"); !strings.Contains(cd, "Archivos_fotos.zip") {
		t.Errorf("Content-Disposition = %q, ожидалось имя Archivos_fotos.zip", cd)
	}

	// Тело — валидный ZIP с обоими файлами
	body := rec.Body.Bytes()
	zr, err := zip.NewReader(bytes.NewReader(body), int64(len(body)))
	if err != nil {
		t.Fatalf("тело не является ZIP: %v", err)
	}
	if len(zr.File) != 2 {
		t.Errorf("в архиве %d файлов, ожидалось 2", len(zr.File))
	}

	// Временный архив удалён после отдачи
	entries, err := afero.ReadDir(store.Fs(), testScratch)
	if err != nil {
		t.Fatalf("чтение scratch: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("в scratch осталось %d файлов, ожидалось 0", len(entries))
	}
}

func TestDownloadZip_Errors(t *testing.T) {
	h, _ := newTestFilesHandler(t)

	tests := []struct {
		name       string
		target     string
		wantStatus int
	}{
		{"без папки", "/api/files/download-zip", http.StatusBadRequest},
		{"несуществующая папка", "/api/files/download-zip?folder=nada", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			h.DownloadZip(rec, httptest.NewRequest(http.MethodGet, tt.target, nil))
			if rec.Code != tt.wantStatus {
				t.Fatalf("статус = %d, ожидалось %d", rec.Code, tt.wantStatus)
			}
		})
	}
}

func TestDeleteFile(t *testing.T) {
	h, store := newTestFilesHandler(t)

	if _, err := store.Save("docs", "x.txt", strings.NewReader("x")); err != nil {
		t.Fatalf("Save вернул ошибку: %v", err)
	}

	req := httptest.NewRequest(http.MethodDelete, "/api/files/delete-file?nombre=x.txt&carpeta=docs", nil)
	rec := httptest.NewRecorder()
	h.DeleteFile(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("статус = %d, ожидалось 200, тело: %s", rec.Code, rec.Body.String())
	}

	// Повтор — 404
	rec = httptest.NewRecorder()
	h.DeleteFile(rec, httptest.NewRequest(http.MethodDelete, "/api/files/delete-file?nombre=x.txt&carpeta=docs", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("повторный статус = %d, ожидалось 404", rec.Code)
	}
}

func TestDeleteFile_RootSentinels(t *testing.T) {
	// "." и "null" в carpeta означают корень хранилища
	for _, carpeta := range []string{"", ".", "null"} {
		t.Run("carpeta="+carpeta, func(t *testing.T) {
			h, store := newTestFilesHandler(t)
			if _, err := store.Save("", "r.txt", strings.NewReader("r")); err != nil {
				t.Fatalf("Save вернул ошибку: %v", err)
			}

			target := "/api/files/delete-file?nombre=r.txt&carpeta=" + carpeta
			rec := httptest.NewRecorder()
			h.DeleteFile(rec, httptest.NewRequest(http.MethodDelete, target, nil))

			if rec.Code != http.StatusOK {
				t.Fatalf("статус = %d, ожидалось 200, тело: %s", rec.Code, rec.Body.String())
			}
		})
	}
}

func TestDeleteFile_MissingName(t *testing.T) {
	h, _ := newTestFilesHandler(t)

	rec := httptest.NewRecorder()
	h.DeleteFile(rec, httptest.NewRequest(http.MethodDelete, "/api/files/delete-file", nil))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("статус = %d, ожидалось 400", rec.Code)
	}
}

func TestDeleteFolder(t *testing.T) {
	h, store := newTestFilesHandler(t)

	if _, err := store.Save("viejo", "a.txt", strings.NewReader("a")); err != nil {
		t.Fatalf("Save вернул ошибку: %v", err)
	}

	rec := httptest.NewRecorder()
	h.DeleteFolder(rec, httptest.NewRequest(http.MethodDelete, "/api/files/delete-folder?folder=viejo", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("статус = %d, ожидалось 200", rec.Code)
	}

	// Повтор — 404
	rec = httptest.NewRecorder()
	h.DeleteFolder(rec, httptest.NewRequest(http.MethodDelete, "/api/files/delete-folder?folder=viejo", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("повторный статус = %d, ожидалось 404", rec.Code)
	}
}

func TestDeleteFolder_RootAliasRejected(t *testing.T) {
	// "?folder=." указывал бы на сам корень хранилища
	h, store := newTestFilesHandler(t)

	if _, err := store.Save("", "r.txt", strings.NewReader("r")); err != nil {
		t.Fatalf("Save вернул ошибку: %v", err)
	}

	for _, folder := range []string{".", ".."} {
		rec := httptest.NewRecorder()
		h.DeleteFolder(rec, httptest.NewRequest(http.MethodDelete, "/api/files/delete-folder?folder="+folder, nil))

		if rec.Code != http.StatusBadRequest {
			t.Fatalf("folder=%q: статус = %d, ожидалось 400", folder, rec.Code)
		}
		if code := decodeError(t, rec.Body); code != "INVALID_PATH" {
			t.Errorf("folder=%q: code = %q, ожидалось INVALID_PATH", folder, code)
		}
	}

	// Содержимое корня нетронуто
	exists, err := afero.Exists(store.Fs(), testRoot+"/r.txt")
	if err != nil {
		t.Fatalf("Exists вернул ошибку: %v", err)
	}
	if !exists {
		t.Error("файл в корне пропал после отклонённого удаления")
	}
}

func TestRequestBaseURL(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "http://mihost:5000/api/files/list-root", nil)
	if got := requestBaseURL(req); got != "http://mihost:5000" {
		t.Errorf("requestBaseURL = %q, ожидалось http://mihost:5000", got)
	}

	req.Header.Set("X-Forwarded-Proto", "https")
	if got := requestBaseURL(req); got != "https://mihost:5000" {
		t.Errorf("за прокси requestBaseURL = %q, ожидалось https://mihost:5000", got)
	}
}
