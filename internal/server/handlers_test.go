package server

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/hyperjump/sashikomi/internal/config"
	"github.com/hyperjump/sashikomi/internal/convert"
	"github.com/hyperjump/sashikomi/internal/datasource"
	"github.com/hyperjump/sashikomi/internal/generate"
	"github.com/hyperjump/sashikomi/internal/models"
	"github.com/hyperjump/sashikomi/internal/storage"
)

type testEnv struct {
	srv     *Server
	handler http.Handler
	store   *storage.SQLiteStore
	source  *stubSource
}

type stubSource struct {
	fields  []models.Field
	records []models.Record
}

func (s *stubSource) Fields(context.Context) ([]models.Field, error) { return s.fields, nil }

func (s *stubSource) SelectByStatus(_ context.Context, status string) ([]models.Record, error) {
	var out []models.Record
	for _, r := range s.records {
		if r.Status == status {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *stubSource) SelectByKeys(_ context.Context, keys []string) ([]models.Record, error) {
	var out []models.Record
	for _, key := range keys {
		for _, r := range s.records {
			if r.Key == key {
				out = append(out, r)
			}
		}
	}
	return out, nil
}

func (s *stubSource) UpdateStatus(_ context.Context, key, status string) error {
	for i := range s.records {
		if s.records[i].Key == key {
			s.records[i].Status = status
		}
	}
	return nil
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	dir := t.TempDir()

	cfg := &config.Config{}
	config.ApplyDefaults(cfg)
	cfg.Storage.DatabasePath = filepath.Join(dir, "test.db")
	cfg.Storage.ArtifactsDir = filepath.Join(dir, "artifacts")

	store, err := storage.NewSQLiteStore(cfg.Storage.DatabasePath)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	objects, err := storage.NewDiskStore(cfg.Storage.ArtifactsDir)
	if err != nil {
		t.Fatalf("open object store: %v", err)
	}

	source := &stubSource{
		fields: []models.Field{{Key: "name", Type: "text"}, {Key: "email", Type: "text"}},
		records: []models.Record{
			{Key: "1", Status: "New", Values: map[string]string{"name": "Acme", "email": "a@acme.example"}},
		},
	}
	logger := zap.NewNop()
	loader := datasource.NewLoader(store, source, "New", logger)
	pipeline := convert.NewPipeline(cfg.Convert, logger)
	generator := generate.NewGenerator(store, objects, loader, source, pipeline, "Current", logger)
	registrar := NewRegistrar(store, objects, logger)
	srv := NewServer(store, objects, source, generator, registrar, nil, cfg, logger)

	return &testEnv{srv: srv, handler: srv.router(), store: store, source: source}
}

func (e *testEnv) do(t *testing.T, method, path string, body []byte, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	req.Header.Set("X-User-ID", "u1")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	w := httptest.NewRecorder()
	e.handler.ServeHTTP(w, req)
	return w
}

func (e *testEnv) doJSON(t *testing.T, method, path string, payload interface{}) *httptest.ResponseRecorder {
	t.Helper()
	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return e.do(t, method, path, body, "application/json")
}

func (e *testEnv) uploadTemplate(t *testing.T, filename string, content []byte) (string, []models.Tag) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", filename)
	if err != nil {
		t.Fatalf("form file: %v", err)
	}
	if _, err := fw.Write(content); err != nil {
		t.Fatalf("write: %v", err)
	}
	mw.Close()

	w := e.do(t, http.MethodPost, "/api/v1/templates", buf.Bytes(), mw.FormDataContentType())
	if w.Code != http.StatusCreated {
		t.Fatalf("upload status %d: %s", w.Code, w.Body.String())
	}
	var resp struct {
		Template models.Template `json:"template"`
		Tags     []models.Tag    `json:"tags"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return resp.Template.ID, resp.Tags
}

func letterDocx(t *testing.T) []byte {
	t.Helper()
	return buildTestDocx(t, "Dear £Name£, your address is £Email£.")
}

func TestUploadTemplate_extractsTags(t *testing.T) {
	env := newTestEnv(t)

	id, tagList := env.uploadTemplate(t, "letter.docx", letterDocx(t))
	if id == "" {
		t.Fatal("missing template id")
	}
	if len(tagList) != 2 {
		t.Fatalf("tags = %+v", tagList)
	}
	if tagList[0].Name != "name" || tagList[1].Name != "email" {
		t.Errorf("tag names = %q, %q", tagList[0].Name, tagList[1].Name)
	}
	if tagList[0].DisplayName != "Name" {
		t.Errorf("display name = %q", tagList[0].DisplayName)
	}
}

func TestUploadTemplate_reuploadWithMappingsBumpsVersion(t *testing.T) {
	env := newTestEnv(t)
	id, _ := env.uploadTemplate(t, "letter.docx", letterDocx(t))

	w := env.doJSON(t, http.MethodPut, "/api/v1/templates/"+id+"/mappings", saveMappingsRequest{
		Mappings: []models.Mapping{{TagName: "name", FieldKey: "name", IsManual: true}},
	})
	if w.Code != http.StatusOK {
		t.Fatalf("save mappings status %d: %s", w.Code, w.Body.String())
	}

	id2, _ := env.uploadTemplate(t, "letter.docx", letterDocx(t))
	if id2 != id {
		t.Fatalf("re-upload minted a new template: %s vs %s", id2, id)
	}
	tpl, err := env.store.GetTemplate(context.Background(), id)
	if err != nil {
		t.Fatalf("GetTemplate: %v", err)
	}
	if tpl.Version != 2 {
		t.Errorf("version = %d, want 2 (old mappings must stay queryable)", tpl.Version)
	}
	mappings, err := env.store.GetMappings(context.Background(), id, 1)
	if err != nil {
		t.Fatalf("GetMappings: %v", err)
	}
	if len(mappings) != 1 {
		t.Errorf("version 1 mappings lost: %v", mappings)
	}
}

func TestAutoMap_proposals(t *testing.T) {
	env := newTestEnv(t)
	id, _ := env.uploadTemplate(t, "letter.docx", letterDocx(t))

	w := env.doJSON(t, http.MethodPost, "/api/v1/templates/"+id+"/automap", autoMapRequest{})
	if w.Code != http.StatusOK {
		t.Fatalf("status %d: %s", w.Code, w.Body.String())
	}
	var resp struct {
		Mappings []models.Mapping `json:"mappings"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Mappings) != 2 {
		t.Fatalf("proposals = %+v", resp.Mappings)
	}
	for _, m := range resp.Mappings {
		if m.IsManual {
			t.Errorf("automatic proposal flagged manual: %+v", m)
		}
		if m.Confidence >= 1.0 {
			t.Errorf("automatic confidence must stay below 1.0: %+v", m)
		}
	}
}

func TestSaveMappings_nothingToSave(t *testing.T) {
	env := newTestEnv(t)
	id, _ := env.uploadTemplate(t, "letter.docx", letterDocx(t))

	w := env.doJSON(t, http.MethodPut, "/api/v1/templates/"+id+"/mappings", saveMappingsRequest{
		Mappings: []models.Mapping{{TagName: "name", FieldKey: ""}},
	})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
	if !strings.Contains(w.Body.String(), "nothing to save") {
		t.Errorf("body = %s", w.Body.String())
	}
}

func TestGetMappings_byVersion(t *testing.T) {
	env := newTestEnv(t)
	id, _ := env.uploadTemplate(t, "letter.docx", letterDocx(t))

	env.doJSON(t, http.MethodPut, "/api/v1/templates/"+id+"/mappings", saveMappingsRequest{
		Mappings: []models.Mapping{{TagName: "name", FieldKey: "name", IsManual: true}},
	})

	w := env.do(t, http.MethodGet, "/api/v1/templates/"+id+"/mappings?version=1", nil, "")
	if w.Code != http.StatusOK {
		t.Fatalf("status %d: %s", w.Code, w.Body.String())
	}
	var resp struct {
		Version  int              `json:"version"`
		Mappings []models.Mapping `json:"mappings"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Version != 1 || len(resp.Mappings) != 1 {
		t.Errorf("got version %d with %d mappings", resp.Version, len(resp.Mappings))
	}
}

func TestGenerate_endToEnd(t *testing.T) {
	env := newTestEnv(t)
	id, _ := env.uploadTemplate(t, "letter.docx", letterDocx(t))

	w := env.doJSON(t, http.MethodPost, "/api/v1/generate", models.GenerateRequest{
		TemplateID: id,
		Data:       map[string]interface{}{"name": "Acme", "email": "a@acme.example"},
	})
	if w.Code != http.StatusOK {
		t.Fatalf("status %d: %s", w.Code, w.Body.String())
	}
	var rec models.GenerationRecord
	if err := json.Unmarshal(w.Body.Bytes(), &rec); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if rec.Status != models.StatusCompleted || rec.DocumentsCount != 1 {
		t.Fatalf("record = %+v", rec)
	}

	dl := env.do(t, http.MethodGet, "/api/v1/artifacts/u1/"+rec.ID+"/"+rec.OutputFilenames[0], nil, "")
	if dl.Code != http.StatusOK {
		t.Fatalf("download status %d: %s", dl.Code, dl.Body.String())
	}
	if ct := dl.Header().Get("Content-Type"); !strings.Contains(ct, "wordprocessingml") {
		t.Errorf("content type = %q", ct)
	}
}

func TestGenerate_inputErrorIsBadRequest(t *testing.T) {
	env := newTestEnv(t)

	w := env.doJSON(t, http.MethodPost, "/api/v1/generate", models.GenerateRequest{
		Data: map[string]interface{}{"a": "b"},
	})
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestDeleteGeneration_removesRecord(t *testing.T) {
	env := newTestEnv(t)
	id, _ := env.uploadTemplate(t, "letter.docx", letterDocx(t))

	w := env.doJSON(t, http.MethodPost, "/api/v1/generate", models.GenerateRequest{
		TemplateID: id,
		Data:       map[string]interface{}{"name": "Acme"},
	})
	var rec models.GenerationRecord
	if err := json.Unmarshal(w.Body.Bytes(), &rec); err != nil {
		t.Fatalf("decode: %v", err)
	}

	if del := env.do(t, http.MethodDelete, "/api/v1/generations/"+rec.ID, nil, ""); del.Code != http.StatusOK {
		t.Fatalf("delete status %d: %s", del.Code, del.Body.String())
	}
	if get := env.do(t, http.MethodGet, "/api/v1/generations/"+rec.ID, nil, ""); get.Code != http.StatusNotFound {
		t.Errorf("get after delete = %d", get.Code)
	}
}

func TestFields_listsSourceColumns(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/api/v1/fields", nil, "")
	if w.Code != http.StatusOK {
		t.Fatalf("status %d", w.Code)
	}
	var resp struct {
		Fields []models.Field `json:"fields"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Fields) != 2 {
		t.Errorf("fields = %+v", resp.Fields)
	}
}

func TestStatus_reportsCounts(t *testing.T) {
	env := newTestEnv(t)
	env.uploadTemplate(t, "letter.docx", letterDocx(t))

	w := env.do(t, http.MethodGet, "/api/v1/status", nil, "")
	if w.Code != http.StatusOK {
		t.Fatalf("status %d: %s", w.Code, w.Body.String())
	}
	var resp map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp["templates"].(float64) != 1 {
		t.Errorf("templates = %v", resp["templates"])
	}
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)
	if w := env.do(t, http.MethodGet, "/health", nil, ""); w.Code != http.StatusOK {
		t.Errorf("status = %d", w.Code)
	}
}
