package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/hyperjump/sashikomi/internal/mapping"
	"github.com/hyperjump/sashikomi/internal/models"
	"github.com/hyperjump/sashikomi/internal/storage"
)

// maxUploadBytes bounds template uploads.
const maxUploadBytes = 32 << 20

func userID(r *http.Request) string {
	if id := r.Header.Get("X-User-ID"); id != "" {
		return id
	}
	return DefaultUserID
}

func (s *Server) handleUploadTemplate(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid multipart request")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "file field is required")
		return
	}
	defer file.Close()
	content, err := io.ReadAll(file)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "failed to read upload")
		return
	}

	name := r.FormValue("name")
	if name == "" {
		name = strings.TrimSuffix(header.Filename, filepath.Ext(header.Filename))
	}
	tpl, tagList, err := s.registrar.Register(r.Context(), userID(r), name, header.Filename, content)
	if err != nil {
		s.logger.Error("template registration failed", zap.String("name", name), zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusCreated, map[string]interface{}{
		"template": tpl,
		"tags":     tagList,
	})
}

func (s *Server) handleListTemplates(w http.ResponseWriter, r *http.Request) {
	list, err := s.store.ListTemplates(r.Context(), userID(r))
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"templates": list})
}

func (s *Server) handleGetTemplate(w http.ResponseWriter, r *http.Request) {
	tpl, err := s.store.GetTemplate(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, http.StatusNotFound, "template not found")
		return
	}
	s.respondJSON(w, http.StatusOK, tpl)
}

func (s *Server) handleDeleteTemplate(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := s.store.GetTemplate(r.Context(), id); err != nil {
		s.respondError(w, http.StatusNotFound, "template not found")
		return
	}
	if err := s.objects.DeletePrefix(r.Context(), "templates/"+id); err != nil {
		s.logger.Error("delete template binary failed", zap.String("id", id), zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if err := s.store.DeleteTemplate(r.Context(), id); err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *Server) handleGetTags(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := s.store.GetTemplate(r.Context(), id); err != nil {
		s.respondError(w, http.StatusNotFound, "template not found")
		return
	}
	tagList, err := s.store.GetTags(r.Context(), id)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"tags": tagList})
}

type autoMapRequest struct {
	Version  int    `json:"version"`
	Strategy string `json:"strategy,omitempty"` // "name" (default) or "fuzzy"
}

func (s *Server) handleAutoMap(w http.ResponseWriter, r *http.Request) {
	if s.source == nil {
		s.respondError(w, http.StatusNotImplemented, "no data source configured")
		return
	}
	id := chi.URLParam(r, "id")
	tpl, err := s.store.GetTemplate(r.Context(), id)
	if err != nil {
		s.respondError(w, http.StatusNotFound, "template not found")
		return
	}
	var req autoMapRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Version == 0 {
		req.Version = tpl.Version
	}

	var strategy mapping.Strategy = mapping.NameMatcher{}
	switch req.Strategy {
	case "", "name":
	case "fuzzy":
		strategy = mapping.FuzzyMatcher{}
	default:
		s.respondError(w, http.StatusBadRequest, "unknown strategy (want name or fuzzy)")
		return
	}

	tagList, err := s.store.GetTags(r.Context(), id)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	fields, err := s.source.Fields(r.Context())
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	proposals := mapping.AutoMap(id, req.Version, tagList, fields, strategy)
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"mappings": proposals})
}

type saveMappingsRequest struct {
	Version  int              `json:"version"`
	Mappings []models.Mapping `json:"mappings"`
}

func (s *Server) handleSaveMappings(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	tpl, err := s.store.GetTemplate(r.Context(), id)
	if err != nil {
		s.respondError(w, http.StatusNotFound, "template not found")
		return
	}
	var req saveMappingsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Version == 0 {
		req.Version = tpl.Version
	}
	if err := s.store.SaveMappings(r.Context(), id, req.Version, req.Mappings); err != nil {
		if errors.Is(err, storage.ErrNothingToSave) {
			s.respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	saved, err := s.store.GetMappings(r.Context(), id, req.Version)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"mappings": saved})
}

func (s *Server) handleGetMappings(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	tpl, err := s.store.GetTemplate(r.Context(), id)
	if err != nil {
		s.respondError(w, http.StatusNotFound, "template not found")
		return
	}
	version := tpl.Version
	if v := r.URL.Query().Get("version"); v != "" {
		version, err = strconv.Atoi(v)
		if err != nil {
			s.respondError(w, http.StatusBadRequest, "invalid version")
			return
		}
	}
	mappings, err := s.store.GetMappings(r.Context(), id, version)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"version":  version,
		"mappings": mappings,
	})
}

func (s *Server) handleFields(w http.ResponseWriter, r *http.Request) {
	if s.source == nil {
		s.respondError(w, http.StatusNotImplemented, "no data source configured")
		return
	}
	fields, err := s.source.Fields(r.Context())
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"fields": fields})
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var req models.GenerateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.UserID = userID(r)

	rec, err := s.generator.Generate(r.Context(), req)
	if err != nil {
		s.logger.Error("generation failed", zap.String("template_id", req.TemplateID), zap.Error(err))
		if rec == nil {
			// Rejected before any work happened.
			s.respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		// Ledgered failure: return the record so the caller sees the id.
		s.respondJSON(w, http.StatusUnprocessableEntity, rec)
		return
	}
	s.respondJSON(w, http.StatusOK, rec)
}

func (s *Server) handleListGenerations(w http.ResponseWriter, r *http.Request) {
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || limit <= 0 {
		limit = 50
	}
	list, err := s.store.ListGenerations(r.Context(), userID(r), offset, limit)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"generations": list})
}

func (s *Server) handleGetGeneration(w http.ResponseWriter, r *http.Request) {
	rec, err := s.store.GetGeneration(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, http.StatusNotFound, "generation not found")
		return
	}
	s.respondJSON(w, http.StatusOK, rec)
}

func (s *Server) handleDeleteGeneration(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.generator.Delete(r.Context(), id); err != nil {
		s.respondError(w, http.StatusNotFound, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *Server) handleDownloadArtifact(w http.ResponseWriter, r *http.Request) {
	path := chi.URLParam(r, "userID") + "/" + chi.URLParam(r, "generationID") + "/" + chi.URLParam(r, "filename")
	data, err := s.objects.Download(r.Context(), path)
	if err != nil {
		s.respondError(w, http.StatusNotFound, "artifact not found")
		return
	}
	w.Header().Set("Content-Type", contentTypeFor(strings.ToLower(filepath.Ext(path))))
	w.Header().Set("Content-Disposition", `attachment; filename="`+chi.URLParam(r, "filename")+`"`)
	_, _ = w.Write(data)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	templates, err := s.store.CountTemplates(ctx)
	if err != nil {
		s.logger.Error("status: count templates failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	generations, err := s.store.CountGenerations(ctx)
	if err != nil {
		s.logger.Error("status: count generations failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	resp := map[string]interface{}{
		"templates":   templates,
		"generations": generations,
	}
	configInfo := map[string]interface{}{
		"database_path": s.config.Storage.DatabasePath,
		"artifacts_dir": s.config.Storage.ArtifactsDir,
		"workbook_path": s.config.DataSource.WorkbookPath,
		"convert_poll":  s.config.Convert.PollIntervalMS,
		"convert_limit": s.config.Convert.PollMaxAttempts,
		"secondary_pdf": s.config.Convert.SecondaryURL != "",
		"watch_enabled": s.inbox != nil,
	}
	if s.inbox != nil {
		configInfo["watch_directories"] = s.inbox.Directories()
	}
	if diskBytes, err := storage.DiskUsageBytes(s.config.Storage.DatabasePath, s.config.Storage.ArtifactsDir); err == nil {
		resp["disk_usage_bytes"] = diskBytes
	}
	resp["config"] = configInfo
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
