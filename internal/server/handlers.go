package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/gowows/kbserve/internal/docid"
	"github.com/gowows/kbserve/internal/export"
	"github.com/gowows/kbserve/internal/extract"
	"github.com/gowows/kbserve/internal/feedback"
	"github.com/gowows/kbserve/internal/models"
	"github.com/gowows/kbserve/pkg/utils"
)

const maxUploadBytes = 50 << 20
const maxWebPageBytes = 10 << 20

func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	var req models.ResolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Path == "" || req.Query == "" {
		s.respondError(w, http.StatusBadRequest, "path and query are required")
		return
	}
	s.logger.Debug("ask request",
		zap.String("path", req.Path), zap.String("query", utils.Truncate(req.Query, 200)))

	result, err := s.resolver.Resolve(r.Context(), req)
	if err != nil {
		s.respondResolveError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, result)
}

func (s *Server) handleFolders(w http.ResponseWriter, r *http.Request) {
	folders, err := s.catalog.Folders()
	if err != nil {
		s.logger.Error("folder listing failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]any{"folders": folders})
}

func (s *Server) handleSubfolder(w http.ResponseWriter, r *http.Request) {
	folder := chi.URLParam(r, "folder")
	subfolder := chi.URLParam(r, "subfolder")
	pdfs, err := s.catalog.ListSubfolder(folder, subfolder)
	if err != nil {
		s.respondResolveError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]any{
		"folder":    folder,
		"subfolder": subfolder,
		"pdfs":      pdfs,
		"pdf_count": len(pdfs),
	})
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	folder := r.FormValue("folder")
	subfolder := r.FormValue("subfolder")
	if folder == "" || subfolder == "" {
		s.respondError(w, http.StatusBadRequest, "folder and subfolder are required")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "file is required")
		return
	}
	defer file.Close()

	savedFolder, savedSubfolder, savedName, err := s.catalog.SaveDocument(folder, subfolder, header.Filename, file)
	if err != nil {
		s.respondResolveError(w, err)
		return
	}
	s.logger.Info("document uploaded",
		zap.String("folder", savedFolder), zap.String("subfolder", savedSubfolder), zap.String("file", savedName))
	s.respondJSON(w, http.StatusCreated, map[string]string{
		"folder":    savedFolder,
		"subfolder": savedSubfolder,
		"filename":  savedName,
		"path":      fmt.Sprintf("%s/%s/%s", savedFolder, savedSubfolder, savedName),
	})
}

func (s *Server) handleQuestions(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	if path == "" {
		s.respondError(w, http.StatusBadRequest, "path is required")
		return
	}
	if _, err := s.catalog.Locate(path); err != nil {
		s.respondResolveError(w, err)
		return
	}
	questions, err := s.cache.Questions(r.Context(), docid.Key(path))
	if err != nil {
		s.logger.Error("question listing failed", zap.Error(err))
		s.respondError(w, http.StatusServiceUnavailable, "storage unavailable")
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]any{"path": path, "questions": questions})
}

func (s *Server) handleQuestionsExport(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	if path == "" {
		s.respondError(w, http.StatusBadRequest, "path is required")
		return
	}
	if _, err := s.catalog.Locate(path); err != nil {
		s.respondResolveError(w, err)
		return
	}
	entries, err := s.cache.Entries(r.Context(), docid.Key(path))
	if err != nil {
		s.logger.Error("export query failed", zap.Error(err))
		s.respondError(w, http.StatusServiceUnavailable, "storage unavailable")
		return
	}
	data, err := export.QuestionsXLSX(entries)
	if err != nil {
		s.logger.Error("export rendering failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", export.Filename(path)))
	_, _ = w.Write(data)
}

func (s *Server) handleRead(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	if path == "" {
		s.respondError(w, http.StatusBadRequest, "path is required")
		return
	}
	abs, err := s.catalog.Locate(path)
	if err != nil {
		s.respondResolveError(w, err)
		return
	}
	text, err := s.extractor.Extract(abs)
	if err != nil {
		s.logger.Error("document extraction failed", zap.String("path", path), zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, "could not read document")
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"path": path, "text": text})
}

type webRequest struct {
	URL   string `json:"url"`
	Query string `json:"query,omitempty"`
}

func (s *Server) handleWebEmbed(w http.ResponseWriter, r *http.Request) {
	var req webRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if !validWebURL(req.URL) {
		s.respondError(w, http.StatusBadRequest, "url must be http or https")
		return
	}

	text, err := s.fetchPageText(r.Context(), req.URL)
	if err != nil {
		s.logger.Error("web fetch failed", zap.String("url", req.URL), zap.Error(err))
		s.respondError(w, http.StatusBadGateway, err.Error())
		return
	}
	documentKey := docid.WebKey(req.URL)
	// Re-embedding an already known URL replaces its old index.
	if err := s.indexes.Invalidate(r.Context(), documentKey); err != nil {
		s.logger.Error("web re-embed cleanup failed", zap.String("url", req.URL), zap.Error(err))
		s.respondError(w, http.StatusServiceUnavailable, "storage unavailable")
		return
	}
	if err := s.indexes.EnsureText(r.Context(), documentKey, text); err != nil {
		s.logger.Error("web embed failed", zap.String("url", req.URL), zap.Error(err))
		s.respondError(w, http.StatusBadGateway, "embedding failed")
		return
	}
	s.logger.Info("web page embedded", zap.String("url", req.URL))
	s.respondJSON(w, http.StatusCreated, map[string]string{
		"url":          req.URL,
		"document_key": documentKey,
		"status":       "embedded",
	})
}

func (s *Server) handleWebAsk(w http.ResponseWriter, r *http.Request) {
	var req webRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if !validWebURL(req.URL) || req.Query == "" {
		s.respondError(w, http.StatusBadRequest, "url and query are required")
		return
	}
	result, err := s.resolver.ResolveWeb(r.Context(), req.URL, req.Query)
	if err != nil {
		s.respondResolveError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, result)
}

// fetchPageText downloads a web page and reduces it to plain text.
func (s *Server) fetchPageText(ctx context.Context, pageURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return "", fmt.Errorf("create fetch request: %w", err)
	}
	req.Header.Set("User-Agent", "kbserve/1.0")

	resp, err := s.fetcher.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch page: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("page returned %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxWebPageBytes))
	if err != nil {
		return "", fmt.Errorf("read page: %w", err)
	}
	text, err := extract.HTMLText(body)
	if err != nil {
		return "", fmt.Errorf("extract page text: %w", err)
	}
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("page has no extractable text")
	}
	return text, nil
}

func validWebURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

type feedbackRequest struct {
	Path      string `json:"path"`
	Query     string `json:"query"`
	Rating    int    `json:"rating"`
	User      string `json:"user,omitempty"`
	SessionID string `json:"session_id,omitempty"`
}

func (s *Server) handleFeedback(w http.ResponseWriter, r *http.Request) {
	var req feedbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Path == "" || req.Query == "" {
		s.respondError(w, http.StatusBadRequest, "path and query are required")
		return
	}
	if req.Rating < 1 || req.Rating > 5 {
		s.respondError(w, http.StatusBadRequest, "rating must be between 1 and 5")
		return
	}
	err := s.feedback.Add(r.Context(), &feedback.Rating{
		DocumentKey: docid.Key(req.Path),
		Query:       req.Query,
		Rating:      req.Rating,
		User:        req.User,
		SessionID:   req.SessionID,
	})
	if err != nil {
		s.logger.Error("feedback write failed", zap.Error(err))
		s.respondError(w, http.StatusServiceUnavailable, "storage unavailable")
		return
	}
	s.respondJSON(w, http.StatusCreated, map[string]string{"status": "recorded"})
}

func (s *Server) handleFeedbackStats(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	query := r.URL.Query().Get("query")
	if path == "" || query == "" {
		s.respondError(w, http.StatusBadRequest, "path and query are required")
		return
	}
	stats, err := s.feedback.StatsFor(r.Context(), docid.Key(path), query)
	if err != nil {
		s.logger.Error("feedback stats failed", zap.Error(err))
		s.respondError(w, http.StatusServiceUnavailable, "storage unavailable")
		return
	}
	s.respondJSON(w, http.StatusOK, stats)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	cacheCount, err := s.cache.Count(ctx)
	if err != nil {
		s.logger.Error("status: count cache entries failed", zap.Error(err))
		s.respondError(w, http.StatusServiceUnavailable, "storage unavailable")
		return
	}
	chunkCount, err := s.chunks.CountChunks(ctx)
	if err != nil {
		s.logger.Error("status: count chunks failed", zap.Error(err))
		s.respondError(w, http.StatusServiceUnavailable, "storage unavailable")
		return
	}
	docCount, err := s.chunks.CountDocuments(ctx)
	if err != nil {
		s.logger.Error("status: count documents failed", zap.Error(err))
		s.respondError(w, http.StatusServiceUnavailable, "storage unavailable")
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]any{
		"cache_entries":     cacheCount,
		"indexed_documents": docCount,
		"chunks":            chunkCount,
		"config": map[string]any{
			"similarity_threshold": s.config.Resolve.SimilarityThreshold,
			"top_k":                s.config.Resolve.TopK,
			"chunk_size":           s.config.Resolve.ChunkSize,
			"chunk_overlap":        s.config.Resolve.ChunkOverlap,
			"embedding_provider":   s.config.Embedding.Provider,
			"llm_model":            s.config.LLM.Model,
			"kb_root":              s.config.Storage.KBRoot,
		},
	})
}

// respondResolveError maps pipeline errors onto HTTP statuses.
func (s *Server) respondResolveError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, models.ErrInvalid):
		s.respondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, models.ErrNotFound):
		s.respondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, models.ErrGeneration):
		s.logger.Error("generation failed", zap.Error(err))
		s.respondError(w, http.StatusBadGateway, err.Error())
	case errors.Is(err, models.ErrStorage):
		s.logger.Error("storage failure", zap.Error(err))
		s.respondError(w, http.StatusServiceUnavailable, err.Error())
	default:
		s.logger.Error("request failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
	}
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
