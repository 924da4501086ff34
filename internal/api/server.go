package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"themeflow/internal/config"
	"themeflow/internal/extraction"
	"themeflow/internal/ingest"
	"themeflow/internal/models"
	"themeflow/internal/providers"
	"themeflow/internal/storage"
	"themeflow/internal/util"
	"themeflow/internal/vector"
	"themeflow/internal/workflows"

	"github.com/google/uuid"
	enumspb "go.temporal.io/api/enums/v1"
	tclient "go.temporal.io/sdk/client"
)

type Server struct {
	cfg        config.Config
	db         *storage.DB
	sourceRepo *storage.SourceRepo
	runRepo    *storage.RunRepo
	themeRepo  *storage.ThemeRepo
	searcher   *vector.Searcher
	providers  *providers.Manager
	temporal   tclient.Client
	engine     *extraction.Engine
}

func NewServer(cfg config.Config) *Server {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	db, err := storage.NewDB(ctx, cfg.PostgresURL)
	if err != nil {
		panic(err)
	}
	pm, err := providers.NewManager(cfg)
	if err != nil {
		panic(err)
	}
	tc, err := tclient.Dial(tclient.Options{HostPort: cfg.TemporalAddress})
	if err != nil {
		panic(err)
	}
	return &Server{
		cfg:        cfg,
		db:         db,
		sourceRepo: storage.NewSourceRepo(db),
		runRepo:    storage.NewRunRepo(db),
		themeRepo:  storage.NewThemeRepo(db),
		searcher:   vector.NewSearcher(db.Pool),
		providers:  pm,
		temporal:   tc,
		engine:     extraction.NewEngine(pm.FirstEmbedProvider(), pm.FirstLLMProvider(), cfg.EmbedDim),
	}
}

func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealthz)
	mux.HandleFunc("/sources", s.handleSources)
	mux.HandleFunc("/sources/", s.handleSourcesScoped)
	mux.HandleFunc("/extract", s.handleExtractSync)
	mux.HandleFunc("/extractions", s.handleExtractions)
	mux.HandleFunc("/extractions/", s.handleExtractionsScoped)
	mux.HandleFunc("/themes/search", s.handleThemeSearch)
	return withCORS(mux)
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleSources(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		sources, err := s.sourceRepo.ListSources(r.Context(), strings.TrimSpace(r.URL.Query().Get("type")))
		if err != nil {
			writeErr(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"sources": sources})
	case http.MethodPost:
		var src models.Source
		if err := json.NewDecoder(r.Body).Decode(&src); err != nil {
			writeErr(w, http.StatusBadRequest, fmt.Errorf("invalid json: %w", err))
			return
		}
		src.Content = strings.TrimSpace(src.Content)
		if src.Content == "" {
			writeErr(w, http.StatusBadRequest, fmt.Errorf("content is required"))
			return
		}
		if !models.ValidSourceType(src.Type) {
			writeErr(w, http.StatusBadRequest, fmt.Errorf("invalid source type %q", src.Type))
			return
		}
		if strings.TrimSpace(src.SourceID) == "" {
			src.SourceID = uuid.NewString()
		}
		if err := s.sourceRepo.UpsertSource(r.Context(), src); err != nil {
			writeErr(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"source_id": src.SourceID})
	default:
		writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
	}
}

func (s *Server) handleSourcesScoped(w http.ResponseWriter, r *http.Request) {
	parts := strings.Split(strings.Trim(strings.TrimPrefix(r.URL.Path, "/sources/"), "/"), "/")
	if len(parts) < 1 || parts[0] == "" {
		writeErr(w, http.StatusNotFound, fmt.Errorf("not found"))
		return
	}
	if parts[0] == "upload" {
		if r.Method != http.MethodPost {
			writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
			return
		}
		s.handleUpload(w, r)
		return
	}

	sourceID := parts[0]
	switch r.Method {
	case http.MethodGet:
		src, err := s.sourceRepo.GetSource(r.Context(), sourceID)
		if err != nil {
			writeErr(w, http.StatusNotFound, err)
			return
		}
		writeJSON(w, http.StatusOK, src)
	case http.MethodDelete:
		if err := s.sourceRepo.DeleteSource(r.Context(), sourceID); err != nil {
			writeErr(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"deleted": sourceID})
	default:
		writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
	}
}

// handleUpload ingests PDF files as paper sources.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(int64(s.cfg.UploadMaxBytes)); err != nil {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("parse multipart: %w", err))
		return
	}
	files := r.MultipartForm.File["files"]
	if len(files) == 0 {
		if single, ok := firstSingleFile(r.MultipartForm.File); ok {
			files = append(files, single)
		}
	}
	if len(files) == 0 {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("no files provided"))
		return
	}

	inDir := filepath.Join(s.cfg.DataInRoot, "uploads")
	if err := util.EnsureDir(inDir); err != nil {
		writeErr(w, http.StatusInternalServerError, err)
		return
	}

	type uploadResult struct {
		Filename string `json:"filename"`
		SourceID string `json:"source_id"`
	}
	out := make([]uploadResult, 0, len(files))
	for _, fh := range files {
		if !strings.HasSuffix(strings.ToLower(fh.Filename), ".pdf") {
			continue
		}
		path, err := saveUploadedFile(inDir, fh)
		if err != nil {
			writeErr(w, http.StatusInternalServerError, err)
			return
		}
		src, err := ingest.SourceFromPDF(path)
		if err != nil {
			writeErr(w, http.StatusBadRequest, err)
			return
		}
		if err := s.sourceRepo.UpsertSource(r.Context(), src); err != nil {
			writeErr(w, http.StatusInternalServerError, err)
			return
		}
		out = append(out, uploadResult{Filename: filepath.Base(path), SourceID: src.SourceID})
	}
	writeJSON(w, http.StatusOK, map[string]any{"uploaded": out})
}

type extractRequest struct {
	Purpose       string          `json:"purpose"`
	Sources       []models.Source `json:"sources,omitempty"`
	SourceIDs     []string        `json:"source_ids,omitempty"`
	SourceType    string          `json:"source_type,omitempty"`
	MinConfidence *float64        `json:"min_confidence,omitempty"`
	MaxThemes     int             `json:"max_themes,omitempty"`
}

// handleExtractSync runs the whole pipeline in-process and returns the themes
// in the response. Inline sources are accepted as-is; otherwise the stored
// sources are loaded.
func (s *Server) handleExtractSync(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
		return
	}
	var req extractRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("invalid json: %w", err))
		return
	}
	sources := req.Sources
	if len(sources) == 0 {
		var err error
		if len(req.SourceIDs) > 0 {
			sources, err = s.sourceRepo.ListSourcesByIDs(r.Context(), req.SourceIDs)
		} else {
			sources, err = s.sourceRepo.ListSources(r.Context(), req.SourceType)
		}
		if err != nil {
			writeErr(w, http.StatusInternalServerError, err)
			return
		}
	}

	out, err := s.engine.Run(r.Context(), extraction.Request{
		Purpose:       req.Purpose,
		Sources:       sources,
		MinConfidence: req.MinConfidence,
		MaxThemes:     req.MaxThemes,
	}, nil)
	if err != nil {
		writeErr(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// handleExtractions starts a durable extraction run.
func (s *Server) handleExtractions(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		runs, err := s.runRepo.ListRuns(r.Context(), parseIntDefault(r.URL.Query().Get("limit"), 50))
		if err != nil {
			writeErr(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
	case http.MethodPost:
		var req extractRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeErr(w, http.StatusBadRequest, fmt.Errorf("invalid json: %w", err))
			return
		}
		if strings.TrimSpace(req.Purpose) == "" {
			writeErr(w, http.StatusBadRequest, fmt.Errorf("purpose is required"))
			return
		}
		runID := uuid.NewString()
		we, err := s.temporal.ExecuteWorkflow(r.Context(), tclient.StartWorkflowOptions{
			ID:                    "extract-" + runID,
			TaskQueue:             s.cfg.TemporalTaskQueue,
			WorkflowIDReusePolicy: enumspb.WORKFLOW_ID_REUSE_POLICY_ALLOW_DUPLICATE,
		}, workflows.ThemeExtractionWorkflow, workflows.ThemeExtractionInput{
			RunID:           runID,
			Purpose:         req.Purpose,
			SourceIDs:       req.SourceIDs,
			SourceType:      req.SourceType,
			MinConfidence:   req.MinConfidence,
			MaxThemes:       req.MaxThemes,
			EmbedProviders:  s.providers.EmbedCount(),
			CooldownSeconds: s.cfg.ProviderCooldownSecs,
		})
		if err != nil {
			writeErr(w, http.StatusConflict, err)
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]any{
			"extraction_run_id": runID,
			"workflow_id":       we.GetID(),
			"run_id":            we.GetRunID(),
		})
	default:
		writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
	}
}

func (s *Server) handleExtractionsScoped(w http.ResponseWriter, r *http.Request) {
	parts := strings.Split(strings.Trim(strings.TrimPrefix(r.URL.Path, "/extractions/"), "/"), "/")
	if len(parts) < 1 || parts[0] == "" {
		writeErr(w, http.StatusNotFound, fmt.Errorf("not found"))
		return
	}
	runID := parts[0]

	if len(parts) == 1 {
		if r.Method != http.MethodGet {
			writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
			return
		}
		run, err := s.runRepo.GetRun(r.Context(), runID)
		if err != nil {
			writeErr(w, http.StatusNotFound, err)
			return
		}
		if run.Status == "running" {
			writeJSON(w, http.StatusOK, s.liveProgress(r.Context(), run))
			return
		}
		themes, err := s.themeRepo.ListThemesByRun(r.Context(), runID)
		if err != nil {
			writeErr(w, http.StatusInternalServerError, err)
			return
		}
		report, stats, err := s.runRepo.GetRunReport(r.Context(), runID)
		if err != nil {
			writeErr(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"run":                   run,
			"themes":                themes,
			"methodology_report":    report,
			"familiarization_stats": stats,
		})
		return
	}

	switch parts[1] {
	case "progress":
		if r.Method != http.MethodGet {
			writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
			return
		}
		run, err := s.runRepo.GetRun(r.Context(), runID)
		if err != nil {
			writeErr(w, http.StatusNotFound, err)
			return
		}
		writeJSON(w, http.StatusOK, s.liveProgress(r.Context(), run))
	case "cancel":
		if r.Method != http.MethodPost {
			writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
			return
		}
		if err := s.temporal.CancelWorkflow(r.Context(), "extract-"+runID, ""); err != nil {
			writeErr(w, http.StatusNotFound, err)
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]any{"cancelling": runID})
	default:
		writeErr(w, http.StatusNotFound, fmt.Errorf("not found"))
	}
}

// liveProgress queries the running workflow for its progress snapshot and
// falls back to the stored run state when no workflow can be reached.
func (s *Server) liveProgress(ctx context.Context, run models.ExtractionRun) workflows.ExtractionProgress {
	fallback := workflows.ExtractionProgress{
		RunID:       run.RunID,
		Status:      run.Status,
		TotalStages: extraction.TotalStages,
		Diagnosis:   run.Diagnosis,
	}
	resp, err := s.temporal.QueryWorkflow(ctx, "extract-"+run.RunID, "", workflows.QueryGetExtractionProgress)
	if err != nil {
		return fallback
	}
	var prog workflows.ExtractionProgress
	if err := resp.Get(&prog); err != nil {
		return fallback
	}
	return prog
}

func (s *Server) handleThemeSearch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
		return
	}
	var req struct {
		Query string `json:"query"`
		TopK  int    `json:"top_k"`
		RunID string `json:"run_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("invalid json: %w", err))
		return
	}
	req.Query = strings.TrimSpace(req.Query)
	if req.Query == "" {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("query is required"))
		return
	}

	var (
		queryVectors [][]float32
		info         providers.ProviderInfo
		err          error
	)
	for _, idx := range s.providers.PreferredEmbedOrder() {
		p, _ := s.providers.EmbedProviderByIndex(idx)
		queryVectors, info, err = p.Embed(r.Context(), providers.EmbedRequest{
			Operation: "theme_search_embed",
			Inputs:    []string{req.Query},
			Dimension: s.cfg.EmbedDim,
		})
		if err == nil && len(queryVectors) > 0 {
			break
		}
	}
	if err != nil || len(queryVectors) == 0 {
		writeErr(w, http.StatusBadGateway, fmt.Errorf("embedding providers unavailable"))
		return
	}

	results, err := s.searcher.SearchThemes(r.Context(), queryVectors[0], req.TopK, vector.SearchFilters{RunID: req.RunID})
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"results":        results,
		"embed_provider": info.Name,
		"embed_model":    info.Model,
	})
}

func saveUploadedFile(dstDir string, fh *multipart.FileHeader) (string, error) {
	src, err := fh.Open()
	if err != nil {
		return "", fmt.Errorf("open upload: %w", err)
	}
	defer src.Close()

	tmp, err := os.CreateTemp(dstDir, "upload-*.pdf")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	defer func() {
		_ = tmp.Close()
	}()

	if _, err := io.Copy(tmp, src); err != nil {
		return "", fmt.Errorf("write upload: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", err
	}
	finalPath := util.SafeJoin(dstDir, fh.Filename)
	if err := os.Rename(tmp.Name(), finalPath); err != nil {
		return "", fmt.Errorf("atomic move upload: %w", err)
	}
	return finalPath, nil
}

func firstSingleFile(m map[string][]*multipart.FileHeader) (*multipart.FileHeader, bool) {
	for _, v := range m {
		if len(v) > 0 {
			return v[0], true
		}
	}
	return nil, false
}

func parseIntDefault(s string, fallback int) int {
	if s == "" {
		return fallback
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return fallback
	}
	return n
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, code int, err error) {
	apiErr := toAPIError(code, err)
	writeJSON(w, code, map[string]any{
		"error": map[string]any{
			"code":    apiErr.Code,
			"message": apiErr.Message,
		},
	})
}

type apiError struct {
	Code    string
	Message string
}

func toAPIError(status int, err error) apiError {
	msg := "Request failed."
	code := "TF-API-4000"
	raw := ""
	if err != nil {
		raw = strings.ToLower(err.Error())
	}

	switch {
	case status >= 500:
		switch {
		case strings.Contains(raw, "relation") && strings.Contains(raw, "does not exist"):
			return apiError{
				Code:    "TF-DB-5001",
				Message: "Database schema is not initialized. Run migrations and retry.",
			}
		case strings.Contains(raw, "connect"), strings.Contains(raw, "dial tcp"), strings.Contains(raw, "connection refused"):
			return apiError{
				Code:    "TF-DB-5002",
				Message: "Database connection is unavailable. Check local services and retry.",
			}
		default:
			return apiError{
				Code:    "TF-API-5000",
				Message: "Internal server error. Please retry or check service logs.",
			}
		}
	case status == http.StatusBadRequest:
		code = "TF-API-4001"
		msg = "Invalid request. Check inputs and retry."
	case status == http.StatusNotFound:
		code = "TF-API-4004"
		msg = "Requested resource was not found."
	case status == http.StatusConflict:
		code = "TF-API-4009"
		msg = "Operation conflicts with current state. Retry after checking status."
	case status == http.StatusMethodNotAllowed:
		code = "TF-API-4005"
		msg = "This endpoint does not support the requested method."
	case status == http.StatusBadGateway:
		code = "TF-API-5020"
		msg = "Upstream provider unavailable. Retry shortly."
	}

	// For 4xx, keep user-safe validation context only.
	if status >= 400 && status < 500 && err != nil {
		low := strings.ToLower(err.Error())
		switch {
		case strings.Contains(low, "content is required"):
			msg = "Source content is required."
		case strings.Contains(low, "invalid source type"):
			msg = "Source type must be paper, video, podcast, or social."
		case strings.Contains(low, "purpose"):
			msg = "A valid research purpose is required."
		case strings.Contains(low, "no files provided"):
			msg = "No PDF files were provided."
		case strings.Contains(low, "query is required"):
			msg = "A search query is required."
		case strings.Contains(low, "invalid json"):
			msg = "Malformed JSON request body."
		case strings.Contains(low, "at least one source"):
			msg = "At least one source is required."
		}
	}

	return apiError{Code: code, Message: msg}
}

func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,DELETE,OPTIONS")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
