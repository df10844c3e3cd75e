package main

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/hazyhaar/docsight/docpipe"
	"github.com/hazyhaar/docsight/horosafe"
	"github.com/hazyhaar/docsight/observability"
	"github.com/hazyhaar/docsight/pdfraster"
	"github.com/hazyhaar/docsight/preprocess"
	"github.com/hazyhaar/docsight/recognize"
	"github.com/hazyhaar/docsight/shield"
)

// Error codes of the {error, code} body.
const (
	codeMissingFile      = "MISSING_FILE"
	codeInvalidRequest   = "INVALID_REQUEST"
	codeUnsupported      = "UNSUPPORTED_FORMAT"
	codeTooLarge         = "IMAGE_TOO_LARGE"
	codePreprocessing    = "PREPROCESSING_ERROR"
	codeProcessing       = "PROCESSING_ERROR"
	codeInit             = "INIT_ERROR"
	codeInternal         = "INTERNAL_ERROR"
	multipartMemoryBytes = 32 << 20
)

type server struct {
	pipe    *docpipe.Pipeline
	runs    *observability.RunLog // nil when OBS_DB is unset
	version string
	logger  *slog.Logger
}

type ocrResponse struct {
	Text             string             `json:"text"`
	Confidence       float64            `json:"confidence"`
	ProcessingTimeMs int64              `json:"processing_time_ms"`
	Warnings         []string           `json:"warnings"`
	Engine           string             `json:"engine"`
	RunID            string             `json:"run_id"`
	Source           docpipe.Source     `json:"source"`
	Preprocessing    *preprocessSummary `json:"preprocessing,omitempty"`
}

// preprocessSummary folds the per-image preprocessing results of one request.
type preprocessSummary struct {
	Preset      string                  `json:"preset"`
	Images      int                     `json:"images"`
	TotalTimeMs int64                   `json:"total_time_ms"`
	Steps       []preprocess.StepTiming `json:"steps"`
}

type healthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}

type infoResponse struct {
	Version          string           `json:"version"`
	AvailableEngines []recognize.Info `json:"available_engines"`
	DefaultEngine    string           `json:"default_engine"`
	MaxFileSizeBytes int64            `json:"max_file_size_bytes"`
	DefaultLanguage  string           `json:"default_language"`
	DefaultPreset    string           `json:"default_preset"`
}

// routes mounts the HTTP surface. stack runs after chi's RequestID and
// Recoverer; mcpHandler may be nil.
func (s *server) routes(stack []func(http.Handler) http.Handler, mcpHandler http.Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.Recoverer)
	for _, mw := range stack {
		r.Use(mw)
	}

	r.Get("/health", s.handleHealth)
	r.Get("/info", s.handleInfo)
	r.Post("/ocr", s.handleOCR)
	r.Post("/ocr/{engine}", s.handleOCR)
	if s.runs != nil {
		r.Get("/runs", s.handleRuns)
	}
	if mcpHandler != nil {
		r.Handle("/mcp", mcpHandler)
	}
	return r
}

func (s *server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{Status: "ok", Version: s.version})
}

func (s *server) handleInfo(w http.ResponseWriter, _ *http.Request) {
	reg := s.pipe.Registry()
	writeJSON(w, http.StatusOK, infoResponse{
		Version:          s.version,
		AvailableEngines: reg.Info(),
		DefaultEngine:    reg.DefaultName(),
		MaxFileSizeBytes: s.pipe.MaxFileSize(),
		DefaultLanguage:  s.pipe.DefaultLanguage(),
		DefaultPreset:    s.pipe.DefaultPreset().String(),
	})
}

func (s *server) handleOCR(w http.ResponseWriter, r *http.Request) {
	logger := shield.GetLogger(r.Context())

	if err := r.ParseMultipartForm(multipartMemoryBytes); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large", codeTooLarge)
			return
		}
		writeError(w, http.StatusBadRequest, "failed to parse multipart: "+err.Error(), codeInvalidRequest)
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			writeError(w, http.StatusBadRequest, "no file provided in request", codeMissingFile)
			return
		}
		writeError(w, http.StatusBadRequest, "failed to read file: "+err.Error(), codeInvalidRequest)
		return
	}
	defer file.Close()

	limit := s.pipe.MaxFileSize()
	if header.Size > limit {
		writeOCRError(w, logger, &docpipe.TooLargeError{Size: header.Size, Max: limit})
		return
	}
	data, err := horosafe.LimitedReadAll(file, limit)
	if err != nil {
		if errors.Is(err, horosafe.ErrTooLarge) {
			writeOCRError(w, logger, &docpipe.TooLargeError{Size: header.Size, Max: limit})
			return
		}
		writeError(w, http.StatusBadRequest, "failed to read file: "+err.Error(), codeInvalidRequest)
		return
	}

	opts := docpipe.Options{
		Engine:    chi.URLParam(r, "engine"),
		Languages: parseLanguages(r.FormValue("languages")),
		Preset:    r.FormValue("preset"),
	}
	res, err := s.pipe.Process(r.Context(), data, opts)
	if err != nil {
		writeOCRError(w, logger, err)
		return
	}
	writeJSON(w, http.StatusOK, ocrResponse{
		Text:             res.Text,
		Confidence:       res.Confidence,
		ProcessingTimeMs: res.ProcessingTimeMs,
		Warnings:         res.Warnings,
		Engine:           res.Engine,
		RunID:            res.RunID,
		Source:           res.Source,
		Preprocessing:    summarize(res.Preprocessing),
	})
}

func (s *server) handleRuns(w http.ResponseWriter, r *http.Request) {
	f := observability.RunFilter{
		Engine: r.URL.Query().Get("engine"),
		Failed: r.URL.Query().Get("failed") == "true",
		Limit:  queryInt(r, "limit", 100),
	}
	if v := r.URL.Query().Get("since"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "since: "+err.Error(), codeInvalidRequest)
			return
		}
		f.StartTime = &t
	}
	runs, err := s.runs.Query(r.Context(), f)
	if err != nil {
		shield.GetLogger(r.Context()).Error("runs query", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to query runs", codeInternal)
		return
	}
	if runs == nil {
		runs = []*observability.Run{}
	}
	writeJSON(w, http.StatusOK, runs)
}

// summarize merges per-image preprocessing results, summing step timings
// by name in first-seen order.
func summarize(results []*preprocess.Result) *preprocessSummary {
	if len(results) == 0 {
		return nil
	}
	sum := &preprocessSummary{Preset: results[0].Preset, Images: len(results), Steps: []preprocess.StepTiming{}}
	index := make(map[string]int)
	for _, pr := range results {
		if pr == nil {
			continue
		}
		sum.TotalTimeMs += pr.TotalTimeMs
		for _, st := range pr.Steps {
			i, ok := index[st.Name]
			if !ok {
				index[st.Name] = len(sum.Steps)
				sum.Steps = append(sum.Steps, st)
				continue
			}
			sum.Steps[i].Ms += st.Ms
		}
	}
	return sum
}

// statusFor maps a pipeline error to an HTTP status and error code.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, docpipe.ErrTooLarge):
		return http.StatusRequestEntityTooLarge, codeTooLarge
	case errors.Is(err, docpipe.ErrUnsupportedFormat):
		return http.StatusBadRequest, codeUnsupported
	case errors.Is(err, docpipe.ErrEmptyInput):
		return http.StatusBadRequest, codeMissingFile
	case errors.Is(err, docpipe.ErrInvalidOptions), errors.Is(err, recognize.ErrUnknownEngine):
		return http.StatusBadRequest, codeInvalidRequest
	case errors.Is(err, recognize.ErrNoEngines), errors.Is(err, recognize.ErrNotEnabled):
		return http.StatusInternalServerError, codeInit
	case errors.Is(err, preprocess.ErrDecodeFailed):
		return http.StatusBadRequest, codePreprocessing
	case errors.Is(err, preprocess.ErrStepFailed):
		return http.StatusInternalServerError, codePreprocessing
	case errors.Is(err, pdfraster.ErrMalformedDocument):
		return http.StatusBadRequest, codeProcessing
	case errors.Is(err, docpipe.ErrRecognition):
		return http.StatusInternalServerError, codeProcessing
	default:
		return http.StatusInternalServerError, codeInternal
	}
}

func writeOCRError(w http.ResponseWriter, logger *slog.Logger, err error) {
	status, code := statusFor(err)
	if status >= http.StatusInternalServerError {
		logger.Error("ocr failed", "code", code, "error", err)
	} else {
		logger.Warn("ocr rejected", "code", code, "error", err)
	}
	msg := err.Error()
	if code == codeInternal {
		msg = "internal error"
	}
	writeError(w, status, msg, code)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg, code string) {
	writeJSON(w, status, map[string]string{"error": msg, "code": code})
}

func queryInt(r *http.Request, key string, def int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return v
}
