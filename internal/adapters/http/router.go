package httpadapter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"golang.org/x/time/rate"

	"github.com/Floyce/OCR-Sorter/internal/config"
	"github.com/Floyce/OCR-Sorter/internal/core/domain"
	"github.com/Floyce/OCR-Sorter/internal/core/ports"
	"github.com/Floyce/OCR-Sorter/internal/observability/metrics"
)

const serviceName = "api"

// WorkbookWriter renders a registry snapshot as a spreadsheet.
type WorkbookWriter func(w io.Writer, snapshot domain.Snapshot) error

type Router struct {
	cfg       config.Config
	runner    ports.ClassificationRunner
	organizer ports.BucketOrganizer
	ingestor  ports.ScanIngestor

	workbook WorkbookWriter
	metrics  *metrics.HTTPServerMetrics
	logger   *slog.Logger
	limiter  *rate.Limiter
}

type Option func(*Router)

func WithWorkbook(writer WorkbookWriter) Option {
	return func(rt *Router) { rt.workbook = writer }
}

func WithMetrics(m *metrics.HTTPServerMetrics) Option {
	return func(rt *Router) { rt.metrics = m }
}

func WithLogger(logger *slog.Logger) Option {
	return func(rt *Router) {
		if logger != nil {
			rt.logger = logger
		}
	}
}

func NewRouter(
	cfg config.Config,
	runner ports.ClassificationRunner,
	organizer ports.BucketOrganizer,
	ingestor ports.ScanIngestor,
	opts ...Option,
) *Router {
	rt := &Router{
		cfg:       cfg,
		runner:    runner,
		organizer: organizer,
		ingestor:  ingestor,
		logger:    slog.Default(),
	}
	if cfg.APIRateLimitRPS > 0 {
		burst := max(cfg.APIRateLimitBurst, 1)
		rt.limiter = rate.NewLimiter(rate.Limit(cfg.APIRateLimitRPS), burst)
	}
	for _, opt := range opts {
		opt(rt)
	}
	return rt
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", rt.healthz)

	mux.HandleFunc("POST /v1/runs", rt.startRun)
	mux.HandleFunc("GET /v1/runs/current", rt.currentRun)
	mux.HandleFunc("POST /v1/runs/current/cancel", rt.cancelRun)
	mux.HandleFunc("POST /v1/runs/reset", rt.resetRun)
	mux.HandleFunc("POST /v1/batches", rt.enqueueBatch)

	mux.HandleFunc("GET /v1/buckets", rt.listBuckets)
	mux.HandleFunc("POST /v1/buckets", rt.createBucket)
	mux.HandleFunc("PATCH /v1/buckets/{id}", rt.renameBucket)
	mux.HandleFunc("DELETE /v1/buckets/{id}", rt.deleteBucket)
	mux.HandleFunc("PUT /v1/buckets/{id}/view", rt.viewBucket)
	mux.HandleFunc("POST /v1/buckets/{id}/selection", rt.selectDocuments)
	mux.HandleFunc("GET /v1/selection", rt.getSelection)
	mux.HandleFunc("DELETE /v1/selection", rt.clearSelection)
	mux.HandleFunc("POST /v1/buckets/{id}/documents/delete", rt.deleteDocuments)
	mux.HandleFunc("POST /v1/buckets/{id}/documents/move", rt.moveDocuments)

	mux.HandleFunc("GET /v1/export.xlsx", rt.exportWorkbook)

	var handler http.Handler = mux
	handler = rt.rateLimitMiddleware(handler)
	handler = accessLogMiddleware(rt.logger, handler)
	if rt.metrics != nil {
		handler = rt.metrics.Middleware(serviceName, handler)
	}
	return requestIDMiddleware(handler)
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type runRequest struct {
	Images []domain.ScanInput `json:"images"`
}

type runAccepted struct {
	RunID  string `json:"run_id"`
	Images int    `json:"images"`
}

func (rt *Router) startRun(w http.ResponseWriter, r *http.Request) {
	if state := rt.runner.Report().State; state != domain.RunIdle {
		writeError(w, domain.WrapError(domain.ErrRunNotIdle, "start run", fmt.Errorf("state=%s", state)))
		return
	}
	inputs, uploaded, err := rt.readScanInputs(w, r)
	if err != nil {
		writeError(w, err)
		return
	}
	runID, err := rt.ingestor.Submit(r.Context(), inputs)
	if err != nil {
		rt.discardUploads(r, inputs, uploaded)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, runAccepted{RunID: runID, Images: len(inputs)})
}

func (rt *Router) enqueueBatch(w http.ResponseWriter, r *http.Request) {
	inputs, uploaded, err := rt.readScanInputs(w, r)
	if err != nil {
		writeError(w, err)
		return
	}
	runID, err := rt.ingestor.Enqueue(r.Context(), inputs)
	if err != nil {
		rt.discardUploads(r, inputs, uploaded)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, runAccepted{RunID: runID, Images: len(inputs)})
}

// readScanInputs accepts either a JSON list of image references or a
// multipart upload whose "files" parts are stored first; uploaded reports the latter.
func (rt *Router) readScanInputs(w http.ResponseWriter, r *http.Request) (inputs []domain.ScanInput, uploaded bool, err error) {
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		inputs, err = rt.storeUploads(w, r)
		return inputs, true, err
	}
	var req runRequest
	if err := decodeJSON(r, &req); err != nil {
		return nil, false, err
	}
	return req.Images, false, nil
}

// discardUploads removes scans stored for a request that was then rejected.
// Caller-supplied references are never touched.
func (rt *Router) discardUploads(r *http.Request, inputs []domain.ScanInput, uploaded bool) {
	if !uploaded || len(inputs) == 0 {
		return
	}
	if err := rt.ingestor.Discard(context.WithoutCancel(r.Context()), inputs); err != nil {
		rt.logger.Warn("upload_discard_failed", "images", len(inputs), "error", err)
	}
}

func (rt *Router) storeUploads(w http.ResponseWriter, r *http.Request) ([]domain.ScanInput, error) {
	if rt.cfg.MaxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, rt.cfg.MaxUploadBytes)
	}
	reader, err := r.MultipartReader()
	if err != nil {
		return nil, domain.WrapError(domain.ErrInvalidInput, "read upload", err)
	}

	var inputs []domain.ScanInput
	for {
		part, err := reader.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			rt.discardUploads(r, inputs, true)
			return nil, domain.WrapError(domain.ErrInvalidInput, "read upload", err)
		}
		if part.FormName() != "files" || part.FileName() == "" {
			_ = part.Close()
			continue
		}
		in, err := rt.ingestor.Store(r.Context(), part.FileName(), part)
		_ = part.Close()
		if err != nil {
			rt.discardUploads(r, inputs, true)
			return nil, err
		}
		inputs = append(inputs, in)
	}
	if len(inputs) == 0 {
		return nil, domain.WrapError(domain.ErrInvalidInput, "read upload", errors.New("multipart field 'files' is required"))
	}
	return inputs, nil
}

func (rt *Router) currentRun(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, rt.runner.Report())
}

func (rt *Router) cancelRun(w http.ResponseWriter, _ *http.Request) {
	rt.runner.Cancel()
	writeJSON(w, http.StatusAccepted, rt.runner.Report())
}

func (rt *Router) resetRun(w http.ResponseWriter, _ *http.Request) {
	if err := rt.runner.Reset(); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rt.runner.Report())
}

func (rt *Router) listBuckets(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, rt.organizer.Snapshot())
}

func (rt *Router) createBucket(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Code        string `json:"code"`
		DisplayName string `json:"display_name"`
	}
	if r.ContentLength != 0 {
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, err)
			return
		}
	}

	var (
		bucket domain.Bucket
		err    error
	)
	if strings.TrimSpace(req.Code) == "" {
		bucket, err = rt.organizer.CreateManualBucket()
	} else {
		bucket, err = rt.organizer.CreateBucket(req.Code, req.DisplayName)
	}
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, bucket)
}

func (rt *Router) renameBucket(w http.ResponseWriter, r *http.Request) {
	id, ok := bucketIDFromPath(w, r)
	if !ok {
		return
	}
	var req struct {
		DisplayName string `json:"display_name"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if err := rt.organizer.RenameBucket(id, req.DisplayName); err != nil {
		writeError(w, err)
		return
	}
	bucket, _ := rt.organizer.Snapshot().Find(id)
	writeJSON(w, http.StatusOK, bucket)
}

func (rt *Router) deleteBucket(w http.ResponseWriter, r *http.Request) {
	id, ok := bucketIDFromPath(w, r)
	if !ok {
		return
	}
	if err := rt.organizer.DeleteBucket(id); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (rt *Router) viewBucket(w http.ResponseWriter, r *http.Request) {
	id, ok := bucketIDFromPath(w, r)
	if !ok {
		return
	}
	if err := rt.organizer.ViewBucket(id); err != nil {
		writeError(w, err)
		return
	}
	bucket, _ := rt.organizer.Snapshot().Find(id)
	writeJSON(w, http.StatusOK, bucket)
}

type selectionRequest struct {
	Indices []int `json:"indices"`
	Toggle  *int  `json:"toggle,omitempty"`
}

type selectionResponse struct {
	BucketID domain.BucketID `json:"bucket_id,omitempty"`
	Indices  []int           `json:"indices"`
}

func (rt *Router) selectDocuments(w http.ResponseWriter, r *http.Request) {
	id, ok := bucketIDFromPath(w, r)
	if !ok {
		return
	}
	var req selectionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	var err error
	if req.Toggle != nil {
		err = rt.organizer.ToggleDocument(id, *req.Toggle)
	} else {
		err = rt.organizer.SelectDocuments(id, req.Indices)
	}
	if err != nil {
		writeError(w, err)
		return
	}
	rt.getSelection(w, r)
}

func (rt *Router) getSelection(w http.ResponseWriter, _ *http.Request) {
	id, indices := rt.organizer.Selection()
	if indices == nil {
		indices = []int{}
	}
	writeJSON(w, http.StatusOK, selectionResponse{BucketID: id, Indices: indices})
}

func (rt *Router) clearSelection(w http.ResponseWriter, _ *http.Request) {
	rt.organizer.DeselectAll()
	w.WriteHeader(http.StatusNoContent)
}

type documentsResponse struct {
	Documents []domain.Document `json:"documents"`
}

func (rt *Router) deleteDocuments(w http.ResponseWriter, r *http.Request) {
	id, ok := bucketIDFromPath(w, r)
	if !ok {
		return
	}
	var req selectionRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, err)
			return
		}
	}
	removed, err := rt.organizer.DeleteSelected(id, req.Indices...)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, documentsResponse{Documents: nonNilDocuments(removed)})
}

func (rt *Router) moveDocuments(w http.ResponseWriter, r *http.Request) {
	id, ok := bucketIDFromPath(w, r)
	if !ok {
		return
	}
	var req struct {
		TargetBucketID domain.BucketID `json:"target_bucket_id"`
		Indices        []int           `json:"indices"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	moved, err := rt.organizer.MoveSelected(id, req.TargetBucketID, req.Indices...)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, documentsResponse{Documents: nonNilDocuments(moved)})
}

func (rt *Router) exportWorkbook(w http.ResponseWriter, _ *http.Request) {
	if rt.workbook == nil {
		writeJSON(w, http.StatusNotImplemented, map[string]string{"error": "workbook export is not configured"})
		return
	}
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="buckets.xlsx"`)
	if err := rt.workbook(w, rt.organizer.Snapshot()); err != nil {
		rt.logger.Error("workbook_export_failed", "error", err)
	}
}

func bucketIDFromPath(w http.ResponseWriter, r *http.Request) (domain.BucketID, bool) {
	id, err := domain.ParseBucketID(r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return 0, false
	}
	return id, true
}

func decodeJSON(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return domain.WrapError(domain.ErrInvalidInput, "decode request", fmt.Errorf("invalid json: %w", err))
	}
	return nil
}

func nonNilDocuments(docs []domain.Document) []domain.Document {
	if docs == nil {
		return []domain.Document{}
	}
	return docs
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, mapErrorToHTTPStatus(err), map[string]string{"error": err.Error()})
}
