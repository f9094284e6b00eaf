package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/parcelworks/landgrid/internal/ingest"
	"github.com/parcelworks/landgrid/internal/platform/gdb"
	"github.com/parcelworks/landgrid/internal/platform/storage"
	"github.com/parcelworks/landgrid/internal/schema"
)

// Server holds the HTTP surface of the ingestion service. The handlers are
// thin: they accept the upload, reject obviously bad files, create the batch
// record and hand the stream to a background task.
type Server struct {
	repo     *storage.BatchRepository
	pipeline *ingest.Pipeline
	runner   *ingest.Runner
	cfg      ServerConfig
	log      *slog.Logger

	// baseCtx parents every background task so in-flight batches survive
	// the request that started them and stop on service shutdown.
	baseCtx context.Context
}

// ServerConfig holds upload handling configuration.
type ServerConfig struct {
	ScratchDir     string
	MaxUploadBytes int64
	DefaultLayer   string
}

// NewServer wires the HTTP surface.
func NewServer(baseCtx context.Context, repo *storage.BatchRepository, pipeline *ingest.Pipeline, runner *ingest.Runner, cfg ServerConfig, log *slog.Logger) *Server {
	return &Server{repo: repo, pipeline: pipeline, runner: runner, cfg: cfg, log: log, baseCtx: baseCtx}
}

// Routes registers all endpoints on mux.
func (s *Server) Routes(mux *http.ServeMux) {
	mux.HandleFunc("/health", s.handleHealth)

	mux.HandleFunc("/api/v1/ingest/parcel/csv", s.handleCSVUpload(schema.SourceParcel))
	mux.HandleFunc("/api/v1/ingest/retr/csv", s.handleCSVUpload(schema.SourceRETR))
	mux.HandleFunc("/api/v1/ingest/dfi/csv", s.handleCSVUpload(schema.SourceDFI))
	mux.HandleFunc("/api/v1/ingest/parcel/gdb", s.handleGDBUpload)

	mux.HandleFunc("/api/v1/ingest/status/", s.handleStatus)
	mux.HandleFunc("/api/v1/ingest/statistics", s.handleStatistics)
}

type ingestResponse struct {
	BatchID string `json:"batch_id"`
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleCSVUpload accepts a delimited-text upload for one source type.
func (s *Server) handleCSVUpload(st schema.SourceType) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, "MethodNotAllowed", "POST required")
			return
		}

		upload, err := s.acceptUpload(r, []string{".csv", ".txt"})
		if err != nil {
			writeError(w, http.StatusBadRequest, "InvalidUpload", err.Error())
			return
		}

		if ok, reason := ingest.ValidateCSV(upload.path, s.log); !ok {
			os.Remove(upload.path)
			writeError(w, http.StatusBadRequest, "InvalidCSVFormat", reason)
			return
		}

		batchID, err := s.repo.Create(r.Context(), upload.sourceName, string(st), string(schema.FormatCSV), &upload.size, nil)
		if err != nil {
			os.Remove(upload.path)
			writeError(w, http.StatusInternalServerError, "BatchCreateFailed", err.Error())
			return
		}

		path := upload.path
		sourceName := upload.sourceName
		s.runner.Go(s.baseCtx, "process-csv", batchID, func(ctx context.Context) error {
			defer os.Remove(path)
			return s.processCSV(ctx, path, st, batchID, sourceName)
		})

		writeJSON(w, http.StatusAccepted, ingestResponse{
			BatchID: batchID.String(),
			Status:  string(storage.BatchProcessing),
			Message: "upload accepted, poll status for progress",
		})
	}
}

// handleGDBUpload accepts a zipped geodatabase containing parcel features.
func (s *Server) handleGDBUpload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "MethodNotAllowed", "POST required")
		return
	}

	upload, err := s.acceptUpload(r, []string{".zip"})
	if err != nil {
		writeError(w, http.StatusBadRequest, "InvalidUpload", err.Error())
		return
	}

	layerName := r.FormValue("layer_name")
	if layerName == "" {
		layerName = s.cfg.DefaultLayer
	}

	scratch := filepath.Join(s.cfg.ScratchDir, "gdb", uuid.NewString())
	gdbPath, err := gdb.Extract(upload.path, scratch, s.log)
	if err != nil {
		os.Remove(upload.path)
		gdb.Cleanup(scratch, s.log)
		writeError(w, http.StatusBadRequest, "InvalidGDBFormat", err.Error())
		return
	}

	if ok, reason := gdb.Validate(gdbPath); !ok {
		os.Remove(upload.path)
		gdb.Cleanup(scratch, s.log)
		writeError(w, http.StatusBadRequest, "InvalidGDBFormat", reason)
		return
	}

	info, err := gdb.Inspect(gdbPath, s.log)
	if err != nil {
		os.Remove(upload.path)
		gdb.Cleanup(scratch, s.log)
		writeError(w, http.StatusBadRequest, "InvalidGDBFormat", err.Error())
		return
	}

	li, ok := info.LayerInfo[layerName]
	if !ok || li.Error != "" {
		os.Remove(upload.path)
		gdb.Cleanup(scratch, s.log)
		msg := fmt.Sprintf("layer %q not found (available: %s)", layerName, strings.Join(info.Layers, ", "))
		if ok {
			msg = fmt.Sprintf("layer %q unreadable: %s", layerName, li.Error)
		}
		writeError(w, http.StatusBadRequest, "InvalidLayer", msg)
		return
	}

	total := li.FeatureCount
	batchID, err := s.repo.Create(r.Context(), upload.sourceName, string(schema.SourceParcel), string(schema.FormatGDB), &upload.size, &total)
	if err != nil {
		os.Remove(upload.path)
		gdb.Cleanup(scratch, s.log)
		writeError(w, http.StatusInternalServerError, "BatchCreateFailed", err.Error())
		return
	}

	zipPath := upload.path
	sourceName := upload.sourceName
	s.runner.Go(s.baseCtx, "process-gdb", batchID, func(ctx context.Context) error {
		defer os.Remove(zipPath)
		defer gdb.Cleanup(scratch, s.log)
		return s.processGDB(ctx, gdbPath, layerName, batchID, sourceName)
	})

	writeJSON(w, http.StatusAccepted, ingestResponse{
		BatchID: batchID.String(),
		Status:  string(storage.BatchProcessing),
		Message: fmt.Sprintf("upload accepted, processing layer %q (%d features)", layerName, total),
	})
}

// handleStatus returns one batch by id: GET /api/v1/ingest/status/{batch_id}.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "MethodNotAllowed", "GET required")
		return
	}

	idStr := strings.TrimPrefix(r.URL.Path, "/api/v1/ingest/status/")
	batchID, err := uuid.Parse(idStr)
	if err != nil {
		writeError(w, http.StatusBadRequest, "InvalidBatchID", fmt.Sprintf("%q is not a valid batch id", idStr))
		return
	}

	batch, err := s.repo.Get(r.Context(), batchID)
	if err != nil {
		if errors.Is(err, storage.ErrBatchNotFound) {
			writeError(w, http.StatusNotFound, "BatchNotFound", idStr)
			return
		}
		writeError(w, http.StatusInternalServerError, "StoreError", err.Error())
		return
	}

	writeJSON(w, http.StatusOK, batch)
}

func (s *Server) handleStatistics(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "MethodNotAllowed", "GET required")
		return
	}

	stats, err := s.repo.GetStatistics(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "StoreError", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

type upload struct {
	path       string
	sourceName string
	size       int64
}

// acceptUpload validates and saves the multipart upload to scratch storage.
func (s *Server) acceptUpload(r *http.Request, allowedExts []string) (*upload, error) {
	r.Body = http.MaxBytesReader(nil, r.Body, s.cfg.MaxUploadBytes)

	file, header, err := r.FormFile("file")
	if err != nil {
		return nil, fmt.Errorf("missing or oversized file field: %w", err)
	}
	defer file.Close()

	sourceName := strings.TrimSpace(r.FormValue("source_name"))
	if sourceName == "" {
		return nil, errors.New("source_name is required")
	}

	ext := strings.ToLower(filepath.Ext(header.Filename))
	allowed := false
	for _, a := range allowedExts {
		if ext == a {
			allowed = true
			break
		}
	}
	if !allowed {
		return nil, fmt.Errorf("invalid file extension %q (allowed: %s)", ext, strings.Join(allowedExts, ", "))
	}

	dir := filepath.Join(s.cfg.ScratchDir, "uploads")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}

	safeName := strings.NewReplacer(" ", "_", "/", "_").Replace(sourceName)
	dst := filepath.Join(dir, fmt.Sprintf("%s_%s%s", safeName, uuid.NewString(), ext))

	out, err := os.Create(dst)
	if err != nil {
		return nil, fmt.Errorf("save upload: %w", err)
	}
	defer out.Close()

	size, err := io.Copy(out, file)
	if err != nil {
		os.Remove(dst)
		return nil, fmt.Errorf("save upload: %w", err)
	}

	s.log.Info("saved upload", "path", dst, "bytes", size, "source_name", sourceName)
	return &upload{path: dst, sourceName: sourceName, size: size}, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, kind, msg string) {
	writeJSON(w, status, errorResponse{Error: kind, Message: msg})
}
