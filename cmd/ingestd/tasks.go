package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/parcelworks/landgrid/internal/ingest"
	"github.com/parcelworks/landgrid/internal/platform/gdb"
	"github.com/parcelworks/landgrid/internal/platform/storage"
	"github.com/parcelworks/landgrid/internal/schema"
)

// processCSV is the background task behind the CSV upload endpoints. It
// counts the file's rows for progress reporting, then streams it through the
// pipeline. A failure to open the source is recorded on the batch before the
// error is surfaced to the runner.
func (s *Server) processCSV(ctx context.Context, path string, st schema.SourceType, batchID uuid.UUID, sourceName string) error {
	if total, err := ingest.CountDataRows(path, s.log); err != nil {
		s.log.Warn("row count failed, progress will have no total",
			"batch_id", batchID, "error", err)
	} else if err := s.repo.SetTotalRecords(ctx, batchID, total); err != nil {
		if !errors.Is(err, storage.ErrBatchNotFound) {
			s.log.Warn("could not record row total", "batch_id", batchID, "error", err)
		}
	}

	src, err := ingest.OpenCSV(path, s.log)
	if err != nil {
		s.failBatch(ctx, batchID, fmt.Sprintf("cannot open file: %v", err))
		return err
	}
	s.log.Info("opened csv source",
		"batch_id", batchID,
		"encoding", src.Encoding(),
		"columns", len(src.Columns()),
	)

	return s.pipeline.Run(ctx, src, st, batchID, sourceName)
}

// processGDB is the background task behind the geodatabase upload endpoint.
// The caller owns scratch cleanup; this task only streams the layer.
func (s *Server) processGDB(ctx context.Context, gdbPath, layerName string, batchID uuid.UUID, sourceName string) error {
	src, err := gdb.OpenLayer(gdbPath, layerName, s.log)
	if err != nil {
		s.failBatch(ctx, batchID, fmt.Sprintf("cannot open layer %q: %v", layerName, err))
		return err
	}

	return s.pipeline.Run(ctx, src, schema.SourceParcel, batchID, sourceName)
}

func (s *Server) failBatch(ctx context.Context, batchID uuid.UUID, reason string) {
	if err := s.repo.Fail(ctx, batchID, reason); err != nil {
		s.log.Error("could not mark batch failed", "batch_id", batchID, "error", err)
	}
}
