package web

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/grovekeeper/intervention-uploader/internal/core"
	"github.com/grovekeeper/intervention-uploader/internal/logging"
)

// maxGeometrySize caps a single geometry document upload (5MB).
const maxGeometrySize = 5 << 20

// handleLoadTable ingests a source table upload, replacing the current store
// contents. Geometry documents may accompany the table in the same form; any
// file whose name follows the folio convention is attached during ingestion.
func (s *Server) handleLoadTable(w http.ResponseWriter, r *http.Request) {
	maxSize := s.cfg.Upload.MaxFileSize
	r.Body = http.MaxBytesReader(w, r.Body, maxSize)

	if err := r.ParseMultipartForm(maxSize); err != nil {
		writeBadRequest(w, "file too large or invalid form")
		return
	}

	file, _, err := r.FormFile("file")
	if err != nil {
		writeBadRequest(w, "no file provided")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		s.respondError(w, r, fmt.Errorf("read upload: %w", err))
		return
	}

	docs, err := geometryFiles(r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	stats, err := s.service.LoadTable(data, docs)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	logging.FromContext(r.Context()).Info("table loaded", "records", stats.Total)
	writeJSON(w, http.StatusOK, map[string]any{
		"stats":   stats,
		"records": s.service.Records(),
	})
}

// handleAttachFolder bulk-attaches geometry documents to already loaded
// records. Files not matching the folio naming convention are ignored.
func (s *Server) handleAttachFolder(w http.ResponseWriter, r *http.Request) {
	maxSize := s.cfg.Upload.MaxFileSize
	r.Body = http.MaxBytesReader(w, r.Body, maxSize)

	if err := r.ParseMultipartForm(maxSize); err != nil {
		writeBadRequest(w, "file too large or invalid form")
		return
	}

	docs, err := geometryFiles(r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	if len(docs) == 0 {
		writeBadRequest(w, "no geometry files provided")
		return
	}

	attached := s.service.AttachFolder(docs)

	logging.FromContext(r.Context()).Info("geometry folder attached",
		"files", len(docs),
		"attached", attached,
	)
	writeJSON(w, http.StatusOK, map[string]any{
		"attached": attached,
		"stats":    s.service.Stats(),
	})
}

// geometryFiles collects every uploaded geometry document from the multipart
// form, keyed by its file name.
func geometryFiles(r *http.Request) (core.MapDocumentSource, error) {
	docs := core.MapDocumentSource{}
	if r.MultipartForm == nil {
		return docs, nil
	}

	for field, headers := range r.MultipartForm.File {
		// "file" carries the source table, not geometry
		if field == "file" {
			continue
		}
		for _, header := range headers {
			if _, ok := core.FolioFromFilename(header.Filename); !ok {
				continue
			}

			f, err := header.Open()
			if err != nil {
				return nil, fmt.Errorf("open %s: %w", header.Filename, err)
			}
			data, err := io.ReadAll(io.LimitReader(f, maxGeometrySize))
			f.Close()
			if err != nil {
				return nil, fmt.Errorf("read %s: %w", header.Filename, err)
			}
			docs[header.Filename] = data
		}
	}
	return docs, nil
}

// handleListRecords returns the current records in load order.
func (s *Server) handleListRecords(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.service.Records())
}

// handleStats returns the review summary.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.service.Stats())
}

// handleUpdateRecord applies an edit patch to one record and returns the
// re-validated result.
func (s *Server) handleUpdateRecord(w http.ResponseWriter, r *http.Request) {
	id, ok := recordID(w, r)
	if !ok {
		return
	}

	var patch core.Patch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeBadRequest(w, "invalid patch body")
		return
	}

	record, err := s.service.UpdateRecord(id, patch)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, record)
}

// handleAttachGeometry attaches a manually supplied geometry document to one
// record. The request body is the raw document.
func (s *Server) handleAttachGeometry(w http.ResponseWriter, r *http.Request) {
	id, ok := recordID(w, r)
	if !ok {
		return
	}

	data, err := io.ReadAll(io.LimitReader(r.Body, maxGeometrySize))
	if err != nil {
		writeBadRequest(w, "failed to read request body")
		return
	}

	if err := s.service.AttachRecordGeometry(id, data); err != nil {
		s.respondError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status": "attached",
		"stats":  s.service.Stats(),
	})
}

// handleDeleteRecord removes one record.
func (s *Server) handleDeleteRecord(w http.ResponseWriter, r *http.Request) {
	id, ok := recordID(w, r)
	if !ok {
		return
	}

	if err := s.service.DeleteRecord(id); err != nil {
		s.respondError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status": "deleted",
		"stats":  s.service.Stats(),
	})
}

// handleDeleteInvalid removes every record not ready for upload.
func (s *Server) handleDeleteInvalid(w http.ResponseWriter, r *http.Request) {
	removed, err := s.service.DeleteInvalid()
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"deleted": removed,
		"stats":   s.service.Stats(),
	})
}

// handleDeleteMissingGeometry removes every record still pending a geometry
// document.
func (s *Server) handleDeleteMissingGeometry(w http.ResponseWriter, r *http.Request) {
	removed, err := s.service.DeleteMissingGeometry()
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"deleted": removed,
		"stats":   s.service.Stats(),
	})
}

// handleStartRun begins an asynchronous submission run.
func (s *Server) handleStartRun(w http.ResponseWriter, r *http.Request) {
	runID, err := s.service.StartRun(r.Context())
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	logging.FromContext(r.Context()).Info("submission run started", "run_id", runID)
	writeJSON(w, http.StatusAccepted, map[string]string{"run_id": runID})
}

// handleRunProgress streams run progress via Server-Sent Events.
// Supports resumption via lastEventId query parameter for reconnection.
func (s *Server) handleRunProgress(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")
	if runID == "" {
		writeBadRequest(w, "missing run ID")
		return
	}

	// The event ID is the progress percentage, allowing clients to skip
	// already-received events after reconnection
	lastEventIDStr := r.URL.Query().Get("lastEventId")
	var lastEventID int
	if lastEventIDStr != "" {
		lastEventID, _ = strconv.Atoi(lastEventIDStr)
	}

	progressCh, err := s.service.SubscribeProgress(runID)
	if err != nil {
		writeJSON(w, http.StatusNotFound, ErrorResponse{Error: err.Error(), Code: "RUN_NOT_FOUND"})
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: "streaming not supported", Code: "INTERNAL_ERROR"})
		return
	}

	for {
		select {
		case progress, ok := <-progressCh:
			if !ok {
				// Channel closed - run complete or cancelled
				fmt.Fprintf(w, "event: complete\ndata: {}\n\n")
				flusher.Flush()
				return
			}

			currentPercent := percent(progress)

			// Skip events that were already sent (for resumption)
			if lastEventIDStr != "" && currentPercent <= lastEventID {
				continue
			}

			data, _ := json.Marshal(progress)
			fmt.Fprintf(w, "id: %d\nevent: progress\ndata: %s\n\n", currentPercent, data)
			flusher.Flush()

		case <-r.Context().Done():
			return
		}
	}
}

// percent converts run progress to a whole percentage.
func percent(p core.RunProgress) int {
	if p.Total == 0 {
		return 100
	}
	return p.Current * 100 / p.Total
}

// handleCancelRun cancels an in-progress run.
func (s *Server) handleCancelRun(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")
	if runID == "" {
		writeBadRequest(w, "missing run ID")
		return
	}

	if err := s.service.CancelRun(runID); err != nil {
		writeJSON(w, http.StatusNotFound, ErrorResponse{Error: err.Error(), Code: "RUN_NOT_FOUND"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
}

// handleRunResult returns the final result of a run, blocking until the run
// completes. A cancelled run still returns its partial result.
func (s *Server) handleRunResult(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")
	if runID == "" {
		writeBadRequest(w, "missing run ID")
		return
	}

	result, err := s.service.RunResultFor(runID)
	if result == nil {
		if err == nil {
			err = fmt.Errorf("run produced no result: %s", runID)
		}
		writeJSON(w, http.StatusNotFound, ErrorResponse{Error: err.Error(), Code: "RUN_NOT_FOUND"})
		return
	}

	resp := map[string]any{"result": result}
	if err != nil {
		resp["cancelled"] = true
		resp["error"] = err.Error()
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleRunArchive downloads a finished run's logs as a zip archive.
func (s *Server) handleRunArchive(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")
	if runID == "" {
		writeBadRequest(w, "missing run ID")
		return
	}

	archive, err := s.service.ResultsArchive(runID)
	if err != nil && archive == nil {
		writeJSON(w, http.StatusNotFound, ErrorResponse{Error: err.Error(), Code: "RUN_NOT_FOUND"})
		return
	}

	filename := fmt.Sprintf("upload_results_%s.zip", time.Now().Format("20060102_150405"))
	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))
	w.Write(archive)
}

// recordID parses the {id} URL parameter. Writes the error response itself
// when the parameter is missing or not an integer.
func recordID(w http.ResponseWriter, r *http.Request) (int, bool) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.Atoi(raw)
	if err != nil {
		writeBadRequest(w, "invalid record id")
		return 0, false
	}
	return id, true
}
