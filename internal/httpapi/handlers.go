package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/hamed0406/storemonitor/internal/domain"
	"github.com/hamed0406/storemonitor/internal/export"
	"github.com/hamed0406/storemonitor/internal/repo"
)

type ingestPayload struct {
	Path string `json:"path"`
}

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	var p ingestPayload
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
			writeError(w, http.StatusBadRequest, "bad payload")
			return
		}
	}
	dir, err := s.resolveDataDir(p.Path)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if st, err := os.Stat(dir); err != nil || !st.IsDir() {
		writeError(w, http.StatusNotFound, "Directory not found")
		return
	}

	ctx := context.WithoutCancel(r.Context())
	s.ingests.Add(1)
	go func() {
		defer s.ingests.Done()
		if _, err := s.Ingester.Run(ctx, dir); err != nil {
			s.Logger.Warn("ingest_failed", zap.String("dir", dir), zap.Error(err))
		}
	}()

	writeJSON(w, http.StatusAccepted, map[string]string{
		"message": "Ingestion started",
		"path":    dir,
	})
}

// resolveDataDir applies the DataDir root. Relative paths are taken from
// DataDir and paths escaping it are refused.
func (s *Server) resolveDataDir(p string) (string, error) {
	p = strings.TrimSpace(p)
	if s.DataDir == "" {
		if p == "" {
			return "", errors.New("path is required")
		}
		return filepath.Clean(p), nil
	}
	root, err := filepath.Abs(s.DataDir)
	if err != nil {
		return "", fmt.Errorf("data dir: %w", err)
	}
	if p == "" {
		return root, nil
	}
	if !filepath.IsAbs(p) {
		p = filepath.Join(root, p)
	}
	p = filepath.Clean(p)
	rel, err := filepath.Rel(root, p)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", errors.New("path is outside the data directory")
	}
	return p, nil
}

func (s *Server) handleTriggerReport(w http.ResponseWriter, r *http.Request) {
	id, err := s.Reporter.Trigger(r.Context())
	if err != nil {
		s.Logger.Warn("trigger_report_failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "could not start report")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"report_id": id})
}

func (s *Server) handleGetReport(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(r.URL.Query().Get("report_id"))
	if id == "" {
		writeError(w, http.StatusBadRequest, "report_id is required")
		return
	}
	format, err := export.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	rep, err := s.Reports.GetReport(r.Context(), id)
	if errors.Is(err, repo.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Report not found")
		return
	}
	if err != nil {
		s.Logger.Warn("get_report_failed", zap.String("report_id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "could not load report")
		return
	}

	switch rep.Status {
	case domain.ReportRunning:
		writeJSON(w, http.StatusOK, map[string]string{"status": string(domain.ReportRunning)})
		return
	case domain.ReportError:
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"status": string(domain.ReportError),
			"error":  "Report failed: " + rep.Error,
		})
		return
	}

	rows, err := s.Reports.ReportRows(r.Context(), id)
	if err != nil {
		s.Logger.Warn("report_rows_failed", zap.String("report_id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "could not load report rows")
		return
	}
	var buf bytes.Buffer
	if err := export.Write(&buf, format, rows); err != nil {
		s.Logger.Warn("report_export_failed", zap.String("report_id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "could not render report")
		return
	}
	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, format.Filename(id)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

// handleStoreReport computes one store live. ?now= (RFC 3339) overrides the
// reference instant.
func (s *Server) handleStoreReport(w http.ResponseWriter, r *http.Request) {
	id := domain.StoreID(chi.URLParam(r, "storeID"))
	if id == "" {
		writeError(w, http.StatusBadRequest, "store id is required")
		return
	}

	var now time.Time
	if v := r.URL.Query().Get("now"); v != "" {
		t, err := time.Parse(time.RFC3339Nano, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "now must be RFC 3339")
			return
		}
		now = t.UTC()
	} else {
		t, err := s.Reporter.ReferenceInstant(r.Context())
		if err != nil {
			s.Logger.Warn("reference_instant_failed", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "could not determine reference instant")
			return
		}
		now = t
	}

	rep, err := s.Computer.ComputeStore(r.Context(), id, now)
	if err != nil {
		s.Logger.Warn("store_report_failed", zap.String("store_id", string(id)), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "could not compute store report")
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
