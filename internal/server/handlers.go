package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sort"
	"time"

	"github.com/nightvault/nightvault/internal/catalog"
	"github.com/nightvault/nightvault/internal/destination"
	"github.com/nightvault/nightvault/internal/prefs"
)

// backupResponse is the wire shape of one catalog record.
type backupResponse struct {
	ID          string    `json:"id"`
	Category    string    `json:"category"`
	Name        string    `json:"name"`
	Destination string    `json:"destination"`
	Ref         string    `json:"ref"`
	Size        int64     `json:"size"`
	SHA256      string    `json:"sha256"`
	CreatedAt   time.Time `json:"created_at"`
}

func toBackupResponse(b catalog.Backup) backupResponse {
	return backupResponse{
		ID:          b.ID,
		Category:    b.Category,
		Name:        b.Name,
		Destination: b.DestinationKind,
		Ref:         b.Ref,
		Size:        b.Size,
		SHA256:      b.SHA256,
		CreatedAt:   b.CreatedAt,
	}
}

// categoryStatus describes one category's configuration and last run.
type categoryStatus struct {
	Name         string `json:"name"`
	Destination  string `json:"destination"`
	LastBackupAt string `json:"last_backup_at,omitempty"`
}

// statusResponse is the GET /v1/status payload.
type statusResponse struct {
	Ready        bool             `json:"ready"`
	LastBackupAt string           `json:"last_backup_at,omitempty"`
	Categories   []categoryStatus `json:"categories"`
}

// handleStatus reports destination configuration and backup recency.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	names := make([]string, 0, len(s.categories))
	for name := range s.categories {
		names = append(names, name)
	}
	sort.Strings(names)

	categories := make([]categoryStatus, 0, len(names))
	for _, name := range names {
		status := categoryStatus{
			Name:         name,
			LastBackupAt: s.prefsStore.String(prefs.LastBackupAt(name)),
		}

		kind, err := destination.Selected(s.prefsStore, name)
		switch {
		case errors.Is(err, destination.ErrNotConfigured):
			status.Destination = "unconfigured"
		case err != nil:
			status.Destination = "invalid"
		default:
			status.Destination = string(kind)
		}

		categories = append(categories, status)
	}

	writeJSON(ctx, w, statusResponse{
		Ready:        s.readiness.IsReady(),
		LastBackupAt: s.prefsStore.String(prefs.KeyLastBackupAt),
		Categories:   categories,
	}, http.StatusOK)
}

// handleListBackups lists catalog records, optionally filtered by category.
func (s *Server) handleListBackups(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	category := r.URL.Query().Get("category")
	if category != "" {
		if _, ok := s.categories[category]; !ok {
			writeJSONError(ctx, w, http.StatusBadRequest, "unknown category: "+category)
			return
		}
	}

	records, err := s.backups.List(ctx, category)
	if err != nil {
		slog.ErrorContext(ctx, "failed to list backups", "error", err)
		writeJSONError(ctx, w, http.StatusInternalServerError, "failed to list backups")
		return
	}

	responses := make([]backupResponse, 0, len(records))
	for _, record := range records {
		responses = append(responses, toBackupResponse(record))
	}

	writeJSON(ctx, w, map[string][]backupResponse{"backups": responses}, http.StatusOK)
}

// createBackupRequest is the POST /v1/backups payload.
type createBackupRequest struct {
	Category string `json:"category"`
}

// handleCreateBackup triggers one backup run for a category.
func (s *Server) handleCreateBackup(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req createBackupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			writeJSONError(ctx, w, http.StatusRequestEntityTooLarge, http.StatusText(http.StatusRequestEntityTooLarge))
			return
		}
		writeJSONError(ctx, w, http.StatusBadRequest, "invalid request body")
		return
	}

	source, ok := s.categories[req.Category]
	if !ok {
		writeJSONError(ctx, w, http.StatusBadRequest, "unknown category: "+req.Category)
		return
	}

	record, err := s.backups.Create(ctx, req.Category, source)
	if err != nil {
		if errors.Is(err, destination.ErrNotConfigured) {
			writeJSONError(ctx, w, http.StatusConflict, "destination not configured for category "+req.Category)
			return
		}
		slog.ErrorContext(ctx, "backup run failed", "category", req.Category, "error", err)
		writeJSONError(ctx, w, http.StatusInternalServerError, "backup failed")
		return
	}

	writeJSON(ctx, w, toBackupResponse(record), http.StatusCreated)
}
