package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/neuralpositive/trackgate/internal/catalog"
	"github.com/neuralpositive/trackgate/internal/version"
)

func (r *Router) handleHealth(w http.ResponseWriter, req *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": version.Version,
		"commit":  version.Commit,
		"time":    time.Now().UTC().Format(time.RFC3339),
	})
}

func (r *Router) handleGetTrack(w http.ResponseWriter, req *http.Request) {
	id := req.PathValue("id")
	track, err := r.catalog.GetByID(req.Context(), id)
	if err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			writeError(w, http.StatusNotFound, "track not found")
			return
		}
		r.logger.Error("loading track", "track_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "loading track")
		return
	}
	writeJSON(w, http.StatusOK, track)
}

func (r *Router) handleCreateTrack(w http.ResponseWriter, req *http.Request) {
	var body struct {
		Title         string `json:"title"`
		OriginalTitle string `json:"original_title"`
		Bucket        string `json:"bucket"`
		StorageKey    string `json:"storage_key"`
		Status        string `json:"status"`
	}
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if body.Title == "" {
		writeError(w, http.StatusBadRequest, "title is required")
		return
	}
	if body.Status == "" {
		body.Status = catalog.StatusPending
	}

	track := &catalog.Track{
		Title:         body.Title,
		OriginalTitle: body.OriginalTitle,
		Bucket:        body.Bucket,
		StorageKey:    body.StorageKey,
		Status:        body.Status,
	}
	if err := r.catalog.Create(req.Context(), track); err != nil {
		r.logger.Error("creating track", "error", err)
		writeError(w, http.StatusInternalServerError, "creating track")
		return
	}
	writeJSON(w, http.StatusCreated, track)
}

func (r *Router) handleRepairRun(w http.ResponseWriter, req *http.Request) {
	// The run outlives this request: net/http cancels req.Context() as
	// soon as the 202 is written, which would kill the background pass.
	result, err := r.repairService.Run(context.WithoutCancel(req.Context()))
	if err != nil {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, result)
}

func (r *Router) handleRepairStatus(w http.ResponseWriter, req *http.Request) {
	status := r.repairService.Status()
	if status == nil {
		writeError(w, http.StatusNotFound, "no repair run yet")
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (r *Router) handleIndexRebuild(w http.ResponseWriter, req *http.Request) {
	bucket := req.URL.Query().Get("bucket")
	if bucket == "" {
		bucket = r.bucket
	}
	if err := r.index.EnsureFresh(req.Context(), bucket, true); err != nil {
		r.logger.Error("index rebuild failed", "bucket", bucket, "error", err)
		writeError(w, http.StatusBadGateway, "index rebuild failed")
		return
	}
	writeJSON(w, http.StatusOK, r.index.Stats(bucket))
}

func (r *Router) handleIndexStats(w http.ResponseWriter, req *http.Request) {
	bucket := req.URL.Query().Get("bucket")
	if bucket == "" {
		bucket = r.bucket
	}
	writeJSON(w, http.StatusOK, r.index.Stats(bucket))
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, "encode error", http.StatusInternalServerError)
	}
}
