package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/neuralpositive/trackgate/internal/catalog"
	"github.com/neuralpositive/trackgate/internal/resolver"
	"github.com/neuralpositive/trackgate/internal/storage"
)

// indexSampleSize bounds the diagnostic key sample in 404 bodies.
const indexSampleSize = 10

func (r *Router) handleStream(w http.ResponseWriter, req *http.Request) {
	id := req.PathValue("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "track id is required")
		return
	}

	lookup, err := r.proxy.ResolveTrack(req.Context(), id)
	if err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			writeError(w, http.StatusNotFound, "track not found")
			return
		}
		r.logger.Error("resolving track for stream", "track_id", id, "error", err)
		writeError(w, http.StatusBadGateway, "storage index unavailable")
		return
	}
	if !lookup.Result.Matched() {
		r.logger.Warn("no storage match for track",
			"track_id", id, "candidate", lookup.Candidate, "best_score", lookup.Result.Score)
		writeJSON(w, http.StatusNotFound, map[string]any{
			"error":      "no matching storage object",
			"track_id":   id,
			"candidate":  lookup.Candidate,
			"best_score": lookup.Result.Score,
		})
		return
	}

	r.proxy.ServeTrack(w, req, lookup)
}

type resolveRequest struct {
	TrackID string `json:"trackId"`
	Type    string `json:"type"`
	Bucket  string `json:"bucket"`
}

type resolveResponse struct {
	URL          string  `json:"url"`
	OriginalPath string  `json:"originalPath"`
	ResolvedKey  string  `json:"resolvedKey"`
	MatchScore   float64 `json:"matchScore"`
	TrackID      string  `json:"trackId"`
}

// handleResolve answers audit-tooling queries: which storage key would a
// track stream from right now, and at what confidence.
func (r *Router) handleResolve(w http.ResponseWriter, req *http.Request) {
	var body resolveRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if body.TrackID == "" {
		writeError(w, http.StatusBadRequest, "trackId is required")
		return
	}
	kind := resolver.KindAudio
	switch body.Type {
	case "", "audio":
	case "artwork":
		kind = resolver.KindArtwork
	default:
		writeError(w, http.StatusBadRequest, "type must be audio or artwork")
		return
	}

	track, err := r.catalog.GetByID(req.Context(), body.TrackID)
	if err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			writeError(w, http.StatusNotFound, "track not found")
			return
		}
		r.logger.Error("loading track", "track_id", body.TrackID, "error", err)
		writeError(w, http.StatusInternalServerError, "loading track")
		return
	}

	bucket := body.Bucket
	if bucket == "" {
		bucket = track.Bucket
	}
	if bucket == "" {
		bucket = r.bucket
	}

	var best resolver.Result
	original := ""
	for _, candidate := range track.Candidates() {
		if original == "" {
			original = candidate
		}
		if kind == resolver.KindArtwork {
			candidate = resolver.RewriteArtworkCandidate(candidate)
		}
		res, err := r.resolver.Resolve(req.Context(), bucket, candidate, kind)
		if err != nil {
			r.logger.Error("resolution failed", "track_id", track.ID, "error", err)
			writeError(w, http.StatusBadGateway, "storage index unavailable")
			return
		}
		if res.Score > best.Score {
			best = res
		}
		if res.Score == 1.0 {
			break
		}
	}

	if !best.Matched() || best.Score < r.streamFloor {
		keys := r.index.Keys(bucket)
		sample := keys
		if len(sample) > indexSampleSize {
			sample = sample[:indexSampleSize]
		}
		writeJSON(w, http.StatusNotFound, map[string]any{
			"error":        "no matching storage object",
			"trackId":      track.ID,
			"originalPath": original,
			"bestScore":    best.Score,
			"indexKeys":    len(keys),
			"indexSample":  sample,
		})
		return
	}

	url, err := r.objectURL(req, bucket, best.Key)
	if err != nil {
		r.logger.Error("building object URL", "key", best.Key, "error", err)
		writeError(w, http.StatusBadGateway, "object URL unavailable")
		return
	}

	writeJSON(w, http.StatusOK, resolveResponse{
		URL:          url,
		OriginalPath: original,
		ResolvedKey:  best.Key,
		MatchScore:   best.Score,
		TrackID:      track.ID,
	})
}

// objectURL mirrors the streaming path's URL policy: sign unless the
// bucket is public, fall back to the public URL when signing fails.
func (r *Router) objectURL(req *http.Request, bucket, key string) (string, error) {
	if !r.publicBucket {
		url, err := r.urls.SignedURL(req.Context(), bucket, key, time.Duration(r.signedTTL)*time.Second)
		if err == nil {
			return url, nil
		}
		r.logger.Warn("signing failed, falling back to public URL",
			"bucket", bucket, "key", key, "error", err)
	}
	if url := r.urls.PublicURL(bucket, key); url != "" {
		return url, nil
	}
	return "", storage.ErrObjectUnavailable
}
