// Package resolver maps a noisy catalog candidate string (title, legacy
// path, generated slug) to the canonical object key present in a storage
// bucket. Exact matches short-circuit; otherwise every indexed key is
// scored and the best one wins. The resolver applies no accept threshold
// itself; each caller decides what score it is willing to act on.
package resolver

import (
	"context"
	"log/slog"
	"path"
	"strings"

	"github.com/neuralpositive/trackgate/internal/index"
	"github.com/neuralpositive/trackgate/internal/similarity"
)

// Kind selects which file class a resolution targets.
type Kind string

// Resolution kinds.
const (
	KindAudio   Kind = "audio"
	KindArtwork Kind = "artwork"
)

var kindExtensions = map[Kind][]string{
	KindAudio:   {".mp3", ".wav", ".flac", ".m4a", ".ogg", ".aac"},
	KindArtwork: {".jpg", ".jpeg", ".png", ".webp"},
}

// Result is the outcome of one resolution attempt. An empty Key means no
// usable match exists regardless of Score.
type Result struct {
	Key   string  `json:"key,omitempty"`
	Score float64 `json:"score"`
}

// Matched reports whether the resolution produced a key.
func (r Result) Matched() bool { return r.Key != "" }

// Resolver resolves candidate strings against a bucket's key index.
type Resolver struct {
	cache  *index.Cache
	scorer *similarity.Scorer
	logger *slog.Logger
}

// New creates a resolver over the given index cache and scorer.
func New(cache *index.Cache, scorer *similarity.Scorer, logger *slog.Logger) *Resolver {
	return &Resolver{
		cache:  cache,
		scorer: scorer,
		logger: logger.With(slog.String("component", "resolver")),
	}
}

// Resolve finds the best key for candidate among the bucket's indexed keys
// of the given kind. The index is refreshed first; if refreshing fails but
// a stale index exists, resolution proceeds degraded on the stale keys and
// the error is dropped after a warning. Ties keep the first-seen key, so
// repeated calls against an unchanged index are deterministic.
func (r *Resolver) Resolve(ctx context.Context, bucket, candidate string, kind Kind) (Result, error) {
	if err := r.cache.EnsureFresh(ctx, bucket, false); err != nil {
		if len(r.cache.Keys(bucket)) == 0 {
			return Result{}, err
		}
		r.logger.Warn("index refresh failed, resolving against stale index",
			"bucket", bucket, "error", err)
	}

	keys := keysOfKind(r.cache.Keys(bucket), kind)
	if len(keys) == 0 {
		return Result{}, nil
	}

	lowered := strings.ToLower(candidate)
	for _, k := range keys {
		lk := strings.ToLower(k)
		if lk == lowered || strings.ToLower(path.Base(k)) == lowered {
			return Result{Key: k, Score: 1.0}, nil
		}
	}

	var best Result
	for _, k := range keys {
		if s := r.scorer.Score(candidate, k); s > best.Score {
			best = Result{Key: k, Score: s}
		}
	}

	r.logger.Debug("fuzzy resolution",
		"bucket", bucket,
		"candidate", candidate,
		"key", best.Key,
		"score", best.Score,
	)
	return best, nil
}

func keysOfKind(keys []string, kind Kind) []string {
	exts, ok := kindExtensions[kind]
	if !ok {
		exts = kindExtensions[KindAudio]
	}
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		lower := strings.ToLower(k)
		for _, ext := range exts {
			if strings.HasSuffix(lower, ext) {
				out = append(out, k)
				break
			}
		}
	}
	return out
}

// RewriteArtworkCandidate swaps a candidate's audio extension for .jpg so
// artwork stored alongside a track resolves from the same base name.
func RewriteArtworkCandidate(candidate string) string {
	lower := strings.ToLower(candidate)
	for _, ext := range kindExtensions[KindAudio] {
		if strings.HasSuffix(lower, ext) {
			return candidate[:len(candidate)-len(ext)] + ".jpg"
		}
	}
	return candidate
}
