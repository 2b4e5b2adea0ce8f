// Package stream proxies resolved storage objects to HTTP clients with
// correct HEAD, Range, content-type and caching semantics. Bytes flow
// from the upstream response to the client as they arrive; nothing is
// buffered whole.
package stream

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path"
	"strings"
	"time"

	"github.com/neuralpositive/trackgate/internal/catalog"
	"github.com/neuralpositive/trackgate/internal/event"
	"github.com/neuralpositive/trackgate/internal/resolver"
	"github.com/neuralpositive/trackgate/internal/storage"
)

// Catalog is the subset of catalog operations the proxy needs.
type Catalog interface {
	GetByID(ctx context.Context, id string) (*catalog.Track, error)
	UpdateStorageKey(ctx context.Context, id, key, note string) error
}

// relayHeaders are copied from the upstream response when present.
var relayHeaders = []string{
	"Accept-Ranges",
	"Content-Range",
	"Content-Length",
	"Content-Type",
	"Cache-Control",
	"ETag",
	"Last-Modified",
}

// contentTypes guesses a Content-Type from the key's extension when the
// upstream omits one.
var contentTypes = map[string]string{
	".mp3":  "audio/mpeg",
	".wav":  "audio/wav",
	".flac": "audio/flac",
	".m4a":  "audio/mp4",
	".ogg":  "audio/ogg",
	".aac":  "audio/aac",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".webp": "image/webp",
}

// Options configures a Proxy.
type Options struct {
	// Bucket is the default bucket for tracks that carry none.
	Bucket string
	// PublicBucket skips URL signing and uses public URLs directly.
	PublicBucket bool
	// SignedTTL bounds the lifetime of signed upstream URLs.
	SignedTTL time.Duration
	// UpstreamTimeout bounds one proxied fetch. Exceeding it maps to 504.
	UpstreamTimeout time.Duration
	// AcceptFloor is the minimum resolution score the proxy will serve.
	// Read-time lookups are more permissive than repair writes.
	AcceptFloor float64
	// AutoCorrectThreshold gates the opportunistic catalog write-back.
	AutoCorrectThreshold float64
}

// Proxy resolves a track to a storage key and streams the object.
type Proxy struct {
	resolver *resolver.Resolver
	urls     storage.URLProvider
	catalog  Catalog
	client   *http.Client
	logger   *slog.Logger
	bus      *event.Bus
	opts     Options
}

// New creates a streaming proxy.
func New(res *resolver.Resolver, urls storage.URLProvider, cat Catalog, bus *event.Bus, logger *slog.Logger, opts Options) *Proxy {
	if opts.SignedTTL <= 0 {
		opts.SignedTTL = time.Hour
	}
	if opts.UpstreamTimeout <= 0 {
		opts.UpstreamTimeout = 30 * time.Second
	}
	if opts.AcceptFloor <= 0 {
		opts.AcceptFloor = 0.3
	}
	if opts.AutoCorrectThreshold <= 0 {
		opts.AutoCorrectThreshold = 0.75
	}
	return &Proxy{
		resolver: res,
		urls:     urls,
		catalog:  cat,
		client:   &http.Client{Timeout: opts.UpstreamTimeout},
		logger:   logger.With(slog.String("component", "stream")),
		bus:      bus,
		opts:     opts,
	}
}

// Lookup is the outcome of resolving a track for streaming.
type Lookup struct {
	Track     *catalog.Track
	Candidate string
	Result    resolver.Result
}

// ResolveTrack loads the track and resolves its best storage key. A nil
// error with an unmatched result means the record exists but nothing in
// storage scored at or above the accept floor.
func (p *Proxy) ResolveTrack(ctx context.Context, id string) (*Lookup, error) {
	track, err := p.catalog.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	candidates := track.Candidates()
	if len(candidates) == 0 {
		return &Lookup{Track: track}, nil
	}

	bucket := track.Bucket
	if bucket == "" {
		bucket = p.opts.Bucket
	}

	lookup := &Lookup{Track: track, Candidate: candidates[0]}
	for _, candidate := range candidates {
		res, err := p.resolver.Resolve(ctx, bucket, candidate, resolver.KindAudio)
		if err != nil {
			return nil, err
		}
		if res.Score > lookup.Result.Score {
			lookup.Result = res
			lookup.Candidate = candidate
		}
		if res.Score == 1.0 {
			break
		}
	}

	if lookup.Result.Score < p.opts.AcceptFloor {
		lookup.Result.Key = ""
	}
	return lookup, nil
}

// ServeTrack proxies the resolved object for a GET or HEAD request,
// forwarding the Range header verbatim and relaying the upstream status
// unchanged. Returns false when the track or a usable key could not be
// found, so the HTTP layer can shape the 404 itself.
func (p *Proxy) ServeTrack(w http.ResponseWriter, r *http.Request, lookup *Lookup) {
	track := lookup.Track
	bucket := track.Bucket
	if bucket == "" {
		bucket = p.opts.Bucket
	}
	key := lookup.Result.Key

	upstreamURL, err := p.upstreamURL(r.Context(), bucket, key)
	if err != nil {
		p.logger.Error("no upstream URL for resolved key",
			"track_id", track.ID, "key", key, "error", err)
		http.Error(w, "storage object unavailable", http.StatusBadGateway)
		return
	}

	req, err := http.NewRequestWithContext(r.Context(), r.Method, upstreamURL, nil)
	if err != nil {
		http.Error(w, "invalid upstream request", http.StatusInternalServerError)
		return
	}
	if rng := r.Header.Get("Range"); rng != "" {
		req.Header.Set("Range", rng)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		if r.Context().Err() != nil {
			// Client went away; the upstream fetch was aborted with it.
			return
		}
		if errors.Is(err, context.DeadlineExceeded) || os.IsTimeout(err) {
			http.Error(w, "upstream fetch timed out", http.StatusGatewayTimeout)
			return
		}
		p.logger.Error("upstream fetch failed", "key", key, "error", err)
		http.Error(w, "upstream fetch failed", http.StatusBadGateway)
		return
	}
	defer resp.Body.Close() //nolint:errcheck

	p.relay(w, r, resp, key)

	// A served stream with a confidently corrected key is worth
	// persisting so the next playback hits the exact-match path.
	if lookup.Result.Score >= p.opts.AutoCorrectThreshold && key != track.StorageKey {
		go p.writeBack(track.ID, key)
	}
}

func (p *Proxy) relay(w http.ResponseWriter, r *http.Request, resp *http.Response, key string) {
	h := w.Header()
	for _, name := range relayHeaders {
		if v := resp.Header.Get(name); v != "" {
			h.Set(name, v)
		}
	}
	if h.Get("Content-Type") == "" {
		h.Set("Content-Type", guessContentType(key))
	}
	if h.Get("Accept-Ranges") == "" {
		h.Set("Accept-Ranges", "bytes")
	}
	if h.Get("Cache-Control") == "" {
		h.Set("Cache-Control", "public, max-age=3600")
	}

	w.WriteHeader(resp.StatusCode)

	if r.Method == http.MethodHead {
		return
	}
	if _, err := io.Copy(w, resp.Body); err != nil {
		// Mid-stream failures cannot change the status; just note them.
		p.logger.Debug("stream interrupted", "key", key, "error", err)
	}
}

// upstreamURL prefers a signed URL and falls back to the public one.
func (p *Proxy) upstreamURL(ctx context.Context, bucket, key string) (string, error) {
	if !p.opts.PublicBucket {
		signed, err := p.urls.SignedURL(ctx, bucket, key, p.opts.SignedTTL)
		if err == nil {
			return signed, nil
		}
		p.logger.Warn("signing failed, falling back to public URL",
			"bucket", bucket, "key", key, "error", err)
	}
	if public := p.urls.PublicURL(bucket, key); public != "" {
		return public, nil
	}
	return "", storage.ErrObjectUnavailable
}

// writeBack persists a corrected key. Fire-and-forget: it runs detached
// from the request and only ever logs.
func (p *Proxy) writeBack(trackID, key string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := p.catalog.UpdateStorageKey(ctx, trackID, key, catalog.NoteFixed); err != nil {
		p.logger.Warn("storage key write-back failed", "track_id", trackID, "key", key, "error", err)
		return
	}
	p.logger.Info("storage key corrected from stream path", "track_id", trackID, "key", key)
	if p.bus != nil {
		p.bus.Publish(event.Event{
			Type: event.StreamCorrected,
			Data: map[string]any{"track_id": trackID, "key": key},
		})
	}
}

func guessContentType(key string) string {
	if ct, ok := contentTypes[strings.ToLower(path.Ext(key))]; ok {
		return ct
	}
	return "application/octet-stream"
}
