// Package index maintains a per-bucket cache of storage object keys. The
// cache is built lazily, refreshed on a TTL or on demand, and rebuilt at
// most once at a time per bucket: concurrent misses coalesce into a single
// listing pass.
package index

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/neuralpositive/trackgate/internal/event"
	"github.com/neuralpositive/trackgate/internal/storage"
)

// Defaults applied when Options fields are zero.
const (
	DefaultTTL      = 10 * time.Minute
	DefaultPageSize = 1000
)

// DefaultExtensions is the allow-list of indexable object suffixes: the
// audio set resolution serves, plus the artwork set the resolve endpoint
// can be asked for.
var DefaultExtensions = []string{
	".mp3", ".wav", ".flac", ".m4a", ".ogg", ".aac",
	".jpg", ".jpeg", ".png", ".webp",
}

// Options configures a Cache.
type Options struct {
	TTL        time.Duration
	PageSize   int
	Extensions []string
	Logger     *slog.Logger
	Bus        *event.Bus
}

// Stats describes the cached index for one bucket.
type Stats struct {
	Bucket  string    `json:"bucket"`
	Keys    int       `json:"keys"`
	BuiltAt time.Time `json:"built_at"`
}

type bucketIndex struct {
	keys    []string
	builtAt time.Time
}

// Cache holds one key index per bucket. All methods are safe for
// concurrent use; a built index is immutable until replaced.
type Cache struct {
	lister   storage.Lister
	ttl      time.Duration
	pageSize int
	exts     []string
	logger   *slog.Logger
	bus      *event.Bus

	group   singleflight.Group
	mu      sync.RWMutex
	buckets map[string]*bucketIndex
}

// New creates an index cache over the given lister.
func New(lister storage.Lister, opts Options) *Cache {
	ttl := opts.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	pageSize := opts.PageSize
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	exts := opts.Extensions
	if len(exts) == 0 {
		exts = DefaultExtensions
	}
	lowered := make([]string, len(exts))
	for i, e := range exts {
		lowered[i] = strings.ToLower(e)
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{
		lister:   lister,
		ttl:      ttl,
		pageSize: pageSize,
		exts:     lowered,
		logger:   logger.With(slog.String("component", "index")),
		bus:      opts.Bus,
		buckets:  make(map[string]*bucketIndex),
	}
}

// EnsureFresh builds or refreshes the bucket's index when it is missing,
// older than the TTL, or force is set. Concurrent callers share a single
// build. On failure any previously built index stays in place and the
// error is returned.
func (c *Cache) EnsureFresh(ctx context.Context, bucket string, force bool) error {
	if !force && c.fresh(bucket) {
		return nil
	}

	_, err, _ := c.group.Do(bucket, func() (any, error) {
		// Re-check under the flight: a racing caller may have finished
		// the build while this one waited its turn.
		if !force && c.fresh(bucket) {
			return nil, nil
		}
		return nil, c.rebuild(ctx, bucket)
	})
	return err
}

// Keys returns the indexed keys for bucket in their stable build order.
// The returned slice must not be modified.
func (c *Cache) Keys(bucket string) []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if idx, ok := c.buckets[bucket]; ok {
		return idx.keys
	}
	return nil
}

// Stats reports the cached index state for bucket.
func (c *Cache) Stats(bucket string) Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s := Stats{Bucket: bucket}
	if idx, ok := c.buckets[bucket]; ok {
		s.Keys = len(idx.keys)
		s.BuiltAt = idx.builtAt
	}
	return s
}

func (c *Cache) fresh(bucket string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	idx, ok := c.buckets[bucket]
	return ok && time.Since(idx.builtAt) < c.ttl
}

// rebuild walks the bucket with an iterative worklist, one virtual folder
// at a time, paging each folder until a short page. The resulting key
// order is deterministic: folders in discovery order, names in the
// provider's name sort within each folder.
func (c *Cache) rebuild(ctx context.Context, bucket string) error {
	start := time.Now()

	var keys []string
	worklist := []string{""}
	for len(worklist) > 0 {
		prefix := worklist[0]
		worklist = worklist[1:]

		for offset := 0; ; offset += c.pageSize {
			page, err := c.lister.List(ctx, bucket, prefix, storage.ListOptions{
				Limit:  c.pageSize,
				Offset: offset,
				SortBy: "name",
			})
			if err != nil {
				return fmt.Errorf("listing %s/%s: %w", bucket, prefix, err)
			}

			for _, obj := range page {
				if obj.Name == "" || strings.HasPrefix(obj.Name, ".") {
					continue
				}
				full := obj.Name
				if prefix != "" {
					full = prefix + "/" + obj.Name
				}
				if obj.IsFolder() {
					worklist = append(worklist, full)
					continue
				}
				if c.allowed(full) {
					keys = append(keys, full)
				}
			}

			if len(page) < c.pageSize {
				break
			}
		}
	}

	c.mu.Lock()
	c.buckets[bucket] = &bucketIndex{keys: keys, builtAt: time.Now().UTC()}
	c.mu.Unlock()

	c.logger.Info("storage index built",
		slog.String("bucket", bucket),
		slog.Int("keys", len(keys)),
		slog.Duration("elapsed", time.Since(start)),
	)
	if c.bus != nil {
		c.bus.Publish(event.Event{
			Type: event.IndexRebuilt,
			Data: map[string]any{"bucket": bucket, "keys": len(keys)},
		})
	}
	return nil
}

func (c *Cache) allowed(key string) bool {
	lower := strings.ToLower(key)
	for _, ext := range c.exts {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	return false
}
