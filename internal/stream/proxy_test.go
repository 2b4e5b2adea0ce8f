package stream

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/neuralpositive/trackgate/internal/catalog"
	"github.com/neuralpositive/trackgate/internal/index"
	"github.com/neuralpositive/trackgate/internal/normalize"
	"github.com/neuralpositive/trackgate/internal/resolver"
	"github.com/neuralpositive/trackgate/internal/similarity"
	"github.com/neuralpositive/trackgate/internal/storage"
)

type keyLister struct {
	keys map[string][]storage.Object
}

func (l *keyLister) List(_ context.Context, bucket, prefix string, _ storage.ListOptions) ([]storage.Object, error) {
	var out []storage.Object
	folders := map[string]bool{}
	for _, obj := range l.keys[bucket] {
		dir, name := splitKey(obj.Name)
		if dir == prefix {
			out = append(out, storage.Object{Name: name, ID: obj.ID, Metadata: obj.Metadata})
			continue
		}
		// The real provider also lists the virtual folders directly under
		// the prefix, with no metadata.
		pfx := prefix
		if pfx != "" {
			pfx += "/"
		}
		if strings.HasPrefix(obj.Name, pfx) {
			rest := obj.Name[len(pfx):]
			if i := strings.Index(rest, "/"); i >= 0 && !folders[rest[:i]] {
				folders[rest[:i]] = true
				out = append(out, storage.Object{Name: rest[:i]})
			}
		}
	}
	return out, nil
}

func splitKey(key string) (string, string) {
	if i := strings.LastIndex(key, "/"); i >= 0 {
		return key[:i], key[i+1:]
	}
	return "", key
}

type fakeURLs struct {
	signed    string
	signedErr error
	public    string
}

func (f *fakeURLs) SignedURL(context.Context, string, string, time.Duration) (string, error) {
	return f.signed, f.signedErr
}

func (f *fakeURLs) PublicURL(string, string) string { return f.public }

type fakeCatalog struct {
	mu      sync.Mutex
	tracks  map[string]*catalog.Track
	updates []string
	done    chan struct{}
}

func newFakeCatalog(tracks ...*catalog.Track) *fakeCatalog {
	c := &fakeCatalog{tracks: make(map[string]*catalog.Track), done: make(chan struct{}, 8)}
	for _, t := range tracks {
		c.tracks[t.ID] = t
	}
	return c
}

func (c *fakeCatalog) GetByID(_ context.Context, id string) (*catalog.Track, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	t, ok := c.tracks[id]
	if !ok {
		return nil, catalog.ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (c *fakeCatalog) UpdateStorageKey(_ context.Context, id, key, note string) error {
	c.mu.Lock()
	c.updates = append(c.updates, id+"="+key+":"+note)
	c.mu.Unlock()
	c.done <- struct{}{}
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestProxy(t *testing.T, keys []string, urls storage.URLProvider, cat Catalog, opts Options) *Proxy {
	t.Helper()
	objects := make([]storage.Object, 0, len(keys))
	for i, k := range keys {
		objects = append(objects, storage.Object{Name: k, Metadata: &storage.ObjectMetadata{Size: 1}, ID: fmt.Sprintf("id-%d", i)})
	}
	lister := &keyLister{keys: map[string][]storage.Object{"music": objects}}
	cache := index.New(lister, index.Options{Logger: testLogger()})
	rules := normalize.NewRuleset(normalize.DefaultRules())
	res := resolver.New(cache, similarity.NewScorer(rules), testLogger())
	if opts.Bucket == "" {
		opts.Bucket = "music"
	}
	return New(res, urls, cat, nil, testLogger(), opts)
}

const payload = "0123456789abcdefghij"

func upstream(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body := []byte(payload)
		if rng := r.Header.Get("Range"); rng != "" {
			var start, end int
			if _, err := fmt.Sscanf(rng, "bytes=%d-%d", &start, &end); err != nil {
				t.Errorf("unexpected range header %q", rng)
			}
			w.Header().Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", start, end, len(body)))
			w.Header().Set("Content-Length", strconv.Itoa(end-start+1))
			w.Header().Set("Content-Type", "audio/mpeg")
			w.WriteHeader(http.StatusPartialContent)
			w.Write(body[start : end+1]) //nolint:errcheck
			return
		}
		w.Header().Set("Content-Type", "audio/mpeg")
		w.Header().Set("Content-Length", strconv.Itoa(len(body)))
		w.Write(body) //nolint:errcheck
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestServeTrackFull(t *testing.T) {
	srv := upstream(t)
	cat := newFakeCatalog(&catalog.Track{ID: "t1", StorageKey: "albums/song.mp3", Status: catalog.StatusCompleted})
	p := newTestProxy(t, []string{"albums/song.mp3"}, &fakeURLs{signed: srv.URL}, cat, Options{})

	lookup, err := p.ResolveTrack(context.Background(), "t1")
	if err != nil {
		t.Fatalf("ResolveTrack: %v", err)
	}
	if lookup.Result.Key != "albums/song.mp3" || lookup.Result.Score != 1.0 {
		t.Fatalf("unexpected lookup result %+v", lookup.Result)
	}

	r := httptest.NewRequest(http.MethodGet, "/stream/t1", nil)
	w := httptest.NewRecorder()
	p.ServeTrack(w, r, lookup)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if got := w.Body.String(); got != payload {
		t.Fatalf("body = %q, want %q", got, payload)
	}
	if ct := w.Header().Get("Content-Type"); ct != "audio/mpeg" {
		t.Errorf("Content-Type = %q", ct)
	}
	if cc := w.Header().Get("Cache-Control"); cc != "public, max-age=3600" {
		t.Errorf("Cache-Control = %q", cc)
	}
	if ar := w.Header().Get("Accept-Ranges"); ar != "bytes" {
		t.Errorf("Accept-Ranges = %q", ar)
	}
}

func TestServeTrackRange(t *testing.T) {
	srv := upstream(t)
	cat := newFakeCatalog(&catalog.Track{ID: "t1", StorageKey: "albums/song.mp3", Status: catalog.StatusCompleted})
	p := newTestProxy(t, []string{"albums/song.mp3"}, &fakeURLs{signed: srv.URL}, cat, Options{})

	lookup, err := p.ResolveTrack(context.Background(), "t1")
	if err != nil {
		t.Fatalf("ResolveTrack: %v", err)
	}

	r := httptest.NewRequest(http.MethodGet, "/stream/t1", nil)
	r.Header.Set("Range", "bytes=0-9")
	w := httptest.NewRecorder()
	p.ServeTrack(w, r, lookup)

	if w.Code != http.StatusPartialContent {
		t.Fatalf("status = %d, want 206", w.Code)
	}
	if got := w.Body.Len(); got != 10 {
		t.Fatalf("body length = %d, want 10", got)
	}
	if cr := w.Header().Get("Content-Range"); cr != "bytes 0-9/20" {
		t.Errorf("Content-Range = %q", cr)
	}
}

func TestServeTrackHead(t *testing.T) {
	srv := upstream(t)
	cat := newFakeCatalog(&catalog.Track{ID: "t1", StorageKey: "albums/song.mp3", Status: catalog.StatusCompleted})
	p := newTestProxy(t, []string{"albums/song.mp3"}, &fakeURLs{signed: srv.URL}, cat, Options{})

	lookup, err := p.ResolveTrack(context.Background(), "t1")
	if err != nil {
		t.Fatalf("ResolveTrack: %v", err)
	}

	r := httptest.NewRequest(http.MethodHead, "/stream/t1", nil)
	w := httptest.NewRecorder()
	p.ServeTrack(w, r, lookup)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if w.Body.Len() != 0 {
		t.Fatalf("HEAD response carried %d body bytes", w.Body.Len())
	}
}

func TestResolveTrackBelowFloor(t *testing.T) {
	cat := newFakeCatalog(&catalog.Track{ID: "t1", StorageKey: "zzz/qqq.mp3", Status: catalog.StatusCompleted})
	p := newTestProxy(t, []string{"albums/completely unrelated thing.flac"}, &fakeURLs{}, cat, Options{})

	lookup, err := p.ResolveTrack(context.Background(), "t1")
	if err != nil {
		t.Fatalf("ResolveTrack: %v", err)
	}
	if lookup.Result.Matched() {
		t.Fatalf("expected no match below floor, got %+v", lookup.Result)
	}
}

func TestResolveTrackNotFound(t *testing.T) {
	p := newTestProxy(t, nil, &fakeURLs{}, newFakeCatalog(), Options{})
	if _, err := p.ResolveTrack(context.Background(), "missing"); err != catalog.ErrNotFound {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestResolveTrackPrefersTitleFallback(t *testing.T) {
	cat := newFakeCatalog(&catalog.Track{
		ID:         "t1",
		Title:      "Focus Enhancement",
		StorageKey: "old/wrong-path.mp3",
		Status:     catalog.StatusCompleted,
	})
	p := newTestProxy(t, []string{"tracks/focus-enhancement.mp3"}, &fakeURLs{}, cat, Options{})

	lookup, err := p.ResolveTrack(context.Background(), "t1")
	if err != nil {
		t.Fatalf("ResolveTrack: %v", err)
	}
	if lookup.Result.Key != "tracks/focus-enhancement.mp3" {
		t.Fatalf("resolved key = %q", lookup.Result.Key)
	}
}

func TestWriteBackOnHighConfidenceCorrection(t *testing.T) {
	srv := upstream(t)
	cat := newFakeCatalog(&catalog.Track{
		ID:         "t1",
		Title:      "Focus Enhancement",
		StorageKey: "old/wrong-path.mp3",
		Status:     catalog.StatusCompleted,
	})
	p := newTestProxy(t, []string{"focus-enhancement.mp3"}, &fakeURLs{signed: srv.URL}, cat, Options{})

	lookup, err := p.ResolveTrack(context.Background(), "t1")
	if err != nil {
		t.Fatalf("ResolveTrack: %v", err)
	}
	if lookup.Result.Score < 0.75 {
		t.Fatalf("score = %v, want >= 0.75 for write-back", lookup.Result.Score)
	}

	r := httptest.NewRequest(http.MethodGet, "/stream/t1", nil)
	w := httptest.NewRecorder()
	p.ServeTrack(w, r, lookup)

	select {
	case <-cat.done:
	case <-time.After(2 * time.Second):
		t.Fatal("write-back never ran")
	}
	cat.mu.Lock()
	defer cat.mu.Unlock()
	want := "t1=focus-enhancement.mp3:" + catalog.NoteFixed
	if len(cat.updates) != 1 || cat.updates[0] != want {
		t.Fatalf("updates = %v, want [%s]", cat.updates, want)
	}
}

func TestNoWriteBackWhenKeyUnchanged(t *testing.T) {
	srv := upstream(t)
	cat := newFakeCatalog(&catalog.Track{ID: "t1", StorageKey: "albums/song.mp3", Status: catalog.StatusCompleted})
	p := newTestProxy(t, []string{"albums/song.mp3"}, &fakeURLs{signed: srv.URL}, cat, Options{})

	lookup, _ := p.ResolveTrack(context.Background(), "t1")
	r := httptest.NewRequest(http.MethodGet, "/stream/t1", nil)
	w := httptest.NewRecorder()
	p.ServeTrack(w, r, lookup)

	select {
	case <-cat.done:
		t.Fatal("unexpected write-back for unchanged key")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestPublicURLFallback(t *testing.T) {
	srv := upstream(t)
	cat := newFakeCatalog(&catalog.Track{ID: "t1", StorageKey: "albums/song.mp3", Status: catalog.StatusCompleted})
	urls := &fakeURLs{signedErr: fmt.Errorf("signing unavailable"), public: srv.URL}
	p := newTestProxy(t, []string{"albums/song.mp3"}, urls, cat, Options{})

	lookup, err := p.ResolveTrack(context.Background(), "t1")
	if err != nil {
		t.Fatalf("ResolveTrack: %v", err)
	}

	r := httptest.NewRequest(http.MethodGet, "/stream/t1", nil)
	w := httptest.NewRecorder()
	p.ServeTrack(w, r, lookup)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 via public URL", w.Code)
	}
}

func TestUpstreamErrorStatusRelayed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	t.Cleanup(srv.Close)

	cat := newFakeCatalog(&catalog.Track{ID: "t1", StorageKey: "albums/song.mp3", Status: catalog.StatusCompleted})
	p := newTestProxy(t, []string{"albums/song.mp3"}, &fakeURLs{signed: srv.URL}, cat, Options{})

	lookup, _ := p.ResolveTrack(context.Background(), "t1")
	r := httptest.NewRequest(http.MethodGet, "/stream/t1", nil)
	w := httptest.NewRecorder()
	p.ServeTrack(w, r, lookup)

	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want relayed 404", w.Code)
	}
}

func TestGuessContentType(t *testing.T) {
	cases := map[string]string{
		"a/b.mp3":  "audio/mpeg",
		"a/b.FLAC": "audio/flac",
		"a/b.jpg":  "image/jpeg",
		"a/b.txt":  "application/octet-stream",
		"a/b":      "application/octet-stream",
	}
	for key, want := range cases {
		if got := guessContentType(key); got != want {
			t.Errorf("guessContentType(%q) = %q, want %q", key, got, want)
		}
	}
}
