// Package storage defines the object-storage collaborator contracts and a
// client for Supabase Storage's REST API. The rest of the system depends
// only on the Lister and URLProvider interfaces.
package storage

import (
	"context"
	"errors"
	"path"
	"time"
)

// ErrObjectUnavailable is returned when neither a signed nor a public URL
// can be produced for a key.
var ErrObjectUnavailable = errors.New("storage object unavailable")

// Object is a single entry from a bucket listing. Listings return both
// real objects and virtual folders; folders carry no metadata.
type Object struct {
	Name      string          `json:"name"`
	ID        string          `json:"id"`
	UpdatedAt string          `json:"updated_at"`
	Metadata  *ObjectMetadata `json:"metadata"`
}

// ObjectMetadata holds the provider-reported object attributes.
type ObjectMetadata struct {
	Size     int64  `json:"size"`
	MimeType string `json:"mimetype"`
}

// IsFolder reports whether the entry is a virtual folder. The provider
// omits metadata for folders; when metadata is absent the dot heuristic
// applies, since this provider never puts a "." in folder names.
func (o Object) IsFolder() bool {
	if o.Metadata != nil {
		return false
	}
	return path.Ext(o.Name) == ""
}

// ListOptions controls one page of a bucket listing. Sorting by name keeps
// incremental listing deterministic.
type ListOptions struct {
	Limit  int
	Offset int
	SortBy string
}

// Lister pages through the objects under a prefix in a bucket.
type Lister interface {
	List(ctx context.Context, bucket, prefix string, opts ListOptions) ([]Object, error)
}

// URLProvider produces byte-range-capable URLs for a storage key.
type URLProvider interface {
	// SignedURL creates a time-limited URL for a private object.
	SignedURL(ctx context.Context, bucket, key string, ttl time.Duration) (string, error)
	// PublicURL returns the unauthenticated URL for a public object.
	PublicURL(bucket, key string) string
}
