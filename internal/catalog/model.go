// Package catalog reads and writes the track records whose storage keys
// this system resolves and repairs.
package catalog

import (
	"errors"
	"time"
)

// ErrNotFound is returned when no track exists for a given id.
var ErrNotFound = errors.New("track not found")

// Track statuses.
const (
	StatusPending   = "pending"
	StatusCompleted = "completed"
)

// Repair notes recorded against a track when its key is rewritten.
const (
	NoteFixed           = "fixed"
	NoteFixedMediumConf = "fixed-medium-confidence"
)

// Track is one catalog record. StorageKey is the object key inside
// Bucket; it drifts out of sync with the bucket's real contents over time
// and may be empty entirely.
type Track struct {
	ID            string    `json:"id"`
	Title         string    `json:"title"`
	OriginalTitle string    `json:"original_title,omitempty"`
	Bucket        string    `json:"bucket,omitempty"`
	StorageKey    string    `json:"storage_key,omitempty"`
	Status        string    `json:"status"`
	RepairNote    string    `json:"repair_note,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Candidates returns the strings to resolve against storage, in priority
// order: the stored key first, then the display titles.
func (t *Track) Candidates() []string {
	out := make([]string, 0, 3)
	for _, c := range []string{t.StorageKey, t.Title, t.OriginalTitle} {
		if c != "" {
			out = append(out, c)
		}
	}
	return out
}
