package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const trackColumns = `id, title, original_title, bucket, storage_key, status, repair_note, created_at, updated_at`

// Store provides track data operations over the catalog database.
type Store struct {
	db *sql.DB
}

// NewStore creates a track store.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Create inserts a new track.
func (s *Store) Create(ctx context.Context, t *Track) error {
	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	if t.Status == "" {
		t.Status = StatusPending
	}
	now := time.Now().UTC()
	t.CreatedAt = now
	t.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tracks (id, title, original_title, bucket, storage_key, status, repair_note, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		t.ID, t.Title, t.OriginalTitle, t.Bucket, t.StorageKey, t.Status, t.RepairNote,
		now.Format(time.RFC3339), now.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("creating track: %w", err)
	}
	return nil
}

// GetByID retrieves a track by primary key. Returns ErrNotFound when no
// record exists.
func (s *Store) GetByID(ctx context.Context, id string) (*Track, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+trackColumns+` FROM tracks WHERE id = ?`, id)
	t, err := scanTrack(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting track %s: %w", id, err)
	}
	return t, nil
}

// ListNeedingRepair returns completed tracks whose storage key is missing
// or empty, oldest first so re-runs make steady progress.
func (s *Store) ListNeedingRepair(ctx context.Context) ([]*Track, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+trackColumns+`
		FROM tracks
		WHERE status = ? AND storage_key = ''
		ORDER BY created_at ASC, id ASC
	`, StatusCompleted)
	if err != nil {
		return nil, fmt.Errorf("listing tracks needing repair: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	var tracks []*Track
	for rows.Next() {
		t, err := scanTrack(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning track: %w", err)
		}
		tracks = append(tracks, t)
	}
	return tracks, rows.Err()
}

// UpdateStorageKey persists a resolved key against a track, with an
// optional repair note for audit review.
func (s *Store) UpdateStorageKey(ctx context.Context, id, key, note string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE tracks SET storage_key = ?, repair_note = ?, updated_at = ? WHERE id = ?
	`, key, note, time.Now().UTC().Format(time.RFC3339), id)
	if err != nil {
		return fmt.Errorf("updating storage key for %s: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("updating storage key for %s: %w", id, err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTrack(row scanner) (*Track, error) {
	var t Track
	var createdAt, updatedAt string
	if err := row.Scan(
		&t.ID, &t.Title, &t.OriginalTitle, &t.Bucket, &t.StorageKey,
		&t.Status, &t.RepairNote, &createdAt, &updatedAt,
	); err != nil {
		return nil, err
	}
	t.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	t.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return &t, nil
}
