package rating

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "github.com/lib/pq"
)

// Record is one participant's rating change for one session.
type Record struct {
	ParticipantID string
	SessionID     string
	OpponentID    string
	Score         float64
	Before        int
	After         int
	At            time.Time
}

// Repository stores ratings and their per-game history. ApplyUpdates
// must commit all records or none.
type Repository interface {
	GetRating(ctx context.Context, participantID string) (int, error)
	ApplyUpdates(ctx context.Context, records []Record) error
	Close() error
}

// SQLRepository keeps ratings in Postgres. Shares a handle with the
// game archive when both are configured.
type SQLRepository struct {
	db *sql.DB
}

func NewSQLRepository(db *sql.DB) (*SQLRepository, error) {
	if db == nil {
		return nil, fmt.Errorf("rating repository requires a database handle")
	}
	return &SQLRepository{db: db}, nil
}

func (r *SQLRepository) Close() error { return nil }

func (r *SQLRepository) GetRating(ctx context.Context, participantID string) (int, error) {
	var rating int
	err := r.db.QueryRowContext(ctx,
		`SELECT rating FROM player_ratings WHERE participant_id = $1`, participantID,
	).Scan(&rating)
	if err == sql.ErrNoRows {
		return DefaultRating, nil
	}
	if err != nil {
		return 0, fmt.Errorf("rating lookup: %w", err)
	}
	return rating, nil
}

func (r *SQLRepository) ApplyUpdates(ctx context.Context, records []Record) error {
	if len(records) == 0 {
		return nil
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("rating tx begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, rec := range records {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO player_ratings (participant_id, rating, games, updated_at)
			 VALUES ($1, $2, 1, $3)
			 ON CONFLICT (participant_id) DO UPDATE SET
			   rating = EXCLUDED.rating,
			   games = player_ratings.games + 1,
			   updated_at = EXCLUDED.updated_at`,
			rec.ParticipantID, rec.After, rec.At,
		); err != nil {
			return fmt.Errorf("rating upsert: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO rating_records (session_id, participant_id, opponent_id, score, rating_before, rating_after, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)
			 ON CONFLICT (session_id, participant_id) DO NOTHING`,
			rec.SessionID, rec.ParticipantID, rec.OpponentID, rec.Score, rec.Before, rec.After, rec.At,
		); err != nil {
			return fmt.Errorf("rating record insert: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("rating tx commit: %w", err)
	}
	return nil
}

// MemoryRepository backs tests and database-less development runs.
type MemoryRepository struct {
	mu      sync.Mutex
	ratings map[string]int
	history []Record
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{ratings: make(map[string]int)}
}

func (r *MemoryRepository) Close() error { return nil }

func (r *MemoryRepository) GetRating(_ context.Context, participantID string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if v, ok := r.ratings[participantID]; ok {
		return v, nil
	}
	return DefaultRating, nil
}

func (r *MemoryRepository) ApplyUpdates(_ context.Context, records []Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rec := range records {
		r.ratings[rec.ParticipantID] = rec.After
		r.history = append(r.history, rec)
	}
	return nil
}

// History returns recorded updates in apply order. Test helper.
func (r *MemoryRepository) History() []Record {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Record, len(r.history))
	copy(out, r.history)
	return out
}

// SetRating seeds a rating. Test helper.
func (r *MemoryRepository) SetRating(participantID string, rating int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ratings[participantID] = rating
}
