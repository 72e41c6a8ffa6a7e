package game

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"
)

// Archive writes finished games to Postgres. The live store keeps only
// TTL-bounded aggregates; archive rows are the permanent record.
type Archive struct {
	db *sql.DB
}

func NewArchive(databaseURL string) (*Archive, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(16)
	db.SetMaxIdleConns(8)
	db.SetConnMaxLifetime(30 * time.Minute)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}
	return &Archive{db: db}, nil
}

func (a *Archive) Close() error {
	if a == nil || a.db == nil {
		return nil
	}
	return a.db.Close()
}

// DB exposes the underlying handle so the rating repository can share
// the connection pool.
func (a *Archive) DB() *sql.DB {
	if a == nil {
		return nil
	}
	return a.db
}

// SaveResult upserts a finished session. Idempotent on session id so a
// retried finish never duplicates rows.
func (a *Archive) SaveResult(ctx context.Context, s *Session) error {
	if a == nil || a.db == nil || s == nil {
		return nil
	}
	if s.Status != StatusFinished {
		return nil
	}

	var whiteID, whiteName, blackID, blackName string
	if s.White != nil {
		whiteID, whiteName = s.White.ID, s.White.Name
	}
	if s.Black != nil {
		blackID, blackName = s.Black.ID, s.Black.Name
	}

	pgnResult := mapResultToPGN(s.Result)
	pgn := buildPGN(s, pgnResult)

	uci := make([]string, 0, len(s.Moves))
	san := make([]string, 0, len(s.Moves))
	for _, mv := range s.Moves {
		uci = append(uci, mv.UCI)
		san = append(san, mv.SAN)
	}
	uciRaw, _ := json.Marshal(uci)
	sanRaw, _ := json.Marshal(san)

	endedAt := s.UpdatedAt
	if s.FinishedAt != nil {
		endedAt = *s.FinishedAt
	}
	duration := endedAt.Sub(s.CreatedAt).Milliseconds()
	if duration < 0 {
		duration = 0
	}

	q := `INSERT INTO game_sessions (
	    session_id, white_id, white_name, black_id, black_name,
	    bot_elo, time_control,
	    result, result_method, moves_uci, moves_san, pgn,
	    started_at, ended_at, duration_ms
	  ) VALUES (
	    $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15
	  ) ON CONFLICT (session_id) DO UPDATE SET
	    white_id=EXCLUDED.white_id,
	    white_name=EXCLUDED.white_name,
	    black_id=EXCLUDED.black_id,
	    black_name=EXCLUDED.black_name,
	    bot_elo=EXCLUDED.bot_elo,
	    time_control=EXCLUDED.time_control,
	    result=EXCLUDED.result,
	    result_method=EXCLUDED.result_method,
	    moves_uci=EXCLUDED.moves_uci,
	    moves_san=EXCLUDED.moves_san,
	    pgn=EXCLUDED.pgn,
	    started_at=EXCLUDED.started_at,
	    ended_at=EXCLUDED.ended_at,
	    duration_ms=EXCLUDED.duration_ms`

	botElo := 0
	if s.Bot != nil {
		botElo = s.Bot.Elo
	}

	_, err := a.db.ExecContext(ctx, q,
		s.ID,
		whiteID, whiteName,
		blackID, blackName,
		botElo, s.TimeControl,
		s.Result, s.Method, string(uciRaw), string(sanRaw), pgn,
		s.CreatedAt, endedAt, duration,
	)
	return err
}

func mapResultToPGN(result string) string {
	switch strings.ToLower(strings.TrimSpace(result)) {
	case "white":
		return "1-0"
	case "black":
		return "0-1"
	case "draw":
		return "1/2-1/2"
	default:
		return "*"
	}
}

func buildPGN(s *Session, pgnResult string) string {
	if s == nil {
		return ""
	}
	var b strings.Builder
	date := s.UpdatedAt
	if s.FinishedAt != nil {
		date = *s.FinishedAt
	}
	if date.IsZero() {
		date = time.Now()
	}
	b.WriteString("[Event \"Checkmate\"]\n")
	b.WriteString("[Site \"checkmate\"]\n")
	b.WriteString(fmt.Sprintf("[Date \"%04d.%02d.%02d\"]\n", date.Year(), int(date.Month()), date.Day()))
	if s.White != nil {
		b.WriteString(fmt.Sprintf("[White \"%s\"]\n", sanitizePGN(s.White.Name)))
	}
	if s.Black != nil {
		b.WriteString(fmt.Sprintf("[Black \"%s\"]\n", sanitizePGN(s.Black.Name)))
	}
	if strings.TrimSpace(s.TimeControl) != "" {
		b.WriteString(fmt.Sprintf("[TimeControl \"%s\"]\n", sanitizePGN(s.TimeControl)))
	}
	if strings.TrimSpace(s.Method) != "" {
		b.WriteString(fmt.Sprintf("[Termination \"%s\"]\n", sanitizePGN(strings.ToLower(s.Method))))
	}
	b.WriteString(fmt.Sprintf("[Result \"%s\"]\n\n", pgnResult))

	for i := 0; i < len(s.Moves); i += 2 {
		turn := (i / 2) + 1
		b.WriteString(fmt.Sprintf("%d. %s", turn, strings.TrimSpace(s.Moves[i].SAN)))
		if i+1 < len(s.Moves) {
			b.WriteString(" ")
			b.WriteString(strings.TrimSpace(s.Moves[i+1].SAN))
		}
		b.WriteString(" ")
	}
	if pgnResult != "" {
		b.WriteString(pgnResult)
	}
	return b.String()
}

func sanitizePGN(s string) string {
	s = strings.ReplaceAll(s, "\\", " ")
	s = strings.ReplaceAll(s, "\"", "'")
	return strings.TrimSpace(s)
}
