package rating

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/IPandragonI/checkmate-sub000/internal/game"
	"github.com/IPandragonI/checkmate-sub000/internal/metrics"
	"github.com/IPandragonI/checkmate-sub000/internal/obslog"
)

// Updater recomputes ratings after a session finishes. Callers invoke
// Settle exactly once per session; the finish transition is the guard.
type Updater struct {
	repo Repository
}

func NewUpdater(repo Repository) *Updater {
	return &Updater{repo: repo}
}

// Rating returns the participant's current stored rating.
func (u *Updater) Rating(ctx context.Context, participantID string) (int, error) {
	return u.repo.GetRating(ctx, participantID)
}

// Settle computes and stores the post-game ratings for a FINISHED
// session. Human-vs-human updates both sides in one transaction; bot
// sessions update only the human side against the bot's fixed elo.
func (u *Updater) Settle(ctx context.Context, s *game.Session) ([]Record, error) {
	if s == nil || s.Status != game.StatusFinished {
		return nil, fmt.Errorf("settle requires a finished session")
	}
	if s.White == nil || s.Black == nil {
		return nil, fmt.Errorf("settle requires both sides seated")
	}

	whiteScore, blackScore, ok := scores(s.Result)
	if !ok {
		return nil, fmt.Errorf("settle: unknown result %q", s.Result)
	}

	now := time.Now()
	var records []Record

	if s.Bot != nil {
		humanSeat, humanScore := s.White, whiteScore
		if s.White.ID == game.BotParticipantID {
			humanSeat, humanScore = s.Black, blackScore
		}
		current, err := u.repo.GetRating(ctx, humanSeat.ID)
		if err != nil {
			return nil, err
		}
		exp := Expected(current, s.Bot.Elo)
		records = append(records, Record{
			ParticipantID: humanSeat.ID,
			SessionID:     s.ID,
			OpponentID:    game.BotParticipantID,
			Score:         humanScore,
			Before:        current,
			After:         Next(current, humanScore, exp),
			At:            now,
		})
	} else {
		whiteR, err := u.repo.GetRating(ctx, s.White.ID)
		if err != nil {
			return nil, err
		}
		blackR, err := u.repo.GetRating(ctx, s.Black.ID)
		if err != nil {
			return nil, err
		}
		records = append(records,
			Record{
				ParticipantID: s.White.ID,
				SessionID:     s.ID,
				OpponentID:    s.Black.ID,
				Score:         whiteScore,
				Before:        whiteR,
				After:         Next(whiteR, whiteScore, Expected(whiteR, blackR)),
				At:            now,
			},
			Record{
				ParticipantID: s.Black.ID,
				SessionID:     s.ID,
				OpponentID:    s.White.ID,
				Score:         blackScore,
				Before:        blackR,
				After:         Next(blackR, blackScore, Expected(blackR, whiteR)),
				At:            now,
			},
		)
	}

	if err := u.repo.ApplyUpdates(ctx, records); err != nil {
		return nil, fmt.Errorf("rating settle: %w", err)
	}
	metrics.RatingUpdates.Inc()
	for _, rec := range records {
		obslog.L().Info("rating_update",
			zap.String("session_id", rec.SessionID),
			zap.String("participant_id", rec.ParticipantID),
			zap.Int("before", rec.Before),
			zap.Int("after", rec.After),
			zap.Float64("score", rec.Score),
		)
	}
	return records, nil
}

func scores(result string) (white, black float64, ok bool) {
	switch result {
	case "white":
		return 1, 0, true
	case "black":
		return 0, 1, true
	case "draw":
		return 0.5, 0.5, true
	}
	return 0, 0, false
}
