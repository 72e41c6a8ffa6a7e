package game

import (
	"context"
	"crypto/rand"
	"errors"
	"math/big"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/IPandragonI/checkmate-sub000/internal/metrics"
	"github.com/IPandragonI/checkmate-sub000/internal/obslog"
	"github.com/IPandragonI/checkmate-sub000/internal/rules"
)

// Manager is the sole owner of session mutations. Every write goes
// through the store's Update closure so the status machine stays
// monotonic under concurrent callers.
type Manager struct {
	store   Store
	archive *Archive
}

func NewManager(store Store) *Manager {
	return &Manager{store: store}
}

// AttachArchive wires the finished-game archive. Optional; without it
// finished sessions live only in the store until the TTL runs out.
func (m *Manager) AttachArchive(a *Archive) {
	if m != nil {
		m.archive = a
	}
}

// CreateSession opens a WAITING session hosted by the creator and binds
// a fresh join code.
func (m *Manager) CreateSession(ctx context.Context, host Participant, timeControl string) (*Session, error) {
	now := time.Now()
	sess := &Session{
		ID:          uuid.NewString(),
		Status:      StatusWaiting,
		FEN:         rules.StartFEN,
		Turn:        "white",
		Moves:       []Move{},
		Host:        &host,
		TimeControl: strings.TrimSpace(timeControl),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	code, err := allocateCode(ctx, m.store, sess.ID)
	if err != nil {
		return nil, err
	}
	sess.JoinCode = code
	if err := m.store.Create(ctx, sess); err != nil {
		return nil, err
	}
	obslog.L().Info("session_create",
		zap.String("session_id", sess.ID),
		zap.String("join_code", sess.JoinCode),
		zap.String("host_id", host.ID),
	)
	return sess, nil
}

// CreateBotSession opens a session against the engine. Sides are drawn
// immediately and the session starts IN_PROGRESS.
func (m *Manager) CreateBotSession(ctx context.Context, human Participant, botElo int) (*Session, error) {
	now := time.Now()
	botSeat := Participant{ID: BotParticipantID, Name: "Engine", Rating: botElo}
	white, black := human, botSeat
	if coinFlip() {
		white, black = botSeat, human
	}
	sess := &Session{
		ID:        uuid.NewString(),
		Status:    StatusInProgress,
		FEN:       rules.StartFEN,
		Turn:      "white",
		Moves:     []Move{},
		White:     &white,
		Black:     &black,
		Bot:       &Bot{Elo: botElo},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := m.store.Create(ctx, sess); err != nil {
		return nil, err
	}
	obslog.L().Info("session_create_bot",
		zap.String("session_id", sess.ID),
		zap.String("human_id", human.ID),
		zap.Int("bot_elo", botElo),
		zap.String("human_side", sess.SideOf(human.ID)),
	)
	return sess, nil
}

func (m *Manager) Load(ctx context.Context, id string) (*Session, error) {
	return m.store.Get(ctx, id)
}

func (m *Manager) ResolveCode(ctx context.Context, code string) (string, error) {
	return m.store.ResolveCode(ctx, code)
}

// Start seats the joiner opposite the host with a random color draw and
// moves the session to IN_PROGRESS.
func (m *Manager) Start(ctx context.Context, id string, joiner Participant) (*Session, error) {
	sess, err := m.store.Update(ctx, id, func(s *Session) error {
		if s.Status != StatusWaiting {
			return ErrAlreadyStarted
		}
		host := s.Host
		if host == nil {
			return ErrNotParticipant
		}
		white, black := *host, joiner
		if coinFlip() {
			white, black = joiner, *host
		}
		s.White = &white
		s.Black = &black
		s.Host = nil
		s.Status = StatusInProgress
		return nil
	})
	if err != nil {
		return nil, err
	}
	obslog.L().Info("session_start",
		zap.String("session_id", sess.ID),
		zap.String("white_id", sess.White.ID),
		zap.String("black_id", sess.Black.ID),
	)
	return sess, nil
}

// AppendMove validates and persists one ply. clientSeq 0 means "next";
// any other value must match the contiguous expected sequence. The move,
// the new position, and a possible terminal transition land in a single
// atomic write.
func (m *Manager) AppendMove(ctx context.Context, id, participantID string, in rules.MoveInput, clientSeq int) (*Session, *Move, error) {
	var appended Move
	sess, err := m.store.Update(ctx, id, func(s *Session) error {
		switch s.Status {
		case StatusWaiting:
			return ErrNotStarted
		case StatusFinished:
			return ErrAlreadyFinished
		}
		side := s.SideOf(participantID)
		if side == "" {
			return ErrNotParticipant
		}
		if side != s.Turn {
			return ErrWrongTurn
		}
		expected := len(s.Moves) + 1
		if clientSeq != 0 && clientSeq != expected {
			return ErrStaleSequence
		}
		applied, err := rules.Apply(s.History(), in)
		if err != nil {
			return err
		}
		appended = Move{
			Seq:       expected,
			From:      strings.ToLower(strings.TrimSpace(in.From)),
			To:        strings.ToLower(strings.TrimSpace(in.To)),
			Promotion: strings.ToLower(strings.TrimSpace(in.Promotion)),
			UCI:       applied.UCI,
			SAN:       applied.SAN,
			FEN:       applied.FEN,
			Captured:  applied.Captured,
			At:        time.Now(),
		}
		s.Moves = append(s.Moves, appended)
		s.FEN = applied.FEN
		s.Turn = applied.Turn
		if applied.Terminal {
			finishLocked(s, applied.Result, applied.Method)
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	metrics.MovesApplied.Inc()
	obslog.L().Info("move_apply",
		zap.String("session_id", sess.ID),
		zap.String("participant_id", participantID),
		zap.Int("seq", appended.Seq),
		zap.String("uci", appended.UCI),
		zap.String("san", appended.SAN),
		zap.String("status", string(sess.Status)),
	)
	if sess.Status == StatusFinished {
		m.onFinished(ctx, sess)
	}
	return sess, &appended, nil
}

// Finish forces a terminal result (resignation). The returned flag is
// true only for the call that performed the transition; a session that
// is already FINISHED comes back unchanged with false.
func (m *Manager) Finish(ctx context.Context, id, result, method string) (*Session, bool, error) {
	sess, err := m.store.Update(ctx, id, func(s *Session) error {
		if s.Status == StatusFinished {
			return ErrAlreadyFinished
		}
		finishLocked(s, result, method)
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrAlreadyFinished) {
			cur, gerr := m.store.Get(ctx, id)
			if gerr != nil {
				return nil, false, gerr
			}
			return cur, false, nil
		}
		return nil, false, err
	}
	obslog.L().Info("session_finish",
		zap.String("session_id", sess.ID),
		zap.String("result", sess.Result),
		zap.String("method", sess.Method),
	)
	m.onFinished(ctx, sess)
	return sess, true, nil
}

// AppendChat records a chat line for a seated or pending participant.
// Chat has no status precondition: players can keep talking after the
// game ends.
func (m *Manager) AppendChat(ctx context.Context, id, authorID, text string) (*Session, *ChatEntry, error) {
	var entry ChatEntry
	sess, err := m.store.Update(ctx, id, func(s *Session) error {
		if !s.IsParticipant(authorID) {
			return ErrNotParticipant
		}
		entry = ChatEntry{Author: authorID, Text: text, At: time.Now()}
		s.Chat = append(s.Chat, entry)
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return sess, &entry, nil
}

// Delete drops the live aggregate. Used for empty-room cleanup; the
// archive row, when present, is unaffected.
func (m *Manager) Delete(ctx context.Context, id string) error {
	return m.store.Delete(ctx, id)
}

func finishLocked(s *Session, result, method string) {
	now := time.Now()
	s.Status = StatusFinished
	s.Result = result
	s.Method = method
	s.FinishedAt = &now
}

func (m *Manager) onFinished(ctx context.Context, sess *Session) {
	metrics.SessionsFinished.WithLabelValues(sess.Result).Inc()
	if m.archive == nil {
		return
	}
	if err := m.archive.SaveResult(ctx, sess); err != nil {
		obslog.L().Error("session_archive_error",
			zap.String("session_id", sess.ID),
			zap.String("result", sess.Result),
			zap.Error(err),
		)
		return
	}
	obslog.L().Info("session_archive",
		zap.String("session_id", sess.ID),
		zap.String("result", sess.Result),
		zap.String("method", sess.Method),
	)
}

func coinFlip() bool {
	n, err := rand.Int(rand.Reader, big.NewInt(2))
	return err == nil && n.Int64() == 1
}
