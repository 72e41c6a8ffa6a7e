package game

import (
	"errors"
	"time"
)

// Status is the session lifecycle phase. Transitions are monotonic:
// WAITING -> IN_PROGRESS -> FINISHED.
type Status string

const (
	StatusWaiting    Status = "WAITING"
	StatusInProgress Status = "IN_PROGRESS"
	StatusFinished   Status = "FINISHED"
)

var (
	ErrNotFound        = errors.New("session not found")
	ErrNotStarted      = errors.New("session not started")
	ErrAlreadyStarted  = errors.New("session already started")
	ErrAlreadyFinished = errors.New("session already finished")
	ErrStaleSequence   = errors.New("stale move sequence")
	ErrWrongTurn       = errors.New("not this participant's turn")
	ErrNotParticipant  = errors.New("participant not in session")
	ErrCodeExhausted   = errors.New("could not allocate a unique join code")
)

// BotParticipantID marks the engine-controlled side in bot sessions.
const BotParticipantID = "bot"

type Participant struct {
	ID     string `json:"id"`
	Name   string `json:"name,omitempty"`
	Rating int    `json:"rating,omitempty"`
}

// Bot carries the engine opponent's fixed strength for bot sessions.
type Bot struct {
	Elo int `json:"elo"`
}

// Move is one accepted ply. Seq is 1-based and contiguous.
type Move struct {
	Seq       int       `json:"seq"`
	From      string    `json:"from"`
	To        string    `json:"to"`
	Promotion string    `json:"promotion,omitempty"`
	UCI       string    `json:"uci"`
	SAN       string    `json:"san"`
	FEN       string    `json:"fen"`
	Captured  string    `json:"captured,omitempty"`
	At        time.Time `json:"at"`
}

type ChatEntry struct {
	Author string    `json:"author"`
	Text   string    `json:"text"`
	At     time.Time `json:"at"`
}

// Session is the persisted aggregate. The store owns every mutation;
// callers never write fields outside an Update closure.
type Session struct {
	ID       string `json:"id"`
	JoinCode string `json:"join_code,omitempty"`
	Status   Status `json:"status"`

	FEN   string      `json:"fen"`
	Turn  string      `json:"turn"` // "white" | "black"
	Moves []Move      `json:"moves"`
	Chat  []ChatEntry `json:"chat,omitempty"`

	Host  *Participant `json:"host,omitempty"` // creator, pending side assignment
	White *Participant `json:"white,omitempty"`
	Black *Participant `json:"black,omitempty"`
	Bot   *Bot         `json:"bot,omitempty"`

	TimeControl string `json:"time_control,omitempty"`

	Result string `json:"result,omitempty"` // "white" | "black" | "draw"
	Method string `json:"method,omitempty"`

	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// History returns the UCI move list in order.
func (s *Session) History() []string {
	out := make([]string, 0, len(s.Moves))
	for _, mv := range s.Moves {
		out = append(out, mv.UCI)
	}
	return out
}

// SideOf reports which color a participant plays, or "" when the
// participant has no seat.
func (s *Session) SideOf(participantID string) string {
	if s.White != nil && s.White.ID == participantID {
		return "white"
	}
	if s.Black != nil && s.Black.ID == participantID {
		return "black"
	}
	return ""
}

// IsParticipant reports whether the id holds a seat or is the pending host.
func (s *Session) IsParticipant(participantID string) bool {
	if s.SideOf(participantID) != "" {
		return true
	}
	return s.Host != nil && s.Host.ID == participantID
}

// Opponent returns the seated participant facing the given id.
func (s *Session) Opponent(participantID string) *Participant {
	switch s.SideOf(participantID) {
	case "white":
		return s.Black
	case "black":
		return s.White
	}
	return nil
}

// BotTurn reports whether the engine side is to move.
func (s *Session) BotTurn() bool {
	if s.Bot == nil || s.Status != StatusInProgress {
		return false
	}
	switch s.Turn {
	case "white":
		return s.White != nil && s.White.ID == BotParticipantID
	case "black":
		return s.Black != nil && s.Black.ID == BotParticipantID
	}
	return false
}
