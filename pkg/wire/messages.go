package wire

import (
	"encoding/json"
	"time"
)

// Type discriminates envelope payloads on the realtime channel.
type Type string

// Inbound message types (client → server).
const (
	TypeJoin   Type = "join"
	TypeMove   Type = "move"
	TypeChat   Type = "chat"
	TypeResign Type = "resign"
)

// Outbound message types (server → client).
const (
	TypeWaiting      Type = "waiting"
	TypeStart        Type = "start"
	TypeMoveApplied  Type = "move"
	TypeGameOver     Type = "gameOver"
	TypeChatReceived Type = "chatReceived"
	TypeError        Type = "error"
)

// Error codes carried in ErrorPayload.Code.
const (
	CodeNotFound           = "NOT_FOUND"
	CodeUnauthorized       = "UNAUTHORIZED"
	CodeIllegalMove        = "ILLEGAL_MOVE"
	CodeInvalidInput       = "INVALID_INPUT"
	CodePersistenceFailure = "PERSISTENCE_FAILURE"
	CodeAlreadyTerminal    = "ALREADY_TERMINAL"
)

// Envelope frames every inbound message. Data is decoded per Type.
type Envelope struct {
	Type Type            `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Outbound frames every server → client message.
type Outbound struct {
	Type Type `json:"type"`
	Data any  `json:"data,omitempty"`
}

// MoveInput is a candidate move as submitted by a client.
type MoveInput struct {
	From      string `json:"from"`
	To        string `json:"to"`
	Promotion string `json:"promotion,omitempty"`
}

type JoinPayload struct {
	SessionID     string `json:"session_id,omitempty"`
	JoinCode      string `json:"join_code,omitempty"`
	ParticipantID string `json:"participant_id"`
	Name          string `json:"name,omitempty"`
	// BotElo > 0 requests a fresh session against the engine at that
	// strength. Ignored when joining an existing session.
	BotElo int `json:"bot_elo,omitempty"`
}

// WaitingPayload announces a session waiting for its second player.
type WaitingPayload struct {
	SessionID string `json:"session_id"`
	JoinCode  string `json:"join_code,omitempty"`
	Reason    string `json:"reason,omitempty"`
}

type MovePayload struct {
	SessionID string    `json:"session_id"`
	Move      MoveInput `json:"move"`
	// Seq, when non-zero, asserts the expected 1-based position of
	// this move; a mismatch is rejected as stale.
	Seq int `json:"seq,omitempty"`
}

type ChatPayload struct {
	SessionID string `json:"session_id"`
	Text      string `json:"text"`
}

type ResignPayload struct {
	SessionID string `json:"session_id"`
}

// PlayerInfo identifies one assigned side in a start broadcast.
type PlayerInfo struct {
	ParticipantID string `json:"participant_id"`
	Name          string `json:"name,omitempty"`
	Rating        int    `json:"rating,omitempty"`
	Bot           bool   `json:"bot,omitempty"`
}

// MoveBroadcast mirrors one accepted move to the room.
type MoveBroadcast struct {
	Seq       int    `json:"seq"`
	From      string `json:"from"`
	To        string `json:"to"`
	Promotion string `json:"promotion,omitempty"`
	SAN       string `json:"san"`
	FEN       string `json:"fen"`
	Captured  string `json:"captured,omitempty"`
}

type ChatReceived struct {
	Author string    `json:"author"`
	Text   string    `json:"text"`
	SentAt time.Time `json:"sent_at"`
}

// GameState is the full replayable state sent on start and rejoin.
type GameState struct {
	SessionID string          `json:"session_id"`
	Status    string          `json:"status"`
	FEN       string          `json:"fen"`
	Turn      string          `json:"turn"`
	Moves     []MoveBroadcast `json:"moves,omitempty"`
	Chat      []ChatReceived  `json:"chat,omitempty"`
	Result    string          `json:"result,omitempty"`
}

type StartPayload struct {
	PlayerWhite PlayerInfo `json:"player_white"`
	PlayerBlack PlayerInfo `json:"player_black"`
	State       GameState  `json:"state"`
}

type GameOverPayload struct {
	Result        string `json:"result"`
	Method        string `json:"method,omitempty"`
	FinalPosition string `json:"final_position"`
}

type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
