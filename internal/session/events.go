package session

import "github.com/IPandragonI/checkmate-sub000/internal/rules"

// Event is the tagged union of everything a connection can do. The
// transport resolves a connection to exactly one Event per inbound
// frame; Dispatch is the single entry point for all of them.
type Event interface {
	isEvent()
	ConnID() string
}

type baseEvent struct {
	Conn string
}

func (e baseEvent) isEvent()       {}
func (e baseEvent) ConnID() string { return e.Conn }

// JoinEvent enters a session by id or join code. ParticipantID is the
// caller's stable identity; Name is only used on first contact.
type JoinEvent struct {
	baseEvent
	SessionID     string
	JoinCode      string
	ParticipantID string
	Name          string
	BotElo        int
}

// MoveEvent submits one move for the bound participant.
type MoveEvent struct {
	baseEvent
	SessionID     string
	ParticipantID string
	Move          rules.MoveInput
	Seq           int
}

type ChatEvent struct {
	baseEvent
	SessionID     string
	ParticipantID string
	Text          string
}

type ResignEvent struct {
	baseEvent
	SessionID     string
	ParticipantID string
}

// DisconnectEvent fires when the transport loses the connection.
type DisconnectEvent struct {
	baseEvent
}

// NewJoinEvent and friends exist so the transport never builds the
// union structs field by field.
func NewJoinEvent(conn, sessionID, joinCode, participantID, name string, botElo int) JoinEvent {
	return JoinEvent{baseEvent: baseEvent{Conn: conn}, SessionID: sessionID, JoinCode: joinCode, ParticipantID: participantID, Name: name, BotElo: botElo}
}

func NewMoveEvent(conn, sessionID, participantID string, mv rules.MoveInput, seq int) MoveEvent {
	return MoveEvent{baseEvent: baseEvent{Conn: conn}, SessionID: sessionID, ParticipantID: participantID, Move: mv, Seq: seq}
}

func NewChatEvent(conn, sessionID, participantID, text string) ChatEvent {
	return ChatEvent{baseEvent: baseEvent{Conn: conn}, SessionID: sessionID, ParticipantID: participantID, Text: text}
}

func NewResignEvent(conn, sessionID, participantID string) ResignEvent {
	return ResignEvent{baseEvent: baseEvent{Conn: conn}, SessionID: sessionID, ParticipantID: participantID}
}

func NewDisconnectEvent(conn string) DisconnectEvent {
	return DisconnectEvent{baseEvent: baseEvent{Conn: conn}}
}
