package session

import (
	"sync"
	"time"

	"github.com/IPandragonI/checkmate-sub000/internal/metrics"
)

// Registry tracks live connections and pending disconnect grace timers
// per session. It is purely in-process state; one instance per server,
// fresh instances per test.
type Registry struct {
	mu     sync.Mutex
	rooms  map[string]map[string]string // sessionID -> connID -> participantID
	conns  map[string]string            // connID -> sessionID
	timers map[string]map[string]*time.Timer
}

func NewRegistry() *Registry {
	return &Registry{
		rooms:  make(map[string]map[string]string),
		conns:  make(map[string]string),
		timers: make(map[string]map[string]*time.Timer),
	}
}

// Attach binds a connection to a session room and cancels any pending
// grace timer for the participant. Reports whether a timer was
// canceled.
func (r *Registry) Attach(sessionID, connID, participantID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	room, ok := r.rooms[sessionID]
	if !ok {
		room = make(map[string]string)
		r.rooms[sessionID] = room
	}
	if _, known := r.conns[connID]; !known {
		metrics.LiveConnections.Inc()
	}
	room[connID] = participantID
	r.conns[connID] = sessionID
	metrics.ActiveRooms.Set(float64(len(r.rooms)))
	return r.cancelGraceLocked(sessionID, participantID)
}

// Detach unbinds a connection. Returns its session and participant so
// the caller can schedule a grace timer.
func (r *Registry) Detach(connID string) (sessionID, participantID string, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sessionID, ok = r.conns[connID]
	if !ok {
		return "", "", false
	}
	delete(r.conns, connID)
	metrics.LiveConnections.Dec()
	room := r.rooms[sessionID]
	participantID = room[connID]
	delete(room, connID)
	if len(room) == 0 && len(r.timers[sessionID]) == 0 {
		delete(r.rooms, sessionID)
	}
	metrics.ActiveRooms.Set(float64(len(r.rooms)))
	return sessionID, participantID, true
}

// Conns returns every connection bound to the session.
func (r *Registry) Conns(sessionID string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	room := r.rooms[sessionID]
	out := make([]string, 0, len(room))
	for connID := range room {
		out = append(out, connID)
	}
	return out
}

// ConnsExcept returns the session's connections minus one.
func (r *Registry) ConnsExcept(sessionID, exceptConn string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	room := r.rooms[sessionID]
	out := make([]string, 0, len(room))
	for connID := range room {
		if connID != exceptConn {
			out = append(out, connID)
		}
	}
	return out
}

// Empty reports whether no connection remains in the session room.
func (r *Registry) Empty(sessionID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rooms[sessionID]) == 0
}

// ScheduleGrace arms a cancelable timer for a disconnected participant.
// An existing timer for the same participant is replaced.
func (r *Registry) ScheduleGrace(sessionID, participantID string, d time.Duration, fn func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	byPart, ok := r.timers[sessionID]
	if !ok {
		byPart = make(map[string]*time.Timer)
		r.timers[sessionID] = byPart
	}
	if t, exists := byPart[participantID]; exists {
		t.Stop()
	}
	byPart[participantID] = time.AfterFunc(d, func() {
		r.clearGrace(sessionID, participantID)
		fn()
	})
}

// CancelGrace stops a pending timer. Reports whether one was armed.
func (r *Registry) CancelGrace(sessionID, participantID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cancelGraceLocked(sessionID, participantID)
}

func (r *Registry) cancelGraceLocked(sessionID, participantID string) bool {
	byPart, ok := r.timers[sessionID]
	if !ok {
		return false
	}
	t, exists := byPart[participantID]
	if !exists {
		return false
	}
	t.Stop()
	delete(byPart, participantID)
	if len(byPart) == 0 {
		delete(r.timers, sessionID)
	}
	return true
}

func (r *Registry) clearGrace(sessionID, participantID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	byPart, ok := r.timers[sessionID]
	if !ok {
		return
	}
	delete(byPart, participantID)
	if len(byPart) == 0 {
		delete(r.timers, sessionID)
	}
	if len(r.rooms[sessionID]) == 0 {
		delete(r.rooms, sessionID)
		metrics.ActiveRooms.Set(float64(len(r.rooms)))
	}
}
