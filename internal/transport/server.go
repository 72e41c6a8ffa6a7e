package transport

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/IPandragonI/checkmate-sub000/internal/obslog"
	"github.com/IPandragonI/checkmate-sub000/internal/rules"
	"github.com/IPandragonI/checkmate-sub000/internal/session"
	"github.com/IPandragonI/checkmate-sub000/pkg/wire"
	"github.com/google/uuid"
)

const writeTimeout = 10 * time.Second

// Server accepts websocket connections and bridges them onto the
// session handler: one read loop per connection, writes serialized per
// connection, handler deliveries fanned out by connection id.
type Server struct {
	handler *session.Handler

	mu    sync.RWMutex
	conns map[string]*clientConn

	rootCtx    context.Context
	rootCancel context.CancelFunc
}

type clientConn struct {
	id      string
	conn    *websocket.Conn
	writeMu sync.Mutex

	// bound session/participant, set by the first successful join
	mu            sync.Mutex
	sessionID     string
	participantID string
}

func NewServer(handler *session.Handler) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		handler:    handler,
		conns:      make(map[string]*clientConn),
		rootCtx:    ctx,
		rootCancel: cancel,
	}
	handler.SetSender(s)
	return s
}

// ServeHTTP upgrades and runs the connection until it drops.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		CompressionMode: websocket.CompressionNoContextTakeover,
	})
	if err != nil {
		obslog.L().Warn("ws_accept_error", zap.Error(err))
		return
	}

	cc := &clientConn{id: uuid.NewString(), conn: conn}
	s.mu.Lock()
	s.conns[cc.id] = cc
	s.mu.Unlock()

	obslog.L().Info("ws_open", zap.String("conn_id", cc.id))
	s.readLoop(cc)
}

func (s *Server) readLoop(cc *clientConn) {
	ctx := s.rootCtx
	defer s.drop(cc)

	for {
		var env wire.Envelope
		if err := wsjson.Read(ctx, cc.conn, &env); err != nil {
			obslog.L().Info("ws_close", zap.String("conn_id", cc.id))
			return
		}
		ev, perr := s.toEvent(cc, &env)
		if perr != "" {
			s.Send([]string{cc.id}, wire.Outbound{
				Type: wire.TypeError,
				Data: wire.ErrorPayload{Code: wire.CodeInvalidInput, Message: perr},
			})
			continue
		}
		deliveries := s.handler.Dispatch(ctx, ev)
		s.bindFromDeliveries(cc, &env, deliveries)
		for _, d := range deliveries {
			s.Send(d.Conns, d.Msg)
		}
	}
}

// toEvent decodes one inbound frame. A non-empty string return is a
// client-facing validation message.
func (s *Server) toEvent(cc *clientConn, env *wire.Envelope) (session.Event, string) {
	switch env.Type {
	case wire.TypeJoin:
		var p wire.JoinPayload
		if err := json.Unmarshal(env.Data, &p); err != nil {
			return nil, "malformed join payload"
		}
		cc.mu.Lock()
		cc.participantID = p.ParticipantID
		cc.mu.Unlock()
		return session.NewJoinEvent(cc.id, p.SessionID, p.JoinCode, p.ParticipantID, p.Name, p.BotElo), ""
	case wire.TypeMove:
		var p wire.MovePayload
		if err := json.Unmarshal(env.Data, &p); err != nil {
			return nil, "malformed move payload"
		}
		sid, pid := cc.binding()
		if p.SessionID != "" {
			sid = p.SessionID
		}
		mv := rules.MoveInput{From: p.Move.From, To: p.Move.To, Promotion: p.Move.Promotion}
		return session.NewMoveEvent(cc.id, sid, pid, mv, p.Seq), ""
	case wire.TypeChat:
		var p wire.ChatPayload
		if err := json.Unmarshal(env.Data, &p); err != nil {
			return nil, "malformed chat payload"
		}
		sid, pid := cc.binding()
		if p.SessionID != "" {
			sid = p.SessionID
		}
		return session.NewChatEvent(cc.id, sid, pid, p.Text), ""
	case wire.TypeResign:
		var p wire.ResignPayload
		if err := json.Unmarshal(env.Data, &p); err != nil {
			return nil, "malformed resign payload"
		}
		sid, pid := cc.binding()
		if p.SessionID != "" {
			sid = p.SessionID
		}
		return session.NewResignEvent(cc.id, sid, pid), ""
	}
	return nil, "unknown message type"
}

// bindFromDeliveries records the session id after a join succeeds so
// later frames can omit it.
func (s *Server) bindFromDeliveries(cc *clientConn, env *wire.Envelope, deliveries []session.Delivery) {
	if env.Type != wire.TypeJoin {
		return
	}
	for _, d := range deliveries {
		switch data := d.Msg.Data.(type) {
		case wire.WaitingPayload:
			cc.bind(data.SessionID)
			return
		case wire.StartPayload:
			cc.bind(data.State.SessionID)
			return
		case wire.GameOverPayload:
			return
		}
	}
}

func (cc *clientConn) bind(sessionID string) {
	cc.mu.Lock()
	cc.sessionID = sessionID
	cc.mu.Unlock()
}

func (cc *clientConn) binding() (sessionID, participantID string) {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	return cc.sessionID, cc.participantID
}

// Send implements session.Sender.
func (s *Server) Send(connIDs []string, msg wire.Outbound) {
	for _, id := range connIDs {
		s.mu.RLock()
		cc, ok := s.conns[id]
		s.mu.RUnlock()
		if !ok {
			continue
		}
		cc.writeMu.Lock()
		ctx, cancel := context.WithTimeout(s.rootCtx, writeTimeout)
		err := wsjson.Write(ctx, cc.conn, msg)
		cancel()
		cc.writeMu.Unlock()
		if err != nil {
			obslog.L().Warn("ws_write_error",
				zap.String("conn_id", id),
				zap.String("type", string(msg.Type)),
				zap.Error(err),
			)
		}
	}
}

func (s *Server) drop(cc *clientConn) {
	s.mu.Lock()
	delete(s.conns, cc.id)
	s.mu.Unlock()
	_ = cc.conn.Close(websocket.StatusNormalClosure, "bye")
	s.handler.Dispatch(s.rootCtx, session.NewDisconnectEvent(cc.id))
}

// Close tears down every connection.
func (s *Server) Close() {
	s.rootCancel()
	s.mu.Lock()
	for _, cc := range s.conns {
		_ = cc.conn.Close(websocket.StatusGoingAway, "shutdown")
	}
	s.conns = make(map[string]*clientConn)
	s.mu.Unlock()
}
