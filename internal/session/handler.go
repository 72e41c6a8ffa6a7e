package session

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/IPandragonI/checkmate-sub000/internal/bot"
	"github.com/IPandragonI/checkmate-sub000/internal/game"
	"github.com/IPandragonI/checkmate-sub000/internal/metrics"
	"github.com/IPandragonI/checkmate-sub000/internal/obslog"
	"github.com/IPandragonI/checkmate-sub000/internal/rating"
	"github.com/IPandragonI/checkmate-sub000/internal/rules"
	"github.com/IPandragonI/checkmate-sub000/pkg/wire"
)

// Delivery is one outbound message for a set of connections.
type Delivery struct {
	Conns []string
	Msg   wire.Outbound
}

// Sender delivers messages outside a Dispatch call. The grace timer is
// the only producer; the transport is the only implementation in
// production, tests use a recorder.
type Sender interface {
	Send(conns []string, msg wire.Outbound)
}

// Handler is the connection-facing state machine. Dispatch serializes
// per session through a keyed mutex, applies the mutation through the
// game manager, and returns the deliveries the transport must fan out.
type Handler struct {
	games    *game.Manager
	registry *Registry
	bots     *bot.Selector
	ratings  *rating.Updater
	locks    *keyedMutex
	sender   Sender
	grace    time.Duration
}

func NewHandler(games *game.Manager, registry *Registry, bots *bot.Selector, ratings *rating.Updater, grace time.Duration) *Handler {
	if grace <= 0 {
		grace = 30 * time.Second
	}
	return &Handler{
		games:    games,
		registry: registry,
		bots:     bots,
		ratings:  ratings,
		locks:    newKeyedMutex(),
		grace:    grace,
	}
}

// SetSender wires the async delivery path for grace-timer output.
func (h *Handler) SetSender(s Sender) { h.sender = s }

// Dispatch handles one inbound event and returns every delivery it
// produced. Ordering inside the returned slice is delivery order.
func (h *Handler) Dispatch(ctx context.Context, ev Event) []Delivery {
	switch e := ev.(type) {
	case JoinEvent:
		return h.handleJoin(ctx, e)
	case MoveEvent:
		return h.handleMove(ctx, e)
	case ChatEvent:
		return h.handleChat(ctx, e)
	case ResignEvent:
		return h.handleResign(ctx, e)
	case DisconnectEvent:
		return h.handleDisconnect(ctx, e)
	}
	return nil
}

func (h *Handler) handleJoin(ctx context.Context, e JoinEvent) []Delivery {
	pid := strings.TrimSpace(e.ParticipantID)
	if pid == "" {
		return errorTo(e.Conn, wire.CodeInvalidInput, "participant_id is required")
	}

	// No target session: this join creates one.
	if strings.TrimSpace(e.SessionID) == "" && strings.TrimSpace(e.JoinCode) == "" {
		return h.createAndJoin(ctx, e, pid)
	}

	id := strings.TrimSpace(e.SessionID)
	if id == "" {
		resolved, err := h.games.ResolveCode(ctx, e.JoinCode)
		if err != nil {
			return h.errDelivery(e.Conn, err)
		}
		id = resolved
	}

	unlock := h.locks.Lock(id)
	defer unlock()

	sess, err := h.games.Load(ctx, id)
	if err != nil {
		return h.errDelivery(e.Conn, err)
	}

	if sess.IsParticipant(pid) {
		return h.rejoin(e.Conn, sess, pid)
	}

	if sess.Status != game.StatusWaiting {
		return errorTo(e.Conn, wire.CodeUnauthorized, "session is not open for joining")
	}

	joiner := game.Participant{ID: pid, Name: strings.TrimSpace(e.Name)}
	joiner.Rating = h.lookupRating(ctx, pid)
	started, err := h.games.Start(ctx, id, joiner)
	if err != nil {
		return h.errDelivery(e.Conn, err)
	}
	h.registry.Attach(started.ID, e.Conn, pid)

	payload := h.startPayload(started)
	return []Delivery{h.deliver(h.registry.Conns(started.ID), wire.Outbound{Type: wire.TypeStart, Data: payload})}
}

func (h *Handler) createAndJoin(ctx context.Context, e JoinEvent, pid string) []Delivery {
	creator := game.Participant{ID: pid, Name: strings.TrimSpace(e.Name)}
	creator.Rating = h.lookupRating(ctx, pid)

	if e.BotElo > 0 {
		sess, err := h.games.CreateBotSession(ctx, creator, e.BotElo)
		if err != nil {
			return h.errDelivery(e.Conn, err)
		}
		h.registry.Attach(sess.ID, e.Conn, pid)
		out := []Delivery{h.deliver([]string{e.Conn}, wire.Outbound{Type: wire.TypeStart, Data: h.startPayload(sess)})}
		// White engine opens immediately.
		if sess.BotTurn() {
			out = append(out, h.playBotTurn(ctx, sess)...)
		}
		return out
	}

	sess, err := h.games.CreateSession(ctx, creator, "")
	if err != nil {
		return h.errDelivery(e.Conn, err)
	}
	h.registry.Attach(sess.ID, e.Conn, pid)
	return []Delivery{h.deliver([]string{e.Conn}, wire.Outbound{
		Type: wire.TypeWaiting,
		Data: wire.WaitingPayload{SessionID: sess.ID, JoinCode: sess.JoinCode},
	})}
}

// rejoin re-attaches a known participant and replays the state they
// missed. Never mutates the aggregate.
func (h *Handler) rejoin(conn string, sess *game.Session, pid string) []Delivery {
	canceled := h.registry.Attach(sess.ID, conn, pid)
	if canceled {
		obslog.L().Info("grace_cancel",
			zap.String("session_id", sess.ID),
			zap.String("participant_id", pid),
		)
	}
	switch sess.Status {
	case game.StatusWaiting:
		return []Delivery{h.deliver([]string{conn}, wire.Outbound{
			Type: wire.TypeWaiting,
			Data: wire.WaitingPayload{SessionID: sess.ID, JoinCode: sess.JoinCode},
		})}
	case game.StatusFinished:
		return []Delivery{h.deliver([]string{conn}, wire.Outbound{
			Type: wire.TypeGameOver,
			Data: gameOverPayload(sess),
		})}
	default:
		return []Delivery{h.deliver([]string{conn}, wire.Outbound{Type: wire.TypeStart, Data: h.startPayload(sess)})}
	}
}

func (h *Handler) handleMove(ctx context.Context, e MoveEvent) []Delivery {
	if strings.TrimSpace(e.SessionID) == "" {
		return errorTo(e.Conn, wire.CodeInvalidInput, "session_id is required")
	}
	unlock := h.locks.Lock(e.SessionID)
	defer unlock()

	sess, mv, err := h.games.AppendMove(ctx, e.SessionID, e.ParticipantID, e.Move, e.Seq)
	if err != nil {
		if errors.Is(err, rules.ErrIllegalMove) || errors.Is(err, game.ErrWrongTurn) {
			metrics.IllegalMoves.Inc()
		}
		return h.errDelivery(e.Conn, err)
	}

	// The mover already knows the move; only the rest of the room
	// hears about it.
	out := []Delivery{h.deliver(h.registry.ConnsExcept(sess.ID, e.Conn), wire.Outbound{
		Type: wire.TypeMoveApplied,
		Data: moveBroadcast(mv),
	})}
	if sess.Status == game.StatusFinished {
		return append(out, h.finishDeliveries(ctx, sess)...)
	}
	if sess.BotTurn() {
		out = append(out, h.playBotTurn(ctx, sess)...)
	}
	return out
}

// playBotTurn selects and applies the engine reply. Runs inline under
// the session lock so the two plies broadcast in order.
func (h *Handler) playBotTurn(ctx context.Context, sess *game.Session) []Delivery {
	if h.bots == nil || sess.Bot == nil {
		return nil
	}
	in, err := h.bots.Select(sess.History(), sess.Bot.Elo)
	if err != nil {
		if !errors.Is(err, bot.ErrNoMove) {
			obslog.L().Error("bot_select_error", zap.String("session_id", sess.ID), zap.Error(err))
		}
		return nil
	}
	next, mv, err := h.games.AppendMove(ctx, sess.ID, game.BotParticipantID, in, 0)
	if err != nil {
		obslog.L().Error("bot_move_error", zap.String("session_id", sess.ID), zap.Error(err))
		return nil
	}
	out := []Delivery{h.deliver(h.registry.Conns(next.ID), wire.Outbound{
		Type: wire.TypeMoveApplied,
		Data: moveBroadcast(mv),
	})}
	if next.Status == game.StatusFinished {
		out = append(out, h.finishDeliveries(ctx, next)...)
	}
	return out
}

func (h *Handler) handleChat(ctx context.Context, e ChatEvent) []Delivery {
	text := strings.TrimSpace(e.Text)
	if strings.TrimSpace(e.SessionID) == "" || text == "" {
		return errorTo(e.Conn, wire.CodeInvalidInput, "session_id and text are required")
	}
	unlock := h.locks.Lock(e.SessionID)
	defer unlock()

	sess, entry, err := h.games.AppendChat(ctx, e.SessionID, e.ParticipantID, text)
	if err != nil {
		return h.errDelivery(e.Conn, err)
	}
	return []Delivery{h.deliver(h.registry.Conns(sess.ID), wire.Outbound{
		Type: wire.TypeChatReceived,
		Data: wire.ChatReceived{Author: entry.Author, Text: entry.Text, SentAt: entry.At},
	})}
}

func (h *Handler) handleResign(ctx context.Context, e ResignEvent) []Delivery {
	if strings.TrimSpace(e.SessionID) == "" {
		return errorTo(e.Conn, wire.CodeInvalidInput, "session_id is required")
	}
	unlock := h.locks.Lock(e.SessionID)
	defer unlock()

	sess, err := h.games.Load(ctx, e.SessionID)
	if err != nil {
		return h.errDelivery(e.Conn, err)
	}
	side := sess.SideOf(e.ParticipantID)
	if side == "" {
		return errorTo(e.Conn, wire.CodeUnauthorized, "only a seated player can resign")
	}
	if sess.Status == game.StatusWaiting {
		return errorTo(e.Conn, wire.CodeInvalidInput, "session has not started")
	}
	winner := "white"
	if side == "white" {
		winner = "black"
	}
	finished, transitioned, err := h.games.Finish(ctx, e.SessionID, winner, "resignation")
	if err != nil {
		return h.errDelivery(e.Conn, err)
	}
	if !transitioned {
		return []Delivery{h.deliver([]string{e.Conn}, wire.Outbound{
			Type: wire.TypeGameOver,
			Data: gameOverPayload(finished),
		})}
	}
	return h.finishDeliveries(ctx, finished)
}

func (h *Handler) handleDisconnect(ctx context.Context, e DisconnectEvent) []Delivery {
	sessionID, pid, ok := h.registry.Detach(e.Conn)
	if !ok {
		return nil
	}
	sess, err := h.games.Load(ctx, sessionID)
	if err != nil || sess.Status == game.StatusFinished {
		return nil
	}
	// A participant closing one tab of several leaves the room fully
	// populated; only arm the timer once the room drops below two
	// live connections.
	if len(h.registry.Conns(sessionID)) >= 2 {
		return nil
	}
	obslog.L().Info("grace_arm",
		zap.String("session_id", sessionID),
		zap.String("participant_id", pid),
		zap.Duration("grace", h.grace),
	)
	h.registry.ScheduleGrace(sessionID, pid, h.grace, func() {
		h.onGraceExpired(sessionID, pid)
	})
	return nil
}

// onGraceExpired runs on the timer goroutine after the grace window
// passes without a rejoin. It never terminates the game; it only
// notifies the remaining side and cleans up empty rooms.
func (h *Handler) onGraceExpired(sessionID, pid string) {
	remaining := h.registry.Conns(sessionID)
	// The room may have repopulated without the absentee rejoining,
	// for instance through a second tab of the remaining player plus
	// a fresh one of the other. Nothing to report then.
	if len(remaining) >= 2 {
		return
	}
	metrics.GraceExpirations.Inc()
	obslog.L().Info("grace_expire",
		zap.String("session_id", sessionID),
		zap.String("participant_id", pid),
	)
	if len(remaining) > 0 && h.sender != nil {
		h.sender.Send(remaining, wire.Outbound{
			Type: wire.TypeWaiting,
			Data: wire.WaitingPayload{SessionID: sessionID, Reason: "opponent_disconnected"},
		})
		metrics.BroadcastsSent.Add(float64(len(remaining)))
		return
	}
	// Empty room: drop a never-started aggregate, keep running games
	// for the store TTL so both sides can still come back.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	sess, err := h.games.Load(ctx, sessionID)
	if err != nil {
		return
	}
	if sess.Status == game.StatusWaiting {
		if derr := h.games.Delete(ctx, sessionID); derr != nil {
			obslog.L().Warn("session_cleanup_error", zap.String("session_id", sessionID), zap.Error(derr))
		}
	}
}

// finishDeliveries broadcasts the result and settles ratings. Callers
// only reach it on the call that performed the FINISHED transition, so
// the rating update runs exactly once per session.
func (h *Handler) finishDeliveries(ctx context.Context, sess *game.Session) []Delivery {
	if h.ratings != nil && sess.White != nil && sess.Black != nil {
		if _, err := h.ratings.Settle(ctx, sess); err != nil {
			obslog.L().Error("rating_settle_error",
				zap.String("session_id", sess.ID),
				zap.Error(err),
			)
		}
	}
	return []Delivery{h.deliver(h.registry.Conns(sess.ID), wire.Outbound{
		Type: wire.TypeGameOver,
		Data: gameOverPayload(sess),
	})}
}

func (h *Handler) lookupRating(ctx context.Context, pid string) int {
	if h.ratings == nil || pid == game.BotParticipantID {
		return 0
	}
	r, err := h.ratings.Rating(ctx, pid)
	if err != nil {
		obslog.L().Warn("rating_lookup_error", zap.String("participant_id", pid), zap.Error(err))
		return rating.DefaultRating
	}
	return r
}

func (h *Handler) deliver(conns []string, msg wire.Outbound) Delivery {
	metrics.BroadcastsSent.Add(float64(len(conns)))
	return Delivery{Conns: conns, Msg: msg}
}

func (h *Handler) errDelivery(conn string, err error) []Delivery {
	code := wire.CodePersistenceFailure
	switch {
	case errors.Is(err, game.ErrNotFound):
		code = wire.CodeNotFound
	case errors.Is(err, game.ErrNotParticipant), errors.Is(err, game.ErrAlreadyStarted):
		code = wire.CodeUnauthorized
	case errors.Is(err, rules.ErrIllegalMove), errors.Is(err, game.ErrWrongTurn), errors.Is(err, game.ErrNotStarted):
		code = wire.CodeIllegalMove
	case errors.Is(err, game.ErrStaleSequence), errors.Is(err, rules.ErrBadHistory):
		code = wire.CodeInvalidInput
	case errors.Is(err, game.ErrAlreadyFinished):
		code = wire.CodeAlreadyTerminal
	default:
		obslog.L().Error("dispatch_error", zap.Error(err))
	}
	return errorTo(conn, code, err.Error())
}

func errorTo(conn, code, msg string) []Delivery {
	return []Delivery{{
		Conns: []string{conn},
		Msg:   wire.Outbound{Type: wire.TypeError, Data: wire.ErrorPayload{Code: code, Message: msg}},
	}}
}

func (h *Handler) startPayload(sess *game.Session) wire.StartPayload {
	return wire.StartPayload{
		PlayerWhite: playerInfo(sess.White),
		PlayerBlack: playerInfo(sess.Black),
		State:       stateOf(sess),
	}
}

func playerInfo(p *game.Participant) wire.PlayerInfo {
	if p == nil {
		return wire.PlayerInfo{}
	}
	return wire.PlayerInfo{
		ParticipantID: p.ID,
		Name:          p.Name,
		Rating:        p.Rating,
		Bot:           p.ID == game.BotParticipantID,
	}
}

func stateOf(sess *game.Session) wire.GameState {
	moves := make([]wire.MoveBroadcast, 0, len(sess.Moves))
	for i := range sess.Moves {
		moves = append(moves, moveBroadcast(&sess.Moves[i]))
	}
	chat := make([]wire.ChatReceived, 0, len(sess.Chat))
	for _, c := range sess.Chat {
		chat = append(chat, wire.ChatReceived{Author: c.Author, Text: c.Text, SentAt: c.At})
	}
	return wire.GameState{
		SessionID: sess.ID,
		Status:    string(sess.Status),
		FEN:       sess.FEN,
		Turn:      sess.Turn,
		Moves:     moves,
		Chat:      chat,
		Result:    sess.Result,
	}
}

func moveBroadcast(mv *game.Move) wire.MoveBroadcast {
	return wire.MoveBroadcast{
		Seq:       mv.Seq,
		From:      mv.From,
		To:        mv.To,
		Promotion: mv.Promotion,
		SAN:       mv.SAN,
		FEN:       mv.FEN,
		Captured:  mv.Captured,
	}
}

func gameOverPayload(sess *game.Session) wire.GameOverPayload {
	return wire.GameOverPayload{
		Result:        sess.Result,
		Method:        sess.Method,
		FinalPosition: sess.FEN,
	}
}
