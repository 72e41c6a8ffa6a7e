package game

import (
	"context"
	"errors"
	"testing"

	"github.com/IPandragonI/checkmate-sub000/internal/rules"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	return NewManager(NewMemoryStore())
}

func startedSession(t *testing.T, m *Manager) *Session {
	t.Helper()
	ctx := context.Background()
	sess, err := m.CreateSession(ctx, Participant{ID: "alice", Name: "Alice"}, "")
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	started, err := m.Start(ctx, sess.ID, Participant{ID: "bob", Name: "Bob"})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	return started
}

// moveAs plays the given move for whichever player owns the side to move.
func moveAs(t *testing.T, m *Manager, sess *Session, from, to string) *Session {
	t.Helper()
	cur, err := m.Load(context.Background(), sess.ID)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	var pid string
	if cur.Turn == "white" {
		pid = cur.White.ID
	} else {
		pid = cur.Black.ID
	}
	next, _, err := m.AppendMove(context.Background(), sess.ID, pid, rules.MoveInput{From: from, To: to}, 0)
	if err != nil {
		t.Fatalf("AppendMove %s%s: %v", from, to, err)
	}
	return next
}

func TestCreateSessionWaitingWithCode(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()
	sess, err := m.CreateSession(ctx, Participant{ID: "alice"}, "")
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if sess.Status != StatusWaiting {
		t.Fatalf("expected WAITING, got %s", sess.Status)
	}
	if len(sess.JoinCode) != 9 || sess.JoinCode[:3] != "CM-" {
		t.Fatalf("unexpected join code %q", sess.JoinCode)
	}
	id, err := m.ResolveCode(ctx, sess.JoinCode)
	if err != nil || id != sess.ID {
		t.Fatalf("ResolveCode: id=%q err=%v", id, err)
	}
}

func TestStartAssignsOppositeColors(t *testing.T) {
	m := newTestManager(t)
	sess := startedSession(t, m)
	if sess.Status != StatusInProgress {
		t.Fatalf("expected IN_PROGRESS, got %s", sess.Status)
	}
	if sess.White == nil || sess.Black == nil {
		t.Fatalf("both seats must be filled")
	}
	if sess.White.ID == sess.Black.ID {
		t.Fatalf("same participant on both sides")
	}
	got := map[string]bool{sess.White.ID: true, sess.Black.ID: true}
	if !got["alice"] || !got["bob"] {
		t.Fatalf("unexpected seat assignment: %v", got)
	}
	if sess.Host != nil {
		t.Fatalf("host must be cleared after start")
	}
}

func TestStartTwiceRejected(t *testing.T) {
	m := newTestManager(t)
	sess := startedSession(t, m)
	if _, err := m.Start(context.Background(), sess.ID, Participant{ID: "carol"}); !errors.Is(err, ErrAlreadyStarted) {
		t.Fatalf("expected ErrAlreadyStarted, got %v", err)
	}
}

func TestAppendMoveSequenceContiguity(t *testing.T) {
	m := newTestManager(t)
	sess := startedSession(t, m)
	ctx := context.Background()
	whiteID := sess.White.ID

	// Explicit correct sequence is accepted.
	next, mv, err := m.AppendMove(ctx, sess.ID, whiteID, rules.MoveInput{From: "e2", To: "e4"}, 1)
	if err != nil {
		t.Fatalf("AppendMove: %v", err)
	}
	if mv.Seq != 1 || len(next.Moves) != 1 {
		t.Fatalf("expected seq 1, got %d (moves=%d)", mv.Seq, len(next.Moves))
	}

	// Stale sequence rejected, log unchanged.
	_, _, err = m.AppendMove(ctx, sess.ID, next.Black.ID, rules.MoveInput{From: "e7", To: "e5"}, 1)
	if !errors.Is(err, ErrStaleSequence) {
		t.Fatalf("expected ErrStaleSequence, got %v", err)
	}
	cur, _ := m.Load(ctx, sess.ID)
	if len(cur.Moves) != 1 {
		t.Fatalf("stale move must not append, got %d moves", len(cur.Moves))
	}
}

func TestAppendMoveTurnAndMembership(t *testing.T) {
	m := newTestManager(t)
	sess := startedSession(t, m)
	ctx := context.Background()

	if _, _, err := m.AppendMove(ctx, sess.ID, sess.Black.ID, rules.MoveInput{From: "e7", To: "e5"}, 0); !errors.Is(err, ErrWrongTurn) {
		t.Fatalf("expected ErrWrongTurn, got %v", err)
	}
	if _, _, err := m.AppendMove(ctx, sess.ID, "mallory", rules.MoveInput{From: "e2", To: "e4"}, 0); !errors.Is(err, ErrNotParticipant) {
		t.Fatalf("expected ErrNotParticipant, got %v", err)
	}
}

func TestAppendMoveIllegalLeavesStateUntouched(t *testing.T) {
	m := newTestManager(t)
	sess := startedSession(t, m)
	ctx := context.Background()
	before, _ := m.Load(ctx, sess.ID)

	_, _, err := m.AppendMove(ctx, sess.ID, sess.White.ID, rules.MoveInput{From: "e2", To: "e5"}, 0)
	if !errors.Is(err, rules.ErrIllegalMove) {
		t.Fatalf("expected ErrIllegalMove, got %v", err)
	}
	after, _ := m.Load(ctx, sess.ID)
	if after.FEN != before.FEN || len(after.Moves) != 0 {
		t.Fatalf("illegal move mutated state")
	}
}

func TestCheckmateFinishesInOneWrite(t *testing.T) {
	m := newTestManager(t)
	sess := startedSession(t, m)

	moveAs(t, m, sess, "f2", "f3")
	moveAs(t, m, sess, "e7", "e5")
	moveAs(t, m, sess, "g2", "g4")
	final := moveAs(t, m, sess, "d8", "h4")

	if final.Status != StatusFinished {
		t.Fatalf("expected FINISHED, got %s", final.Status)
	}
	if final.Result != "black" || final.Method != "checkmate" {
		t.Fatalf("unexpected outcome: %s/%s", final.Result, final.Method)
	}
	if final.FinishedAt == nil {
		t.Fatalf("FinishedAt not set")
	}

	// No more moves on a finished session.
	_, _, err := m.AppendMove(context.Background(), sess.ID, final.White.ID, rules.MoveInput{From: "a2", To: "a3"}, 0)
	if !errors.Is(err, ErrAlreadyFinished) {
		t.Fatalf("expected ErrAlreadyFinished, got %v", err)
	}
}

func TestFinishIsIdempotent(t *testing.T) {
	m := newTestManager(t)
	sess := startedSession(t, m)
	ctx := context.Background()

	first, transitioned, err := m.Finish(ctx, sess.ID, "white", "resignation")
	if err != nil || !transitioned {
		t.Fatalf("first Finish: transitioned=%v err=%v", transitioned, err)
	}
	if first.Status != StatusFinished || first.Result != "white" {
		t.Fatalf("unexpected state after finish: %s %s", first.Status, first.Result)
	}

	second, transitioned, err := m.Finish(ctx, sess.ID, "black", "resignation")
	if err != nil {
		t.Fatalf("second Finish: %v", err)
	}
	if transitioned {
		t.Fatalf("second Finish must not transition")
	}
	if second.Result != "white" {
		t.Fatalf("result overwritten on repeat finish: %s", second.Result)
	}
}

func TestAppendChat(t *testing.T) {
	m := newTestManager(t)
	sess := startedSession(t, m)
	ctx := context.Background()

	next, entry, err := m.AppendChat(ctx, sess.ID, sess.White.ID, "good luck")
	if err != nil {
		t.Fatalf("AppendChat: %v", err)
	}
	if entry.Text != "good luck" || len(next.Chat) != 1 {
		t.Fatalf("chat not recorded: %+v", next.Chat)
	}
	if _, _, err := m.AppendChat(ctx, sess.ID, "mallory", "hi"); !errors.Is(err, ErrNotParticipant) {
		t.Fatalf("expected ErrNotParticipant, got %v", err)
	}
}

func TestChatAllowedAfterFinish(t *testing.T) {
	m := newTestManager(t)
	sess := startedSession(t, m)
	ctx := context.Background()

	if _, _, err := m.Finish(ctx, sess.ID, "white", "resignation"); err != nil {
		t.Fatalf("Finish: %v", err)
	}
	next, entry, err := m.AppendChat(ctx, sess.ID, sess.Black.ID, "good game")
	if err != nil {
		t.Fatalf("chat after finish must succeed: %v", err)
	}
	if entry.Text != "good game" || len(next.Chat) != 1 {
		t.Fatalf("chat not recorded on finished session: %+v", next.Chat)
	}
}

func TestCreateBotSessionStartsImmediately(t *testing.T) {
	m := newTestManager(t)
	sess, err := m.CreateBotSession(context.Background(), Participant{ID: "alice"}, 1400)
	if err != nil {
		t.Fatalf("CreateBotSession: %v", err)
	}
	if sess.Status != StatusInProgress {
		t.Fatalf("expected IN_PROGRESS, got %s", sess.Status)
	}
	if sess.Bot == nil || sess.Bot.Elo != 1400 {
		t.Fatalf("bot metadata missing: %+v", sess.Bot)
	}
	if sess.SideOf("alice") == "" || sess.SideOf(BotParticipantID) == "" {
		t.Fatalf("both human and bot must be seated")
	}
}
