package rules

import (
	"errors"
	"testing"
)

func TestApplyOpeningMove(t *testing.T) {
	applied, err := Apply(nil, MoveInput{From: "e2", To: "e4"})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if applied.UCI != "e2e4" || applied.SAN != "e4" {
		t.Fatalf("unexpected notation: uci=%q san=%q", applied.UCI, applied.SAN)
	}
	if applied.Turn != "black" {
		t.Fatalf("expected black to move, got %q", applied.Turn)
	}
	if applied.Terminal {
		t.Fatalf("opening move cannot be terminal")
	}
}

func TestApplyRejectsIllegalMove(t *testing.T) {
	_, err := Apply(nil, MoveInput{From: "e2", To: "e5"})
	if !errors.Is(err, ErrIllegalMove) {
		t.Fatalf("expected ErrIllegalMove, got %v", err)
	}
	// Wrong side piece from the start position.
	_, err = Apply(nil, MoveInput{From: "e7", To: "e5"})
	if !errors.Is(err, ErrIllegalMove) {
		t.Fatalf("expected ErrIllegalMove for opponent piece, got %v", err)
	}
}

func TestApplyRefusedMoveLeavesNoTrace(t *testing.T) {
	history := []string{"e2e4", "e7e5"}
	if _, err := Apply(history, MoveInput{From: "a1", To: "a5"}); err == nil {
		t.Fatalf("expected rejection")
	}
	fen, turn, err := Replay(history)
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}
	if turn != "white" {
		t.Fatalf("turn changed after refused move: %q", turn)
	}
	if fen == "" {
		t.Fatalf("empty fen")
	}
}

func TestApplyReportsCapture(t *testing.T) {
	history := []string{"e2e4", "d7d5"}
	applied, err := Apply(history, MoveInput{From: "e4", To: "d5"})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if applied.Captured != "pawn" {
		t.Fatalf("expected pawn capture, got %q", applied.Captured)
	}
}

func TestApplyEnPassantCapture(t *testing.T) {
	history := []string{"e2e4", "a7a6", "e4e5", "d7d5"}
	applied, err := Apply(history, MoveInput{From: "e5", To: "d6"})
	if err != nil {
		t.Fatalf("Apply en passant: %v", err)
	}
	if applied.Captured != "pawn" {
		t.Fatalf("expected en passant pawn capture, got %q", applied.Captured)
	}
}

func TestApplyDetectsCheckmate(t *testing.T) {
	// Fool's mate.
	history := []string{"f2f3", "e7e5", "g2g4"}
	applied, err := Apply(history, MoveInput{From: "d8", To: "h4"})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if !applied.Terminal {
		t.Fatalf("expected terminal position")
	}
	if applied.Result != "black" || applied.Method != "checkmate" {
		t.Fatalf("expected black checkmate, got result=%q method=%q", applied.Result, applied.Method)
	}
}

func TestApplyAfterTerminalRejected(t *testing.T) {
	history := []string{"f2f3", "e7e5", "g2g4", "d8h4"}
	_, err := Apply(history, MoveInput{From: "a2", To: "a3"})
	if !errors.Is(err, ErrIllegalMove) {
		t.Fatalf("expected ErrIllegalMove on finished game, got %v", err)
	}
}

func TestReconstructRejectsBadHistory(t *testing.T) {
	_, err := Reconstruct([]string{"e2e4", "e2e4"})
	if !errors.Is(err, ErrBadHistory) {
		t.Fatalf("expected ErrBadHistory, got %v", err)
	}
}

func TestLegalMoveCount(t *testing.T) {
	n, err := LegalMoveCount(nil)
	if err != nil {
		t.Fatalf("LegalMoveCount: %v", err)
	}
	if n != 20 {
		t.Fatalf("expected 20 opening moves, got %d", n)
	}
	n, err = LegalMoveCount([]string{"f2f3", "e7e5", "g2g4", "d8h4"})
	if err != nil {
		t.Fatalf("LegalMoveCount terminal: %v", err)
	}
	if n != 0 {
		t.Fatalf("expected 0 moves after mate, got %d", n)
	}
}
