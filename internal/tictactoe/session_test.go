package tictactoe_test

import (
	"math/rand"
	"testing"
	"time"

	"tictactoe-server/internal/tictactoe"
)

var now = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

func board(t *testing.T, s string) tictactoe.Board {
	t.Helper()
	b, err := tictactoe.ParseBoard(s)
	if err != nil {
		t.Fatalf("bad board %q: %v", s, err)
	}
	return b
}

func activeSession(t *testing.T, b string, turn tictactoe.Seat) tictactoe.Session {
	t.Helper()
	return tictactoe.Session{
		ID:     "s1",
		Board:  board(t, b),
		SeatA:  "alice",
		SeatB:  "bob",
		Turn:   turn,
		Status: tictactoe.StatusActive,
	}
}

func TestNewSession(t *testing.T) {
	s := tictactoe.NewSession("alice", now)

	if s.Status != tictactoe.StatusWaiting {
		t.Errorf("status = %s, want waiting", s.Status)
	}
	if s.Turn != tictactoe.SeatA {
		t.Errorf("turn = %s, want A", s.Turn)
	}
	if s.SeatB != "" {
		t.Errorf("seatB should be unset, got %q", s.SeatB)
	}
	if s.Board != (tictactoe.Board{}) {
		t.Error("board should start empty")
	}
	if err := s.Validate(); err != nil {
		t.Errorf("new session invalid: %v", err)
	}
}

func TestJoin(t *testing.T) {
	waiting := tictactoe.NewSession("alice", now)

	joined, err := tictactoe.Join(waiting, "bob", now.Add(time.Second))
	if err != nil {
		t.Fatalf("Join failed: %v", err)
	}
	if joined.SeatB != "bob" || joined.Status != tictactoe.StatusActive {
		t.Errorf("unexpected joined session: %+v", joined)
	}
	if joined.Turn != tictactoe.SeatA {
		t.Errorf("seat A should move first, turn = %s", joined.Turn)
	}
	if waiting.Status != tictactoe.StatusWaiting {
		t.Error("Join mutated its input")
	}

	tests := []struct {
		name        string
		session     tictactoe.Session
		participant string
		code        tictactoe.Code
	}{
		{"self join", waiting, "alice", tictactoe.CodeSelfJoin},
		{"already active", joined, "carol", tictactoe.CodeNotJoinable},
		{"empty participant", waiting, "  ", tictactoe.CodeInvalidParticipant},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tictactoe.Join(tt.session, tt.participant, now)
			if !tictactoe.IsRejected(err, tt.code) {
				t.Errorf("expected %s, got %v", tt.code, err)
			}
		})
	}
}

func TestApplyMove_CenterFlipsTurn(t *testing.T) {
	s := activeSession(t, "---------", tictactoe.SeatA)

	next, err := tictactoe.ApplyMove(s, "alice", 4, now)
	if err != nil {
		t.Fatalf("ApplyMove failed: %v", err)
	}
	if next.Board[4] != tictactoe.MarkA {
		t.Errorf("board[4] = %q, want X", next.Board[4])
	}
	if next.Turn != tictactoe.SeatB {
		t.Errorf("turn = %s, want B", next.Turn)
	}
	if next.Status != tictactoe.StatusActive {
		t.Errorf("status = %s, want active", next.Status)
	}
	if s.Board[4] != tictactoe.Empty {
		t.Error("ApplyMove mutated its input")
	}
}

func TestApplyMove_ChecksEveryLine(t *testing.T) {
	// Scenario 2 (board "XXX-O----", B plays 8) reads "remains active, turn
	// flips to A", but row 0 is already complete for A. Every move is checked
	// against all 8 lines, so the session finishes with winner A.
	s := activeSession(t, "XXX-O----", tictactoe.SeatB)

	next, err := tictactoe.ApplyMove(s, "bob", 8, now)
	if err != nil {
		t.Fatalf("ApplyMove failed: %v", err)
	}
	if next.Status != tictactoe.StatusFinished || next.Winner != tictactoe.WinnerA {
		t.Errorf("expected finished with winner A, got %s/%q", next.Status, next.Winner)
	}
}

func TestApplyMove_NoLineKeepsPlaying(t *testing.T) {
	s := activeSession(t, "XX--O----", tictactoe.SeatB)

	next, err := tictactoe.ApplyMove(s, "bob", 8, now)
	if err != nil {
		t.Fatalf("ApplyMove failed: %v", err)
	}
	if next.Status != tictactoe.StatusActive {
		t.Errorf("status = %s, want active", next.Status)
	}
	if next.Turn != tictactoe.SeatA {
		t.Errorf("turn = %s, want A", next.Turn)
	}
}

func TestApplyMove_RowWin(t *testing.T) {
	s := activeSession(t, "XX-OO----", tictactoe.SeatA)

	next, err := tictactoe.ApplyMove(s, "alice", 2, now)
	if err != nil {
		t.Fatalf("ApplyMove failed: %v", err)
	}
	if next.Status != tictactoe.StatusFinished {
		t.Errorf("status = %s, want finished", next.Status)
	}
	if next.Winner != tictactoe.WinnerA {
		t.Errorf("winner = %q, want A", next.Winner)
	}
	if next.Turn != tictactoe.SeatA {
		t.Errorf("turn should not flip on the final move, got %s", next.Turn)
	}
}

func TestApplyMove_Draw(t *testing.T) {
	// X O X
	// X O O
	// O X _   -> A plays 8: X O X / X O O / O X X, no line
	s := activeSession(t, "XOXXOOOX-", tictactoe.SeatA)

	next, err := tictactoe.ApplyMove(s, "alice", 8, now)
	if err != nil {
		t.Fatalf("ApplyMove failed: %v", err)
	}
	if next.Status != tictactoe.StatusFinished || next.Winner != tictactoe.WinnerDraw {
		t.Errorf("expected draw, got %s/%q", next.Status, next.Winner)
	}
}

func TestApplyMove_EveryLineWins(t *testing.T) {
	for i := 0; i < 8; i++ {
		line := tictactoe.Line(i)
		for _, seat := range []tictactoe.Seat{tictactoe.SeatA, tictactoe.SeatB} {
			var b tictactoe.Board
			b[line[0]] = seat.Mark()
			b[line[1]] = seat.Mark()

			s := tictactoe.Session{
				ID: "s", SeatA: "alice", SeatB: "bob",
				Board: b, Turn: seat, Status: tictactoe.StatusActive,
			}
			participant := "alice"
			if seat == tictactoe.SeatB {
				participant = "bob"
			}

			next, err := tictactoe.ApplyMove(s, participant, line[2], now)
			if err != nil {
				t.Fatalf("line %d seat %s: %v", i, seat, err)
			}
			if next.Status != tictactoe.StatusFinished || string(next.Winner) != string(seat) {
				t.Errorf("line %d seat %s: got %s/%q", i, seat, next.Status, next.Winner)
			}
		}
	}
}

func TestApplyMove_Rejections(t *testing.T) {
	waiting := tictactoe.NewSession("alice", now)
	active := activeSession(t, "X--------", tictactoe.SeatB)
	finished := activeSession(t, "XXXOO----", tictactoe.SeatA)
	finished.Status = tictactoe.StatusFinished
	finished.Winner = tictactoe.WinnerA

	tests := []struct {
		name        string
		session     tictactoe.Session
		participant string
		cell        int
		code        tictactoe.Code
	}{
		{"waiting", waiting, "alice", 0, tictactoe.CodeNotPlayable},
		{"finished", finished, "bob", 8, tictactoe.CodeNotPlayable},
		{"occupied by own mark", active, "bob", 0, tictactoe.CodeOccupied},
		{"occupied by other participant", active, "alice", 0, tictactoe.CodeOccupied},
		{"not your turn", active, "alice", 4, tictactoe.CodeNotYourTurn},
		{"observer", active, "carol", 4, tictactoe.CodeNotParticipant},
		{"observer on occupied", active, "carol", 0, tictactoe.CodeOccupied},
		{"negative cell", active, "bob", -1, tictactoe.CodeInvalidCell},
		{"cell too large", active, "bob", 9, tictactoe.CodeInvalidCell},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			next, err := tictactoe.ApplyMove(tt.session, tt.participant, tt.cell, now)
			if !tictactoe.IsRejected(err, tt.code) {
				t.Fatalf("expected %s, got %v", tt.code, err)
			}
			if next.Board != tt.session.Board {
				t.Error("rejected move changed the board")
			}
		})
	}
}

// Plays random games to completion and checks the properties that must hold
// after every accepted move.
func TestApplyMove_RandomPlayouts(t *testing.T) {
	rng := rand.New(rand.NewSource(7))

	for game := 0; game < 500; game++ {
		s := activeSession(t, "---------", tictactoe.SeatA)
		filled := map[int]tictactoe.Mark{}

		for s.Status == tictactoe.StatusActive {
			before := s
			cell := rng.Intn(tictactoe.CellCount)
			player := s.SeatA
			if s.Turn == tictactoe.SeatB {
				player = s.SeatB
			}

			next, err := tictactoe.ApplyMove(s, player, cell, now)
			if before.Board[cell] != tictactoe.Empty {
				if !tictactoe.IsRejected(err, tictactoe.CodeOccupied) {
					t.Fatalf("game %d: move onto filled cell %d not rejected: %v", game, cell, err)
				}
				if _, err := tictactoe.ApplyMove(s, "carol", cell, now); !tictactoe.IsRejected(err, tictactoe.CodeOccupied) {
					t.Fatalf("game %d: observer move onto filled cell %d: %v", game, cell, err)
				}
				continue
			}
			if err != nil {
				t.Fatalf("game %d: unexpected rejection: %v", game, err)
			}

			for c, m := range filled {
				if next.Board[c] != m {
					t.Fatalf("game %d: cell %d changed from %q to %q", game, c, m, next.Board[c])
				}
			}
			filled[cell] = next.Board[cell]

			if next.Status == tictactoe.StatusActive && next.Turn == before.Turn {
				t.Fatalf("game %d: turn did not alternate", game)
			}
			if !before.Status.CanAdvanceTo(next.Status) {
				t.Fatalf("game %d: status went backward %s -> %s", game, before.Status, next.Status)
			}
			if err := next.Validate(); err != nil {
				t.Fatalf("game %d: invariant broken: %v", game, err)
			}
			s = next
		}

		for cell := 0; cell < tictactoe.CellCount; cell++ {
			for _, p := range []string{"alice", "bob"} {
				if _, err := tictactoe.ApplyMove(s, p, cell, now); !tictactoe.IsRejected(err, tictactoe.CodeNotPlayable) {
					t.Fatalf("game %d: move accepted after finish: %v", game, err)
				}
			}
		}
	}
}

func TestSession_Validate(t *testing.T) {
	good := activeSession(t, "X--------", tictactoe.SeatB)
	if err := good.Validate(); err != nil {
		t.Fatalf("valid session rejected: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*tictactoe.Session)
	}{
		{"winner while active", func(s *tictactoe.Session) { s.Winner = tictactoe.WinnerA }},
		{"finished without winner", func(s *tictactoe.Session) { s.Status = tictactoe.StatusFinished }},
		{"waiting with seatB", func(s *tictactoe.Session) { s.Status = tictactoe.StatusWaiting }},
		{"same participant twice", func(s *tictactoe.Session) { s.SeatB = s.SeatA }},
		{"wrong turn for board", func(s *tictactoe.Session) { s.Turn = tictactoe.SeatA }},
		{"unknown status", func(s *tictactoe.Session) { s.Status = "paused" }},
		{"too many O", func(s *tictactoe.Session) { s.Board[1], s.Board[2] = tictactoe.MarkB, tictactoe.MarkB }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := good
			tt.mutate(&s)
			if err := s.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestSession_State(t *testing.T) {
	waiting := tictactoe.NewSession("alice", now)
	if _, ok := waiting.State().(tictactoe.Waiting); !ok {
		t.Errorf("waiting session gave %T", waiting.State())
	}

	active := activeSession(t, "X--------", tictactoe.SeatB)
	a, ok := active.State().(tictactoe.Active)
	if !ok {
		t.Fatalf("active session gave %T", active.State())
	}
	if a.Turn != tictactoe.SeatB {
		t.Errorf("active view turn = %s", a.Turn)
	}

	won, err := tictactoe.ApplyMove(activeSession(t, "OO-XX----", tictactoe.SeatB), "bob", 2, now)
	if err != nil {
		t.Fatalf("ApplyMove failed: %v", err)
	}
	f, ok := won.State().(tictactoe.Finished)
	if !ok {
		t.Fatalf("finished session gave %T", won.State())
	}
	if f.WinnerID() != "bob" {
		t.Errorf("WinnerID = %q, want bob", f.WinnerID())
	}
}
