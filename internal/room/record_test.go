package room

import (
	"sort"
	"testing"
)

func TestRecordRoundTrip(t *testing.T) {
	r := New("lobby")
	r.AddPlayer("c1", 7, "alice")
	r.AddPlayer("c2", 0, "")
	r.CheckStartConditions("c2")
	r.Score = Score{Red: 1, Blue: 2}
	r.MatchTime = 42
	r.WaitingForRestart = true
	r.PlayersReady["c2"] = struct{}{}
	r.PlayersReady["c1"] = struct{}{}

	rec := r.ToRecord()
	if !sort.StringsAreSorted(rec.PlayersReady) {
		t.Fatalf("ready set not sorted: %v", rec.PlayersReady)
	}

	got := FromRecord(rec)
	if got.Score != r.Score || got.MatchTime != r.MatchTime {
		t.Fatalf("score/time lost: %+v %d", got.Score, got.MatchTime)
	}
	if !got.IsPlaying || !got.WaitingForRestart {
		t.Fatalf("flags lost: playing=%v waiting=%v", got.IsPlaying, got.WaitingForRestart)
	}
	if len(got.PlayersReady) != 2 {
		t.Fatalf("ready set lost: %v", got.PlayersReady)
	}
	if got.Players["c1"].Username != "alice" {
		t.Fatal("player identity lost")
	}
	if len(got.Teams.Red) != 1 || len(got.Teams.Blue) != 1 {
		t.Fatalf("teams lost: %+v", got.Teams)
	}
}

func TestRecordIsolatedFromRoom(t *testing.T) {
	r := New("lobby")
	r.AddPlayer("c1", 0, "")

	rec := r.ToRecord()
	rec.Players["c1"].X = 999
	if r.Players["c1"].X == 999 {
		t.Fatal("record shares player structs with the room")
	}
}

func TestFromRecordDefaults(t *testing.T) {
	// A minimal record from an older writer still yields a playable room.
	got := FromRecord(Record{ID: "old"})
	if got.Width != FieldWidth || got.Height != FieldHeight {
		t.Fatalf("field size = %v x %v", got.Width, got.Height)
	}
	if got.GoalCooldown != GoalCooldownMS {
		t.Fatalf("cooldown = %d", got.GoalCooldown)
	}
	if got.Players == nil || got.PlayersReady == nil {
		t.Fatal("nil maps on adopted room")
	}
}
