package state

import (
	"testing"
	"time"
)

func TestDiffCarRoundTrip(t *testing.T) {
	prev := &CarPosition{Number: "5", EventID: 1, SessionID: 2, OverallPosition: 3, BestTimeMs: 91000}
	next := prev.Clone()
	next.OverallPosition = 1
	next.LastLapTimeMs = 90500
	next.BestTimeMs = 90500
	next.IsBestTime = true
	next.InPit = true
	next.EnteredPit = true
	next.CompletedSections = []string{"S1", "S2"}

	patch := DiffCar(prev, next)
	if patch == nil {
		t.Fatal("expected a patch for changed car")
	}
	if patch.Number != "5" || patch.SessionID != 2 {
		t.Errorf("patch identity = (%s, %d), want (5, 2)", patch.Number, patch.SessionID)
	}
	if patch.TransponderID != nil {
		t.Error("unchanged field should be nil in patch")
	}

	applied := NewSessionState(1, 2)
	applied.Cars["5"] = prev.Clone()
	ApplyCarPatch(applied, patch)

	got := applied.Cars["5"]
	if got.OverallPosition != 1 || got.LastLapTimeMs != 90500 || !got.IsBestTime || !got.EnteredPit {
		t.Errorf("apply(diff(prev, next)) did not reproduce next: %+v", got)
	}
	if len(got.CompletedSections) != 2 {
		t.Errorf("completed sections = %v, want [S1 S2]", got.CompletedSections)
	}
}

func TestDiffCarNoChange(t *testing.T) {
	car := &CarPosition{Number: "7", OverallPosition: 2, BestTimeMs: 88000}
	if patch := DiffCar(car, car.Clone()); patch != nil {
		t.Errorf("identical cars produced patch %+v", patch)
	}
}

func TestDiffSessionRoundTrip(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Millisecond)
	prev := NewSessionState(1, 2)
	next := prev.Clone()
	next.CurrentFlag = FlagYellow
	next.NumberOfYellows = 1
	next.LapsToGo = 12
	next.FlagDurations = []FlagDuration{{Flag: FlagYellow, StartTime: now}}
	next.LastUpdated = now

	patch := DiffSession(prev, next)
	if patch == nil {
		t.Fatal("expected a session patch")
	}
	if patch.GreenMs != nil {
		t.Error("unchanged aggregate should be nil in patch")
	}

	applied := prev.Clone()
	ApplySessionPatch(applied, patch)
	if applied.CurrentFlag != FlagYellow || applied.NumberOfYellows != 1 || applied.LapsToGo != 12 {
		t.Errorf("apply(diff) mismatch: %+v", applied)
	}
	if len(applied.FlagDurations) != 1 {
		t.Errorf("flag durations = %v, want 1 entry", applied.FlagDurations)
	}

	if DiffSession(next, next.Clone()) != nil {
		t.Error("identical sessions produced a patch")
	}
}

func TestDiffSessionAnnouncements(t *testing.T) {
	base := NewSessionState(1, 2)
	base.Announcements = []Announcement{{Sequence: 1, Text: "a1"}}

	t.Run("added_announcement_round_trips", func(t *testing.T) {
		next := base.Clone()
		next.Announcements = append(next.Announcements, Announcement{Sequence: 2, Text: "a2"})

		patch := DiffSession(base, next)
		if patch == nil || patch.Announcements == nil {
			t.Fatal("expected an announcements patch")
		}
		applied := base.Clone()
		ApplySessionPatch(applied, patch)
		if len(applied.Announcements) != 2 {
			t.Fatalf("applied has %d announcements, want 2: %+v", len(applied.Announcements), applied.Announcements)
		}
		if applied.Announcements[0].Text != "a1" || applied.Announcements[1].Text != "a2" {
			t.Errorf("announcements = %+v", applied.Announcements)
		}
	})

	t.Run("updated_text_round_trips", func(t *testing.T) {
		next := base.Clone()
		next.Announcements[0].Text = "a1 corrected"

		patch := DiffSession(base, next)
		if patch == nil || patch.Announcements == nil {
			t.Fatal("expected a patch for an in-place text update")
		}
		applied := base.Clone()
		ApplySessionPatch(applied, patch)
		if len(applied.Announcements) != 1 || applied.Announcements[0].Text != "a1 corrected" {
			t.Errorf("announcements = %+v", applied.Announcements)
		}
	})

	t.Run("deleted_announcement_round_trips", func(t *testing.T) {
		prev := base.Clone()
		prev.Announcements = append(prev.Announcements, Announcement{Sequence: 2, Text: "a2"})
		next := prev.Clone()
		next.Announcements = next.Announcements[:1]

		patch := DiffSession(prev, next)
		if patch == nil || patch.Announcements == nil {
			t.Fatal("expected a patch for a deleted announcement")
		}
		applied := prev.Clone()
		ApplySessionPatch(applied, patch)
		if len(applied.Announcements) != 1 || applied.Announcements[0].Sequence != 1 {
			t.Errorf("announcements = %+v, want only sequence 1", applied.Announcements)
		}
	})
}

func TestDiffSessionClearedHistories(t *testing.T) {
	prev := NewSessionState(1, 2)
	prev.FlagDurations = []FlagDuration{{Flag: FlagGreen, StartTime: time.Now()}}
	prev.Announcements = []Announcement{{Sequence: 1, Text: "a1"}}
	next := prev.Clone()
	next.FlagDurations = nil
	next.Announcements = nil

	// Nil slice fields mean unchanged, so histories cleared all the way
	// to empty carry no patch field; appliers keep the old lists until
	// the next full refresh.
	patch := DiffSession(prev, next)
	if patch == nil {
		t.Fatal("expected a session patch")
	}
	if patch.FlagDurations != nil || patch.Announcements != nil {
		t.Errorf("cleared histories produced patch fields: %+v", patch)
	}

	applied := prev.Clone()
	ApplySessionPatch(applied, patch)
	if len(applied.FlagDurations) != 1 || len(applied.Announcements) != 1 {
		t.Errorf("applier lost history: %+v", applied)
	}
}

func TestConsolidate(t *testing.T) {
	t.Run("merges_same_car_preferring_later", func(t *testing.T) {
		patches := []*CarPositionPatch{
			{Number: "5", SessionID: 1, OverallPosition: iptr(3), LastLapTimeMs: i64ptr(91000)},
			{Number: "9", SessionID: 1, OverallPosition: iptr(1)},
			{Number: "5", SessionID: 1, OverallPosition: iptr(2), InPit: bptr(true)},
		}
		out := Consolidate(patches)
		if len(out) != 2 {
			t.Fatalf("consolidated to %d patches, want 2", len(out))
		}
		// First appearance order is preserved.
		if out[0].Number != "5" || out[1].Number != "9" {
			t.Errorf("order = [%s %s], want [5 9]", out[0].Number, out[1].Number)
		}
		merged := out[0]
		if merged.OverallPosition == nil || *merged.OverallPosition != 2 {
			t.Error("later position should win")
		}
		if merged.LastLapTimeMs == nil || *merged.LastLapTimeMs != 91000 {
			t.Error("earlier lap time should survive the merge")
		}
		if merged.InPit == nil || !*merged.InPit {
			t.Error("later pit flag should survive the merge")
		}
	})

	t.Run("drops_empty_patches", func(t *testing.T) {
		out := Consolidate([]*CarPositionPatch{{Number: "5", SessionID: 1}})
		if len(out) != 0 {
			t.Errorf("empty patch survived consolidation: %+v", out)
		}
	})

	t.Run("distinct_sessions_not_merged", func(t *testing.T) {
		out := Consolidate([]*CarPositionPatch{
			{Number: "5", SessionID: 1, OverallPosition: iptr(1)},
			{Number: "5", SessionID: 2, OverallPosition: iptr(4)},
		})
		if len(out) != 2 {
			t.Errorf("patches for different sessions merged: %+v", out)
		}
	})
}

func TestCheckPositionConsistency(t *testing.T) {
	cases := []struct {
		name      string
		positions []int
		want      bool
	}{
		{"contiguous", []int{1, 2, 3}, true},
		{"zeros_allowed", []int{1, 2, 0, 0}, true},
		{"all_zero", []int{0, 0}, true},
		{"gap", []int{1, 3}, false},
		{"duplicate", []int{1, 1, 2}, false},
		{"negative", []int{-2, 1}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := NewSessionState(1, 1)
			for i, p := range tc.positions {
				car := s.Car(string(rune('A' + i)))
				car.OverallPosition = p
			}
			if got := CheckPositionConsistency(s); got != tc.want {
				t.Errorf("CheckPositionConsistency(%v) = %v, want %v", tc.positions, got, tc.want)
			}
		})
	}
}

func TestCloneIndependence(t *testing.T) {
	s := NewSessionState(1, 1)
	s.Car("5").OverallPosition = 1
	s.FlagDurations = []FlagDuration{{Flag: FlagGreen, StartTime: time.Now()}}

	c := s.Clone()
	c.Car("5").OverallPosition = 9
	c.FlagDurations[0].Flag = FlagRed

	if s.Cars["5"].OverallPosition != 1 {
		t.Error("clone shares car records with original")
	}
	if s.FlagDurations[0].Flag != FlagGreen {
		t.Error("clone shares flag durations with original")
	}
}
