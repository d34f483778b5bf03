package state

import (
	"testing"
	"time"
)

func TestToPayloadOrdering(t *testing.T) {
	s := NewSessionState(7, 3)
	s.Car("22").OverallPosition = 2
	s.Car("5").OverallPosition = 1
	s.Car("99").OverallPosition = 0
	s.Car("10").OverallPosition = 0

	p := ToPayload(s)
	if len(p.CarPositions) != 4 {
		t.Fatalf("payload has %d cars, want 4", len(p.CarPositions))
	}
	want := []string{"5", "22", "10", "99"}
	for i, n := range want {
		if p.CarPositions[i].Number != n {
			t.Errorf("car[%d] = %s, want %s", i, p.CarPositions[i].Number, n)
		}
	}
}

func TestEncodeDecodePayloadRoundTrip(t *testing.T) {
	s := NewSessionState(7, 3)
	s.SessionName = "Race 1"
	s.CurrentFlag = FlagGreen
	s.LapsToGo = 40
	s.LastUpdated = time.Now().UTC().Truncate(time.Millisecond)
	car := s.Car("5")
	car.DriverName = "A. Driver"
	car.OverallPosition = 1
	car.BestTimeMs = 90123

	encoded, err := EncodePayload(ToPayload(s))
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	got, err := DecodePayload(encoded)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.EventID != 7 || got.SessionID != 3 || got.SessionName != "Race 1" {
		t.Errorf("session identity mismatch: %+v", got)
	}
	if got.CurrentFlag != FlagGreen || got.LapsToGo != 40 {
		t.Errorf("flag/laps mismatch: flag=%s lapsToGo=%d", got.CurrentFlag, got.LapsToGo)
	}
	if len(got.CarPositions) != 1 {
		t.Fatalf("payload has %d cars, want 1", len(got.CarPositions))
	}
	if c := got.CarPositions[0]; c.Number != "5" || c.DriverName != "A. Driver" || c.BestTimeMs != 90123 {
		t.Errorf("car mismatch: %+v", c)
	}
	if !got.LastUpdated.Equal(s.LastUpdated) {
		t.Errorf("lastUpdated = %v, want %v", got.LastUpdated, s.LastUpdated)
	}
}

func TestDecodePayloadRejectsGarbage(t *testing.T) {
	if _, err := DecodePayload("not base64!!"); err == nil {
		t.Error("expected error for invalid base64")
	}
	if _, err := DecodePayload("aGVsbG8="); err == nil {
		t.Error("expected error for non-gzip content")
	}
}

func TestStoreSnapshotIsolation(t *testing.T) {
	st := NewStore(NewSessionState(1, 1))
	st.Update(func(s *SessionState) {
		s.Car("5").OverallPosition = 1
	})

	snap := st.Snapshot()
	snap.Car("5").OverallPosition = 9

	st.Read(func(s *SessionState) {
		if s.Cars["5"].OverallPosition != 1 {
			t.Error("snapshot mutation leaked into store")
		}
	})

	next := snap.Clone()
	next.Car("5").OverallPosition = 2
	st.Replace(next)
	if st.Snapshot().Cars["5"].OverallPosition != 2 {
		t.Error("replace did not install the new state")
	}
}
