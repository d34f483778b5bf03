package multiloop

import (
	"errors"
	"strings"
	"testing"
)

func rec(parts ...string) string {
	return strings.Join(parts, Delimiter)
}

func TestParse(t *testing.T) {
	t.Run("heartbeat", func(t *testing.T) {
		r, err := Parse(rec("$H", "N", "A1", "P", "14", "BB8", "2DC6C0", "0", "Green"))
		if err != nil {
			t.Fatalf("parse: %v", err)
		}
		hb := r.(Heartbeat)
		if hb.Hdr.Sequence != 0xA1 || hb.Hdr.RecordType != "N" {
			t.Errorf("header = %+v", hb.Hdr)
		}
		if hb.LapsToGo != 0x14 || hb.TimeToGoMs != 0xBB8 || hb.RaceTimeMs != 0x2DC6C0 {
			t.Errorf("heartbeat = %+v", hb)
		}
		if hb.FlagStatus != "Green" {
			t.Errorf("flag = %q", hb.FlagStatus)
		}
	})

	t.Run("entry", func(t *testing.T) {
		r, err := Parse(rec("$E", "N", "1", "P", "12", "J. Johnson", "5", "3", "CCFA"))
		if err != nil {
			t.Fatalf("parse: %v", err)
		}
		e := r.(Entry)
		if e.Number != "12" || e.DriverName != "J. Johnson" {
			t.Errorf("entry = %+v", e)
		}
		if e.ClassID != 5 || e.StartPosition != 3 || e.TransponderID != 0xCCFA {
			t.Errorf("entry = %+v", e)
		}
	})

	t.Run("completed_lap", func(t *testing.T) {
		r, err := Parse(rec("$C", "N", "2", "P", "12", "E", "1E3D8", "B71B0", "3", "0"))
		if err != nil {
			t.Fatalf("parse: %v", err)
		}
		c := r.(CompletedLap)
		if c.Number != "12" || c.LapNumber != 0xE || c.LapTimeMs != 0x1E3D8 || c.Position != 3 {
			t.Errorf("completed lap = %+v", c)
		}
	})

	t.Run("flag_information", func(t *testing.T) {
		r, err := Parse(rec("$F", "U", "3", "P", "Yellow", "2DC6C0", "493E0", "0", "2", "104.two", "4"))
		if err != nil {
			t.Fatalf("parse: %v", err)
		}
		f := r.(FlagInformation)
		if f.TrackStatus != "Yellow" || f.GreenMs != 0x2DC6C0 || f.NumberOfYellows != 2 || f.LeadChanges != 4 {
			t.Errorf("flag info = %+v", f)
		}
		if f.AverageRaceSpeed != 0 {
			t.Errorf("unparseable speed should read 0, got %f", f.AverageRaceSpeed)
		}
	})

	t.Run("announcement", func(t *testing.T) {
		r, err := Parse(rec("$A", "N", "4", "P", "A", "U", "1", "Car 12 under investigation"))
		if err != nil {
			t.Fatalf("parse: %v", err)
		}
		a := r.(Announcement)
		if a.Sequence != 0xA || a.Action != "U" || a.Text != "Car 12 under investigation" {
			t.Errorf("announcement = %+v", a)
		}
	})

	t.Run("track_information_sections", func(t *testing.T) {
		r, err := Parse(rec("$T", "N", "5", "P", "Track", "Venue", "2", "S1", "3E8", "S2", "7D0"))
		if err != nil {
			t.Fatalf("parse: %v", err)
		}
		ti := r.(TrackInformation)
		if len(ti.Sections) != 2 || ti.Sections[1].Name != "S2" || ti.Sections[1].LengthInches != 0x7D0 {
			t.Errorf("track info = %+v", ti)
		}
	})

	t.Run("unknown_code", func(t *testing.T) {
		_, err := Parse(rec("$X", "N", "6", "P", "a"))
		if !errors.Is(err, ErrUnknownRecord) {
			t.Errorf("err = %v, want ErrUnknownRecord", err)
		}
	})

	t.Run("malformed", func(t *testing.T) {
		if _, err := Parse("no delimiters here"); err == nil {
			t.Error("expected error for malformed record")
		}
		if _, err := Parse(rec("$H", "N", "ZZZ not hex", "P", "1", "2", "3", "4", "Green")); err == nil {
			t.Error("expected error for bad sequence")
		}
	})
}

func TestTracker(t *testing.T) {
	t.Run("lap_clears_sections", func(t *testing.T) {
		tr := NewTracker()
		tr.Observe(CompletedSection{Number: "12", Section: "S1"})
		tr.Observe(CompletedSection{Number: "12", Section: "S2"})

		upd := tr.Observe(CompletedLap{Number: "12", LapNumber: 5, LapTimeMs: 91000, Position: 2})
		if upd == nil {
			t.Fatal("expected update for new lap")
		}
		if upd.LapNumber != 5 || len(upd.Sections) != 2 {
			t.Errorf("update = %+v", upd)
		}
		if got := tr.Sections("12"); len(got) != 0 {
			t.Errorf("sections after lap = %v, want empty", got)
		}
	})

	t.Run("repeated_lap_ignored", func(t *testing.T) {
		tr := NewTracker()
		if upd := tr.Observe(CompletedLap{Number: "12", LapNumber: 5}); upd == nil {
			t.Fatal("first lap should produce an update")
		}
		if upd := tr.Observe(CompletedLap{Number: "12", LapNumber: 5}); upd != nil {
			t.Error("repeated lap should be ignored")
		}
		if upd := tr.Observe(CompletedLap{Number: "12", LapNumber: 4}); upd != nil {
			t.Error("stale lap should be ignored")
		}
	})

	t.Run("repeated_section_ignored", func(t *testing.T) {
		tr := NewTracker()
		tr.Observe(CompletedSection{Number: "12", Section: "S1"})
		tr.Observe(CompletedSection{Number: "12", Section: "S1"})
		if got := tr.Sections("12"); len(got) != 1 {
			t.Errorf("sections = %v, want [S1]", got)
		}
	})

	t.Run("reset", func(t *testing.T) {
		tr := NewTracker()
		tr.Observe(CompletedLap{Number: "12", LapNumber: 5})
		tr.Reset()
		if _, ok := tr.LatestLap("12"); ok {
			t.Error("reset should forget laps")
		}
		if upd := tr.Observe(CompletedLap{Number: "12", LapNumber: 5}); upd == nil {
			t.Error("lap after reset should produce an update")
		}
	})
}

func TestTrackerClone(t *testing.T) {
	tr := NewTracker()
	tr.Observe(CompletedLap{Number: "12", LapNumber: 3})
	tr.Observe(CompletedSection{Number: "12", Section: "S1"})

	cp := tr.Clone()
	cp.Observe(CompletedSection{Number: "12", Section: "S2"})
	if upd := cp.Observe(CompletedLap{Number: "12", LapNumber: 4}); upd == nil {
		t.Fatal("clone should accept the next lap")
	}

	if lap, _ := tr.LatestLap("12"); lap.LapNumber != 3 {
		t.Errorf("original lap watermark = %d, want 3", lap.LapNumber)
	}
	if got := tr.Sections("12"); len(got) != 1 || got[0] != "S1" {
		t.Errorf("original sections = %v, want [S1]", got)
	}
	if lap, _ := cp.LatestLap("12"); lap.LapNumber != 4 {
		t.Errorf("clone lap watermark = %d, want 4", lap.LapNumber)
	}

	// The rolled-back original still accepts the lap the clone consumed.
	if upd := tr.Observe(CompletedLap{Number: "12", LapNumber: 4}); upd == nil {
		t.Error("original should still accept lap 4")
	}
}
