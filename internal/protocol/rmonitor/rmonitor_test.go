package rmonitor

import (
	"errors"
	"testing"
)

func TestParse(t *testing.T) {
	t.Run("heartbeat", func(t *testing.T) {
		rec, err := Parse(`$F,14,"00:12:45","13:34:23","00:09:47","Green"`)
		if err != nil {
			t.Fatalf("parse: %v", err)
		}
		hb, ok := rec.(Heartbeat)
		if !ok {
			t.Fatalf("got %T, want Heartbeat", rec)
		}
		if hb.LapsToGo != 14 || hb.TimeToGo != "00:12:45" || hb.FlagStatus != "Green" {
			t.Errorf("heartbeat = %+v", hb)
		}
	})

	t.Run("competitor_a", func(t *testing.T) {
		rec, err := Parse(`$A,"1234BE","12",52474,"John","Johnson","USA",5`)
		if err != nil {
			t.Fatalf("parse: %v", err)
		}
		c := rec.(Competitor)
		if c.RegNumber != "1234BE" || c.Number != "12" || c.TransponderID != 52474 {
			t.Errorf("competitor = %+v", c)
		}
		if c.FirstName != "John" || c.LastName != "Johnson" || c.ClassNumber != 5 {
			t.Errorf("competitor = %+v", c)
		}
	})

	t.Run("competitor_comp", func(t *testing.T) {
		rec, err := Parse(`$COMP,"1234BE","12",5,"John","Johnson","USA"`)
		if err != nil {
			t.Fatalf("parse: %v", err)
		}
		c := rec.(Competitor)
		if c.ClassNumber != 5 || c.TransponderID != 0 {
			t.Errorf("competitor = %+v", c)
		}
	})

	t.Run("race_position", func(t *testing.T) {
		rec, err := Parse(`$G,3,"1234BE",14,"01:12:47.872"`)
		if err != nil {
			t.Fatalf("parse: %v", err)
		}
		g := rec.(RacePosition)
		if g.Position != 3 || g.RegNumber != "1234BE" || g.Laps != 14 {
			t.Errorf("race position = %+v", g)
		}
		if g.TotalTimeMs != 1*3600000+12*60000+47872 {
			t.Errorf("total = %d", g.TotalTimeMs)
		}
	})

	t.Run("practice_best", func(t *testing.T) {
		rec, err := Parse(`$H,2,"1234BE",3,"00:02:17.872"`)
		if err != nil {
			t.Fatalf("parse: %v", err)
		}
		h := rec.(PracticeBest)
		if h.Position != 2 || h.BestLap != 3 || h.BestTimeMs != 137872 {
			t.Errorf("practice best = %+v", h)
		}
	})

	t.Run("passing", func(t *testing.T) {
		rec, err := Parse(`$J,"1234BE","00:02:03.826","01:42:17.672"`)
		if err != nil {
			t.Fatalf("parse: %v", err)
		}
		j := rec.(Passing)
		if j.LapTimeMs != 123826 {
			t.Errorf("lap = %d", j.LapTimeMs)
		}
	})

	t.Run("init_resets", func(t *testing.T) {
		rec, err := Parse(`$I,"16:36:08.000","12 jan 01"`)
		if err != nil {
			t.Fatalf("parse: %v", err)
		}
		if _, ok := rec.(Init); !ok {
			t.Fatalf("got %T, want Init", rec)
		}
	})

	t.Run("unknown_command", func(t *testing.T) {
		_, err := Parse(`$Z,"whatever"`)
		if !errors.Is(err, ErrUnknownRecord) {
			t.Errorf("err = %v, want ErrUnknownRecord", err)
		}
	})

	t.Run("not_a_record", func(t *testing.T) {
		if _, err := Parse("garbage"); err == nil {
			t.Error("expected error for non-record line")
		}
	})

	t.Run("short_record", func(t *testing.T) {
		if _, err := Parse(`$F,14`); err == nil {
			t.Error("expected error for short $F")
		}
	})
}

func TestParseTimeMs(t *testing.T) {
	cases := []struct {
		in   string
		want int64
	}{
		{"00:02:03.826", 123826},
		{"2:03.826", 123826},
		{"3.826", 3826},
		{"00:00:00.000", 0},
		{"1:00:00.000", 3600000},
	}
	for _, tc := range cases {
		got, err := ParseTimeMs(tc.in)
		if err != nil {
			t.Errorf("ParseTimeMs(%q): %v", tc.in, err)
			continue
		}
		if got != tc.want {
			t.Errorf("ParseTimeMs(%q) = %d, want %d", tc.in, got, tc.want)
		}
	}

	if _, err := ParseTimeMs(""); err == nil {
		t.Error("expected error for empty time")
	}
	if _, err := ParseTimeMs("1:2:3:4"); err == nil {
		t.Error("expected error for too many components")
	}
}

func TestFormatTimeMs(t *testing.T) {
	cases := []struct {
		in   int64
		want string
	}{
		{3826, "3.826"},
		{123826, "2:03.826"},
		{-500, "0.500"},
	}
	for _, tc := range cases {
		if got := FormatTimeMs(tc.in); got != tc.want {
			t.Errorf("FormatTimeMs(%d) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
