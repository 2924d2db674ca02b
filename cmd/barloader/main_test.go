package main

import (
	"testing"
	"time"

	"github.com/rickgao/plantclient/internal/model"
)

func TestWindows(t *testing.T) {
	start := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name  string
		end   time.Time
		chunk time.Duration
		want  int
		last  time.Time
	}{
		{"exact", start.Add(48 * time.Hour), 24 * time.Hour, 2, start.Add(48 * time.Hour)},
		{"partial tail", start.Add(30 * time.Hour), 24 * time.Hour, 2, start.Add(30 * time.Hour)},
		{"shorter than chunk", start.Add(time.Hour), 24 * time.Hour, 1, start.Add(time.Hour)},
		{"empty", start, time.Hour, 0, time.Time{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := windows(start, tt.end, tt.chunk)
			if len(got) != tt.want {
				t.Fatalf("len = %d, want %d", len(got), tt.want)
			}
			if tt.want == 0 {
				return
			}
			if !got[0].start.Equal(start) {
				t.Errorf("first start = %v", got[0].start)
			}
			if !got[len(got)-1].end.Equal(tt.last) {
				t.Errorf("last end = %v, want %v", got[len(got)-1].end, tt.last)
			}
			for i := 1; i < len(got); i++ {
				if !got[i].start.Equal(got[i-1].end) {
					t.Errorf("window %d starts at %v, previous ended %v", i, got[i].start, got[i-1].end)
				}
			}
		})
	}
}

func TestParseFlags(t *testing.T) {
	o, err := parseFlags([]string{
		"-symbol", "ESZ6",
		"-start", "2026-10-01T00:00:00Z",
		"-end", "2026-10-02T00:00:00Z",
		"-type", "second",
		"-period", "30",
	})
	if err != nil {
		t.Fatalf("parseFlags() error = %v", err)
	}
	if o.symbol != "ESZ6" || o.exchange != "CME" {
		t.Errorf("symbol/exchange = %s/%s", o.symbol, o.exchange)
	}
	if o.barType != model.SecondBar || o.period != 30 {
		t.Errorf("bar = %v/%d", o.barType, o.period)
	}
	if o.end.Sub(o.start) != 24*time.Hour {
		t.Errorf("range = %v", o.end.Sub(o.start))
	}
}

func TestParseFlags_Invalid(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"missing symbol", []string{"-start", "2026-10-01T00:00:00Z"}, "-symbol is required"},
		{"missing start", []string{"-symbol", "ESZ6"}, "-start is required"},
		{"bad type", []string{"-symbol", "ESZ6", "-start", "2026-10-01T00:00:00Z", "-type", "hourly"}, `unknown bar type "hourly"`},
		{"end before start", []string{"-symbol", "ESZ6", "-start", "2026-10-02T00:00:00Z", "-end", "2026-10-01T00:00:00Z"}, "-end must be after -start"},
		{"zero period", []string{"-symbol", "ESZ6", "-start", "2026-10-01T00:00:00Z", "-period", "0"}, "-period must be positive"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseFlags(tt.args)
			if err == nil || err.Error() != tt.want {
				t.Errorf("parseFlags() error = %v, want %q", err, tt.want)
			}
		})
	}
}

func TestTradingWindows(t *testing.T) {
	weekdays := func(day time.Time) bool {
		wd := day.Weekday()
		return wd != time.Saturday && wd != time.Sunday
	}

	// 2026-10-16 is a Friday.
	fri := time.Date(2026, 10, 16, 0, 0, 0, 0, time.UTC)

	got := tradingWindows(windows(fri, fri.Add(4*24*time.Hour), 24*time.Hour), weekdays)
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2 (Friday and Monday)", len(got))
	}
	if !got[0].start.Equal(fri) || !got[1].start.Equal(fri.AddDate(0, 0, 3)) {
		t.Errorf("kept %v and %v", got[0].start, got[1].start)
	}

	// A window spanning the weekend touches Friday and is kept.
	span := tradingWindows([]window{{start: fri.Add(20 * time.Hour), end: fri.Add(50 * time.Hour)}}, weekdays)
	if len(span) != 1 {
		t.Errorf("weekend-spanning window dropped")
	}

	sat := fri.AddDate(0, 0, 1)
	if got := tradingWindows([]window{{start: sat, end: sat.Add(36 * time.Hour)}}, weekdays); len(got) != 0 {
		t.Errorf("weekend-only window kept: %v", got)
	}
}
