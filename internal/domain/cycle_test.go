package domain

import (
	"testing"
	"time"
)

func utc(year int, month time.Month, day, hour, min, sec int) time.Time {
	return time.Date(year, month, day, hour, min, sec, 0, time.UTC)
}

func TestCycleContaining_JanuaryWeek(t *testing.T) {
	// Sunday 2024-01-07 23:30 UTC belongs to the week starting Monday 2024-01-01.
	cycle := CycleContaining(utc(2024, time.January, 7, 23, 30, 0))

	if !cycle.Start.Equal(utc(2024, time.January, 1, 0, 0, 0)) {
		t.Fatalf("expected cycle start 2024-01-01, got %v", cycle.Start)
	}
	if !cycle.End.Equal(utc(2024, time.January, 8, 0, 0, 0)) {
		t.Fatalf("expected cycle end 2024-01-08, got %v", cycle.End)
	}
	if !cycle.Cutoff.Equal(utc(2024, time.January, 8, 15, 0, 0)) {
		t.Fatalf("expected cutoff 2024-01-08 15:00, got %v", cycle.Cutoff)
	}
}

func TestCycleContaining_SameWeekInstantsAgree(t *testing.T) {
	instants := []time.Time{
		utc(2024, time.January, 1, 0, 0, 0),
		utc(2024, time.January, 3, 12, 30, 45),
		utc(2024, time.January, 7, 23, 59, 59),
	}

	first := CycleContaining(instants[0])
	for _, instant := range instants[1:] {
		got := CycleContaining(instant)
		if !got.Start.Equal(first.Start) || !got.End.Equal(first.End) {
			t.Fatalf("expected %v to share cycle %v, got %v", instant, first, got)
		}
	}
}

func TestCycleContaining_MondayMidnightStartsNewCycle(t *testing.T) {
	// Boundary is half-open on the start side: Monday 00:00:00.000 belongs to
	// the cycle starting that Monday, not the prior one.
	cycle := CycleContaining(utc(2024, time.January, 8, 0, 0, 0))

	if !cycle.Start.Equal(utc(2024, time.January, 8, 0, 0, 0)) {
		t.Fatalf("expected cycle start 2024-01-08, got %v", cycle.Start)
	}

	justBefore := CycleContaining(utc(2024, time.January, 7, 23, 59, 59).Add(999 * time.Millisecond))
	if !justBefore.Start.Equal(utc(2024, time.January, 1, 0, 0, 0)) {
		t.Fatalf("expected 23:59:59.999 to stay in prior cycle, got start %v", justBefore.Start)
	}
}

func TestCycleContaining_YearBoundary(t *testing.T) {
	// 2023-12-31 is a Sunday; the containing week starts Monday 2023-12-25 and
	// its cutoff lands in 2024.
	cycle := CycleContaining(utc(2023, time.December, 31, 18, 0, 0))

	if !cycle.Start.Equal(utc(2023, time.December, 25, 0, 0, 0)) {
		t.Fatalf("expected cycle start 2023-12-25, got %v", cycle.Start)
	}
	if !cycle.Cutoff.Equal(utc(2024, time.January, 1, 15, 0, 0)) {
		t.Fatalf("expected cutoff 2024-01-01 15:00, got %v", cycle.Cutoff)
	}
}

func TestCycleContaining_LeapDay(t *testing.T) {
	// 2024-02-29 is a Thursday; its week runs Monday 02-26 through Monday 03-04.
	cycle := CycleContaining(utc(2024, time.February, 29, 9, 0, 0))

	if !cycle.Start.Equal(utc(2024, time.February, 26, 0, 0, 0)) {
		t.Fatalf("expected cycle start 2024-02-26, got %v", cycle.Start)
	}
	if !cycle.End.Equal(utc(2024, time.March, 4, 0, 0, 0)) {
		t.Fatalf("expected cycle end 2024-03-04, got %v", cycle.End)
	}
}

func TestCycleContains(t *testing.T) {
	cycle := CycleContaining(utc(2024, time.January, 3, 0, 0, 0))

	if !cycle.Contains(utc(2024, time.January, 1, 0, 0, 0)) {
		t.Fatal("expected cycle to contain its own start")
	}
	if cycle.Contains(utc(2024, time.January, 8, 0, 0, 0)) {
		t.Fatal("expected cycle not to contain its exclusive end")
	}
}

func TestIsCutoffPassed(t *testing.T) {
	cycle := CycleContaining(utc(2024, time.January, 3, 0, 0, 0))

	if cycle.IsCutoffPassed(utc(2024, time.January, 8, 14, 59, 59)) {
		t.Fatal("cutoff should not be passed before Monday 15:00")
	}
	if !cycle.IsCutoffPassed(utc(2024, time.January, 8, 15, 0, 0)) {
		t.Fatal("cutoff should be passed at exactly Monday 15:00")
	}
}

func TestCycleStatus(t *testing.T) {
	cycle := CycleContaining(utc(2024, time.January, 3, 0, 0, 0))

	tests := []struct {
		name string
		now  time.Time
		want string
	}{
		{"during week", utc(2024, time.January, 5, 12, 0, 0), CycleOpen},
		{"after week before cutoff", utc(2024, time.January, 8, 10, 0, 0), CycleOpen},
		{"just past cutoff", utc(2024, time.January, 8, 15, 0, 0), CycleCutoffPassed},
		{"settlement window over", utc(2024, time.January, 15, 15, 0, 0), CycleClosed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := cycle.Status(tt.now); got != tt.want {
				t.Fatalf("expected status %q, got %q", tt.want, got)
			}
		})
	}
}

func TestLatestCycleStartWithCutoffPassed(t *testing.T) {
	tests := []struct {
		name string
		asOf time.Time
		want time.Time
	}{
		{
			// Monday morning before 15:00: the just-ended week is not final yet.
			name: "monday before cutoff",
			asOf: utc(2024, time.January, 8, 10, 0, 0),
			want: utc(2023, time.December, 25, 0, 0, 0),
		},
		{
			name: "monday after cutoff",
			asOf: utc(2024, time.January, 8, 16, 0, 0),
			want: utc(2024, time.January, 1, 0, 0, 0),
		},
		{
			name: "midweek",
			asOf: utc(2024, time.January, 10, 3, 0, 0),
			want: utc(2024, time.January, 1, 0, 0, 0),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := LatestCycleStartWithCutoffPassed(tt.asOf); !got.Equal(tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, got)
			}
		})
	}
}
