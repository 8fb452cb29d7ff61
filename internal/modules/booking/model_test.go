package booking

import (
	"testing"
	"time"
)

func TestCanTransition(t *testing.T) {
	all := []Status{
		StatusPending, StatusAccepted, StatusTruckAssigned, StatusLoading,
		StatusInTransit, StatusCompleted, StatusCancelled,
	}
	legal := map[Status]map[Status]bool{
		StatusPending:       {StatusPending: true, StatusAccepted: true, StatusTruckAssigned: true, StatusCancelled: true},
		StatusAccepted:      {StatusAccepted: true, StatusCancelled: true},
		StatusTruckAssigned: {StatusTruckAssigned: true, StatusLoading: true, StatusCancelled: true},
		StatusLoading:       {StatusLoading: true, StatusInTransit: true, StatusCancelled: true},
		StatusInTransit:     {StatusInTransit: true, StatusCompleted: true, StatusCancelled: true},
		StatusCompleted:     {},
		StatusCancelled:     {},
	}
	for _, from := range all {
		for _, to := range all {
			want := legal[from][to]
			if got := CanTransition(from, to); got != want {
				t.Errorf("CanTransition(%s, %s) = %v, want %v", from, to, got, want)
			}
		}
	}
}

func TestStatusAndStateValidity(t *testing.T) {
	if Status("delivered").Valid() {
		t.Fatalf("delivered is a state, not a status")
	}
	if !State("delivered").Valid() {
		t.Fatalf("delivered state should be valid")
	}
	if State("in_transit").Valid() {
		t.Fatalf("in_transit is a status, not a state")
	}
	if !StatusCompleted.Terminal() || !StatusCancelled.Terminal() || StatusInTransit.Terminal() {
		t.Fatalf("terminal statuses wrong")
	}
}

func TestNextStampStrictlyIncreasing(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 123456789, time.UTC)

	first := nextStamp(time.Time{}, now)
	if first.Nanosecond()%1000 != 0 {
		t.Fatalf("stamp not truncated to microseconds: %v", first)
	}
	second := nextStamp(first, now)
	if !second.After(first) || second.Sub(first) != time.Microsecond {
		t.Fatalf("expected +1µs, got %v then %v", first, second)
	}
	// A clock that went backwards still yields a later stamp.
	third := nextStamp(second, now.Add(-time.Hour))
	if !third.After(second) {
		t.Fatalf("stamp went backwards: %v after %v", third, second)
	}
	later := now.Add(time.Second)
	if got := nextStamp(third, later); !got.Equal(later.Truncate(time.Microsecond)) {
		t.Fatalf("expected wall clock %v, got %v", later, got)
	}
}
