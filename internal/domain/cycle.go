/**
 * @description
 * Payment cycle calculator. A cycle is a Monday 00:00 UTC week with a cutoff
 * the following Monday at 15:00 UTC. Cycles are computed, never stored; all
 * arithmetic is UTC calendar arithmetic.
 */
package domain

import "time"

// Cycle statuses, derived from the current time.
const (
	CycleOpen         = "open"
	CycleCutoffPassed = "cutoff_passed"
	CycleClosed       = "closed"
)

// CutoffOffset is the gap between a cycle's end and its cutoff: the cutoff
// falls at 15:00 UTC on the Monday the next cycle starts.
const CutoffOffset = 15 * time.Hour

// SettlementWindow is how long a cycle stays in cutoff_passed before it is
// considered closed: one full cycle after its own cutoff.
const SettlementWindow = 7 * 24 * time.Hour

// PaymentCycle is one Monday-to-Monday UTC settlement window. The window is
// half-open: an instant belongs to the cycle when Start <= t < End.
type PaymentCycle struct {
	Start  time.Time `json:"start"`
	End    time.Time `json:"end"`
	Cutoff time.Time `json:"cutoff"`
}

// CycleContaining returns the cycle whose half-open [Start, End) window
// contains the given instant.
func CycleContaining(t time.Time) PaymentCycle {
	u := t.UTC()
	daysSinceMonday := (int(u.Weekday()) + 6) % 7
	start := time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC).
		AddDate(0, 0, -daysSinceMonday)
	end := start.AddDate(0, 0, 7)

	return PaymentCycle{
		Start:  start,
		End:    end,
		Cutoff: end.Add(CutoffOffset),
	}
}

// Contains reports whether the instant falls inside the cycle window.
func (c PaymentCycle) Contains(t time.Time) bool {
	u := t.UTC()
	return !u.Before(c.Start) && u.Before(c.End)
}

// IsCutoffPassed reports whether the cycle's confirmations are final as of now.
func (c PaymentCycle) IsCutoffPassed(now time.Time) bool {
	return !now.UTC().Before(c.Cutoff)
}

// Status derives the cycle's lifecycle state from the current time. A cycle
// is open until its cutoff, cutoff_passed while its fees are being settled,
// and closed once the settlement window after the cutoff has elapsed.
func (c PaymentCycle) Status(now time.Time) string {
	u := now.UTC()
	switch {
	case u.Before(c.Cutoff):
		return CycleOpen
	case u.Before(c.Cutoff.Add(SettlementWindow)):
		return CycleCutoffPassed
	default:
		return CycleClosed
	}
}

// LatestCycleStartWithCutoffPassed returns the start of the most recent cycle
// whose cutoff has passed as of the given instant. Earnings in cycles starting
// at or before this instant are final and chargeable.
func LatestCycleStartWithCutoffPassed(asOf time.Time) time.Time {
	cycle := CycleContaining(asOf)
	// Walk back until the cutoff is in the past; at most two steps since
	// cutoffs trail cycle starts by under two weeks.
	for !cycle.IsCutoffPassed(asOf) {
		cycle = CycleContaining(cycle.Start.Add(-time.Hour))
	}
	return cycle.Start
}
