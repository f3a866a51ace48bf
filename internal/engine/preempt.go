package engine

import (
	"sort"

	"facility-service/internal/models"
)

type Outcome string

const (
	OutcomeAllow Outcome = "allow"
	OutcomeDeny  Outcome = "deny"
)

// Decision is the result of resolving a conflict set against the new
// request's priority. On Allow, Preempt lists the holders that must
// transition to preempted inside the same commit as the new booking.
type Decision struct {
	Outcome        Outcome
	Preempt        []*models.Booking
	NonPreemptable []ConflictRecord
}

// Resolve applies the fairness rule: a holder loses its slot only to a
// strictly higher priority. Equal scores favor the incumbent. Blocking
// conflicts (maintenance, open issue, fixed schedule) deny outright.
//
// When the interval fits without displacing anyone, nobody is preempted even
// if lower-priority holders overlap; otherwise only the fewest, lowest-ranked
// preemptable holders needed to restore the capacity invariant are displaced.
func Resolve(newPriority int, set *ConflictSet, capacity int) Decision {
	if set.HasBlocking() {
		return Decision{Outcome: OutcomeDeny, NonPreemptable: set.Blocking()}
	}

	if capacity < 1 {
		capacity = 1
	}

	var preemptable, nonPreemptable []ConflictRecord
	for _, rec := range set.ExistingBookings() {
		if rec.Priority < newPriority {
			preemptable = append(preemptable, rec)
		} else {
			nonPreemptable = append(nonPreemptable, rec)
		}
	}

	if len(nonPreemptable)+1 > capacity {
		return Decision{Outcome: OutcomeDeny, NonPreemptable: nonPreemptable}
	}

	needed := len(preemptable) + len(nonPreemptable) + 1 - capacity
	if needed <= 0 {
		return Decision{Outcome: OutcomeAllow}
	}

	// Lowest-ranked holders go first; among equals the later start loses.
	sort.SliceStable(preemptable, func(i, j int) bool {
		if preemptable[i].Priority != preemptable[j].Priority {
			return preemptable[i].Priority < preemptable[j].Priority
		}
		return preemptable[i].Booking.Start.After(preemptable[j].Booking.Start)
	})

	losers := make([]*models.Booking, 0, needed)
	for _, rec := range preemptable[:needed] {
		losers = append(losers, rec.Booking)
	}

	return Decision{Outcome: OutcomeAllow, Preempt: losers}
}
