// Package engine implements the allocation core: conflict detection over a
// resource and time interval, the preemption decision, and alternative-slot
// suggestion when a request is denied.
package engine

import (
	"time"

	"facility-service/internal/models"
)

// Interval is a half-open time range [Start, End).
type Interval struct {
	Start time.Time
	End   time.Time
}

func (iv Interval) Overlaps(start, end time.Time) bool {
	return start.Before(iv.End) && end.After(iv.Start)
}

func (iv Interval) Duration() time.Duration {
	return iv.End.Sub(iv.Start)
}

// OverlapWith returns how much of iv is covered by [start, end).
func (iv Interval) OverlapWith(start, end time.Time) time.Duration {
	s := iv.Start
	if start.After(s) {
		s = start
	}
	e := iv.End
	if end.Before(e) {
		e = end
	}
	if !e.After(s) {
		return 0
	}
	return e.Sub(s)
}

func (iv Interval) Shift(d time.Duration) Interval {
	return Interval{Start: iv.Start.Add(d), End: iv.End.Add(d)}
}

type ConflictType string

const (
	ConflictMaintenance     ConflictType = "maintenance"
	ConflictResourceIssue   ConflictType = "resource_issue"
	ConflictFixedSchedule   ConflictType = "fixed_schedule"
	ConflictExistingBooking ConflictType = "existing_booking"
	ConflictSharedEquipment ConflictType = "shared_equipment"
	ConflictDoubleBooking   ConflictType = "requester_double_booking"
	ConflictCapacity        ConflictType = "capacity"
)

type Severity string

const (
	SeverityHigh Severity = "high"
	SeverityLow  Severity = "low"
)

// ConflictRecord describes one reason the requested slot cannot be freely
// granted. For existing-booking conflicts Priority carries the holder's
// score so the resolver does not re-query.
type ConflictRecord struct {
	Type     ConflictType
	Severity Severity
	Booking  *models.Booking
	Priority int
	Hint     string
}

// Blocking conflicts deny an allocation outright, regardless of capacity or
// priority: a resource under maintenance or with an open issue accepts no new
// holders, and a timetable entry occupies the resource in full.
func (r ConflictRecord) Blocking() bool {
	switch r.Type {
	case ConflictMaintenance, ConflictResourceIssue, ConflictFixedSchedule:
		return true
	}
	return false
}

// Informational conflicts never affect the allocation decision.
func (r ConflictRecord) Informational() bool {
	switch r.Type {
	case ConflictSharedEquipment, ConflictDoubleBooking:
		return true
	}
	return false
}

// ConflictSet is the union of every source's findings for one detection call.
type ConflictSet struct {
	Records []ConflictRecord
}

func (cs *ConflictSet) Blocking() []ConflictRecord {
	var out []ConflictRecord
	for _, r := range cs.Records {
		if r.Blocking() {
			out = append(out, r)
		}
	}
	return out
}

// ExistingBookings returns the overlapping holders on the requested resource.
func (cs *ConflictSet) ExistingBookings() []ConflictRecord {
	var out []ConflictRecord
	for _, r := range cs.Records {
		if r.Type == ConflictExistingBooking {
			out = append(out, r)
		}
	}
	return out
}

func (cs *ConflictSet) Empty() bool {
	return len(cs.Records) == 0
}

// HasBlocking reports whether any hard conflict is present.
func (cs *ConflictSet) HasBlocking() bool {
	return len(cs.Blocking()) > 0
}
