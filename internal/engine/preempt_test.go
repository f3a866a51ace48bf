package engine

import (
	"testing"

	"facility-service/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func existingConflict(id string, prio int) ConflictRecord {
	return ConflictRecord{
		Type:     ConflictExistingBooking,
		Severity: SeverityHigh,
		Booking:  &models.Booking{ID: id, Start: at(10, 0), End: at(11, 0)},
		Priority: prio,
	}
}

func TestResolveEmptySetAllows(t *testing.T) {
	d := Resolve(1, &ConflictSet{}, 1)
	assert.Equal(t, OutcomeAllow, d.Outcome)
	assert.Empty(t, d.Preempt)
}

func TestResolveBlockingAlwaysDenies(t *testing.T) {
	for _, typ := range []ConflictType{ConflictMaintenance, ConflictResourceIssue, ConflictFixedSchedule} {
		t.Run(string(typ), func(t *testing.T) {
			set := &ConflictSet{Records: []ConflictRecord{{Type: typ, Severity: SeverityHigh}}}
			// even the highest possible priority cannot displace these
			d := Resolve(100, set, 5)
			assert.Equal(t, OutcomeDeny, d.Outcome)
		})
	}
}

func TestResolveEqualPriorityFavorsIncumbent(t *testing.T) {
	set := &ConflictSet{Records: []ConflictRecord{existingConflict("b1", 4)}}
	d := Resolve(4, set, 1)
	assert.Equal(t, OutcomeDeny, d.Outcome)
	assert.Empty(t, d.Preempt)
}

func TestResolveLowerPriorityIsDenied(t *testing.T) {
	set := &ConflictSet{Records: []ConflictRecord{existingConflict("b1", 4)}}
	d := Resolve(1, set, 1)
	assert.Equal(t, OutcomeDeny, d.Outcome)
}

func TestResolveStrictlyHigherPreempts(t *testing.T) {
	set := &ConflictSet{Records: []ConflictRecord{existingConflict("b1", 2)}}
	d := Resolve(6, set, 1)

	require.Equal(t, OutcomeAllow, d.Outcome)
	require.Len(t, d.Preempt, 1)
	assert.Equal(t, "b1", d.Preempt[0].ID)
}

func TestResolvePreemptedPriorityStrictlyLess(t *testing.T) {
	for newPrio := 1; newPrio <= 9; newPrio++ {
		for oldPrio := 1; oldPrio <= 9; oldPrio++ {
			set := &ConflictSet{Records: []ConflictRecord{existingConflict("b1", oldPrio)}}
			d := Resolve(newPrio, set, 1)
			for range d.Preempt {
				assert.Less(t, oldPrio, newPrio)
			}
		}
	}
}

func TestResolveCapacityThreeSeats(t *testing.T) {
	// two non-preemptable holders, capacity 3: the third fits
	set := &ConflictSet{Records: []ConflictRecord{
		existingConflict("b1", 6),
		existingConflict("b2", 6),
	}}
	d := Resolve(2, set, 3)
	require.Equal(t, OutcomeAllow, d.Outcome)
	assert.Empty(t, d.Preempt)

	// a fourth holder pushes past capacity
	set.Records = append(set.Records, existingConflict("b3", 6))
	d = Resolve(2, set, 3)
	assert.Equal(t, OutcomeDeny, d.Outcome)
}

func TestResolveNoNeedlessPreemption(t *testing.T) {
	// one lower-priority holder, capacity 2: both fit, nobody is displaced
	set := &ConflictSet{Records: []ConflictRecord{existingConflict("b1", 2)}}
	d := Resolve(6, set, 2)

	require.Equal(t, OutcomeAllow, d.Outcome)
	assert.Empty(t, d.Preempt)
}

func TestResolvePreemptsFewestLowestRanked(t *testing.T) {
	set := &ConflictSet{Records: []ConflictRecord{
		existingConflict("low", 1),
		existingConflict("mid", 3),
		existingConflict("high", 6),
	}}
	// capacity 3, three holders: exactly one must go, the lowest-ranked
	d := Resolve(7, set, 3)

	require.Equal(t, OutcomeAllow, d.Outcome)
	require.Len(t, d.Preempt, 1)
	assert.Equal(t, "low", d.Preempt[0].ID)
}

func TestResolveSoftConflictsNeverBlock(t *testing.T) {
	set := &ConflictSet{Records: []ConflictRecord{
		{Type: ConflictSharedEquipment, Severity: SeverityLow},
		{Type: ConflictDoubleBooking, Severity: SeverityLow},
	}}
	d := Resolve(1, set, 1)
	assert.Equal(t, OutcomeAllow, d.Outcome)
}

func TestResolveCapacityRecordDoesNotDouble(t *testing.T) {
	// the capacity record is informational for callers; the decision is
	// driven by the existing-booking records themselves
	set := &ConflictSet{Records: []ConflictRecord{
		existingConflict("b1", 1),
		{Type: ConflictCapacity, Severity: SeverityHigh},
	}}
	d := Resolve(6, set, 1)
	require.Equal(t, OutcomeAllow, d.Outcome)
	require.Len(t, d.Preempt, 1)
}
