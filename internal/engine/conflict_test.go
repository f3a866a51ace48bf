package engine

import (
	"context"
	"testing"
	"time"

	"facility-service/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetectMaintenanceAndIssues(t *testing.T) {
	store := newFakeStore()
	res := store.addResource("r1", 1)
	res.Status = models.ResourceMaintenance
	store.issues = append(store.issues, &models.ResourceIssue{
		ID: "i1", ResourceID: "r1", Status: models.IssueReported, Summary: "projector broken",
	})

	det := NewDetector(store)
	set, err := det.Detect(context.Background(), res, Interval{at(10, 0), at(11, 0)}, "", nil)
	require.NoError(t, err)

	require.Len(t, set.Records, 2)
	assert.Equal(t, ConflictMaintenance, set.Records[0].Type)
	assert.Equal(t, ConflictResourceIssue, set.Records[1].Type)
	assert.True(t, set.HasBlocking())
}

func TestDetectResolvedIssueIgnored(t *testing.T) {
	store := newFakeStore()
	res := store.addResource("r1", 1)
	store.issues = append(store.issues, &models.ResourceIssue{
		ID: "i1", ResourceID: "r1", Status: models.IssueResolved,
	})

	det := NewDetector(store)
	set, err := det.Detect(context.Background(), res, Interval{at(10, 0), at(11, 0)}, "", nil)
	require.NoError(t, err)
	assert.True(t, set.Empty())
}

func TestDetectFixedSchedule(t *testing.T) {
	store := newFakeStore()
	res := store.addResource("r1", 1)
	store.timetable = append(store.timetable, &models.TimetableEntry{
		ID: "t1", ResourceID: "r1", Weekday: time.Monday,
		StartTime: "10:00", EndTime: "12:00", Label: "CS101",
	})

	det := NewDetector(store)

	// at() falls on a Monday
	set, err := det.Detect(context.Background(), res, Interval{at(11, 0), at(13, 0)}, "", nil)
	require.NoError(t, err)
	require.Len(t, set.Records, 1)
	assert.Equal(t, ConflictFixedSchedule, set.Records[0].Type)
	assert.True(t, set.Records[0].Blocking())

	// touching end boundary is not an overlap (half-open)
	set, err = det.Detect(context.Background(), res, Interval{at(12, 0), at(13, 0)}, "", nil)
	require.NoError(t, err)
	assert.True(t, set.Empty())
}

func TestDetectExistingBookingOverlap(t *testing.T) {
	store := newFakeStore()
	res := store.addResource("r1", 1)
	store.addBooking("b1", "r1", "u1", at(10, 0), at(11, 0), 2)

	det := NewDetector(store)

	cases := []struct {
		name      string
		iv        Interval
		conflicts bool
	}{
		{"full overlap", Interval{at(10, 0), at(11, 0)}, true},
		{"partial tail", Interval{at(10, 30), at(11, 30)}, true},
		{"partial head", Interval{at(9, 30), at(10, 30)}, true},
		{"containing", Interval{at(9, 0), at(12, 0)}, true},
		{"back to back after", Interval{at(11, 0), at(12, 0)}, false},
		{"back to back before", Interval{at(9, 0), at(10, 0)}, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			set, err := det.Detect(context.Background(), res, tc.iv, "", nil)
			require.NoError(t, err)
			assert.Equal(t, tc.conflicts, len(set.ExistingBookings()) == 1)
		})
	}
}

func TestDetectAnnotatesHolderPriority(t *testing.T) {
	store := newFakeStore()
	res := store.addResource("r1", 1)
	b := store.addBooking("b1", "r1", "u1", at(10, 0), at(11, 0), 0)
	b.Category = models.CategoryStaffMeeting
	store.requesters["u1"] = &models.Requester{ID: "u1", Role: models.RoleStaff}

	det := NewDetector(store)
	set, err := det.Detect(context.Background(), res, Interval{at(10, 0), at(11, 0)}, "", nil)
	require.NoError(t, err)

	recs := set.ExistingBookings()
	require.Len(t, recs, 1)
	assert.Equal(t, 6, recs[0].Priority) // staff_meeting(4) + staff(2)
}

func TestDetectStoredPriorityWins(t *testing.T) {
	store := newFakeStore()
	res := store.addResource("r1", 1)
	store.addBooking("b1", "r1", "u1", at(10, 0), at(11, 0), 5)

	det := NewDetector(store)
	set, err := det.Detect(context.Background(), res, Interval{at(10, 0), at(11, 0)}, "", nil)
	require.NoError(t, err)

	recs := set.ExistingBookings()
	require.Len(t, recs, 1)
	assert.Equal(t, 5, recs[0].Priority)
}

func TestDetectExcludeBookingOnUpdate(t *testing.T) {
	store := newFakeStore()
	res := store.addResource("r1", 1)
	store.addBooking("b1", "r1", "u1", at(10, 0), at(11, 0), 2)

	det := NewDetector(store)
	exclude := "b1"
	set, err := det.Detect(context.Background(), res, Interval{at(10, 0), at(11, 0)}, "", &exclude)
	require.NoError(t, err)
	assert.True(t, set.Empty())
}

func TestDetectCapacityConflict(t *testing.T) {
	store := newFakeStore()
	res := store.addResource("r1", 2)
	store.addBooking("b1", "r1", "u1", at(10, 0), at(11, 0), 2)
	store.addBooking("b2", "r1", "u2", at(10, 0), at(11, 0), 2)

	det := NewDetector(store)
	set, err := det.Detect(context.Background(), res, Interval{at(10, 0), at(11, 0)}, "", nil)
	require.NoError(t, err)

	var capacity int
	for _, rec := range set.Records {
		if rec.Type == ConflictCapacity {
			capacity++
		}
	}
	assert.Equal(t, 1, capacity)
}

func TestDetectSharedEquipmentSoft(t *testing.T) {
	store := newFakeStore()
	res := store.addResource("r1", 1)
	store.addResource("r2", 1) // same location and category
	store.addBooking("b1", "r2", "u2", at(10, 0), at(11, 0), 2)

	det := NewDetector(store)
	set, err := det.Detect(context.Background(), res, Interval{at(10, 0), at(11, 0)}, "", nil)
	require.NoError(t, err)

	require.Len(t, set.Records, 1)
	assert.Equal(t, ConflictSharedEquipment, set.Records[0].Type)
	assert.True(t, set.Records[0].Informational())
	assert.False(t, set.HasBlocking())
}

func TestDetectRequesterDoubleBooking(t *testing.T) {
	store := newFakeStore()
	res := store.addResource("r1", 1)
	store.addResource("r9", 1)
	store.resources["r9"].Location = "other-building"
	store.addBooking("b1", "r9", "u1", at(10, 0), at(11, 0), 2)

	det := NewDetector(store)
	set, err := det.Detect(context.Background(), res, Interval{at(10, 30), at(11, 30)}, "u1", nil)
	require.NoError(t, err)

	require.Len(t, set.Records, 1)
	assert.Equal(t, ConflictDoubleBooking, set.Records[0].Type)
	assert.Equal(t, SeverityLow, set.Records[0].Severity)
}

func TestDetectSourceFailureFailsWholeCall(t *testing.T) {
	for _, source := range []string{"issues", "timetable", "bookings", "shared", "requester_bookings"} {
		t.Run(source, func(t *testing.T) {
			store := newFakeStore()
			res := store.addResource("r1", 1)
			store.failSource = source

			det := NewDetector(store)
			_, err := det.Detect(context.Background(), res, Interval{at(10, 0), at(11, 0)}, "u1", nil)
			assert.ErrorIs(t, err, errSourceDown)
		})
	}
}
