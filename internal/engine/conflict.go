package engine

import (
	"context"
	"fmt"
	"time"

	"facility-service/internal/models"
	"facility-service/internal/priority"
)

// Store is the read-only slice of the persistence port the detector needs.
// Range queries are fixed-shape; the caller supplies the bounds, the storage
// layer owns the SQL.
type Store interface {
	GetRequester(ctx context.Context, id string) (*models.Requester, error)
	ListOpenIssues(ctx context.Context, resourceID string) ([]*models.ResourceIssue, error)
	ListTimetableEntries(ctx context.Context, resourceID string, weekday time.Weekday) ([]*models.TimetableEntry, error)
	ListActiveBookings(ctx context.Context, resourceID string, start, end time.Time, excludeBookingID *string) ([]*models.Booking, error)
	ListSharedResources(ctx context.Context, location, category, excludeResourceID string) ([]*models.Resource, error)
	ListRequesterActiveBookings(ctx context.Context, requesterID string, start, end time.Time, excludeBookingID *string) ([]*models.Booking, error)
}

// Detector runs every conflict source for a (resource, interval) pair and
// unions the results. It never short-circuits: the preemption decision and
// suggestion generation both need the complete set, and any source failure
// fails the whole call rather than proceed with partial information.
type Detector struct {
	store Store
}

func NewDetector(store Store) *Detector {
	return &Detector{store: store}
}

// Detect gathers the full conflict set. requesterID may be empty, in which
// case the double-booking source is skipped (availability probes have no
// requester).
func (d *Detector) Detect(ctx context.Context, resource *models.Resource, iv Interval, requesterID string, excludeBookingID *string) (*ConflictSet, error) {
	const op = "engine.Detector.Detect"

	set := &ConflictSet{}

	if resource.Status == models.ResourceMaintenance {
		set.Records = append(set.Records, ConflictRecord{
			Type:     ConflictMaintenance,
			Severity: SeverityHigh,
			Hint:     "resource is under maintenance, try an alternate resource",
		})
	}

	issues, err := d.store.ListOpenIssues(ctx, resource.ID)
	if err != nil {
		return nil, fmt.Errorf("%s: issues: %w", op, err)
	}
	for _, issue := range issues {
		set.Records = append(set.Records, ConflictRecord{
			Type:     ConflictResourceIssue,
			Severity: SeverityHigh,
			Hint:     fmt.Sprintf("open issue on resource: %s", issue.Summary),
		})
	}

	if err := d.detectFixedSchedule(ctx, resource.ID, iv, set); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	existing, err := d.store.ListActiveBookings(ctx, resource.ID, iv.Start, iv.End, excludeBookingID)
	if err != nil {
		return nil, fmt.Errorf("%s: bookings: %w", op, err)
	}
	for _, b := range existing {
		p := b.Priority
		if p == 0 {
			holder, err := d.store.GetRequester(ctx, b.RequesterID)
			if err != nil {
				return nil, fmt.Errorf("%s: holder %s: %w", op, b.RequesterID, err)
			}
			p = priority.Classify(holder.Role, b.Category)
		}
		set.Records = append(set.Records, ConflictRecord{
			Type:     ConflictExistingBooking,
			Severity: SeverityHigh,
			Booking:  b,
			Priority: p,
			Hint:     "slot held by another booking",
		})
	}

	if resource.Capacity > 1 && len(existing) >= resource.Capacity {
		set.Records = append(set.Records, ConflictRecord{
			Type:     ConflictCapacity,
			Severity: SeverityHigh,
			Hint:     fmt.Sprintf("all %d seats are taken for this interval", resource.Capacity),
		})
	}

	if err := d.detectSharedEquipment(ctx, resource, iv, set); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if requesterID != "" {
		own, err := d.store.ListRequesterActiveBookings(ctx, requesterID, iv.Start, iv.End, excludeBookingID)
		if err != nil {
			return nil, fmt.Errorf("%s: requester bookings: %w", op, err)
		}
		for _, b := range own {
			if b.ResourceID == resource.ID {
				continue // already reported as an existing-booking conflict
			}
			set.Records = append(set.Records, ConflictRecord{
				Type:     ConflictDoubleBooking,
				Severity: SeverityLow,
				Booking:  b,
				Hint:     "you already hold an overlapping booking elsewhere",
			})
		}
	}

	return set, nil
}

// detectFixedSchedule checks every day the interval touches against the
// weekly timetable of the resource. Timetable entries are owned by an
// external importer and are never preemptable.
func (d *Detector) detectFixedSchedule(ctx context.Context, resourceID string, iv Interval, set *ConflictSet) error {
	const op = "detectFixedSchedule"

	loc := iv.Start.Location()
	for day := truncateToDate(iv.Start, loc); day.Before(iv.End); day = day.AddDate(0, 0, 1) {
		entries, err := d.store.ListTimetableEntries(ctx, resourceID, day.Weekday())
		if err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
		for _, entry := range entries {
			start, end, err := entryTimesOn(entry, day, loc)
			if err != nil {
				return fmt.Errorf("%s: %w", op, err)
			}
			if iv.Overlaps(start, end) {
				set.Records = append(set.Records, ConflictRecord{
					Type:     ConflictFixedSchedule,
					Severity: SeverityHigh,
					Hint:     fmt.Sprintf("fixed timetable entry %q occupies %s-%s", entry.Label, entry.StartTime, entry.EndTime),
				})
			}
		}
	}

	return nil
}

// detectSharedEquipment reports overlapping bookings on resources at the same
// location and category. These are soft redirect hints, never blocking.
func (d *Detector) detectSharedEquipment(ctx context.Context, resource *models.Resource, iv Interval, set *ConflictSet) error {
	const op = "detectSharedEquipment"

	shared, err := d.store.ListSharedResources(ctx, resource.Location, resource.Category, resource.ID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	for _, other := range shared {
		bookings, err := d.store.ListActiveBookings(ctx, other.ID, iv.Start, iv.End, nil)
		if err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
		for _, b := range bookings {
			set.Records = append(set.Records, ConflictRecord{
				Type:     ConflictSharedEquipment,
				Severity: SeverityLow,
				Booking:  b,
				Hint:     fmt.Sprintf("nearby resource %q is also in use then", other.Name),
			})
		}
	}

	return nil
}

func truncateToDate(t time.Time, loc *time.Location) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}

// entryTimesOn materializes a timetable entry's "15:04" times on a concrete day.
func entryTimesOn(entry *models.TimetableEntry, day time.Time, loc *time.Location) (time.Time, time.Time, error) {
	st, err := time.Parse("15:04", entry.StartTime)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("bad timetable start %q: %w", entry.StartTime, err)
	}
	et, err := time.Parse("15:04", entry.EndTime)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("bad timetable end %q: %w", entry.EndTime, err)
	}

	start := time.Date(day.Year(), day.Month(), day.Day(), st.Hour(), st.Minute(), 0, 0, loc)
	end := time.Date(day.Year(), day.Month(), day.Day(), et.Hour(), et.Minute(), 0, 0, loc)

	return start, end, nil
}
