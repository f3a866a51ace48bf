package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"facility-service/internal/models"
	"facility-service/pkg/response"
)

// fakeStore is an in-memory implementation of the detector and catalog
// interfaces for tests.
type fakeStore struct {
	requesters map[string]*models.Requester
	resources  map[string]*models.Resource
	bookings   []*models.Booking
	issues     []*models.ResourceIssue
	timetable  []*models.TimetableEntry
	prefs      map[string]*models.Preferences
	usage      map[string]int

	failSource string // name of the source whose query should error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		requesters: map[string]*models.Requester{},
		resources:  map[string]*models.Resource{},
		prefs:      map[string]*models.Preferences{},
		usage:      map[string]int{},
	}
}

var errSourceDown = errors.New("source unavailable")

func (f *fakeStore) GetRequester(_ context.Context, id string) (*models.Requester, error) {
	if f.failSource == "requesters" {
		return nil, errSourceDown
	}
	r, ok := f.requesters[id]
	if !ok {
		return nil, response.ErrNotFound
	}
	return r, nil
}

func (f *fakeStore) ListOpenIssues(_ context.Context, resourceID string) ([]*models.ResourceIssue, error) {
	if f.failSource == "issues" {
		return nil, errSourceDown
	}
	var out []*models.ResourceIssue
	for _, issue := range f.issues {
		if issue.ResourceID == resourceID && issue.Status != models.IssueResolved {
			out = append(out, issue)
		}
	}
	return out, nil
}

func (f *fakeStore) ListTimetableEntries(_ context.Context, resourceID string, weekday time.Weekday) ([]*models.TimetableEntry, error) {
	if f.failSource == "timetable" {
		return nil, errSourceDown
	}
	var out []*models.TimetableEntry
	for _, e := range f.timetable {
		if e.ResourceID == resourceID && e.Weekday == weekday {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *fakeStore) ListActiveBookings(_ context.Context, resourceID string, start, end time.Time, exclude *string) ([]*models.Booking, error) {
	if f.failSource == "bookings" {
		return nil, errSourceDown
	}
	var out []*models.Booking
	for _, b := range f.bookings {
		if b.ResourceID != resourceID || b.Status.IsTerminal() {
			continue
		}
		if exclude != nil && b.ID == *exclude {
			continue
		}
		if b.Overlaps(start, end) {
			out = append(out, b)
		}
	}
	return out, nil
}

func (f *fakeStore) ListSharedResources(_ context.Context, location, category, excludeID string) ([]*models.Resource, error) {
	if f.failSource == "shared" {
		return nil, errSourceDown
	}
	var out []*models.Resource
	for _, r := range f.resources {
		if r.ID == excludeID {
			continue
		}
		if r.Location == location && r.Category == category {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeStore) ListRequesterActiveBookings(_ context.Context, requesterID string, start, end time.Time, exclude *string) ([]*models.Booking, error) {
	if f.failSource == "requester_bookings" {
		return nil, errSourceDown
	}
	var out []*models.Booking
	for _, b := range f.bookings {
		if b.RequesterID != requesterID || b.Status.IsTerminal() {
			continue
		}
		if exclude != nil && b.ID == *exclude {
			continue
		}
		if b.Overlaps(start, end) {
			out = append(out, b)
		}
	}
	return out, nil
}

func (f *fakeStore) ListAlternateResources(_ context.Context, category, excludeID string) ([]*models.Resource, error) {
	var out []*models.Resource
	for _, r := range f.resources {
		if r.ID != excludeID && r.Category == category {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeStore) CountRecentBookings(_ context.Context, resourceID string, _ time.Time) (int, error) {
	return f.usage[resourceID], nil
}

func (f *fakeStore) GetPreferences(_ context.Context, requesterID string) (*models.Preferences, error) {
	p, ok := f.prefs[requesterID]
	if !ok {
		return nil, response.ErrNotFound
	}
	return p, nil
}

func (f *fakeStore) addBooking(id, resourceID, requesterID string, start, end time.Time, prio int) *models.Booking {
	b := &models.Booking{
		ID:          id,
		ResourceID:  resourceID,
		RequesterID: requesterID,
		Start:       start,
		End:         end,
		Category:    models.CategoryOther,
		Status:      models.BookingApproved,
		Priority:    prio,
	}
	f.bookings = append(f.bookings, b)
	return b
}

func (f *fakeStore) addResource(id string, capacity int) *models.Resource {
	r := &models.Resource{
		ID:       id,
		Name:     fmt.Sprintf("resource-%s", id),
		Category: "lab",
		Capacity: capacity,
		Status:   models.ResourceActive,
		Location: "main-building",
	}
	f.resources[id] = r
	return r
}

func at(hour, min int) time.Time {
	return time.Date(2026, time.September, 7, hour, min, 0, 0, time.UTC) // a Monday
}
