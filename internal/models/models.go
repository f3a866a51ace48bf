package models

import "time"

type BookingStatus string

const (
	BookingPending   BookingStatus = "pending"
	BookingApproved  BookingStatus = "approved"
	BookingInUse     BookingStatus = "in_use"
	BookingCompleted BookingStatus = "completed"
	BookingCancelled BookingStatus = "cancelled"
	BookingPreempted BookingStatus = "preempted"
	BookingExpired   BookingStatus = "expired"
	BookingRejected  BookingStatus = "rejected"
)

// IsTerminal reports whether no further transition is defined out of the status.
func (s BookingStatus) IsTerminal() bool {
	switch s {
	case BookingCompleted, BookingCancelled, BookingPreempted, BookingExpired, BookingRejected:
		return true
	}
	return false
}

// ActiveStatuses are the statuses that occupy capacity on a resource.
var ActiveStatuses = []BookingStatus{BookingPending, BookingApproved, BookingInUse}

type BookingCategory string

const (
	CategoryUniversityActivity BookingCategory = "university_activity"
	CategoryClass              BookingCategory = "class"
	CategoryStaffMeeting       BookingCategory = "staff_meeting"
	CategoryChurchMeeting      BookingCategory = "church_meeting"
	CategoryStudentMeeting     BookingCategory = "student_meeting"
	CategoryOther              BookingCategory = "other"
)

type Role string

const (
	RoleStudent  Role = "student"
	RoleStaff    Role = "staff"
	RoleLecturer Role = "lecturer"
	RoleAdmin    Role = "admin"
)

// Booking reserves one resource for one requester over [Start, End).
type Booking struct {
	ID            string          `db:"booking_id"`
	ResourceID    string          `db:"resource_id"`
	RequesterID   string          `db:"requester_id"`
	Start         time.Time       `db:"start_time"`
	End           time.Time       `db:"end_time"`
	Category      BookingCategory `db:"category"`
	Status        BookingStatus   `db:"status"`
	Priority      int             `db:"priority"`
	AttachmentRef *string         `db:"attachment_ref"`
	EndedReason   *string         `db:"ended_reason"`
	EndedBy       *string         `db:"ended_by"`
	EndedAt       *time.Time      `db:"ended_at"`
}

// Overlaps applies the half-open interval test against [start, end).
func (b *Booking) Overlaps(start, end time.Time) bool {
	return b.Start.Before(end) && b.End.After(start)
}

type ResourceStatus string

const (
	ResourceActive      ResourceStatus = "active"
	ResourceMaintenance ResourceStatus = "maintenance"
)

type Resource struct {
	ID              string         `db:"resource_id"`
	Name            string         `db:"name"`
	Category        string         `db:"category"`
	Capacity        int            `db:"capacity"`
	Status          ResourceStatus `db:"status"`
	SpecialApproval bool           `db:"special_approval"`
	FeatureTags     []string       `db:"feature_tags"`
	Location        string         `db:"location"`
}

type Requester struct {
	ID   string `db:"requester_id"`
	Name string `db:"name"`
	Role Role   `db:"role"`
}

// Preferences drive suggestion ranking only; they never gate an allocation.
type Preferences struct {
	RequesterID       string   `db:"requester_id"`
	PreferredCategory string   `db:"preferred_category"`
	PreferredLocation string   `db:"preferred_location"`
	MinCapacity       int      `db:"min_capacity"`
	FeatureTags       []string `db:"feature_tags"`
	PreferredHour     *int     `db:"preferred_hour"`
}

// TimetableEntry is a weekly-recurring occupation of a resource, owned by an
// external importer. Read-only here.
type TimetableEntry struct {
	ID         string       `db:"entry_id"`
	ResourceID string       `db:"resource_id"`
	Weekday    time.Weekday `db:"weekday"`
	StartTime  string       `db:"start_time"` // "15:04"
	EndTime    string       `db:"end_time"`
	Label      string       `db:"label"`
}

type IssueStatus string

const (
	IssueReported   IssueStatus = "reported"
	IssueInProgress IssueStatus = "in_progress"
	IssueResolved   IssueStatus = "resolved"
)

type ResourceIssue struct {
	ID         string      `db:"issue_id"`
	ResourceID string      `db:"resource_id"`
	Status     IssueStatus `db:"status"`
	Summary    string      `db:"summary"`
}

type EventType string

const (
	EventBookingCreated   EventType = "BookingCreated"
	EventBookingApproved  EventType = "BookingApproved"
	EventBookingRejected  EventType = "BookingRejected"
	EventBookingPreempted EventType = "BookingPreempted"
	EventBookingCancelled EventType = "BookingCancelled"
	EventBookingExpired   EventType = "BookingExpired"
)

// Event is the outbound notification payload. Events are collected during an
// operation and published only after the transaction commits.
type Event struct {
	Type        EventType `json:"type"`
	BookingID   string    `json:"booking_id"`
	ResourceID  string    `json:"resource_id"`
	RequesterID string    `json:"requester_id"`
	Reason      string    `json:"reason,omitempty"`
	OccurredAt  time.Time `json:"occurred_at"`
}
