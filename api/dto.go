package api

import "time"

type BookingRequest struct {
	ResourceID    string  `json:"resource_id" validate:"required"`
	RequesterID   string  `json:"requester_id" validate:"required"`
	Category      string  `json:"category" validate:"required"`
	Start         string  `json:"start" validate:"required"`
	End           string  `json:"end" validate:"required"`
	AttachmentRef *string `json:"attachment_ref,omitempty"`
}

type BookingUpdateRequest struct {
	Start    *string `json:"start,omitempty"`
	End      *string `json:"end,omitempty"`
	Category *string `json:"category,omitempty"`
}

type CancelRequest struct {
	ActorID string `json:"actor_id" validate:"required"`
	Reason  string `json:"reason" validate:"required"`
}

type BookingResponse struct {
	ID            string     `json:"booking_id"`
	ResourceID    string     `json:"resource_id"`
	RequesterID   string     `json:"requester_id"`
	Category      string     `json:"category"`
	Status        string     `json:"status"`
	Start         time.Time  `json:"start"`
	End           time.Time  `json:"end"`
	Priority      int        `json:"priority"`
	AttachmentRef *string    `json:"attachment_ref,omitempty"`
	EndedReason   *string    `json:"ended_reason,omitempty"`
	EndedBy       *string    `json:"ended_by,omitempty"`
	EndedAt       *time.Time `json:"ended_at,omitempty"`
}

type ConflictResponse struct {
	Type      string  `json:"type"`
	Severity  string  `json:"severity"`
	BookingID *string `json:"booking_id,omitempty"`
	Priority  int     `json:"priority,omitempty"`
	Hint      string  `json:"hint"`
}

type SuggestionResponse struct {
	Kind       string    `json:"kind"`
	ResourceID string    `json:"resource_id"`
	Resource   string    `json:"resource"`
	Start      time.Time `json:"start"`
	End        time.Time `json:"end"`
	Score      float64   `json:"score"`
	Reason     string    `json:"reason"`
}

// BookingResult is the outcome of create/update: either a booking, or a
// denial carrying the conflict set and ranked alternatives.
type BookingResult struct {
	Denied      bool                 `json:"denied"`
	Booking     *BookingResponse     `json:"booking,omitempty"`
	Conflicts   []ConflictResponse   `json:"conflicts,omitempty"`
	Suggestions []SuggestionResponse `json:"suggestions,omitempty"`
}

type AvailabilityResponse struct {
	Available bool               `json:"available"`
	Conflicts []ConflictResponse `json:"conflicts"`
}
