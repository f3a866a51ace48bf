package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"facility-service/internal/models"
	"facility-service/pkg/response"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

const (
	pqUniqueViolation      = "23505"
	pqSerializationFailure = "40001"
	pqDeadlockDetected     = "40P01"
)

type Storage struct {
	db *sql.DB
}

func New(storagePath string) (*Storage, error) {
	const op = "storage.postgres.New"

	db, err := sql.Open("postgres", storagePath)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &Storage{db: db}, nil
}

func (s *Storage) Close() error {
	if s == nil || s.db == nil {
		return nil
	}

	return s.db.Close()
}

// mapErr translates driver errors into the sentinel taxonomy. Serialization
// failures surface as ErrTxConflict so the service can retry under the lock.
func mapErr(op string, err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case pqSerializationFailure, pqDeadlockDetected:
			return fmt.Errorf("%s: %w", op, response.ErrTxConflict)
		case pqUniqueViolation:
			return fmt.Errorf("%s: %w", op, response.ErrBadRequest)
		}
	}
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", op, response.ErrNotFound)
	}

	return fmt.Errorf("%s: %w", op, err)
}

// #### lookups ####

func (s *Storage) GetResource(ctx context.Context, id string) (*models.Resource, error) {
	const op = "storage.postgres.GetResource"

	var r models.Resource
	err := s.db.QueryRowContext(ctx,
		`SELECT resource_id, name, category, capacity, status, special_approval, feature_tags, location
		FROM resources WHERE resource_id=$1`, id).
		Scan(
			&r.ID,
			&r.Name,
			&r.Category,
			&r.Capacity,
			&r.Status,
			&r.SpecialApproval,
			pq.Array(&r.FeatureTags),
			&r.Location,
		)
	if err != nil {
		return nil, mapErr(op, err)
	}

	return &r, nil
}

func (s *Storage) GetRequester(ctx context.Context, id string) (*models.Requester, error) {
	const op = "storage.postgres.GetRequester"

	var r models.Requester
	err := s.db.QueryRowContext(ctx,
		`SELECT requester_id, name, role FROM requesters WHERE requester_id=$1`, id).
		Scan(&r.ID, &r.Name, &r.Role)
	if err != nil {
		return nil, mapErr(op, err)
	}

	return &r, nil
}

func (s *Storage) GetBooking(ctx context.Context, id string) (*models.Booking, error) {
	const op = "storage.postgres.GetBooking"

	b, err := scanBooking(s.db.QueryRowContext(ctx, selectBooking+` WHERE booking_id=$1`, id))
	if err != nil {
		return nil, mapErr(op, err)
	}

	return b, nil
}

func (s *Storage) GetPreferences(ctx context.Context, requesterID string) (*models.Preferences, error) {
	const op = "storage.postgres.GetPreferences"

	var p models.Preferences
	err := s.db.QueryRowContext(ctx,
		`SELECT requester_id, preferred_category, preferred_location, min_capacity, feature_tags, preferred_hour
		FROM requester_preferences WHERE requester_id=$1`, requesterID).
		Scan(
			&p.RequesterID,
			&p.PreferredCategory,
			&p.PreferredLocation,
			&p.MinCapacity,
			pq.Array(&p.FeatureTags),
			&p.PreferredHour,
		)
	if err != nil {
		return nil, mapErr(op, err)
	}

	return &p, nil
}

// #### conflict sources ####

func (s *Storage) ListOpenIssues(ctx context.Context, resourceID string) ([]*models.ResourceIssue, error) {
	const op = "storage.postgres.ListOpenIssues"

	rows, err := s.db.QueryContext(ctx,
		`SELECT issue_id, resource_id, status, summary
		FROM resource_issues
		WHERE resource_id=$1 AND status IN ($2, $3)`,
		resourceID, models.IssueReported, models.IssueInProgress)
	if err != nil {
		return nil, mapErr(op, err)
	}
	defer rows.Close()

	var out []*models.ResourceIssue
	for rows.Next() {
		var issue models.ResourceIssue
		if err := rows.Scan(&issue.ID, &issue.ResourceID, &issue.Status, &issue.Summary); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		out = append(out, &issue)
	}

	return out, rows.Err()
}

func (s *Storage) ListTimetableEntries(ctx context.Context, resourceID string, weekday time.Weekday) ([]*models.TimetableEntry, error) {
	const op = "storage.postgres.ListTimetableEntries"

	rows, err := s.db.QueryContext(ctx,
		`SELECT entry_id, resource_id, weekday, start_time, end_time, label
		FROM timetable_entries
		WHERE resource_id=$1 AND weekday=$2`,
		resourceID, int(weekday))
	if err != nil {
		return nil, mapErr(op, err)
	}
	defer rows.Close()

	var out []*models.TimetableEntry
	for rows.Next() {
		var e models.TimetableEntry
		var wd int
		if err := rows.Scan(&e.ID, &e.ResourceID, &wd, &e.StartTime, &e.EndTime, &e.Label); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		e.Weekday = time.Weekday(wd)
		out = append(out, &e)
	}

	return out, rows.Err()
}

func (s *Storage) ListActiveBookings(ctx context.Context, resourceID string, start, end time.Time, excludeBookingID *string) ([]*models.Booking, error) {
	const op = "storage.postgres.ListActiveBookings"

	rows, err := s.db.QueryContext(ctx,
		selectBooking+`
		WHERE resource_id=$1
		AND status = ANY($2)
		AND start_time < $3 AND end_time > $4
		AND ($5::text IS NULL OR booking_id != $5)
		ORDER BY start_time`,
		resourceID, pq.Array(statusStrings(models.ActiveStatuses)), end, start, excludeBookingID)
	if err != nil {
		return nil, mapErr(op, err)
	}
	defer rows.Close()

	return collectBookings(op, rows)
}

func (s *Storage) ListRequesterActiveBookings(ctx context.Context, requesterID string, start, end time.Time, excludeBookingID *string) ([]*models.Booking, error) {
	const op = "storage.postgres.ListRequesterActiveBookings"

	rows, err := s.db.QueryContext(ctx,
		selectBooking+`
		WHERE requester_id=$1
		AND status = ANY($2)
		AND start_time < $3 AND end_time > $4
		AND ($5::text IS NULL OR booking_id != $5)
		ORDER BY start_time`,
		requesterID, pq.Array(statusStrings(models.ActiveStatuses)), end, start, excludeBookingID)
	if err != nil {
		return nil, mapErr(op, err)
	}
	defer rows.Close()

	return collectBookings(op, rows)
}

func (s *Storage) ListSharedResources(ctx context.Context, location, category, excludeResourceID string) ([]*models.Resource, error) {
	const op = "storage.postgres.ListSharedResources"

	rows, err := s.db.QueryContext(ctx,
		`SELECT resource_id, name, category, capacity, status, special_approval, feature_tags, location
		FROM resources
		WHERE location=$1 AND category=$2 AND resource_id != $3`,
		location, category, excludeResourceID)
	if err != nil {
		return nil, mapErr(op, err)
	}
	defer rows.Close()

	return collectResources(op, rows)
}

// #### catalog ####

func (s *Storage) ListAlternateResources(ctx context.Context, category, excludeResourceID string) ([]*models.Resource, error) {
	const op = "storage.postgres.ListAlternateResources"

	rows, err := s.db.QueryContext(ctx,
		`SELECT resource_id, name, category, capacity, status, special_approval, feature_tags, location
		FROM resources
		WHERE category=$1 AND resource_id != $2 AND status != $3`,
		category, excludeResourceID, models.ResourceMaintenance)
	if err != nil {
		return nil, mapErr(op, err)
	}
	defer rows.Close()

	return collectResources(op, rows)
}

func (s *Storage) CountRecentBookings(ctx context.Context, resourceID string, since time.Time) (int, error) {
	const op = "storage.postgres.CountRecentBookings"

	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM bookings WHERE resource_id=$1 AND start_time >= $2`,
		resourceID, since).Scan(&count)
	if err != nil {
		return 0, mapErr(op, err)
	}

	return count, nil
}

// #### atomic mutations ####

// CreateBooking inserts the winner and transitions every preempted holder in
// one serializable transaction. Both succeed or both roll back.
func (s *Storage) CreateBooking(ctx context.Context, booking *models.Booking, preemptIDs []string, at time.Time) (string, error) {
	const op = "storage.postgres.CreateBooking"

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return "", fmt.Errorf("%s: begin tx: %w", op, err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	id := uuid.NewString()
	_, err = tx.ExecContext(ctx,
		`INSERT INTO bookings
		(booking_id, resource_id, requester_id, start_time, end_time, category, status, priority, attachment_ref)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		id,
		booking.ResourceID,
		booking.RequesterID,
		booking.Start,
		booking.End,
		booking.Category,
		booking.Status,
		booking.Priority,
		booking.AttachmentRef,
	)
	if err != nil {
		return "", mapErr(op, err)
	}

	if err := preemptTx(ctx, tx, preemptIDs, id, at); err != nil {
		return "", mapErr(op, err)
	}

	if err := tx.Commit(); err != nil {
		return "", mapErr(op, err)
	}

	return id, nil
}

// UpdateBooking rewrites the booking's interval/category/priority and
// transitions preempted holders atomically, guarded against terminal states.
func (s *Storage) UpdateBooking(ctx context.Context, booking *models.Booking, preemptIDs []string, at time.Time) error {
	const op = "storage.postgres.UpdateBooking"

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return fmt.Errorf("%s: begin tx: %w", op, err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	res, err := tx.ExecContext(ctx,
		`UPDATE bookings
		SET start_time=$1, end_time=$2, category=$3, priority=$4
		WHERE booking_id=$5 AND status = ANY($6)`,
		booking.Start,
		booking.End,
		booking.Category,
		booking.Priority,
		booking.ID,
		pq.Array(statusStrings(models.ActiveStatuses)),
	)
	if err != nil {
		return mapErr(op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", op, response.ErrTerminalState)
	}

	if err := preemptTx(ctx, tx, preemptIDs, booking.ID, at); err != nil {
		return mapErr(op, err)
	}

	if err := tx.Commit(); err != nil {
		return mapErr(op, err)
	}

	return nil
}

func preemptTx(ctx context.Context, tx *sql.Tx, preemptIDs []string, winnerID string, at time.Time) error {
	if len(preemptIDs) == 0 {
		return nil
	}

	reason := fmt.Sprintf("preempted by booking %s", winnerID)
	res, err := tx.ExecContext(ctx,
		`UPDATE bookings
		SET status=$1, ended_reason=$2, ended_by=$3, ended_at=$4
		WHERE booking_id = ANY($5) AND status = ANY($6)`,
		models.BookingPreempted,
		reason,
		"system",
		at,
		pq.Array(preemptIDs),
		pq.Array(statusStrings(models.ActiveStatuses)),
	)
	if err != nil {
		return err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	// A holder that changed status since detection invalidates the decision.
	if n != int64(len(preemptIDs)) {
		return response.ErrTxConflict
	}

	return nil
}

// FinishBooking is a compare-and-set terminal transition.
func (s *Storage) FinishBooking(ctx context.Context, bookingID string, status models.BookingStatus, reason, actorID string, at time.Time) error {
	const op = "storage.postgres.FinishBooking"

	res, err := s.db.ExecContext(ctx,
		`UPDATE bookings
		SET status=$1, ended_reason=$2, ended_by=$3, ended_at=$4
		WHERE booking_id=$5 AND status = ANY($6)`,
		status, reason, actorID, at, bookingID, pq.Array(statusStrings(models.ActiveStatuses)))
	if err != nil {
		return mapErr(op, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", op, response.ErrTerminalState)
	}

	return nil
}

// ExpireOverdue transitions every active booking whose end has passed. The
// guarded UPDATE makes repeated sweeps idempotent.
func (s *Storage) ExpireOverdue(ctx context.Context, now time.Time) ([]*models.Booking, error) {
	const op = "storage.postgres.ExpireOverdue"

	rows, err := s.db.QueryContext(ctx,
		`UPDATE bookings
		SET status=$1, ended_reason='end time passed', ended_by='system', ended_at=$2
		WHERE status = ANY($3) AND end_time < $2
		RETURNING booking_id, resource_id, requester_id, start_time, end_time, category, status, priority, attachment_ref, ended_reason, ended_by, ended_at`,
		models.BookingExpired, now, pq.Array(statusStrings(models.ActiveStatuses)))
	if err != nil {
		return nil, mapErr(op, err)
	}
	defer rows.Close()

	return collectBookings(op, rows)
}

// #### scan helpers ####

const selectBooking = `SELECT booking_id, resource_id, requester_id, start_time, end_time, category, status, priority, attachment_ref, ended_reason, ended_by, ended_at
	FROM bookings`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBooking(row rowScanner) (*models.Booking, error) {
	var b models.Booking
	err := row.Scan(
		&b.ID,
		&b.ResourceID,
		&b.RequesterID,
		&b.Start,
		&b.End,
		&b.Category,
		&b.Status,
		&b.Priority,
		&b.AttachmentRef,
		&b.EndedReason,
		&b.EndedBy,
		&b.EndedAt,
	)
	if err != nil {
		return nil, err
	}

	return &b, nil
}

func collectBookings(op string, rows *sql.Rows) ([]*models.Booking, error) {
	var out []*models.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		out = append(out, b)
	}

	return out, rows.Err()
}

func collectResources(op string, rows *sql.Rows) ([]*models.Resource, error) {
	var out []*models.Resource
	for rows.Next() {
		var r models.Resource
		err := rows.Scan(
			&r.ID,
			&r.Name,
			&r.Category,
			&r.Capacity,
			&r.Status,
			&r.SpecialApproval,
			pq.Array(&r.FeatureTags),
			&r.Location,
		)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		out = append(out, &r)
	}

	return out, rows.Err()
}

func statusStrings(statuses []models.BookingStatus) []string {
	out := make([]string, 0, len(statuses))
	for _, st := range statuses {
		out = append(out, string(st))
	}
	return out
}
