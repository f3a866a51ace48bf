package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"facility-service/internal/models"
	"facility-service/pkg/response"
)

type SuggestionKind string

const (
	SuggestTimeShift    SuggestionKind = "time_shift"
	SuggestAlternate    SuggestionKind = "alternate_resource"
	SuggestMinorOverlap SuggestionKind = "minor_overlap"
)

// Suggestion is a ranked alternative offered after a denial. It is advisory:
// booking it goes through the full create path again under the lock.
type Suggestion struct {
	Kind       SuggestionKind
	ResourceID string
	Resource   string
	Start      time.Time
	End        time.Time
	Score      float64
	UsageCount int
	Reason     string
}

// CatalogStore is the resource-catalog/preferences slice of the persistence
// port used for suggestion scoring.
type CatalogStore interface {
	ListAlternateResources(ctx context.Context, category, excludeResourceID string) ([]*models.Resource, error)
	CountRecentBookings(ctx context.Context, resourceID string, since time.Time) (int, error)
	GetPreferences(ctx context.Context, requesterID string) (*models.Preferences, error)
	ListRequesterActiveBookings(ctx context.Context, requesterID string, start, end time.Time, excludeBookingID *string) ([]*models.Booking, error)
}

// SuggestConfig bounds the search explicitly; the candidate walk must never
// do unbounded work.
type SuggestConfig struct {
	ShiftStep        time.Duration
	SearchHorizon    time.Duration
	MaxCandidates    int
	OverlapTolerance time.Duration
	TravelBuffer     time.Duration
	UsageWindow      time.Duration
}

// Preference-match weights, additive.
const (
	weightCategory  = 20.0
	weightLocation  = 15.0
	weightCapacity  = 10.0
	weightFeature   = 5.0
	weightTimeOfDay = 10.0
	usagePenalty    = 2.0
)

type Suggester struct {
	detector *Detector
	catalog  CatalogStore
	cfg      SuggestConfig
	now      func() time.Time
}

func NewSuggester(detector *Detector, catalog CatalogStore, cfg SuggestConfig) *Suggester {
	return &Suggester{detector: detector, catalog: catalog, cfg: cfg, now: time.Now}
}

// Suggest searches nearby time shifts on the same resource and alternate
// resources for the same interval, validates every candidate through the
// detector, and returns them ranked by preference match plus similarity,
// ties broken by the least recently used resource.
func (s *Suggester) Suggest(ctx context.Context, requester *models.Requester, resource *models.Resource, iv Interval) ([]Suggestion, error) {
	const op = "engine.Suggester.Suggest"

	prefs, err := s.catalog.GetPreferences(ctx, requester.ID)
	if err != nil {
		if !errors.Is(err, response.ErrNotFound) {
			return nil, fmt.Errorf("%s: preferences: %w", op, err)
		}
		prefs = nil
	}

	var out []Suggestion

	shifted, err := s.timeShifts(ctx, requester, resource, iv, prefs)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	out = append(out, shifted...)

	alternates, err := s.alternates(ctx, requester, resource, iv, prefs)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	out = append(out, alternates...)

	minor, err := s.minorOverlap(ctx, requester, resource, iv, prefs)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	out = append(out, minor...)

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].UsageCount < out[j].UsageCount
	})

	if len(out) > s.cfg.MaxCandidates {
		out = out[:s.cfg.MaxCandidates]
	}

	return out, nil
}

// timeShifts walks the same resource in step increments, later and earlier,
// until the first non-conflicting slot in each direction or until the horizon
// is exhausted.
func (s *Suggester) timeShifts(ctx context.Context, requester *models.Requester, resource *models.Resource, iv Interval, prefs *models.Preferences) ([]Suggestion, error) {
	step := s.cfg.ShiftStep
	if step <= 0 {
		return nil, nil
	}
	maxSteps := int(s.cfg.SearchHorizon / step)

	var out []Suggestion
	now := s.now()

	for _, dir := range []time.Duration{1, -1} {
		for i := 1; i <= maxSteps; i++ {
			cand := iv.Shift(dir * time.Duration(i) * step)
			if dir < 0 && cand.Start.Before(now) {
				break
			}

			free, err := s.slotIsFree(ctx, resource, cand)
			if err != nil {
				return nil, err
			}
			if !free {
				continue
			}

			ok, err := s.fitsOwnSchedule(ctx, requester.ID, resource.ID, cand)
			if err != nil {
				return nil, err
			}
			if !ok {
				continue
			}

			usage, err := s.catalog.CountRecentBookings(ctx, resource.ID, now.Add(-s.cfg.UsageWindow))
			if err != nil {
				return nil, err
			}

			// Closer shifts score higher.
			score := s.preferenceScore(prefs, resource, cand) + float64(maxSteps-i)
			out = append(out, Suggestion{
				Kind:       SuggestTimeShift,
				ResourceID: resource.ID,
				Resource:   resource.Name,
				Start:      cand.Start,
				End:        cand.End,
				Score:      score,
				UsageCount: usage,
				Reason:     fmt.Sprintf("same resource, shifted by %s", (time.Duration(i) * step * dir).String()),
			})
			break
		}
	}

	return out, nil
}

// alternates scores resources of the same category for the original interval
// by feature-tag overlap, penalized by recent usage volume.
func (s *Suggester) alternates(ctx context.Context, requester *models.Requester, resource *models.Resource, iv Interval, prefs *models.Preferences) ([]Suggestion, error) {
	candidates, err := s.catalog.ListAlternateResources(ctx, resource.Category, resource.ID)
	if err != nil {
		return nil, err
	}

	var out []Suggestion
	since := s.now().Add(-s.cfg.UsageWindow)

	for _, alt := range candidates {
		if len(out) >= s.cfg.MaxCandidates {
			break
		}
		if alt.Status == models.ResourceMaintenance {
			continue
		}

		free, err := s.slotIsFree(ctx, alt, iv)
		if err != nil {
			return nil, err
		}
		if !free {
			continue
		}

		ok, err := s.fitsOwnSchedule(ctx, requester.ID, alt.ID, iv)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}

		usage, err := s.catalog.CountRecentBookings(ctx, alt.ID, since)
		if err != nil {
			return nil, err
		}

		score := featureOverlap(resource.FeatureTags, alt.FeatureTags) +
			s.preferenceScore(prefs, alt, iv) -
			usagePenalty*float64(usage)

		out = append(out, Suggestion{
			Kind:       SuggestAlternate,
			ResourceID: alt.ID,
			Resource:   alt.Name,
			Start:      iv.Start,
			End:        iv.End,
			Score:      score,
			UsageCount: usage,
			Reason:     fmt.Sprintf("alternate %s in category %q", alt.Name, alt.Category),
		})
	}

	return out, nil
}

// minorOverlap offers the original slot when every overlapping holder only
// grazes it within the configured tolerance.
func (s *Suggester) minorOverlap(ctx context.Context, requester *models.Requester, resource *models.Resource, iv Interval, prefs *models.Preferences) ([]Suggestion, error) {
	set, err := s.detector.Detect(ctx, resource, iv, requester.ID, nil)
	if err != nil {
		return nil, err
	}
	if set.HasBlocking() {
		return nil, nil
	}

	existing := set.ExistingBookings()
	if len(existing) == 0 {
		return nil, nil
	}

	var total time.Duration
	for _, rec := range existing {
		total += iv.OverlapWith(rec.Booking.Start, rec.Booking.End)
	}
	if total > s.cfg.OverlapTolerance {
		return nil, nil
	}

	return []Suggestion{{
		Kind:       SuggestMinorOverlap,
		ResourceID: resource.ID,
		Resource:   resource.Name,
		Start:      iv.Start,
		End:        iv.End,
		Score:      s.preferenceScore(prefs, resource, iv),
		Reason:     fmt.Sprintf("overlap with current holders is only %s", total),
	}}, nil
}

// slotIsFree re-runs detection and accepts only candidates that need no
// preemption at all.
func (s *Suggester) slotIsFree(ctx context.Context, resource *models.Resource, iv Interval) (bool, error) {
	set, err := s.detector.Detect(ctx, resource, iv, "", nil)
	if err != nil {
		return false, err
	}
	if set.HasBlocking() {
		return false, nil
	}
	return len(set.ExistingBookings())+1 <= max(resource.Capacity, 1), nil
}

// fitsOwnSchedule rejects candidates colliding with the requester's other
// active bookings, padded by the travel buffer when resources differ.
func (s *Suggester) fitsOwnSchedule(ctx context.Context, requesterID, resourceID string, iv Interval) (bool, error) {
	padded := Interval{Start: iv.Start.Add(-s.cfg.TravelBuffer), End: iv.End.Add(s.cfg.TravelBuffer)}

	own, err := s.catalog.ListRequesterActiveBookings(ctx, requesterID, padded.Start, padded.End, nil)
	if err != nil {
		return false, err
	}

	for _, b := range own {
		if b.ResourceID == resourceID {
			if b.Overlaps(iv.Start, iv.End) {
				return false, nil
			}
			continue
		}
		if b.Overlaps(padded.Start, padded.End) {
			return false, nil
		}
	}

	return true, nil
}

func (s *Suggester) preferenceScore(prefs *models.Preferences, resource *models.Resource, iv Interval) float64 {
	if prefs == nil {
		return 0
	}

	var score float64
	if prefs.PreferredCategory != "" && prefs.PreferredCategory == resource.Category {
		score += weightCategory
	}
	if prefs.PreferredLocation != "" && prefs.PreferredLocation == resource.Location {
		score += weightLocation
	}
	if prefs.MinCapacity > 0 && resource.Capacity >= prefs.MinCapacity {
		score += weightCapacity
	}
	for _, want := range prefs.FeatureTags {
		for _, have := range resource.FeatureTags {
			if want == have {
				score += weightFeature
				break
			}
		}
	}
	if prefs.PreferredHour != nil && iv.Start.Hour() == *prefs.PreferredHour {
		score += weightTimeOfDay
	}

	return score
}

// featureOverlap is the matching-tag ratio scaled to 0..100.
func featureOverlap(requested, offered []string) float64 {
	if len(requested) == 0 {
		return 0
	}

	matched := 0
	for _, want := range requested {
		for _, have := range offered {
			if want == have {
				matched++
				break
			}
		}
	}

	return float64(matched) / float64(len(requested)) * 100
}
