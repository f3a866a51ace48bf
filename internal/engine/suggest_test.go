package engine

import (
	"context"
	"testing"
	"time"

	"facility-service/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSuggestConfig() SuggestConfig {
	return SuggestConfig{
		ShiftStep:        30 * time.Minute,
		SearchHorizon:    4 * time.Hour,
		MaxCandidates:    10,
		OverlapTolerance: 5 * time.Minute,
		TravelBuffer:     15 * time.Minute,
		UsageWindow:      30 * 24 * time.Hour,
	}
}

func newTestSuggester(store *fakeStore) *Suggester {
	s := NewSuggester(NewDetector(store), store, testSuggestConfig())
	s.now = func() time.Time { return at(8, 0) }
	return s
}

func TestSuggestShiftedSlot(t *testing.T) {
	store := newFakeStore()
	res := store.addResource("r1", 1)
	store.addBooking("b1", "r1", "u2", at(10, 0), at(11, 0), 6)
	requester := &models.Requester{ID: "u1", Role: models.RoleStudent}

	sug := newTestSuggester(store)
	out, err := sug.Suggest(context.Background(), requester, res, Interval{at(10, 0), at(11, 0)})
	require.NoError(t, err)
	require.NotEmpty(t, out)

	var shifts []Suggestion
	for _, s := range out {
		if s.Kind == SuggestTimeShift {
			shifts = append(shifts, s)
		}
	}
	require.NotEmpty(t, shifts)
	// the nearest free slot after the holder ends must be offered
	found := false
	for _, s := range shifts {
		if s.Start.Equal(at(11, 0)) && s.End.Equal(at(12, 0)) {
			found = true
		}
	}
	assert.True(t, found, "expected 11:00-12:00 among %+v", shifts)
}

func TestSuggestAlternateResourceScoredByFeatures(t *testing.T) {
	store := newFakeStore()
	res := store.addResource("r1", 1)
	res.FeatureTags = []string{"projector", "whiteboard"}
	store.addBooking("b1", "r1", "u2", at(10, 0), at(11, 0), 6)

	full := store.addResource("r2", 1)
	full.Location = "annex"
	full.FeatureTags = []string{"projector", "whiteboard"}

	partial := store.addResource("r3", 1)
	partial.Location = "annex"
	partial.FeatureTags = []string{"projector"}

	requester := &models.Requester{ID: "u1", Role: models.RoleStudent}
	sug := newTestSuggester(store)
	out, err := sug.Suggest(context.Background(), requester, res, Interval{at(10, 0), at(11, 0)})
	require.NoError(t, err)

	var alts []Suggestion
	for _, s := range out {
		if s.Kind == SuggestAlternate {
			alts = append(alts, s)
		}
	}
	require.Len(t, alts, 2)
	assert.Equal(t, "r2", alts[0].ResourceID, "full feature match must outrank partial")
	assert.Equal(t, "r3", alts[1].ResourceID)
	assert.Greater(t, alts[0].Score, alts[1].Score)
}

func TestSuggestUnderUtilizedResourceFavored(t *testing.T) {
	store := newFakeStore()
	res := store.addResource("r1", 1)
	store.addBooking("b1", "r1", "u2", at(10, 0), at(11, 0), 6)

	busy := store.addResource("r2", 1)
	busy.Location = "annex"
	idle := store.addResource("r3", 1)
	idle.Location = "annex"
	store.usage["r2"] = 20
	store.usage["r3"] = 1

	requester := &models.Requester{ID: "u1", Role: models.RoleStudent}
	sug := newTestSuggester(store)
	out, err := sug.Suggest(context.Background(), requester, res, Interval{at(10, 0), at(11, 0)})
	require.NoError(t, err)

	var alts []Suggestion
	for _, s := range out {
		if s.Kind == SuggestAlternate {
			alts = append(alts, s)
		}
	}
	require.Len(t, alts, 2)
	assert.Equal(t, "r3", alts[0].ResourceID)
}

func TestSuggestMinorOverlapFallback(t *testing.T) {
	store := newFakeStore()
	res := store.addResource("r1", 1)
	// holder only grazes the last 4 minutes of the requested hour
	store.addBooking("b1", "r1", "u2", at(10, 56), at(12, 0), 6)

	requester := &models.Requester{ID: "u1", Role: models.RoleStudent}
	sug := newTestSuggester(store)
	out, err := sug.Suggest(context.Background(), requester, res, Interval{at(10, 0), at(11, 0)})
	require.NoError(t, err)

	var minor []Suggestion
	for _, s := range out {
		if s.Kind == SuggestMinorOverlap {
			minor = append(minor, s)
		}
	}
	require.Len(t, minor, 1)
	assert.Equal(t, at(10, 0), minor[0].Start)
}

func TestSuggestNoMinorOverlapPastTolerance(t *testing.T) {
	store := newFakeStore()
	res := store.addResource("r1", 1)
	store.addBooking("b1", "r1", "u2", at(10, 30), at(12, 0), 6)

	requester := &models.Requester{ID: "u1", Role: models.RoleStudent}
	sug := newTestSuggester(store)
	out, err := sug.Suggest(context.Background(), requester, res, Interval{at(10, 0), at(11, 0)})
	require.NoError(t, err)

	for _, s := range out {
		assert.NotEqual(t, SuggestMinorOverlap, s.Kind)
	}
}

func TestSuggestFiltersOwnScheduleWithTravelBuffer(t *testing.T) {
	store := newFakeStore()
	res := store.addResource("r1", 1)
	store.addBooking("b1", "r1", "u2", at(10, 0), at(11, 0), 6)

	// requester already booked elsewhere 11:00-12:00; 11:00 shift on r1 would
	// leave no travel time, and the alternate at 10:00 overlaps outright
	other := store.addResource("r9", 1)
	other.Location = "far-wing"
	store.addBooking("own", "r9", "u1", at(11, 0), at(12, 0), 2)

	requester := &models.Requester{ID: "u1", Role: models.RoleStudent}
	sug := newTestSuggester(store)
	out, err := sug.Suggest(context.Background(), requester, res, Interval{at(10, 0), at(11, 0)})
	require.NoError(t, err)

	for _, s := range out {
		if s.ResourceID == "r1" && s.Kind == SuggestTimeShift {
			collides := s.Start.Before(at(12, 15)) && s.End.After(at(10, 45))
			assert.False(t, collides, "shift %s-%s collides with own booking plus buffer", s.Start, s.End)
		}
	}
}

func TestSuggestPreferenceMatchRanksHigher(t *testing.T) {
	store := newFakeStore()
	res := store.addResource("r1", 1)
	store.addBooking("b1", "r1", "u2", at(10, 0), at(11, 0), 6)

	preferred := store.addResource("r2", 1)
	preferred.Location = "annex"
	plain := store.addResource("r3", 1)
	plain.Location = "far-wing"

	store.prefs["u1"] = &models.Preferences{
		RequesterID:       "u1",
		PreferredLocation: "annex",
	}

	requester := &models.Requester{ID: "u1", Role: models.RoleStudent}
	sug := newTestSuggester(store)
	out, err := sug.Suggest(context.Background(), requester, res, Interval{at(10, 0), at(11, 0)})
	require.NoError(t, err)

	var alts []Suggestion
	for _, s := range out {
		if s.Kind == SuggestAlternate {
			alts = append(alts, s)
		}
	}
	require.Len(t, alts, 2)
	assert.Equal(t, "r2", alts[0].ResourceID)
}

func TestSuggestRespectsMaxCandidates(t *testing.T) {
	store := newFakeStore()
	res := store.addResource("r1", 1)
	store.addBooking("b1", "r1", "u2", at(10, 0), at(11, 0), 6)

	requester := &models.Requester{ID: "u1", Role: models.RoleStudent}
	cfg := testSuggestConfig()
	cfg.MaxCandidates = 3

	sug := NewSuggester(NewDetector(store), store, cfg)
	sug.now = func() time.Time { return at(8, 0) }

	out, err := sug.Suggest(context.Background(), requester, res, Interval{at(10, 0), at(11, 0)})
	require.NoError(t, err)
	assert.LessOrEqual(t, len(out), 3)
}
