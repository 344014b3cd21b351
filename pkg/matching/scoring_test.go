package matching

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestScorer_JaroWinkler(t *testing.T) {
	s := NewScorer()

	tests := []struct {
		name string
		a, b string
		min  float64
		max  float64
	}{
		{"identical", "martha", "martha", 1.0, 1.0},
		{"transposition", "martha", "marhta", 0.96, 0.962},
		{"empty side", "", "abc", 0.0, 0.0},
		{"unrelated", "abc", "xyz", 0.0, 0.0},
		{"arabic near match", "محمد", "محمود", 0.85, 1.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			score := s.JaroWinkler(tt.a, tt.b)
			assert.GreaterOrEqual(t, score, tt.min)
			assert.LessOrEqual(t, score, tt.max)
		})
	}
}

func TestScorer_Levenshtein(t *testing.T) {
	s := NewScorer()

	assert.Equal(t, 3, s.LevenshteinDistance("kitten", "sitting"))
	assert.Equal(t, 1, s.LevenshteinDistance("احمد", "امد"))
	assert.Equal(t, 1.0, s.Levenshtein("", ""))
	assert.InDelta(t, 0.5, s.Levenshtein("ab", "ac"), 0.0001)
}

func TestScorer_TokenSetSimilarity(t *testing.T) {
	s := NewScorer()

	assert.Equal(t, 1.0, s.TokenSetSimilarity("ali hassan", "hassan ali"))
	assert.Equal(t, 1.0, s.TokenSetSimilarity("", ""))
	assert.Equal(t, 0.0, s.TokenSetSimilarity("ali", ""))
	assert.Less(t, s.TokenSetSimilarity("ali hassan", "omar khaled"), 0.7)
}

func TestScorer_Proximity(t *testing.T) {
	s := NewScorer()

	day := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, 1.0, s.DateProximity(day, day, 10))
	assert.InDelta(t, 0.5, s.DateProximity(day, day.AddDate(0, 0, 5), 10), 0.0001)
	assert.Equal(t, 0.0, s.DateProximity(time.Time{}, day, 10))

	assert.Equal(t, 1.0, s.NumericProximity(3, 3, 2))
	assert.InDelta(t, 0.5, s.NumericProximity(3, 4, 2), 0.0001)
	assert.Equal(t, 0.0, s.NumericProximity(3, 9, 2))
}

func TestScorer_WeightedScore(t *testing.T) {
	s := NewScorer()

	score := s.WeightedScore(
		map[string]float64{"name": 1.0, "birth_year": 0.0},
		map[string]float64{"name": 3, "birth_year": 1},
	)
	assert.InDelta(t, 0.75, score, 0.0001)
	assert.Equal(t, 0.0, s.WeightedScore(nil, nil))
}

func TestHaversineMeters(t *testing.T) {
	assert.InDelta(t, 0.0, HaversineMeters(36.2, 37.1, 36.2, 37.1), 0.001)

	// one thousandth of a degree of latitude is about 111 m
	d := HaversineMeters(36.2, 37.1, 36.201, 37.1)
	assert.InDelta(t, 111.2, d, 0.5)

	s := NewScorer()
	assert.Equal(t, 0.0, s.DistanceProximity(36.2, 37.1, 36.3, 37.1, 50))
	assert.Greater(t, s.DistanceProximity(36.2, 37.1, 36.2001, 37.1, 50), 0.7)
}
