package contentmodel

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestModelStatistics(t *testing.T) {
	t.Run("Counters", func(t *testing.T) {
		stats := newModelStatistics()
		stats.CountInstantiation()
		stats.CountInstantiation()
		stats.CountSubsequentMapping()
		stats.CountCacheHit()

		snapshot := stats.Snapshot()
		assert.EqualValues(t, 2, snapshot.Instantiations)
		assert.EqualValues(t, 1, snapshot.SubsequentMappings)
		assert.EqualValues(t, 1, snapshot.CacheHits)
		assert.Len(t, snapshot.Frequencies, durationBuckets)
		assert.Len(t, snapshot.Boundaries, durationBuckets)
	})

	t.Run("DurationHistogram", func(t *testing.T) {
		stats := newModelStatistics()
		stats.CountMappingDuration(0)                      // [0, 1)
		stats.CountMappingDuration(3 * time.Millisecond)   // [2, 4)
		stats.CountMappingDuration(3 * time.Millisecond)   // [2, 4)
		stats.CountMappingDuration(100 * time.Millisecond) // [64, 128)

		snapshot := stats.Snapshot()
		assert.EqualValues(t, 1, snapshot.Frequencies[0])
		assert.EqualValues(t, 2, snapshot.Frequencies[2])
		assert.EqualValues(t, 1, snapshot.Frequencies[7])

		assert.Equal(t, 0.5, snapshot.MinimumDuration)
		assert.Equal(t, 96.0, snapshot.MaximumDuration)
		assert.Equal(t, 3.0, snapshot.MedianDuration)
		assert.Equal(t, 0.5+3+3+96, snapshot.TotalDuration)
		assert.Equal(t, (0.5+3+3+96)/4, snapshot.AverageDuration)
	})

	t.Run("EvenMedian", func(t *testing.T) {
		stats := newModelStatistics()
		stats.CountMappingDuration(0)
		stats.CountMappingDuration(5 * time.Millisecond) // [4, 8)

		assert.Equal(t, (0.5+6)/2, stats.Snapshot().MedianDuration)
	})

	t.Run("LongDurationsFallIntoTheLastInterval", func(t *testing.T) {
		stats := newModelStatistics()
		stats.CountMappingDuration(time.Hour)
		assert.EqualValues(t, 1, stats.Snapshot().Frequencies[durationBuckets-1])
	})

	t.Run("Empty", func(t *testing.T) {
		snapshot := newModelStatistics().Snapshot()
		assert.Zero(t, snapshot.AverageDuration)
		assert.Zero(t, snapshot.MedianDuration)
		assert.Zero(t, snapshot.MinimumDuration)
		assert.Zero(t, snapshot.MaximumDuration)
	})

	t.Run("Reset", func(t *testing.T) {
		stats := newModelStatistics()
		stats.CountInstantiation()
		stats.CountMappingDuration(time.Millisecond)
		stats.Reset()

		snapshot := stats.Snapshot()
		assert.Zero(t, snapshot.Instantiations)
		assert.Zero(t, snapshot.TotalDuration)
	})
}
