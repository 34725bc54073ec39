package contentmodel

import (
	"sync"
	"time"
)

// durationBuckets is the number of mapping duration histogram intervals.
// Interval i covers [2^(i-1), 2^i) milliseconds, interval 0 covers [0, 1);
// the last interval also receives all longer durations.
const durationBuckets = 16

var durationBoundaries = func() [durationBuckets]int64 {
	var boundaries [durationBuckets]int64
	boundary := int64(1)
	for i := range boundaries {
		boundaries[i] = boundary
		boundary *= 2
	}
	return boundaries
}()

// ModelStatistics records runtime statistics of one model type
type ModelStatistics struct {
	mu             sync.Mutex
	since          time.Time
	instantiations int64
	mappings       int64
	cacheHits      int64
	frequencies    [durationBuckets]int64
}

// StatisticsSnapshot is a consistent copy of ModelStatistics
type StatisticsSnapshot struct {
	Since              time.Time `json:"since"`
	Instantiations     int64     `json:"instantiations"`
	SubsequentMappings int64     `json:"subsequent_mappings"`
	CacheHits          int64     `json:"cache_hits"`
	Frequencies        []int64   `json:"duration_frequencies"`
	Boundaries         []int64   `json:"duration_boundaries_ms"`
	AverageDuration    float64   `json:"average_duration_ms"`
	TotalDuration      float64   `json:"total_duration_ms"`
	MedianDuration     float64   `json:"median_duration_ms"`
	MinimumDuration    float64   `json:"minimum_duration_ms"`
	MaximumDuration    float64   `json:"maximum_duration_ms"`
}

func newModelStatistics() *ModelStatistics {
	return &ModelStatistics{since: time.Now().UTC()}
}

// CountInstantiation records a new model instance
func (s *ModelStatistics) CountInstantiation() {
	s.mu.Lock()
	s.instantiations++
	s.mu.Unlock()
}

// CountSubsequentMapping records a mapping nested in a mapping of this model
func (s *ModelStatistics) CountSubsequentMapping() {
	s.mu.Lock()
	s.mappings++
	s.mu.Unlock()
}

// CountCacheHit records a model served from a cache
func (s *ModelStatistics) CountCacheHit() {
	s.mu.Lock()
	s.cacheHits++
	s.mu.Unlock()
}

// CountMappingDuration adds d to the duration histogram
func (s *ModelStatistics) CountMappingDuration(d time.Duration) {
	ms := d.Milliseconds()
	index := durationBuckets - 1
	for i, boundary := range durationBoundaries {
		if ms < boundary {
			index = i
			break
		}
	}
	s.mu.Lock()
	s.frequencies[index]++
	s.mu.Unlock()
}

// Reset clears all counters
func (s *ModelStatistics) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.since = time.Now().UTC()
	s.instantiations = 0
	s.mappings = 0
	s.cacheHits = 0
	s.frequencies = [durationBuckets]int64{}
}

// Snapshot returns the current statistics. Durations are approximated by the
// mean of the histogram interval they fell into.
func (s *ModelStatistics) Snapshot() StatisticsSnapshot {
	s.mu.Lock()
	frequencies := s.frequencies
	snapshot := StatisticsSnapshot{
		Since:              s.since,
		Instantiations:     s.instantiations,
		SubsequentMappings: s.mappings,
		CacheHits:          s.cacheHits,
	}
	s.mu.Unlock()

	h := histogram(frequencies)
	snapshot.Frequencies = frequencies[:]
	snapshot.Boundaries = append([]int64(nil), durationBoundaries[:]...)
	snapshot.TotalDuration = h.total()
	snapshot.AverageDuration = h.average()
	snapshot.MedianDuration = h.median()
	snapshot.MinimumDuration = h.minimum()
	snapshot.MaximumDuration = h.maximum()
	return snapshot
}

type histogram [durationBuckets]int64

func intervalMean(i int) float64 {
	left := int64(0)
	if i > 0 {
		left = durationBoundaries[i-1]
	}
	return float64(left+durationBoundaries[i]) / 2
}

func (h histogram) samples() int64 {
	var n int64
	for _, f := range h {
		n += f
	}
	return n
}

func (h histogram) total() float64 {
	var total float64
	for i, f := range h {
		total += intervalMean(i) * float64(f)
	}
	return total
}

func (h histogram) average() float64 {
	n := h.samples()
	if n == 0 {
		return 0
	}
	return h.total() / float64(n)
}

// durationOf returns the approximated duration of the nth (1-based) sample
func (h histogram) durationOf(nth int64) float64 {
	var seen int64
	for i, f := range h {
		seen += f
		if seen >= nth {
			return intervalMean(i)
		}
	}
	return 0
}

func (h histogram) median() float64 {
	n := h.samples()
	if n == 0 {
		return 0
	}
	if n%2 == 1 {
		return h.durationOf((n + 1) / 2)
	}
	return (h.durationOf(n/2) + h.durationOf(n/2+1)) / 2
}

func (h histogram) minimum() float64 {
	for i, f := range h {
		if f != 0 {
			return intervalMean(i)
		}
	}
	return 0
}

func (h histogram) maximum() float64 {
	for i := len(h) - 1; i >= 0; i-- {
		if h[i] != 0 {
			return intervalMean(i)
		}
	}
	return 0
}
