package contentmodel

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"
)

// ContentNodeName is the name of the child holding the content of a page.
// Safe mode keys treat a page and its content node as one resource.
const ContentNodeName = "jcr:content"

// CacheKey identifies one resolution of a node
type CacheKey struct {
	Path             string
	Tree             string
	ResourceType     string
	Query            string
	Param            string
	IncludeBaseTypes bool
}

func (k CacheKey) String() string {
	s := fmt.Sprintf("%s[%s] %s(%s)", k.Path, k.ResourceType, k.Query, k.Param)
	if k.IncludeBaseTypes {
		s += "+base"
	}
	return s
}

func newCacheKey(node Node, query, param string, includeBaseTypes bool) CacheKey {
	return CacheKey{
		Path:             node.Path(),
		Tree:             treeIdentity(node.Tree()),
		ResourceType:     node.ResourceType(),
		Query:            query,
		Param:            param,
		IncludeBaseTypes: includeBaseTypes,
	}
}

func treeIdentity(tree Tree) string {
	if tree == nil {
		return ""
	}
	v := reflect.ValueOf(tree)
	if v.Kind() == reflect.Pointer {
		return fmt.Sprintf("%T@%x", tree, v.Pointer())
	}
	return fmt.Sprintf("%T", tree)
}

type requestCacheKey struct {
	CacheKey
	discriminator string
}

type cacheEntry struct {
	model    any
	metadata *ModelMetadata
}

// RequestCache caches resolved models, including negative results, for the
// duration of one request. It is safe for concurrent use.
type RequestCache struct {
	mu            sync.Mutex
	disabled      bool
	discriminator string
	entries       map[requestCacheKey]cacheEntry
	statistics    *KeyStatistics
}

// RequestCacheOption configures a RequestCache
type RequestCacheOption func(*RequestCache)

// WithCacheDisabled turns the cache into a no-op
func WithCacheDisabled() RequestCacheOption {
	return func(c *RequestCache) {
		c.disabled = true
	}
}

// WithSafeMode folds discriminator into every key, scoping cached models to
// a specific request state. See SafeModeDiscriminator.
func WithSafeMode(discriminator string) RequestCacheOption {
	return func(c *RequestCache) {
		c.discriminator = discriminator
	}
}

// WithKeyStatistics records hits, misses and writes per key in stats
func WithKeyStatistics(stats *KeyStatistics) RequestCacheOption {
	return func(c *RequestCache) {
		c.statistics = stats
	}
}

// NewRequestCache creates an empty request cache
func NewRequestCache(opts ...RequestCacheOption) *RequestCache {
	c := &RequestCache{entries: make(map[requestCacheKey]cacheEntry)}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SafeModeDiscriminator returns the request state safe mode keys depend on:
// the requested resource path up to its content node, and the query string.
func SafeModeDiscriminator(resourcePath, rawQuery string) string {
	if i := strings.Index(resourcePath, "/"+ContentNodeName); i >= 0 {
		resourcePath = resourcePath[:i]
	}
	if rawQuery == "" {
		return resourcePath
	}
	return resourcePath + "?" + rawQuery
}

// Enabled reports whether the cache stores anything
func (c *RequestCache) Enabled() bool {
	return c != nil && !c.disabled
}

// Len returns the number of cached entries
func (c *RequestCache) Len() int {
	if c == nil {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *RequestCache) get(key CacheKey) (cacheEntry, bool) {
	if !c.Enabled() {
		return cacheEntry{}, false
	}
	c.mu.Lock()
	entry, ok := c.entries[requestCacheKey{CacheKey: key, discriminator: c.discriminator}]
	c.mu.Unlock()

	if ok {
		c.statistics.reportHit(key)
	} else {
		c.statistics.reportMiss(key)
	}
	return entry, ok
}

func (c *RequestCache) put(key CacheKey, entry cacheEntry) {
	if !c.Enabled() {
		return
	}
	c.mu.Lock()
	c.entries[requestCacheKey{CacheKey: key, discriminator: c.discriminator}] = entry
	c.mu.Unlock()
	c.statistics.reportWrite(key)
}

type requestCacheContextKey struct{}

// WithRequestCache attaches cache to ctx
func WithRequestCache(ctx context.Context, cache *RequestCache) context.Context {
	return context.WithValue(ctx, requestCacheContextKey{}, cache)
}

// RequestCacheFrom returns the request cache attached to ctx, or nil
func RequestCacheFrom(ctx context.Context) *RequestCache {
	cache, _ := ctx.Value(requestCacheContextKey{}).(*RequestCache)
	return cache
}

// KeyReport holds the counters of one cache key
type KeyReport struct {
	Key    string `json:"key"`
	Hits   int64  `json:"hits"`
	Misses int64  `json:"misses"`
	Writes int64  `json:"writes"`
}

// ReportSummary totals the counters of all keys
type ReportSummary struct {
	Keys   int   `json:"keys"`
	Hits   int64 `json:"hits"`
	Misses int64 `json:"misses"`
	Writes int64 `json:"writes"`
}

// KeyStatistics counts request cache hits, misses and writes per key. It may
// be shared by the caches of many requests.
type KeyStatistics struct {
	mu      sync.Mutex
	reports map[CacheKey]*KeyReport
}

// NewKeyStatistics creates empty key statistics
func NewKeyStatistics() *KeyStatistics {
	return &KeyStatistics{reports: make(map[CacheKey]*KeyReport)}
}

func (s *KeyStatistics) report(key CacheKey) *KeyReport {
	r, ok := s.reports[key]
	if !ok {
		r = &KeyReport{Key: key.String()}
		s.reports[key] = r
	}
	return r
}

func (s *KeyStatistics) reportHit(key CacheKey) {
	if s == nil {
		return
	}
	s.mu.Lock()
	s.report(key).Hits++
	s.mu.Unlock()
}

func (s *KeyStatistics) reportMiss(key CacheKey) {
	if s == nil {
		return
	}
	s.mu.Lock()
	s.report(key).Misses++
	s.mu.Unlock()
}

func (s *KeyStatistics) reportWrite(key CacheKey) {
	if s == nil {
		return
	}
	s.mu.Lock()
	s.report(key).Writes++
	s.mu.Unlock()
}

// Reports returns a copy of the per key counters ordered by key
func (s *KeyStatistics) Reports() []KeyReport {
	s.mu.Lock()
	reports := make([]KeyReport, 0, len(s.reports))
	for _, r := range s.reports {
		reports = append(reports, *r)
	}
	s.mu.Unlock()

	sort.Slice(reports, func(i, j int) bool { return reports[i].Key < reports[j].Key })
	return reports
}

// Summary totals all counters
func (s *KeyStatistics) Summary() ReportSummary {
	s.mu.Lock()
	defer s.mu.Unlock()

	summary := ReportSummary{Keys: len(s.reports)}
	for _, r := range s.reports {
		summary.Hits += r.Hits
		summary.Misses += r.Misses
		summary.Writes += r.Writes
	}
	return summary
}

// Reset drops all counters
func (s *KeyStatistics) Reset() {
	s.mu.Lock()
	s.reports = make(map[CacheKey]*KeyReport)
	s.mu.Unlock()
}
