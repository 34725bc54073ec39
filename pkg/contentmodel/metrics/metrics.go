// Package metrics publishes model mapping metrics through gmetric.
package metrics

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/tendant/content-model/pkg/contentmodel"
	"github.com/viant/gmetric"
	"github.com/viant/gmetric/counter"
	"github.com/viant/gmetric/provider"
)

// DefaultURI is the path the metrics handler is usually mounted at
const DefaultURI = "/v1/api/metric/"

const location = "contentmodel"

// Counter is the part of a gmetric operation the recorder uses
type Counter interface {
	Begin(started time.Time) counter.OnDone
	IncrementValue(value interface{}) int64
}

// Recorder maintains one gmetric operation per model type and event
type Recorder struct {
	mu         sync.Mutex
	service    *gmetric.Service
	operations map[string]*gmetric.Operation
}

// New creates a recorder; a nil service creates a private one
func New(service *gmetric.Service) *Recorder {
	if service == nil {
		service = gmetric.New()
	}
	return &Recorder{service: service, operations: make(map[string]*gmetric.Operation)}
}

// Service returns the underlying gmetric service
func (r *Recorder) Service() *gmetric.Service {
	return r.service
}

// Handler serves the recorded operations below uri
func (r *Recorder) Handler(uri string) http.Handler {
	return gmetric.NewHandler(uri, r.service)
}

// Hooks returns service hooks recording mapping durations, request cache
// hits and failures.
func (r *Recorder) Hooks() *contentmodel.Hooks {
	return &contentmodel.Hooks{
		AfterMap: []contentmodel.AfterMapHook{
			func(hctx *contentmodel.HookContext, node contentmodel.Node, meta *contentmodel.ModelMetadata, duration time.Duration) error {
				end := time.Now()
				onDone := r.Counter(OperationName(meta.TypeName(), "mapping"), meta.TypeName()+" mapping").Begin(end.Add(-duration))
				onDone(end)
				return nil
			},
		},
		OnCacheHit: []contentmodel.CacheHitHook{
			func(hctx *contentmodel.HookContext, meta *contentmodel.ModelMetadata) {
				now := time.Now()
				r.Counter(OperationName(meta.TypeName(), "cache"), meta.TypeName()+" request cache hits").Begin(now)(now)
			},
		},
		OnError: []contentmodel.ErrorHook{
			func(hctx *contentmodel.HookContext, operation string, err error) {
				now := time.Now()
				r.Counter(OperationName(operation, "error"), operation+" failures").Begin(now)(now, err)
			},
		},
	}
}

// Counter returns the operation name, creating it on first use. Operations
// are kept by the recorder since gmetric lookups return copies.
func (r *Recorder) Counter(name, title string) Counter {
	r.mu.Lock()
	defer r.mu.Unlock()
	if operation, ok := r.operations[name]; ok {
		return operation
	}
	operation := r.service.MultiOperationCounter(location, name, title, time.Millisecond, time.Minute, 2, provider.NewBasic())
	r.operations[name] = operation
	return operation
}

// OperationName builds a dotted metric name from a model type name and an event
func OperationName(typeName, event string) string {
	name := strings.NewReplacer("/", ".", "*", "", " ", "_").Replace(typeName)
	return location + "." + name + "." + event
}
