package contentmodel

import (
	"context"
	"log/slog"
	"time"
)

// Hooks extend the service without modifying it. They are called around
// every model mapping and on resolution failures.
type Hooks struct {
	// Mapping lifecycle hooks
	BeforeMap []BeforeMapHook
	AfterMap  []AfterMapHook

	// Request cache hooks
	OnCacheHit []CacheHitHook

	// Error hooks
	OnError []ErrorHook
}

// HookContext carries information through the hook chain
type HookContext struct {
	Context   context.Context
	Metadata  map[string]interface{} // Custom metadata passed between hooks
	StopChain bool                   // Set to true to stop processing remaining hooks
}

// NewHookContext creates a new hook context
func NewHookContext(ctx context.Context) *HookContext {
	return &HookContext{
		Context:  ctx,
		Metadata: make(map[string]interface{}),
	}
}

// BeforeMapHook is called before a model is instantiated for a node. An
// error aborts the mapping.
type BeforeMapHook func(hctx *HookContext, node Node, meta *ModelMetadata) error

// AfterMapHook is called after a model was mapped. Duration is zero for
// nested mappings of a model type already being mapped.
type AfterMapHook func(hctx *HookContext, node Node, meta *ModelMetadata, duration time.Duration) error

// CacheHitHook is called when a model is served from a request cache
type CacheHitHook func(hctx *HookContext, meta *ModelMetadata)

// ErrorHook is called when an operation fails
type ErrorHook func(hctx *HookContext, operation string, err error)

// Merge appends the hooks of other to h
func (h *Hooks) Merge(other *Hooks) {
	if other == nil {
		return
	}
	h.BeforeMap = append(h.BeforeMap, other.BeforeMap...)
	h.AfterMap = append(h.AfterMap, other.AfterMap...)
	h.OnCacheHit = append(h.OnCacheHit, other.OnCacheHit...)
	h.OnError = append(h.OnError, other.OnError...)
}

func (h *Hooks) executeBeforeMap(ctx context.Context, node Node, meta *ModelMetadata) error {
	if len(h.BeforeMap) == 0 {
		return nil
	}

	hctx := NewHookContext(ctx)
	for _, hook := range h.BeforeMap {
		if err := hook(hctx, node, meta); err != nil {
			return err
		}
		if hctx.StopChain {
			break
		}
	}
	return nil
}

func (h *Hooks) executeAfterMap(ctx context.Context, node Node, meta *ModelMetadata, duration time.Duration) error {
	if len(h.AfterMap) == 0 {
		return nil
	}

	hctx := NewHookContext(ctx)
	for _, hook := range h.AfterMap {
		if err := hook(hctx, node, meta, duration); err != nil {
			return err
		}
		if hctx.StopChain {
			break
		}
	}
	return nil
}

func (h *Hooks) executeOnCacheHit(ctx context.Context, meta *ModelMetadata) {
	if len(h.OnCacheHit) == 0 {
		return
	}

	hctx := NewHookContext(ctx)
	for _, hook := range h.OnCacheHit {
		hook(hctx, meta)
		if hctx.StopChain {
			break
		}
	}
}

func (h *Hooks) executeOnError(ctx context.Context, operation string, err error) {
	if len(h.OnError) == 0 {
		return
	}

	hctx := NewHookContext(ctx)
	for _, hook := range h.OnError {
		hook(hctx, operation, err)
		if hctx.StopChain {
			break
		}
	}
}

// LoggingHooks creates hooks that log mappings and failures
func LoggingHooks(logger *slog.Logger) *Hooks {
	return &Hooks{
		AfterMap: []AfterMapHook{
			func(hctx *HookContext, node Node, meta *ModelMetadata, duration time.Duration) error {
				logger.DebugContext(hctx.Context, "model mapped",
					"path", node.Path(), "model", meta.TypeName(), "duration", duration)
				return nil
			},
		},
		OnError: []ErrorHook{
			func(hctx *HookContext, operation string, err error) {
				logger.ErrorContext(hctx.Context, "operation failed", "operation", operation, "error", err)
			},
		},
	}
}
