package contentmodel

import (
	"context"
	"fmt"
	"sync"
)

// Mapping is a node being mapped onto a model. Two mappings are the same
// when they map the same path with the same model metadata.
type Mapping struct {
	Path         string
	Metadata     *ModelMetadata
	ResolvedType string

	mu    sync.Mutex
	model any
}

// Model returns the instance under construction, nil until instantiated
func (m *Mapping) Model() any {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.model
}

func (m *Mapping) setModel(model any) {
	m.mu.Lock()
	m.model = model
	m.mu.Unlock()
}

func (m *Mapping) String() string {
	return fmt.Sprintf("%s -> %s", m.Path, m.Metadata.TypeName())
}

type mappingKey struct {
	path     string
	metadata *ModelMetadata
}

func (m *Mapping) key() mappingKey {
	return mappingKey{path: m.Path, metadata: m.Metadata}
}

// mappingStack tracks the mappings in flight within one call tree
type mappingStack struct {
	mu        sync.Mutex
	ongoing   map[mappingKey]*Mapping
	order     []*Mapping
	counts    map[*ModelMetadata]int
	reentered map[*ModelMetadata]struct{}
}

type mappingStackKey struct{}

func newMappingStack() *mappingStack {
	return &mappingStack{
		ongoing:   make(map[mappingKey]*Mapping),
		counts:    make(map[*ModelMetadata]int),
		reentered: make(map[*ModelMetadata]struct{}),
	}
}

// withMappingStack returns a context carrying a mapping stack. A context
// that already carries one is returned unchanged.
func withMappingStack(ctx context.Context) context.Context {
	if mappingStackFrom(ctx) != nil {
		return ctx
	}
	return context.WithValue(ctx, mappingStackKey{}, newMappingStack())
}

func mappingStackFrom(ctx context.Context) *mappingStack {
	stack, _ := ctx.Value(mappingStackKey{}).(*mappingStack)
	return stack
}

// begin registers m as ongoing. If an equal mapping is already in flight it
// is returned and m is not registered.
func begin(ctx context.Context, m *Mapping) *Mapping {
	stack := mappingStackFrom(ctx)
	if stack == nil {
		return nil
	}
	stack.mu.Lock()
	defer stack.mu.Unlock()

	if existing, ok := stack.ongoing[m.key()]; ok {
		stack.countReentry(m.Metadata)
		return existing
	}
	stack.ongoing[m.key()] = m
	stack.order = append(stack.order, m)
	stack.counts[m.Metadata]++
	if stack.counts[m.Metadata] > 1 {
		stack.countReentry(m.Metadata)
	}
	return nil
}

// countReentry counts a subsequent mapping of meta once per call tree; stack.mu must be held
func (stack *mappingStack) countReentry(meta *ModelMetadata) {
	if _, counted := stack.reentered[meta]; counted {
		return
	}
	stack.reentered[meta] = struct{}{}
	meta.Statistics.CountSubsequentMapping()
}

// end removes m from the ongoing mappings
func end(ctx context.Context, m *Mapping) {
	stack := mappingStackFrom(ctx)
	if stack == nil {
		return
	}
	stack.mu.Lock()
	defer stack.mu.Unlock()

	if stack.ongoing[m.key()] != m {
		return
	}
	delete(stack.ongoing, m.key())
	for i := len(stack.order) - 1; i >= 0; i-- {
		if stack.order[i] == m {
			stack.order = append(stack.order[:i], stack.order[i+1:]...)
			break
		}
	}
	if stack.counts[m.Metadata]--; stack.counts[m.Metadata] <= 0 {
		delete(stack.counts, m.Metadata)
	}
}

// hasOngoingMapping reports whether a model of meta is being mapped in the call tree
func hasOngoingMapping(ctx context.Context, meta *ModelMetadata) bool {
	stack := mappingStackFrom(ctx)
	if stack == nil {
		return false
	}
	stack.mu.Lock()
	defer stack.mu.Unlock()
	return stack.counts[meta] > 0
}

// peek returns the innermost ongoing mapping, or nil
func peek(ctx context.Context) *Mapping {
	stack := mappingStackFrom(ctx)
	if stack == nil {
		return nil
	}
	stack.mu.Lock()
	defer stack.mu.Unlock()
	if len(stack.order) == 0 {
		return nil
	}
	return stack.order[len(stack.order)-1]
}

// OngoingMappings returns the mappings in flight in the call tree of ctx,
// outermost first.
func OngoingMappings(ctx context.Context) []*Mapping {
	stack := mappingStackFrom(ctx)
	if stack == nil {
		return nil
	}
	stack.mu.Lock()
	defer stack.mu.Unlock()
	return append([]*Mapping(nil), stack.order...)
}
