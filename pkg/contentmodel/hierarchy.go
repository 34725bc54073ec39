package contentmodel

import (
	"context"
	"fmt"
)

// TypeHierarchy walks the type names a node can be mapped by, most specific
// first: the resource type and its declared super types, then, for nodes
// backed by a physical node, the primary type, the mixin types and all
// declared super types of those in breadth-first order.
//
// A TypeHierarchy is single use:
//
//	h := NewTypeHierarchy(ctx, node)
//	for h.Next() {
//	    fmt.Println(h.Type())
//	}
//	if err := h.Err(); err != nil {
//	    ...
//	}
type TypeHierarchy struct {
	ctx       context.Context
	tree      Tree
	nodeType  *NodeType
	synthetic bool

	phase   int
	current string
	started bool
	visited map[string]struct{}

	nodeStarted bool
	queue       []string
	seen        map[string]struct{}

	typ string
	err error
}

const (
	phaseResourceTypes = iota
	phaseNodeTypes
	phaseDone
)

// NewTypeHierarchy returns a walker over the mappable types of node
func NewTypeHierarchy(ctx context.Context, node Node) *TypeHierarchy {
	h := &TypeHierarchy{
		ctx:     ctx,
		visited: make(map[string]struct{}),
		seen:    make(map[string]struct{}),
	}
	if node == nil {
		h.err = ErrNilNode
		h.phase = phaseDone
		return h
	}
	h.tree = node.Tree()
	h.nodeType = node.NodeType()
	h.synthetic = h.nodeType == nil

	resourceType := node.ResourceType()
	if h.nodeType != nil && resourceType == h.nodeType.Primary {
		// the resource type fell back to the node type; only the node
		// type hierarchy applies
		resourceType = ""
	}
	h.current = resourceType
	return h
}

// Next advances to the next type name. It returns false when the hierarchy
// is exhausted or an error occurred.
func (h *TypeHierarchy) Next() bool {
	for h.phase != phaseDone {
		var ok bool
		switch h.phase {
		case phaseResourceTypes:
			ok = h.nextResourceType()
			if !ok && h.err == nil {
				h.phase = phaseNodeTypes
				continue
			}
		case phaseNodeTypes:
			ok = h.nextNodeType()
		}
		if ok {
			return true
		}
		h.phase = phaseDone
	}
	return false
}

// Type returns the current type name
func (h *TypeHierarchy) Type() string {
	return h.typ
}

// Err returns the error that stopped the walk, if any
func (h *TypeHierarchy) Err() error {
	return h.err
}

func (h *TypeHierarchy) nextResourceType() bool {
	if !h.started {
		h.started = true
		// a node without a resource type has no chain to close with the synthetic root
		if h.current == "" {
			return false
		}
		return h.emitResourceType(h.current)
	}
	if h.current == "" || h.current == SyntheticResourceTypeRoot {
		return false
	}

	if h.tree == nil {
		h.err = ErrNoTree
		return false
	}
	parent, err := h.tree.ParentResourceType(h.ctx, h.current)
	if err != nil {
		h.err = fmt.Errorf("failed to resolve super type of %s: %w", h.current, err)
		return false
	}
	if _, cyclic := h.visited[parent]; cyclic {
		parent = ""
	}
	if parent == "" && h.synthetic {
		parent = SyntheticResourceTypeRoot
	}
	if parent == "" {
		h.current = ""
		return false
	}
	return h.emitResourceType(parent)
}

func (h *TypeHierarchy) emitResourceType(typeName string) bool {
	h.current = typeName
	h.visited[typeName] = struct{}{}
	h.typ = typeName
	return true
}

func (h *TypeHierarchy) nextNodeType() bool {
	if h.nodeType == nil {
		return false
	}
	if !h.nodeStarted {
		h.nodeStarted = true
		h.current = ""
		h.seen[h.nodeType.Primary] = struct{}{}
		for _, mixin := range h.nodeType.Mixins {
			h.enqueue(mixin)
		}
		if h.nodeType.Primary != "" {
			h.current = h.nodeType.Primary
			h.typ = h.current
			return true
		}
	}

	if h.current != "" {
		if h.tree == nil {
			h.err = ErrNoTree
			return false
		}
		superTypes, err := h.tree.NodeSuperTypes(h.ctx, h.current)
		if err != nil {
			h.err = fmt.Errorf("failed to resolve super types of node type %s: %w", h.current, err)
			return false
		}
		for _, superType := range superTypes {
			h.enqueue(superType)
		}
	}
	if len(h.queue) == 0 {
		return false
	}
	h.current = h.queue[0]
	h.queue = h.queue[1:]
	h.typ = h.current
	return true
}

func (h *TypeHierarchy) enqueue(typeName string) {
	if typeName == "" {
		return
	}
	if _, ok := h.seen[typeName]; ok {
		return
	}
	h.seen[typeName] = struct{}{}
	h.queue = append(h.queue, typeName)
}

// Types drains the hierarchy of node into a slice
func Types(ctx context.Context, node Node) ([]string, error) {
	var types []string
	h := NewTypeHierarchy(ctx, node)
	for h.Next() {
		types = append(types, h.Type())
	}
	return types, h.Err()
}
