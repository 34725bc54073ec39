package memory

import (
	"context"
	"fmt"
	"maps"
	"path"
	"slices"
	"strings"
	"sync"

	"github.com/tendant/content-model/pkg/contentmodel"
)

// Built-in physical node types
const (
	NodeTypeFolder        = "nt:folder"
	NodeTypeHierarchyNode = "nt:hierarchyNode"
)

// DefaultSearchPaths are the paths below which resource type definitions are looked up
var DefaultSearchPaths = []string{"/apps", "/libs"}

// NodeSpec describes a node to store
type NodeSpec struct {
	ResourceType      string
	ResourceSuperType string
	// NodeType is the physical type; nil stores a synthetic node
	NodeType   *contentmodel.NodeType
	Properties contentmodel.Properties
}

// Entry is a stored node together with its path
type Entry struct {
	Path string
	NodeSpec
}

// Tree implements contentmodel.Tree using in-memory storage
type Tree struct {
	mu          sync.RWMutex
	nodes       map[string]*NodeSpec
	children    map[string][]string // parent path -> ordered child paths
	nodeTypes   map[string][]string // node type -> declared super types
	searchPaths []string
	listeners   []func(path string)
}

// Option configures a Tree
type Option func(*Tree)

// WithSearchPaths replaces the resource type search paths
func WithSearchPaths(paths ...string) Option {
	return func(t *Tree) {
		t.searchPaths = append([]string(nil), paths...)
	}
}

// New creates an empty tree holding only the root node
func New(options ...Option) *Tree {
	t := &Tree{
		nodes:       make(map[string]*NodeSpec),
		children:    make(map[string][]string),
		searchPaths: DefaultSearchPaths,
		nodeTypes: map[string][]string{
			contentmodel.NodeTypeBase:         nil,
			contentmodel.NodeTypeUnstructured: {contentmodel.NodeTypeBase},
			NodeTypeHierarchyNode:             {contentmodel.NodeTypeBase},
			NodeTypeFolder:                    {NodeTypeHierarchyNode},
		},
	}
	for _, option := range options {
		option(t)
	}
	t.nodes["/"] = &NodeSpec{NodeType: &contentmodel.NodeType{Primary: contentmodel.NodeTypeUnstructured}}
	return t
}

// OnChange registers fn to be called with the path of every changed type
// definition, resource types below the search paths and node types alike.
func (t *Tree) OnChange(fn func(path string)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.listeners = append(t.listeners, fn)
}

// Put stores a node at the absolute path p, replacing an existing node but
// keeping its children. Missing ancestors are created as unstructured nodes.
func (t *Tree) Put(p string, spec NodeSpec) error {
	p, err := cleanAbsolute(p)
	if err != nil {
		return err
	}
	if p == "/" {
		return fmt.Errorf("cannot replace the root node")
	}

	stored := spec
	if spec.NodeType != nil {
		nodeType := *spec.NodeType
		nodeType.Mixins = append([]string(nil), spec.NodeType.Mixins...)
		stored.NodeType = &nodeType
	}
	stored.Properties = maps.Clone(spec.Properties)

	t.mu.Lock()
	t.ensureParents(p)
	if _, exists := t.nodes[p]; !exists {
		parent := path.Dir(p)
		t.children[parent] = append(t.children[parent], p)
	}
	t.nodes[p] = &stored
	listeners := t.definitionListeners(p)
	t.mu.Unlock()

	notify(listeners, p)
	return nil
}

// ensureParents creates missing ancestors of p; t.mu must be held
func (t *Tree) ensureParents(p string) {
	parent := path.Dir(p)
	if _, exists := t.nodes[parent]; exists {
		return
	}
	t.ensureParents(parent)
	t.nodes[parent] = &NodeSpec{NodeType: &contentmodel.NodeType{Primary: contentmodel.NodeTypeUnstructured}}
	grandParent := path.Dir(parent)
	t.children[grandParent] = append(t.children[grandParent], parent)
}

// Remove deletes the node at p and its subtree. It reports whether a node was removed.
func (t *Tree) Remove(p string) (bool, error) {
	p, err := cleanAbsolute(p)
	if err != nil {
		return false, err
	}
	if p == "/" {
		return false, fmt.Errorf("cannot remove the root node")
	}

	t.mu.Lock()
	if _, exists := t.nodes[p]; !exists {
		t.mu.Unlock()
		return false, nil
	}
	t.removeSubtree(p)
	parent := path.Dir(p)
	siblings := t.children[parent]
	for i, sibling := range siblings {
		if sibling == p {
			t.children[parent] = append(append([]string(nil), siblings[:i]...), siblings[i+1:]...)
			break
		}
	}
	listeners := t.definitionListeners(p)
	t.mu.Unlock()

	notify(listeners, p)
	return true, nil
}

func (t *Tree) removeSubtree(p string) {
	for _, child := range t.children[p] {
		t.removeSubtree(child)
	}
	delete(t.children, p)
	delete(t.nodes, p)
}

// DefineResourceType stores the definition of resourceType below the first
// search path, declaring superType as its parent type.
func (t *Tree) DefineResourceType(resourceType, superType string) error {
	if resourceType == "" {
		return fmt.Errorf("resource type is empty")
	}
	definition := resourceType
	if !strings.HasPrefix(resourceType, "/") {
		if len(t.searchPaths) == 0 {
			return fmt.Errorf("no search path to define %s in", resourceType)
		}
		definition = path.Join(t.searchPaths[0], resourceType)
	}
	return t.Put(definition, NodeSpec{
		ResourceSuperType: superType,
		NodeType:          &contentmodel.NodeType{Primary: NodeTypeFolder},
	})
}

// DefineNodeType declares the super types of a physical node type
func (t *Tree) DefineNodeType(nodeType string, superTypes ...string) {
	t.mu.Lock()
	t.nodeTypes[nodeType] = append([]string(nil), superTypes...)
	listeners := slices.Clone(t.listeners)
	t.mu.Unlock()

	notify(listeners, nodeType)
}

// definitionListeners returns the listeners to notify about a change at p; t.mu must be held
func (t *Tree) definitionListeners(p string) []func(string) {
	for _, searchPath := range t.searchPaths {
		if p == searchPath || strings.HasPrefix(p, searchPath+"/") {
			return slices.Clone(t.listeners)
		}
	}
	return nil
}

func notify(listeners []func(string), p string) {
	for _, listener := range listeners {
		listener(p)
	}
}

// Entries returns all nodes except the root in depth-first order
func (t *Tree) Entries() []Entry {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var entries []Entry
	var walk func(p string)
	walk = func(p string) {
		for _, child := range t.children[p] {
			entries = append(entries, Entry{Path: child, NodeSpec: *t.nodes[child]})
			walk(child)
		}
	}
	walk("/")
	return entries
}

// NodeTypes returns the declared node types and their super types
func (t *Tree) NodeTypes() map[string][]string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	nodeTypes := make(map[string][]string, len(t.nodeTypes))
	for name, superTypes := range t.nodeTypes {
		nodeTypes[name] = append([]string(nil), superTypes...)
	}
	return nodeTypes
}

// Len returns the number of stored nodes, including the root
func (t *Tree) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.nodes)
}

// Tree operations

func (t *Tree) Get(ctx context.Context, p string) (contentmodel.Node, error) {
	p, err := cleanAbsolute(p)
	if err != nil {
		return nil, err
	}

	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.node(p), nil
}

// node returns the node at the clean path p, or nil; t.mu must be held
func (t *Tree) node(p string) contentmodel.Node {
	spec, exists := t.nodes[p]
	if !exists {
		return nil
	}
	return &Node{tree: t, path: p, spec: spec}
}

func (t *Tree) Resolve(ctx context.Context, base contentmodel.Node, p string) (contentmodel.Node, error) {
	if !strings.HasPrefix(p, "/") {
		if base == nil {
			return nil, contentmodel.ErrNilNode
		}
		p = path.Join(base.Path(), p)
	}
	return t.Get(ctx, p)
}

func (t *Tree) Children(ctx context.Context, node contentmodel.Node) ([]contentmodel.Node, error) {
	if node == nil {
		return nil, contentmodel.ErrNilNode
	}

	t.mu.RLock()
	defer t.mu.RUnlock()

	childPaths := t.children[node.Path()]
	children := make([]contentmodel.Node, 0, len(childPaths))
	for _, child := range childPaths {
		children = append(children, t.node(child))
	}
	return children, nil
}

func (t *Tree) Parent(ctx context.Context, node contentmodel.Node) (contentmodel.Node, error) {
	if node == nil {
		return nil, contentmodel.ErrNilNode
	}
	if node.Path() == "/" {
		return nil, nil
	}
	return t.Get(ctx, path.Dir(node.Path()))
}

func (t *Tree) ParentResourceType(ctx context.Context, resourceType string) (string, error) {
	if resourceType == "" {
		return "", nil
	}

	t.mu.RLock()
	defer t.mu.RUnlock()

	if strings.HasPrefix(resourceType, "/") {
		if spec, exists := t.nodes[path.Clean(resourceType)]; exists {
			return spec.ResourceSuperType, nil
		}
		return "", nil
	}
	for _, searchPath := range t.searchPaths {
		if spec, exists := t.nodes[path.Join(searchPath, resourceType)]; exists {
			return spec.ResourceSuperType, nil
		}
	}
	return "", nil
}

func (t *Tree) NodeSuperTypes(ctx context.Context, nodeType string) ([]string, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return append([]string(nil), t.nodeTypes[nodeType]...), nil
}

func cleanAbsolute(p string) (string, error) {
	if !strings.HasPrefix(p, "/") {
		return "", fmt.Errorf("path %q is not absolute", p)
	}
	return path.Clean(p), nil
}

// Node is a node of a memory Tree. It reflects the state of the node when
// it was read.
type Node struct {
	tree *Tree
	path string
	spec *NodeSpec
}

func (n *Node) Path() string {
	return n.path
}

func (n *Node) Name() string {
	if n.path == "/" {
		return ""
	}
	return path.Base(n.path)
}

// ResourceType returns the declared resource type, falling back to the
// primary node type
func (n *Node) ResourceType() string {
	if n.spec.ResourceType == "" && n.spec.NodeType != nil {
		return n.spec.NodeType.Primary
	}
	return n.spec.ResourceType
}

func (n *Node) ResourceSuperType() string {
	return n.spec.ResourceSuperType
}

func (n *Node) Properties() contentmodel.Properties {
	if n.spec.NodeType == nil && n.spec.Properties == nil {
		return nil
	}
	if n.spec.Properties == nil {
		return contentmodel.Properties{}
	}
	return n.spec.Properties
}

func (n *Node) NodeType() *contentmodel.NodeType {
	return n.spec.NodeType
}

func (n *Node) Tree() contentmodel.Tree {
	return n.tree
}

func (n *Node) String() string {
	return fmt.Sprintf("%s[%s]", n.path, n.ResourceType())
}
