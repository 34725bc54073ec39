// Package snapshot serializes content trees as YAML documents and stores
// them in pluggable backends.
package snapshot

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"

	"github.com/tendant/content-model/pkg/contentmodel"
	"github.com/tendant/content-model/pkg/contentmodel/tree/memory"
	"gopkg.in/yaml.v3"
)

// ContentType is the media type of encoded documents
const ContentType = "application/yaml"

var (
	// ErrNotFound is returned when a store holds no snapshot of the requested name
	ErrNotFound = errors.New("snapshot not found")
	// ErrInvalidName is returned for empty or path-like snapshot names
	ErrInvalidName = errors.New("invalid snapshot name")
)

// Store persists snapshot documents by name
type Store interface {
	Save(ctx context.Context, name string, doc *Document) error
	Load(ctx context.Context, name string) (*Document, error)
	Delete(ctx context.Context, name string) error
	List(ctx context.Context) ([]string, error)
}

// Document is the serialized form of a content tree
type Document struct {
	SearchPaths []string            `yaml:"searchPaths,omitempty"`
	NodeTypes   map[string][]string `yaml:"nodeTypes,omitempty"`
	Nodes       []NodeDocument      `yaml:"nodes"`
}

// NodeDocument is one serialized node. A node without NodeType is synthetic.
type NodeDocument struct {
	Path              string                  `yaml:"path"`
	ResourceType      string                  `yaml:"resourceType,omitempty"`
	ResourceSuperType string                  `yaml:"resourceSuperType,omitempty"`
	NodeType          string                  `yaml:"nodeType,omitempty"`
	Mixins            []string                `yaml:"mixins,omitempty"`
	Properties        contentmodel.Properties `yaml:"properties,omitempty"`
}

// Export captures the nodes and node type declarations of tree
func Export(tree *memory.Tree, searchPaths ...string) *Document {
	doc := &Document{
		SearchPaths: searchPaths,
		NodeTypes:   tree.NodeTypes(),
	}
	for _, entry := range tree.Entries() {
		node := NodeDocument{
			Path:              entry.Path,
			ResourceType:      entry.ResourceType,
			ResourceSuperType: entry.ResourceSuperType,
			Properties:        entry.Properties,
		}
		if entry.NodeType != nil {
			node.NodeType = entry.NodeType.Primary
			node.Mixins = entry.NodeType.Mixins
		}
		doc.Nodes = append(doc.Nodes, node)
	}
	return doc
}

// Tree builds a new memory tree from the document
func (d *Document) Tree(options ...memory.Option) (*memory.Tree, error) {
	if len(d.SearchPaths) > 0 {
		options = append([]memory.Option{memory.WithSearchPaths(d.SearchPaths...)}, options...)
	}
	tree := memory.New(options...)
	if err := d.Apply(tree); err != nil {
		return nil, err
	}
	return tree, nil
}

// Apply writes the node types and nodes of the document into tree. Nodes
// are written in document order; missing ancestors are created.
func (d *Document) Apply(tree *memory.Tree) error {
	names := make([]string, 0, len(d.NodeTypes))
	for name := range d.NodeTypes {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		tree.DefineNodeType(name, d.NodeTypes[name]...)
	}

	for i, node := range d.Nodes {
		spec := memory.NodeSpec{
			ResourceType:      node.ResourceType,
			ResourceSuperType: node.ResourceSuperType,
			Properties:        node.Properties,
		}
		if node.NodeType != "" {
			spec.NodeType = &contentmodel.NodeType{Primary: node.NodeType, Mixins: node.Mixins}
		}
		if err := tree.Put(node.Path, spec); err != nil {
			return fmt.Errorf("node %d: %w", i, err)
		}
	}
	return nil
}

// Encode writes doc as YAML
func Encode(w io.Writer, doc *Document) error {
	encoder := yaml.NewEncoder(w)
	encoder.SetIndent(2)
	if err := encoder.Encode(doc); err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}
	return encoder.Close()
}

// Decode reads a YAML document
func Decode(r io.Reader) (*Document, error) {
	var doc Document
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return &doc, nil
		}
		return nil, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	return &doc, nil
}
