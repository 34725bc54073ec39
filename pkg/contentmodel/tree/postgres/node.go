package postgres

import (
	"fmt"
	"path"

	"github.com/tendant/content-model/pkg/contentmodel"
)

// Node is a node read from a postgres Tree. It reflects the row at the time
// it was read.
type Node struct {
	tree              *Tree
	path              string
	resourceType      string
	resourceSuperType string
	nodeType          *contentmodel.NodeType
	properties        contentmodel.Properties
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
	if n.resourceType == "" && n.nodeType != nil {
		return n.nodeType.Primary
	}
	return n.resourceType
}

func (n *Node) ResourceSuperType() string {
	return n.resourceSuperType
}

func (n *Node) Properties() contentmodel.Properties {
	return n.properties
}

func (n *Node) NodeType() *contentmodel.NodeType {
	return n.nodeType
}

func (n *Node) Tree() contentmodel.Tree {
	return n.tree
}

func (n *Node) String() string {
	return fmt.Sprintf("%s[%s]", n.path, n.ResourceType())
}
