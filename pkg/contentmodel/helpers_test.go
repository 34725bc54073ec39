package contentmodel_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tendant/content-model/pkg/contentmodel"
	"github.com/tendant/content-model/pkg/contentmodel/tree/memory"
)

var errTreeFailure = errors.New("tree failure")

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func unstructured(mixins ...string) *contentmodel.NodeType {
	return &contentmodel.NodeType{Primary: contentmodel.NodeTypeUnstructured, Mixins: mixins}
}

func put(t *testing.T, tree *memory.Tree, path, resourceType string, props contentmodel.Properties) {
	t.Helper()
	require.NoError(t, tree.Put(path, memory.NodeSpec{
		ResourceType: resourceType,
		NodeType:     unstructured(),
		Properties:   props,
	}))
}

func get(t *testing.T, tree *memory.Tree, path string) contentmodel.Node {
	t.Helper()
	node, err := tree.Get(context.Background(), path)
	require.NoError(t, err)
	require.NotNil(t, node, "no node at %s", path)
	return node
}

func newService(t *testing.T, options ...contentmodel.Option) contentmodel.Service {
	t.Helper()
	svc, err := contentmodel.New(append([]contentmodel.Option{contentmodel.WithLogger(quietLogger())}, options...)...)
	require.NoError(t, err)
	return svc
}

func register(t *testing.T, svc contentmodel.Service, source contentmodel.ModelSource, types ...string) *contentmodel.Registration {
	t.Helper()
	registration, err := svc.Register(types, source)
	require.NoError(t, err)
	return registration
}

// stubNode is a node of an arbitrary tree
type stubNode struct {
	path         string
	resourceType string
	nodeType     *contentmodel.NodeType
	tree         contentmodel.Tree
}

func (n *stubNode) Path() string                        { return n.path }
func (n *stubNode) Name() string                        { return n.path }
func (n *stubNode) ResourceType() string                { return n.resourceType }
func (n *stubNode) ResourceSuperType() string           { return "" }
func (n *stubNode) Properties() contentmodel.Properties { return contentmodel.Properties{} }
func (n *stubNode) NodeType() *contentmodel.NodeType    { return n.nodeType }
func (n *stubNode) Tree() contentmodel.Tree             { return n.tree }

// failingTree fails every type hierarchy query
type failingTree struct {
	contentmodel.Tree
}

func (failingTree) ParentResourceType(context.Context, string) (string, error) {
	return "", errTreeFailure
}

func (failingTree) NodeSuperTypes(context.Context, string) ([]string, error) {
	return nil, errTreeFailure
}
