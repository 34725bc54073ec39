package memory_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/content-model/pkg/contentmodel"
	"github.com/tendant/content-model/pkg/contentmodel/tree/memory"
)

func unstructured() *contentmodel.NodeType {
	return &contentmodel.NodeType{Primary: contentmodel.NodeTypeUnstructured}
}

func TestTree_PutGet(t *testing.T) {
	ctx := context.Background()
	tree := memory.New()

	props := contentmodel.Properties{"title": "Home"}
	require.NoError(t, tree.Put("/content/site/home", memory.NodeSpec{
		ResourceType: "app/page",
		NodeType:     unstructured(),
		Properties:   props,
	}))
	props["title"] = "changed"

	node, err := tree.Get(ctx, "/content/site/home/")
	require.NoError(t, err)
	require.NotNil(t, node)
	assert.Equal(t, "/content/site/home", node.Path())
	assert.Equal(t, "home", node.Name())
	assert.Equal(t, "app/page", node.ResourceType())
	assert.Equal(t, "Home", node.Properties().String("title"), "stored properties are copied")
	assert.Same(t, tree, node.Tree())

	t.Run("AncestorsAreCreated", func(t *testing.T) {
		parent, err := tree.Get(ctx, "/content/site")
		require.NoError(t, err)
		require.NotNil(t, parent)
		assert.Equal(t, contentmodel.NodeTypeUnstructured, parent.ResourceType())
		assert.Equal(t, contentmodel.Properties{}, parent.Properties())
		assert.Equal(t, 4, tree.Len())
	})

	t.Run("MissingNode", func(t *testing.T) {
		node, err := tree.Get(ctx, "/nothing")
		require.NoError(t, err)
		assert.Nil(t, node)
	})

	t.Run("RelativePathsAreRejected", func(t *testing.T) {
		_, err := tree.Get(ctx, "content")
		assert.Error(t, err)
		assert.Error(t, tree.Put("content", memory.NodeSpec{}))
		assert.Error(t, tree.Put("/", memory.NodeSpec{}))
	})

	t.Run("SyntheticNodes", func(t *testing.T) {
		require.NoError(t, tree.Put("/virtual", memory.NodeSpec{ResourceType: "app/virtual"}))
		node, err := tree.Get(ctx, "/virtual")
		require.NoError(t, err)
		assert.Nil(t, node.NodeType())
		assert.Nil(t, node.Properties())
	})
}

func TestTree_Navigation(t *testing.T) {
	ctx := context.Background()
	tree := memory.New()
	for _, p := range []string{"/content/a", "/content/b", "/content/a/x"} {
		require.NoError(t, tree.Put(p, memory.NodeSpec{NodeType: unstructured()}))
	}
	content, err := tree.Get(ctx, "/content")
	require.NoError(t, err)

	t.Run("Children", func(t *testing.T) {
		children, err := tree.Children(ctx, content)
		require.NoError(t, err)
		require.Len(t, children, 2)
		assert.Equal(t, "/content/a", children[0].Path())
		assert.Equal(t, "/content/b", children[1].Path())
	})

	t.Run("Resolve", func(t *testing.T) {
		node, err := tree.Resolve(ctx, content, "a/x")
		require.NoError(t, err)
		require.NotNil(t, node)
		assert.Equal(t, "/content/a/x", node.Path())

		node, err = tree.Resolve(ctx, content, "../content/b")
		require.NoError(t, err)
		require.NotNil(t, node)
		assert.Equal(t, "/content/b", node.Path())

		node, err = tree.Resolve(ctx, nil, "/content/a")
		require.NoError(t, err)
		assert.NotNil(t, node)

		_, err = tree.Resolve(ctx, nil, "a")
		assert.ErrorIs(t, err, contentmodel.ErrNilNode)
	})

	t.Run("Parent", func(t *testing.T) {
		parent, err := tree.Parent(ctx, content)
		require.NoError(t, err)
		require.NotNil(t, parent)
		assert.Equal(t, "/", parent.Path())

		root, err := tree.Parent(ctx, parent)
		require.NoError(t, err)
		assert.Nil(t, root)
	})

	t.Run("Remove", func(t *testing.T) {
		removed, err := tree.Remove("/content/a")
		require.NoError(t, err)
		assert.True(t, removed)

		node, err := tree.Get(ctx, "/content/a/x")
		require.NoError(t, err)
		assert.Nil(t, node)

		children, err := tree.Children(ctx, content)
		require.NoError(t, err)
		require.Len(t, children, 1)

		removed, err = tree.Remove("/content/a")
		require.NoError(t, err)
		assert.False(t, removed)
	})

	t.Run("Entries", func(t *testing.T) {
		var paths []string
		for _, e := range tree.Entries() {
			paths = append(paths, e.Path)
		}
		assert.Equal(t, []string{"/content", "/content/b"}, paths)
	})
}

func TestTree_TypeHierarchy(t *testing.T) {
	ctx := context.Background()
	tree := memory.New()

	var changes []string
	tree.OnChange(func(p string) { changes = append(changes, p) })

	require.NoError(t, tree.DefineResourceType("app/teaser", "core/teaser"))
	require.NoError(t, tree.Put("/libs/core/teaser", memory.NodeSpec{
		ResourceSuperType: "core/base",
		NodeType:          unstructured(),
	}))
	require.NoError(t, tree.Put("/content/page", memory.NodeSpec{NodeType: unstructured()}))
	tree.DefineNodeType("app:page", contentmodel.NodeTypeUnstructured)

	t.Run("SearchPaths", func(t *testing.T) {
		parent, err := tree.ParentResourceType(ctx, "app/teaser")
		require.NoError(t, err)
		assert.Equal(t, "core/teaser", parent)

		parent, err = tree.ParentResourceType(ctx, "core/teaser")
		require.NoError(t, err)
		assert.Equal(t, "core/base", parent)

		parent, err = tree.ParentResourceType(ctx, "/apps/app/teaser")
		require.NoError(t, err)
		assert.Equal(t, "core/teaser", parent)

		parent, err = tree.ParentResourceType(ctx, "unknown/type")
		require.NoError(t, err)
		assert.Empty(t, parent)
	})

	t.Run("NodeTypes", func(t *testing.T) {
		supers, err := tree.NodeSuperTypes(ctx, memory.NodeTypeFolder)
		require.NoError(t, err)
		assert.Equal(t, []string{memory.NodeTypeHierarchyNode}, supers)

		supers, err = tree.NodeSuperTypes(ctx, "app:page")
		require.NoError(t, err)
		assert.Equal(t, []string{contentmodel.NodeTypeUnstructured}, supers)
		assert.Contains(t, tree.NodeTypes(), "app:page")
	})

	t.Run("ChangesBelowSearchPathsAreReported", func(t *testing.T) {
		assert.Equal(t, []string{"/apps/app/teaser", "/libs/core/teaser", "app:page"}, changes)
	})

	t.Run("CustomSearchPaths", func(t *testing.T) {
		custom := memory.New(memory.WithSearchPaths("/types"))
		require.NoError(t, custom.DefineResourceType("a/b", "a"))
		node, err := custom.Get(ctx, "/types/a/b")
		require.NoError(t, err)
		require.NotNil(t, node)
		assert.Equal(t, memory.NodeTypeFolder, node.NodeType().Primary)
	})
}

func TestTree_ListenersAddedDuringNotification(t *testing.T) {
	tree := memory.New()

	var first, late []string
	tree.OnChange(func(p string) {
		first = append(first, p)
		if len(first) == 1 {
			tree.OnChange(func(p string) { late = append(late, p) })
		}
	})

	tree.DefineNodeType("app:page")
	assert.Empty(t, late, "listeners registered during a notification miss it")

	require.NoError(t, tree.DefineResourceType("app/page", ""))
	assert.Equal(t, []string{"app:page", "/apps/app/page"}, first)
	assert.Equal(t, []string{"/apps/app/page"}, late)
}
