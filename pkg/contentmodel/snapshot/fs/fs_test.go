package fs_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/content-model/pkg/contentmodel"
	"github.com/tendant/content-model/pkg/contentmodel/snapshot"
	"github.com/tendant/content-model/pkg/contentmodel/snapshot/fs"
)

func TestStore(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	store, err := fs.New(fs.Config{BaseDir: filepath.Join(dir, "snapshots")})
	require.NoError(t, err)

	doc := &snapshot.Document{Nodes: []snapshot.NodeDocument{{
		Path:         "/content/page",
		ResourceType: "app/page",
		NodeType:     contentmodel.NodeTypeUnstructured,
		Properties:   contentmodel.Properties{"jcr:title": "Home"},
	}}}

	t.Run("SaveLoad", func(t *testing.T) {
		require.NoError(t, store.Save(ctx, "site", doc))
		loaded, err := store.Load(ctx, "site")
		require.NoError(t, err)
		assert.Equal(t, doc, loaded)
	})

	t.Run("Overwrite", func(t *testing.T) {
		updated := &snapshot.Document{Nodes: []snapshot.NodeDocument{{Path: "/content/other"}}}
		require.NoError(t, store.Save(ctx, "site", updated))
		loaded, err := store.Load(ctx, "site")
		require.NoError(t, err)
		assert.Equal(t, "/content/other", loaded.Nodes[0].Path)
	})

	t.Run("List", func(t *testing.T) {
		require.NoError(t, store.Save(ctx, "another", doc))
		require.NoError(t, os.WriteFile(filepath.Join(dir, "snapshots", "notes.txt"), []byte("x"), 0644))

		names, err := store.List(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"another", "site"}, names)
	})

	t.Run("Delete", func(t *testing.T) {
		require.NoError(t, store.Delete(ctx, "another"))
		assert.ErrorIs(t, store.Delete(ctx, "another"), snapshot.ErrNotFound)

		_, err := store.Load(ctx, "another")
		assert.ErrorIs(t, err, snapshot.ErrNotFound)
	})

	t.Run("InvalidNames", func(t *testing.T) {
		assert.ErrorIs(t, store.Save(ctx, "../escape", doc), snapshot.ErrInvalidName)
		_, err := store.Load(ctx, "")
		assert.ErrorIs(t, err, snapshot.ErrInvalidName)
	})
}

func TestNew(t *testing.T) {
	_, err := fs.New(fs.Config{})
	assert.Error(t, err)
}
