package postgres_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/content-model/pkg/contentmodel"
	"github.com/tendant/content-model/pkg/contentmodel/tree/postgres"
)

// newTestTree connects to TEST_DATABASE_URL and migrates a clean schema
func newTestTree(t *testing.T) (*postgres.Tree, *pgxpool.Pool) {
	t.Helper()
	connString := os.Getenv("TEST_DATABASE_URL")
	if connString == "" {
		t.Skip("TEST_DATABASE_URL is not set")
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, connString)
	require.NoError(t, err, "Failed to connect to test database")
	t.Cleanup(pool.Close)
	require.NoError(t, pool.Ping(ctx), "Failed to ping test database")

	_, err = pool.Exec(ctx, `DROP TABLE IF EXISTS content_nodes, content_node_types`)
	require.NoError(t, err)

	tree := postgres.NewWithPool(pool)
	require.NoError(t, tree.Migrate(ctx))
	return tree, pool
}

func TestIntegration_Tree(t *testing.T) {
	tree, pool := newTestTree(t)
	ctx := context.Background()

	require.NoError(t, tree.DefineResourceType(ctx, "app/teaser", "core/teaser"))
	require.NoError(t, tree.DefineNodeType(ctx, "app:page", contentmodel.NodeTypeUnstructured))
	require.NoError(t, tree.Put(ctx, "/content/page", postgres.NodeSpec{
		ResourceType: "app/page",
		NodeType:     &contentmodel.NodeType{Primary: "app:page", Mixins: []string{"mix:title"}},
		Properties:   contentmodel.Properties{"jcr:title": "Home", "count": 2},
	}))
	require.NoError(t, tree.Put(ctx, "/content/page/a", postgres.NodeSpec{ResourceType: "app/teaser"}))
	require.NoError(t, tree.Put(ctx, "/content/page/b", postgres.NodeSpec{ResourceType: "app/teaser"}))

	page, err := tree.Get(ctx, "/content/page")
	require.NoError(t, err)
	require.NotNil(t, page)
	assert.Equal(t, "Home", page.Properties().String("jcr:title"))
	assert.Equal(t, []string{"mix:title"}, page.NodeType().Mixins)

	children, err := tree.Children(ctx, page)
	require.NoError(t, err)
	require.Len(t, children, 2)
	assert.Equal(t, "/content/page/a", children[0].Path())
	assert.Nil(t, children[0].NodeType())

	parent, err := tree.ParentResourceType(ctx, "app/teaser")
	require.NoError(t, err)
	assert.Equal(t, "core/teaser", parent)

	supers, err := tree.NodeSuperTypes(ctx, "app:page")
	require.NoError(t, err)
	assert.Equal(t, []string{contentmodel.NodeTypeUnstructured}, supers)

	t.Run("ChangeFeed", func(t *testing.T) {
		listenCtx, cancel := context.WithCancel(ctx)
		defer cancel()

		changes := make(chan string, 16)
		go tree.Listen(listenCtx, pool, func(path string) { changes <- path })

		// the subscription is asynchronous; repeat the change until it is seen
		assert.Eventually(t, func() bool {
			require.NoError(t, tree.DefineResourceType(ctx, "app/teaser", "core/other"))
			select {
			case path := <-changes:
				return path == "/apps/app/teaser"
			case <-time.After(100 * time.Millisecond):
				return false
			}
		}, 5*time.Second, 10*time.Millisecond)
	})

	t.Run("Remove", func(t *testing.T) {
		removed, err := tree.Remove(ctx, "/content/page")
		require.NoError(t, err)
		assert.True(t, removed)

		child, err := tree.Get(ctx, "/content/page/a")
		require.NoError(t, err)
		assert.Nil(t, child)
	})
}
