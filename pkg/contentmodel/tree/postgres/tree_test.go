package postgres

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/content-model/pkg/contentmodel"
)

// fakeRow scans fixed values into the destinations
type fakeRow struct {
	values []any
	err    error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	if len(dest) != len(r.values) {
		return fmt.Errorf("scan of %d values into %d destinations", len(r.values), len(dest))
	}
	for i, d := range dest {
		switch d := d.(type) {
		case *string:
			*d = r.values[i].(string)
		case **string:
			*d, _ = r.values[i].(*string)
		case *[]string:
			*d, _ = r.values[i].([]string)
		case *map[string]any:
			*d, _ = r.values[i].(map[string]any)
		default:
			return fmt.Errorf("unsupported destination %T", d)
		}
	}
	return nil
}

// fakeDB answers QueryRow by the first argument
type fakeDB struct {
	rows    map[any]fakeRow
	queries []string
}

func (db *fakeDB) Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error) {
	db.queries = append(db.queries, sql)
	return pgconn.NewCommandTag("INSERT 0 1"), nil
}

func (db *fakeDB) Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error) {
	return nil, errors.New("not supported")
}

func (db *fakeDB) QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row {
	db.queries = append(db.queries, sql)
	if row, ok := db.rows[args[0]]; ok {
		return row
	}
	return fakeRow{err: pgx.ErrNoRows}
}

func nodeRow(path, resourceType string, nodeType *string, props map[string]any) fakeRow {
	return fakeRow{values: []any{path, resourceType, "", nodeType, []string(nil), props}}
}

func TestTree_Get(t *testing.T) {
	ctx := context.Background()
	unstructured := contentmodel.NodeTypeUnstructured
	db := &fakeDB{rows: map[any]fakeRow{
		"/content/page":    nodeRow("/content/page", "app/page", &unstructured, map[string]any{"jcr:title": "Home"}),
		"/content/empty":   nodeRow("/content/empty", "", &unstructured, nil),
		"/content/virtual": nodeRow("/content/virtual", "app/virtual", nil, nil),
	}}
	tree := New(db)

	page, err := tree.Get(ctx, "/content/page/")
	require.NoError(t, err)
	require.NotNil(t, page)
	assert.Equal(t, "page", page.Name())
	assert.Equal(t, "Home", page.Properties().String("jcr:title"))
	assert.Same(t, tree, page.Tree())

	empty, err := tree.Get(ctx, "/content/empty")
	require.NoError(t, err)
	assert.Equal(t, contentmodel.NodeTypeUnstructured, empty.ResourceType())
	assert.Equal(t, contentmodel.Properties{}, empty.Properties())

	virtual, err := tree.Get(ctx, "/content/virtual")
	require.NoError(t, err)
	assert.Nil(t, virtual.NodeType())
	assert.Nil(t, virtual.Properties())

	missing, err := tree.Get(ctx, "/content/missing")
	require.NoError(t, err)
	assert.Nil(t, missing)

	resolved, err := tree.Resolve(ctx, page, "../virtual")
	require.NoError(t, err)
	assert.Equal(t, "/content/virtual", resolved.Path())

	_, err = tree.Get(ctx, "relative")
	assert.Error(t, err)
}

func TestTree_TypeHierarchy(t *testing.T) {
	ctx := context.Background()
	db := &fakeDB{rows: map[any]fakeRow{
		"/libs/core/teaser": {values: []any{"core/base"}},
		"nt:folder":         {values: []any{[]string{"nt:hierarchyNode"}}},
		"/apps/broken":      {err: &pgconn.PgError{Code: "42P01"}},
	}}
	tree := New(db)

	parent, err := tree.ParentResourceType(ctx, "core/teaser")
	require.NoError(t, err)
	assert.Equal(t, "core/base", parent)

	parent, err = tree.ParentResourceType(ctx, "unknown")
	require.NoError(t, err)
	assert.Empty(t, parent)

	_, err = tree.ParentResourceType(ctx, "broken")
	assert.ErrorIs(t, err, ErrMigrationRequired)

	supers, err := tree.NodeSuperTypes(ctx, "nt:folder")
	require.NoError(t, err)
	assert.Equal(t, []string{"nt:hierarchyNode"}, supers)

	supers, err = tree.NodeSuperTypes(ctx, "app:unknown")
	require.NoError(t, err)
	assert.Nil(t, supers)
}

func TestTree_PutCreatesAncestors(t *testing.T) {
	db := &fakeDB{}
	tree := New(db)

	require.NoError(t, tree.Put(context.Background(), "/content/site/page", NodeSpec{ResourceType: "app/page"}))
	assert.Len(t, db.queries, 3)

	assert.Error(t, tree.Put(context.Background(), "/", NodeSpec{}))
	assert.Error(t, tree.Put(context.Background(), "content", NodeSpec{}))
}

func TestDefinitionPaths(t *testing.T) {
	tree := New(&fakeDB{}, WithSearchPaths("/apps", "/libs"))

	assert.Equal(t, []string{"/apps/a/b", "/libs/a/b"}, tree.definitionPaths("a/b"))
	assert.Equal(t, []string{"/apps/a/b"}, tree.definitionPaths("/apps/a/b/"))
	assert.Nil(t, tree.definitionPaths(""))

	assert.True(t, tree.isDefinitionChange("/apps/a/b"))
	assert.True(t, tree.isDefinitionChange("/libs"))
	assert.True(t, tree.isDefinitionChange("app:page"))
	assert.False(t, tree.isDefinitionChange("/content/page"))
	assert.False(t, tree.isDefinitionChange("/appsx/a"))
	assert.False(t, tree.isDefinitionChange(""))
}

func TestAncestors(t *testing.T) {
	assert.Equal(t, []string{"/a", "/a/b"}, ancestors("/a/b/c"))
	assert.Empty(t, ancestors("/a"))
}

func TestHandlePostgresError(t *testing.T) {
	err := handlePostgresError("put node", &pgconn.PgError{Code: "23505", ConstraintName: "content_nodes_pkey"})
	assert.ErrorIs(t, err, ErrConflict)

	err = handlePostgresError("put node", &pgconn.PgError{Code: "23502", ColumnName: "path"})
	assert.ErrorIs(t, err, ErrConflict)
	assert.Contains(t, err.Error(), "path")

	err = handlePostgresError("get node", fmt.Errorf("wrapped: %w", &pgconn.PgError{Code: "42P01"}))
	assert.ErrorIs(t, err, ErrMigrationRequired)

	err = handlePostgresError("get node", &pgconn.PgError{Code: "40001", Message: "serialization failure"})
	assert.Contains(t, err.Error(), "40001")

	cause := errors.New("connection reset")
	assert.ErrorIs(t, handlePostgresError("get node", cause), cause)
}
