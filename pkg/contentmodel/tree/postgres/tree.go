// Package postgres stores content trees in PostgreSQL.
package postgres

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/tendant/content-model/pkg/contentmodel"
)

// ChangeChannel is the notification channel the schema triggers publish
// changed node paths and node type names on
const ChangeChannel = "content_model_changes"

// DefaultSearchPaths are the paths below which resource type definitions are looked up
var DefaultSearchPaths = []string{"/apps", "/libs"}

//go:embed schema.sql
var schema string

// DBTX is an interface that allows us to use either a database connection or a transaction
type DBTX interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

// NodeSpec describes a node to store
type NodeSpec struct {
	ResourceType      string
	ResourceSuperType string
	// NodeType is the physical type; nil stores a synthetic node
	NodeType   *contentmodel.NodeType
	Properties contentmodel.Properties
}

// Tree implements contentmodel.Tree on top of PostgreSQL
type Tree struct {
	db          DBTX
	searchPaths []string
	logger      *slog.Logger
}

// Option configures a Tree
type Option func(*Tree)

// WithSearchPaths replaces the resource type search paths
func WithSearchPaths(paths ...string) Option {
	return func(t *Tree) {
		t.searchPaths = append([]string(nil), paths...)
	}
}

// WithLogger sets the logger used by the change feed
func WithLogger(logger *slog.Logger) Option {
	return func(t *Tree) {
		t.logger = logger
	}
}

// New creates a tree reading from db
func New(db DBTX, options ...Option) *Tree {
	t := &Tree{
		db:          db,
		searchPaths: DefaultSearchPaths,
		logger:      slog.Default(),
	}
	for _, option := range options {
		option(t)
	}
	return t
}

// NewWithPool creates a tree with a connection pool
func NewWithPool(pool *pgxpool.Pool, options ...Option) *Tree {
	return New(pool, options...)
}

// Migrate creates the tables, built-in node types, root node and change
// triggers if they do not exist
func (t *Tree) Migrate(ctx context.Context) error {
	if _, err := t.db.Exec(ctx, schema); err != nil {
		return handlePostgresError("migrate", err)
	}
	return nil
}

// Put stores a node at the absolute path p, replacing an existing node but
// keeping its children and position. Missing ancestors are created as
// unstructured nodes.
func (t *Tree) Put(ctx context.Context, p string, spec NodeSpec) error {
	p, err := cleanAbsolute(p)
	if err != nil {
		return err
	}
	if p == "/" {
		return errors.New("cannot replace the root node")
	}

	for _, ancestor := range ancestors(p) {
		_, err := t.db.Exec(ctx, `
			INSERT INTO content_nodes (path, parent_path, node_type)
			VALUES ($1, $2, $3)
			ON CONFLICT (path) DO NOTHING`,
			ancestor, path.Dir(ancestor), contentmodel.NodeTypeUnstructured)
		if err != nil {
			return handlePostgresError("create ancestor", err)
		}
	}

	var nodeType *string
	mixins := []string{}
	if spec.NodeType != nil {
		nodeType = &spec.NodeType.Primary
		mixins = append(mixins, spec.NodeType.Mixins...)
	}
	properties := spec.Properties
	if properties == nil {
		properties = contentmodel.Properties{}
	}

	_, err = t.db.Exec(ctx, `
		INSERT INTO content_nodes (path, parent_path, resource_type, resource_super_type, node_type, mixins, properties)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (path) DO UPDATE SET
			resource_type = EXCLUDED.resource_type,
			resource_super_type = EXCLUDED.resource_super_type,
			node_type = EXCLUDED.node_type,
			mixins = EXCLUDED.mixins,
			properties = EXCLUDED.properties,
			updated_at = NOW()`,
		p, path.Dir(p), spec.ResourceType, spec.ResourceSuperType, nodeType, mixins, properties)
	if err != nil {
		return handlePostgresError("put node", err)
	}
	return nil
}

// Remove deletes the node at p and its subtree. It reports whether a node was removed.
func (t *Tree) Remove(ctx context.Context, p string) (bool, error) {
	p, err := cleanAbsolute(p)
	if err != nil {
		return false, err
	}
	if p == "/" {
		return false, errors.New("cannot remove the root node")
	}

	tag, err := t.db.Exec(ctx,
		`DELETE FROM content_nodes WHERE path = $1 OR starts_with(path, $2)`, p, p+"/")
	if err != nil {
		return false, handlePostgresError("remove node", err)
	}
	return tag.RowsAffected() > 0, nil
}

// DefineResourceType stores the definition of resourceType below the first
// search path, declaring superType as its parent type.
func (t *Tree) DefineResourceType(ctx context.Context, resourceType, superType string) error {
	if resourceType == "" {
		return errors.New("resource type is empty")
	}
	definition := resourceType
	if !strings.HasPrefix(resourceType, "/") {
		if len(t.searchPaths) == 0 {
			return fmt.Errorf("no search path to define %s in", resourceType)
		}
		definition = path.Join(t.searchPaths[0], resourceType)
	}
	return t.Put(ctx, definition, NodeSpec{
		ResourceSuperType: superType,
		NodeType:          &contentmodel.NodeType{Primary: "nt:folder"},
	})
}

// DefineNodeType declares the super types of a physical node type
func (t *Tree) DefineNodeType(ctx context.Context, nodeType string, superTypes ...string) error {
	if superTypes == nil {
		superTypes = []string{}
	}
	_, err := t.db.Exec(ctx, `
		INSERT INTO content_node_types (name, super_types) VALUES ($1, $2)
		ON CONFLICT (name) DO UPDATE SET super_types = EXCLUDED.super_types`,
		nodeType, superTypes)
	if err != nil {
		return handlePostgresError("define node type", err)
	}
	return nil
}

// Tree operations

const selectNode = `
	SELECT path, resource_type, resource_super_type, node_type, mixins, properties
	FROM content_nodes`

func (t *Tree) Get(ctx context.Context, p string) (contentmodel.Node, error) {
	p, err := cleanAbsolute(p)
	if err != nil {
		return nil, err
	}

	node, err := t.scanNode(t.db.QueryRow(ctx, selectNode+` WHERE path = $1`, p))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, handlePostgresError("get node", err)
	}
	return node, nil
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

	rows, err := t.db.Query(ctx, selectNode+` WHERE parent_path = $1 ORDER BY position`, node.Path())
	if err != nil {
		return nil, handlePostgresError("list children", err)
	}
	defer rows.Close()

	var children []contentmodel.Node
	for rows.Next() {
		child, err := t.scanNode(rows)
		if err != nil {
			return nil, handlePostgresError("scan child", err)
		}
		children = append(children, child)
	}
	if err := rows.Err(); err != nil {
		return nil, handlePostgresError("list children", err)
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
	for _, candidate := range t.definitionPaths(resourceType) {
		var superType string
		err := t.db.QueryRow(ctx,
			`SELECT resource_super_type FROM content_nodes WHERE path = $1`, candidate).Scan(&superType)
		if errors.Is(err, pgx.ErrNoRows) {
			continue
		}
		if err != nil {
			return "", handlePostgresError("parent resource type", err)
		}
		return superType, nil
	}
	return "", nil
}

func (t *Tree) NodeSuperTypes(ctx context.Context, nodeType string) ([]string, error) {
	var superTypes []string
	err := t.db.QueryRow(ctx,
		`SELECT super_types FROM content_node_types WHERE name = $1`, nodeType).Scan(&superTypes)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, handlePostgresError("node super types", err)
	}
	return superTypes, nil
}

// definitionPaths returns the paths a definition of resourceType may be stored at, in lookup order
func (t *Tree) definitionPaths(resourceType string) []string {
	if resourceType == "" {
		return nil
	}
	if strings.HasPrefix(resourceType, "/") {
		return []string{path.Clean(resourceType)}
	}
	paths := make([]string, 0, len(t.searchPaths))
	for _, searchPath := range t.searchPaths {
		paths = append(paths, path.Join(searchPath, resourceType))
	}
	return paths
}

// isDefinitionChange reports whether a change notification concerns the
// type hierarchy: node types, or nodes below a search path
func (t *Tree) isDefinitionChange(payload string) bool {
	if !strings.HasPrefix(payload, "/") {
		return payload != ""
	}
	for _, searchPath := range t.searchPaths {
		if payload == searchPath || strings.HasPrefix(payload, searchPath+"/") {
			return true
		}
	}
	return false
}

func (t *Tree) scanNode(row pgx.Row) (*Node, error) {
	var (
		node     = &Node{tree: t}
		nodeType *string
		mixins   []string
		props    map[string]any
	)
	err := row.Scan(&node.path, &node.resourceType, &node.resourceSuperType, &nodeType, &mixins, &props)
	if err != nil {
		return nil, err
	}
	if nodeType != nil {
		node.nodeType = &contentmodel.NodeType{Primary: *nodeType, Mixins: mixins}
	}
	if node.nodeType != nil || len(props) > 0 {
		node.properties = contentmodel.Properties(props)
		if node.properties == nil {
			node.properties = contentmodel.Properties{}
		}
	}
	return node, nil
}

// ancestors returns the missing-ancestor candidates of p, outermost first, excluding the root
func ancestors(p string) []string {
	var paths []string
	for parent := path.Dir(p); parent != "/"; parent = path.Dir(parent) {
		paths = append([]string{parent}, paths...)
	}
	return paths
}

func cleanAbsolute(p string) (string, error) {
	if !strings.HasPrefix(p, "/") {
		return "", fmt.Errorf("path %q is not absolute", p)
	}
	return path.Clean(p), nil
}
