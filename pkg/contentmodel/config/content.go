package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/tendant/content-model/pkg/contentmodel"
	"github.com/tendant/content-model/pkg/contentmodel/snapshot"
	"github.com/tendant/content-model/pkg/contentmodel/tree/memory"
	"github.com/tendant/content-model/pkg/contentmodel/tree/postgres"
)

// Content is the content tree built from a ServerConfig. Exactly one of
// Memory and Postgres is set.
type Content struct {
	Tree     contentmodel.Tree
	Memory   *memory.Tree
	Postgres *postgres.Tree

	pool *pgxpool.Pool
}

// BuildContent creates the configured content tree. A memory tree is
// populated from the configured snapshot, loaded from store.
func (c *ServerConfig) BuildContent(ctx context.Context, store snapshot.Store, logger *slog.Logger) (*Content, error) {
	if logger == nil {
		logger = slog.Default()
	}

	switch c.TreeType {
	case "memory":
		var options []memory.Option
		if len(c.SearchPaths) > 0 {
			options = append(options, memory.WithSearchPaths(c.SearchPaths...))
		}
		tree := memory.New(options...)

		if c.Snapshot.Name != "" {
			if store == nil {
				return nil, errors.New("snapshot store is required to load a snapshot")
			}
			doc, err := store.Load(ctx, c.Snapshot.Name)
			if err != nil {
				return nil, fmt.Errorf("failed to load snapshot %s: %w", c.Snapshot.Name, err)
			}
			if err := doc.Apply(tree); err != nil {
				return nil, fmt.Errorf("failed to apply snapshot %s: %w", c.Snapshot.Name, err)
			}
			logger.Info("loaded content snapshot", "name", c.Snapshot.Name, "nodes", tree.Len())
		}
		return &Content{Tree: tree, Memory: tree}, nil

	case "postgres":
		pool, err := newPool(ctx, c.DatabaseURL, c.DBSchema)
		if err != nil {
			return nil, err
		}
		options := []postgres.Option{postgres.WithLogger(logger)}
		if len(c.SearchPaths) > 0 {
			options = append(options, postgres.WithSearchPaths(c.SearchPaths...))
		}
		tree := postgres.NewWithPool(pool, options...)
		if c.AutoMigrate {
			if err := tree.Migrate(ctx); err != nil {
				pool.Close()
				return nil, err
			}
		}
		return &Content{Tree: tree, Postgres: tree, pool: pool}, nil

	default:
		return nil, fmt.Errorf("unsupported tree type: %s", c.TreeType)
	}
}

// Watch feeds type definition changes of the tree into listener until ctx is done
func (c *Content) Watch(ctx context.Context, listener *contentmodel.ChangeListener) {
	switch {
	case c.Memory != nil:
		c.Memory.OnChange(listener.Notify)
	case c.Postgres != nil:
		go c.Postgres.Listen(ctx, c.pool, listener.Notify)
	}
}

// Ping checks that the tree is reachable
func (c *Content) Ping(ctx context.Context) error {
	if c.pool == nil {
		return nil
	}
	return c.pool.Ping(ctx)
}

// Close releases the database connections
func (c *Content) Close() {
	if c.pool != nil {
		c.pool.Close()
	}
}
