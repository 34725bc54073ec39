package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/tendant/content-model/pkg/contentmodel"
	"github.com/tendant/content-model/pkg/contentmodel/metrics"
	"github.com/tendant/content-model/pkg/contentmodel/snapshot"
	fssnapshot "github.com/tendant/content-model/pkg/contentmodel/snapshot/fs"
	s3snapshot "github.com/tendant/content-model/pkg/contentmodel/snapshot/s3"
)

// Option applies configuration to a ServerConfig instance.
type Option func(*ServerConfig) error

// Load constructs a ServerConfig by applying the supplied options on top of library defaults.
func Load(opts ...Option) (*ServerConfig, error) {
	cfg := defaults()

	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(&cfg); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func defaults() ServerConfig {
	return ServerConfig{
		Port:        "8080",
		Environment: "development",
		TreeType:    "memory",
		DBSchema:    "content",
		AutoMigrate: true,
		Snapshot:    SnapshotConfig{Type: "none"},
		RequestCache: RequestCacheConfig{
			Enabled: true,
		},
		EnableMetrics: true,
		MetricsURI:    metrics.DefaultURI,
	}
}

// ServerConfig represents the configuration of the content-model server
type ServerConfig struct {
	Port        string
	Environment string // development, production, testing

	// Content tree configuration
	TreeType    string // "memory", "postgres"
	DatabaseURL string
	DBSchema    string   // Postgres schema to use (default: content)
	AutoMigrate bool     // Create the tree tables on startup
	SearchPaths []string // Resource type search paths, empty for the tree default

	// Snapshot configuration
	Snapshot SnapshotConfig

	// Request scoped model cache
	RequestCache RequestCacheConfig

	// AdminSecret signs the tokens accepted by mutating console endpoints.
	// Mutating endpoints are disabled when empty.
	AdminSecret string

	EnableMetrics bool
	MetricsURI    string
}

// SnapshotConfig configures where content snapshots are stored
type SnapshotConfig struct {
	Type string // "none", "fs", "s3"
	// Name of the snapshot loaded into a memory tree on startup
	Name string

	BaseDir string // fs

	Bucket          string // s3
	Region          string
	Prefix          string
	AccessKeyID     string
	SecretAccessKey string
	Endpoint        string
	UsePathStyle    bool
	CreateBucket    bool
}

// RequestCacheConfig configures the per request model cache
type RequestCacheConfig struct {
	Enabled bool
	// SafeMode partitions cached models by request path and query
	SafeMode bool
}

// Validate validates the server configuration
func (c *ServerConfig) Validate() error {
	if c.Port == "" {
		return errors.New("port is required")
	}

	if c.TreeType != "memory" && c.TreeType != "postgres" {
		return errors.New("tree_type must be 'memory' or 'postgres'")
	}

	if c.TreeType == "postgres" && c.DatabaseURL == "" {
		return errors.New("database_url is required when using postgres")
	}

	for _, p := range c.SearchPaths {
		if !strings.HasPrefix(p, "/") {
			return fmt.Errorf("search path %q must be absolute", p)
		}
	}

	switch c.Snapshot.Type {
	case "none":
		if c.Snapshot.Name != "" {
			return errors.New("snapshot name requires a snapshot store")
		}
	case "fs":
		if c.Snapshot.BaseDir == "" {
			return errors.New("snapshot base directory is required for fs snapshots")
		}
	case "s3":
		if c.Snapshot.Bucket == "" {
			return errors.New("snapshot bucket is required for s3 snapshots")
		}
	default:
		return fmt.Errorf("unsupported snapshot store type: %s", c.Snapshot.Type)
	}

	if c.Snapshot.Name != "" {
		if c.TreeType != "memory" {
			return errors.New("snapshots can only be loaded into a memory tree")
		}
		if err := snapshot.ValidateName(c.Snapshot.Name); err != nil {
			return err
		}
	}

	if c.EnableMetrics && !strings.HasPrefix(c.MetricsURI, "/") {
		return fmt.Errorf("metrics uri %q must be absolute", c.MetricsURI)
	}

	return nil
}

// BuildService creates a Service instance from the server configuration
func (c *ServerConfig) BuildService(logger *slog.Logger, recorder *metrics.Recorder, options ...contentmodel.Option) (contentmodel.Service, error) {
	if logger == nil {
		logger = slog.Default()
	}
	all := []contentmodel.Option{
		contentmodel.WithLogger(logger),
		contentmodel.WithHooks(contentmodel.LoggingHooks(logger)),
	}
	if recorder != nil {
		all = append(all, contentmodel.WithHooks(recorder.Hooks()))
	}
	all = append(all, options...)
	return contentmodel.New(all...)
}

// BuildMetrics returns the metrics recorder, nil when metrics are disabled
func (c *ServerConfig) BuildMetrics() *metrics.Recorder {
	if !c.EnableMetrics {
		return nil
	}
	return metrics.New(nil)
}

// BuildSnapshotStore creates the configured snapshot store, nil when snapshots are disabled
func (c *ServerConfig) BuildSnapshotStore(ctx context.Context) (snapshot.Store, error) {
	switch c.Snapshot.Type {
	case "none":
		return nil, nil
	case "fs":
		return fssnapshot.New(fssnapshot.Config{BaseDir: c.Snapshot.BaseDir})
	case "s3":
		return s3snapshot.New(ctx, s3snapshot.Config{
			Region:                 c.Snapshot.Region,
			Bucket:                 c.Snapshot.Bucket,
			Prefix:                 c.Snapshot.Prefix,
			AccessKeyID:            c.Snapshot.AccessKeyID,
			SecretAccessKey:        c.Snapshot.SecretAccessKey,
			Endpoint:               c.Snapshot.Endpoint,
			UsePathStyle:           c.Snapshot.UsePathStyle,
			CreateBucketIfNotExist: c.Snapshot.CreateBucket,
		})
	default:
		return nil, fmt.Errorf("unsupported snapshot store type: %s", c.Snapshot.Type)
	}
}

// RequestCacheOptions returns the options of request caches created for
// requests to resourcePath with rawQuery
func (c *ServerConfig) RequestCacheOptions(resourcePath, rawQuery string) []contentmodel.RequestCacheOption {
	if !c.RequestCache.Enabled {
		return []contentmodel.RequestCacheOption{contentmodel.WithCacheDisabled()}
	}
	if c.RequestCache.SafeMode {
		return []contentmodel.RequestCacheOption{
			contentmodel.WithSafeMode(contentmodel.SafeModeDiscriminator(resourcePath, rawQuery)),
		}
	}
	return nil
}

// newPool opens a pgx pool setting search_path to schema on every connection
func newPool(ctx context.Context, databaseURL, schema string) (*pgxpool.Pool, error) {
	if databaseURL == "" {
		return nil, errors.New("database_url is required")
	}
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse DATABASE_URL: %w", err)
	}
	if schema != "" {
		cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
			_, err := conn.Exec(ctx, "SET search_path TO "+pgx.Identifier{schema}.Sanitize())
			return err
		}
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create pgx pool: %w", err)
	}
	return pool, nil
}

// PingPostgres verifies connectivity to Postgres and that the schema (when provided) can be selected.
func PingPostgres(databaseURL, schema string) error {
	pool, err := newPool(context.Background(), databaseURL, schema)
	if err != nil {
		return err
	}
	defer pool.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := pool.Ping(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	return nil
}
