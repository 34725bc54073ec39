package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
)

// WithEnv applies environment variable overrides using the provided prefix.
//
// Server:
//   PORT - Server port (default: "8080")
//   ENVIRONMENT - Runtime environment (default: "development")
//
// Content tree:
//   DATABASE_URL - "memory" (default) or "postgresql://..." for the postgres tree
//   DB_SCHEMA - Postgres schema (default: "content")
//   AUTO_MIGRATE - Create the tree tables on startup (default: true)
//   SEARCH_PATHS - Comma separated resource type search paths
//
// Snapshots:
//   SNAPSHOT_URL - one of:
//                  - "none" (default)
//                  - "file:///path/to/snapshots"
//                  - "s3://bucket/prefix?region=us-east-1&endpoint=http://localhost:9000"
//   SNAPSHOT_NAME - Snapshot loaded into the memory tree on startup
//
// Mapping:
//   REQUEST_CACHE_ENABLED - Cache models per request (default: true)
//   REQUEST_CACHE_SAFE_MODE - Partition the cache by request path and query
//
// Console:
//   ADMIN_SECRET - HS256 secret for tokens of mutating endpoints
//   METRICS_ENABLED - Expose model metrics (default: true)
//   METRICS_URI - Metrics endpoint (default: "/v1/api/metric/")
func WithEnv(prefix string) Option {
	return func(c *ServerConfig) error {
		if v, ok := lookupEnv(prefix, "PORT"); ok && v != "" {
			c.Port = v
		}
		if v, ok := lookupEnv(prefix, "ENVIRONMENT"); ok && v != "" {
			c.Environment = v
		}

		if err := applyDatabaseEnv(prefix, c); err != nil {
			return err
		}
		if err := applySnapshotEnv(prefix, c); err != nil {
			return err
		}

		if v, ok := lookupEnv(prefix, "SEARCH_PATHS"); ok && v != "" {
			c.SearchPaths = splitList(v)
		}

		if v, ok, err := parseBoolEnv(prefix, "REQUEST_CACHE_ENABLED"); err != nil {
			return err
		} else if ok {
			c.RequestCache.Enabled = v
		}
		if v, ok, err := parseBoolEnv(prefix, "REQUEST_CACHE_SAFE_MODE"); err != nil {
			return err
		} else if ok {
			c.RequestCache.SafeMode = v
		}

		if v, ok := lookupEnv(prefix, "ADMIN_SECRET"); ok {
			c.AdminSecret = v
		}
		if v, ok, err := parseBoolEnv(prefix, "METRICS_ENABLED"); err != nil {
			return err
		} else if ok {
			c.EnableMetrics = v
		}
		if v, ok := lookupEnv(prefix, "METRICS_URI"); ok && v != "" {
			c.MetricsURI = v
		}

		return nil
	}
}

// applyDatabaseEnv applies content tree configuration from environment
func applyDatabaseEnv(prefix string, c *ServerConfig) error {
	if v, ok := lookupEnv(prefix, "DB_SCHEMA"); ok {
		c.DBSchema = v
	}
	if v, ok, err := parseBoolEnv(prefix, "AUTO_MIGRATE"); err != nil {
		return err
	} else if ok {
		c.AutoMigrate = v
	}

	dbURL, hasURL := lookupEnv(prefix, "DATABASE_URL")
	if !hasURL || dbURL == "" || dbURL == "memory" {
		c.TreeType = "memory"
		c.DatabaseURL = ""
		return nil
	}

	if strings.HasPrefix(dbURL, "postgresql://") || strings.HasPrefix(dbURL, "postgres://") {
		c.TreeType = "postgres"
		c.DatabaseURL = dbURL
		return nil
	}
	return fmt.Errorf("unsupported DATABASE_URL format: %s (use 'memory' or 'postgresql://...')", dbURL)
}

// applySnapshotEnv applies snapshot store configuration from environment
func applySnapshotEnv(prefix string, c *ServerConfig) error {
	if v, ok := lookupEnv(prefix, "SNAPSHOT_NAME"); ok {
		c.Snapshot.Name = v
	}

	raw, ok := lookupEnv(prefix, "SNAPSHOT_URL")
	if !ok || raw == "" || raw == "none" {
		return nil
	}

	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid SNAPSHOT_URL: %w", err)
	}

	switch u.Scheme {
	case "file":
		if u.Path == "" {
			return fmt.Errorf("filesystem path cannot be empty in SNAPSHOT_URL")
		}
		c.Snapshot.Type = "fs"
		c.Snapshot.BaseDir = u.Path
	case "s3":
		if u.Host == "" {
			return fmt.Errorf("S3 bucket name cannot be empty in SNAPSHOT_URL")
		}
		query := u.Query()
		c.Snapshot.Type = "s3"
		c.Snapshot.Bucket = u.Host
		c.Snapshot.Prefix = strings.Trim(u.Path, "/")
		c.Snapshot.Region = query.Get("region")
		c.Snapshot.Endpoint = query.Get("endpoint")
		if v := query.Get("path_style"); v != "" {
			pathStyle, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("invalid path_style in SNAPSHOT_URL: %w", err)
			}
			c.Snapshot.UsePathStyle = pathStyle
		}

		// Check for AWS credentials in environment
		if accessKey, ok := os.LookupEnv("AWS_ACCESS_KEY_ID"); ok && accessKey != "" {
			c.Snapshot.AccessKeyID = accessKey
		}
		if secretKey, ok := os.LookupEnv("AWS_SECRET_ACCESS_KEY"); ok && secretKey != "" {
			c.Snapshot.SecretAccessKey = secretKey
		}
		if c.Snapshot.Region == "" {
			if region, ok := os.LookupEnv("AWS_REGION"); ok && region != "" {
				c.Snapshot.Region = region
			}
		}
	default:
		return fmt.Errorf("unsupported SNAPSHOT_URL format: %s (use 'none', 'file://...', or 's3://...')", raw)
	}
	return nil
}

func lookupEnv(prefix, key string) (string, bool) {
	return os.LookupEnv(prefix + key)
}

func parseBoolEnv(prefix, key string) (bool, bool, error) {
	raw, ok := lookupEnv(prefix, key)
	if !ok || raw == "" {
		return false, false, nil
	}
	parsed, err := strconv.ParseBool(raw)
	if err != nil {
		return false, false, fmt.Errorf("invalid boolean for %s%s: %w", prefix, key, err)
	}
	return parsed, true, nil
}

func splitList(raw string) []string {
	var items []string
	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}
