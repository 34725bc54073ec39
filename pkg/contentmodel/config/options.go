package config

import (
	"fmt"
)

// WithPort sets the server port
func WithPort(port string) Option {
	return func(c *ServerConfig) error {
		if port == "" {
			return fmt.Errorf("port cannot be empty")
		}
		c.Port = port
		return nil
	}
}

// WithEnvironment sets the environment (development, production, testing)
func WithEnvironment(env string) Option {
	return func(c *ServerConfig) error {
		if env == "" {
			return fmt.Errorf("environment cannot be empty")
		}
		c.Environment = env
		return nil
	}
}

// WithTree configures the content tree backend
func WithTree(treeType, databaseURL string) Option {
	return func(c *ServerConfig) error {
		if treeType != "memory" && treeType != "postgres" {
			return fmt.Errorf("tree type must be 'memory' or 'postgres', got: %s", treeType)
		}
		if treeType == "postgres" && databaseURL == "" {
			return fmt.Errorf("database URL is required for postgres")
		}
		c.TreeType = treeType
		c.DatabaseURL = databaseURL
		return nil
	}
}

// WithSearchPaths sets the resource type search paths
func WithSearchPaths(paths ...string) Option {
	return func(c *ServerConfig) error {
		c.SearchPaths = append([]string(nil), paths...)
		return nil
	}
}

// WithFilesystemSnapshots stores snapshots below baseDir
func WithFilesystemSnapshots(baseDir string) Option {
	return func(c *ServerConfig) error {
		if baseDir == "" {
			return fmt.Errorf("snapshot base directory cannot be empty")
		}
		c.Snapshot.Type = "fs"
		c.Snapshot.BaseDir = baseDir
		return nil
	}
}

// WithS3Snapshots stores snapshots in an S3 bucket below prefix
func WithS3Snapshots(bucket, region, prefix string) Option {
	return func(c *ServerConfig) error {
		if bucket == "" {
			return fmt.Errorf("S3 bucket cannot be empty")
		}
		if region == "" {
			region = "us-east-1"
		}
		c.Snapshot.Type = "s3"
		c.Snapshot.Bucket = bucket
		c.Snapshot.Region = region
		c.Snapshot.Prefix = prefix
		return nil
	}
}

// WithS3Endpoint sets a custom S3 endpoint (for MinIO, LocalStack, etc.)
func WithS3Endpoint(endpoint string, usePathStyle bool) Option {
	return func(c *ServerConfig) error {
		c.Snapshot.Endpoint = endpoint
		c.Snapshot.UsePathStyle = usePathStyle
		return nil
	}
}

// WithSnapshot loads the named snapshot into the memory tree on startup
func WithSnapshot(name string) Option {
	return func(c *ServerConfig) error {
		if name == "" {
			return fmt.Errorf("snapshot name cannot be empty")
		}
		c.Snapshot.Name = name
		return nil
	}
}

// WithRequestCache configures the per request model cache
func WithRequestCache(enabled, safeMode bool) Option {
	return func(c *ServerConfig) error {
		c.RequestCache = RequestCacheConfig{Enabled: enabled, SafeMode: safeMode}
		return nil
	}
}

// WithAdminSecret sets the secret verifying tokens of mutating endpoints
func WithAdminSecret(secret string) Option {
	return func(c *ServerConfig) error {
		c.AdminSecret = secret
		return nil
	}
}

// WithMetricsURI exposes model metrics at uri
func WithMetricsURI(uri string) Option {
	return func(c *ServerConfig) error {
		if uri == "" {
			return fmt.Errorf("metrics uri cannot be empty")
		}
		c.EnableMetrics = true
		c.MetricsURI = uri
		return nil
	}
}

// WithoutMetrics disables model metrics
func WithoutMetrics() Option {
	return func(c *ServerConfig) error {
		c.EnableMetrics = false
		return nil
	}
}
