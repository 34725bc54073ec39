package contentmodel

import (
	"os"
	"regexp"
	"strings"
)

var placeholderPattern = regexp.MustCompile(`\$\{([^}|\s]+)}`)

// ResourcePath is a field path that may contain ${name} placeholders
type ResourcePath struct {
	path         string
	placeholders bool
}

func newResourcePath(path string, explicit bool) ResourcePath {
	return ResourcePath{
		path:         path,
		placeholders: explicit && placeholderPattern.MatchString(path),
	}
}

// String returns the unresolved path
func (p ResourcePath) String() string {
	return p.path
}

// HasPlaceholders reports whether the path needs resolution before use
func (p ResourcePath) HasPlaceholders() bool {
	return p.placeholders
}

// Resolve replaces every placeholder resolved by r. Placeholders r cannot
// resolve remain in the path verbatim.
func (p ResourcePath) Resolve(r PlaceholderResolver) string {
	if !p.placeholders || r == nil {
		return p.path
	}
	return placeholderPattern.ReplaceAllStringFunc(p.path, func(token string) string {
		name := token[2 : len(token)-1]
		if value, ok := r.ResolvePlaceholder(name); ok {
			return value
		}
		return token
	})
}

// placeholderChain asks each resolver in turn, falling back to the process
// environment.
type placeholderChain []PlaceholderResolver

func (c placeholderChain) ResolvePlaceholder(name string) (string, bool) {
	for _, r := range c {
		if value, ok := r.ResolvePlaceholder(name); ok {
			return value, true
		}
	}
	return os.LookupEnv(name)
}

// joinPath appends suffix to path, avoiding a doubled separator
func joinPath(path, suffix string) string {
	if suffix == "" {
		return path
	}
	if strings.HasSuffix(path, "/") && strings.HasPrefix(suffix, "/") {
		return path + suffix[1:]
	}
	return path + suffix
}

// lastSegment returns the name part of path
func lastSegment(path string) string {
	path = strings.TrimSuffix(path, "/")
	if i := strings.LastIndex(path, "/"); i >= 0 {
		return path[i+1:]
	}
	return path
}
