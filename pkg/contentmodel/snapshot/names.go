package snapshot

import (
	"fmt"
	"strings"
)

// Extension is appended to snapshot names to form object keys and file names
const Extension = ".yaml"

// ObjectKey returns the storage key of the snapshot name below prefix
func ObjectKey(prefix, name string) (string, error) {
	if err := ValidateName(name); err != nil {
		return "", err
	}
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		return name + Extension, nil
	}
	return prefix + "/" + name + Extension, nil
}

// NameOf reverses ObjectKey; ok is false for keys that hold no snapshot
func NameOf(prefix, key string) (string, bool) {
	prefix = strings.Trim(prefix, "/")
	if prefix != "" {
		if !strings.HasPrefix(key, prefix+"/") {
			return "", false
		}
		key = key[len(prefix)+1:]
	}
	name, ok := strings.CutSuffix(key, Extension)
	if !ok || ValidateName(name) != nil {
		return "", false
	}
	return name, true
}

// ValidateName accepts names made of letters, digits, '-', '_' and '.'
func ValidateName(name string) error {
	if name == "" || name == "." || name == ".." {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == '-', r == '_', r == '.':
		default:
			return fmt.Errorf("%w: %q", ErrInvalidName, name)
		}
	}
	return nil
}
