package contentmodel

import (
	"errors"
	"fmt"
)

// Error types
var (
	// ErrNilNode indicates a nil node was passed to an operation requiring one
	ErrNilNode = errors.New("node is nil")

	// ErrModelCycle indicates a model depends on itself before it was instantiated
	ErrModelCycle = errors.New("model initialization resulted in a cycle")

	// ErrMetadataNotFound indicates metadata was requested for an unregistered model type
	ErrMetadataNotFound = errors.New("model metadata not found")

	// ErrInvalidTag indicates a malformed content struct tag
	ErrInvalidTag = errors.New("invalid content tag")

	// ErrInvalidSource indicates a model source that cannot be registered
	ErrInvalidSource = errors.New("invalid model source")

	// ErrNoTree indicates a node that does not belong to a tree
	ErrNoTree = errors.New("node has no tree")
)

// MappingError represents a failure while mapping a node onto a model
type MappingError struct {
	Path  string
	Model string
	Op    string
	Err   error
}

func (e *MappingError) Error() string {
	return fmt.Sprintf("mapping operation %s failed for %s at %s: %v", e.Op, e.Model, e.Path, e.Err)
}

func (e *MappingError) Unwrap() error {
	return e.Err
}

// LookupError represents a failure while looking up models for a node
type LookupError struct {
	Path string
	Op   string
	Err  error
}

func (e *LookupError) Error() string {
	return fmt.Sprintf("lookup operation %s failed for %s: %v", e.Op, e.Path, e.Err)
}

func (e *LookupError) Unwrap() error {
	return e.Err
}

// RegistrationError represents a failure while registering models of a module
type RegistrationError struct {
	Module string
	Op     string
	Err    error
}

func (e *RegistrationError) Error() string {
	return fmt.Sprintf("registration operation %s failed for module %s: %v", e.Op, e.Module, e.Err)
}

func (e *RegistrationError) Unwrap() error {
	return e.Err
}
