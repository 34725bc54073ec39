package contentmodel

import (
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// Registration is the handle of a registered model source. Closing it
// removes the source from the registry and releases its model metadata.
type Registration struct {
	ID     uuid.UUID
	Types  []string
	Source ModelSource

	once   sync.Once
	remove func()
}

// Close unregisters the source. Subsequent calls do nothing.
func (r *Registration) Close() error {
	r.once.Do(r.remove)
	return nil
}

func (r *Registration) String() string {
	return fmt.Sprintf("%s %s -> [%s]", r.ID, sourceKey(r.Source), strings.Join(r.Types, ", "))
}

// Register registers source for types. The metadata of the model type is
// computed on its first registration.
func (s *service) Register(types []string, source ModelSource) (*Registration, error) {
	if source == nil {
		return nil, &RegistrationError{Op: "register", Err: fmt.Errorf("%w: source is nil", ErrInvalidSource)}
	}
	if len(types) == 0 {
		return nil, &RegistrationError{Module: source.ModuleID(), Op: "register",
			Err: fmt.Errorf("%w: %s declares no types", ErrInvalidSource, sourceKey(source))}
	}
	for _, typeName := range types {
		if strings.TrimSpace(typeName) == "" {
			return nil, &RegistrationError{Module: source.ModuleID(), Op: "register",
				Err: fmt.Errorf("%w: %s declares a blank type", ErrInvalidSource, sourceKey(source))}
		}
	}
	if _, err := s.metadata.Register(source.ModuleID(), source.Type()); err != nil {
		return nil, &RegistrationError{Module: source.ModuleID(), Op: "register", Err: err}
	}

	s.registry.Add(types, source)
	s.logger.Debug("registered model", "model", sourceKey(source), "types", types)

	return &Registration{
		ID:     uuid.New(),
		Types:  append([]string(nil), types...),
		Source: source,
		remove: func() {
			if s.registry.Remove(source) > 0 {
				s.metadata.Release(source.ModuleID(), source.Type())
			}
		},
	}, nil
}

// RegisterModule registers the model definitions of a module. Either all
// definitions are registered or none.
func (s *service) RegisterModule(moduleID string, definitions ...ModelDefinition) ([]*Registration, error) {
	registrations := make([]*Registration, 0, len(definitions))
	for _, definition := range definitions {
		if definition.Source != nil && definition.Source.ModuleID() != moduleID {
			err := &RegistrationError{Module: moduleID, Op: "register module",
				Err: fmt.Errorf("%w: %s belongs to another module", ErrInvalidSource, sourceKey(definition.Source))}
			s.rollback(registrations)
			return nil, err
		}
		registration, err := s.Register(definition.Types, definition.Source)
		if err != nil {
			s.rollback(registrations)
			return nil, err
		}
		registrations = append(registrations, registration)
	}
	s.logger.Info("registered module models", "module", moduleID, "count", len(registrations))
	return registrations, nil
}

func (s *service) rollback(registrations []*Registration) {
	for _, registration := range registrations {
		registration.Close()
	}
}

// UnregisterModule removes the models and metadata of a module
func (s *service) UnregisterModule(moduleID string) int {
	removed := s.registry.RemoveModule(moduleID)
	s.metadata.RemoveModule(moduleID)
	return removed
}
