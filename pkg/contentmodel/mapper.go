package contentmodel

import (
	"context"
	"fmt"
	"reflect"
	"time"

	"github.com/viant/xunsafe"
)

// Map instantiates the model of result and populates it from node. If the
// same node is already being mapped onto the same model type in the call
// tree of ctx, the instance under construction is returned.
func (s *service) Map(ctx context.Context, node Node, result LookupResult) (any, error) {
	if node == nil {
		return nil, ErrNilNode
	}
	if result.Source == nil {
		return nil, &MappingError{Path: node.Path(), Op: "map", Err: fmt.Errorf("%w: lookup result has no source", ErrInvalidSource)}
	}
	meta, err := s.metadata.Metadata(result.Source.Type())
	if err != nil {
		return nil, &MappingError{Path: node.Path(), Model: sourceKey(result.Source), Op: "map", Err: err}
	}

	ctx = withMappingStack(ctx)
	mapping := &Mapping{Path: node.Path(), Metadata: meta, ResolvedType: result.ResolvedType}

	// only the outermost mapping of a model type is timed; nested mappings
	// are part of its duration
	trackDuration := !hasOngoingMapping(ctx, meta)

	if ongoing := begin(ctx, mapping); ongoing != nil {
		model := ongoing.Model()
		if model == nil {
			return nil, &MappingError{Path: node.Path(), Model: meta.TypeName(), Op: "map", Err: ErrModelCycle}
		}
		return model, nil
	}
	defer end(ctx, mapping)

	model, err := s.populate(ctx, node, result.Source, meta, mapping, trackDuration)
	if err != nil {
		s.hooks.executeOnError(ctx, "map", err)
		return nil, err
	}
	return model, nil
}

func (s *service) populate(ctx context.Context, node Node, source ModelSource, meta *ModelMetadata, mapping *Mapping, trackDuration bool) (any, error) {
	start := time.Now()
	mappingError := func(op string, err error) error {
		return &MappingError{Path: node.Path(), Model: meta.TypeName(), Op: op, Err: err}
	}

	if err := s.hooks.executeBeforeMap(ctx, node, meta); err != nil {
		return nil, mappingError("before map", err)
	}

	model, err := source.New(ctx)
	if err != nil {
		return nil, mappingError("instantiate", err)
	}
	if model == nil || reflect.TypeOf(model) != meta.Type || reflect.ValueOf(model).IsNil() {
		return nil, mappingError("instantiate", fmt.Errorf("%w: source %s returned %T", ErrInvalidSource, sourceKey(source), model))
	}
	meta.Statistics.CountInstantiation()
	mapping.setModel(model)

	for _, processor := range s.postProcessors {
		replacement, err := processor.ProcessBeforeMapping(ctx, model, node)
		if err != nil {
			return nil, mappingError("process before mapping", err)
		}
		if replacement != nil {
			model = replacement
			mapping.setModel(model)
		}
	}
	if reflect.TypeOf(model) != meta.Type {
		return nil, mappingError("process before mapping", fmt.Errorf("%w: replacement model has type %T", ErrInvalidSource, model))
	}

	s.invokeHooks(ctx, model, meta.beforeHooks)

	if err := s.mapFields(ctx, node, model, meta); err != nil {
		return nil, mappingError("map fields", err)
	}

	s.invokeHooks(ctx, model, meta.afterHooks)

	for _, processor := range s.postProcessors {
		replacement, err := processor.ProcessAfterMapping(ctx, model, node)
		if err != nil {
			return nil, mappingError("process after mapping", err)
		}
		if replacement != nil {
			model = replacement
			mapping.setModel(model)
		}
	}

	var duration time.Duration
	if trackDuration {
		duration = time.Since(start)
		meta.Statistics.CountMappingDuration(duration)
	}
	if err := s.hooks.executeAfterMap(ctx, node, meta, duration); err != nil {
		s.logger.WarnContext(ctx, "after map hook failed", "path", node.Path(), "model", meta.TypeName(), "error", err)
	}
	return model, nil
}

func (s *service) mapFields(ctx context.Context, node Node, model any, meta *ModelMetadata) error {
	fm := &fieldMapping{
		service:    s,
		model:      model,
		ptr:        xunsafe.AsPointer(model),
		node:       node,
		properties: node.Properties(),
	}
	for _, field := range meta.Fields {
		if err := fm.mapField(ctx, field); err != nil {
			return fmt.Errorf("field %s: %w", field.Name, err)
		}
	}
	return nil
}

// invokeHooks calls lifecycle methods of model. Failures are logged and do
// not stop the remaining methods.
func (s *service) invokeHooks(ctx context.Context, model any, methods []reflect.Method) {
	if len(methods) == 0 {
		return
	}
	receiver := reflect.ValueOf(model)
	for _, method := range methods {
		if err := invokeHook(receiver, method); err != nil {
			s.logger.ErrorContext(ctx, "model lifecycle method failed",
				"model", receiver.Type().String(), "method", method.Name, "error", err)
		}
	}
}

func invokeHook(receiver reflect.Value, method reflect.Method) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	out := method.Func.Call([]reflect.Value{receiver})
	if len(out) == 1 && !out[0].IsNil() {
		return out[0].Interface().(error)
	}
	return nil
}
