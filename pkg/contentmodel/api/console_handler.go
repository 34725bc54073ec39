package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"reflect"
	"sort"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/jwtauth"
	"github.com/go-chi/render"
	"github.com/tendant/content-model/pkg/contentmodel"
	"github.com/tendant/content-model/pkg/contentmodel/snapshot"
	"github.com/tendant/content-model/pkg/contentmodel/tree/memory"
)

// ConsoleHandler exposes model resolution and registry administration over HTTP
type ConsoleHandler struct {
	service   contentmodel.Service
	tree      contentmodel.Tree
	memory    *memory.Tree
	snapshots snapshot.Store
	keyStats  *contentmodel.KeyStatistics
	auth      *jwtauth.JWTAuth
	logger    *slog.Logger
}

// Option configures a ConsoleHandler
type Option func(*ConsoleHandler)

// WithSnapshots enables saving and loading snapshots of a memory tree
func WithSnapshots(store snapshot.Store, tree *memory.Tree) Option {
	return func(h *ConsoleHandler) {
		h.snapshots = store
		h.memory = tree
	}
}

// WithKeyStatistics exposes the request cache key statistics
func WithKeyStatistics(stats *contentmodel.KeyStatistics) Option {
	return func(h *ConsoleHandler) {
		h.keyStats = stats
	}
}

// WithAdminAuth enables the mutating endpoints for requests carrying a
// token verified by auth
func WithAdminAuth(auth *jwtauth.JWTAuth) Option {
	return func(h *ConsoleHandler) {
		h.auth = auth
	}
}

// WithLogger sets the logger of the handler
func WithLogger(logger *slog.Logger) Option {
	return func(h *ConsoleHandler) {
		h.logger = logger
	}
}

// NewConsoleHandler creates a console handler resolving nodes of tree
func NewConsoleHandler(service contentmodel.Service, tree contentmodel.Tree, options ...Option) *ConsoleHandler {
	h := &ConsoleHandler{
		service: service,
		tree:    tree,
		logger:  slog.Default(),
	}
	for _, option := range options {
		option(h)
	}
	return h
}

// Routes returns the routes of the console
func (h *ConsoleHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/resolve", h.Resolve)
	r.Get("/lookup", h.Lookup)
	r.Get("/registry", h.TypeMappings)
	r.Get("/models", h.Models)
	r.Get("/models/{typeName}", h.Model)
	r.Get("/cache/keys", h.CacheKeys)
	r.Get("/snapshots", h.ListSnapshots)

	if h.auth != nil {
		r.Group(func(r chi.Router) {
			r.Use(jwtauth.Verifier(h.auth))
			r.Use(jwtauth.Authenticator)

			r.Post("/registry/clear", h.ClearLookupCaches)
			r.Delete("/modules/{moduleID}", h.UnregisterModule)
			r.Post("/models/statistics/reset", h.ResetStatistics)
			r.Delete("/cache/keys", h.ResetCacheKeys)
			r.Post("/snapshots/{name}", h.SaveSnapshot)
			r.Post("/snapshots/{name}/load", h.LoadSnapshot)
			r.Delete("/snapshots/{name}", h.DeleteSnapshot)
		})
	}

	return r
}

// ResolveResponse is the response body of a model resolution
type ResolveResponse struct {
	Path         string          `json:"path"`
	ResourceType string          `json:"resource_type"`
	Hierarchy    []string        `json:"hierarchy"`
	Found        bool            `json:"found"`
	ModelType    string          `json:"model_type,omitempty"`
	Model        json.RawMessage `json:"model,omitempty"`
	ModelError   string          `json:"model_error,omitempty"`
}

// Resolve resolves the most specific model of the node at the path query
// parameter, optionally narrowed by model name and including base types.
func (h *ConsoleHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	node, ok := h.node(w, r)
	if !ok {
		return
	}
	query := r.URL.Query()
	includeBaseTypes, err := parseBool(query.Get("base"))
	if err != nil {
		http.Error(w, "Invalid base parameter", http.StatusBadRequest)
		return
	}

	var model any
	switch name := query.Get("name"); {
	case name != "" && includeBaseTypes:
		model, err = h.service.ResolveMostSpecificNameIncludingBaseTypes(r.Context(), node, name)
	case name != "":
		model, err = h.service.ResolveMostSpecificName(r.Context(), node, name)
	case includeBaseTypes:
		model, err = h.service.ResolveMostSpecificIncludingBaseTypes(r.Context(), node)
	default:
		model, err = h.service.ResolveMostSpecific(r.Context(), node)
	}
	if err != nil {
		h.logger.Error("Failed to resolve model", "path", node.Path(), "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	hierarchy, err := contentmodel.Types(r.Context(), node)
	if err != nil {
		h.logger.Error("Failed to walk type hierarchy", "path", node.Path(), "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	resp := ResolveResponse{
		Path:         node.Path(),
		ResourceType: node.ResourceType(),
		Hierarchy:    hierarchy,
		Found:        model != nil,
	}
	if model != nil {
		if meta, err := h.service.Metadata(reflect.TypeOf(model)); err == nil {
			resp.ModelType = meta.TypeName()
		}
		// models referencing themselves cannot be encoded
		if body, err := json.Marshal(model); err != nil {
			resp.ModelError = err.Error()
		} else {
			resp.Model = body
		}
	}
	render.JSON(w, r, resp)
}

// LookupResponse describes one registry match
type LookupResponse struct {
	Module       string `json:"module"`
	Name         string `json:"name"`
	ModelType    string `json:"model_type"`
	ResolvedType string `json:"resolved_type"`
}

// Lookup lists the model sources applying to the node at the path query
// parameter. With all=true every level of the type hierarchy is reported.
func (h *ConsoleHandler) Lookup(w http.ResponseWriter, r *http.Request) {
	node, ok := h.node(w, r)
	if !ok {
		return
	}
	all, err := parseBool(r.URL.Query().Get("all"))
	if err != nil {
		http.Error(w, "Invalid all parameter", http.StatusBadRequest)
		return
	}

	var results []contentmodel.LookupResult
	switch name := r.URL.Query().Get("name"); {
	case all:
		results, err = h.service.LookupAll(r.Context(), node)
	case name != "":
		results, err = h.service.LookupMostSpecificName(r.Context(), node, name)
	default:
		results, err = h.service.LookupMostSpecific(r.Context(), node)
	}
	if err != nil {
		h.logger.Error("Failed to look up models", "path", node.Path(), "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	resp := make([]LookupResponse, 0, len(results))
	for _, result := range results {
		resp = append(resp, LookupResponse{
			Module:       result.Source.ModuleID(),
			Name:         result.Source.Name(),
			ModelType:    typeName(result.Source),
			ResolvedType: result.ResolvedType,
		})
	}
	render.JSON(w, r, resp)
}

// SourceResponse describes a registered model source
type SourceResponse struct {
	Module    string `json:"module"`
	Name      string `json:"name"`
	ModelType string `json:"model_type"`
}

// TypeMappings lists the registered sources per resource type
func (h *ConsoleHandler) TypeMappings(w http.ResponseWriter, r *http.Request) {
	mappings := h.service.TypeMappings()
	resp := make(map[string][]SourceResponse, len(mappings))
	for resourceType, sources := range mappings {
		for _, source := range sources {
			resp[resourceType] = append(resp[resourceType], SourceResponse{
				Module:    source.ModuleID(),
				Name:      source.Name(),
				ModelType: typeName(source),
			})
		}
	}
	render.JSON(w, r, resp)
}

// FieldResponse describes how a model field is mapped
type FieldResponse struct {
	Name       string `json:"name"`
	Path       string `json:"path"`
	Binding    string `json:"binding"`
	Type       string `json:"type"`
	Collection bool   `json:"collection"`
	Lazy       bool   `json:"lazy,omitempty"`
	Mapper     string `json:"mapper,omitempty"`
}

// ModelResponse describes a model type
type ModelResponse struct {
	Type          string                          `json:"type"`
	BeforeMapping []string                        `json:"before_mapping,omitempty"`
	AfterMapping  []string                        `json:"after_mapping,omitempty"`
	Fields        []FieldResponse                 `json:"fields,omitempty"`
	Statistics    contentmodel.StatisticsSnapshot `json:"statistics"`
}

// Models lists the metadata and statistics of all model types
func (h *ConsoleHandler) Models(w http.ResponseWriter, r *http.Request) {
	all := h.service.AllMetadata()
	sort.Slice(all, func(i, j int) bool { return all[i].TypeName() < all[j].TypeName() })

	resp := make([]ModelResponse, 0, len(all))
	for _, meta := range all {
		resp = append(resp, newModelResponse(meta, false))
	}
	render.JSON(w, r, resp)
}

// Model returns the metadata of one model type, including its fields
func (h *ConsoleHandler) Model(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "typeName")
	for _, meta := range h.service.AllMetadata() {
		if meta.TypeName() == name {
			render.JSON(w, r, newModelResponse(meta, true))
			return
		}
	}
	http.Error(w, "Model not found", http.StatusNotFound)
}

func newModelResponse(meta *contentmodel.ModelMetadata, withFields bool) ModelResponse {
	resp := ModelResponse{
		Type:          meta.TypeName(),
		BeforeMapping: meta.BeforeMappingMethods(),
		AfterMapping:  meta.AfterMappingMethods(),
		Statistics:    meta.Statistics.Snapshot(),
	}
	if !withFields {
		return resp
	}
	for _, field := range meta.Fields {
		resp.Fields = append(resp.Fields, FieldResponse{
			Name:       field.Name,
			Path:       field.Path.String(),
			Binding:    field.Binding.String(),
			Type:       field.Type.String(),
			Collection: field.Collection != contentmodel.NotCollection,
			Lazy:       field.IsLazy(),
			Mapper:     field.Mapper,
		})
	}
	return resp
}

// ResetStatistics clears the statistics of all model types
func (h *ConsoleHandler) ResetStatistics(w http.ResponseWriter, r *http.Request) {
	for _, meta := range h.service.AllMetadata() {
		meta.Statistics.Reset()
	}
	w.WriteHeader(http.StatusNoContent)
}

// ClearLookupCaches drops all cached registry lookups
func (h *ConsoleHandler) ClearLookupCaches(w http.ResponseWriter, r *http.Request) {
	h.service.ClearLookupCaches()
	h.logger.Info("Model lookup caches cleared")
	w.WriteHeader(http.StatusNoContent)
}

// UnregisterModule removes every model source registered by a module
func (h *ConsoleHandler) UnregisterModule(w http.ResponseWriter, r *http.Request) {
	moduleID := chi.URLParam(r, "moduleID")
	removed := h.service.UnregisterModule(moduleID)
	if removed == 0 {
		http.Error(w, "Module not found", http.StatusNotFound)
		return
	}
	h.logger.Info("Module unregistered", "module", moduleID, "removed", removed)
	render.JSON(w, r, map[string]int{"removed": removed})
}

// CacheKeysResponse reports request cache usage per key
type CacheKeysResponse struct {
	Summary contentmodel.ReportSummary `json:"summary"`
	Keys    []contentmodel.KeyReport   `json:"keys"`
}

// CacheKeys returns the request cache key statistics
func (h *ConsoleHandler) CacheKeys(w http.ResponseWriter, r *http.Request) {
	if h.keyStats == nil {
		http.Error(w, "Cache key statistics are disabled", http.StatusNotFound)
		return
	}
	render.JSON(w, r, CacheKeysResponse{
		Summary: h.keyStats.Summary(),
		Keys:    h.keyStats.Reports(),
	})
}

// ResetCacheKeys clears the request cache key statistics
func (h *ConsoleHandler) ResetCacheKeys(w http.ResponseWriter, r *http.Request) {
	if h.keyStats == nil {
		http.Error(w, "Cache key statistics are disabled", http.StatusNotFound)
		return
	}
	h.keyStats.Reset()
	w.WriteHeader(http.StatusNoContent)
}

// node returns the node at the path query parameter, writing the error response when absent
func (h *ConsoleHandler) node(w http.ResponseWriter, r *http.Request) (contentmodel.Node, bool) {
	p := r.URL.Query().Get("path")
	if p == "" {
		http.Error(w, "Missing path parameter", http.StatusBadRequest)
		return nil, false
	}
	node, err := h.tree.Get(r.Context(), p)
	if err != nil {
		h.logger.Error("Failed to read node", "path", p, "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return nil, false
	}
	if node == nil {
		http.Error(w, "Node not found", http.StatusNotFound)
		return nil, false
	}
	return node, true
}

func parseBool(raw string) (bool, error) {
	if raw == "" {
		return false, nil
	}
	return strconv.ParseBool(raw)
}

func typeName(source contentmodel.ModelSource) string {
	if t := source.Type(); t != nil {
		return t.String()
	}
	return ""
}
