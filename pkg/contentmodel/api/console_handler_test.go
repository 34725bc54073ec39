package api

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/jwtauth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/content-model/pkg/contentmodel"
	fssnapshot "github.com/tendant/content-model/pkg/contentmodel/snapshot/fs"
	"github.com/tendant/content-model/pkg/contentmodel/tree/memory"
)

type Page struct {
	Title string `content:"jcr:title" json:"title"`
}

type Teaser struct {
	Text string  `content:"text" json:"text"`
	Self *Teaser `content:",this" json:"self"`
}

type consoleFixture struct {
	router   chi.Router
	service  contentmodel.Service
	tree     *memory.Tree
	keyStats *contentmodel.KeyStatistics
	token    string
}

// setupConsoleTest creates a console over a memory tree with page and teaser models
func setupConsoleTest(t *testing.T) *consoleFixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	tree := memory.New()
	require.NoError(t, tree.Put("/content/page", memory.NodeSpec{
		ResourceType: "app/page",
		NodeType:     &contentmodel.NodeType{Primary: contentmodel.NodeTypeUnstructured},
		Properties:   contentmodel.Properties{"jcr:title": "Home"},
	}))
	require.NoError(t, tree.Put("/content/page/teaser", memory.NodeSpec{
		ResourceType: "app/teaser",
		NodeType:     &contentmodel.NodeType{Primary: contentmodel.NodeTypeUnstructured},
		Properties:   contentmodel.Properties{"text": "Hello"},
	}))

	service, err := contentmodel.New(contentmodel.WithLogger(logger))
	require.NoError(t, err)
	_, err = service.RegisterModule("site",
		contentmodel.ModelDefinition{Types: []string{"app/page"}, Source: contentmodel.NewSource[Page]("site", "page")},
		contentmodel.ModelDefinition{Types: []string{"app/teaser"}, Source: contentmodel.NewSource[Teaser]("site", "teaser")},
	)
	require.NoError(t, err)

	store, err := fssnapshot.New(fssnapshot.Config{BaseDir: t.TempDir()})
	require.NoError(t, err)

	auth := jwtauth.New("HS256", []byte("test-secret"), nil)
	_, token, err := auth.Encode(map[string]interface{}{"sub": "admin"})
	require.NoError(t, err)

	keyStats := contentmodel.NewKeyStatistics()
	handler := NewConsoleHandler(service, tree,
		WithSnapshots(store, tree),
		WithKeyStatistics(keyStats),
		WithAdminAuth(auth),
		WithLogger(logger),
	)

	router := chi.NewRouter()
	router.Use(RequestIDMiddleware)
	router.Use(RequestCacheMiddleware(keyStats, nil))
	router.Mount("/", handler.Routes())

	return &consoleFixture{router: router, service: service, tree: tree, keyStats: keyStats, token: token}
}

func (f *consoleFixture) do(t *testing.T, method, target string, admin bool) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	if admin {
		req.Header.Set("Authorization", "Bearer "+f.token)
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func TestConsoleHandler_Resolve(t *testing.T) {
	f := setupConsoleTest(t)

	t.Run("MostSpecific", func(t *testing.T) {
		w := f.do(t, http.MethodGet, "/resolve?path=/content/page", false)
		require.Equal(t, http.StatusOK, w.Code)
		assert.NotEmpty(t, w.Header().Get("X-Request-ID"))

		var resp ResolveResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.True(t, resp.Found)
		assert.Equal(t, "app/page", resp.ResourceType)
		require.NotEmpty(t, resp.Hierarchy)
		assert.Equal(t, "app/page", resp.Hierarchy[0])
		assert.Equal(t, "api.Page", resp.ModelType)
		assert.JSONEq(t, `{"title":"Home"}`, string(resp.Model))
	})

	t.Run("ByName", func(t *testing.T) {
		w := f.do(t, http.MethodGet, "/resolve?path=/content/page&name=teaser", false)
		require.Equal(t, http.StatusOK, w.Code)

		var resp ResolveResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.False(t, resp.Found)
		assert.Empty(t, resp.Model)
	})

	t.Run("SelfReferencingModel", func(t *testing.T) {
		w := f.do(t, http.MethodGet, "/resolve?path=/content/page/teaser", false)
		require.Equal(t, http.StatusOK, w.Code)

		var resp ResolveResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.True(t, resp.Found)
		assert.Equal(t, "api.Teaser", resp.ModelType)
		assert.NotEmpty(t, resp.ModelError)
	})

	t.Run("Errors", func(t *testing.T) {
		assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodGet, "/resolve", false).Code)
		assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodGet, "/resolve?path=/content/missing", false).Code)
		assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodGet, "/resolve?path=/content/page&base=maybe", false).Code)
	})
}

func TestConsoleHandler_Lookup(t *testing.T) {
	f := setupConsoleTest(t)

	w := f.do(t, http.MethodGet, "/lookup?path=/content/page", false)
	require.Equal(t, http.StatusOK, w.Code)

	var resp []LookupResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp, 1)
	assert.Equal(t, LookupResponse{Module: "site", Name: "page", ModelType: "*api.Page", ResolvedType: "app/page"}, resp[0])

	w = f.do(t, http.MethodGet, "/lookup?path=/content/page&name=teaser", false)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Empty(t, resp)
}

func TestConsoleHandler_Registry(t *testing.T) {
	f := setupConsoleTest(t)

	w := f.do(t, http.MethodGet, "/registry", false)
	require.Equal(t, http.StatusOK, w.Code)

	var mappings map[string][]SourceResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &mappings))
	assert.Equal(t, []SourceResponse{{Module: "site", Name: "teaser", ModelType: "*api.Teaser"}}, mappings["app/teaser"])

	t.Run("MutationsRequireToken", func(t *testing.T) {
		assert.Equal(t, http.StatusUnauthorized, f.do(t, http.MethodPost, "/registry/clear", false).Code)
		assert.Equal(t, http.StatusNoContent, f.do(t, http.MethodPost, "/registry/clear", true).Code)
	})

	t.Run("UnregisterModule", func(t *testing.T) {
		assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodDelete, "/modules/unknown", true).Code)

		w := f.do(t, http.MethodDelete, "/modules/site", true)
		require.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"removed":2}`, w.Body.String())

		w = f.do(t, http.MethodGet, "/resolve?path=/content/page", false)
		var resp ResolveResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.False(t, resp.Found)
	})
}

func TestConsoleHandler_Models(t *testing.T) {
	f := setupConsoleTest(t)
	require.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/resolve?path=/content/page", false).Code)

	w := f.do(t, http.MethodGet, "/models", false)
	require.Equal(t, http.StatusOK, w.Code)

	var models []ModelResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &models))
	require.Len(t, models, 2)
	assert.Equal(t, "api.Page", models[0].Type)
	assert.Equal(t, int64(1), models[0].Statistics.Instantiations)
	assert.Empty(t, models[0].Fields)

	w = f.do(t, http.MethodGet, "/models/api.Page", false)
	require.Equal(t, http.StatusOK, w.Code)
	var model ModelResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &model))
	require.Len(t, model.Fields, 1)
	assert.Equal(t, FieldResponse{Name: "Title", Path: "jcr:title", Binding: "property", Type: "string"}, model.Fields[0])

	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodGet, "/models/api.Missing", false).Code)

	require.Equal(t, http.StatusNoContent, f.do(t, http.MethodPost, "/models/statistics/reset", true).Code)
	meta, err := f.service.Metadata(reflect.TypeOf(&Page{}))
	require.NoError(t, err)
	assert.Zero(t, meta.Statistics.Snapshot().Instantiations)
}

func TestConsoleHandler_CacheKeys(t *testing.T) {
	f := setupConsoleTest(t)
	require.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/resolve?path=/content/page", false).Code)

	w := f.do(t, http.MethodGet, "/cache/keys", false)
	require.Equal(t, http.StatusOK, w.Code)

	var resp CacheKeysResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.Summary.Keys)
	assert.Equal(t, int64(1), resp.Summary.Misses)
	assert.Equal(t, int64(1), resp.Summary.Writes)

	require.Equal(t, http.StatusNoContent, f.do(t, http.MethodDelete, "/cache/keys", true).Code)
	assert.Zero(t, f.keyStats.Summary().Keys)
}

func TestConsoleHandler_Snapshots(t *testing.T) {
	f := setupConsoleTest(t)
	ctx := context.Background()

	w := f.do(t, http.MethodGet, "/snapshots", false)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, w.Body.String())

	w = f.do(t, http.MethodPost, "/snapshots/site", true)
	require.Equal(t, http.StatusCreated, w.Code)
	var saved SnapshotResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &saved))
	assert.Equal(t, "site", saved.Name)
	assert.Positive(t, saved.Nodes)

	_, err := f.tree.Remove("/content/page")
	require.NoError(t, err)
	missing, err := f.tree.Get(ctx, "/content/page")
	require.NoError(t, err)
	require.Nil(t, missing)

	require.Equal(t, http.StatusOK, f.do(t, http.MethodPost, "/snapshots/site/load", true).Code)
	restored, err := f.tree.Get(ctx, "/content/page/teaser")
	require.NoError(t, err)
	require.NotNil(t, restored)
	assert.Equal(t, "Hello", restored.Properties().String("text"))

	w = f.do(t, http.MethodGet, "/snapshots", false)
	assert.JSONEq(t, `["site"]`, w.Body.String())

	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodPost, "/snapshots/bad%20name", true).Code)
	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodPost, "/snapshots/missing/load", true).Code)
	assert.Equal(t, http.StatusNoContent, f.do(t, http.MethodDelete, "/snapshots/site", true).Code)
	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodDelete, "/snapshots/site", true).Code)
}

func TestConsoleHandler_ReadOnly(t *testing.T) {
	service, err := contentmodel.New()
	require.NoError(t, err)

	router := NewConsoleHandler(service, memory.New()).Routes()

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/registry/clear", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/snapshots", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/cache/keys", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}
