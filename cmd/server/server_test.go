package main

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/content-model/pkg/contentmodel"
	"github.com/tendant/content-model/pkg/contentmodel/api"
	"github.com/tendant/content-model/pkg/contentmodel/config"
	"github.com/tendant/content-model/pkg/contentmodel/metrics"
)

type testServer struct {
	handler  http.Handler
	content  *config.Content
	recorder *metrics.Recorder
}

func setupServer(t *testing.T, opts ...config.Option) *testServer {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	cfg, err := config.Load(opts...)
	require.NoError(t, err)

	store, err := cfg.BuildSnapshotStore(ctx)
	require.NoError(t, err)
	content, err := cfg.BuildContent(ctx, store, logger)
	require.NoError(t, err)
	t.Cleanup(content.Close)

	recorder := cfg.BuildMetrics()
	svc, err := cfg.BuildService(logger, recorder,
		contentmodel.WithPlaceholderResolver(contentmodel.PlaceholderResolverFunc(demoPlaceholders)))
	require.NoError(t, err)
	go svc.ChangeListener().Run(ctx)
	content.Watch(ctx, svc.ChangeListener())

	require.NoError(t, registerDemoModels(svc))
	require.NoError(t, seedDemoContent(ctx, content.Memory))

	handler, err := newRouter(serverDeps{
		config:    cfg,
		service:   svc,
		content:   content,
		snapshots: store,
		recorder:  recorder,
		logger:    logger,
	})
	require.NoError(t, err)
	return &testServer{handler: handler, content: content, recorder: recorder}
}

func (s *testServer) get(t *testing.T, target string) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	s.handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, target, nil))
	return w
}

func resolvePage(t *testing.T, s *testServer, path string) Page {
	t.Helper()
	w := s.get(t, "/api/v1/console/resolve?path="+path)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp api.ResolveResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.True(t, resp.Found)
	assert.Equal(t, "main.Page", resp.ModelType)

	var page Page
	require.NoError(t, json.Unmarshal(resp.Model, &page))
	return page
}

func TestHealth(t *testing.T) {
	s := setupServer(t)

	w := s.get(t, "/health")
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))

	var resp HealthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, HealthResponse{Status: "healthy", Environment: "development", Tree: "memory", Snapshots: "none"}, resp)
}

func TestDemoModels(t *testing.T) {
	s := setupServer(t)

	t.Run("Home", func(t *testing.T) {
		page := resolvePage(t, s, "/content/home")
		assert.Equal(t, "Home", page.Title)
		assert.Equal(t, time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC), page.Created.UTC())
		assert.Equal(t, []string{"start", "welcome"}, page.Tags)
		require.Len(t, page.Teasers, 2)
		assert.Equal(t, Teaser{Text: "Read about us", Link: "/content/about"}, *page.Teasers[0])
		require.Len(t, page.Related, 1)
		assert.Equal(t, "About", page.Related[0].String("jcr:title"))
		assert.Equal(t, "Home", page.Rendered)
	})

	t.Run("About", func(t *testing.T) {
		page := resolvePage(t, s, "/content/about")
		assert.Empty(t, page.Teasers)
		require.Len(t, page.Related, 1, "missing references are dropped")
		assert.Equal(t, "Home", page.Site)
		assert.Equal(t, "About | Home", page.Rendered)
	})

	t.Run("TeasersResolveThroughTheirSuperType", func(t *testing.T) {
		w := s.get(t, "/api/v1/console/lookup?path=/content/home/teasers/first")
		require.Equal(t, http.StatusOK, w.Code)

		var results []api.LookupResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &results))
		require.Len(t, results, 1)
		assert.Equal(t, "core/teaser", results[0].ResolvedType)
	})

	t.Run("MappingsAreMetered", func(t *testing.T) {
		name := metrics.OperationName("main.Page", "mapping")
		assert.NotNil(t, s.recorder.Service().LookupOperation(name))
	})
}

func TestTypeChangesInvalidateLookups(t *testing.T) {
	s := setupServer(t)

	w := s.get(t, "/api/v1/console/lookup?path=/content/home/teasers/first")
	require.Equal(t, http.StatusOK, w.Code)

	require.NoError(t, s.content.Memory.DefineResourceType("app/teaser", "core/other"))

	assert.Eventually(t, func() bool {
		w := s.get(t, "/api/v1/console/lookup?path=/content/home/teasers/first")
		var results []api.LookupResponse
		return w.Code == http.StatusOK &&
			json.Unmarshal(w.Body.Bytes(), &results) == nil &&
			len(results) == 0
	}, time.Second, 10*time.Millisecond)
}

func TestMutatingRoutesNeedAdminSecret(t *testing.T) {
	s := setupServer(t)

	w := httptest.NewRecorder()
	s.handler.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/console/registry/clear", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)

	s = setupServer(t, config.WithAdminSecret("secret"))
	w = httptest.NewRecorder()
	s.handler.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/console/registry/clear", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestNewLogger(t *testing.T) {
	_, err := newLogger(Settings{LogLevel: "debug", LogFormat: "json"})
	assert.NoError(t, err)

	_, err = newLogger(Settings{LogLevel: "loud", LogFormat: "text"})
	assert.Error(t, err)

	_, err = newLogger(Settings{LogLevel: "info", LogFormat: "xml"})
	assert.Error(t, err)
}
