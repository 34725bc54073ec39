package main

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/jwtauth"
	"github.com/go-chi/render"
	"github.com/tendant/chi-demo/app"
	demomiddleware "github.com/tendant/chi-demo/middleware"
	"github.com/tendant/content-model/pkg/contentmodel"
	"github.com/tendant/content-model/pkg/contentmodel/api"
	"github.com/tendant/content-model/pkg/contentmodel/config"
	"github.com/tendant/content-model/pkg/contentmodel/metrics"
	"github.com/tendant/content-model/pkg/contentmodel/snapshot"
)

type serverDeps struct {
	config       *config.ServerConfig
	service      contentmodel.Service
	content      *config.Content
	snapshots    snapshot.Store
	recorder     *metrics.Recorder
	apiKeySHA256 string
	logger       *slog.Logger
}

// HealthResponse is the body of the health endpoint
type HealthResponse struct {
	Status      string `json:"status"`
	Environment string `json:"environment"`
	Tree        string `json:"tree"`
	Snapshots   string `json:"snapshots"`
}

func newRouter(deps serverDeps) (http.Handler, error) {
	r := chi.NewRouter()

	// Middleware
	r.Use(api.RequestIDMiddleware)
	r.Use(middleware.RealIP)
	r.Use(api.LoggingMiddleware(deps.logger))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		resp := HealthResponse{
			Status:      "healthy",
			Environment: deps.config.Environment,
			Tree:        deps.config.TreeType,
			Snapshots:   deps.config.Snapshot.Type,
		}
		if err := deps.content.Ping(ctx); err != nil {
			deps.logger.Warn("Content tree is unreachable", "err", err)
			resp.Status = "unhealthy"
			render.Status(r, http.StatusServiceUnavailable)
		}
		render.JSON(w, r, resp)
	})
	app.RoutesHealthz(r)
	app.RoutesHealthzReady(r)

	if deps.recorder != nil {
		r.Handle(deps.config.MetricsURI+"*", deps.recorder.Handler(deps.config.MetricsURI))
	}

	keyStats := contentmodel.NewKeyStatistics()
	options := []api.Option{
		api.WithKeyStatistics(keyStats),
		api.WithLogger(deps.logger),
	}
	if deps.config.AdminSecret != "" {
		options = append(options, api.WithAdminAuth(jwtauth.New("HS256", []byte(deps.config.AdminSecret), nil)))
	}
	if deps.snapshots != nil && deps.content.Memory != nil {
		options = append(options, api.WithSnapshots(deps.snapshots, deps.content.Memory))
	}
	console := api.NewConsoleHandler(deps.service, deps.content.Tree, options...)

	var apiKey func(http.Handler) http.Handler
	if deps.apiKeySHA256 != "" {
		mw, err := demomiddleware.ApiKeyMiddleware(demomiddleware.ApiKeyConfig{
			APIKeys: map[string]string{
				"key1": deps.apiKeySHA256,
			},
		})
		if err != nil {
			return nil, err
		}
		apiKey = mw
	}

	r.Route("/api/v1", func(r chi.Router) {
		if apiKey != nil {
			r.Use(apiKey)
		}
		r.Use(api.RequestCacheMiddleware(keyStats, func(req *http.Request) []contentmodel.RequestCacheOption {
			return deps.config.RequestCacheOptions(req.URL.Query().Get("path"), req.URL.RawQuery)
		}))
		r.Mount("/console", console.Routes())
	})

	return r, nil
}
