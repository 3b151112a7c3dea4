// Package server provides the public entry point for initializing the
// raincheck service.
//
// This package exists in pkg/ (not internal/) so embedders can compose the
// assembled server with their own middleware or run it inside a larger
// process.
//
// Usage:
//
//	srv, err := server.New(ctx)
//	http.ListenAndServe(":8080", srv.Handler)
package server

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/raincheck/raincheck/internal/api"
	"github.com/raincheck/raincheck/internal/api/handlers"
	"github.com/raincheck/raincheck/internal/classify"
	"github.com/raincheck/raincheck/internal/config"
	"github.com/raincheck/raincheck/internal/intent"
	"github.com/raincheck/raincheck/internal/llm"
	"github.com/raincheck/raincheck/internal/places"
	"github.com/raincheck/raincheck/internal/planner"
	"github.com/raincheck/raincheck/internal/replan"
	"github.com/raincheck/raincheck/internal/retention"
	"github.com/raincheck/raincheck/internal/sessions"
	"github.com/raincheck/raincheck/internal/store"
	"github.com/raincheck/raincheck/internal/telemetry"
	"github.com/raincheck/raincheck/internal/weather"

	"github.com/rs/zerolog/log"
)

// Config is the public configuration for the raincheck server.
type Config struct {
	Port         int
	Version      string
	OTELEnabled  bool
	OTELEndpoint string
	ServiceName  string
}

// Server holds the initialized raincheck service.
type Server struct {
	// Handler is the HTTP handler with all routes and middleware.
	Handler http.Handler

	// Store is the session store backing the state machine.
	Store store.Store

	// Poller refreshes the rainy-date outlook; nil when no forecast
	// function is configured. The caller owns its goroutine.
	Poller *weather.Poller

	// Janitor prunes idle sessions from SQL backends; nil for the memory
	// backend (it evicts internally) or when the TTL is zero. The caller
	// owns its goroutine.
	Janitor *retention.Janitor

	// Config is the server configuration.
	Config *Config

	// Port is the port the server should listen on.
	Port int

	// ShutdownFunc should be called on graceful shutdown to flush telemetry.
	ShutdownFunc func(context.Context) error
}

// LoadConfig loads configuration from environment variables.
func LoadConfig() *Config {
	cfg := config.Load()
	return &Config{
		Port:         cfg.Port,
		Version:      cfg.Version,
		OTELEnabled:  cfg.Telemetry.Enabled,
		OTELEndpoint: cfg.Telemetry.OTLPEndpoint,
		ServiceName:  cfg.Telemetry.ServiceName,
	}
}

// New initializes all raincheck components and returns a ready Server.
func New(ctx context.Context) (*Server, error) {
	return NewWithConfig(ctx, LoadConfig())
}

// NewWithConfig initializes the service with an explicit configuration.
func NewWithConfig(ctx context.Context, pubCfg *Config) (*Server, error) {
	// Build internal config from public config
	cfg := config.Load()
	if pubCfg.Port > 0 {
		cfg.Port = pubCfg.Port
	}

	// Initialize telemetry
	shutdown, err := telemetry.Init(cfg.Telemetry)
	if err != nil {
		return nil, fmt.Errorf("init telemetry: %w", err)
	}

	// Session store
	dataStore, err := store.Open(ctx, store.Options{
		Backend:     cfg.Store.Backend,
		DataDir:     cfg.Store.DataDir,
		SQLitePath:  cfg.Store.SQLitePath,
		PostgresURL: cfg.Store.PostgresURL,
	})
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	log.Info().Str("backend", cfg.Store.Backend).Msg("✅ Session store initialized")

	// Upstream clients
	dir := places.NewGoogleClient(places.GoogleConfig{APIKey: cfg.Google.APIKey})
	chat := llm.New(cfg.OpenAI.APIKey, cfg.OpenAI.Model)
	if !dir.Configured() {
		log.Warn().Msg("GOOGLE_API_KEY not set, place lookups will degrade")
	}
	if !chat.Configured() {
		log.Warn().Msg("OPENAI_API_KEY not set, plan suggestion and llm-apply are unavailable")
	}

	// Core services
	engine := replan.New(dir, classify.NewKeywordClassifier(dir))
	pl := planner.New(dir, chat)
	mgr := sessions.NewManager(dataStore, engine, intent.NewResolver(chat))

	var poller *weather.Poller
	if cfg.Weather.FunctionURL != "" {
		client := weather.NewClient(cfg.Weather.FunctionURL, cfg.Weather.NX, cfg.Weather.NY)
		poller = weather.NewPoller(client, time.Duration(cfg.Weather.PollMinutes)*time.Minute)
	} else {
		log.Warn().Msg("RAINCHECK_FUNCTION_URL not set, weather outlook disabled")
	}

	var janitor *retention.Janitor
	switch strings.ToLower(strings.TrimSpace(cfg.Store.Backend)) {
	case "sqlite", "postgres":
		if cfg.Store.SessionTTL > 0 {
			janitor = retention.NewJanitor(dataStore, cfg.Store.SessionTTL, time.Hour)
		}
	}

	log.Info().Msg("✅ Replanning engine initialized")
	log.Info().Msg("✅ Session manager initialized")

	// Build handlers + API router
	h := handlers.New(dataStore, pl, engine, mgr, poller)
	h.AltRadiusKM = cfg.Replan.RadiusKM
	h.AltTopK = cfg.Replan.TopK
	router := api.NewRouter(cfg, h)

	return &Server{
		Handler:      router,
		Store:        dataStore,
		Poller:       poller,
		Janitor:      janitor,
		Config:       pubCfg,
		Port:         cfg.Port,
		ShutdownFunc: shutdown,
	}, nil
}
