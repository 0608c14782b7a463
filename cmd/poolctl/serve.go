package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"

	"relaypool.dev/internal/chk"
	"relaypool.dev/internal/log"
	"relaypool.dev/pkg/relay"
	"relaypool.dev/pkg/wire"
)

// relayStatusOutput describes one registered relay for the /relays listing.
type relayStatusOutput struct {
	URL    string `json:"url"`
	Status string `json:"status"`
	Flags  string `json:"flags"`
}

type relaysOutput struct {
	Body []relayStatusOutput `json:"body"`
}

type publishInput struct {
	Body struct {
		Event *wire.Event `json:"event"`
	}
}

type publishOutput struct {
	Body struct {
		Id      wire.Id           `json:"id"`
		Success []string          `json:"success"`
		Failed  map[string]string `json:"failed"`
	}
}

type queryInput struct {
	Author string `query:"author"`
	Kind   int    `query:"kind"`
	Search string `query:"search"`
	Limit  int    `query:"limit" default:"50"`
}

type queryOutput struct {
	Body []*wire.Event `json:"body"`
}

// runServe builds a pool from cfg/c.Relays and exposes it over a small REST
// surface (chi router, huma for request/response schema and OpenAPI, rs/cors
// for browser-based tooling) until interrupted.
func runServe(cfg *Config, c *serveCmd) {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	p, es, err := buildPool(ctx, cfg, c.Relays)
	if chk.E(err) {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer func() { _ = es.Close() }()
	defer func() { _ = p.Shutdown(context.Background()) }()

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)

	corsHandler := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete},
	})
	router.Use(corsHandler.Handler)

	api := humachi.New(router, huma.DefaultConfig("relaypool", "0.1.0"))

	huma.Register(api, huma.Operation{
		OperationID: "list-relays",
		Method:      http.MethodGet,
		Path:        "/relays",
		Summary:     "List every relay currently registered with the pool",
	}, func(ctx context.Context, _ *struct{}) (*relaysOutput, error) {
		out := &relaysOutput{}
		for _, info := range p.RelayStatuses() {
			out.Body = append(out.Body, relayStatusOutput{
				URL:    info.URL,
				Status: info.Status.String(),
				Flags:  info.Flags.String(),
			})
		}
		return out, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "query-events",
		Method:      http.MethodGet,
		Path:        "/events",
		Summary:     "Fetch events matching a filter from every registered relay",
	}, func(ctx context.Context, in *queryInput) (*queryOutput, error) {
		filter := &wire.Filter{Search: in.Search}
		if in.Author != "" {
			filter.Authors = []string{in.Author}
		}
		if in.Kind != 0 {
			filter.Kinds = []int{in.Kind}
		}
		if in.Limit > 0 {
			limit := in.Limit
			filter.Limit = &limit
		}
		events, err := p.FetchEventsTargeted(ctx, p.RelayURLs(), []*wire.Filter{filter}, 10*time.Second, relay.FetchPolicy{Exit: relay.ExitOnEOSE})
		if err != nil {
			return nil, huma.Error502BadGateway("fetch failed", err)
		}
		return &queryOutput{Body: events}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "publish-event",
		Method:      http.MethodPost,
		Path:        "/events",
		Summary:     "Publish an event to the write subset",
	}, func(ctx context.Context, in *publishInput) (*publishOutput, error) {
		if in.Body.Event == nil {
			return nil, huma.Error400BadRequest("missing event body")
		}
		outcome, err := p.SendEvent(ctx, in.Body.Event)
		if err != nil && outcome == nil {
			return nil, huma.Error502BadGateway("publish failed", err)
		}
		out := &publishOutput{}
		out.Body.Id = in.Body.Event.ID
		for url := range outcome.Success {
			out.Body.Success = append(out.Body.Success, url)
		}
		out.Body.Failed = outcome.Failed
		return out, nil
	})

	srv := &http.Server{Addr: c.Listen, Handler: router}
	go func() {
		<-ctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.I.F("serving relay pool API on %s", c.Listen)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.E.F("server exited: %v", err)
	}
}
