// Command poolctl is a small command-line client for the relay pool: it
// opens connections to a relay set, offers an interactive REPL for
// publishing/querying/syncing events, and can expose the pool's state over
// a REST API for other tooling to poll.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/alexflint/go-arg"
	"github.com/pkg/profile"

	"relaypool.dev/internal/chk"
	"relaypool.dev/internal/log"
	"relaypool.dev/pkg/pool"
	"relaypool.dev/pkg/relay"
	"relaypool.dev/pkg/store"
)

type openCmd struct {
	Relays []string `arg:"--relays,separate" help:"relay URL to connect to (repeatable)"`
}

type serveCmd struct {
	Relays []string `arg:"--relays,separate" help:"relay URL to connect to (repeatable)"`
	Listen string   `arg:"--listen" default:"127.0.0.1:8787" help:"address for the REST API to listen on"`
}

type serveSignerCmd struct {
	Listen string `arg:"--listen" default:"127.0.0.1:8788"`
}

type devCmd struct {
	Relays []string `arg:"--relays,separate"`
}

type args struct {
	Open        *openCmd        `arg:"subcommand:open"`
	Serve       *serveCmd       `arg:"subcommand:serve"`
	ServeSigner *serveSignerCmd `arg:"subcommand:serve-signer"`
	Dev         *devCmd         `arg:"subcommand:dev"`
}

func (args) Description() string {
	return "poolctl drives a relay pool from the command line: open a REPL, serve its state over REST, or profile it under load."
}

func main() {
	var a args
	p := arg.MustParse(&a)

	cfg, err := LoadConfig()
	if chk.E(err) {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}
	log.SetLevel(log.ParseLevel(cfg.LogLevel))

	switch {
	case a.Open != nil:
		runOpen(cfg, a.Open)
	case a.Serve != nil:
		runServe(cfg, a.Serve)
	case a.ServeSigner != nil:
		runServeSigner(a.ServeSigner)
	case a.Dev != nil:
		defer profile.Start(profile.CPUProfile).Stop()
		runOpen(cfg, &openCmd{Relays: a.Dev.Relays})
	default:
		p.WriteHelp(os.Stderr)
		os.Exit(1)
	}
}

// buildPool opens the badger-backed event store under cfg.DataDir and
// constructs a pool with every relay in urls (falling back to cfg.Relays
// when urls is empty) added with Read|Write|Ping and connected.
func buildPool(ctx context.Context, cfg *Config, urls []string) (*pool.Pool, *store.BadgerStore, error) {
	if len(urls) == 0 {
		urls = cfg.Relays
	}
	if len(urls) == 0 {
		return nil, nil, fmt.Errorf("no relays specified (use --relays or POOLCTL_RELAYS)")
	}

	es, err := store.Open(ctx, cfg.DataDir)
	if err != nil {
		return nil, nil, err
	}

	p := pool.New(es)
	for _, u := range urls {
		if _, err := p.AddRelay(u, relay.Read|relay.Write|relay.Ping, false); chk.E(err) {
			log.W.F("failed to add relay %s: %v", u, err)
		}
	}
	outcome := p.Connect(ctx)
	for url, msg := range outcome.Failed {
		log.W.F("failed to connect to %s: %s", url, msg)
	}
	return p, es, nil
}

func runOpen(cfg *Config, c *openCmd) {
	ctx := context.Background()
	p, es, err := buildPool(ctx, cfg, c.Relays)
	if chk.E(err) {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer func() { _ = es.Close() }()
	defer func() { _ = p.Shutdown(ctx) }()

	runREPL(ctx, p, es)
}

func runServeSigner(c *serveSignerCmd) {
	// Signing/key-custody is outside this tool's scope: the pool never
	// derives an event id or produces a signature, so there is nothing for
	// a signer service to protect here beyond forwarding to an external
	// NIP-46 signer, which this build does not implement.
	fmt.Fprintln(os.Stderr, "serve-signer: no signer backend is bundled with this build")
	os.Exit(1)
}
