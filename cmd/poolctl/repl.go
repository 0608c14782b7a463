package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/fatih/color"

	"relaypool.dev/internal/chk"
	"relaypool.dev/pkg/pool"
	"relaypool.dev/pkg/relay"
	"relaypool.dev/pkg/store"
	"relaypool.dev/pkg/wire"
)

var (
	prompt   = color.New(color.FgCyan, color.Bold)
	errColor = color.New(color.FgRed)
	okColor  = color.New(color.FgGreen)
)

// runREPL drives the interactive command loop: generate, sync, query,
// database populate|stats, exit|quit. Profiling is not a REPL command; it
// is the top-level `dev` subcommand.
func runREPL(ctx context.Context, p *pool.Pool, es *store.BadgerStore) {
	scanner := bufio.NewScanner(os.Stdin)
	for {
		prompt.Fprint(os.Stdout, "poolctl> ")
		if !scanner.Scan() {
			return
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		cmd, rest := fields[0], fields[1:]

		switch cmd {
		case "exit", "quit":
			return
		case "generate":
			replGenerate()
		case "sync":
			replSync(ctx, p, rest)
		case "query":
			replQuery(ctx, p, es, rest)
		case "database":
			replDatabase(ctx, es, rest)
		default:
			errColor.Fprintf(os.Stderr, "unknown command %q\n", cmd)
		}
	}
}

func replGenerate() {
	id := wire.NewSubscriptionId("repl")
	okColor.Fprintf(os.Stdout, "generated subscription id: %s\n", id)
}

// replSync runs `sync <pubkey> --relays ... [--direction up|down|both]`.
func replSync(ctx context.Context, p *pool.Pool, args []string) {
	if len(args) == 0 {
		errColor.Fprintln(os.Stderr, "usage: sync <pubkey> [--relays <url>...] [--direction up|down|both]")
		return
	}
	pubkey := args[0]
	direction := relay.SyncBoth
	var relays []string
	for i := 1; i < len(args)-1; i++ {
		if args[i] == "--relays" {
			for j := i + 1; j < len(args) && !strings.HasPrefix(args[j], "--"); j++ {
				relays = append(relays, args[j])
			}
		}
		if args[i] == "--direction" {
			switch args[i+1] {
			case "up":
				direction = relay.SyncUp
			case "down":
				direction = relay.SyncDown
			case "both":
				direction = relay.SyncBoth
			}
		}
	}

	filter := &wire.Filter{Authors: []string{pubkey}}
	opts := relay.SyncOptions{Direction: direction, Timeout: 15 * time.Second}
	var outcome *pool.Outcome[*wire.Reconciliation]
	var err error
	if len(relays) > 0 {
		outcome, err = p.SyncTargeted(ctx, relays, []*wire.Filter{filter}, opts)
	} else {
		outcome, err = p.SyncWith(ctx, []*wire.Filter{filter}, opts)
	}
	if chk.E(err) {
		errColor.Fprintf(os.Stderr, "sync failed: %v\n", err)
		return
	}
	okColor.Fprintf(os.Stdout, "sync complete: sent=%d received=%d succeeded=%d failed=%d\n",
		len(outcome.Val.Sent), len(outcome.Val.Received), len(outcome.Success), len(outcome.Failed))
}

// replQuery runs `query [--id|--author|--kind|--identifier|--search|--since|--until|--limit|--database|--print|--json]`.
func replQuery(ctx context.Context, p *pool.Pool, es *store.BadgerStore, args []string) {
	filter := &wire.Filter{}
	fromDatabase := false
	asJSON := false

	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--id":
			i++
			filter.IDs = append(filter.IDs, wire.Id(args[i]))
		case "--author":
			i++
			filter.Authors = append(filter.Authors, args[i])
		case "--kind":
			i++
			k, err := strconv.Atoi(args[i])
			if chk.E(err) {
				continue
			}
			filter.Kinds = append(filter.Kinds, k)
		case "--identifier":
			i++
			if filter.Tags == nil {
				filter.Tags = map[string][]string{}
			}
			filter.Tags["d"] = append(filter.Tags["d"], args[i])
		case "--search":
			i++
			filter.Search = args[i]
		case "--since":
			i++
			since, err := strconv.ParseInt(args[i], 10, 64)
			if chk.E(err) {
				continue
			}
			ts := wire.Timestamp(since)
			filter.Since = &ts
		case "--until":
			i++
			until, err := strconv.ParseInt(args[i], 10, 64)
			if chk.E(err) {
				continue
			}
			ts := wire.Timestamp(until)
			filter.Until = &ts
		case "--limit":
			i++
			lim, err := strconv.Atoi(args[i])
			if chk.E(err) {
				continue
			}
			filter.Limit = &lim
		case "--database":
			fromDatabase = true
		case "--json":
			asJSON = true
		case "--print":
			// printing is the default REPL behaviour; kept as an explicit
			// flag for parity with the non-interactive query invocation.
		}
	}

	if fromDatabase {
		items, err := es.NegentropyItems(ctx, filter)
		if chk.E(err) {
			errColor.Fprintf(os.Stderr, "query failed: %v\n", err)
			return
		}
		for _, it := range items {
			printItem(it, asJSON)
		}
		return
	}

	events, err := p.FetchEventsTargeted(ctx, p.RelayURLs(), []*wire.Filter{filter}, 10*time.Second, relay.FetchPolicy{Exit: relay.ExitOnEOSE})
	if chk.E(err) {
		errColor.Fprintf(os.Stderr, "query failed: %v\n", err)
		return
	}
	for _, ev := range events {
		printEvent(ev, asJSON)
	}
}

func printItem(it wire.NegentropyItem, asJSON bool) {
	if asJSON {
		fmt.Printf("{\"id\":%q,\"created_at\":%d}\n", it.Id, it.CreatedAt)
		return
	}
	fmt.Printf("%s  %s\n", it.Id, it.CreatedAt.Time().Format(time.RFC3339))
}

func printEvent(ev *wire.Event, asJSON bool) {
	if asJSON {
		b, err := ev.Marshal()
		if chk.E(err) {
			return
		}
		fmt.Println(string(b))
		return
	}
	fmt.Printf("%s  kind=%-5d %s\n", ev.ID, ev.Kind, ev.Content)
}

// replDatabase runs `database populate <path>` or `database stats`.
func replDatabase(ctx context.Context, es *store.BadgerStore, args []string) {
	if len(args) == 0 {
		errColor.Fprintln(os.Stderr, "usage: database populate <path> | stats")
		return
	}
	switch args[0] {
	case "stats":
		n, err := es.Count(ctx)
		if chk.E(err) {
			errColor.Fprintf(os.Stderr, "stats failed: %v\n", err)
			return
		}
		okColor.Fprintf(os.Stdout, "events stored: %d  path: %s\n", n, es.Path())
	case "populate":
		if len(args) < 2 {
			errColor.Fprintln(os.Stderr, "usage: database populate <path>")
			return
		}
		n, err := populateFromFile(ctx, es, args[1])
		if chk.E(err) {
			errColor.Fprintf(os.Stderr, "populate failed: %v\n", err)
			return
		}
		okColor.Fprintf(os.Stdout, "imported %d events from %s\n", n, args[1])
	default:
		errColor.Fprintf(os.Stderr, "unknown database subcommand %q\n", args[0])
	}
}

