package pool

import (
	"context"
	"sync"
	"time"

	"relaypool.dev/internal/log"
	"relaypool.dev/pkg/relay"
	"relaypool.dev/pkg/wire"
)

// StreamEventsTargeted merges per-relay event streams from targets into one
// channel, deduplicated by EventId. The returned channel is closed once every
// per-relay fetch has terminated (by policy, timeout, or ctx cancellation).
// A per-relay error is logged and does not fail the aggregate stream.
func (p *Pool) StreamEventsTargeted(ctx context.Context, targets []string, filters []*wire.Filter, timeout time.Duration, policy relay.FetchPolicy) (<-chan *wire.Event, error) {
	if p.isShutdown() {
		return nil, errShutdown()
	}
	clients, err := p.resolveTargets(targets)
	if err != nil {
		return nil, err
	}

	out := make(chan *wire.Event, len(clients)*512)
	var seenMu sync.Mutex
	seen := make(map[wire.Id]struct{})

	var wg sync.WaitGroup
	for url, client := range clients {
		wg.Add(1)
		go func(url string, client relay.Client) {
			defer wg.Done()
			err := client.FetchEventsWithCallback(ctx, filters, timeout, policy, func(ev *wire.Event) {
				seenMu.Lock()
				_, already := seen[ev.ID]
				if !already {
					seen[ev.ID] = struct{}{}
				}
				seenMu.Unlock()
				if already {
					return
				}
				select {
				case out <- ev:
				default:
					log.D.F("stream aggregator: dropping event %s, channel full", ev.ID)
				}
			})
			if err != nil {
				log.D.F("stream aggregator: relay %s: %v", url, err)
			}
		}(url, client)
	}

	go func() {
		wg.Wait()
		close(out)
	}()

	return out, nil
}

// FetchEventsTargeted drains StreamEventsTargeted into a slice, in arrival
// order (which, since the aggregate stream is deduplicated, is also
// effectively delivery order across relays).
func (p *Pool) FetchEventsTargeted(ctx context.Context, targets []string, filters []*wire.Filter, timeout time.Duration, policy relay.FetchPolicy) ([]*wire.Event, error) {
	stream, err := p.StreamEventsTargeted(ctx, targets, filters, timeout, policy)
	if err != nil {
		return nil, err
	}
	var events []*wire.Event
	for ev := range stream {
		events = append(events, ev)
	}
	return events, nil
}
