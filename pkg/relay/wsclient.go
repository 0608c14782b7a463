package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/puzpuzpuz/xsync/v3"

	"relaypool.dev/internal/chk"
	"relaypool.dev/internal/log"
	"relaypool.dev/pkg/wire"
)

// defaultDialTimeout mirrors the teacher's 7-second "if no deadline was set,
// force one" convention used for both connect and publish-await-OK.
const defaultDialTimeout = 7 * time.Second

type subState struct {
	filters []*wire.Filter
	label   string
	cancel  context.CancelFunc
}

// WSClient is the coder/websocket-backed implementation of Client.
type WSClient struct {
	url string

	conn   *websocket.Conn
	connMu sync.Mutex

	status *AtomicStatus
	flags  *AtomicFlags

	subs   *xsync.MapOf[string, *subState]
	okCbs  *xsync.MapOf[string, func(bool, string)]
	negCbs *xsync.MapOf[string, func(json.RawMessage)]

	writeQueue chan writeRequest

	notifier NotificationSender
	notifyMu sync.Mutex

	defaultLabel string
	assumeValid  bool
	dialTimeout  time.Duration

	ctx    context.Context
	cancel context.CancelFunc

	subCounter int64
	subCtrMu   sync.Mutex
}

type writeRequest struct {
	msg    []byte
	answer chan error
}

// NewWSClient constructs a client for url without connecting. Flags starts
// at zero (no roles); the caller (normally Pool.AddRelay) sets the initial
// roles before registering the client.
func NewWSClient(url string, opts ...Option) *WSClient {
	ctx, cancel := context.WithCancel(context.Background())
	c := &WSClient{
		url:         url,
		status:      NewAtomicStatus(),
		flags:       NewAtomicFlags(0),
		subs:        xsync.NewMapOf[string, *subState](),
		okCbs:       xsync.NewMapOf[string, func(bool, string)](),
		negCbs:      xsync.NewMapOf[string, func(json.RawMessage)](),
		writeQueue:  make(chan writeRequest),
		dialTimeout: defaultDialTimeout,
		ctx:         ctx,
		cancel:      cancel,
	}
	for _, o := range opts {
		o.ApplyRelayOption(c)
	}
	return c
}

func (c *WSClient) URL() string         { return c.url }
func (c *WSClient) Flags() *AtomicFlags { return c.flags }
func (c *WSClient) Status() Status      { return c.status.Load() }

func (c *WSClient) SetNotificationSender(sender NotificationSender) error {
	c.notifyMu.Lock()
	c.notifier = sender
	c.notifyMu.Unlock()
	return nil
}

func (c *WSClient) notify(fn func(NotificationSender)) {
	c.notifyMu.Lock()
	n := c.notifier
	c.notifyMu.Unlock()
	if n != nil {
		fn(n)
	}
}

// Connect dials the relay and starts the write-queue and read-pump
// goroutines, mirroring ConnectWithTLS's single-writer/ping/reader trio.
func (c *WSClient) Connect(ctx context.Context) error {
	return c.TryConnect(ctx, c.dialTimeout)
}

func (c *WSClient) TryConnect(ctx context.Context, timeout time.Duration) error {
	if !c.status.CanConnect() {
		return fmt.Errorf("relay %s: cannot connect from status %s", c.url, c.Status())
	}
	c.status.Store(Pending)

	dialCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	conn, _, err := websocket.Dial(dialCtx, c.url, nil)
	if err != nil {
		c.status.Store(Disconnected)
		return fmt.Errorf("error opening websocket to %q: %w", c.url, err)
	}
	conn.SetReadLimit(1 << 22)

	c.connMu.Lock()
	c.conn = conn
	c.connMu.Unlock()
	c.status.Store(Connected)
	c.notify(func(n NotificationSender) { n.NotifyRelayStatusChange(c.url, Connected) })

	go c.writePump()
	go c.readPump()

	// resend any subscriptions installed locally-only before this connect.
	c.subs.Range(func(id string, st *subState) bool {
		_ = c.sendReq(c.ctx, wire.SubscriptionId(id), st.filters)
		return true
	})

	return nil
}

func (c *WSClient) writePump() {
	ticker := time.NewTicker(29 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(c.ctx, 10*time.Second)
			err := c.conn.Ping(pingCtx)
			cancel()
			if err != nil {
				log.I.F("{%s} ping failed, closing: %v", c.url, err)
				_ = c.Disconnect()
				return
			}
		case wr := <-c.writeQueue:
			log.D.F("{%s} sending %s", c.url, wr.msg)
			writeCtx, cancel := context.WithTimeout(c.ctx, 10*time.Second)
			err := c.conn.Write(writeCtx, websocket.MessageText, wr.msg)
			cancel()
			wr.answer <- err
			close(wr.answer)
		}
	}
}

func (c *WSClient) readPump() {
	defer func() {
		c.status.Store(Disconnected)
		c.notify(func(n NotificationSender) { n.NotifyRelayStatusChange(c.url, Disconnected) })
		c.subs.Range(func(id string, st *subState) bool {
			if st.cancel != nil {
				st.cancel()
			}
			return true
		})
	}()
	for {
		_, data, err := c.conn.Read(c.ctx)
		if err != nil {
			if !errors.Is(err, context.Canceled) {
				log.D.F("{%s} read error: %v", c.url, err)
			}
			return
		}
		c.notify(func(n NotificationSender) { n.NotifyMessage(c.url, data) })

		env, err := wire.ParseServerMessage(data)
		if chk.T(err) {
			continue
		}
		switch m := env.(type) {
		case *wire.EventEnvelope:
			if _, ok := c.subs.Load(string(m.SubscriptionId)); ok {
				c.notify(func(n NotificationSender) { n.NotifyEvent(c.url, m.SubscriptionId, m.Event) })
			}
		case *wire.EoseEnvelope:
			// EOSE is surfaced to callers via FetchEventsWithCallback's
			// completion signal, tracked in that call's own goroutine
			// (it subscribes to notifications rather than the sub map).
		case *wire.ClosedEnvelope:
			if st, ok := c.subs.LoadAndDelete(string(m.SubscriptionId)); ok && st.cancel != nil {
				st.cancel()
			}
		case *wire.NoticeEnvelope:
			log.I.F("NOTICE from %s: %q", c.url, m.Message)
		case *wire.OKEnvelope:
			if cb, ok := c.okCbs.Load(string(m.EventId)); ok {
				cb(m.OK, m.Reason)
			}
		case *wire.NegMsgEnvelope:
			if cb, ok := c.negCbs.Load(string(m.NegId)); ok {
				cb(m.Message)
			}
		case *wire.AuthEnvelope:
			if m.Challenge != "" {
				// challenge storage/response is the caller's concern: the
				// pool surfaces it as a notification and lets the
				// application decide whether/how to answer NIP-42 AUTH.
				c.notify(func(n NotificationSender) { n.NotifyAuthenticated(c.url) })
			}
		}
	}
}

func (c *WSClient) Disconnect() error {
	c.connMu.Lock()
	conn := c.conn
	c.conn = nil
	c.connMu.Unlock()
	c.cancel()
	c.ctx, c.cancel = context.WithCancel(context.Background())
	c.status.Store(Disconnected)
	if conn == nil {
		return nil
	}
	return conn.Close(websocket.StatusNormalClosure, "disconnect")
}

func (c *WSClient) WaitForConnection(ctx context.Context, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		if c.Status() == Connected {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("relay %s: timed out waiting for connection", c.url)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(50 * time.Millisecond):
		}
	}
}

func (c *WSClient) write(ctx context.Context, msg []byte) error {
	ch := make(chan error, 1)
	select {
	case c.writeQueue <- writeRequest{msg: msg, answer: ch}:
	case <-c.ctx.Done():
		return fmt.Errorf("relay %s: connection closed", c.url)
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-ch:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *WSClient) BatchMsg(ctx context.Context, msgs [][]byte) error {
	for _, m := range msgs {
		if err := c.write(ctx, m); err != nil {
			return err
		}
	}
	return nil
}

func (c *WSClient) SendEvent(ctx context.Context, ev *wire.Event) (wire.Id, error) {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, defaultDialTimeout)
		defer cancel()
	}

	done := make(chan error, 1)
	c.okCbs.Store(string(ev.ID), func(ok bool, reason string) {
		if ok {
			done <- nil
		} else {
			done <- fmt.Errorf("relay %s rejected event %s: %s", c.url, ev.ID, reason)
		}
	})
	defer c.okCbs.Delete(string(ev.ID))

	env := wire.EventEnvelope{Event: ev}
	b, err := env.MarshalJSON()
	if err != nil {
		return "", err
	}
	if err = c.write(ctx, b); err != nil {
		return "", err
	}

	select {
	case err = <-done:
		if err != nil {
			return "", err
		}
		return ev.ID, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (c *WSClient) nextSubCounter() int64 {
	c.subCtrMu.Lock()
	defer c.subCtrMu.Unlock()
	c.subCounter++
	return c.subCounter
}

func (c *WSClient) sendReq(ctx context.Context, id wire.SubscriptionId, filters []*wire.Filter) error {
	env := wire.ReqEnvelope{SubscriptionId: id, Filters: filters}
	b, err := env.MarshalJSON()
	if err != nil {
		return err
	}
	return c.write(ctx, b)
}

func (c *WSClient) SubscribeWithId(ctx context.Context, id wire.SubscriptionId, filters []*wire.Filter, opts SubscriptionOptions) error {
	label := opts.Label
	if label == "" {
		label = c.defaultLabel
	}
	subCtx, cancel := context.WithCancel(c.ctx)
	c.subs.Store(string(id), &subState{filters: filters, label: label, cancel: cancel})
	if err := c.sendReq(ctx, id, filters); err != nil {
		c.subs.Delete(string(id))
		cancel()
		return err
	}
	go func() {
		<-subCtx.Done()
	}()
	return nil
}

func (c *WSClient) Unsubscribe(ctx context.Context, id wire.SubscriptionId) error {
	if st, ok := c.subs.LoadAndDelete(string(id)); ok && st.cancel != nil {
		st.cancel()
	}
	env := wire.CloseEnvelope{SubscriptionId: id}
	b, err := env.MarshalJSON()
	if err != nil {
		return err
	}
	return c.write(ctx, b)
}

func (c *WSClient) UnsubscribeAll(ctx context.Context) error {
	var firstErr error
	c.subs.Range(func(id string, _ *subState) bool {
		if err := c.Unsubscribe(ctx, wire.SubscriptionId(id)); err != nil && firstErr == nil {
			firstErr = err
		}
		return true
	})
	return firstErr
}

// UpdateSubscription rewrites the local filter bookkeeping for id. When
// send is true the new filters are also transmitted immediately (as a
// replacement REQ); when false, the update is local-only and will be
// flushed on the next successful Connect (see TryConnect's resend loop).
func (c *WSClient) UpdateSubscription(id wire.SubscriptionId, filters []*wire.Filter, send bool) error {
	existing, ok := c.subs.Load(string(id))
	var cancel context.CancelFunc
	if ok {
		cancel = existing.cancel
	} else {
		_, cancel = context.WithCancel(c.ctx)
	}
	c.subs.Store(string(id), &subState{filters: filters, cancel: cancel})
	if send && c.Status() == Connected {
		return c.sendReq(c.ctx, id, filters)
	}
	return nil
}

func (c *WSClient) FetchEventsWithCallback(ctx context.Context, filters []*wire.Filter, timeout time.Duration, policy FetchPolicy, onEvent func(*wire.Event)) error {
	if timeout <= 0 {
		timeout = defaultDialTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	id := wire.NewSubscriptionId("fetch-" + strconv.FormatInt(c.nextSubCounter(), 10))

	events := make(chan *wire.Event, 256)
	eose := make(chan struct{}, 1)
	listener := fetchListener{subID: id, events: events, eose: eose}
	c.addFetchListener(&listener)
	defer c.removeFetchListener(&listener)

	if err := c.SubscribeWithId(ctx, id, filters, SubscriptionOptions{}); err != nil {
		return err
	}
	defer func() { _ = c.Unsubscribe(context.Background(), id) }()

	count := 0
	var graceTimer <-chan time.Time
	for {
		select {
		case ev := <-events:
			count++
			if !c.assumeValid && len(ev.Sig) < 128 {
				log.W.F("{%s} event %s has a %d-character signature, shorter than a 64-byte hex signature", c.url, ev.ID, len(ev.Sig))
			}
			onEvent(ev)
			if (policy.Exit == WaitForEvents || policy.Exit == WaitForEventsOrEOSE) && policy.TargetEvents > 0 && count >= policy.TargetEvents {
				return nil
			}
		case <-eose:
			switch policy.Exit {
			case ExitOnEOSE, WaitForEventsOrEOSE:
				return nil
			case WaitDurationAfterEOSE:
				graceTimer = time.After(policy.GracePeriod)
			}
		case <-graceTimer:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// fetchListener bridges the ambient notification-style event/EOSE delivery
// in readPump to a direct channel for the duration of one fetch call.
type fetchListener struct {
	subID  wire.SubscriptionId
	events chan *wire.Event
	eose   chan struct{}
}

func (c *WSClient) addFetchListener(l *fetchListener) {
	c.notifyMu.Lock()
	defer c.notifyMu.Unlock()
	c.notifier = fetchNotifierWrapper{inner: c.notifier, client: c, listener: l}
}

func (c *WSClient) removeFetchListener(l *fetchListener) {
	c.notifyMu.Lock()
	defer c.notifyMu.Unlock()
	if w, ok := c.notifier.(fetchNotifierWrapper); ok && w.listener == l {
		c.notifier = w.inner
	}
}

// fetchNotifierWrapper decorates whatever NotificationSender the client
// already has so a FetchEventsWithCallback call can observe this client's
// own events/EOSE without disturbing the pool-level bus.
type fetchNotifierWrapper struct {
	inner    NotificationSender
	client   *WSClient
	listener *fetchListener
}

func (w fetchNotifierWrapper) NotifyRelayStatusChange(url string, status Status) {
	if w.inner != nil {
		w.inner.NotifyRelayStatusChange(url, status)
	}
}
func (w fetchNotifierWrapper) NotifyMessage(url string, raw []byte) {
	if w.inner != nil {
		w.inner.NotifyMessage(url, raw)
	}
	env, err := wire.ParseServerMessage(raw)
	if err != nil {
		return
	}
	switch m := env.(type) {
	case *wire.EoseEnvelope:
		if m.SubscriptionId == w.listener.subID {
			select {
			case w.listener.eose <- struct{}{}:
			default:
			}
		}
	}
}
func (w fetchNotifierWrapper) NotifyEvent(url string, subID wire.SubscriptionId, ev *wire.Event) {
	if w.inner != nil {
		w.inner.NotifyEvent(url, subID, ev)
	}
	if subID == w.listener.subID {
		select {
		case w.listener.events <- ev:
		default:
			log.D.F("{%s} fetch listener backpressure, dropping event %s", url, ev.ID)
		}
	}
}
func (w fetchNotifierWrapper) NotifyAuthenticated(url string) {
	if w.inner != nil {
		w.inner.NotifyAuthenticated(url)
	}
}
