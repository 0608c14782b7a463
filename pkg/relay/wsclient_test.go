package relay

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/require"

	"relaypool.dev/pkg/wire"
)

// newTestRelayServer spins up a local fake relay: it accepts one websocket
// connection and hands every frame it reads to onMessage, which scripts
// whatever reply (if any) the test wants the relay to send back. This is
// the in-process httptest.Server fixture pattern the teacher's own
// websocket client tests use in place of a live relay.
func newTestRelayServer(t *testing.T, onMessage func(conn *websocket.Conn, raw []byte)) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "")
		ctx := r.Context()
		for {
			_, data, err := conn.Read(ctx)
			if err != nil {
				return
			}
			onMessage(conn, data)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func wsURL(httpURL string) string {
	return "ws" + strings.TrimPrefix(httpURL, "http")
}

func TestWSClientConnectAndDisconnect(t *testing.T) {
	srv := newTestRelayServer(t, func(conn *websocket.Conn, raw []byte) {})
	c := NewWSClient(wsURL(srv.URL))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	require.NoError(t, c.Connect(ctx))
	require.Equal(t, Connected, c.Status())

	require.NoError(t, c.Disconnect())
	require.Equal(t, Disconnected, c.Status())
}

func TestWSClientSendEventAwaitsOK(t *testing.T) {
	srv := newTestRelayServer(t, func(conn *websocket.Conn, raw []byte) {
		kind, head := envelopeKindOrIgnore(raw)
		if kind != wire.KindEvent || len(head) < 2 {
			return
		}
		ev := &wire.Event{}
		if err := json.Unmarshal(head[1], ev); err != nil {
			return
		}
		okEnv, _ := json.Marshal([]interface{}{wire.KindOK, ev.ID, true, ""})
		_ = conn.Write(context.Background(), websocket.MessageText, okEnv)
	})
	c := NewWSClient(wsURL(srv.URL))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, c.Connect(ctx))

	ev := &wire.Event{ID: "abc123", PubKey: "pk", Kind: 1, Content: "hi"}
	id, err := c.SendEvent(ctx, ev)
	require.NoError(t, err)
	require.Equal(t, ev.ID, id)
}

func TestWSClientSendEventRelayRejects(t *testing.T) {
	srv := newTestRelayServer(t, func(conn *websocket.Conn, raw []byte) {
		kind, head := envelopeKindOrIgnore(raw)
		if kind != wire.KindEvent || len(head) < 2 {
			return
		}
		ev := &wire.Event{}
		if err := json.Unmarshal(head[1], ev); err != nil {
			return
		}
		okEnv, _ := json.Marshal([]interface{}{wire.KindOK, ev.ID, false, "blocked: spam"})
		_ = conn.Write(context.Background(), websocket.MessageText, okEnv)
	})
	c := NewWSClient(wsURL(srv.URL))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, c.Connect(ctx))

	ev := &wire.Event{ID: "rejected1", PubKey: "pk", Kind: 1}
	_, err := c.SendEvent(ctx, ev)
	require.Error(t, err)
}

func TestWSClientFetchEventsWithCallback(t *testing.T) {
	wantEvent := &wire.Event{ID: "deadbeef", PubKey: "pk", Kind: 1, Content: "hello"}
	srv := newTestRelayServer(t, func(conn *websocket.Conn, raw []byte) {
		kind, head := envelopeKindOrIgnore(raw)
		if kind != wire.KindReq || len(head) < 2 {
			return
		}
		var subID wire.SubscriptionId
		if err := json.Unmarshal(head[1], &subID); err != nil {
			return
		}
		evEnv, _ := json.Marshal([]interface{}{wire.KindEvent, subID, wantEvent})
		_ = conn.Write(context.Background(), websocket.MessageText, evEnv)
		eoseEnv, _ := json.Marshal([]interface{}{wire.KindEose, subID})
		_ = conn.Write(context.Background(), websocket.MessageText, eoseEnv)
	})
	c := NewWSClient(wsURL(srv.URL))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, c.Connect(ctx))

	var got []*wire.Event
	err := c.FetchEventsWithCallback(ctx, []*wire.Filter{{Kinds: []int{1}}}, 2*time.Second,
		FetchPolicy{Exit: ExitOnEOSE}, func(ev *wire.Event) { got = append(got, ev) })
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, wantEvent.ID, got[0].ID)
}

// TestWSClientSyncMultiReadsNegMsgReply exercises negReconcileOne against a
// relay that actually answers NEG-OPEN with a NEG-MSG. Before the NEG-MSG
// routing existed, every call here would have reported an empty delta
// regardless of what the relay sent back.
func TestWSClientSyncMultiReadsNegMsgReply(t *testing.T) {
	wantId := wire.Id("feedfeed")
	srv := newTestRelayServer(t, func(conn *websocket.Conn, raw []byte) {
		kind, head := envelopeKindOrIgnore(raw)
		if kind != wire.KindNegOpen || len(head) < 2 {
			return
		}
		var negID wire.SubscriptionId
		if err := json.Unmarshal(head[1], &negID); err != nil {
			return
		}
		resp := negResponse{HaveNotTheirs: []wire.Id{wantId}}
		payload, _ := json.Marshal(resp)
		negMsgEnv, _ := json.Marshal([]interface{}{wire.KindNegMsg, negID, json.RawMessage(payload)})
		_ = conn.Write(context.Background(), websocket.MessageText, negMsgEnv)
	})
	c := NewWSClient(wsURL(srv.URL))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, c.Connect(ctx))

	filter := &wire.Filter{Kinds: []int{1}}
	items := map[*wire.Filter][]wire.NegentropyItem{filter: nil}
	result, err := c.SyncMulti(ctx, items, SyncOptions{Direction: SyncUp, Timeout: 2 * time.Second})
	require.NoError(t, err)
	_, sent := result.Sent[wantId]
	require.True(t, sent, "expected the relay's real NEG-MSG reply to be read off the connection")
}

// envelopeKindOrIgnore is envelopeKind without a *testing.T, for use inside
// server goroutines where a failed parse should just be dropped rather than
// failing the test from the wrong goroutine.
func envelopeKindOrIgnore(raw []byte) (string, []json.RawMessage) {
	var head []json.RawMessage
	if err := json.Unmarshal(raw, &head); err != nil || len(head) == 0 {
		return "", nil
	}
	var kind string
	if err := json.Unmarshal(head[0], &kind); err != nil {
		return "", nil
	}
	return kind, head
}
