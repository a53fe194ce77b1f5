package push

import (
	"context"
	"errors"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/gorilla/websocket"

	"mtucontrol/device"
	"mtucontrol/logsync"
)

func quietLogger() *log.Logger { return log.New(io.Discard, "", 0) }

func fastBackoff() backoff.BackOff { return backoff.NewConstantBackOff(10 * time.Millisecond) }

func websocketURL(t *testing.T, base string) string {
	t.Helper()
	u, err := URL(base)
	if err != nil {
		t.Fatalf("URL(%q) failed: %v", base, err)
	}
	return u
}

func expectLine(t *testing.T, lines <-chan logsync.Line, want int64) logsync.Line {
	t.Helper()
	select {
	case l := <-lines:
		if l.Seq != want {
			t.Fatalf("got line %d (%q), want %d", l.Seq, l.Text, want)
		}
		return l
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for line %d", want)
	}
	return logsync.Line{}
}

func expectNoLine(t *testing.T, lines <-chan logsync.Line) {
	t.Helper()
	select {
	case l := <-lines:
		t.Fatalf("unexpected line %d (%q)", l.Seq, l.Text)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestURL(t *testing.T) {
	testCases := []struct {
		base string
		want string
	}{
		{"http://192.168.4.1", "ws://192.168.4.1/connect-websocket"},
		{"http://192.168.4.1/", "ws://192.168.4.1/connect-websocket"},
		{"https://mtu.local:8443", "wss://mtu.local:8443/connect-websocket"},
		{"ws://127.0.0.1:8081", "ws://127.0.0.1:8081/connect-websocket"},
	}
	for _, tc := range testCases {
		got, err := URL(tc.base)
		if err != nil || got != tc.want {
			t.Errorf("URL(%q) = %q, %v; want %q", tc.base, got, err, tc.want)
		}
	}

	for _, bad := range []string{"", "ftp://host", "http://", "192.168.4.1"} {
		if _, err := URL(bad); err == nil {
			t.Errorf("URL(%q) succeeded, want error", bad)
		}
	}
}

func TestRunDeliversDeviceLogs(t *testing.T) {
	dev := device.New(device.Config{Logger: quietLogger()})
	dev.Logf("boot")
	dev.Logf("wifi up")
	srv := httptest.NewServer(dev.Handler())
	t.Cleanup(srv.Close)

	lines := make(chan logsync.Line, 64)
	syncer := logsync.New(logsync.SinkFunc(func(l logsync.Line) { lines <- l }), logsync.WithLogger(quietLogger()))
	syncer.Initialize(0)

	ch := New(Config{URL: websocketURL(t, srv.URL), Logger: quietLogger()}, syncer)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- ch.Run(ctx) }()

	expectLine(t, lines, 0)
	expectLine(t, lines, 1)

	dev.Logf("motor moved")
	expectLine(t, lines, 2)
	expectNoLine(t, lines)
	if syncer.Mark() != 2 {
		t.Errorf("mark = %d, want 2", syncer.Mark())
	}

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Run returned %v, want context.Canceled", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not stop after cancel")
	}
	if ch.Connected() {
		t.Error("channel still reports a connection after Run returned")
	}
}

func TestRunReconnectsWithoutDuplicates(t *testing.T) {
	dev := device.New(device.Config{Logger: quietLogger()})
	dev.Logf("first")
	srv := httptest.NewServer(dev.Handler())
	t.Cleanup(srv.Close)

	lines := make(chan logsync.Line, 64)
	syncer := logsync.New(logsync.SinkFunc(func(l logsync.Line) { lines <- l }))
	syncer.Initialize(0)

	ch := New(Config{
		URL:       websocketURL(t, srv.URL),
		Logger:    quietLogger(),
		Reconnect: true,
		Backoff:   fastBackoff,
	}, syncer)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go ch.Run(ctx)

	expectLine(t, lines, 0)

	// The device drops the connection; the redial receives the whole ring
	// again, which must not re-render line 0.
	dev.Close()
	dev.Logf("second")
	expectLine(t, lines, 1)
	expectNoLine(t, lines)
}

func TestRunWithoutReconnectReturnsOnClose(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		conn.WriteMessage(websocket.TextMessage, []byte(`{"logs":{"0":"only"}}`))
		conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		conn.ReadMessage()
	}))
	t.Cleanup(srv.Close)

	var got []string
	syncer := logsync.New(logsync.SinkFunc(func(l logsync.Line) { got = append(got, l.Text) }))
	syncer.Initialize(0)

	ch := New(Config{URL: websocketURL(t, srv.URL), Logger: quietLogger()}, syncer)
	err := ch.Run(context.Background())
	if !errors.Is(err, ErrClosedByPeer) {
		t.Errorf("Run returned %v, want ErrClosedByPeer", err)
	}
	if len(got) != 1 || got[0] != "only" {
		t.Errorf("lines = %v, want [only]", got)
	}
}

func TestRunDialFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	u := websocketURL(t, srv.URL)
	srv.Close()

	ch := New(Config{URL: u, Logger: quietLogger()}, HandlerFunc(func([]byte) error { return nil }))
	if err := ch.Run(context.Background()); err == nil {
		t.Error("Run succeeded against a closed server")
	}
}

func TestRunSurvivesMalformedMessages(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		conn.WriteMessage(websocket.TextMessage, []byte(`{"logs":{"0":"a"}}`))
		conn.WriteMessage(websocket.TextMessage, []byte(`{"logs":{"one":"bad"}}`))
		conn.WriteMessage(websocket.BinaryMessage, []byte{0xff})
		conn.WriteMessage(websocket.TextMessage, []byte(`{"nothing":true}`))
		conn.WriteMessage(websocket.TextMessage, []byte(`{"logs":{"1":"b","0":"a"}}`))
		conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		conn.ReadMessage()
	}))
	t.Cleanup(srv.Close)

	var got []string
	var failures int
	syncer := logsync.New(logsync.SinkFunc(func(l logsync.Line) { got = append(got, l.Text) }), logsync.WithLogger(quietLogger()))
	syncer.Initialize(0)
	handler := HandlerFunc(func(p []byte) error {
		err := syncer.HandleMessage(p)
		if err != nil {
			failures++
		}
		return err
	})

	New(Config{URL: websocketURL(t, srv.URL), Logger: quietLogger()}, handler).Run(context.Background())

	if len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Errorf("lines = %v, want [a b]", got)
	}
	if failures != 2 {
		t.Errorf("failures = %d, want 2", failures)
	}
}
