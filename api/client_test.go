package api

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"sync"
	"testing"

	"mtucontrol/device"
)

func newTestClient(t *testing.T, baseURL string, logger *log.Logger) *Client {
	t.Helper()
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	c, err := New(Config{BaseURL: baseURL, Logger: logger})
	if err != nil {
		t.Fatalf("New(%q) failed: %v", baseURL, err)
	}
	return c
}

type recordedRequest struct {
	method string
	uri    string
}

type recordingServer struct {
	mu       sync.Mutex
	requests []recordedRequest
}

func (s *recordingServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.requests = append(s.requests, recordedRequest{r.Method, r.URL.RequestURI()})
	s.mu.Unlock()
	io.WriteString(w, "Motor set to hold 1")
}

func TestDoSendsExactlyOneRequest(t *testing.T) {
	rec := &recordingServer{}
	srv := httptest.NewServer(rec)
	t.Cleanup(srv.Close)

	res := newTestClient(t, srv.URL, nil).Do(context.Background(), MotorHold(1, true))
	if res.Err != nil {
		t.Fatalf("Do failed: %v", res.Err)
	}
	if res.Display() != "Motor set to hold 1" {
		t.Errorf("Display() = %q", res.Display())
	}

	want := []recordedRequest{{http.MethodPost, "/api/motor/1/hold/1"}}
	if len(rec.requests) != 1 || rec.requests[0] != want[0] {
		t.Errorf("requests = %v, want %v", rec.requests, want)
	}
}

func TestDoKeepsQueryString(t *testing.T) {
	rec := &recordingServer{}
	srv := httptest.NewServer(rec)
	t.Cleanup(srv.Close)

	newTestClient(t, srv.URL+"/", nil).Do(context.Background(), MotorConfig(0, 16, 0.5))

	if len(rec.requests) != 1 || rec.requests[0].uri != "/api/motor/0/config/?steps=16&current=0.5" {
		t.Errorf("requests = %v", rec.requests)
	}
}

func TestDoHTTPFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "driver not responding", http.StatusInternalServerError)
	}))
	t.Cleanup(srv.Close)

	var logs bytes.Buffer
	c := newTestClient(t, srv.URL, log.New(&logs, "", 0))
	res := c.Do(context.Background(), MotorHold(1, true))

	if res.Display() != FailureText {
		t.Errorf("Display() = %q, want %q", res.Display(), FailureText)
	}
	var statusErr *StatusError
	if !errors.As(res.Err, &statusErr) {
		t.Fatalf("error = %v, want *StatusError", res.Err)
	}
	if statusErr.Code != http.StatusInternalServerError || statusErr.Body != "driver not responding" {
		t.Errorf("unexpected status error: %+v", statusErr)
	}

	pattern := regexp.MustCompile(`Request [0-9a-f-]{36} POST /api/motor/1/hold/1 failed: device returned 500`)
	if !pattern.MatchString(logs.String()) {
		t.Errorf("diagnostic log %q does not match %s", logs.String(), pattern)
	}
}

func TestDoTransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	res := newTestClient(t, url, nil).Do(context.Background(), MotorInit(0))
	if res.Err == nil {
		t.Fatal("expected transport error")
	}
	if res.Display() != FailureText {
		t.Errorf("Display() = %q, want %q", res.Display(), FailureText)
	}
}

func TestDoCanceled(t *testing.T) {
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-block:
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(func() {
		close(block)
		srv.Close()
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res := newTestClient(t, srv.URL, nil).Do(ctx, MotorData(0))
	if !IsCanceled(res.Err) {
		t.Errorf("error = %v, want cancellation", res.Err)
	}
}

func TestNewRejectsBadURL(t *testing.T) {
	for _, raw := range []string{"", "192.168.4.1", "ftp://device", "http://", "http://[::1"} {
		if _, err := New(Config{BaseURL: raw}); err == nil {
			t.Errorf("New(%q) succeeded, want error", raw)
		}
	}
}

func TestClientAgainstDevice(t *testing.T) {
	dev := device.New(device.Config{Motors: 3, Logger: log.New(io.Discard, "", 0)})
	srv := httptest.NewServer(dev.Handler())
	t.Cleanup(srv.Close)

	c := newTestClient(t, srv.URL, nil)
	ctx := context.Background()

	testCases := []struct {
		req  Request
		want string
	}{
		{MotorInit(2), "Motor init OK"},
		{MotorConfig(2, 16, 0.8), "Motor configured: steps 16, current 0.8"},
		{MotorMove(2, 100, Negative, 30), "OK"},
		{MotorRun(2, 120), "OK"},
		{MotorHold(2, true), "Motor set to hold 1"},
		{JoyCommand("spin"), "Unsupported command: spin"},
		{JoyCommand("demo"), "Demo positions set"},
	}
	for _, tc := range testCases {
		res := c.Do(ctx, tc.req)
		if res.Err != nil {
			t.Errorf("%s failed: %v", tc.req, res.Err)
			continue
		}
		if res.Text != tc.want {
			t.Errorf("%s = %q, want %q", tc.req, res.Text, tc.want)
		}
	}

	m, _ := dev.Motor(2)
	if m.Position != -100 || m.RPM != 30 || !m.Holding || m.Microsteps != 16 {
		t.Errorf("unexpected motor state: %+v", m)
	}

	if res := c.Do(ctx, MotorInit(9)); res.Display() != FailureText {
		t.Errorf("unknown motor Display() = %q, want failure", res.Display())
	}
	if res := c.Do(ctx, MotorConfig(0, 3, 1)); res.Display() != FailureText {
		t.Errorf("invalid microsteps Display() = %q, want failure", res.Display())
	}

	joy := c.Joystick(ctx)
	if joy.Err != nil {
		t.Fatalf("Joystick failed: %v", joy.Err)
	}
	want := dev.Joystick()
	if joy.Sample.X != float64(want.X) || joy.Sample.Buttons != uint32(want.Buttons) {
		t.Errorf("sample = %+v, device = %+v", joy.Sample, want)
	}
}

func TestRequestIDReachesDevice(t *testing.T) {
	var deviceLogs bytes.Buffer
	dev := device.New(device.Config{Motors: 1, Logger: log.New(&deviceLogs, "", 0)})

	handler := dev.Handler()
	var (
		mu   sync.Mutex
		seen []string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		seen = append(seen, r.Header.Get(RequestIDHeader))
		mu.Unlock()
		handler.ServeHTTP(w, r)
	}))
	t.Cleanup(srv.Close)

	var clientLogs bytes.Buffer
	c := newTestClient(t, srv.URL, log.New(&clientLogs, "", 0))
	ctx := context.Background()

	c.Do(ctx, MotorInit(0))
	c.Do(ctx, MotorInit(4))
	c.Joystick(ctx)

	if len(seen) != 3 {
		t.Fatalf("device saw %d requests, want 3", len(seen))
	}
	idPattern := regexp.MustCompile(`^[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}$`)
	for i, id := range seen {
		if !idPattern.MatchString(id) {
			t.Fatalf("request %d carried id %q", i, id)
		}
		if !strings.Contains(deviceLogs.String(), "Request "+id+":") {
			t.Errorf("device log does not mention request %s:\n%s", id, deviceLogs.String())
		}
	}
	if seen[0] == seen[1] || seen[1] == seen[2] {
		t.Errorf("request ids reused: %v", seen)
	}

	// The failed request is logged on the client under the id the device saw.
	if !strings.Contains(clientLogs.String(), "Request "+seen[1]+" POST /api/motor/4/init failed") {
		t.Errorf("client log does not correlate with device id %s:\n%s", seen[1], clientLogs.String())
	}
}
