package status

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/danmuck/volsync/internal/testutil/testlog"
)

type staticReporter struct {
	report Report
}

func (r staticReporter) Report() Report { return r.report }

func TestHealthRoute(t *testing.T) {
	testlog.Start(t)

	s := New(Config{}, staticReporter{})
	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["status"] != "ok" || body["version"] != version {
		t.Fatalf("unexpected health body: %#v", body)
	}
}

func TestStatusRouteReportsSnapshot(t *testing.T) {
	testlog.Start(t)

	local := 45
	s := New(Config{}, staticReporter{report: Report{
		State:       "connected",
		Attempt:     1,
		Relay:       "wss://relay.example/ws",
		Peers:       3,
		LocalVolume: &local,
	}})
	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/status", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var got Report
	if err := json.Unmarshal(rr.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if got.State != "connected" || got.Peers != 3 || got.LocalVolume == nil || *got.LocalVolume != 45 {
		t.Fatalf("unexpected status body: %+v", got)
	}
	if got.LastApplied != nil {
		t.Fatalf("last_applied should be omitted, got %v", *got.LastApplied)
	}
}

func TestMetricsRouteExposesSyncMetrics(t *testing.T) {
	testlog.Start(t)

	s := New(Config{}, staticReporter{})
	// Populate at least one series in the http subsystem.
	s.Handler().ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health", nil))

	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "volsync_http_requests_total") {
		t.Fatalf("metrics output missing volsync_http_requests_total")
	}
}

func TestCORSAllowsConfiguredOrigin(t *testing.T) {
	testlog.Start(t)

	s := New(Config{CORSOrigins: []string{" http://dash.local "}}, staticReporter{})
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "http://dash.local")
	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, req)

	if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "http://dash.local" {
		t.Fatalf("unexpected allow origin header: %q", got)
	}
}

func TestServeShutsDownWithContext(t *testing.T) {
	testlog.Start(t)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	s := New(Config{Addr: ln.Addr().String()}, staticReporter{})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.ServeListener(ctx, ln) }()

	resp, err := http.Get("http://" + ln.Addr().String() + "/health")
	if err != nil {
		t.Fatalf("get health: %v", err)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("serve returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("serve did not stop after cancel")
	}
}

func TestServeRequiresAddr(t *testing.T) {
	testlog.Start(t)

	if err := New(Config{}, staticReporter{}).Serve(context.Background()); err != ErrAddrRequired {
		t.Fatalf("expected ErrAddrRequired, got %v", err)
	}
}

func TestListenReportsTakenAddr(t *testing.T) {
	testlog.Start(t)

	taken, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer taken.Close()

	if _, err := New(Config{Addr: taken.Addr().String()}, staticReporter{}).Listen(); err == nil {
		t.Fatalf("expected listen on %s to fail", taken.Addr())
	}
	if _, err := New(Config{Addr: "  "}, staticReporter{}).Listen(); err != ErrAddrRequired {
		t.Fatalf("expected ErrAddrRequired, got %v", err)
	}
}
