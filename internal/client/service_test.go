package client

import (
	"context"
	"errors"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/danmuck/volsync/internal/protocol"
	"github.com/danmuck/volsync/internal/relay"
	"github.com/danmuck/volsync/internal/testutil/relaytest"
	"github.com/danmuck/volsync/internal/testutil/testlog"
)

func testServiceConfig(address string) ServiceConfig {
	cfg := DefaultServiceConfig()
	cfg.Relay.Address = address
	cfg.PollInterval = 5 * time.Millisecond
	return cfg
}

func TestServiceSyncsBothDirections(t *testing.T) {
	testlog.Start(t)

	rl := relaytest.New(t)
	backend := newFakeBackend(30, 30, 45, 45, 10)
	svc := NewService(testServiceConfig(rl.URL), WithBackend(backend))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- svc.Serve(ctx) }()

	peer := rl.Accept(t)
	wantActions := []protocol.Action{protocol.ActionGetVolume, protocol.ActionGetConnectedClientsCount}
	for _, want := range wantActions {
		if req := peer.NextRequest(t); req.Action != want {
			t.Fatalf("expected %s, got %+v", want, req)
		}
	}
	for _, want := range []int{45, 10} {
		req := peer.NextRequest(t)
		if req.Action != protocol.ActionReqVolumeChange || req.Volume == nil || *req.Volume != want {
			t.Fatalf("expected reqVolumeChange %d, got %+v", want, req)
		}
	}

	peer.Send(t, `{"type":"clients","clients":3}`)
	peer.Send(t, `{"type":"volume","volume":60}`)
	if level, ok := backend.waitWrite(waitTimeout); !ok || level != 60 {
		t.Fatalf("expected Write(60), got %v ok=%v", level, ok)
	}

	report := svc.Report()
	if report.State != StateConnected.String() || report.Peers != 3 || report.Platform != "fake" {
		t.Fatalf("unexpected report: %+v", report)
	}
	if report.LocalVolume == nil || *report.LocalVolume != 10 {
		t.Fatalf("expected local volume 10 in report, got %+v", report)
	}
	if report.LastApplied == nil || *report.LastApplied != 60 {
		t.Fatalf("expected last applied 60 in report, got %+v", report)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("expected clean shutdown, got %v", err)
		}
	case <-time.After(waitTimeout):
		t.Fatalf("service did not stop")
	}
}

func TestServiceQueuesChangesWhileRelayIsDown(t *testing.T) {
	testlog.Start(t)

	backend := newFakeBackend(20, 25)
	cfg := testServiceConfig("ws://127.0.0.1:1/ws")
	dialer := &fakeDialer{errs: []error{&relay.Error{Kind: relay.KindIO, Op: "dial"}}}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	svc := NewService(cfg, WithBackend(backend), WithDialer(dialer),
		WithSupervisorOptions(WithWait(func(ctx context.Context, _ time.Duration) error {
			<-ctx.Done()
			return ctx.Err()
		})))
	done := make(chan error, 1)
	go func() { done <- svc.Serve(ctx) }()

	deadline := time.Now().Add(waitTimeout)
	for svc.Outbox().Len() == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("local change was not queued")
		}
		time.Sleep(5 * time.Millisecond)
	}
	if level, ok := svc.State().LocalVolume(); !ok || level != 25 {
		t.Fatalf("local volume=%v ok=%v want 25", level, ok)
	}

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("expected clean shutdown, got %v", err)
	}
	if svc.Outbox().Len() != 1 {
		t.Fatalf("queued change should survive, len=%d", svc.Outbox().Len())
	}
}

func TestServiceFatalOnRejection(t *testing.T) {
	testlog.Start(t)

	rl := relaytest.New(t, relaytest.WithStatus(http.StatusForbidden))
	svc := NewService(testServiceConfig(rl.URL), WithBackend(newFakeBackend(50)))

	err := svc.Serve(context.Background())
	var fatal *FatalError
	if !errors.As(err, &fatal) {
		t.Fatalf("expected *FatalError, got %v", err)
	}
	if relay.KindOf(err) != relay.KindRejected {
		t.Fatalf("expected rejection cause, got %v", err)
	}
	if rl.Attempts() != 1 {
		t.Fatalf("non-retryable rejection should not be retried, attempts=%d", rl.Attempts())
	}
	if report := svc.Report(); report.State != StateFatallyFailed.String() {
		t.Fatalf("unexpected report state: %+v", report)
	}
}

func TestServiceFatalOnInvalidEndpoint(t *testing.T) {
	testlog.Start(t)

	svc := NewService(testServiceConfig("tcp://relay.example"), WithBackend(newFakeBackend(50)))
	err := svc.Serve(context.Background())
	if !errors.Is(err, relay.ErrInvalidEndpoint) {
		t.Fatalf("expected invalid endpoint, got %v", err)
	}
}

func TestServiceFatalOnUnreadableCA(t *testing.T) {
	testlog.Start(t)

	cfg := testServiceConfig(relay.DefaultAddress)
	cfg.Relay.TLS.CAFile = "/nonexistent/ca.pem"
	if err := NewService(cfg, WithBackend(newFakeBackend(50))).Serve(context.Background()); err == nil {
		t.Fatalf("expected tls configuration error")
	}
}

func TestServiceReportsSessionStartVolume(t *testing.T) {
	testlog.Start(t)

	svc := NewService(testServiceConfig(relay.DefaultAddress),
		WithBackend(newFakeBackend(30)), WithDialer(&fakeDialer{}))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- svc.Serve(ctx) }()

	deadline := time.Now().Add(waitTimeout)
	for {
		report := svc.Report()
		if report.SessionStartVolume != nil {
			if *report.SessionStartVolume != 30 {
				t.Fatalf("session start volume=%d want 30", *report.SessionStartVolume)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("session start volume never reported: %+v", report)
		}
		time.Sleep(5 * time.Millisecond)
	}

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("expected clean shutdown, got %v", err)
	}
	if report := svc.Report(); report.SessionStartVolume != nil {
		t.Fatalf("session start volume should clear with the session, got %d", *report.SessionStartVolume)
	}
}

func TestServiceStatusAddrInUseFailsBeforeSync(t *testing.T) {
	testlog.Start(t)

	taken, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer taken.Close()

	cfg := testServiceConfig(relay.DefaultAddress)
	cfg.Status.Addr = taken.Addr().String()
	dialer := &fakeDialer{}
	done := make(chan error, 1)
	svc := NewService(cfg, WithBackend(newFakeBackend(50)), WithDialer(dialer))
	go func() { done <- svc.Serve(context.Background()) }()

	select {
	case err := <-done:
		if err == nil {
			t.Fatalf("expected status listen error")
		}
	case <-time.After(waitTimeout):
		t.Fatalf("service kept running with an unusable status address")
	}
	if dialer.Calls() != 0 {
		t.Fatalf("sync started despite the status error, dials=%d", dialer.Calls())
	}
}
