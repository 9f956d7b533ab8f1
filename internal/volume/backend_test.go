package volume

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/danmuck/volsync/internal/testutil/testlog"
	"github.com/danmuck/volsync/internal/tools"
)

type fakeRunner struct {
	stdout string
	err    error
	calls  [][]string
}

func (r *fakeRunner) Run(_ context.Context, name string, args ...string) (tools.Result, error) {
	r.calls = append(r.calls, append([]string{name}, args...))
	res := tools.Result{Stdout: []byte(r.stdout)}
	if r.err != nil {
		res.ExitCode = 1
		res.Stderr = []byte("boom")
	}
	return res, r.err
}

func TestNewBackendUnsupportedPlatform(t *testing.T) {
	testlog.Start(t)

	_, err := NewBackend("windows", &fakeRunner{})
	if !errors.Is(err, ErrUnsupported) {
		t.Fatalf("expected ErrUnsupported, got %v", err)
	}
	var be *BackendError
	if !errors.As(err, &be) || be.Platform != "windows" {
		t.Fatalf("expected BackendError for windows, got %#v", err)
	}
}

func TestLinuxBackendReadParsesAmixer(t *testing.T) {
	testlog.Start(t)

	runner := &fakeRunner{stdout: "Simple mixer control 'Master',0\n  Front Left: Playback 42597 [65%] [on]\n  Front Right: Playback 42597 [65%] [on]\n"}
	b, err := NewBackend(PlatformLinux, runner)
	if err != nil {
		t.Fatalf("new backend: %v", err)
	}
	level, err := b.Read(context.Background())
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if level != 65 {
		t.Fatalf("unexpected level: %d", level)
	}
	if got := strings.Join(runner.calls[0], " "); got != "amixer get Master" {
		t.Fatalf("unexpected command: %q", got)
	}
}

func TestLinuxBackendReadErrors(t *testing.T) {
	testlog.Start(t)

	cases := []struct {
		name   string
		runner *fakeRunner
		want   error
	}{
		{name: "command failure", runner: &fakeRunner{err: errors.New("exit status 1")}, want: ErrCommandFailed},
		{name: "no percentage", runner: &fakeRunner{stdout: "Mono: Playback [on]"}, want: ErrParseFailed},
		{name: "out of range", runner: &fakeRunner{stdout: "Mono: Playback [153%] [on]"}, want: ErrOutOfRange},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			b, err := NewBackend(PlatformLinux, tc.runner)
			if err != nil {
				t.Fatalf("new backend: %v", err)
			}
			if _, err := b.Read(context.Background()); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestLinuxBackendWrite(t *testing.T) {
	testlog.Start(t)

	runner := &fakeRunner{}
	b, _ := NewBackend(PlatformLinux, runner)
	if err := b.Write(context.Background(), 30); err != nil {
		t.Fatalf("write: %v", err)
	}
	if got := strings.Join(runner.calls[0], " "); got != "amixer -q set Master 30%" {
		t.Fatalf("unexpected command: %q", got)
	}
}

func TestDarwinBackendReadWrite(t *testing.T) {
	testlog.Start(t)

	runner := &fakeRunner{stdout: "37\n"}
	b, err := NewBackend(PlatformDarwin, runner)
	if err != nil {
		t.Fatalf("new backend: %v", err)
	}
	level, err := b.Read(context.Background())
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if level != 37 {
		t.Fatalf("unexpected level: %d", level)
	}
	if err := b.Write(context.Background(), 80); err != nil {
		t.Fatalf("write: %v", err)
	}
	last := runner.calls[len(runner.calls)-1]
	if last[0] != "osascript" || last[2] != "set volume output volume 80" {
		t.Fatalf("unexpected write command: %q", last)
	}
}

func TestDarwinBackendMissingValue(t *testing.T) {
	testlog.Start(t)

	b, _ := NewBackend(PlatformDarwin, &fakeRunner{stdout: "missing value\n"})
	if _, err := b.Read(context.Background()); !errors.Is(err, ErrParseFailed) {
		t.Fatalf("expected ErrParseFailed, got %v", err)
	}
}

func TestWriteInvalidLevelPanics(t *testing.T) {
	b, _ := NewBackend(PlatformLinux, &fakeRunner{})
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic for invalid level")
		}
	}()
	_ = b.Write(context.Background(), Level(101))
}
