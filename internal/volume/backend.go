// Package volume reads and writes the host output volume and watches it for
// local changes.
package volume

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/danmuck/volsync/internal/tools"
)

const (
	PlatformDarwin = "darwin"
	PlatformLinux  = "linux"
)

// Reader is the read half of a Backend.
type Reader interface {
	Read(ctx context.Context) (Level, error)
}

// Writer is the write half of a Backend.
type Writer interface {
	Write(ctx context.Context, level Level) error
}

// Backend is the host output-volume capability. One implementation is
// selected per process by NewBackend.
type Backend interface {
	Reader
	Writer
	Platform() string
}

// NewBackend selects the adapter for goos. Unsupported platforms fail here,
// never per call.
func NewBackend(goos string, runner tools.CommandRunner) (Backend, error) {
	if runner == nil {
		runner = tools.ExecRunner{}
	}
	switch goos {
	case PlatformDarwin:
		return &darwinBackend{runner: runner}, nil
	case PlatformLinux:
		return &linuxBackend{runner: runner, control: "Master"}, nil
	default:
		return nil, &BackendError{Kind: KindUnsupported, Platform: goos, Op: "select"}
	}
}

type darwinBackend struct {
	runner tools.CommandRunner
}

func (b *darwinBackend) Platform() string { return PlatformDarwin }

func (b *darwinBackend) Read(ctx context.Context) (Level, error) {
	out, err := run(ctx, b.runner, PlatformDarwin, "read", "osascript", "-e", "output volume of (get volume settings)")
	if err != nil {
		return 0, err
	}
	// "missing value" is printed when the current output device has no volume.
	level, err := ParseLevel(string(out))
	if err != nil {
		return 0, &BackendError{Kind: KindParseFailed, Platform: PlatformDarwin, Op: "read", Err: err}
	}
	return level, nil
}

func (b *darwinBackend) Write(ctx context.Context, level Level) error {
	mustValid(level)
	script := fmt.Sprintf("set volume output volume %d", level.Int())
	_, err := run(ctx, b.runner, PlatformDarwin, "write", "osascript", "-e", script)
	return err
}

var amixerPercent = regexp.MustCompile(`\[(\d+)%\]`)

type linuxBackend struct {
	runner  tools.CommandRunner
	control string
}

func (b *linuxBackend) Platform() string { return PlatformLinux }

func (b *linuxBackend) Read(ctx context.Context) (Level, error) {
	out, err := run(ctx, b.runner, PlatformLinux, "read", "amixer", "get", b.control)
	if err != nil {
		return 0, err
	}
	m := amixerPercent.FindSubmatch(out)
	if len(m) < 2 {
		return 0, &BackendError{
			Kind:     KindParseFailed,
			Platform: PlatformLinux,
			Op:       "read",
			Err:      fmt.Errorf("no percentage in amixer output %q", strings.TrimSpace(string(out))),
		}
	}
	v, err := strconv.Atoi(string(m[1]))
	if err != nil {
		return 0, &BackendError{Kind: KindParseFailed, Platform: PlatformLinux, Op: "read", Err: err}
	}
	level, err := NewLevel(v)
	if err != nil {
		return 0, &BackendError{Kind: KindParseFailed, Platform: PlatformLinux, Op: "read", Err: err}
	}
	return level, nil
}

func (b *linuxBackend) Write(ctx context.Context, level Level) error {
	mustValid(level)
	_, err := run(ctx, b.runner, PlatformLinux, "write", "amixer", "-q", "set", b.control, fmt.Sprintf("%d%%", level.Int()))
	return err
}

func run(ctx context.Context, runner tools.CommandRunner, platform, op, name string, args ...string) ([]byte, error) {
	res, err := runner.Run(ctx, name, args...)
	if err != nil {
		stderr := strings.TrimSpace(string(res.Stderr))
		return nil, &BackendError{
			Kind:     KindCommandFailed,
			Platform: platform,
			Op:       op,
			Err:      fmt.Errorf("%s exit=%d stderr=%q: %w", name, res.ExitCode, stderr, err),
		}
	}
	return res.Stdout, nil
}

func mustValid(level Level) {
	if !level.Valid() {
		panic(fmt.Sprintf("volume: write called with invalid level %d", int(level)))
	}
}
