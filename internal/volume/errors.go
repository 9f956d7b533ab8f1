package volume

import (
	"errors"
	"fmt"
)

var (
	ErrUnsupported   = errors.New("volume: unsupported platform")
	ErrCommandFailed = errors.New("volume: command failed")
	ErrParseFailed   = errors.New("volume: parse failed")
)

// ErrorKind classifies local backend failures.
type ErrorKind int

const (
	KindUnsupported ErrorKind = iota + 1
	KindCommandFailed
	KindParseFailed
)

func (k ErrorKind) String() string {
	switch k {
	case KindUnsupported:
		return "unsupported"
	case KindCommandFailed:
		return "command_failed"
	case KindParseFailed:
		return "parse_failed"
	default:
		return "unknown"
	}
}

// BackendError is returned by every Backend operation that fails.
type BackendError struct {
	Kind     ErrorKind
	Platform string
	Op       string
	Err      error
}

func (e *BackendError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("volume: %s %s on %s", e.Op, e.Kind, e.Platform)
	}
	return fmt.Sprintf("volume: %s %s on %s: %v", e.Op, e.Kind, e.Platform, e.Err)
}

func (e *BackendError) Unwrap() error {
	return e.Err
}

// Is lets errors.Is match the kind sentinels.
func (e *BackendError) Is(target error) bool {
	switch target {
	case ErrUnsupported:
		return e.Kind == KindUnsupported
	case ErrCommandFailed:
		return e.Kind == KindCommandFailed
	case ErrParseFailed:
		return e.Kind == KindParseFailed
	}
	return false
}
