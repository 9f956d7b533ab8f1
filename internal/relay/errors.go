package relay

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"

	"github.com/coder/websocket"
)

var ErrInvalidEndpoint = errors.New("relay: invalid endpoint")

// ErrorKind is the distinguishable cause of a transport failure.
type ErrorKind int

const (
	KindInvalidEndpoint ErrorKind = iota + 1
	KindRejected
	KindClosed
	KindIO
)

func (k ErrorKind) String() string {
	switch k {
	case KindInvalidEndpoint:
		return "invalid_endpoint"
	case KindRejected:
		return "rejected"
	case KindClosed:
		return "closed"
	case KindIO:
		return "io"
	default:
		return "unknown"
	}
}

// Error is a transport-level failure. Status carries the HTTP status for
// KindRejected and the websocket close code for KindClosed (0 when unknown).
type Error struct {
	Kind   ErrorKind
	Op     string
	Status int
	Err    error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("relay: %s %s", e.Op, e.Kind)
	if e.Status != 0 {
		msg = fmt.Sprintf("%s status=%d", msg, e.Status)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Retryable reports whether another connection attempt may succeed.
// Malformed endpoints and handshake rejections below 500 are permanent,
// except the capacity signal 429. 503 and other 5xx, closes and I/O failures
// are transient.
func (e *Error) Retryable() bool {
	switch e.Kind {
	case KindInvalidEndpoint:
		return false
	case KindRejected:
		return e.Status == http.StatusTooManyRequests || e.Status >= 500
	default:
		return true
	}
}

// IsRetryable classifies any session or dial error. Errors that are not a
// *Error are treated as I/O failures.
func IsRetryable(err error) bool {
	var re *Error
	if errors.As(err, &re) {
		return re.Retryable()
	}
	return true
}

// KindOf returns the transport kind of err, KindIO for foreign errors.
func KindOf(err error) ErrorKind {
	var re *Error
	if errors.As(err, &re) {
		return re.Kind
	}
	return KindIO
}

func classifyDial(err error, resp *http.Response) *Error {
	if resp != nil && resp.StatusCode != http.StatusSwitchingProtocols {
		return &Error{Kind: KindRejected, Op: "dial", Status: resp.StatusCode, Err: err}
	}
	return &Error{Kind: KindIO, Op: "dial", Err: err}
}

// classifyConn maps a read/write failure. Context errors pass through so the
// caller can tell shutdown from transport loss.
func classifyConn(op string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	if status := websocket.CloseStatus(err); status != -1 {
		return &Error{Kind: KindClosed, Op: op, Status: int(status), Err: err}
	}
	if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
		return &Error{Kind: KindClosed, Op: op, Err: err}
	}
	return &Error{Kind: KindIO, Op: op, Err: err}
}
