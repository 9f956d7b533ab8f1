package protocol

import "errors"

var (
	ErrMalformed        = errors.New("protocol: malformed frame")
	ErrInvalidPeerCount = errors.New("protocol: invalid peer count")
	ErrUnknownAction    = errors.New("protocol: unknown action")
	ErrInvalidVolume    = errors.New("protocol: invalid volume")
	ErrUnexpectedVolume = errors.New("protocol: volume not allowed for action")
	ErrUnencodableEvent = errors.New("protocol: event kind cannot be encoded")
)
