package protocol

import (
	"encoding/json"
	"fmt"
)

// Decode classifies one relay frame. Unknown or untyped objects decode to
// EventUnrecognized; only broken payloads return an error.
func Decode(data []byte) (Event, error) {
	fields, err := decodeObject(data)
	if err != nil {
		return Event{}, err
	}

	rawType, ok := fields["type"]
	if !ok {
		return Event{Kind: EventUnrecognized}, nil
	}
	var typ string
	if err := json.Unmarshal(rawType, &typ); err != nil {
		return Event{}, fmt.Errorf("%w: type: %v", ErrMalformed, err)
	}

	switch typ {
	case TypeVolume:
		v, err := intField(fields, "volume")
		if err != nil {
			return Event{}, err
		}
		return Event{Kind: EventVolumeUpdate, Type: typ, Volume: v}, nil
	case TypeClients:
		n, err := intField(fields, "clients")
		if err != nil {
			return Event{}, err
		}
		if n < 0 {
			return Event{}, fmt.Errorf("%w: %d", ErrInvalidPeerCount, n)
		}
		return Event{Kind: EventPeerCount, Type: typ, Clients: n}, nil
	default:
		return Event{Kind: EventUnrecognized, Type: typ}, nil
	}
}

// DecodeRequest parses and validates one client -> relay frame.
func DecodeRequest(data []byte) (Request, error) {
	var req Request
	if err := json.Unmarshal(data, &req); err != nil {
		return Request{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if err := req.Validate(); err != nil {
		return Request{}, err
	}
	return req, nil
}

func decodeObject(data []byte) (map[string]json.RawMessage, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if fields == nil {
		return nil, fmt.Errorf("%w: not an object", ErrMalformed)
	}
	return fields, nil
}

func intField(fields map[string]json.RawMessage, name string) (int, error) {
	raw, ok := fields[name]
	if !ok || string(raw) == "null" {
		return 0, fmt.Errorf("%w: missing %s", ErrMalformed, name)
	}
	var v int
	if err := json.Unmarshal(raw, &v); err != nil {
		return 0, fmt.Errorf("%w: %s: %v", ErrMalformed, name, err)
	}
	return v, nil
}
