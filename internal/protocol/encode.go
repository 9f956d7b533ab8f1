package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/danmuck/volsync/internal/volume"
)

// EncodeGetVolume asks the relay for the current synchronized volume.
func EncodeGetVolume() []byte {
	return mustEncode(Request{Action: ActionGetVolume})
}

// EncodeGetConnectedClientsCount asks the relay for the current peer count.
func EncodeGetConnectedClientsCount() []byte {
	return mustEncode(Request{Action: ActionGetConnectedClientsCount})
}

// EncodeVolumeChange proposes level as the new synchronized volume.
func EncodeVolumeChange(level volume.Level) ([]byte, error) {
	v := level.Int()
	return EncodeRequest(Request{Action: ActionReqVolumeChange, Volume: &v})
}

// EncodeRequest validates req against its action and marshals it.
func EncodeRequest(req Request) ([]byte, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	return json.Marshal(req)
}

func (r Request) Validate() error {
	switch r.Action {
	case ActionGetVolume, ActionGetConnectedClientsCount:
		if r.Volume != nil {
			return fmt.Errorf("%w: %s", ErrUnexpectedVolume, r.Action)
		}
		return nil
	case ActionReqVolumeChange:
		if r.Volume == nil {
			return fmt.Errorf("%w: missing volume", ErrInvalidVolume)
		}
		if _, err := volume.NewLevel(*r.Volume); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidVolume, err)
		}
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrUnknownAction, r.Action)
	}
}

// EncodeEvent marshals a relay -> client event. Relay fakes use it.
func EncodeEvent(ev Event) ([]byte, error) {
	switch ev.Kind {
	case EventVolumeUpdate:
		return json.Marshal(struct {
			Type   string `json:"type"`
			Volume int    `json:"volume"`
		}{Type: TypeVolume, Volume: ev.Volume})
	case EventPeerCount:
		if ev.Clients < 0 {
			return nil, fmt.Errorf("%w: %d", ErrInvalidPeerCount, ev.Clients)
		}
		return json.Marshal(struct {
			Type    string `json:"type"`
			Clients int    `json:"clients"`
		}{Type: TypeClients, Clients: ev.Clients})
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnencodableEvent, ev.Kind)
	}
}

func mustEncode(req Request) []byte {
	payload, err := EncodeRequest(req)
	if err != nil {
		panic(err)
	}
	return payload
}
