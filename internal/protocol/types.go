package protocol

// Action names a client -> relay request.
type Action string

const (
	ActionGetVolume                Action = "getVolume"
	ActionGetConnectedClientsCount Action = "getConnectedClientsCount"
	ActionReqVolumeChange          Action = "reqVolumeChange"
)

// Event type discriminators sent by the relay.
const (
	TypeVolume  = "volume"
	TypeClients = "clients"
)

// Request is one client -> relay frame.
type Request struct {
	Action Action `json:"action"`
	Volume *int   `json:"volume,omitempty"`
}

// EventKind classifies a decoded relay frame.
type EventKind int

const (
	EventUnrecognized EventKind = iota
	EventVolumeUpdate
	EventPeerCount
)

func (k EventKind) String() string {
	switch k {
	case EventVolumeUpdate:
		return "volume"
	case EventPeerCount:
		return "clients"
	default:
		return "unrecognized"
	}
}

// Event is one relay -> client frame. Volume is carried as received; range
// checks belong to the consumer.
type Event struct {
	Kind    EventKind
	Type    string
	Volume  int
	Clients int
}
