package ws

import (
	"encoding/json"
	"fmt"

	"github.com/udisondev/worldstream/internal/parcel"
	"github.com/udisondev/worldstream/internal/stream"
)

// Client message types.
const (
	TypeMove       = "move"
	TypeInteract   = "interact"
	TypeExit       = "exit"
	TypeToggleRoad = "toggle_road"
)

// Server message types besides the stream events.
const (
	TypeWelcome = "welcome"
	TypeError   = "error"
)

// ClientMsg is any message sent by a client.
type ClientMsg struct {
	Type   string        `json:"type"`
	X      float64       `json:"x,omitempty"`
	Y      float64       `json:"y,omitempty"`
	Parcel parcel.Parcel `json:"parcel,omitempty"`
}

// Command converts the message to a stream command.
func (m ClientMsg) Command() (stream.Command, error) {
	switch m.Type {
	case TypeMove:
		return stream.MoveCommand{Position: parcel.Point{X: m.X, Y: m.Y}}, nil
	case TypeInteract:
		return stream.InteractCommand{}, nil
	case TypeExit:
		return stream.ExitCommand{}, nil
	case TypeToggleRoad:
		if !m.Parcel.Valid() {
			return nil, fmt.Errorf("parcel %s out of bounds", m.Parcel)
		}
		return stream.ToggleRoadCommand{Parcel: m.Parcel}, nil
	default:
		return nil, fmt.Errorf("unknown message type %q", m.Type)
	}
}

// DecodeClientMsg parses one client frame.
func DecodeClientMsg(b []byte) (ClientMsg, error) {
	var m ClientMsg
	if err := json.Unmarshal(b, &m); err != nil {
		return ClientMsg{}, fmt.Errorf("decoding client message: %w", err)
	}
	return m, nil
}

// SpawnedScene describes one spawned instance in the welcome message.
type SpawnedScene struct {
	Instance  uint64          `json:"instance"`
	Kind      string          `json:"kind"`
	Name      string          `json:"name"`
	Parcels   []parcel.Parcel `json:"parcels"`
	Timestamp int64           `json:"timestamp"`
	Level     int             `json:"level"`
}

// WelcomeMsg is the first frame a client receives.
type WelcomeMsg struct {
	Type     string         `json:"type"`
	Parcel   parcel.Parcel  `json:"parcel"`
	Level    int            `json:"level"`
	Position parcel.Point   `json:"position"`
	Spawned  []SpawnedScene `json:"spawned"`
}

// ErrorMsg reports a rejected client message.
type ErrorMsg struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}
