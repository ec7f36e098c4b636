package serialchat

import (
	"time"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"
)

// Direction marks a message as transmitted or received relative to the
// owning port.
type Direction int

const (
	DirectionSent     Direction = 0
	DirectionReceived Direction = 1
)

func (d Direction) String() string {
	if d == DirectionReceived {
		return "received"
	}
	return "sent"
}

// Message is one directional data event on a port. The ID is generated
// at construction and is the sole basis of equality: two messages with
// identical content are distinct.
type Message struct {
	ID        string
	PortName  string
	Data      []byte
	Direction Direction
	Timestamp time.Time
}

// NewMessage builds a message with a fresh ID and the current time.
func NewMessage(portName string, data []byte, direction Direction) Message {
	return Message{
		ID:        uuid.NewString(),
		PortName:  portName,
		Data:      append([]byte(nil), data...),
		Direction: direction,
		Timestamp: time.Now(),
	}
}

// Equal compares by ID alone.
func (m Message) Equal(other Message) bool {
	return m.ID != "" && m.ID == other.ID
}

// IsZero reports whether m is the empty sentinel returned for keys with
// no history, distinguishable by an empty PortName.
func (m Message) IsZero() bool {
	return m.PortName == "" && m.ID == ""
}

// Text returns the payload interpreted as UTF-8 text.
func (m Message) Text() string {
	return string(m.Data)
}

// Hex returns the payload in canonical uppercase space-separated hex.
func (m Message) Hex() string {
	return EncodeHexString(m.Data, " ")
}

type messageJSON struct {
	ID        string `json:"id"`
	PortName  string `json:"portName"`
	Data      []byte `json:"data"`
	Direction int    `json:"direction"`
	Timestamp string `json:"timestamp"`
}

func (m Message) MarshalJSON() ([]byte, error) {
	return json.Marshal(messageJSON{
		ID:        m.ID,
		PortName:  m.PortName,
		Data:      m.Data,
		Direction: int(m.Direction),
		Timestamp: m.Timestamp.Format(time.RFC3339Nano),
	})
}

func (m *Message) UnmarshalJSON(data []byte) error {
	var raw messageJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*m = Message{
		ID:        raw.ID,
		PortName:  raw.PortName,
		Data:      raw.Data,
		Direction: Direction(raw.Direction),
	}
	if raw.Timestamp != "" {
		if t, err := time.Parse(time.RFC3339Nano, raw.Timestamp); err == nil {
			m.Timestamp = t
		}
	}
	return nil
}
