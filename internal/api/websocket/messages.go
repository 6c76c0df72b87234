package websocket

import "time"

// MessageType defines the type of WebSocket message
type MessageType string

const (
	// State tree messages
	MessageTypeStateChanged MessageType = "state_changed"

	// Poll cycle messages
	MessageTypeCycleCompleted MessageType = "cycle_completed"
	MessageTypeCycleFailed    MessageType = "cycle_failed"

	// System messages
	MessageTypeSystemStatus MessageType = "system_status"
)

// Message represents a WebSocket message
type Message struct {
	Type      MessageType `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data"`
}

// StateChangedData is sent for every published value
type StateChangedData struct {
	Key   string      `json:"key"`
	Value interface{} `json:"val"`
	Ack   bool        `json:"ack"`
}

// CycleData summarises a poll cycle
type CycleData struct {
	CycleID    string         `json:"cycle_id"`
	DurationMs int64          `json:"duration_ms"`
	HostAlive  bool           `json:"host_alive"`
	Ports      map[int]string `json:"ports,omitempty"`
	PortErrors map[int]string `json:"port_errors,omitempty"`
	Error      string         `json:"error,omitempty"`
	Fatal      bool           `json:"fatal,omitempty"`
}

// NewMessage creates a new message with current timestamp
func NewMessage(msgType MessageType, data interface{}) Message {
	return Message{
		Type:      msgType,
		Timestamp: time.Now(),
		Data:      data,
	}
}

func NewStateChangedMessage(key string, value interface{}, ack bool) Message {
	return NewMessage(MessageTypeStateChanged, StateChangedData{
		Key:   key,
		Value: value,
		Ack:   ack,
	})
}

func NewCycleMessage(data CycleData) Message {
	if data.Error != "" {
		return NewMessage(MessageTypeCycleFailed, data)
	}
	return NewMessage(MessageTypeCycleCompleted, data)
}
