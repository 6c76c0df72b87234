package storage

import "time"

// ObjectRow is a row of iolink_objects
type ObjectRow struct {
	Key        string    `json:"key"`
	Name       string    `json:"name"`
	ObjectType string    `json:"object_type"`
	Meta       []byte    `json:"meta"` // JSONB
	CreatedAt  time.Time `json:"created_at"`
}

// StateRow is a row of iolink_states
type StateRow struct {
	Key       string    `json:"key"`
	Value     []byte    `json:"value"` // JSONB
	Ack       bool      `json:"ack"`
	UpdatedAt time.Time `json:"updated_at"`
}
