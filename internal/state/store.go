// Package state is the north-side key/value namespace readings are published
// into. Keys are declared once with their metadata, then written every cycle.
package state

import (
	"context"
	"time"
)

type ObjectType string

const (
	ObjectTypeState   ObjectType = "state"
	ObjectTypeChannel ObjectType = "channel"
	ObjectTypeDevice  ObjectType = "device"
)

type ValueType string

const (
	ValueTypeNumber  ValueType = "number"
	ValueTypeBoolean ValueType = "boolean"
	ValueTypeString  ValueType = "string"
)

// Meta describes a key in the namespace
type Meta struct {
	Key       string     `json:"key"`
	Name      string     `json:"name"`
	Type      ObjectType `json:"type"`
	ValueType ValueType  `json:"value_type,omitempty"`
	Role      string     `json:"role,omitempty"`
	Unit      string     `json:"unit,omitempty"`
	Read      bool       `json:"read"`
	Write     bool       `json:"write"`
}

// State is the current value of a key
type State struct {
	Key       string      `json:"key"`
	Value     interface{} `json:"val"`
	Ack       bool        `json:"ack"`
	Timestamp time.Time   `json:"ts"`
}

// Store is implemented by every backend
type Store interface {
	// DeclareObject creates the object if it does not exist yet
	DeclareObject(ctx context.Context, meta Meta) error
	SetState(ctx context.Context, key string, value interface{}, ack bool) error
	// SetStates writes all states or none of them. Timestamps are set by the store.
	SetStates(ctx context.Context, states []State) error
	// GetState returns nil without error for keys that were never written
	GetState(ctx context.Context, key string) (*State, error)
}

// NumberMeta is the metadata of a read-only numeric value state
func NumberMeta(key, name, unit string) Meta {
	return Meta{
		Key:       key,
		Name:      name,
		Type:      ObjectTypeState,
		ValueType: ValueTypeNumber,
		Role:      "value." + key,
		Unit:      unit,
		Read:      true,
	}
}

func BooleanMeta(key, name string) Meta {
	return Meta{
		Key:       key,
		Name:      name,
		Type:      ObjectTypeState,
		ValueType: ValueTypeBoolean,
		Role:      "value." + key,
		Read:      true,
	}
}

func ChannelMeta(key, name string) Meta {
	return Meta{
		Key:  key,
		Name: name,
		Type: ObjectTypeChannel,
	}
}
