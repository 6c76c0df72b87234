package state

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Listener is notified after every successful write
type Listener func(st State)

// Publisher declares each key once per process and writes acknowledged values
type Publisher struct {
	store Store

	mu        sync.Mutex
	declared  map[string]bool
	listeners []Listener
}

func NewPublisher(store Store) *Publisher {
	return &Publisher{
		store:    store,
		declared: make(map[string]bool),
	}
}

// Store returns the underlying store
func (p *Publisher) Store() Store {
	return p.store
}

// Subscribe registers a listener for published values
func (p *Publisher) Subscribe(l Listener) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.listeners = append(p.listeners, l)
}

// Declare declares meta unless it was declared before by this publisher
func (p *Publisher) Declare(ctx context.Context, meta Meta) error {
	p.mu.Lock()
	done := p.declared[meta.Key]
	p.mu.Unlock()
	if done {
		return nil
	}

	if err := p.store.DeclareObject(ctx, meta); err != nil {
		return fmt.Errorf("declare %s: %w", meta.Key, err)
	}

	p.mu.Lock()
	p.declared[meta.Key] = true
	p.mu.Unlock()
	return nil
}

// Publish declares meta if needed and writes value with ack=true
func (p *Publisher) Publish(ctx context.Context, meta Meta, value interface{}) error {
	if err := p.Declare(ctx, meta); err != nil {
		return err
	}
	if err := p.store.SetState(ctx, meta.Key, value, true); err != nil {
		return fmt.Errorf("set %s: %w", meta.Key, err)
	}

	p.mu.Lock()
	listeners := append([]Listener(nil), p.listeners...)
	p.mu.Unlock()

	for _, l := range listeners {
		l(State{Key: meta.Key, Value: value, Ack: true, Timestamp: time.Now()})
	}
	return nil
}

// Update is one value to publish together with its metadata
type Update struct {
	Meta  Meta
	Value interface{}
}

// PublishAll commits updates as one batch: either every value is written and
// listeners are notified, or nothing is written and no listener fires.
func (p *Publisher) PublishAll(ctx context.Context, updates []Update) error {
	if len(updates) == 0 {
		return nil
	}

	for _, u := range updates {
		if err := p.Declare(ctx, u.Meta); err != nil {
			return err
		}
	}

	states := make([]State, len(updates))
	for i, u := range updates {
		states[i] = State{Key: u.Meta.Key, Value: u.Value, Ack: true}
	}
	if err := p.store.SetStates(ctx, states); err != nil {
		return fmt.Errorf("set %d states: %w", len(states), err)
	}

	p.mu.Lock()
	listeners := append([]Listener(nil), p.listeners...)
	p.mu.Unlock()

	now := time.Now()
	for _, st := range states {
		st.Timestamp = now
		for _, l := range listeners {
			l(st)
		}
	}
	return nil
}

// Get reads the current state of key
func (p *Publisher) Get(ctx context.Context, key string) (*State, error) {
	return p.store.GetState(ctx, key)
}
