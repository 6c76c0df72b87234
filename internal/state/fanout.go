package state

import (
	"context"

	"go.uber.org/zap"
)

// FanOut writes to a primary store and mirrors every write to further
// stores. Only primary errors are returned; mirror errors are logged.
type FanOut struct {
	primary Store
	mirrors []Store
	logger  *zap.Logger
}

func NewFanOut(primary Store, logger *zap.Logger, mirrors ...Store) *FanOut {
	return &FanOut{
		primary: primary,
		mirrors: mirrors,
		logger:  logger,
	}
}

func (f *FanOut) DeclareObject(ctx context.Context, meta Meta) error {
	if err := f.primary.DeclareObject(ctx, meta); err != nil {
		return err
	}
	for _, mirror := range f.mirrors {
		if err := mirror.DeclareObject(ctx, meta); err != nil {
			f.logger.Warn("Mirror declare failed",
				zap.String("key", meta.Key),
				zap.Error(err))
		}
	}
	return nil
}

func (f *FanOut) SetState(ctx context.Context, key string, value interface{}, ack bool) error {
	if err := f.primary.SetState(ctx, key, value, ack); err != nil {
		return err
	}
	for _, mirror := range f.mirrors {
		if err := mirror.SetState(ctx, key, value, ack); err != nil {
			f.logger.Warn("Mirror write failed",
				zap.String("key", key),
				zap.Error(err))
		}
	}
	return nil
}

// SetStates commits to the primary first; mirrors get the batch only after
// the primary accepted it
func (f *FanOut) SetStates(ctx context.Context, states []State) error {
	if err := f.primary.SetStates(ctx, states); err != nil {
		return err
	}
	for _, mirror := range f.mirrors {
		if err := mirror.SetStates(ctx, states); err != nil {
			f.logger.Warn("Mirror batch write failed",
				zap.Int("states", len(states)),
				zap.Error(err))
		}
	}
	return nil
}

// GetState reads from the primary only
func (f *FanOut) GetState(ctx context.Context, key string) (*State, error) {
	return f.primary.GetState(ctx, key)
}
