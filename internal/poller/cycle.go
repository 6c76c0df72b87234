package poller

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/KevinKickass/IOLinkBridge/internal/iolink"
	"github.com/KevinKickass/IOLinkBridge/internal/sensors"
	"github.com/KevinKickass/IOLinkBridge/internal/state"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// RunCycle executes HostCheck, PortScan, Decode&Publish and DerivedMetrics
// once. It never sleeps for the poll interval.
func (p *Poller) RunCycle(ctx context.Context) (result CycleResult) {
	p.cycleMu.Lock()
	defer p.cycleMu.Unlock()

	result = CycleResult{
		ID:         uuid.New(),
		StartedAt:  time.Now(),
		Readings:   make(map[int]sensors.Reading),
		PortErrors: make(map[int]error),
	}
	logger := p.logger.With(zap.String("cycle_id", result.ID.String()))

	defer func() {
		result.Duration = time.Since(result.StartedAt)
		logger.Info("Finished run",
			zap.Duration("duration", result.Duration),
			zap.Bool("failed", result.Failed()))
		p.finishCycle(result)
	}()

	// HostCheck
	result.Phase = PhaseHostCheck
	p.setPhase(PhaseHostCheck)
	alive, err := p.checkHost(ctx, logger)
	result.HostAlive = alive
	if err != nil {
		result.Err = err
		result.Fatal = errors.Is(err, ErrHostUnreachable)
		return result
	}

	// PortScan
	result.Phase = PhasePortScan
	p.setPhase(PhasePortScan)
	assignment, err := p.MapPorts(ctx)
	if err != nil {
		logger.Error("Port scan failed, cycle skipped", zap.Error(err))
		result.Err = err
		var unknown *sensors.UnidentifiedSensorError
		result.Fatal = errors.As(err, &unknown)
		return result
	}
	result.Assignment = assignment

	// Decode&Publish
	result.Phase = PhaseDecodePublish
	p.setPhase(PhaseDecodePublish)
	for _, a := range assignment {
		if ctx.Err() != nil {
			result.Err = ctx.Err()
			return result
		}

		reading, err := p.pollPort(ctx, a)
		if err != nil {
			logger.Error("Port values withheld",
				zap.Int("port", a.Port),
				zap.String("product_name", a.ProductName),
				zap.Error(err))
			result.PortErrors[a.Port] = err
			continue
		}
		result.Readings[a.Port] = reading
	}

	// DerivedMetrics
	result.Phase = PhaseDerivedMetrics
	p.setPhase(PhaseDerivedMetrics)
	delta, ok := temperatureDelta(assignment, result.Readings)
	if ok {
		meta := state.NumberMeta(sensors.KeyTemperatureDelta, sensors.KeyTemperatureDelta, sensors.UnitCelsius)
		if err := p.publisher.Publish(ctx, meta, delta); err != nil {
			logger.Error("Failed to publish temperature delta", zap.Error(err))
		} else {
			result.Delta = &delta
		}
	}

	return result
}

// checkHost probes the master up to the configured number of attempts.
// isHostAlive is only written when it changes.
func (p *Poller) checkHost(ctx context.Context, logger *zap.Logger) (bool, error) {
	attempts := p.cfg.HostCheckAttempts

	var lastErr error
	for i := 0; i < attempts; i++ {
		_, err := p.fetcher.FetchValue(ctx, iolink.LivenessAddress)
		if err == nil {
			if err := p.publishHostAlive(ctx, true); err != nil {
				logger.Error("Failed to publish host state", zap.Error(err))
			}
			return true, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return false, ctx.Err()
		}

		logger.Warn("Could not reach host",
			zap.Int("attempt", i+1),
			zap.Int("attempts", attempts),
			zap.Bool("timeout", iolink.IsTimeout(err)),
			zap.Error(err))

		if i < attempts-1 {
			if err := p.sleep(ctx, p.cfg.RetryDelay); err != nil {
				return false, err
			}
		}
	}

	logger.Error("Could not reach host, cycle skipped",
		zap.Int("attempts", attempts),
		zap.Error(lastErr))

	if err := p.publishHostAlive(ctx, false); err != nil {
		logger.Error("Failed to publish host state", zap.Error(err))
	}
	return false, fmt.Errorf("%w after %d attempts: %v", ErrHostUnreachable, attempts, lastErr)
}

func (p *Poller) publishHostAlive(ctx context.Context, alive bool) error {
	prev, err := p.publisher.Get(ctx, KeyHostAlive)
	if err != nil {
		return fmt.Errorf("read %s: %w", KeyHostAlive, err)
	}
	if prev != nil {
		if v, ok := prev.Value.(bool); ok && v == alive {
			return nil
		}
	}
	return p.publisher.Publish(ctx, state.BooleanMeta(KeyHostAlive, KeyHostAlive), alive)
}

// pollPort fetches and decodes one port. The product name and all
// measurements are committed as one batch, so a failing port publishes nothing.
func (p *Poller) pollPort(ctx context.Context, a Assignment) (sensors.Reading, error) {
	value, err := p.fetcher.FetchValue(ctx, iolink.ProcessDataAddress(a.Port))
	if err != nil {
		return sensors.Reading{}, err
	}
	if !value.Present {
		return sensors.Reading{}, &sensors.DecodeError{Model: a.Model, Reason: "process data value missing"}
	}

	reading, err := a.Model.Decode(value.Raw)
	if err != nil {
		return sensors.Reading{}, err
	}

	portKey := fmt.Sprintf("%s.Port%d", p.cfg.ChannelPrefix, a.Port)
	portMeta := state.Meta{
		Key:       portKey,
		Name:      fmt.Sprintf("Port%d", a.Port),
		Type:      state.ObjectTypeDevice,
		ValueType: state.ValueTypeString,
		Role:      "value.SensorName",
		Read:      true,
	}
	updates := make([]state.Update, 0, len(reading.Measurements)+1)
	updates = append(updates, state.Update{Meta: portMeta, Value: a.ProductName})
	for _, m := range reading.Measurements {
		updates = append(updates, state.Update{Meta: state.NumberMeta(m.Key, m.Name, m.Unit), Value: m.Value})
	}

	if err := p.publisher.PublishAll(ctx, updates); err != nil {
		return sensors.Reading{}, err
	}
	return reading, nil
}

// temperatureDelta is return minus flow temperature, only when both were read.
// Ports are walked in order, so with duplicate models the highest port wins.
func temperatureDelta(assignment PortAssignment, readings map[int]sensors.Reading) (float64, bool) {
	var (
		flow, ret       sensors.Measurement
		hasFlow, hasRet bool
	)
	for _, a := range assignment {
		r, ok := readings[a.Port]
		if !ok {
			continue
		}
		if m, ok := r.Get(sensors.KeyTemperatureFlow); ok {
			flow, hasFlow = m, true
		}
		if m, ok := r.Get(sensors.KeyTemperatureReturn); ok {
			ret, hasRet = m, true
		}
	}
	if !hasFlow || !hasRet {
		return 0, false
	}
	return sensors.Round2(ret.Raw() - flow.Raw()), true
}
