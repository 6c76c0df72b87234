package poller

import (
	"context"
	"errors"
	"time"

	"github.com/KevinKickass/IOLinkBridge/internal/iolink"
	"github.com/KevinKickass/IOLinkBridge/internal/sensors"
	"github.com/google/uuid"
)

// Fetcher is the part of the transport client the poller needs
type Fetcher interface {
	FetchValue(ctx context.Context, address string) (iolink.Value, error)
}

// ErrHostUnreachable means the liveness probe failed on every attempt
var ErrHostUnreachable = errors.New("io-link master unreachable")

// Phase is a state of the poll cycle
type Phase int

const (
	PhaseHostCheck Phase = iota
	PhasePortScan
	PhaseDecodePublish
	PhaseDerivedMetrics
	PhaseSleep
	PhaseStopped
)

func (p Phase) String() string {
	switch p {
	case PhaseHostCheck:
		return "HOST_CHECK"
	case PhasePortScan:
		return "PORT_SCAN"
	case PhaseDecodePublish:
		return "DECODE_PUBLISH"
	case PhaseDerivedMetrics:
		return "DERIVED_METRICS"
	case PhaseSleep:
		return "SLEEP"
	case PhaseStopped:
		return "STOPPED"
	default:
		return "UNKNOWN"
	}
}

// Assignment is the sensor found on one port
type Assignment struct {
	Port        int           `json:"port"`
	ProductName string        `json:"product_name"`
	Model       sensors.Model `json:"-"`
}

// PortAssignment covers every configured port, ordered by port number
type PortAssignment []Assignment

// Config is the runtime config of a poller
type Config struct {
	PortCount         int
	Interval          time.Duration
	HostCheckAttempts int
	RetryDelay        time.Duration
	StopOnFatal       bool
	ChannelPrefix     string
}

// CycleObserver is called after every cycle
type CycleObserver func(result CycleResult)

// CycleResult is what one poll cycle produced
type CycleResult struct {
	ID         uuid.UUID               `json:"id"`
	StartedAt  time.Time               `json:"started_at"`
	Duration   time.Duration           `json:"duration"`
	Phase      Phase                   `json:"-"`
	HostAlive  bool                    `json:"host_alive"`
	Assignment PortAssignment          `json:"assignment,omitempty"`
	Readings   map[int]sensors.Reading `json:"readings,omitempty"`
	PortErrors map[int]error           `json:"-"`
	Delta      *float64                `json:"temperature_delta,omitempty"`

	// Err is set when the cycle was aborted; Fatal marks cycle-fatal errors
	Err   error `json:"-"`
	Fatal bool  `json:"fatal"`
}

// Failed reports whether the cycle was aborted
func (r CycleResult) Failed() bool {
	return r.Err != nil
}
