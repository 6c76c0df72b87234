package interfaces

import (
	"context"
	"time"

	"github.com/KevinKickass/IOLinkBridge/internal/config"
	"github.com/KevinKickass/IOLinkBridge/internal/poller"
	"github.com/KevinKickass/IOLinkBridge/internal/sensors"
	"github.com/KevinKickass/IOLinkBridge/internal/state"
)

// SystemStatus represents the current system state
type SystemStatus struct {
	State            string     `json:"state"`
	MasterHost       string     `json:"master_host"`
	PortCount        int        `json:"port_count"`
	PollerRunning    bool       `json:"poller_running"`
	PollerPhase      string     `json:"poller_phase"`
	HostAlive        *bool      `json:"host_alive,omitempty"`
	LastCycleID      string     `json:"last_cycle_id,omitempty"`
	LastCycleAt      *time.Time `json:"last_cycle_at,omitempty"`
	LastCycleError   string     `json:"last_cycle_error,omitempty"`
	ConnectedClients int        `json:"connected_clients"`
}

type LifecycleManager interface {
	Config() *config.Config
	States() *state.MemoryStore
	Catalog() *sensors.Catalog
	SensorIndex() *sensors.Index
	Assignment() poller.PortAssignment
	LastCycle() (poller.CycleResult, bool)
	GetCurrentStatus() SystemStatus
	TriggerPoll(ctx context.Context) (poller.CycleResult, error)
	Shutdown(ctx context.Context) error
}
