package system

import (
	"context"
	"fmt"
	"sync"

	"github.com/KevinKickass/IOLinkBridge/internal/api/rest"
	"github.com/KevinKickass/IOLinkBridge/internal/api/websocket"
	"github.com/KevinKickass/IOLinkBridge/internal/config"
	"github.com/KevinKickass/IOLinkBridge/internal/interfaces"
	"github.com/KevinKickass/IOLinkBridge/internal/iolink"
	"github.com/KevinKickass/IOLinkBridge/internal/poller"
	"github.com/KevinKickass/IOLinkBridge/internal/sensors"
	"github.com/KevinKickass/IOLinkBridge/internal/state"
	"github.com/KevinKickass/IOLinkBridge/internal/storage"
	"go.uber.org/zap"
)

type LifecycleManager struct {
	config  *config.Config
	storage *storage.PostgresClient
	logger  *zap.Logger

	client  *iolink.Client
	catalog *sensors.Catalog
	index   *sensors.Index
	memory  *state.MemoryStore
	mqtt    *state.MQTTStore
	poller  *poller.Poller
	wsHub   *websocket.Hub

	restServer *rest.Server

	stateMu      sync.RWMutex
	currentState SystemState

	// runCtx lebt bis Shutdown, der Poller hängt daran
	runCtx    context.Context
	runCancel context.CancelFunc

	errChan      chan error
	shutdownChan chan struct{}
	shutdownOnce sync.Once
}

// NewLifecycleManager baut alle Komponenten auf, die keine Verbindung
// brauchen. db darf nil sein (kein Postgres-Mirror).
func NewLifecycleManager(
	db *storage.PostgresClient,
	cfg *config.Config,
	logger *zap.Logger,
) (*LifecycleManager, error) {
	client, err := iolink.NewClient(cfg.Master.Host, cfg.Master.Timeout, cfg.Master.CID, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create IO-Link client: %w", err)
	}

	catalog, err := sensors.NewCatalog(cfg.Sensors.Catalog)
	if err != nil {
		return nil, fmt.Errorf("failed to build sensor catalog: %w", err)
	}

	var index *sensors.Index
	if cfg.Sensors.IndexFile != "" {
		index, err = sensors.LoadIndex(cfg.Sensors.IndexFile)
		if err != nil {
			return nil, err
		}
		logger.Info("Sensor index loaded",
			zap.String("vendor", index.Vendor),
			zap.Int("sensors", len(index.Sensors)))
	}

	lm := &LifecycleManager{
		config:       cfg,
		storage:      db,
		logger:       logger,
		client:       client,
		catalog:      catalog,
		index:        index,
		memory:       state.NewMemoryStore(),
		currentState: StateInitializing,
		errChan:      make(chan error, 1),
		shutdownChan: make(chan struct{}),
	}

	if cfg.Server.Enabled {
		lm.wsHub = websocket.NewHub(logger)
	}

	return lm, nil
}

// Start connects the mirrors, starts the poll loop and the API
func (lm *LifecycleManager) Start() error {
	lm.logger.Info("Starting IO-Link bridge",
		zap.String("master", lm.client.Endpoint()),
		zap.Strings("catalog", lm.catalog.Names()))

	lm.runCtx, lm.runCancel = context.WithCancel(context.Background())

	store, err := lm.buildStore(lm.runCtx)
	if err != nil {
		lm.setError(err)
		return err
	}
	publisher := state.NewPublisher(store)

	p, err := poller.New(poller.Config{
		PortCount:         lm.config.Master.PortCount,
		Interval:          lm.config.Poller.Interval,
		HostCheckAttempts: lm.config.Poller.HostCheck.Attempts,
		RetryDelay:        lm.config.Poller.HostCheck.RetryDelay,
		StopOnFatal:       lm.config.Poller.StopOnFatal,
		ChannelPrefix:     lm.config.Sensors.ChannelPrefix,
	}, lm.client, lm.catalog, publisher, lm.logger)
	if err != nil {
		lm.setError(err)
		return fmt.Errorf("failed to create poller: %w", err)
	}
	lm.stateMu.Lock()
	lm.poller = p
	lm.stateMu.Unlock()

	if lm.wsHub != nil {
		go lm.wsHub.Run()

		publisher.Subscribe(func(st state.State) {
			lm.wsHub.Broadcast(websocket.NewStateChangedMessage(st.Key, st.Value, st.Ack))
		})
		p.OnCycle(func(result poller.CycleResult) {
			lm.wsHub.Broadcast(websocket.NewCycleMessage(cycleData(result)))
		})

		if err := lm.startRESTServer(); err != nil {
			lm.setError(fmt.Errorf("failed to start REST API: %w", err))
			return err
		}
	}

	if err := p.Start(lm.runCtx); err != nil {
		lm.setError(err)
		return err
	}
	go lm.watchPoller(p)

	lm.setState(StateRunning)

	lm.logger.Info("System started successfully",
		zap.Int("ports", lm.config.Master.PortCount),
		zap.Duration("interval", lm.config.Poller.Interval),
		zap.Bool("rest_enabled", lm.config.Server.Enabled),
		zap.Bool("database_mirror", lm.storage != nil),
		zap.Bool("mqtt_mirror", lm.mqtt != nil))

	return nil
}

// buildStore puts the optional mirrors behind the in-memory store
func (lm *LifecycleManager) buildStore(ctx context.Context) (state.Store, error) {
	var mirrors []state.Store

	if lm.storage != nil {
		if err := lm.storage.EnsureSchema(ctx); err != nil {
			return nil, err
		}
		stateStore := storage.NewStateStore(lm.storage)
		if err := lm.restoreStates(ctx, stateStore); err != nil {
			return nil, err
		}
		mirrors = append(mirrors, stateStore)
	}

	if lm.config.MQTT.Enabled {
		mqttCfg := lm.config.MQTT
		store, err := state.NewMQTTStore(state.MQTTConfig{
			Broker:       mqttCfg.Broker,
			ClientID:     mqttCfg.ClientID,
			Username:     mqttCfg.Username,
			Password:     mqttCfg.Password,
			TopicPrefix:  mqttCfg.TopicPrefix,
			QoS:          byte(mqttCfg.QoS),
			Retain:       mqttCfg.Retain,
			WriteTimeout: mqttCfg.WriteTimeout,
		}, lm.logger)
		if err != nil {
			return nil, err
		}
		lm.mqtt = store
		mirrors = append(mirrors, store)
	}

	if len(mirrors) == 0 {
		return lm.memory, nil
	}
	return state.NewFanOut(lm.memory, lm.logger, mirrors...), nil
}

// restoreStates lädt den letzten bekannten Stand aus Postgres, damit
// isHostAlive nach einem Neustart nicht erneut geschrieben wird
func (lm *LifecycleManager) restoreStates(ctx context.Context, store *storage.StateStore) error {
	objects, err := store.ListObjects(ctx)
	if err != nil {
		return fmt.Errorf("failed to restore objects: %w", err)
	}
	states, err := store.ListStates(ctx)
	if err != nil {
		return fmt.Errorf("failed to restore states: %w", err)
	}

	lm.memory.Restore(objects, states)
	lm.logger.Info("Restored states from database",
		zap.Int("objects", len(objects)),
		zap.Int("states", len(states)))
	return nil
}

func (lm *LifecycleManager) startRESTServer() error {
	lm.restServer = rest.NewServer(lm.config, lm, lm.logger, lm.wsHub)
	return lm.restServer.Start()
}

// watchPoller reports a loop that ended on its own (stop_on_fatal)
func (lm *LifecycleManager) watchPoller(p *poller.Poller) {
	select {
	case <-p.Done():
	case <-lm.shutdownChan:
		return
	}

	err := p.Err()
	if err == nil {
		return
	}

	lm.logger.Error("Poller terminated", zap.Error(err))
	lm.setError(err)
	select {
	case lm.errChan <- err:
	default:
	}
}

// Errors delivers a fatal poller error once; the caller should shut down
func (lm *LifecycleManager) Errors() <-chan error {
	return lm.errChan
}

// Done is closed after Shutdown completed
func (lm *LifecycleManager) Done() <-chan struct{} {
	return lm.shutdownChan
}

// Shutdown gracefully shuts down the system
func (lm *LifecycleManager) Shutdown(ctx context.Context) error {
	var shutdownErr error

	lm.shutdownOnce.Do(func() {
		lm.logger.Info("Shutting down system")

		lm.setState(StateStopping)

		shutdownErr = lm.gracefulShutdown(ctx)

		lm.setState(StateStopped)

		close(lm.shutdownChan)
	})

	return shutdownErr
}

func (lm *LifecycleManager) gracefulShutdown(ctx context.Context) error {
	var wg sync.WaitGroup
	errChan := make(chan error, 2)

	// 1. Poll loop (bricht laufende Requests und den Sleep ab)
	lm.stateMu.RLock()
	p := lm.poller
	lm.stateMu.RUnlock()
	if p != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.Stop()
		}()
	}

	// 2. REST API Server graceful shutdown
	if lm.restServer != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			shutdownCtx := ctx
			if timeout := lm.config.Server.ShutdownTimeout; timeout > 0 {
				var cancel context.CancelFunc
				shutdownCtx, cancel = context.WithTimeout(ctx, timeout)
				defer cancel()
			}

			if err := lm.restServer.Shutdown(shutdownCtx); err != nil {
				errChan <- fmt.Errorf("rest api shutdown failed: %w", err)
			}
		}()
	}

	// Wait for all shutdowns
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	var err error
	select {
	case <-done:
		select {
		case err = <-errChan:
		default:
		}
	case <-ctx.Done():
		lm.logger.Warn("Shutdown timeout, forcing stop")
		err = fmt.Errorf("shutdown timeout exceeded")
	}

	if lm.runCancel != nil {
		lm.runCancel()
	}
	if lm.wsHub != nil {
		lm.wsHub.Stop()
	}
	if lm.mqtt != nil {
		lm.mqtt.Close()
	}

	if err == nil {
		lm.logger.Info("Graceful shutdown completed")
	}
	return err
}

// TriggerPoll runs one cycle right away. It waits for a cycle in flight.
func (lm *LifecycleManager) TriggerPoll(ctx context.Context) (poller.CycleResult, error) {
	lm.stateMu.RLock()
	current, p := lm.currentState, lm.poller
	lm.stateMu.RUnlock()

	if current != StateRunning || p == nil {
		return poller.CycleResult{}, fmt.Errorf("cannot poll: system in state %s", current)
	}

	return p.RunCycle(ctx), nil
}

func (lm *LifecycleManager) setState(to SystemState) {
	lm.stateMu.Lock()
	from := lm.currentState
	if err := ValidateTransition(from, to); err != nil {
		lm.stateMu.Unlock()
		lm.logger.Warn("Ignoring state change", zap.Error(err))
		return
	}
	lm.currentState = to
	lm.stateMu.Unlock()

	lm.broadcastStatus()
}

func (lm *LifecycleManager) setError(err error) {
	lm.logger.Error("System error", zap.Error(err))
	lm.setState(StateError)
}

func (lm *LifecycleManager) broadcastStatus() {
	if lm.wsHub == nil {
		return
	}
	lm.wsHub.Broadcast(websocket.NewMessage(websocket.MessageTypeSystemStatus, lm.GetCurrentStatus()))
}

// CurrentState returns the lifecycle state
func (lm *LifecycleManager) CurrentState() SystemState {
	lm.stateMu.RLock()
	defer lm.stateMu.RUnlock()
	return lm.currentState
}

func (lm *LifecycleManager) Config() *config.Config {
	return lm.config
}

func (lm *LifecycleManager) States() *state.MemoryStore {
	return lm.memory
}

func (lm *LifecycleManager) Catalog() *sensors.Catalog {
	return lm.catalog
}

func (lm *LifecycleManager) SensorIndex() *sensors.Index {
	return lm.index
}

func (lm *LifecycleManager) Assignment() poller.PortAssignment {
	lm.stateMu.RLock()
	p := lm.poller
	lm.stateMu.RUnlock()
	if p == nil {
		return nil
	}
	return p.Assignment()
}

func (lm *LifecycleManager) LastCycle() (poller.CycleResult, bool) {
	lm.stateMu.RLock()
	p := lm.poller
	lm.stateMu.RUnlock()
	if p == nil {
		return poller.CycleResult{}, false
	}
	return p.LastCycle()
}

// GetCurrentStatus returns current system status (Interface implementation)
func (lm *LifecycleManager) GetCurrentStatus() interfaces.SystemStatus {
	lm.stateMu.RLock()
	current, p := lm.currentState, lm.poller
	lm.stateMu.RUnlock()

	status := interfaces.SystemStatus{
		State:       current.String(),
		MasterHost:  lm.client.Endpoint(),
		PortCount:   lm.config.Master.PortCount,
		PollerPhase: poller.PhaseStopped.String(),
	}

	if p != nil {
		status.PollerRunning = p.IsRunning()
		status.PollerPhase = p.Phase().String()
		if last, ok := p.LastCycle(); ok {
			status.LastCycleID = last.ID.String()
			startedAt := last.StartedAt
			status.LastCycleAt = &startedAt
			if last.Err != nil {
				status.LastCycleError = last.Err.Error()
			}
		}
	}

	if st, err := lm.memory.GetState(context.Background(), poller.KeyHostAlive); err == nil && st != nil {
		if alive, ok := st.Value.(bool); ok {
			status.HostAlive = &alive
		}
	}

	if lm.wsHub != nil {
		status.ConnectedClients = lm.wsHub.GetClientCount()
	}

	return status
}

func cycleData(result poller.CycleResult) websocket.CycleData {
	data := websocket.CycleData{
		CycleID:    result.ID.String(),
		DurationMs: result.Duration.Milliseconds(),
		HostAlive:  result.HostAlive,
		Fatal:      result.Fatal,
	}

	if len(result.Assignment) > 0 {
		data.Ports = make(map[int]string, len(result.Assignment))
		for _, a := range result.Assignment {
			data.Ports[a.Port] = a.ProductName
		}
	}
	if len(result.PortErrors) > 0 {
		data.PortErrors = make(map[int]string, len(result.PortErrors))
		for port, err := range result.PortErrors {
			data.PortErrors[port] = err.Error()
		}
	}
	if result.Err != nil {
		data.Error = result.Err.Error()
	}

	return data
}

var _ interfaces.LifecycleManager = (*LifecycleManager)(nil)
