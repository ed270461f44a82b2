// Package conversation drives the lifecycle of one remote debate session and
// keeps a local mirror of it in sync with the backend.
package conversation

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/ashureev/debate-panel/internal/domain"
	"github.com/ashureev/debate-panel/internal/gateway"
	"github.com/ashureev/debate-panel/internal/metrics"
)

// Options configures a Controller.
type Options struct {
	SyncInterval time.Duration
	Logger       *slog.Logger
	Metrics      *metrics.Metrics
	// Now overrides the clock used for started_at (tests).
	Now func() time.Time
}

// Controller translates operator intents into gateway calls and owns the
// session state. Remote commands are serialized; Reset is local and never
// waits on the backend.
type Controller struct {
	gw          gateway.Gateway
	state       *State
	loop        *SyncLoop
	broadcaster *Broadcaster
	logger      *slog.Logger
	metrics     *metrics.Metrics
	now         func() time.Time

	cmdMu sync.Mutex

	catalogMu  sync.RWMutex
	businesses []domain.Business
	selected   *domain.Business
}

// NewController creates a controller with an empty session.
func NewController(gw gateway.Gateway, opts Options) *Controller {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	b := NewBroadcaster(logger)
	state := NewState(b, opts.Metrics)
	return &Controller{
		gw:          gw,
		state:       state,
		loop:        NewSyncLoop(gw, state, opts.SyncInterval, logger, opts.Metrics),
		broadcaster: b,
		logger:      logger.With("component", "controller"),
		metrics:     opts.Metrics,
		now:         now,
		businesses:  []domain.Business{},
	}
}

// Snapshot returns a copy of the current session.
func (c *Controller) Snapshot() domain.Session {
	return c.state.Snapshot()
}

// Subscribe streams session snapshots until ctx is cancelled.
func (c *Controller) Subscribe(ctx context.Context) (<-chan domain.Session, string) {
	return c.broadcaster.Subscribe(ctx)
}

// Agents returns the roster with activity flags for the current phase.
func (c *Controller) Agents() []domain.AgentStatus {
	snap := c.state.Snapshot()
	return domain.AgentStatuses(snap.Phase)
}

// LoadBusinesses refreshes the business catalog from the backend.
func (c *Controller) LoadBusinesses(ctx context.Context) ([]domain.Business, error) {
	list, err := c.gw.ListBusinesses(ctx)
	if err != nil {
		remote := gateway.AsRemote(gateway.OpListBusinesses, err)
		c.state.setError(c.state.currentEpoch(), remote.Error())
		c.logger.Warn("Failed to load businesses", "error", err)
		return nil, remote
	}

	c.catalogMu.Lock()
	c.businesses = slices.Clone(list)
	c.catalogMu.Unlock()

	c.logger.Info("Business catalog loaded", "count", len(list))
	return slices.Clone(list), nil
}

// Businesses returns the last loaded catalog.
func (c *Controller) Businesses() []domain.Business {
	c.catalogMu.RLock()
	defer c.catalogMu.RUnlock()
	return slices.Clone(c.businesses)
}

// Select chooses the business for the next Start. An empty id clears the
// selection. The selection is locked while a conversation is running.
func (c *Controller) Select(id string) (*domain.Business, error) {
	snap := c.state.Snapshot()
	if snap.HasSession() && snap.Phase == domain.PhaseRunning {
		return nil, ErrSelectionLocked
	}

	c.catalogMu.Lock()
	defer c.catalogMu.Unlock()

	if id == "" {
		c.selected = nil
		return nil, nil
	}
	b := domain.FindBusiness(c.businesses, id)
	if b == nil {
		return nil, ErrUnknownBusiness
	}
	c.selected = b
	cp := *b
	return &cp, nil
}

// Selected returns the current selection or nil.
func (c *Controller) Selected() *domain.Business {
	c.catalogMu.RLock()
	defer c.catalogMu.RUnlock()
	if c.selected == nil {
		return nil
	}
	cp := *c.selected
	return &cp
}

// StartSelected starts a conversation for the selected business.
func (c *Controller) StartSelected(ctx context.Context) error {
	return c.Start(ctx, c.Selected())
}

// Start creates a new remote conversation for business and begins syncing it.
func (c *Controller) Start(ctx context.Context, business *domain.Business) error {
	if business == nil || business.ID == "" {
		return c.reject("start", ErrNoBusinessSelected)
	}

	c.cmdMu.Lock()
	defer c.cmdMu.Unlock()

	snap := c.state.Snapshot()
	if snap.IsActive() {
		return c.reject("start", ErrAlreadyActive)
	}

	epoch := c.state.currentEpoch()
	id, err := c.gw.StartConversation(ctx, business.ID)
	if err != nil {
		return c.fail("start", gateway.OpStart, epoch, err)
	}

	epoch, ok := c.state.adoptSession(epoch, id, business, c.now())
	if !ok {
		c.logger.Warn("Discarding conversation started across a reset", "conversation_id", id)
		c.metrics.ObserveCommand("start", metrics.CommandNoop)
		return nil
	}
	c.loop.Arm(epoch)

	c.metrics.ObserveCommand("start", metrics.CommandOK)
	c.logger.Info("Conversation started",
		"conversation_id", id,
		"business_id", business.ID,
		"business", business.Name,
	)
	return nil
}

// Pause asks the backend to pause the session. It is a no-op without a session.
func (c *Controller) Pause(ctx context.Context) error {
	return c.command(ctx, "pause", gateway.OpPause, c.gw.PauseConversation, domain.PhasePaused)
}

// Resume asks the backend to resume the session. It is a no-op without a session.
func (c *Controller) Resume(ctx context.Context) error {
	return c.command(ctx, "resume", gateway.OpResume, c.gw.ResumeConversation, domain.PhaseRunning)
}

// Stop ends the session on the backend. The session id and log are kept until
// Reset. It is a no-op without a session.
func (c *Controller) Stop(ctx context.Context) error {
	return c.command(ctx, "stop", gateway.OpStop, c.gw.StopConversation, domain.PhaseStopped)
}

// Reset clears the local session without contacting the backend.
func (c *Controller) Reset() {
	c.loop.Disarm()
	c.state.reset()
	c.metrics.ObserveCommand("reset", metrics.CommandOK)
	c.logger.Info("Session reset")
}

// Close stops synchronization and closes all subscriptions.
func (c *Controller) Close() {
	c.loop.Close()
	c.broadcaster.Close()
}

func (c *Controller) command(
	ctx context.Context,
	name string,
	op gateway.Op,
	call func(context.Context, string) error,
	phase domain.Phase,
) error {
	c.cmdMu.Lock()
	defer c.cmdMu.Unlock()

	id, epoch := c.state.sessionRef()
	if id == "" {
		c.metrics.ObserveCommand(name, metrics.CommandNoop)
		return nil
	}

	if err := call(ctx, id); err != nil {
		return c.fail(name, op, epoch, err)
	}

	if !c.state.confirmPhase(epoch, phase) {
		c.logger.Debug("Dropping stale confirmation", "command", name, "conversation_id", id)
		c.metrics.ObserveCommand(name, metrics.CommandNoop)
		return nil
	}
	if phase == domain.PhaseRunning {
		c.loop.Arm(epoch)
	} else {
		c.loop.Disarm()
	}

	c.metrics.ObserveCommand(name, metrics.CommandOK)
	c.logger.Info("Conversation "+name+" confirmed", "conversation_id", id, "phase", phase)
	return nil
}

func (c *Controller) reject(name string, err *ValidationError) error {
	c.state.setError(c.state.currentEpoch(), err.Msg)
	c.metrics.ObserveCommand(name, metrics.CommandValidation)
	c.logger.Debug("Command rejected", "command", name, "reason", err.Msg)
	return err
}

func (c *Controller) fail(name string, op gateway.Op, epoch uint64, err error) error {
	remote := gateway.AsRemote(op, err)
	c.state.setError(epoch, remote.Error())
	c.metrics.ObserveCommand(name, metrics.CommandRemote)

	var transport *gateway.TransportError
	if errors.As(err, &transport) {
		c.logger.Warn("Conversation command failed", "command", name, "error", err)
	} else {
		c.logger.Warn("Conversation command rejected by backend",
			"command", name,
			"status", remote.StatusCode,
			"error", remote.Error(),
		)
	}
	return remote
}
