package conversation

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ashureev/debate-panel/internal/domain"
	"github.com/ashureev/debate-panel/internal/metrics"
)

// DefaultSyncInterval is the polling period while a conversation runs.
const DefaultSyncInterval = 2 * time.Second

// Reader is the read side of the gateway used by the sync loop.
type Reader interface {
	GetStatus(ctx context.Context, conversationID string) (domain.Status, error)
	GetMessages(ctx context.Context, conversationID string) ([]domain.Message, error)
}

// SyncLoop polls the backend while the session is running and mirrors the
// results into State. At most one polling goroutine exists at a time.
type SyncLoop struct {
	reader   Reader
	state    *State
	interval time.Duration
	logger   *slog.Logger
	metrics  *metrics.Metrics

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewSyncLoop creates an idle loop.
func NewSyncLoop(reader Reader, state *State, interval time.Duration, logger *slog.Logger, m *metrics.Metrics) *SyncLoop {
	if logger == nil {
		logger = slog.Default()
	}
	if interval <= 0 {
		interval = DefaultSyncInterval
	}
	return &SyncLoop{
		reader:   reader,
		state:    state,
		interval: interval,
		logger:   logger.With("component", "sync"),
		metrics:  m,
	}
}

// Arm starts polling for the session at epoch. Any previous polling goroutine
// is cancelled first. The first tick fires one interval after arming. Arm
// returns false when the session is no longer the running one at epoch.
func (l *SyncLoop) Arm(epoch uint64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.stopLocked()

	token, ok := l.state.armSync(epoch)
	if !ok {
		return false
	}

	ctx, cancel := context.WithCancel(context.Background())
	l.cancel = cancel
	l.wg.Add(1)
	go l.run(ctx, token)

	l.logger.Debug("Sync armed", "interval", l.interval)
	return true
}

// Disarm stops polling. Results of a tick already in flight are discarded.
func (l *SyncLoop) Disarm() {
	l.state.disarmSync()

	l.mu.Lock()
	l.stopLocked()
	l.mu.Unlock()
}

// Close disarms and waits for the polling goroutine to exit.
func (l *SyncLoop) Close() {
	l.Disarm()
	l.wg.Wait()
}

func (l *SyncLoop) stopLocked() {
	if l.cancel != nil {
		l.cancel()
		l.cancel = nil
	}
}

func (l *SyncLoop) run(ctx context.Context, token uint64) {
	defer l.wg.Done()

	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !l.tick(ctx, token) {
				l.logger.Debug("Sync stopped")
				return
			}
		}
	}
}

// tick performs one status read and one messages read concurrently and applies
// whichever succeeded. It returns false once polling should end.
func (l *SyncLoop) tick(ctx context.Context, token uint64) bool {
	id, live := l.state.syncTarget(token)
	if !live {
		l.metrics.ObserveTick(metrics.TickDiscarded)
		return false
	}
	if id == "" {
		l.metrics.ObserveTick(metrics.TickSkipped)
		return true
	}

	var (
		result tickResult
		g      errgroup.Group
	)
	g.Go(func() error {
		st, err := l.reader.GetStatus(ctx, id)
		if err != nil {
			return err
		}
		result.status = &st
		return nil
	})
	g.Go(func() error {
		msgs, err := l.reader.GetMessages(ctx, id)
		if err != nil {
			return err
		}
		result.messages = msgs
		result.gotMsgs = true
		return nil
	})
	err := g.Wait()

	if err != nil && ctx.Err() == nil {
		l.logger.Warn("Sync read failed", "conversation_id", id, "error", err)
	}

	applied, keepSyncing := l.state.applyTick(token, result)
	switch {
	case !applied:
		l.metrics.ObserveTick(metrics.TickDiscarded)
	case err != nil:
		l.metrics.ObserveTick(metrics.TickError)
	default:
		l.metrics.ObserveTick(metrics.TickOK)
	}
	return keepSyncing
}
