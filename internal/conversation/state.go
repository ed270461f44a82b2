package conversation

import (
	"sync"
	"time"

	"github.com/ashureev/debate-panel/internal/domain"
	"github.com/ashureev/debate-panel/internal/metrics"
)

// State is the single owner of the local session mirror.
//
// Every mutation happens under mu, bumps the session version and publishes a
// snapshot. Two counters fence stale writers:
//   - epoch changes whenever the session identity changes (start, reset), so
//     a command confirmation that raced a reset is dropped.
//   - syncToken changes whenever synchronization is armed or disarmed, so a
//     tick that was in flight while sync stopped is dropped.
type State struct {
	mu        sync.RWMutex
	session   domain.Session
	epoch     uint64
	syncToken uint64
	syncArmed bool

	broadcaster *Broadcaster
	metrics     *metrics.Metrics
}

// NewState returns an empty state publishing to b. Both arguments may be nil.
func NewState(b *Broadcaster, m *metrics.Metrics) *State {
	s := &State{
		session:     domain.EmptySession(),
		broadcaster: b,
		metrics:     m,
	}
	m.SetPhase(string(domain.PhaseStopped))
	return s
}

// Snapshot returns a deep copy of the current session.
func (s *State) Snapshot() domain.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.session.Clone()
}

// sessionRef returns the current session id and epoch.
func (s *State) sessionRef() (string, uint64) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.session.ID, s.epoch
}

// adoptSession installs a freshly started session if the epoch is still
// current. It returns the new epoch.
func (s *State) adoptSession(epoch uint64, id string, business *domain.Business, now time.Time) (uint64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if epoch != s.epoch {
		return s.epoch, false
	}
	s.epoch++
	s.syncToken++
	s.syncArmed = false

	startedAt, lastActivity := now, now
	var b *domain.Business
	if business != nil {
		cp := *business
		b = &cp
	}
	s.session = domain.Session{
		ID:           id,
		Phase:        domain.PhaseRunning,
		Round:        1,
		LastActivity: &lastActivity,
		StartedAt:    &startedAt,
		Messages:     []domain.Message{},
		Business:     b,
		Version:      s.session.Version,
	}
	s.commitLocked()
	return s.epoch, true
}

// confirmPhase records a phase acknowledged by the backend and clears the
// error slot. Leaving running disarms synchronization in the same step.
func (s *State) confirmPhase(epoch uint64, phase domain.Phase) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if epoch != s.epoch {
		return false
	}
	s.session.Phase = phase
	s.session.Error = ""
	if phase != domain.PhaseRunning {
		s.disarmLocked()
	}
	s.commitLocked()
	return true
}

// setError surfaces msg if the epoch is still current.
func (s *State) setError(epoch uint64, msg string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if epoch != s.epoch {
		return false
	}
	s.session.Error = msg
	s.commitLocked()
	return true
}

func (s *State) currentEpoch() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.epoch
}

// reset returns to the empty state and invalidates every in-flight writer.
func (s *State) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.epoch++
	s.disarmLocked()
	version := s.session.Version
	s.session = domain.EmptySession()
	s.session.Version = version
	s.commitLocked()
}

// armSync enables synchronization for the session at epoch. It fails when the
// session changed or is not running.
func (s *State) armSync(epoch uint64) (uint64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if epoch != s.epoch || !s.session.HasSession() || s.session.Phase != domain.PhaseRunning {
		return 0, false
	}
	s.syncToken++
	s.syncArmed = true
	return s.syncToken, true
}

func (s *State) disarmSync() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.disarmLocked()
}

func (s *State) disarmLocked() {
	s.syncToken++
	s.syncArmed = false
}

// syncTarget returns the session id to poll and whether token is still live.
func (s *State) syncTarget(token uint64) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.syncArmed || token != s.syncToken {
		return "", false
	}
	return s.session.ID, true
}

// tickResult carries what one sync tick managed to read. A nil field was not
// read successfully and leaves its part of the session untouched.
type tickResult struct {
	status   *domain.Status
	messages []domain.Message
	gotMsgs  bool
}

// applyTick writes a tick's reads if token is still live. It reports whether
// anything was applied and whether synchronization should continue.
func (s *State) applyTick(token uint64, r tickResult) (applied, keepSyncing bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.syncArmed || token != s.syncToken {
		return false, false
	}
	if r.status == nil && !r.gotMsgs {
		return true, true
	}

	// A status without a phase carries nothing authoritative.
	if st := r.status; st != nil && st.Phase != "" {
		s.session.Phase = st.Phase
		s.session.Round = st.Round
		s.session.MessageCount = st.MessageCount
		s.session.LastActivity = nil
		if st.LastActivity != nil {
			t := *st.LastActivity
			s.session.LastActivity = &t
		}
	}
	if r.gotMsgs {
		msgs := make([]domain.Message, len(r.messages))
		copy(msgs, r.messages)
		s.session.Messages = msgs
	}

	keepSyncing = s.session.Phase == domain.PhaseRunning
	if !keepSyncing {
		s.disarmLocked()
	}
	s.commitLocked()
	return true, keepSyncing
}

func (s *State) commitLocked() {
	s.session.Version++
	s.metrics.SetPhase(string(s.session.Phase))
	if s.broadcaster != nil {
		s.broadcaster.Publish(s.session.Clone())
	}
}
