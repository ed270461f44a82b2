package domain

import (
	"fmt"
	"slices"
	"time"
)

// Phase is the lifecycle state of a remote conversation.
type Phase string

const (
	PhaseStopped   Phase = "stopped"
	PhaseRunning   Phase = "running"
	PhasePaused    Phase = "paused"
	PhaseCompleted Phase = "completed"
)

// ParsePhase validates a phase reported by the conversation backend.
func ParsePhase(s string) (Phase, error) {
	switch p := Phase(s); p {
	case PhaseStopped, PhaseRunning, PhasePaused, PhaseCompleted:
		return p, nil
	default:
		return "", fmt.Errorf("unknown conversation phase %q", s)
	}
}

// Message is one turn authored by a roster agent.
type Message struct {
	ID        string    `json:"id"`
	AgentName string    `json:"agent_name"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Status is the scalar part of a session as reported by the backend.
type Status struct {
	Phase        Phase      `json:"state"`
	Round        int        `json:"current_round"`
	MessageCount int        `json:"total_messages"`
	LastActivity *time.Time `json:"last_activity,omitempty"`
}

// Session is the local mirror of one remote conversation run.
// ID is empty when no session is active.
type Session struct {
	ID           string     `json:"conversation_id,omitempty"`
	Phase        Phase      `json:"state"`
	Round        int        `json:"current_round"`
	MessageCount int        `json:"total_messages"`
	LastActivity *time.Time `json:"last_activity,omitempty"`
	StartedAt    *time.Time `json:"started_at,omitempty"`
	Messages     []Message  `json:"messages"`
	Business     *Business  `json:"business,omitempty"`
	Error        string     `json:"error,omitempty"`
	Version      uint64     `json:"version"`
}

// EmptySession returns the state of a panel with no session.
func EmptySession() Session {
	return Session{Phase: PhaseStopped, Messages: []Message{}}
}

// HasSession reports whether a session identifier is held.
func (s *Session) HasSession() bool {
	return s.ID != ""
}

// IsActive returns true while the remote engine may still emit turns or be resumed.
func (s *Session) IsActive() bool {
	return s.HasSession() && (s.Phase == PhaseRunning || s.Phase == PhasePaused)
}

// Clone returns a deep copy safe to hand to readers.
func (s Session) Clone() Session {
	out := s
	out.Messages = slices.Clone(s.Messages)
	if out.Messages == nil {
		out.Messages = []Message{}
	}
	if s.LastActivity != nil {
		t := *s.LastActivity
		out.LastActivity = &t
	}
	if s.StartedAt != nil {
		t := *s.StartedAt
		out.StartedAt = &t
	}
	if s.Business != nil {
		b := *s.Business
		out.Business = &b
	}
	return out
}
