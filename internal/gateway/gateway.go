// Package gateway is the client side of the remote conversation backend.
//
// The backend owns the multi-agent debate engine; this package only exposes its
// control and read operations. Every operation is idempotent from the caller's
// perspective except StartConversation, which creates a new session on each call
// and is never retried here.
package gateway

import (
	"context"
	"errors"
	"fmt"

	"github.com/ashureev/debate-panel/internal/domain"
)

// Gateway is the remote conversation service contract consumed by the panel.
type Gateway interface {
	ListBusinesses(ctx context.Context) ([]domain.Business, error)
	StartConversation(ctx context.Context, businessID string) (string, error)
	PauseConversation(ctx context.Context, conversationID string) error
	ResumeConversation(ctx context.Context, conversationID string) error
	StopConversation(ctx context.Context, conversationID string) error
	// GetStatus returns a Status whose Phase is empty when the backend omitted it.
	GetStatus(ctx context.Context, conversationID string) (domain.Status, error)
	GetMessages(ctx context.Context, conversationID string) ([]domain.Message, error)
}

// HealthChecker probes backend reachability.
type HealthChecker interface {
	Health(ctx context.Context) error
}

// Op names a gateway operation.
type Op string

const (
	OpListBusinesses Op = "list_businesses"
	OpStart          Op = "start"
	OpPause          Op = "pause"
	OpResume         Op = "resume"
	OpStop           Op = "stop"
	OpStatus         Op = "status"
	OpMessages       Op = "messages"
	OpHealth         Op = "health"
)

var fallbackMessages = map[Op]string{
	OpListBusinesses: "Failed to load businesses",
	OpStart:          "Failed to start conversation",
	OpPause:          "Failed to pause conversation",
	OpResume:         "Failed to resume conversation",
	OpStop:           "Failed to stop conversation",
	OpStatus:         "Failed to fetch conversation status",
	OpMessages:       "Failed to fetch conversation messages",
	OpHealth:         "Conversation backend is unhealthy",
}

// FallbackMessage is the generic description used when the backend gives none.
func FallbackMessage(op Op) string {
	if msg, ok := fallbackMessages[op]; ok {
		return msg
	}
	return "Conversation backend request failed"
}

// RemoteError is a non-success response from the backend.
type RemoteError struct {
	Op         Op
	StatusCode int
	// Message is the human-readable text supplied by the backend, if any.
	Message string
	// Err is the underlying failure when the command never got a response.
	Err error
}

// Error returns the backend message verbatim, or the operation's fallback.
func (e *RemoteError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return FallbackMessage(e.Op)
}

func (e *RemoteError) Unwrap() error {
	return e.Err
}

// AsRemote converts any command failure into a *RemoteError so it can be
// surfaced to the operator. Transport failures keep their cause and use the
// operation's fallback message.
func AsRemote(op Op, err error) *RemoteError {
	var remote *RemoteError
	if errors.As(err, &remote) {
		return remote
	}
	return &RemoteError{Op: op, Err: err}
}

// TransportError is a network or decoding failure.
type TransportError struct {
	Op  Op
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}
