// Package transport is the boundary to the message delivery channel. The
// engine only knows these interfaces; the WhatsApp Cloud client is one
// implementation.
package transport

import (
	"context"
	"errors"
	"sync"
	"time"

	"zapbot-backend/internal/models"
)

// ErrClientUnreachable distinguishes "this recipient cannot be delivered
// to" from an ordinary delivery failure, so the scheduler can abort
// instead of skipping.
var ErrClientUnreachable = errors.New("client unreachable")

// ErrMediaNotFound is returned when a media reference does not resolve.
var ErrMediaNotFound = errors.New("media not found")

// OutboundStep is one deliverable unit. Media holds resolved binary
// content for media kinds; Options the menu entries for menu steps.
type OutboundStep struct {
	Kind     string
	Content  string
	MediaURL string
	FileName string
	Media    []byte
	Options  []models.ButtonOption
}

// Receipt acknowledges a delivery.
type Receipt struct {
	MessageID   string
	DeliveredAt time.Time
}

type Sender interface {
	SendToClient(ctx context.Context, client models.Client, step OutboundStep) (Receipt, error)
}

type MediaResolver interface {
	Resolve(ctx context.Context, mediaURL string) ([]byte, error)
}

// StatusTracker reports transport-link up/down transitions to subscribers.
type StatusTracker struct {
	mu        sync.Mutex
	connected bool
	subs      []func(connected bool)
}

func NewStatusTracker() *StatusTracker {
	return &StatusTracker{}
}

func (t *StatusTracker) Connected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.connected
}

// Subscribe registers a callback invoked on every transition. The current
// state is pushed immediately so late subscribers converge.
func (t *StatusTracker) Subscribe(fn func(connected bool)) {
	t.mu.Lock()
	t.subs = append(t.subs, fn)
	connected := t.connected
	t.mu.Unlock()
	fn(connected)
}

// SetConnected records a transition and notifies subscribers. Repeated
// same-state calls are ignored.
func (t *StatusTracker) SetConnected(connected bool) {
	t.mu.Lock()
	if t.connected == connected {
		t.mu.Unlock()
		return
	}
	t.connected = connected
	subs := make([]func(bool), len(t.subs))
	copy(subs, t.subs)
	t.mu.Unlock()

	for _, fn := range subs {
		fn(connected)
	}
}
