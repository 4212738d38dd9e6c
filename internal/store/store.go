// Package store holds the persistence layer: campaigns, remarketing flows,
// clients and bot configuration, with the cross-entity updates applied as
// single transactions.
package store

import (
	"errors"

	"zapbot-backend/internal/logger"
)

var log = logger.Named("store")

// Operator-visible failure taxonomy. Execution-time degradations
// (delivery, media, AI) live with the scheduler and transport.
var (
	ErrNotFound     = errors.New("not found")
	ErrInvalidState = errors.New("invalid state")
)

// Invalidator is notified after every successful mutation so derived
// read models (statistics) can drop their caches.
type Invalidator interface {
	Invalidate()
}

// ExecutionCanceller tears down any running flow execution for a client.
// Client deletion must go through it before touching the record.
type ExecutionCanceller interface {
	Cancel(clientID string)
}

// FlowExecutionCanceller tears down every running execution of one flow.
// Flow deactivation and deletion must go through it so in-flight
// executions stop delivering withdrawn steps.
type FlowExecutionCanceller interface {
	CancelFlow(flowID string)
}

func invalidate(inv Invalidator) {
	if inv != nil {
		inv.Invalidate()
	}
}
