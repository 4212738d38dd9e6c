// Package ai is the boundary to the reply-generation collaborator. Its
// contract to the engine is "produces a text message", nothing more.
package ai

import (
	"context"
	"errors"
)

type Generator interface {
	// Generate produces reply text from operator instructions and an
	// optional product context.
	Generate(ctx context.Context, instructions, productContext string) (string, error)
}

// ErrDisabled is returned when no generation backend is configured.
var ErrDisabled = errors.New("ai generation disabled")

// Disabled is the generator used when no API key is configured. Every call
// fails, which makes callers fall back to sending the step text as written.
type Disabled struct{}

func (Disabled) Generate(ctx context.Context, instructions, productContext string) (string, error) {
	return "", ErrDisabled
}
