// Package generation wraps the external text-generation service.
package generation

import (
	"context"
	"errors"
)

var (
	// ErrUpstream is returned when the service answers with a non-2xx status
	ErrUpstream = errors.New("text generation failed")

	// ErrEmptyCompletion is returned when the service returns no text
	ErrEmptyCompletion = errors.New("empty completion")
)

// Request is one prompt submission.
type Request struct {
	System string
	Prompt string
}

// Generator turns a prompt into prose.
type Generator interface {
	Generate(ctx context.Context, req Request) (string, error)
}

// GeneratorFunc adapts a function to Generator.
type GeneratorFunc func(ctx context.Context, req Request) (string, error)

func (f GeneratorFunc) Generate(ctx context.Context, req Request) (string, error) {
	return f(ctx, req)
}
