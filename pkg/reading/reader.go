package reading

import (
	"context"
	"fmt"

	"github.com/mihaimyh/arcana/pkg/entitlement"
	"github.com/mihaimyh/arcana/pkg/generation"
)

// Reader turns a question and three drawn cards into a parsed reading.
type Reader struct {
	generator generation.Generator
	logger    entitlement.Logger
}

// NewReader creates a Reader. A nil logger discards output.
func NewReader(generator generation.Generator, logger entitlement.Logger) *Reader {
	if logger == nil {
		logger = &entitlement.NoopLogger{}
	}
	return &Reader{generator: generator, logger: logger}
}

// Perform checks the gate, generates and parses the reading, then records it.
// The generator is not called when the gate refuses. A failure to record is
// logged and does not fail the reading that was already produced.
func (r *Reader) Perform(ctx context.Context, gate Gate, question string, cards [3]DrawnCard) (*Reading, error) {
	if err := gate.Check(ctx); err != nil {
		return nil, err
	}

	text, err := r.generator.Generate(ctx, generation.Request{
		System: SystemPrompt,
		Prompt: BuildPrompt(question, cards),
	})
	if err != nil {
		r.logger.Error("Reading generation failed", entitlement.Field{Key: "error", Value: err})
		return nil, fmt.Errorf("%w: %w", ErrGenerationFailed, err)
	}

	result := ParseReading(text)
	if !result.Structured {
		r.logger.Warn("Reading did not follow the paragraph format",
			entitlement.Field{Key: "length", Value: len(text)})
	}

	if err := gate.Record(ctx); err != nil {
		r.logger.Error("Failed to record reading", entitlement.Field{Key: "error", Value: err})
	}
	return result, nil
}
