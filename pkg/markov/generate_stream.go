package markov

import (
	"context"
	"fmt"
	"log/slog"
)

// GenerateStream produces up to `length` symbols on a read-only channel,
// starting from the uniform distribution. This allows processing a sequence
// symbol-by-symbol, which is useful for very long sequences or real-time
// consumers. The channel is closed once generation completes, hits a
// dead end under a truncating policy, or the context is cancelled.
//
// Entry validation matches Generate; errors that occur mid-stream are logged
// through the model's logger and close the channel early.
func (m *Model[S]) GenerateStream(ctx context.Context, length int, opts ...GenerateOption) (<-chan S, error) {
	if err := m.checkGenerate(length); err != nil {
		return nil, err
	}
	return m.generateStream(ctx, uniformVector(m.mat.n), length, newGenerateOptions(opts)), nil
}

// GenerateStreamFrom is the streaming counterpart of GenerateFrom: the first
// symbol sent on the channel is always `start`.
func (m *Model[S]) GenerateStreamFrom(ctx context.Context, start S, length int, opts ...GenerateOption) (<-chan S, error) {
	startIdx, err := m.alphabet.IndexOf(start)
	if err != nil {
		return nil, fmt.Errorf("generation start: %w", err)
	}
	if err := m.checkGenerate(length); err != nil {
		return nil, err
	}
	return m.generateStream(ctx, oneHotVector(m.mat.n, startIdx), length, newGenerateOptions(opts)), nil
}

// generateStream contains the core loop for streaming generation.
func (m *Model[S]) generateStream(ctx context.Context, current []float64, length int, options *generateOptions) <-chan S {
	out := make(chan S)

	go func() {
		defer close(out)

		for step := 0; step < length; step++ {
			select {
			case <-ctx.Done():
				m.logger.DebugContext(ctx, "Generation stream cancelled by context")
				return
			default:
			}

			idx, err := samplePolicy(current, options)
			if err != nil {
				if options.policy != DeadEndStop {
					m.logger.ErrorContext(ctx, "Generation stream hit dead end",
						slog.Int("generated_length", step),
						slog.Any("error", err),
					)
				}
				return
			}

			select {
			case <-ctx.Done():
				m.logger.DebugContext(ctx, "Generation stream cancelled by context")
				return
			case out <- m.alphabet.symbols[idx]:
			}

			if step+1 < length {
				current = m.mat.step(current)
			}
		}
	}()

	return out
}
