// Package llm defines the text-stream source contract for language-model
// backends.
//
// A provider wraps a remote or local model API (OpenAI, Gemini via any-llm,
// or a test double) and exposes one operation: stream the model's reply to a
// user message given the prior conversation. The gateway's streaming engine
// consumes the fragments incrementally; nothing downstream ever waits for the
// full reply.
//
// Implementations must be safe for concurrent use. Channels returned by
// StreamCompletion must be closed by the implementation when the stream ends
// or when the supplied context is cancelled.
package llm

import (
	"context"
	"errors"
	"fmt"

	"github.com/voxlane/voxlane/pkg/types"
)

// ErrMessageTooLong is returned when the user message exceeds the provider's
// input ceiling. The request is rejected before any network call.
var ErrMessageTooLong = errors.New("llm: message exceeds provider input limit")

// Request carries everything the model needs to produce a streamed reply.
type Request struct {
	// System is an optional persona / system instruction injected before the
	// conversation.
	System string

	// History is the prior conversation in order, excluding Message itself.
	History []types.Turn

	// Message is the new user input that drives this reply.
	Message string

	// Temperature controls output randomness in [0.0, 2.0]. Zero uses the
	// provider default.
	Temperature float64
}

// Chunk is a single text fragment emitted by a streaming completion.
//
// A chunk with a non-nil Err reports a mid-stream failure; it is terminal and
// the channel is closed after it. Err and Text are never both set.
type Chunk struct {
	Text string
	Err  error
}

// Provider is the abstraction over any text-stream backend.
type Provider interface {
	// StreamCompletion sends req to the model and returns a read-only channel
	// that emits fragments as they arrive. The channel is closed by the
	// implementation when generation finishes, fails, or ctx is cancelled.
	//
	// Callers must drain the channel to avoid goroutine leaks. The initial
	// error return is non-nil only for failures that prevent the stream from
	// starting (bad credentials, over-length message); failures after the
	// stream opens arrive as a final [Chunk] carrying Err.
	//
	// The returned channel is never nil when error is nil.
	StreamCompletion(ctx context.Context, req Request) (<-chan Chunk, error)
}

// CheckLength rejects a message longer than max characters. Providers call it
// before building a request; max ≤ 0 disables the check.
func CheckLength(message string, max int) error {
	if max > 0 && len(message) > max {
		return fmt.Errorf("llm: message length %d exceeds limit %d: %w", len(message), max, ErrMessageTooLong)
	}
	return nil
}
