// Package stream couples a fragment stream to an explicit completion
// notification. The relay re-emits every fragment in arrival order while
// accumulating the full text; subscribers learn about the terminal outcome
// on a separate channel instead of side effects being buried in the
// streaming path.
package stream

import (
	"context"
	"fmt"
	"strings"

	"chat-gateway/internal/llm"
)

// Completion is the terminal outcome of a relayed generation stream.
// Exactly one Completion is delivered per relay. Text holds the accumulated
// output only when Err is nil.
type Completion struct {
	Text string
	Err  error
}

// Relay forwards chunks from src to the returned fragment channel in
// arrival order, with no buffering beyond accumulation. When src closes
// without an error chunk, the completion carries the accumulated text; the
// completion is delivered after the last fragment and before the fragment
// channel closes. An error chunk or a cancelled ctx produces an error
// completion, and the remaining source output is discarded.
func Relay(ctx context.Context, src <-chan llm.StreamChunk) (<-chan llm.StreamChunk, <-chan Completion) {
	out := make(chan llm.StreamChunk)
	done := make(chan Completion, 1)

	go func() {
		defer close(out)
		var acc strings.Builder
		for {
			select {
			case chunk, ok := <-src:
				if !ok {
					// A cancelled caller must never look like natural
					// completion, even when the source closes first.
					if err := ctx.Err(); err != nil {
						done <- Completion{Err: err}
						return
					}
					done <- Completion{Text: acc.String()}
					return
				}
				if chunk.Error != "" {
					done <- Completion{Err: fmt.Errorf("generation stream: %s", chunk.Error)}
					return
				}
				select {
				case out <- chunk:
				case <-ctx.Done():
					done <- Completion{Err: ctx.Err()}
					return
				}
				acc.WriteString(chunk.Text)
			case <-ctx.Done():
				done <- Completion{Err: ctx.Err()}
				return
			}
		}
	}()

	return out, done
}
