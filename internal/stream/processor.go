package stream

import (
	"context"
	"log"

	"github.com/antoniostano/switchboard/internal/call"
)

// DiscardProcessor drains the audio channel without interpreting it. It stands
// in until a speech pipeline is attached to the bridge.
type DiscardProcessor struct{}

func (DiscardProcessor) Run(ctx context.Context, c *call.Call, audio <-chan []byte, _ Format) error {
	var frames, bytes int
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case blob, ok := <-audio:
			if !ok {
				log.Printf("call %s: stream ended after %d frames (%d bytes)", c.ID, frames, bytes)
				return nil
			}
			frames++
			bytes += len(blob)
		}
	}
}
