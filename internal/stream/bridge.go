// Package stream bridges the provider's duplex media stream into the audio
// processing pipeline.
package stream

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"log"

	"golang.org/x/sync/errgroup"

	"github.com/antoniostano/switchboard/internal/call"
	"github.com/antoniostano/switchboard/internal/observability"
)

// Default PCM format of the provider media stream. Per-connection negotiation
// is a future extension.
const (
	BitsPerSample = 16
	Channels      = 1
	SampleRate    = 16000
)

const frameKindAudio = "AudioData"

// Conn is the subset of a websocket connection the bridge reads from.
// *websocket.Conn satisfies it.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	Close() error
}

// Format describes the PCM layout handed to the audio processor.
type Format struct {
	BitsPerSample int
	Channels      int
	SampleRate    int
}

// AudioProcessor consumes decoded PCM from the stream. The speech/LLM
// pipeline implements it; Run must return when the channel closes or the
// context is cancelled.
type AudioProcessor interface {
	Run(ctx context.Context, c *call.Call, audio <-chan []byte, format Format) error
}

type frame struct {
	Kind      string `json:"kind"`
	AudioData *struct {
		Data   string `json:"data"`
		Silent bool   `json:"silent"`
	} `json:"audioData"`
}

// Bridge couples one duplex stream with the audio processor.
type Bridge struct {
	processor AudioProcessor
	metrics   *observability.Metrics
	capacity  int
}

func NewBridge(processor AudioProcessor, metrics *observability.Metrics, capacity int) *Bridge {
	if capacity <= 0 {
		capacity = 64
	}
	return &Bridge{processor: processor, metrics: metrics, capacity: capacity}
}

// Run reads frames from the stream and feeds decoded audio to the processor
// until either side finishes. Completion of one activity cancels the other
// and closes the stream.
//
// The audio channel is bounded so a stalled processor back-pressures the
// receive loop instead of growing memory without limit.
func (b *Bridge) Run(ctx context.Context, conn Conn, c *call.Call) error {
	b.metrics.ActiveStreams.Inc()
	defer b.metrics.ActiveStreams.Dec()

	audio := make(chan []byte, b.capacity)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer close(audio)
		return b.receive(ctx, conn, c, audio)
	})
	g.Go(func() error {
		return b.processor.Run(ctx, c, audio, Format{
			BitsPerSample: BitsPerSample,
			Channels:      Channels,
			SampleRate:    SampleRate,
		})
	})

	// Unblock the reader when the processor finishes first.
	go func() {
		<-ctx.Done()
		_ = conn.Close()
	}()

	return g.Wait()
}

func (b *Bridge) receive(ctx context.Context, conn Conn, c *call.Call, audio chan<- []byte) error {
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			// Stream closed by the provider or by cancellation.
			return nil
		}

		var f frame
		if err := json.Unmarshal(raw, &f); err != nil {
			log.Printf("call %s: dropping malformed stream frame: %v", c.ID, err)
			b.metrics.AudioFrames.WithLabelValues("malformed").Inc()
			continue
		}
		if f.Kind != frameKindAudio {
			b.metrics.AudioFrames.WithLabelValues("ignored_kind").Inc()
			continue
		}
		if f.AudioData == nil || f.AudioData.Silent || f.AudioData.Data == "" {
			b.metrics.AudioFrames.WithLabelValues("silent").Inc()
			continue
		}

		pcm, err := base64.StdEncoding.DecodeString(f.AudioData.Data)
		if err != nil {
			log.Printf("call %s: dropping undecodable audio frame: %v", c.ID, err)
			b.metrics.AudioFrames.WithLabelValues("malformed").Inc()
			continue
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case audio <- pcm:
			b.metrics.AudioFrames.WithLabelValues("delivered").Inc()
		}
	}
}
