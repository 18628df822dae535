package streaming

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/docuquery/llm-gateway/internal/config"
	"github.com/docuquery/llm-gateway/internal/monitoring"
)

// Fragment is one normalized piece of streamed output. A Fragment with Err
// set is the error event; the channel closing is the termination marker.
type Fragment struct {
	Text string
	Err  error
}

// ErrIdleTimeout terminates streams with no inter-chunk data.
var ErrIdleTimeout = errors.New("stream idle timeout")

// Normalizer converts provider-native incremental output into Fragments.
// It is purely a producer: fragments are forwarded the moment they parse.
type Normalizer struct {
	idleTimeout time.Duration
	metrics     *monitoring.MetricsCollector
}

// NewNormalizer creates a normalizer. Zero idle timeout uses the default.
// metrics may be nil.
func NewNormalizer(idleTimeout time.Duration, metrics *monitoring.MetricsCollector) *Normalizer {
	if idleTimeout <= 0 {
		idleTimeout = config.DefaultStreamIdleTimeout
	}
	return &Normalizer{idleTimeout: idleTimeout, metrics: metrics}
}

type readChunk struct {
	data []byte
	err  error
}

// Stream consumes body and emits normalized fragments. The returned tally is
// safe to read once the fragment channel has closed. body is always closed;
// caller cancellation abandons the upstream read best-effort.
func (n *Normalizer) Stream(ctx context.Context, body io.ReadCloser, dialect Dialect, parser ChunkParser) (<-chan Fragment, *UsageTally) {
	out := make(chan Fragment)
	tally := &UsageTally{}

	reads := make(chan readChunk)
	consumerDone := make(chan struct{})
	go func() {
		defer close(reads)
		buf := make([]byte, config.DefaultBufferSize)
		for {
			nr, err := body.Read(buf)
			if nr > 0 {
				chunk := make([]byte, nr)
				copy(chunk, buf[:nr])
				select {
				case reads <- readChunk{data: chunk}:
				case <-consumerDone:
					return
				}
			}
			if err != nil {
				if err != io.EOF {
					select {
					case reads <- readChunk{err: err}:
					case <-consumerDone:
					}
				}
				return
			}
		}
	}()

	go func() {
		defer close(out)
		defer func() { _ = body.Close() }()
		defer close(consumerDone)

		var framer frameProcessor
		if dialect == DialectChunkedJSON {
			framer = &jsonProcessor{}
		} else {
			framer = &sseProcessor{}
		}

		watchdog := time.NewTimer(n.idleTimeout)
		defer watchdog.Stop()

		for {
			select {
			case <-ctx.Done():
				// Caller went away: abandon the provider stream.
				return

			case <-watchdog.C:
				if n.metrics != nil {
					n.metrics.RecordStreamTimeout()
				}
				out <- Fragment{Err: ErrIdleTimeout}
				return

			case rc, ok := <-reads:
				if !ok {
					return
				}
				if rc.err != nil {
					out <- Fragment{Err: fmt.Errorf("stream transport: %w", rc.err)}
					return
				}

				// Any upstream bytes — including keep-alive pings that
				// produce no output — reset the inactivity timer.
				if !watchdog.Stop() {
					<-watchdog.C
				}
				watchdog.Reset(n.idleTimeout)

				done := framer.process(rc.data, func(frame []byte) {
					tally.Feed(frame)
					text, ok := parser.ParseChunk(frame)
					if !ok {
						return
					}
					select {
					case out <- Fragment{Text: text}:
					case <-ctx.Done():
					}
				})
				if done {
					return
				}
			}
		}
	}()

	return out, tally
}

// frameProcessor turns raw transport chunks into parseable frames.
// process returns true when the dialect's end-of-stream sentinel was seen.
type frameProcessor interface {
	process(chunk []byte, emit func(frame []byte)) bool
}

// sseProcessor handles line-delimited "data: ..." framing. Non-data lines
// (event names, comments, keep-alive pings) produce no frames; malformed
// data lines are skipped without aborting the stream.
type sseProcessor struct {
	pending []byte
}

var doneSentinel = []byte("[DONE]")

func (p *sseProcessor) process(chunk []byte, emit func(frame []byte)) bool {
	p.pending = append(p.pending, chunk...)

	for {
		idx := bytes.IndexByte(p.pending, '\n')
		if idx < 0 {
			return false
		}
		line := bytes.TrimRight(p.pending[:idx], "\r")
		p.pending = p.pending[idx+1:]

		if len(line) == 0 || !bytes.HasPrefix(line, []byte("data:")) {
			continue
		}
		payload := bytes.TrimSpace(line[len("data:"):])
		if len(payload) == 0 {
			continue
		}
		if bytes.Equal(payload, doneSentinel) {
			return true
		}
		if !gjsonValid(payload) {
			log.Debug().Str("line", string(payload[:min(len(payload), 120)])).
				Msg("skipping malformed stream frame")
			continue
		}
		emit(payload)
	}
}

// jsonProcessor handles incrementally flushed JSON objects.
type jsonProcessor struct {
	splitter jsonFrameSplitter
}

func (p *jsonProcessor) process(chunk []byte, emit func(frame []byte)) bool {
	for _, frame := range p.splitter.Feed(chunk) {
		emit(frame)
	}
	return false
}
