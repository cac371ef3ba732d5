// Package llmmetrics instruments a single chat-completion call and derives
// timing and throughput metrics from the live fragment stream: time to first
// and last fragment, inter-fragment gaps, tokens per second, and prompt
// complexity labels. The derived values feed span attributes; nothing here
// is persisted.
package llmmetrics

import (
	"context"
	"errors"
	"io"
	"strings"
	"time"

	"github.com/strivehq/assistant/internal/llm"
)

// Collector captures wall-clock arrival times for the fragments of one LLM
// call. A Collector is single-use: create it immediately before the call,
// invoke the capability through it, then read Timing. Not safe for
// concurrent use; fragments of one call arrive on a single ordered stream.
type Collector struct {
	now      func() time.Time
	start    time.Time
	arrivals []time.Duration
	elapsed  time.Duration
	streamed bool
}

// NewCollector records the request start time and returns a collector ready
// to wrap one call.
func NewCollector() *Collector {
	return newCollector(time.Now)
}

func newCollector(now func() time.Time) *Collector {
	return &Collector{now: now, start: now()}
}

// Invoke runs the request through the client, streaming when the client
// prefers it, and returns the concatenated response text plus the usage
// frame if the provider supplied one inline. On a mid-stream failure the
// text accumulated so far is returned alongside the error so the caller can
// still annotate its span before re-raising.
func (c *Collector) Invoke(ctx context.Context, client llm.Client, req llm.Request) (string, *llm.Usage, error) {
	if client.Streaming() {
		return c.invokeStreaming(ctx, client, req)
	}
	return c.invokeBlocking(ctx, client, req)
}

func (c *Collector) invokeBlocking(ctx context.Context, client llm.Client, req llm.Request) (string, *llm.Usage, error) {
	completion, err := client.Complete(ctx, req)
	c.elapsed = c.now().Sub(c.start)
	if err != nil {
		return "", nil, err
	}
	// The whole response lands at once; treat it as one fragment arriving at
	// call completion.
	c.arrivals = append(c.arrivals, c.elapsed)
	return completion.Text, completion.Usage, nil
}

func (c *Collector) invokeStreaming(ctx context.Context, client llm.Client, req llm.Request) (string, *llm.Usage, error) {
	stream, err := client.Stream(ctx, req)
	if err != nil {
		c.elapsed = c.now().Sub(c.start)
		return "", nil, err
	}
	defer func() { _ = stream.Close() }()
	c.streamed = true

	var text strings.Builder
	var usage *llm.Usage
	for {
		chunk, recvErr := stream.Recv()
		if recvErr != nil {
			c.elapsed = c.now().Sub(c.start)
			if errors.Is(recvErr, io.EOF) {
				return text.String(), usage, nil
			}
			return text.String(), usage, recvErr
		}
		if chunk.Usage != nil {
			usage = chunk.Usage
		}
		// Usage-only frames at end of stream carry no text and are not
		// fragments for timing purposes.
		if chunk.Text == "" {
			continue
		}
		c.arrivals = append(c.arrivals, c.now().Sub(c.start))
		text.WriteString(chunk.Text)
	}
}

// Timing holds the derived timing metrics for one call.
type Timing struct {
	// TTFT is the time to first fragment. For non-streaming calls, where the
	// capability gives no earlier signal, it is approximated as 10% of the
	// total elapsed time.
	TTFT time.Duration
	// TTLT is the time to last fragment, measured from request start.
	TTLT time.Duration
	// GenerationTime is TTLT minus TTFT: the time spent producing tokens
	// after the first one arrived. It equals TTLT when TTFT is unavailable.
	GenerationTime time.Duration
	ChunkCount     int
	GapAverage     time.Duration
	GapP95         time.Duration
	Streamed       bool
}

// Timing derives the metrics from the recorded arrivals. Valid after Invoke
// has returned, on both success and failure paths.
func (c *Collector) Timing() Timing {
	timing := Timing{ChunkCount: len(c.arrivals), Streamed: c.streamed}
	if len(c.arrivals) == 0 {
		// The call failed before any fragment arrived; only total elapsed
		// time is meaningful.
		timing.TTLT = c.elapsed
		timing.GenerationTime = c.elapsed
		return timing
	}

	timing.TTFT = c.arrivals[0]
	timing.TTLT = c.arrivals[len(c.arrivals)-1]
	if !c.streamed {
		timing.TTFT = timing.TTLT / 10
	}

	timing.GenerationTime = timing.TTLT - timing.TTFT
	if timing.TTFT <= 0 {
		timing.GenerationTime = timing.TTLT
	}

	gaps := make([]time.Duration, 0, len(c.arrivals)-1)
	for i := 1; i < len(c.arrivals); i++ {
		gaps = append(gaps, c.arrivals[i]-c.arrivals[i-1])
	}
	timing.GapAverage = averageDuration(gaps)
	timing.GapP95 = percentileDuration(gaps, 0.95)
	return timing
}

func averageDuration(values []time.Duration) time.Duration {
	if len(values) == 0 {
		return 0
	}
	var total time.Duration
	for _, value := range values {
		total += value
	}
	return total / time.Duration(len(values))
}

// percentileDuration computes the nearest-rank percentile over an unsorted
// gap list. A single-fragment response has no gaps and yields 0.
func percentileDuration(values []time.Duration, percentile float64) time.Duration {
	if len(values) == 0 {
		return 0
	}
	sorted := make([]time.Duration, len(values))
	copy(sorted, values)
	for i := 1; i < len(sorted); i++ {
		for j := i; j > 0 && sorted[j] < sorted[j-1]; j-- {
			sorted[j], sorted[j-1] = sorted[j-1], sorted[j]
		}
	}
	rank := int(float64(len(sorted))*percentile+0.5) - 1
	if rank < 0 {
		rank = 0
	}
	if rank >= len(sorted) {
		rank = len(sorted) - 1
	}
	return sorted[rank]
}
