// Package relay turns the append-only entity tables into a live event
// feed for one subscriber connection at a time.
//
// Each subscription owns a watermark (highest id already delivered) per
// stream. On a fixed tick it polls every stream for rows past the
// watermark, emits them in ascending id order, advances the watermark,
// and finishes the tick with a keepalive. Watermarks only ever move
// forward; a failed poll holds the watermark so the same range is
// retried next tick.
//
// Subscriptions carry no durable state: a reconnecting client starts
// from the current maxima, so rows inserted while it was away are not
// replayed. Within one stream events arrive in strictly increasing id
// order with no gaps; across streams no ordering is guaranteed.
package relay

import (
	"context"
	"log"
	"time"

	"github.com/pulseboard/pulseboard/internal/metrics"
)

// Defaults applied by New when the corresponding option is zero.
const (
	DefaultInterval   = 2 * time.Second
	DefaultBatchLimit = 50
	DefaultLifetime   = 14 * time.Minute
)

// Row is one entity row surfaced by a Source. Data must be
// JSON-marshalable and carry the row's fields including its id.
type Row struct {
	ID   int64
	Data any
}

// Event is one emitted stream event, tagged with the stream type name.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// Source supplies cursor queries over the entity streams. Implemented
// by the telemetry store.
type Source interface {
	// MaxID returns the highest id currently present in the stream,
	// 0 if the stream is empty.
	MaxID(ctx context.Context, stream string) (int64, error)

	// After returns up to limit rows with id > afterID in ascending
	// id order.
	After(ctx context.Context, stream string, afterID int64, limit int) ([]Row, error)
}

// Sink receives the events for one subscriber connection. A Sink error
// means the subscriber is gone and stops the subscription.
type Sink interface {
	Send(Event) error
	KeepAlive() error
}

// Options configure a Relay.
type Options struct {
	// Streams lists the stream type names in drain order.
	Streams []string

	// Interval is the polling period (default 2s).
	Interval time.Duration

	// BatchLimit caps the rows fetched per stream per tick (default
	// 50), bounding tail latency under burst load.
	BatchLimit int

	// Lifetime is the hard wall-clock bound on a subscription
	// (default 14m), set comfortably inside upstream execution
	// budgets so the stream closes cleanly instead of being killed
	// mid-write.
	Lifetime time.Duration
}

// Relay creates polling subscriptions over a Source. A single Relay is
// shared by all connections; each Run call is an independent loop.
type Relay struct {
	src  Source
	opts Options
}

// New creates a Relay, applying defaults for unset options.
func New(src Source, opts Options) *Relay {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.BatchLimit <= 0 {
		opts.BatchLimit = DefaultBatchLimit
	}
	if opts.Lifetime <= 0 {
		opts.Lifetime = DefaultLifetime
	}
	return &Relay{src: src, opts: opts}
}

// Run drives one subscription until the context is cancelled (the
// connection closed), the lifetime deadline passes, or the sink fails.
// The ticker is always released before returning.
func (r *Relay) Run(ctx context.Context, sink Sink) error {
	ctx, cancel := context.WithTimeout(ctx, r.opts.Lifetime)
	defer cancel()

	metrics.RelaySubscriptions.Inc()
	defer metrics.RelaySubscriptions.Dec()

	// Initialize watermarks from the current maxima. A failed read
	// defaults to 0 and must not abort setup; the batch limit bounds
	// the worst-case replay that can cause.
	marks := make(map[string]int64, len(r.opts.Streams))
	for _, stream := range r.opts.Streams {
		max, err := r.src.MaxID(ctx, stream)
		if err != nil {
			log.Printf("relay: initial max id for %s: %v", stream, err)
			max = 0
		}
		marks[stream] = max
	}

	ticker := time.NewTicker(r.opts.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := r.tick(ctx, sink, marks); err != nil {
				return err
			}
		}
	}
}

// tick drains all streams once and ends with a keepalive. Poll failures
// are logged and swallowed so a transient read error cannot tear down
// an otherwise-healthy subscription; sink failures are returned.
func (r *Relay) tick(ctx context.Context, sink Sink, marks map[string]int64) error {
	for _, stream := range r.opts.Streams {
		if ctx.Err() != nil {
			return nil
		}

		rows, err := r.src.After(ctx, stream, marks[stream], r.opts.BatchLimit)
		if err != nil {
			log.Printf("relay: poll %s: %v", stream, err)
			continue
		}

		for _, row := range rows {
			if err := sink.Send(Event{Type: stream, Data: row.Data}); err != nil {
				return err
			}
			if row.ID > marks[stream] {
				marks[stream] = row.ID
			}
			metrics.RelayEvents.WithLabelValues(stream).Inc()
		}
	}

	return sink.KeepAlive()
}
