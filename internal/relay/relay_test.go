package relay

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memSource is an in-memory Source whose rows and failure modes can be
// changed while a subscription is running.
type memSource struct {
	mu       sync.Mutex
	rows     map[string][]Row
	maxErr   map[string]error
	afterErr map[string]error
}

func newMemSource(streams ...string) *memSource {
	s := &memSource{
		rows:     map[string][]Row{},
		maxErr:   map[string]error{},
		afterErr: map[string]error{},
	}
	for _, stream := range streams {
		s.rows[stream] = nil
	}
	return s
}

func (s *memSource) add(stream string, ids ...int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		s.rows[stream] = append(s.rows[stream], Row{ID: id, Data: id})
	}
}

func (s *memSource) MaxID(ctx context.Context, stream string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.maxErr[stream]; err != nil {
		return 0, err
	}
	var max int64
	for _, r := range s.rows[stream] {
		if r.ID > max {
			max = r.ID
		}
	}
	return max, nil
}

func (s *memSource) After(ctx context.Context, stream string, afterID int64, limit int) ([]Row, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.afterErr[stream]; err != nil {
		return nil, err
	}
	var out []Row
	for _, r := range s.rows[stream] {
		if r.ID > afterID && len(out) < limit {
			out = append(out, r)
		}
	}
	return out, nil
}

// memSink collects emitted events and signals each completed tick via
// the keepalive channel.
type memSink struct {
	mu      sync.Mutex
	events  []Event
	ticks   chan struct{}
	sendErr error
}

func newMemSink() *memSink {
	return &memSink{ticks: make(chan struct{}, 128)}
}

func (s *memSink) Send(ev Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sendErr != nil {
		return s.sendErr
	}
	s.events = append(s.events, ev)
	return nil
}

func (s *memSink) KeepAlive() error {
	s.ticks <- struct{}{}
	return nil
}

func (s *memSink) ids(stream string) []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []int64
	for _, ev := range s.events {
		if ev.Type == stream {
			out = append(out, ev.Data.(int64))
		}
	}
	return out
}

// waitTicks blocks until n further ticks have completed. Ticks that
// finished before the call are discarded first, so with n >= 2 the last
// counted tick is guaranteed to have started after the call.
func waitTicks(t *testing.T, sink *memSink, n int) {
	t.Helper()
	for {
		select {
		case <-sink.ticks:
			continue
		default:
		}
		break
	}
	for range n {
		select {
		case <-sink.ticks:
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for relay tick")
		}
	}
}

func testOptions(streams ...string) Options {
	return Options{
		Streams:    streams,
		Interval:   5 * time.Millisecond,
		BatchLimit: 50,
		Lifetime:   time.Minute,
	}
}

func runRelay(t *testing.T, r *Relay, sink *memSink) (cancel func()) {
	t.Helper()
	ctx, stop := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx, sink) }()
	return func() {
		stop()
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("relay did not stop after cancellation")
		}
	}
}

func TestRunEmitsOnlyRowsInsertedAfterConnect(t *testing.T) {
	src := newMemSource("log")
	src.add("log", 1, 2)
	sink := newMemSink()

	cancel := runRelay(t, New(src, testOptions("log")), sink)
	defer cancel()

	waitTicks(t, sink, 1)
	assert.Empty(t, sink.ids("log"), "pre-existing rows must not be replayed")

	src.add("log", 3, 4)
	waitTicks(t, sink, 2)
	assert.Equal(t, []int64{3, 4}, sink.ids("log"))
}

func TestRunEmitsStreamsIndependently(t *testing.T) {
	src := newMemSource("log", "alert")
	sink := newMemSink()

	cancel := runRelay(t, New(src, testOptions("log", "alert")), sink)
	defer cancel()

	src.add("log", 1)
	src.add("alert", 1, 2)
	waitTicks(t, sink, 2)

	assert.Equal(t, []int64{1}, sink.ids("log"))
	assert.Equal(t, []int64{1, 2}, sink.ids("alert"))
}

func TestInitialMaxIDFailureDefaultsToZero(t *testing.T) {
	src := newMemSource("log")
	src.add("log", 1, 2)
	src.maxErr["log"] = errors.New("transient read failure")
	sink := newMemSink()

	cancel := runRelay(t, New(src, testOptions("log")), sink)
	defer cancel()

	// Setup must not abort; the watermark starts at zero, so the
	// table's existing rows are replayed to this subscriber.
	waitTicks(t, sink, 2)
	assert.Equal(t, []int64{1, 2}, sink.ids("log"))
}

func TestPollFailureHoldsWatermarkAndSparesOtherStreams(t *testing.T) {
	src := newMemSource("log", "alert")
	sink := newMemSink()

	cancel := runRelay(t, New(src, testOptions("log", "alert")), sink)
	defer cancel()

	src.mu.Lock()
	src.afterErr["log"] = errors.New("poll failure")
	src.mu.Unlock()
	src.add("log", 1)
	src.add("alert", 1)

	waitTicks(t, sink, 2)
	assert.Empty(t, sink.ids("log"))
	assert.Equal(t, []int64{1}, sink.ids("alert"), "healthy stream unaffected")

	// Once the stream recovers, the held watermark re-covers the
	// missed range.
	src.mu.Lock()
	src.afterErr["log"] = nil
	src.mu.Unlock()

	waitTicks(t, sink, 2)
	assert.Equal(t, []int64{1}, sink.ids("log"))
}

func TestKeepaliveSentOnIdleTicks(t *testing.T) {
	src := newMemSource("log")
	sink := newMemSink()

	cancel := runRelay(t, New(src, testOptions("log")), sink)
	defer cancel()

	// Each tick ends with a keepalive even when no data was emitted.
	waitTicks(t, sink, 3)
	assert.Empty(t, sink.events)
}

func TestBatchLimitBoundsTickAndPreservesOrder(t *testing.T) {
	src := newMemSource("log")
	sink := newMemSink()

	opts := testOptions("log")
	opts.BatchLimit = 2
	cancel := runRelay(t, New(src, opts), sink)
	defer cancel()

	src.add("log", 1, 2, 3, 4, 5)
	waitTicks(t, sink, 4)

	// Drained over multiple ticks, strictly increasing, no gaps.
	assert.Equal(t, []int64{1, 2, 3, 4, 5}, sink.ids("log"))
}

func TestLifetimeDeadlineStopsSubscription(t *testing.T) {
	src := newMemSource("log")
	sink := newMemSink()

	opts := testOptions("log")
	opts.Lifetime = 30 * time.Millisecond

	done := make(chan error, 1)
	go func() { done <- New(src, opts).Run(context.Background(), sink) }()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("relay did not stop at its lifetime deadline")
	}
}

func TestSinkFailureEndsSubscription(t *testing.T) {
	src := newMemSource("log")
	sink := newMemSink()
	writeErr := errors.New("broken pipe")
	sink.mu.Lock()
	sink.sendErr = writeErr
	sink.mu.Unlock()

	done := make(chan error, 1)
	go func() { done <- New(src, testOptions("log")).Run(context.Background(), sink) }()

	src.add("log", 1)

	select {
	case err := <-done:
		require.Error(t, err)
		assert.ErrorIs(t, err, writeErr)
	case <-time.After(2 * time.Second):
		t.Fatal("relay did not stop after a sink write failure")
	}
}

func TestConcurrentSubscriptionsEachSeeInserts(t *testing.T) {
	src := newMemSource("log")
	sinkA := newMemSink()
	sinkB := newMemSink()
	r := New(src, testOptions("log"))

	cancelA := runRelay(t, r, sinkA)
	defer cancelA()
	cancelB := runRelay(t, r, sinkB)
	defer cancelB()

	src.add("log", 1)
	waitTicks(t, sinkA, 2)
	waitTicks(t, sinkB, 2)

	// Both open subscriptions observe the insert exactly once.
	assert.Equal(t, []int64{1}, sinkA.ids("log"))
	assert.Equal(t, []int64{1}, sinkB.ids("log"))
}
