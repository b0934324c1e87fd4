package scanner

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// DefaultBatchSize is the number of probes in flight per batch when none is configured
const DefaultBatchSize = 50

// Recorder receives executor lifecycle callbacks (metrics hook)
// Implementations must be safe for concurrent use: probe callbacks
// are invoked from the probe goroutines.
type Recorder interface {
	ScanStarted(family Family)
	ScanFinished(family Family, summary Summary, err error)
	ProbeStarted(family Family)
	ProbeFinished(family Family, outcome Outcome)
}

type nopRecorder struct{}

func (nopRecorder) ScanStarted(Family)                  {}
func (nopRecorder) ScanFinished(Family, Summary, error) {}
func (nopRecorder) ProbeStarted(Family)                 {}
func (nopRecorder) ProbeFinished(Family, Outcome)       {}

// ExecOptions controls a single Execute call
type ExecOptions struct {
	// BatchSize bounds the probes in flight (0 or negative = DefaultBatchSize)
	BatchSize int

	// Limiter paces probe launches (nil = unlimited)
	Limiter *rate.Limiter

	// Recorder receives metrics callbacks (nil = none)
	Recorder Recorder

	// ScanID and Target are copied into the Summary
	ScanID string
	Target string
}

// NewLimiter returns a limiter allowing perSecond probe launches, or nil when perSecond <= 0
func NewLimiter(perSecond int) *rate.Limiter {
	if perSecond <= 0 {
		return nil
	}
	return rate.NewLimiter(rate.Limit(perSecond), perSecond)
}

// Execute runs p against every target in contiguous batches of opts.BatchSize.
// All probes of a batch run concurrently and the whole batch completes before the
// next one starts, so at most BatchSize probes are ever in flight.
//
// total is the number of targets the sequence yields and drives the progress
// percentage. For every completed probe Execute emits a result event (successful
// outcomes only) followed by a progress event; after the last probe it emits a
// done event carrying the Summary.
//
// Cancelling ctx stops scheduling: probes already in flight finish under their own
// timeout and release their sockets, nothing more is emitted, and Execute returns
// ctx.Err() with a partial Summary. If emit fails the current batch is drained,
// no further batch starts and the wrapped emit error is returned.
func Execute[T any](ctx context.Context, targets iter.Seq[T], total int, p Prober[T], opts ExecOptions, emit EmitFunc) (Summary, error) {
	batchSize := opts.BatchSize
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	rec := opts.Recorder
	if rec == nil {
		rec = nopRecorder{}
	}

	s := &sweep[T]{
		prober:   p,
		family:   p.Family(),
		limiter:  opts.Limiter,
		recorder: rec,
		emit:     emit,
		total:    total,
	}

	start := time.Now()
	rec.ScanStarted(s.family)
	err := s.run(ctx, targets, batchSize)

	summary := Summary{
		ScanID:     opts.ScanID,
		Family:     s.family,
		Target:     opts.Target,
		Total:      total,
		Completed:  s.completed,
		Found:      len(s.results),
		DurationMs: time.Since(start).Milliseconds(),
		Cancelled:  ctx.Err() != nil,
		Results:    s.results,
	}

	if err == nil {
		if emitErr := s.emit(DoneEvent(summary)); emitErr != nil {
			err = fmt.Errorf("emit done: %w", emitErr)
		}
	}

	rec.ScanFinished(s.family, summary, err)
	return summary, err
}

// sweep holds the state of one Execute call
// completed, results and emitErr are only touched by the executing goroutine.
type sweep[T any] struct {
	prober   Prober[T]
	family   Family
	limiter  *rate.Limiter
	recorder Recorder
	emit     EmitFunc
	total    int

	completed int
	results   []Outcome
	emitErr   error
}

var errEmitFailed = errors.New("emit failed")

// run walks the target sequence batch by batch
func (s *sweep[T]) run(ctx context.Context, targets iter.Seq[T], batchSize int) error {
	// halt is cancelled by the caller or by the first failed emit
	halt, stop := context.WithCancelCause(ctx)
	defer stop(nil)

	batch := make([]T, 0, batchSize)
	batches := 0
	for target := range targets {
		batch = append(batch, target)
		if len(batch) < batchSize {
			continue
		}
		batches++
		s.runBatch(ctx, halt, stop, batch, batches)
		batch = batch[:0]
		if halt.Err() != nil {
			break
		}
	}
	if len(batch) > 0 && halt.Err() == nil {
		batches++
		s.runBatch(ctx, halt, stop, batch, batches)
	}

	if s.emitErr != nil {
		return fmt.Errorf("emit: %w", s.emitErr)
	}
	return ctx.Err()
}

// runBatch launches one probe per target and blocks until all of them finished.
// Probes run detached from cancellation so every socket is released through the
// probe's own timeout; completions are consumed here, in completion order.
func (s *sweep[T]) runBatch(ctx, halt context.Context, stop context.CancelCauseFunc, batch []T, n int) {
	if halt.Err() != nil {
		return
	}
	slog.Debug("starting batch", "family", s.family, "batch", n, "size", len(batch), "completed", s.completed)

	probeCtx := context.WithoutCancel(ctx)
	done := make(chan Outcome, len(batch))

	// Feed probes from a separate goroutine so completions are consumed while
	// the limiter delays later launches
	go func() {
		var g errgroup.Group
		defer close(done)

		for _, target := range batch {
			// Check for cancellation before every launch
			if halt.Err() != nil {
				break
			}
			if s.limiter != nil {
				if err := s.limiter.Wait(halt); err != nil {
					break
				}
			}

			g.Go(func() error {
				s.recorder.ProbeStarted(s.family)
				outcome := s.prober.Probe(probeCtx, target)
				s.recorder.ProbeFinished(s.family, outcome)
				done <- outcome
				return nil
			})
		}

		// Wait for the whole batch
		_ = g.Wait()
	}()

	for outcome := range done {
		s.complete(halt, stop, outcome)
	}
}

// complete accounts for one finished probe and emits its events
func (s *sweep[T]) complete(halt context.Context, stop context.CancelCauseFunc, outcome Outcome) {
	s.completed++
	if outcome.Success() {
		s.results = append(s.results, outcome)
	}

	// Nothing is emitted once the consumer is gone or the caller cancelled
	if halt.Err() != nil {
		return
	}

	if outcome.Success() {
		if err := s.emit(ResultEvent(outcome.Record())); err != nil {
			s.fail(stop, err)
			return
		}
		// The consumer may have cancelled while handling the result
		if halt.Err() != nil {
			return
		}
	}
	if err := s.emit(ProgressEvent(s.progress())); err != nil {
		s.fail(stop, err)
	}
}

func (s *sweep[T]) fail(stop context.CancelCauseFunc, err error) {
	slog.Debug("event stream closed, stopping sweep", "family", s.family, "completed", s.completed, "error", err)
	s.emitErr = err
	stop(errEmitFailed)
}

// progress returns completed*100/total, floored and capped at 100
func (s *sweep[T]) progress() int {
	if s.total <= 0 {
		return 100
	}
	return min(100, s.completed*100/s.total)
}
