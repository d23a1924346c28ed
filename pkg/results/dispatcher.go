package results

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Fanout reports every outcome to all of its reporters
type Fanout []Reporter

// Report delivers the outcome to each reporter and joins their errors
func (f Fanout) Report(ctx context.Context, outcome Outcome) error {
	var errs []error
	for _, r := range f {
		if err := r.Report(ctx, outcome); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Dispatcher sends outcomes in the background. A report never blocks the
// caller and its failure never reaches the game.
type Dispatcher struct {
	reporter Reporter
	slots    chan struct{} // one token per in-flight report
	timeout  time.Duration
	fallback time.Duration
	wg       sync.WaitGroup
	logger   *zap.Logger
}

// NewDispatcher creates a dispatcher. reporter may be nil, in which case
// every submission settles immediately without doing anything.
func NewDispatcher(
	reporter Reporter,
	maxInFlight int,
	timeout, fallback time.Duration,
	logger *zap.Logger,
) *Dispatcher {
	if maxInFlight <= 0 {
		maxInFlight = 1
	}
	return &Dispatcher{
		reporter: reporter,
		slots:    make(chan struct{}, maxInFlight),
		timeout:  timeout,
		fallback: fallback,
		logger:   logger,
	}
}

// Submit starts reporting the outcome and returns at once. onSettled, if not
// nil, runs exactly once: when the report finishes or when the fallback delay
// passes, whichever happens first. It runs on a background goroutine.
func (d *Dispatcher) Submit(outcome Outcome, onSettled func()) {
	var once sync.Once
	settle := func() {
		if onSettled != nil {
			once.Do(onSettled)
		}
	}

	if d.reporter == nil {
		settle()
		return
	}

	select {
	case d.slots <- struct{}{}:
	default:
		d.logger.Warn("Dropping outcome report, too many in flight",
			zap.String("user_id", outcome.UserID),
			zap.String("status", string(outcome.Status)))
		settle()
		return
	}

	fallback := time.AfterFunc(d.fallback, settle)

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer func() { <-d.slots }()

		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		defer cancel()

		err := d.reporter.Report(ctx, outcome)
		fallback.Stop()
		if err != nil {
			d.logger.Error("Failed to report outcome",
				zap.String("user_id", outcome.UserID),
				zap.String("status", string(outcome.Status)),
				zap.Error(err))
		} else {
			d.logger.Debug("Outcome reported",
				zap.String("user_id", outcome.UserID),
				zap.String("status", string(outcome.Status)))
		}
		settle()
	}()
}

// Wait blocks until every in-flight report has finished or ctx is done
func (d *Dispatcher) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
