// Package worker drives a single pipeline stage through the shared poll loop:
// claim one item, process it, repeat until the queue drains, then back off.
//
// The loop is an explicit state machine. Polling claims work, Processing runs
// the stage handler, Backoff sleeps for the configured snooze interval, and
// Fatal terminates the worker. A snooze interval of zero turns the worker
// into a one-shot drain: instead of sleeping it exits cleanly so schedulers
// can run stages in batch.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"

	"aperture/internal/config"
	"aperture/internal/logging"
	"aperture/internal/notifications"
	"aperture/internal/services"
	"aperture/internal/stage"
)

// State identifies the phase the worker loop is in.
type State int

const (
	StatePolling State = iota
	StateProcessing
	StateBackoff
	StateFatal
)

func (s State) String() string {
	switch s {
	case StatePolling:
		return "polling"
	case StateProcessing:
		return "processing"
	case StateBackoff:
		return "backoff"
	case StateFatal:
		return "fatal"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

type snoozeOutcome int

const (
	snoozeCompleted snoozeOutcome = iota
	snoozeResumed
	snoozeStop
)

// Options configures a Worker.
type Options struct {
	Handler stage.Handler
	Config  *config.Config
	// ConfigPath, when set, is re-read before every backoff so the snooze
	// interval can be retuned without restarting workers.
	ConfigPath string
	Logger     *slog.Logger
	Clock      Clock
	// Interrupts receives operator signals during backoff. A single signal
	// resumes polling after a grace window; a second signal inside the
	// window stops the worker cleanly.
	Interrupts <-chan os.Signal
	// Once forces one-shot mode regardless of the configured interval.
	Once bool
	// Notifier, when set, is alerted before the worker exits on a fatal
	// error. Delivery failures are logged and otherwise ignored.
	Notifier notifications.Notifier
}

// Worker runs one stage handler in the poll loop until the context is
// cancelled, the queue drains in one-shot mode, or a fatal error occurs.
type Worker struct {
	handler    stage.Handler
	cfg        *config.Config
	cfgPath    string
	logger     *slog.Logger
	clock      Clock
	interrupts <-chan os.Signal
	once       bool
	notifier   notifications.Notifier

	state   State
	current stage.Item
	fatal   error
}

// New validates options and builds a Worker.
func New(opts Options) (*Worker, error) {
	if opts.Handler == nil {
		return nil, errors.New("worker: handler is required")
	}
	if opts.Config == nil {
		return nil, errors.New("worker: config is required")
	}
	clock := opts.Clock
	if clock == nil {
		clock = SystemClock{}
	}
	logger := logging.NewComponentLogger(opts.Logger, "worker").With(
		logging.String(logging.FieldStage, opts.Handler.Name()))
	return &Worker{
		handler:    opts.Handler,
		cfg:        opts.Config,
		cfgPath:    opts.ConfigPath,
		logger:     logger,
		clock:      clock,
		interrupts: opts.Interrupts,
		once:       opts.Once,
		notifier:   opts.Notifier,
	}, nil
}

// Run drives the state machine. It returns nil on clean shutdown (context
// cancellation, one-shot drain, or operator stop during backoff) and the
// fatal error otherwise.
func (w *Worker) Run(ctx context.Context) error {
	if health := w.handler.HealthCheck(ctx); !health.Ready {
		return services.Wrap(services.ErrConfiguration, w.handler.Name(), "health check", health.Detail, nil)
	}
	for {
		if w.state == StateFatal {
			w.logger.Error("worker stopping on fatal error", logging.Error(w.fatal))
			w.notifyFailure(ctx)
			return w.fatal
		}
		if ctx.Err() != nil {
			w.logger.Info("shutdown requested; stopping worker")
			return nil
		}
		switch w.state {
		case StatePolling:
			w.poll(ctx)
		case StateProcessing:
			w.process(ctx)
		case StateBackoff:
			if stopped := w.backoff(ctx); stopped {
				return nil
			}
		}
	}
}

func (w *Worker) poll(ctx context.Context) {
	item, err := w.nextItem(ctx)
	if err != nil {
		// No item can safely be claimed when the store misbehaves.
		w.fail(fmt.Errorf("claim next item: %w", err))
		return
	}
	if item == nil {
		w.idle(ctx)
		return
	}
	w.current = item
	w.transition(StateProcessing)
}

// nextItem prefers a stashed follow-up over the general claim, so chained
// work (the second stream of a split video) runs back to back.
func (w *Worker) nextItem(ctx context.Context) (stage.Item, error) {
	if stasher, ok := w.handler.(stage.Stasher); ok {
		item, err := stasher.TakeStashed(ctx)
		if err != nil {
			return nil, err
		}
		if item != nil {
			w.logger.Info("processing stashed follow-up item",
				logging.String(logging.FieldItem, item.Key()))
			return item, nil
		}
	}
	return w.handler.Claim(ctx)
}

func (w *Worker) idle(ctx context.Context) {
	if observer, ok := w.handler.(stage.IdleObserver); ok {
		if err := observer.OnIdle(ctx); err != nil {
			if services.IsFatal(err) {
				w.fail(err)
				return
			}
			w.logger.Warn("idle hook failed", logging.Error(err))
		}
	}
	w.transition(StateBackoff)
}

func (w *Worker) process(ctx context.Context) {
	item := w.current
	w.current = nil

	itemCtx := services.WithStage(ctx, w.handler.Name())
	itemCtx = services.WithItemKey(itemCtx, item.Key())
	itemCtx = services.WithRequestID(itemCtx, uuid.NewString())
	logger := logging.WithContext(itemCtx, w.logger)

	logger.Info("item started")
	start := w.clock.Now()
	err := w.handler.Process(itemCtx, item)
	elapsed := w.clock.Now().Sub(start)

	switch {
	case err == nil:
		logger.Info("item finished", logging.Duration("elapsed", elapsed))
		w.transition(StatePolling)
	case services.IsContention(err):
		logger.Info("item completed by another worker; discarding result", logging.Error(err))
		w.transition(StatePolling)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		logger.Info("item interrupted by shutdown")
		w.transition(StatePolling)
	case services.IsFatal(err):
		logger.Error("item failed fatally", logging.Error(err))
		w.fail(err)
	default:
		logger.Error("item failed; pausing before next claim",
			logging.Error(err), logging.String(logging.FieldAlert, "item_failed"))
		w.errorPause(ctx)
		w.transition(StatePolling)
	}
}

// backoff sleeps out one snooze interval. It reports true when the worker
// should stop: drained in one-shot mode, or stopped by the operator.
func (w *Worker) backoff(ctx context.Context) bool {
	interval := w.snoozeInterval()
	if interval <= 0 {
		w.logger.Info("queue drained; exiting one-shot worker")
		return true
	}
	switch w.snooze(ctx, interval) {
	case snoozeStop:
		w.logger.Info("worker stopped during backoff")
		return true
	default:
		w.transition(StatePolling)
		return false
	}
}

// snoozeInterval re-reads the configuration file so operators can retune the
// cadence of a long-lived worker between cycles.
func (w *Worker) snoozeInterval() time.Duration {
	if w.once {
		return 0
	}
	if w.cfgPath != "" {
		fresh, _, exists, err := config.Load(w.cfgPath)
		switch {
		case err != nil:
			w.logger.Warn("config reload failed; keeping current settings", logging.Error(err))
		case exists:
			w.cfg = fresh
		}
	}
	return time.Duration(w.cfg.Workflow.SnoozeSeconds) * time.Second
}

func (w *Worker) snooze(ctx context.Context, interval time.Duration) snoozeOutcome {
	w.logger.Info("no work available; snoozing", logging.Duration("interval", interval))
	select {
	case <-ctx.Done():
		return snoozeStop
	case <-w.clock.After(interval):
		return snoozeCompleted
	case <-w.interrupts:
		grace := w.graceWindow()
		w.logger.Warn("interrupt received; interrupt again to stop",
			logging.Duration("grace", grace), logging.String(logging.FieldAlert, "interrupt"))
		select {
		case <-ctx.Done():
			return snoozeStop
		case <-w.interrupts:
			w.logger.Info("second interrupt; stopping worker")
			return snoozeStop
		case <-w.clock.After(grace):
			w.logger.Info("no second interrupt; resuming polling")
			return snoozeResumed
		}
	}
}

func (w *Worker) graceWindow() time.Duration {
	grace := time.Duration(w.cfg.Workflow.InterruptGraceSecs) * time.Second
	if grace <= 0 {
		grace = 5 * time.Second
	}
	return grace
}

func (w *Worker) errorPause(ctx context.Context) {
	pause := time.Duration(w.cfg.Workflow.ErrorRetrySeconds) * time.Second
	if pause <= 0 {
		return
	}
	select {
	case <-ctx.Done():
	case <-w.clock.After(pause):
	}
}

func (w *Worker) fail(err error) {
	w.fatal = err
	w.transition(StateFatal)
}

// notifyFailure alerts the operator that this worker is down. The alert is
// best effort: a worker that cannot reach ntfy still exits with its real
// fatal error, not a delivery error.
func (w *Worker) notifyFailure(ctx context.Context) {
	if w.notifier == nil {
		return
	}
	nctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := w.notifier.WorkerFailed(nctx, w.handler.Name(), w.fatal); err != nil {
		w.logger.Warn("failure notification not delivered", logging.Error(err))
	}
}

func (w *Worker) transition(next State) {
	if next == w.state {
		return
	}
	w.logger.Debug("worker state transition",
		logging.String("from", w.state.String()),
		logging.String("to", next.String()))
	w.state = next
}
