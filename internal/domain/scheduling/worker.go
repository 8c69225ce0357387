package scheduling

import (
	"context"
	"errors"
	"fmt"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Runner is the part of Scheduler the worker drives.
type Runner interface {
	Run(ctx context.Context, trigger string, force bool) (*SchedulerRun, error)
}

// Worker fires the daily run from a cron timer and, optionally, once at
// startup. Both triggers converge on the per-day marker.
type Worker struct {
	runner       Runner
	spec         string
	runOnStartup bool
	logger       zerolog.Logger

	cron   *cron.Cron
	cancel context.CancelFunc
	done   chan struct{}
}

func NewWorker(runner Runner, spec string, runOnStartup bool, logger zerolog.Logger) *Worker {
	return &Worker{runner: runner, spec: spec, runOnStartup: runOnStartup, logger: logger}
}

// Start schedules the timer. It does not block.
func (w *Worker) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	c := cron.New(cron.WithChain(cron.Recover(cronLogger{w.logger})))
	if _, err := c.AddFunc(w.spec, func() { w.runOnce(runCtx, TriggerCron) }); err != nil {
		cancel()
		return fmt.Errorf("schedule %q: %w", w.spec, err)
	}
	w.cron, w.cancel = c, cancel
	w.done = make(chan struct{})
	c.Start()

	if w.runOnStartup {
		go func() {
			defer close(w.done)
			w.runOnce(runCtx, TriggerStartup)
		}()
	} else {
		close(w.done)
	}
	w.logger.Info().Str("cron", w.spec).Bool("run_on_startup", w.runOnStartup).Msg("scheduler worker started")
	return nil
}

// Stop cancels in-flight runs and waits for them to return.
func (w *Worker) Stop() {
	if w.cancel != nil {
		w.cancel()
	}
	if w.cron != nil {
		<-w.cron.Stop().Done()
	}
	if w.done != nil {
		<-w.done
	}
}

func (w *Worker) runOnce(ctx context.Context, trigger string) {
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error().Interface("panic", r).Str("trigger", trigger).Msg("scheduler run panicked")
		}
	}()
	_, err := w.runner.Run(ctx, trigger, false)
	switch {
	case err == nil:
	case errors.Is(err, ErrAlreadyRan):
		w.logger.Debug().Str("trigger", trigger).Msg("daily run already recorded")
	case errors.Is(err, ErrLocked):
		w.logger.Info().Str("trigger", trigger).Msg("scheduler lease held elsewhere")
	default:
		w.logger.Error().Err(err).Str("trigger", trigger).Msg("scheduler run failed")
	}
}

// cronLogger routes cron's own messages, recovered job panics included,
// through zerolog.
type cronLogger struct{ log zerolog.Logger }

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
