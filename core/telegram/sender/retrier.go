package sender

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/m3rciful/vcfbot/core/logger"
	"github.com/m3rciful/vcfbot/core/metrics"
)

const component = "tg.sender"

// Options controls the bounded retry of outbound calls.
type Options struct {
	// MaxRetries is the number of attempts after the first one.
	MaxRetries int
	// RetryBackoff is multiplied by the attempt number between attempts.
	RetryBackoff time.Duration
	// MaxDuration bounds the time spent on a single call.
	MaxDuration time.Duration
	// Pace is slept after every successful call.
	Pace  time.Duration
	Clock clockwork.Clock
}

// DefaultOptions returns two extra attempts with a 0.5s linear backoff.
func DefaultOptions() Options {
	return Options{
		MaxRetries:   2,
		RetryBackoff: 500 * time.Millisecond,
		MaxDuration:  2 * time.Minute,
	}
}

// DeliveryError reports an outbound call that failed for good.
type DeliveryError struct {
	Name     string
	Tries    int
	Terminal bool
	Err      error
}

func (e *DeliveryError) Error() string {
	if e.Terminal {
		return fmt.Sprintf("send %s: %s", e.Name, sanitizeErrorMessage(e.Err))
	}
	return fmt.Sprintf("send %s: gave up after %d attempts: %s", e.Name, e.Tries, sanitizeErrorMessage(e.Err))
}

func (e *DeliveryError) Unwrap() error { return e.Err }

// Attempts returns how many calls were made.
func (e *DeliveryError) Attempts() int { return e.Tries }

// Permanent reports whether the call was rejected without retrying.
func (e *DeliveryError) Permanent() bool { return e.Terminal }

// Reason returns the sanitized underlying error message.
func (e *DeliveryError) Reason() string { return sanitizeErrorMessage(e.Err) }

// Retrier runs outbound calls synchronously, retrying transient failures
// with a linear backoff. Calls are not queued, so the order of messages in a
// chat follows the order of calls.
type Retrier struct {
	opts Options
	errs atomic.Uint64
}

// NewRetrier fills zero options with defaults.
func NewRetrier(opts Options) *Retrier {
	def := DefaultOptions()
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	if opts.RetryBackoff <= 0 {
		opts.RetryBackoff = def.RetryBackoff
	}
	if opts.MaxDuration <= 0 {
		opts.MaxDuration = def.MaxDuration
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	return &Retrier{opts: opts}
}

// ErrorCount returns the number of calls that failed for good.
func (r *Retrier) ErrorCount() uint64 {
	return r.errs.Load()
}

// Do executes run until it succeeds, fails permanently or the attempts are
// exhausted. run must be safe to call more than once. Failures are returned
// as *DeliveryError.
func (r *Retrier) Do(ctx context.Context, action, name string, run func() error) error {
	if run == nil {
		return errors.New("telegram sender: nil run function")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	deadlineCtx, cancel := context.WithTimeout(ctx, r.opts.MaxDuration)
	defer cancel()

	start := r.opts.Clock.Now()
	attempts := r.opts.MaxRetries + 1
	var lastErr error

	for attempt := 1; attempt <= attempts; attempt++ {
		if err := deadlineCtx.Err(); err != nil {
			return r.fail(ctx, action, name, &DeliveryError{Name: name, Tries: attempt - 1, Err: err}, start)
		}

		err := run()
		if err == nil {
			metrics.SendAttempts.WithLabelValues("ok").Inc()
			logSendSuccess(ctx, action, name, attempt, r.opts.Clock.Since(start))
			r.pace(deadlineCtx)
			return nil
		}
		lastErr = err

		if !Transient(err) {
			metrics.SendAttempts.WithLabelValues("fail").Inc()
			return r.fail(ctx, action, name, &DeliveryError{Name: name, Tries: attempt, Terminal: true, Err: err}, start)
		}
		if attempt == attempts {
			metrics.SendAttempts.WithLabelValues("fail").Inc()
			break
		}
		metrics.SendAttempts.WithLabelValues("retry").Inc()

		delay := r.opts.RetryBackoff * time.Duration(attempt)
		logger.Warn(ctx, component, "send.retry",
			slog.String("status", "retry"),
			slog.String("action", action),
			slog.String("file_name", name),
			slog.Int("attempts", attempt),
			slog.Duration("backoff", delay),
			slog.String("cause", classifyError(err)),
			slog.String("err", sanitizeErrorMessage(err)),
		)
		select {
		case <-deadlineCtx.Done():
			return r.fail(ctx, action, name, &DeliveryError{Name: name, Tries: attempt, Err: deadlineCtx.Err()}, start)
		case <-r.opts.Clock.After(delay):
		}
	}

	return r.fail(ctx, action, name, &DeliveryError{Name: name, Tries: attempts, Err: lastErr}, start)
}

func (r *Retrier) pace(ctx context.Context) {
	if r.opts.Pace <= 0 {
		return
	}
	select {
	case <-ctx.Done():
	case <-r.opts.Clock.After(r.opts.Pace):
	}
}

func (r *Retrier) fail(ctx context.Context, action, name string, derr *DeliveryError, start time.Time) error {
	r.errs.Add(1)
	logger.Error(ctx, component, "send.fail",
		slog.String("status", "fail"),
		slog.String("action", action),
		slog.String("file_name", name),
		slog.Int("attempts", derr.Tries),
		slog.Bool("retryable", !derr.Terminal),
		slog.String("cause", classifyError(derr.Err)),
		slog.String("err", sanitizeErrorMessage(derr.Err)),
		slog.Duration("duration", r.opts.Clock.Since(start)),
	)
	return derr
}

func logSendSuccess(ctx context.Context, action, name string, attempt int, elapsed time.Duration) {
	attrs := []slog.Attr{
		slog.String("status", "ok"),
		slog.String("action", action),
		slog.String("file_name", name),
		slog.Duration("duration", elapsed),
	}
	if attempt > 1 {
		attrs = append(attrs, slog.Int("attempts", attempt))
		logger.Info(ctx, component, "send.retry.success", attrs...)
		return
	}
	logger.Debug(ctx, component, "send.success", attrs...)
}
