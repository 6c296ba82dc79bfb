// Package dispatch runs the operation of a closed batch: it transforms every
// input file concurrently, sends the results back in input order and leaves
// the session reset.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/errgroup"

	"github.com/m3rciful/vcfbot/core/blobstore"
	"github.com/m3rciful/vcfbot/core/logger"
	"github.com/m3rciful/vcfbot/core/metrics"
	"github.com/m3rciful/vcfbot/core/state"
)

// Menu selects the inline keyboard attached to a message.
type Menu int

const (
	MenuNone Menu = iota
	// MenuMain lists the operations.
	MenuMain
	// MenuInputMethod offers uploading files or pasting numbers.
	MenuInputMethod
	// MenuJoin links the required channels and offers the verify button.
	MenuJoin
)

// Messenger delivers outbound messages to a chat.
type Messenger interface {
	SendText(ctx context.Context, chatID int64, text string) error
	SendMenu(ctx context.Context, chatID int64, text string, menu Menu) error
	SendDocument(ctx context.Context, chatID int64, name string, data []byte) error
}

// Recorder stores a summary of every finished dispatch.
type Recorder interface {
	Record(ctx context.Context, e Entry) error
}

// Entry summarizes a finished dispatch.
type Entry struct {
	ID        string
	UserID    int64
	Mode      state.Mode
	FilesIn   int
	FilesOut  int
	Failed    int
	Numbers   int
	Outcome   string
	Duration  time.Duration
	CreatedAt time.Time
}

const (
	OutcomeOK      = "ok"
	OutcomePartial = "partial"
	OutcomeFail    = "fail"
)

// Job is the input of one dispatch. Numbers is set instead of Files when the
// user pasted numbers directly.
type Job struct {
	UserID      int64
	ChatID      int64
	Mode        state.Mode
	Files       []state.FileRef
	Numbers     []string
	Config      state.Config
	Instruction state.Instruction
}

// Options tunes a Dispatcher.
type Options struct {
	// Concurrency limits per-file work of one dispatch; 0 -> 8
	Concurrency int
	Journal     Recorder
	Clock       clockwork.Clock
}

// Dispatcher executes jobs.
type Dispatcher struct {
	store   *state.Store
	blobs   blobstore.Store
	msg     Messenger
	journal Recorder
	limit   int
	clock   clockwork.Clock
}

// New constructs a Dispatcher.
func New(store *state.Store, blobs blobstore.Store, msg Messenger, opts Options) *Dispatcher {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 8
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	return &Dispatcher{
		store:   store,
		blobs:   blobs,
		msg:     msg,
		journal: opts.Journal,
		limit:   opts.Concurrency,
		clock:   opts.Clock,
	}
}

// result is what a mode reports back for metrics and the journal.
type result struct {
	filesOut int
	failed   int
	numbers  int
}

// Run processes job and then deletes the session artifacts, resets the
// session and tells the user. Run never panics and never leaves the session
// in processing state.
func (d *Dispatcher) Run(ctx context.Context, job Job) {
	ctx = logger.WithBatch(ctx, uuid.NewString())
	start := d.clock.Now()
	var (
		res result
		err error
	)
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("dispatch: panic: %v", r)
			logger.Error(ctx, logger.ComponentDispatch, "dispatch.panic",
				slog.String("status", "fail"),
				slog.Int64("user_id", job.UserID),
				slog.String("batch_mode", string(job.Mode)),
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())),
			)
		}
		d.finish(ctx, job, res, err, start)
	}()

	logger.Info(ctx, logger.ComponentDispatch, "dispatch.start",
		slog.Int64("user_id", job.UserID),
		slog.String("batch_mode", string(job.Mode)),
		slog.Int("files", len(job.Files)),
		slog.Int("numbers", len(job.Numbers)),
	)

	switch job.Mode {
	case state.ModeTextToVCF:
		res, err = d.generate(ctx, job)
	case state.ModeCount:
		res, err = d.count(ctx, job)
	case state.ModeAddContact:
		res, err = d.addContact(ctx, job)
	case state.ModeRenameContacts:
		res, err = d.renameContacts(ctx, job)
	case state.ModeRenameFiles:
		res, err = d.renameFiles(ctx, job)
	default:
		err = fmt.Errorf("dispatch: unknown mode %q", job.Mode)
	}
}

func (d *Dispatcher) finish(ctx context.Context, job Job, res result, runErr error, start time.Time) {
	artifacts := d.store.Reset(job.UserID)
	if d.blobs != nil {
		if err := blobstore.DeleteAll(ctx, d.blobs, artifacts); err != nil {
			logger.Warn(ctx, logger.ComponentDispatch, "dispatch.cleanup",
				slog.String("status", "fail"),
				slog.Int64("user_id", job.UserID),
				slog.Int("count", len(artifacts)),
				slog.String("err", err.Error()),
			)
		}
	}

	outcome := OutcomeOK
	switch {
	case runErr != nil:
		outcome = OutcomeFail
	case res.failed > 0:
		outcome = OutcomePartial
	}
	took := d.clock.Since(start)

	metrics.DispatchesTotal.WithLabelValues(string(job.Mode), outcome).Inc()
	metrics.DispatchDuration.WithLabelValues(string(job.Mode)).Observe(took.Seconds())

	attrs := []slog.Attr{
		slog.String("status", outcome),
		slog.Int64("user_id", job.UserID),
		slog.String("batch_mode", string(job.Mode)),
		slog.Int("files", len(job.Files)),
		slog.Int("files_out", res.filesOut),
		slog.Int("failed", res.failed),
		slog.Int("numbers", res.numbers),
		slog.Int("count", len(artifacts)),
		slog.Duration("duration", took),
	}
	if runErr != nil {
		attrs = append(attrs, slog.String("err", runErr.Error()))
		logger.Error(ctx, logger.ComponentDispatch, "dispatch.done", attrs...)
	} else {
		logger.Info(ctx, logger.ComponentDispatch, "dispatch.done", attrs...)
	}

	if d.journal != nil {
		entry := Entry{
			ID:        logger.BatchIDFrom(ctx),
			UserID:    job.UserID,
			Mode:      job.Mode,
			FilesIn:   len(job.Files),
			FilesOut:  res.filesOut,
			Failed:    res.failed,
			Numbers:   res.numbers,
			Outcome:   outcome,
			Duration:  took,
			CreatedAt: start,
		}
		if err := d.journal.Record(ctx, entry); err != nil {
			metrics.JournalErrors.Inc()
			logger.Warn(ctx, logger.ComponentDispatch, "journal.record",
				slog.String("status", "fail"),
				slog.String("err", err.Error()),
			)
		}
	}

	if runErr != nil {
		d.notifyMenu(ctx, job.ChatID, msgUnexpected)
		return
	}
	d.notifyMenu(ctx, job.ChatID, msgTaskCompleted)
}

// each runs fn for every index concurrently, bounded by the dispatcher limit.
// A panicking call is converted into that index's error.
func (d *Dispatcher) each(ctx context.Context, n int, fn func(ctx context.Context, i int) error) []error {
	errs := make([]error, n)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.limit)
	for i := 0; i < n; i++ {
		g.Go(func() error {
			defer func() {
				if r := recover(); r != nil {
					errs[i] = fmt.Errorf("panic: %v", r)
				}
			}()
			errs[i] = fn(gctx, i)
			return nil
		})
	}
	_ = g.Wait()
	return errs
}

func (d *Dispatcher) read(ctx context.Context, ref state.FileRef) ([]byte, error) {
	if d.blobs == nil {
		return nil, errors.New("no blob store configured")
	}
	data, err := d.blobs.Read(ctx, ref.Key)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", ref.Name, err)
	}
	return data, nil
}

// reportFailures tells the user about every failed file in input order and
// returns how many failed.
func (d *Dispatcher) reportFailures(ctx context.Context, job Job, errs []error, format string) int {
	failed := 0
	for i, err := range errs {
		if err == nil {
			metrics.FilesProcessed.WithLabelValues(string(job.Mode), "ok").Inc()
			continue
		}
		failed++
		metrics.FilesProcessed.WithLabelValues(string(job.Mode), "fail").Inc()
		name := job.Files[i].Name
		logger.Warn(ctx, logger.ComponentDispatch, "file.fail",
			slog.String("status", "fail"),
			slog.String("batch_mode", string(job.Mode)),
			slog.String("file_name", name),
			slog.String("err", err.Error()),
		)
		d.notify(ctx, job.ChatID, fmt.Sprintf(format, name, err))
	}
	return failed
}

// output is one file to send back.
type output struct {
	name string
	data []byte
}

// sendAll sends outputs sequentially in order and returns how many arrived.
// Nil entries are skipped.
func (d *Dispatcher) sendAll(ctx context.Context, chatID int64, outs []*output) int {
	sent := 0
	for _, o := range outs {
		if o == nil {
			continue
		}
		if err := d.msg.SendDocument(ctx, chatID, o.name, o.data); err != nil {
			d.notify(ctx, chatID, SendFailureText(o.name, err))
			continue
		}
		sent++
	}
	return sent
}

// notify sends a best-effort text; failures are logged and swallowed.
func (d *Dispatcher) notify(ctx context.Context, chatID int64, text string) {
	if err := d.msg.SendText(ctx, chatID, text); err != nil {
		logger.Warn(ctx, logger.ComponentDispatch, "notify.fail",
			slog.String("status", "fail"),
			slog.Int64("chat_id", chatID),
			slog.String("err", err.Error()),
		)
	}
}

func (d *Dispatcher) notifyMenu(ctx context.Context, chatID int64, text string) {
	if err := d.msg.SendMenu(ctx, chatID, text, MenuMain); err != nil {
		logger.Warn(ctx, logger.ComponentDispatch, "notify.fail",
			slog.String("status", "fail"),
			slog.Int64("chat_id", chatID),
			slog.String("err", err.Error()),
		)
	}
}
