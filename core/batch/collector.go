// Package batch groups uploads of one user into a batch that closes after a
// fixed period without new uploads.
package batch

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/m3rciful/vcfbot/core/logger"
	"github.com/m3rciful/vcfbot/core/metrics"
	"github.com/m3rciful/vcfbot/core/state"
)

// Window is the inactivity period that closes a batch.
const Window = 5 * time.Second

var (
	// ErrNotCollecting is returned when the session does not accept uploads.
	ErrNotCollecting = errors.New("batch: session is not collecting files")
	// ErrBusy is returned while the previous batch of the session is processed.
	ErrBusy = errors.New("batch: previous batch is still being processed")
)

// Batch is a closed upload burst together with the session answers that
// were current when it closed.
type Batch struct {
	UserID      int64
	ChatID      int64
	Mode        state.Mode
	Files       []state.FileRef
	Config      state.Config
	Instruction state.Instruction
}

// Handler processes a closed batch. The session stays marked as processing
// until the handler resets it.
type Handler func(ctx context.Context, b Batch)

// Collector buffers uploads into sessions and fires Handler once per burst.
type Collector struct {
	store  *state.Store
	clock  clockwork.Clock
	window time.Duration
	handle Handler
}

// New constructs a Collector. A non-positive window selects Window.
func New(store *state.Store, clock clockwork.Clock, window time.Duration, handle Handler) *Collector {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if window <= 0 {
		window = Window
	}
	return &Collector{store: store, clock: clock, window: window, handle: handle}
}

// Add appends ref to the user's buffer and restarts the inactivity timer.
// It returns the buffer length after the append.
func (c *Collector) Add(ctx context.Context, userID, chatID int64, ref state.FileRef) (int, error) {
	fireCtx := context.WithoutCancel(ctx)
	var n int
	err := c.store.Do(userID, func(s *state.Session) error {
		if !s.AwaitingFiles() {
			return ErrNotCollecting
		}
		if s.Processing {
			return ErrBusy
		}
		s.Files = append(s.Files, ref)
		s.Artifacts = append(s.Artifacts, ref.Key)
		n = len(s.Files)
		s.Arm(func(gen uint64) state.Timer {
			return c.clock.AfterFunc(c.window, func() {
				c.fire(fireCtx, userID, chatID, gen)
			})
		})
		return nil
	})
	if err != nil {
		return 0, err
	}
	logger.Debug(ctx, logger.ComponentBatch, "batch.add",
		slog.Int64("user_id", userID),
		slog.String("file_name", ref.Name),
		slog.Int64("size_bytes", ref.Size),
		slog.Int("files", n),
	)
	return n, nil
}

func (c *Collector) fire(ctx context.Context, userID, chatID int64, gen uint64) {
	var (
		b     Batch
		ready bool
	)
	_ = c.store.Do(userID, func(s *state.Session) error {
		if !s.Current(gen) {
			return nil
		}
		s.Fired()
		if !s.AwaitingFiles() || len(s.Files) == 0 || s.Processing {
			return nil
		}
		s.Processing = true
		b = Batch{
			UserID:      userID,
			ChatID:      chatID,
			Mode:        s.Mode,
			Files:       append([]state.FileRef(nil), s.Files...),
			Config:      s.Config,
			Instruction: s.Instruction,
		}
		ready = true
		return nil
	})
	if !ready {
		logger.Debug(ctx, logger.ComponentBatch, "batch.stale",
			slog.String("status", "skip"),
			slog.Int64("user_id", userID),
		)
		return
	}

	metrics.BatchSize.Observe(float64(len(b.Files)))
	logger.Info(ctx, logger.ComponentBatch, "batch.close",
		slog.String("status", "ok"),
		slog.Int64("user_id", userID),
		slog.String("batch_mode", string(b.Mode)),
		slog.Int("files", len(b.Files)),
	)
	c.handle(ctx, b)
}
