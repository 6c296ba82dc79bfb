// Package conversation drives the per-user prompt sequence: menu, questions,
// input choice, file collection and dispatch. It consumes transport-neutral
// events and talks back through a Messenger.
package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/m3rciful/vcfbot/core/blobstore"
	"github.com/m3rciful/vcfbot/core/dispatch"
	"github.com/m3rciful/vcfbot/core/logger"
	"github.com/m3rciful/vcfbot/core/state"
)

// DefaultMaxUploadMB is the document size limit when none is configured.
const DefaultMaxUploadMB = 20

// Messenger sends and edits chat messages.
type Messenger interface {
	dispatch.Messenger
	EditMenu(ctx context.Context, chatID int64, messageID int, text string, menu dispatch.Menu) error
}

// MembershipChecker reports whether a user joined every required channel.
type MembershipChecker interface {
	IsMember(ctx context.Context, userID int64) (bool, error)
}

// Collector buffers uploads until the batch window closes.
type Collector interface {
	Add(ctx context.Context, userID, chatID int64, ref state.FileRef) (int, error)
}

// Runner executes a job synchronously.
type Runner interface {
	Run(ctx context.Context, job dispatch.Job)
}

// EventKind classifies inbound events.
type EventKind int

const (
	EventStart EventKind = iota
	EventHelp
	EventAction
	EventText
	EventDocument
)

func (k EventKind) String() string {
	switch k {
	case EventStart:
		return "start"
	case EventHelp:
		return "help"
	case EventAction:
		return "action"
	case EventText:
		return "text"
	case EventDocument:
		return "document"
	}
	return "unknown"
}

// Document is an uploaded file. Fetch downloads its content and is only
// called after the size gate passed.
type Document struct {
	Name  string
	Size  int64
	Fetch func(ctx context.Context) ([]byte, error)
}

// Event is one inbound update.
type Event struct {
	Kind   EventKind
	UserID int64
	ChatID int64
	// MessageID is the message carrying the pressed button.
	MessageID int
	// Text holds the message text, or the callback data of EventAction.
	Text     string
	Document *Document
}

// Options configures a Controller.
type Options struct {
	Blobs     blobstore.Store
	Collector Collector
	Runner    Runner
	// Members is optional; without it or without Channels the gate is open.
	Members  MembershipChecker
	Channels []string
	// MaxUploadMB rejects larger documents before download; 0 -> 20
	MaxUploadMB int
	Credit      string
}

// Controller applies events to sessions.
type Controller struct {
	store     *state.Store
	msg       Messenger
	blobs     blobstore.Store
	collector Collector
	runner    Runner
	members   MembershipChecker
	channels  []string
	maxMB     int
	credit    string
	events    *userLocks
}

// New constructs a Controller.
func New(store *state.Store, msg Messenger, opts Options) *Controller {
	if opts.MaxUploadMB <= 0 {
		opts.MaxUploadMB = DefaultMaxUploadMB
	}
	return &Controller{
		store:     store,
		msg:       msg,
		blobs:     opts.Blobs,
		collector: opts.Collector,
		runner:    opts.Runner,
		members:   opts.Members,
		channels:  append([]string(nil), opts.Channels...),
		maxMB:     opts.MaxUploadMB,
		credit:    opts.Credit,
		events:    newUserLocks(),
	}
}

// Handle applies ev to the sender's session. Events of one user run one at a
// time, downloads included, so uploads join the batch in the order they were
// handled. The returned error is for logging; the user has already been told
// whatever applies.
func (c *Controller) Handle(ctx context.Context, ev Event) error {
	release := c.events.lock(ev.UserID)
	defer release()

	sess := c.store.GetOrCreate(ev.UserID)
	logger.Debug(ctx, logger.ComponentTG, "conversation.event",
		slog.Int64("user_id", ev.UserID),
		slog.String("kind", ev.Kind.String()),
		slog.String("state", string(sess.State)),
		slog.String("batch_mode", string(sess.Mode)),
	)
	if sess.Processing && ev.Kind != EventHelp {
		return c.reply(ctx, ev, msgBusy)
	}

	switch ev.Kind {
	case EventStart:
		return c.onStart(ctx, ev)
	case EventHelp:
		return c.reply(ctx, ev, msgHelp)
	case EventAction:
		if err := c.onAction(ctx, ev); err != nil {
			c.notify(ctx, ev.ChatID, fmt.Sprintf(fmtActionError, err))
			return err
		}
		return nil
	case EventText:
		ev.Text = strings.TrimSpace(ev.Text)
		if ev.Text == "" {
			return c.reply(ctx, ev, msgEmpty)
		}
	case EventDocument:
		if ev.Document == nil {
			return nil
		}
		if limit := int64(c.maxMB) * 1024 * 1024; ev.Document.Size > limit {
			logger.Info(ctx, logger.ComponentTG, "document.too_large",
				slog.String("status", "skip"),
				slog.String("file_name", ev.Document.Name),
				slog.Int64("size_bytes", ev.Document.Size),
			)
			return c.reply(ctx, ev, fmt.Sprintf(fmtTooLarge, float64(ev.Document.Size)/(1024*1024), c.maxMB))
		}
	}

	step, ok := transitions[transitionKey{sess.State, ev.Kind}]
	if !ok {
		return c.reply(ctx, ev, guidance(sess))
	}
	err := step(c, ctx, ev)
	if err != nil && ev.Kind == EventDocument {
		c.notify(ctx, ev.ChatID, fmt.Sprintf(fmtFileError, err))
	}
	return err
}

func (c *Controller) onStart(ctx context.Context, ev Event) error {
	if !c.admit(ctx, ev) {
		return nil
	}
	c.reset(ctx, ev.UserID)
	return c.msg.SendMenu(ctx, ev.ChatID, welcome(c.credit), dispatch.MenuMain)
}

func (c *Controller) onAction(ctx context.Context, ev Event) error {
	action := ParseAction(ev.Text)
	if mode := action.Mode(); mode != state.ModeNone {
		if !c.admit(ctx, ev) {
			return nil
		}
		c.reset(ctx, ev.UserID)
		c.store.SetState(ev.UserID, firstState(mode), mode)
		return c.reply(ctx, ev, modePrompt(mode))
	}

	switch action {
	case ActionUploadFiles:
		ok := c.advance(ev.UserID, state.StateAwaitingData, func(s *state.Session) {
			s.InputMethod = state.InputFiles
			s.State = state.StateAwaitingFiles
			s.Files = nil
		})
		if !ok {
			return c.reply(ctx, ev, msgConfigFirst)
		}
		return c.reply(ctx, ev, msgUploadTXT)
	case ActionPasteNumbers:
		ok := c.advance(ev.UserID, state.StateAwaitingData, func(s *state.Session) {
			s.InputMethod = state.InputRaw
		})
		if !ok {
			return c.reply(ctx, ev, msgConfigFirst)
		}
		return c.reply(ctx, ev, msgPaste)
	case ActionBackToMenu:
		c.reset(ctx, ev.UserID)
		return c.msg.SendMenu(ctx, ev.ChatID, msgBackToMenu, dispatch.MenuMain)
	case ActionVerifyMembership:
		if !c.isMember(ctx, ev.UserID) {
			return c.msg.EditMenu(ctx, ev.ChatID, ev.MessageID, notMemberPrompt(c.channels), dispatch.MenuJoin)
		}
		c.reset(ctx, ev.UserID)
		return c.msg.EditMenu(ctx, ev.ChatID, ev.MessageID, msgMember, dispatch.MenuMain)
	}
	logger.Info(ctx, logger.ComponentTG, "action.unknown",
		slog.String("status", "skip"),
		slog.String("action", logger.SanitizeLimit(ev.Text, 64)),
	)
	return c.reply(ctx, ev, msgUnknownAction)
}

// admit runs the access gate and sends the join prompt when it fails.
func (c *Controller) admit(ctx context.Context, ev Event) bool {
	if c.isMember(ctx, ev.UserID) {
		return true
	}
	c.notifyMenu(ctx, ev.ChatID, joinPrompt(c.channels), dispatch.MenuJoin)
	return false
}

// isMember treats lookup errors as a failed check.
func (c *Controller) isMember(ctx context.Context, userID int64) bool {
	if c.members == nil || len(c.channels) == 0 {
		return true
	}
	ok, err := c.members.IsMember(ctx, userID)
	if err != nil {
		logger.Warn(ctx, logger.ComponentAccess, "access.check",
			slog.String("status", "fail"),
			slog.Int64("user_id", userID),
			slog.String("err", err.Error()),
		)
		return false
	}
	return ok
}

// advance applies fn when the session is in state from and no batch is
// processing. It reports whether fn ran.
func (c *Controller) advance(userID int64, from state.State, fn func(*state.Session)) bool {
	applied := false
	_ = c.store.Do(userID, func(s *state.Session) error {
		if s.State != from || s.Processing {
			return nil
		}
		fn(s)
		applied = true
		return nil
	})
	return applied
}

// reset clears the session and deletes the blobs it owned.
func (c *Controller) reset(ctx context.Context, userID int64) {
	artifacts := c.store.Reset(userID)
	if c.blobs == nil || len(artifacts) == 0 {
		return
	}
	if err := blobstore.DeleteAll(ctx, c.blobs, artifacts); err != nil {
		logger.Warn(ctx, logger.ComponentBlob, "blob.cleanup",
			slog.String("status", "fail"),
			slog.Int64("user_id", userID),
			slog.Int("count", len(artifacts)),
			slog.String("err", err.Error()),
		)
	}
}

// stale answers an event whose precondition changed under it.
func (c *Controller) stale(ctx context.Context, ev Event) error {
	return c.reply(ctx, ev, guidance(c.store.GetOrCreate(ev.UserID)))
}

func (c *Controller) reply(ctx context.Context, ev Event, text string) error {
	return c.msg.SendText(ctx, ev.ChatID, text)
}

func (c *Controller) notify(ctx context.Context, chatID int64, text string) {
	if err := c.msg.SendText(ctx, chatID, text); err != nil {
		logger.Warn(ctx, logger.ComponentTG, "notify.fail",
			slog.String("status", "fail"),
			slog.Int64("chat_id", chatID),
			slog.String("err", err.Error()),
		)
	}
}

func (c *Controller) notifyMenu(ctx context.Context, chatID int64, text string, menu dispatch.Menu) {
	if err := c.msg.SendMenu(ctx, chatID, text, menu); err != nil {
		logger.Warn(ctx, logger.ComponentTG, "notify.fail",
			slog.String("status", "fail"),
			slog.Int64("chat_id", chatID),
			slog.String("err", err.Error()),
		)
	}
}

var errNoStore = errors.New("conversation: no blob store configured")
