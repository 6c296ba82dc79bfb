package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/m3rciful/vcfbot/core/batch"
	"github.com/m3rciful/vcfbot/core/blobstore"
	"github.com/m3rciful/vcfbot/core/dispatch"
	"github.com/m3rciful/vcfbot/core/logger"
	"github.com/m3rciful/vcfbot/core/metrics"
	"github.com/m3rciful/vcfbot/core/state"
	"github.com/m3rciful/vcfbot/core/vcard"
)

type transitionKey struct {
	state state.State
	kind  EventKind
}

type step func(c *Controller, ctx context.Context, ev Event) error

// transitions lists the text and document events each state accepts.
// Anything else is answered with the state's guidance message.
var transitions = map[transitionKey]step{
	{state.StateIdle, EventDocument}:                (*Controller).onIdleDocument,
	{state.StateAwaitingContactsPerFile, EventText}: (*Controller).onContactsPerFile,
	{state.StateAwaitingFileName, EventText}:        (*Controller).onFileName,
	{state.StateAwaitingBaseContactName, EventText}: (*Controller).onBaseContactName,
	{state.StateAwaitingData, EventText}:            (*Controller).onDataText,
	{state.StateAwaitingInstruction, EventText}:     (*Controller).onInstruction,
	{state.StateAwaitingFiles, EventDocument}:       (*Controller).onUpload,
}

func (c *Controller) onContactsPerFile(ctx context.Context, ev Event) error {
	n, err := strconv.Atoi(ev.Text)
	if err != nil {
		return c.reply(ctx, ev, msgNotNumber)
	}
	if n <= 0 {
		return c.reply(ctx, ev, msgNotPositive)
	}
	ok := c.advance(ev.UserID, state.StateAwaitingContactsPerFile, func(s *state.Session) {
		s.Config.ContactsPerFile = n
		s.State = state.StateAwaitingFileName
	})
	if !ok {
		return c.stale(ctx, ev)
	}
	return c.reply(ctx, ev, msgAskFileName)
}

func (c *Controller) onFileName(ctx context.Context, ev Event) error {
	name := strings.TrimSpace(ev.Text)
	if name == "" {
		return c.reply(ctx, ev, msgEmptyFileName)
	}
	ok := c.advance(ev.UserID, state.StateAwaitingFileName, func(s *state.Session) {
		s.Config.FileName = name
		s.State = state.StateAwaitingBaseContactName
	})
	if !ok {
		return c.stale(ctx, ev)
	}
	return c.reply(ctx, ev, msgAskBaseContact)
}

func (c *Controller) onBaseContactName(ctx context.Context, ev Event) error {
	base := strings.TrimSpace(ev.Text)
	if base == "" {
		return c.reply(ctx, ev, msgEmptyBaseContact)
	}
	ok := c.advance(ev.UserID, state.StateAwaitingBaseContactName, func(s *state.Session) {
		s.Config.BaseContactName = base
		s.State = state.StateAwaitingData
	})
	if !ok {
		return c.stale(ctx, ev)
	}
	return c.msg.SendMenu(ctx, ev.ChatID, msgChooseInput, dispatch.MenuInputMethod)
}

type dataOutcome int

const (
	dataStale dataOutcome = iota
	dataUseButtons
	dataRestart
	dataDispatch
)

// onDataText handles pasted numbers. They are dispatched right away from this
// one message; the batch collector is not involved.
func (c *Controller) onDataText(ctx context.Context, ev Event) error {
	numbers := vcard.ExtractNumbers(ev.Text)
	var (
		outcome dataOutcome
		cfg     state.Config
	)
	_ = c.store.Do(ev.UserID, func(s *state.Session) error {
		switch {
		case s.State != state.StateAwaitingData || s.Processing:
			outcome = dataStale
		case s.InputMethod != state.InputRaw:
			outcome = dataUseButtons
		case len(numbers) == 0:
			s.State = state.StateAwaitingContactsPerFile
			s.InputMethod = state.InputUnset
			outcome = dataRestart
		default:
			s.Processing = true
			cfg = s.Config
			outcome = dataDispatch
		}
		return nil
	})

	switch outcome {
	case dataUseButtons:
		return c.reply(ctx, ev, msgUseButtons)
	case dataRestart:
		return c.reply(ctx, ev, msgAskContactsPerFile)
	case dataDispatch:
		c.runner.Run(context.WithoutCancel(ctx), dispatch.Job{
			UserID:  ev.UserID,
			ChatID:  ev.ChatID,
			Mode:    state.ModeTextToVCF,
			Numbers: numbers,
			Config:  cfg,
		})
		return nil
	}
	return c.stale(ctx, ev)
}

func (c *Controller) onInstruction(ctx context.Context, ev Event) error {
	var (
		reply   string
		applied bool
	)
	apply := func(mode state.Mode, fn func(*state.Session)) {
		_ = c.store.Do(ev.UserID, func(s *state.Session) error {
			if s.State != state.StateAwaitingInstruction || s.Mode != mode || s.Processing {
				return nil
			}
			fn(s)
			s.State = state.StateAwaitingFiles
			s.Files = nil
			applied = true
			return nil
		})
	}

	switch mode := c.store.GetOrCreate(ev.UserID).Mode; mode {
	case state.ModeAddContact:
		name, phone, ok := vcard.SplitNamePhone(ev.Text)
		if !ok || phone == "+" {
			return c.reply(ctx, ev, msgAddContactFormat)
		}
		apply(mode, func(s *state.Session) {
			s.Instruction.AddName = name
			s.Instruction.AddPhone = phone
		})
		reply = fmt.Sprintf(fmtContactSaved, name, phone)
	case state.ModeRenameContacts:
		name := strings.TrimSpace(ev.Text)
		if name == "" {
			return c.reply(ctx, ev, msgEmptyContactName)
		}
		apply(mode, func(s *state.Session) { s.Instruction.NewContactName = name })
		reply = msgContactNameSaved
	case state.ModeRenameFiles:
		name := strings.TrimSpace(ev.Text)
		if name == "" {
			return c.reply(ctx, ev, msgEmptyNewFileName)
		}
		apply(mode, func(s *state.Session) { s.Instruction.NewFileName = name })
		reply = msgFileNameSaved
	}
	if !applied {
		return c.stale(ctx, ev)
	}
	return c.reply(ctx, ev, reply)
}

// onUpload stores the document and hands it to the collector. Accepted
// uploads get no reply; the batch result follows once the window closes.
func (c *Controller) onUpload(ctx context.Context, ev Event) error {
	if c.blobs == nil || c.collector == nil {
		return errNoStore
	}
	doc := ev.Document
	data, err := doc.Fetch(ctx)
	if err != nil {
		return fmt.Errorf("download %s: %w", doc.Name, err)
	}
	ref := state.FileRef{Key: blobstore.NewKey(), Name: doc.Name, Size: int64(len(data))}
	if err := c.blobs.Write(ctx, ref.Key, data); err != nil {
		return fmt.Errorf("store %s: %w", doc.Name, err)
	}
	if _, err := c.collector.Add(ctx, ev.UserID, ev.ChatID, ref); err != nil {
		if delErr := c.blobs.Delete(ctx, ref.Key); delErr != nil {
			logger.Warn(ctx, logger.ComponentBlob, "blob.cleanup",
				slog.String("status", "fail"),
				slog.String("err", delErr.Error()),
			)
		}
		if errors.Is(err, batch.ErrBusy) {
			return c.reply(ctx, ev, msgBusy)
		}
		return c.stale(ctx, ev)
	}
	return nil
}

func (c *Controller) onIdleDocument(ctx context.Context, ev Event) error {
	name := strings.ToLower(strings.TrimSpace(ev.Document.Name))
	switch {
	case vcard.IsCardFile(name):
		return c.reply(ctx, ev, msgUseMenu)
	case strings.HasSuffix(name, ".txt"), strings.HasSuffix(name, ".csv"):
		return c.quickConvert(ctx, ev)
	}
	return c.reply(ctx, ev, msgFileSaved)
}

// quickConvert turns a "Name,Phone" per line text file into contacts.vcf.
func (c *Controller) quickConvert(ctx context.Context, ev Event) error {
	data, err := ev.Document.Fetch(ctx)
	if err != nil {
		return fmt.Errorf("download %s: %w", ev.Document.Name, err)
	}
	contacts := vcard.ParseNamedLines(string(data))
	if len(contacts) == 0 {
		metrics.FilesProcessed.WithLabelValues("quick_convert", "fail").Inc()
		return c.reply(ctx, ev, msgNoContactsInTXT)
	}
	if err := c.msg.SendDocument(ctx, ev.ChatID, quickConvertName, []byte(vcard.BuildCards(contacts))); err != nil {
		metrics.FilesProcessed.WithLabelValues("quick_convert", "fail").Inc()
		c.notify(ctx, ev.ChatID, dispatch.SendFailureText(quickConvertName, err))
	} else {
		metrics.FilesProcessed.WithLabelValues("quick_convert", "ok").Inc()
	}
	logger.Info(ctx, logger.ComponentTG, "quick_convert.done",
		slog.Int64("user_id", ev.UserID),
		slog.String("file_name", ev.Document.Name),
		slog.Int("contacts", len(contacts)),
	)
	c.reset(ctx, ev.UserID)
	return c.msg.SendMenu(ctx, ev.ChatID, msgTaskCompleted, dispatch.MenuMain)
}
