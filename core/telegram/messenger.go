package telegram

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/vcfbot/core/dispatch"
	"github.com/m3rciful/vcfbot/core/metrics"
	"github.com/m3rciful/vcfbot/core/telegram/keyboard"
	"github.com/m3rciful/vcfbot/core/telegram/sender"
)

// BotAPI is the part of *tele.Bot the Messenger uses.
type BotAPI interface {
	Send(to tele.Recipient, what interface{}, opts ...interface{}) (*tele.Message, error)
	Edit(msg tele.Editable, what interface{}, opts ...interface{}) (*tele.Message, error)
	File(file *tele.File) (io.ReadCloser, error)
}

// Messenger delivers conversation and dispatch output through the Bot API.
// Every call goes through the Retrier.
type Messenger struct {
	bot     BotAPI
	retrier *sender.Retrier
	menus   *keyboard.Menus
	maxSize int64
}

// NewMessenger constructs a Messenger. maxSize bounds downloads; 0 disables
// the bound.
func NewMessenger(bot BotAPI, retrier *sender.Retrier, menus *keyboard.Menus, maxSize int64) *Messenger {
	if retrier == nil {
		retrier = sender.NewRetrier(sender.DefaultOptions())
	}
	if menus == nil {
		menus = keyboard.NewMenus(nil)
	}
	return &Messenger{bot: bot, retrier: retrier, menus: menus, maxSize: maxSize}
}

// SendText sends plain text.
func (m *Messenger) SendText(ctx context.Context, chatID int64, text string) error {
	return m.send(ctx, "send.text", "message", func() error {
		_, err := m.bot.Send(tele.ChatID(chatID), text)
		return err
	})
}

// SendMenu sends text with the keyboard of menu.
func (m *Messenger) SendMenu(ctx context.Context, chatID int64, text string, menu dispatch.Menu) error {
	markup := m.menus.Markup(menu)
	return m.send(ctx, "send.menu", "message", func() error {
		if markup == nil {
			_, err := m.bot.Send(tele.ChatID(chatID), text)
			return err
		}
		_, err := m.bot.Send(tele.ChatID(chatID), text, markup)
		return err
	})
}

// SendDocument uploads data as a file called name.
func (m *Messenger) SendDocument(ctx context.Context, chatID int64, name string, data []byte) error {
	return m.send(ctx, "send.document", name, func() error {
		doc := &tele.Document{
			File:     tele.FromReader(bytes.NewReader(data)),
			FileName: name,
		}
		_, err := m.bot.Send(tele.ChatID(chatID), doc)
		return err
	})
}

// EditMenu replaces the text and keyboard of a sent message. Editing to the
// same content is not an error.
func (m *Messenger) EditMenu(ctx context.Context, chatID int64, messageID int, text string, menu dispatch.Menu) error {
	stored := tele.StoredMessage{MessageID: strconv.Itoa(messageID), ChatID: chatID}
	markup := m.menus.Markup(menu)
	return m.send(ctx, "edit.menu", "message", func() error {
		var err error
		if markup == nil {
			_, err = m.bot.Edit(stored, text)
		} else {
			_, err = m.bot.Edit(stored, text, markup)
		}
		if errors.Is(err, tele.ErrSameMessageContent) {
			return nil
		}
		return err
	})
}

// Download reads the content of file. Files larger than the configured
// bound are rejected without reading them whole.
func (m *Messenger) Download(ctx context.Context, file *tele.File) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var rc io.ReadCloser
	err := m.retrier.Do(ctx, "download", file.FileID, func() error {
		var ferr error
		rc, ferr = m.bot.File(file)
		return ferr
	})
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	r := io.Reader(rc)
	if m.maxSize > 0 {
		r = io.LimitReader(rc, m.maxSize+1)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("telegram: read file: %w", err)
	}
	if m.maxSize > 0 && int64(len(data)) > m.maxSize {
		return nil, fmt.Errorf("telegram: file exceeds %d bytes", m.maxSize)
	}
	return data, nil
}

func (m *Messenger) send(ctx context.Context, action, name string, run func() error) error {
	err := m.retrier.Do(ctx, action, name, run)
	if err == nil {
		metrics.MessagesSent.Inc()
	}
	return err
}
