package router

import (
	"context"
	"fmt"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/vcfbot/core/conversation"
	tg "github.com/m3rciful/vcfbot/core/telegram"
	"github.com/m3rciful/vcfbot/core/telegram/callbacks"
	"github.com/m3rciful/vcfbot/core/telegram/commands"
	tghelpers "github.com/m3rciful/vcfbot/core/telegram/helpers"
)

// EventHandler consumes conversation events.
type EventHandler interface {
	Handle(ctx context.Context, ev conversation.Event) error
}

// FileSource downloads uploaded documents.
type FileSource interface {
	Download(ctx context.Context, file *tele.File) ([]byte, error)
}

// RegisterConversation binds /start, /help, every menu action, free text and
// documents to h.
func RegisterConversation(reg *tg.Registry, h EventHandler, files FileSource) error {
	if reg == nil || h == nil {
		return fmt.Errorf("router: registry and handler are required")
	}
	reg.RegisterCommand("/start", commands.Command{
		Handler:     forward(h, files, conversation.EventStart),
		Description: "Open the main menu",
	})
	reg.RegisterCommand("/help", commands.Command{
		Handler:     forward(h, files, conversation.EventHelp),
		Description: "How the bot works",
	})
	action := forward(h, files, conversation.EventAction)
	for _, a := range conversation.Actions() {
		if err := reg.RegisterCallback(a.Data(), action); err != nil {
			return err
		}
	}
	reg.SetCallbackNotFound(action)
	reg.SetTextFallback(forward(h, files, conversation.EventText))
	reg.SetDocumentHandler(forward(h, files, conversation.EventDocument))
	return nil
}

func forward(h EventHandler, files FileSource, kind conversation.EventKind) tele.HandlerFunc {
	return func(c tele.Context) error {
		ev, ok := EventFrom(c, kind, files)
		if !ok {
			return nil
		}
		return h.Handle(tghelpers.BuildContext(c), ev)
	}
}

// EventFrom converts an update into a conversation event. It reports false
// for updates without a sender.
func EventFrom(c tele.Context, kind conversation.EventKind, files FileSource) (conversation.Event, bool) {
	user := c.Sender()
	if user == nil {
		return conversation.Event{}, false
	}
	ev := conversation.Event{Kind: kind, UserID: user.ID, ChatID: user.ID}
	if chat := c.Chat(); chat != nil {
		ev.ChatID = chat.ID
	}
	if msg := c.Message(); msg != nil {
		ev.MessageID = msg.ID
	}

	switch kind {
	case conversation.EventAction:
		ev.Text = callbacks.CallbackKey(c)
	case conversation.EventText:
		ev.Text = c.Text()
	case conversation.EventDocument:
		msg := c.Message()
		if msg == nil || msg.Document == nil {
			return ev, true
		}
		doc := msg.Document
		file := doc.File
		ev.Document = &conversation.Document{
			Name: doc.FileName,
			Size: doc.FileSize,
			Fetch: func(ctx context.Context) ([]byte, error) {
				if files == nil {
					return nil, fmt.Errorf("router: no file source")
				}
				return files.Download(ctx, &file)
			},
		}
	}
	return ev, true
}
