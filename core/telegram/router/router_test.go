package router

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/vcfbot/core/conversation"
	tg "github.com/m3rciful/vcfbot/core/telegram"
)

type recordingHandler struct {
	mu     sync.Mutex
	events []conversation.Event
}

func (r *recordingHandler) Handle(_ context.Context, ev conversation.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

func (r *recordingHandler) last(t *testing.T) conversation.Event {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	require.NotEmpty(t, r.events)
	return r.events[len(r.events)-1]
}

type stubFiles map[string][]byte

func (s stubFiles) Download(_ context.Context, f *tele.File) ([]byte, error) {
	return s[f.FileID], nil
}

func testBot(t *testing.T) *tele.Bot {
	t.Helper()
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":true,"result":true}`))
	}))
	t.Cleanup(api.Close)
	bot, err := tele.NewBot(tele.Settings{Offline: true, URL: api.URL, Token: "1:test"})
	require.NoError(t, err)
	return bot
}

func setup(t *testing.T) (*tele.Bot, *tg.Registry, *recordingHandler) {
	t.Helper()
	reg := tg.NewRegistry()
	h := &recordingHandler{}
	require.NoError(t, RegisterConversation(reg, h, stubFiles{"f1": []byte("+15550000001")}))
	return testBot(t), reg, h
}

func route(routes []tg.Route, endpoint string) tele.HandlerFunc {
	for _, r := range routes {
		if r.Endpoint == endpoint {
			return r.Handler
		}
	}
	return nil
}

func TestRegisterConversation_Commands(t *testing.T) {
	_, reg, _ := setup(t)
	visible := reg.ListCommands(true)
	require.Len(t, visible, 2)
	assert.Equal(t, "/help", visible[0].Text)
	assert.Equal(t, "/start", visible[1].Text)
	assert.Len(t, reg.ListCallbacks(), len(conversation.Actions()))
}

func TestTextRoute_ForwardsText(t *testing.T) {
	bot, reg, h := setup(t)
	handler := route(TextRoutes(reg, TextOptions{}), tele.OnText)

	upd := tele.Update{ID: 1, Message: &tele.Message{
		ID:     9,
		Sender: &tele.User{ID: 42},
		Chat:   &tele.Chat{ID: 42},
		Text:   "10",
	}}
	require.NoError(t, handler(bot.NewContext(upd)))

	ev := h.last(t)
	assert.Equal(t, conversation.EventText, ev.Kind)
	assert.Equal(t, int64(42), ev.UserID)
	assert.Equal(t, "10", ev.Text)
	assert.Equal(t, 9, ev.MessageID)
}

func TestTextRoute_CommandNamesWithoutSlashAreText(t *testing.T) {
	bot, reg, h := setup(t)
	handler := route(TextRoutes(reg, TextOptions{}), tele.OnText)

	upd := tele.Update{ID: 1, Message: &tele.Message{Sender: &tele.User{ID: 1}, Chat: &tele.Chat{ID: 1}, Text: "help"}}
	require.NoError(t, handler(bot.NewContext(upd)))
	assert.Equal(t, conversation.EventText, h.last(t).Kind)

	upd.Message.Text = "/help"
	require.NoError(t, handler(bot.NewContext(upd)))
	assert.Equal(t, conversation.EventHelp, h.last(t).Kind)
}

func TestDocumentRoute_LazyFetch(t *testing.T) {
	bot, reg, h := setup(t)
	handler := route(TextRoutes(reg, TextOptions{}), tele.OnDocument)

	doc := &tele.Document{File: tele.File{FileID: "f1", FileSize: 12}, FileName: "leads.txt"}
	upd := tele.Update{ID: 2, Message: &tele.Message{Sender: &tele.User{ID: 5}, Chat: &tele.Chat{ID: 5}, Document: doc}}
	require.NoError(t, handler(bot.NewContext(upd)))

	ev := h.last(t)
	require.NotNil(t, ev.Document)
	assert.Equal(t, "leads.txt", ev.Document.Name)
	assert.Equal(t, int64(12), ev.Document.Size)
	data, err := ev.Document.Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "+15550000001", string(data))
}

func TestCallbackRoute_ForwardsActions(t *testing.T) {
	bot, reg, h := setup(t)
	handler := CallbackRoute(reg, CallbackOptions{}).Handler

	for _, data := range []string{"count", "\fcheck_join", "bogus"} {
		upd := tele.Update{ID: 3, Callback: &tele.Callback{
			ID:      "cb",
			Sender:  &tele.User{ID: 7},
			Message: &tele.Message{ID: 70, Chat: &tele.Chat{ID: 7}},
			Data:    data,
		}}
		require.NoError(t, handler(bot.NewContext(upd)))
	}

	require.Len(t, h.events, 3)
	assert.Equal(t, "count", h.events[0].Text)
	assert.Equal(t, "check_join", h.events[1].Text)
	assert.Equal(t, 70, h.events[1].MessageID)
	assert.Equal(t, "bogus", h.events[2].Text)
	for _, ev := range h.events {
		assert.Equal(t, conversation.EventAction, ev.Kind)
	}
}

func TestEventFrom_NoSender(t *testing.T) {
	bot := testBot(t)
	_, ok := EventFrom(bot.NewContext(tele.Update{ID: 1}), conversation.EventText, nil)
	assert.False(t, ok)
}
