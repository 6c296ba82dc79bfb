package telegram

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tele "gopkg.in/telebot.v4"
)

type feedPoller struct {
	updates []tele.Update
	stopped chan struct{}
}

func (p *feedPoller) Poll(_ *tele.Bot, dest chan tele.Update, stop chan struct{}) {
	for _, u := range p.updates {
		dest <- u
	}
	<-stop
	close(p.stopped)
}

func userMessage(id int, userID int64, text string) tele.Update {
	return tele.Update{ID: id, Message: &tele.Message{
		Sender: &tele.User{ID: userID},
		Chat:   &tele.Chat{ID: userID},
		Text:   text,
	}}
}

func TestOrderedPoller_KeepsPerUserOrder(t *testing.T) {
	inner := &feedPoller{
		stopped: make(chan struct{}),
		updates: []tele.Update{
			userMessage(1, 10, "a.vcf"),
			userMessage(2, 20, "x"),
			userMessage(3, 10, "b.vcf"),
			userMessage(4, 10, "c.vcf"),
			{ID: 5},
		},
	}

	var (
		mu   sync.Mutex
		seen = map[int64][]string{}
		done sync.WaitGroup
	)
	done.Add(4)
	otherRan := make(chan struct{})
	p := NewOrderedPoller(inner)
	p.Process = func(u tele.Update) {
		defer done.Done()
		if u.Message.Text == "a.vcf" {
			// the other user is not held up by this one
			<-otherRan
			time.Sleep(20 * time.Millisecond)
		}
		if u.Message.Sender.ID == 20 {
			close(otherRan)
		}
		mu.Lock()
		seen[u.Message.Sender.ID] = append(seen[u.Message.Sender.ID], u.Message.Text)
		mu.Unlock()
	}

	dest := make(chan tele.Update, 1)
	stop := make(chan struct{})
	pollDone := make(chan struct{})
	go func() {
		p.Poll(nil, dest, stop)
		close(pollDone)
	}()

	select {
	case u := <-dest:
		assert.Equal(t, 5, u.ID, "updates without a sender go to the bot")
	case <-time.After(time.Second):
		t.Fatal("sender-less update was not forwarded")
	}
	done.Wait()
	close(stop)
	<-pollDone
	<-inner.stopped

	assert.Equal(t, []string{"a.vcf", "b.vcf", "c.vcf"}, seen[10])
	assert.Equal(t, []string{"x"}, seen[20])
	assert.Zero(t, p.Pending())
}

func TestOrderedPoller_PanicDoesNotStopWorker(t *testing.T) {
	inner := &feedPoller{
		stopped: make(chan struct{}),
		updates: []tele.Update{userMessage(1, 10, "boom"), userMessage(2, 10, "ok")},
	}
	handled := make(chan string, 2)
	p := NewOrderedPoller(inner)
	p.Process = func(u tele.Update) {
		if u.Message.Text == "boom" {
			panic("handler failed")
		}
		handled <- u.Message.Text
	}

	stop := make(chan struct{})
	pollDone := make(chan struct{})
	go func() {
		p.Poll(nil, make(chan tele.Update), stop)
		close(pollDone)
	}()

	select {
	case got := <-handled:
		require.Equal(t, "ok", got)
	case <-time.After(time.Second):
		t.Fatal("update after a panic was not processed")
	}
	close(stop)
	<-pollDone
}

func TestSenderID(t *testing.T) {
	assert.Equal(t, int64(10), senderID(userMessage(1, 10, "x")))
	assert.Equal(t, int64(5), senderID(tele.Update{Callback: &tele.Callback{Sender: &tele.User{ID: 5}}}))
	assert.Zero(t, senderID(tele.Update{Message: &tele.Message{}}))
	assert.Zero(t, senderID(tele.Update{}))
}
