package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/vcfbot/core/logger"
)

// OrderedPoller wraps a poller and hands the updates of each sender to a
// worker of its own. One user's updates are processed in arrival order while
// different users proceed in parallel. The bot must run with
// Settings.Synchronous so handlers execute on the worker goroutine.
// Updates without a sender go to the bot unchanged.
type OrderedPoller struct {
	Poller tele.Poller
	// Process handles one update; nil means bot.ProcessUpdate.
	Process func(tele.Update)

	mu     sync.Mutex
	queues map[int64][]tele.Update
	wg     sync.WaitGroup
}

// NewOrderedPoller wraps inner.
func NewOrderedPoller(inner tele.Poller) *OrderedPoller {
	return &OrderedPoller{Poller: inner}
}

// Poll implements tele.Poller. On stop it waits for the inner poller and for
// every queued update to finish.
func (p *OrderedPoller) Poll(b *tele.Bot, dest chan tele.Update, stop chan struct{}) {
	process := p.Process
	if process == nil {
		process = b.ProcessUpdate
	}
	p.mu.Lock()
	if p.queues == nil {
		p.queues = make(map[int64][]tele.Update)
	}
	p.mu.Unlock()

	middle := make(chan tele.Update, cap(dest))
	stopInner := make(chan struct{})
	innerDone := make(chan struct{})
	go func() {
		p.Poller.Poll(b, middle, stopInner)
		close(innerDone)
	}()

	shutdown := func() {
		close(stopInner)
		<-innerDone
		p.wg.Wait()
	}

	for {
		select {
		case <-stop:
			shutdown()
			return
		case upd := <-middle:
			if id := senderID(upd); id != 0 {
				p.enqueue(id, upd, process)
				continue
			}
			select {
			case dest <- upd:
			case <-stop:
				shutdown()
				return
			}
		}
	}
}

// Pending returns the number of users with queued or running updates.
func (p *OrderedPoller) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.queues)
}

func (p *OrderedPoller) enqueue(userID int64, upd tele.Update, process func(tele.Update)) {
	p.mu.Lock()
	q, running := p.queues[userID]
	p.queues[userID] = append(q, upd)
	p.mu.Unlock()
	if running {
		return
	}
	p.wg.Add(1)
	go p.drain(userID, process)
}

// drain runs the user's updates one by one and exits once the queue is empty.
func (p *OrderedPoller) drain(userID int64, process func(tele.Update)) {
	defer p.wg.Done()
	for {
		p.mu.Lock()
		q := p.queues[userID]
		if len(q) == 0 {
			delete(p.queues, userID)
			p.mu.Unlock()
			return
		}
		upd := q[0]
		p.queues[userID] = q[1:]
		p.mu.Unlock()

		runUpdate(userID, upd, process)
	}
}

func runUpdate(userID int64, upd tele.Update, process func(tele.Update)) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error(context.Background(), logger.ComponentTG, "update.panic",
				slog.String("status", "fail"),
				slog.Int64("user_id", userID),
				slog.Int("update_id", upd.ID),
				slog.String("err", fmt.Sprint(r)),
			)
		}
	}()
	process(upd)
}

func senderID(upd tele.Update) int64 {
	var u *tele.User
	switch {
	case upd.Message != nil:
		u = upd.Message.Sender
	case upd.EditedMessage != nil:
		u = upd.EditedMessage.Sender
	case upd.Callback != nil:
		u = upd.Callback.Sender
	case upd.Query != nil:
		u = upd.Query.Sender
	}
	if u == nil {
		return 0
	}
	return u.ID
}
