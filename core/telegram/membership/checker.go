// Package membership checks that a user joined every required channel.
package membership

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/vcfbot/core/logger"
	"github.com/m3rciful/vcfbot/core/metrics"
)

// DefaultTimeout bounds one round of lookups.
const DefaultTimeout = 10 * time.Second

// API is the part of *tele.Bot the checker uses.
type API interface {
	ChatByUsername(name string) (*tele.Chat, error)
	ChatMemberOf(chat, user tele.Recipient) (*tele.ChatMember, error)
}

// Checker resolves channels once and checks membership in all of them in
// parallel.
type Checker struct {
	api      API
	channels []string
	timeout  time.Duration

	mu    sync.RWMutex
	chats map[string]*tele.Chat
}

// New constructs a Checker for the channel usernames. A non-positive timeout
// selects DefaultTimeout.
func New(api API, channels []string, timeout time.Duration) *Checker {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Checker{
		api:      api,
		channels: append([]string(nil), channels...),
		timeout:  timeout,
		chats:    make(map[string]*tele.Chat, len(channels)),
	}
}

// Channels returns the checked channel usernames.
func (c *Checker) Channels() []string {
	return append([]string(nil), c.channels...)
}

// IsMember reports whether userID is a member, administrator or creator of
// every channel. A failed lookup makes the check fail and is returned
// alongside false.
func (c *Checker) IsMember(ctx context.Context, userID int64) (bool, error) {
	if len(c.channels) == 0 {
		return true, nil
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	results := make([]bool, len(c.channels))
	errs := make([]error, len(c.channels))
	var g errgroup.Group
	for i, ch := range c.channels {
		g.Go(func() error {
			results[i], errs[i] = c.check(ctx, ch, userID)
			return nil
		})
	}
	_ = g.Wait()

	if err := errors.Join(errs...); err != nil {
		metrics.MembershipChecks.WithLabelValues("error").Inc()
		return false, err
	}
	for i, ok := range results {
		if !ok {
			metrics.MembershipChecks.WithLabelValues("not_member").Inc()
			logger.Debug(ctx, logger.ComponentAccess, "access.denied",
				slog.String("status", "skip"),
				slog.Int64("user_id", userID),
				slog.String("channel", c.channels[i]),
			)
			return false, nil
		}
	}
	metrics.MembershipChecks.WithLabelValues("member").Inc()
	return true, nil
}

func (c *Checker) check(ctx context.Context, channel string, userID int64) (bool, error) {
	type result struct {
		ok  bool
		err error
	}
	done := make(chan result, 1)
	go func() {
		chat, err := c.resolve(channel)
		if err != nil {
			done <- result{err: err}
			return
		}
		m, err := c.api.ChatMemberOf(chat, &tele.User{ID: userID})
		if err != nil {
			done <- result{err: fmt.Errorf("membership: %s: %w", channel, err)}
			return
		}
		done <- result{ok: Joined(m.Role)}
	}()
	select {
	case <-ctx.Done():
		return false, fmt.Errorf("membership: %s: %w", channel, ctx.Err())
	case r := <-done:
		return r.ok, r.err
	}
}

func (c *Checker) resolve(channel string) (*tele.Chat, error) {
	c.mu.RLock()
	chat, ok := c.chats[channel]
	c.mu.RUnlock()
	if ok {
		return chat, nil
	}
	chat, err := c.api.ChatByUsername(channel)
	if err != nil {
		return nil, fmt.Errorf("membership: resolve %s: %w", channel, err)
	}
	c.mu.Lock()
	c.chats[channel] = chat
	c.mu.Unlock()
	return chat, nil
}

// Joined reports whether a member status counts as joined.
func Joined(role tele.MemberStatus) bool {
	switch role {
	case tele.Member, tele.Administrator, tele.Creator:
		return true
	}
	return false
}
