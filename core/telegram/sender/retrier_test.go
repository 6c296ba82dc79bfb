package sender

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	tele "gopkg.in/telebot.v4"
)

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

var _ net.Error = timeoutErr{}

func fastRetrier() *Retrier {
	return NewRetrier(Options{MaxRetries: 2, RetryBackoff: time.Millisecond})
}

func TestRetrier_SucceedsAfterTransientErrors(t *testing.T) {
	r := fastRetrier()
	calls := 0
	err := r.Do(context.Background(), "send_document", "a.vcf", func() error {
		calls++
		if calls < 3 {
			return timeoutErr{}
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Zero(t, r.ErrorCount())
}

func TestRetrier_GivesUpAfterThreeAttempts(t *testing.T) {
	r := fastRetrier()
	calls := 0
	err := r.Do(context.Background(), "send_document", "a.vcf", func() error {
		calls++
		return timeoutErr{}
	})
	require.Error(t, err)
	assert.Equal(t, 3, calls)

	var derr *DeliveryError
	require.ErrorAs(t, err, &derr)
	assert.False(t, derr.Permanent())
	assert.Equal(t, 3, derr.Attempts())
	assert.Equal(t, "a.vcf", derr.Name)
	assert.Equal(t, uint64(1), r.ErrorCount())
}

func TestRetrier_PermanentErrorIsNotRetried(t *testing.T) {
	r := fastRetrier()
	calls := 0
	bad := &tele.Error{Code: 400, Description: "Bad Request: file is empty"}
	err := r.Do(context.Background(), "send_document", "empty.vcf", func() error {
		calls++
		return bad
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)

	var derr *DeliveryError
	require.ErrorAs(t, err, &derr)
	assert.True(t, derr.Permanent())
	assert.ErrorIs(t, err, bad)
}

func TestRetrier_BackoffIsLinear(t *testing.T) {
	clock := clockwork.NewFakeClock()
	r := NewRetrier(Options{MaxRetries: 2, RetryBackoff: 500 * time.Millisecond, Clock: clock})

	calls := make(chan time.Time, 3)
	done := make(chan error, 1)
	go func() {
		done <- r.Do(context.Background(), "send_message", "message", func() error {
			calls <- clock.Now()
			return timeoutErr{}
		})
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	first := <-calls
	require.NoError(t, clock.BlockUntilContext(ctx, 1))
	clock.Advance(500 * time.Millisecond)
	second := <-calls
	require.NoError(t, clock.BlockUntilContext(ctx, 1))
	clock.Advance(time.Second)
	third := <-calls

	assert.Equal(t, 500*time.Millisecond, second.Sub(first))
	assert.Equal(t, time.Second, third.Sub(second))
	assert.Error(t, <-done)
}

func TestRetrier_CancelledContextStops(t *testing.T) {
	r := fastRetrier()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	calls := 0
	err := r.Do(ctx, "send_message", "message", func() error {
		calls++
		return nil
	})
	require.Error(t, err)
	assert.Zero(t, calls)
}

func TestTransient(t *testing.T) {
	assert.True(t, Transient(timeoutErr{}))
	assert.True(t, Transient(&net.OpError{Op: "dial", Err: errors.New("connection refused")}))
	assert.True(t, Transient(&tele.Error{Code: 502, Description: "Bad Gateway"}))
	assert.True(t, Transient(errors.New("telegram: Too Many Requests (429)")))
	assert.False(t, Transient(&tele.Error{Code: 400, Description: "Bad Request"}))
	assert.False(t, Transient(context.Canceled))
	assert.False(t, Transient(nil))
}

func TestSanitizeErrorMessage(t *testing.T) {
	err := errors.New(`Post "https://api.telegram.org/bot123456:AAbb-cc_DD/sendDocument": timeout`)
	assert.NotContains(t, sanitizeErrorMessage(err), "123456:AAbb")
	assert.Contains(t, sanitizeErrorMessage(err), "bot<redacted>")
}
