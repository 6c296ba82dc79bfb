package app

import (
	"context"
	"log/slog"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/vcfbot/core/logger"
	tghelpers "github.com/m3rciful/vcfbot/core/telegram/helpers"
)

const msgTooFast = "⏳ Too fast, that message was skipped. Please wait a moment and send it again."

// limitedNotice tells the user their update was dropped by the rate limiter.
func limitedNotice(send func(ctx context.Context, chatID int64, text string) error) tele.HandlerFunc {
	return func(c tele.Context) error {
		chat := c.Chat()
		if chat == nil {
			return nil
		}
		ctx := tghelpers.BuildContext(c)
		if err := send(ctx, chat.ID, msgTooFast); err != nil {
			logger.Warn(ctx, logger.ComponentTG, "rate_limit.notice",
				slog.String("status", "fail"),
				slog.Int64("chat_id", chat.ID),
				slog.String("err", err.Error()),
			)
		}
		return nil
	}
}
