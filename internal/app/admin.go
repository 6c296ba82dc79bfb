package app

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	tele "gopkg.in/telebot.v4"

	coredatabase "github.com/m3rciful/vcfbot/core/database"
	"github.com/m3rciful/vcfbot/core/telegram/commands"
	tghelpers "github.com/m3rciful/vcfbot/core/telegram/helpers"
)

const historyLimit = 10

// TaskHistory lists the latest journal rows of a user.
type TaskHistory interface {
	Recent(ctx context.Context, userID int64, limit int) ([]coredatabase.TaskRow, error)
}

func (a *App) registerAdminCommands() {
	var history TaskHistory
	if a.journal != nil {
		history = a.journal
	}
	a.registry.RegisterCommand("/history", commands.Command{
		Handler: func(c tele.Context) error {
			ctx := tghelpers.BuildContext(c)
			text := historyReply(ctx, history, c.Message().Payload)
			return a.messenger.SendText(ctx, c.Chat().ID, text)
		},
		Description: "Recent tasks of a user",
		AdminOnly:   true,
	})
}

// historyReply answers "/history <user_id>".
func historyReply(ctx context.Context, history TaskHistory, payload string) string {
	if history == nil {
		return "Task journal is disabled."
	}
	userID, err := strconv.ParseInt(strings.TrimSpace(payload), 10, 64)
	if err != nil {
		return "Usage: /history <user_id>"
	}
	rows, err := history.Recent(ctx, userID, historyLimit)
	if err != nil {
		return fmt.Sprintf("Failed to read the journal: %v", err)
	}
	if len(rows) == 0 {
		return fmt.Sprintf("No tasks recorded for %d.", userID)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Last %d tasks of %d:\n", len(rows), userID)
	for _, r := range rows {
		fmt.Fprintf(&b, "\n%s %s %s: %d in, %d out, %d failed",
			r.CreatedAt.Format("2006-01-02 15:04"), r.Mode, r.Outcome, r.FilesIn, r.FilesOut, r.Failed)
		if r.Numbers > 0 {
			fmt.Fprintf(&b, ", %d numbers", r.Numbers)
		}
		fmt.Fprintf(&b, " (%d ms)", r.DurationMS)
	}
	return b.String()
}
