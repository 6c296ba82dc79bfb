// Package keyboard renders the inline menus of the bot.
package keyboard

import (
	tele "gopkg.in/telebot.v4"

	coreconfig "github.com/m3rciful/vcfbot/core/config"
	"github.com/m3rciful/vcfbot/core/conversation"
	"github.com/m3rciful/vcfbot/core/dispatch"
)

// Menus holds the prebuilt keyboards.
type Menus struct {
	main  *tele.ReplyMarkup
	input *tele.ReplyMarkup
	join  *tele.ReplyMarkup
}

// NewMenus builds the keyboards. The join menu links every channel.
func NewMenus(channels []coreconfig.Channel) *Menus {
	join := make([]InlineBtn, 0, len(channels)+1)
	for _, ch := range channels {
		join = append(join, InlineBtn{Text: "Join " + ch.Username, URL: ch.InviteURL})
	}
	join = append(join, InlineBtn{Text: "Verify Membership", Data: conversation.ActionVerifyMembership.Data()})

	return &Menus{
		main: InlineButtons([]InlineBtn{
			{Text: "📄 TXT / Numbers → VCF", Data: conversation.ActionTextToVCF.Data()},
			{Text: "🔢 Count Numbers", Data: conversation.ActionCount.Data()},
			{Text: "➕ Add Contact", Data: conversation.ActionAddContact.Data()},
			{Text: "👤 Rename Contacts", Data: conversation.ActionRenameContacts.Data()},
			{Text: "📝 Rename VCF Files", Data: conversation.ActionRenameFiles.Data()},
		}),
		input: InlineButtons([]InlineBtn{
			{Text: "📤 Upload TXT Files", Data: conversation.ActionUploadFiles.Data()},
			{Text: "📝 Input Raw Numbers", Data: conversation.ActionPasteNumbers.Data()},
		}),
		join: InlineButtons(join),
	}
}

// Markup returns the keyboard of menu, or nil for MenuNone.
func (m *Menus) Markup(menu dispatch.Menu) *tele.ReplyMarkup {
	switch menu {
	case dispatch.MenuMain:
		return m.main
	case dispatch.MenuInputMethod:
		return m.input
	case dispatch.MenuJoin:
		return m.join
	}
	return nil
}
