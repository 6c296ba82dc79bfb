package conversation

import (
	"strings"

	"github.com/m3rciful/vcfbot/core/state"
)

// Action is a button press decoded from callback data.
type Action int

const (
	ActionUnknown Action = iota
	ActionTextToVCF
	ActionCount
	ActionAddContact
	ActionRenameContacts
	ActionRenameFiles
	ActionUploadFiles
	ActionPasteNumbers
	ActionBackToMenu
	ActionVerifyMembership
)

var actionData = map[Action]string{
	ActionTextToVCF:        "text_to_vcf",
	ActionCount:            "count",
	ActionAddContact:       "add_contact",
	ActionRenameContacts:   "rename_contacts",
	ActionRenameFiles:      "rename_files",
	ActionUploadFiles:      "upload_txt_files",
	ActionPasteNumbers:     "input_raw_numbers",
	ActionBackToMenu:       "back_to_menu",
	ActionVerifyMembership: "check_join",
}

var actionByData = func() map[string]Action {
	m := make(map[string]Action, len(actionData))
	for a, d := range actionData {
		m[d] = a
	}
	return m
}()

// ParseAction decodes callback data. Anything unrecognized is ActionUnknown.
func ParseAction(data string) Action {
	if a, ok := actionByData[strings.TrimSpace(data)]; ok {
		return a
	}
	return ActionUnknown
}

// Data returns the callback data carried by the action's button.
func (a Action) Data() string {
	return actionData[a]
}

func (a Action) String() string {
	if d, ok := actionData[a]; ok {
		return d
	}
	return "unknown"
}

// Mode returns the operation a main menu action starts, or ModeNone.
func (a Action) Mode() state.Mode {
	switch a {
	case ActionTextToVCF:
		return state.ModeTextToVCF
	case ActionCount:
		return state.ModeCount
	case ActionAddContact:
		return state.ModeAddContact
	case ActionRenameContacts:
		return state.ModeRenameContacts
	case ActionRenameFiles:
		return state.ModeRenameFiles
	}
	return state.ModeNone
}

// Actions lists every known action in declaration order.
func Actions() []Action {
	out := make([]Action, 0, len(actionData))
	for a := ActionTextToVCF; a <= ActionVerifyMembership; a++ {
		out = append(out, a)
	}
	return out
}
