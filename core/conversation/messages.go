package conversation

import (
	"fmt"
	"strings"

	"github.com/m3rciful/vcfbot/core/state"
)

const (
	msgWelcome = "Aura VCF Bot\n\n" +
		"• TXT / Numbers → VCF\n" +
		"• Count numbers\n" +
		"• Add contact\n" +
		"• Rename contacts\n" +
		"• Rename VCF files\n\n"
	msgHelp = "How it works:\n\n" +
		"• TXT / Numbers → VCF: answer three questions, then upload TXT files or paste numbers.\n" +
		"• Count Numbers: upload TXT/VCF files to count contacts and unique numbers.\n" +
		"• Add Contact: send `Name,Phone`, then upload VCF files to append it.\n" +
		"• Rename Contacts: send a base name, then upload VCF files.\n" +
		"• Rename VCF Files: send a base file name, then upload VCF files.\n\n" +
		"Uploads are processed 5 seconds after the last file arrives.\n" +
		"Sending a TXT file without choosing an operation converts it to contacts.vcf.\n\n" +
		"Use /start to open the menu."

	msgAskContactsPerFile = "How many contacts per file?"
	msgAskFileName        = "What should be the base file name? (e.g., contacts)"
	msgAskBaseContact     = "What should be the base contact name? (e.g., Contact)"
	msgChooseInput        = "All questions answered! Now choose how to provide numbers:"
	msgAskAddContact      = "What contact should be added? Send `Name,Phone` (e.g., John,+1234567890)."
	msgAskNewContactName  = "What should be the new contact name? (e.g., New Contact)"
	msgAskNewFileName     = "What should be the new VCF file name? (e.g., contacts)"

	msgUploadTXT   = "Upload your TXT file(s). After 5 seconds of no new uploads, all files will be processed."
	msgUploadCount = "Upload TXT/VCF file(s). After 5 seconds of no new uploads, all files will be processed."
	msgUploadVCF   = "Upload VCF file(s). After 5 seconds of no new uploads, all files will be processed."
	msgPaste       = "Paste your numbers (one per line)."

	msgNotPositive      = "Please enter a positive number for contacts per file."
	msgNotNumber        = "Please enter a valid number for contacts per file."
	msgEmptyFileName    = "Please enter a non-empty file name."
	msgEmptyBaseContact = "Please enter a non-empty base contact name."
	msgUseButtons       = "Please use the buttons to upload files or input numbers."
	msgAddContactFormat = "Please send `Name,Phone` (e.g. John,+9199...)"
	msgEmptyContactName = "Please send a non-empty new contact name."
	msgEmptyNewFileName = "Please send a non-empty new file name."
	msgContactNameSaved = "New contact name saved. " + msgUploadVCF
	msgFileNameSaved    = "New file name saved. " + msgUploadVCF
	fmtContactSaved     = "Contact '%s' with phone '%s' saved. Upload VCF file(s). After 5 seconds of no new uploads, the contact will be added to all files."

	msgEmpty           = "Empty message."
	msgUseMenu         = "Please use the menu (/start) to choose an operation."
	msgFileSaved       = "File saved. Use the menu (/start) to choose an operation and re-upload if needed."
	msgConfigFirst     = "Please complete the configuration questions first."
	msgBackToMenu      = "Back to main menu."
	msgUnknownAction   = "Unknown action. Use /start to open the menu."
	msgBusy            = "Your files are being processed. Please wait for the result."
	msgNoContactsInTXT = "No contacts found in the TXT."
	msgTaskCompleted   = "Task completed successfully!"
	msgMember          = "You are a member of all required channels! You can use the bot."
	quickConvertName   = "contacts.vcf"
	fmtTooLarge        = "File too large (%.1f MB). Limit: %d MB"
	fmtActionError     = "An error occurred while processing your action: %v"
	fmtFileError       = "An error occurred while processing the file: %v"
	fmtJoinPrompt      = "To use this bot, please join all required channels:\n%s"
	fmtNotMember       = "You are not a member of all required channels:\n%s\n\nPlease join all channels and verify again."
)

func welcome(credit string) string {
	return msgWelcome + credit
}

func channelList(channels []string) string {
	lines := make([]string, len(channels))
	for i, ch := range channels {
		lines[i] = "• " + ch
	}
	return strings.Join(lines, "\n")
}

func joinPrompt(channels []string) string {
	return fmt.Sprintf(fmtJoinPrompt, channelList(channels))
}

func notMemberPrompt(channels []string) string {
	return fmt.Sprintf(fmtNotMember, channelList(channels))
}

// modePrompt is the first question of a menu operation.
func modePrompt(m state.Mode) string {
	switch m {
	case state.ModeTextToVCF:
		return msgAskContactsPerFile
	case state.ModeCount:
		return msgUploadCount
	case state.ModeAddContact:
		return msgAskAddContact
	case state.ModeRenameContacts:
		return msgAskNewContactName
	case state.ModeRenameFiles:
		return msgAskNewFileName
	}
	return msgUseMenu
}

// firstState is where a menu operation starts.
func firstState(m state.Mode) state.State {
	switch m {
	case state.ModeTextToVCF:
		return state.StateAwaitingContactsPerFile
	case state.ModeCount:
		return state.StateAwaitingFiles
	case state.ModeAddContact, state.ModeRenameContacts, state.ModeRenameFiles:
		return state.StateAwaitingInstruction
	}
	return state.StateIdle
}

func uploadPrompt(m state.Mode) string {
	switch m {
	case state.ModeTextToVCF:
		return msgUploadTXT
	case state.ModeCount:
		return msgUploadCount
	}
	return msgUploadVCF
}

// guidance is the reply to an event the current state does not accept.
func guidance(s state.Session) string {
	switch s.State {
	case state.StateAwaitingContactsPerFile:
		return msgAskContactsPerFile
	case state.StateAwaitingFileName:
		return msgAskFileName
	case state.StateAwaitingBaseContactName:
		return msgAskBaseContact
	case state.StateAwaitingData:
		return msgUseButtons
	case state.StateAwaitingInstruction:
		return modePrompt(s.Mode)
	case state.StateAwaitingFiles:
		return uploadPrompt(s.Mode)
	}
	return msgUseMenu
}
