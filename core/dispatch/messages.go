package dispatch

import (
	"errors"
	"fmt"
)

const (
	msgTaskCompleted   = "Task completed successfully!"
	msgUnexpected      = "An error occurred while processing your files. The task was cancelled, please start again."
	msgNoNumbersFiles  = "No phone numbers found in any of the uploaded files."
	msgNoNumbers       = "No phone numbers found to process."
	msgBadConfig       = "Invalid configuration: contacts_per_file must be a positive integer."
	msgNoContact       = "No contact details found. Please start the flow again."
	msgNoContactName   = "No new contact name found. Please start the flow again."
	msgNoFileName      = "No new file name found. Please start the flow again."
	fmtGenerated       = "Generated %d VCF file(s) with %d contacts per file."
	fmtCountWithCards  = "Found %d contact(s) and %d unique phone number(s) across all files."
	fmtCountNumbers    = "Found %d unique phone number(s) across all files."
	fmtProcessFailed   = "Failed to process %s: %v"
	fmtModifyFailed    = "Failed to modify %s: %v"
	fmtRenameFailed    = "Failed to rename %s: %v"
	fmtNoContactsFound = "No contacts found in %s, skipped."
)

// deliveryFailure is implemented by transport errors that carry the outcome
// of a bounded retry.
type deliveryFailure interface {
	Attempts() int
	Permanent() bool
	Reason() string
}

// SendFailureText describes a document that could not be delivered.
func SendFailureText(name string, err error) string {
	var df deliveryFailure
	if errors.As(err, &df) {
		if df.Permanent() {
			return fmt.Sprintf("Failed to send `%s`: %s", name, df.Reason())
		}
		return fmt.Sprintf("Failed to send `%s` after %d attempts.", name, df.Attempts())
	}
	return fmt.Sprintf("Failed to send `%s`: %v", name, err)
}
