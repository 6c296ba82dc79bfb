package state

// Mode identifies the operation a user picked from the main menu.
type Mode string

const (
	ModeNone           Mode = ""
	ModeTextToVCF      Mode = "text_to_vcf"
	ModeCount          Mode = "count"
	ModeAddContact     Mode = "add_contact"
	ModeRenameContacts Mode = "rename_contacts"
	ModeRenameFiles    Mode = "rename_files"
)

// Modes lists the menu operations in display order.
var Modes = []Mode{ModeTextToVCF, ModeCount, ModeAddContact, ModeRenameContacts, ModeRenameFiles}

// Valid reports whether m is one of the menu operations.
func (m Mode) Valid() bool {
	for _, v := range Modes {
		if v == m {
			return true
		}
	}
	return false
}

// State identifies a conversation step.
type State string

const (
	// StateIdle indicates there is no active conversation with the user.
	StateIdle                    State = "idle"
	StateAwaitingContactsPerFile State = "awaiting_contacts_per_file"
	StateAwaitingFileName        State = "awaiting_file_name"
	StateAwaitingBaseContactName State = "awaiting_base_contact_name"
	StateAwaitingData            State = "awaiting_data"
	StateAwaitingInstruction     State = "awaiting_instruction"
	StateAwaitingFiles           State = "awaiting_files"
)

// InputMethod records how a generation run receives its numbers.
type InputMethod string

const (
	InputUnset InputMethod = ""
	InputFiles InputMethod = "files"
	InputRaw   InputMethod = "raw"
)

// Config holds the answers of the generation questions.
type Config struct {
	ContactsPerFile int
	FileName        string
	BaseContactName string
}

// Instruction holds the pending edit of add/rename operations.
type Instruction struct {
	NewContactName string
	NewFileName    string
	AddName        string
	AddPhone       string
}

// FileRef points at an uploaded file kept in the blob store.
type FileRef struct {
	Key  string
	Name string
	Size int64
}

// Timer is the pending batch timer of a session.
type Timer interface {
	Stop() bool
}

// Session stores the conversation of one user.
type Session struct {
	Mode        Mode
	State       State
	InputMethod InputMethod
	Config      Config
	Instruction Instruction
	Files       []FileRef
	// Artifacts are blob keys owned by the session and deleted on reset.
	Artifacts []string
	// Processing is set while a batch of this session is being dispatched.
	Processing bool

	timer Timer
	gen   uint64
}

// AwaitingFiles reports whether uploads are collected into a batch.
func (s *Session) AwaitingFiles() bool {
	return s.State == StateAwaitingFiles
}

// Arm cancels the pending timer, if any, and installs the one returned by
// start. start receives the generation token the new timer must present to
// Current when it fires.
func (s *Session) Arm(start func(gen uint64) Timer) {
	s.stopTimer()
	s.gen++
	s.timer = start(s.gen)
}

// Disarm cancels the pending timer, if any.
func (s *Session) Disarm() {
	s.stopTimer()
	s.gen++
}

// Current reports whether gen belongs to the live timer. A timer that lost
// this check was cancelled or superseded and must not touch the session.
func (s *Session) Current(gen uint64) bool {
	return s.timer != nil && s.gen == gen
}

// Fired drops the handle of the timer that is firing now.
func (s *Session) Fired() {
	s.timer = nil
}

// HasTimer reports whether a batch timer is pending.
func (s *Session) HasTimer() bool {
	return s.timer != nil
}

// Clear resets every field to the idle defaults and returns the artifacts the
// session owned. The pending timer is cancelled.
func (s *Session) Clear() []string {
	s.Disarm()
	artifacts := s.Artifacts
	*s = Session{State: StateIdle, gen: s.gen}
	return artifacts
}

func (s *Session) stopTimer() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

func (s *Session) snapshot() Session {
	cp := *s
	cp.Files = append([]FileRef(nil), s.Files...)
	cp.Artifacts = append([]string(nil), s.Artifacts...)
	cp.timer = nil
	return cp
}
