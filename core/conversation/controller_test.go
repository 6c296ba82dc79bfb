package conversation

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/m3rciful/vcfbot/core/batch"
	"github.com/m3rciful/vcfbot/core/blobstore"
	"github.com/m3rciful/vcfbot/core/dispatch"
	"github.com/m3rciful/vcfbot/core/state"
	"github.com/m3rciful/vcfbot/core/vcard"
)

const (
	uid  = int64(7)
	chat = int64(70)
)

type sent struct {
	kind      string
	text      string
	name      string
	data      []byte
	menu      dispatch.Menu
	messageID int
}

type fakeMessenger struct {
	mu  sync.Mutex
	out []sent
}

func (m *fakeMessenger) add(s sent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.out = append(m.out, s)
	return nil
}

func (m *fakeMessenger) SendText(_ context.Context, _ int64, text string) error {
	return m.add(sent{kind: "text", text: text})
}

func (m *fakeMessenger) SendMenu(_ context.Context, _ int64, text string, menu dispatch.Menu) error {
	return m.add(sent{kind: "menu", text: text, menu: menu})
}

func (m *fakeMessenger) SendDocument(_ context.Context, _ int64, name string, data []byte) error {
	return m.add(sent{kind: "doc", name: name, data: data})
}

func (m *fakeMessenger) EditMenu(_ context.Context, _ int64, messageID int, text string, menu dispatch.Menu) error {
	return m.add(sent{kind: "edit", text: text, menu: menu, messageID: messageID})
}

func (m *fakeMessenger) last() sent {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.out) == 0 {
		return sent{}
	}
	return m.out[len(m.out)-1]
}

func (m *fakeMessenger) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.out)
}

type fakeMembers struct {
	member bool
	err    error
	calls  int
}

func (f *fakeMembers) IsMember(context.Context, int64) (bool, error) {
	f.calls++
	return f.member, f.err
}

type fakeRunner struct {
	store *state.Store
	jobs  []dispatch.Job
}

func (r *fakeRunner) Run(_ context.Context, job dispatch.Job) {
	r.jobs = append(r.jobs, job)
	r.store.Reset(job.UserID)
}

type harness struct {
	store   *state.Store
	msg     *fakeMessenger
	members *fakeMembers
	runner  *fakeRunner
	blobs   *blobstore.FS
	batches chan batch.Batch
	ctl     *Controller
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	blobs, err := blobstore.NewFS(t.TempDir())
	require.NoError(t, err)
	h := &harness{
		store:   state.NewStore(),
		msg:     &fakeMessenger{},
		members: &fakeMembers{member: true},
		blobs:   blobs,
		batches: make(chan batch.Batch, 4),
	}
	h.runner = &fakeRunner{store: h.store}
	collector := batch.New(h.store, clockwork.NewFakeClock(), 0, func(_ context.Context, b batch.Batch) {
		h.batches <- b
	})
	h.ctl = New(h.store, h.msg, Options{
		Blobs:     blobs,
		Collector: collector,
		Runner:    h.runner,
		Members:   h.members,
		Channels:  []string{"@one", "@two"},
		Credit:    "Created by tests",
	})
	return h
}

func (h *harness) handle(t *testing.T, ev Event) {
	t.Helper()
	ev.UserID, ev.ChatID = uid, chat
	require.NoError(t, h.ctl.Handle(context.Background(), ev))
}

func (h *harness) text(t *testing.T, text string) {
	h.handle(t, Event{Kind: EventText, Text: text})
}

func (h *harness) action(t *testing.T, a Action) {
	h.handle(t, Event{Kind: EventAction, Text: a.Data(), MessageID: 99})
}

func (h *harness) session() state.Session {
	return h.store.GetOrCreate(uid)
}

// hasTimer reads the live session; copies never carry the timer handle.
func (h *harness) hasTimer() bool {
	var armed bool
	_ = h.store.Do(uid, func(s *state.Session) error {
		armed = s.HasTimer()
		return nil
	})
	return armed
}

func document(name, content string) *Document {
	return &Document{
		Name: name,
		Size: int64(len(content)),
		Fetch: func(context.Context) ([]byte, error) {
			return []byte(content), nil
		},
	}
}

func TestStart_ShowsMenuWhenMember(t *testing.T) {
	h := newHarness(t)
	h.handle(t, Event{Kind: EventStart})

	last := h.msg.last()
	assert.Equal(t, dispatch.MenuMain, last.menu)
	assert.True(t, strings.HasPrefix(last.text, "Aura VCF Bot"))
	assert.True(t, strings.HasSuffix(last.text, "Created by tests"))
}

func TestStart_JoinPromptWhenNotMember(t *testing.T) {
	h := newHarness(t)
	h.members.member = false
	h.handle(t, Event{Kind: EventStart})

	last := h.msg.last()
	assert.Equal(t, dispatch.MenuJoin, last.menu)
	assert.Equal(t, "To use this bot, please join all required channels:\n• @one\n• @two", last.text)
}

func TestMenuAction_IsGated(t *testing.T) {
	h := newHarness(t)
	h.members.member = false
	h.action(t, ActionCount)

	assert.Equal(t, dispatch.MenuJoin, h.msg.last().menu)
	assert.Equal(t, state.StateIdle, h.session().State)
	assert.Equal(t, state.ModeNone, h.session().Mode)
}

func TestMembershipError_CountsAsNotMember(t *testing.T) {
	h := newHarness(t)
	h.members.member = true
	h.members.err = errors.New("telegram down")
	h.handle(t, Event{Kind: EventStart})
	assert.Equal(t, dispatch.MenuJoin, h.msg.last().menu)
}

func TestGateOpenWithoutChannels(t *testing.T) {
	h := newHarness(t)
	h.members.member = false
	h.ctl.channels = nil
	h.handle(t, Event{Kind: EventStart})
	assert.Equal(t, dispatch.MenuMain, h.msg.last().menu)
	assert.Zero(t, h.members.calls)
}

func TestGenerationQuestions(t *testing.T) {
	h := newHarness(t)
	h.action(t, ActionTextToVCF)
	assert.Equal(t, msgAskContactsPerFile, h.msg.last().text)
	assert.Equal(t, state.StateAwaitingContactsPerFile, h.session().State)
	assert.Equal(t, state.ModeTextToVCF, h.session().Mode)

	h.text(t, "ten")
	assert.Equal(t, msgNotNumber, h.msg.last().text)
	h.text(t, "0")
	assert.Equal(t, msgNotPositive, h.msg.last().text)
	assert.Equal(t, state.StateAwaitingContactsPerFile, h.session().State)

	h.text(t, " 10 ")
	assert.Equal(t, msgAskFileName, h.msg.last().text)
	h.text(t, "batch")
	assert.Equal(t, msgAskBaseContact, h.msg.last().text)
	h.text(t, "Lead")

	last := h.msg.last()
	assert.Equal(t, msgChooseInput, last.text)
	assert.Equal(t, dispatch.MenuInputMethod, last.menu)

	sess := h.session()
	assert.Equal(t, state.StateAwaitingData, sess.State)
	assert.Equal(t, state.Config{ContactsPerFile: 10, FileName: "batch", BaseContactName: "Lead"}, sess.Config)
}

func (h *harness) answerQuestions(t *testing.T) {
	h.action(t, ActionTextToVCF)
	h.text(t, "5")
	h.text(t, "out")
	h.text(t, "C")
}

func TestAwaitingData_RequiresButtonChoice(t *testing.T) {
	h := newHarness(t)
	h.answerQuestions(t)
	h.text(t, "+111111111")
	assert.Equal(t, msgUseButtons, h.msg.last().text)
	assert.Empty(t, h.runner.jobs)
}

func TestPasteNumbers_DispatchesImmediately(t *testing.T) {
	h := newHarness(t)
	h.answerQuestions(t)
	h.action(t, ActionPasteNumbers)
	assert.Equal(t, msgPaste, h.msg.last().text)
	assert.Equal(t, state.InputRaw, h.session().InputMethod)

	h.text(t, "+111111111\n222222222\n+111111111")
	require.Len(t, h.runner.jobs, 1)
	job := h.runner.jobs[0]
	assert.Equal(t, state.ModeTextToVCF, job.Mode)
	assert.Equal(t, []string{"+111111111", "+222222222"}, job.Numbers)
	assert.Equal(t, state.Config{ContactsPerFile: 5, FileName: "out", BaseContactName: "C"}, job.Config)
	assert.Empty(t, job.Files)
}

func TestPasteNumbers_NoNumbersRestartsQuestions(t *testing.T) {
	h := newHarness(t)
	h.answerQuestions(t)
	h.action(t, ActionPasteNumbers)
	h.text(t, "no digits here")

	assert.Equal(t, msgAskContactsPerFile, h.msg.last().text)
	assert.Equal(t, state.StateAwaitingContactsPerFile, h.session().State)
	assert.Equal(t, state.ModeTextToVCF, h.session().Mode)
	assert.Empty(t, h.runner.jobs)
}

func TestInputButtons_RequireAnsweredQuestions(t *testing.T) {
	h := newHarness(t)
	h.action(t, ActionUploadFiles)
	assert.Equal(t, msgConfigFirst, h.msg.last().text)
	h.action(t, ActionPasteNumbers)
	assert.Equal(t, msgConfigFirst, h.msg.last().text)
}

func TestUploadFiles_CollectsIntoBatch(t *testing.T) {
	h := newHarness(t)
	h.answerQuestions(t)
	h.action(t, ActionUploadFiles)
	assert.Equal(t, msgUploadTXT, h.msg.last().text)
	assert.Equal(t, state.StateAwaitingFiles, h.session().State)

	before := h.msg.count()
	h.handle(t, Event{Kind: EventDocument, Document: document("a.txt", "+111111111")})
	h.handle(t, Event{Kind: EventDocument, Document: document("b.txt", "+222222222")})
	assert.Equal(t, before, h.msg.count(), "uploads are not acknowledged")

	sess := h.session()
	require.Len(t, sess.Files, 2)
	assert.Equal(t, "a.txt", sess.Files[0].Name)
	assert.True(t, h.hasTimer())

	data, err := h.blobs.Read(context.Background(), sess.Files[1].Key)
	require.NoError(t, err)
	assert.Equal(t, "+222222222", string(data))
}

func TestDocument_SizeGateRunsBeforeDownload(t *testing.T) {
	h := newHarness(t)
	h.action(t, ActionCount)
	fetched := false
	doc := &Document{
		Name: "big.vcf",
		Size: 21 * 1024 * 1024,
		Fetch: func(context.Context) ([]byte, error) {
			fetched = true
			return nil, nil
		},
	}
	h.handle(t, Event{Kind: EventDocument, Document: doc})

	assert.False(t, fetched)
	assert.Equal(t, "File too large (21.0 MB). Limit: 20 MB", h.msg.last().text)
	assert.Empty(t, h.session().Files)
}

func TestDocument_FetchErrorIsReported(t *testing.T) {
	h := newHarness(t)
	h.action(t, ActionCount)
	doc := &Document{
		Name:  "a.vcf",
		Size:  10,
		Fetch: func(context.Context) ([]byte, error) { return nil, errors.New("timeout") },
	}
	err := h.ctl.Handle(context.Background(), Event{Kind: EventDocument, UserID: uid, ChatID: chat, Document: doc})
	require.Error(t, err)
	assert.Equal(t, "An error occurred while processing the file: download a.vcf: timeout", h.msg.last().text)
}

func TestAddContactInstruction(t *testing.T) {
	h := newHarness(t)
	h.action(t, ActionAddContact)
	assert.Equal(t, msgAskAddContact, h.msg.last().text)

	h.text(t, "John")
	assert.Equal(t, msgAddContactFormat, h.msg.last().text)
	assert.Equal(t, state.StateAwaitingInstruction, h.session().State)

	h.text(t, "John,+1 234 567 890")
	assert.Equal(t, "Contact 'John' with phone '+1234567890' saved. Upload VCF file(s). After 5 seconds of no new uploads, the contact will be added to all files.", h.msg.last().text)
	sess := h.session()
	assert.Equal(t, state.StateAwaitingFiles, sess.State)
	assert.Equal(t, "John", sess.Instruction.AddName)
	assert.Equal(t, "+1234567890", sess.Instruction.AddPhone)
}

func TestRenameInstructions(t *testing.T) {
	h := newHarness(t)
	h.action(t, ActionRenameContacts)
	assert.Equal(t, msgAskNewContactName, h.msg.last().text)
	h.text(t, "Client")
	assert.Equal(t, msgContactNameSaved, h.msg.last().text)
	assert.Equal(t, "Client", h.session().Instruction.NewContactName)

	h.action(t, ActionRenameFiles)
	assert.Equal(t, msgAskNewFileName, h.msg.last().text)
	assert.Empty(t, h.session().Instruction.NewContactName, "menu action starts from a clean session")
	h.text(t, "clients")
	assert.Equal(t, msgFileNameSaved, h.msg.last().text)
	assert.Equal(t, state.StateAwaitingFiles, h.session().State)
	assert.Equal(t, "clients", h.session().Instruction.NewFileName)
}

func TestUnlistedTransitionsAnswerWithGuidance(t *testing.T) {
	h := newHarness(t)
	h.text(t, "hello")
	assert.Equal(t, msgUseMenu, h.msg.last().text)

	h.action(t, ActionCount)
	h.text(t, "what now")
	assert.Equal(t, msgUploadCount, h.msg.last().text)

	h.action(t, ActionRenameFiles)
	h.handle(t, Event{Kind: EventDocument, Document: document("a.vcf", "x")})
	assert.Equal(t, msgAskNewFileName, h.msg.last().text)
	assert.Empty(t, h.session().Files)
}

func TestEmptyText(t *testing.T) {
	h := newHarness(t)
	h.text(t, "   ")
	assert.Equal(t, msgEmpty, h.msg.last().text)
}

func TestUnknownAction(t *testing.T) {
	h := newHarness(t)
	h.handle(t, Event{Kind: EventAction, Text: "drop_tables"})
	assert.Equal(t, msgUnknownAction, h.msg.last().text)
}

func TestBackToMenu_ResetsAndDeletesArtifacts(t *testing.T) {
	h := newHarness(t)
	h.action(t, ActionCount)
	h.handle(t, Event{Kind: EventDocument, Document: document("a.txt", "+111111111")})
	key := h.session().Files[0].Key

	h.action(t, ActionBackToMenu)
	last := h.msg.last()
	assert.Equal(t, msgBackToMenu, last.text)
	assert.Equal(t, dispatch.MenuMain, last.menu)

	sess := h.session()
	assert.Equal(t, state.StateIdle, sess.State)
	assert.Empty(t, sess.Files)
	assert.False(t, h.hasTimer())
	_, err := h.blobs.Read(context.Background(), key)
	assert.ErrorIs(t, err, blobstore.ErrNotFound)
}

func TestVerifyMembership_EditsMessage(t *testing.T) {
	h := newHarness(t)
	h.members.member = false
	h.action(t, ActionVerifyMembership)
	last := h.msg.last()
	assert.Equal(t, "edit", last.kind)
	assert.Equal(t, 99, last.messageID)
	assert.Equal(t, dispatch.MenuJoin, last.menu)
	assert.Equal(t, "You are not a member of all required channels:\n• @one\n• @two\n\nPlease join all channels and verify again.", last.text)

	h.members.member = true
	h.action(t, ActionVerifyMembership)
	last = h.msg.last()
	assert.Equal(t, "edit", last.kind)
	assert.Equal(t, msgMember, last.text)
	assert.Equal(t, dispatch.MenuMain, last.menu)
}

func TestQuickConvert(t *testing.T) {
	h := newHarness(t)
	h.handle(t, Event{Kind: EventDocument, Document: document("list.TXT", "Alice,+1 555 000 1111\n5550002222\n")})

	var doc sent
	for _, s := range h.msg.out {
		if s.kind == "doc" {
			doc = s
		}
	}
	assert.Equal(t, "contacts.vcf", doc.name)
	assert.Equal(t, []vcard.Contact{
		{Name: "Alice", Phone: "+15550001111"},
		{Name: vcard.UnknownName, Phone: "+5550002222"},
	}, vcard.ParseCards(string(doc.data)))

	last := h.msg.last()
	assert.Equal(t, msgTaskCompleted, last.text)
	assert.Equal(t, dispatch.MenuMain, last.menu)
}

func TestIdleDocuments(t *testing.T) {
	h := newHarness(t)
	h.handle(t, Event{Kind: EventDocument, Document: document("empty.csv", "\n\n")})
	assert.Equal(t, msgNoContactsInTXT, h.msg.last().text)

	h.handle(t, Event{Kind: EventDocument, Document: document("cards.vcf", "x")})
	assert.Equal(t, msgUseMenu, h.msg.last().text)

	h.handle(t, Event{Kind: EventDocument, Document: document("photo.jpg", "x")})
	assert.Equal(t, msgFileSaved, h.msg.last().text)
}

func TestBusySessionRejectsEvents(t *testing.T) {
	h := newHarness(t)
	h.action(t, ActionCount)
	require.NoError(t, h.store.Do(uid, func(s *state.Session) error {
		s.Processing = true
		return nil
	}))

	h.action(t, ActionBackToMenu)
	assert.Equal(t, msgBusy, h.msg.last().text)
	assert.Equal(t, state.StateAwaitingFiles, h.session().State)

	h.handle(t, Event{Kind: EventStart})
	assert.Equal(t, msgBusy, h.msg.last().text)
	h.action(t, ActionVerifyMembership)
	assert.Equal(t, msgBusy, h.msg.last().text)
	assert.True(t, h.session().Processing, "a running batch owns the session until it resets it")

	h.handle(t, Event{Kind: EventHelp})
	assert.Equal(t, msgHelp, h.msg.last().text)
}

func TestParseAction(t *testing.T) {
	assert.Len(t, Actions(), 9)
	for _, a := range Actions() {
		assert.Equal(t, a, ParseAction(a.Data()), a.String())
	}
	assert.Equal(t, ActionUnknown, ParseAction(""))
	assert.Equal(t, ActionUnknown, ParseAction("TEXT_TO_VCF"))
	assert.Equal(t, state.ModeRenameFiles, ActionRenameFiles.Mode())
	assert.Equal(t, state.ModeNone, ActionBackToMenu.Mode())
}

func TestUploads_KeepArrivalOrderWhenFirstDownloadIsSlow(t *testing.T) {
	h := newHarness(t)
	h.action(t, ActionRenameFiles)
	h.text(t, "renamed")
	require.Equal(t, state.StateAwaitingFiles, h.session().State)

	started := make(chan struct{})
	unblock := make(chan struct{})
	slow := &Document{
		Name: "a.vcf",
		Size: 10,
		Fetch: func(context.Context) ([]byte, error) {
			close(started)
			<-unblock
			return []byte("BEGIN:VCARD\nFN:A\nTEL:+111111111\nEND:VCARD\n"), nil
		},
	}
	var fastFetched sync.WaitGroup
	fastFetched.Add(1)
	fast := &Document{
		Name: "b.vcf",
		Size: 10,
		Fetch: func(context.Context) ([]byte, error) {
			fastFetched.Done()
			return []byte("BEGIN:VCARD\nFN:B\nTEL:+222222222\nEND:VCARD\n"), nil
		},
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		assert.NoError(t, h.ctl.Handle(context.Background(), Event{Kind: EventDocument, UserID: uid, ChatID: chat, Document: slow}))
	}()
	<-started
	go func() {
		defer wg.Done()
		assert.NoError(t, h.ctl.Handle(context.Background(), Event{Kind: EventDocument, UserID: uid, ChatID: chat, Document: fast}))
	}()

	fetchedEarly := make(chan struct{})
	go func() {
		fastFetched.Wait()
		close(fetchedEarly)
	}()
	select {
	case <-fetchedEarly:
		t.Fatal("second upload was downloaded while the first was still in progress")
	case <-time.After(50 * time.Millisecond):
	}
	close(unblock)
	wg.Wait()

	files := h.session().Files
	require.Len(t, files, 2)
	assert.Equal(t, "a.vcf", files[0].Name)
	assert.Equal(t, "b.vcf", files[1].Name)
	assert.Zero(t, h.ctl.events.len())
}

func TestHandle_OtherUsersAreNotBlocked(t *testing.T) {
	h := newHarness(t)
	h.action(t, ActionCount)

	started := make(chan struct{})
	unblock := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = h.ctl.Handle(context.Background(), Event{Kind: EventDocument, UserID: uid, ChatID: chat, Document: &Document{
			Name: "a.vcf",
			Size: 1,
			Fetch: func(context.Context) ([]byte, error) {
				close(started)
				<-unblock
				return []byte("x"), nil
			},
		}})
	}()
	<-started

	require.NoError(t, h.ctl.Handle(context.Background(), Event{Kind: EventHelp, UserID: uid + 1, ChatID: chat + 1}))
	assert.Equal(t, msgHelp, h.msg.last().text)

	close(unblock)
	<-done
}
