package state

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubTimer struct{ stopped bool }

func (t *stubTimer) Stop() bool {
	was := !t.stopped
	t.stopped = true
	return was
}

func TestStore_GetOrCreateStartsIdle(t *testing.T) {
	s := NewStore()
	sess := s.GetOrCreate(42)
	assert.Equal(t, StateIdle, sess.State)
	assert.Equal(t, ModeNone, sess.Mode)
	assert.Equal(t, 1, s.Len())
}

func TestStore_GetOrCreateReturnsCopy(t *testing.T) {
	s := NewStore()
	require.NoError(t, s.Do(1, func(sess *Session) error {
		sess.Files = append(sess.Files, FileRef{Key: "k1", Name: "a.vcf"})
		return nil
	}))

	cp := s.GetOrCreate(1)
	cp.Files[0].Name = "changed"
	cp.State = StateAwaitingFiles

	again := s.GetOrCreate(1)
	assert.Equal(t, "a.vcf", again.Files[0].Name)
	assert.Equal(t, StateIdle, again.State)
}

func TestStore_SetStateKeepsModeWhenNone(t *testing.T) {
	s := NewStore()
	s.SetState(7, StateAwaitingInstruction, ModeRenameFiles)
	s.SetState(7, StateAwaitingFiles, ModeNone)

	sess := s.GetOrCreate(7)
	assert.Equal(t, StateAwaitingFiles, sess.State)
	assert.Equal(t, ModeRenameFiles, sess.Mode)
}

func TestStore_ResetClearsFieldsAndReturnsArtifacts(t *testing.T) {
	s := NewStore()
	timer := &stubTimer{}
	require.NoError(t, s.Do(9, func(sess *Session) error {
		sess.Mode = ModeCount
		sess.State = StateAwaitingFiles
		sess.InputMethod = InputFiles
		sess.Config = Config{ContactsPerFile: 10, FileName: "f", BaseContactName: "c"}
		sess.Files = []FileRef{{Key: "a"}, {Key: "b"}}
		sess.Artifacts = []string{"a", "b"}
		sess.Processing = true
		sess.Arm(func(uint64) Timer { return timer })
		return nil
	}))

	artifacts := s.Reset(9)
	assert.Equal(t, []string{"a", "b"}, artifacts)
	assert.True(t, timer.stopped)

	sess := s.GetOrCreate(9)
	assert.Equal(t, Session{State: StateIdle, gen: sess.gen}, sess)
}

func TestSession_ArmSupersedesPreviousTimer(t *testing.T) {
	var sess Session
	first := &stubTimer{}
	second := &stubTimer{}
	var firstGen, secondGen uint64

	sess.Arm(func(gen uint64) Timer { firstGen = gen; return first })
	sess.Arm(func(gen uint64) Timer { secondGen = gen; return second })

	assert.True(t, first.stopped)
	assert.False(t, second.stopped)
	assert.False(t, sess.Current(firstGen))
	assert.True(t, sess.Current(secondGen))

	sess.Fired()
	assert.False(t, sess.HasTimer())
	assert.False(t, sess.Current(secondGen))
}

func TestSession_ClearInvalidatesLiveTimer(t *testing.T) {
	var sess Session
	var gen uint64
	sess.Arm(func(g uint64) Timer { gen = g; return &stubTimer{} })
	sess.Clear()
	assert.False(t, sess.Current(gen))
	assert.Equal(t, StateIdle, sess.State)
}

func TestStore_DoSerializesPerUser(t *testing.T) {
	s := NewStore()
	const workers = 50
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			_ = s.Do(5, func(sess *Session) error {
				n := sess.Config.ContactsPerFile
				sess.Config.ContactsPerFile = n + 1
				return nil
			})
		}()
	}
	wg.Wait()
	assert.Equal(t, workers, s.GetOrCreate(5).Config.ContactsPerFile)
}

func TestMode_Valid(t *testing.T) {
	for _, m := range Modes {
		assert.True(t, m.Valid(), m)
	}
	assert.False(t, ModeNone.Valid())
	assert.False(t, Mode("delete_all").Valid())
}

func TestStore_ResetDropsSession(t *testing.T) {
	s := NewStore()
	s.SetState(3, StateAwaitingFiles, ModeRenameFiles)
	s.SetState(4, StateAwaitingData, ModeTextToVCF)
	require.Equal(t, 2, s.Len())

	s.Reset(3)
	assert.Equal(t, 1, s.Len())
	assert.Equal(t, StateIdle, s.GetOrCreate(3).State)
	assert.Equal(t, StateAwaitingData, s.GetOrCreate(4).State)
}

func TestStore_DroppedSessionTimerNeverMatches(t *testing.T) {
	s := NewStore()
	var stale uint64
	require.NoError(t, s.Do(8, func(sess *Session) error {
		sess.Arm(func(gen uint64) Timer { stale = gen; return &stubTimer{} })
		return nil
	}))
	s.Reset(8)

	var fresh uint64
	require.NoError(t, s.Do(8, func(sess *Session) error {
		sess.Arm(func(gen uint64) Timer { fresh = gen; return &stubTimer{} })
		assert.False(t, sess.Current(stale))
		assert.True(t, sess.Current(fresh))
		return nil
	}))
	assert.Greater(t, fresh, stale)
}

func TestStore_ResetRacesWithDo(t *testing.T) {
	s := NewStore()
	const rounds = 200
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < rounds; i++ {
			_ = s.Do(11, func(sess *Session) error {
				sess.Config.ContactsPerFile++
				return nil
			})
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < rounds; i++ {
			s.Reset(11)
		}
	}()
	wg.Wait()
	assert.LessOrEqual(t, s.Len(), 1)
	assert.LessOrEqual(t, s.GetOrCreate(11).Config.ContactsPerFile, rounds)
}
