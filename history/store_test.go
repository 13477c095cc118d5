package history

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-audio/wav"
	"github.com/stretchr/testify/require"

	"superscribe/audio"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func twoSeconds() *audio.Buffer {
	samples := make([]int16, 32000)
	for i := range samples {
		samples[i] = int16(i % 300)
	}
	return &audio.Buffer{SampleRate: 16000, Channels: 1, Samples: samples}
}

func TestAppendWritesArtifactAndEntry(t *testing.T) {
	s := openTestStore(t)
	at := time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)

	e, err := s.Append(Record{Timestamp: at, Audio: twoSeconds(), Transcript: "hello world"})
	require.NoError(t, err)
	require.Equal(t, int64(1), e.ID)
	require.Equal(t, "1.wav", e.ArtifactKey)
	require.Equal(t, 2*time.Second, e.Duration)
	require.False(t, e.Failed())

	f, err := os.Open(s.ArtifactPath(e.ArtifactKey))
	require.NoError(t, err)
	defer f.Close()
	dec := wav.NewDecoder(f)
	buf, err := dec.FullPCMBuffer()
	require.NoError(t, err)
	require.Equal(t, uint32(16000), dec.SampleRate)
	require.Len(t, buf.Data, 32000)
	require.Equal(t, 299, buf.Data[299])

	got, err := s.Get(e.ID)
	require.NoError(t, err)
	require.Equal(t, "hello world", got.Transcript)
	require.True(t, got.Timestamp.Equal(at))
}

func TestAppendFailedSessionWithoutAudio(t *testing.T) {
	s := openTestStore(t)

	e, err := s.Append(Record{ErrorKind: "DeviceUnavailable", ErrorMessage: "no input device"})
	require.NoError(t, err)
	require.True(t, e.Failed())
	require.Zero(t, e.Duration)

	info, err := os.Stat(s.ArtifactPath(e.ArtifactKey))
	require.NoError(t, err)
	require.GreaterOrEqual(t, info.Size(), int64(44))
}

func TestArtifactIsNeverRewritten(t *testing.T) {
	s := openTestStore(t)
	_, err := s.Append(Record{ID: 7, Audio: twoSeconds(), Transcript: "first"})
	require.NoError(t, err)
	before, err := os.ReadFile(s.ArtifactPath("7.wav"))
	require.NoError(t, err)

	_, err = s.Append(Record{ID: 7, Audio: &audio.Buffer{SampleRate: 16000, Channels: 1}, Transcript: "second"})
	require.ErrorIs(t, err, ErrStorage)

	after, err := os.ReadFile(s.ArtifactPath("7.wav"))
	require.NoError(t, err)
	require.Equal(t, before, after)
}

func TestCrashBeforeCommitLeavesOnlyOrphan(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir)
	require.NoError(t, err)

	s.beforeCommit = func() error { return errors.New("process killed") }
	_, err = s.Append(Record{Audio: twoSeconds(), Transcript: "lost"})
	require.ErrorIs(t, err, ErrStorage)
	require.NoError(t, s.Close())

	// every index row must reference an artifact on disk
	s, err = Open(dir)
	require.NoError(t, err)
	defer s.Close()
	entries, err := s.List("")
	require.NoError(t, err)
	require.Empty(t, entries)
	_, err = os.Stat(filepath.Join(dir, "audio", "1.wav"))
	require.NoError(t, err, "artifact is written before the index")

	// the orphan's id is not reused
	next, err := s.NextID()
	require.NoError(t, err)
	require.Equal(t, int64(2), next)

	n, err := s.PruneOrphans()
	require.NoError(t, err)
	require.Equal(t, 1, n)
	_, err = os.Stat(filepath.Join(dir, "audio", "1.wav"))
	require.True(t, os.IsNotExist(err))
}

func TestListFilterAndOrder(t *testing.T) {
	s := openTestStore(t)
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	for i, text := range []string{"Buy XYZ shares", "nothing here", "the xyz protocol", "ÉCOLE xyz", "later xYz"} {
		_, err := s.Append(Record{Timestamp: base.Add(time.Duration(i) * time.Minute), Audio: twoSeconds(), Transcript: text})
		require.NoError(t, err)
	}
	// same timestamp as the last one, higher id
	_, err := s.Append(Record{Timestamp: base.Add(4 * time.Minute), Audio: twoSeconds(), Transcript: "tie XYZ"})
	require.NoError(t, err)

	got, err := s.List("xyz")
	require.NoError(t, err)
	var texts []string
	for _, e := range got {
		texts = append(texts, e.Transcript)
	}
	require.Equal(t, []string{"tie XYZ", "later xYz", "ÉCOLE xyz", "the xyz protocol", "Buy XYZ shares"}, texts)

	got, err = s.List("école")
	require.NoError(t, err)
	require.Len(t, got, 1)

	all, err := s.List("")
	require.NoError(t, err)
	require.Len(t, all, 6)
	require.Equal(t, int64(6), all[0].ID)
}

func TestDeleteRemovesEntryAndArtifact(t *testing.T) {
	s := openTestStore(t)
	e, err := s.Append(Record{Audio: twoSeconds(), Transcript: "bye"})
	require.NoError(t, err)

	require.NoError(t, s.Delete(e.ID))
	_, err = s.Get(e.ID)
	require.ErrorIs(t, err, ErrNotFound)
	_, err = os.Stat(s.ArtifactPath(e.ArtifactKey))
	require.True(t, os.IsNotExist(err))

	require.ErrorIs(t, s.Delete(e.ID), ErrNotFound)
	require.ErrorIs(t, s.Delete(999), ErrNotFound)
}

func TestDeleteSucceedsWhenArtifactMissing(t *testing.T) {
	s := openTestStore(t)
	e, err := s.Append(Record{Audio: twoSeconds(), Transcript: "gone"})
	require.NoError(t, err)
	require.NoError(t, os.Remove(s.ArtifactPath(e.ArtifactKey)))

	require.NoError(t, s.Delete(e.ID))
	entries, err := s.List("")
	require.NoError(t, err)
	require.Empty(t, entries)
}

func TestIDsMonotonicAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir)
	require.NoError(t, err)
	for range 3 {
		_, err := s.Append(Record{Audio: twoSeconds()})
		require.NoError(t, err)
	}
	require.NoError(t, s.Delete(3))
	require.NoError(t, s.Close())

	s, err = Open(dir)
	require.NoError(t, err)
	defer s.Close()
	e, err := s.Append(Record{Audio: twoSeconds()})
	require.NoError(t, err)
	require.Equal(t, int64(4), e.ID, "deleted ids are not reused")

	next, err := s.NextID()
	require.NoError(t, err)
	require.Equal(t, int64(5), next)
}

func TestPruneRemovesStagingFiles(t *testing.T) {
	s := openTestStore(t)
	e, err := s.Append(Record{Audio: twoSeconds(), Transcript: "keep"})
	require.NoError(t, err)

	stray := filepath.Join(s.Dir(), "audio", ".9-deadbeefdeadbeef.tmp")
	require.NoError(t, os.WriteFile(stray, []byte("half"), 0o600))
	unrelated := filepath.Join(s.Dir(), "audio", "notes.txt")
	require.NoError(t, os.WriteFile(unrelated, []byte("mine"), 0o600))

	n, err := s.PruneOrphans()
	require.NoError(t, err)
	require.Equal(t, 1, n)
	_, err = os.Stat(s.ArtifactPath(e.ArtifactKey))
	require.NoError(t, err)
	_, err = os.Stat(unrelated)
	require.NoError(t, err)
}
