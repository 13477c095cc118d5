package history

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"superscribe/audio"
	"superscribe/log"
)

var (
	ErrStorage  = errors.New("storage error")
	ErrNotFound = errors.New("history entry not found")
)

const (
	indexFile   = "history.sqlite"
	artifactDir = "audio"
	artifactExt = ".wav"
	tempExt     = ".tmp"

	// artifacts for sessions that never captured audio
	emptySampleRate = 16000
)

const schema = `
CREATE TABLE IF NOT EXISTS entries (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	created_at    INTEGER NOT NULL,
	duration_ms   INTEGER NOT NULL,
	transcript    TEXT NOT NULL DEFAULT '',
	error_kind    TEXT NOT NULL DEFAULT '',
	error_message TEXT NOT NULL DEFAULT '',
	artifact      TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS entries_created ON entries(created_at DESC, id DESC);
`

// Record is a finished session on its way into the store.
type Record struct {
	ID           int64 // zero assigns NextID
	Timestamp    time.Time
	Audio        *audio.Buffer
	Transcript   string
	ErrorKind    string
	ErrorMessage string
}

// Entry is one row of history. Entries are never updated, only deleted.
type Entry struct {
	ID           int64
	Timestamp    time.Time
	Duration     time.Duration
	Transcript   string
	ErrorKind    string
	ErrorMessage string
	ArtifactKey  string
}

func (e Entry) Failed() bool { return e.ErrorKind != "" }

// Store keeps one WAV artifact per session under dir/audio and an index of
// entries in dir/history.sqlite. The artifact is always durable before its
// index row commits, so the index never references a missing file; a crash
// in between leaves at most an orphan artifact for PruneOrphans.
type Store struct {
	mu       sync.Mutex
	db       *sql.DB
	dir      string
	audioDir string

	// runs inside the index transaction just before commit
	beforeCommit func() error
}

func Open(dir string) (*Store, error) {
	audioDir := filepath.Join(dir, artifactDir)
	if err := os.MkdirAll(audioDir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: create %s: %v", ErrStorage, audioDir, err)
	}

	dsn := "file:" + filepath.Join(dir, indexFile) + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(FULL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: open index: %v", ErrStorage, err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: create schema: %v", ErrStorage, err)
	}
	return &Store{db: db, dir: dir, audioDir: audioDir}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Dir() string { return s.dir }

// ArtifactPath resolves an entry's artifact key to a file path.
func (s *Store) ArtifactPath(key string) string {
	return filepath.Join(s.audioDir, key)
}

// NextID returns one past the highest id ever indexed or found on disk, so
// ids stay monotonic across restarts and deletions and never collide with an
// orphan artifact.
func (s *Store) NextID() (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nextIDLocked()
}

func (s *Store) nextIDLocked() (int64, error) {
	var maxID int64
	err := s.db.QueryRow(`SELECT COALESCE((SELECT seq FROM sqlite_sequence WHERE name = 'entries'), 0)`).Scan(&maxID)
	if err != nil {
		return 0, fmt.Errorf("%w: query max id: %v", ErrStorage, err)
	}
	names, err := os.ReadDir(s.audioDir)
	if err != nil {
		return 0, fmt.Errorf("%w: read %s: %v", ErrStorage, s.audioDir, err)
	}
	for _, n := range names {
		if id, ok := artifactID(n.Name()); ok && id > maxID {
			maxID = id
		}
	}
	return maxID + 1, nil
}

// Append persists the artifact and then the index row. It is the only write
// path into the store.
func (s *Store) Append(rec Record) (Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rec.ID == 0 {
		id, err := s.nextIDLocked()
		if err != nil {
			return Entry{}, err
		}
		rec.ID = id
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now()
	}

	key := strconv.FormatInt(rec.ID, 10) + artifactExt
	if err := s.writeArtifact(key, rec.ID, rec.Audio); err != nil {
		return Entry{}, err
	}

	e := Entry{
		ID:           rec.ID,
		Timestamp:    time.UnixMilli(rec.Timestamp.UnixMilli()),
		Duration:     rec.Audio.Duration().Truncate(time.Millisecond),
		Transcript:   rec.Transcript,
		ErrorKind:    rec.ErrorKind,
		ErrorMessage: rec.ErrorMessage,
		ArtifactKey:  key,
	}
	if err := s.insert(e); err != nil {
		log.Warnf("history: entry %d left orphan artifact %s", e.ID, key)
		return Entry{}, err
	}
	return e, nil
}

func (s *Store) insert(e Entry) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("%w: begin: %v", ErrStorage, err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(`INSERT INTO entries (id, created_at, duration_ms, transcript, error_kind, error_message, artifact)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.Timestamp.UnixMilli(), e.Duration.Milliseconds(),
		e.Transcript, e.ErrorKind, e.ErrorMessage, e.ArtifactKey)
	if err != nil {
		return fmt.Errorf("%w: insert entry %d: %v", ErrStorage, e.ID, err)
	}
	if s.beforeCommit != nil {
		if err := s.beforeCommit(); err != nil {
			return fmt.Errorf("%w: %v", ErrStorage, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit entry %d: %v", ErrStorage, e.ID, err)
	}
	return nil
}

// writeArtifact encodes buf into a uniquely named temp file, fsyncs it and
// renames it into place. An existing artifact is never replaced.
func (s *Store) writeArtifact(key string, id int64, buf *audio.Buffer) error {
	final := filepath.Join(s.audioDir, key)
	if _, err := os.Lstat(final); err == nil {
		return fmt.Errorf("%w: artifact %s already exists", ErrStorage, key)
	}

	tag := strings.ReplaceAll(uuid.New().String(), "-", "")[:16]
	tmp := filepath.Join(s.audioDir, fmt.Sprintf(".%d-%s%s", id, tag, tempExt))
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return fmt.Errorf("%w: create artifact: %v", ErrStorage, err)
	}

	if err := encodeWAV(f, buf); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("%w: write artifact %s: %v", ErrStorage, key, err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("%w: sync artifact %s: %v", ErrStorage, key, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("%w: close artifact %s: %v", ErrStorage, key, err)
	}
	if err := os.Rename(tmp, final); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("%w: rename artifact %s: %v", ErrStorage, key, err)
	}
	syncDir(s.audioDir)
	return nil
}

func encodeWAV(f *os.File, buf *audio.Buffer) error {
	rate, channels := emptySampleRate, 1
	var samples []int16
	if buf != nil && buf.SampleRate > 0 && buf.Channels > 0 {
		rate, channels, samples = buf.SampleRate, buf.Channels, buf.Samples
	}

	enc := wav.NewEncoder(f, rate, 16, channels, 1)
	data := make([]int, len(samples))
	for i, v := range samples {
		data[i] = int(v)
	}
	// an empty Write still emits the header
	err := enc.Write(&goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: channels, SampleRate: rate},
		Data:           data,
		SourceBitDepth: 16,
	})
	if err != nil {
		return err
	}
	return enc.Close()
}

// syncDir makes a rename durable. Not every platform can fsync a directory.
func syncDir(dir string) {
	d, err := os.Open(dir)
	if err != nil {
		return
	}
	_ = d.Sync()
	d.Close()
}

// List returns entries newest first. A non-empty filter keeps only entries
// whose transcript contains it, ignoring case.
func (s *Store) List(filter string) ([]Entry, error) {
	rows, err := s.db.Query(`
		SELECT id, created_at, duration_ms, transcript, error_kind, error_message, artifact
		FROM entries
		ORDER BY created_at DESC, id DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("%w: query entries: %v", ErrStorage, err)
	}
	defer rows.Close()

	needle := strings.ToLower(filter)
	var entries []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		if needle != "" && !strings.Contains(strings.ToLower(e.Transcript), needle) {
			continue
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate entries: %v", ErrStorage, err)
	}
	return entries, nil
}

func (s *Store) Get(id int64) (Entry, error) {
	row := s.db.QueryRow(`
		SELECT id, created_at, duration_ms, transcript, error_kind, error_message, artifact
		FROM entries WHERE id = ?
	`, id)
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	return e, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(r scanner) (Entry, error) {
	var e Entry
	var createdAt, durationMs int64
	err := r.Scan(&e.ID, &createdAt, &durationMs, &e.Transcript, &e.ErrorKind, &e.ErrorMessage, &e.ArtifactKey)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, err
	}
	if err != nil {
		return Entry{}, fmt.Errorf("%w: scan entry: %v", ErrStorage, err)
	}
	e.Timestamp = time.UnixMilli(createdAt)
	e.Duration = time.Duration(durationMs) * time.Millisecond
	return e, nil
}

// Delete removes the index row and then its artifact. Once the row is gone
// the entry is deleted; a failure to remove the artifact is only logged and
// the file is left for PruneOrphans.
func (s *Store) Delete(id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var key string
	err := s.db.QueryRow(`SELECT artifact FROM entries WHERE id = ?`, id).Scan(&key)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	if err != nil {
		return fmt.Errorf("%w: lookup entry %d: %v", ErrStorage, id, err)
	}

	res, err := s.db.Exec(`DELETE FROM entries WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("%w: delete entry %d: %v", ErrStorage, id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %d", ErrNotFound, id)
	}

	if err := os.Remove(filepath.Join(s.audioDir, key)); err != nil && !os.IsNotExist(err) {
		log.Warnf("history: remove artifact %s: %v", key, err)
	}
	return nil
}

// PruneOrphans removes artifacts and staging files that no index row
// references. It returns how many files were removed.
func (s *Store) PruneOrphans() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(`SELECT artifact FROM entries`)
	if err != nil {
		return 0, fmt.Errorf("%w: query artifacts: %v", ErrStorage, err)
	}
	live := make(map[string]bool)
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			rows.Close()
			return 0, fmt.Errorf("%w: scan artifact: %v", ErrStorage, err)
		}
		live[key] = true
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("%w: iterate artifacts: %v", ErrStorage, err)
	}

	names, err := os.ReadDir(s.audioDir)
	if err != nil {
		return 0, fmt.Errorf("%w: read %s: %v", ErrStorage, s.audioDir, err)
	}
	removed := 0
	for _, n := range names {
		name := n.Name()
		if n.IsDir() || live[name] {
			continue
		}
		if _, ok := artifactID(name); !ok && !strings.HasSuffix(name, tempExt) {
			continue
		}
		if err := os.Remove(filepath.Join(s.audioDir, name)); err != nil {
			log.Warnf("history: prune %s: %v", name, err)
			continue
		}
		removed++
	}
	if removed > 0 {
		log.Infof("history: pruned %d orphan file(s)", removed)
	}
	return removed, nil
}

func artifactID(name string) (int64, bool) {
	stem, ok := strings.CutSuffix(name, artifactExt)
	if !ok {
		return 0, false
	}
	id, err := strconv.ParseInt(stem, 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}
