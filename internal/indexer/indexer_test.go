package indexer

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"

	"github.com/nexusflow/nexusflow/internal/log"
	"github.com/nexusflow/nexusflow/internal/scanner"
	"github.com/nexusflow/nexusflow/internal/store"
)

type mockProjects struct {
	mu      sync.Mutex
	project store.Project
	getErr  error

	statusErr    error
	markErr      error
	transitions  []string
	markedCount  int
	markedCalled bool
}

func (m *mockProjects) GetProject(_ context.Context, id uuid.UUID) (store.Project, error) {
	if m.getErr != nil {
		return store.Project{}, m.getErr
	}
	p := m.project
	p.ID = id
	return p, nil
}

func (m *mockProjects) UpdateProjectStatus(_ context.Context, _ uuid.UUID, status string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.statusErr != nil {
		return m.statusErr
	}
	m.transitions = append(m.transitions, status)
	return nil
}

func (m *mockProjects) MarkProjectIndexed(_ context.Context, _ uuid.UUID, fileCount int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.markErr != nil {
		return m.markErr
	}
	m.markedCalled = true
	m.markedCount = fileCount
	m.transitions = append(m.transitions, store.StatusReady)
	return nil
}

type mockEmbeddings struct {
	mu        sync.Mutex
	deleteErr error
	insertErr func(fe store.FileEmbedding) error
	deletes   int
	inserted  []store.FileEmbedding
}

func (m *mockEmbeddings) DeleteFileEmbeddings(_ context.Context, _ uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.deleteErr != nil {
		return m.deleteErr
	}
	m.deletes++
	m.inserted = nil
	return nil
}

func (m *mockEmbeddings) InsertFileEmbedding(_ context.Context, fe store.FileEmbedding) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.insertErr != nil {
		if err := m.insertErr(fe); err != nil {
			return err
		}
	}
	m.inserted = append(m.inserted, fe)
	return nil
}

type mockEmbedder struct {
	// failOn fails the embed call for any content containing the substring.
	failOn string
}

func (m *mockEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	if m.failOn != "" && strings.Contains(text, m.failOn) {
		return nil, errors.New("embed failed")
	}
	return []float32{0.1, 0.2, 0.3}, nil
}

// stubScanner returns a fixed file list, decoupling pipeline tests from
// filter policy.
type stubScanner struct {
	files []scanner.File
}

func (s *stubScanner) Scan(_ string) []scanner.File {
	return s.files
}

func writeFile(t *testing.T, dir, name, content string) scanner.File {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("writing %s: %v", name, err)
	}
	return scanner.File{
		Path:    path,
		RelPath: name,
		Name:    name,
		Ext:     filepath.Ext(name),
	}
}

func newTestIndexer(projects *mockProjects, embeddings *mockEmbeddings, embedder Embedder, sc Scanner) *Indexer {
	return New(projects, embeddings, embedder, sc, 2, log.NewNop())
}

func TestIndexHappyPath(t *testing.T) {
	dir := t.TempDir()
	files := []scanner.File{
		writeFile(t, dir, "main.py", "def handler(): pass"),
		writeFile(t, dir, "README.md", "# notes"),
	}

	projects := &mockProjects{project: store.Project{Path: dir, Status: store.StatusPending}}
	embeddings := &mockEmbeddings{}
	idx := newTestIndexer(projects, embeddings, &mockEmbedder{}, &stubScanner{files: files})

	result, err := idx.Index(context.Background(), uuid.New())
	if err != nil {
		t.Fatalf("Index() error = %v", err)
	}
	if result.FilesIndexed != 2 {
		t.Errorf("FilesIndexed = %d, want 2", result.FilesIndexed)
	}
	if embeddings.deletes != 1 {
		t.Errorf("deletes = %d, want 1", embeddings.deletes)
	}
	if len(embeddings.inserted) != 2 {
		t.Errorf("inserted = %d rows, want 2", len(embeddings.inserted))
	}
	want := []string{store.StatusIndexing, store.StatusReady}
	if len(projects.transitions) != 2 || projects.transitions[0] != want[0] || projects.transitions[1] != want[1] {
		t.Errorf("transitions = %v, want %v", projects.transitions, want)
	}
	if projects.markedCount != 2 {
		t.Errorf("markedCount = %d, want 2", projects.markedCount)
	}
}

func TestIndexReplacesExistingRows(t *testing.T) {
	dir := t.TempDir()
	files := []scanner.File{writeFile(t, dir, "a.go", "package a")}

	projects := &mockProjects{project: store.Project{Path: dir}}
	embeddings := &mockEmbeddings{}
	idx := newTestIndexer(projects, embeddings, &mockEmbedder{}, &stubScanner{files: files})

	for range 3 {
		if _, err := idx.Index(context.Background(), uuid.New()); err != nil {
			t.Fatalf("Index() error = %v", err)
		}
	}
	if embeddings.deletes != 3 {
		t.Errorf("deletes = %d, want 3", embeddings.deletes)
	}
	// Re-indexing replaces; rows never accumulate across runs.
	if len(embeddings.inserted) != 1 {
		t.Errorf("inserted = %d rows after re-index, want 1", len(embeddings.inserted))
	}
}

func TestIndexPerFileFailureReducesCount(t *testing.T) {
	dir := t.TempDir()
	files := []scanner.File{
		writeFile(t, dir, "good.py", "def ok(): pass"),
		writeFile(t, dir, "bad.py", "POISON content"),
	}

	projects := &mockProjects{project: store.Project{Path: dir}}
	embeddings := &mockEmbeddings{}
	idx := newTestIndexer(projects, embeddings, &mockEmbedder{failOn: "POISON"}, &stubScanner{files: files})

	result, err := idx.Index(context.Background(), uuid.New())
	if err != nil {
		t.Fatalf("Index() error = %v", err)
	}
	if result.FilesIndexed != 1 {
		t.Errorf("FilesIndexed = %d, want 1", result.FilesIndexed)
	}
	if result.FilesFailed != 1 {
		t.Errorf("FilesFailed = %d, want 1", result.FilesFailed)
	}
	// A single bad file never fails the run.
	if !projects.markedCalled {
		t.Error("project not marked indexed after partial failure")
	}
	if projects.markedCount != 1 {
		t.Errorf("markedCount = %d, want 1", projects.markedCount)
	}
}

func TestIndexSkipsBlankFiles(t *testing.T) {
	dir := t.TempDir()
	files := []scanner.File{
		writeFile(t, dir, "empty.py", ""),
		writeFile(t, dir, "blank.py", "  \n\t\n"),
		writeFile(t, dir, "real.py", "x = 1"),
	}

	projects := &mockProjects{project: store.Project{Path: dir}}
	embeddings := &mockEmbeddings{}
	idx := newTestIndexer(projects, embeddings, &mockEmbedder{}, &stubScanner{files: files})

	result, err := idx.Index(context.Background(), uuid.New())
	if err != nil {
		t.Fatalf("Index() error = %v", err)
	}
	if result.FilesSkipped != 2 {
		t.Errorf("FilesSkipped = %d, want 2", result.FilesSkipped)
	}
	if result.FilesIndexed != 1 {
		t.Errorf("FilesIndexed = %d, want 1", result.FilesIndexed)
	}
}

func TestIndexUnreadableFileIsFailure(t *testing.T) {
	files := []scanner.File{{
		Path:    filepath.Join(t.TempDir(), "vanished.py"),
		RelPath: "vanished.py",
		Name:    "vanished.py",
		Ext:     ".py",
	}}

	projects := &mockProjects{project: store.Project{Path: "/tmp"}}
	embeddings := &mockEmbeddings{}
	idx := newTestIndexer(projects, embeddings, &mockEmbedder{}, &stubScanner{files: files})

	result, err := idx.Index(context.Background(), uuid.New())
	if err != nil {
		t.Fatalf("Index() error = %v", err)
	}
	if result.FilesFailed != 1 {
		t.Errorf("FilesFailed = %d, want 1", result.FilesFailed)
	}
	if !projects.markedCalled {
		t.Error("project not marked indexed after unreadable file")
	}
}

func TestIndexMissingRootCompletesEmpty(t *testing.T) {
	projects := &mockProjects{project: store.Project{Path: "/does/not/exist"}}
	embeddings := &mockEmbeddings{}
	idx := newTestIndexer(projects, embeddings, &mockEmbedder{}, &stubScanner{})

	result, err := idx.Index(context.Background(), uuid.New())
	if err != nil {
		t.Fatalf("Index() error = %v", err)
	}
	if result.FilesIndexed != 0 {
		t.Errorf("FilesIndexed = %d, want 0", result.FilesIndexed)
	}
	if !projects.markedCalled || projects.markedCount != 0 {
		t.Errorf("want project marked ready with 0 files, got called=%v count=%d",
			projects.markedCalled, projects.markedCount)
	}
}

func TestIndexUnknownProject(t *testing.T) {
	projects := &mockProjects{getErr: store.ErrNotFound}
	idx := newTestIndexer(projects, &mockEmbeddings{}, &mockEmbedder{}, &stubScanner{})

	_, err := idx.Index(context.Background(), uuid.New())
	if !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Index() error = %v, want ErrNotFound", err)
	}
	if len(projects.transitions) != 0 {
		t.Errorf("transitions = %v, want none for unknown project", projects.transitions)
	}
}

func TestIndexDeleteFailureSetsErrorStatus(t *testing.T) {
	projects := &mockProjects{project: store.Project{Path: t.TempDir()}}
	embeddings := &mockEmbeddings{deleteErr: errors.New("connection reset")}
	idx := newTestIndexer(projects, embeddings, &mockEmbedder{}, &stubScanner{})

	_, err := idx.Index(context.Background(), uuid.New())
	if err == nil {
		t.Fatal("Index() error = nil, want delete failure")
	}
	want := []string{store.StatusIndexing, store.StatusError}
	if len(projects.transitions) != 2 || projects.transitions[1] != store.StatusError {
		t.Errorf("transitions = %v, want %v", projects.transitions, want)
	}
	if projects.markedCalled {
		t.Error("project marked indexed despite failed run")
	}
}

func TestIndexMarkFailureSetsErrorStatus(t *testing.T) {
	dir := t.TempDir()
	files := []scanner.File{writeFile(t, dir, "a.py", "x = 1")}

	projects := &mockProjects{
		project: store.Project{Path: dir},
		markErr: errors.New("connection reset"),
	}
	embeddings := &mockEmbeddings{}
	idx := newTestIndexer(projects, embeddings, &mockEmbedder{}, &stubScanner{files: files})

	_, err := idx.Index(context.Background(), uuid.New())
	if err == nil {
		t.Fatal("Index() error = nil, want mark failure")
	}
	// A failure after the run body still compensates; status must not
	// stay stuck at indexing.
	want := []string{store.StatusIndexing, store.StatusError}
	if len(projects.transitions) != 2 || projects.transitions[1] != store.StatusError {
		t.Errorf("transitions = %v, want %v", projects.transitions, want)
	}
}

func TestIndexConcurrentRunRejected(t *testing.T) {
	dir := t.TempDir()
	files := []scanner.File{writeFile(t, dir, "slow.py", "x = 1")}

	release := make(chan struct{})
	started := make(chan struct{})
	embedder := &blockingEmbedder{started: started, release: release}

	projects := &mockProjects{project: store.Project{Path: dir}}
	idx := newTestIndexer(projects, &mockEmbeddings{}, embedder, &stubScanner{files: files})

	projectID := uuid.New()
	done := make(chan error, 1)
	go func() {
		_, err := idx.Index(context.Background(), projectID)
		done <- err
	}()

	<-started
	_, err := idx.Index(context.Background(), projectID)
	if !errors.Is(err, ErrIndexInProgress) {
		t.Errorf("second Index() error = %v, want ErrIndexInProgress", err)
	}
	close(release)
	if err := <-done; err != nil {
		t.Errorf("first Index() error = %v", err)
	}

	// The guard is per project; the slot frees once the run finishes.
	if _, err := idx.Index(context.Background(), projectID); err != nil {
		t.Errorf("Index() after completion error = %v", err)
	}
}

type blockingEmbedder struct {
	once    sync.Once
	started chan struct{}
	release chan struct{}
}

func (b *blockingEmbedder) Embed(_ context.Context, _ string) ([]float32, error) {
	b.once.Do(func() { close(b.started) })
	<-b.release
	return []float32{0.5}, nil
}

func TestIndexCancellation(t *testing.T) {
	dir := t.TempDir()
	files := []scanner.File{writeFile(t, dir, "a.py", "x = 1")}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	projects := &mockProjects{project: store.Project{Path: dir}}
	idx := newTestIndexer(projects, &mockEmbeddings{}, &mockEmbedder{}, &stubScanner{files: files})

	_, err := idx.Index(ctx, uuid.New())
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Index() error = %v, want context.Canceled", err)
	}
	if len(projects.transitions) == 0 || projects.transitions[len(projects.transitions)-1] != store.StatusError {
		t.Errorf("transitions = %v, want final error status on cancellation", projects.transitions)
	}
}

func TestDecodeContent(t *testing.T) {
	tests := []struct {
		name string
		raw  []byte
		want string
	}{
		{"valid utf8", []byte("héllo"), "héllo"},
		{"latin1 fallback", []byte{'c', 'a', 'f', 0xE9}, "café"},
		{"empty", nil, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := decodeContent(tt.raw); got != tt.want {
				t.Errorf("decodeContent(%v) = %q, want %q", tt.raw, got, tt.want)
			}
		})
	}
}
