// Package indexer orchestrates the project write path: scan the project
// directory, read and embed each candidate file, and replace the
// project's embedding set wholesale.
//
// The pipeline is deliberately tolerant of per-file failures: a file
// that cannot be read or embedded is skipped and logged, never aborting
// the run. Unexpected errors outside the per-file boundary transition
// the project to error status before propagating.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/nexusflow/nexusflow/internal/scanner"
	"github.com/nexusflow/nexusflow/internal/store"
)

// ErrIndexInProgress indicates another index run is already in flight
// for the same project.
var ErrIndexInProgress = errors.New("index already in progress")

// ProjectStore defines the project operations the indexer needs.
// Interfaces are defined by the consumer; *store.Store satisfies this.
type ProjectStore interface {
	GetProject(ctx context.Context, id uuid.UUID) (store.Project, error)
	UpdateProjectStatus(ctx context.Context, id uuid.UUID, status string) error
	MarkProjectIndexed(ctx context.Context, id uuid.UUID, fileCount int) error
}

// EmbeddingStore defines the embedding-row operations the indexer needs.
type EmbeddingStore interface {
	DeleteFileEmbeddings(ctx context.Context, projectID uuid.UUID) error
	InsertFileEmbedding(ctx context.Context, fe store.FileEmbedding) error
}

// Embedder generates a vector for one text.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Scanner yields indexing candidates for a project root.
type Scanner interface {
	Scan(root string) []scanner.File
}

// Result summarizes one index run.
type Result struct {
	FilesIndexed int
	FilesSkipped int
	FilesFailed  int
}

// Skip reasons recorded for files that produced no embedding row.
const (
	skipEmptyContent = "empty content"
)

// outcome is the per-file result: either an embedding record, a skip
// reason, or a failure. Exactly one of record/skip/err is set. Making
// the partial-failure policy a data transformation keeps it testable.
type outcome struct {
	file   scanner.File
	record *store.FileEmbedding
	skip   string
	err    error
}

// Indexer runs the scan → read → embed → persist pipeline.
type Indexer struct {
	projects    ProjectStore
	embeddings  EmbeddingStore
	embedder    Embedder
	scanner     Scanner
	concurrency int
	logger      *slog.Logger

	mu       sync.Mutex
	inFlight map[uuid.UUID]struct{}
}

// New creates an Indexer. concurrency bounds parallel file work within
// one run; values below 1 are raised to 1.
func New(projects ProjectStore, embeddings EmbeddingStore, embedder Embedder, sc Scanner, concurrency int, logger *slog.Logger) *Indexer {
	if logger == nil {
		logger = slog.Default()
	}
	if concurrency < 1 {
		concurrency = 1
	}
	return &Indexer{
		projects:    projects,
		embeddings:  embeddings,
		embedder:    embedder,
		scanner:     sc,
		concurrency: concurrency,
		logger:      logger,
		inFlight:    make(map[uuid.UUID]struct{}),
	}
}

// Index replaces the project's embedding set from its current directory
// contents and updates the project status. Only one run per project may
// be in flight; a concurrent second call fails with ErrIndexInProgress.
//
// A project whose root no longer exists indexes to zero files and ready
// status: absence of files is not failure.
func (idx *Indexer) Index(ctx context.Context, projectID uuid.UUID) (Result, error) {
	project, err := idx.projects.GetProject(ctx, projectID)
	if err != nil {
		return Result{}, err
	}

	if !idx.acquire(projectID) {
		return Result{}, fmt.Errorf("project %s: %w", projectID, ErrIndexInProgress)
	}
	defer idx.release(projectID)

	// Status transition is persisted before any work so readers observe
	// the run immediately.
	if err := idx.projects.UpdateProjectStatus(ctx, projectID, store.StatusIndexing); err != nil {
		return Result{}, err
	}

	result, err := idx.run(ctx, project)
	if err == nil {
		err = idx.projects.MarkProjectIndexed(ctx, projectID, result.FilesIndexed)
	}
	if err != nil {
		// Compensating transition; never leave status stuck at indexing.
		if stErr := idx.projects.UpdateProjectStatus(context.WithoutCancel(ctx), projectID, store.StatusError); stErr != nil {
			idx.logger.Error("setting error status after failed index run",
				"project_id", projectID, "error", stErr)
		}
		return Result{}, err
	}

	idx.logger.Info("index run completed",
		"project_id", projectID,
		"indexed", result.FilesIndexed,
		"skipped", result.FilesSkipped,
		"failed", result.FilesFailed)
	return result, nil
}

// run executes the replace-scan-embed-persist body.
func (idx *Indexer) run(ctx context.Context, project store.Project) (Result, error) {
	// Full replace, not incremental diff: the index always reflects the
	// current scanner output, never stale partial state.
	if err := idx.embeddings.DeleteFileEmbeddings(ctx, project.ID); err != nil {
		return Result{}, err
	}

	files := idx.scanner.Scan(project.Path)
	if len(files) == 0 {
		return Result{}, nil
	}

	outcomes := make([]outcome, len(files))

	g, gctx := errgroup.WithContext(ctx)
	sem := semaphore.NewWeighted(int64(idx.concurrency))
	for i, file := range files {
		// Cooperative cancellation: no further files are scheduled once
		// the supervising context is done; in-flight work completes.
		if err := sem.Acquire(gctx, 1); err != nil {
			break
		}
		g.Go(func() error {
			defer sem.Release(1)
			outcomes[i] = idx.processFile(gctx, project.ID, file)
			return nil
		})
	}
	// Workers never return errors; per-file failures live in outcomes.
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	var result Result
	for _, o := range outcomes {
		switch {
		case o.err != nil:
			result.FilesFailed++
			idx.logger.Warn("skipping file after failure",
				"project_id", project.ID, "file", o.file.RelPath, "error", o.err)
		case o.skip != "":
			result.FilesSkipped++
			idx.logger.Debug("skipping file",
				"project_id", project.ID, "file", o.file.RelPath, "reason", o.skip)
		case o.record != nil:
			if err := idx.embeddings.InsertFileEmbedding(ctx, *o.record); err != nil {
				result.FilesFailed++
				idx.logger.Warn("skipping file after insert failure",
					"project_id", project.ID, "file", o.file.RelPath, "error", err)
				continue
			}
			result.FilesIndexed++
		}
	}

	return result, nil
}

// processFile reads and embeds one file. Failures are captured in the
// returned outcome, never propagated.
func (idx *Indexer) processFile(ctx context.Context, projectID uuid.UUID, file scanner.File) outcome {
	o := outcome{file: file}

	raw, err := os.ReadFile(file.Path)
	if err != nil {
		o.err = fmt.Errorf("reading file: %w", err)
		return o
	}

	content := decodeContent(raw)
	if strings.TrimSpace(content) == "" {
		o.skip = skipEmptyContent
		return o
	}

	vector, err := idx.embedder.Embed(ctx, content)
	if err != nil {
		o.err = fmt.Errorf("embedding file: %w", err)
		return o
	}

	o.record = &store.FileEmbedding{
		ProjectID:  projectID,
		FilePath:   file.RelPath,
		FileName:   file.Name,
		Extension:  file.Ext,
		Content:    content,
		ChunkIndex: 0,
		Embedding:  vector,
	}
	return o
}

// acquire marks a project as having an index run in flight.
func (idx *Indexer) acquire(projectID uuid.UUID) bool {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if _, busy := idx.inFlight[projectID]; busy {
		return false
	}
	idx.inFlight[projectID] = struct{}{}
	return true
}

func (idx *Indexer) release(projectID uuid.UUID) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	delete(idx.inFlight, projectID)
}

// decodeContent interprets raw bytes as UTF-8, falling back to Latin-1
// when the bytes are not valid UTF-8. Latin-1 maps every byte to a
// rune, so the fallback never fails.
func decodeContent(raw []byte) string {
	if utf8.Valid(raw) {
		return string(raw)
	}
	runes := make([]rune, len(raw))
	for i, b := range raw {
		runes[i] = rune(b)
	}
	return string(runes)
}
