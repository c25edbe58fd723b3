package tasks

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/mizutanik/kakeibo/internal/extract"
	"github.com/mizutanik/kakeibo/internal/session"
)

// Manager is the in-memory task queue. All state lives behind a single
// RWMutex; every accessor returns copies so callers never observe a
// task mid-mutation.
type Manager struct {
	mu     sync.RWMutex
	tasks  map[string]*Task
	order  []string
	review *ReviewState

	// authExpired is set when an analysis hits an authentication failure.
	// The affected task reverts to idle so it can be retried after the
	// user signs in again.
	authExpired bool

	wg       sync.WaitGroup
	client   AnalyzeClient
	saver    SaveClient
	previews PreviewStore
	log      zerolog.Logger
}

// NewManager creates an empty task manager. previews may be nil, in
// which case in-memory preview references are used.
func NewManager(client AnalyzeClient, saver SaveClient, previews PreviewStore, log zerolog.Logger) *Manager {
	return &Manager{
		tasks:    make(map[string]*Task),
		client:   client,
		saver:    saver,
		previews: previews,
		log:      log,
	}
}

// AddFiles enqueues new idle tasks for the given images. With combine
// set, all images become a single task analyzed together; otherwise
// every image becomes its own task.
func (m *Manager) AddFiles(ctx context.Context, files []File, combine bool) ([]Task, error) {
	if len(files) == 0 {
		return nil, nil
	}

	batches := make([][]File, 0, len(files))
	if combine {
		batches = append(batches, files)
	} else {
		for _, f := range files {
			batches = append(batches, []File{f})
		}
	}

	created := make([]Task, 0, len(batches))
	for _, batch := range batches {
		t := &Task{
			ID:     uuid.NewString(),
			Files:  batch,
			Status: StatusIdle,
		}
		for i, f := range batch {
			t.FileNames = append(t.FileNames, f.Name)
			url, err := m.previewURL(ctx, t.ID, i, f)
			if err != nil {
				return created, fmt.Errorf("tasks: storing preview for %s: %w", f.Name, err)
			}
			t.PreviewURLs = append(t.PreviewURLs, url)
		}

		m.mu.Lock()
		m.tasks[t.ID] = t
		m.order = append(m.order, t.ID)
		m.mu.Unlock()

		created = append(created, *t)
	}

	m.log.Info().Int("files", len(files)).Int("tasks", len(batches)).Bool("combine", combine).Msg("Enqueued upload tasks")
	return created, nil
}

func (m *Manager) previewURL(ctx context.Context, taskID string, index int, f File) (string, error) {
	if m.previews == nil {
		return fmt.Sprintf("mem://%s/%d/%s", taskID, index, f.Name), nil
	}
	return m.previews.StorePreview(ctx, taskID, index, f)
}

// StartAll launches analysis for every idle task. Each task runs in its
// own goroutine; Wait blocks until all in-flight analyses finish.
func (m *Manager) StartAll(ctx context.Context, sess *session.Session) int {
	m.mu.Lock()
	var started []startRef
	for _, id := range m.order {
		t := m.tasks[id]
		if t.Status != StatusIdle {
			continue
		}
		t.Status = StatusAnalyzing
		t.Message = ""
		t.generation++
		started = append(started, startRef{id: id, gen: t.generation, files: t.Files})
	}
	m.mu.Unlock()

	for _, ref := range started {
		m.wg.Add(1)
		go func(ref startRef) {
			defer m.wg.Done()
			m.runAnalysis(ctx, sess, ref)
		}(ref)
	}
	return len(started)
}

type startRef struct {
	id    string
	gen   uint64
	files []File
}

func (m *Manager) runAnalysis(ctx context.Context, sess *session.Session, ref startRef) {
	images := make([]extract.ImageFile, len(ref.files))
	for i, f := range ref.files {
		images[i] = extract.ImageFile{Name: f.Name, ContentType: f.ContentType, Data: f.Data}
	}
	results, err := m.client.AnalyzeReceipts(ctx, sess, images)
	m.finishAnalysis(ref.id, ref.gen, results, err)
}

// finishAnalysis applies one analysis outcome. Outcomes for deleted
// tasks or superseded generations are dropped.
func (m *Manager) finishAnalysis(id string, gen uint64, results []extract.Receipt, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.tasks[id]
	if !ok || t.generation != gen {
		m.log.Debug().Str("task", id).Msg("Dropping stale analysis result")
		return
	}

	switch {
	case err == nil:
		t.Status = StatusSuccess
		t.Results = results
		m.log.Info().Str("task", id).Int("receipts", len(results)).Msg("Analysis finished")
	case isAuthError(err):
		// Retryable once the user signs in again.
		t.Status = StatusIdle
		m.authExpired = true
		m.log.Warn().Str("task", id).Msg("Analysis hit an expired session, task back to idle")
	case errors.Is(err, extract.ErrNoReceipts):
		t.Status = StatusError
		t.Message = "no receipts were found in the uploaded images"
	default:
		t.Status = StatusError
		t.Message = err.Error()
		m.log.Error().Err(err).Str("task", id).Msg("Analysis failed")
	}
}

func isAuthError(err error) bool {
	return errors.Is(err, extract.ErrUnauthorized) ||
		errors.Is(err, session.ErrSessionExpired) ||
		errors.Is(err, session.ErrNotConfigured)
}

// Wait blocks until every in-flight analysis goroutine returns. Used
// during shutdown and in tests.
func (m *Manager) Wait() {
	m.wg.Wait()
}

// Snapshot returns copies of all tasks in enqueue order plus the active
// review state, if any.
func (m *Manager) Snapshot() ([]Task, *ReviewState) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Task, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, *m.tasks[id])
	}
	var review *ReviewState
	if m.review != nil {
		r := *m.review
		review = &r
	}
	return out, review
}

// AuthExpired reports whether any analysis failed on authentication
// since the last call; the flag is cleared on read.
func (m *Manager) AuthExpired() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	expired := m.authExpired
	m.authExpired = false
	return expired
}

// DeleteTask removes an idle or error task. Analyzing tasks and tasks
// with unreviewed results cannot be deleted.
func (m *Manager) DeleteTask(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.tasks[id]
	if !ok {
		return ErrTaskNotFound
	}
	if t.Status != StatusIdle && t.Status != StatusError {
		return ErrTaskBusy
	}
	m.removeLocked(id)
	return nil
}

// StartEdit opens review at the first extracted record of the task.
func (m *Manager) StartEdit(id string) (extract.Receipt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.tasks[id]
	if !ok {
		return extract.Receipt{}, ErrTaskNotFound
	}
	if t.Status != StatusSuccess || len(t.Results) == 0 {
		return extract.Receipt{}, ErrNoResults
	}
	m.review = &ReviewState{TaskID: id, ResultIndex: 0}
	return t.Results[0], nil
}

// Current returns the record under review.
func (m *Manager) Current() (extract.Receipt, ReviewState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	r, _, err := m.currentLocked()
	if err != nil {
		return extract.Receipt{}, ReviewState{}, err
	}
	return r, *m.review, nil
}

func (m *Manager) currentLocked() (extract.Receipt, *Task, error) {
	if m.review == nil {
		return extract.Receipt{}, nil, ErrNotReviewing
	}
	t, ok := m.tasks[m.review.TaskID]
	if !ok {
		return extract.Receipt{}, nil, ErrTaskNotFound
	}
	if m.review.ResultIndex >= len(t.Results) {
		return extract.Receipt{}, nil, ErrNoResults
	}
	return t.Results[m.review.ResultIndex], t, nil
}

// SaveCurrent persists the given record, which replaces the one under
// review, then advances. When the saved record was the task's last, the
// task is removed and review ends.
func (m *Manager) SaveCurrent(ctx context.Context, sess *session.Session, r extract.Receipt) error {
	m.mu.RLock()
	_, _, err := m.currentLocked()
	m.mu.RUnlock()
	if err != nil {
		return err
	}

	if err := m.saver.SaveTransaction(ctx, sess, r); err != nil {
		return fmt.Errorf("tasks: saving record: %w", err)
	}
	m.advance()
	return nil
}

// SkipCurrent advances past the record under review without saving it.
func (m *Manager) SkipCurrent() error {
	m.mu.RLock()
	_, _, err := m.currentLocked()
	m.mu.RUnlock()
	if err != nil {
		return err
	}
	m.advance()
	return nil
}

// advance moves review to the task's next record, or removes the task
// and ends review when no records remain.
func (m *Manager) advance() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.review == nil {
		return
	}
	t, ok := m.tasks[m.review.TaskID]
	if !ok {
		m.review = nil
		return
	}
	if m.review.ResultIndex+1 < len(t.Results) {
		m.review.ResultIndex++
		return
	}
	m.removeLocked(t.ID)
	m.review = nil
	m.log.Info().Str("task", t.ID).Msg("All records reviewed, task removed")
}

func (m *Manager) removeLocked(id string) {
	delete(m.tasks, id)
	for i, v := range m.order {
		if v == id {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
}
