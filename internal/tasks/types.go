// Package tasks owns the queue of receipt upload tasks and drives each
// one through analysis and review. A task is one user-initiated batch of
// one or more images; each task transitions independently through
// idle → analyzing → {success, error}, and a success task is removed
// once every extracted record has been saved or skipped.
package tasks

import (
	"context"
	"errors"

	"github.com/mizutanik/kakeibo/internal/extract"
)

// Status is the analysis state of one upload task.
type Status string

const (
	// StatusIdle means the task is waiting for analysis to start.
	StatusIdle Status = "idle"
	// StatusAnalyzing means the task's images are at the extraction backend.
	StatusAnalyzing Status = "analyzing"
	// StatusSuccess means analysis produced at least one record to review.
	StatusSuccess Status = "success"
	// StatusError means analysis terminally failed for this task.
	StatusError Status = "error"
)

// File is one source image attached to a task.
type File struct {
	Name        string
	ContentType string
	Data        []byte
}

// Task is one upload task. Values handed out by the manager are copies;
// mutating them does not affect the queue.
type Task struct {
	ID          string            `json:"id"`
	Files       []File            `json:"-"`
	FileNames   []string          `json:"file_names"`
	PreviewURLs []string          `json:"preview_urls"`
	Status      Status            `json:"status"`
	Results     []extract.Receipt `json:"results,omitempty"`
	// Message is the user-facing explanation for an error status.
	Message string `json:"message,omitempty"`

	// generation invalidates in-flight analysis responses for deleted or
	// re-created tasks.
	generation uint64
}

// ReviewState identifies the one task/result pair currently under edit.
type ReviewState struct {
	TaskID      string `json:"task_id"`
	ResultIndex int    `json:"result_index"`
}

var (
	// ErrTaskNotFound is returned for an unknown task id.
	ErrTaskNotFound = errors.New("tasks: task not found")

	// ErrTaskNotIdle is returned when analysis is requested for a task
	// that already started or finished.
	ErrTaskNotIdle = errors.New("tasks: task is not idle")

	// ErrTaskBusy is returned when deleting a task that is analyzing or
	// has unreviewed results; only idle and error tasks are deletable.
	ErrTaskBusy = errors.New("tasks: task cannot be deleted in its current state")

	// ErrNotReviewing is returned by save/skip when no review is active.
	ErrNotReviewing = errors.New("tasks: no record is under review")

	// ErrNoResults is returned when review is requested for a task
	// without extracted results.
	ErrNoResults = errors.New("tasks: task has no results to review")
)

// AnalyzeClient sends a task's images to the extraction backend.
type AnalyzeClient interface {
	AnalyzeReceipts(ctx context.Context, sess extract.HeaderSource, files []extract.ImageFile) ([]extract.Receipt, error)
}

// SaveClient persists one confirmed record.
type SaveClient interface {
	SaveTransaction(ctx context.Context, sess extract.HeaderSource, r extract.Receipt) error
}

// PreviewStore allocates a display reference for one task file. The GCS
// archive implements it; without one the manager falls back to in-memory
// references.
type PreviewStore interface {
	StorePreview(ctx context.Context, taskID string, index int, f File) (string, error)
}
