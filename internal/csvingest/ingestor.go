package csvingest

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog"

	"github.com/mizutanik/kakeibo/internal/extract"
	"github.com/mizutanik/kakeibo/internal/session"
)

// ErrNoFile is returned by Analyze before any statement file is loaded.
var ErrNoFile = errors.New("csvingest: no file loaded")

// AnalyzeClient analyzes raw CSV text, optionally with a preset mapping.
type AnalyzeClient interface {
	AnalyzeCSV(ctx context.Context, sess extract.HeaderSource, csvText string, mapping *extract.CSVMapping) (*extract.CSVAnalysis, error)
}

// Ingestor owns the state of one CSV upload in progress: the decoded
// text, the selected preset, the extracted rows under review and the
// mapping the analysis produced. All mutation replaces state wholesale
// under the lock; readers get copies.
type Ingestor struct {
	mu     sync.Mutex
	client AnalyzeClient
	log    zerolog.Logger

	csvText  string
	presetID string
	rows     []Row
	mapping  *extract.CSVMapping
}

// NewIngestor creates an ingestor for one user's CSV workflow.
func NewIngestor(client AnalyzeClient, log zerolog.Logger) *Ingestor {
	return &Ingestor{client: client, log: log}
}

// LoadFile decodes a new statement file and resets any prior analysis
// state. The preset selection survives a new file of the same format.
func (g *Ingestor) LoadFile(data []byte) error {
	text, err := DecodeStatement(data)
	if err != nil {
		return err
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	g.rows = nil
	g.mapping = nil
	g.csvText = text
	return nil
}

// SelectPreset records the preset to use for the next analysis. An empty
// id means fresh inference.
func (g *Ingestor) SelectPreset(id string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.presetID = id
}

// SelectedPreset returns the currently selected preset id.
func (g *Ingestor) SelectedPreset() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.presetID
}

// ClearPresetIfSelected drops the selection when the given preset was
// the selected one, e.g. after that preset is deleted.
func (g *Ingestor) ClearPresetIfSelected(id string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.presetID == id {
		g.presetID = ""
	}
}

// Analyze sends the loaded text to the backend. mapping is the selected
// preset's stored mapping, or nil for fresh inference. Zero extracted
// rows leaves the raw text in place so the user can retry with another
// preset.
func (g *Ingestor) Analyze(ctx context.Context, sess *session.Session, mapping *extract.CSVMapping) error {
	g.mu.Lock()
	text := g.csvText
	g.mu.Unlock()

	if text == "" {
		return ErrNoFile
	}

	res, err := g.client.AnalyzeCSV(ctx, sess, text, mapping)
	if err != nil {
		// ErrNoTransactions intentionally preserves csvText for a retry.
		return err
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	g.rows = RowsFromTransactions(res.Transactions)
	m := res.Mapping
	g.mapping = &m
	return nil
}

// Rows returns a copy of the rows under review.
func (g *Ingestor) Rows() []Row {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]Row, len(g.rows))
	copy(out, g.rows)
	return out
}

// SetRows replaces the rows under review with an edited snapshot.
func (g *Ingestor) SetRows(rows []Row) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.rows = append([]Row(nil), rows...)
}

// UpdateRow replaces the row at index i. Out-of-range indices are ignored.
func (g *Ingestor) UpdateRow(i int, r Row) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if i < 0 || i >= len(g.rows) {
		return
	}
	next := append([]Row(nil), g.rows...)
	next[i] = r
	g.rows = next
}

// DeleteRow removes the row at index i. Out-of-range indices are ignored.
func (g *Ingestor) DeleteRow(i int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if i < 0 || i >= len(g.rows) {
		return
	}
	g.rows = append(append([]Row(nil), g.rows[:i]...), g.rows[i+1:]...)
}

// Mapping returns a copy of the mapping produced by the last analysis,
// or nil when no analysis has run.
func (g *Ingestor) Mapping() *extract.CSVMapping {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.mapping == nil {
		return nil
	}
	m := *g.mapping
	return &m
}

// ShouldOfferPresetSave reports whether a completed save should prompt
// the user to store the inferred mapping: an analysis ran and no preset
// was selected for it.
func (g *Ingestor) ShouldOfferPresetSave() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.mapping != nil && g.presetID == ""
}

// Reset clears the working buffer after a completed save or when a new
// workflow starts.
func (g *Ingestor) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.csvText = ""
	g.rows = nil
	g.mapping = nil
}
