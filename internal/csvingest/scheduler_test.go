package csvingest

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/mizutanik/kakeibo/internal/extract"
	"github.com/mizutanik/kakeibo/internal/session"
)

func schedulerSession() *session.Session {
	return &session.Session{
		UserID:        "user-1",
		Token:         session.NewToken("tok", time.Time{}),
		SpreadsheetID: "sheet",
	}
}

// fakeSaveClient records every submitted group and can fail specific
// submissions.
type fakeSaveClient struct {
	submitted []string // month key of each submission, in order
	failures  map[int]error
}

func (f *fakeSaveClient) SaveCSVBatch(ctx context.Context, sess extract.HeaderSource, txs []extract.Transaction) error {
	month := txs[0].Date[:7]
	f.submitted = append(f.submitted, month)
	if err, ok := f.failures[len(f.submitted)-1]; ok {
		return err
	}
	return nil
}

func fastScheduler(client SaveClient) *Scheduler {
	s := NewScheduler(client, zerolog.Nop())
	s.tick = func(ctx context.Context) error { return nil }
	return s
}

func TestGroupByMonth(t *testing.T) {
	txs := []extract.Transaction{
		{Date: "2025-03-02", Store: "a", Price: 100},
		{Date: "2025-04-01", Store: "b", Price: 200},
		{Date: "2025-03-15", Store: "c", Price: 300},
		{Date: "2025-05-09", Store: "d", Price: 400},
		{Date: "2025-04-20", Store: "e", Price: 500},
	}

	groups, order := GroupByMonth(txs)

	wantOrder := []string{"2025-03", "2025-04", "2025-05"}
	if len(order) != len(wantOrder) {
		t.Fatalf("group count: got %d, want %d", len(order), len(wantOrder))
	}
	for i, m := range wantOrder {
		if order[i] != m {
			t.Errorf("order[%d]: got %q, want %q (first-seen order)", i, order[i], m)
		}
	}

	// Concatenating groups in first-seen order must reproduce a
	// permutation of the input with every element in exactly one group.
	var flat []extract.Transaction
	for _, m := range order {
		for _, tx := range groups[m] {
			if tx.Date[:7] != m {
				t.Errorf("row %q landed in group %q", tx.Date, m)
			}
		}
		flat = append(flat, groups[m]...)
	}
	if len(flat) != len(txs) {
		t.Fatalf("element count after grouping: got %d, want %d", len(flat), len(txs))
	}
	seen := make(map[string]int)
	for _, tx := range txs {
		seen[tx.Store]++
	}
	for _, tx := range flat {
		seen[tx.Store]--
	}
	for store, n := range seen {
		if n != 0 {
			t.Errorf("row %q appears a wrong number of times (off by %d)", store, n)
		}
	}
}

func TestSaveAllRateLimitRetry(t *testing.T) {
	// Group 2 of 3 is rate limited once, then succeeds.
	client := &fakeSaveClient{failures: map[int]error{1: extract.ErrRateLimited}}
	s := fastScheduler(client)

	var progress []Progress
	s.OnProgress = func(p Progress) { progress = append(progress, p) }

	var waits []int
	s.OnWait = func(secondsLeft int) { waits = append(waits, secondsLeft) }

	ticks := 0
	s.tick = func(ctx context.Context) error { ticks++; return nil }

	rows := []Row{
		{Date: "2025-03-02", Store: "a", Price: "100"},
		{Date: "2025-04-01", Store: "b", Price: "200"},
		{Date: "2025-05-09", Store: "c", Price: "300"},
	}

	if err := s.SaveAll(context.Background(), schedulerSession(), rows); err != nil {
		t.Fatalf("SaveAll failed: %v", err)
	}

	wantSubmissions := []string{"2025-03", "2025-04", "2025-04", "2025-05"}
	if len(client.submitted) != len(wantSubmissions) {
		t.Fatalf("submissions: got %v, want %v", client.submitted, wantSubmissions)
	}
	for i, m := range wantSubmissions {
		if client.submitted[i] != m {
			t.Errorf("submission %d: got %q, want %q", i, client.submitted[i], m)
		}
	}

	last := progress[len(progress)-1]
	if last.Current != 3 || last.Total != 3 {
		t.Errorf("final progress: got %+v, want {3 3}", last)
	}

	// One countdown reporting 90..0 inclusive but sleeping exactly 90
	// seconds, so the wait before resubmitting is 90, not 91.
	if len(waits) != 91 || waits[0] != 90 || waits[len(waits)-1] != 0 {
		t.Errorf("wait reports: got %d (%v..%v), want 91 from 90 to 0", len(waits), waits[0], waits[len(waits)-1])
	}
	if ticks != 90 {
		t.Errorf("countdown sleeps: got %d, want 90", ticks)
	}
}

func TestSaveAllAbortsOnOtherErrors(t *testing.T) {
	boom := errors.New("backend exploded")
	client := &fakeSaveClient{failures: map[int]error{1: boom}}
	s := fastScheduler(client)

	var progress []Progress
	s.OnProgress = func(p Progress) { progress = append(progress, p) }

	rows := []Row{
		{Date: "2025-03-02", Store: "a", Price: "100"},
		{Date: "2025-04-01", Store: "b", Price: "200"},
		{Date: "2025-05-09", Store: "c", Price: "300"},
	}

	err := s.SaveAll(context.Background(), schedulerSession(), rows)
	if !errors.Is(err, boom) {
		t.Fatalf("got %v, want the backend error", err)
	}

	// Group 1 saved, group 2 failed, group 3 never submitted.
	if len(client.submitted) != 2 {
		t.Errorf("submissions: got %v, want exactly 2", client.submitted)
	}
	last := progress[len(progress)-1]
	if last.Current != 1 {
		t.Errorf("progress after abort: got %+v, want current=1", last)
	}
}

func TestCoerceRowsBlankPrice(t *testing.T) {
	rows := []Row{
		{Date: "2025-03-02", Store: "a", Price: ""},
		{Date: "2025-03-03", Store: "b", Price: "1280"},
		{Date: "2025-03-04", Store: "c", Price: "not-a-number"},
	}

	txs := CoerceRows(rows)
	if txs[0].Price != 0 || txs[2].Price != 0 {
		t.Errorf("blank/unparseable prices not coerced to 0: %+v", txs)
	}
	if txs[1].Price != 1280 {
		t.Errorf("numeric price altered: got %v", txs[1].Price)
	}
}

func TestRowJSONAcceptsNumberAndString(t *testing.T) {
	var rows []Row
	in := `[{"date":"2025-03-02","store":"a","price":1280},
	        {"date":"2025-03-03","store":"b","price":""},
	        {"date":"2025-03-04","store":"c","price":"450"}]`
	if err := json.Unmarshal([]byte(in), &rows); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	want := []string{"1280", "", "450"}
	for i, w := range want {
		if rows[i].Price != w {
			t.Errorf("row %d price: got %q, want %q", i, rows[i].Price, w)
		}
	}

	out, err := json.Marshal(rows[0])
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(out) != `{"date":"2025-03-02","price":1280,"store":"a"}` {
		t.Errorf("numeric price did not round-trip as a number: %s", out)
	}
}
