package extract

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
)

// staticHeaders is a HeaderSource with fixed headers.
type staticHeaders map[string]string

func (h staticHeaders) Headers() (map[string]string, error) { return h, nil }

// refusingHeaders is a HeaderSource whose session refuses the request.
type refusingHeaders struct{ err error }

func (r refusingHeaders) Headers() (map[string]string, error) { return nil, r.err }

func testHeaders() staticHeaders {
	return staticHeaders{
		"x-access-token":   "tok-123",
		"x-spreadsheet-id": "sheet-abc",
	}
}

func TestAnalyzeReceipts(t *testing.T) {
	var gotToken, gotSheet string
	var gotFiles int

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotToken = r.Header.Get("x-access-token")
		gotSheet = r.Header.Get("x-spreadsheet-id")

		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Fatalf("parsing multipart form: %v", err)
		}
		gotFiles = len(r.MultipartForm.File["files"])

		json.NewEncoder(w).Encode(map[string]interface{}{
			"receipts": []Receipt{
				{PurchaseDate: "2025-04-01", StoreName: "Seiyu", Items: []ReceiptItem{{ItemName: "milk", Price: 238}}},
			},
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, zerolog.Nop())
	files := []ImageFile{
		{Name: "a.jpg", ContentType: "image/jpeg", Data: []byte("img-a")},
		{Name: "b.jpg", ContentType: "image/jpeg", Data: []byte("img-b")},
	}

	receipts, err := c.AnalyzeReceipts(context.Background(), testHeaders(), files)
	if err != nil {
		t.Fatalf("AnalyzeReceipts failed: %v", err)
	}
	if len(receipts) != 1 || receipts[0].StoreName != "Seiyu" {
		t.Errorf("unexpected receipts: %+v", receipts)
	}
	if gotFiles != 2 {
		t.Errorf("files in form: got %d, want 2", gotFiles)
	}
	if gotToken != "tok-123" || gotSheet != "sheet-abc" {
		t.Errorf("headers: got token %q sheet %q", gotToken, gotSheet)
	}
}

func TestAnalyzeReceiptsEmptyResult(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{"receipts": []Receipt{}})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, zerolog.Nop())
	_, err := c.AnalyzeReceipts(context.Background(), testHeaders(), []ImageFile{{Name: "a.jpg"}})
	if !errors.Is(err, ErrNoReceipts) {
		t.Errorf("got %v, want ErrNoReceipts", err)
	}
}

func TestStatusMapping(t *testing.T) {
	tests := []struct {
		name   string
		status int
		want   error
	}{
		{"unauthorized", http.StatusUnauthorized, ErrUnauthorized},
		{"forbidden", http.StatusForbidden, ErrUnauthorized},
		{"rate limited", http.StatusTooManyRequests, ErrRateLimited},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
			}))
			defer srv.Close()

			c := NewClient(srv.URL, zerolog.Nop())
			err := c.SaveCSVBatch(context.Background(), testHeaders(), []Transaction{{Date: "2025-04-01"}})
			if !errors.Is(err, tc.want) {
				t.Errorf("got %v, want %v", err, tc.want)
			}
		})
	}
}

func TestAnalyzeCSVForwardsPresetMapping(t *testing.T) {
	var got struct {
		CSVText string      `json:"csv_text"`
		Mapping *CSVMapping `json:"mapping"`
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Fatalf("decoding request: %v", err)
		}
		json.NewEncoder(w).Encode(CSVAnalysis{
			Transactions: []Transaction{{Date: "2025-03-02", Store: "AEON", Price: 1280}},
			Mapping:      *got.Mapping,
		})
	}))
	defer srv.Close()

	mapping := &CSVMapping{DateColIdx: 0, ItemColIdx: 2, StoreColIdx: 1, PriceColIdx: 3, Confidence: 0.97}
	c := NewClient(srv.URL, zerolog.Nop())

	res, err := c.AnalyzeCSV(context.Background(), testHeaders(), "date,store,item,price", mapping)
	if err != nil {
		t.Fatalf("AnalyzeCSV failed: %v", err)
	}
	if got.Mapping == nil || *got.Mapping != *mapping {
		t.Errorf("mapping not forwarded: got %+v", got.Mapping)
	}
	if res.Mapping != *mapping {
		t.Errorf("mapping not echoed: got %+v", res.Mapping)
	}
}

func TestHeadersRefusedClientSide(t *testing.T) {
	requests := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
	}))
	defer srv.Close()

	c := NewClient(srv.URL, zerolog.Nop())

	// The header source's refusal must pass through unchanged so
	// callers can match it with errors.Is.
	refusal := errors.New("no spreadsheet configured")
	if err := c.SaveTransaction(context.Background(), refusingHeaders{err: refusal}, Receipt{}); !errors.Is(err, refusal) {
		t.Errorf("refused session: got %v, want the refusal error", err)
	}
	if _, err := c.AnalyzeCSV(context.Background(), refusingHeaders{err: refusal}, "a,b", nil); !errors.Is(err, refusal) {
		t.Errorf("refused session: got %v, want the refusal error", err)
	}

	if requests != 0 {
		t.Errorf("backend was called %d times, want 0", requests)
	}
}
