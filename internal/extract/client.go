// Package extract is the HTTP client for the external extraction and
// persistence backend. The backend performs the OCR/LLM work and the
// spreadsheet writes; this package only speaks its request/response
// contract and maps failures onto the gateway's error taxonomy.
package extract

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// HeaderSource resolves the authentication headers a backend request
// must carry. The error return lets a caller's session refuse the
// request before any network traffic, e.g. when no spreadsheet is
// configured or the access token has expired.
type HeaderSource interface {
	Headers() (map[string]string, error)
}

// Client calls the extraction backend. All methods resolve the session
// headers first and refuse to issue a request when the session is not
// fully configured.
type Client struct {
	baseURL string
	http    *http.Client
	log     zerolog.Logger
}

// NewClient creates a backend client for the given base URL
// (e.g. "https://api.example.com/api").
func NewClient(baseURL string, log zerolog.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 120 * time.Second},
		log:     log,
	}
}

// AnalyzeReceipts sends one or more receipt images to the backend and
// returns the extracted records. A response with zero receipts is
// reported as ErrNoReceipts.
func (c *Client) AnalyzeReceipts(ctx context.Context, sess HeaderSource, files []ImageFile) ([]Receipt, error) {
	headers, err := sess.Headers()
	if err != nil {
		return nil, err
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for _, f := range files {
		part, err := mw.CreateFormFile("files", f.Name)
		if err != nil {
			return nil, fmt.Errorf("extract: building form: %w", err)
		}
		if _, err := part.Write(f.Data); err != nil {
			return nil, fmt.Errorf("extract: writing form file: %w", err)
		}
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("extract: closing form: %w", err)
	}

	var out struct {
		Receipts []Receipt `json:"receipts"`
	}
	if err := c.do(ctx, "/analyze", headers, mw.FormDataContentType(), &body, &out); err != nil {
		return nil, err
	}

	if len(out.Receipts) == 0 {
		return nil, ErrNoReceipts
	}
	return out.Receipts, nil
}

// SaveTransaction persists one confirmed receipt record.
func (c *Client) SaveTransaction(ctx context.Context, sess HeaderSource, r Receipt) error {
	headers, err := sess.Headers()
	if err != nil {
		return err
	}
	return c.postJSON(ctx, "/save", headers, r, nil)
}

// AnalyzeCSV sends raw CSV text to the backend. When mapping is non-nil
// the backend applies it directly instead of inferring one (preset fast
// path). Zero extracted rows is reported as ErrNoTransactions; the caller
// keeps the raw text so the user can retry with a different preset.
func (c *Client) AnalyzeCSV(ctx context.Context, sess HeaderSource, csvText string, mapping *CSVMapping) (*CSVAnalysis, error) {
	headers, err := sess.Headers()
	if err != nil {
		return nil, err
	}

	req := struct {
		CSVText string      `json:"csv_text"`
		Mapping *CSVMapping `json:"mapping,omitempty"`
	}{CSVText: csvText, Mapping: mapping}

	var out CSVAnalysis
	if err := c.postJSON(ctx, "/analyze_csv", headers, req, &out); err != nil {
		return nil, err
	}

	if len(out.Transactions) == 0 {
		return nil, ErrNoTransactions
	}
	return &out, nil
}

// SaveCSVBatch persists one batch of statement rows. The backend may
// answer 429, surfaced as ErrRateLimited for the scheduler to back off.
func (c *Client) SaveCSVBatch(ctx context.Context, sess HeaderSource, txs []Transaction) error {
	headers, err := sess.Headers()
	if err != nil {
		return err
	}
	req := struct {
		Transactions []Transaction `json:"transactions"`
	}{Transactions: txs}
	return c.postJSON(ctx, "/save_csv", headers, req, nil)
}

// Search runs a natural-language query over the user's saved data and
// returns the backend's answer.
func (c *Client) Search(ctx context.Context, sess HeaderSource, req SearchRequest) (string, error) {
	headers, err := sess.Headers()
	if err != nil {
		return "", err
	}
	var out struct {
		Answer string `json:"answer"`
	}
	if err := c.postJSON(ctx, "/search", headers, req, &out); err != nil {
		return "", err
	}
	return out.Answer, nil
}

func (c *Client) postJSON(ctx context.Context, path string, headers map[string]string, in, out interface{}) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("extract: encoding request: %w", err)
	}
	return c.do(ctx, path, headers, "application/json", bytes.NewReader(payload), out)
}

func (c *Client) do(ctx context.Context, path string, headers map[string]string, contentType string, body io.Reader, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("extract: building request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("extract: calling %s: %w", path, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return ErrUnauthorized
	case resp.StatusCode == http.StatusTooManyRequests:
		return ErrRateLimited
	case resp.StatusCode >= 400:
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		c.log.Error().
			Int("status", resp.StatusCode).
			Str("path", path).
			Str("body", string(snippet)).
			Msg("Backend request failed")
		return fmt.Errorf("extract: %s returned %d", path, resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("extract: decoding %s response: %w", path, err)
	}
	return nil
}
