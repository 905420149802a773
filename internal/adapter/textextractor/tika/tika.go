// Package tika provides Apache Tika integration for text extraction.
//
// It extracts text content from uploaded policy documents (PDF, DOCX and
// plain text) and applies per-format quality thresholds so that unusable
// uploads are reported back with an actionable warning instead of being
// silently analyzed as empty policies.
package tika

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/gabriel-vasile/mimetype"

	"github.com/brokerpoint/polizza-analyzer/internal/domain"
	"github.com/brokerpoint/polizza-analyzer/pkg/textx"
)

// Per-format minimums for the extracted text to count as usable. A scanned
// or encrypted PDF typically extracts to nothing or a handful of glyphs.
const (
	minPDFChars  = 50
	minDocxChars = 10
)

// Client is a minimal Apache Tika HTTP client implementing domain.TextExtractor.
// It performs PUT /tika with Accept: text/plain to retrieve extracted text.
// See: https://tika.apache.org/server/ for API details.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New constructs a Tika client with a default timeout.
func New(baseURL string) *Client {
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
}

// Extract converts uploaded document bytes into best-effort plain text.
//
// Plain-text uploads never touch the Tika server. Legacy .doc files are
// rejected up front: Tika's word-processor parser produces unreliable output
// for them and the product asks the user to re-export instead. For PDF and
// DOCX the extracted text must clear the format's minimum-length threshold,
// otherwise the document is flagged unusable (scanned, empty or encrypted).
func (c *Client) Extract(ctx context.Context, fileName string, data []byte) (domain.ExtractedDocument, error) {
	ext := strings.ToLower(filepath.Ext(fileName))
	mt := mimetype.Detect(data)

	if ext == ".doc" || mt.Is("application/msword") {
		return domain.ExtractedDocument{
			Success: false,
			Errors:  []string{"formato .doc non supportato: convertire il documento in PDF o DOCX"},
		}, nil
	}

	if ext == ".txt" || mt.Is("text/plain") {
		return extractPlainText(data), nil
	}

	text, err := c.callTika(ctx, data, mt.String())
	if err != nil {
		return domain.ExtractedDocument{}, fmt.Errorf("op=tika.Extract: %w", err)
	}

	doc := domain.ExtractedDocument{Text: text, Success: true}
	meaningful := meaningfulChars(text)
	switch {
	case ext == ".pdf" || mt.Is("application/pdf"):
		if meaningful < minPDFChars {
			doc.Success = false
			doc.Warnings = append(doc.Warnings,
				"testo estratto insufficiente: il PDF potrebbe essere scansionato o protetto da password")
		}
	default:
		if meaningful < minDocxChars {
			doc.Success = false
			doc.Warnings = append(doc.Warnings, "il documento non contiene testo estraibile")
		}
	}
	return doc, nil
}

func (c *Client) callTika(ctx context.Context, data []byte, contentType string) (string, error) {
	u := c.baseURL
	if u == "" {
		u = "http://localhost:9998"
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, u+"/tika", bytes.NewReader(data))
	if err != nil {
		return "", err
	}
	req.Header.Set("Accept", "text/plain")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer func() { _ = resp.Body.Close() }()
	// Tika answers 422 for documents it cannot parse (notably encrypted PDFs).
	if resp.StatusCode == http.StatusUnprocessableEntity {
		return "", nil
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("tika status %d", resp.StatusCode)
	}
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	// Sanitize control characters and then collapse all whitespace to single spaces.
	sanitized := textx.SanitizeText(string(b))
	return strings.Join(strings.Fields(sanitized), " "), nil
}

// extractPlainText decodes a text upload directly, falling back to Latin-1
// for the older policy PDFs-turned-txt that agencies still send around.
func extractPlainText(data []byte) domain.ExtractedDocument {
	var text string
	if utf8.Valid(data) {
		text = string(data)
	} else {
		text = textx.DecodeLatin1(data)
	}
	text = strings.Join(strings.Fields(textx.SanitizeText(text)), " ")

	doc := domain.ExtractedDocument{Text: text, Success: true}
	if meaningfulChars(text) == 0 {
		doc.Success = false
		doc.Warnings = append(doc.Warnings, "il file di testo e' vuoto")
	}
	return doc
}

// meaningfulChars counts letters and digits only, so whitespace and
// punctuation noise from a failed parse does not clear a threshold.
func meaningfulChars(s string) int {
	n := 0
	for _, r := range s {
		if ('a' <= r && r <= 'z') || ('A' <= r && r <= 'Z') || ('0' <= r && r <= '9') || r > 127 {
			n++
		}
	}
	return n
}
