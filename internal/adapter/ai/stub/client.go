// Package stub provides a fast, deterministic chat client for local runs
// without provider credentials.
package stub

import (
	"context"
	"encoding/json"
	"time"
)

// Client answers every extraction prompt with a fixed well-formed payload.
type Client struct{}

func New() *Client { return &Client{} }

// Chat returns a compact JSON string matching the extraction schema.
func (c *Client) Chat(_ context.Context, _ string, _ string, _ int) (string, error) {
	// Simulate a tiny bit of processing latency to resemble real work
	time.Sleep(50 * time.Millisecond)
	payload := map[string]any{
		"ref_number": "Art. 1",
		"title":      "Garanzia di esempio",
		"content":    "Massimale di 10.000 euro per sinistro, franchigia 250 euro.",
		"confidence": 0.9,
	}
	b, _ := json.Marshal(payload)
	return string(b), nil
}

// ChatStructured returns an empty object of the requested shape; callers
// treat the stub as a provider that found nothing to generate.
func (c *Client) ChatStructured(_ context.Context, _ string, _ string, _ int, schemaName string, _ map[string]any) (string, error) {
	time.Sleep(50 * time.Millisecond)
	switch schemaName {
	case "garanzie_generate":
		return `{"garanzie": []}`, nil
	case "sezione_estratta":
		return `{"titolo": "", "testo_estratto": "", "riferimento_articolo": ""}`, nil
	default:
		return `{}`, nil
	}
}
