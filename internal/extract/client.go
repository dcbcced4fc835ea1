// Package extract is the HTTP client for the document-extraction
// collaborator: one file in, raw text plus optional AI summary out.
package extract

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/krishimitra/krishimitra/internal/analysis"
)

// SupportedExtensions lists the document types the collaborator handles.
var SupportedExtensions = map[string]struct{}{
	".pdf":  {},
	".docx": {},
	".txt":  {},
}

// Client calls the extractor service.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates an extractor client.
func NewClient(log *slog.Logger, baseURL string, timeout time.Duration) *Client {
	if log == nil {
		log = slog.Default()
	}
	if strings.TrimSpace(baseURL) == "" {
		baseURL = "http://127.0.0.1:8083"
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		logger:     log.With(slog.String("service", "extractor_client")),
	}
}

type extractRequest struct {
	FileBase64 string `json:"file_base64"`
	FileName   string `json:"file_name"`
	FileType   string `json:"file_type"`
}

type extractResponse struct {
	Success   bool   `json:"success"`
	Text      string `json:"text"`
	WordCount int    `json:"word_count"`
	AISummary string `json:"ai_summary,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Extract submits one document and returns its text and optional summary.
func (c *Client) Extract(ctx context.Context, payload []byte, displayName string) (analysis.DocumentData, error) {
	ext := strings.ToLower(filepath.Ext(displayName))
	if _, ok := SupportedExtensions[ext]; !ok {
		return analysis.DocumentData{}, fmt.Errorf("unsupported file format %q", ext)
	}

	body, err := json.Marshal(extractRequest{
		FileBase64: base64.StdEncoding.EncodeToString(payload),
		FileName:   displayName,
		FileType:   strings.TrimPrefix(ext, "."),
	})
	if err != nil {
		return analysis.DocumentData{}, err
	}

	url := c.baseURL + "/api/document/extract"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return analysis.DocumentData{}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return analysis.DocumentData{}, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return analysis.DocumentData{}, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Error("extractor error",
			slog.String("url", url),
			slog.Int("status", resp.StatusCode),
			slog.String("body_prefix", truncate(string(respBody), 300)),
		)
		return analysis.DocumentData{}, fmt.Errorf("extractor error: %s", strings.TrimSpace(string(respBody)))
	}

	var parsed extractResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return analysis.DocumentData{}, fmt.Errorf("failed to parse extractor response: %w", err)
	}
	if !parsed.Success {
		msg := parsed.Error
		if msg == "" {
			msg = "extraction failed"
		}
		return analysis.DocumentData{}, fmt.Errorf("extractor error: %s", msg)
	}
	if strings.TrimSpace(parsed.Text) == "" {
		return analysis.DocumentData{}, fmt.Errorf("no text extracted from document")
	}

	wordCount := parsed.WordCount
	if wordCount == 0 {
		wordCount = len(strings.Fields(parsed.Text))
	}
	return analysis.DocumentData{
		Text:      parsed.Text,
		WordCount: wordCount,
		AISummary: parsed.AISummary,
	}, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
