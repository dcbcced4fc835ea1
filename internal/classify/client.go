// Package classify is the HTTP client for the disease-classification
// collaborator: one image in, ranked label/confidence pairs out.
package classify

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/krishimitra/krishimitra/internal/analysis"
)

// Client calls the classifier service.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a classifier client.
func NewClient(log *slog.Logger, baseURL string, timeout time.Duration) *Client {
	if log == nil {
		log = slog.Default()
	}
	if strings.TrimSpace(baseURL) == "" {
		baseURL = "http://127.0.0.1:8082"
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		logger:     log.With(slog.String("service", "classifier_client")),
	}
}

type predictRequest struct {
	ImageBase64 string `json:"image_base64"`
	Mime        string `json:"mime,omitempty"`
}

type predictResponse struct {
	Success     bool             `json:"success"`
	Predictions []analysis.Label `json:"predictions"`
	Warning     string           `json:"warning,omitempty"`
	Error       string           `json:"error,omitempty"`
}

// Classify submits one image and returns the ranked predictions.
func (c *Client) Classify(ctx context.Context, payload []byte, mime string) (analysis.Classification, error) {
	body, err := json.Marshal(predictRequest{
		ImageBase64: base64.StdEncoding.EncodeToString(payload),
		Mime:        mime,
	})
	if err != nil {
		return analysis.Classification{}, err
	}

	url := c.baseURL + "/api/predict"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return analysis.Classification{}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return analysis.Classification{}, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return analysis.Classification{}, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Error("classifier error",
			slog.String("url", url),
			slog.Int("status", resp.StatusCode),
			slog.String("body_prefix", truncate(string(respBody), 300)),
		)
		return analysis.Classification{}, fmt.Errorf("classifier error: %s", strings.TrimSpace(string(respBody)))
	}

	var parsed predictResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return analysis.Classification{}, fmt.Errorf("failed to parse classifier response: %w", err)
	}
	if !parsed.Success {
		msg := parsed.Error
		if msg == "" {
			msg = "classification failed"
		}
		return analysis.Classification{}, fmt.Errorf("classifier error: %s", msg)
	}
	if len(parsed.Predictions) == 0 {
		return analysis.Classification{}, fmt.Errorf("classifier returned no predictions")
	}
	return analysis.Classification{Labels: parsed.Predictions, Warning: parsed.Warning}, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
