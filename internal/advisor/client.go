package advisor

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// Client communicates with the conversational-AI collaborator.
type Client struct {
	baseURL         string
	timeout         time.Duration
	logger          *slog.Logger
	httpClient      *http.Client
	streamingClient *http.Client
}

// NewClient creates an advisor client. The streaming client carries no
// request timeout; stream lifetime is bounded by the caller's context.
func NewClient(log *slog.Logger, baseURL string, timeout time.Duration) *Client {
	if log == nil {
		log = slog.Default()
	}
	if strings.TrimSpace(baseURL) == "" {
		baseURL = "http://127.0.0.1:8081"
	}
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &Client{
		baseURL:         strings.TrimRight(baseURL, "/"),
		timeout:         timeout,
		logger:          log.With(slog.String("service", "advisor_client")),
		httpClient:      &http.Client{Timeout: timeout},
		streamingClient: &http.Client{},
	}
}

// Chat sends a one-shot request and returns the full reply.
func (c *Client) Chat(ctx context.Context, req Request) (Reply, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return Reply{}, err
	}
	url := c.baseURL + "/api/chat"
	c.logger.Info("advisor request", slog.String("url", url), slog.String("body_prefix", truncate(string(body), 200)))

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return Reply{}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return Reply{}, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return Reply{}, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Error("advisor error", slog.String("url", url), slog.Int("status", resp.StatusCode), slog.String("body_prefix", truncate(string(respBody), 300)))
		return Reply{}, fmt.Errorf("advisor error: %s", strings.TrimSpace(string(respBody)))
	}

	var parsed Reply
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return Reply{}, fmt.Errorf("failed to parse advisor response: %w", err)
	}
	return parsed, nil
}

// StreamChat opens a reply stream. Events arrive on the first channel in
// delivery order; a transport or protocol failure arrives on the second.
// Both channels are closed when the stream ends.
func (c *Client) StreamChat(ctx context.Context, req Request) (<-chan Event, <-chan error) {
	eventCh := make(chan Event)
	errCh := make(chan error, 1)

	go func() {
		defer close(eventCh)
		defer close(errCh)
		if err := c.streamChat(ctx, req, eventCh); err != nil {
			c.logger.Error("advisor stream failed", slog.Any("error", err))
			errCh <- err
		}
	}()
	return eventCh, errCh
}

func (c *Client) streamChat(ctx context.Context, req Request, eventCh chan<- Event) error {
	body, err := json.Marshal(req)
	if err != nil {
		return err
	}
	url := c.baseURL + "/api/chat/stream"
	c.logger.Info("advisor stream request", slog.String("url", url), slog.String("body_prefix", truncate(string(body), 200)))

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")

	resp, err := c.streamingClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStreamFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		errBody, _ := io.ReadAll(resp.Body)
		c.logger.Error("advisor stream error", slog.String("url", url), slog.Int("status", resp.StatusCode), slog.String("body_prefix", truncate(string(errBody), 300)))
		return fmt.Errorf("%w: %s", ErrStreamFailed, strings.TrimSpace(string(errBody)))
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 2*1024*1024)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "" || data == "[DONE]" {
			continue
		}

		var event Event
		if err := json.Unmarshal([]byte(data), &event); err != nil {
			c.logger.Warn("advisor stream chunk parse failed", slog.String("data_prefix", truncate(data, 200)), slog.Any("error", err))
			continue
		}
		if event.Error != "" {
			return fmt.Errorf("%w: %s", ErrStreamFailed, event.Error)
		}

		select {
		case eventCh <- event:
		case <-ctx.Done():
			return ctx.Err()
		}
		if event.Complete {
			return nil
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrStreamFailed, err)
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
