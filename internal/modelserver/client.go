// Package modelserver implements the HTTP client for the external model
// server (C2 of the spec): single-text embeddings, streamed chat, and the
// model tag catalog. All three share one keep-alive connection pool.
package modelserver

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"

	"github.com/jwvanderstam/wherespace/internal/apperr"
)

// TagInfo describes one model entry returned by /api/tags.
type TagInfo struct {
	Name       string `json:"name"`
	Size       int64  `json:"size"`
	ModifiedAt string `json:"modified_at"`
}

// StreamToken is one element of a chat_stream sequence: either a text delta
// or a terminal error. The channel is closed after the first error or after
// the server's end-of-stream marker.
type StreamToken struct {
	Text string
	Err  error
}

// Client talks to the model server described in §6.2.
type Client struct {
	baseURL         string
	httpClient      *http.Client
	embedTimeout    time.Duration
	chatIdleTimeout time.Duration
	tagsTimeout     time.Duration
	log             zerolog.Logger
}

// New constructs a Client. A single *http.Client (and therefore a single
// keep-alive transport) is reused across embed/chat/tags calls, per §4.2.
func New(baseURL string, embedTimeout, chatIdleTimeout, tagsTimeout time.Duration, log zerolog.Logger) *Client {
	return &Client{
		baseURL:         strings.TrimRight(baseURL, "/"),
		httpClient:      &http.Client{},
		embedTimeout:    embedTimeout,
		chatIdleTimeout: chatIdleTimeout,
		tagsTimeout:     tagsTimeout,
		log:             logging(log),
	}
}

func logging(l zerolog.Logger) zerolog.Logger {
	return l.With().Str("component", "modelserver").Logger()
}

type embedRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type embedResponse struct {
	Embedding []float32 `json:"embedding"`
}

// Embed posts a single text to /api/embeddings and returns its vector.
// Makes up to 3 attempts on transient failure, waiting 0.5s and then 1s
// between them; 4xx and malformed responses are permanent and do not retry
// (§4.2).
func (c *Client) Embed(ctx context.Context, model, text string) ([]float32, error) {
	ctx, cancel := context.WithTimeout(ctx, c.embedTimeout)
	defer cancel()

	var result []float32
	op := func() error {
		vec, permanent, err := c.embedOnce(ctx, model, text)
		if err != nil {
			if permanent {
				return backoff.Permanent(err)
			}
			return err
		}
		result = vec
		return nil
	}

	policy := backoff.WithMaxRetries(embedBackoff(), 2) // 3 attempts total
	policy = backoff.WithContext(policy, ctx)

	if err := backoff.Retry(op, policy); err != nil {
		return nil, apperr.Embedding("embed text", err)
	}
	return result, nil
}

func embedBackoff() backoff.BackOff {
	b := backoff.NewConstantBackOff(500 * time.Millisecond)
	return &steppedBackoff{steps: []time.Duration{500 * time.Millisecond, time.Second, 2 * time.Second}, fallback: b}
}

// steppedBackoff reproduces the exact 0.5s/1s/2s delay sequence from §4.2
// rather than the uniform or exponential curves backoff.NewExponentialBackOff
// would produce.
type steppedBackoff struct {
	steps    []time.Duration
	fallback backoff.BackOff
	attempt  int
}

func (s *steppedBackoff) NextBackOff() time.Duration {
	if s.attempt < len(s.steps) {
		d := s.steps[s.attempt]
		s.attempt++
		return d
	}
	return backoff.Stop
}

func (s *steppedBackoff) Reset() { s.attempt = 0 }

func (c *Client) embedOnce(ctx context.Context, model, text string) (vec []float32, permanent bool, err error) {
	body, err := json.Marshal(embedRequest{Model: model, Prompt: text})
	if err != nil {
		return nil, true, fmt.Errorf("marshal embed request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, true, fmt.Errorf("build embed request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, false, fmt.Errorf("call embeddings endpoint: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		data, _ := io.ReadAll(resp.Body)
		return nil, false, fmt.Errorf("embeddings endpoint returned %s: %s", resp.Status, string(data))
	}
	if resp.StatusCode >= 400 {
		data, _ := io.ReadAll(resp.Body)
		return nil, true, fmt.Errorf("embeddings endpoint returned %s: %s", resp.Status, string(data))
	}

	var payload embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, true, fmt.Errorf("decode embeddings response: %w", err)
	}

	return payload.Embedding, false, nil
}

type chatRequest struct {
	Model   string         `json:"model"`
	Prompt  string         `json:"prompt"`
	Stream  bool           `json:"stream"`
	Options map[string]any `json:"options,omitempty"`
}

type chatResponseLine struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

// ChatStream posts a streamed chat request and returns a channel of text
// deltas. The channel is closed when the server signals done, on EOF, on
// ctx cancellation, or after a chatIdleTimeout with no delta (§4.2, §5).
// chat_stream is never retried; partial streams are not replayable.
func (c *Client) ChatStream(ctx context.Context, model, prompt string, options map[string]any) (<-chan StreamToken, error) {
	ctx, cancel := context.WithCancel(ctx)

	body, err := json.Marshal(chatRequest{Model: model, Prompt: prompt, Stream: true, Options: options})
	if err != nil {
		cancel()
		return nil, fmt.Errorf("marshal chat request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		cancel()
		return nil, fmt.Errorf("build chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("call chat endpoint: %w", err)
	}
	if resp.StatusCode >= 400 {
		data, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		cancel()
		return nil, fmt.Errorf("chat endpoint returned %s: %s", resp.Status, string(data))
	}

	out := make(chan StreamToken)
	go c.pumpChat(ctx, cancel, resp.Body, out)
	return out, nil
}

func (c *Client) pumpChat(ctx context.Context, cancel context.CancelFunc, body io.ReadCloser, out chan<- StreamToken) {
	defer cancel()
	defer body.Close()
	defer close(out)

	lines := make(chan string)
	errs := make(chan error, 1)

	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			line := scanner.Text()
			if strings.TrimSpace(line) == "" {
				continue
			}
			select {
			case lines <- line:
			case <-ctx.Done():
				return
			}
		}
		if err := scanner.Err(); err != nil {
			select {
			case errs <- err:
			default:
			}
		}
	}()

	idle := time.NewTimer(c.chatIdleTimeout)
	defer idle.Stop()

	for {
		select {
		case <-ctx.Done():
			out <- StreamToken{Err: apperr.Cancelled("chat stream cancelled", ctx.Err())}
			return
		case <-idle.C:
			out <- StreamToken{Err: fmt.Errorf("chat stream idle timeout after %s", c.chatIdleTimeout)}
			return
		case err := <-errs:
			out <- StreamToken{Err: fmt.Errorf("read chat stream: %w", err)}
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			if !idle.Stop() {
				select {
				case <-idle.C:
				default:
				}
			}
			idle.Reset(c.chatIdleTimeout)

			var parsed chatResponseLine
			if err := json.Unmarshal([]byte(line), &parsed); err != nil {
				out <- StreamToken{Err: fmt.Errorf("decode chat line: %w", err)}
				return
			}
			if parsed.Response != "" {
				select {
				case out <- StreamToken{Text: parsed.Response}:
				case <-ctx.Done():
					return
				}
			}
			if parsed.Done {
				return
			}
		}
	}
}

type tagsResponse struct {
	Models []TagInfo `json:"models"`
}

// ListTags returns the models known to the model server, retrying once on
// transient failure (up to 2 attempts total, §4.2).
func (c *Client) ListTags(ctx context.Context) ([]TagInfo, error) {
	ctx, cancel := context.WithTimeout(ctx, c.tagsTimeout)
	defer cancel()

	var result []TagInfo
	op := func() error {
		tags, permanent, err := c.listTagsOnce(ctx)
		if err != nil {
			if permanent {
				return backoff.Permanent(err)
			}
			return err
		}
		result = tags
		return nil
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewConstantBackOff(300*time.Millisecond), 1), ctx)
	if err := backoff.Retry(op, policy); err != nil {
		return nil, apperr.Internal("list model tags", err)
	}
	return result, nil
}

func (c *Client) listTagsOnce(ctx context.Context) (tags []TagInfo, permanent bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/tags", nil)
	if err != nil {
		return nil, true, fmt.Errorf("build tags request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, false, fmt.Errorf("call tags endpoint: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return nil, false, fmt.Errorf("tags endpoint returned %s", resp.Status)
	}
	if resp.StatusCode >= 400 {
		return nil, true, fmt.Errorf("tags endpoint returned %s", resp.Status)
	}

	var payload tagsResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, true, fmt.Errorf("decode tags response: %w", err)
	}
	return payload.Models, false, nil
}
