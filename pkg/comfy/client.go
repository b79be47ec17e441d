// Package comfy is a minimal HTTP client for the ComfyUI server API: queue
// inspection, prompt submission, history, and output retrieval.
package comfy

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

// DefaultBaseURL is where ComfyUI listens inside the container.
const DefaultBaseURL = "http://127.0.0.1:8188"

// Client talks to one ComfyUI server.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient sets the HTTP client to use.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// NewClient creates a client for the server at baseURL. An empty baseURL
// selects DefaultBaseURL.
func NewClient(baseURL string, opts ...ClientOption) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: http.DefaultClient,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// QueueItem is one entry of the server's execution queue. The wire format
// is a tuple array: [priority, prompt_id, prompt, ...]; trailing elements
// are ignored.
type QueueItem struct {
	Priority float64
	ID       string
	Prompt   json.RawMessage
}

// UnmarshalJSON decodes the tuple-array representation.
func (q *QueueItem) UnmarshalJSON(data []byte) error {
	var tuple []json.RawMessage
	if err := json.Unmarshal(data, &tuple); err != nil {
		return fmt.Errorf("queue item is not an array: %w", err)
	}
	if len(tuple) < 3 {
		return fmt.Errorf("queue item has %d elements, want at least 3", len(tuple))
	}
	if err := json.Unmarshal(tuple[0], &q.Priority); err != nil {
		return fmt.Errorf("queue item priority: %w", err)
	}
	if err := json.Unmarshal(tuple[1], &q.ID); err != nil {
		return fmt.Errorf("queue item id: %w", err)
	}
	q.Prompt = tuple[2]
	return nil
}

// QueueState is the server's queue snapshot.
type QueueState struct {
	Running []QueueItem `json:"queue_running"`
	Pending []QueueItem `json:"queue_pending"`
}

// Queue fetches the current queue snapshot.
func (c *Client) Queue(ctx context.Context) (*QueueState, error) {
	var state QueueState
	if err := c.getJSON(ctx, "/queue", &state); err != nil {
		return nil, err
	}
	return &state, nil
}

// PendingPrompts returns the job specs of all pending queue entries.
func (c *Client) PendingPrompts(ctx context.Context) ([]json.RawMessage, error) {
	state, err := c.Queue(ctx)
	if err != nil {
		return nil, err
	}
	prompts := make([]json.RawMessage, 0, len(state.Pending))
	for _, item := range state.Pending {
		prompts = append(prompts, item.Prompt)
	}
	return prompts, nil
}

// QueuePrompt submits a job spec for execution and returns its prompt ID.
func (c *Client) QueuePrompt(ctx context.Context, prompt json.RawMessage) (string, error) {
	body, err := json.Marshal(map[string]json.RawMessage{"prompt": prompt})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/prompt", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("queueing prompt: server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	var out struct {
		PromptID string `json:"prompt_id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode prompt response: %w", err)
	}
	return out.PromptID, nil
}

// ImageRef identifies one generated output image.
type ImageRef struct {
	Filename  string `json:"filename"`
	Subfolder string `json:"subfolder"`
	Type      string `json:"type"`
}

// NodeOutput holds the outputs of one executed node.
type NodeOutput struct {
	Images []ImageRef `json:"images"`
}

// HistoryEntry is the recorded execution of one prompt.
type HistoryEntry struct {
	Outputs map[string]NodeOutput `json:"outputs"`
}

// History fetches the execution record of a prompt. The second return
// reports whether the prompt has finished (appears in history).
func (c *Client) History(ctx context.Context, promptID string) (*HistoryEntry, bool, error) {
	var hist map[string]HistoryEntry
	if err := c.getJSON(ctx, "/history/"+url.PathEscape(promptID), &hist); err != nil {
		return nil, false, err
	}
	entry, ok := hist[promptID]
	if !ok {
		return nil, false, nil
	}
	return &entry, true, nil
}

// DownloadOutput saves one generated image into destDir, returning the
// local path written.
func (c *Client) DownloadOutput(ctx context.Context, img ImageRef, destDir string) (string, error) {
	q := url.Values{}
	q.Set("filename", img.Filename)
	q.Set("subfolder", img.Subfolder)
	t := img.Type
	if t == "" {
		t = "output"
	}
	q.Set("type", t)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/view?"+q.Encode(), http.NoBody)
	if err != nil {
		return "", err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetching output %s: server returned %d", img.Filename, resp.StatusCode)
	}

	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return "", err
	}
	dest := filepath.Join(destDir, filepath.Base(img.Filename))
	f, err := os.Create(dest)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(f, resp.Body); err != nil {
		f.Close()
		return "", fmt.Errorf("save output %s: %w", img.Filename, err)
	}
	return dest, f.Close()
}

func (c *Client) getJSON(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, http.NoBody)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("GET %s: server returned %d", path, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}
