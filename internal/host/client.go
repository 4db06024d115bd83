package host

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/banshee-data/capturefinery/internal/httputil"
)

// DefaultPollInterval is how often the client polls execution status while a
// cycle is running.
const DefaultPollInterval = 250 * time.Millisecond

// maxSnapshotSize bounds the snapshot body read into memory.
const maxSnapshotSize = 64 << 20

// Client drives a remote host over HTTP.
type Client struct {
	HTTPClient   httputil.HTTPClient
	BaseURL      string
	PollInterval time.Duration

	mu      sync.Mutex
	handler func()
	stop    chan struct{}
	pollers sync.WaitGroup
}

// NewClient creates a client for the host at baseURL.
func NewClient(httpClient httputil.HTTPClient, baseURL string) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{
		HTTPClient:   httpClient,
		BaseURL:      baseURL,
		PollInterval: DefaultPollInterval,
		stop:         make(chan struct{}),
	}
}

// ExecutionStatus is the host's report on execution cycles.
type ExecutionStatus struct {
	Running   bool  `json:"running"`
	Completed int64 `json:"completed"`
}

type inputDTO struct {
	Name string `json:"name"`
	Kind string `json:"kind"`
}

type nodeDTO struct {
	ID    string    `json:"id"`
	State NodeState `json:"state"`
}

type modeDTO struct {
	Mode ExecutionMode `json:"mode"`
}

// do sends a JSON request and decodes a JSON response into out when non-nil.
func (c *Client) do(method, path string, in, out interface{}) (int, error) {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return 0, fmt.Errorf("marshal %s body: %w", path, err)
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, c.BaseURL+path, body)
	if err != nil {
		return 0, fmt.Errorf("creating request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return resp.StatusCode, fmt.Errorf("%s %s: status %d: %s", method, path, resp.StatusCode, bytes.TrimSpace(msg))
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, fmt.Errorf("decoding %s response: %w", path, err)
		}
	}
	return resp.StatusCode, nil
}

// Status fetches the current execution status.
func (c *Client) Status() (ExecutionStatus, error) {
	var st ExecutionStatus
	_, err := c.do(http.MethodGet, "/api/execution/status", nil, &st)
	return st, err
}

// TriggerExecution asks the host to run one cycle and starts polling for its
// completion. The completion handler fires once the completed counter moves
// past its value before the trigger and the host is no longer running.
func (c *Client) TriggerExecution() error {
	before, err := c.Status()
	if err != nil {
		return fmt.Errorf("reading status before run: %w", err)
	}
	if _, err := c.do(http.MethodPost, "/api/execution/run", nil, nil); err != nil {
		return err
	}
	c.pollers.Add(1)
	go c.pollCompletion(before.Completed)
	return nil
}

func (c *Client) pollCompletion(before int64) {
	defer c.pollers.Done()
	interval := c.PollInterval
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	failures := 0
	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
		}
		st, err := c.Status()
		if err != nil {
			failures++
			if failures == 1 || failures%20 == 0 {
				logf("WARNING: polling execution status (%d failures): %v", failures, err)
			}
			continue
		}
		if !st.Running && st.Completed > before {
			c.mu.Lock()
			h := c.handler
			c.mu.Unlock()
			if h != nil {
				h()
			}
			return
		}
	}
}

func (c *Client) OnExecutionCompleted(fn func()) {
	c.mu.Lock()
	c.handler = fn
	c.mu.Unlock()
}

func (c *Client) BindInput(name string) (Input, error) {
	var dto inputDTO
	status, err := c.do(http.MethodGet, "/api/inputs/"+url.PathEscape(name), nil, &dto)
	if status == http.StatusNotFound {
		return Input{}, fmt.Errorf("%w: %q", ErrInputNotFound, name)
	}
	if err != nil {
		return Input{}, err
	}
	return Input{Name: name, Kind: ParseInputKind(dto.Kind)}, nil
}

func (c *Client) SetInput(name string, v Value) error {
	payload := map[string]interface{}{"kind": v.Kind.String(), "value": v.Any()}
	status, err := c.do(http.MethodPut, "/api/inputs/"+url.PathEscape(name), payload, nil)
	if status == http.StatusNotFound {
		return fmt.Errorf("%w: %q", ErrInputNotFound, name)
	}
	return err
}

// CaptureVisualSnapshot downloads the host's current view as JPEG to path.
func (c *Client) CaptureVisualSnapshot(path string) error {
	resp, err := c.HTTPClient.Get(c.BaseURL + "/api/snapshot")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("snapshot: status %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxSnapshotSize+1))
	if err != nil {
		return fmt.Errorf("reading snapshot: %w", err)
	}
	if len(data) > maxSnapshotSize {
		return fmt.Errorf("snapshot exceeds %d bytes", maxSnapshotSize)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating snapshot dir: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing snapshot %s: %w", path, err)
	}
	return nil
}

func (c *Client) QueryNodeStates() ([]NodeState, error) {
	var nodes []nodeDTO
	if _, err := c.do(http.MethodGet, "/api/nodes", nil, &nodes); err != nil {
		return nil, err
	}
	states := make([]NodeState, len(nodes))
	for i, n := range nodes {
		states[i] = n.State
	}
	return states, nil
}

func (c *Client) ExecutionMode() (ExecutionMode, error) {
	var m modeDTO
	if _, err := c.do(http.MethodGet, "/api/execution/mode", nil, &m); err != nil {
		return "", err
	}
	return m.Mode, nil
}

func (c *Client) SetExecutionMode(mode ExecutionMode) error {
	_, err := c.do(http.MethodPut, "/api/execution/mode", modeDTO{Mode: mode}, nil)
	return err
}

// Close stops outstanding completion pollers.
func (c *Client) Close() {
	c.mu.Lock()
	select {
	case <-c.stop:
	default:
		close(c.stop)
	}
	c.mu.Unlock()
	c.pollers.Wait()
}
