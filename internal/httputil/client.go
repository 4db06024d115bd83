// Package httputil holds the HTTP client seam and JSON response helpers shared
// by the host client and the sweep control API.
package httputil

import (
	"bytes"
	"io"
	"net/http"
	"sync"
)

// HTTPClient is the subset of *http.Client the host client uses.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
	Get(url string) (*http.Response, error)
}

var _ HTTPClient = (*http.Client)(nil)

type route struct {
	status int
	body   string
	err    error
}

// MockHTTPClient stands in for a remote host. Replies are registered per
// "METHOD /path"; several replies for one route are served in order and the
// last one repeats. Unregistered routes answer 404.
type MockHTTPClient struct {
	mu       sync.Mutex
	routes   map[string][]route
	requests []*http.Request
}

func NewMockHTTPClient() *MockHTTPClient {
	return &MockHTTPClient{routes: make(map[string][]route)}
}

// On queues a reply for method and path.
func (m *MockHTTPClient) On(method, path string, status int, body string) *MockHTTPClient {
	return m.add(method, path, route{status: status, body: body})
}

// Fail queues a transport error for method and path.
func (m *MockHTTPClient) Fail(method, path string, err error) *MockHTTPClient {
	return m.add(method, path, route{err: err})
}

func (m *MockHTTPClient) add(method, path string, r route) *MockHTTPClient {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := method + " " + path
	m.routes[key] = append(m.routes[key], r)
	return m
}

func (m *MockHTTPClient) Do(req *http.Request) (*http.Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, req)

	key := req.Method + " " + req.URL.Path
	replies := m.routes[key]
	r := route{status: http.StatusNotFound, body: "no route for " + key}
	if len(replies) > 0 {
		r = replies[0]
		if len(replies) > 1 {
			m.routes[key] = replies[1:]
		}
	}
	if r.err != nil {
		return nil, r.err
	}
	return &http.Response{
		StatusCode: r.status,
		Body:       io.NopCloser(bytes.NewBufferString(r.body)),
		Header:     make(http.Header),
		Request:    req,
	}, nil
}

func (m *MockHTTPClient) Get(url string) (*http.Response, error) {
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	return m.Do(req)
}

// Paths returns "METHOD /path" for each request seen, in order.
func (m *MockHTTPClient) Paths() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.requests))
	for i, r := range m.requests {
		out[i] = r.Method + " " + r.URL.Path
	}
	return out
}
