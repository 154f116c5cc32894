package agent

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
)

// fakeAggregator records requests and answers from per-path scripts.
type fakeAggregator struct {
	mu       sync.Mutex
	requests []recordedRequest
	// dataStatuses is consumed one entry per POST /data; when exhausted 200 is used.
	dataStatuses []int
	dataBody     string
	registerBody string
	registerCode int
	configBody   string
	configCode   int
}

type recordedRequest struct {
	Method string
	Path   string
	Auth   string
	Body   []byte
}

func newFakeAggregator(t *testing.T) (*fakeAggregator, *ServerClient) {
	t.Helper()
	fa := &fakeAggregator{registerCode: http.StatusOK, configCode: http.StatusOK}
	srv := httptest.NewServer(fa)
	t.Cleanup(srv.Close)

	client, err := NewServerClient(srv.URL+"/", "", false, 5*time.Second, nil)
	if err != nil {
		t.Fatalf("NewServerClient: %v", err)
	}
	return fa, client
}

func (fa *fakeAggregator) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	fa.mu.Lock()
	fa.requests = append(fa.requests, recordedRequest{Method: r.Method, Path: r.URL.EscapedPath(), Auth: r.Header.Get("Authorization"), Body: body})

	var (
		code = http.StatusOK
		resp string
	)
	switch {
	case r.Method == http.MethodPost && r.URL.Path == "/data":
		if len(fa.dataStatuses) > 0 {
			code = fa.dataStatuses[0]
			fa.dataStatuses = fa.dataStatuses[1:]
		}
		resp = fa.dataBody
	case r.Method == http.MethodPost && r.URL.Path == "/agents/register":
		code = fa.registerCode
		resp = fa.registerBody
	case r.Method == http.MethodGet && strings.HasPrefix(r.URL.Path, "/agents/config/"):
		code = fa.configCode
		resp = fa.configBody
	default:
		code = http.StatusNotFound
	}
	fa.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = io.WriteString(w, resp)
}

func (fa *fakeAggregator) requestsTo(path string) []recordedRequest {
	fa.mu.Lock()
	defer fa.mu.Unlock()
	var out []recordedRequest
	for _, r := range fa.requests {
		if r.Path == path {
			out = append(out, r)
		}
	}
	return out
}

func decodeJSON(t *testing.T, b []byte, v interface{}) {
	t.Helper()
	if err := json.Unmarshal(b, v); err != nil {
		t.Fatalf("decode %s: %v", b, err)
	}
}
