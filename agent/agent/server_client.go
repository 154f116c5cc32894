package agent

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// maxErrorBody caps how much of a failed response is kept in StatusError.
const maxErrorBody = 512

// ServerClient talks to the aggregator's HTTP API.
type ServerClient struct {
	BaseURL    string
	HTTPClient *http.Client
	UserAgent  string
	log        Logger
}

// NewServerClient builds a client for baseURL. When caPath names a PEM file it
// is used as the trust root (self-signed aggregators); otherwise the system
// pool applies.
func NewServerClient(baseURL, caPath string, insecureSkipVerify bool, timeout time.Duration, log Logger) (*ServerClient, error) {
	log = orNop(log)
	tlsConfig := &tls.Config{
		MinVersion:         tls.VersionTLS12,
		InsecureSkipVerify: insecureSkipVerify,
	}
	if caPath != "" {
		pem, err := os.ReadFile(caPath)
		if err != nil {
			return nil, fmt.Errorf("read server CA %s: %w", caPath, err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("server CA %s holds no certificates", caPath)
		}
		tlsConfig.RootCAs = pool
	}
	if insecureSkipVerify {
		log.Warn("TLS verification disabled for aggregator", "url", baseURL)
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &ServerClient{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTPClient: &http.Client{
			Timeout:   timeout,
			Transport: &http.Transport{TLSClientConfig: tlsConfig, Proxy: http.ProxyFromEnvironment},
		},
		UserAgent: "printrelay-agent",
		log:       log,
	}, nil
}

// RegisterRequest is the body of POST /agents/register.
type RegisterRequest struct {
	AgentID   string `json:"agent_id"`
	Name      string `json:"name"`
	Hostname  string `json:"hostname"`
	IPAddress string `json:"ip_address"`
	Platform  string `json:"platform"`
	OSInfo    string `json:"os_info,omitempty"`
	Version   string `json:"version"`
}

// RegisterResponse is the aggregator's answer. Both fields are optional.
type RegisterResponse struct {
	Token   string `json:"token"`
	AgentID string `json:"agent_id"`
	Message string `json:"message,omitempty"`
}

// Register announces the agent. Any 2xx is success.
func (c *ServerClient) Register(ctx context.Context, credential string, req RegisterRequest) (*RegisterResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode registration: %w", err)
	}
	data, err := c.doRequest(ctx, http.MethodPost, "/agents/register", credential, body, is2xx)
	if err != nil {
		return nil, fmt.Errorf("registration failed: %w", err)
	}
	var resp RegisterResponse
	c.decodeLenient("/agents/register", data, &resp)
	return &resp, nil
}

// DataResponse is the optional body of a 200 from POST /data.
type DataResponse struct {
	PrinterID flexibleID `json:"printer_id"`
}

// PostData delivers one envelope payload. Only 200 counts as acknowledged.
func (c *ServerClient) PostData(ctx context.Context, credential string, payload json.RawMessage) (*DataResponse, error) {
	data, err := c.doRequest(ctx, http.MethodPost, "/data", credential, payload, isOK)
	if err != nil {
		return nil, err
	}
	var resp DataResponse
	c.decodeLenient("/data", data, &resp)
	return &resp, nil
}

// FetchConfig pulls remote-managed overrides for agentID. Unlike the other
// calls, a body that does not decode is an error.
func (c *ServerClient) FetchConfig(ctx context.Context, credential, agentID string) (*RemoteConfig, error) {
	data, err := c.doRequest(ctx, http.MethodGet, "/agents/config/"+url.PathEscape(agentID), credential, nil, isOK)
	if err != nil {
		return nil, err
	}
	var cfg RemoteConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("decode remote config: %w", err)
	}
	return &cfg, nil
}

func isOK(code int) bool  { return code == http.StatusOK }
func is2xx(code int) bool { return code >= 200 && code < 300 }

// doRequest sends body to path and returns the response body when accept
// approves the status. Other statuses come back as *StatusError.
func (c *ServerClient) doRequest(ctx context.Context, method, path, credential string, body []byte, accept func(int) bool) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.UserAgent)
	if credential != "" {
		req.Header.Set("Authorization", "Bearer "+credential)
	}

	c.log.Debug("HTTP request", "method", method, "path", path, "auth", credential != "")
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s %s: %v", ErrDeliveryFailed, method, path, err)
	}
	defer resp.Body.Close()

	data, readErr := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if !accept(resp.StatusCode) {
		text := strings.TrimSpace(string(data))
		if len(text) > maxErrorBody {
			text = text[:maxErrorBody]
		}
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: text}
	}
	if readErr != nil {
		c.log.Debug("Response body read failed", "path", path, "error", readErr)
	}
	return data, nil
}

// decodeLenient fills dest from data when it can. The aggregator's reply
// fields are optional, so a missing or malformed body is not a failure.
func (c *ServerClient) decodeLenient(path string, data []byte, dest interface{}) {
	if len(bytes.TrimSpace(data)) == 0 {
		return
	}
	if err := json.Unmarshal(data, dest); err != nil {
		c.log.Debug("Ignoring undecodable response body", "path", path, "error", err)
	}
}

// flexibleID accepts a JSON number or string.
type flexibleID string

func (f *flexibleID) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	if s == "null" || s == "" {
		*f = ""
		return nil
	}
	if strings.HasPrefix(s, `"`) {
		var str string
		if err := json.Unmarshal(b, &str); err != nil {
			return err
		}
		*f = flexibleID(strings.TrimSpace(str))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	if i, err := strconv.ParseInt(n.String(), 10, 64); err == nil {
		*f = flexibleID(strconv.FormatInt(i, 10))
		return nil
	}
	*f = flexibleID(n.String())
	return nil
}

func (f flexibleID) String() string { return string(f) }
