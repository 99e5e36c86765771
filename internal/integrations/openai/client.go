package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"
)

// defaultTimeout bounds the single outbound call per chat turn. There is no
// retry and no external abort path; a slow upstream surfaces as an error.
const defaultTimeout = 60 * time.Second

// responsesRequest is the minimal request shape for the Responses endpoint.
// The prompt field references a reusable server-side prompt template.
type responsesRequest struct {
	Model  string           `json:"model"`
	Prompt *promptReference `json:"prompt,omitempty"`
	Input  string           `json:"input"`
}

type promptReference struct {
	ID string `json:"id"`
}

// responsesResponse is the minimal response shape returned by the Responses
// endpoint. Text fragments are concatenated in array order.
type responsesResponse struct {
	ID     string `json:"id"`
	Output []struct {
		Type    string `json:"type"`
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
	} `json:"output"`
}

// tokenPayload is the expected JSON shape stored in the parameter store for
// the API token.
type tokenPayload struct {
	Token string `json:"token"`
}

type Getter interface {
	GetParameter(ctx context.Context, name string) (string, error)
}

// HTTPStatusError captures non-2xx upstream responses with status-aware context.
type HTTPStatusError struct {
	StatusCode int
	URL        string
	Body       string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("openai: unexpected status %d from %s: %s", e.StatusCode, e.URL, e.Body)
}

func (e *HTTPStatusError) HTTPStatusCode() int {
	return e.StatusCode
}

// Client is a focused OpenAI client for the Responses API.
type Client struct {
	baseURL     string
	httpClient  *http.Client
	getter      Getter
	paramPrefix string

	keyOnce   sync.Once
	apiKey    string
	keyErr    error
	staticKey string
}

type Option func(*Client)

func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		c.baseURL = strings.TrimSpace(baseURL)
	}
}

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithStaticAPIKey bypasses parameter-store key retrieval. Used on
// deployments without AWS access, where the key comes from the environment.
func WithStaticAPIKey(key string) Option {
	return func(c *Client) {
		c.staticKey = strings.TrimSpace(key)
	}
}

// NewClient creates a Client backed by the given Getter for API key
// retrieval. The key is fetched on the first call to Respond and reused for
// the lifetime of the process.
func NewClient(ps Getter, paramPrefix string, opts ...Option) (*Client, error) {
	if ps == nil {
		return nil, errors.New("openai: paramstore getter must not be nil")
	}
	paramPrefix = strings.TrimRight(strings.TrimSpace(paramPrefix), "/")
	if paramPrefix == "" {
		return nil, errors.New("openai: parameter prefix must not be empty")
	}
	c := &Client{
		baseURL:     "https://api.openai.com/v1",
		httpClient:  &http.Client{Timeout: defaultTimeout},
		getter:      ps,
		paramPrefix: paramPrefix,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// resolveAPIKey returns the static key if configured, otherwise fetches the
// key from the parameter store once and caches it.
func (c *Client) resolveAPIKey(ctx context.Context) (string, error) {
	if c.staticKey != "" {
		return c.staticKey, nil
	}
	c.keyOnce.Do(func() {
		c.apiKey, c.keyErr = fetchAPIKeyFromParamStore(ctx, c.getter, c.tokenParameterName())
	})
	return c.apiKey, c.keyErr
}

func (c *Client) tokenParameterName() string {
	return c.paramPrefix + "/open-ai-token"
}

func (c *Client) resolvedHTTPClient() *http.Client {
	if c.httpClient != nil {
		return c.httpClient
	}
	return &http.Client{Timeout: defaultTimeout}
}

func responsesURL(baseURL string) string {
	base := strings.TrimRight(baseURL, "/")
	if base == "" {
		base = "https://api.openai.com/v1"
	}
	if strings.HasSuffix(base, "/v1") {
		return base + "/responses"
	}
	return base + "/v1/responses"
}

// Respond sends one request to the Responses API and returns the generated
// answer and the upstream response id. The answer is the concatenation, in
// array order, of every output_text fragment; it may be empty when the
// upstream produced none.
func (c *Client) Respond(ctx context.Context, model, promptID, input string) (string, string, error) {
	if model == "" {
		return "", "", errors.New("openai: model must not be empty")
	}

	apiKey, err := c.resolveAPIKey(ctx)
	if err != nil {
		return "", "", err
	}

	reqPayload := responsesRequest{Model: model, Input: input}
	if promptID != "" {
		reqPayload.Prompt = &promptReference{ID: promptID}
	}
	body, err := json.Marshal(reqPayload)
	if err != nil {
		return "", "", fmt.Errorf("openai: marshal request: %w", err)
	}

	url := responsesURL(c.baseURL)

	req, reqErr := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if reqErr != nil {
		return "", "", fmt.Errorf("openai: create request: %w", reqErr)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+apiKey)

	raw, err := c.doJSONRequest(req, url)
	if err != nil {
		return "", "", fmt.Errorf("openai: request failed: %w", err)
	}

	var payload responsesResponse
	if decErr := json.Unmarshal(raw, &payload); decErr != nil {
		return "", "", fmt.Errorf("openai: decode response: %w", decErr)
	}

	var text strings.Builder
	for _, out := range payload.Output {
		for _, part := range out.Content {
			if part.Type == "output_text" {
				text.WriteString(part.Text)
			}
		}
	}
	return text.String(), payload.ID, nil
}

func (c *Client) doJSONRequest(req *http.Request, url string) ([]byte, error) {
	res, doErr := c.resolvedHTTPClient().Do(req)
	if doErr != nil {
		return nil, doErr
	}
	defer func() { _ = res.Body.Close() }()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		buf, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return nil, &HTTPStatusError{
			StatusCode: res.StatusCode,
			URL:        url,
			Body:       string(buf),
		}
	}

	buf, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	return buf, nil
}

func fetchAPIKeyFromParamStore(ctx context.Context, getter Getter, name string) (string, error) {
	if getter == nil {
		return "", errors.New("openai: paramstore getter is nil")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return "", errors.New("openai: token parameter name is empty")
	}

	raw, err := getter.GetParameter(ctx, name)
	if err != nil {
		return "", fmt.Errorf("openai: fetch token from paramstore: %w", err)
	}
	var tp tokenPayload
	if err := json.Unmarshal([]byte(raw), &tp); err != nil {
		return "", fmt.Errorf("openai: unmarshal paramstore token value as JSON: %w", err)
	}
	if tp.Token == "" {
		return "", fmt.Errorf("openai: API token is empty")
	}
	return tp.Token, nil
}
