package classifier

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"scanwatch/internal/config"
	"scanwatch/internal/services"
)

const (
	defaultHTTPTimeout = 60 * time.Second
	jsonResponseType   = "json_object"
)

// Client wraps the remote vision chat-completion API used to categorize
// scanned documents. The client performs exactly one request per call;
// retry, backoff, and breaker behavior belong to the caller's resilient
// executor so delays are never applied twice.
type Client struct {
	cfg        config.Classifier
	httpClient *http.Client
}

// Option customizes the client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// NewClient constructs a classifier client from the [classifier] config.
func NewClient(cfg config.Classifier, opts ...Option) *Client {
	timeout := defaultHTTPTimeout
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	client := &Client{
		cfg: config.Classifier{
			APIKey:         strings.TrimSpace(cfg.APIKey),
			BaseURL:        strings.TrimSpace(cfg.BaseURL),
			Model:          strings.TrimSpace(cfg.Model),
			TimeoutSeconds: cfg.TimeoutSeconds,
		},
		httpClient: &http.Client{Timeout: timeout},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

// Classification is the structured result for one document.
type Classification struct {
	DocumentType string            `json:"document_type"`
	Confidence   float64           `json:"confidence"`
	Identifiers  map[string]string `json:"identifiers"`
	Raw          string            `json:"-"`
}

const systemPrompt = `You are a document intake classifier for scanned legal and business documents.
Given page images of one document, respond with JSON only:
{"document_type": "...", "confidence": 0.0-1.0, "identifiers": {"subject_name": "...", "organization": "...", "case_number": "...", "reference": "...", "account_number": "...", "service_date": "..."}}
Omit identifier keys you cannot determine. Use the document's own wording for document_type.`

// Classify sends the rendered page images (PNG bytes, in page order) and
// parses the model's structured answer. Timeout, rate-limit, and generic
// failures surface as distinguishable errors.
func (c *Client) Classify(ctx context.Context, pages [][]byte) (Classification, error) {
	var empty Classification
	if len(pages) == 0 {
		return empty, services.Wrap(services.ErrValidation, "classify", "request", "no page images to classify", nil)
	}
	if c.cfg.APIKey == "" {
		return empty, services.Wrap(services.ErrConfiguration, "classify", "request", "classifier api key required", nil)
	}

	parts := make([]contentPart, 0, len(pages)+1)
	parts = append(parts, contentPart{Type: "text", Text: "Classify this document."})
	for _, page := range pages {
		encoded := base64.StdEncoding.EncodeToString(page)
		parts = append(parts, contentPart{
			Type:     "image_url",
			ImageURL: &imageURL{URL: "data:image/png;base64," + encoded},
		})
	}

	payload := chatCompletionRequest{
		Model: c.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", ContentParts: parts},
		},
		Temperature:    0,
		ResponseFormat: map[string]string{"type": jsonResponseType},
	}

	content, err := c.sendOnce(ctx, payload)
	if err != nil {
		return empty, err
	}

	var parsed Classification
	if err := decodeModelJSON(content, &parsed); err != nil {
		return empty, fmt.Errorf("classify: parse payload: %w", err)
	}
	parsed.Raw = content
	parsed.DocumentType = strings.TrimSpace(parsed.DocumentType)
	if parsed.DocumentType == "" {
		return empty, errors.New("classify: response carries no document type")
	}
	if parsed.Confidence < 0 {
		parsed.Confidence = 0
	}
	if parsed.Confidence > 1 {
		parsed.Confidence = 1
	}
	return parsed, nil
}

// HealthCheck issues a minimal request to verify the API key and model.
func (c *Client) HealthCheck(ctx context.Context) error {
	if c.cfg.APIKey == "" {
		return services.Wrap(services.ErrConfiguration, "health", "classifier", "classifier api key required", nil)
	}
	payload := chatCompletionRequest{
		Model: c.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: "You must respond with JSON only."},
			{Role: "user", Content: `Respond with {"ok":true}`},
		},
		Temperature:    0,
		ResponseFormat: map[string]string{"type": jsonResponseType},
	}
	content, err := c.sendOnce(ctx, payload)
	if err != nil {
		return err
	}
	var parsed struct {
		OK bool `json:"ok"`
	}
	if err := decodeModelJSON(content, &parsed); err != nil {
		return fmt.Errorf("classifier health: parse payload: %w", err)
	}
	if !parsed.OK {
		return errors.New("classifier health: unexpected response")
	}
	return nil
}

type chatCompletionRequest struct {
	Model          string            `json:"model"`
	Messages       []chatMessage     `json:"messages"`
	Temperature    float64           `json:"temperature"`
	ResponseFormat map[string]string `json:"response_format"`
}

type chatMessage struct {
	Role         string        `json:"role"`
	Content      string        `json:"content,omitempty"`
	ContentParts []contentPart `json:"-"`
}

// MarshalJSON emits either a plain string content or the multipart vision
// schema, whichever the message carries.
func (m chatMessage) MarshalJSON() ([]byte, error) {
	if len(m.ContentParts) == 0 {
		return json.Marshal(struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		}{m.Role, m.Content})
	}
	return json.Marshal(struct {
		Role    string        `json:"role"`
		Content []contentPart `json:"content"`
	}{m.Role, m.ContentParts})
}

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL string `json:"url"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (c *Client) sendOnce(ctx context.Context, payload chatCompletionRequest) (string, error) {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("classifier request: encode body: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL, bytes.NewReader(encoded))
	if err != nil {
		return "", fmt.Errorf("classifier request: new request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if isTimeout(err) {
			return "", services.Wrap(services.ErrTimeout, "classify", "request",
				fmt.Sprintf("request timed out after %s", c.httpClient.Timeout), err)
		}
		return "", services.Wrap(services.ErrTransient, "classify", "request", "http error", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", services.Wrap(services.ErrTransient, "classify", "request", "read body", err)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return "", services.Wrap(services.ErrRateLimited, "classify", "request",
			fmt.Sprintf("http 429: %s", snippet(body)), nil)
	case resp.StatusCode == http.StatusRequestTimeout:
		return "", services.Wrap(services.ErrTimeout, "classify", "request",
			fmt.Sprintf("http 408: %s", snippet(body)), nil)
	case resp.StatusCode >= http.StatusInternalServerError:
		return "", services.Wrap(services.ErrTransient, "classify", "request",
			fmt.Sprintf("http %d: %s", resp.StatusCode, snippet(body)), nil)
	case resp.StatusCode >= http.StatusMultipleChoices:
		return "", fmt.Errorf("classifier request: http %d: %s", resp.StatusCode, snippet(body))
	}

	var completion chatCompletionResponse
	if err := json.Unmarshal(body, &completion); err != nil {
		return "", fmt.Errorf("classifier request: decode response: %w", err)
	}
	if completion.Error != nil {
		return "", fmt.Errorf("classifier request: api error: %s", strings.TrimSpace(completion.Error.Message))
	}
	if len(completion.Choices) == 0 {
		return "", errors.New("classifier request: empty choices")
	}
	content := strings.TrimSpace(completion.Choices[0].Message.Content)
	if content == "" {
		return "", fmt.Errorf("classifier request: empty content (finish_reason=%q)",
			completion.Choices[0].FinishReason)
	}
	return content, nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var urlErr *url.Error
	return errors.As(err, &urlErr) && urlErr.Timeout()
}

func snippet(body []byte) string {
	clean := strings.Join(strings.Fields(string(body)), " ")
	const limit = 160
	runes := []rune(clean)
	if len(runes) > limit {
		clean = string(runes[:limit]) + "..."
	}
	if clean == "" {
		return "<empty>"
	}
	return clean
}

// decodeModelJSON decodes JSON from a model response, tolerating code fences
// and surrounding prose.
func decodeModelJSON(content string, target any) error {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return errors.New("empty payload")
	}

	if err := json.Unmarshal([]byte(trimmed), target); err == nil {
		return nil
	}

	stripped := stripCodeFence(trimmed)
	if start := strings.Index(stripped, "{"); start >= 0 {
		if end := strings.LastIndex(stripped, "}"); end > start {
			stripped = stripped[start : end+1]
		}
	}
	if err := json.Unmarshal([]byte(stripped), target); err != nil {
		return fmt.Errorf("decode model payload: %w", err)
	}
	return nil
}

func stripCodeFence(content string) string {
	trimmed := strings.TrimSpace(content)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	body := strings.TrimLeft(trimmed[3:], " \t\r\n")
	if len(body) >= 4 && strings.EqualFold(body[:4], "json") {
		body = strings.TrimLeft(body[4:], " \t\r\n")
	}
	if idx := strings.LastIndex(body, "```"); idx >= 0 {
		body = body[:idx]
	}
	return strings.TrimSpace(body)
}
