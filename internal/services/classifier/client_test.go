package classifier

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/go-cmp/cmp"

	"scanwatch/internal/config"
	"scanwatch/internal/services"
)

func testConfig(url string) config.Classifier {
	return config.Classifier{
		APIKey:         "test",
		BaseURL:        url,
		Model:          "test-model",
		TimeoutSeconds: 5,
	}
}

func completionBody(content string) string {
	payload := map[string]any{
		"choices": []map[string]any{
			{"message": map[string]any{"content": content}, "finish_reason": "stop"},
		},
	}
	encoded, _ := json.Marshal(payload)
	return string(encoded)
}

func TestClassifyParsesStructuredResponse(t *testing.T) {
	var gotRequests int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotRequests++
		if r.Header.Get("Authorization") != "Bearer test" {
			t.Errorf("missing auth header")
		}
		var req map[string]any
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Write([]byte(completionBody(`{"document_type":"Complaint","confidence":0.93,"identifiers":{"subject_name":"Smith, John","case_number":"24-CV-1234"}}`)))
	}))
	defer server.Close()

	client := NewClient(testConfig(server.URL))
	result, err := client.Classify(context.Background(), [][]byte{[]byte("png-bytes")})
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if result.DocumentType != "Complaint" {
		t.Fatalf("document type %q", result.DocumentType)
	}
	if result.Confidence != 0.93 {
		t.Fatalf("confidence %v", result.Confidence)
	}
	wantIdentifiers := map[string]string{
		"subject_name": "Smith, John",
		"case_number":  "24-CV-1234",
	}
	if diff := cmp.Diff(wantIdentifiers, result.Identifiers); diff != "" {
		t.Fatalf("identifiers mismatch (-want +got):\n%s", diff)
	}
	if gotRequests != 1 {
		t.Fatalf("client sent %d requests, must send exactly one", gotRequests)
	}
}

func TestClassifyToleratesCodeFence(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(completionBody("```json\n{\"document_type\":\"Invoice\",\"confidence\":0.8}\n```")))
	}))
	defer server.Close()

	client := NewClient(testConfig(server.URL))
	result, err := client.Classify(context.Background(), [][]byte{[]byte("png")})
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if result.DocumentType != "Invoice" {
		t.Fatalf("document type %q", result.DocumentType)
	}
}

func TestClassifyRateLimitDistinguishable(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	client := NewClient(testConfig(server.URL))
	_, err := client.Classify(context.Background(), [][]byte{[]byte("png")})
	if !errors.Is(err, services.ErrRateLimited) {
		t.Fatalf("expected rate-limit marker, got %v", err)
	}
	// No internal retry: the resilient executor owns backoff.
	if calls != 1 {
		t.Fatalf("client retried internally: %d calls", calls)
	}
}

func TestClassifyServerErrorIsTransient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	client := NewClient(testConfig(server.URL))
	_, err := client.Classify(context.Background(), [][]byte{[]byte("png")})
	if !errors.Is(err, services.ErrTransient) {
		t.Fatalf("expected transient marker for 5xx, got %v", err)
	}
}

func TestClassifyClientErrorIsPlain(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	client := NewClient(testConfig(server.URL))
	_, err := client.Classify(context.Background(), [][]byte{[]byte("png")})
	if err == nil {
		t.Fatal("expected error")
	}
	if errors.Is(err, services.ErrTransient) || errors.Is(err, services.ErrRateLimited) || errors.Is(err, services.ErrTimeout) {
		t.Fatalf("4xx must not carry a retryable marker: %v", err)
	}
}

func TestClassifyMissingDocumentTypeFails(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(completionBody(`{"confidence":0.5}`)))
	}))
	defer server.Close()

	client := NewClient(testConfig(server.URL))
	if _, err := client.Classify(context.Background(), [][]byte{[]byte("png")}); err == nil {
		t.Fatal("expected error for response without document type")
	}
}

func TestClassifyRequiresPagesAndKey(t *testing.T) {
	client := NewClient(testConfig("http://unused"))
	if _, err := client.Classify(context.Background(), nil); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation marker, got %v", err)
	}

	client = NewClient(config.Classifier{BaseURL: "http://unused"})
	if _, err := client.Classify(context.Background(), [][]byte{[]byte("png")}); !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration marker, got %v", err)
	}
}
