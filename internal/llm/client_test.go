package llm_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/raincheck/raincheck/internal/llm"
)

func TestChatJSONSendsConstrainedRequest(t *testing.T) {
	var gotAuth string
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"{\"selections\":[]}"}}]}`))
	}))
	defer srv.Close()

	c := llm.New("test-key", "gpt-4o-mini", llm.WithEndpoint(srv.URL))
	out, err := c.ChatJSON(context.Background(), "system says", "user asks")
	if err != nil {
		t.Fatalf("ChatJSON() error = %v", err)
	}
	if out != `{"selections":[]}` {
		t.Errorf("content = %q", out)
	}
	if gotAuth != "Bearer test-key" {
		t.Errorf("Authorization = %q", gotAuth)
	}
	if gotBody["model"] != "gpt-4o-mini" {
		t.Errorf("model = %v", gotBody["model"])
	}
	rf, _ := gotBody["response_format"].(map[string]any)
	if rf == nil || rf["type"] != "json_object" {
		t.Errorf("response_format = %v", gotBody["response_format"])
	}
	msgs, _ := gotBody["messages"].([]any)
	if len(msgs) != 2 {
		t.Fatalf("messages = %v", gotBody["messages"])
	}
}

func TestChatOmitsResponseFormat(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		json.NewDecoder(r.Body).Decode(&body)
		if _, ok := body["response_format"]; ok {
			t.Error("plain Chat should not send response_format")
		}
		w.Write([]byte(`{"choices":[{"message":{"content":"안녕하세요"}}]}`))
	}))
	defer srv.Close()

	c := llm.New("test-key", "", llm.WithEndpoint(srv.URL))
	out, err := c.Chat(context.Background(), "sys", "user")
	if err != nil {
		t.Fatalf("Chat() error = %v", err)
	}
	if out != "안녕하세요" {
		t.Errorf("content = %q", out)
	}
}

func TestChatSurfacesAPIFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":{"message":"rate limited","type":"rate_limit_error"}}`))
	}))
	defer srv.Close()

	c := llm.New("test-key", "", llm.WithEndpoint(srv.URL))
	_, err := c.Chat(context.Background(), "sys", "user")
	if err == nil {
		t.Fatal("expected an error on 429")
	}
	if !strings.Contains(err.Error(), "429") {
		t.Errorf("error should carry the status code, got %v", err)
	}
}

func TestChatErrorPayloadWithOKStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"error":{"message":"model overloaded","type":"server_error"}}`))
	}))
	defer srv.Close()

	c := llm.New("test-key", "", llm.WithEndpoint(srv.URL))
	if _, err := c.Chat(context.Background(), "sys", "user"); err == nil || !strings.Contains(err.Error(), "model overloaded") {
		t.Errorf("error = %v, want the embedded API error", err)
	}
}

func TestChatWithoutKey(t *testing.T) {
	c := llm.New("", "")
	if c.Configured() {
		t.Error("Configured() should be false with an empty key")
	}
	_, err := c.Chat(context.Background(), "sys", "user")
	if !errors.Is(err, llm.ErrNotConfigured) {
		t.Errorf("error = %v, want ErrNotConfigured", err)
	}
}
