package engine

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func newOpenAITestServer(t *testing.T, handler http.HandlerFunc) *OpenAIEngine {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewOpenAIEngine(OpenAIConfig{APIKey: "test-key", BaseURL: srv.URL + "/v1"})
}

func TestOpenAIEngine_ChatJSON(t *testing.T) {
	var captured map[string]any
	e := newOpenAITestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			http.NotFound(w, r)
			return
		}
		json.NewDecoder(r.Body).Decode(&captured)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"x","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":"{\"mode\":\"both\"}"},"finish_reason":"stop"}]}`))
	})

	out, err := e.Chat(context.Background(), "gpt-4o-mini", []Message{{Role: "user", Content: "route"}}, ChatOptions{JSON: true, Temperature: 0.2})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if out != `{"mode":"both"}` {
		t.Errorf("out = %q", out)
	}
	rf, _ := captured["response_format"].(map[string]any)
	if rf["type"] != "json_object" {
		t.Errorf("response_format = %v, want json_object", captured["response_format"])
	}
}

func TestOpenAIEngine_EmbedOrdersByIndex(t *testing.T) {
	e := newOpenAITestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/embeddings" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"object":"list","data":[{"object":"embedding","index":1,"embedding":[2,2]},{"object":"embedding","index":0,"embedding":[1,1]}],"model":"m"}`))
	})

	vecs, err := e.Embed(context.Background(), "text-embedding-3-small", []string{"a", "b"})
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if vecs[0][0] != 1 || vecs[1][0] != 2 {
		t.Errorf("vecs = %v, want index order", vecs)
	}
}

func TestOpenAIEngine_APIError(t *testing.T) {
	e := newOpenAITestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":{"message":"bad key","type":"invalid_request_error"}}`))
	})

	_, err := e.Chat(context.Background(), "gpt-4o-mini", nil, ChatOptions{})
	if err == nil || !strings.Contains(err.Error(), "401") {
		t.Fatalf("err = %v, want 401 API error", err)
	}
}

func TestOpenAIEngine_PullUnsupported(t *testing.T) {
	e := NewOpenAIEngine(OpenAIConfig{APIKey: "k"})
	if err := e.PullModel(context.Background(), "gpt-4o", nil); err != ErrPullUnsupported {
		t.Errorf("err = %v, want ErrPullUnsupported", err)
	}
}
