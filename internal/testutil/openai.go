package testutil

import (
	"encoding/json"
	"hash/fnv"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"unicode"
)

// FakeOpenAI is an OpenAI-compatible server for embeddings and chat
// completions. Embeddings are hashed bags of words, so texts sharing words
// are close under cosine similarity.
type FakeOpenAI struct {
	Server     *httptest.Server
	Dimensions int
	// Answer is returned for every chat completion.
	Answer string

	mu          sync.Mutex
	prompts     []string
	embedCalls  int
	unavailable bool
}

// NewFakeOpenAI starts the server and closes it when the test ends.
func NewFakeOpenAI(t *testing.T, dimensions int) *FakeOpenAI {
	t.Helper()
	f := &FakeOpenAI{Dimensions: dimensions, Answer: "This is the answer."}
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/embeddings", f.handleEmbeddings)
	mux.HandleFunc("/v1/chat/completions", f.handleChat)
	f.Server = httptest.NewServer(mux)
	t.Cleanup(f.Server.Close)
	return f
}

// BaseURL is the value for RAG_EMBEDDING_BASE_URL and RAG_LLM_BASE_URL.
func (f *FakeOpenAI) BaseURL() string {
	return f.Server.URL + "/v1"
}

// SetUnavailable makes every request fail with 503.
func (f *FakeOpenAI) SetUnavailable(v bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.unavailable = v
}

// Prompts returns the user messages received so far.
func (f *FakeOpenAI) Prompts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.prompts...)
}

// EmbedCalls counts embeddings requests.
func (f *FakeOpenAI) EmbedCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.embedCalls
}

func (f *FakeOpenAI) isUnavailable() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.unavailable
}

func (f *FakeOpenAI) handleEmbeddings(w http.ResponseWriter, r *http.Request) {
	if f.isUnavailable() {
		http.Error(w, `{"error":{"message":"model not loaded"}}`, http.StatusServiceUnavailable)
		return
	}
	var req struct {
		Input []string `json:"input"`
		Model string   `json:"model"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":{"message":"bad request"}}`, http.StatusBadRequest)
		return
	}

	f.mu.Lock()
	f.embedCalls++
	f.mu.Unlock()

	type item struct {
		Object    string    `json:"object"`
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	}
	data := make([]item, len(req.Input))
	for i, text := range req.Input {
		data[i] = item{Object: "embedding", Embedding: HashEmbedding(text, f.Dimensions), Index: i}
	}

	writeJSON(w, map[string]any{
		"object": "list",
		"data":   data,
		"model":  req.Model,
		"usage":  map[string]int{"prompt_tokens": 0, "total_tokens": 0},
	})
}

func (f *FakeOpenAI) handleChat(w http.ResponseWriter, r *http.Request) {
	if f.isUnavailable() {
		http.Error(w, `{"error":{"message":"model not loaded"}}`, http.StatusServiceUnavailable)
		return
	}
	var req struct {
		Model    string `json:"model"`
		Messages []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":{"message":"bad request"}}`, http.StatusBadRequest)
		return
	}

	f.mu.Lock()
	for _, m := range req.Messages {
		if m.Role == "user" {
			f.prompts = append(f.prompts, m.Content)
		}
	}
	answer := f.Answer
	f.mu.Unlock()

	writeJSON(w, map[string]any{
		"id":     "chatcmpl-test",
		"object": "chat.completion",
		"model":  req.Model,
		"choices": []map[string]any{{
			"index":         0,
			"message":       map[string]string{"role": "assistant", "content": answer},
			"finish_reason": "stop",
		}},
	})
}

// HashEmbedding maps each lowercased word to a bucket and L2-normalizes the counts.
func HashEmbedding(text string, dimensions int) []float32 {
	v := make([]float32, dimensions)
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, w := range words {
		h := fnv.New32a()
		h.Write([]byte(w))
		v[h.Sum32()%uint32(dimensions)]++
	}
	var norm float64
	for _, x := range v {
		norm += float64(x) * float64(x)
	}
	if norm == 0 {
		v[0] = 1
		return v
	}
	scale := float32(1 / math.Sqrt(norm))
	for i := range v {
		v[i] *= scale
	}
	return v
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}
