package imagegen

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestNewClient_Defaults(t *testing.T) {
	client := NewClient(Config{APIKey: "test-key"})

	if client.model != "gemini-2.5-flash-image" {
		t.Errorf("model = %q, want gemini-2.5-flash-image", client.model)
	}
	if client.baseURL != defaultBaseURL {
		t.Errorf("baseURL = %q, want %q", client.baseURL, defaultBaseURL)
	}
}

func TestGenerateReturnsFirstImagePart(t *testing.T) {
	var gotPath, gotKey string
	var gotReq generateRequest

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.Header.Get("x-goog-api-key")
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Errorf("decode request: %v", err)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"candidates": []map[string]any{{
				"content": map[string]any{
					"parts": []map[string]any{
						{"text": "here is your diagram"},
						{"inlineData": map[string]any{"mimeType": "image/png", "data": "aW1hZ2U="}},
						{"inlineData": map[string]any{"mimeType": "image/png", "data": "c2Vjb25k"}},
					},
				},
			}},
		})
	}))
	defer srv.Close()

	client := NewClient(Config{APIKey: "test-key", BaseURL: srv.URL})
	data, err := client.Generate(context.Background(), "diagram of photosynthesis")
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	if data != "aW1hZ2U=" {
		t.Errorf("data = %q, want first inlineData part", data)
	}
	if gotPath != "/models/gemini-2.5-flash-image:generateContent" {
		t.Errorf("path = %q", gotPath)
	}
	if gotKey != "test-key" {
		t.Errorf("api key header = %q", gotKey)
	}
	if gotReq.GenerationConfig == nil || gotReq.GenerationConfig.ImageConfig == nil ||
		gotReq.GenerationConfig.ImageConfig.AspectRatio != "1:1" {
		t.Errorf("request did not ask for a 1:1 aspect ratio: %+v", gotReq.GenerationConfig)
	}
	if len(gotReq.Contents.Parts) != 1 || gotReq.Contents.Parts[0].Text != "diagram of photosynthesis" {
		t.Errorf("prompt parts = %+v", gotReq.Contents.Parts)
	}
}

func TestGenerateNoImagePart(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"candidates": []map[string]any{{
				"content": map[string]any{
					"parts": []map[string]any{{"text": "sorry, text only"}},
				},
			}},
		})
	}))
	defer srv.Close()

	client := NewClient(Config{APIKey: "test-key", BaseURL: srv.URL})
	if _, err := client.Generate(context.Background(), "anything"); err == nil {
		t.Error("expected an error when the response has no image part")
	}
}

func TestGenerateAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error": "quota exceeded"}`, http.StatusTooManyRequests)
	}))
	defer srv.Close()

	client := NewClient(Config{APIKey: "test-key", BaseURL: srv.URL})
	_, err := client.Generate(context.Background(), "anything")
	if err == nil {
		t.Fatal("expected an error on a non-200 status")
	}
	if !strings.Contains(err.Error(), "quota exceeded") {
		t.Errorf("error should carry the response body, got %v", err)
	}
}
