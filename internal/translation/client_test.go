package translation

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestTranslate(t *testing.T) {
	var requests []map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/translate" {
			http.NotFound(w, r)
			return
		}
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		requests = append(requests, body)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"translatedText":   " hello " + body["target"].(string),
			"alternatives":     []string{"", "hi"},
			"detectedLanguage": map[string]any{"language": "de", "confidence": 90},
		})
	}))
	defer srv.Close()

	c := New(srv.URL+"/", 2).WithAlternatives(2)
	out, err := c.Translate(context.Background(), "hallo", "", []string{"en", "fr", "auto"})
	if err != nil {
		t.Fatalf("Translate: %v", err)
	}

	if len(requests) != 2 {
		t.Fatalf("requests = %d, want 2", len(requests))
	}
	if requests[0]["source"] != "auto" || requests[0]["alternatives"] != float64(2) {
		t.Fatalf("payload = %v", requests[0])
	}
	en := out["en"]
	if en.Primary != "hello en" || en.DetectedLanguage != "de" {
		t.Fatalf("en = %+v", en)
	}
	if len(en.Alternatives) != 1 || en.Alternatives[0] != "hi" {
		t.Fatalf("alternatives = %v", en.Alternatives)
	}
}

func TestTranslateSkipsBlankText(t *testing.T) {
	c := New("http://127.0.0.1:1", 1)
	out, err := c.Translate(context.Background(), "  ", "de", []string{"en"})
	if err != nil || len(out) != 0 {
		t.Fatalf("out = %v, err = %v", out, err)
	}
}

func TestTranslateHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "busy", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	if _, err := New(srv.URL, 1).Translate(context.Background(), "hallo", "de", []string{"en"}); err == nil {
		t.Fatal("expected error")
	}
}
