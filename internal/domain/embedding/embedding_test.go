package embedding

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"speechbridge-server-go/internal/platform/config"
	plerrors "speechbridge-server-go/internal/platform/errors"
)

func TestRESTProviderParsesVector(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Content-Type") != "audio/wav" {
			t.Errorf("unexpected content type %q", r.Header.Get("Content-Type"))
		}
		_, _ = w.Write([]byte(`{"embedding":[0.1,0.2,0.3]}`))
	}))
	defer srv.Close()

	provider, err := NewRESTProvider(config.EmbeddingConfig{URL: srv.URL})
	if err != nil {
		t.Fatalf("NewRESTProvider error: %v", err)
	}

	vec, err := provider.Embed(context.Background(), []byte("RIFFfake"))
	if err != nil {
		t.Fatalf("Embed error: %v", err)
	}
	if len(vec) != 3 || vec[1] != 0.2 {
		t.Fatalf("unexpected vector %v", vec)
	}
}

func TestRESTProviderEmptyVectorIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"embedding":[]}`))
	}))
	defer srv.Close()

	provider, err := NewRESTProvider(config.EmbeddingConfig{URL: srv.URL})
	if err != nil {
		t.Fatalf("NewRESTProvider error: %v", err)
	}

	_, err = provider.Embed(context.Background(), []byte("RIFFfake"))
	if plerrors.CodeOf(err) != plerrors.CodeEmbeddingFailed {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestRESTProviderRejectsEmptyClip(t *testing.T) {
	provider, err := NewRESTProvider(config.EmbeddingConfig{URL: "http://localhost:1"})
	if err != nil {
		t.Fatalf("NewRESTProvider error: %v", err)
	}

	if _, err := provider.Embed(context.Background(), nil); err == nil {
		t.Fatal("expected error for empty clip")
	}
}
