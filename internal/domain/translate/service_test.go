package translate

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"speechbridge-server-go/internal/platform/config"
	plerrors "speechbridge-server-go/internal/platform/errors"
	platformtesting "speechbridge-server-go/internal/platform/testing"
)

type fakeProvider struct {
	calls  int
	result *Result
	err    error
}

func (f *fakeProvider) Translate(context.Context, string, string, string) (*Result, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

func (f *fakeProvider) Name() string { return "fake" }

func newTestService(t *testing.T, provider Provider) *Service {
	t.Helper()
	svc, err := NewService(config.TranslateConfig{
		Pairs: []string{"en-fr", "en-es", "fr-en"},
	}, provider, platformtesting.SetupTestLogger(t))
	if err != nil {
		t.Fatalf("NewService error: %v", err)
	}
	return svc
}

func TestServiceTranslatesSupportedPair(t *testing.T) {
	fake := &fakeProvider{result: &Result{Text: "bonjour"}}
	svc := newTestService(t, fake)

	got, err := svc.Translate(context.Background(), "hello", "en", "fr")
	if err != nil {
		t.Fatalf("Translate error: %v", err)
	}
	if got.Text != "bonjour" {
		t.Fatalf("unexpected text %q", got.Text)
	}
	if got.SourceLanguage != "en" || got.TargetLanguage != "fr" {
		t.Fatalf("languages not stamped: %+v", got)
	}
}

func TestServiceRejectsUndeclaredPairWithoutBackendCall(t *testing.T) {
	fake := &fakeProvider{result: &Result{Text: "x"}}
	svc := newTestService(t, fake)

	_, err := svc.Translate(context.Background(), "hello", "en", "ja")
	if err == nil {
		t.Fatal("expected error for undeclared pair")
	}
	if plerrors.CodeOf(err) != plerrors.CodeUnsupportedLanguagePair {
		t.Fatalf("unexpected code: %v", plerrors.CodeOf(err))
	}
	if fake.calls != 0 {
		t.Fatalf("backend was called %d times for an undeclared pair", fake.calls)
	}
}

func TestServiceDefaultsSourceToEnglish(t *testing.T) {
	fake := &fakeProvider{result: &Result{Text: "hola"}}
	svc := newTestService(t, fake)

	got, err := svc.Translate(context.Background(), "hello", "", "es")
	if err != nil {
		t.Fatalf("Translate error: %v", err)
	}
	if got.SourceLanguage != DefaultSource {
		t.Fatalf("expected default source, got %q", got.SourceLanguage)
	}
}

func TestServiceRejectsEmptyText(t *testing.T) {
	fake := &fakeProvider{result: &Result{Text: "x"}}
	svc := newTestService(t, fake)

	if _, err := svc.Translate(context.Background(), "   ", "en", "fr"); err == nil {
		t.Fatal("expected error for empty text")
	}
	if fake.calls != 0 {
		t.Fatal("backend should not be called for empty text")
	}
}

func TestServiceRejectsMalformedPairConfig(t *testing.T) {
	_, err := NewService(config.TranslateConfig{
		Pairs: []string{"enfr"},
	}, &fakeProvider{}, platformtesting.SetupTestLogger(t))
	if err == nil {
		t.Fatal("expected error for malformed pair")
	}
}

func TestServicePairsStableOrder(t *testing.T) {
	svc := newTestService(t, &fakeProvider{})

	pairs := svc.Pairs()
	want := []string{"en-es", "en-fr", "fr-en"}
	if len(pairs) != len(want) {
		t.Fatalf("unexpected pairs: %v", pairs)
	}
	for i := range want {
		if pairs[i] != want[i] {
			t.Fatalf("unexpected pairs order: %v", pairs)
		}
	}
}

func TestOpenNMTProviderParsesResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/translate/en/fr" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"src":"hello","tgt":"bonjour"}]`))
	}))
	defer srv.Close()

	provider, err := NewOpenNMTProvider(config.OpenNMTConfig{URL: srv.URL})
	if err != nil {
		t.Fatalf("NewOpenNMTProvider error: %v", err)
	}

	got, err := provider.Translate(context.Background(), "hello", "en", "fr")
	if err != nil {
		t.Fatalf("Translate error: %v", err)
	}
	if got.Text != "bonjour" {
		t.Fatalf("unexpected text %q", got.Text)
	}
}

func TestOpenNMTProviderServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	provider, err := NewOpenNMTProvider(config.OpenNMTConfig{URL: srv.URL})
	if err != nil {
		t.Fatalf("NewOpenNMTProvider error: %v", err)
	}

	_, err = provider.Translate(context.Background(), "hello", "en", "fr")
	if plerrors.CodeOf(err) != plerrors.CodeModelUnavailable {
		t.Fatalf("unexpected error: %v", err)
	}
}
