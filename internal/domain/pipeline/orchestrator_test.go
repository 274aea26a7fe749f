package pipeline

import (
	"context"
	"errors"
	"math"
	"sync/atomic"
	"testing"
	"time"

	"speechbridge-server-go/internal/domain/asr"
	"speechbridge-server-go/internal/domain/audio"
	"speechbridge-server-go/internal/domain/cache"
	"speechbridge-server-go/internal/domain/translate"
	"speechbridge-server-go/internal/domain/tts"
	"speechbridge-server-go/internal/platform/config"
	plerrors "speechbridge-server-go/internal/platform/errors"
	platformtesting "speechbridge-server-go/internal/platform/testing"
)

type fakeRecognizer struct {
	calls int32
	delay time.Duration
	err   error
}

func (f *fakeRecognizer) Transcribe(ctx context.Context, _ *audio.Normalized, _ string) (*asr.Result, error) {
	atomic.AddInt32(&f.calls, 1)
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	return &asr.Result{Text: "hello world", Language: "en", Duration: 3}, nil
}

func (f *fakeRecognizer) Name() string { return "fake-asr" }

type fakeTranslator struct {
	calls int32
	err   error
}

func (f *fakeTranslator) Translate(context.Context, string, string, string) (*translate.Result, error) {
	atomic.AddInt32(&f.calls, 1)
	if f.err != nil {
		return nil, f.err
	}
	return &translate.Result{Text: "bonjour le monde"}, nil
}

func (f *fakeTranslator) Name() string { return "fake-mt" }

type fakeSpeech struct {
	calls int32
}

func (f *fakeSpeech) Synthesize(context.Context, tts.Request) (*tts.Result, error) {
	atomic.AddInt32(&f.calls, 1)
	return &tts.Result{Audio: []byte("wavdata"), Format: "wav", Duration: 2.5, SampleRate: 22050}, nil
}

func (f *fakeSpeech) Name() string { return "fake-tts" }

type fixture struct {
	orch       *Orchestrator
	recognizer *fakeRecognizer
	translator *fakeTranslator
	speech     *fakeSpeech
	store      cache.Store
}

func newFixture(t *testing.T, mutate func(*Options)) *fixture {
	t.Helper()

	logger := platformtesting.SetupTestLogger(t)
	normalizer := audio.NewNormalizer(audio.Options{TargetSampleRate: 16000, PeakLevel: 0.8})

	recognizer := &fakeRecognizer{}
	translator := &fakeTranslator{}
	speech := &fakeSpeech{}

	mtService, err := translate.NewService(config.TranslateConfig{
		Pairs: []string{"en-fr", "en-es"},
	}, translator, logger)
	platformtesting.AssertNoError(t, err)

	ttsService, err := tts.NewService(config.TTSConfig{
		Languages: []string{"en", "fr", "es"},
	}, speech, nil, nil, logger)
	platformtesting.AssertNoError(t, err)

	store := cache.NewMemory()
	t.Cleanup(func() { _ = store.Close() })

	opts := Options{
		Config:     config.PipelineConfig{StageTimeout: config.Duration(5 * time.Second)},
		Normalizer: normalizer,
		Recognizer: recognizer,
		Translator: mtService,
		Speech:     ttsService,
		Store:      store,
		CacheTTL:   time.Minute,
		Logger:     logger,
	}
	if mutate != nil {
		mutate(&opts)
	}

	orch, err := New(opts)
	platformtesting.AssertNoError(t, err)

	return &fixture{
		orch:       orch,
		recognizer: recognizer,
		translator: translator,
		speech:     speech,
		store:      store,
	}
}

func speechBlob(t *testing.T) *audio.Blob {
	t.Helper()
	samples := make([]float32, 16000*3)
	for i := range samples {
		samples[i] = float32(0.5 * math.Sin(2*math.Pi*220*float64(i)/16000))
	}
	clip := &audio.Normalized{Samples: samples, SampleRate: 16000}
	return &audio.Blob{Data: clip.Encode(), Format: "wav"}
}

func TestRunFullPipeline(t *testing.T) {
	f := newFixture(t, nil)

	record := f.orch.Run(context.Background(), Request{
		Audio:          speechBlob(t),
		TargetLanguage: "fr",
	})

	if record.Status != "completed" {
		t.Fatalf("unexpected status %q (error: %+v)", record.Status, record.Error)
	}
	if record.ID == "" {
		t.Fatal("record has no id")
	}
	if got := record.Transcript(); got == nil || got.Text != "hello world" {
		t.Fatalf("unexpected transcript: %+v", got)
	}
	if got := record.Translation(); got == nil || got.Text == "hello world" {
		t.Fatalf("translation should differ from transcript: %+v", got)
	}
	if got := record.Synthesis(); got == nil || got.Duration <= 0 {
		t.Fatalf("unexpected synthesis: %+v", got)
	}
	if record.Synthesis().SampleRate != 22050 {
		t.Fatalf("synthesis sample rate not carried through: %d", record.Synthesis().SampleRate)
	}
	if record.SourceLanguage != "en" {
		t.Fatalf("detected source not recorded: %q", record.SourceLanguage)
	}
	if len(record.Stages) != 4 {
		t.Fatalf("expected 4 stages, got %d", len(record.Stages))
	}
}

func TestRunPartialFailureKeepsTranscript(t *testing.T) {
	f := newFixture(t, nil)

	// en-ja is not declared, so translation fails after transcription
	// succeeded.
	record := f.orch.Run(context.Background(), Request{
		Audio:          speechBlob(t),
		TargetLanguage: "ja",
	})

	if record.Status != "failed" || record.FailedStage != StageTranslate {
		t.Fatalf("unexpected outcome: %+v", record)
	}
	if got := record.Transcript(); got == nil || got.Text != "hello world" {
		t.Fatal("transcript from the completed stage must be retained")
	}
	if record.Error == nil || record.Error.Code != string(plerrors.CodeUnsupportedLanguagePair) {
		t.Fatalf("unexpected error descriptor: %+v", record.Error)
	}
	if atomic.LoadInt32(&f.translator.calls) != 0 {
		t.Fatal("translation backend must not run for an undeclared pair")
	}
	if atomic.LoadInt32(&f.speech.calls) != 0 {
		t.Fatal("synthesis must not run after a failed stage")
	}
}

func TestRunSecondRequestHitsCache(t *testing.T) {
	f := newFixture(t, nil)
	req := Request{Audio: speechBlob(t), TargetLanguage: "fr"}

	first := f.orch.Run(context.Background(), req)
	if first.Status != "completed" {
		t.Fatalf("first run failed: %+v", first.Error)
	}
	if first.CacheHits != 0 {
		t.Fatalf("first run should miss everywhere, got %d hits", first.CacheHits)
	}

	second := f.orch.Run(context.Background(), req)
	if second.Status != "completed" {
		t.Fatalf("second run failed: %+v", second.Error)
	}
	if second.CacheHits != 3 {
		t.Fatalf("expected transcribe+translate+synthesize hits, got %d", second.CacheHits)
	}
	if atomic.LoadInt32(&f.recognizer.calls) != 1 {
		t.Fatalf("recognizer ran %d times, cache should serve the second run", f.recognizer.calls)
	}
	if second.Transcript().Text != first.Transcript().Text {
		t.Fatal("cached transcript differs from computed one")
	}
	if string(second.Synthesis().Audio) != string(first.Synthesis().Audio) {
		t.Fatal("cached synthesis audio differs from computed one")
	}
}

func TestRunCacheOutageDegradesToMiss(t *testing.T) {
	f := newFixture(t, func(o *Options) {
		o.Store = nil
	})

	record := f.orch.Run(context.Background(), Request{
		Audio:          speechBlob(t),
		TargetLanguage: "fr",
	})
	if record.Status != "completed" {
		t.Fatalf("run without cache failed: %+v", record.Error)
	}
	for _, s := range record.Stages {
		if s.CacheHit {
			t.Fatalf("no cache configured but stage %s reports a hit", s.Stage)
		}
	}
}

type brokenStore struct {
	gets int32
	puts int32
}

func (s *brokenStore) Get(context.Context, string) ([]byte, bool, error) {
	atomic.AddInt32(&s.gets, 1)
	return nil, false, errors.New("connection refused")
}

func (s *brokenStore) Put(context.Context, string, []byte, time.Duration) error {
	atomic.AddInt32(&s.puts, 1)
	return errors.New("connection refused")
}

func (s *brokenStore) Ping(context.Context) error { return errors.New("connection refused") }

func (s *brokenStore) Close() error { return nil }

func TestRunBrokenCacheBackendDegradesToMiss(t *testing.T) {
	store := &brokenStore{}
	f := newFixture(t, func(o *Options) {
		o.Store = store
	})
	req := Request{Audio: speechBlob(t), TargetLanguage: "fr"}

	first := f.orch.Run(context.Background(), req)
	if first.Status != "completed" {
		t.Fatalf("run with broken cache failed: %+v", first.Error)
	}
	if first.CacheHits != 0 {
		t.Fatalf("broken backend reported %d hits", first.CacheHits)
	}

	second := f.orch.Run(context.Background(), req)
	if second.Status != "completed" {
		t.Fatalf("second run failed: %+v", second.Error)
	}
	if second.CacheHits != 0 {
		t.Fatalf("broken backend reported %d hits on rerun", second.CacheHits)
	}
	if second.Transcript().Text != first.Transcript().Text ||
		second.Translation().Text != first.Translation().Text ||
		string(second.Synthesis().Audio) != string(first.Synthesis().Audio) {
		t.Fatal("payloads must not change when the cache backend is down")
	}
	if atomic.LoadInt32(&f.recognizer.calls) != 2 {
		t.Fatalf("every run must compute when lookups fail, recognizer ran %d times", f.recognizer.calls)
	}
	if atomic.LoadInt32(&store.gets) == 0 || atomic.LoadInt32(&store.puts) == 0 {
		t.Fatal("both the lookup and the deferred write path must be exercised")
	}
}

func TestRunStageTimeout(t *testing.T) {
	f := newFixture(t, func(o *Options) {
		o.Config.StageTimeout = config.Duration(50 * time.Millisecond)
	})
	f.recognizer.delay = 2 * time.Second

	record := f.orch.Run(context.Background(), Request{
		Audio:          speechBlob(t),
		TargetLanguage: "fr",
	})

	if record.Status != "failed" || record.FailedStage != StageTranscribe {
		t.Fatalf("unexpected outcome: %+v", record)
	}
	if record.Error == nil || record.Error.Code != string(plerrors.CodeTimeout) {
		t.Fatalf("unexpected error descriptor: %+v", record.Error)
	}
	// The normalize stage had already completed.
	if len(record.Stages) != 1 || record.Stages[0].Stage != StageNormalize {
		t.Fatalf("unexpected stages: %+v", record.Stages)
	}
}

func TestRunTextEntrySkipsAudioStages(t *testing.T) {
	f := newFixture(t, nil)

	record := f.orch.Run(context.Background(), Request{
		Text:           "hello world",
		SourceLanguage: "en",
		TargetLanguage: "fr",
	})

	if record.Status != "completed" {
		t.Fatalf("run failed: %+v", record.Error)
	}
	if record.Transcript() != nil {
		t.Fatal("text entry must not produce a transcription stage")
	}
	if atomic.LoadInt32(&f.recognizer.calls) != 0 {
		t.Fatal("recognizer must not run for text entry")
	}
	if record.Translation() == nil || record.Synthesis() == nil {
		t.Fatalf("missing stages: %+v", record.Stages)
	}
}

func TestRunStopAfterTranscribe(t *testing.T) {
	f := newFixture(t, nil)

	record := f.orch.Run(context.Background(), Request{
		Audio:          speechBlob(t),
		TargetLanguage: "fr",
		StopAfter:      StageTranscribe,
	})

	if record.Status != "completed" {
		t.Fatalf("run failed: %+v", record.Error)
	}
	if record.Transcript() == nil {
		t.Fatal("transcript missing")
	}
	if record.Translation() != nil || record.Synthesis() != nil {
		t.Fatalf("stages past the stop point ran: %+v", record.Stages)
	}
	if atomic.LoadInt32(&f.translator.calls) != 0 || atomic.LoadInt32(&f.speech.calls) != 0 {
		t.Fatal("backends past the stop point were invoked")
	}
}

func TestRunRejectsEmptyRequest(t *testing.T) {
	f := newFixture(t, nil)

	record := f.orch.Run(context.Background(), Request{TargetLanguage: "fr"})
	if record.Status != "failed" || record.FailedStage != StageNormalize {
		t.Fatalf("unexpected outcome: %+v", record)
	}
}

type failingHistory struct {
	calls int32
}

func (f *failingHistory) Save(context.Context, *Record) error {
	atomic.AddInt32(&f.calls, 1)
	return plerrors.New(plerrors.KindStorage, "test", "disk full")
}

func TestRunHistoryFailureDoesNotFailRequest(t *testing.T) {
	history := &failingHistory{}
	f := newFixture(t, func(o *Options) {
		o.History = history
	})

	record := f.orch.Run(context.Background(), Request{
		Audio:          speechBlob(t),
		TargetLanguage: "fr",
	})
	if record.Status != "completed" {
		t.Fatalf("history failure leaked into the run: %+v", record.Error)
	}
	if atomic.LoadInt32(&history.calls) != 1 {
		t.Fatalf("history writer ran %d times", history.calls)
	}
}

func TestRunObservesStages(t *testing.T) {
	f := newFixture(t, nil)

	var seen []Stage
	record := f.orch.Run(context.Background(), Request{
		Audio:          speechBlob(t),
		TargetLanguage: "fr",
		OnStage: func(_ *Record, result StageResult) {
			seen = append(seen, result.Stage)
		},
	})

	if record.Status != "completed" {
		t.Fatalf("run failed: %+v", record.Error)
	}
	want := []Stage{StageNormalize, StageTranscribe, StageTranslate, StageSynthesize}
	if len(seen) != len(want) {
		t.Fatalf("observed stages %v", seen)
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Fatalf("observed stages %v", seen)
		}
	}
}
