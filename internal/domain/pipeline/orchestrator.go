package pipeline

import (
	"context"
	"time"

	"speechbridge-server-go/internal/domain/asr"
	"speechbridge-server-go/internal/domain/audio"
	"speechbridge-server-go/internal/domain/cache"
	"speechbridge-server-go/internal/domain/eventbus"
	"speechbridge-server-go/internal/domain/translate"
	"speechbridge-server-go/internal/domain/tts"
	"speechbridge-server-go/internal/platform/config"
	plerrors "speechbridge-server-go/internal/platform/errors"
	"speechbridge-server-go/internal/platform/logging"
	"speechbridge-server-go/internal/util/work"
)

// Request describes one run. Either Audio or Text must be set: audio enters
// at normalization, text skips straight to translation.
type Request struct {
	Audio          *audio.Blob
	Text           string
	SourceLanguage string
	TargetLanguage string
	Voice          string
	ReferenceAudio []byte

	// StopAfter truncates the run after the named stage. Empty runs the
	// full pipeline.
	StopAfter Stage

	// OnStage, when set, observes each stage result as it lands.
	OnStage func(record *Record, result StageResult)
}

// deferredWrite is one best-effort background job: a cache fill or a
// history row.
type deferredWrite struct {
	run func(ctx context.Context) error
}

// Queue is the background queue deferred writes drain on.
type Queue = work.Queue[deferredWrite]

// Orchestrator drives audio through normalize, transcribe, translate and
// synthesize, with a cache lookup before and a detached cache write after
// each cacheable stage.
type Orchestrator struct {
	cfg        config.PipelineConfig
	normalizer *audio.Normalizer
	recognizer asr.Provider
	translator *translate.Service
	speech     *tts.Service
	store      cache.Store
	cacheTTL   time.Duration
	queue      *work.Queue[deferredWrite]
	history    HistoryWriter
	logger     *logging.Logger
}

// Options carries the orchestrator's collaborators. Store, History and a
// nil queue are all optional; a nil queue runs deferred writes inline.
type Options struct {
	Config     config.PipelineConfig
	Normalizer *audio.Normalizer
	Recognizer asr.Provider
	Translator *translate.Service
	Speech     *tts.Service
	Store      cache.Store
	CacheTTL   time.Duration
	Queue      *work.Queue[deferredWrite]
	History    HistoryWriter
	Logger     *logging.Logger
}

func New(opts Options) (*Orchestrator, error) {
	const op = "pipeline.New"
	if opts.Normalizer == nil {
		return nil, plerrors.New(plerrors.KindConfig, op, "normalizer required")
	}
	if opts.Recognizer == nil {
		return nil, plerrors.New(plerrors.KindConfig, op, "asr provider required")
	}
	if opts.Translator == nil {
		return nil, plerrors.New(plerrors.KindConfig, op, "translation service required")
	}
	if opts.Speech == nil {
		return nil, plerrors.New(plerrors.KindConfig, op, "tts service required")
	}
	if opts.Logger == nil {
		return nil, plerrors.New(plerrors.KindConfig, op, "logger required")
	}

	cfg := opts.Config
	if cfg.StageTimeout <= 0 {
		cfg.StageTimeout = config.Duration(120 * time.Second)
	}

	return &Orchestrator{
		cfg:        cfg,
		normalizer: opts.Normalizer,
		recognizer: opts.Recognizer,
		translator: opts.Translator,
		speech:     opts.Speech,
		store:      opts.Store,
		cacheTTL:   opts.CacheTTL,
		queue:      opts.Queue,
		history:    opts.History,
		logger:     opts.Logger,
	}, nil
}

// NewQueue builds the background queue sized for the orchestrator's
// deferred writes.
func NewQueue(workers int, logger *logging.Logger) *Queue {
	return work.NewQueue(workers, func(ctx context.Context, w deferredWrite) error {
		if err := w.run(ctx); err != nil {
			logger.DebugTag("CACHE", "deferred write failed: %v", err)
			return err
		}
		return nil
	})
}

// Run executes the requested pipeline prefix. The returned record is never
// nil: a failure mid-run keeps every stage completed before it.
func (o *Orchestrator) Run(ctx context.Context, req Request) *Record {
	record := newRecord(req.SourceLanguage, req.TargetLanguage)
	eventbus.PublishAsync(eventbus.EventPipelineStarted, eventbus.PipelineEventData{PipelineID: record.ID})
	started := time.Now()

	text := req.Text
	source := req.SourceLanguage

	if text == "" {
		if req.Audio == nil {
			return o.fail(record, started, StageNormalize,
				plerrors.New(plerrors.KindStage, "pipeline.Run", "audio or text required"))
		}

		stageStart := time.Now()
		clip, err := o.normalizer.Normalize(*req.Audio)
		if err != nil {
			return o.fail(record, started, StageNormalize, err)
		}
		o.complete(record, req, StageResult{
			Stage:      StageNormalize,
			DurationMS: msSince(stageStart),
		})
		if req.StopAfter == StageNormalize {
			return o.finish(record, started)
		}

		stageStart = time.Now()
		transcript, hit, err := o.Transcribe(ctx, clip, source)
		if err != nil {
			return o.fail(record, started, StageTranscribe, err)
		}
		o.complete(record, req, StageResult{
			Stage:      StageTranscribe,
			CacheHit:   hit,
			DurationMS: msSince(stageStart),
			Transcript: transcript,
		})
		text = transcript.Text
		if source == "" {
			source = transcript.Language
			record.SourceLanguage = source
		}
		if req.StopAfter == StageTranscribe {
			return o.finish(record, started)
		}
	}

	stageStart := time.Now()
	translation, hit, err := o.Translate(ctx, text, source, req.TargetLanguage)
	if err != nil {
		return o.fail(record, started, StageTranslate, err)
	}
	o.complete(record, req, StageResult{
		Stage:       StageTranslate,
		CacheHit:    hit,
		DurationMS:  msSince(stageStart),
		Translation: translation,
	})
	if record.SourceLanguage == "" {
		record.SourceLanguage = translation.SourceLanguage
	}
	if req.StopAfter == StageTranslate {
		return o.finish(record, started)
	}

	stageStart = time.Now()
	synthesis, hit, err := o.Synthesize(ctx, tts.Request{
		Text:           translation.Text,
		Language:       req.TargetLanguage,
		Voice:          req.Voice,
		ReferenceAudio: req.ReferenceAudio,
	})
	if err != nil {
		return o.fail(record, started, StageSynthesize, err)
	}
	o.complete(record, req, StageResult{
		Stage:      StageSynthesize,
		CacheHit:   hit,
		DurationMS: msSince(stageStart),
		Synthesis:  synthesis,
	})

	return o.finish(record, started)
}

// Transcribe resolves a clip to text, consulting the transcription cache
// first.
func (o *Orchestrator) Transcribe(ctx context.Context, clip *audio.Normalized, language string) (*asr.Result, bool, error) {
	wav := clip.Encode()
	key := cache.KeyForAudio(wav).Namespaced(cache.NamespaceTranscription)

	var cached asr.Result
	if o.lookup(ctx, key, &cached) {
		return &cached, true, nil
	}

	result, err := callWithTimeout(ctx, o.cfg.StageTimeout.Std(), "pipeline.Transcribe",
		func(ctx context.Context) (*asr.Result, error) {
			return o.recognizer.Transcribe(ctx, clip, language)
		})
	if err != nil {
		return nil, false, err
	}

	o.deferWrite(key, result)
	return result, false, nil
}

// Translate resolves text to the target language, consulting the
// translation cache first. Pair gating happens before the cache: an
// unsupported pair never produces a lookup or a backend call.
func (o *Orchestrator) Translate(ctx context.Context, text, source, target string) (*translate.Result, bool, error) {
	if source == "" {
		source = translate.DefaultSource
	}
	if !o.translator.Supported(source, target) {
		return nil, false, plerrors.NewCoded(plerrors.KindStage, plerrors.CodeUnsupportedLanguagePair,
			"pipeline.Translate", "language pair "+source+"-"+target+" is not supported")
	}

	key := cache.KeyForText(text, source, target).Namespaced(cache.NamespaceTranslation)

	var cached translate.Result
	if o.lookup(ctx, key, &cached) {
		return &cached, true, nil
	}

	result, err := callWithTimeout(ctx, o.cfg.StageTimeout.Std(), "pipeline.Translate",
		func(ctx context.Context) (*translate.Result, error) {
			return o.translator.Translate(ctx, text, source, target)
		})
	if err != nil {
		return nil, false, err
	}

	o.deferWrite(key, result)
	return result, false, nil
}

// cachedSynthesis carries the audio bytes that the result type itself keeps
// out of JSON.
type cachedSynthesis struct {
	Result tts.Result `json:"result"`
	Audio  []byte     `json:"audio"`
}

// Synthesize renders speech, consulting the synthesis cache first. Cloning
// requests bypass the cache: their output depends on the reference clip,
// not just the text.
func (o *Orchestrator) Synthesize(ctx context.Context, req tts.Request) (*tts.Result, bool, error) {
	cacheable := len(req.ReferenceAudio) == 0
	var key string
	if cacheable {
		key = cache.KeyForText(req.Text, req.Language, req.Voice).Namespaced(cache.NamespaceSynthesis)

		var cached cachedSynthesis
		if o.lookup(ctx, key, &cached) {
			result := cached.Result
			result.Audio = cached.Audio
			return &result, true, nil
		}
	}

	result, err := callWithTimeout(ctx, o.cfg.StageTimeout.Std(), "pipeline.Synthesize",
		func(ctx context.Context) (*tts.Result, error) {
			return o.speech.Synthesize(ctx, req)
		})
	if err != nil {
		return nil, false, err
	}

	if cacheable {
		o.deferWrite(key, cachedSynthesis{Result: *result, Audio: result.Audio})
	}
	return result, false, nil
}

// lookup reads and decodes one cache entry. Backend trouble degrades to a
// miss.
func (o *Orchestrator) lookup(ctx context.Context, key string, out any) bool {
	if o.store == nil {
		return false
	}
	payload, found, err := o.store.Get(ctx, key)
	if err != nil {
		o.logger.DebugTag("CACHE", "lookup %s failed: %v", key, err)
		return false
	}
	if !found {
		eventbus.PublishAsync(eventbus.EventCacheMiss, cacheEvent(key))
		return false
	}
	if err := cache.Unmarshal(payload, out); err != nil {
		o.logger.WarnTag("CACHE", "corrupt entry %s dropped: %v", key, err)
		return false
	}
	eventbus.PublishAsync(eventbus.EventCacheHit, cacheEvent(key))
	return true
}

// deferWrite schedules a cache fill off the request path. With no queue the
// write runs inline; either way failure is swallowed.
func (o *Orchestrator) deferWrite(key string, value any) {
	if o.store == nil {
		return
	}
	payload, err := cache.Marshal(value)
	if err != nil {
		o.logger.WarnTag("CACHE", "encode %s failed: %v", key, err)
		return
	}

	write := deferredWrite{run: func(ctx context.Context) error {
		return o.store.Put(ctx, key, payload, o.cacheTTL)
	}}
	if o.queue != nil {
		if err := o.queue.SubmitWithRetries(write, 0, 2); err != nil {
			o.logger.DebugTag("CACHE", "write %s not queued: %v", key, err)
		}
		return
	}
	if err := write.run(context.Background()); err != nil {
		o.logger.DebugTag("CACHE", "write %s failed: %v", key, err)
	}
}

func (o *Orchestrator) complete(record *Record, req Request, result StageResult) {
	record.append(result)
	eventbus.PublishAsync(eventbus.EventPipelineStage, eventbus.PipelineEventData{
		PipelineID: record.ID,
		Stage:      string(result.Stage),
		Status:     "completed",
		CacheHit:   result.CacheHit,
		DurationMS: result.DurationMS,
	})
	if req.OnStage != nil {
		req.OnStage(record, result)
	}
}

func (o *Orchestrator) finish(record *Record, started time.Time) *Record {
	record.TotalDurationMS = msSince(started)
	eventbus.PublishAsync(eventbus.EventPipelineCompleted, eventbus.PipelineEventData{
		PipelineID: record.ID,
		DurationMS: record.TotalDurationMS,
	})
	o.persist(record)
	return record
}

func (o *Orchestrator) fail(record *Record, started time.Time, stage Stage, err error) *Record {
	record.Status = "failed"
	record.FailedStage = stage
	record.Error = plerrors.Describe(err)
	record.TotalDurationMS = msSince(started)

	o.logger.WarnTag("PIPELINE", "%s failed at %s: %v", record.ID, stage, err)
	eventbus.PublishAsync(eventbus.EventPipelineFailed, eventbus.PipelineEventData{
		PipelineID: record.ID,
		Stage:      string(stage),
		Error:      record.Error.Message,
		DurationMS: record.TotalDurationMS,
	})
	o.persist(record)
	return record
}

// persist hands the record to the history writer off the request path.
func (o *Orchestrator) persist(record *Record) {
	if o.history == nil {
		return
	}
	write := deferredWrite{run: func(ctx context.Context) error {
		return o.history.Save(ctx, record)
	}}
	if o.queue != nil {
		if err := o.queue.SubmitWithRetries(write, 1, 2); err != nil {
			o.logger.DebugTag("HISTORY", "record %s not queued: %v", record.ID, err)
		}
		return
	}
	if err := write.run(context.Background()); err != nil {
		o.logger.WarnTag("HISTORY", "record %s not saved: %v", record.ID, err)
	}
}

// callWithTimeout runs one stage call on its own goroutine. On expiry the
// stage fails with a timeout code; a result arriving later is discarded via
// the buffered channel.
func callWithTimeout[T any](ctx context.Context, timeout time.Duration, op string, fn func(ctx context.Context) (T, error)) (T, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type outcome struct {
		value T
		err   error
	}
	done := make(chan outcome, 1)
	go func() {
		value, err := fn(ctx)
		done <- outcome{value: value, err: err}
	}()

	select {
	case out := <-done:
		return out.value, out.err
	case <-ctx.Done():
		var zero T
		if ctx.Err() == context.DeadlineExceeded {
			return zero, plerrors.NewCoded(plerrors.KindStage, plerrors.CodeTimeout, op, "stage timed out")
		}
		return zero, plerrors.Wrap(plerrors.KindStage, op, "stage cancelled", ctx.Err())
	}
}

func cacheEvent(key string) eventbus.CacheEventData {
	ns, rest := key, ""
	for i := 0; i < len(key); i++ {
		if key[i] == ':' {
			ns, rest = key[:i], key[i+1:]
			break
		}
	}
	return eventbus.CacheEventData{Namespace: ns, Key: rest}
}

func msSince(t time.Time) float64 {
	return float64(time.Since(t).Microseconds()) / 1000
}
