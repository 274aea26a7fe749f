package httptransport

import (
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"speechbridge-server-go/internal/domain/audio"
	"speechbridge-server-go/internal/domain/pipeline"
	"speechbridge-server-go/internal/domain/similarity"
	"speechbridge-server-go/internal/domain/tts"
	"speechbridge-server-go/internal/platform/config"
	"speechbridge-server-go/internal/platform/logging"
	"speechbridge-server-go/internal/platform/storage"
)

// Runner is the slice of the orchestrator the API needs.
type Runner interface {
	Run(ctx context.Context, req pipeline.Request) *pipeline.Record
	Synthesize(ctx context.Context, req tts.Request) (*tts.Result, bool, error)
}

// Comparer is the slice of the similarity scorer the API needs.
type Comparer interface {
	Compare(ctx context.Context, reference, candidate audio.Blob) (*similarity.Score, error)
	CompareMany(ctx context.Context, reference audio.Blob, candidates []audio.Blob) ([]similarity.BatchItem, error)
}

// HistoryReader serves the history endpoints. Nil disables them.
type HistoryReader interface {
	Recent(ctx context.Context, limit int) ([]storage.PipelineRun, error)
	Get(ctx context.Context, id string) (*storage.PipelineRun, error)
}

// Pinger reports cache backend health. Nil means no cache configured.
type Pinger interface {
	Ping(ctx context.Context) error
}

// LanguageInfo lists what the service can do, for the discovery endpoint.
type LanguageInfo struct {
	TranslationPairs []string `json:"translation_pairs"`
	SynthesisLangs   []string `json:"synthesis_languages"`
	CloningAvailable bool     `json:"voice_cloning_available"`
}

// Service wires the speech endpoints onto a router.
type Service struct {
	cfg       *config.Config
	runner    Runner
	comparer  Comparer
	history   HistoryReader
	cachePing Pinger
	languages LanguageInfo
	logger    *logging.Logger
	started   time.Time
}

func NewService(cfg *config.Config, runner Runner, comparer Comparer, history HistoryReader, cachePing Pinger, languages LanguageInfo, logger *logging.Logger) *Service {
	return &Service{
		cfg:       cfg,
		runner:    runner,
		comparer:  comparer,
		history:   history,
		cachePing: cachePing,
		languages: languages,
		logger:    logger,
		started:   time.Now(),
	}
}

// Register mounts every endpoint on the API group.
func (s *Service) Register(api *gin.RouterGroup) {
	api.POST("/transcribe", s.handleTranscribe)
	api.POST("/translate", s.handleTranslate)
	api.POST("/speak", s.handleSpeak)
	api.POST("/clone", s.handleClone)
	api.POST("/pipeline", s.handlePipeline)
	api.POST("/similarity", s.handleSimilarity)
	api.POST("/similarity/batch", s.handleSimilarityBatch)
	api.GET("/supported-languages", s.handleSupportedLanguages)
	api.GET("/health", s.handleHealth)
	api.GET("/history", s.handleHistory)
	api.GET("/history/:id", s.handleHistoryByID)
}

func (s *Service) handleTranscribe(c *gin.Context) {
	blob, ok := s.formAudio(c, "audio")
	if !ok {
		return
	}

	record := s.runner.Run(c.Request.Context(), pipeline.Request{
		Audio:          blob,
		SourceLanguage: c.PostForm("language"),
		StopAfter:      pipeline.StageTranscribe,
	})
	if record.Status != "completed" {
		s.respondRecordFailure(c, record)
		return
	}

	stage := record.Stages[len(record.Stages)-1]
	RespondSuccess(c, http.StatusOK, gin.H{
		"pipeline_id": record.ID,
		"cache_hit":   stage.CacheHit,
		"transcript":  stage.Transcript,
	}, "")
}

type translateRequest struct {
	Text           string `json:"text" binding:"required"`
	SourceLanguage string `json:"source_language"`
	TargetLanguage string `json:"target_language" binding:"required"`
}

func (s *Service) handleTranslate(c *gin.Context) {
	var req translateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "text and target_language are required", nil)
		return
	}

	record := s.runner.Run(c.Request.Context(), pipeline.Request{
		Text:           req.Text,
		SourceLanguage: req.SourceLanguage,
		TargetLanguage: req.TargetLanguage,
		StopAfter:      pipeline.StageTranslate,
	})
	if record.Status != "completed" {
		s.respondRecordFailure(c, record)
		return
	}

	stage := record.Stages[len(record.Stages)-1]
	RespondSuccess(c, http.StatusOK, gin.H{
		"pipeline_id": record.ID,
		"cache_hit":   stage.CacheHit,
		"translation": stage.Translation,
	}, "")
}

type speakRequest struct {
	Text     string `json:"text" binding:"required"`
	Language string `json:"language" binding:"required"`
	Voice    string `json:"voice"`
}

func (s *Service) handleSpeak(c *gin.Context) {
	var req speakRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "text and language are required", nil)
		return
	}

	result, hit, err := s.runner.Synthesize(c.Request.Context(), tts.Request{
		Text:     req.Text,
		Language: req.Language,
		Voice:    req.Voice,
	})
	if err != nil {
		RespondDomainError(c, err)
		return
	}

	s.respondSynthesis(c, result, hit)
}

func (s *Service) handleClone(c *gin.Context) {
	reference, ok := s.formAudio(c, "reference")
	if !ok {
		return
	}
	text := c.PostForm("text")
	language := c.PostForm("language")
	if text == "" || language == "" {
		RespondError(c, http.StatusBadRequest, "text and language are required", nil)
		return
	}

	result, _, err := s.runner.Synthesize(c.Request.Context(), tts.Request{
		Text:           text,
		Language:       language,
		ReferenceAudio: reference.Data,
	})
	if err != nil {
		RespondDomainError(c, err)
		return
	}

	s.respondSynthesis(c, result, false)
}

func (s *Service) handlePipeline(c *gin.Context) {
	req := pipeline.Request{
		SourceLanguage: c.PostForm("source_language"),
		TargetLanguage: c.PostForm("target_language"),
		Voice:          c.PostForm("voice"),
		StopAfter:      pipeline.Stage(c.PostForm("stop_after")),
	}

	if text := c.PostForm("text"); text != "" {
		req.Text = text
	} else {
		blob, ok := s.formAudio(c, "audio")
		if !ok {
			return
		}
		req.Audio = blob
	}
	if ref, err := readFormFile(c, "reference"); err == nil {
		req.ReferenceAudio = ref
	}

	record := s.runner.Run(c.Request.Context(), req)

	payload := gin.H{"record": record}
	if synth := record.Synthesis(); synth != nil {
		if url, err := s.storeAudio(synth); err != nil {
			s.logger.WarnTag("HTTP", "audio not stored: %v", err)
		} else {
			payload["audio_url"] = url
		}
	}

	if record.Status != "completed" {
		// Partial failure still returns what was computed.
		RespondError(c, http.StatusUnprocessableEntity, record.Error.Message, payload)
		return
	}
	RespondSuccess(c, http.StatusOK, payload, "")
}

func (s *Service) handleSimilarity(c *gin.Context) {
	if s.comparer == nil {
		RespondError(c, http.StatusServiceUnavailable, "similarity scoring not configured", nil)
		return
	}
	reference, ok := s.formAudio(c, "reference")
	if !ok {
		return
	}
	candidate, ok := s.formAudio(c, "candidate")
	if !ok {
		return
	}

	score, err := s.comparer.Compare(c.Request.Context(), *reference, *candidate)
	if err != nil {
		RespondDomainError(c, err)
		return
	}

	payload := gin.H{"similarity": score}
	if expected := c.PostForm("expected_text"); expected != "" {
		diff := similarity.WordDiff(expected, c.PostForm("spoken_text"))
		payload["word_diff"] = diff
		payload["word_accuracy"] = similarity.Accuracy(diff)
	}
	RespondSuccess(c, http.StatusOK, payload, "")
}

func (s *Service) handleSimilarityBatch(c *gin.Context) {
	if s.comparer == nil {
		RespondError(c, http.StatusServiceUnavailable, "similarity scoring not configured", nil)
		return
	}
	reference, ok := s.formAudio(c, "reference")
	if !ok {
		return
	}

	form, err := c.MultipartForm()
	if err != nil {
		RespondError(c, http.StatusBadRequest, "multipart form required", nil)
		return
	}
	files := form.File["candidates"]
	if len(files) == 0 {
		RespondError(c, http.StatusBadRequest, "at least one candidate file is required", nil)
		return
	}

	candidates := make([]audio.Blob, 0, len(files))
	for _, fh := range files {
		data, err := readFileHeader(fh)
		if err != nil {
			RespondError(c, http.StatusBadRequest, "unreadable candidate file", nil)
			return
		}
		candidates = append(candidates, audio.Blob{Data: data, Format: formatFromName(fh.Filename)})
	}

	items, err := s.comparer.CompareMany(c.Request.Context(), *reference, candidates)
	if err != nil {
		RespondDomainError(c, err)
		return
	}

	type batchEntry struct {
		Index int               `json:"index"`
		Score *similarity.Score `json:"similarity,omitempty"`
		Error string            `json:"error,omitempty"`
	}
	out := make([]batchEntry, 0, len(items))
	for _, item := range items {
		entry := batchEntry{Index: item.Index, Score: item.Score}
		if item.Err != nil {
			entry.Error = item.Err.Error()
		}
		out = append(out, entry)
	}
	RespondSuccess(c, http.StatusOK, gin.H{"results": out}, "")
}

func (s *Service) handleSupportedLanguages(c *gin.Context) {
	RespondSuccess(c, http.StatusOK, s.languages, "")
}

func (s *Service) handleHealth(c *gin.Context) {
	ctx := c.Request.Context()

	components := gin.H{"pipeline": "up"}

	// A cache outage degrades latency, not correctness, so it never turns
	// the health check red.
	if s.cachePing != nil {
		if err := s.cachePing.Ping(ctx); err != nil {
			components["cache"] = "down"
		} else {
			components["cache"] = "up"
		}
	} else {
		components["cache"] = "disabled"
	}

	system := gin.H{"uptime_seconds": int(time.Since(s.started).Seconds())}
	if percents, err := cpu.PercentWithContext(ctx, 0, false); err == nil && len(percents) > 0 {
		system["cpu_percent"] = percents[0]
	}
	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		system["memory_percent"] = vm.UsedPercent
	}

	RespondSuccess(c, http.StatusOK, gin.H{
		"status":     "ok",
		"components": components,
		"system":     system,
	}, "")
}

func (s *Service) handleHistory(c *gin.Context) {
	if s.history == nil {
		RespondError(c, http.StatusNotFound, "history disabled", nil)
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	rows, err := s.history.Recent(c.Request.Context(), limit)
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	RespondSuccess(c, http.StatusOK, gin.H{"runs": rows}, "")
}

func (s *Service) handleHistoryByID(c *gin.Context) {
	if s.history == nil {
		RespondError(c, http.StatusNotFound, "history disabled", nil)
		return
	}

	row, err := s.history.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	if row == nil {
		RespondError(c, http.StatusNotFound, "no such pipeline run", nil)
		return
	}
	RespondSuccess(c, http.StatusOK, row, "")
}

func (s *Service) respondRecordFailure(c *gin.Context, record *pipeline.Record) {
	status := http.StatusUnprocessableEntity
	message := "pipeline failed"
	if record.Error != nil {
		message = record.Error.Message
	}
	RespondError(c, status, message, gin.H{"record": record})
}

func (s *Service) respondSynthesis(c *gin.Context, result *tts.Result, cacheHit bool) {
	payload := gin.H{
		"synthesis": result,
		"cache_hit": cacheHit,
	}
	if url, err := s.storeAudio(result); err != nil {
		s.logger.WarnTag("HTTP", "audio not stored: %v", err)
	} else {
		payload["audio_url"] = url
	}
	RespondSuccess(c, http.StatusOK, payload, "")
}

// storeAudio writes synthesized audio under the served audio directory and
// returns its public URL.
func (s *Service) storeAudio(result *tts.Result) (string, error) {
	dir := s.cfg.Web.AudioDir
	if dir == "" {
		return "", fmt.Errorf("no audio directory configured")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}

	name := uuid.NewString() + "." + result.Format
	if err := os.WriteFile(filepath.Join(dir, name), result.Audio, 0o644); err != nil {
		return "", err
	}
	return "/audio/" + name, nil
}

// formAudio reads one uploaded audio file, enforcing the configured size
// and format limits.
func (s *Service) formAudio(c *gin.Context, field string) (*audio.Blob, bool) {
	fh, err := c.FormFile(field)
	if err != nil {
		RespondError(c, http.StatusBadRequest, fmt.Sprintf("%s file is required", field), nil)
		return nil, false
	}

	if maxMB := s.cfg.Audio.MaxUploadMB; maxMB > 0 && fh.Size > int64(maxMB)<<20 {
		RespondError(c, http.StatusRequestEntityTooLarge,
			fmt.Sprintf("%s exceeds the %d MB upload limit", field, maxMB), nil)
		return nil, false
	}

	format := formatFromName(fh.Filename)
	if allowed := s.cfg.Audio.AllowedFormats; len(allowed) > 0 && !contains(allowed, format) {
		RespondError(c, http.StatusUnsupportedMediaType,
			fmt.Sprintf("format %q is not accepted", format), nil)
		return nil, false
	}

	data, err := readFileHeader(fh)
	if err != nil {
		RespondError(c, http.StatusBadRequest, fmt.Sprintf("unreadable %s file", field), nil)
		return nil, false
	}
	return &audio.Blob{Data: data, Format: format}, true
}

func readFormFile(c *gin.Context, field string) ([]byte, error) {
	fh, err := c.FormFile(field)
	if err != nil {
		return nil, err
	}
	return readFileHeader(fh)
}

func readFileHeader(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

func formatFromName(name string) string {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(name)), ".")
	if ext == "" {
		return "wav"
	}
	return ext
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if strings.EqualFold(item, v) {
			return true
		}
	}
	return false
}
