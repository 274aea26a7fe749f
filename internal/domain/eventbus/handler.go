package eventbus

import (
	"speechbridge-server-go/internal/platform/logging"
)

// LogSubscriber mirrors bus traffic into the structured log, so a pipeline
// run can be followed without attaching a websocket.
type LogSubscriber struct {
	logger *logging.Logger
}

func NewLogSubscriber(logger *logging.Logger) *LogSubscriber {
	return &LogSubscriber{logger: logger}
}

// Attach subscribes the log handlers on the shared async bus.
func (s *LogSubscriber) Attach() error {
	topics := map[string]interface{}{
		EventPipelineStarted:   s.onPipeline("started"),
		EventPipelineStage:     s.onPipeline("stage"),
		EventPipelineCompleted: s.onPipeline("completed"),
		EventPipelineFailed:    s.onPipeline("failed"),
		EventCacheHit:          s.onCache(true),
		EventCacheMiss:         s.onCache(false),
		EventSystemError:       s.onSystem,
	}
	for topic, fn := range topics {
		if err := SubscribeAsync(topic, fn); err != nil {
			return err
		}
	}
	return nil
}

func (s *LogSubscriber) onPipeline(kind string) func(PipelineEventData) {
	return func(data PipelineEventData) {
		switch kind {
		case "stage":
			s.logger.DebugTag("PIPELINE", "%s stage=%s status=%s cache_hit=%v duration=%.0fms",
				data.PipelineID, data.Stage, data.Status, data.CacheHit, data.DurationMS)
		case "failed":
			s.logger.WarnTag("PIPELINE", "%s failed: %s", data.PipelineID, data.Error)
		default:
			s.logger.InfoTag("PIPELINE", "%s %s", data.PipelineID, kind)
		}
	}
}

func (s *LogSubscriber) onCache(hit bool) func(CacheEventData) {
	return func(data CacheEventData) {
		if hit {
			s.logger.DebugTag("CACHE", "hit %s:%s", data.Namespace, data.Key)
		} else {
			s.logger.DebugTag("CACHE", "miss %s:%s", data.Namespace, data.Key)
		}
	}
}

func (s *LogSubscriber) onSystem(data SystemEventData) {
	s.logger.ErrorTag("BOOT", "%s", data.Message)
}
