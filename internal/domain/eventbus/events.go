package eventbus

const (
	// Pipeline lifecycle.
	EventPipelineStarted   = "pipeline:started"
	EventPipelineStage     = "pipeline:stage"
	EventPipelineCompleted = "pipeline:completed"
	EventPipelineFailed    = "pipeline:failed"

	// Cache traffic.
	EventCacheHit  = "cache:hit"
	EventCacheMiss = "cache:miss"

	// System events.
	EventSystemError = "system:error"
	EventSystemInfo  = "system:info"
)

// PipelineEventData describes one pipeline lifecycle event. Stage is empty
// for the started/completed/failed envelope events.
type PipelineEventData struct {
	PipelineID string  `json:"pipeline_id"`
	Stage      string  `json:"stage,omitempty"`
	Status     string  `json:"status,omitempty"`
	CacheHit   bool    `json:"cache_hit,omitempty"`
	DurationMS float64 `json:"duration_ms,omitempty"`
	Error      string  `json:"error,omitempty"`
}

// CacheEventData describes one cache lookup.
type CacheEventData struct {
	Namespace string `json:"namespace"`
	Key       string `json:"key"`
}

// SystemEventData carries operator-facing notices.
type SystemEventData struct {
	Level   string      `json:"level"` // error, warn, info
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}
