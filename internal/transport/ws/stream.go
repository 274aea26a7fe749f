package ws

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"speechbridge-server-go/internal/domain/audio"
	"speechbridge-server-go/internal/domain/pipeline"
	"speechbridge-server-go/internal/platform/logging"
)

// Runner is the slice of the orchestrator the stream needs.
type Runner interface {
	Run(ctx context.Context, req pipeline.Request) *pipeline.Record
}

// startFrame is the first message of a session: the pipeline parameters.
type startFrame struct {
	SourceLanguage string `json:"source_language"`
	TargetLanguage string `json:"target_language"`
	Voice          string `json:"voice"`
	StopAfter      string `json:"stop_after"`
	Text           string `json:"text"`
	Format         string `json:"format"`
}

// progressFrame is sent once per completed stage, then once with the full
// record.
type progressFrame struct {
	Type       string           `json:"type"` // stage, record, error
	PipelineID string           `json:"pipeline_id,omitempty"`
	Stage      string           `json:"stage,omitempty"`
	CacheHit   bool             `json:"cache_hit,omitempty"`
	DurationMS float64          `json:"duration_ms,omitempty"`
	Record     *pipeline.Record `json:"record,omitempty"`
	Message    string           `json:"message,omitempty"`
}

// Stream runs pipelines over a websocket, emitting a progress frame as each
// stage lands. Protocol: one JSON start frame, then one binary audio frame
// unless the start frame carried text.
type Stream struct {
	runner  Runner
	logger  *logging.Logger
	upgrade websocket.Upgrader
}

func NewStream(runner Runner, logger *logging.Logger) *Stream {
	return &Stream{
		runner: runner,
		logger: logger,
		upgrade: websocket.Upgrader{
			ReadBufferSize:   32 << 10,
			WriteBufferSize:  32 << 10,
			HandshakeTimeout: 10 * time.Second,
			CheckOrigin:      func(*http.Request) bool { return true },
		},
	}
}

// Register mounts the stream endpoint on the engine.
func (s *Stream) Register(engine *gin.Engine) {
	engine.GET("/ws/pipeline", s.handle)
}

func (s *Stream) handle(c *gin.Context) {
	conn, err := s.upgrade.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.WarnTag("WS", "upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	start, err := s.readStart(conn)
	if err != nil {
		s.closeWithError(conn, "expected a JSON start frame")
		return
	}

	req := pipeline.Request{
		Text:           start.Text,
		SourceLanguage: start.SourceLanguage,
		TargetLanguage: start.TargetLanguage,
		Voice:          start.Voice,
		StopAfter:      pipeline.Stage(start.StopAfter),
	}

	if req.Text == "" {
		blob, err := s.readAudio(conn, start.Format)
		if err != nil {
			s.closeWithError(conn, "expected a binary audio frame")
			return
		}
		req.Audio = blob
	}

	// Frames are written from the orchestrator's goroutine and this one.
	var writeMu sync.Mutex
	send := func(frame progressFrame) {
		writeMu.Lock()
		defer writeMu.Unlock()
		if err := conn.WriteJSON(frame); err != nil {
			s.logger.DebugTag("WS", "write failed: %v", err)
		}
	}

	req.OnStage = func(record *pipeline.Record, result pipeline.StageResult) {
		send(progressFrame{
			Type:       "stage",
			PipelineID: record.ID,
			Stage:      string(result.Stage),
			CacheHit:   result.CacheHit,
			DurationMS: result.DurationMS,
		})
	}

	record := s.runner.Run(c.Request.Context(), req)

	frame := progressFrame{Type: "record", PipelineID: record.ID, Record: record}
	if record.Status != "completed" && record.Error != nil {
		frame.Message = record.Error.Message
	}
	send(frame)

	writeMu.Lock()
	_ = conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	writeMu.Unlock()
}

func (s *Stream) readStart(conn *websocket.Conn) (*startFrame, error) {
	conn.SetReadDeadline(time.Now().Add(30 * time.Second))
	var start startFrame
	if err := conn.ReadJSON(&start); err != nil {
		return nil, err
	}
	return &start, nil
}

func (s *Stream) readAudio(conn *websocket.Conn, format string) (*audio.Blob, error) {
	conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	msgType, data, err := conn.ReadMessage()
	for err == nil && msgType != websocket.BinaryMessage {
		msgType, data, err = conn.ReadMessage()
	}
	if err != nil {
		return nil, err
	}
	if format == "" {
		format = "wav"
	}
	return &audio.Blob{Data: data, Format: format}, nil
}

func (s *Stream) closeWithError(conn *websocket.Conn, message string) {
	_ = conn.WriteJSON(progressFrame{Type: "error", Message: message})
	_ = conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.ClosePolicyViolation, message))
}
