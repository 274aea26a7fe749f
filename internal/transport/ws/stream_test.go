package ws

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"speechbridge-server-go/internal/domain/pipeline"
	platformtesting "speechbridge-server-go/internal/platform/testing"
)

type fakeRunner struct {
	lastReq pipeline.Request
}

func (f *fakeRunner) Run(_ context.Context, req pipeline.Request) *pipeline.Record {
	f.lastReq = req
	record := &pipeline.Record{ID: "run-ws", Status: "completed"}
	if req.OnStage != nil {
		for _, stage := range []pipeline.Stage{pipeline.StageNormalize, pipeline.StageTranscribe} {
			result := pipeline.StageResult{Stage: stage}
			record.Stages = append(record.Stages, result)
			req.OnStage(record, result)
		}
	}
	return record
}

func dialTestStream(t *testing.T, runner Runner) *websocket.Conn {
	t.Helper()

	gin.SetMode(gin.TestMode)
	engine := gin.New()
	NewStream(runner, platformtesting.SetupTestLogger(t)).Register(engine)

	srv := httptest.NewServer(engine)
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/pipeline"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func TestStreamEmitsStageAndRecordFrames(t *testing.T) {
	runner := &fakeRunner{}
	conn := dialTestStream(t, runner)

	err := conn.WriteJSON(map[string]string{
		"target_language": "fr",
		"format":          "wav",
	})
	if err != nil {
		t.Fatalf("write start frame: %v", err)
	}
	if err := conn.WriteMessage(websocket.BinaryMessage, []byte("RIFFfake")); err != nil {
		t.Fatalf("write audio frame: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var types []string
	for {
		var frame progressFrame
		if err := conn.ReadJSON(&frame); err != nil {
			break
		}
		types = append(types, frame.Type)
		if frame.Type == "record" {
			if frame.Record == nil || frame.Record.ID != "run-ws" {
				t.Fatalf("unexpected record frame: %+v", frame)
			}
			break
		}
	}

	if len(types) != 3 || types[0] != "stage" || types[1] != "stage" || types[2] != "record" {
		t.Fatalf("unexpected frame sequence %v", types)
	}
	if runner.lastReq.TargetLanguage != "fr" || runner.lastReq.Audio == nil {
		t.Fatalf("request not assembled from frames: %+v", runner.lastReq)
	}
}

func TestStreamTextEntrySkipsAudioFrame(t *testing.T) {
	runner := &fakeRunner{}
	conn := dialTestStream(t, runner)

	err := conn.WriteJSON(map[string]string{
		"text":            "hello",
		"target_language": "fr",
	})
	if err != nil {
		t.Fatalf("write start frame: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	for {
		var frame progressFrame
		if err := conn.ReadJSON(&frame); err != nil {
			t.Fatalf("read: %v", err)
		}
		if frame.Type == "record" {
			break
		}
	}

	if runner.lastReq.Text != "hello" || runner.lastReq.Audio != nil {
		t.Fatalf("unexpected request: %+v", runner.lastReq)
	}
}
