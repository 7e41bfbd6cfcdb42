package notify

import (
	"bytes"
	"context"
	"testing"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
)

func TestMultiFansOutAndSkipsNil(t *testing.T) {
	var a, b Recorder
	n := Multi(&a, nil, &b)
	n.Notify(context.Background(), Notification{Level: LevelWarning, Kind: KindSync, Message: "missing"})

	assert.Equal(t, 1, a.Count(LevelWarning, KindSync))
	assert.Equal(t, 1, b.Count(LevelWarning, ""))
	assert.Equal(t, 0, b.Count(LevelSuccess, ""))
}

func TestLoggerMapsLevels(t *testing.T) {
	var buf bytes.Buffer
	logger := hclog.New(&hclog.LoggerOptions{Output: &buf, Level: hclog.Info})
	Logger(logger).Notify(context.Background(), Notification{
		Level: LevelWarning, Kind: KindOptimize, Message: "optimizer down",
		Fields: map[string]any{"status": 503},
	})
	out := buf.String()
	assert.Contains(t, out, "[WARN]")
	assert.Contains(t, out, "optimizer down")
	assert.Contains(t, out, "status=503")
}

func TestRecorderReset(t *testing.T) {
	var r Recorder
	r.Notify(context.Background(), Notification{Level: LevelInfo})
	r.Reset()
	assert.Empty(t, r.All())
}
