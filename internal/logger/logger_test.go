package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"
	"time"
)

func decodeLine(t *testing.T, b []byte) map[string]any {
	t.Helper()
	var m map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(b), &m); err != nil {
		t.Fatalf("not json: %q: %v", b, err)
	}
	return m
}

func TestSlogBridge_CarriesContextFields(t *testing.T) {
	var buf bytes.Buffer
	zl := Build(Config{Level: "debug", Service: "routepoi"}, &buf)
	log := NewSlog(&zl).With("component", "stations")

	ctx := WithRequestID(context.Background(), "req-1")
	ctx = WithDataset(ctx, "fuel")
	log.WarnContext(ctx, "region failed", "region", "01", "err", errors.New("timeout"), "took", 2*time.Second)

	m := decodeLine(t, buf.Bytes())
	for k, want := range map[string]string{
		"request_id": "req-1", "dataset": "fuel", "region": "01", "err": "timeout",
		"level": "warn", "msg": "region failed", "service": "routepoi", "component": "stations",
	} {
		if m[k] != want {
			t.Fatalf("%s=%v want %q (line %s)", k, m[k], want, buf.String())
		}
	}
}

func TestSlogBridge_RespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	zl := Build(Config{Level: "warn"}, &buf)
	log := NewSlog(&zl)

	if log.Enabled(context.Background(), slog.LevelInfo) {
		t.Fatalf("info enabled at warn level")
	}
	log.Info("dropped")
	if buf.Len() != 0 {
		t.Fatalf("info written: %s", buf.String())
	}
	log.Error("kept")
	if buf.Len() == 0 {
		t.Fatalf("error dropped")
	}
}

func TestSlogBridge_GroupsPrefixKeys(t *testing.T) {
	var buf bytes.Buffer
	zl := Build(Config{Level: "info"}, &buf)
	NewSlog(&zl).WithGroup("refresh").Info("done", "records", 12)

	m := decodeLine(t, buf.Bytes())
	if m["refresh.records"] != float64(12) {
		t.Fatalf("line=%s", buf.String())
	}
}

func TestWithRequestID_GeneratesWhenEmpty(t *testing.T) {
	ctx := WithRequestID(context.Background(), "")
	if id := RequestID(ctx); len(id) != 16 {
		t.Fatalf("id=%q", id)
	}
}
