package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func fixedClock(l *Logger) *Logger {
	l.now = func() time.Time { return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC) }
	return l
}

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]interface{} {
	t.Helper()
	var out []map[string]interface{}
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var m map[string]interface{}
		require.NoError(t, json.Unmarshal([]byte(line), &m), line)
		out = append(out, m)
	}
	return out
}

func TestLevels(t *testing.T) {
	tests := []struct {
		level LogLevel
		want  []string
	}{
		{DebugLevel, []string{"DEBUG", "INFO", "WARN", "ERROR"}},
		{InfoLevel, []string{"INFO", "WARN", "ERROR"}},
		{WarnLevel, []string{"WARN", "ERROR"}},
		{ErrorLevel, []string{"ERROR"}},
	}

	for _, tt := range tests {
		t.Run(string(tt.level), func(t *testing.T) {
			var buf bytes.Buffer
			l := New(tt.level, &buf)
			l.Debug("d")
			l.Info("i")
			l.Warn("w")
			l.Error("e")

			var got []string
			for _, e := range decodeLines(t, &buf) {
				got = append(got, e["level"].(string))
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestUnknownLevelDisablesLogging(t *testing.T) {
	l := New(LogLevel("LOUD"), &bytes.Buffer{})
	assert.False(t, l.Enabled(ErrorLevel))
	assert.False(t, New(InfoLevel, nil).Enabled(LogLevel("LOUD")))
}

func TestJSONEntry(t *testing.T) {
	var buf bytes.Buffer
	l := fixedClock(New(InfoLevel, &buf)).WithField("job", "abc")
	l.WithError(errors.New("boom")).Info("Solve failed", map[string]interface{}{"iterations": 3})

	entries := decodeLines(t, &buf)
	require.Len(t, entries, 1)
	e := entries[0]
	assert.Equal(t, "2024-05-01T12:00:00Z", e["timestamp"])
	assert.Equal(t, "INFO", e["level"])
	assert.Equal(t, "Solve failed", e["message"])
	assert.Equal(t, "abc", e["job"])
	assert.Equal(t, "boom", e["error"])
	assert.Equal(t, 3.0, e["iterations"])
	assert.Contains(t, e["caller"], "logging/logging_test.go:")
}

func TestTextEntry(t *testing.T) {
	var buf bytes.Buffer
	l := fixedClock(New(DebugLevel, &buf)).WithFormat(FormatText)
	l.WithFields(map[string]interface{}{"b": 2, "a": "x y"}).Warn("careful")

	line := strings.TrimSpace(buf.String())
	assert.True(t, strings.HasPrefix(line, "2024-05-01T12:00:00Z WARN  careful a=\"x y\" b=2 caller="), line)
}

func TestWithFieldsDoesNotMutateParent(t *testing.T) {
	var buf bytes.Buffer
	parent := New(InfoLevel, &buf)
	_ = parent.WithField("child", true)
	parent.Info("plain")

	e := decodeLines(t, &buf)[0]
	_, ok := e["child"]
	assert.False(t, ok)
	assert.Same(t, parent, parent.WithError(nil))
}

func TestFatalExits(t *testing.T) {
	var code int
	orig := exit
	exit = func(c int) { code = c }
	defer func() { exit = orig }()

	var buf bytes.Buffer
	New(InfoLevel, &buf).Fatal("bye")
	assert.Equal(t, 1, code)
	assert.Contains(t, buf.String(), `"level":"FATAL"`)
}

func TestNewLogger(t *testing.T) {
	l, err := NewLogger(nil)
	require.NoError(t, err)
	assert.Equal(t, FormatJSON, l.format)
	assert.Equal(t, InfoLevel, l.level)

	l, err = NewLogger(&Config{Level: "debug", Format: "TEXT", Output: "stdout"})
	require.NoError(t, err)
	assert.Equal(t, FormatText, l.format)
	assert.Equal(t, DebugLevel, l.level)

	_, err = NewLogger(&Config{Output: t.TempDir() + "/missing/dir/log"})
	assert.Error(t, err)
}

func TestParseLevel(t *testing.T) {
	for in, want := range map[string]LogLevel{
		"debug": DebugLevel, "INFO": InfoLevel, "warning": WarnLevel,
		"Error": ErrorLevel, "fatal": FatalLevel, "": InfoLevel, "verbose": InfoLevel,
	} {
		assert.Equal(t, want, ParseLevel(in), in)
	}
}

func TestZapLogger(t *testing.T) {
	var buf bytes.Buffer
	z := NewZapLogger(New(InfoLevel, &buf)).Named("solver").With(zap.String("job", "j1"))

	z.Debug("hidden")
	z.Info("Iteration",
		zap.Int("iteration", 4),
		zap.Float64("objective", 1.25),
		zap.Bool("forced", true),
		zap.Error(errors.New("none")),
	)

	entries := decodeLines(t, &buf)
	require.Len(t, entries, 1)
	e := entries[0]
	assert.Equal(t, "Iteration", e["message"])
	assert.Equal(t, "solver", e["logger"])
	assert.Equal(t, "j1", e["job"])
	assert.Equal(t, 4.0, e["iteration"])
	assert.Equal(t, 1.25, e["objective"])
	assert.Equal(t, true, e["forced"])
	assert.Equal(t, "none", e["error"])
}

func TestZapLevelMapping(t *testing.T) {
	var buf bytes.Buffer
	z := NewZapLogger(New(WarnLevel, &buf))
	z.Info("no")
	z.Warn("yes")
	z.Error("also")

	entries := decodeLines(t, &buf)
	require.Len(t, entries, 2)
	assert.Equal(t, "WARN", entries[0]["level"])
	assert.Equal(t, "ERROR", entries[1]["level"])
}

func TestMiddleware(t *testing.T) {
	var buf bytes.Buffer
	logger := New(InfoLevel, &buf)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(Middleware(logger, "/healthz"))
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })
	r.Get("/missing", func(w http.ResponseWriter, r *http.Request) {
		FromContext(r.Context()).Info("Inside handler")
		http.NotFound(w, r)
	})

	for _, path := range []string{"/healthz", "/missing"} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	}

	entries := decodeLines(t, &buf)
	require.Len(t, entries, 2, "health checks are logged at debug")

	inside, done := entries[0], entries[1]
	assert.Equal(t, "Inside handler", inside["message"])
	assert.Equal(t, "/missing", inside["path"])
	assert.NotEmpty(t, inside["request_id"])

	assert.Equal(t, "Request completed", done["message"])
	assert.Equal(t, 404.0, done["status"])
	assert.Equal(t, "Not Found", done["error"])
	assert.Equal(t, inside["request_id"], done["request_id"])
}

func TestFromContextDefault(t *testing.T) {
	l := FromContext(context.Background())
	require.NotNil(t, l)
	assert.True(t, l.Enabled(InfoLevel))
	assert.False(t, l.Enabled(DebugLevel))
}
