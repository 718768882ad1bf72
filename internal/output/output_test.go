package output

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	spiralerr "github.com/spiralmem/spiralmem/internal/errors"
)

func TestWriter_StatusAndFormats(t *testing.T) {
	buf := &bytes.Buffer{}
	w := New(buf, false)

	w.Statusf("🔍", "checking %d files", 3)
	w.Success("done")
	w.Warning("embedder not available")
	w.Error("failed to connect")

	out := buf.String()
	assert.Contains(t, out, "checking 3 files")
	assert.Contains(t, out, "✅ done")
	assert.Contains(t, out, "⚠️")
	assert.Contains(t, out, "❌ failed to connect")
}

func TestWriter_QuietSuppressesAllButErrors(t *testing.T) {
	buf := &bytes.Buffer{}
	w := New(buf, true)

	w.Success("done")
	w.Warning("warned")
	w.Newline()
	w.Progress(1, 2, "halfway")
	w.Error("broken")

	assert.Equal(t, "❌ broken\n", buf.String())
}

func TestWriter_Progress(t *testing.T) {
	buf := &bytes.Buffer{}
	w := New(buf, false)

	w.Progress(50, 100, "processing videos")
	out := buf.String()
	assert.Contains(t, out, "50%")
	assert.Contains(t, out, "processing videos")
	assert.NotContains(t, out, "\n")

	w.Progress(100, 100, "processing videos")
	assert.Contains(t, buf.String(), "\n")

	assert.NotPanics(t, func() { w.Progress(0, 0, "noop") })
}

func TestRenderProgressBar(t *testing.T) {
	tests := []struct {
		current, total, width, wantFilled int
	}{
		{0, 100, 10, 0},
		{50, 100, 10, 5},
		{100, 100, 10, 10},
		{25, 100, 20, 5},
		{200, 100, 10, 10},
	}
	for _, tt := range tests {
		bar := renderProgressBar(tt.current, tt.total, tt.width)
		assert.Equal(t, tt.wantFilled, strings.Count(bar, "█"))
		assert.Equal(t, tt.width, len([]rune(bar)))
	}
}

func TestJSONWriter_OK(t *testing.T) {
	buf := &bytes.Buffer{}
	require.NoError(t, NewJSON(buf).OK(map[string]any{"memoryId": "abc"}))

	out := buf.String()
	assert.Contains(t, out, `"success": true`)
	assert.Contains(t, out, `"memoryId": "abc"`)
}

func TestJSONWriter_FailCarriesStructuredError(t *testing.T) {
	buf := &bytes.Buffer{}
	err := spiralerr.New(spiralerr.ErrCodeFileNotFound, "video file not found").
		WithDetail("path", "/v/missing.mp4").
		WithSuggestion("check the path")
	require.NoError(t, NewJSON(buf).Fail(err))

	out := buf.String()
	assert.Contains(t, out, `"success": false`)
	assert.Contains(t, out, spiralerr.ErrCodeFileNotFound)
	assert.Contains(t, out, "video file not found")
	assert.Contains(t, out, "/v/missing.mp4")
	assert.Contains(t, out, "check the path")
}

func TestJSONWriter_FailPlainError(t *testing.T) {
	buf := &bytes.Buffer{}
	require.NoError(t, NewJSON(buf).Fail(errors.New("boom")))

	out := buf.String()
	assert.Contains(t, out, spiralerr.ErrCodeInternal)
	assert.Contains(t, out, "boom")
}
