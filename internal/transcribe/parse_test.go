package transcribe

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleWhisperJSON = `{
	"text": " Hello world. This is a test.",
	"language": "en",
	"segments": [
		{
			"start": 0.0, "end": 2.5, "text": " Hello world.", "avg_logprob": -0.2,
			"words": [
				{"word": " Hello", "start": 0.0, "end": 0.8, "probability": 0.98},
				{"word": " world.", "start": 0.9, "end": 2.4, "probability": 0.95}
			]
		},
		{
			"start": 2.5, "end": 5.0, "text": " This is a test.", "avg_logprob": -0.4
		}
	]
}`

func TestParseWhisperJSON(t *testing.T) {
	transcript, avg, err := parseWhisperJSON([]byte(sampleWhisperJSON))
	require.NoError(t, err)

	assert.Equal(t, "en", transcript.Language)
	assert.Equal(t, "Hello world. This is a test.", transcript.FullText)
	assert.Equal(t, 2, transcript.SegmentCount)
	assert.Equal(t, 5.0, transcript.DurationSec)

	first := transcript.Segments[0]
	assert.Equal(t, "Hello world.", first.Text)
	require.Len(t, first.Words, 2)
	assert.Equal(t, "Hello", first.Words[0].Word)
	assert.Equal(t, int64(0), first.Words[0].StartMs)
	assert.Equal(t, int64(800), first.Words[0].EndMs)

	// Second segment carries no word timestamps; that is allowed.
	assert.Empty(t, transcript.Segments[1].Words)

	expected := (math.Exp(-0.2) + math.Exp(-0.4)) / 2
	assert.InDelta(t, expected, avg, 1e-9)
}

func TestParseWhisperJSON_EmptyTranscript(t *testing.T) {
	transcript, avg, err := parseWhisperJSON([]byte(`{"text":"","language":"en","segments":[]}`))
	require.NoError(t, err)
	assert.Empty(t, transcript.FullText)
	assert.Zero(t, transcript.SegmentCount)
	assert.Zero(t, avg)
}

func TestParseWhisperJSON_FullTextFromSegments(t *testing.T) {
	raw := `{"language":"en","segments":[
		{"start":0,"end":1,"text":" one","avg_logprob":-0.1},
		{"start":1,"end":2,"text":" two","avg_logprob":-0.1}
	]}`
	transcript, _, err := parseWhisperJSON([]byte(raw))
	require.NoError(t, err)
	assert.Equal(t, "one two", transcript.FullText)
}

func TestParseWhisperJSON_Invalid(t *testing.T) {
	_, _, err := parseWhisperJSON([]byte("not json"))
	assert.Error(t, err)
}

func TestWhisperOutputPath(t *testing.T) {
	assert.Equal(t, "/data/transcripts/talk.json",
		whisperOutputPath("/data/audio/talk.wav", "/data/transcripts"))
}

func TestLogprobToConfidence(t *testing.T) {
	assert.Equal(t, 1.0, logprobToConfidence(0))
	assert.InDelta(t, math.Exp(-1), logprobToConfidence(-1), 1e-12)
}
